package config

// Default path guard lists. Conservative defaults covering credential
// material, environment files, and production-tagged configuration trees;
// operators tune them in config.yaml.
var (
	// DefaultProtectedGlobs are the built-in sentinel zone path patterns.
	DefaultProtectedGlobs = []string{
		// .env and variants (templates are excepted below)
		"**/.env",
		"**/.env.*",

		// Key and certificate material
		"**/*.pem",
		"**/*.key",
		"**/*.p12",
		"**/*.pfx",
		"**/id_rsa",
		"**/id_rsa.*",
		"**/id_ed25519",
		"**/id_ed25519.*",

		// Secret stores and cloud credentials
		"**/*secret*",
		"**/*secrets*",
		"**/.aws/**",
		"**/.ssh/**",
		"**/*kubeconfig*",

		// Production configuration trees
		"**/docker-compose.prod*.yml",
		"**/docker-compose.production*.yml",
		"**/.github/workflows/*deploy*.yml",
		"**/infra/prod/**",
		"**/k8s/prod/**",
		"**/terraform/prod/**",
		"**/config/prod/**",
		"**/config/production/**",
	}

	// DefaultExceptionGlobs are path-local overrides: a path matching one of
	// these is allowed even when it also matches a protected glob.
	DefaultExceptionGlobs = []string{
		"**/.env.example",
		"**/.env.sample",
		"**/.env.template",
		"**/*.example",
	}

	// DefaultSentinelMarkers are literal in-content tokens that block a
	// write regardless of path.
	DefaultSentinelMarkers = []string{
		"LEGACY_PROTECTED",
		"DO_NOT_MODIFY",
		"SECURITY_CRITICAL",
	}
)

// Loop defaults applied when a setup request omits them.
const (
	DefaultMaxIterations = 20
	DefaultToken         = "DONE"
	DefaultMaxIdleTurns  = 3
)

// Default returns a Config populated with built-in defaults.
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			Protected:       append([]string(nil), DefaultProtectedGlobs...),
			Exceptions:      append([]string(nil), DefaultExceptionGlobs...),
			SentinelMarkers: append([]string(nil), DefaultSentinelMarkers...),
		},
		Loop: LoopConfig{
			DefaultMaxIterations: DefaultMaxIterations,
			DefaultToken:         DefaultToken,
			MaxIdleTurns:         DefaultMaxIdleTurns,
		},
	}
}

// defaultConfigTemplate is written by WriteDefaultConfig. It documents the
// schema with everything commented out, so the built-in defaults stay in
// effect until the operator uncomments a section.
const defaultConfigTemplate = `# hookgate configuration
#
# Guard rule sets and iteration-loop defaults. Every section is optional;
# built-in defaults apply to anything left unset.

# commands:
#   # Appended after the built-in denylist. Categories: destructive,
#   # privilege-escalation, remote-exec, supply-chain, vcs-safety.
#   block:
#     - pattern: '\btruncate\s+-s\s*0\b'
#       category: destructive
#       reason: "truncating files to zero"
#   # Exceptions suppress block rules of the same category only.
#   exceptions:
#     - pattern: '^npx\s+prettier\b'
#       category: supply-chain

# paths:
#   # A non-empty list REPLACES the built-in list of the same name.
#   protected:
#     - "**/.env"
#     - "**/config/production/**"
#   exceptions:
#     - "**/.env.example"
#   sentinel_markers:
#     - "DO_NOT_MODIFY"

# loop:
#   default_max_iterations: 20
#   default_completion_token: "DONE"
#   max_idle_turns: 3

# log:
#   file: ~/.local/state/hookgate/hookgate.log
#   level: info
`
