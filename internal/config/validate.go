package config

import (
	"fmt"
	"regexp"

	"github.com/bmatcuk/doublestar/v4"
)

// validLogLevels defines the allowed log level values.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validCategories defines the command rule categories operators may use.
var validCategories = map[string]bool{
	"destructive":          true,
	"privilege-escalation": true,
	"remote-exec":          true,
	"supply-chain":         true,
	"vcs-safety":           true,
}

// Validate checks a parsed Config for configuration defects. It validates:
//   - Command rule regex patterns compile and name a known category
//   - Path globs are well-formed doublestar patterns
//   - Sentinel markers are non-empty
//   - Loop numeric defaults are positive
//   - Log.Level is one of: debug, info, warn, error (if non-empty)
//
// A defect here is fatal to guard startup: a rule set that cannot be
// compiled must not silently evaluate as "no rules".
func Validate(cfg *Config) error {
	for i, r := range cfg.Commands.Block {
		if err := validateRule(r, fmt.Sprintf("commands.block[%d]", i)); err != nil {
			return err
		}
	}
	for i, r := range cfg.Commands.Exceptions {
		if err := validateRule(r, fmt.Sprintf("commands.exceptions[%d]", i)); err != nil {
			return err
		}
	}

	for i, g := range cfg.Paths.Protected {
		if err := validateGlob(g, fmt.Sprintf("paths.protected[%d]", i)); err != nil {
			return err
		}
	}
	for i, g := range cfg.Paths.Exceptions {
		if err := validateGlob(g, fmt.Sprintf("paths.exceptions[%d]", i)); err != nil {
			return err
		}
	}
	for i, m := range cfg.Paths.SentinelMarkers {
		if m == "" {
			return fmt.Errorf("paths.sentinel_markers[%d]: must be non-empty", i)
		}
	}

	if cfg.Loop.DefaultMaxIterations < 0 {
		return fmt.Errorf("loop.default_max_iterations: must be positive, got %d",
			cfg.Loop.DefaultMaxIterations)
	}
	if cfg.Loop.MaxIdleTurns < 0 {
		return fmt.Errorf("loop.max_idle_turns: must be positive, got %d",
			cfg.Loop.MaxIdleTurns)
	}

	if cfg.Log.Level != "" && !validLogLevels[cfg.Log.Level] {
		return fmt.Errorf("log.level: must be one of debug, info, warn, error; got %q",
			cfg.Log.Level)
	}

	return nil
}

// validateRule checks one operator-defined command rule.
func validateRule(r RuleEntry, field string) error {
	if r.Pattern == "" {
		return fmt.Errorf("%s.pattern: must be non-empty", field)
	}
	if _, err := regexp.Compile(r.Pattern); err != nil {
		return fmt.Errorf("%s.pattern: invalid regex %q: %v", field, r.Pattern, err)
	}
	if r.Category == "" {
		return fmt.Errorf("%s.category: must be non-empty", field)
	}
	if !validCategories[r.Category] {
		return fmt.Errorf("%s.category: unknown category %q", field, r.Category)
	}
	return nil
}

// validateGlob checks one path glob pattern.
func validateGlob(g, field string) error {
	if g == "" {
		return fmt.Errorf("%s: must be non-empty", field)
	}
	if !doublestar.ValidatePattern(g) {
		return fmt.Errorf("%s: invalid glob pattern %q", field, g)
	}
	return nil
}
