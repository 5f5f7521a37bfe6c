// Package config provides configuration types for hookgate's guard rule
// sets and loop defaults. These types map to a YAML configuration file.
package config

// Config represents the top-level hookgate configuration.
// It is typically stored at ~/.config/hookgate/config.yaml.
type Config struct {
	Commands CommandsConfig `yaml:"commands,omitempty"`
	Paths    PathsConfig    `yaml:"paths,omitempty"`
	Loop     LoopConfig     `yaml:"loop,omitempty"`
	Log      LogConfig      `yaml:"log,omitempty"`
}

// CommandsConfig extends the built-in command guard rule set. Block entries
// are appended after the built-in denylist; exception entries suppress
// block rules of the same category, built-in or not.
type CommandsConfig struct {
	Block      []RuleEntry `yaml:"block,omitempty"`
	Exceptions []RuleEntry `yaml:"exceptions,omitempty"`
}

// RuleEntry represents one operator-defined rule: a regex pattern, the risk
// category it belongs to, and an optional static reason.
type RuleEntry struct {
	Pattern  string `yaml:"pattern"`
	Category string `yaml:"category"`
	Reason   string `yaml:"reason,omitempty"`
}

// PathsConfig defines the path guard's sentinel zones. A non-empty list
// replaces the corresponding default list wholesale, so operators tune the
// full set rather than appending to an invisible baseline.
type PathsConfig struct {
	Protected       []string `yaml:"protected,omitempty"`
	Exceptions      []string `yaml:"exceptions,omitempty"`
	SentinelMarkers []string `yaml:"sentinel_markers,omitempty"`
}

// LoopConfig holds iteration-control defaults used when a loop setup
// request omits them.
type LoopConfig struct {
	DefaultMaxIterations int    `yaml:"default_max_iterations,omitempty"`
	DefaultToken         string `yaml:"default_completion_token,omitempty"`
	MaxIdleTurns         int    `yaml:"max_idle_turns,omitempty"`
}

// LogConfig contains diagnostic logging settings.
type LogConfig struct {
	File  string `yaml:"file,omitempty"`
	Level string `yaml:"level,omitempty"`
}
