package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/xdg/hookgate/internal/hlog"
	"github.com/xdg/hookgate/internal/pathutil"
)

// Load loads the configuration from the default config path.
// If the config file doesn't exist, it returns Default() after attempting
// to create the commented template for the operator to edit.
// If the file exists but cannot be read, parsed, or validated, it returns
// an error: a broken rule set is a configuration defect, not something to
// guess around.
func Load() (*Config, error) {
	return LoadFrom(Path())
}

// LoadFrom loads the configuration from an explicit path.
func LoadFrom(path string) (*Config, error) {
	hlog.Debug("config: loading from %s", path)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			hlog.Debug("config: file not found, using defaults")
			if path == Path() {
				if writeErr := WriteDefaultConfig(); writeErr != nil {
					hlog.Warn("config: failed to create default config: %v", writeErr)
				}
			}
			return Default(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	applyDefaults(cfg)
	cfg.Log.File = pathutil.ExpandHome(cfg.Log.File)
	return cfg, nil
}

// applyDefaults fills unset fields from the built-in defaults. Operator
// lists replace the default lists wholesale when non-empty; scalar loop
// settings fall back individually.
func applyDefaults(cfg *Config) {
	def := Default()

	if len(cfg.Paths.Protected) == 0 {
		cfg.Paths.Protected = def.Paths.Protected
	}
	if len(cfg.Paths.Exceptions) == 0 {
		cfg.Paths.Exceptions = def.Paths.Exceptions
	}
	if len(cfg.Paths.SentinelMarkers) == 0 {
		cfg.Paths.SentinelMarkers = def.Paths.SentinelMarkers
	}

	if cfg.Loop.DefaultMaxIterations == 0 {
		cfg.Loop.DefaultMaxIterations = def.Loop.DefaultMaxIterations
	}
	if cfg.Loop.DefaultToken == "" {
		cfg.Loop.DefaultToken = def.Loop.DefaultToken
	}
	if cfg.Loop.MaxIdleTurns == 0 {
		cfg.Loop.MaxIdleTurns = def.Loop.MaxIdleTurns
	}
}
