package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xdg/hookgate/internal/pathutil"
)

// Dir returns the hookgate configuration directory path.
// By default, this is ~/.config/hookgate. If the XDG_CONFIG_HOME
// environment variable is set, it uses $XDG_CONFIG_HOME/hookgate instead.
func Dir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = "~/.config"
	}
	return filepath.Join(pathutil.ExpandHome(base), "hookgate")
}

// EnsureDir creates the hookgate configuration directory if it
// doesn't exist. It uses 0700 permissions for security (user-only access).
// Returns nil if the directory already exists or was successfully created.
func EnsureDir() error {
	if err := os.MkdirAll(Dir(), 0o700); err != nil {
		return fmt.Errorf("ensure config dir: %w", err)
	}
	return nil
}

// Path returns the full path to the configuration file.
// This is Dir() + "/config.yaml".
func Path() string {
	return filepath.Join(Dir(), "config.yaml")
}
