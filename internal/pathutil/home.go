// Package pathutil provides path manipulation utilities.
package pathutil

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandHome replaces a leading ~ in path with the user's home directory.
// If the home directory cannot be determined, the path is returned unchanged.
func ExpandHome(path string) string {
	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// ProjectRelative converts path to a slash-separated path relative to
// projectDir when path is inside it. Paths outside the project (or
// unresolvable ones) are returned cleaned and slash-separated, with any
// leading "./" stripped, so glob patterns match consistently either way.
func ProjectRelative(path, projectDir string) string {
	abs, err := filepath.Abs(path)
	if err == nil && projectDir != "" {
		if absProj, perr := filepath.Abs(projectDir); perr == nil {
			if rel, rerr := filepath.Rel(absProj, abs); rerr == nil &&
				rel != ".." && !strings.HasPrefix(rel, "../") {
				return filepath.ToSlash(rel)
			}
		}
	}
	cleaned := filepath.ToSlash(filepath.Clean(path))
	return strings.TrimPrefix(cleaned, "./")
}
