package guard

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/xdg/hookgate/internal/config"
	"github.com/xdg/hookgate/internal/guard/rules"
	"github.com/xdg/hookgate/internal/hlog"
	"github.com/xdg/hookgate/internal/pathutil"
)

// sentinelScanLimit caps how much of an existing file is scanned for
// sentinel markers.
const sentinelScanLimit = 50 * 1024

// codeExtensions lists file types scanned for in-content sentinel markers.
// Only code files are checked; markers in documentation or data files are
// prose, not protection.
var codeExtensions = map[string]bool{
	".py": true, ".js": true, ".ts": true, ".jsx": true, ".tsx": true,
	".go": true, ".rs": true, ".java": true, ".scala": true,
	".c": true, ".cpp": true, ".h": true, ".hpp": true, ".cs": true,
	".rb": true, ".php": true, ".swift": true, ".kt": true,
	".sh": true, ".bash": true, ".zsh": true, ".fish": true,
}

// PathGuard decides whether a proposed file write or edit may proceed.
// Two independent checks are OR-combined: a path check against protected
// globs (with path-local exception globs) and a content check for sentinel
// markers. The content check cannot be overridden by a path exception.
type PathGuard struct {
	protected  []string
	exceptions []string
	markers    []string

	// bypass disables both checks for the session. Bypassed checks are
	// still logged so the audit trail shows protection was off.
	bypass bool
}

// NewPathGuard builds a PathGuard from the configured sentinel zones.
// Globs are validated at config load; bypass reflects the operator's
// session override.
func NewPathGuard(cfg *config.PathsConfig, bypass bool) *PathGuard {
	return &PathGuard{
		protected:  cfg.Protected,
		exceptions: cfg.Exceptions,
		markers:    cfg.SentinelMarkers,
		bypass:     bypass,
	}
}

// Check evaluates a proposed mutation of one or more target paths with the
// given new content. projectDir anchors path normalization; it varies per
// event, because the host reports the project root with each envelope. The
// first blocking check decides; the reason names the pattern or marker
// that fired, for auditability.
func (g *PathGuard) Check(paths []string, content, projectDir string) rules.Verdict {
	if g.bypass {
		hlog.Warn("path guard: protection bypassed by session override (%d target(s))", len(paths))
		return rules.Verdict{
			Decision: rules.Allow,
			Reason:   "sentinel zone protection bypassed by session override",
		}
	}

	for _, p := range paths {
		rel := pathutil.ProjectRelative(p, projectDir)

		if v := g.checkPath(rel); !v.Allowed() {
			return v
		}
		if v := g.checkExistingFile(p, rel, projectDir); !v.Allowed() {
			return v
		}
	}

	if v := g.checkContent(content, "proposed content"); !v.Allowed() {
		return v
	}

	return rules.Verdict{Decision: rules.Allow}
}

// checkPath matches rel against the protected globs. A matching exception
// glob allows the path even when a protected glob also matches: path
// exceptions are path-local, unlike the command guard's category scoping.
func (g *PathGuard) checkPath(rel string) rules.Verdict {
	for _, pat := range g.exceptions {
		if matchGlob(pat, rel) {
			return rules.Verdict{Decision: rules.Allow}
		}
	}
	for _, pat := range g.protected {
		if matchGlob(pat, rel) {
			return rules.Verdict{
				Decision: rules.Block,
				Reason:   fmt.Sprintf("path %q matches protected pattern %q", rel, pat),
				Category: rules.CategoryProtectedPath,
				Pattern:  pat,
			}
		}
	}
	return rules.Verdict{Decision: rules.Allow}
}

// checkContent scans text for sentinel markers. Markers are literal tokens,
// matched case-insensitively; a hit blocks regardless of path and is not
// overridable by path exceptions.
func (g *PathGuard) checkContent(text, where string) rules.Verdict {
	if text == "" {
		return rules.Verdict{Decision: rules.Allow}
	}
	lower := strings.ToLower(text)
	for _, m := range g.markers {
		if strings.Contains(lower, strings.ToLower(m)) {
			return rules.Verdict{
				Decision: rules.Block,
				Reason:   fmt.Sprintf("%s contains sentinel marker %q", where, m),
				Category: rules.CategorySentinel,
				Pattern:  m,
			}
		}
	}
	return rules.Verdict{Decision: rules.Allow}
}

// checkExistingFile scans the current on-disk content of a code file for
// sentinel markers, so an edit cannot strip a marker along with the code it
// protects. Missing or unreadable files pass: the file may not exist yet.
func (g *PathGuard) checkExistingFile(path, rel, projectDir string) rules.Verdict {
	if !codeExtensions[strings.ToLower(filepath.Ext(path))] {
		return rules.Verdict{Decision: rules.Allow}
	}

	abs := path
	if !filepath.IsAbs(abs) && projectDir != "" {
		abs = filepath.Join(projectDir, abs)
	}

	f, err := os.Open(abs)
	if err != nil {
		return rules.Verdict{Decision: rules.Allow}
	}
	defer f.Close()

	buf := make([]byte, sentinelScanLimit)
	n, _ := f.Read(buf)

	return g.checkContent(string(buf[:n]), fmt.Sprintf("existing file %q", rel))
}

// matchGlob matches a doublestar pattern against a slash-separated path.
// Patterns are validated at config load, so a match error here means a
// defect slipped through; treat it as no match rather than failing.
func matchGlob(pattern, rel string) bool {
	ok, err := doublestar.Match(pattern, rel)
	if err != nil {
		hlog.Warn("path guard: bad glob %q: %v", pattern, err)
		return false
	}
	return ok
}
