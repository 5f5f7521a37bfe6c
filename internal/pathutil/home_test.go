package pathutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("cannot determine home dir: %v", err)
	}

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare tilde", "~", home},
		{"tilde slash", "~/foo/bar", filepath.Join(home, "foo/bar")},
		{"no tilde", "/etc/passwd", "/etc/passwd"},
		{"tilde mid-path", "/a/~/b", "/a/~/b"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExpandHome(tt.in)
			if got != tt.want {
				t.Errorf("ExpandHome(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestProjectRelative(t *testing.T) {
	proj := t.TempDir()

	tests := []struct {
		name string
		path string
		want string
	}{
		{"inside project", filepath.Join(proj, "config", "prod", "db.yaml"), "config/prod/db.yaml"},
		{"project root file", filepath.Join(proj, ".env"), ".env"},
		{"outside project", "/tmp/elsewhere/.env", "/tmp/elsewhere/.env"},
		{"already relative", "./src/main.go", "src/main.go"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ProjectRelative(tt.path, proj)
			if got != tt.want {
				t.Errorf("ProjectRelative(%q, proj) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestProjectRelativeEmptyProjectDir(t *testing.T) {
	got := ProjectRelative("src/main.go", "")
	if got != "src/main.go" {
		t.Errorf("ProjectRelative with empty project dir = %q, want %q", got, "src/main.go")
	}
}
