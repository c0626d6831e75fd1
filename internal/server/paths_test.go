package server

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestResolvePath(t *testing.T) {
	root := t.TempDir()
	s := NewServer("test", root, nil)

	tests := []struct {
		path string
		want string // empty when the path must be rejected
	}{
		{"scene.tif", filepath.Join(root, "scene.tif")},
		{"out/tiles", filepath.Join(root, "out", "tiles")},
		{"./a/../b.tif", filepath.Join(root, "b.tif")},
		{".", root},
		{filepath.Join(root, "abs.tif"), filepath.Join(root, "abs.tif")},
		{"..", ""},
		{"../escape", ""},
		{"out/../../escape", ""},
		{filepath.Dir(root), ""},
		{"/etc/passwd", ""},
	}
	for _, tt := range tests {
		got, err := s.resolvePath("out_dir", tt.path)
		if tt.want == "" {
			var rerr *OutsideRootError
			if !errors.As(err, &rerr) {
				t.Errorf("resolvePath(%q) = %q, %v; want *OutsideRootError", tt.path, got, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("resolvePath(%q) = %q, %v; want %q", tt.path, got, err, tt.want)
		}
	}
}

func TestResolvePathSymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	if err := os.Symlink(outside, filepath.Join(root, "link")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}
	s := NewServer("test", root, nil)

	for _, p := range []string{"link", "link/tiles", "link/new/deeper"} {
		if got, err := s.resolvePath("out_dir", p); err == nil {
			t.Errorf("resolvePath(%q) = %q, want rejection", p, got)
		}
	}
}
