package server

import (
	"fmt"
	"path/filepath"
	"strings"
)

// OutsideRootError reports a request path that resolves outside the server
// root.
type OutsideRootError struct {
	Field string
	Path  string
}

func (e *OutsideRootError) Error() string {
	return fmt.Sprintf("%s %q is outside the server root", e.Field, e.Path)
}

// resolvePath maps a request path onto the file system. Relative paths are
// joined to the root. The result must stay under the root both lexically and
// after following symlinks of the part of it that already exists.
func (s *Server) resolvePath(field, p string) (string, error) {
	resolved := p
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(s.root, resolved)
	}
	resolved = filepath.Clean(resolved)

	if !within(s.root, resolved) || !within(s.realRoot, evalExisting(resolved)) {
		return "", &OutsideRootError{Field: field, Path: p}
	}
	return resolved, nil
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// evalExisting follows symlinks in the longest existing prefix of p and
// appends the rest unchanged.
func evalExisting(p string) string {
	rest := ""
	for {
		if real, err := filepath.EvalSymlinks(p); err == nil {
			return filepath.Join(real, rest)
		}
		parent := filepath.Dir(p)
		if parent == p {
			return filepath.Join(p, rest)
		}
		rest = filepath.Join(filepath.Base(p), rest)
		p = parent
	}
}
