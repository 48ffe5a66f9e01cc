package web

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var errPathNotAllowed = errors.New("path is outside the allowed folders")

// resolvePath makes path absolute and follows symlinks. A path that does not
// exist yet, such as an output file, is resolved through its parent folder.
func resolvePath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		return real, nil
	}
	dir, err := filepath.EvalSymlinks(filepath.Dir(abs))
	if err != nil {
		return abs, nil
	}
	return filepath.Join(dir, filepath.Base(abs)), nil
}

func resolveRoots(roots []string) []string {
	out := make([]string, 0, len(roots))
	for _, root := range roots {
		if resolved, err := resolvePath(root); err == nil {
			out = append(out, resolved)
		}
	}
	return out
}

// within reports whether path is root or lies below it.
func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// checkPath rejects request paths outside the configured roots. With no
// roots configured every path is allowed.
func (s *Server) checkPath(field, path string) error {
	if len(s.allowedRoots) == 0 || strings.TrimSpace(path) == "" {
		return nil
	}
	resolved, err := resolvePath(path)
	if err == nil {
		for _, root := range s.allowedRoots {
			if within(root, resolved) {
				return nil
			}
		}
	}
	return fmt.Errorf("%s %q: %w", field, path, errPathNotAllowed)
}
