// Package security guards file paths taken from flags before the tools
// write to them.
package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// canonical resolves path to an absolute path with symlinks evaluated.
// For a path that does not exist yet, the deepest existing ancestor is
// resolved and the remainder is joined back on.
func canonical(path string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	rest := ""
	for dir := abs; ; dir = filepath.Dir(dir) {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			return filepath.Join(resolved, rest), nil
		}
		if filepath.Dir(dir) == dir {
			return abs, nil
		}
		rest = filepath.Join(filepath.Base(dir), rest)
	}
}

// ValidatePathWithinDirectory rejects paths that escape dir, following
// symlinks on both sides.
func ValidatePathWithinDirectory(path, dir string) error {
	p, err := canonical(path)
	if err != nil {
		return err
	}
	d, err := canonical(dir)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(d, p)
	if err != nil {
		return fmt.Errorf("path is outside %s: %w", dir, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("path traversal detected: %s escapes %s", path, dir)
	}
	return nil
}

// ValidateOutputPath accepts paths inside the working directory or the
// temp directory, plus any extra directories given.
func ValidateOutputPath(path string, extra ...string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}
	dirs := append([]string{cwd, os.TempDir()}, extra...)
	for _, dir := range dirs {
		if ValidatePathWithinDirectory(path, dir) == nil {
			return nil
		}
	}
	return fmt.Errorf("path %s must be within one of %v", path, dirs)
}

const maxFilenameLen = 128

// SanitizeFilename maps s onto [A-Za-z0-9._-], collapsing runs of other
// characters into one underscore. An empty result is "unknown".
func SanitizeFilename(s string) string {
	var b strings.Builder
	underscore := false
	for _, r := range s {
		if b.Len() >= maxFilenameLen {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
			underscore = false
		case !underscore:
			b.WriteByte('_')
			underscore = true
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
