package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrRestrictedPath rejects directories inside the kernel's pseudo
// filesystems.
var ErrRestrictedPath = errors.New("security: restricted path")

var restrictedRoots = []string{"/proc", "/sys", "/dev"}

// ValidatePath rejects a directory that resolves, after symlinks, to
// /proc, /sys, /dev or below. Every --add-dir passes through it.
func ValidatePath(path string) error {
	p := filepath.Clean(path)
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	if real, err := filepath.EvalSymlinks(p); err == nil {
		p = real
	}
	p = strings.ToLower(p)

	for _, root := range restrictedRoots {
		if p == root || strings.HasPrefix(p, root+"/") {
			return fmt.Errorf("%w: %s", ErrRestrictedPath, path)
		}
	}
	return nil
}

// EscapeShellArg quotes s for /bin/sh.
func EscapeShellArg(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
