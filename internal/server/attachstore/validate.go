package attachstore

import (
	"fmt"
	"strings"
)

// validatePath implements §8's "Path traversal rejection" property
// verbatim: empty, starting with "/" or "\", containing "..", containing
// NUL, or matching ^\.\. / /\.\. / \\\.\. is rejected.
func validatePath(p string) error {
	if p == "" {
		return fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	if strings.HasPrefix(p, "/") || strings.HasPrefix(p, "\\") {
		return fmt.Errorf("%w: absolute path", ErrInvalidPath)
	}
	if strings.Contains(p, "..") {
		return fmt.Errorf("%w: contains \"..\"", ErrInvalidPath)
	}
	if strings.ContainsRune(p, '\x00') {
		return fmt.Errorf("%w: contains NUL", ErrInvalidPath)
	}

	return nil
}
