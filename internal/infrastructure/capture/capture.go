// Package capture stores request frames and enrollment images. A reference
// returned by Save is the object key, so it can be opened again by any
// backend configured with the same root.
package capture

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

var (
	ErrNotFound   = errors.New("capture not found")
	ErrInvalidKey = errors.New("invalid capture key")
)

// CleanKey validates a slash-separated key and returns its clean form. Keys
// must be relative and may not climb out of the store root.
func CleanKey(key string) (string, error) {
	if key == "" || strings.ContainsRune(key, '\\') || strings.ContainsRune(key, 0) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("%w: %q is absolute", ErrInvalidKey, key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return "", fmt.Errorf("%w: %q leaves the store", ErrInvalidKey, key)
		}
	}
	clean := path.Clean(key)
	if clean == "." {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return clean, nil
}
