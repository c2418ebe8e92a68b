package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileChecker returns a resolver that maps a configured sound to a file.
//
// Relative names are joined to dir; absolute paths are used as given.
// The resolver fails with ErrSoundNotFound unless the result is an
// existing regular file.
func FileChecker(dir string) func(resource string) (string, error) {
	return func(resource string) (string, error) {
		path := resource
		if !filepath.IsAbs(path) && dir != "" {
			path = filepath.Join(dir, path)
		}

		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return "", fmt.Errorf("%w: %s", ErrSoundNotFound, path)
			}
			return "", fmt.Errorf("checking %s: %w", path, err)
		}
		if !info.Mode().IsRegular() {
			return "", fmt.Errorf("%w: %s is not a regular file", ErrSoundNotFound, path)
		}
		return path, nil
	}
}
