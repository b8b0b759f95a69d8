package fatomic

import (
	"os"
	"path/filepath"
)

// WriteFile falls back to a plain truncate and write on Windows, where an
// atomic rename over an existing file is not available.
func WriteFile(filename string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}
	return os.WriteFile(filename, data, perm)
}
