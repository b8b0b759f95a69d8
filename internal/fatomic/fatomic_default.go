//go:build !windows

package fatomic

import (
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// WriteFile replaces filename with data in a single rename, creating the
// parent directory when missing.
func WriteFile(filename string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}
	return renameio.WriteFile(filename, data, perm)
}
