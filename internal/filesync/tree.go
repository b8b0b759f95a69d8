package filesync

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Tree is one side of a sync: readable as an fs.FS and writable by relative
// slash separated paths.
type Tree interface {
	fs.FS

	MkDirAll(path string) error
	WriteFile(path string, data io.Reader) error
	Remove(path string) error
	Chtimes(path string, mtime time.Time) error
}

// OsTree is the workstation side of a sync.
type OsTree struct {
	Base string
}

var _ Tree = OsTree{}

func (o OsTree) path(name string) string {
	return filepath.Join(o.Base, filepath.FromSlash(name))
}

func (o OsTree) MkDirAll(path string) error {
	return os.MkdirAll(o.path(path), 0755)
}

func (o OsTree) WriteFile(path string, data io.Reader) error {
	out, err := os.Create(o.path(path))
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, data); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func (o OsTree) Remove(path string) error {
	return os.Remove(o.path(path))
}

func (o OsTree) Chtimes(path string, mtime time.Time) error {
	return os.Chtimes(o.path(path), mtime, mtime)
}

func (o OsTree) Open(name string) (fs.File, error) {
	return os.DirFS(o.Base).Open(name)
}

func (o OsTree) Stat(name string) (fs.FileInfo, error) {
	return fs.Stat(os.DirFS(o.Base), name)
}

func (o OsTree) ReadDir(name string) ([]fs.DirEntry, error) {
	return fs.ReadDir(os.DirFS(o.Base), name)
}
