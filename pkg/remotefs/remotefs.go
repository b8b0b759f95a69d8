// Package remotefs views a directory of the cluster, reached through a
// remote.FS channel, as an io/fs file system that can also be written.
package remotefs

import (
	"io"
	"io/fs"
	"path"
	"slices"
	"strings"
	"time"

	"go.bug.st/f"

	"github.com/slurmdesk/slurmdesk/pkg/remote"
)

// Tree is rooted at Root on the cluster. Names are slash separated and
// relative, as io/fs requires.
type Tree struct {
	Root string
	fs   remote.FS
}

var (
	_ fs.ReadDirFS = Tree{}
	_ fs.StatFS    = Tree{}
)

func New(root string, channel remote.FS) Tree {
	return Tree{Root: root, fs: channel}
}

// abs rejects names outside the tree.
func (t Tree) abs(op, name string) (string, error) {
	if !fs.ValidPath(name) {
		return "", &fs.PathError{Op: op, Path: name, Err: fs.ErrInvalid}
	}
	return path.Join(t.Root, name), nil
}

func (t Tree) stat(op, name string) (entry, string, error) {
	p, err := t.abs(op, name)
	if err != nil {
		return entry{}, "", err
	}
	info, err := t.fs.Stats(p)
	if err != nil {
		return entry{}, "", &fs.PathError{Op: op, Path: name, Err: err}
	}
	info.Name = path.Base(name)
	return entry{info}, p, nil
}

func (t Tree) Open(name string) (fs.File, error) {
	e, p, err := t.stat("open", name)
	if err != nil {
		return nil, err
	}
	if e.IsDir() {
		return &dir{tree: t, abs: p, name: name, self: e}, nil
	}
	return &file{fs: t.fs, abs: p, self: e}, nil
}

func (t Tree) Stat(name string) (fs.FileInfo, error) {
	e, _, err := t.stat("stat", name)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (t Tree) ReadDir(name string) ([]fs.DirEntry, error) {
	p, err := t.abs("readdir", name)
	if err != nil {
		return nil, err
	}
	return t.list(p, name)
}

func (t Tree) list(abs, name string) ([]fs.DirEntry, error) {
	infos, err := t.fs.List(abs)
	if err != nil {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: err}
	}
	entries := f.Map(infos, func(i remote.FileInfo) fs.DirEntry { return entry{i} })
	slices.SortFunc(entries, func(a, b fs.DirEntry) int { return strings.Compare(a.Name(), b.Name()) })
	return entries, nil
}

func (t Tree) MkDirAll(name string) error {
	return t.fs.MkDirAll(path.Join(t.Root, name))
}

func (t Tree) WriteFile(name string, data io.Reader) error {
	return t.fs.WriteFile(data, path.Join(t.Root, name))
}

func (t Tree) Remove(name string) error {
	return t.fs.Remove(path.Join(t.Root, name))
}

func (t Tree) Chtimes(name string, mtime time.Time) error {
	return t.fs.Chtimes(path.Join(t.Root, name), mtime)
}

// entry is both the fs.FileInfo and the fs.DirEntry of a remote file.
type entry struct {
	info remote.FileInfo
}

func (e entry) Name() string       { return e.info.Name }
func (e entry) Size() int64        { return e.info.Size }
func (e entry) ModTime() time.Time { return e.info.ModTime }
func (e entry) IsDir() bool        { return e.info.IsDir }
func (e entry) Sys() any           { return nil }

func (e entry) Mode() fs.FileMode {
	if e.info.IsDir {
		return fs.ModeDir | 0755
	}
	return 0644
}

func (e entry) Type() fs.FileMode          { return e.Mode().Type() }
func (e entry) Info() (fs.FileInfo, error) { return e, nil }

// file opens the transfer lazily, on the first Read.
type file struct {
	fs   remote.FS
	abs  string
	self entry
	r    io.ReadCloser
}

func (fl *file) Stat() (fs.FileInfo, error) { return fl.self, nil }

func (fl *file) Read(p []byte) (int, error) {
	if fl.r == nil {
		r, err := fl.fs.ReadFile(fl.abs)
		if err != nil {
			return 0, err
		}
		fl.r = r
	}
	return fl.r.Read(p)
}

func (fl *file) Close() error {
	if fl.r == nil {
		return nil
	}
	if err := fl.r.Close(); err != nil && err != io.EOF {
		return err
	}
	return nil
}

type dir struct {
	tree    Tree
	abs     string
	name    string
	self    entry
	pending []fs.DirEntry
	listed  bool
}

func (d *dir) Stat() (fs.FileInfo, error) { return d.self, nil }
func (d *dir) Close() error               { return nil }

func (d *dir) Read([]byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.name, Err: fs.ErrInvalid}
}

// ReadDir follows fs.ReadDirFile: with n > 0 it pages and ends with io.EOF.
func (d *dir) ReadDir(n int) ([]fs.DirEntry, error) {
	if !d.listed {
		entries, err := d.tree.list(d.abs, d.name)
		if err != nil {
			return nil, err
		}
		d.pending, d.listed = entries, true
	}
	if n <= 0 {
		out := d.pending
		d.pending = nil
		return out, nil
	}
	if len(d.pending) == 0 {
		return nil, io.EOF
	}
	n = min(n, len(d.pending))
	out := d.pending[:n]
	d.pending = d.pending[n:]
	return out, nil
}
