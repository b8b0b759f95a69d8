// Package remotetest provides in-memory implementations of the remote
// channels for unit tests.
package remotetest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"path"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/slurmdesk/slurmdesk/pkg/remote"
)

// Shell answers commands through Handler and records every command it sees.
type Shell struct {
	Handler func(cmd string) remote.Result

	mu       sync.Mutex
	commands []string
}

var _ remote.Shell = (*Shell)(nil)

// StaticShell answers every command whose prefix matches a key of replies.
// Unknown commands exit with code 127.
func StaticShell(replies map[string]remote.Result) *Shell {
	return &Shell{Handler: func(cmd string) remote.Result {
		keys := make([]string, 0, len(replies))
		for k := range replies {
			keys = append(keys, k)
		}
		// longest prefix wins
		slices.SortFunc(keys, func(a, b string) int { return len(b) - len(a) })
		for _, k := range keys {
			if strings.HasPrefix(cmd, k) {
				return replies[k]
			}
		}
		return remote.Result{Code: 127, Stderr: "command not found"}
	}}
}

func (s *Shell) Exec(ctx context.Context, cmd string) (remote.Result, error) {
	if err := ctx.Err(); err != nil {
		return remote.Result{Code: -1}, err
	}
	s.mu.Lock()
	s.commands = append(s.commands, cmd)
	s.mu.Unlock()
	if s.Handler == nil {
		return remote.Result{}, nil
	}
	return s.Handler(cmd), nil
}

func (s *Shell) Interactive(ctx context.Context, cmd string) (io.WriteCloser, io.Reader, remote.Closer, error) {
	res, err := s.Exec(ctx, cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	return nopWriteCloser{io.Discard}, strings.NewReader(res.Stdout), func() error { return nil }, nil
}

// Commands returns the commands received so far.
func (s *Shell) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.commands)
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

type memFile struct {
	data    []byte
	dir     bool
	modTime time.Time
}

// MemFS is an in-memory remote.FS. Writing a file whose parent directory does
// not exist fails, like it does over SFTP.
type MemFS struct {
	// FailWrite makes WriteFile fail for the given paths.
	FailWrite map[string]error

	mu    sync.Mutex
	files map[string]*memFile
	log   []string
}

var _ remote.FS = (*MemFS)(nil)

func NewMemFS() *MemFS {
	return &MemFS{files: map[string]*memFile{"/": {dir: true}}}
}

func clean(p string) string {
	return path.Clean("/" + p)
}

// AddFile creates a file and all of its parents.
func (m *MemFS) AddFile(p string, data string, modTime time.Time) {
	_ = m.MkDirAll(path.Dir(clean(p)))
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[clean(p)] = &memFile{data: []byte(data), modTime: modTime}
}

// Content returns the data of a file and whether it exists.
func (m *MemFS) Content(p string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[clean(p)]
	if !ok || f.dir {
		return "", false
	}
	return string(f.data), true
}

// Writes returns the paths written so far, in order.
func (m *MemFS) Writes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.log)
}

func (m *MemFS) List(p string) ([]remote.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = clean(p)
	if d, ok := m.files[p]; !ok || !d.dir {
		return nil, fmt.Errorf("failed to list %q: %w", p, fs.ErrNotExist)
	}
	var res []remote.FileInfo
	for name, f := range m.files {
		if name == p || path.Dir(name) != p {
			continue
		}
		res = append(res, remote.FileInfo{Name: path.Base(name), IsDir: f.dir, Size: int64(len(f.data)), ModTime: f.modTime})
	}
	slices.SortFunc(res, func(a, b remote.FileInfo) int { return strings.Compare(a.Name, b.Name) })
	return res, nil
}

func (m *MemFS) Stats(p string) (remote.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[clean(p)]
	if !ok {
		return remote.FileInfo{}, fs.ErrNotExist
	}
	return remote.FileInfo{Name: path.Base(clean(p)), IsDir: f.dir, Size: int64(len(f.data)), ModTime: f.modTime}, nil
}

func (m *MemFS) MkDirAll(p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for cur := clean(p); ; cur = path.Dir(cur) {
		if f, ok := m.files[cur]; ok {
			if !f.dir {
				return fmt.Errorf("%q is not a directory", cur)
			}
		} else {
			m.files[cur] = &memFile{dir: true}
		}
		if cur == "/" {
			return nil
		}
	}
}

func (m *MemFS) WriteFile(r io.Reader, p string) error {
	p = clean(p)
	if err, ok := m.FailWrite[p]; ok {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.files[path.Dir(p)]; !ok || !d.dir {
		return fmt.Errorf("failed to create %q: parent directory does not exist", p)
	}
	m.files[p] = &memFile{data: data, modTime: time.Now()}
	m.log = append(m.log, p)
	return nil
}

func (m *MemFS) ReadFile(p string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[clean(p)]
	if !ok || f.dir {
		return nil, fs.ErrNotExist
	}
	return io.NopCloser(bytes.NewReader(f.data)), nil
}

func (m *MemFS) Remove(p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = clean(p)
	if _, ok := m.files[p]; !ok {
		return fs.ErrNotExist
	}
	for name := range m.files {
		if name == p || strings.HasPrefix(name, p+"/") {
			delete(m.files, name)
		}
	}
	return nil
}

func (m *MemFS) Chtimes(p string, mtime time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[clean(p)]
	if !ok {
		return fs.ErrNotExist
	}
	f.modTime = mtime
	return nil
}

// Conn joins a Shell and a MemFS into a remote.Conn.
type Conn struct {
	*Shell
	*MemFS

	closed atomic.Bool
}

var _ remote.Conn = (*Conn)(nil)

func NewConn(handler func(cmd string) remote.Result) *Conn {
	return &Conn{Shell: &Shell{Handler: handler}, MemFS: NewMemFS()}
}

func (c *Conn) Close() error {
	c.closed.Store(true)
	return nil
}

func (c *Conn) Closed() bool {
	return c.closed.Load()
}
