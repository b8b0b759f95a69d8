package sftp

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/slurmdesk/slurmdesk/pkg/remote"
)

// FS is the file transfer channel, an SFTP subsystem opened on an existing
// SSH connection.
type FS struct {
	client *sftp.Client
}

// Ensures FS implements the remote.FS interface at compile time.
var _ remote.FS = (*FS)(nil)

func New(conn *ssh.Client) (*FS, error) {
	client, err := sftp.NewClient(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to start sftp subsystem: %w", err)
	}
	return &FS{client: client}, nil
}

func (s *FS) Close() error {
	return s.client.Close()
}

func toFileInfo(name string, info fs.FileInfo) remote.FileInfo {
	return remote.FileInfo{
		Name:    name,
		IsDir:   info.IsDir(),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}
}

func (s *FS) List(p string) ([]remote.FileInfo, error) {
	entries, err := s.client.ReadDir(p)
	if err != nil {
		return nil, fmt.Errorf("failed to list %q: %w", p, err)
	}
	files := make([]remote.FileInfo, 0, len(entries))
	for _, e := range entries {
		if e.Mode()&fs.ModeSymlink != 0 {
			target, err := s.client.Stat(path.Join(p, e.Name()))
			if err != nil {
				continue
			}
			files = append(files, toFileInfo(e.Name(), target))
			continue
		}
		files = append(files, toFileInfo(e.Name(), e))
	}
	return files, nil
}

func (s *FS) Stats(p string) (remote.FileInfo, error) {
	info, err := s.client.Stat(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return remote.FileInfo{}, fs.ErrNotExist
		}
		return remote.FileInfo{}, err
	}
	return toFileInfo(path.Base(p), info), nil
}

func (s *FS) MkDirAll(p string) error {
	if err := s.client.MkdirAll(p); err != nil {
		return fmt.Errorf("failed to create directory %q: %w", p, err)
	}
	return nil
}

func (s *FS) WriteFile(r io.Reader, p string) error {
	f, err := s.client.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return fmt.Errorf("failed to create %q: %w", p, err)
	}
	if _, err := f.ReadFrom(r); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %q: %w", p, err)
	}
	return f.Close()
}

func (s *FS) ReadFile(p string) (io.ReadCloser, error) {
	f, err := s.client.Open(p)
	if err != nil {
		return nil, fmt.Errorf("failed to open %q: %w", p, err)
	}
	return f, nil
}

func (s *FS) Remove(p string) error {
	info, err := s.client.Stat(p)
	if err != nil {
		return fmt.Errorf("failed to remove %q: %w", p, err)
	}
	if info.IsDir() {
		return s.client.RemoveAll(p)
	}
	return s.client.Remove(p)
}

func (s *FS) Chtimes(p string, mtime time.Time) error {
	return s.client.Chtimes(p, mtime, mtime)
}
