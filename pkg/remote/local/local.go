package local

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/arduino/go-paths-helper"
	"go.bug.st/f"

	"github.com/slurmdesk/slurmdesk/pkg/remote"
)

// Connection runs commands and file operations on the workstation itself.
// It is used when slurmdesk runs directly on the cluster login node.
type Connection struct{}

// Ensures Connection implements the Conn interface at compile time.
var _ remote.Conn = (*Connection)(nil)

func (a *Connection) Close() error {
	return nil
}

func (a *Connection) List(path string) ([]remote.FileInfo, error) {
	dirs, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %q: %w", path, err)
	}

	infos := f.Map(dirs, func(d fs.DirEntry) remote.FileInfo {
		info, err := d.Info()
		if err != nil {
			return remote.FileInfo{Name: d.Name(), IsDir: d.IsDir()}
		}
		return remote.FileInfo{
			Name:    d.Name(),
			IsDir:   d.IsDir(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		}
	})
	return infos, nil
}

func (a *Connection) Stats(path string) (remote.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return remote.FileInfo{}, fmt.Errorf("failed to get stats for path %q: %w", path, err)
	}

	return remote.FileInfo{
		Name:    info.Name(),
		IsDir:   info.IsDir(),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

func (a *Connection) ReadFile(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

func (a *Connection) WriteFile(r io.Reader, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file %q: %w", path, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("failed to write to file %q: %w", path, err)
	}

	return nil
}

func (a *Connection) MkDirAll(path string) error {
	return os.MkdirAll(path, 0755)
}

func (a *Connection) Remove(path string) error {
	return os.RemoveAll(path)
}

func (a *Connection) Chtimes(path string, mtime time.Time) error {
	return os.Chtimes(filepath.Clean(path), mtime, mtime)
}

func (a *Connection) Exec(ctx context.Context, command string) (remote.Result, error) {
	proc, err := paths.NewProcess(nil, "sh", "-c", command)
	if err != nil {
		return remote.Result{}, fmt.Errorf("failed to create command: %w", err)
	}
	var stdout, stderr bytes.Buffer
	proc.RedirectStdoutTo(&stdout)
	proc.RedirectStderrTo(&stderr)

	err = proc.RunWithinContext(ctx)
	res := remote.Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return res, nil
	}
	if ctx.Err() != nil {
		res.Code = -1
		return res, ctx.Err()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.Code = exitErr.ExitCode()
		return res, nil
	}
	return res, fmt.Errorf("failed to run command: %w", err)
}

func (a *Connection) Interactive(ctx context.Context, command string) (io.WriteCloser, io.Reader, remote.Closer, error) {
	if command == "" {
		command = "exec ${SHELL:-sh} -i"
	}
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to start command: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		err := cmd.Wait()
		_ = pw.CloseWithError(io.EOF)
		waitErr <- err
	}()

	return stdin, pr, func() error {
		err := <-waitErr
		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			return fmt.Errorf("command failed: %w", err)
		}
		return nil
	}, nil
}
