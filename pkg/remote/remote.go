package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// ErrNotConnected is returned when an operation needs a channel that has not
// been established (or has been torn down).
var ErrNotConnected = errors.New("not connected to the cluster")

// Conn is a connection to the cluster login host able to both run commands
// and move files.
type Conn interface {
	Shell
	FS
	io.Closer
}

// FileInfo describes an entry of a remote directory.
type FileInfo struct {
	Name    string    `json:"name"`
	IsDir   bool      `json:"is_dir"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// FS is the file transfer channel.
type FS interface {
	List(path string) ([]FileInfo, error)
	Stats(path string) (FileInfo, error)
	MkDirAll(path string) error
	WriteFile(data io.Reader, path string) error
	ReadFile(path string) (io.ReadCloser, error)
	Remove(path string) error
	Chtimes(path string, mtime time.Time) error
}

// Shell is the command channel.
type Shell interface {
	Exec(ctx context.Context, command string) (Result, error)
	Interactive(ctx context.Context, command string) (io.WriteCloser, io.Reader, Closer, error)
}

type Closer func() error

// Result is the outcome of a command that reached the remote host. A non
// zero Code is not an error by itself, callers decide through Err.
type Result struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
	Code   int    `json:"code"`
}

// Err returns a *CommandError when the command exited with a non zero code.
func (r Result) Err(command string) error {
	if r.Code == 0 {
		return nil
	}
	return &CommandError{Command: command, Code: r.Code, Stderr: strings.TrimSpace(r.Stderr)}
}

// CommandError is a command that ran remotely and exited with a non zero code.
type CommandError struct {
	Command string
	Code    int
	Stderr  string
}

func (e *CommandError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("command %q exited with code %d", e.Command, e.Code)
	}
	return e.Stderr
}

// Run executes command and folds a non zero exit code into the returned error.
func Run(ctx context.Context, sh Shell, command string) (string, error) {
	res, err := sh.Exec(ctx, command)
	if err != nil {
		return "", err
	}
	if err := res.Err(command); err != nil {
		return res.Stdout, err
	}
	return res.Stdout, nil
}
