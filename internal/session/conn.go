package session

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/slurmdesk/slurmdesk/internal/config"
	"github.com/slurmdesk/slurmdesk/pkg/remote"
	"github.com/slurmdesk/slurmdesk/pkg/remote/sftp"
	"github.com/slurmdesk/slurmdesk/pkg/remote/ssh"
)

// Credentials are the secrets typed by the user. They are kept in memory
// only, for the lifetime of the session.
type Credentials struct {
	Password   string
	Passphrase string
}

func (c Credentials) IsZero() bool {
	return c == Credentials{}
}

// Dialer opens the command and transfer channels to the cluster.
type Dialer func(ctx context.Context, s config.Settings, cred Credentials) (remote.Conn, error)

// SSHDialer opens an SSH connection and an SFTP subsystem on top of it.
func SSHDialer(ctx context.Context, s config.Settings, cred Credentials) (remote.Conn, error) {
	client, err := ssh.Dial(ctx, ssh.Config{
		Host:           s.Host,
		Port:           s.Port,
		User:           s.Username,
		Password:       cred.Password,
		PrivateKeyPath: s.PrivateKey,
		Passphrase:     cred.Passphrase,
		KnownHostsPath: s.KnownHosts,
	})
	if err != nil {
		return nil, err
	}
	fs, err := sftp.New(client.SSHClient())
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return &clusterConn{shell: client, fs: fs}, nil
}

type clusterConn struct {
	shell *ssh.Client
	fs    *sftp.FS
}

var _ remote.Conn = (*clusterConn)(nil)

func (c *clusterConn) Exec(ctx context.Context, command string) (remote.Result, error) {
	return c.shell.Exec(ctx, command)
}

func (c *clusterConn) Interactive(ctx context.Context, command string) (io.WriteCloser, io.Reader, remote.Closer, error) {
	return c.shell.Interactive(ctx, command)
}

func (c *clusterConn) List(path string) ([]remote.FileInfo, error) {
	return c.fs.List(path)
}

func (c *clusterConn) Stats(path string) (remote.FileInfo, error) {
	return c.fs.Stats(path)
}

func (c *clusterConn) MkDirAll(path string) error {
	return c.fs.MkDirAll(path)
}

func (c *clusterConn) WriteFile(data io.Reader, path string) error {
	return c.fs.WriteFile(data, path)
}

func (c *clusterConn) ReadFile(path string) (io.ReadCloser, error) {
	return c.fs.ReadFile(path)
}

func (c *clusterConn) Remove(path string) error {
	return c.fs.Remove(path)
}

func (c *clusterConn) Chtimes(path string, mtime time.Time) error {
	return c.fs.Chtimes(path, mtime)
}

func (c *clusterConn) Close() error {
	return errors.Join(c.fs.Close(), c.shell.Close())
}
