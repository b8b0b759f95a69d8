package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kballard/go-shellquote"
	homedir "github.com/mitchellh/go-homedir"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/slurmdesk/slurmdesk/pkg/remote"
)

var ErrAuthFailed = errors.New("ssh authentication failed")

const (
	dialTimeout = 15 * time.Second
	// abandonAfter bounds the wait for a killed command to release its
	// output buffers.
	abandonAfter = 5 * time.Second
)

type Config struct {
	Host           string
	Port           int
	User           string
	Password       string
	PrivateKeyPath string
	Passphrase     string
	KnownHostsPath string
}

func (c Config) Address() string {
	port := c.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

// Client is the command channel: a single authenticated SSH connection on
// which every command gets its own session.
type Client struct {
	client *ssh.Client
	addr   string

	closeOnce sync.Once
}

// Ensures Client implements the Shell interface at compile time.
var _ remote.Shell = (*Client)(nil)

func Dial(ctx context.Context, cfg Config) (*Client, error) {
	auth, err := authMethods(cfg)
	if err != nil {
		return nil, err
	}
	hostKeyCallback, err := hostKeyCallback(cfg.KnownHostsPath)
	if err != nil {
		return nil, err
	}

	clientConfig := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         dialTimeout,
	}

	addr := cfg.Address()
	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, clientConfig)
	if err != nil {
		_ = conn.Close()
		if isAuthError(err) {
			return nil, ErrAuthFailed
		}
		return nil, fmt.Errorf("failed to open SSH connection to %s: %w", addr, err)
	}
	slog.Debug("ssh connection established", slog.String("address", addr), slog.String("user", cfg.User))
	return &Client{client: ssh.NewClient(c, chans, reqs), addr: addr}, nil
}

func isAuthError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "unable to authenticate") ||
		strings.Contains(msg, "no supported methods remain") ||
		strings.Contains(msg, "permission denied")
}

func authMethods(cfg Config) ([]ssh.AuthMethod, error) {
	var auth []ssh.AuthMethod
	if cfg.PrivateKeyPath != "" {
		signer, err := readPrivateKey(cfg.PrivateKeyPath, cfg.Passphrase)
		if err != nil {
			return nil, err
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if cfg.Password != "" {
		auth = append(auth, ssh.Password(cfg.Password))
		auth = append(auth, ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
			answers := make([]string, len(questions))
			for i := range answers {
				answers[i] = cfg.Password
			}
			return answers, nil
		}))
	}
	if len(auth) == 0 {
		return nil, fmt.Errorf("%w: neither a password nor a private key was provided", ErrAuthFailed)
	}
	return auth, nil
}

func readPrivateKey(keyPath, passphrase string) (ssh.Signer, error) {
	p, err := homedir.Expand(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to expand key path %q: %w", keyPath, err)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key %q: %w", keyPath, err)
	}
	signer, err := ssh.ParsePrivateKey(data)
	var missing *ssh.PassphraseMissingError
	if errors.As(err, &missing) {
		if passphrase == "" {
			return nil, fmt.Errorf("private key %q is protected by a passphrase", keyPath)
		}
		signer, err = ssh.ParsePrivateKeyWithPassphrase(data, []byte(passphrase))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key %q: %w", keyPath, err)
	}
	return signer, nil
}

func hostKeyCallback(knownHostsPath string) (ssh.HostKeyCallback, error) {
	if knownHostsPath == "" {
		knownHostsPath = "~/.ssh/known_hosts"
	}
	p, err := homedir.Expand(knownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to expand known_hosts path: %w", err)
	}
	if _, err := os.Stat(p); err != nil {
		slog.Warn("known_hosts file not found, host key will not be verified", slog.String("path", p))
		return ssh.InsecureIgnoreHostKey(), nil // nolint:gosec
	}
	cb, err := knownhosts.New(p)
	if err != nil {
		return nil, fmt.Errorf("failed to load known_hosts %q: %w", p, err)
	}
	return cb, nil
}

// SSHClient gives access to the underlying connection, the transfer channel
// is opened on top of it.
func (c *Client) SSHClient() *ssh.Client {
	return c.client
}

func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.client.Close()
	})
	return err
}

// Exec runs command in a new session. When ctx is done before the command
// returns, the remote process is killed and the context error is returned.
func (c *Client) Exec(ctx context.Context, command string) (remote.Result, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return remote.Result{}, fmt.Errorf("%w: failed to create SSH session: %w", remote.ErrNotConnected, err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	slog.Debug("running remote command", slog.String("command", command))

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
		// the buffers are written until Run returns
		select {
		case <-done:
			return remote.Result{Stdout: stdout.String(), Stderr: stderr.String(), Code: -1}, ctx.Err()
		case <-time.After(abandonAfter):
			slog.Warn("remote command did not stop after cancel", slog.String("command", command))
			return remote.Result{Code: -1}, ctx.Err()
		}
	case err = <-done:
	}

	res := remote.Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return res, nil
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		res.Code = exitErr.ExitStatus()
		return res, nil
	}
	var missing *ssh.ExitMissingError
	if errors.As(err, &missing) {
		res.Code = -1
		return res, fmt.Errorf("remote command ended without exit status: %w", err)
	}
	return res, fmt.Errorf("failed to run remote command: %w", err)
}

// Interactive starts command with a pty and returns its pipes. Stderr is
// merged into the returned reader.
func (c *Client) Interactive(ctx context.Context, command string) (io.WriteCloser, io.Reader, remote.Closer, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create SSH session: %w", err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		return nil, nil, nil, fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return nil, nil, nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	session.Stderr = session.Stdout

	modes := ssh.TerminalModes{ssh.ECHO: 1, ssh.TTY_OP_ISPEED: 14400, ssh.TTY_OP_OSPEED: 14400}
	if err := session.RequestPty("xterm-256color", 40, 120, modes); err != nil {
		session.Close()
		return nil, nil, nil, fmt.Errorf("failed to request pty: %w", err)
	}

	if command == "" {
		err = session.Shell()
	} else {
		err = session.Start(command)
	}
	if err != nil {
		session.Close()
		return nil, nil, nil, fmt.Errorf("failed to start command: %w", err)
	}

	stop := context.AfterFunc(ctx, func() { _ = session.Close() })
	return stdin, stdout, func() error {
		stop()
		defer session.Close()
		if err := session.Wait(); err != nil {
			var exitErr *ssh.ExitError
			if errors.As(err, &exitErr) {
				return nil
			}
			return fmt.Errorf("command failed: %w", err)
		}
		return nil
	}, nil
}

// List lists path through `ls` on the command channel.
func (c *Client) List(ctx context.Context, path string) ([]remote.FileInfo, error) {
	cmd := "ls -la --time-style=+%s " + shellquote.Join(path)
	out, err := remote.Run(ctx, c, cmd)
	if err != nil {
		return nil, err
	}
	return ParseLongListing(out), nil
}
