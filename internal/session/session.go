// Package session holds the single connection to the cluster and the state
// shared by every command: the cached credential, the selected GPU node, the
// current job and GPU snapshots and their observers.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/slurmdesk/slurmdesk/internal/config"
	"github.com/slurmdesk/slurmdesk/internal/events"
	"github.com/slurmdesk/slurmdesk/internal/filesync"
	"github.com/slurmdesk/slurmdesk/internal/gpuviz"
	"github.com/slurmdesk/slurmdesk/internal/metrics"
	"github.com/slurmdesk/slurmdesk/internal/slurm"
	"github.com/slurmdesk/slurmdesk/internal/state"
	"github.com/slurmdesk/slurmdesk/pkg/remote"
	"github.com/slurmdesk/slurmdesk/pkg/remote/ssh"
)

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Failed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	default:
		return "disconnected"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type StateEvent struct {
	State State  `json:"state"`
	Host  string `json:"host,omitempty"`
	Error string `json:"error,omitempty"`
}

const reconnectMaxElapsed = 30 * time.Second

type Session struct {
	cfg   *config.Configuration
	store *state.Store
	dial  Dialer

	mu      sync.Mutex
	state   State
	conn    remote.Conn
	cred    Credentials
	pollers *poller

	// one command at a time on the channel
	execMu sync.Mutex
	syncMu sync.Mutex

	jobs atomic.Pointer[[]slurm.JobRecord]
	gpus atomic.Pointer[[]gpuviz.Node]

	States   *events.Broker[StateEvent]
	Progress *events.Broker[filesync.Progress]
	Jobs     *events.Broker[[]slurm.JobRecord]
	GPUs     *events.Broker[[]gpuviz.Node]
}

func New(cfg *config.Configuration, store *state.Store, dial Dialer) *Session {
	if dial == nil {
		dial = SSHDialer
	}
	return &Session{
		cfg:      cfg,
		store:    store,
		dial:     dial,
		States:   events.NewBroker[StateEvent]("state"),
		Progress: events.NewBroker[filesync.Progress]("sync"),
		Jobs:     events.NewBroker[[]slurm.JobRecord]("jobs"),
		GPUs:     events.NewBroker[[]gpuviz.Node]("gpus"),
	}
}

func (s *Session) Config() *config.Configuration {
	return s.cfg
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) IsConnected() bool {
	return s.State() == Connected
}

// setState must be called with mu held.
func (s *Session) setState(st State, err error) {
	s.state = st
	ev := StateEvent{State: st, Host: s.cfg.Settings.Host}
	if err != nil {
		ev.Error = err.Error()
	}
	metrics.SetConnected(st == Connected)
	s.States.Publish(ev)
}

// Connect opens the channels to the cluster. Empty credentials reuse the ones
// cached by a previous successful connection.
func (s *Session) Connect(ctx context.Context, cred Credentials) error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Connected {
		return nil
	}
	if cred.IsZero() {
		cred = s.cred
	}
	return s.connectLocked(ctx, cred)
}

func (s *Session) connectLocked(ctx context.Context, cred Credentials) error {
	s.setState(Connecting, nil)
	conn, err := s.dial(ctx, s.cfg.Settings, cred)
	if err != nil {
		s.setState(Failed, err)
		return fmt.Errorf("connecting to %s: %w", s.cfg.Settings.Host, err)
	}
	s.conn = conn
	s.cred = cred
	slog.Info("connected", slog.String("host", s.cfg.Settings.Host), slog.String("user", s.cfg.Settings.Username))
	s.setState(Connected, nil)
	return nil
}

// Disconnect tears down the channels and stops the pollers. The credential
// stays cached until Close.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	p := s.pollers
	s.pollers = nil
	s.mu.Unlock()
	p.stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	if s.conn != nil {
		err = s.conn.Close()
		s.conn = nil
	}
	if s.state != Disconnected {
		s.setState(Disconnected, nil)
	}
	return err
}

// Close disconnects, forgets the credential and closes every broker.
func (s *Session) Close() error {
	err := s.Disconnect()
	s.mu.Lock()
	s.cred = Credentials{}
	s.mu.Unlock()
	s.States.Close()
	s.Progress.Close()
	s.Jobs.Close()
	s.GPUs.Close()
	return err
}

func (s *Session) current() remote.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// Exec runs command on the cluster. Commands never run concurrently.
func (s *Session) Exec(ctx context.Context, command string) (remote.Result, error) {
	conn := s.current()
	if conn == nil {
		return remote.Result{}, remote.ErrNotConnected
	}

	s.execMu.Lock()
	defer s.execMu.Unlock()

	res, err := s.exec(ctx, conn, command)
	if err == nil || ctx.Err() != nil || !s.cfg.Settings.AutoReconnect || !channelLost(err) {
		return res, err
	}

	slog.Warn("command channel lost, reconnecting", slog.Any("error", err))
	conn, rerr := s.reconnect(ctx, conn)
	if rerr != nil {
		return res, errors.Join(err, rerr)
	}
	// the command may have reached the cluster, running it again could
	// submit a job twice
	if !errors.Is(err, remote.ErrNotConnected) {
		return res, err
	}
	return s.exec(ctx, conn, command)
}

// channelLost reports whether err means the connection itself is gone. A
// command timeout is not one.
func channelLost(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, remote.ErrNotConnected) || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}

func (s *Session) exec(ctx context.Context, conn remote.Conn, command string) (remote.Result, error) {
	if t := time.Duration(s.cfg.Settings.CommandTimeout); t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}
	start := time.Now()
	res, err := conn.Exec(ctx, command)
	metrics.RecordCommand(time.Since(start), err)
	slog.Debug("remote command", slog.String("command", command), slog.Int("code", res.Code), slog.Duration("elapsed", time.Since(start)))
	return res, err
}

// reconnect replaces the dead connection unless another caller already did.
func (s *Session) reconnect(ctx context.Context, dead remote.Conn) (remote.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil, remote.ErrNotConnected
	}
	if s.conn != dead {
		return s.conn, nil
	}
	_ = dead.Close()
	s.conn = nil

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = reconnectMaxElapsed
	err := backoff.Retry(func() error {
		err := s.connectLocked(ctx, s.cred)
		if errors.Is(err, ssh.ErrAuthFailed) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(b, ctx))
	if err != nil {
		return nil, err
	}
	metrics.RecordReconnect()
	return s.conn, nil
}

func (s *Session) Interactive(ctx context.Context, command string) (io.WriteCloser, io.Reader, remote.Closer, error) {
	conn := s.current()
	if conn == nil {
		return nil, nil, nil, remote.ErrNotConnected
	}
	return conn.Interactive(ctx, command)
}

// FS returns the transfer channel, nil when disconnected.
func (s *Session) FS() remote.FS {
	if conn := s.current(); conn != nil {
		return conn
	}
	return nil
}
