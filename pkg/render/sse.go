package render

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/tmaxmax/go-sse"
)

type SSEErrCode string

const (
	InternalServiceErr SSEErrCode = "INTERNAL_SERVER_ERROR"
	ServerCloseErr     SSEErrCode = "SERVER_CLOSED"
)

type SSEErrorData struct {
	Code    SSEErrCode `json:"code"`
	Message string     `json:"message,omitempty"`
}

// SSEEvent is encoded as a named event whose data is Data in JSON.
type SSEEvent struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

const (
	heartbeatEvery = 30 * time.Second
	streamLifetime = 24 * time.Hour
)

// SSEStream serializes the events of one client on a single writer
// goroutine, with a heartbeat while idle.
type SSEStream struct {
	session *sse.Session
	queue   chan SSEEvent

	stop      context.CancelFunc
	stopOnce  sync.Once
	finished  chan struct{}
	heartbeat time.Duration
}

// NewSSEStream upgrades the request and starts the writer. The stream ends
// with the request, on Close, or after a day.
func NewSSEStream(w http.ResponseWriter, r *http.Request) (*SSEStream, error) {
	// the server write timeout does not apply to a stream
	err := http.NewResponseController(w).SetWriteDeadline(time.Time{})
	if err != nil && !errors.Is(err, http.ErrNotSupported) {
		return nil, fmt.Errorf("failed to clear write deadline: %w", err)
	}

	session, err := sse.Upgrade(w, r)
	if err != nil {
		return nil, fmt.Errorf("streaming not supported: %w", err)
	}
	session.Res.Header().Set("Cache-Control", "no-cache")
	session.Res.Header().Set("Connection", "keep-alive")
	if err := session.Flush(); err != nil {
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}

	ctx, cancel := context.WithTimeout(r.Context(), streamLifetime)
	s := &SSEStream{
		session:   session,
		queue:     make(chan SSEEvent),
		stop:      cancel,
		finished:  make(chan struct{}),
		heartbeat: heartbeatEvery,
	}
	go s.run(ctx)
	return s, nil
}

func (s *SSEStream) run(ctx context.Context) {
	defer close(s.finished)
	defer func() {
		_ = s.write(SSEEvent{Type: "error", Data: SSEErrorData{Code: ServerCloseErr}})
	}()

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Debug("SSE stream ended", slog.Any("reason", context.Cause(ctx)))
			return
		case <-ticker.C:
			ping := &sse.Message{Type: sse.Type("heartbeat")}
			if err := s.flush(ping); err != nil {
				slog.Debug("SSE heartbeat failed", slog.Any("error", err))
				return
			}
		case ev := <-s.queue:
			if err := s.write(ev); err != nil {
				slog.Debug("failed to send SSE event", slog.String("event", ev.Type), slog.Any("error", err))
				return
			}
			ticker.Reset(s.heartbeat)
		}
	}
}

func (s *SSEStream) write(ev SSEEvent) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return err
	}
	msg := &sse.Message{}
	if ev.Type != "" {
		if msg.Type, err = sse.NewType(ev.Type); err != nil {
			return err
		}
	}
	msg.AppendData(string(data))
	return s.flush(msg)
}

func (s *SSEStream) flush(msg *sse.Message) error {
	if err := s.session.Send(msg); err != nil {
		return err
	}
	return s.session.Flush()
}

// Send hands the event to the writer. It reports false once the stream has
// stopped.
func (s *SSEStream) Send(ev SSEEvent) bool {
	select {
	case s.queue <- ev:
		return true
	case <-s.finished:
		return false
	}
}

func (s *SSEStream) SendError(data SSEErrorData) bool {
	return s.Send(SSEEvent{Type: "error", Data: data})
}

// Done is closed when the stream stops.
func (s *SSEStream) Done() <-chan struct{} {
	return s.finished
}

// Close stops the writer and waits for the closing event to be written.
func (s *SSEStream) Close() {
	s.stopOnce.Do(s.stop)
	<-s.finished
}
