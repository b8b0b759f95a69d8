package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/slurmdesk/slurmdesk/internal/api/models"
	"github.com/slurmdesk/slurmdesk/internal/session"
	"github.com/slurmdesk/slurmdesk/pkg/render"
)

const shellCommand = "bash -l"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

func shellStream(stdin io.WriteCloser, stdout io.Reader, closeShell func() error, ws *websocket.Conn) {
	logWebsocketError := func(msg string, err error) {
		// Do not log simple close or interruption errors
		if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived, websocket.CloseAbnormalClosure) {
			if e, ok := err.(*websocket.CloseError); ok {
				slog.Error(msg, slog.String("closecause", fmt.Sprintf("%d: %s", e.Code, err)))
			} else {
				slog.Error(msg, slog.String("error", err.Error()))
			}
		}
	}
	logShellError := func(msg string, err error) {
		if !errors.Is(err, net.ErrClosed) && !errors.Is(err, io.EOF) {
			slog.Error(msg, slog.String("error", err.Error()))
		}
	}
	stop := func() {
		_ = stdin.Close()
		_ = ws.Close()
		if err := closeShell(); err != nil {
			logShellError("Remote shell exited", err)
		}
	}

	go func() {
		for {
			_, msg, err := ws.ReadMessage()
			if err != nil {
				logWebsocketError("Error reading from websocket", err)
				_ = stdin.Close()
				return
			}
			if _, err := stdin.Write(msg); err != nil {
				logShellError("Error writing to remote shell", err)
				return
			}
		}
	}()
	go func() {
		defer stop()
		buff := [1024]byte{}
		for {
			n, err := stdout.Read(buff[:])
			if n > 0 {
				if werr := ws.WriteMessage(websocket.BinaryMessage, buff[:n]); werr != nil {
					logWebsocketError("Error writing to websocket", werr)
					return
				}
			}
			if err != nil {
				logShellError("Error reading from remote shell", err)
				return
			}
		}
	}()
}

// HandleShellWS bridges a websocket to a login shell on the cluster.
func HandleShellWS(s *session.Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// the shell outlives the upgrade request
		stdin, stdout, closeShell, err := s.Interactive(context.WithoutCancel(r.Context()), shellCommand)
		if err != nil {
			slog.Error("Unable to open remote shell", slog.String("error", err.Error()))
			render.EncodeResponse(w, statusOf(err), models.ErrorResponse{Details: "Unable to open remote shell: " + err.Error()})
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			_ = stdin.Close()
			_ = closeShell()
			return
		}

		go shellStream(stdin, stdout, closeShell, conn)
	}
}
