package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/slurmdesk/slurmdesk/internal/api/models"
	"github.com/slurmdesk/slurmdesk/internal/session"
	"github.com/slurmdesk/slurmdesk/pkg/render"
)

func connectionResponse(s *session.Session) models.ConnectionResponse {
	settings := s.Config().Settings
	node, err := s.SelectedNode()
	if err != nil {
		slog.Warn("reading the selected node", slog.Any("error", err))
	}
	return models.ConnectionResponse{
		State:        s.State().String(),
		Host:         settings.Host,
		Username:     settings.Username,
		RemoteRoot:   settings.RemoteRoot,
		SelectedNode: node,
	}
}

func HandleConnectionStatus(s *session.Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render.EncodeResponse(w, http.StatusOK, connectionResponse(s))
	}
}

// HandleConnect opens the session. An empty body reuses the cached credential.
func HandleConnect(s *session.Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.ConnectRequest
		if err := render.DecodeRequest(w, r, &req); err != nil && !errors.Is(err, render.ErrEmptyBody) {
			render.EncodeResponse(w, http.StatusBadRequest, models.ErrorResponse{Details: "unable to parse the request"})
			return
		}
		err := s.Connect(r.Context(), session.Credentials{Password: req.Password, Passphrase: req.Passphrase})
		if err != nil {
			renderError(w, r, err)
			return
		}
		s.StartPolling(0)
		render.EncodeResponse(w, http.StatusOK, connectionResponse(s))
	}
}

func HandleDisconnect(s *session.Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.Disconnect(); err != nil {
			slog.Warn("closing the connection", slog.Any("error", err))
		}
		render.EncodeResponse(w, http.StatusNoContent, nil)
	}
}
