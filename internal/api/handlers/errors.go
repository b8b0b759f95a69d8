package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/slurmdesk/slurmdesk/internal/api/models"
	"github.com/slurmdesk/slurmdesk/internal/conda"
	"github.com/slurmdesk/slurmdesk/internal/config"
	"github.com/slurmdesk/slurmdesk/internal/filesync"
	"github.com/slurmdesk/slurmdesk/internal/slurm"
	"github.com/slurmdesk/slurmdesk/pkg/remote"
	"github.com/slurmdesk/slurmdesk/pkg/remote/ssh"
	"github.com/slurmdesk/slurmdesk/pkg/render"
)

// statusOf maps the error taxonomy to HTTP status codes.
func statusOf(err error) int {
	var (
		cfgErr   *config.ConfigurationError
		cmdErr   *remote.CommandError
		parseErr *slurm.ParseError
		syncErr  *filesync.SyncError
	)
	switch {
	case errors.As(err, &cfgErr):
		return http.StatusPreconditionFailed
	case errors.Is(err, remote.ErrNotConnected):
		return http.StatusServiceUnavailable
	case errors.Is(err, ssh.ErrAuthFailed):
		return http.StatusUnauthorized
	case errors.Is(err, slurm.ErrInvalidRequest), errors.Is(err, conda.ErrInvalidName):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &cmdErr), errors.As(err, &parseErr):
		return http.StatusBadGateway
	case errors.Is(err, filesync.ErrTypeConflict):
		return http.StatusConflict
	case errors.As(err, &syncErr):
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

func renderError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusOf(err)
	if code >= http.StatusInternalServerError {
		slog.Error("request failed", slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	render.EncodeResponse(w, code, models.ErrorResponse{Details: err.Error()})
}
