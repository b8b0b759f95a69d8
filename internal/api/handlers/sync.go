package handlers

import (
	"errors"
	"net/http"

	"github.com/slurmdesk/slurmdesk/internal/api/models"
	"github.com/slurmdesk/slurmdesk/internal/filesync"
	"github.com/slurmdesk/slurmdesk/internal/session"
	"github.com/slurmdesk/slurmdesk/pkg/render"
)

// HandleSync runs a synchronization. Progress is published on /v1/events.
func HandleSync(s *session.Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.SyncRequest
		if err := render.DecodeRequest(w, r, &req); err != nil && !errors.Is(err, render.ErrEmptyBody) {
			render.EncodeResponse(w, http.StatusBadRequest, models.ErrorResponse{Details: "unable to parse the request"})
			return
		}
		mode, err := filesync.ParseMode(req.Mode)
		if err != nil {
			render.EncodeResponse(w, http.StatusBadRequest, models.ErrorResponse{Details: err.Error()})
			return
		}

		if req.DryRun {
			actions, err := s.Preview(r.Context(), mode)
			if err != nil {
				renderError(w, r, err)
				return
			}
			render.EncodeResponse(w, http.StatusOK, models.SyncResponse{Mode: mode, DryRun: true, Actions: nonNil(actions)})
			return
		}

		sum, err := s.Sync(r.Context(), mode)
		if err != nil {
			renderError(w, r, err)
			return
		}
		render.EncodeResponse(w, http.StatusOK, models.SyncResponse{
			Mode:       sum.Mode,
			Actions:    nonNil(sum.Actions),
			Uploaded:   sum.Uploaded,
			Downloaded: sum.Downloaded,
			Deleted:    sum.Deleted,
			Bytes:      sum.Bytes,
		})
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
