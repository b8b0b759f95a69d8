package handlers

import (
	"log/slog"
	"net/http"

	"github.com/slurmdesk/slurmdesk/internal/api/models"
	"github.com/slurmdesk/slurmdesk/internal/session"
	"github.com/slurmdesk/slurmdesk/pkg/render"
)

func HandleGPUList(s *session.Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		nodes := s.GPUSnapshot()
		if !r.URL.Query().Has("cached") || nodes == nil {
			var err error
			if nodes, err = s.RefreshGPUs(r.Context()); err != nil {
				renderError(w, r, err)
				return
			}
		}
		selected, err := s.SelectedNode()
		if err != nil {
			slog.Warn("reading the selected node", slog.Any("error", err))
		}
		render.EncodeResponse(w, http.StatusOK, models.GPUsResponse{Nodes: nodes, SelectedNode: selected})
	}
}

// HandleSelectNode remembers the node used by the next submissions. An empty
// node clears the selection.
func HandleSelectNode(s *session.Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.SelectNodeRequest
		if err := render.DecodeRequest(w, r, &req); err != nil {
			render.EncodeResponse(w, http.StatusBadRequest, models.ErrorResponse{Details: "unable to parse the request"})
			return
		}
		if err := s.SelectNode(req.Node); err != nil {
			renderError(w, r, err)
			return
		}
		render.EncodeResponse(w, http.StatusOK, req)
	}
}
