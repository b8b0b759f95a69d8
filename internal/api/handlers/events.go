package handlers

import (
	"log/slog"
	"net/http"

	"github.com/slurmdesk/slurmdesk/internal/api/models"
	"github.com/slurmdesk/slurmdesk/internal/session"
	"github.com/slurmdesk/slurmdesk/pkg/render"
)

// Event types sent on /v1/events.
const (
	EventState        = "state"
	EventSyncProgress = "sync-progress"
	EventJobs         = "jobs"
	EventGPUs         = "gpus"
)

// HandleEvents streams connection state, sync progress, job and GPU
// snapshots. The current state and the cached snapshots are sent first.
func HandleEvents(s *session.Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		states := s.States.Subscribe()
		defer s.States.Unsubscribe(states)
		progress := s.Progress.Subscribe()
		defer s.Progress.Unsubscribe(progress)
		jobs := s.Jobs.Subscribe()
		defer s.Jobs.Unsubscribe(jobs)
		gpus := s.GPUs.Subscribe()
		defer s.GPUs.Unsubscribe(gpus)

		stream, err := render.NewSSEStream(w, r)
		if err != nil {
			slog.Error("Unable to create SSE stream", slog.String("error", err.Error()))
			render.EncodeResponse(w, http.StatusInternalServerError, models.ErrorResponse{Details: "unable to create SSE stream"})
			return
		}
		defer stream.Close()

		stream.Send(render.SSEEvent{Type: EventState, Data: session.StateEvent{State: s.State(), Host: s.Config().Settings.Host}})
		if snap := s.JobSnapshot(); snap != nil {
			stream.Send(render.SSEEvent{Type: EventJobs, Data: snap})
		}
		if snap := s.GPUSnapshot(); snap != nil {
			stream.Send(render.SSEEvent{Type: EventGPUs, Data: snap})
		}

		for {
			var ev render.SSEEvent
			select {
			case <-stream.Done():
				return
			case v, ok := <-states:
				if !ok {
					return
				}
				ev = render.SSEEvent{Type: EventState, Data: v}
			case v, ok := <-progress:
				if !ok {
					return
				}
				ev = render.SSEEvent{Type: EventSyncProgress, Data: v}
			case v, ok := <-jobs:
				if !ok {
					return
				}
				ev = render.SSEEvent{Type: EventJobs, Data: v}
			case v, ok := <-gpus:
				if !ok {
					return
				}
				ev = render.SSEEvent{Type: EventGPUs, Data: v}
			}
			if !stream.Send(ev) {
				return
			}
		}
	}
}
