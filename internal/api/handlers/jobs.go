package handlers

import (
	"net/http"
	"strconv"

	"github.com/slurmdesk/slurmdesk/internal/api/models"
	"github.com/slurmdesk/slurmdesk/internal/session"
	"github.com/slurmdesk/slurmdesk/internal/slurm"
	"github.com/slurmdesk/slurmdesk/pkg/render"
)

// HandleJobList returns the job queue. ?cached returns the last snapshot
// without querying the cluster.
func HandleJobList(s *session.Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobs := s.JobSnapshot()
		if !r.URL.Query().Has("cached") || jobs == nil {
			var err error
			if jobs, err = s.RefreshJobs(r.Context()); err != nil {
				renderError(w, r, err)
				return
			}
		}
		if jobs == nil {
			jobs = []slurm.JobRecord{}
		}
		render.EncodeResponse(w, http.StatusOK, models.JobsResponse{Jobs: jobs})
	}
}

func HandleJobSubmit(s *session.Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.JobSubmitRequest
		if err := render.DecodeRequest(w, r, &req); err != nil {
			render.EncodeResponse(w, http.StatusBadRequest, models.ErrorResponse{Details: "unable to parse the request"})
			return
		}
		job := s.NewJobRequest(req.Name, req.Script)
		if req.GPUs > 0 {
			job.GPUCount = req.GPUs
		}
		if req.Node != "" {
			job.Node = req.Node
		}
		if req.CPUsPerGPU > 0 {
			job.CPUsPerGPU = req.CPUsPerGPU
		}
		if req.MemoryPerGPU > 0 {
			job.MemoryPerGPU = req.MemoryPerGPU
		}
		if req.Partition != "" {
			job.Partition = req.Partition
		}
		if req.TimeLimit != "" {
			job.TimeLimit = req.TimeLimit
		}
		if req.CondaEnv != "" {
			job.CondaEnv = req.CondaEnv
		}

		sub, err := s.SubmitJob(r.Context(), job, nil)
		if err != nil {
			renderError(w, r, err)
			return
		}
		render.EncodeResponse(w, http.StatusCreated, models.JobSubmitResponse{JobID: sub.JobID, RemoteScript: sub.RemoteScript})
	}
}

func HandleJobCancel(s *session.Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.CancelJob(r.Context(), r.PathValue("id")); err != nil {
			renderError(w, r, err)
			return
		}
		render.EncodeResponse(w, http.StatusNoContent, nil)
	}
}

func HandleJobLog(s *session.Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		lines := 0
		if v := r.URL.Query().Get("tail"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				render.EncodeResponse(w, http.StatusBadRequest, models.ErrorResponse{Details: "invalid tail value"})
				return
			}
			lines = n
		}
		job, ok := findJob(s.JobSnapshot(), id)
		if !ok {
			jobs, err := s.RefreshJobs(r.Context())
			if err != nil {
				renderError(w, r, err)
				return
			}
			if job, ok = findJob(jobs, id); !ok {
				render.EncodeResponse(w, http.StatusNotFound, models.ErrorResponse{Details: "job " + id + " not found"})
				return
			}
		}
		out, err := s.JobLog(r.Context(), job, lines)
		if err != nil {
			renderError(w, r, err)
			return
		}
		render.EncodeResponse(w, http.StatusOK, models.JobLogResponse{JobID: id, Output: out})
	}
}

func findJob(jobs []slurm.JobRecord, id string) (slurm.JobRecord, bool) {
	for _, j := range jobs {
		if j.ID == id {
			return j, true
		}
	}
	return slurm.JobRecord{}, false
}
