package api

import (
	"bufio"
	"net"
	"net/http"

	"github.com/slurmdesk/slurmdesk/internal/api/handlers"
	"github.com/slurmdesk/slurmdesk/internal/metrics"
	"github.com/slurmdesk/slurmdesk/internal/session"
)

func NewHTTPRouter(s *session.Session, version string) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /v1/version", handlers.HandlerVersion(version))
	mux.Handle("GET /v1/config", handlers.HandleConfig(s.Config()))
	mux.Handle("GET /v1/events", handlers.HandleEvents(s))
	mux.Handle("GET /metrics", metrics.Handler())

	mux.Handle("GET /v1/connection", handlers.HandleConnectionStatus(s))
	mux.Handle("POST /v1/connection", handlers.HandleConnect(s))
	mux.Handle("DELETE /v1/connection", handlers.HandleDisconnect(s))
	mux.Handle("GET /v1/shell", handlers.HandleShellWS(s))

	mux.Handle("GET /v1/jobs", handlers.HandleJobList(s))
	mux.Handle("POST /v1/jobs", handlers.HandleJobSubmit(s))
	mux.Handle("DELETE /v1/jobs/{id}", handlers.HandleJobCancel(s))
	mux.Handle("GET /v1/jobs/{id}/log", handlers.HandleJobLog(s))

	mux.Handle("GET /v1/gpus", handlers.HandleGPUList(s))
	mux.Handle("PUT /v1/gpus/selected", handlers.HandleSelectNode(s))

	mux.Handle("POST /v1/sync", handlers.HandleSync(s))

	mux.Handle("GET /v1/envs", handlers.HandleEnvList(s))
	mux.Handle("POST /v1/envs", handlers.HandleEnvCreate(s))
	mux.Handle("DELETE /v1/envs/{name}", handlers.HandleEnvDelete(s))
	mux.Handle("GET /v1/envs/{name}/packages", handlers.HandlePackageList(s))
	mux.Handle("POST /v1/envs/{name}/packages", handlers.HandlePackageInstall(s))
	mux.Handle("DELETE /v1/envs/{name}/packages", handlers.HandlePackageUninstall(s))

	mux.Handle("POST /v1/datasets/extract", handlers.HandleDatasetExtract(s))

	return instrument(mux)
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the flusher and hijacker.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return http.NewResponseController(r.ResponseWriter).Hijack()
}

// instrument counts requests by route pattern.
func instrument(mux *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		mux.ServeHTTP(rec, r)
		pattern := r.Pattern
		if pattern == "" {
			pattern = "unmatched"
		}
		metrics.RecordHTTPRequest(r.Method, pattern, rec.code)
	})
}
