// Package httprecover turns a panicking daemon handler into a 500 response
// instead of a dropped connection.
package httprecover

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/slurmdesk/slurmdesk/internal/api/models"
	"github.com/slurmdesk/slurmdesk/internal/metrics"
	"github.com/slurmdesk/slurmdesk/pkg/render"
)

func RecoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			// the client is gone, net/http handles this one
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			metrics.RecordPanic()
			slog.Error("handler panic",
				slog.String("panic", fmt.Sprint(rec)),
				slog.String("stacktrace", string(debug.Stack())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)
			render.EncodeResponse(w, http.StatusInternalServerError, models.ErrorResponse{Details: "An unexpected error occurred."})
		}()
		next.ServeHTTP(w, r)
	})
}
