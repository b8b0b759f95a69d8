package render

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
)

const maxRequestBody = 1 << 20

var ErrEmptyBody = errors.New("empty request body")

// DecodeRequest reads a JSON body of at most 1MiB into v. A missing body is
// ErrEmptyBody, so handlers with optional bodies can tell it apart.
func DecodeRequest(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrEmptyBody
		}
		return err
	}
	return nil
}

func EncodeResponse(w http.ResponseWriter, statusCode int, resp any) {
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(statusCode)
	// no body allowed on 204
	if resp == nil || statusCode == http.StatusNoContent {
		return
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("encode response", slog.Any("error", err))
	}
}
