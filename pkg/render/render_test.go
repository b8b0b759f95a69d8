package render

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRequest(t *testing.T) {
	var req struct {
		Node string `json:"node"`
	}
	r := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"node":"gpu02"}`))
	require.NoError(t, DecodeRequest(httptest.NewRecorder(), r, &req))
	assert.Equal(t, "gpu02", req.Node)

	r = httptest.NewRequest(http.MethodPost, "/", http.NoBody)
	require.ErrorIs(t, DecodeRequest(httptest.NewRecorder(), r, &req), ErrEmptyBody)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"node":`))
	err := DecodeRequest(httptest.NewRecorder(), r, &req)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrEmptyBody)

	big := `{"node":"` + strings.Repeat("x", maxRequestBody) + `"}`
	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big))
	require.Error(t, DecodeRequest(httptest.NewRecorder(), r, &req))
}

func TestEncodeResponse(t *testing.T) {
	rec := httptest.NewRecorder()
	EncodeResponse(rec, http.StatusCreated, map[string]string{"job_id": "4242"})
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"job_id":"4242"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	EncodeResponse(rec, http.StatusNoContent, map[string]string{"ignored": "yes"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
}
