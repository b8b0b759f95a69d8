package render

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSEStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stream, err := NewSSEStream(w, r)
		if !assert.NoError(t, err) {
			return
		}
		assert.True(t, stream.Send(SSEEvent{Type: "jobs", Data: []string{"4242"}}))
		stream.Close()
		assert.False(t, stream.Send(SSEEvent{Type: "jobs"}))
	}))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))

	var lines []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	assert.Equal(t, []string{
		"event: jobs",
		`data: ["4242"]`,
		"event: error",
		`data: {"code":"SERVER_CLOSED"}`,
	}, lines)
}
