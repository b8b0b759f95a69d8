package version

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// daemonStub answers the daemon endpoints without a network.
type daemonStub map[string]string

func (d daemonStub) RoundTrip(req *http.Request) (*http.Response, error) {
	body, ok := d[req.URL.Path]
	if !ok {
		return nil, errors.New("connection refused")
	}
	code := http.StatusOK
	if body == "" {
		code = http.StatusInternalServerError
	}
	return &http.Response{StatusCode: code, Body: io.NopCloser(strings.NewReader(body))}, nil
}

func TestQueryDaemon(t *testing.T) {
	testCases := []struct {
		name string
		stub daemonStub
		want versionResult
	}{
		{
			name: "daemon up and connected",
			stub: daemonStub{
				"/v1/version":    `{"version":"0.4.1"}`,
				"/v1/connection": `{"state":"connected","host":"login"}`,
			},
			want: versionResult{Name: "slurmdesk", Version: "0.4.1", DaemonVersion: "0.4.1", DaemonState: "connected"},
		},
		{
			name: "daemon not running",
			stub: daemonStub{},
			want: versionResult{Name: "slurmdesk", Version: "0.4.1"},
		},
		{
			name: "daemon answering garbage",
			stub: daemonStub{"/v1/version": `<!doctype html>`},
			want: versionResult{Name: "slurmdesk", Version: "0.4.1"},
		},
		{
			name: "connection endpoint failing",
			stub: daemonStub{"/v1/version": `{"version":"0.3.0"}`, "/v1/connection": ""},
			want: versionResult{Name: "slurmdesk", Version: "0.4.1", DaemonVersion: "0.3.0"},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := queryDaemon(t.Context(), newDaemonClient("8800", tc.stub), "0.4.1")
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestVersionResult(t *testing.T) {
	assert.Equal(t, "slurmdesk 0.4.1\ndaemon: not running", versionResult{Version: "0.4.1"}.String())
	assert.Equal(t, "slurmdesk 0.4.1\ndaemon: 0.4.1, cluster connected",
		versionResult{Version: "0.4.1", DaemonVersion: "0.4.1", DaemonState: "connected"}.String())
	assert.Contains(t, versionResult{Version: "0.4.1", DaemonVersion: "0.3.0"}.String(), "older than the client, restart it")
	assert.Contains(t, versionResult{Version: "0.4.1", DaemonVersion: "0.5.0"}.String(), "newer than the client")
	assert.Equal(t, "slurmdesk 0.0.0-dev\ndaemon: nightly", versionResult{Version: "0.0.0-dev", DaemonVersion: "nightly"}.String())
}
