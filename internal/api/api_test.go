package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/arduino/go-paths-helper"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmaxmax/go-sse"

	"github.com/slurmdesk/slurmdesk/internal/api/models"
	"github.com/slurmdesk/slurmdesk/internal/config"
	"github.com/slurmdesk/slurmdesk/internal/session"
	"github.com/slurmdesk/slurmdesk/internal/state"
	"github.com/slurmdesk/slurmdesk/pkg/remote"
	"github.com/slurmdesk/slurmdesk/pkg/remote/remotetest"
)

const queueOut = "4242|train|RUNNING|gpu01|gpu|1:00:00|2024-05-01T12:00:00\n"

func clusterReplies() map[string]remote.Result {
	return map[string]remote.Result{
		"squeue -u alice":   {Stdout: queueOut},
		"scancel 4242":      {},
		"scancel 9999":      {Code: 1, Stderr: "scancel: error: Invalid job id specified"},
		"slurm-gres-viz -i": {Stdout: "gpu01: GPU [2/4] [■■□□] CPU 16/32 MEM 100/200 GiB\n"},
		"conda env list":    {Stdout: "base * /opt/conda\n"},
		"conda create -n ":  {},
		"bash -l":           {Stdout: "alice@login:~$ "},
		"mkdir -p ":         {},
		"cd ":               {Stdout: "Submitted batch job 4243\n"},
	}
}

func newTestServer(t *testing.T, settings config.Settings) (*httptest.Server, *remotetest.Conn) {
	t.Helper()
	conn := remotetest.NewConn(remotetest.StaticShell(clusterReplies()).Handler)
	cfg := config.New(paths.New(t.TempDir()), paths.New(t.TempDir()), paths.New(t.TempDir()), settings)
	dial := func(context.Context, config.Settings, session.Credentials) (remote.Conn, error) {
		return conn, nil
	}
	s := session.New(&cfg, state.New(cfg.StateFile().String()), dial)
	srv := httptest.NewServer(NewHTTPRouter(s, "1.2.3"))
	t.Cleanup(func() {
		srv.Close()
		_ = s.Close()
	})
	return srv, conn
}

func testSettings() config.Settings {
	s := config.DefaultSettings()
	s.Host = "login.cluster.example"
	s.Username = "alice"
	s.RemoteRoot = "/home/alice/proj"
	s.PollInterval = 0
	return s
}

func do(t *testing.T, srv *httptest.Server, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(t.Context(), method, srv.URL+path, r)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v))
	return v
}

func TestVersion(t *testing.T) {
	srv, _ := newTestServer(t, testSettings())
	resp, body := do(t, srv, http.MethodGet, "/v1/version", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "1.2.3", decode[models.VersionResponse](t, body).Version)
}

func TestNotConnected(t *testing.T) {
	srv, _ := newTestServer(t, testSettings())
	for _, path := range []string{"/v1/jobs", "/v1/gpus", "/v1/envs"} {
		resp, body := do(t, srv, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode, path)
		assert.Equal(t, remote.ErrNotConnected.Error(), decode[models.ErrorResponse](t, body).Details)
	}
	resp, body := do(t, srv, http.MethodGet, "/v1/connection", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "disconnected", decode[models.ConnectionResponse](t, body).State)
}

func TestConnectMissingConfiguration(t *testing.T) {
	settings := testSettings()
	settings.RemoteRoot = ""
	srv, _ := newTestServer(t, settings)
	resp, body := do(t, srv, http.MethodPost, "/v1/connection", models.ConnectRequest{Password: "secret"})
	assert.Equal(t, http.StatusPreconditionFailed, resp.StatusCode)
	assert.Contains(t, decode[models.ErrorResponse](t, body).Details, "remote_root")
}

func TestJobs(t *testing.T) {
	srv, conn := newTestServer(t, testSettings())
	resp, _ := do(t, srv, http.MethodPost, "/v1/connection", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := do(t, srv, http.MethodGet, "/v1/jobs", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	jobs := decode[models.JobsResponse](t, body).Jobs
	require.Len(t, jobs, 1)
	assert.Equal(t, "4242", jobs[0].ID)

	resp, _ = do(t, srv, http.MethodDelete, "/v1/jobs/4242", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Contains(t, conn.Commands(), "scancel 4242")

	resp, body = do(t, srv, http.MethodDelete, "/v1/jobs/9999", nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, decode[models.ErrorResponse](t, body).Details, "Invalid job id specified")

	resp, _ = do(t, srv, http.MethodPost, "/v1/jobs", models.JobSubmitRequest{Name: "bad name", Script: "train.py"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = do(t, srv, http.MethodPost, "/v1/jobs", models.JobSubmitRequest{Name: "train", Script: "train.py", GPUs: 2})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	sub := decode[models.JobSubmitResponse](t, body)
	assert.Equal(t, "4243", sub.JobID)
	assert.Equal(t, "/home/alice/proj/.slurmdesk/jobs/train.sh", sub.RemoteScript)
}

func TestGPUs(t *testing.T) {
	srv, _ := newTestServer(t, testSettings())
	resp, _ := do(t, srv, http.MethodPost, "/v1/connection", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, srv, http.MethodPut, "/v1/gpus/selected", models.SelectNodeRequest{Node: "gpu01"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := do(t, srv, http.MethodGet, "/v1/gpus", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	gpus := decode[models.GPUsResponse](t, body)
	assert.Equal(t, "gpu01", gpus.SelectedNode)
	require.Len(t, gpus.Nodes, 1)
	assert.Equal(t, 2, gpus.Nodes[0].FreeSlots)
}

func TestSyncDryRun(t *testing.T) {
	srv, conn := newTestServer(t, testSettings())
	conn.AddFile("/home/alice/proj/data.csv", "a,b", time.Unix(1700000000, 0))

	resp, body := do(t, srv, http.MethodPost, "/v1/sync", models.SyncRequest{Mode: "download", DryRun: true})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode, string(body))

	resp, _ = do(t, srv, http.MethodPost, "/v1/connection", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = do(t, srv, http.MethodPost, "/v1/sync", models.SyncRequest{Mode: "download", DryRun: true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decode[map[string]any](t, body)
	assert.Equal(t, true, res["dry_run"])
	assert.Equal(t, []any{map[string]any{"path": "data.csv", "op": "download"}}, res["actions"])

	resp, _ = do(t, srv, http.MethodPost, "/v1/sync", models.SyncRequest{Mode: "sideways"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEvents(t *testing.T) {
	srv, _ := newTestServer(t, testSettings())

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/events", nil)
	require.NoError(t, err)

	var states []string
	conn := sse.DefaultClient.NewConnection(req)
	conn.SubscribeToAll(func(event sse.Event) {
		if event.Type != "state" {
			return
		}
		var ev map[string]any
		require.NoError(t, json.Unmarshal([]byte(event.Data), &ev))
		states = append(states, ev["state"].(string))
		switch ev["state"] {
		case "disconnected":
			go func() {
				resp, err := srv.Client().Post(srv.URL+"/v1/connection", "application/json", nil)
				if err == nil {
					_ = resp.Body.Close()
				}
			}()
		case "connected":
			cancel()
		}
	})
	err = conn.Connect()
	if !errors.Is(err, context.Canceled) {
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"disconnected", "connecting", "connected"}, states)
}

func TestEnvs(t *testing.T) {
	srv, conn := newTestServer(t, testSettings())
	resp, _ := do(t, srv, http.MethodPost, "/v1/connection", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := do(t, srv, http.MethodGet, "/v1/envs", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	envs := decode[models.EnvsResponse](t, body).Envs
	require.Len(t, envs, 1)
	assert.Equal(t, "base", envs[0].Name)

	resp, _ = do(t, srv, http.MethodPost, "/v1/envs", models.EnvCreateRequest{Name: "torch", Python: "3.11"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Contains(t, conn.Commands(), "conda create -n torch python=3.11 -y")

	resp, _ = do(t, srv, http.MethodPost, "/v1/envs", models.EnvCreateRequest{Name: "rm -rf ~"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestShell(t *testing.T) {
	srv, _ := newTestServer(t, testSettings())
	resp, _ := do(t, srv, http.MethodPost, "/v1/connection", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/shell"
	ws, _, err := websocket.DefaultDialer.DialContext(t.Context(), url, nil)
	require.NoError(t, err)
	defer ws.Close()

	_, msg, err := ws.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "alice@login:~$ ", string(msg))
}
