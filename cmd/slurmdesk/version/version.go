package version

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/spf13/cobra"
	semver "go.bug.st/relaxed-semver"

	"github.com/slurmdesk/slurmdesk/cmd/feedback"
	"github.com/slurmdesk/slurmdesk/internal/api/models"
)

// The daemon only listens on the loopback interface
const (
	DefaultHostname = "localhost"
	DefaultPort     = "8800"
	ProgramName     = "slurmdesk"
)

func NewVersionCmd(clientVersion string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version of slurmdesk and of the running daemon",
		Run: func(cmd *cobra.Command, args []string) {
			port, _ := cmd.Flags().GetString("port")
			feedback.PrintResult(queryDaemon(cmd.Context(), newDaemonClient(port, nil), clientVersion))
		},
	}
	cmd.Flags().String("port", DefaultPort, "The daemon network port")
	return cmd
}

// daemonClient reads the public endpoints of a local daemon.
type daemonClient struct {
	http *http.Client
	base url.URL
}

func newDaemonClient(port string, transport http.RoundTripper) *daemonClient {
	return &daemonClient{
		http: &http.Client{Timeout: time.Second, Transport: transport},
		base: url.URL{Scheme: "http", Host: net.JoinHostPort(DefaultHostname, port)},
	}
}

func (c *daemonClient) get(ctx context.Context, path string, v any) error {
	u := c.base
	u.Path = path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status code %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	return nil
}

func queryDaemon(ctx context.Context, c *daemonClient, clientVersion string) versionResult {
	res := versionResult{Name: ProgramName, Version: clientVersion}

	var v models.VersionResponse
	if err := c.get(ctx, "/v1/version", &v); err != nil {
		slog.Debug("daemon version unavailable", slog.Any("error", err))
		return res
	}
	res.DaemonVersion = v.Version

	var conn models.ConnectionResponse
	if err := c.get(ctx, "/v1/connection", &conn); err != nil {
		slog.Debug("daemon connection state unavailable", slog.Any("error", err))
		return res
	}
	res.DaemonState = conn.State
	return res
}

type versionResult struct {
	Name          string `json:"name"`
	Version       string `json:"version"`
	DaemonVersion string `json:"daemon_version,omitempty"`
	DaemonState   string `json:"daemon_state,omitempty"`
}

// skew compares the daemon with the client: -1 older, 1 newer, 0 same or
// not comparable.
func (r versionResult) skew() int {
	client, err := semver.Parse(r.Version)
	if err != nil {
		return 0
	}
	daemon, err := semver.Parse(r.DaemonVersion)
	if err != nil {
		return 0
	}
	return daemon.CompareTo(client)
}

func (r versionResult) String() string {
	msg := fmt.Sprintf("%s %s", ProgramName, r.Version)
	if r.DaemonVersion == "" {
		return msg + "\ndaemon: not running"
	}
	msg += "\ndaemon: " + r.DaemonVersion
	if r.DaemonState != "" {
		msg += ", cluster " + r.DaemonState
	}
	switch r.skew() {
	case -1:
		msg += "\nthe daemon is older than the client, restart it"
	case 1:
		msg += "\nthe daemon is newer than the client"
	}
	return msg
}

func (r versionResult) Data() interface{} {
	return r
}
