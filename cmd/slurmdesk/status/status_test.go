package status

import (
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/slurmdesk/slurmdesk/internal/session"
)

func TestStatusResult(t *testing.T) {
	color.NoColor = true

	r := statusResult{Host: "login.hpc", User: "alice", State: session.Connected, Jobs: 3, Running: 1, FreeGPUs: 5, Selected: "gpu02"}
	assert.Equal(t, "alice@login.hpc: connected\nJobs:      3 (1 running)\nFree GPUs: 5\nNode:      gpu02", r.String())

	r = statusResult{Host: "login.hpc", User: "alice", State: session.Connected, Placeholder: true}
	assert.Contains(t, r.String(), "Free GPUs: unknown")

	r = statusResult{Host: "login.hpc", User: "alice", State: session.Failed, Error: "ssh authentication failed"}
	assert.Equal(t, "alice@login.hpc: failed\n", r.String())
	assert.Equal(t, "ssh authentication failed", r.ErrorString())
}
