package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/slurmdesk/slurmdesk/internal/conda"
	"github.com/slurmdesk/slurmdesk/internal/config"
	"github.com/slurmdesk/slurmdesk/internal/filesync"
	"github.com/slurmdesk/slurmdesk/internal/slurm"
	"github.com/slurmdesk/slurmdesk/pkg/remote"
	"github.com/slurmdesk/slurmdesk/pkg/remote/ssh"
)

func TestStatusOf(t *testing.T) {
	testCases := []struct {
		err  error
		want int
	}{
		{err: &config.ConfigurationError{Key: "remote_root"}, want: http.StatusPreconditionFailed},
		{err: fmt.Errorf("jobs: %w", remote.ErrNotConnected), want: http.StatusServiceUnavailable},
		{err: ssh.ErrAuthFailed, want: http.StatusUnauthorized},
		{err: fmt.Errorf("%w: gpus", slurm.ErrInvalidRequest), want: http.StatusBadRequest},
		{err: conda.ErrInvalidName, want: http.StatusBadRequest},
		{err: context.DeadlineExceeded, want: http.StatusGatewayTimeout},
		{err: &remote.CommandError{Command: "sbatch", Code: 1}, want: http.StatusBadGateway},
		{err: fmt.Errorf("%w: out", filesync.ErrTypeConflict), want: http.StatusConflict},
		{err: &filesync.SyncError{Path: "a.py", Err: errors.New("eof")}, want: http.StatusInternalServerError},
		{err: errors.New("boom"), want: http.StatusInternalServerError},
	}
	for _, tc := range testCases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			assert.Equal(t, tc.want, statusOf(tc.err))
		})
	}
}
