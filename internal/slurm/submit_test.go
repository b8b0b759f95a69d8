package slurm

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/arduino/go-paths-helper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slurmdesk/slurmdesk/pkg/remote"
	"github.com/slurmdesk/slurmdesk/pkg/remote/remotetest"
)

func TestSubmit(t *testing.T) {
	shell := remotetest.StaticShell(map[string]remote.Result{
		"mkdir -p ": {},
		"cd ":       {Stdout: "Submitted batch job 4242\n"},
	})
	jobsDir := paths.New(t.TempDir(), ".slurmdesk", "jobs")
	s := NewSubmitter(shell, jobsDir, "/home/alice/proj")

	req := validRequest()
	req.Name = "Train.Big"
	sub, err := s.Submit(t.Context(), req, nil)
	require.NoError(t, err)
	assert.Equal(t, "4242", sub.JobID)
	assert.Equal(t, "/home/alice/proj", sub.WorkDir)
	assert.Equal(t, "/home/alice/proj/.slurmdesk/jobs/train-big.sh", sub.RemoteScript)
	assert.Equal(t, jobsDir.Join("train-big.sh").String(), sub.LocalScript)

	local, err := os.ReadFile(sub.LocalScript)
	require.NoError(t, err)
	assert.Contains(t, string(local), "cd /home/alice/proj\n")

	cmds := shell.Commands()
	require.Len(t, cmds, 2)
	assert.True(t, strings.HasPrefix(cmds[0], "mkdir -p /home/alice/proj/.slurmdesk/jobs && cat > /home/alice/proj/.slurmdesk/jobs/train-big.sh <<'SLURMDESK_BATCH_EOF'\n"))
	assert.Contains(t, cmds[0], string(local))
	assert.True(t, strings.HasSuffix(cmds[0], "\nSLURMDESK_BATCH_EOF\nchmod +x /home/alice/proj/.slurmdesk/jobs/train-big.sh"))
	assert.Equal(t, "cd /home/alice/proj && sbatch /home/alice/proj/.slurmdesk/jobs/train-big.sh", cmds[1])
}

func TestSubmitReview(t *testing.T) {
	shell := remotetest.StaticShell(map[string]remote.Result{
		"mkdir -p ": {},
		"cd ":       {Stdout: "Submitted batch job 7\n"},
	})
	s := NewSubmitter(shell, paths.New(t.TempDir()), "/scratch/alice")

	review := func(_ context.Context, p string) error {
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		edited := strings.Replace(string(data), "--time=12:00:00", "--time=01:00:00", 1)
		return os.WriteFile(p, []byte(edited), 0755)
	}
	_, err := s.Submit(t.Context(), validRequest(), review)
	require.NoError(t, err)
	assert.Contains(t, shell.Commands()[0], "#SBATCH --time=01:00:00\n")

	shell = remotetest.StaticShell(nil)
	s = NewSubmitter(shell, paths.New(t.TempDir()), "/scratch/alice")
	abort := errors.New("aborted by user")
	_, err = s.Submit(t.Context(), validRequest(), func(context.Context, string) error { return abort })
	require.ErrorIs(t, err, abort)
	assert.Empty(t, shell.Commands())
}

func TestSubmitFailures(t *testing.T) {
	t.Run("sbatch rejects the job", func(t *testing.T) {
		shell := remotetest.StaticShell(map[string]remote.Result{
			"mkdir -p ": {},
			"cd ":       {Code: 1, Stderr: "sbatch: error: invalid partition name specified\n"},
		})
		s := NewSubmitter(shell, paths.New(t.TempDir()), "/scratch/alice")
		_, err := s.Submit(t.Context(), validRequest(), nil)
		var cmdErr *remote.CommandError
		require.ErrorAs(t, err, &cmdErr)
		assert.Equal(t, "sbatch: error: invalid partition name specified", err.Error())
	})

	t.Run("no job id", func(t *testing.T) {
		shell := remotetest.StaticShell(map[string]remote.Result{
			"mkdir -p ": {},
			"cd ":       {Stdout: "queued somewhere\n"},
		})
		s := NewSubmitter(shell, paths.New(t.TempDir()), "/scratch/alice")
		_, err := s.Submit(t.Context(), validRequest(), nil)
		var parseErr *ParseError
		require.ErrorAs(t, err, &parseErr)
	})

	t.Run("invalid request never reaches the cluster", func(t *testing.T) {
		shell := remotetest.StaticShell(nil)
		s := NewSubmitter(shell, paths.New(t.TempDir()), "/scratch/alice")
		req := validRequest()
		req.GPUCount = 0
		_, err := s.Submit(t.Context(), req, nil)
		require.ErrorIs(t, err, ErrInvalidRequest)
		assert.Empty(t, shell.Commands())
	})
}

func TestWriteScriptCommandRejectsMarker(t *testing.T) {
	_, err := WriteScriptCommand("/tmp/x.sh", "echo hi\nSLURMDESK_BATCH_EOF\nrm -rf /\n")
	require.ErrorIs(t, err, ErrInvalidRequest)
}
