package system

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slurmdesk/slurmdesk/pkg/remote"
	"github.com/slurmdesk/slurmdesk/pkg/remote/remotetest"
)

func TestExtractVersion(t *testing.T) {
	testCases := []struct {
		out  string
		want string
	}{
		{out: "slurm 23.02.6\n", want: "23.2.6"},
		{out: "conda 4.12\n", want: "4.12.0"},
		{out: "Python 3.11.5", want: "3.11.5"},
		{out: "slurm-gres-viz 2", want: "2.0.0"},
	}
	for _, tc := range testCases {
		t.Run(tc.out, func(t *testing.T) {
			v, ok := ExtractVersion(tc.out)
			require.True(t, ok)
			assert.Equal(t, tc.want, v.String())
		})
	}
	_, ok := ExtractVersion("command not found")
	assert.False(t, ok)
}

func TestDoctor(t *testing.T) {
	shell := remotetest.StaticShell(map[string]remote.Result{
		"sbatch --version":         {Stdout: "slurm 23.02.6\n"},
		"conda --version":          {Stdout: "conda 4.5.11\n"},
		"python3 --version":        {Stdout: "Python 3.11.5\n"},
		"slurm-gres-viz --version": {Code: 127, Stderr: "bash: slurm-gres-viz: command not found\n"},
	})
	checks := Doctor(t.Context(), shell, Tools)
	require.Len(t, checks, 4)
	assert.Equal(t, Check{Tool: "slurm", Version: "23.2.6", Min: "20.11.0", Status: CheckOK}, checks[0])
	assert.Equal(t, CheckOutdated, checks[1].Status)
	assert.Equal(t, CheckOK, checks[2].Status)
	assert.Equal(t, Check{Tool: "slurm-gres-viz", Status: CheckMissing, Optional: true}, checks[3])

	res := doctorResult{Checks: checks}
	assert.True(t, res.Failed())
	assert.Equal(t, "conda is outdated", res.ErrorString())

	checks[1].Status = CheckOK
	assert.False(t, doctorResult{Checks: checks}.Failed())
}
