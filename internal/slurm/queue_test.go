package slurm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQueue(t *testing.T) {
	out := `4242|train|RUNNING|gpu01|gpu|1-00:00:00|2024-05-01T12:00:00
4243|eval|PENDING||gpu|2:00:00|2024-05-01T12:05:30
garbage line without pipes
4244|old|CANCELLED by 1000|gpu02|gpu|30:00|2024-04-30T08:00:00
|missing|RUNNING|gpu01|gpu|30:00|2024-04-30T08:00:00
4245|oom|OUT_OF_MEMORY|gpu03|long|30:00|N/A
`
	jobs := ParseQueue(out)
	require.Len(t, jobs, 4)

	assert.Equal(t, JobRecord{
		ID:          "4242",
		Name:        "train",
		Status:      StatusRunning,
		Node:        "gpu01",
		Partition:   "gpu",
		TimeLimit:   "1-00:00:00",
		SubmittedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.Local),
	}, jobs[0])
	assert.Equal(t, StatusPending, jobs[1].Status)
	assert.Empty(t, jobs[1].Node)
	assert.Equal(t, StatusCancelled, jobs[2].Status)
	assert.Equal(t, StatusFailed, jobs[3].Status)
	assert.True(t, jobs[3].SubmittedAt.IsZero())
}

func TestParseQueueEmpty(t *testing.T) {
	for _, out := range []string{"", "\n", "   \n\n"} {
		jobs := ParseQueue(out)
		require.NotNil(t, jobs)
		assert.Empty(t, jobs)
	}
}

func TestParseJobStatus(t *testing.T) {
	for in, want := range map[string]JobStatus{
		"RUNNING":     StatusRunning,
		"R":           StatusRunning,
		"completing":  StatusRunning,
		"COMPLETED":   StatusCompleted,
		"PENDING":     StatusPending,
		"CONFIGURING": StatusPending,
		"TIMEOUT":     StatusFailed,
		"NODE_FAIL":   StatusFailed,
		"CA":          StatusCancelled,
	} {
		assert.Equal(t, want, ParseJobStatus(in), in)
	}
}

func TestParseNodes(t *testing.T) {
	out := `gpu01 1 gpu* idle
gpu02 1 gpu* mix
gpu02 1 long mix
gpu03 1 gpu* drain*
malformed
`
	assert.Equal(t, []NodeRecord{
		{Name: "gpu01", Partition: "gpu", State: "idle"},
		{Name: "gpu02", Partition: "gpu", State: "mix"},
		{Name: "gpu03", Partition: "gpu", State: "drain"},
	}, ParseNodes(out))
	assert.Empty(t, ParseNodes(""))
}

func TestCommands(t *testing.T) {
	assert.Equal(t, "squeue -u alice --noheader --format='%i|%j|%T|%N|%P|%l|%V'", QueueCommand("alice"))
	assert.Equal(t, "scancel 4242", CancelCommand("4242"))
	assert.Equal(t, "sinfo -N -h -p gpu", NodesCommand("gpu"))
	assert.Equal(t, "srun --partition=gpu --nodelist=gpu01 --gres=gpu:2 bash -lc 'nvidia-smi -L'",
		SrunCommand("gpu", "gpu01", 2, "nvidia-smi -L"))
	assert.Equal(t, "tail -n 50 /home/alice/proj/train_4242.out",
		JobLogCommand(JobOutputPath("/home/alice/proj/", "train", "4242"), 50))
	assert.Equal(t, "tail -n 100 train_1.out", JobLogCommand(JobOutputPath("", "train", "1"), 0))

	assert.True(t, ValidJobID("4242"))
	assert.True(t, ValidJobID("4242_3"))
	assert.False(t, ValidJobID("4242; rm -rf ~"))
}

func TestParseSubmitOutput(t *testing.T) {
	testCases := []struct {
		out     string
		want    string
		wantErr bool
	}{
		{out: "Submitted batch job 4242\n", want: "4242"},
		{out: "sbatch: info: using default account\nSubmitted batch job 17", want: "17"},
		{out: "4243;cluster\n", want: "4243"},
		{out: "98765", want: "98765"},
		{out: "sbatch: error: Batch job submission failed", wantErr: true},
		{out: "", wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.out, func(t *testing.T) {
			id, err := ParseSubmitOutput(tc.out)
			if tc.wantErr {
				var parseErr *ParseError
				require.ErrorAs(t, err, &parseErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, id)
		})
	}
}
