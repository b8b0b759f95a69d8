package slurm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRequest() JobRequest {
	return JobRequest{
		Name:         "train",
		GPUCount:     2,
		CPUsPerGPU:   4,
		MemoryPerGPU: 16,
		Partition:    "gpu",
		TimeLimit:    "12:00:00",
		ScriptPath:   "train.py",
	}
}

func TestRenderBatchScript(t *testing.T) {
	req := validRequest()
	req.Node = "gpu02"
	req.CondaEnv = "torch"
	req.WorkDir = "/home/alice/proj"

	script, err := RenderBatchScript(req)
	require.NoError(t, err)
	assert.Equal(t, `#!/bin/bash
#SBATCH --job-name=train
#SBATCH --output=train_%j.out
#SBATCH --error=train_%j.err
#SBATCH --partition=gpu
#SBATCH --nodes=1
#SBATCH --ntasks=1
#SBATCH --gres=gpu:2
#SBATCH --cpus-per-task=8
#SBATCH --mem=32G
#SBATCH --time=12:00:00
#SBATCH --nodelist=gpu02

echo "Job ID: $SLURM_JOB_ID"
echo "Job name: $SLURM_JOB_NAME"
echo "Node: $SLURMD_NODENAME"
echo "GPUs: $CUDA_VISIBLE_DEVICES"
echo "Started at: $(date)"

source "$(conda info --base)/etc/profile.d/conda.sh"
conda activate torch

cd /home/alice/proj

python train.py

echo "Finished at: $(date)"
`, script)
}

func TestRenderBatchScriptMinimal(t *testing.T) {
	req := validRequest()
	req.GPUCount = 1
	req.ScriptPath = "jobs/run all.sh"

	script, err := RenderBatchScript(req)
	require.NoError(t, err)
	assert.Contains(t, script, "#SBATCH --gres=gpu:1\n")
	assert.Contains(t, script, "#SBATCH --cpus-per-task=4\n")
	assert.Contains(t, script, "#SBATCH --mem=16G\n")
	assert.NotContains(t, script, "--nodelist")
	assert.NotContains(t, script, "conda activate")
	assert.Contains(t, script, "\nbash 'jobs/run all.sh'\n")
}

func TestJobRequestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(r *JobRequest)
		valid  bool
	}{
		{name: "valid", mutate: func(r *JobRequest) {}, valid: true},
		{name: "days in time limit", mutate: func(r *JobRequest) { r.TimeLimit = "2-00:00:00" }, valid: true},
		{name: "minutes only", mutate: func(r *JobRequest) { r.TimeLimit = "30" }, valid: true},
		{name: "node range", mutate: func(r *JobRequest) { r.Node = "gpu[01-02]" }, valid: true},
		{name: "empty name", mutate: func(r *JobRequest) { r.Name = "" }},
		{name: "name with spaces", mutate: func(r *JobRequest) { r.Name = "my job" }},
		{name: "name with injection", mutate: func(r *JobRequest) { r.Name = "x\n#SBATCH --exclusive" }},
		{name: "zero gpus", mutate: func(r *JobRequest) { r.GPUCount = 0 }},
		{name: "zero cpus", mutate: func(r *JobRequest) { r.CPUsPerGPU = 0 }},
		{name: "zero memory", mutate: func(r *JobRequest) { r.MemoryPerGPU = 0 }},
		{name: "bad time", mutate: func(r *JobRequest) { r.TimeLimit = "tomorrow" }},
		{name: "bad partition", mutate: func(r *JobRequest) { r.Partition = "gpu;rm" }},
		{name: "no script", mutate: func(r *JobRequest) { r.ScriptPath = " " }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := validRequest()
			tc.mutate(&r)
			err := r.Validate()
			if tc.valid {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, ErrInvalidRequest)
			}
		})
	}
}
