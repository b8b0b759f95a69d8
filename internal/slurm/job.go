// Package slurm builds the scheduler commands issued over the command channel
// and parses their text output.
package slurm

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
	"text/template"

	"github.com/kballard/go-shellquote"
)

var ErrInvalidRequest = errors.New("invalid job request")

var (
	// values rendered unquoted into #SBATCH directives
	directiveValueRe = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
	nodeListRe       = regexp.MustCompile(`^[A-Za-z0-9._,\[\]-]+$`)
	timeLimitRe      = regexp.MustCompile(`^(\d+-)?\d{1,3}(:\d{2}){0,2}$|^UNLIMITED$`)
)

// JobRequest describes a single node GPU batch job.
type JobRequest struct {
	Name         string `json:"name"`
	GPUCount     int    `json:"gpu_count"`
	Node         string `json:"node,omitempty"`
	CPUsPerGPU   int    `json:"cpus_per_gpu"`
	MemoryPerGPU int    `json:"memory_per_gpu"`
	Partition    string `json:"partition"`
	TimeLimit    string `json:"time_limit"`
	ScriptPath   string `json:"script_path"`
	CondaEnv     string `json:"conda_env,omitempty"`
	WorkDir      string `json:"work_dir,omitempty"`
}

func (r JobRequest) Validate() error {
	switch {
	case !directiveValueRe.MatchString(r.Name):
		return fmt.Errorf("%w: job name %q must only contain letters, digits, '.', '_' and '-'", ErrInvalidRequest, r.Name)
	case r.GPUCount < 1:
		return fmt.Errorf("%w: at least one GPU is required", ErrInvalidRequest)
	case r.CPUsPerGPU < 1:
		return fmt.Errorf("%w: cpus per GPU must be positive", ErrInvalidRequest)
	case r.MemoryPerGPU < 1:
		return fmt.Errorf("%w: memory per GPU must be positive", ErrInvalidRequest)
	case !directiveValueRe.MatchString(r.Partition):
		return fmt.Errorf("%w: invalid partition %q", ErrInvalidRequest, r.Partition)
	case !timeLimitRe.MatchString(r.TimeLimit):
		return fmt.Errorf("%w: invalid time limit %q", ErrInvalidRequest, r.TimeLimit)
	case r.Node != "" && !nodeListRe.MatchString(r.Node):
		return fmt.Errorf("%w: invalid node %q", ErrInvalidRequest, r.Node)
	case strings.TrimSpace(r.ScriptPath) == "":
		return fmt.Errorf("%w: script path is required", ErrInvalidRequest)
	}
	return nil
}

// TotalCPUs is the cpus-per-task value of the generated script.
func (r JobRequest) TotalCPUs() int {
	return r.CPUsPerGPU * r.GPUCount
}

// TotalMemory is the memory, in GiB, of the generated script.
func (r JobRequest) TotalMemory() int {
	return r.MemoryPerGPU * r.GPUCount
}

// Command is the invocation of the user script at the end of the batch script.
func (r JobRequest) Command() string {
	interpreter := "bash"
	if strings.EqualFold(path.Ext(r.ScriptPath), ".py") {
		interpreter = "python"
	}
	return shellquote.Join(interpreter, r.ScriptPath)
}

var batchTemplate = template.Must(template.New("batch").Funcs(template.FuncMap{
	"quote": func(s string) string { return shellquote.Join(s) },
}).Parse(`#!/bin/bash
#SBATCH --job-name={{.Name}}
#SBATCH --output={{.Name}}_%j.out
#SBATCH --error={{.Name}}_%j.err
#SBATCH --partition={{.Partition}}
#SBATCH --nodes=1
#SBATCH --ntasks=1
#SBATCH --gres=gpu:{{.GPUCount}}
#SBATCH --cpus-per-task={{.TotalCPUs}}
#SBATCH --mem={{.TotalMemory}}G
#SBATCH --time={{.TimeLimit}}
{{- if .Node}}
#SBATCH --nodelist={{.Node}}
{{- end}}

echo "Job ID: $SLURM_JOB_ID"
echo "Job name: $SLURM_JOB_NAME"
echo "Node: $SLURMD_NODENAME"
echo "GPUs: $CUDA_VISIBLE_DEVICES"
echo "Started at: $(date)"
{{- if .CondaEnv}}

source "$(conda info --base)/etc/profile.d/conda.sh"
conda activate {{quote .CondaEnv}}
{{- end}}
{{- if .WorkDir}}

cd {{quote .WorkDir}}
{{- end}}

{{.Command}}

echo "Finished at: $(date)"
`))

// RenderBatchScript generates the sbatch script of a request.
func RenderBatchScript(r JobRequest) (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	var b strings.Builder
	if err := batchTemplate.Execute(&b, r); err != nil {
		return "", fmt.Errorf("failed to render batch script: %w", err)
	}
	return b.String(), nil
}
