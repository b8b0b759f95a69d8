package models

import (
	"github.com/slurmdesk/slurmdesk/internal/conda"
	"github.com/slurmdesk/slurmdesk/internal/filesync"
	"github.com/slurmdesk/slurmdesk/internal/gpuviz"
	"github.com/slurmdesk/slurmdesk/internal/slurm"
)

type ErrorResponse struct {
	Details string `json:"details"`
}

type VersionResponse struct {
	Version string `json:"version"`
}

type ConnectRequest struct {
	Password   string `json:"password,omitempty"`
	Passphrase string `json:"passphrase,omitempty"`
}

type ConnectionResponse struct {
	State        string `json:"state"`
	Host         string `json:"host"`
	Username     string `json:"username"`
	RemoteRoot   string `json:"remote_root"`
	SelectedNode string `json:"selected_node,omitempty"`
}

type JobsResponse struct {
	Jobs []slurm.JobRecord `json:"jobs"`
}

// JobSubmitRequest fields left empty take the configured defaults.
type JobSubmitRequest struct {
	Name         string `json:"name"`
	Script       string `json:"script"`
	GPUs         int    `json:"gpus,omitempty"`
	Node         string `json:"node,omitempty"`
	CPUsPerGPU   int    `json:"cpus_per_gpu,omitempty"`
	MemoryPerGPU int    `json:"memory_per_gpu,omitempty"`
	Partition    string `json:"partition,omitempty"`
	TimeLimit    string `json:"time_limit,omitempty"`
	CondaEnv     string `json:"conda_env,omitempty"`
}

type JobSubmitResponse struct {
	JobID        string `json:"job_id"`
	RemoteScript string `json:"remote_script"`
}

type JobLogResponse struct {
	JobID  string `json:"job_id"`
	Output string `json:"output"`
}

type GPUsResponse struct {
	Nodes        []gpuviz.Node `json:"nodes"`
	SelectedNode string        `json:"selected_node,omitempty"`
}

type SelectNodeRequest struct {
	Node string `json:"node"`
}

type SyncRequest struct {
	Mode   string `json:"mode"`
	DryRun bool   `json:"dry_run,omitempty"`
}

type SyncResponse struct {
	Mode       filesync.Mode     `json:"mode"`
	DryRun     bool              `json:"dry_run,omitempty"`
	Actions    []filesync.Action `json:"actions"`
	Uploaded   int               `json:"uploaded"`
	Downloaded int               `json:"downloaded"`
	Deleted    int               `json:"deleted"`
	Bytes      int64             `json:"bytes"`
}

type EnvsResponse struct {
	Envs []conda.Env `json:"envs"`
}

type EnvCreateRequest struct {
	Name   string `json:"name"`
	Python string `json:"python,omitempty"`
}

type PackagesResponse struct {
	Env      string          `json:"env"`
	Packages []conda.Package `json:"packages"`
}

type PackagesRequest struct {
	Packages []string `json:"packages"`
}

type DatasetExtractRequest struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
}

type ConfigResponse struct {
	ConfigDir string            `json:"config_dir"`
	DataDir   string            `json:"data_dir"`
	Workspace string            `json:"workspace"`
	Settings  map[string]string `json:"settings"`
}
