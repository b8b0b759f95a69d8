package slurm

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"strings"

	"github.com/arduino/go-paths-helper"
	"github.com/gosimple/slug"
	"github.com/kballard/go-shellquote"

	"github.com/slurmdesk/slurmdesk/internal/fatomic"
	"github.com/slurmdesk/slurmdesk/pkg/remote"
)

const heredocMarker = "SLURMDESK_BATCH_EOF"

// ReviewFunc is called with the local path of a generated script before it is
// submitted. It may edit the file; returning an error aborts the submission.
type ReviewFunc func(ctx context.Context, scriptPath string) error

type Submission struct {
	JobID        string `json:"job_id"`
	LocalScript  string `json:"local_script"`
	RemoteScript string `json:"remote_script"`
	WorkDir      string `json:"work_dir"`
}

// Submitter writes batch scripts locally, copies them to the cluster and
// submits them with sbatch.
type Submitter struct {
	shell      remote.Shell
	jobsDir    *paths.Path
	remoteRoot string
}

func NewSubmitter(shell remote.Shell, jobsDir *paths.Path, remoteRoot string) *Submitter {
	return &Submitter{shell: shell, jobsDir: jobsDir, remoteRoot: remoteRoot}
}

// ScriptName is the file name used for the script of a job.
func ScriptName(jobName string) string {
	return slug.Make(jobName) + ".sh"
}

func (s *Submitter) Submit(ctx context.Context, req JobRequest, review ReviewFunc) (Submission, error) {
	if req.WorkDir == "" {
		req.WorkDir = s.remoteRoot
	}
	script, err := RenderBatchScript(req)
	if err != nil {
		return Submission{}, err
	}

	local := s.jobsDir.Join(ScriptName(req.Name))
	if err := fatomic.WriteFile(local.String(), []byte(script), 0755); err != nil {
		return Submission{}, fmt.Errorf("failed to write batch script: %w", err)
	}
	if review != nil {
		if err := review(ctx, local.String()); err != nil {
			return Submission{}, err
		}
		content, err := local.ReadFile()
		if err != nil {
			return Submission{}, fmt.Errorf("failed to read reviewed script: %w", err)
		}
		script = string(content)
	}

	sub := Submission{
		LocalScript:  local.String(),
		RemoteScript: path.Join(s.remoteRoot, ".slurmdesk", "jobs", ScriptName(req.Name)),
		WorkDir:      req.WorkDir,
	}
	writeCmd, err := WriteScriptCommand(sub.RemoteScript, script)
	if err != nil {
		return Submission{}, err
	}
	if _, err := remote.Run(ctx, s.shell, writeCmd); err != nil {
		return Submission{}, fmt.Errorf("failed to upload batch script: %w", err)
	}

	out, err := remote.Run(ctx, s.shell, SubmitCommand(req.WorkDir, sub.RemoteScript))
	if err != nil {
		return Submission{}, err
	}
	sub.JobID, err = ParseSubmitOutput(out)
	if err != nil {
		return Submission{}, err
	}
	slog.Info("job submitted", "id", sub.JobID, "name", req.Name, "script", sub.RemoteScript)
	return sub, nil
}

// WriteScriptCommand writes content verbatim to remotePath with a quoted
// heredoc and makes it executable.
func WriteScriptCommand(remotePath, content string) (string, error) {
	for line := range strings.SplitSeq(content, "\n") {
		if strings.TrimSpace(line) == heredocMarker {
			return "", fmt.Errorf("%w: script contains the line %q", ErrInvalidRequest, heredocMarker)
		}
	}
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	target := shellquote.Join(remotePath)
	return fmt.Sprintf("mkdir -p %s && cat > %s <<'%s'\n%s%s\nchmod +x %s",
		shellquote.Join(path.Dir(remotePath)), target, heredocMarker, content, heredocMarker, target), nil
}

func SubmitCommand(workDir, scriptPath string) string {
	return fmt.Sprintf("cd %s && %s", shellquote.Join(workDir), shellquote.Join("sbatch", scriptPath))
}

var (
	submittedRe = regexp.MustCompile(`Submitted batch job (\d+)`)
	trailingRe  = regexp.MustCompile(`(\d+)\s*$`)
)

// ParseSubmitOutput extracts the job id printed by sbatch.
func ParseSubmitOutput(out string) (string, error) {
	if m := submittedRe.FindStringSubmatch(out); m != nil {
		return m[1], nil
	}
	// --parsable prints "<id>" or "<id>;<cluster>"
	trimmed, _, _ := strings.Cut(strings.TrimSpace(out), ";")
	if m := trailingRe.FindStringSubmatch(trimmed); m != nil {
		return m[1], nil
	}
	return "", &ParseError{What: "job id", Output: out}
}
