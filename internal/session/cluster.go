package session

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/slurmdesk/slurmdesk/internal/gpuviz"
	"github.com/slurmdesk/slurmdesk/internal/metrics"
	"github.com/slurmdesk/slurmdesk/internal/slurm"
	"github.com/slurmdesk/slurmdesk/pkg/remote"
)

// JobSnapshot returns the last job snapshot, nil before the first refresh.
func (s *Session) JobSnapshot() []slurm.JobRecord {
	if p := s.jobs.Load(); p != nil {
		return slices.Clone(*p)
	}
	return nil
}

func (s *Session) GPUSnapshot() []gpuviz.Node {
	if p := s.gpus.Load(); p != nil {
		return slices.Clone(*p)
	}
	return nil
}

// RefreshJobs replaces the job snapshot with the current queue of the user.
// On failure the previous snapshot is kept.
func (s *Session) RefreshJobs(ctx context.Context) ([]slurm.JobRecord, error) {
	out, err := remote.Run(ctx, s, slurm.QueueCommand(s.cfg.Settings.Username))
	if err != nil {
		return nil, fmt.Errorf("querying the job queue: %w", err)
	}
	jobs := slurm.ParseQueue(out)
	s.jobs.Store(&jobs)

	counts := map[string]int{}
	for _, j := range jobs {
		counts[string(j.Status)]++
	}
	metrics.SetQueue(counts)
	s.Jobs.Publish(slices.Clone(jobs))
	return jobs, nil
}

// CancelJob cancels a job and refreshes the queue. When scancel fails the
// snapshot is left untouched.
func (s *Session) CancelJob(ctx context.Context, jobID string) error {
	if !slurm.ValidJobID(jobID) {
		return fmt.Errorf("%w: job id %q", slurm.ErrInvalidRequest, jobID)
	}
	if _, err := remote.Run(ctx, s, slurm.CancelCommand(jobID)); err != nil {
		return fmt.Errorf("cancelling job %s: %w", jobID, err)
	}
	metrics.RecordCancel()
	slog.Info("job cancelled", slog.String("job_id", jobID))
	if _, err := s.RefreshJobs(ctx); err != nil {
		slog.Warn("refreshing jobs after cancel", slog.Any("error", err))
	}
	return nil
}

// NewJobRequest returns a request filled with the configured defaults and the
// selected node.
func (s *Session) NewJobRequest(name, script string) slurm.JobRequest {
	d := s.cfg.Settings.Job
	node, err := s.SelectedNode()
	if err != nil {
		slog.Warn("reading the selected node", slog.Any("error", err))
	}
	return slurm.JobRequest{
		Name:         name,
		GPUCount:     d.GPUs,
		Node:         node,
		CPUsPerGPU:   d.CPUsPerGPU,
		MemoryPerGPU: d.MemoryPerGPU,
		Partition:    s.cfg.Settings.Partition,
		TimeLimit:    d.TimeLimit,
		ScriptPath:   script,
		CondaEnv:     d.CondaEnv,
	}
}

func (s *Session) SubmitJob(ctx context.Context, req slurm.JobRequest, review slurm.ReviewFunc) (slurm.Submission, error) {
	if !s.IsConnected() {
		return slurm.Submission{}, remote.ErrNotConnected
	}
	submitter := slurm.NewSubmitter(s, s.cfg.JobsDir(), s.cfg.Settings.RemoteRoot)
	sub, err := submitter.Submit(ctx, req, review)
	metrics.RecordSubmit(err)
	if err != nil {
		return sub, err
	}
	if err := s.store.AddRecentJob(sub.JobID); err != nil {
		slog.Warn("recording recent job", slog.Any("error", err))
	}
	if _, err := s.RefreshJobs(ctx); err != nil {
		slog.Warn("refreshing jobs after submit", slog.Any("error", err))
	}
	return sub, nil
}

// JobLog returns the last lines of the job output file.
func (s *Session) JobLog(ctx context.Context, job slurm.JobRecord, lines int) (string, error) {
	p := slurm.JobOutputPath(s.cfg.Settings.RemoteRoot, job.Name, job.ID)
	return remote.Run(ctx, s, slurm.JobLogCommand(p, lines))
}

// RefreshGPUs replaces the GPU snapshot. Output that cannot be parsed, or a
// failing visualizer, yields the placeholder nodes.
func (s *Session) RefreshGPUs(ctx context.Context) ([]gpuviz.Node, error) {
	res, err := s.Exec(ctx, gpuviz.Command)
	if err != nil {
		return nil, err
	}
	if res.Code != 0 {
		slog.Warn("gpu visualizer failed", slog.Int("code", res.Code), slog.String("stderr", res.Stderr))
	}
	nodes := gpuviz.Parse(res.Stdout)
	s.gpus.Store(&nodes)

	free := 0
	for _, n := range nodes {
		if !n.Placeholder {
			free += n.FreeSlots
		}
	}
	metrics.SetFreeGPUs(free)
	s.GPUs.Publish(slices.Clone(nodes))
	return nodes, nil
}

func (s *Session) Nodes(ctx context.Context) ([]slurm.NodeRecord, error) {
	out, err := remote.Run(ctx, s, slurm.NodesCommand(s.cfg.Settings.Partition))
	if err != nil {
		return nil, err
	}
	return slurm.ParseNodes(out), nil
}

func (s *Session) SelectNode(node string) error {
	return s.store.SetSelectedNode(node)
}

func (s *Session) SelectedNode() (string, error) {
	return s.store.SelectedNode()
}

type poller struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (p *poller) stop() {
	if p == nil {
		return
	}
	p.cancel()
	<-p.done
}

// StartPolling refreshes jobs and GPUs every interval until Disconnect.
// Calling it while polling is a no-op. A zero interval uses poll_interval.
func (s *Session) StartPolling(interval time.Duration) {
	if interval <= 0 {
		interval = time.Duration(s.cfg.Settings.PollInterval)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pollers != nil || interval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &poller{cancel: cancel, done: make(chan struct{})}
	s.pollers = p

	go func() {
		defer close(p.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			s.poll(ctx)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func (s *Session) IsPolling() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pollers != nil
}

func (s *Session) poll(ctx context.Context) {
	if !s.IsConnected() {
		return
	}
	if _, err := s.RefreshJobs(ctx); err != nil && ctx.Err() == nil {
		slog.Warn("polling jobs", slog.Any("error", err))
	}
	if _, err := s.RefreshGPUs(ctx); err != nil && ctx.Err() == nil {
		slog.Warn("polling gpus", slog.Any("error", err))
	}
}
