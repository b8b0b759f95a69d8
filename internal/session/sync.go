package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/slurmdesk/slurmdesk/internal/filesync"
	"github.com/slurmdesk/slurmdesk/internal/metrics"
	"github.com/slurmdesk/slurmdesk/pkg/remote"
)

func (s *Session) rules() (filesync.Rules, error) {
	return filesync.NewRules(s.cfg.Settings.Sync.Exclude, s.cfg.Settings.Sync.IncludeHidden)
}

func (s *Session) engine() (*filesync.Engine, error) {
	rules, err := s.rules()
	if err != nil {
		return nil, err
	}
	return filesync.NewEngine(s.FS(), filesync.Options{
		LocalRoot:   s.cfg.Workspace().String(),
		RemoteRoot:  s.cfg.Settings.RemoteRoot,
		Rules:       rules,
		DeleteExtra: s.cfg.Settings.Sync.DeleteExtra,
	}, s.Progress.Publish), nil
}

// Preview returns the actions Sync would execute.
func (s *Session) Preview(ctx context.Context, mode filesync.Mode) ([]filesync.Action, error) {
	e, err := s.engine()
	if err != nil {
		return nil, err
	}
	actions, _, _, err := e.Preview(ctx, mode)
	return actions, err
}

// Sync reconciles the workspace with the remote root. Only one run at a time.
func (s *Session) Sync(ctx context.Context, mode filesync.Mode) (filesync.Summary, error) {
	e, err := s.engine()
	if err != nil {
		return filesync.Summary{Mode: mode}, err
	}
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	sum, err := e.Run(ctx, mode)
	record(sum, err)
	return sum, err
}

// Watch uploads local changes until ctx is done.
func (s *Session) Watch(ctx context.Context, debounce time.Duration) error {
	if s.FS() == nil {
		return remote.ErrNotConnected
	}
	e, err := s.engine()
	if err != nil {
		return err
	}
	rules, err := s.rules()
	if err != nil {
		return err
	}
	w, err := filesync.NewWatcher(s.cfg.Workspace().String(), rules, debounce)
	if err != nil {
		return err
	}
	slog.Info("watching workspace", slog.String("path", s.cfg.Workspace().String()))
	return w.Run(ctx, func(ctx context.Context, changed []string) error {
		s.syncMu.Lock()
		defer s.syncMu.Unlock()
		sum, err := e.UploadPaths(ctx, changed)
		record(sum, err)
		return err
	})
}

func record(sum filesync.Summary, err error) {
	files := sum.Uploaded + sum.Downloaded + sum.Deleted
	metrics.RecordSync(sum.Mode.String(), files, sum.Bytes, sum.Duration, err)
	if err != nil {
		slog.Error("sync failed", slog.String("mode", sum.Mode.String()), slog.Any("error", err))
		return
	}
	slog.Info("sync completed", slog.String("mode", sum.Mode.String()), slog.Int("files", files), slog.Int64("bytes", sum.Bytes))
}
