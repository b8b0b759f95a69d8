package filesync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	"github.com/slurmdesk/slurmdesk/internal/config"
	"github.com/slurmdesk/slurmdesk/pkg/remote"
	"github.com/slurmdesk/slurmdesk/pkg/remotefs"
)

// Progress is published before every action and once more, with Done set,
// when the run completes successfully.
type Progress struct {
	Mode        Mode   `json:"mode"`
	Index       int    `json:"index"`
	Total       int    `json:"total"`
	CurrentFile string `json:"current_file,omitempty"`
	Op          Op     `json:"op"`
	Percentage  int    `json:"percentage"`
	Done        bool   `json:"done"`
}

// SyncError is a single action that failed. The run stops at the first one.
type SyncError struct {
	Path string
	Op   Op
	Err  error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("failed to %s %q: %v", e.Op, e.Path, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

type Summary struct {
	Mode       Mode          `json:"mode"`
	Actions    []Action      `json:"actions"`
	Uploaded   int           `json:"uploaded"`
	Downloaded int           `json:"downloaded"`
	Deleted    int           `json:"deleted"`
	Bytes      int64         `json:"bytes"`
	Duration   time.Duration `json:"duration"`
}

type Options struct {
	LocalRoot   string
	RemoteRoot  string
	Rules       Rules
	DeleteExtra bool
}

// Engine synchronizes a local directory with a directory on the cluster over
// the transfer channel.
type Engine struct {
	conn     remote.FS
	opts     Options
	progress func(Progress)
}

// NewEngine returns an engine bound to conn. A nil conn means the session is
// not connected and every run fails with remote.ErrNotConnected.
func NewEngine(conn remote.FS, opts Options, progress func(Progress)) *Engine {
	if progress == nil {
		progress = func(Progress) {}
	}
	return &Engine{conn: conn, opts: opts, progress: progress}
}

func (e *Engine) check() error {
	if e.conn == nil {
		return remote.ErrNotConnected
	}
	if strings.TrimSpace(e.opts.RemoteRoot) == "" {
		return &config.ConfigurationError{Key: "remote_root"}
	}
	if e.opts.LocalRoot == "" {
		return &config.ConfigurationError{Key: "workspace"}
	}
	info, err := os.Stat(e.opts.LocalRoot)
	if err != nil {
		return &config.ConfigurationError{Key: "workspace", Reason: err.Error()}
	}
	if !info.IsDir() {
		return &config.ConfigurationError{Key: "workspace", Reason: fmt.Sprintf("%s is not a directory", e.opts.LocalRoot)}
	}
	if _, err := os.ReadDir(e.opts.LocalRoot); err != nil {
		return &config.ConfigurationError{Key: "workspace", Reason: err.Error()}
	}
	return nil
}

func (e *Engine) trees() (OsTree, remotefs.Tree) {
	return OsTree{Base: e.opts.LocalRoot}, remotefs.New(e.opts.RemoteRoot, e.conn)
}

// Preview computes the actions a run would execute, without transferring.
func (e *Engine) Preview(ctx context.Context, mode Mode) ([]Action, map[string]Entry, map[string]Entry, error) {
	if err := e.check(); err != nil {
		return nil, nil, nil, err
	}
	local, rem := e.trees()

	// the destination is read in one-way modes too, to find type conflicts
	localEntries, err := Snapshot(ctx, local, e.opts.Rules)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to read local tree: %w", err)
	}
	remoteEntries, err := Snapshot(ctx, rem, e.opts.Rules)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to read remote tree: %w", err)
	}
	actions := Plan(mode, localEntries, remoteEntries, PlanOptions{Rules: e.opts.Rules, DeleteExtra: e.opts.DeleteExtra})
	if conflicts := TypeConflicts(actions, localEntries, remoteEntries); len(conflicts) > 0 {
		return nil, nil, nil, fmt.Errorf("%w: %s", ErrTypeConflict, strings.Join(conflicts, ", "))
	}
	return actions, localEntries, remoteEntries, nil
}

// Run plans and executes a sync. Zero actions is a success.
func (e *Engine) Run(ctx context.Context, mode Mode) (Summary, error) {
	start := time.Now()
	actions, localEntries, remoteEntries, err := e.Preview(ctx, mode)
	if err != nil {
		return Summary{Mode: mode}, err
	}
	sum, err := e.execute(ctx, mode, actions, localEntries, remoteEntries)
	sum.Duration = time.Since(start)
	return sum, err
}

// UploadPaths pushes the given local files. Files that no longer exist locally
// are removed remotely when DeleteExtra is set and skipped otherwise.
func (e *Engine) UploadPaths(ctx context.Context, rels []string) (Summary, error) {
	start := time.Now()
	if err := e.check(); err != nil {
		return Summary{Mode: Upload}, err
	}
	local, _ := e.trees()
	entries := make(map[string]Entry)
	var actions, deletes []Action
	for _, rel := range rels {
		rel = path.Clean(rel)
		if !fs.ValidPath(rel) || rel == "." || e.opts.Rules.Excluded(rel) {
			continue
		}
		info, err := local.Stat(rel)
		switch {
		case err == nil && info.Mode().IsRegular():
			entries[rel] = Entry{Path: rel, Size: info.Size(), ModTime: info.ModTime()}
			actions = append(actions, Action{Path: rel, Op: OpUpload})
		case errors.Is(err, fs.ErrNotExist) && e.opts.DeleteExtra:
			deletes = append(deletes, Action{Path: rel, Op: OpDeleteRemote})
		}
	}
	sum, err := e.execute(ctx, Upload, append(actions, deletes...), entries, nil)
	sum.Duration = time.Since(start)
	return sum, err
}

func (e *Engine) execute(ctx context.Context, mode Mode, actions []Action, localEntries, remoteEntries map[string]Entry) (Summary, error) {
	local, rem := e.trees()
	sum := Summary{Mode: mode, Actions: actions}
	total := len(actions)

	for i, a := range actions {
		if err := ctx.Err(); err != nil {
			return sum, &SyncError{Path: a.Path, Op: a.Op, Err: err}
		}
		e.progress(Progress{
			Mode:        mode,
			Index:       i + 1,
			Total:       total,
			CurrentFile: a.Path,
			Op:          a.Op,
			Percentage:  i * 100 / total,
		})

		var err error
		switch a.Op {
		case OpUpload:
			err = transfer(local, rem, localEntries[a.Path])
			sum.Uploaded++
			sum.Bytes += localEntries[a.Path].Size
		case OpDownload:
			err = transfer(rem, local, remoteEntries[a.Path])
			sum.Downloaded++
			sum.Bytes += remoteEntries[a.Path].Size
		case OpDeleteRemote:
			err = rem.Remove(a.Path)
			sum.Deleted++
		case OpDeleteLocal:
			err = local.Remove(a.Path)
			sum.Deleted++
		}
		if err != nil {
			return sum, &SyncError{Path: a.Path, Op: a.Op, Err: err}
		}
		slog.Debug("sync action done", "op", a.Op, "path", a.Path)
	}

	e.progress(Progress{Mode: mode, Index: total, Total: total, Percentage: 100, Done: true})
	return sum, nil
}

// transfer copies one file, creating its parent directory first and carrying
// the source modification time over to the destination.
func transfer(src, dst Tree, entry Entry) error {
	if err := dst.MkDirAll(path.Dir(entry.Path)); err != nil {
		return err
	}
	f, err := src.Open(entry.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := dst.WriteFile(entry.Path, f); err != nil {
		return err
	}
	if entry.ModTime.IsZero() {
		return nil
	}
	return dst.Chtimes(entry.Path, entry.ModTime)
}
