package filesync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"slices"
	"strings"
	"time"
)

type Mode int

const (
	Upload Mode = iota
	Download
	Bidirectional
)

func (m Mode) String() string {
	switch m {
	case Upload:
		return "upload"
	case Download:
		return "download"
	case Bidirectional:
		return "bidirectional"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "upload", "push", "up":
		return Upload, nil
	case "download", "pull", "down":
		return Download, nil
	case "bidirectional", "both", "smart", "":
		return Bidirectional, nil
	}
	return 0, fmt.Errorf("unknown sync mode %q", s)
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

type Op int

const (
	OpUpload Op = iota
	OpDownload
	OpDeleteRemote
	OpDeleteLocal
)

func (o Op) String() string {
	switch o {
	case OpUpload:
		return "upload"
	case OpDownload:
		return "download"
	case OpDeleteRemote:
		return "delete-remote"
	case OpDeleteLocal:
		return "delete-local"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

func (o Op) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Entry is a regular file found while walking one side of the sync.
type Entry struct {
	Path    string
	Size    int64
	ModTime time.Time
}

type Action struct {
	Path string `json:"path"`
	Op   Op     `json:"op"`
}

type PlanOptions struct {
	Rules       Rules
	DeleteExtra bool
}

// Plan computes the actions converging the two trees. It never looks at the
// file systems, only at the snapshots. Transfers come first, sorted by path,
// followed by deletions.
//
// Upload and Download copy every source file unconditionally. Bidirectional
// copies the strictly newer side, comparing modification times at one second
// resolution, and does nothing on a tie. DeleteExtra is ignored in
// Bidirectional mode.
func Plan(mode Mode, local, remote map[string]Entry, opts PlanOptions) []Action {
	var transfers, deletes []Action
	add := func(list *[]Action, p string, op Op) {
		if opts.Rules.Excluded(p) {
			return
		}
		*list = append(*list, Action{Path: p, Op: op})
	}

	switch mode {
	case Upload:
		for p := range local {
			add(&transfers, p, OpUpload)
		}
		if opts.DeleteExtra {
			for p := range remote {
				if _, ok := local[p]; !ok {
					add(&deletes, p, OpDeleteRemote)
				}
			}
		}
	case Download:
		for p := range remote {
			add(&transfers, p, OpDownload)
		}
		if opts.DeleteExtra {
			for p := range local {
				if _, ok := remote[p]; !ok {
					add(&deletes, p, OpDeleteLocal)
				}
			}
		}
	case Bidirectional:
		for p, l := range local {
			r, ok := remote[p]
			if !ok {
				add(&transfers, p, OpUpload)
				continue
			}
			switch lt, rt := l.ModTime.Unix(), r.ModTime.Unix(); {
			case lt > rt:
				add(&transfers, p, OpUpload)
			case rt > lt:
				add(&transfers, p, OpDownload)
			}
		}
		for p := range remote {
			if _, ok := local[p]; !ok {
				add(&transfers, p, OpDownload)
			}
		}
	}

	byPath := func(a, b Action) int { return strings.Compare(a.Path, b.Path) }
	slices.SortFunc(transfers, byPath)
	slices.SortFunc(deletes, byPath)
	return append(transfers, deletes...)
}

// ErrTypeConflict is a path that is a file on one side of the sync and a
// directory on the other.
var ErrTypeConflict = errors.New("file and directory with the same path")

// TypeConflicts returns, sorted, the paths of the transfers that would write
// a file where the destination has a directory, or below a destination file.
func TypeConflicts(actions []Action, local, remote map[string]Entry) []string {
	localDirs, remoteDirs := dirsOf(local), dirsOf(remote)
	var conflicts []string
	for _, a := range actions {
		var files map[string]Entry
		var dirs map[string]struct{}
		switch a.Op {
		case OpUpload:
			files, dirs = remote, remoteDirs
		case OpDownload:
			files, dirs = local, localDirs
		default:
			continue
		}
		if _, ok := dirs[a.Path]; ok || fileAbove(files, a.Path) {
			conflicts = append(conflicts, a.Path)
		}
	}
	slices.Sort(conflicts)
	return conflicts
}

// dirsOf lists the directories implied by the file paths of a snapshot.
func dirsOf(entries map[string]Entry) map[string]struct{} {
	dirs := make(map[string]struct{})
	for p := range entries {
		for d := path.Dir(p); d != "."; d = path.Dir(d) {
			dirs[d] = struct{}{}
		}
	}
	return dirs
}

func fileAbove(files map[string]Entry, p string) bool {
	for d := path.Dir(p); d != "."; d = path.Dir(d) {
		if _, ok := files[d]; ok {
			return true
		}
	}
	return false
}

// Snapshot enumerates the regular files of fsys that the rules do not exclude.
// A missing root yields an empty snapshot.
func Snapshot(ctx context.Context, fsys fs.FS, rules Rules) (map[string]Entry, error) {
	entries := make(map[string]Entry)
	if _, err := fs.Stat(fsys, "."); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return entries, nil
		}
		return nil, err
	}
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == "." {
			return nil
		}
		if rules.Excluded(p) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !d.Type().IsRegular() {
			slog.Warn("sync skipping file", "file", p, "type", d.Type())
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		entries[p] = Entry{Path: p, Size: info.Size(), ModTime: info.ModTime()}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error walking file tree: %w", err)
	}
	return entries, nil
}
