package files

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/kballard/go-shellquote"
	"github.com/spf13/cobra"

	"github.com/slurmdesk/slurmdesk/cmd/feedback"
	"github.com/slurmdesk/slurmdesk/cmd/i18n"
	"github.com/slurmdesk/slurmdesk/cmd/slurmdesk/internal/cmdutil"
	"github.com/slurmdesk/slurmdesk/internal/fatomic"
	"github.com/slurmdesk/slurmdesk/internal/filesync"
	"github.com/slurmdesk/slurmdesk/internal/session"
	"github.com/slurmdesk/slurmdesk/pkg/remote"
	"github.com/slurmdesk/slurmdesk/pkg/remote/ssh"
	"github.com/slurmdesk/slurmdesk/pkg/tablestyle"
)

func NewFSCmd() *cobra.Command {
	fsCmd := &cobra.Command{
		Use:   "fs",
		Short: "Browse and transfer files on the cluster",
		Long:  "Browse and transfer files on the cluster. Relative remote paths are resolved against the remote root.",
	}

	fsCmd.AddCommand(
		newLsCmd(),
		newCatCmd(),
		newRmCmd(),
		newMkdirCmd(),
		newPushCmd(),
		newPullCmd(),
	)

	return fsCmd
}

// Resolve makes p absolute on the cluster, relative paths being rooted at
// root.
func Resolve(root, p string) string {
	if path.IsAbs(p) {
		return path.Clean(p)
	}
	return path.Join(root, p)
}

func remotePath(s *session.Session, args []string) string {
	p := ""
	if len(args) > 0 {
		p = args[0]
	}
	return Resolve(s.Config().Settings.RemoteRoot, p)
}

func newLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls [path]",
		Short: "List a remote directory",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			s := cmdutil.MustConnect(cmd.Context())
			dir := remotePath(s, args)
			out, err := remote.Run(cmd.Context(), s, "ls -la --time-style=+%s "+shellquote.Join(dir))
			if err != nil {
				cmdutil.Fatal(err)
			}
			feedback.PrintResult(lsResult{Path: dir, Files: ssh.ParseLongListing(out)})
		},
	}
}

func newCatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cat <path>",
		Short: "Print a remote file",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			s := cmdutil.MustConnect(cmd.Context())
			rc, err := s.FS().ReadFile(remotePath(s, args))
			if err != nil {
				cmdutil.Fatal(err)
			}
			defer rc.Close()
			stdout, _, _ := feedback.OutputStreams()
			if _, err := io.Copy(stdout, rc); err != nil {
				cmdutil.Fatal(err)
			}
		},
	}
}

func newRmCmd() *cobra.Command {
	var forceYes bool
	cmd := &cobra.Command{
		Use:   "rm <path>",
		Short: "Remove a remote file or directory",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			s := cmdutil.MustConnect(cmd.Context())
			p := remotePath(s, args)
			if p == path.Clean(s.Config().Settings.RemoteRoot) || p == "/" {
				feedback.Fatal(i18n.Tr("refusing to remove %s", p), feedback.ErrBadArgument)
			}
			ok, err := cmdutil.Confirm(os.Stdin, i18n.Tr("Remove %s?", p), forceYes)
			if err != nil {
				cmdutil.Fatal(err)
			}
			if !ok {
				return
			}
			if err := s.FS().Remove(p); err != nil {
				cmdutil.Fatal(err)
			}
		},
	}
	cmd.Flags().BoolVar(&forceYes, "yes", false, "Do not ask for confirmation")
	return cmd
}

func newMkdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <path>",
		Short: "Create a remote directory and its parents",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			s := cmdutil.MustConnect(cmd.Context())
			if err := s.FS().MkDirAll(remotePath(s, args)); err != nil {
				cmdutil.Fatal(err)
			}
		},
	}
}

func newPushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "push <local> <remote>",
		Short: "Copy a local file or directory to the cluster",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			s := cmdutil.MustConnect(cmd.Context())
			local, err := filepath.Abs(args[0])
			if err != nil {
				cmdutil.Fatal(fmt.Errorf("failed to get absolute path of local file: %w", err))
			}
			dst := remotePath(s, args[1:])
			info, err := os.Stat(local)
			if err != nil {
				cmdutil.Fatal(err)
			}

			if !info.IsDir() {
				f, err := os.Open(local)
				if err != nil {
					cmdutil.Fatal(err)
				}
				defer f.Close()
				if err := s.FS().MkDirAll(path.Dir(dst)); err != nil {
					cmdutil.Fatal(err)
				}
				if err := s.FS().WriteFile(f, dst); err != nil {
					cmdutil.Fatal(fmt.Errorf("failed to push files: %w", err))
				}
				feedback.Print(i18n.Tr("Pushed %s (%s)", dst, humanize.Bytes(uint64(info.Size()))))
				return
			}

			if err := s.FS().MkDirAll(dst); err != nil {
				cmdutil.Fatal(err)
			}
			copyTree(cmd, s, local, dst, filesync.Upload)
		},
	}
}

func newPullCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pull <remote> <local>",
		Short: "Copy a remote file or directory to this machine",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			s := cmdutil.MustConnect(cmd.Context())
			src := remotePath(s, args)
			local, err := filepath.Abs(args[1])
			if err != nil {
				cmdutil.Fatal(fmt.Errorf("failed to get absolute path of local file: %w", err))
			}
			info, err := s.FS().Stats(src)
			if err != nil {
				cmdutil.Fatal(err)
			}

			if !info.IsDir {
				rc, err := s.FS().ReadFile(src)
				if err != nil {
					cmdutil.Fatal(err)
				}
				defer rc.Close()
				data, err := io.ReadAll(rc)
				if err != nil {
					cmdutil.Fatal(fmt.Errorf("failed to pull files: %w", err))
				}
				if err := os.MkdirAll(filepath.Dir(local), 0755); err != nil {
					cmdutil.Fatal(err)
				}
				if err := fatomic.WriteFile(local, data, 0644); err != nil {
					cmdutil.Fatal(err)
				}
				feedback.Print(i18n.Tr("Pulled %s (%s)", local, humanize.Bytes(uint64(len(data)))))
				return
			}

			if err := os.MkdirAll(local, 0755); err != nil {
				cmdutil.Fatal(err)
			}
			copyTree(cmd, s, local, src, filesync.Download)
		},
	}
}

// copyTree copies a whole directory with a one way sync engine run, no
// exclusion and no deletion.
func copyTree(cmd *cobra.Command, s *session.Session, local, remoteDir string, mode filesync.Mode) {
	rules, err := filesync.NewRules(nil, true)
	if err != nil {
		cmdutil.Fatal(err)
	}
	e := filesync.NewEngine(s.FS(), filesync.Options{
		LocalRoot:  local,
		RemoteRoot: remoteDir,
		Rules:      rules,
	}, nil)
	sum, err := e.Run(cmd.Context(), mode)
	if err != nil {
		cmdutil.Fatal(err)
	}
	files := sum.Uploaded + sum.Downloaded
	feedback.Print(i18n.Tr("Copied %d files (%s)", files, humanize.Bytes(uint64(sum.Bytes))))
}

type lsResult struct {
	Path  string            `json:"path"`
	Files []remote.FileInfo `json:"files"`
}

func (r lsResult) String() string {
	if len(r.Files) == 0 {
		return i18n.Tr("%s is empty", r.Path)
	}
	t := tablestyle.New("Name", "Size", "Modified")
	for _, f := range r.Files {
		name, size := f.Name, humanize.Bytes(uint64(f.Size))
		if f.IsDir {
			name, size = name+"/", "-"
		}
		t.AppendRow([]any{name, size, humanize.RelTime(f.ModTime, now(), "ago", "from now")})
	}
	return t.Render()
}

func (r lsResult) Data() interface{} { return r }

var now = time.Now
