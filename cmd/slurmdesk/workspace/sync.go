package workspace

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/progress"
	"github.com/spf13/cobra"
	"go.bug.st/f"

	"github.com/slurmdesk/slurmdesk/cmd/feedback"
	"github.com/slurmdesk/slurmdesk/cmd/i18n"
	"github.com/slurmdesk/slurmdesk/cmd/slurmdesk/internal/cmdutil"
	"github.com/slurmdesk/slurmdesk/cmd/slurmdesk/internal/servicelocator"
	"github.com/slurmdesk/slurmdesk/internal/filesync"
	"github.com/slurmdesk/slurmdesk/internal/session"
	"github.com/slurmdesk/slurmdesk/pkg/tablestyle"
)

func NewSyncCmd() *cobra.Command {
	var dryRun, deleteExtra bool
	cmd := &cobra.Command{
		Use:       "sync [upload|download|both]",
		Short:     "Synchronize the local workspace with the remote root",
		Long:      "Synchronize the local workspace with the remote root. Upload and download copy every file of the source side, both copies the newer side of each file.",
		ValidArgs: []string{"upload", "download", "both"},
		Args:      cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			mode := filesync.Bidirectional
			if len(args) == 1 {
				m, err := filesync.ParseMode(args[0])
				if err != nil {
					feedback.FatalError(err, feedback.ErrBadArgument)
				}
				mode = m
			}
			if cmd.Flags().Changed("delete-extra") {
				servicelocator.GetConfiguration().Settings.Sync.DeleteExtra = deleteExtra
			}

			s := cmdutil.MustConnect(cmd.Context())
			if dryRun {
				actions, err := s.Preview(cmd.Context(), mode)
				if err != nil {
					cmdutil.Fatal(err)
				}
				feedback.PrintResult(previewResult{Mode: mode, Actions: actions})
				return
			}

			stop := trackProgress(s)
			sum, err := s.Sync(cmd.Context(), mode)
			stop()
			if err != nil {
				cmdutil.Fatal(err)
			}
			feedback.PrintResult(summaryResult{sum})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Only print what would be transferred")
	cmd.Flags().BoolVar(&deleteExtra, "delete-extra", false, "Delete destination files missing on the source side (one way modes only)")

	cmd.AddCommand(newWatchCmd())
	return cmd
}

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Upload local changes as they happen, until interrupted",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			debounce := f.Must(cmd.Flags().GetDuration("debounce"))
			s := cmdutil.MustConnect(cmd.Context())

			ch := s.Progress.Subscribe()
			defer s.Progress.Unsubscribe(ch)
			go func() {
				for p := range ch {
					if p.CurrentFile != "" {
						feedback.Printf("%s %s", p.Op, p.CurrentFile)
					}
				}
			}()

			feedback.Print(i18n.Tr("Watching %s, press Ctrl-C to stop", s.Config().Workspace()))
			if err := s.Watch(cmd.Context(), debounce); err != nil && cmd.Context().Err() == nil {
				cmdutil.Fatal(err)
			}
		},
	}
	cmd.Flags().Duration("debounce", filesync.DefaultDebounce, "Quiet period before uploading a burst of changes")
	return cmd
}

// trackProgress renders the sync progress published by s until the returned
// func is called. Nothing is rendered outside interactive text output.
func trackProgress(s *session.Session) func() {
	if feedback.GetFormat() != feedback.Text || !cmdutil.IsInteractive() {
		return func() {}
	}
	stdout, _, err := feedback.DirectStreams()
	if err != nil {
		return func() {}
	}

	pw := progress.NewWriter()
	pw.SetOutputWriter(stdout)
	pw.SetAutoStop(false)
	pw.SetTrackerLength(30)
	pw.SetMessageLength(40)
	pw.SetUpdateFrequency(100 * time.Millisecond)
	pw.SetStyle(progress.StyleDefault)
	go pw.Render()

	tracker := &progress.Tracker{Message: i18n.Tr("Planning"), Units: progress.UnitsDefault}
	pw.AppendTracker(tracker)

	ch := s.Progress.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for p := range ch {
			tracker.UpdateTotal(int64(p.Total))
			if p.Done {
				tracker.UpdateMessage(i18n.Tr("%s done", p.Mode))
				tracker.MarkAsDone()
				continue
			}
			tracker.UpdateMessage(fmt.Sprintf("%s %s", p.Op, p.CurrentFile))
			tracker.SetValue(int64(p.Index))
		}
	}()

	return func() {
		s.Progress.Unsubscribe(ch)
		<-done
		if !tracker.IsDone() {
			tracker.MarkAsErrored()
		}
		pw.Stop()
		for pw.IsRenderInProgress() {
			time.Sleep(10 * time.Millisecond)
		}
	}
}

type previewResult struct {
	Mode    filesync.Mode     `json:"mode"`
	Actions []filesync.Action `json:"actions"`
}

func (r previewResult) String() string {
	if len(r.Actions) == 0 {
		return i18n.Tr("Nothing to do, the workspace is in sync.")
	}
	t := tablestyle.New("Op", "Path")
	for _, a := range r.Actions {
		t.AppendRow([]any{a.Op, a.Path})
	}
	return t.Render()
}

func (r previewResult) Data() interface{} { return r }

type summaryResult struct {
	filesync.Summary
}

func (r summaryResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: ", r.Mode)
	fmt.Fprintf(&b, "%d uploaded, %d downloaded, %d deleted", r.Uploaded, r.Downloaded, r.Deleted)
	fmt.Fprintf(&b, " (%s in %s)", humanize.Bytes(uint64(r.Bytes)), r.Duration.Round(time.Millisecond))
	return b.String()
}

func (r summaryResult) Data() interface{} { return r.Summary }
