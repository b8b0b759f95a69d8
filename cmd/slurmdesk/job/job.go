package job

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
	"github.com/spf13/cobra"
	"go.bug.st/f"

	"github.com/slurmdesk/slurmdesk/cmd/feedback"
	"github.com/slurmdesk/slurmdesk/cmd/i18n"
	"github.com/slurmdesk/slurmdesk/cmd/slurmdesk/completion"
	"github.com/slurmdesk/slurmdesk/cmd/slurmdesk/internal/cmdutil"
	"github.com/slurmdesk/slurmdesk/cmd/slurmdesk/internal/servicelocator"
	"github.com/slurmdesk/slurmdesk/internal/slurm"
	"github.com/slurmdesk/slurmdesk/pkg/tablestyle"
)

func NewJobCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Submit, list and cancel batch jobs",
	}

	cmd.AddCommand(
		newSubmitCmd(),
		newListCmd(),
		newCancelCmd(),
		newLogCmd(),
		newRecentCmd(),
	)

	return cmd
}

func newSubmitCmd() *cobra.Command {
	var (
		gpus, cpusPerGPU, memPerGPU int
		node, partition, timeLimit  string
		condaEnv                    string
		edit, dryRun                bool
	)
	cmd := &cobra.Command{
		Use:   "submit <name> <script>",
		Short: "Generate a batch script for a training script and submit it with sbatch",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			s := servicelocator.GetSession()
			req := s.NewJobRequest(args[0], args[1])
			flags := cmd.Flags()
			if flags.Changed("gpus") {
				req.GPUCount = gpus
			}
			if flags.Changed("cpus-per-gpu") {
				req.CPUsPerGPU = cpusPerGPU
			}
			if flags.Changed("mem-per-gpu") {
				req.MemoryPerGPU = memPerGPU
			}
			if flags.Changed("node") {
				req.Node = node
			}
			if flags.Changed("partition") {
				req.Partition = partition
			}
			if flags.Changed("time") {
				req.TimeLimit = timeLimit
			}
			if flags.Changed("conda-env") {
				req.CondaEnv = condaEnv
			}

			if dryRun {
				script, err := slurm.RenderBatchScript(req)
				if err != nil {
					cmdutil.Fatal(err)
				}
				feedback.PrintResult(scriptResult{Request: req, Script: script})
				return
			}

			var review slurm.ReviewFunc
			if edit {
				review = editWithEditor
			}
			s = cmdutil.MustConnect(cmd.Context())
			sub, err := s.SubmitJob(cmd.Context(), req, review)
			if err != nil {
				cmdutil.Fatal(err)
			}
			feedback.PrintResult(submitResult{sub})
		},
	}
	cmd.Flags().IntVar(&gpus, "gpus", 0, "Number of GPUs")
	cmd.Flags().IntVar(&cpusPerGPU, "cpus-per-gpu", 0, "CPU cores per GPU")
	cmd.Flags().IntVar(&memPerGPU, "mem-per-gpu", 0, "Memory per GPU in GiB")
	cmd.Flags().StringVar(&node, "node", "", "Pin the job on a node, defaults to the selected one")
	cmd.Flags().StringVar(&partition, "partition", "", "Slurm partition")
	cmd.Flags().StringVar(&timeLimit, "time", "", "Time limit ([D-]HH:MM:SS)")
	cmd.Flags().StringVar(&condaEnv, "conda-env", "", "Conda environment activated before the script")
	cmd.Flags().BoolVar(&edit, "edit", false, "Review the batch script in $EDITOR before submitting")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the batch script without submitting it")
	_ = cmd.RegisterFlagCompletionFunc("node", completion.NodeNames())
	return cmd
}

// editWithEditor opens the script in $VISUAL or $EDITOR and waits for it.
func editWithEditor(ctx context.Context, path string) error {
	editor := os.Getenv("VISUAL")
	if editor == "" {
		editor = os.Getenv("EDITOR")
	}
	if editor == "" {
		editor = "vi"
	}
	argv, err := shellquote.Split(editor)
	if err != nil || len(argv) == 0 {
		return fmt.Errorf("invalid editor %q", editor)
	}
	c := exec.CommandContext(ctx, argv[0], append(argv[1:], path)...)
	c.Stdin, c.Stdout, c.Stderr = os.Stdin, os.Stdout, os.Stderr
	if err := c.Run(); err != nil {
		return fmt.Errorf("editor %s: %w", argv[0], err)
	}
	return nil
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your jobs in the queue",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			s := cmdutil.MustConnect(cmd.Context())
			jobs, err := s.RefreshJobs(cmd.Context())
			if err != nil {
				cmdutil.Fatal(err)
			}
			feedback.PrintResult(jobListResult{Jobs: jobs})
		},
	}
}

func newCancelCmd() *cobra.Command {
	var forceYes bool
	cmd := &cobra.Command{
		Use:               "cancel <job-id>...",
		Short:             "Cancel jobs with scancel",
		Args:              cobra.MinimumNArgs(1),
		ValidArgsFunction: completion.JobIDs(),
		Run: func(cmd *cobra.Command, args []string) {
			for _, id := range args {
				if !slurm.ValidJobID(id) {
					feedback.Fatal(i18n.Tr("invalid job id %q", id), feedback.ErrBadArgument)
				}
			}
			ok, err := cmdutil.Confirm(os.Stdin, i18n.Tr("Cancel %s?", strings.Join(args, ", ")), forceYes)
			if err != nil {
				cmdutil.Fatal(err)
			}
			if !ok {
				return
			}
			s := cmdutil.MustConnect(cmd.Context())
			for _, id := range args {
				if err := s.CancelJob(cmd.Context(), id); err != nil {
					cmdutil.Fatal(err)
				}
				feedback.Print(i18n.Tr("Job %s cancelled", id))
			}
		},
	}
	cmd.Flags().BoolVar(&forceYes, "yes", false, "Do not ask for confirmation")
	return cmd
}

func newLogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "log <job-id>",
		Short:             "Print the tail of a job output file",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completion.JobIDs(),
		Run: func(cmd *cobra.Command, args []string) {
			lines := f.Must(cmd.Flags().GetInt("tail"))
			s := cmdutil.MustConnect(cmd.Context())
			jobs, err := s.RefreshJobs(cmd.Context())
			if err != nil {
				cmdutil.Fatal(err)
			}
			job := slurm.JobRecord{ID: args[0], Name: f.Must(cmd.Flags().GetString("name"))}
			for _, j := range jobs {
				if j.ID == args[0] {
					job = j
				}
			}
			if job.Name == "" {
				feedback.Fatal(i18n.Tr("job %s is not in the queue, pass its name with --name", args[0]), feedback.ErrBadArgument)
			}
			out, err := s.JobLog(cmd.Context(), job, lines)
			if err != nil {
				cmdutil.Fatal(err)
			}
			feedback.PrintResult(logResult{JobID: job.ID, Log: out})
		},
	}
	cmd.Flags().Int("tail", 100, "Number of lines to print")
	cmd.Flags().String("name", "", "Job name, needed for jobs no longer in the queue")
	return cmd
}

func newRecentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recent",
		Short: "List the ids of the jobs recently submitted from this machine",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			ids, err := servicelocator.GetStateStore().RecentJobs()
			if err != nil {
				cmdutil.Fatal(err)
			}
			feedback.PrintResult(recentResult{IDs: ids})
		},
	}
}

type scriptResult struct {
	Request slurm.JobRequest `json:"request"`
	Script  string           `json:"script"`
}

func (r scriptResult) String() string { return r.Script }

func (r scriptResult) Data() interface{} { return r }

type submitResult struct {
	slurm.Submission
}

func (r submitResult) String() string {
	return i18n.Tr("Submitted batch job %s (script %s)", r.JobID, r.RemoteScript)
}

func (r submitResult) Data() interface{} { return r.Submission }

type jobListResult struct {
	Jobs []slurm.JobRecord `json:"jobs"`
}

func (r jobListResult) String() string {
	if len(r.Jobs) == 0 {
		return i18n.Tr("No jobs in the queue.")
	}
	t := tablestyle.New("ID", "Name", "Status", "Node", "Partition", "Time limit", "Submitted")
	for _, j := range r.Jobs {
		submitted := ""
		if !j.SubmittedAt.IsZero() {
			submitted = j.SubmittedAt.Format(time.DateTime)
		}
		t.AppendRow([]any{j.ID, j.Name, tablestyle.Status(string(j.Status)), j.Node, j.Partition, j.TimeLimit, submitted})
	}
	return t.Render()
}

func (r jobListResult) Data() interface{} { return r }

type logResult struct {
	JobID string `json:"job_id"`
	Log   string `json:"log"`
}

func (r logResult) String() string { return strings.TrimRight(r.Log, "\n") }

func (r logResult) Data() interface{} { return r }

type recentResult struct {
	IDs []string `json:"ids"`
}

func (r recentResult) String() string {
	if len(r.IDs) == 0 {
		return i18n.Tr("No jobs submitted yet.")
	}
	return strings.Join(r.IDs, "\n")
}

func (r recentResult) Data() interface{} { return r }
