package status

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/slurmdesk/slurmdesk/cmd/feedback"
	"github.com/slurmdesk/slurmdesk/cmd/slurmdesk/internal/cmdutil"
	"github.com/slurmdesk/slurmdesk/internal/session"
	"github.com/slurmdesk/slurmdesk/internal/slurm"
	"github.com/slurmdesk/slurmdesk/pkg/tablestyle"
)

func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Connect to the cluster and print a summary of jobs and GPUs",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			s, err := cmdutil.Connect(cmd.Context())
			res := statusResult{
				Host:  s.Config().Settings.Host,
				User:  s.Config().Settings.Username,
				State: s.State(),
			}
			if err != nil {
				res.Error = err.Error()
				feedback.FatalResult(res, cmdutil.ExitCodeOf(err))
			}

			jobs, err := s.RefreshJobs(cmd.Context())
			if err != nil {
				cmdutil.Fatal(err)
			}
			for _, j := range jobs {
				res.Jobs++
				if j.Status == slurm.StatusRunning {
					res.Running++
				}
			}
			nodes, err := s.RefreshGPUs(cmd.Context())
			if err != nil {
				cmdutil.Fatal(err)
			}
			for _, n := range nodes {
				res.FreeGPUs += n.FreeSlots
				res.Placeholder = res.Placeholder || n.Placeholder
			}
			res.Selected, _ = s.SelectedNode()
			feedback.PrintResult(res)
		},
	}
}

type statusResult struct {
	Host        string        `json:"host"`
	User        string        `json:"user"`
	State       session.State `json:"state"`
	Error       string        `json:"error,omitempty"`
	Jobs        int           `json:"jobs"`
	Running     int           `json:"running"`
	FreeGPUs    int           `json:"free_gpus"`
	Placeholder bool          `json:"placeholder,omitempty"`
	Selected    string        `json:"selected_node,omitempty"`
}

func (r statusResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s@%s: %s\n", r.User, r.Host, tablestyle.Status(r.State.String()))
	if r.Error != "" {
		return b.String()
	}
	fmt.Fprintf(&b, "Jobs:      %d (%d running)\n", r.Jobs, r.Running)
	if r.Placeholder {
		fmt.Fprintf(&b, "Free GPUs: unknown\n")
	} else {
		fmt.Fprintf(&b, "Free GPUs: %d\n", r.FreeGPUs)
	}
	if r.Selected != "" {
		fmt.Fprintf(&b, "Node:      %s\n", r.Selected)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (r statusResult) Data() interface{} { return r }

func (r statusResult) ErrorString() string { return r.Error }
