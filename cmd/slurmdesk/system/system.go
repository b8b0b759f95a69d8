package system

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	semver "go.bug.st/relaxed-semver"

	"github.com/slurmdesk/slurmdesk/cmd/feedback"
	"github.com/slurmdesk/slurmdesk/cmd/i18n"
	"github.com/slurmdesk/slurmdesk/cmd/slurmdesk/internal/cmdutil"
	"github.com/slurmdesk/slurmdesk/cmd/slurmdesk/internal/servicelocator"
	"github.com/slurmdesk/slurmdesk/pkg/remote"
	"github.com/slurmdesk/slurmdesk/pkg/tablestyle"
)

func NewSystemCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "system",
		Short: "Check the cluster tooling and the local state",
	}

	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newStateCmd())

	return cmd
}

type Tool struct {
	Name     string
	Command  string
	Min      string
	Optional bool
}

// Tools are the programs the cluster must provide.
var Tools = []Tool{
	{Name: "slurm", Command: "sbatch --version", Min: "20.11.0"},
	{Name: "conda", Command: "conda --version", Min: "4.6.0"},
	{Name: "python", Command: "python3 --version", Min: "3.8.0"},
	{Name: "slurm-gres-viz", Command: "slurm-gres-viz --version", Optional: true},
}

type CheckStatus string

const (
	CheckOK       CheckStatus = "ok"
	CheckOutdated CheckStatus = "outdated"
	CheckMissing  CheckStatus = "missing"
)

type Check struct {
	Tool     string      `json:"tool"`
	Version  string      `json:"version,omitempty"`
	Min      string      `json:"min,omitempty"`
	Status   CheckStatus `json:"status"`
	Optional bool        `json:"optional,omitempty"`
}

var versionRe = regexp.MustCompile(`(\d+)(?:\.(\d+))?(?:\.(\d+))?`)

// ExtractVersion finds the first dotted version number in out and returns
// it with three components, leading zeros dropped (slurm prints 23.02.6).
func ExtractVersion(out string) (*semver.Version, bool) {
	m := versionRe.FindStringSubmatch(out)
	if m == nil {
		return nil, false
	}
	parts := make([]string, 3)
	for i := range parts {
		n, _ := strconv.Atoi(m[i+1])
		parts[i] = strconv.Itoa(n)
	}
	v, err := semver.Parse(strings.Join(parts, "."))
	if err != nil {
		return nil, false
	}
	return v, true
}

// Doctor runs every tool check on shell.
func Doctor(ctx context.Context, shell remote.Shell, tools []Tool) []Check {
	checks := make([]Check, 0, len(tools))
	for _, t := range tools {
		c := Check{Tool: t.Name, Min: t.Min, Optional: t.Optional, Status: CheckMissing}
		res, err := shell.Exec(ctx, t.Command)
		if err != nil || res.Code != 0 {
			checks = append(checks, c)
			continue
		}
		v, ok := ExtractVersion(res.Stdout + "\n" + res.Stderr)
		if !ok {
			c.Status = CheckOK
			checks = append(checks, c)
			continue
		}
		c.Version = v.String()
		c.Status = CheckOK
		if t.Min != "" && v.LessThan(semver.MustParse(t.Min)) {
			c.Status = CheckOutdated
		}
		checks = append(checks, c)
	}
	return checks
}

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check that the cluster provides the tools slurmdesk relies on",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			s := cmdutil.MustConnect(cmd.Context())
			res := doctorResult{Checks: Doctor(cmd.Context(), s, Tools)}
			if res.Failed() {
				feedback.FatalResult(res, feedback.ErrRemoteCommand)
			}
			feedback.PrintResult(res)
		},
	}
}

func newStateCmd() *cobra.Command {
	var reset bool
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Print or reset the state kept between runs (selected node, recent jobs)",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			store := servicelocator.GetStateStore()
			keys, err := store.Keys()
			if err != nil {
				cmdutil.Fatal(err)
			}
			if reset {
				for _, k := range keys {
					if _, err := store.Delete(k); err != nil {
						cmdutil.Fatal(err)
					}
				}
				feedback.Print(i18n.Tr("State reset"))
				return
			}
			res := stateResult{Path: store.Path()}
			res.SelectedNode, _ = store.SelectedNode()
			res.RecentJobs, _ = store.RecentJobs()
			res.Keys = keys
			feedback.PrintResult(res)
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "Delete every stored value")
	return cmd
}

type doctorResult struct {
	Checks []Check `json:"checks"`
}

func (r doctorResult) Failed() bool {
	for _, c := range r.Checks {
		if c.Status != CheckOK && !c.Optional {
			return true
		}
	}
	return false
}

func (r doctorResult) String() string {
	t := tablestyle.New("Tool", "Version", "Minimum", "Status")
	for _, c := range r.Checks {
		status := string(c.Status)
		if c.Optional && c.Status == CheckMissing {
			status += " (optional)"
		}
		t.AppendRow([]any{c.Tool, c.Version, c.Min, tablestyle.Status(status)})
	}
	return t.Render()
}

func (r doctorResult) Data() interface{} { return r }

func (r doctorResult) ErrorString() string {
	var missing []string
	for _, c := range r.Checks {
		if c.Status != CheckOK && !c.Optional {
			missing = append(missing, fmt.Sprintf("%s is %s", c.Tool, c.Status))
		}
	}
	return strings.Join(missing, "\n")
}

type stateResult struct {
	Path         string   `json:"path"`
	SelectedNode string   `json:"selected_node,omitempty"`
	RecentJobs   []string `json:"recent_jobs,omitempty"`
	Keys         []string `json:"keys"`
}

func (r stateResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "State file:    %s\n", r.Path)
	fmt.Fprintf(&b, "Selected node: %s\n", r.SelectedNode)
	fmt.Fprintf(&b, "Recent jobs:   %s", strings.Join(r.RecentJobs, ", "))
	return b.String()
}

func (r stateResult) Data() interface{} { return r }
