package gpu

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.bug.st/f"

	"github.com/slurmdesk/slurmdesk/cmd/feedback"
	"github.com/slurmdesk/slurmdesk/cmd/i18n"
	"github.com/slurmdesk/slurmdesk/cmd/slurmdesk/completion"
	"github.com/slurmdesk/slurmdesk/cmd/slurmdesk/internal/cmdutil"
	"github.com/slurmdesk/slurmdesk/cmd/slurmdesk/internal/servicelocator"
	"github.com/slurmdesk/slurmdesk/internal/gpuviz"
	"github.com/slurmdesk/slurmdesk/internal/slurm"
	"github.com/slurmdesk/slurmdesk/pkg/tablestyle"
)

func NewGPUCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gpu",
		Short: "Inspect GPU occupancy and choose the node jobs run on",
	}

	cmd.AddCommand(
		newStatusCmd(),
		newSelectCmd(),
		newNodesCmd(),
		newRunCmd(),
	)

	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the GPU slots of every node",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			s := cmdutil.MustConnect(cmd.Context())
			nodes, err := s.RefreshGPUs(cmd.Context())
			if err != nil {
				cmdutil.Fatal(err)
			}
			selected, err := s.SelectedNode()
			if err != nil {
				feedback.Warnf("cannot read the selected node: %v", err)
			}
			feedback.PrintResult(statusResult{Nodes: nodes, Selected: selected})
		},
	}
}

func newSelectCmd() *cobra.Command {
	var unset bool
	cmd := &cobra.Command{
		Use:               "select [node]",
		Short:             "Pin the next jobs on a node",
		Args:              cobra.MaximumNArgs(1),
		ValidArgsFunction: completion.NodeNames(),
		Run: func(cmd *cobra.Command, args []string) {
			s := servicelocator.GetSession()
			if unset {
				if err := s.SelectNode(""); err != nil {
					cmdutil.Fatal(err)
				}
				feedback.Print(i18n.Tr("Node selection cleared"))
				return
			}
			if len(args) == 0 {
				node, err := s.SelectedNode()
				if err != nil {
					cmdutil.Fatal(err)
				}
				feedback.PrintResult(selectedResult{Node: node})
				return
			}
			if err := s.SelectNode(args[0]); err != nil {
				cmdutil.Fatal(err)
			}
			feedback.Print(i18n.Tr("Selected node %s", args[0]))
		},
	}
	cmd.Flags().BoolVar(&unset, "clear", false, "Let Slurm choose the node")
	return cmd
}

func newNodesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "nodes",
		Short: "List the nodes of the partition with sinfo",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			s := cmdutil.MustConnect(cmd.Context())
			nodes, err := s.Nodes(cmd.Context())
			if err != nil {
				cmdutil.Fatal(err)
			}
			feedback.PrintResult(nodesResult{Nodes: nodes})
		},
	}
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run -- <command>",
		Short:   "Run a short command on a GPU node with srun",
		Example: "  slurmdesk gpu run --gpus 1 -- nvidia-smi",
		Args:    cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			s := cmdutil.MustConnect(cmd.Context())
			node := f.Must(cmd.Flags().GetString("node"))
			if node == "" {
				node, _ = s.SelectedNode()
			}
			gpus := f.Must(cmd.Flags().GetInt("gpus"))
			srun := slurm.SrunCommand(s.Config().Settings.Partition, node, gpus, strings.Join(args, " "))
			res, err := s.Exec(cmd.Context(), srun)
			if err != nil {
				cmdutil.Fatal(err)
			}
			stdout, stderr, _ := feedback.OutputStreams()
			fmt.Fprint(stdout, res.Stdout)
			fmt.Fprint(stderr, res.Stderr)
			if err := res.Err(srun); err != nil {
				cmdutil.Fatal(err)
			}
		},
	}
	cmd.Flags().Int("gpus", 1, "Number of GPUs to allocate")
	cmd.Flags().String("node", "", "Node to run on, defaults to the selected one")
	_ = cmd.RegisterFlagCompletionFunc("node", completion.NodeNames())
	return cmd
}

type statusResult struct {
	Nodes    []gpuviz.Node `json:"nodes"`
	Selected string        `json:"selected,omitempty"`
}

func (r statusResult) String() string {
	t := tablestyle.New("", "Node", "GPUs", "Free", "CPU", "Mem")
	placeholder := false
	for _, n := range r.Nodes {
		mark := ""
		if n.Name == r.Selected {
			mark = "*"
		}
		placeholder = placeholder || n.Placeholder
		t.AppendRow([]any{
			mark,
			n.Name,
			tablestyle.Slots(n.Slots, gpuviz.IsFree),
			fmt.Sprintf("%d/%d", n.FreeSlots, n.TotalSlots),
			tablestyle.Percent(n.CPUUsagePercent),
			tablestyle.Percent(n.MemUsagePercent),
		})
	}
	res := t.Render()
	if placeholder {
		res += "\n" + i18n.Tr("GPU status unavailable, showing placeholder nodes.")
	}
	return res
}

func (r statusResult) Data() interface{} { return r }

type selectedResult struct {
	Node string `json:"node"`
}

func (r selectedResult) String() string {
	if r.Node == "" {
		return i18n.Tr("No node selected, Slurm chooses.")
	}
	return r.Node
}

func (r selectedResult) Data() interface{} { return r }

type nodesResult struct {
	Nodes []slurm.NodeRecord `json:"nodes"`
}

func (r nodesResult) String() string {
	t := tablestyle.New("Node", "Partition", "State")
	for _, n := range r.Nodes {
		t.AppendRow([]any{n.Name, n.Partition, n.State})
	}
	return t.Render()
}

func (r nodesResult) Data() interface{} { return r }

