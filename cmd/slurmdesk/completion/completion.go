package completion

import (
	"io"
	"maps"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/slurmdesk/slurmdesk/cmd/feedback"
	"github.com/slurmdesk/slurmdesk/cmd/slurmdesk/internal/cmdutil"
	"github.com/slurmdesk/slurmdesk/cmd/slurmdesk/internal/servicelocator"
	"github.com/slurmdesk/slurmdesk/internal/session"
)

type scriptGenerator func(root *cobra.Command, w io.Writer, descriptions bool) error

var generators = map[string]scriptGenerator{
	"bash": func(root *cobra.Command, w io.Writer, descriptions bool) error {
		return root.GenBashCompletionV2(w, descriptions)
	},
	"zsh": func(root *cobra.Command, w io.Writer, descriptions bool) error {
		if !descriptions {
			return root.GenZshCompletionNoDesc(w)
		}
		return root.GenZshCompletion(w)
	},
	"fish": func(root *cobra.Command, w io.Writer, descriptions bool) error {
		return root.GenFishCompletion(w, descriptions)
	},
	"powershell": func(root *cobra.Command, w io.Writer, descriptions bool) error {
		if !descriptions {
			return root.GenPowerShellCompletion(w)
		}
		return root.GenPowerShellCompletionWithDesc(w)
	},
}

func NewCompletionCommand() *cobra.Command {
	var noDescriptions bool
	cmd := &cobra.Command{
		Use:       "completion [bash|zsh|fish|powershell]",
		ValidArgs: slices.Sorted(maps.Keys(generators)),
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		Short:     "Generates completion scripts",
		Long: "Generates the completion script of a shell. Job ids complete from the jobs submitted on this " +
			"machine, node names from the cluster when the credentials are in the environment.",
		Example: "  " + os.Args[0] + " completion bash > ~/.local/share/bash-completion/completions/slurmdesk",
		Run: func(cmd *cobra.Command, args []string) {
			stdout, _, err := feedback.DirectStreams()
			if err != nil {
				feedback.Fatal(err.Error(), feedback.ErrBadArgument)
				return
			}
			if err := generators[args[0]](cmd.Root(), stdout, !noDescriptions); err != nil {
				feedback.Fatal(err.Error(), feedback.ErrGeneric)
			}
		},
	}
	cmd.Flags().BoolVar(&noDescriptions, "no-descriptions", false, "Disable completion description for shells that support it")
	return cmd
}

// JobIDs completes with the jobs recently submitted from this machine. It
// never contacts the cluster.
func JobIDs() cobra.CompletionFunc {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		ids, err := servicelocator.GetStateStore().RecentJobs()
		if err != nil {
			return nil, cobra.ShellCompDirectiveError
		}
		return ids, cobra.ShellCompDirectiveNoFileComp
	}
}

// NodeNames completes with the nodes of the configured partition. Only
// non interactive credentials are used.
func NodeNames() cobra.CompletionFunc {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		s := servicelocator.GetSession()
		cred := session.Credentials{Password: os.Getenv(cmdutil.PasswordEnv), Passphrase: os.Getenv(cmdutil.PassphraseEnv)}
		if err := s.Connect(cmd.Context(), cred); err != nil {
			return nil, cobra.ShellCompDirectiveError
		}
		nodes, err := s.Nodes(cmd.Context())
		if err != nil {
			return nil, cobra.ShellCompDirectiveError
		}
		res := make([]string, 0, len(nodes))
		for _, n := range nodes {
			res = append(res, n.Name)
		}
		return res, cobra.ShellCompDirectiveNoFileComp
	}
}

// ConfigKeys completes with the settings accepted by `config get/set`.
func ConfigKeys(keys []string) cobra.CompletionFunc {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		return keys, cobra.ShellCompDirectiveNoFileComp
	}
}
