package env

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.bug.st/f"

	"github.com/slurmdesk/slurmdesk/cmd/feedback"
	"github.com/slurmdesk/slurmdesk/cmd/i18n"
	"github.com/slurmdesk/slurmdesk/cmd/slurmdesk/internal/cmdutil"
	"github.com/slurmdesk/slurmdesk/internal/conda"
	"github.com/slurmdesk/slurmdesk/pkg/tablestyle"
)

func NewEnvCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "env",
		Short: "Manage the conda environments of the cluster",
	}

	cmd.AddCommand(
		newListCmd(),
		newCreateCmd(),
		newRemoveCmd(),
		newPackagesCmd(),
		newInstallCmd(),
		newUninstallCmd(),
	)

	return cmd
}

func manager(cmd *cobra.Command) *conda.Manager {
	return conda.NewManager(cmdutil.MustConnect(cmd.Context()))
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the conda environments",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			envs, err := manager(cmd).List(cmd.Context())
			if err != nil {
				cmdutil.Fatal(err)
			}
			feedback.PrintResult(envsResult{Envs: envs})
		},
	}
}

func newCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a conda environment",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			python := f.Must(cmd.Flags().GetString("python"))
			feedback.Print(i18n.Tr("Creating %s, this can take a few minutes...", args[0]))
			if err := manager(cmd).Create(cmd.Context(), args[0], python); err != nil {
				cmdutil.Fatal(err)
			}
			feedback.Print(i18n.Tr("Environment %s created", args[0]))
		},
	}
	cmd.Flags().String("python", "3.11", "Python version, empty for the conda default")
	return cmd
}

func newRemoveCmd() *cobra.Command {
	var forceYes bool
	cmd := &cobra.Command{
		Use:               "remove <name>",
		Short:             "Remove a conda environment",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: envNames(),
		Run: func(cmd *cobra.Command, args []string) {
			ok, err := cmdutil.Confirm(os.Stdin, i18n.Tr("Remove environment %s?", args[0]), forceYes)
			if err != nil {
				cmdutil.Fatal(err)
			}
			if !ok {
				return
			}
			if err := manager(cmd).Remove(cmd.Context(), args[0]); err != nil {
				cmdutil.Fatal(err)
			}
			feedback.Print(i18n.Tr("Environment %s removed", args[0]))
		},
	}
	cmd.Flags().BoolVar(&forceYes, "yes", false, "Do not ask for confirmation")
	return cmd
}

func newPackagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "packages <env>",
		Short:             "List the pip packages installed in an environment",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: envNames(),
		Run: func(cmd *cobra.Command, args []string) {
			pkgs, err := manager(cmd).Packages(cmd.Context(), args[0])
			if err != nil {
				cmdutil.Fatal(err)
			}
			feedback.PrintResult(packagesResult{Env: args[0], Packages: pkgs})
		},
	}
}

func newInstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "install <env> <package>...",
		Short:   "Install pip packages in an environment",
		Example: "  slurmdesk env install torch 'transformers[torch]' numpy==1.26.4",
		Args:    cobra.MinimumNArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			if err := manager(cmd).Install(cmd.Context(), args[0], args[1:]...); err != nil {
				cmdutil.Fatal(err)
			}
			feedback.Print(i18n.Tr("Installed %s in %s", strings.Join(args[1:], " "), args[0]))
		},
	}
}

func newUninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall <env> <package>...",
		Short: "Uninstall pip packages from an environment",
		Args:  cobra.MinimumNArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			if err := manager(cmd).Uninstall(cmd.Context(), args[0], args[1:]...); err != nil {
				cmdutil.Fatal(err)
			}
			feedback.Print(i18n.Tr("Uninstalled %s from %s", strings.Join(args[1:], " "), args[0]))
		},
	}
}

func envNames() cobra.CompletionFunc {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		s, err := cmdutil.Connect(cmd.Context())
		if err != nil {
			return nil, cobra.ShellCompDirectiveError
		}
		envs, err := conda.NewManager(s).List(cmd.Context())
		if err != nil {
			return nil, cobra.ShellCompDirectiveError
		}
		res := make([]string, 0, len(envs))
		for _, e := range envs {
			res = append(res, e.Name)
		}
		return res, cobra.ShellCompDirectiveNoFileComp
	}
}

type envsResult struct {
	Envs []conda.Env `json:"envs"`
}

func (r envsResult) String() string {
	t := tablestyle.New("", "Name", "Path")
	for _, e := range r.Envs {
		mark := ""
		if e.Active {
			mark = "*"
		}
		t.AppendRow([]any{mark, e.Name, e.Path})
	}
	return t.Render()
}

func (r envsResult) Data() interface{} { return r }

type packagesResult struct {
	Env      string          `json:"env"`
	Packages []conda.Package `json:"packages"`
}

func (r packagesResult) String() string {
	if len(r.Packages) == 0 {
		return i18n.Tr("No packages installed in %s.", r.Env)
	}
	t := tablestyle.New("Package", "Version")
	for _, p := range r.Packages {
		t.AppendRow([]any{p.Name, p.Version})
	}
	return t.Render()
}

func (r packagesResult) Data() interface{} { return r }
