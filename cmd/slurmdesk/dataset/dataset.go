package dataset

import (
	"github.com/spf13/cobra"

	"github.com/slurmdesk/slurmdesk/cmd/feedback"
	"github.com/slurmdesk/slurmdesk/cmd/i18n"
	"github.com/slurmdesk/slurmdesk/cmd/slurmdesk/internal/cmdutil"
	"github.com/slurmdesk/slurmdesk/internal/dataset"
)

func NewDatasetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dataset",
		Short: "Prepare datasets stored on the cluster",
	}
	cmd.AddCommand(newExtractCmd())
	return cmd
}

func newExtractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract <archive> <destination>",
		Short: "Extract a zip or tar archive, or copy a directory, on the cluster",
		Long:  "Extract a zip or tar archive, or copy a directory, on the cluster. Relative paths are resolved against the remote root.",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			s := cmdutil.MustConnect(cmd.Context())
			kind := dataset.KindOf(args[0])
			feedback.Print(i18n.Tr("Extracting %s (%s) into %s...", args[0], kind, args[1]))
			if err := dataset.Extract(cmd.Context(), s, s.Config().Settings.RemoteRoot, args[0], args[1]); err != nil {
				cmdutil.Fatal(err)
			}
			feedback.Print(i18n.Tr("Done"))
		},
	}
}
