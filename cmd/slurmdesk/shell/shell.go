package shell

import (
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/slurmdesk/slurmdesk/cmd/feedback"
	"github.com/slurmdesk/slurmdesk/cmd/i18n"
	"github.com/slurmdesk/slurmdesk/cmd/slurmdesk/internal/cmdutil"
)

func NewShellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell [command]",
		Short: "Open a login shell on the cluster",
		Args:  cobra.ArbitraryArgs,
		Run: func(cmd *cobra.Command, args []string) {
			stdout, _, err := feedback.DirectStreams()
			if err != nil {
				feedback.Fatal(err.Error(), feedback.ErrBadArgument)
			}
			if !cmdutil.IsInteractive() {
				feedback.Fatal(i18n.Tr("shell needs an interactive terminal"), feedback.ErrBadArgument)
			}
			s := cmdutil.MustConnect(cmd.Context())

			fd := int(os.Stdin.Fd())
			oldState, err := term.MakeRaw(fd)
			if err != nil {
				cmdutil.Fatal(err)
			}
			defer func() { _ = term.Restore(fd, oldState) }()

			stdin, out, closeShell, err := s.Interactive(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				_ = term.Restore(fd, oldState)
				cmdutil.Fatal(err)
			}
			go func() {
				_, _ = io.Copy(stdin, os.Stdin)
				_ = stdin.Close()
			}()
			_, _ = io.Copy(stdout, out)
			if err := closeShell(); err != nil {
				_ = term.Restore(fd, oldState)
				cmdutil.Fatal(err)
			}
		},
	}
}
