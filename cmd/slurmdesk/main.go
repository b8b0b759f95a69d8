package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.bug.st/cleanup"

	"github.com/slurmdesk/slurmdesk/cmd/feedback"
	"github.com/slurmdesk/slurmdesk/cmd/i18n"
	"github.com/slurmdesk/slurmdesk/cmd/slurmdesk/completion"
	"github.com/slurmdesk/slurmdesk/cmd/slurmdesk/config"
	"github.com/slurmdesk/slurmdesk/cmd/slurmdesk/daemon"
	"github.com/slurmdesk/slurmdesk/cmd/slurmdesk/dataset"
	"github.com/slurmdesk/slurmdesk/cmd/slurmdesk/env"
	"github.com/slurmdesk/slurmdesk/cmd/slurmdesk/files"
	"github.com/slurmdesk/slurmdesk/cmd/slurmdesk/gpu"
	"github.com/slurmdesk/slurmdesk/cmd/slurmdesk/internal/cmdutil"
	"github.com/slurmdesk/slurmdesk/cmd/slurmdesk/internal/servicelocator"
	"github.com/slurmdesk/slurmdesk/cmd/slurmdesk/job"
	"github.com/slurmdesk/slurmdesk/cmd/slurmdesk/shell"
	"github.com/slurmdesk/slurmdesk/cmd/slurmdesk/status"
	"github.com/slurmdesk/slurmdesk/cmd/slurmdesk/system"
	"github.com/slurmdesk/slurmdesk/cmd/slurmdesk/version"
	"github.com/slurmdesk/slurmdesk/cmd/slurmdesk/workspace"
	cfg "github.com/slurmdesk/slurmdesk/internal/config"
)

// Version is set at build time with -ldflags.
var Version = "0.0.0-dev"

type globalFlags struct {
	format   string
	logLevel string
	timeout  time.Duration
}

// apply runs before every command. Flag errors are fatal.
func (g *globalFlags) apply(cmd *cobra.Command) {
	format, ok := feedback.ParseOutputFormat(g.format)
	if !ok {
		feedback.Fatal(i18n.Tr("Invalid output format: %s", g.format), feedback.ErrBadArgument)
	}
	feedback.SetFormat(format)

	level, err := ParseLogLevel(g.logLevel)
	if err != nil {
		feedback.FatalError(err, feedback.ErrBadArgument)
	}
	slog.SetLogLoggerLevel(level)

	if cmd.Flags().Changed("timeout") {
		servicelocator.GetConfiguration().Settings.CommandTimeout = cfg.Duration(g.timeout)
	}
}

func newRootCmd(defaultTimeout time.Duration) *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "slurmdesk",
		Short:         "Work on a Slurm GPU cluster from your laptop",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			flags.apply(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.format, "format", "text", "Output format (text, json, jsonmini, yaml)")
	pf.StringVar(&flags.logLevel, "log-level", "error", "Set the log level (debug, info, warn, error)")
	pf.DurationVar(&flags.timeout, "timeout", defaultTimeout, "Timeout of every remote command, 0 to wait forever")

	root.AddCommand(
		completion.NewCompletionCommand(),
		config.NewConfigCmd(),
		daemon.NewDaemonCmd(Version),
		dataset.NewDatasetCmd(),
		env.NewEnvCmd(),
		files.NewFSCmd(),
		gpu.NewGPUCmd(),
		job.NewJobCmd(),
		shell.NewShellCmd(),
		status.NewStatusCmd(),
		system.NewSystemCmd(),
		version.NewVersionCmd(Version),
		workspace.NewSyncCmd(),
	)
	return root
}

func run(configuration cfg.Configuration) error {
	servicelocator.Init(configuration)
	defer func() { _ = servicelocator.CloseSession() }()

	ctx, _ := cleanup.InterruptableContext(context.Background())
	return newRootCmd(time.Duration(configuration.Settings.CommandTimeout)).ExecuteContext(ctx)
}

func main() {
	i18n.Init(os.Getenv("SLURMDESK_LOCALE_FILE"))

	configuration, err := cfg.NewFromEnv()
	if err != nil {
		feedback.Fatal(fmt.Sprintf("invalid config: %s", err), feedback.ErrConfiguration)
	}
	if err := run(configuration); err != nil {
		cmdutil.Fatal(err)
	}
}

func ParseLogLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return 0, fmt.Errorf("invalid log level: %w", err)
	}
	return l, nil
}
