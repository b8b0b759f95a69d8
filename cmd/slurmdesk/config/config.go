package config

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/slurmdesk/slurmdesk/cmd/feedback"
	"github.com/slurmdesk/slurmdesk/cmd/i18n"
	"github.com/slurmdesk/slurmdesk/cmd/slurmdesk/completion"
	"github.com/slurmdesk/slurmdesk/cmd/slurmdesk/internal/cmdutil"
	"github.com/slurmdesk/slurmdesk/cmd/slurmdesk/internal/servicelocator"
	"github.com/slurmdesk/slurmdesk/internal/config"
)

func NewConfigCmd() *cobra.Command {
	appCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage slurmdesk config",
	}

	appCmd.AddCommand(
		newConfigGetCmd(),
		newConfigSetCmd(),
		newConfigKeysCmd(),
	)

	return appCmd
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "get [key]",
		Short:             "Print the configuration, or a single setting",
		Args:              cobra.MaximumNArgs(1),
		ValidArgsFunction: completion.ConfigKeys(config.Keys()),
		Run: func(cmd *cobra.Command, args []string) {
			cfg := servicelocator.GetConfiguration()
			if len(args) == 1 {
				v, err := cfg.Get(args[0])
				if err != nil {
					feedback.FatalError(err, feedback.ErrBadArgument)
				}
				feedback.PrintResult(valueResult{Key: args[0], Value: v})
				return
			}
			feedback.PrintResult(newConfigResult(cfg))
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "set <key> <value>",
		Short:             "Change a setting and save it in config.yaml",
		Example:           "  slurmdesk config set host login.hpc.example.org\n  slurmdesk config set sync.exclude '*.ckpt,wandb/'",
		Args:              cobra.ExactArgs(2),
		ValidArgsFunction: completion.ConfigKeys(config.Keys()),
		Run: func(cmd *cobra.Command, args []string) {
			cfg := servicelocator.GetConfiguration()
			if err := cfg.Set(args[0], args[1]); err != nil {
				feedback.FatalError(err, feedback.ErrBadArgument)
			}
			if err := cfg.Save(); err != nil {
				cmdutil.Fatal(err)
			}
			feedback.Print(i18n.Tr("%s saved in %s", args[0], cfg.SettingsFile()))
		},
	}
}

func newConfigKeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List the settings accepted by get and set",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			feedback.PrintResult(keysResult{Keys: config.Keys()})
		},
	}
}

type configResult struct {
	Directories struct {
		Config    string `json:"config"`
		Data      string `json:"data"`
		Workspace string `json:"workspace"`
	} `json:"directories"`
	Settings config.Settings `json:"settings"`
	values   map[string]string
}

func newConfigResult(cfg *config.Configuration) configResult {
	var r configResult
	r.Directories.Config = cfg.ConfigDir().String()
	r.Directories.Data = cfg.DataDir().String()
	r.Directories.Workspace = cfg.Workspace().String()
	r.Settings = cfg.Settings
	r.values = map[string]string{}
	for _, k := range config.Keys() {
		r.values[k], _ = cfg.Get(k)
	}
	return r
}

func (r configResult) String() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("Config Directory:    %s\n", r.Directories.Config))
	b.WriteString(fmt.Sprintf("Data Directory:      %s\n", r.Directories.Data))
	b.WriteString(fmt.Sprintf("Workspace Directory: %s\n", r.Directories.Workspace))
	b.WriteString("\n")
	for _, k := range config.Keys() {
		b.WriteString(fmt.Sprintf("%-20s %s\n", k, r.values[k]))
	}

	return b.String()
}

func (r configResult) Data() interface{} {
	return r
}

type valueResult struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (r valueResult) String() string { return r.Value }

func (r valueResult) Data() interface{} { return r }

type keysResult struct {
	Keys []string `json:"keys"`
}

func (r keysResult) String() string { return strings.Join(r.Keys, "\n") }

func (r keysResult) Data() interface{} { return r }
