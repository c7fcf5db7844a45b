package main

import (
	"github.com/spf13/cobra"

	"github.com/kimhsiao/fieldsync/backend/internal/config"
	"github.com/kimhsiao/fieldsync/backend/internal/logging"
)

// rootOptions holds global flags for all commands.
type rootOptions struct {
	ConfigPath string
	DataDir    string
	Backend    string
	LogLevel   string

	// cfg is populated by the root PersistentPreRunE.
	cfg *config.Config
}

// newRootCommand creates the root command for the fieldsync CLI.
func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "fieldsync",
		Short:         "Offline submission queue for field forms",
		Long:          "Stores form completions that could not be sent and delivers them when the backend is reachable again.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&opts.DataDir, "data-dir", "", "directory holding the queue store")
	cmd.PersistentFlags().StringVar(&opts.Backend, "backend", "", "store backend (sqlite|badger|redis)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "minimum log level (DEBUG|INFO|WARN|ERROR)")

	// Add subcommands
	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newEnqueueCommand(opts))
	cmd.AddCommand(newListCommand(opts))
	cmd.AddCommand(newCountCommand(opts))
	cmd.AddCommand(newDrainCommand(opts))
	cmd.AddCommand(newClearCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newConfigCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

// load builds the configuration: file, then environment, then flags.
func (o *rootOptions) load(cmd *cobra.Command) error {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("data-dir") {
		cfg.DataDir = o.DataDir
	}
	if flags.Changed("backend") {
		cfg.Backend = o.Backend
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = o.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logging.Init(cmd.ErrOrStderr(), logging.ParseLevel(cfg.Log.Level))
	o.cfg = cfg
	return nil
}
