package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/arloliu/yieldfit/config"
)

// app holds the settings shared by all subcommands. It is filled by the
// root command before any subcommand runs.
type app struct {
	configPath string
	verbose    bool

	cfg    config.FitConfiguration
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "yieldfit",
		Short: "Signal plus background yield fits",
		Long: `yieldfit fits signal and background yields with a maximum-likelihood
strategy, stores the results with their goodness of fit, and archives runs.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.load,
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "YAML fit configuration file")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Log at debug level")

	root.AddCommand(newDemoCmd(a))
	root.AddCommand(newInspectCmd(a))
	root.AddCommand(newArchiveCmd(a))

	return root
}

func (a *app) load(cmd *cobra.Command, _ []string) error {
	level := slog.LevelInfo
	if a.verbose {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	if a.configPath == "" {
		a.cfg = config.Default()
		return nil
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger.Debug("configuration loaded", "path", a.configPath, "method", cfg.FitMethod.String())

	return nil
}
