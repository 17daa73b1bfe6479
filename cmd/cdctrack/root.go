package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/banshee-data/cdctrack/internal/cdc/l1wires"
	"github.com/banshee-data/cdctrack/internal/cdc/pipeline"
	"github.com/banshee-data/cdctrack/internal/config"
	"github.com/banshee-data/cdctrack/internal/monitoring"
)

// rootOptions are the flags shared by every command.
type rootOptions struct {
	logLevel   string
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "cdctrack",
		Short:         "Drift chamber track finding with a cellular automaton",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setupLogging(cmd)
		},
	}
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "tuning config file (.json, .toml or .yaml); built-in defaults when empty")

	root.AddCommand(
		newRunCmd(opts),
		newGenerateCmd(opts),
		newDisplayCmd(opts),
		newReportCmd(),
		newTrainCmd(),
		newGeometryCmd(opts),
		newVersionCmd(),
	)
	return root
}

// setupLogging applies --log-level, or the config file's log_level when
// the flag was not given.
func (o *rootOptions) setupLogging(cmd *cobra.Command) error {
	name := o.logLevel
	if !cmd.Flags().Changed("log-level") && o.configPath != "" {
		if tc, err := o.tuning(); err == nil {
			name = tc.GetLogLevel()
		}
	}
	level, err := monitoring.ParseLevel(name)
	if err != nil {
		return err
	}
	monitoring.SetOutput(cmd.ErrOrStderr(), level)
	return nil
}

// tuning loads --config, or an empty config whose accessors return the
// defaults.
func (o *rootOptions) tuning() (*config.TuningConfig, error) {
	if o.configPath == "" {
		return config.EmptyTuningConfig(), nil
	}
	return config.LoadTuningConfig(o.configPath)
}

// setup resolves the configuration and builds the chamber.
func (o *rootOptions) setup() (*config.TuningConfig, pipeline.Config, *l1wires.Service, error) {
	tc, err := o.tuning()
	if err != nil {
		return nil, pipeline.Config{}, nil, err
	}
	cfg, err := pipeline.ConfigFromTuning(tc)
	if err != nil {
		return nil, pipeline.Config{}, nil, err
	}
	geo, err := pipeline.NewGeometry(cfg)
	if err != nil {
		return nil, pipeline.Config{}, nil, fmt.Errorf("build geometry: %w", err)
	}
	return tc, cfg, geo, nil
}
