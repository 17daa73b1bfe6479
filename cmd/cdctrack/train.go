package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/banshee-data/cdctrack/internal/cdc/filter"
	"github.com/banshee-data/cdctrack/internal/cdc/storage/sqlite"
	"github.com/banshee-data/cdctrack/internal/config"
)

type trainOptions struct {
	dbPath string
	runID  string
	stage  string
	output string
	l2     float64
	cut    float64
}

func newTrainCmd() *cobra.Command {
	opts := &trainOptions{}
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Fit a stage classifier to recorded filter inputs",
		Long: `Loads the rows a recording filter stored for one stage and fits a
logistic model. Point the stage's "mva" filter at the weights file to use
it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return trainModel(cmd, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.dbPath, "db", "", "sqlite database written by run --db")
	f.StringVar(&opts.runID, "run", "", "run id; every run that recorded the stage when empty")
	f.StringVar(&opts.stage, "stage", config.StageFacet, "filter stage")
	f.StringVarP(&opts.output, "output", "o", "", "weights file (JSON)")
	f.Float64Var(&opts.l2, "l2", 0.01, "ridge penalty")
	f.Float64Var(&opts.cut, "cut", 0.5, "probability cut stored with the model")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func trainModel(cmd *cobra.Command, opts *trainOptions) error {
	store, err := sqlite.Open(opts.dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	names, rows, err := store.LoadRecords(cmd.Context(), opts.runID, opts.stage)
	if err != nil {
		return err
	}
	model, err := filter.Train(names, rows, filter.TrainOptions{L2: opts.l2, Cut: opts.cut})
	if err != nil {
		return fmt.Errorf("train %s: %w", opts.stage, err)
	}
	if err := model.Save(opts.output); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d rows, %d variables -> %s\n", opts.stage, len(rows), len(names), opts.output)
	return nil
}
