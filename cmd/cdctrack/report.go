package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/banshee-data/cdctrack/internal/cdc/pipeline"
	"github.com/banshee-data/cdctrack/internal/cdc/report"
	"github.com/banshee-data/cdctrack/internal/cdc/storage/sqlite"
)

type reportOptions struct {
	input   string
	dbPath  string
	runID   string
	output  string
	histDir string
	format  string
	title   string
}

func newReportCmd() *cobra.Command {
	opts := &reportOptions{}
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarise a track file or a stored run",
		Long: `Prints the run totals as JSON. --output writes an HTML page of charts
and --hist-dir writes one histogram image per track quantity.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeReport(cmd, opts)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.input, "input", "i", "", "track file written by run (JSON lines), - for stdin")
	f.StringVar(&opts.dbPath, "db", "", "read the tracks of a stored run instead")
	f.StringVar(&opts.runID, "run", "", "run id in --db; the latest run when empty")
	f.StringVarP(&opts.output, "output", "o", "", "HTML report file")
	f.StringVar(&opts.histDir, "hist-dir", "", "directory for histogram images")
	f.StringVar(&opts.format, "format", "png", "histogram image format")
	f.StringVar(&opts.title, "title", "", "report title")
	cmd.MarkFlagsMutuallyExclusive("input", "db")
	cmd.MarkFlagsOneRequired("input", "db")
	return cmd
}

func writeReport(cmd *cobra.Command, opts *reportOptions) error {
	events, title, err := loadEventRecords(cmd, opts)
	if err != nil {
		return err
	}
	if opts.title != "" {
		title = opts.title
	}

	s := report.NewSummary()
	for _, ev := range events {
		s.Add(ev)
	}

	if opts.output != "" {
		out, err := createOutput(cmd, opts.output)
		if err != nil {
			return err
		}
		if err := s.WriteHTML(out, title); err != nil {
			out.Close()
			return err
		}
		if err := out.Close(); err != nil {
			return err
		}
		diagf("report written to %s", opts.output)
	}
	if opts.histDir != "" {
		if _, err := s.SavePlots(opts.histDir, opts.format); err != nil {
			return err
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(s.Totals)
}

func loadEventRecords(cmd *cobra.Command, opts *reportOptions) ([]pipeline.EventRecord, string, error) {
	if opts.dbPath == "" {
		in, err := openInput(cmd, opts.input)
		if err != nil {
			return nil, "", err
		}
		defer in.Close()
		events, err := readEventRecords(in)
		return events, "Tracks of " + filepath.Base(opts.input), err
	}

	store, err := sqlite.Open(opts.dbPath)
	if err != nil {
		return nil, "", err
	}
	defer store.Close()
	ctx := cmd.Context()
	runID := opts.runID
	if runID == "" {
		runs, err := store.Runs(ctx)
		if err != nil {
			return nil, "", err
		}
		if len(runs) == 0 {
			return nil, "", fmt.Errorf("no runs in %s", opts.dbPath)
		}
		runID = runs[0].RunID
	}
	tracks, err := store.Tracks(ctx, runID)
	if err != nil {
		return nil, "", err
	}
	return report.FromStoredTracks(tracks), "Run " + runID, nil
}
