package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/banshee-data/cdctrack/internal/cdc/display"
	"github.com/banshee-data/cdctrack/internal/cdc/l2hits"
	"github.com/banshee-data/cdctrack/internal/cdc/pipeline"
)

type displayOptions struct {
	input   string
	output  string
	outDir  string
	events  []int
	all     bool
	wires   bool
	noDrift bool
	format  string
}

// errStop ends the event scan early.
var errStop = errors.New("stop")

func newDisplayCmd(root *rootOptions) *cobra.Command {
	opts := &displayOptions{}
	cmd := &cobra.Command{
		Use:   "display",
		Short: "Draw the transverse view of processed events",
		Long: `Runs the track finder over the selected events of an event file and
draws hits, drift circles, segments and tracks. Without --event the first
event is drawn.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return drawEvents(cmd, root, opts)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.input, "input", "i", "-", "event file (JSON lines), - for stdin")
	f.StringVarP(&opts.output, "output", "o", "", "output file for a single event; the extension picks the format")
	f.StringVar(&opts.outDir, "out-dir", "displays", "directory for displays when --output is not set")
	f.IntSliceVarP(&opts.events, "event", "e", nil, "event numbers to draw")
	f.BoolVar(&opts.all, "all", false, "draw every event")
	f.BoolVar(&opts.wires, "wires", false, "draw every sense wire")
	f.BoolVar(&opts.noDrift, "no-drift-circles", false, "omit drift circles")
	f.StringVar(&opts.format, "format", "png", "image format when --output is not set: png, svg or pdf")
	return cmd
}

func drawEvents(cmd *cobra.Command, root *rootOptions, opts *displayOptions) error {
	if opts.output != "" && (opts.all || len(opts.events) > 1) {
		return fmt.Errorf("--output takes a single event; use --out-dir")
	}
	_, cfg, geo, err := root.setup()
	if err != nil {
		return err
	}
	p, err := pipeline.New(geo, cfg)
	if err != nil {
		return err
	}
	dopts := display.DefaultOptions()
	dopts.Wires = opts.wires
	dopts.DriftCircles = !opts.noDrift
	d := display.New(geo.Topology, dopts)

	want := map[int]bool{}
	for _, e := range opts.events {
		want[e] = true
	}
	in, err := openInput(cmd, opts.input)
	if err != nil {
		return err
	}
	defer in.Close()

	drawn := 0
	err = readEvents(in, func(ev l2hits.Event) error {
		if !opts.all && len(want) > 0 && !want[ev.Number] {
			return nil
		}
		res, err := p.ProcessEvent(cmd.Context(), ev)
		if err != nil {
			return err
		}
		path := opts.output
		if path == "" {
			path = filepath.Join(opts.outDir, display.FileName(ev.Number, strings.ToLower(opts.format)))
		}
		if err := d.Save(path, res); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		drawn++
		if !opts.all && (len(want) == 0 || drawn == len(want)) {
			return errStop
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		return err
	}
	if drawn == 0 {
		return fmt.Errorf("no matching event in %s", opts.input)
	}
	return nil
}
