package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/banshee-data/cdctrack/internal/cdc/pipeline"
	"github.com/banshee-data/cdctrack/internal/cdc/synthetic"
)

type generateOptions struct {
	output     string
	truth      string
	events     int
	tracks     int
	seed       uint64
	noise      int
	sigma      float64
	efficiency float64
}

func newGenerateCmd(root *rootOptions) *cobra.Command {
	opts := &generateOptions{}
	def := synthetic.DefaultConfig()
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Simulate toy events with random helices",
		RunE: func(cmd *cobra.Command, args []string) error {
			return generateEvents(cmd, root, opts)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.output, "output", "o", "-", "event file (JSON lines), - for stdout")
	f.StringVar(&opts.truth, "truth", "", "also write the simulated track parameters of each event (JSON lines)")
	f.IntVarP(&opts.events, "events", "n", 10, "number of events")
	f.IntVar(&opts.tracks, "tracks", 2, "tracks per event")
	f.Uint64Var(&opts.seed, "seed", 1, "random seed; equal seeds give equal files")
	f.IntVar(&opts.noise, "noise", def.NoiseHits, "background hits per event")
	f.Float64Var(&opts.sigma, "sigma", def.DriftSigma, "drift length smearing (cm)")
	f.Float64Var(&opts.efficiency, "efficiency", def.Efficiency, "hit efficiency per crossed layer")
	return cmd
}

type truthRecord struct {
	Event  int                     `json:"event"`
	Tracks []synthetic.TrackParams `json:"tracks"`
}

func generateEvents(cmd *cobra.Command, root *rootOptions, opts *generateOptions) error {
	if opts.events < 0 || opts.tracks < 0 {
		return fmt.Errorf("--events and --tracks must not be negative")
	}
	_, cfg, geo, err := root.setup()
	if err != nil {
		return err
	}
	scfg := synthetic.DefaultConfig()
	scfg.NoiseHits = opts.noise
	scfg.DriftSigma = opts.sigma
	scfg.Efficiency = opts.efficiency
	gen, err := synthetic.NewGenerator(geo, pipeline.NewPreparer(geo, cfg), scfg, opts.seed)
	if err != nil {
		return err
	}

	out, err := createOutput(cmd, opts.output)
	if err != nil {
		return err
	}
	defer out.Close()
	enc := json.NewEncoder(out)

	var truthEnc *json.Encoder
	if opts.truth != "" {
		tf, err := createOutput(cmd, opts.truth)
		if err != nil {
			return err
		}
		defer tf.Close()
		truthEnc = json.NewEncoder(tf)
	}

	hits := 0
	for range opts.events {
		ev, params := gen.RandomEvent(opts.tracks)
		hits += len(ev.Hits)
		if err := enc.Encode(ev); err != nil {
			return fmt.Errorf("write event %d: %w", ev.Number, err)
		}
		if truthEnc != nil {
			if err := truthEnc.Encode(truthRecord{Event: ev.Number, Tracks: params}); err != nil {
				return fmt.Errorf("write truth of event %d: %w", ev.Number, err)
			}
		}
	}
	diagf("generated %d events with %d hits (seed %d)", opts.events, hits, opts.seed)
	return nil
}
