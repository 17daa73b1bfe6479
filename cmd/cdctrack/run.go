package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/cdctrack/internal/cdc/l2hits"
	"github.com/banshee-data/cdctrack/internal/cdc/pipeline"
	"github.com/banshee-data/cdctrack/internal/cdc/storage/sqlite"
	"github.com/banshee-data/cdctrack/internal/monitoring"
	"github.com/banshee-data/cdctrack/internal/version"
)

type runOptions struct {
	input       string
	output      string
	workers     int
	dbPath      string
	metricsFile string
	traceFile   string
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Find the tracks of every event of an event file",
		Long: `Reads events as JSON lines, finds their tracks and writes one event
record per line, in input order. Events are processed in parallel.

With --db the run, its tracks and the rows of any recording filters are
stored in a sqlite database for reports and training.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTracking(cmd, root, opts)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.input, "input", "i", "-", "event file (JSON lines), - for stdin")
	f.StringVarP(&opts.output, "output", "o", "-", "track file (JSON lines), - for stdout")
	f.IntVarP(&opts.workers, "workers", "w", 0, "parallel events; 0 takes the config value, then one per CPU")
	f.StringVar(&opts.dbPath, "db", "", "sqlite database for the run, tracks and recorded filter inputs")
	f.StringVar(&opts.metricsFile, "metrics-file", "", "write metrics in Prometheus text format on exit")
	f.StringVar(&opts.traceFile, "trace-file", "", "write spans as JSON")
	return cmd
}

func runTracking(cmd *cobra.Command, root *rootOptions, opts *runOptions) (err error) {
	ctx := cmd.Context()
	tc, cfg, geo, err := root.setup()
	if err != nil {
		return err
	}
	workers := opts.workers
	if workers <= 0 {
		workers = tc.GetWorkers()
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	shutdown, err := setupTelemetry(opts)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if serr := shutdown(sctx); serr != nil && err == nil {
			err = fmt.Errorf("flush telemetry: %w", serr)
		}
	}()

	var pipeOpts []pipeline.Option
	var sink *sqlite.TrackSink
	var store *sqlite.Store
	var runID string
	if opts.dbPath != "" {
		store, err = sqlite.Open(opts.dbPath)
		if err != nil {
			return err
		}
		defer store.Close()
		cfgJSON, err := json.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("encode config: %w", err)
		}
		if runID, err = store.StartRun(ctx, version.String(), cfgJSON); err != nil {
			return err
		}
		pipeOpts = append(pipeOpts, pipeline.WithRecorders(store.Recorders(runID)))
		sink = store.TrackSink(runID)
		diagf("run %s stored in %s", runID, opts.dbPath)
	}

	p, err := pipeline.New(geo, cfg, pipeOpts...)
	if err != nil {
		return err
	}

	in, err := openInput(cmd, opts.input)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := createOutput(cmd, opts.output)
	if err != nil {
		return err
	}
	defer out.Close()

	start := time.Now()
	w := &recordWriter{enc: json.NewEncoder(out)}
	n, err := processEvents(ctx, p, workers, func(fn func(l2hits.Event) error) error {
		return readEvents(in, fn)
	}, func(rec pipeline.EventRecord) error {
		if sink != nil {
			if err := sink.WriteTracks(ctx, rec.Event, rec.Tracks); err != nil {
				return fmt.Errorf("store tracks of event %d: %w", rec.Event, err)
			}
		}
		return w.write(rec)
	})
	if err != nil {
		opsf("stopped after %d events: %v", n, err)
		return err
	}
	if store != nil {
		if err := store.FinishRun(ctx, runID, n); err != nil {
			return err
		}
	}
	diagf("%d events, %d tracks in %s with %d workers", n, w.tracks, time.Since(start).Round(time.Millisecond), workers)
	return nil
}

type recordWriter struct {
	enc    *json.Encoder
	tracks int
}

func (w *recordWriter) write(rec pipeline.EventRecord) error {
	w.tracks += len(rec.Tracks)
	return w.enc.Encode(rec)
}

func setupTelemetry(opts *runOptions) (func(context.Context) error, error) {
	tcfg := monitoring.TelemetryConfig{MetricsFile: opts.metricsFile}
	var traceFile *os.File
	if opts.traceFile != "" {
		if err := os.MkdirAll(filepath.Dir(opts.traceFile), 0o755); err != nil {
			return nil, fmt.Errorf("create trace dir: %w", err)
		}
		f, err := os.Create(filepath.Clean(opts.traceFile))
		if err != nil {
			return nil, fmt.Errorf("create trace file: %w", err)
		}
		traceFile = f
		tcfg.TraceWriter = f
	}
	shutdown, err := monitoring.SetupTelemetry(tcfg)
	if err != nil {
		if traceFile != nil {
			traceFile.Close()
		}
		return nil, err
	}
	return func(ctx context.Context) error {
		err := shutdown(ctx)
		if traceFile != nil {
			if cerr := traceFile.Close(); err == nil {
				err = cerr
			}
		}
		return err
	}, nil
}

type indexedEvent struct {
	i  int
	ev l2hits.Event
}

type indexedRecord struct {
	i   int
	rec pipeline.EventRecord
}

// processEvents runs read's events through p on workers goroutines and
// hands the records to emit in input order. It returns the number of
// emitted records. The first error cancels the remaining work.
func processEvents(ctx context.Context, p *pipeline.Pipeline, workers int,
	read func(func(l2hits.Event) error) error, emit func(pipeline.EventRecord) error) (int, error) {
	g, ctx := errgroup.WithContext(ctx)
	jobs := make(chan indexedEvent)
	results := make(chan indexedRecord)

	g.Go(func() error {
		defer close(jobs)
		i := 0
		return read(func(ev l2hits.Event) error {
			select {
			case jobs <- indexedEvent{i: i, ev: ev}:
				i++
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	})

	var wg sync.WaitGroup
	for range max(workers, 1) {
		wg.Add(1)
		g.Go(func() error {
			defer wg.Done()
			for job := range jobs {
				res, err := p.ProcessEvent(ctx, job.ev)
				if err != nil {
					return err
				}
				select {
				case results <- indexedRecord{i: job.i, rec: res.Record()}:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		})
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	emitted := 0
	g.Go(func() error {
		pending := map[int]pipeline.EventRecord{}
		for r := range results {
			pending[r.i] = r.rec
			for {
				rec, ok := pending[emitted]
				if !ok {
					break
				}
				delete(pending, emitted)
				if err := emit(rec); err != nil {
					return err
				}
				emitted++
			}
		}
		return nil
	})

	err := g.Wait()
	return emitted, err
}
