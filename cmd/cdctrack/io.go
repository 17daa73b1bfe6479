package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/banshee-data/cdctrack/internal/cdc/l2hits"
	"github.com/banshee-data/cdctrack/internal/cdc/pipeline"
)

// openInput opens path for reading; "-" is standard input.
func openInput(cmd *cobra.Command, path string) (io.ReadCloser, error) {
	if path == "-" || path == "" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	return f, nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// createOutput creates path and its directory; "-" is standard output.
func createOutput(cmd *cobra.Command, path string) (io.WriteCloser, error) {
	if path == "-" || path == "" {
		return nopWriteCloser{cmd.OutOrStdout()}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("create output: %w", err)
	}
	return f, nil
}

// decodeStream calls fn for each JSON value of r. Values may be separated
// by newlines (JSON lines) or any other whitespace.
func decodeStream[T any](r io.Reader, fn func(T) error) error {
	dec := json.NewDecoder(r)
	for n := 1; ; n++ {
		var v T
		if err := dec.Decode(&v); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("record %d: %w", n, err)
		}
		if err := fn(v); err != nil {
			return err
		}
	}
}

func readEvents(r io.Reader, fn func(l2hits.Event) error) error {
	return decodeStream(r, fn)
}

func readEventRecords(r io.Reader) ([]pipeline.EventRecord, error) {
	var out []pipeline.EventRecord
	err := decodeStream(r, func(ev pipeline.EventRecord) error {
		out = append(out, ev)
		return nil
	})
	return out, err
}
