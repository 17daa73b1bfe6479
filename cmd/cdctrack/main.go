// Command cdctrack finds tracks in drift chamber events and inspects the
// results: it runs the track finder over event files, simulates toy
// events, draws event displays, summarises track files and trains the
// stage classifiers from recorded filter inputs.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		fmt.Fprintln(os.Stderr, "cdctrack:", err)
		os.Exit(1)
	}
}
