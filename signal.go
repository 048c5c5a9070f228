package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// exitInterrupted is the status used when a second signal forces an exit.
const exitInterrupted = 130

// shutdownContext returns a context canceled by the first SIGINT or SIGTERM,
// so a transfer stops where its .partial file or upload session can be
// resumed. A second signal exits immediately. stop releases the handler.
func shutdownContext(parent context.Context, logger *slog.Logger) (ctx context.Context, stop func()) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 2) //nolint:mnd // first and second signal
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})

	go func() {
		received := 0

		for {
			select {
			case sig := <-sigCh:
				received++
				if received == 1 {
					logger.Info("interrupted, stopping; rerun the command to resume",
						slog.String("signal", sig.String()))
					cancel()

					continue
				}

				logger.Warn("second signal, exiting now", slog.String("signal", sig.String()))
				os.Exit(exitInterrupted)
			case <-done:
				return
			}
		}
	}()

	var once sync.Once

	return ctx, func() {
		once.Do(func() {
			signal.Stop(sigCh)
			close(done)
			cancel()
		})
	}
}
