// Package cmd holds the dawio subcommands other than serve.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/smazurov/dawio/internal/config"
)

// loadProfile reads path, or returns the all-auto profile when path is
// empty.
func loadProfile(path string) (config.Profile, error) {
	if path == "" {
		return config.Profile{}, nil
	}
	return config.LoadProfile(path)
}

// runContext is cancelled on SIGINT or SIGTERM and, when d is positive,
// after d.
func runContext(d time.Duration) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	if d <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	return ctx, func() {
		cancel()
		stop()
	}
}
