//go:build linux && integration

package hotplug

import (
	"context"
	"errors"
	"testing"
	"time"
)

// TestMonitorIntegration needs a sound card to be plugged or unplugged.
// Run with: go test -tags=integration -v -run TestMonitorIntegration -timeout 60s
func TestMonitorIntegration(t *testing.T) {
	m, err := NewMonitor()
	if err != nil {
		t.Fatalf("NewMonitor() error: %v", err)
	}
	defer func() { _ = m.Close() }()
	m.AddSubsystemFilter(SubsystemSound)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	events := make(chan Event, 10)
	go func() {
		if runErr := m.Run(ctx, events); runErr != nil && !errors.Is(runErr, context.DeadlineExceeded) && !errors.Is(runErr, context.Canceled) {
			t.Logf("Run() error: %v", runErr)
		}
	}()

	t.Log("Waiting for sound events... plug/unplug a USB audio interface")

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if card, isCard := event.SoundCard(); isCard {
				t.Logf("card %d: %s (%s)", card, event.Action, event.KObj)
				return
			}
		case <-ctx.Done():
			t.Log("No card events received")
			return
		}
	}
}
