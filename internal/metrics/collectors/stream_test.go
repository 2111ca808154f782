package collectors

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smazurov/dawio/internal/metrics"
	"github.com/smazurov/dawio/pkg/dawio"
)

type counterSource struct{ n atomic.Uint64 }

func (c *counterSource) Stats() dawio.Stats {
	return dawio.Stats{Cycles: c.n.Add(1)}
}

func TestStreamCollectorSamples(t *testing.T) {
	const id = "collector-test"
	defer metrics.DeleteStream(id)

	src := &counterSource{}
	samples := make(chan dawio.Stats, 64)
	c := NewStreamCollector(id, src, 10*time.Millisecond, func(s dawio.Stats) {
		select {
		case samples <- s:
		default:
		}
	})
	c.Start(context.Background())

	deadline := time.After(time.Second)
	for seen := 0; seen < 3; {
		select {
		case <-samples:
			seen++
		case <-deadline:
			t.Fatal("collector did not sample")
		}
	}
	c.Stop()

	final := src.n.Load()
	if s, ok := metrics.GetStreamStats(id); !ok || s.Cycles != final {
		t.Errorf("cached cycles = %d, want the final sample %d", s.Cycles, final)
	}
}

type flakyInventory struct {
	calls atomic.Int32
	fail  bool
}

func (f *flakyInventory) Inventory(context.Context) (dawio.Inventory, error) {
	f.calls.Add(1)
	if f.fail {
		return dawio.Inventory{}, errors.New("enumeration timed out")
	}
	return dawio.Inventory{Audio: []dawio.AudioBackendInfo{{Backend: dawio.BackendJack, Status: dawio.StatusRunning}}}, nil
}

func TestBackendCollectorCaches(t *testing.T) {
	inv := &flakyInventory{}
	c := NewBackendCollector(inv, time.Hour)

	if got := c.inventory(); len(got.Audio) != 1 {
		t.Fatalf("inventory = %+v", got)
	}
	c.inventory()
	if n := inv.calls.Load(); n != 1 {
		t.Errorf("enumerations = %d, want 1 within the ttl", n)
	}

	c.fetched = time.Time{}
	inv.fail = true
	if got := c.inventory(); len(got.Audio) != 1 {
		t.Error("failed enumeration dropped the last good inventory")
	}
}
