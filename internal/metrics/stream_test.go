package metrics

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/smazurov/dawio/pkg/dawio"
)

func TestStreamStatsCache(t *testing.T) {
	const id = "cache-test"
	DeleteStream(id)

	if _, ok := GetStreamStats(id); ok {
		t.Fatal("stats for an unknown stream")
	}
	SetStreamStats(id, dawio.Stats{Cycles: 10, Frames: 640})
	s, ok := GetStreamStats(id)
	if !ok || s.Cycles != 10 || s.Frames != 640 {
		t.Fatalf("stats = %+v, %v", s, ok)
	}
	if got := testutil.ToFloat64(streamFrames.WithLabelValues(id)); got != 640 {
		t.Errorf("frames gauge = %v", got)
	}

	all := GetAllStreamStats()
	all[id] = dawio.Stats{}
	if s, _ := GetStreamStats(id); s.Cycles != 10 {
		t.Error("GetAllStreamStats returned the live map")
	}

	DeleteStream(id)
	if _, ok := GetStreamStats(id); ok {
		t.Error("stats survived DeleteStream")
	}
}

func TestStreamInfoAndMessages(t *testing.T) {
	const id = "info-test"
	defer DeleteStream(id)

	info := dawio.StreamInfo{
		SampleRate: 48000,
		BufferSize: dawio.Fixed(256),
		OutPorts:   make([]dawio.AudioPortStreamInfo, 2),
	}
	SetStreamInfo(id, info, 4096)
	if got := testutil.ToFloat64(streamMaxBlock.WithLabelValues(id)); got != 256 {
		t.Errorf("max block = %v", got)
	}
	if got := testutil.ToFloat64(streamUp.WithLabelValues(id)); got != 1 {
		t.Errorf("up = %v", got)
	}
	SetStreamDown(id)
	if got := testutil.ToFloat64(streamUp.WithLabelValues(id)); got != 0 {
		t.Errorf("up after stop = %v", got)
	}

	CountStreamMsg(id, dawio.MsgAudioDeviceDisconnected)
	CountStreamMsg(id, dawio.MsgAudioDeviceDisconnected)
	if got := testutil.ToFloat64(streamMessages.WithLabelValues(id, "audio_device_disconnected")); got != 2 {
		t.Errorf("messages = %v", got)
	}
}

func TestConcurrentUpdates(t *testing.T) {
	const id = "concurrent-test"
	defer DeleteStream(id)
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			SetStreamStats(id, dawio.Stats{Cycles: uint64(i)})
			_ = GetAllStreamStats()
		}()
	}
	wg.Wait()
	if _, ok := GetStreamStats(id); !ok {
		t.Error("no stats after concurrent updates")
	}
}
