// Package metrics exposes stream counters and backend health as Prometheus
// metrics, and keeps the latest values for the SSE exporter.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/smazurov/dawio/pkg/dawio"
)

const namespace = "dawio"

func streamGauge(name, help string) *prometheus.GaugeVec {
	return promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "stream",
		Name:      name,
		Help:      help,
	}, []string{"stream_id"})
}

// Engine counters are monotonic but owned by the engine, so they are
// mirrored into gauges rather than incremented here.
var (
	streamCycles       = streamGauge("cycles_total", "Process cycles run")
	streamFrames       = streamGauge("frames_total", "Frames processed")
	streamTruncated    = streamGauge("truncated_cycles_total", "Cycles longer than the preallocated buffers")
	streamMidiTooLong  = streamGauge("midi_events_too_long_total", "MIDI events dropped for exceeding the event size")
	streamMidiOverflow = streamGauge("midi_buffer_overflows_total", "MIDI events dropped because a buffer was full")
	streamDroppedMsgs  = streamGauge("dropped_messages_total", "Stream messages dropped because the channel was full")
	streamXruns        = streamGauge("xruns_total", "Device over- and underruns")
	streamReconfigs    = streamGauge("reconfigurations_total", "Live reconfigurations applied")

	streamSampleRate = streamGauge("sample_rate_hertz", "Sample rate of the running stream")
	streamMaxBlock   = streamGauge("max_block_frames", "Largest block handed to the process handler")
	streamInPorts    = streamGauge("input_ports", "Audio input ports")
	streamOutPorts   = streamGauge("output_ports", "Audio output ports")
	streamUp         = streamGauge("up", "1 while the stream is running")

	streamMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "stream",
		Name:      "messages_total",
		Help:      "Stream messages drained, by kind",
	}, []string{"stream_id", "kind"})

	cacheMu sync.RWMutex
	cache   = map[string]dawio.Stats{}
)

// SetStreamStats mirrors a stats snapshot.
func SetStreamStats(id string, s dawio.Stats) {
	streamCycles.WithLabelValues(id).Set(float64(s.Cycles))
	streamFrames.WithLabelValues(id).Set(float64(s.Frames))
	streamTruncated.WithLabelValues(id).Set(float64(s.TruncatedCycles))
	streamMidiTooLong.WithLabelValues(id).Set(float64(s.MidiEventsTooLong))
	streamMidiOverflow.WithLabelValues(id).Set(float64(s.MidiBufferOverflows))
	streamDroppedMsgs.WithLabelValues(id).Set(float64(s.DroppedMessages))
	streamXruns.WithLabelValues(id).Set(float64(s.Xruns))
	streamReconfigs.WithLabelValues(id).Set(float64(s.Reconfigurations))

	cacheMu.Lock()
	cache[id] = s
	cacheMu.Unlock()
}

// SetStreamInfo records the shape of a running stream and marks it up.
func SetStreamInfo(id string, info dawio.StreamInfo, fallbackMax uint32) {
	streamSampleRate.WithLabelValues(id).Set(float64(info.SampleRate))
	streamMaxBlock.WithLabelValues(id).Set(float64(info.BufferSize.MaxFrames(fallbackMax)))
	streamInPorts.WithLabelValues(id).Set(float64(len(info.InPorts)))
	streamOutPorts.WithLabelValues(id).Set(float64(len(info.OutPorts)))
	streamUp.WithLabelValues(id).Set(1)
}

// SetStreamDown marks a stream as stopped but keeps its last counters.
func SetStreamDown(id string) {
	streamUp.WithLabelValues(id).Set(0)
}

// CountStreamMsg counts one drained message.
func CountStreamMsg(id string, kind dawio.StreamMsgKind) {
	streamMessages.WithLabelValues(id, kind.String()).Inc()
}

// DeleteStream removes every series of a stream.
func DeleteStream(id string) {
	for _, g := range []*prometheus.GaugeVec{
		streamCycles, streamFrames, streamTruncated, streamMidiTooLong, streamMidiOverflow,
		streamDroppedMsgs, streamXruns, streamReconfigs,
		streamSampleRate, streamMaxBlock, streamInPorts, streamOutPorts, streamUp,
	} {
		g.DeleteLabelValues(id)
	}
	streamMessages.DeletePartialMatch(prometheus.Labels{"stream_id": id})

	cacheMu.Lock()
	delete(cache, id)
	cacheMu.Unlock()
}

// GetStreamStats returns the last stats mirrored for id.
func GetStreamStats(id string) (dawio.Stats, bool) {
	cacheMu.RLock()
	defer cacheMu.RUnlock()
	s, ok := cache[id]
	return s, ok
}

// GetAllStreamStats returns a copy of every cached snapshot.
func GetAllStreamStats() map[string]dawio.Stats {
	cacheMu.RLock()
	defer cacheMu.RUnlock()
	out := make(map[string]dawio.Stats, len(cache))
	for id, s := range cache {
		out[id] = s
	}
	return out
}
