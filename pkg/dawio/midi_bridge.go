package dawio

import (
	"sync/atomic"
	"time"
)

type timedMidi struct {
	at int64
	ev RawMidi
}

// MidiInputBridge carries events from a MIDI driver goroutine to the audio
// thread. Exactly one goroutine may call Deliver.
type MidiInputBridge struct {
	ID   DeviceID
	ring *spscRing[timedMidi]

	connected atomic.Bool
	dropped   atomic.Uint64
}

// NewMidiInputBridge creates a bridge holding up to capacity pending events.
func NewMidiInputBridge(id DeviceID, capacity int) *MidiInputBridge {
	b := &MidiInputBridge{ID: id, ring: newSPSCRing[timedMidi](capacity)}
	b.connected.Store(true)
	return b
}

// Deliver timestamps data with the current time and queues it.
func (b *MidiInputBridge) Deliver(data []byte) {
	b.DeliverAt(time.Now(), data)
}

// DeliverAt queues data with an explicit arrival time. Messages longer than
// MaxMidiMsgSize and messages that do not fit are dropped and counted.
func (b *MidiInputBridge) DeliverAt(at time.Time, data []byte) {
	if len(data) == 0 {
		return
	}
	if len(data) > MaxMidiMsgSize {
		b.dropped.Add(1)
		return
	}
	item := timedMidi{at: at.UnixNano()}
	item.ev.Len = uint8(len(data))
	copy(item.ev.Data[:], data)
	if !b.ring.push(item) {
		b.dropped.Add(1)
	}
}

// SetConnected records whether the underlying device is reachable.
func (b *MidiInputBridge) SetConnected(ok bool) { b.connected.Store(ok) }

// Connected reports the last state recorded with SetConnected.
func (b *MidiInputBridge) Connected() bool { return b.connected.Load() }

// Dropped returns the number of events dropped before reaching the audio
// thread.
func (b *MidiInputBridge) Dropped() uint64 { return b.dropped.Load() }

// drainInto moves pending events into buf, converting arrival time to
// delta frames. Events that arrived during the previous block map onto this
// block, so the bridge adds one block of latency.
func (b *MidiInputBridge) drainInto(buf *MidiBuffer, now int64, frames int, sampleRate uint32) (overflow uint64) {
	buf.Clear()
	if frames <= 0 || sampleRate == 0 {
		for {
			if _, ok := b.ring.pop(); !ok {
				return overflow
			}
		}
	}
	blockNanos := int64(frames) * int64(time.Second) / int64(sampleRate)
	windowStart := now - blockNanos
	for {
		item, ok := b.ring.pop()
		if !ok {
			return overflow
		}
		delta := (item.at - windowStart) * int64(sampleRate) / int64(time.Second)
		if delta < 0 {
			delta = 0
		} else if delta >= int64(frames) {
			delta = int64(frames) - 1
		}
		item.ev.DeltaFrames = uint32(delta)
		if buf.Push(item.ev) != nil {
			overflow++
		}
	}
}

// MidiOutputBridge carries events from the audio thread to a MIDI driver
// sender goroutine.
type MidiOutputBridge struct {
	ID   DeviceID
	ring *spscRing[RawMidi]

	connected atomic.Bool
	dropped   atomic.Uint64
}

// NewMidiOutputBridge creates a bridge holding up to capacity pending events.
func NewMidiOutputBridge(id DeviceID, capacity int) *MidiOutputBridge {
	b := &MidiOutputBridge{ID: id, ring: newSPSCRing[RawMidi](capacity)}
	b.connected.Store(true)
	return b
}

// SetConnected records whether the underlying device is reachable.
func (b *MidiOutputBridge) SetConnected(ok bool) { b.connected.Store(ok) }

// Connected reports the last state recorded with SetConnected.
func (b *MidiOutputBridge) Connected() bool { return b.connected.Load() }

// Dropped returns the number of events that did not fit.
func (b *MidiOutputBridge) Dropped() uint64 { return b.dropped.Load() }

func (b *MidiOutputBridge) enqueue(buf *MidiBuffer) {
	evs := buf.Events()
	for i := range evs {
		if !b.ring.push(evs[i]) {
			b.dropped.Add(uint64(len(evs) - i))
			return
		}
	}
}

// Drain hands queued events to fn in order and returns how many were
// handed over. Only the sender goroutine may call Drain.
func (b *MidiOutputBridge) Drain(fn func(ev RawMidi)) int {
	n := 0
	for {
		ev, ok := b.ring.pop()
		if !ok {
			return n
		}
		fn(ev)
		n++
	}
}
