package dawio

import (
	"errors"
	"fmt"
)

// MaxMidiMsgSize is the largest raw MIDI message a MidiBuffer accepts.
// SysEx longer than this is not carried.
const MaxMidiMsgSize = 8

// ErrBufferFull is returned when a MidiBuffer is at capacity.
var ErrBufferFull = errors.New("midi buffer is full")

// EventTooLongError is returned when an event exceeds MaxMidiMsgSize.
type EventTooLongError struct {
	Len int
}

func (e *EventTooLongError) Error() string {
	return fmt.Sprintf("midi event of %d bytes exceeds the maximum of %d", e.Len, MaxMidiMsgSize)
}

// RawMidi is one time-stamped MIDI message.
type RawMidi struct {
	// DeltaFrames is the offset in samples from the start of the block.
	DeltaFrames uint32
	Len         uint8
	Data        [MaxMidiMsgSize]byte
}

// NewRawMidi copies b into a RawMidi.
func NewRawMidi(deltaFrames uint32, b []byte) (RawMidi, error) {
	if len(b) > MaxMidiMsgSize {
		return RawMidi{}, &EventTooLongError{Len: len(b)}
	}
	ev := RawMidi{DeltaFrames: deltaFrames, Len: uint8(len(b))}
	copy(ev.Data[:], b)
	return ev, nil
}

// Bytes returns the message bytes. The slice aliases the event.
func (m *RawMidi) Bytes() []byte {
	return m.Data[:m.Len]
}

// MidiBuffer is a bounded, allocation-free list of MIDI events in insertion
// order.
type MidiBuffer struct {
	events []RawMidi
}

// NewMidiBuffer preallocates a buffer for capacity events.
func NewMidiBuffer(capacity int) *MidiBuffer {
	return &MidiBuffer{events: make([]RawMidi, 0, capacity)}
}

// Len returns the number of events.
func (b *MidiBuffer) Len() int { return len(b.events) }

// Cap returns the maximum number of events.
func (b *MidiBuffer) Cap() int { return cap(b.events) }

// IsEmpty reports whether the buffer holds no events.
func (b *MidiBuffer) IsEmpty() bool { return len(b.events) == 0 }

// Events returns the events. The slice aliases the buffer and is only valid
// until the next mutation.
func (b *MidiBuffer) Events() []RawMidi { return b.events }

// Clear removes all events.
func (b *MidiBuffer) Clear() { b.events = b.events[:0] }

// Push appends ev.
func (b *MidiBuffer) Push(ev RawMidi) error {
	if int(ev.Len) > MaxMidiMsgSize {
		return &EventTooLongError{Len: int(ev.Len)}
	}
	if len(b.events) == cap(b.events) {
		return ErrBufferFull
	}
	b.events = append(b.events, ev)
	return nil
}

// PushRaw appends the message in data at deltaFrames.
func (b *MidiBuffer) PushRaw(deltaFrames uint32, data []byte) error {
	if len(data) > MaxMidiMsgSize {
		return &EventTooLongError{Len: len(data)}
	}
	if len(b.events) == cap(b.events) {
		return ErrBufferFull
	}
	n := len(b.events)
	b.events = b.events[:n+1]
	ev := &b.events[n]
	ev.DeltaFrames = deltaFrames
	ev.Len = uint8(len(data))
	copy(ev.Data[:], data)
	return nil
}

// ExtendFromSlice appends all of evs, or none of them if they do not fit.
func (b *MidiBuffer) ExtendFromSlice(evs []RawMidi) error {
	if len(b.events)+len(evs) > cap(b.events) {
		return ErrBufferFull
	}
	for i := range evs {
		if int(evs[i].Len) > MaxMidiMsgSize {
			return &EventTooLongError{Len: int(evs[i].Len)}
		}
	}
	b.events = append(b.events, evs...)
	return nil
}

// ClearAndCopyFrom replaces the contents with those of other, truncated to
// this buffer's capacity.
func (b *MidiBuffer) ClearAndCopyFrom(other *MidiBuffer) {
	n := copy(b.events[:cap(b.events)], other.events)
	b.events = b.events[:n]
}
