// Package tone holds small process handlers used by the dawio binary to
// exercise a stream: a sine generator, an input passthrough and a MIDI
// thru. Every handler mixes into its outputs, so they can be chained.
package tone

import (
	"math"

	"github.com/smazurov/dawio/pkg/dawio"
)

// Sine writes a sine wave to every output channel. With FollowMidi set,
// note-on messages on the first MIDI input retune it and gate it on, and
// the matching note-off gates it off.
type Sine struct {
	Freq       float64
	Gain       float32
	FollowMidi bool

	sampleRate float64
	phase      float64
	note       int
	gate       bool
}

// NewSine returns a free-running sine at freq Hz.
func NewSine(freq float64, gain float32) *Sine {
	return &Sine{Freq: freq, Gain: gain, note: -1}
}

func (s *Sine) Init(info *dawio.StreamInfo) {
	s.sampleRate = float64(info.SampleRate)
	s.phase = 0
	s.gate = !s.FollowMidi
}

func (s *Sine) StreamChanged(info *dawio.StreamInfo) {
	s.sampleRate = float64(info.SampleRate)
}

func (s *Sine) Process(p dawio.ProcessInfo) {
	if s.FollowMidi && len(p.MidiInputs) > 0 {
		s.handleMidi(p.MidiInputs[0])
	}
	if !s.gate || s.sampleRate == 0 {
		return
	}
	step := 2 * math.Pi * s.Freq / s.sampleRate
	phase := s.phase
	for f := range p.Frames {
		v := s.Gain * float32(math.Sin(phase))
		for _, out := range p.AudioOutputs {
			out[f] += v
		}
		phase += step
		if phase >= 2*math.Pi {
			phase -= 2 * math.Pi
		}
	}
	s.phase = phase
}

func (s *Sine) handleMidi(buf *dawio.MidiBuffer) {
	evs := buf.Events()
	for i := range evs {
		msg := evs[i].Bytes()
		if len(msg) < 3 {
			continue
		}
		switch status := msg[0] & 0xF0; {
		case status == 0x90 && msg[2] > 0:
			s.note = int(msg[1])
			s.Freq = NoteFrequency(s.note)
			s.gate = true
		case status == 0x80 || status == 0x90:
			if int(msg[1]) == s.note {
				s.gate = false
			}
		}
	}
}

// NoteFrequency returns the equal-tempered frequency of a MIDI note, with
// A4 (note 69) at 440 Hz.
func NoteFrequency(note int) float64 {
	return 440 * math.Pow(2, float64(note-69)/12)
}

// Passthrough copies input channel i to output channel i, wrapping around
// the inputs when there are more outputs.
type Passthrough struct {
	Gain float32
}

func (Passthrough) Init(*dawio.StreamInfo)          {}
func (Passthrough) StreamChanged(*dawio.StreamInfo) {}

func (t Passthrough) Process(p dawio.ProcessInfo) {
	if len(p.AudioInputs) == 0 {
		return
	}
	for i, out := range p.AudioOutputs {
		in := p.AudioInputs[i%len(p.AudioInputs)]
		for f := range out {
			out[f] += t.Gain * in[f]
		}
	}
}

// MidiThru forwards every event of every MIDI input to the first MIDI
// output. Events that do not fit are dropped.
type MidiThru struct{}

func (MidiThru) Init(*dawio.StreamInfo)          {}
func (MidiThru) StreamChanged(*dawio.StreamInfo) {}

func (MidiThru) Process(p dawio.ProcessInfo) {
	if len(p.MidiOutputs) == 0 {
		return
	}
	out := p.MidiOutputs[0]
	for _, in := range p.MidiInputs {
		evs := in.Events()
		for i := range evs {
			if out.Push(evs[i]) != nil {
				return
			}
		}
	}
}

// Chain runs handlers in order on the same buffers.
type Chain []dawio.ProcessHandler

func (c Chain) Init(info *dawio.StreamInfo) {
	for _, h := range c {
		h.Init(info)
	}
}

func (c Chain) StreamChanged(info *dawio.StreamInfo) {
	for _, h := range c {
		h.StreamChanged(info)
	}
}

func (c Chain) Process(p dawio.ProcessInfo) {
	for _, h := range c {
		h.Process(p)
	}
}
