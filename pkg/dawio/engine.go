package dawio

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Layout describes the buffers and ports of one stream configuration. The
// controller builds it; the engine turns it into a routing table.
type Layout struct {
	Info StreamInfo

	// MaxFrames is the largest block the engine preallocates for.
	MaxFrames int

	// InChannels and OutChannels map stream channel i to a device channel
	// for interleaved backends. A negative entry marks a port that did not
	// bind. Nil means identity.
	InChannels  []int
	OutChannels []int

	// MidiIn and MidiOut hold device bridges for backends without native
	// MIDI. Entries may be nil when the adapter fills MIDI itself.
	MidiIn  []*MidiInputBridge
	MidiOut []*MidiOutputBridge

	// Backend is opaque adapter state swapped atomically with the layout,
	// such as SDK port handles.
	Backend any
}

type routing struct {
	gen  uint64
	info *StreamInfo

	maxFrames int
	inputs    [][]float32
	outputs   [][]float32
	inView    [][]float32
	outView   [][]float32
	silent    []bool

	inConnected  []bool
	outConnected []bool
	inChannels   []int
	outChannels  []int

	midiIn  []*MidiBuffer
	midiOut []*MidiBuffer
	midiSrc []*MidiInputBridge
	midiDst []*MidiOutputBridge

	backend any
}

func buildRouting(gen uint64, l Layout, midiCap int) (*routing, error) {
	if l.MaxFrames <= 0 {
		return nil, fmt.Errorf("max frames must be positive, got %d", l.MaxFrames)
	}
	info := l.Info.Clone()
	nIn, nOut := len(info.InPorts), len(info.OutPorts)
	if l.InChannels != nil && len(l.InChannels) != nIn {
		return nil, fmt.Errorf("input channel map has %d entries for %d ports", len(l.InChannels), nIn)
	}
	if l.OutChannels != nil && len(l.OutChannels) != nOut {
		return nil, fmt.Errorf("output channel map has %d entries for %d ports", len(l.OutChannels), nOut)
	}

	r := &routing{
		gen:          gen,
		info:         &info,
		maxFrames:    l.MaxFrames,
		inputs:       make([][]float32, nIn),
		outputs:      make([][]float32, nOut),
		inView:       make([][]float32, nIn),
		outView:      make([][]float32, nOut),
		silent:       make([]bool, nIn),
		inConnected:  make([]bool, nIn),
		outConnected: make([]bool, nOut),
		inChannels:   identityOr(l.InChannels, nIn),
		outChannels:  identityOr(l.OutChannels, nOut),
		backend:      l.Backend,
	}
	for i := range r.inputs {
		r.inputs[i] = make([]float32, l.MaxFrames)
		r.inConnected[i] = info.InPorts[i].ConnectedToSystem && r.inChannels[i] >= 0
	}
	for i := range r.outputs {
		r.outputs[i] = make([]float32, l.MaxFrames)
		r.outConnected[i] = info.OutPorts[i].ConnectedToSystem && r.outChannels[i] >= 0
	}

	var nMidiIn, nMidiOut int
	if info.Midi != nil {
		nMidiIn, nMidiOut = len(info.Midi.InPorts), len(info.Midi.OutPorts)
	}
	r.midiIn = make([]*MidiBuffer, nMidiIn)
	r.midiOut = make([]*MidiBuffer, nMidiOut)
	r.midiSrc = make([]*MidiInputBridge, nMidiIn)
	r.midiDst = make([]*MidiOutputBridge, nMidiOut)
	for i := range r.midiIn {
		r.midiIn[i] = NewMidiBuffer(midiCap)
		if i < len(l.MidiIn) {
			r.midiSrc[i] = l.MidiIn[i]
		}
	}
	for i := range r.midiOut {
		r.midiOut[i] = NewMidiBuffer(midiCap)
		if i < len(l.MidiOut) {
			r.midiDst[i] = l.MidiOut[i]
		}
	}
	return r, nil
}

func identityOr(m []int, n int) []int {
	if m != nil {
		return append([]int(nil), m...)
	}
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// Stats is a snapshot of engine counters.
type Stats struct {
	Cycles              uint64 `json:"cycles"`
	Frames              uint64 `json:"frames"`
	TruncatedCycles     uint64 `json:"truncated_cycles"`
	MidiEventsTooLong   uint64 `json:"midi_events_too_long"`
	MidiBufferOverflows uint64 `json:"midi_buffer_overflows"`
	DroppedMessages     uint64 `json:"dropped_messages"`
	Xruns               uint64 `json:"xruns"`
	Reconfigurations    uint64 `json:"reconfigurations"`
}

type engineStats struct {
	cycles       atomic.Uint64
	frames       atomic.Uint64
	truncated    atomic.Uint64
	midiTooLong  atomic.Uint64
	midiOverflow atomic.Uint64
	xruns        atomic.Uint64
	reconfigs    atomic.Uint64
}

// Engine runs the backend-neutral part of every process cycle. Adapters call
// BeginCycle, fill inputs, call Process, then copy outputs back. Everything
// on the cycle path is allocation-free.
type Engine struct {
	handler ProcessHandler
	opts    RunOptions
	msgs    MsgProducer

	// audio thread state
	cur         *routing
	frames      int
	initialized bool
	sampleRate  atomic.Uint32

	pending *spscRing[*routing]
	applied atomic.Uint64

	// controller state
	ctlMu  sync.Mutex
	gen    uint64
	latest *routing
	layout Layout

	stats engineStats
}

// NewEngine creates an engine for the initial layout.
func NewEngine(handler ProcessHandler, opts RunOptions, msgs MsgProducer, initial Layout) (*Engine, error) {
	if handler == nil {
		return nil, fmt.Errorf("process handler is nil")
	}
	opts = opts.normalized()
	r, err := buildRouting(1, initial, int(opts.MidiBufferSize))
	if err != nil {
		return nil, err
	}
	e := &Engine{
		handler: handler,
		opts:    opts,
		msgs:    msgs,
		cur:     r,
		pending: newSPSCRing[*routing](8),
		gen:     1,
		latest:  r,
		layout:  cloneLayout(initial),
	}
	e.applied.Store(1)
	e.sampleRate.Store(initial.Info.SampleRate)
	return e, nil
}

// Messages returns the producer end of the stream's message channel.
func (e *Engine) Messages() MsgProducer { return e.msgs }

// Options returns the run options the engine was built with.
func (e *Engine) Options() RunOptions { return e.opts }

// Info returns the most recently published stream info. Controller side.
func (e *Engine) Info() StreamInfo {
	e.ctlMu.Lock()
	defer e.ctlMu.Unlock()
	return e.latest.info.Clone()
}

// LatestBackend returns the adapter state of the most recently published
// layout. Controller side.
func (e *Engine) LatestBackend() any {
	e.ctlMu.Lock()
	defer e.ctlMu.Unlock()
	return e.latest.backend
}

// Reconfigure publishes a new layout. Buffers are allocated here, on the
// calling goroutine; the audio thread swaps them in at the start of its next
// cycle and calls StreamChanged before Process. It returns the generation
// to pass to Applied.
func (e *Engine) Reconfigure(l Layout) (uint64, error) {
	e.ctlMu.Lock()
	defer e.ctlMu.Unlock()
	r, err := buildRouting(e.gen+1, l, int(e.opts.MidiBufferSize))
	if err != nil {
		return 0, err
	}
	if !e.pending.push(r) {
		return 0, fmt.Errorf("too many reconfigurations pending")
	}
	e.gen = r.gen
	e.latest = r
	e.layout = cloneLayout(l)
	return r.gen, nil
}

// Layout returns a copy of the most recently published layout, for
// adapters that change one aspect and republish.
func (e *Engine) Layout() Layout {
	e.ctlMu.Lock()
	defer e.ctlMu.Unlock()
	return cloneLayout(e.layout)
}

// ReconfigureMidi republishes the current layout with new MIDI ports.
func (e *Engine) ReconfigureMidi(info *MidiStreamInfo, in []*MidiInputBridge, out []*MidiOutputBridge) (uint64, error) {
	l := e.Layout()
	l.Info.Midi = info
	l.MidiIn, l.MidiOut = in, out
	return e.Reconfigure(l)
}

func cloneLayout(l Layout) Layout {
	l.Info = l.Info.Clone()
	l.InChannels = append([]int(nil), l.InChannels...)
	l.OutChannels = append([]int(nil), l.OutChannels...)
	l.MidiIn = append([]*MidiInputBridge(nil), l.MidiIn...)
	l.MidiOut = append([]*MidiOutputBridge(nil), l.MidiOut...)
	return l
}

// Applied reports whether the audio thread has switched to generation gen.
func (e *Engine) Applied(gen uint64) bool {
	return e.applied.Load() >= gen
}

// WaitApplied polls until gen is applied or timeout elapses.
func (e *Engine) WaitApplied(gen uint64, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for !e.Applied(gen) {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
	return true
}

// SetSampleRate updates the rate used to timestamp bridged MIDI.
func (e *Engine) SetSampleRate(sr uint32) { e.sampleRate.Store(sr) }

// CountXrun records an xrun reported by the backend.
func (e *Engine) CountXrun() { e.stats.xruns.Add(1) }

// Stats returns a snapshot of the counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Cycles:              e.stats.cycles.Load(),
		Frames:              e.stats.frames.Load(),
		TruncatedCycles:     e.stats.truncated.Load(),
		MidiEventsTooLong:   e.stats.midiTooLong.Load(),
		MidiBufferOverflows: e.stats.midiOverflow.Load(),
		DroppedMessages:     e.msgs.Dropped(),
		Xruns:               e.stats.xruns.Load(),
		Reconfigurations:    e.stats.reconfigs.Load(),
	}
}

// --- audio thread ---

// BeginCycle starts a cycle of n frames. It calls Init on the first cycle,
// applies pending reconfigurations, truncates n to the preallocated maximum,
// zeroes every output and empties the MIDI inputs. It returns the frame
// count to use.
func (e *Engine) BeginCycle(n int) int {
	e.applyPending()

	cur := e.cur
	if n > cur.maxFrames {
		e.stats.truncated.Add(1)
		n = cur.maxFrames
	}
	if n < 0 {
		n = 0
	}
	e.frames = n
	for i, buf := range cur.inputs {
		cur.inView[i] = buf[:n]
	}
	for i, buf := range cur.outputs {
		view := buf[:n]
		clear(view)
		cur.outView[i] = view
	}
	for _, buf := range cur.midiIn {
		buf.Clear()
	}
	return n
}

func (e *Engine) applyPending() {
	if !e.initialized {
		e.initialized = true
		e.handler.Init(e.cur.info)
	}
	for {
		r, ok := e.pending.pop()
		if !ok {
			return
		}
		e.cur = r
		e.applied.Store(r.gen)
		e.stats.reconfigs.Add(1)
		e.handler.StreamChanged(r.info)
	}
}

// Frames returns the frame count of the current cycle.
func (e *Engine) Frames() int { return e.frames }

// MaxFrames returns the preallocated block size of the current routing.
func (e *Engine) MaxFrames() int { return e.cur.maxFrames }

// Backend returns the adapter state of the current routing.
func (e *Engine) Backend() any { return e.cur.backend }

// NumInputs returns the number of stream input channels.
func (e *Engine) NumInputs() int { return len(e.cur.inputs) }

// NumOutputs returns the number of stream output channels.
func (e *Engine) NumOutputs() int { return len(e.cur.outputs) }

// InputConnected reports whether input i is bound to a system endpoint.
func (e *Engine) InputConnected(i int) bool { return e.cur.inConnected[i] }

// OutputConnected reports whether output i is bound to a system endpoint.
func (e *Engine) OutputConnected(i int) bool { return e.cur.outConnected[i] }

// Input returns input buffer i sliced to the current cycle.
func (e *Engine) Input(i int) []float32 { return e.cur.inView[i] }

// CopyInput fills input i from src. Missing samples and unbound ports are
// silent; extra samples are ignored.
func (e *Engine) CopyInput(i int, src []float32) {
	dst := e.cur.inView[i]
	if !e.cur.inConnected[i] {
		clear(dst)
		return
	}
	n := copy(dst, src)
	if n < len(dst) {
		clear(dst[n:])
	}
}

// SilenceInputs zeroes every input, used while a device is gone.
func (e *Engine) SilenceInputs() {
	for _, buf := range e.cur.inView {
		clear(buf)
	}
}

// MidiIn returns the MIDI input buffer for port i.
func (e *Engine) MidiIn(i int) *MidiBuffer { return e.cur.midiIn[i] }

// MidiOut returns the MIDI output buffer for port i.
func (e *Engine) MidiOut(i int) *MidiBuffer { return e.cur.midiOut[i] }

// NumMidiIn returns the number of MIDI input ports.
func (e *Engine) NumMidiIn() int { return len(e.cur.midiIn) }

// NumMidiOut returns the number of MIDI output ports.
func (e *Engine) NumMidiOut() int { return len(e.cur.midiOut) }

// PushMidiIn appends an SDK event to MIDI input i. Oversized events and
// events that do not fit are dropped and counted; the stream continues.
func (e *Engine) PushMidiIn(i int, deltaFrames uint32, data []byte) {
	if len(data) > MaxMidiMsgSize {
		e.stats.midiTooLong.Add(1)
		return
	}
	if e.cur.midiIn[i].PushRaw(deltaFrames, data) != nil {
		e.stats.midiOverflow.Add(1)
	}
}

// Process runs silence detection, drains bridged MIDI, clears MIDI outputs,
// and calls the handler.
func (e *Engine) Process() {
	cur := e.cur
	n := e.frames

	if len(cur.midiSrc) > 0 {
		now := time.Now().UnixNano()
		sr := e.sampleRate.Load()
		for i, src := range cur.midiSrc {
			if src == nil {
				continue
			}
			if dropped := src.drainInto(cur.midiIn[i], now, n, sr); dropped > 0 {
				e.stats.midiOverflow.Add(dropped)
			}
		}
	}

	if e.opts.CheckForSilentInputs {
		for i, buf := range cur.inView {
			cur.silent[i] = isSilent(buf)
		}
	}

	for _, buf := range cur.midiOut {
		buf.Clear()
	}

	e.handler.Process(ProcessInfo{
		AudioInputs:       cur.inView,
		AudioOutputs:      cur.outView,
		Frames:            n,
		SilentAudioInputs: cur.silent,
		MidiInputs:        cur.midiIn,
		MidiOutputs:       cur.midiOut,
	})

	for i, dst := range cur.midiDst {
		if dst != nil && cur.midiOut[i].Len() > 0 {
			dst.enqueue(cur.midiOut[i])
		}
	}

	e.stats.cycles.Add(1)
	e.stats.frames.Add(uint64(n))
}

// Output returns output buffer i sliced to the current cycle.
func (e *Engine) Output(i int) []float32 { return e.cur.outView[i] }

// CopyOutput copies output i into dst. Only the common prefix is copied;
// outputs of unbound ports are discarded.
func (e *Engine) CopyOutput(i int, dst []float32) {
	if !e.cur.outConnected[i] {
		return
	}
	copy(dst, e.cur.outView[i])
}

// ProcessInterleaved runs as many cycles as needed to cover frames frames of
// interleaved device audio. in holds inCh channels per frame and out holds
// outCh; either may be nil. Device channels without a stream port are
// written as silence.
func (e *Engine) ProcessInterleaved(in []float32, inCh int, out []float32, outCh int, frames int) {
	done := 0
	for done < frames {
		e.applyPending()
		n := e.BeginCycle(min(frames-done, e.cur.maxFrames))
		if n == 0 {
			return
		}
		cur := e.cur

		if in != nil && inCh > 0 {
			base := done * inCh
			for i, view := range cur.inView {
				ch := cur.inChannels[i]
				if !cur.inConnected[i] || ch >= inCh {
					clear(view)
					continue
				}
				for f := range view {
					view[f] = in[base+f*inCh+ch]
				}
			}
		} else {
			e.SilenceInputs()
		}

		e.Process()

		if out != nil && outCh > 0 {
			region := out[done*outCh : (done+n)*outCh]
			clear(region)
			for i, view := range cur.outView {
				ch := cur.outChannels[i]
				if !cur.outConnected[i] || ch >= outCh {
					continue
				}
				for f, s := range view {
					region[f*outCh+ch] = s
				}
			}
		}
		done += n
	}
}

func isSilent(buf []float32) bool {
	for _, s := range buf {
		if s != 0 {
			return false
		}
	}
	return true
}
