package dawio

import (
	"slices"
	"testing"
)

type testHandler struct {
	calls   []string
	infos   []StreamInfo
	frames  []int
	process func(ProcessInfo)
}

func (h *testHandler) Init(info *StreamInfo) {
	h.calls = append(h.calls, "init")
	h.infos = append(h.infos, info.Clone())
}

func (h *testHandler) StreamChanged(info *StreamInfo) {
	h.calls = append(h.calls, "changed")
	h.infos = append(h.infos, info.Clone())
}

func (h *testHandler) Process(p ProcessInfo) {
	h.calls = append(h.calls, "process")
	h.frames = append(h.frames, p.Frames)
	if h.process != nil {
		h.process(p)
	}
}

func ports(n int) []PlannedPort {
	out := make([]PlannedPort, n)
	for i := range out {
		out[i] = PlannedPort{DeviceIndex: i, SystemName: "dev", Found: true}
	}
	return out
}

func testLayout(in, out, maxFrames int) Layout {
	return Layout{
		Info: StreamInfo{
			Backend:    BackendAlsa,
			InPorts:    PortInfos("in", ports(in)),
			OutPorts:   PortInfos("out", ports(out)),
			SampleRate: 48000,
			BufferSize: UnfixedWithMaxSize(uint32(maxFrames)),
		},
		MaxFrames: maxFrames,
	}
}

func newTestEngine(t *testing.T, h ProcessHandler, opts RunOptions, l Layout) *Engine {
	t.Helper()
	p, _ := NewMsgChannel(16)
	e, err := NewEngine(h, opts, p, l)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func TestEngineInitOnceBeforeProcess(t *testing.T) {
	h := &testHandler{}
	e := newTestEngine(t, h, DefaultRunOptions(), testLayout(0, 2, 8))
	for range 3 {
		e.BeginCycle(8)
		e.Process()
	}
	want := []string{"init", "process", "process", "process"}
	if !slices.Equal(h.calls, want) {
		t.Errorf("calls = %v, want %v", h.calls, want)
	}
}

func TestEngineTruncatesOversizedBlocks(t *testing.T) {
	h := &testHandler{process: func(p ProcessInfo) {
		for _, out := range p.AudioOutputs {
			if len(out) != p.Frames {
				panic("output length differs from frames")
			}
		}
	}}
	e := newTestEngine(t, h, DefaultRunOptions(), testLayout(1, 2, 8))

	tests := []struct {
		in, want int
	}{
		{4, 4},
		{8, 8},
		{16, 8},
		{0, 0},
	}
	for _, tt := range tests {
		if got := e.BeginCycle(tt.in); got != tt.want {
			t.Errorf("BeginCycle(%d) = %d, want %d", tt.in, got, tt.want)
		}
		e.Process()
	}
	if got := e.Stats().TruncatedCycles; got != 1 {
		t.Errorf("truncated = %d, want 1", got)
	}
}

func TestEngineOutputsArriveZeroed(t *testing.T) {
	dirty := false
	h := &testHandler{process: func(p ProcessInfo) {
		for _, out := range p.AudioOutputs {
			for i, s := range out {
				if s != 0 {
					dirty = true
				}
				out[i] = 1
			}
		}
	}}
	e := newTestEngine(t, h, DefaultRunOptions(), testLayout(0, 2, 4))
	e.BeginCycle(4)
	e.Process()
	e.BeginCycle(4)
	e.Process()
	if dirty {
		t.Error("outputs kept samples from the previous cycle")
	}
}

func TestEngineSilenceDetection(t *testing.T) {
	tests := []struct {
		name  string
		check bool
		want  []bool
	}{
		{"enabled", true, []bool{true, false}},
		{"disabled", false, []bool{false, false}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []bool
			h := &testHandler{process: func(p ProcessInfo) {
				got = slices.Clone(p.SilentAudioInputs)
			}}
			opts := DefaultRunOptions()
			opts.CheckForSilentInputs = tt.check
			e := newTestEngine(t, h, opts, testLayout(2, 0, 8))

			second := make([]float32, 8)
			second[3] = 0.5
			e.BeginCycle(8)
			e.CopyInput(0, make([]float32, 8))
			e.CopyInput(1, second)
			e.Process()
			if !slices.Equal(got, tt.want) {
				t.Errorf("silent = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEngineUnboundPorts(t *testing.T) {
	l := testLayout(1, 2, 4)
	l.Info.InPorts[0].ConnectedToSystem = false
	l.Info.OutPorts[1].ConnectedToSystem = false
	h := &testHandler{process: func(p ProcessInfo) {
		for _, out := range p.AudioOutputs {
			for i := range out {
				out[i] = 0.5
			}
		}
	}}
	e := newTestEngine(t, h, DefaultRunOptions(), l)

	e.BeginCycle(4)
	e.CopyInput(0, []float32{1, 1, 1, 1})
	if !isSilent(e.Input(0)) {
		t.Error("unbound input received samples")
	}
	e.Process()

	dst := []float32{9, 9, 9, 9}
	e.CopyOutput(1, dst)
	if dst[0] != 9 {
		t.Error("unbound output was written back")
	}
	e.CopyOutput(0, dst)
	if dst[0] != 0.5 {
		t.Error("bound output was not written back")
	}
	if e.InputConnected(0) || !e.OutputConnected(0) || e.OutputConnected(1) {
		t.Error("connection flags do not follow the layout")
	}
}

func TestEngineShortInputPadded(t *testing.T) {
	e := newTestEngine(t, &testHandler{}, DefaultRunOptions(), testLayout(1, 0, 4))
	e.BeginCycle(4)
	e.CopyInput(0, []float32{1, 1, 1, 1})
	e.BeginCycle(4)
	e.CopyInput(0, []float32{2, 2})
	if got := e.Input(0); !slices.Equal(got, []float32{2, 2, 0, 0}) {
		t.Errorf("input = %v, want [2 2 0 0]", got)
	}
}

func TestEngineReconfigureCallsStreamChangedOnce(t *testing.T) {
	var seen [][]float32
	h := &testHandler{process: func(p ProcessInfo) {
		seen = append(seen, []float32{float32(len(p.AudioInputs)), float32(len(p.AudioOutputs))})
	}}
	e := newTestEngine(t, h, DefaultRunOptions(), testLayout(0, 2, 4))
	e.BeginCycle(4)
	e.Process()

	gen, err := e.Reconfigure(testLayout(1, 3, 4))
	if err != nil {
		t.Fatal(err)
	}
	if e.Applied(gen) {
		t.Fatal("generation applied before the audio thread ran")
	}
	if got := e.Info().NumOutputs(); got != 3 {
		t.Errorf("latest info outputs = %d, want 3", got)
	}

	e.BeginCycle(4)
	e.Process()
	e.BeginCycle(4)
	e.Process()

	want := []string{"init", "process", "changed", "process", "process"}
	if !slices.Equal(h.calls, want) {
		t.Errorf("calls = %v, want %v", h.calls, want)
	}
	if !e.Applied(gen) {
		t.Error("generation not applied")
	}
	if !slices.Equal(seen[1], []float32{1, 3}) {
		t.Errorf("second cycle saw %v channels", seen[1])
	}
	if e.Stats().Reconfigurations != 1 {
		t.Errorf("reconfigurations = %d", e.Stats().Reconfigurations)
	}
}

func TestEngineRejectsBadLayout(t *testing.T) {
	tests := []struct {
		name   string
		layout Layout
	}{
		{"zero frames", testLayout(1, 1, 0)},
		{"channel map length", func() Layout {
			l := testLayout(1, 2, 4)
			l.OutChannels = []int{0}
			return l
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := NewMsgChannel(4)
			if _, err := NewEngine(&testHandler{}, DefaultRunOptions(), p, tt.layout); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestProcessInterleaved(t *testing.T) {
	l := testLayout(2, 2, 4)
	l.InChannels = []int{1, 0}
	l.OutChannels = []int{2, -1}
	l.Info.OutPorts[1].ConnectedToSystem = false
	h := &testHandler{process: func(p ProcessInfo) {
		for f := range p.Frames {
			p.AudioOutputs[0][f] = p.AudioInputs[0][f] + 10
			p.AudioOutputs[1][f] = 99
		}
	}}
	e := newTestEngine(t, h, DefaultRunOptions(), l)

	const frames, inCh, outCh = 6, 2, 3
	in := make([]float32, frames*inCh)
	for f := range frames {
		in[f*inCh] = float32(f)
		in[f*inCh+1] = float32(100 + f)
	}
	out := make([]float32, frames*outCh)
	for i := range out {
		out[i] = -1
	}
	e.ProcessInterleaved(in, inCh, out, outCh, frames)

	if !slices.Equal(h.frames, []int{4, 2}) {
		t.Errorf("cycles = %v, want [4 2]", h.frames)
	}
	for f := range frames {
		row := out[f*outCh : (f+1)*outCh]
		want := []float32{0, 0, float32(110 + f)}
		if !slices.Equal(row, want) {
			t.Errorf("frame %d = %v, want %v", f, row, want)
		}
	}
}

func TestPushMidiInCounters(t *testing.T) {
	l := testLayout(0, 0, 4)
	l.Info.Midi = &MidiStreamInfo{InPorts: make([]MidiPortStreamInfo, 1)}
	opts := DefaultRunOptions()
	opts.MidiBufferSize = 1
	var got int
	h := &testHandler{process: func(p ProcessInfo) { got = p.MidiInputs[0].Len() }}
	e := newTestEngine(t, h, opts, l)

	e.BeginCycle(4)
	e.PushMidiIn(0, 0, make([]byte, 9))
	e.PushMidiIn(0, 1, []byte{0x90, 1, 1})
	e.PushMidiIn(0, 2, []byte{0x90, 2, 2})
	e.Process()

	st := e.Stats()
	if st.MidiEventsTooLong != 1 || st.MidiBufferOverflows != 1 {
		t.Errorf("stats = %+v", st)
	}
	if got != 1 {
		t.Errorf("handler saw %d events, want 1", got)
	}

	e.BeginCycle(4)
	e.Process()
	if got != 0 {
		t.Errorf("midi input not cleared between cycles: %d", got)
	}
}

func TestEngineCycleDoesNotAllocate(t *testing.T) {
	l := testLayout(2, 2, 64)
	l.Info.Midi = &MidiStreamInfo{InPorts: make([]MidiPortStreamInfo, 1), OutPorts: make([]MidiPortStreamInfo, 1)}
	h := ProcessFunc(func(p ProcessInfo) {
		for _, out := range p.AudioOutputs {
			copy(out, p.AudioInputs[0])
		}
		_ = p.MidiOutputs[0].PushRaw(0, []byte{0x80, 1, 0})
	})
	opts := DefaultRunOptions()
	opts.CheckForSilentInputs = true
	e := newTestEngine(t, h, opts, l)
	src := make([]float32, 64)
	dst := make([]float32, 64)
	note := []byte{0x90, 1, 1}

	allocs := testing.AllocsPerRun(50, func() {
		n := e.BeginCycle(64)
		e.CopyInput(0, src[:n])
		e.CopyInput(1, src[:n])
		e.PushMidiIn(0, 0, note)
		e.Process()
		e.CopyOutput(0, dst)
		e.CopyOutput(1, dst)
	})
	if allocs != 0 {
		t.Errorf("cycle allocated %.1f times", allocs)
	}
}
