package dawio

import (
	"slices"
	"testing"
)

func TestChannelMap(t *testing.T) {
	ports := []PlannedPort{
		{DeviceIndex: 3, Found: true},
		{DeviceIndex: 1, Found: false},
		{DeviceIndex: 0, Found: true},
	}
	if got := ChannelMap(ports); !slices.Equal(got, []int{3, -1, 0}) {
		t.Errorf("ChannelMap = %v, want [3 -1 0]", got)
	}
}

func TestBindPorts(t *testing.T) {
	names := []string{"capture_1", "capture_2"}
	tests := []struct {
		name    string
		indices []int
		want    []string
		invalid bool
	}{
		{name: "remap", indices: []int{1, 0}, want: []string{"capture_2", "capture_1"}},
		{name: "empty", indices: []int{}, want: []string{}},
		{name: "out of range", indices: []int{2}, invalid: true},
		{name: "negative", indices: []int{-1}, invalid: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ports, err := BindPorts(tt.indices, names)
			if tt.invalid {
				if kind, ok := ChangeKind(err); !ok || kind != InvalidPort {
					t.Fatalf("err = %v, want invalid port", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("BindPorts: %v", err)
			}
			got := make([]string, len(ports))
			for i, p := range ports {
				got[i] = p.SystemName
				if !p.Found {
					t.Errorf("port %d not marked found", i)
				}
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("names = %v, want %v", got, tt.want)
			}
		})
	}
}

func interleavedLayout() Layout {
	l := testLayout(1, 2, 8)
	l.InChannels = []int{0}
	l.OutChannels = []int{0, 1}
	return l
}

func TestChangeInterleavedPorts(t *testing.T) {
	h := &testHandler{process: func(p ProcessInfo) {
		for i, out := range p.AudioOutputs {
			for f := range out {
				out[f] = float32(i + 1)
			}
		}
	}}
	e := newTestEngine(t, h, DefaultRunOptions(), interleavedLayout())
	outNames := []string{"playback_1", "playback_2", "playback_3"}

	swapped := []int{2, 0}
	if _, err := ChangeInterleavedPorts(e, nil, &swapped, []string{"capture_1"}, outNames); err != nil {
		t.Fatalf("ChangeInterleavedPorts: %v", err)
	}
	out := make([]float32, 4*3)
	e.ProcessInterleaved(nil, 0, out, 3, 4)
	if want := []float32{2, 0, 1}; !slices.Equal(out[:3], want) {
		t.Errorf("first frame = %v, want %v", out[:3], want)
	}
	if ports := e.Info().OutPorts; ports[0].ConnectedToName != "playback_3" {
		t.Errorf("out port 0 connected to %q, want playback_3", ports[0].ConnectedToName)
	}

	bad := []int{1}
	if _, err := ChangeInterleavedPorts(e, &bad, nil, []string{"capture_1"}, outNames); err == nil {
		t.Error("input index past the device accepted")
	}
}

func TestChangeMaxChunk(t *testing.T) {
	h := &testHandler{}
	e := newTestEngine(t, h, DefaultRunOptions(), interleavedLayout())

	if _, err := ChangeMaxChunk(e, 4, 8); err != nil {
		t.Fatalf("ChangeMaxChunk: %v", err)
	}
	if got := e.Info().BufferSize; got != UnfixedWithMaxSize(4) {
		t.Errorf("buffer size = %s, want unfixed with max 4", got)
	}
	h.frames = nil
	e.ProcessInterleaved(nil, 0, make([]float32, 10*2), 2, 10)
	if !slices.Equal(h.frames, []int{4, 4, 2}) {
		t.Errorf("chunks = %v, want [4 4 2]", h.frames)
	}

	for _, n := range []uint32{0, 9} {
		_, err := ChangeMaxChunk(e, n, 8)
		if kind, ok := ChangeKind(err); !ok || kind != InvalidBlockSize {
			t.Errorf("ChangeMaxChunk(%d) = %v, want invalid block size", n, err)
		}
	}
}
