package wasapi

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/smazurov/dawio/pkg/dawio"
	"github.com/smazurov/dawio/pkg/dawio/sampleconv"
)

func newHost(sdk *fakeSDK) *dawio.Host {
	h := dawio.NewHost("windows")
	Register(h, sdk)
	return h
}

func outputConfig() dawio.Config {
	cfg := dawio.DefaultConfig()
	cfg.AudioBackend = dawio.Use(dawio.BackendWasapi)
	cfg.BlockSize = dawio.Use[uint32](128)
	cfg.Midi = nil
	return cfg
}

func linkedConfig() dawio.Config {
	cfg := outputConfig()
	cfg.AudioDevice = dawio.LinkedInOut{
		Input:  &dawio.DeviceID{Name: "Microphone (USB Audio)"},
		Output: &dawio.DeviceID{Name: "Speakers (USB Audio)"},
	}
	cfg.InputChannels = dawio.Use([]int{1})
	return cfg
}

func start(t *testing.T, sdk *fakeSDK, cfg dawio.Config, rec *recorder) *dawio.StreamHandle {
	t.Helper()
	sh, err := newHost(sdk).Run(context.Background(), cfg, dawio.DefaultRunOptions(), rec)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	t.Cleanup(func() { _ = sh.Close() })
	return sh
}

func waitMsg(t *testing.T, c *dawio.MsgConsumer, kind dawio.StreamMsgKind) dawio.StreamMsg {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if m, ok := c.Pop(); ok {
			if m.Kind == kind {
				return m
			}
			continue
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("no %s message within deadline", kind)
	return dawio.StreamMsg{}
}

func TestSharedOutputStream(t *testing.T) {
	sdk := newFakeSDK()
	rec := &recorder{out: []float32{0.5, -0.5}}
	sh := start(t, sdk, outputConfig(), rec)

	info := sh.StreamInfo()
	if info.BufferSize != dawio.UnfixedWithMaxSize(128) {
		t.Errorf("buffer size = %s, want unfixed with max 128", info.BufferSize)
	}
	if info.SampleRate != 48000 {
		t.Errorf("sample rate = %d, want 48000", info.SampleRate)
	}

	c := sdk.last()
	if c == nil {
		t.Fatal("no audio client opened")
	}
	if c.cfg.Mode != Shared || c.cfg.Render.Format != sampleconv.F32LE || c.cfg.CaptureID != "" {
		t.Errorf("client config = %+v, want shared f32 render only", c.cfg)
	}
	if !eventually(func() bool {
		played := c.playedSamples()
		return len(played) == fakePeriod*2 && played[0] == 0.5 && played[1] == -0.5
	}) {
		t.Error("render buffer did not receive the handler output")
	}
	if got := rec.lastFrames(); got > 128 {
		t.Errorf("process frames = %d, want at most 128", got)
	}
}

func TestLinkedDuplexConvertsCapture(t *testing.T) {
	sdk := newFakeSDK()
	rec := &recorder{}
	start(t, sdk, linkedConfig(), rec)

	c := sdk.last()
	if c.cfg.CaptureID != microphoneID || c.cfg.RenderID != speakersID {
		t.Fatalf("client endpoints = %q/%q", c.cfg.CaptureID, c.cfg.RenderID)
	}
	if c.cfg.Capture.Format != sampleconv.S16LE {
		t.Errorf("capture format = %s, want S16_LE", c.cfg.Capture.Format)
	}
	if !eventually(func() bool {
		in := rec.lastInput()
		return len(in) == 1 && len(in[0]) > 0 && math.Abs(float64(in[0][0])-0.25) < 1e-3
	}) {
		t.Error("input did not carry capture channel 2")
	}
}

func TestExclusiveStream(t *testing.T) {
	sdk := newFakeSDK()
	cfg := outputConfig()
	cfg.TakeExclusive = true
	cfg.SampleRate = dawio.Use[uint32](44100)
	start(t, sdk, cfg, &recorder{})

	c := sdk.last()
	if c.cfg.Mode != Exclusive {
		t.Errorf("mode = %v, want exclusive", c.cfg.Mode)
	}
	if c.cfg.Render != (WaveFormat{Format: sampleconv.S16LE, Channels: 2, Rate: 44100}) {
		t.Errorf("render format = %+v, want S16_LE/2/44100", c.cfg.Render)
	}
}

func TestExclusiveRefusedByEveryRate(t *testing.T) {
	sdk := newFakeSDK()
	sdk.exclusive = nil
	cfg := outputConfig()
	cfg.TakeExclusive = true
	_, err := newHost(sdk).Run(context.Background(), cfg, dawio.DefaultRunOptions(), &recorder{})
	if !errors.Is(err, dawio.ErrCouldNotUseExclusive) {
		t.Fatalf("Run error = %v, want could not use exclusive", err)
	}
	if n := sdk.clientCount(); n != 0 {
		t.Errorf("%d clients opened, want none", n)
	}
}

func TestEndpointNegotiation(t *testing.T) {
	sdk := newFakeSDK()
	d := NewDriver(sdk)
	info := d.Enumerate(context.Background())
	speakers := info.Devices[0]

	tests := []struct {
		name  string
		setup func()
		mode  ShareMode
		rate  uint32
		want  error
	}{
		{name: "shared mix rate", mode: Shared, rate: 48000},
		{name: "shared other rate", mode: Shared, rate: 44100, want: dawio.ErrCouldNotUseSampleRate},
		{name: "exclusive probed rate", mode: Exclusive, rate: 44100},
		{name: "exclusive unprobed rate", mode: Exclusive, rate: 96000, want: dawio.ErrCouldNotUseSampleRate},
		{name: "exclusive refused", mode: Exclusive, rate: 48000, want: dawio.ErrCouldNotUseExclusive,
			setup: func() { sdk.exclusive = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setup != nil {
				tt.setup()
			}
			_, err := d.endpoint(speakers, Render, tt.mode, tt.rate)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("endpoint: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("endpoint error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestOpenFailureIsReported(t *testing.T) {
	sdk := newFakeSDK()
	sdk.openErr = errors.New("AUDCLNT_E_DEVICE_IN_USE")
	_, err := newHost(sdk).Run(context.Background(), outputConfig(), dawio.DefaultRunOptions(), &recorder{})
	if !errors.Is(err, dawio.ErrPlatformSpecific) {
		t.Fatalf("Run error = %v, want platform specific", err)
	}
}

func TestFatalClientError(t *testing.T) {
	sdk := newFakeSDK()
	sh := start(t, sdk, outputConfig(), &recorder{})

	sdk.last().fail(errors.New("AUDCLNT_E_BUFFER_ERROR"))
	msg := waitMsg(t, sh.Messages(), dawio.MsgError)
	if msg.Err.Kind != dawio.StreamPlatformSpecific {
		t.Errorf("error kind = %s, want platform specific", msg.Err.Kind)
	}
	select {
	case <-sh.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("stream did not stop")
	}
}

func TestUnplugAndReplug(t *testing.T) {
	sdk := newFakeSDK()
	sh := start(t, sdk, outputConfig(), &recorder{})
	msgs := sh.Messages()
	first := sdk.last()

	sdk.setState(speakersID, StateUnplugged)
	msg := waitMsg(t, msgs, dawio.MsgAudioDeviceDisconnected)
	if msg.Device.Identifier != speakersID {
		t.Errorf("disconnected device = %s, want speakers", msg.Device)
	}
	if !eventually(first.isClosed) {
		t.Error("client of the unplugged endpoint was not closed")
	}
	cycles := sh.Stats().Cycles
	if !eventually(func() bool { return sh.Stats().Cycles > cycles+3 }) {
		t.Error("engine not driven while the endpoint is gone")
	}

	sdk.setState(speakersID, StateActive)
	waitMsg(t, msgs, dawio.MsgAudioDeviceReconnected)
	if sdk.clientCount() != 2 {
		t.Errorf("clients opened = %d, want 2", sdk.clientCount())
	}
}

func TestChangeBlockSize(t *testing.T) {
	sdk := newFakeSDK()
	rec := &recorder{}
	sh := start(t, sdk, outputConfig(), rec)

	if err := sh.ChangeBlockSizeConfig(32); err != nil {
		t.Fatalf("ChangeBlockSizeConfig: %v", err)
	}
	if got := sh.StreamInfo().BufferSize; got != dawio.UnfixedWithMaxSize(32) {
		t.Errorf("buffer size = %s, want unfixed with max 32", got)
	}
	if !eventually(func() bool { return rec.lastFrames() == 32 }) {
		t.Errorf("process frames = %d, want 32", rec.lastFrames())
	}

	err := sh.ChangeBlockSizeConfig(1 << 20)
	if kind, ok := dawio.ChangeKind(err); !ok || kind != dawio.InvalidBlockSize {
		t.Errorf("oversized block = %v, want invalid block size", err)
	}
}

func TestChangeAudioPorts(t *testing.T) {
	sdk := newFakeSDK()
	sh := start(t, sdk, outputConfig(), &recorder{})

	bad := []int{5}
	if kind, ok := dawio.ChangeKind(sh.ChangeAudioPortConfig(nil, &bad)); !ok || kind != dawio.InvalidPort {
		t.Fatal("out of range port accepted")
	}
	in := []int{0}
	if kind, ok := dawio.ChangeKind(sh.ChangeAudioPortConfig(&in, nil)); !ok || kind != dawio.InvalidPort {
		t.Fatal("input port accepted on a render-only stream")
	}
	mono := []int{1}
	if err := sh.ChangeAudioPortConfig(nil, &mono); err != nil {
		t.Fatalf("ChangeAudioPortConfig: %v", err)
	}
	info := sh.StreamInfo()
	if len(info.OutPorts) != 1 || info.OutPorts[0].ConnectedToName != "render_2" {
		t.Errorf("out ports = %+v, want one port on render_2", info.OutPorts)
	}
}

func TestStopClosesClient(t *testing.T) {
	sdk := newFakeSDK()
	sh := start(t, sdk, outputConfig(), &recorder{})
	if err := sh.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !sdk.last().isClosed() {
		t.Error("audio client left open")
	}
}
