package alsa

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smazurov/dawio/pkg/dawio"
)

func newHost(sdk *fakeSDK) *dawio.Host {
	h := dawio.NewHost("linux")
	Register(h, sdk)
	return h
}

func duplexConfig() dawio.Config {
	cfg := dawio.DefaultConfig()
	cfg.AudioBackend = dawio.Use(dawio.BackendAlsa)
	cfg.InputChannels = dawio.Use([]int{1})
	cfg.BlockSize = dawio.Use[uint32](128)
	cfg.Midi = nil
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
	deadline := time.Now().Add(2 * time.Second)
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

func TestDuplexStream(t *testing.T) {
	sdk := newFakeSDK()
	rec := &recorder{out: []float32{0.5, -0.5}}
	sh := start(t, sdk, duplexConfig(), rec)

	info := sh.StreamInfo()
	if info.Backend != dawio.BackendAlsa {
		t.Errorf("backend = %s, want alsa", info.Backend)
	}
	if info.BufferSize != dawio.Fixed(128) {
		t.Errorf("buffer size = %s, want fixed(128)", info.BufferSize)
	}
	if info.NumInputs() != 1 || info.InPorts[0].ConnectedToIndex != 1 {
		t.Errorf("inputs = %+v, want one port on channel 1", info.InPorts)
	}

	out := sdk.last(Playback)
	if out == nil || out.format().String() != "S16_LE" {
		t.Fatalf("playback not opened as S16_LE")
	}
	if !eventually(func() bool {
		played := out.played()
		return len(played) == 256 && played[0] == 0.5 && played[1] == -0.5
	}) {
		t.Errorf("playback did not receive the handler output")
	}
	if !eventually(func() bool {
		in := rec.lastInput()
		return len(in) == 1 && len(in[0]) == 128 && in[0][0] == 0.25
	}) {
		t.Errorf("input did not carry capture channel 1")
	}
}

func TestOutputOnlySkipsCapture(t *testing.T) {
	sdk := newFakeSDK()
	cfg := duplexConfig()
	cfg.InputChannels = dawio.Use([]int{})
	start(t, sdk, cfg, &recorder{})

	if sdk.last(Capture) != nil {
		t.Error("capture should not be opened without inputs")
	}
	if sdk.last(Playback) == nil {
		t.Error("playback should be opened")
	}
}

func TestNoAcceptedFormat(t *testing.T) {
	sdk := newFakeSDK()
	sdk.accept = nil
	_, err := newHost(sdk).Run(context.Background(), duplexConfig(), dawio.DefaultRunOptions(), &recorder{})
	if !errors.Is(err, dawio.ErrPlatformSpecific) {
		t.Fatalf("Run error = %v, want platform specific", err)
	}
	for _, p := range sdk.opened {
		if !p.isClosed() {
			t.Errorf("%s PCM left open", p.dir)
		}
	}
}

func TestSampleRateNotHonoured(t *testing.T) {
	sdk := newFakeSDK()
	sdk.forceRate = 44100
	cfg := duplexConfig()
	cfg.SampleRate = dawio.Use[uint32](48000)
	_, err := newHost(sdk).Run(context.Background(), cfg, dawio.DefaultRunOptions(), &recorder{})
	if !errors.Is(err, dawio.ErrCouldNotUseSampleRate) {
		t.Fatalf("Run error = %v, want could not use sample rate", err)
	}
}

func TestXrunRecovers(t *testing.T) {
	sdk := newFakeSDK()
	sh := start(t, sdk, duplexConfig(), &recorder{})

	in := sdk.last(Capture)
	before := in.prepareCount()
	in.fail(ErrXrun)

	if !eventually(func() bool { return sh.Stats().Xruns == 1 }) {
		t.Fatalf("xruns = %d, want 1", sh.Stats().Xruns)
	}
	if got := in.prepareCount(); got <= before {
		t.Errorf("prepare count = %d, want more than %d", got, before)
	}
	cycles := sh.Stats().Cycles
	if !eventually(func() bool { return sh.Stats().Cycles > cycles }) {
		t.Error("stream stopped after xrun")
	}
}

func TestFatalTransferError(t *testing.T) {
	sdk := newFakeSDK()
	sh := start(t, sdk, duplexConfig(), &recorder{})

	sdk.last(Playback).fail(errors.New("bad fd"))
	msg := waitMsg(t, sh.Messages(), dawio.MsgError)
	if msg.Err.Kind != dawio.StreamPlatformSpecific {
		t.Errorf("error kind = %s, want platform specific", msg.Err.Kind)
	}
	select {
	case <-sh.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop")
	}
}

func TestDisconnectAndReconnect(t *testing.T) {
	sdk := newFakeSDK()
	sh := start(t, sdk, duplexConfig(), &recorder{})
	msgs := sh.Messages()

	sdk.setUnplugged(true)
	msg := waitMsg(t, msgs, dawio.MsgAudioDeviceDisconnected)
	if msg.Device.Identifier != "hw:1,0" {
		t.Errorf("disconnected device = %s, want hw:1,0", msg.Device)
	}

	cycles := sh.Stats().Cycles
	if !eventually(func() bool { return sh.Stats().Cycles > cycles+3 }) {
		t.Error("engine not driven while the device is gone")
	}

	sdk.setUnplugged(false)
	if !eventually(func() bool { return sdk.plug(1) }) {
		t.Fatal("hotplug watcher never registered")
	}
	waitMsg(t, msgs, dawio.MsgAudioDeviceReconnected)

	out := sdk.last(Playback)
	if out.isClosed() {
		t.Error("reopened playback is closed")
	}
}

func TestChangeAudioPorts(t *testing.T) {
	sdk := newFakeSDK()
	sh := start(t, sdk, duplexConfig(), &recorder{})

	bad := []int{2}
	err := sh.ChangeAudioPortConfig(nil, &bad)
	if kind, ok := dawio.ChangeKind(err); !ok || kind != dawio.InvalidPort {
		t.Fatalf("out of range change = %v, want invalid port", err)
	}

	swapped := []int{1, 0}
	if err := sh.ChangeAudioPortConfig(nil, &swapped); err != nil {
		t.Fatalf("ChangeAudioPortConfig: %v", err)
	}
	info := sh.StreamInfo()
	if info.OutPorts[0].ConnectedToIndex != 1 || info.OutPorts[0].ConnectedToName != "playback_2" {
		t.Errorf("out_1 = %+v, want playback_2", info.OutPorts[0])
	}

	if err := sh.ChangeBlockSizeConfig(256); err == nil {
		t.Error("block size change should be rejected")
	}
}

func TestStopClosesDevices(t *testing.T) {
	sdk := newFakeSDK()
	sh := start(t, sdk, duplexConfig(), &recorder{})
	if err := sh.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	for _, p := range sdk.opened {
		if !p.isClosed() {
			t.Errorf("%s PCM left open", p.dir)
		}
	}
}
