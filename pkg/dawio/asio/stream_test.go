package asio

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/smazurov/dawio/pkg/dawio"
)

func newHost(sdk *fakeSDK) *dawio.Host {
	h := dawio.NewHost("windows")
	Register(h, sdk)
	return h
}

func asioConfig() dawio.Config {
	cfg := dawio.DefaultConfig()
	cfg.AudioBackend = dawio.Use(dawio.BackendAsio)
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

func TestDuplexStreamUsesPreferredBuffer(t *testing.T) {
	sdk := newFakeSDK()
	cfg := asioConfig()
	cfg.InputChannels = dawio.Use([]int{2})
	rec := &recorder{out: []float32{0.25, 0.75}}
	sh := start(t, sdk, cfg, rec)

	info := sh.StreamInfo()
	if info.BufferSize != dawio.Fixed(256) {
		t.Errorf("buffer size = %s, want fixed 256", info.BufferSize)
	}
	st := sdk.last()
	if st.cfg.Frames != 256 || st.cfg.InChannels != 8 || st.cfg.OutChannels != 8 {
		t.Errorf("stream config = %+v", st.cfg)
	}
	if !eventually(func() bool {
		out := st.output()
		return len(out) == 256*8 && out[0] == 0.25 && out[1] == 0.75 && out[2] == 0
	}) {
		t.Error("driver buffer did not receive the handler output")
	}
	if !eventually(func() bool {
		in := rec.lastInput()
		return len(in) == 1 && len(in[0]) == 256 && math.Abs(float64(in[0][0])-0.25) < 1e-6
	}) {
		t.Error("input did not carry driver channel 3")
	}
	if got := rec.lastFrames(); got != 256 {
		t.Errorf("process frames = %d, want 256", got)
	}
}

func TestExplicitBlockSize(t *testing.T) {
	sdk := newFakeSDK()
	cfg := asioConfig()
	cfg.BlockSize = dawio.Use[uint32](128)
	sh := start(t, sdk, cfg, &recorder{})

	if got := sh.StreamInfo().BufferSize; got != dawio.Fixed(128) {
		t.Errorf("buffer size = %s, want fixed 128", got)
	}
	if sdk.last().cfg.Frames != 128 {
		t.Errorf("driver frames = %d, want 128", sdk.last().cfg.Frames)
	}
}

func TestBlockSizeChangeRefused(t *testing.T) {
	sh := start(t, newFakeSDK(), asioConfig(), &recorder{})
	if sh.CanChangeBlockSize() {
		t.Error("asio advertises block size changes")
	}
	err := sh.ChangeBlockSizeConfig(64)
	if kind, ok := dawio.ChangeKind(err); !ok || kind != dawio.NotSupportedByBackend {
		t.Errorf("ChangeBlockSizeConfig = %v, want not supported", err)
	}
}

func TestChangeAudioPorts(t *testing.T) {
	sh := start(t, newFakeSDK(), asioConfig(), &recorder{})
	outs := []int{6, 7}
	if err := sh.ChangeAudioPortConfig(nil, &outs); err != nil {
		t.Fatalf("ChangeAudioPortConfig: %v", err)
	}
	ports := sh.StreamInfo().OutPorts
	if len(ports) != 2 || ports[1].ConnectedToName != "output_8" {
		t.Errorf("out ports = %+v", ports)
	}
}

func TestInitFailureIsNotInstalled(t *testing.T) {
	sdk := newFakeSDK()
	sdk.initErr = ErrNoHostAPI
	_, err := newHost(sdk).Run(context.Background(), asioConfig(), dawio.DefaultRunOptions(), &recorder{})
	if !errors.Is(err, dawio.ErrAudioBackendNotInstalled) {
		t.Fatalf("Run error = %v, want backend not installed", err)
	}
}

func TestStopReleasesDriver(t *testing.T) {
	sdk := newFakeSDK()
	sh := start(t, sdk, asioConfig(), &recorder{})
	if err := sh.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !sdk.last().isClosed() {
		t.Error("driver left open")
	}
}
