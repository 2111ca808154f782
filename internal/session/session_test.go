package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/smazurov/dawio/internal/config"
	"github.com/smazurov/dawio/internal/events"
	"github.com/smazurov/dawio/pkg/dawio"
	"github.com/smazurov/dawio/pkg/dawio/jack"
	"github.com/smazurov/dawio/pkg/dawio/jack/jackmock"
)

func jackProfile() config.Profile {
	return config.Profile{
		Audio: config.AudioProfile{Backend: "jack", Outputs: &[]int{0, 1}},
		Midi:  &config.MidiProfile{Disabled: true},
	}
}

func newServer() *jackmock.Server {
	srv := jackmock.NewServer(48000, 64)
	srv.AddSystemPorts(2, 2, 0, 0)
	return srv
}

func newSession(t *testing.T, srv *jackmock.Server, opts Options) *Session {
	t.Helper()
	h := dawio.NewHost("linux")
	jack.Register(h, srv.SDK())
	opts.Host = h
	if opts.Handler == nil {
		opts.Handler = dawio.ProcessFunc(func(dawio.ProcessInfo) {})
	}
	if opts.Bus == nil {
		opts.Bus = events.New()
	}
	if opts.ID == "" {
		opts.ID = t.Name()
	}
	s := New(opts)
	t.Cleanup(func() { _ = s.Stop(context.Background()) })
	return s
}

func watch[T events.Event](t *testing.T, bus *events.Bus) <-chan T {
	t.Helper()
	ch := make(chan T, 32)
	t.Cleanup(events.Subscribe(bus, func(e T) { ch <- e }))
	return ch
}

func next[T any](t *testing.T, ch <-chan T, match func(T) bool) T {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case v := <-ch:
			if match == nil || match(v) {
				return v
			}
		case <-deadline:
			var zero T
			t.Fatalf("no matching %T within deadline", zero)
			return zero
		}
	}
}

func TestStartStop(t *testing.T) {
	srv := newServer()
	bus := events.New()
	states := watch[events.StreamStateEvent](t, bus)
	s := newSession(t, srv, Options{Profile: jackProfile(), Bus: bus})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ev := next(t, states, nil)
	if ev.State != "running" || ev.Backend != dawio.BackendJack || ev.SampleRate != 48000 {
		t.Errorf("state event = %+v", ev)
	}
	if err := s.Start(context.Background()); err == nil {
		t.Error("second Start succeeded")
	}

	st := s.Status()
	if st.State != "running" || st.Info == nil || len(st.Info.OutPorts) != 2 {
		t.Errorf("status = %+v", st)
	}

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if s.Handle() != nil {
		t.Error("handle kept after Stop")
	}
	if st := s.Status(); st.State != "stopped" {
		t.Errorf("state after stop = %s", st.State)
	}
}

func TestStartFailure(t *testing.T) {
	srv := newServer()
	srv.SetOpenError(errors.New("cannot connect to server"))
	bus := events.New()
	states := watch[events.StreamStateEvent](t, bus)
	s := newSession(t, srv, Options{Profile: jackProfile(), Bus: bus})

	if err := s.Start(context.Background()); err == nil {
		t.Fatal("Start succeeded without a server")
	}
	if ev := next(t, states, nil); ev.State != "failed" || ev.Error == "" {
		t.Errorf("state event = %+v", ev)
	}
	if st := s.Status(); st.Error == "" {
		t.Error("status does not carry the failure")
	}
}

func TestMessagesReachBus(t *testing.T) {
	srv := newServer()
	bus := events.New()
	msgs := watch[events.StreamMsgEvent](t, bus)
	states := watch[events.StreamStateEvent](t, bus)
	s := newSession(t, srv, Options{Profile: jackProfile(), Bus: bus})
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	srv.Shutdown("server went away")
	ev := next(t, msgs, func(e events.StreamMsgEvent) bool { return e.Msg.Kind == dawio.MsgError })
	if ev.Msg.Err.Kind != dawio.AudioServerShutdown || ev.StreamID != s.ID() {
		t.Errorf("message event = %+v", ev)
	}
	next(t, states, func(e events.StreamStateEvent) bool { return e.State == "stopped" })
	if s.Handle() != nil {
		t.Error("handle kept after the stream closed")
	}
}

func TestControlPlane(t *testing.T) {
	srv := newServer()
	bus := events.New()
	changes := watch[events.StreamChangedEvent](t, bus)
	s := newSession(t, srv, Options{Profile: jackProfile(), Bus: bus})

	if err := s.ChangeBlockSize(128); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("change before start = %v, want ErrNotRunning", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := s.ChangePorts(nil, &[]int{1, 0}); err != nil {
		t.Fatalf("ChangePorts: %v", err)
	}
	ev := next(t, changes, nil)
	if ev.Change != ChangePorts || ev.Info.OutPorts[0].ConnectedToIndex != 1 {
		t.Errorf("change event = %+v", ev)
	}

	err := s.ChangeBlockSize(128)
	if kind, ok := dawio.ChangeKind(err); !ok || kind != dawio.NotSupportedByBackend {
		t.Errorf("block size change on jack = %v", err)
	}
}

func TestApplyProfile(t *testing.T) {
	srv := newServer()
	bus := events.New()
	reloads := watch[events.ProfileReloadedEvent](t, bus)
	s := newSession(t, srv, Options{Profile: jackProfile(), Bus: bus})
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	p := jackProfile()
	p.Audio.Outputs = &[]int{1}
	p.Audio.BlockSize = 256
	p.Audio.SampleRate = 96000

	ev := s.ApplyProfile(p)
	if !slices.Equal(ev.Applied, []string{ChangePorts}) {
		t.Errorf("applied = %v", ev.Applied)
	}
	if ev.Error == "" {
		t.Error("block size change on jack should fail")
	}
	if !slices.Equal(ev.Restart, []string{"audio.sample_rate"}) {
		t.Errorf("restart = %v", ev.Restart)
	}
	if got := s.Handle().StreamInfo().OutPorts; len(got) != 1 || got[0].ConnectedToName != "system:playback_2" {
		t.Errorf("out ports = %+v", got)
	}
	if s.Profile().Audio.SampleRate != 96000 {
		t.Error("profile not stored")
	}
	next(t, reloads, nil)
}

func TestProfileFileReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.toml")
	if err := config.SaveProfile(path, jackProfile()); err != nil {
		t.Fatal(err)
	}
	p, err := config.LoadProfile(path)
	if err != nil {
		t.Fatal(err)
	}

	srv := newServer()
	bus := events.New()
	reloads := watch[events.ProfileReloadedEvent](t, bus)
	s := newSession(t, srv, Options{Profile: p, ProfilePath: path, Debounce: 20 * time.Millisecond, Bus: bus})
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)

	body := "[audio]\nbackend = \"jack\"\noutputs = [1]\n\n[midi]\ndisabled = true\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	ev := next(t, reloads, func(e events.ProfileReloadedEvent) bool { return len(e.Applied) > 0 })
	if ev.Path != path || !slices.Equal(ev.Applied, []string{ChangePorts}) {
		t.Errorf("reload event = %+v", ev)
	}

	if err := os.WriteFile(path, []byte("[audio]\nbackend = 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if ev := next(t, reloads, func(e events.ProfileReloadedEvent) bool { return e.Error != "" }); len(ev.Applied) != 0 {
		t.Errorf("failed reload applied %v", ev.Applied)
	}
}

type inventoryHost struct{ *dawio.Host }

func TestValidate(t *testing.T) {
	srv := newServer()
	h := dawio.NewHost("linux")
	jack.Register(h, srv.SDK())

	plan, err := Validate(context.Background(), inventoryHost{h}, jackProfile(), dawio.DefaultRunOptions())
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if plan.Backend != dawio.BackendJack || len(plan.Outputs) != 2 {
		t.Errorf("plan = %+v", plan)
	}

	bad := jackProfile()
	bad.Audio.Backend = "wasapi"
	bad.Options.Errors.BackendNotFound = "error"
	if _, err := Validate(context.Background(), inventoryHost{h}, bad, dawio.DefaultRunOptions()); err == nil {
		t.Error("unavailable backend validated")
	}
}
