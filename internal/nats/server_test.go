package nats

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestServerLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	l := serverLogger{slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))}

	l.Noticef("listening on %d", 4222)
	l.Warnf("slow consumer %s", "cid:3")
	l.Debugf("hidden %d", 1)
	l.Tracef("hidden %d", 2)

	out := buf.String()
	for _, want := range []string{"level=INFO msg=\"listening on 4222\"", "level=WARN msg=\"slow consumer cid:3\""} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "hidden") {
		t.Errorf("debug lines leaked at info level:\n%s", out)
	}
}

func TestServerClientURLBeforeStart(t *testing.T) {
	s := NewServer(ServerOptions{Port: 0})
	if got := s.ClientURL(); got != "nats://127.0.0.1:4222" {
		t.Errorf("ClientURL() = %q", got)
	}
	if s.IsRunning() {
		t.Error("server reports running before Start")
	}
}
