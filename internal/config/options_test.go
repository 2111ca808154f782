package config

import (
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/dawio/internal/logging"
)

type serveOptions struct {
	Config   string        `toml:"-"`
	Port     int           `toml:"server.port" env:"PORT"`
	Profile  string        `toml:"stream.profile" env:"PROFILE"`
	Debounce time.Duration `toml:"stream.debounce" env:"DEBOUNCE"`
	Gain     float64       `toml:"stream.gain"`
	Nats     bool          `toml:"nats.enabled" env:"NATS"`
	Subjects []string      `toml:"nats.subjects" env:"NATS_SUBJECTS"`
	Buffer   uint32        `toml:"stream.buffer"`
}

const optionsFile = `
[server]
port = 9000

[stream]
profile = "/etc/dawio/profile.toml"
debounce = "250ms"
gain = 1
buffer = 512

[nats]
enabled = true
subjects = ["a", "b"]

[logging]
level = "warn"
format = "json"
alsa = "debug"

[logging.modules]
jack = "error"
`

func newServeCommand(opts *serveOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "serve"}
	cmd.Flags().IntVar(&opts.Port, "port", 8090, "")
	cmd.Flags().StringVar(&opts.Profile, "profile", "profile.toml", "")
	return cmd
}

func TestLoadPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dawio.toml")
	writeProfile(t, path, optionsFile)

	opts := &serveOptions{Config: path, Port: 8090, Profile: "profile.toml"}
	cmd := newServeCommand(opts)
	if err := cmd.Flags().Set("port", "7000"); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DAWIO_PROFILE", "/run/dawio/live.toml")
	t.Setenv("DAWIO_NATS_SUBJECTS", "x, y")

	if err := Load(opts, cmd); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if opts.Port != 7000 {
		t.Errorf("port = %d, want the flag value 7000", opts.Port)
	}
	if opts.Profile != "/run/dawio/live.toml" {
		t.Errorf("profile = %q, want the env value", opts.Profile)
	}
	if opts.Debounce != 250*time.Millisecond || opts.Gain != 1 || !opts.Nats || opts.Buffer != 512 {
		t.Errorf("file values = %+v", opts)
	}
	if !slices.Equal(opts.Subjects, []string{"x", "y"}) {
		t.Errorf("subjects = %v", opts.Subjects)
	}
}

func TestLoadMissingFile(t *testing.T) {
	opts := &serveOptions{Config: filepath.Join(t.TempDir(), "absent.toml"), Port: 8090}
	if err := Load(opts, nil); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if opts.Port != 8090 {
		t.Errorf("port = %d", opts.Port)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		file string
		env  string
	}{
		{name: "wrong type", file: "[server]\nport = \"x\"\n"},
		{name: "negative unsigned", file: "[stream]\nbuffer = -1\n"},
		{name: "bad env duration", env: "soon"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "dawio.toml")
			writeProfile(t, path, tt.file)
			if tt.env != "" {
				t.Setenv("DAWIO_DEBOUNCE", tt.env)
			}
			if err := Load(&serveOptions{Config: path}, nil); err == nil {
				t.Fatal("Load succeeded")
			}
		})
	}
	if err := Load(serveOptions{}, nil); err == nil {
		t.Error("non-pointer accepted")
	}
}

func TestFlagName(t *testing.T) {
	for in, want := range map[string]string{"Port": "port", "LogLevel": "log-level", "CheckSilentInputs": "check-silent-inputs"} {
		if got := flagName(in); got != want {
			t.Errorf("flagName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoggingConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dawio.toml")
	writeProfile(t, path, optionsFile)

	base := logging.Config{Level: "info", Format: "text", Modules: map[string]string{"api": "debug"}}
	got := LoggingConfig(path, base)
	if got.Level != "warn" || got.Format != "json" {
		t.Errorf("level/format = %s/%s", got.Level, got.Format)
	}
	for mod, lvl := range map[string]string{"api": "debug", "alsa": "debug", "jack": "error"} {
		if got.Modules[mod] != lvl {
			t.Errorf("module %s = %q, want %q", mod, got.Modules[mod], lvl)
		}
	}
	if len(base.Modules) != 1 {
		t.Error("base modules were modified")
	}

	if miss := LoggingConfig(filepath.Join(t.TempDir(), "none.toml"), base); miss.Level != "info" {
		t.Errorf("missing file level = %s", miss.Level)
	}
}
