package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/smazurov/dawio/cmd"
	"github.com/smazurov/dawio/internal/api"
	"github.com/smazurov/dawio/internal/config"
	"github.com/smazurov/dawio/internal/events"
	"github.com/smazurov/dawio/internal/led"
	"github.com/smazurov/dawio/internal/logging"
	"github.com/smazurov/dawio/internal/metrics/collectors"
	"github.com/smazurov/dawio/internal/metrics/exporters"
	"github.com/smazurov/dawio/internal/nats"
	"github.com/smazurov/dawio/internal/session"
	"github.com/smazurov/dawio/internal/systemd"
	"github.com/smazurov/dawio/internal/tone"
	"github.com/smazurov/dawio/pkg/dawio"
	_ "github.com/smazurov/dawio/pkg/dawio/all"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to options file" short:"c" default:"dawio.toml" toml:"-"`

	// Server settings
	Port string `help:"Port to listen on" short:"p" default:":8095" toml:"server.port" env:"SERVER_PORT"`

	// Stream settings
	StreamID          string `help:"Stream identifier used in events and NATS subjects" default:"main" toml:"stream.id" env:"STREAM_ID"`
	StreamProfile     string `help:"Stream profile file, watched for changes" default:"profile.toml" toml:"stream.profile" env:"STREAM_PROFILE"`
	StreamDebounce    string `help:"Profile reload debounce" default:"500ms" toml:"stream.debounce" env:"STREAM_DEBOUNCE"`
	StreamTone        int    `help:"Sine frequency in Hz mixed into the outputs (0 disables)" default:"0" toml:"stream.tone" env:"STREAM_TONE"`
	StreamPassthrough bool   `help:"Copy inputs to outputs" default:"false" toml:"stream.passthrough" env:"STREAM_PASSTHROUGH"`
	StreamMidiThru    bool   `help:"Copy MIDI inputs to MIDI outputs" default:"false" toml:"stream.midi_thru" env:"STREAM_MIDI_THRU"`

	// Metrics settings
	MetricsEnabled    bool   `help:"Serve Prometheus metrics at /metrics" default:"true" toml:"metrics.enabled" env:"METRICS_ENABLED"`
	MetricsBackendTTL string `help:"How long backend enumeration is cached for metrics" default:"30s" toml:"metrics.backend_ttl" env:"METRICS_BACKEND_TTL"`
	MetricsInterval   string `help:"Stream stats sampling interval" default:"1s" toml:"metrics.interval" env:"METRICS_INTERVAL"`

	// NATS settings
	NatsEmbedded bool   `help:"Run an embedded NATS server" default:"false" toml:"nats.embedded" env:"NATS_EMBEDDED"`
	NatsPort     int    `help:"Embedded NATS server port" default:"4222" toml:"nats.port" env:"NATS_PORT"`
	NatsURL      string `help:"External NATS server URL (ignored with an embedded server)" default:"" toml:"nats.url" env:"NATS_URL"`

	// Systemd settings
	SystemdEnabled   bool   `help:"Expose audio server units over the API" default:"false" toml:"systemd.enabled" env:"SYSTEMD_ENABLED"`
	SystemdSystemBus bool   `help:"Use the system bus instead of the user bus" default:"false" toml:"systemd.system_bus" env:"SYSTEMD_SYSTEM_BUS"`
	SystemdUnits     string `help:"Comma-separated units the API may control" default:"" toml:"systemd.units" env:"SYSTEMD_UNITS"`

	// Features settings
	FeaturesLEDControl bool   `help:"Show stream state on a board LED" default:"false" toml:"features.led_control_enabled" env:"FEATURES_LED_CONTROL"`
	FeaturesLEDName    string `help:"sysfs LED name (empty detects the board's status LED)" default:"" toml:"features.led_name" env:"FEATURES_LED_NAME"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"admin" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Logging settings
	LoggingLevel  string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
}

func duration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func handler(opts *Options) dawio.ProcessHandler {
	var chain tone.Chain
	if opts.StreamPassthrough {
		chain = append(chain, tone.Passthrough{Gain: 1})
	}
	if opts.StreamTone > 0 {
		s := tone.NewSine(float64(opts.StreamTone), 0.1)
		s.FollowMidi = true
		chain = append(chain, s)
	}
	if opts.StreamMidiThru {
		chain = append(chain, tone.MidiThru{})
	}
	return chain
}

func units(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, u := range strings.Split(s, ",") {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}

func main() {
	host := dawio.DefaultHost()

	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.Load(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load options", "error", loadErr)
		}

		logging.Initialize(config.LoggingConfig(opts.Config, logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
		}))
		logger := logging.GetLogger("main")

		eventBus := events.New()
		logging.OnEntry(func(e logging.Entry) {
			eventBus.Publish(api.LogEvent(e))
		})

		profile, err := config.LoadProfile(opts.StreamProfile)
		if err != nil {
			logger.Warn("Profile not loaded, opening the default stream", "path", opts.StreamProfile, "error", err)
		}
		sess := session.New(session.Options{
			ID:            opts.StreamID,
			Host:          host,
			Handler:       handler(opts),
			Bus:           eventBus,
			Profile:       profile,
			BaseOptions:   dawio.DefaultRunOptions(),
			ProfilePath:   opts.StreamProfile,
			Debounce:      duration(opts.StreamDebounce, config.DefaultDebounce),
			StatsInterval: duration(opts.MetricsInterval, time.Second),
		})

		apiOpts := &api.Options{
			AuthUsername: opts.AuthUsername,
			AuthPassword: opts.AuthPassword,
			Host:         host,
			Stream:       sess,
			Bus:          eventBus,
		}
		if opts.MetricsEnabled {
			apiOpts.Metrics = exporters.HTTPHandler(collectors.NewBackendCollector(host, duration(opts.MetricsBackendTTL, 30*time.Second)))
		}

		var unitManager *systemd.Manager
		if opts.SystemdEnabled {
			m, dbusErr := systemd.NewManager(context.Background(), opts.SystemdSystemBus, units(opts.SystemdUnits))
			if dbusErr != nil {
				logger.Warn("Systemd control disabled", "error", dbusErr)
			} else {
				unitManager = m
				apiOpts.Systemd = m
			}
		}

		var ledManager *led.Manager
		if opts.FeaturesLEDControl {
			ledLogger := logging.GetLogger("led")
			ctrl := led.New(opts.FeaturesLEDName, ledLogger)
			if names := ctrl.Available(); len(names) > 0 {
				ledManager = led.NewManager(ctrl, names[0], opts.StreamID, eventBus, ledLogger)
			}
		}

		server := api.NewServer(apiOpts)
		sseExporter := exporters.NewSSEExporter(eventBus)

		var natsServer *nats.Server
		var bridge *nats.Bridge

		hooks.OnStart(func() {
			ctx := context.Background()
			sseExporter.Start(ctx)
			if ledManager != nil {
				ledManager.Start()
			}

			if startErr := sess.Start(ctx); startErr != nil {
				// The API keeps serving so the stream can be inspected and restarted.
				logger.Error("Failed to start stream", "error", startErr)
			}

			natsURL := opts.NatsURL
			if opts.NatsEmbedded {
				natsOpts := nats.DefaultServerOptions()
				natsOpts.Port = opts.NatsPort
				natsOpts.Logger = logging.GetLogger("nats")
				natsOpts.Debug = strings.EqualFold(opts.LoggingLevel, "debug")
				natsServer = nats.NewServer(natsOpts)
				if startErr := natsServer.Start(); startErr != nil {
					logger.Error("Failed to start NATS server", "error", startErr)
					natsServer = nil
				} else {
					natsURL = natsServer.ClientURL()
				}
			}
			if natsURL != "" {
				bridge = nats.NewBridge(natsURL, sess, eventBus, logging.GetLogger("nats"))
				if startErr := bridge.Start(); startErr != nil {
					logger.Warn("NATS bridge not started", "url", natsURL, "error", startErr)
					bridge = nil
				}
			}

			if _, notifyErr := daemon.SdNotify(false, daemon.SdNotifyReady); notifyErr != nil {
				logger.Debug("sd_notify failed", "error", notifyErr)
			}

			logger.Info("Starting HTTP server", "port", opts.Port)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")
			_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}
			if bridge != nil {
				bridge.Stop()
			}
			if natsServer != nil {
				natsServer.Stop()
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if stopErr := sess.Stop(ctx); stopErr != nil {
				logger.Error("Error stopping stream", "error", stopErr)
			}
			sseExporter.Stop()
			if ledManager != nil {
				ledManager.Stop()
			}
			if unitManager != nil {
				unitManager.Close()
			}
		})
	})

	cli.Root().Use = "dawio"
	cli.Root().Short = "Audio and MIDI I/O across Jack, ALSA, CoreAudio, WASAPI and ASIO"
	cli.Root().AddCommand(
		cmd.CreateDevicesCmd(host),
		cmd.CreateRunCmd(host),
		cmd.CreateMidiCmd(host),
		cmd.CreateValidateCmd(host),
	)

	cli.Run()
}
