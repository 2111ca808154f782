package api

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/smazurov/dawio/internal/api/models"
	"github.com/smazurov/dawio/internal/events"
	"github.com/smazurov/dawio/internal/logging"
	"github.com/smazurov/dawio/internal/session"
	"github.com/smazurov/dawio/internal/systemd"
	"github.com/smazurov/dawio/internal/version"
	"github.com/smazurov/dawio/pkg/dawio"
)

// Enumerator lists backends and their devices.
type Enumerator interface {
	AvailableAudioBackends() []dawio.Backend
	AvailableMidiBackends() []dawio.Backend
	EnumerateAudioBackend(ctx context.Context, b dawio.Backend) (dawio.AudioBackendInfo, error)
	EnumerateMidiBackend(ctx context.Context, b dawio.Backend) (dawio.MidiBackendInfo, error)
}

// Stream is the running session the control endpoints act on.
type Stream interface {
	ID() string
	Status() session.Status
	ChangePorts(in, out *[]int) error
	ChangeJackPorts(in, out *[]string) error
	ChangeBlockSize(frames uint32) error
	ChangeMidi(in, out *[]dawio.MidiPortConfig) error
}

// UnitManager controls audio server units.
type UnitManager interface {
	Status(ctx context.Context, unit string) (systemd.UnitStatus, error)
	Restart(ctx context.Context, unit string) error
}

// Options configures the API server.
type Options struct {
	AuthUsername string
	AuthPassword string
	Host         Enumerator
	Stream       Stream
	Bus          *events.Bus
	Systemd      UnitManager  // Optional, systemd routes are skipped when nil
	Metrics      http.Handler // Optional Prometheus handler served at /metrics
}

// Server is the HTTP control surface of a dawio stream.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	options    *Options
	logger     *slog.Logger
}

// basicAuthMiddleware creates middleware for HTTP basic authentication
func (s *Server) basicAuthMiddleware(username, password string) func(huma.Context, func(huma.Context)) {
	deny := func(ctx huma.Context, msg string, errs ...error) {
		ctx.SetHeader("WWW-Authenticate", `Basic realm="dawio"`)
		huma.WriteErr(s.api, ctx, http.StatusUnauthorized, msg, errs...)
	}
	return func(ctx huma.Context, next func(huma.Context)) {
		op := ctx.Operation()
		if op != nil && len(op.Security) == 0 {
			next(ctx)
			return
		}

		var encoded string
		if header := ctx.Header("Authorization"); header != "" {
			const prefix = "Basic "
			if !strings.HasPrefix(header, prefix) {
				deny(ctx, "Invalid authentication type")
				return
			}
			encoded = header[len(prefix):]
		} else {
			// EventSource cannot set headers
			encoded = ctx.Query("auth")
		}
		if encoded == "" {
			deny(ctx, "Authentication required")
			return
		}
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			deny(ctx, "Invalid credentials format", err)
			return
		}
		user, pass, ok := strings.Cut(string(decoded), ":")
		if !ok {
			deny(ctx, "Invalid credentials format")
			return
		}
		if user != username || pass != password {
			deny(ctx, "Invalid credentials")
			return
		}
		next(ctx)
	}
}

// NewServer creates the API server on a fresh ServeMux.
func NewServer(opts *Options) *Server {
	mux := http.NewServeMux()

	corsConfig := DefaultCORSConfig()
	AddCORSHandler(mux, corsConfig)

	config := huma.DefaultConfig("dawio API", version.Get().Version)
	config.Info.Description = "Audio and MIDI stream control"
	config.Servers = []*huma.Server{}
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"basicAuth": {
			Type:   "http",
			Scheme: "basic",
		},
	}

	api := humago.New(mux, config)
	server := newServer(api, opts)
	server.mux = mux

	api.UseMiddleware(NewCORSMiddleware(corsConfig))
	api.UseMiddleware(HTTPLoggingMiddleware)
	if opts.AuthUsername != "" && opts.AuthPassword != "" {
		api.UseMiddleware(server.basicAuthMiddleware(opts.AuthUsername, opts.AuthPassword))
	}

	// Scrapers do not authenticate
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics)
	}

	server.registerRoutes()
	return server
}

func newServer(api huma.API, opts *Options) *Server {
	if opts.Bus == nil {
		opts.Bus = events.New()
	}
	return &Server{
		api:     api,
		options: opts,
		logger:  logging.GetLogger("api"),
	}
}

// Handler returns the HTTP handler serving the API.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// API returns the Huma API instance
func (s *Server) API() huma.API {
	return s.api
}

// Start serves on addr until Stop is called.
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting API server", "addr", addr)
	s.logger.Info("OpenAPI documentation available", "url", "http://"+addr+"/docs")

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.mux,
	}
	return s.httpServer.ListenAndServe()
}

// Stop closes the listener and every open connection, SSE clients
// included.
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")
	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health",
		Description: "Check API health status",
		Tags:        []string{"health"},
		Security:    []map[string][]string{},
	}, func(ctx context.Context, input *struct{}) (*models.HealthResponse, error) {
		return &models.HealthResponse{
			Body: models.HealthData{
				Status:  "ok",
				Message: "API is healthy",
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Description: "Get application version and the audio backends of this platform",
		Tags:        []string{"system"},
		Security:    []map[string][]string{},
	}, func(ctx context.Context, input *struct{}) (*models.VersionResponse, error) {
		info := version.Get()
		for _, b := range s.options.Host.AvailableAudioBackends() {
			info.Backends = append(info.Backends, string(b))
		}
		return &models.VersionResponse{Body: info}, nil
	})

	s.registerBackendRoutes()
	s.registerStreamRoutes()
	s.registerSSERoutes()
	s.registerLogRoutes()
	s.registerSystemdRoutes()
}

// withAuth returns security requirement for basic auth
func withAuth() []map[string][]string {
	return []map[string][]string{
		{"basicAuth": {}},
	}
}
