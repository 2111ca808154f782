package api

import (
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

// CORSConfig holds CORS configuration. An empty Origins list allows any
// origin.
type CORSConfig struct {
	Origins      []string
	AllowMethods []string
	AllowHeaders []string
	MaxAge       int
}

// DefaultCORSConfig lets browser dashboards on any origin read the stream
// and post control changes.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Content-Type", "Authorization", "Accept", "Last-Event-ID"},
		MaxAge:       600,
	}
}

type corsHeaders struct {
	origins []string
	methods string
	headers string
	maxAge  string
}

func newCORSHeaders(config CORSConfig) corsHeaders {
	return corsHeaders{
		origins: config.Origins,
		methods: strings.Join(config.AllowMethods, ", "),
		headers: strings.Join(config.AllowHeaders, ", "),
		maxAge:  strconv.Itoa(config.MaxAge),
	}
}

// origin returns the Access-Control-Allow-Origin value for a request
// origin, or "" when the origin is not allowed.
func (c corsHeaders) origin(reqOrigin string) string {
	if len(c.origins) == 0 {
		return "*"
	}
	if slices.Contains(c.origins, reqOrigin) {
		return reqOrigin
	}
	return ""
}

func (c corsHeaders) apply(reqOrigin string, set func(key, value string)) {
	allow := c.origin(reqOrigin)
	if allow == "" {
		return
	}
	set("Access-Control-Allow-Origin", allow)
	if allow != "*" {
		set("Vary", "Origin")
	}
	set("Access-Control-Allow-Methods", c.methods)
	set("Access-Control-Allow-Headers", c.headers)
	set("Access-Control-Max-Age", c.maxAge)
}

// NewCORSMiddleware sets CORS headers on every API response.
func NewCORSMiddleware(config CORSConfig) func(huma.Context, func(huma.Context)) {
	c := newCORSHeaders(config)
	return func(ctx huma.Context, next func(huma.Context)) {
		c.apply(ctx.Header("Origin"), ctx.SetHeader)
		if ctx.Method() == http.MethodOptions {
			ctx.SetStatus(http.StatusNoContent)
			return
		}
		next(ctx)
	}
}

// AddCORSHandler answers preflight requests on mux. huma routes only the
// registered operations, so OPTIONS never reaches the middleware.
func AddCORSHandler(mux *http.ServeMux, config CORSConfig) {
	c := newCORSHeaders(config)
	mux.HandleFunc("OPTIONS /", func(w http.ResponseWriter, r *http.Request) {
		c.apply(r.Header.Get("Origin"), w.Header().Set)
		w.WriteHeader(http.StatusNoContent)
	})
}
