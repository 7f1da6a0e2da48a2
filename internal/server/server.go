// Package server exposes session-scoped selection controllers over a JSON
// API for a browser map.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/vacancy-map/internal/choropleth"
	"github.com/sells-group/vacancy-map/internal/geometry"
	"github.com/sells-group/vacancy-map/internal/pipeline"
	"github.com/sells-group/vacancy-map/internal/resilience"
)

// Deps are the collaborators the API needs.
type Deps struct {
	Loader pipeline.Loader
	// States lists state selector options.
	States geometry.StateSource
	// Counties lists county selector options for a state.
	Counties pipeline.AttributeSource
	Ramp     *choropleth.Ramp
	// Breakers are reported by /health, keyed by upstream name.
	Breakers map[string]*resilience.Breaker
}

// Options tunes the server.
type Options struct {
	SessionTTL  time.Duration
	CORSOrigins []string
	// WaitTimeout caps POST /wait. Default 30s.
	WaitTimeout time.Duration
}

// Server is the HTTP API.
type Server struct {
	deps     Deps
	opts     Options
	sessions *Sessions
}

// New creates a Server.
func New(deps Deps, opts Options) *Server {
	if deps.Ramp == nil {
		deps.Ramp = choropleth.DefaultRamp()
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = 30 * time.Second
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	return &Server{
		deps:     deps,
		opts:     opts,
		sessions: NewSessions(deps.Loader, opts.SessionTTL),
	}
}

// Sessions returns the session store.
func (s *Server) Sessions() *Sessions { return s.sessions }

// Run evicts idle sessions until ctx ends, then closes the rest.
func (s *Server) Run(ctx context.Context) {
	s.sessions.Run(ctx)
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/levels", s.handleLevels)
		r.Get("/ramp", s.handleRamp)
		r.Get("/states", s.handleStates)
		r.Get("/states/{state}/counties", s.handleCounties)

		r.Post("/sessions", s.handleCreateSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", s.handleView)
			r.Delete("/", s.handleDeleteSession)
			r.Get("/layer", s.handleLayer)
			r.Get("/export", s.handleExport)
			r.Put("/state", s.handleSelectState)
			r.Put("/county", s.handleSelectCounty)
			r.Put("/level", s.handleSetLevel)
			r.Put("/activate", s.handleActivate)
			r.Put("/hover", s.handleHover)
			r.Delete("/hover", s.handleHoverEnd)
			r.Post("/wait", s.handleWait)
			r.Delete("/error", s.handleDismissError)
			r.Delete("/selection", s.handleResetSelection)
		})
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("component", "server"),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
