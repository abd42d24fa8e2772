// Package http exposes the analysis engine over a small JSON API. The
// transport layer is a consumer of engine output; no scoring logic lives
// here.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"finhealth/internal/cache"
	"finhealth/internal/config"
	"finhealth/internal/persistence"
	"finhealth/internal/router"
	"finhealth/internal/telemetry"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`

	// Requests per second allowed per server, with burst headroom.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

// DefaultServerConfig returns local-only defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "127.0.0.1",
		Port:         8080,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
		RateLimit:    20,
		RateBurst:    40,
	}
}

// Server wires the analysis router, config store and optional storage into
// HTTP routes.
type Server struct {
	cfg      ServerConfig
	server   *http.Server
	handlers *Handlers
	limiter  *rate.Limiter
}

// NewServer creates the HTTP server. Cache, repo and metrics may be nil.
func NewServer(
	cfg ServerConfig,
	store *config.Store,
	analysisRouter *router.Router,
	resultCache *cache.ResultCache,
	repo persistence.AnalysisRepo,
	metrics *telemetry.Metrics,
) *Server {
	s := &Server{
		cfg:      cfg,
		handlers: NewHandlers(store, analysisRouter, resultCache, repo, metrics),
		limiter:  rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
	}

	r := mux.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.rateLimitMiddleware)

	api := r.PathPrefix("/").Subrouter()
	api.Use(jsonContentTypeMiddleware)
	api.HandleFunc("/health", s.handlers.Health).Methods("GET")
	api.HandleFunc("/analyze", s.handlers.Analyze).Methods("POST")
	api.HandleFunc("/config/reload", s.handlers.ReloadConfig).Methods("POST")
	api.HandleFunc("/companies/{company}/runs", s.handlers.Runs).Methods("GET")
	api.HandleFunc("/companies/{company}/latest", s.handlers.LatestRun).Methods("GET")

	if metrics != nil {
		r.Handle("/metrics", metrics.Handler()).Methods("GET")
	}
	r.NotFoundHandler = http.HandlerFunc(s.handlers.NotFound)

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Start blocks serving requests until Shutdown or a listener error.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("http server listening")
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("http server shutting down")
	return s.server.Shutdown(ctx)
}

// Handler exposes the full route tree, used by tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

type contextKey string

const requestIDKey contextKey = "request_id"

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()[:8]
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		requestID, _ := r.Context().Value(requestIDKey).(string)
		log.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// responseWrapper captures the status code for request logging.
type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
