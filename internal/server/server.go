// Package server exposes the recommender over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/mesh-intelligence/fmlearn/internal/recommender"
)

// Config holds listener and middleware settings.
type Config struct {
	Addr string
	// RateLimit is the sustained requests per second. Zero disables limiting.
	RateLimit float64
	RateBurst int
	// MaxBodyBytes caps request bodies.
	MaxBodyBytes    int64
	ShutdownTimeout time.Duration
}

// DefaultConfig returns the default listener settings.
func DefaultConfig() Config {
	return Config{
		Addr:            ":5000",
		RateLimit:       50,
		RateBurst:       100,
		MaxBodyBytes:    1 << 20,
		ShutdownTimeout: 15 * time.Second,
	}
}

// Server is the HTTP front end of a recommender.Service.
type Server struct {
	Router chi.Router
	svc    *recommender.Service
	cfg    Config
	logger zerolog.Logger
}

// New creates a Server with all routes and middleware configured.
func New(svc *recommender.Service, cfg Config, logger zerolog.Logger) *Server {
	s := &Server{
		Router: chi.NewRouter(),
		svc:    svc,
		cfg:    cfg,
		logger: logger.With().Str("component", "server").Logger(),
	}

	r := s.Router
	r.Use(chimw.RequestID)
	r.Use(RequestLogger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(Instrument)
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = int(cfg.RateLimit)
		}
		r.Use(RateLimit(rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)))
	}
	if cfg.MaxBodyBytes > 0 {
		r.Use(MaxBodySize(cfg.MaxBodyBytes))
	}

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	r := s.Router

	r.Get("/healthz", s.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/metric", func(r chi.Router) {
		r.Post("/", s.createMetric)
		r.Get("/", s.listMetrics)

		r.Post("/retrieve/all", s.retrieveAll)
		r.Post("/retrieve/min", s.retrieveMin)
		r.Post("/retrieve/max", s.retrieveMax)

		r.Get("/predict", s.predict)
		r.Post("/predict", s.predict)

		r.Get("/{id}", s.getMetric)
		r.Put("/{id}", s.updateMetric)
		r.Delete("/{id}", s.deleteMetric)
	})
}

// ServeHTTP lets the Server be used directly as a handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

// Run listens on cfg.Addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info().Msg("shutting down server")
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	s.logger.Info().Msg("server stopped gracefully")
	return nil
}
