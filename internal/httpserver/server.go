package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger is implemented by any dependency the readiness check should
// verify (a database pool, a Redis client). Server skips nil entries —
// used when an optional dependency (e.g. Redis) is not configured.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server holds the HTTP server dependencies: the router plus health and
// metrics endpoints. Domain handlers are mounted on Router by callers
// after NewServer returns.
type Server struct {
	Router    *chi.Mux
	Logger    *slog.Logger
	Metrics   *prometheus.Registry
	startedAt time.Time

	ready []Pinger
}

// NewServer creates an HTTP server with middleware and health/metrics
// endpoints mounted. ready lists dependencies the /readyz endpoint
// verifies; a nil entry is skipped.
func NewServer(corsAllowedOrigins []string, logger *slog.Logger, metricsReg *prometheus.Registry, ready ...Pinger) *Server {
	s := &Server{
		Router:    chi.NewRouter(),
		Logger:    logger,
		Metrics:   metricsReg,
		startedAt: time.Now(),
		ready:     ready,
	}

	s.Router.Use(RequestID)
	s.Router.Use(Logger(logger))
	s.Router.Use(Metrics)
	s.Router.Use(middleware.Recoverer)
	s.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s.Router.Get("/healthz", s.handleHealthz)
	s.Router.Get("/readyz", s.handleReadyz)
	s.Router.Handle("/metrics", promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	Respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	for _, p := range s.ready {
		if p == nil {
			continue
		}
		if err := p.Ping(ctx); err != nil {
			s.Logger.Error("readiness check failed", "error", err)
			RespondError(w, http.StatusServiceUnavailable, "unavailable", err.Error())
			return
		}
	}
	Respond(w, http.StatusOK, map[string]string{
		"status": "ready",
		"uptime": time.Since(s.startedAt).Truncate(time.Second).String(),
	})
}
