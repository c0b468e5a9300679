package httpserver

import (
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/botfleet/creditcore/internal/config"
	"github.com/botfleet/creditcore/internal/identity"
)

// Server holds the HTTP server dependencies.
type Server struct {
	Router    *chi.Mux
	APIRouter chi.Router // identity-scoped /api/v1 sub-router
	Logger    *slog.Logger
	DB        *pgxpool.Pool
	Redis     *redis.Client
	Metrics   *prometheus.Registry
	startedAt time.Time
}

// NewServer creates an HTTP server with middleware and health/metrics endpoints.
// Domain handlers should be mounted on APIRouter after calling NewServer.
func NewServer(cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry) *Server {
	s := &Server{
		Router:    chi.NewRouter(),
		Logger:    logger,
		DB:        db,
		Redis:     rdb,
		Metrics:   metricsReg,
		startedAt: time.Now(),
	}

	// Global middleware
	s.Router.Use(RequestID)
	s.Router.Use(Logger(logger))
	s.Router.Use(Metrics)
	s.Router.Use(middleware.Recoverer)
	s.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-Identity-Tenant-Id", "X-Identity-Role", "X-Identity-Subject"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints (unauthenticated)
	s.Router.Get("/healthz", s.handleHealthz)
	s.Router.Get("/readyz", s.handleReadyz)
	s.Router.Get("/status", s.HandleStatus)

	// Prometheus metrics (unauthenticated)
	s.Router.Handle(cfg.MetricsPath, promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))

	// Identity-scoped API routes. The identity header set is populated by an
	// upstream authentication gateway; this service trusts it and does not
	// issue or verify credentials itself.
	s.Router.Route("/api/v1", func(r chi.Router) {
		r.Use(identity.Middleware)
		s.APIRouter = r
	})

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

	if err := s.DB.Ping(ctx); err != nil {
		s.Logger.Error("readiness check: database ping failed", "error", err)
		RespondError(w, http.StatusServiceUnavailable, "unavailable", "database not ready")
		return
	}

	if err := s.Redis.Ping(ctx).Err(); err != nil {
		s.Logger.Error("readiness check: redis ping failed", "error", err)
		RespondError(w, http.StatusServiceUnavailable, "unavailable", "redis not ready")
		return
	}

	Respond(w, http.StatusOK, map[string]string{"status": "ready"})
}

// statusResponse is the JSON shape returned by HandleStatus.
type statusResponse struct {
	Status          string  `json:"status"`
	Uptime          string  `json:"uptime"`
	UptimeSeconds   int64   `json:"uptime_seconds"`
	Database        string  `json:"database"`
	DatabaseLatency float64 `json:"database_latency_ms"`
	Redis           string  `json:"redis"`
	RedisLatency    float64 `json:"redis_latency_ms"`
}

// HandleStatus returns system health information including DB/Redis connectivity and uptime.
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uptime := time.Since(s.startedAt)

	resp := statusResponse{
		Uptime:        uptime.Truncate(time.Second).String(),
		UptimeSeconds: int64(uptime.Seconds()),
	}

	dbStart := time.Now()
	if err := s.DB.Ping(ctx); err != nil {
		s.Logger.Error("status check: database ping failed", "error", err)
		resp.Database = "error"
	} else {
		resp.Database = "ok"
	}
	resp.DatabaseLatency = math.Round(float64(time.Since(dbStart).Microseconds())/10) / 100

	redisStart := time.Now()
	if err := s.Redis.Ping(ctx).Err(); err != nil {
		s.Logger.Error("status check: redis ping failed", "error", err)
		resp.Redis = "error"
	} else {
		resp.Redis = "ok"
	}
	resp.RedisLatency = math.Round(float64(time.Since(redisStart).Microseconds())/10) / 100

	if resp.Database == "ok" && resp.Redis == "ok" {
		resp.Status = "ok"
	} else {
		resp.Status = "degraded"
	}

	Respond(w, http.StatusOK, resp)
}
