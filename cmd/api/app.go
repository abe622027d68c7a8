package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/onnwee/refmarket/internal/api"
	"github.com/onnwee/refmarket/internal/audit"
	"github.com/onnwee/refmarket/internal/auth"
	"github.com/onnwee/refmarket/internal/candidate"
	"github.com/onnwee/refmarket/internal/circle"
	"github.com/onnwee/refmarket/internal/config"
	"github.com/onnwee/refmarket/internal/db"
	"github.com/onnwee/refmarket/internal/health"
	"github.com/onnwee/refmarket/internal/interest"
	"github.com/onnwee/refmarket/internal/jobs"
	"github.com/onnwee/refmarket/internal/middleware"
	"github.com/onnwee/refmarket/internal/ranking"
	"github.com/onnwee/refmarket/internal/reputation"
	"github.com/onnwee/refmarket/internal/requirement"
	"github.com/onnwee/refmarket/internal/response"
	"github.com/onnwee/refmarket/internal/tracing"
)

const shutdownTimeout = 10 * time.Second

// responseRepository is everything the API reads and writes on responses.
type responseRepository interface {
	ranking.OutcomeSource
	ListByRequirement(ctx context.Context, requirementID string, status response.Status) ([]response.Response, error)
	GetByID(ctx context.Context, id string) (*response.Response, error)
	UpdateStatus(ctx context.Context, id string, next response.Status) (*response.Response, error)
}

// stores are the storage backends behind the handlers. Postgres and Redis in
// production, in-memory repositories in tests.
type stores struct {
	Requirements requirement.Repository
	Responses    responseRepository
	Snapshots    ranking.SnapshotSource
	Interests    ranking.InterestSource
	Circles      ranking.CircleSource
	Reputations  reputation.Store
	Audit        audit.Repository

	// Redis, when set, backs the ranking rate limit. Otherwise counters are per process.
	Redis *redis.Client

	DBChecker    api.HealthChecker
	RedisChecker api.HealthChecker
}

// app is the assembled server: the HTTP handler and the background job it owns.
type app struct {
	handler    http.Handler
	recompute  *reputation.RecomputeJob
	reputation *reputation.Service
	rateLimits middleware.RateLimitStore
}

// newApp wires stores into the ranking engine, the reputation pipeline, the
// API routes and the middleware chain. Every collector is registered on reg.
func newApp(cfg *config.Config, s stores, reg *prometheus.Registry, logger *slog.Logger) (*app, error) {
	rankingMetrics := ranking.NewMetrics()
	reputationMetrics := reputation.NewMetrics()
	jobMetrics := jobs.NewMetrics()
	httpMetrics := middleware.NewMetrics()
	for name, register := range map[string]func(prometheus.Registerer) error{
		"ranking":    rankingMetrics.Register,
		"reputation": reputationMetrics.Register,
		"jobs":       jobMetrics.Register,
		"http":       httpMetrics.Register,
	} {
		if err := register(reg); err != nil {
			return nil, fmt.Errorf("failed to register %s metrics: %w", name, err)
		}
	}

	weights, err := ranking.LoadCalibration(cfg.RankingCalibrationPath)
	if err != nil {
		logger.Warn("ranking calibration not applied, using default weights", "error", err)
	}

	engine := ranking.NewEngine(ranking.EngineConfig{
		Requirements: s.Requirements,
		Responses:    s.Responses,
		Outcomes:     s.Responses,
		Snapshots:    s.Snapshots,
		Interests:    s.Interests,
		Circles:      s.Circles,
		Weights:      weights,
		Metrics:      rankingMetrics,
		Logger:       logger,
	})

	tracker := reputation.NewDirtyTracker()
	repService := reputation.NewService(s.Reputations, s.Responses, tracker)
	job := reputation.NewRecomputeJob(reputation.RecomputeJobConfig{
		Interval:   cfg.ReputationRecomputeInterval,
		Timeout:    reputation.DefaultRecomputeTimeout,
		BatchSize:  reputation.DefaultBatchSize,
		Logger:     logger,
		Metrics:    reputationMetrics,
		JobMetrics: jobMetrics,
	}, tracker, s.Responses, s.Reputations)

	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.JWTPreviousSecret)

	var rateLimits middleware.RateLimitStore = middleware.NewInMemoryRateLimitStore()
	if s.Redis != nil {
		rateLimits = middleware.NewRedisRateLimitStore(s.Redis, httpMetrics, logger)
	}

	responseHandlers := api.NewResponseHandlers(engine, s.Responses, s.Requirements, repService)
	if s.Audit != nil {
		responseHandlers.WithAuditor(audit.NewRecorder(s.Audit, logger))
	}
	healthHandlers := api.NewHealthHandlers(api.HealthHandlersConfig{
		DBChecker:    s.DBChecker,
		RedisChecker: s.RedisChecker,
	})

	mux := api.NewRouter(api.RouterConfig{
		Responses:      responseHandlers,
		Reputation:     api.NewReputationHandlers(repService),
		Health:         healthHandlers,
		Authenticate:   middleware.Authenticate(jwtService),
		RankingLimiter: middleware.RateLimiter(rateLimits, middleware.DefaultRankingLimit(), middleware.ViewerKeyFunc(), httpMetrics),
		Metrics:        promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
	})

	// RequestID -> Tracing -> Logging -> HTTPMetrics -> routes
	var handler http.Handler = mux
	handler = middleware.HTTPMetrics(httpMetrics)(handler)
	handler = middleware.Logging(logger)(handler)
	handler = middleware.Tracing(tracing.DefaultServiceName)(handler)
	handler = middleware.RequestID(handler)

	return &app{handler: handler, recompute: job, reputation: repService, rateLimits: rateLimits}, nil
}

// run connects to the backends, serves until ctx is cancelled and shuts down
// in reverse order.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	provider, err := tracing.NewProvider(tracing.Config{
		ServiceName:  tracing.DefaultServiceName,
		Enabled:      cfg.TracingEnabled,
		Environment:  cfg.Env,
		ExporterType: cfg.TracingExporter,
		OTLPEndpoint: cfg.OTLPEndpoint,
		SamplingRate: cfg.TracingSampleRate,
		InsecureMode: cfg.TracingInsecure,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown tracing", "error", err)
		}
	}()

	conn, err := db.Open(ctx, cfg.DatabaseURL, db.DefaultPoolConfig())
	if err != nil {
		return err
	}
	defer conn.Close()

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("invalid redis URL: %w", err)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
	} else {
		logger.Warn("REDIS_URL not set, using in-process caches and rate limits")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a, err := newApp(cfg, productionStores(conn, redisClient, cfg, logger), reg, logger)
	if err != nil {
		return err
	}

	if err := a.recompute.Start(ctx); err != nil {
		return fmt.Errorf("failed to start reputation recompute job: %w", err)
	}
	defer a.recompute.Stop()

	if store, ok := a.rateLimits.(*middleware.InMemoryRateLimitStore); ok {
		go cleanupRateLimits(ctx, store, middleware.DefaultRankingLimit().WindowDuration)
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	logger.Info("starting server", "port", cfg.Port)
	return serve(ctx, newServer(a.handler), ln, logger)
}

// productionStores builds the Postgres repositories, with Redis in front of
// candidate snapshots and behind reputations and rate limits when configured.
func productionStores(conn *sql.DB, redisClient *redis.Client, cfg *config.Config, logger *slog.Logger) stores {
	s := stores{
		Requirements: requirement.NewPostgresRepository(conn),
		Responses:    response.NewPostgresRepository(conn),
		Snapshots:    candidate.NewPostgresRepository(conn),
		Interests:    interest.NewPostgresRepository(conn),
		Circles:      circle.NewPostgresRepository(conn),
		Audit:        audit.NewPostgresRepository(conn),
		DBChecker:    health.NewDBChecker(conn),
	}

	if redisClient == nil {
		s.Reputations = reputation.NewInMemoryStore()
		return s
	}

	s.Snapshots = candidate.NewCachedSnapshotSource(s.Snapshots, redisClient, cfg.SnapshotCacheTTL, logger)
	s.Reputations = reputation.NewRedisStore(redisClient, 0)
	s.Redis = redisClient
	s.RedisChecker = health.NewRedisChecker(redisClient)
	return s
}

// cleanupRateLimits drops expired in-process counters every few windows.
func cleanupRateLimits(ctx context.Context, store *middleware.InMemoryRateLimitStore, window time.Duration) {
	ticker := time.NewTicker(5 * window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			store.Cleanup()
		}
	}
}

func newServer(handler http.Handler) *http.Server {
	return &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// serve runs srv on ln until ctx is cancelled, then drains in-flight requests
// for up to shutdownTimeout.
func serve(ctx context.Context, srv *http.Server, ln net.Listener, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}
