package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	accountshandler "accman/internal/accounts/handler"
	accountsmetrics "accman/internal/accounts/metrics"
	accountsservice "accman/internal/accounts/service"
	"accman/internal/accounts/transfer"
	authhandler "accman/internal/auth/handler"
	"accman/internal/auth/models"
	authservice "accman/internal/auth/service"
	jwttoken "accman/internal/jwt_token"
	"accman/internal/platform/config"
	"accman/internal/platform/httpserver"
	"accman/internal/platform/logger"
	"accman/internal/platform/metrics"
	"accman/internal/platform/middleware"
	"accman/internal/ratelimit"
	"accman/pkg/platform/audit"
	"accman/pkg/platform/audit/publishers/buffered"
	"accman/pkg/platform/audit/publishers/kafka"
	"accman/pkg/platform/circuit"
	"accman/pkg/platform/httputil"
)

const revocationPurgeInterval = 10 * time.Minute

// main wires dependencies and runs the API and metrics servers until SIGINT
// or SIGTERM. Business logic lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log, closer := logger.New(cfg.Log)
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		closer.Close()
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	sink, closeSink, err := auditSink(ctx, cfg.Audit, log)
	if err != nil {
		return err
	}
	defer closeSink()
	auditor := buffered.New(sink, buffered.WithLogger(log))

	r := newRouter(cfg, log, st, auditor, metrics.New(), accountsmetrics.New())

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())

	api := httpserver.New(cfg.Server.Addr, r, cfg.Server, log)
	metricsSrv := httpserver.New(cfg.Server.MetricsAddr, metricsMux, cfg.Server, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return auditor.Run(gctx) })
	g.Go(func() error { return st.purgeRevocations(gctx, revocationPurgeInterval, log) })
	g.Go(func() error { return serve(api, log, "api") })
	g.Go(func() error { return serve(metricsSrv, log, "metrics") })
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
		defer cancel()
		return errors.Join(api.Shutdown(shutdownCtx), metricsSrv.Shutdown(shutdownCtx))
	})
	return g.Wait()
}

// newRouter builds the services and mounts them on a chi router behind the
// shared middleware chain.
func newRouter(cfg config.Config, log *slog.Logger, st *stores, auditor audit.Publisher, platformMetrics *metrics.Metrics, transferMetrics *accountsmetrics.Metrics) http.Handler {
	tokens := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer, cfg.Auth.AccessTokenTTL)
	auth := authservice.New(st.users, st.revocations, tokens,
		authservice.WithLogger(log),
		authservice.WithMetrics(platformMetrics),
		authservice.WithAuditPublisher(auditor),
		authservice.WithPasswordPolicy(models.PasswordPolicy(cfg.Auth.Password)),
	)
	accounts := accountsservice.New(st.accounts,
		transfer.NewImporter(cfg.Accounts.TempDir, log, transfer.WithMaxBytes(cfg.Accounts.MaxUploadBytes)),
		transfer.NewExporter(cfg.Accounts.TempDir, cfg.Accounts.ExportIndent, log),
		accountsservice.WithLogger(log),
		accountsservice.WithMetrics(transferMetrics),
		accountsservice.WithAuditPublisher(auditor),
		accountsservice.WithTxRunner(st.tx),
		accountsservice.WithPageSize(cfg.Accounts.SearchPageSize),
	)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestTime)
	r.Use(middleware.ClientMetadata)
	r.Use(middleware.Logger(log))
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	r.Use(middleware.LatencyMiddleware(platformMetrics))
	r.Use(middleware.LoadUser(auth, cfg.Auth.CookieName, log))
	r.Get("/healthz", healthz(st))

	authhandler.New(auth, log, authhandler.CookieConfig{
		Name:   cfg.Auth.CookieName,
		Secure: cfg.Auth.CookieSecure,
	}, authhandler.WithRateLimit(ratelimit.Middleware(rateLimitStore(st, log), "auth", ratelimit.Policy{
		Limit:  cfg.Auth.RateLimit,
		Window: cfg.Auth.RateLimitWindow,
	}, log))).Register(r)
	accountshandler.New(accounts, log,
		accountshandler.WithMaxUploadBytes(cfg.Accounts.MaxUploadBytes),
	).Register(r)
	return r
}

// rateLimitStore shares counters across instances when Redis is configured
// and drops to local counters while Redis is failing.
func rateLimitStore(st *stores, log *slog.Logger) ratelimit.Store {
	if st.redis != nil {
		return ratelimit.NewFallbackStore(
			ratelimit.NewRedisStore(st.redis.Client),
			ratelimit.NewInMemoryStore(nil),
			circuit.New("redis"),
			log,
		)
	}
	return ratelimit.NewInMemoryStore(nil)
}

func serve(srv *http.Server, log *slog.Logger, name string) error {
	log.Info("starting server", "name", name, "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s server: %w", name, err)
	}
	return nil
}

// auditSink picks Kafka when brokers are configured and the log otherwise.
func auditSink(ctx context.Context, cfg config.AuditConfig, log *slog.Logger) (audit.Publisher, func(), error) {
	if len(cfg.Brokers) == 0 {
		return audit.NewLogPublisher(log), func() {}, nil
	}
	pub, err := kafka.New(ctx, cfg.Brokers, cfg.Topic)
	if err != nil {
		return nil, nil, fmt.Errorf("connect audit brokers: %w", err)
	}
	if err := pub.EnsureTopic(ctx, 1, 1); err != nil {
		pub.Close()
		return nil, nil, err
	}
	log.Info("publishing audit events to kafka", "topic", cfg.Topic)
	return pub, pub.Close, nil
}

func healthz(st *stores) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := map[string]string{"status": "ok"}
		code := http.StatusOK
		if st.db != nil {
			if err := st.db.PingContext(ctx); err != nil {
				status["postgres"], code = "unavailable", http.StatusServiceUnavailable
			}
		}
		if st.redis != nil {
			if err := st.redis.Health(ctx); err != nil {
				status["redis"], code = "unavailable", http.StatusServiceUnavailable
			}
		}
		if code != http.StatusOK {
			status["status"] = "degraded"
		}
		httputil.WriteJSON(w, code, status)
	}
}
