package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/clubmatch/clubmatch/internal/api"
	"github.com/clubmatch/clubmatch/internal/audit"
	"github.com/clubmatch/clubmatch/internal/circuitbreaker"
	"github.com/clubmatch/clubmatch/internal/config"
	"github.com/clubmatch/clubmatch/internal/db"
	"github.com/clubmatch/clubmatch/internal/export"
	"github.com/clubmatch/clubmatch/internal/mailer"
	"github.com/clubmatch/clubmatch/internal/metrics"
	"github.com/clubmatch/clubmatch/internal/notify"
	"github.com/clubmatch/clubmatch/internal/observ"
	"github.com/clubmatch/clubmatch/internal/ratelimit"
	"github.com/clubmatch/clubmatch/internal/redis"
	"github.com/clubmatch/clubmatch/internal/retry"
	"github.com/clubmatch/clubmatch/internal/template"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting clubmatch gateway",
		zap.String("env", cfg.Env),
		zap.Int("port", cfg.Port),
		zap.String("mail_provider", cfg.MailProvider),
	)

	ctx := context.Background()

	database, err := db.New(ctx, db.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	logger.Info("database connection established",
		zap.String("host", cfg.DBHost),
		zap.String("database", cfg.DBName),
	)

	deliveryRepo := db.NewDeliveryLogRepository(database, logger)
	auditRepo := db.NewAuditRepository(database, logger)

	// Redis backs the edge rate limiter and shared audit counters. Without
	// it the in-process limiter still protects a single instance.
	var limiter ratelimit.Limiter
	redisClient, err := redis.New(ctx, redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		logger.Warn("redis unavailable, falling back to in-process rate limiting",
			zap.Error(err),
			zap.String("host", cfg.RedisHost),
		)
		limiter = ratelimit.NewMemoryLimiter()
	} else {
		defer redisClient.Close()
		limiter = redis.NewRateLimiter(redisClient, logger)
	}

	mailClient, err := newMailClient(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create mail client: %w", err)
	}

	breaker := circuitbreaker.New(circuitbreaker.Config{
		Name:            "mail-transport",
		MaxFailures:     5,
		RecoveryTimeout: 30 * time.Second,
	}, logger)
	protected := circuitbreaker.NewProtectedClient(mailClient, breaker)

	engine := retry.New(protected, deliveryRepo, retry.Config{}, logger)

	renderer, err := template.NewRenderer(template.Config{
		PlatformName: cfg.PlatformName,
		PlatformURL:  cfg.PlatformURL,
	})
	if err != nil {
		return fmt.Errorf("failed to create template renderer: %w", err)
	}

	orchestrator := notify.New(renderer, engine, notify.Config{
		ApprovalRetries: cfg.ApprovalRetries,
		WelcomeRetries:  cfg.WelcomeRetries,
		WelcomeDelay:    cfg.WelcomeDelay,
		SendTimeout:     cfg.SendTimeout,
	}, logger)

	recorder := audit.NewRecorder(auditRepo, limiter, logger)

	exporter := export.NewClient(export.Config{
		BaseURL: cfg.ExportServiceURL,
	}, logger)

	handler := api.NewHandler(logger, orchestrator, engine, deliveryRepo, recorder, auditRepo, exporter)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(metrics.Middleware)

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration_ms", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	})

	r.Group(func(r chi.Router) {
		// Edge budget per admin, per IP when no admin identity is present.
		r.Use(api.RateLimitMiddleware(limiter, logger, edgeKeyFunc, 100, time.Minute))
		handler.Routes(r)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := database.Health(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		if redisClient != nil {
			if err := redisClient.Ping(r.Context()); err != nil {
				http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second, // notification sends can span full retry schedules
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			srv.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}

		logger.Info("server stopped gracefully")
	}

	return nil
}

func newMailClient(ctx context.Context, cfg *config.Config, logger *zap.Logger) (mailer.Client, error) {
	switch cfg.MailProvider {
	case config.MailProviderSES:
		return mailer.NewSESClient(ctx, mailer.SESConfig{
			Region:  cfg.AWSRegion,
			From:    cfg.MailFrom,
			ReplyTo: cfg.MailReplyTo,
		}, logger)
	case config.MailProviderHTTP:
		return mailer.NewProviderClient(mailer.ProviderConfig{
			BaseURL: cfg.MailAPIBaseURL,
			APIKey:  cfg.MailAPIKey,
			From:    cfg.MailFrom,
			ReplyTo: cfg.MailReplyTo,
			Timeout: cfg.SendTimeout,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unknown mail provider %q", cfg.MailProvider)
	}
}

func edgeKeyFunc(r *http.Request) string {
	if key := api.AdminKeyFunc(r); key != "" {
		return key
	}
	return api.IPKeyFunc(r)
}
