package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/ehr/intake/internal/config"
	"github.com/ehr/intake/internal/domain/intake"
	"github.com/ehr/intake/internal/domain/messaging"
	"github.com/ehr/intake/internal/platform/auth"
	"github.com/ehr/intake/internal/platform/db"
	"github.com/ehr/intake/internal/platform/dedup"
	"github.com/ehr/intake/internal/platform/lock"
	"github.com/ehr/intake/internal/platform/middleware"
	"github.com/ehr/intake/internal/platform/report"
	"github.com/ehr/intake/internal/platform/whatsapp"
)

func newLogger(env string, out io.Writer) zerolog.Logger {
	if env == "development" {
		out = zerolog.ConsoleWriter{Out: out}
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg.Env, os.Stdout)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	var pool *pgxpool.Pool
	var records intake.RecordStore = intake.NewMemoryStore()
	var reports report.Store = report.NewMemoryStore()
	if cfg.RecordStore == config.StorePostgres {
		pool, err = db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		records = intake.NewPostgresStore(pool)
		reports = report.NewPostgresStore(pool)
		logger.Info().Msg("connected to database")
	} else {
		logger.Warn().Msg("using in-memory record store, records are lost on restart")
	}

	// Redis
	var locker intake.Locker = lock.NewMemory()
	var seen messaging.Deduper = dedup.NewMemory(cfg.DedupTTL, cfg.DedupMaxEntries)
	if cfg.RedisURL != "" {
		rdb, err := connectRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer rdb.Close()
		locker = lock.NewRedis(rdb, cfg.TurnLockTTL, logger)
		seen = dedup.NewRedis(rdb, "intake:seen:", cfg.DedupTTL)
		logger.Info().Msg("connected to redis")
	}

	// Interview
	ext, ass := buildOracle(cfg, logger)
	engine := intake.NewEngine(ext, ass, logger)

	dispatcher := report.NewDispatcher(reports, report.NewPDFRenderer(cfg.ReportFontPath),
		engine.Catalog(), engine.Issues(), cfg.ReportWorkers, logger)
	// Reports outlive the signal so turns finishing during shutdown still
	// get one; shutdown cancels reportCtx once its deadline passes.
	reportCtx, stopReports := context.WithCancel(context.WithoutCancel(ctx))
	defer stopReports()
	reportsDone := make(chan struct{})
	go func() {
		defer close(reportsDone)
		if err := dispatcher.Run(reportCtx); err != nil {
			logger.Error().Err(err).Msg("report dispatcher stopped")
		}
	}()

	svc := intake.NewService(engine, records, logger,
		intake.WithLocker(locker, cfg.TurnLockWait),
		intake.WithReportScheduler(dispatcher),
	)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout, "/webhooks/"))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))

	var staff echo.MiddlewareFunc
	if cfg.IsDev() && cfg.AuthSigningKey == "" {
		logger.Warn().Msg("development mode without AUTH_SIGNING_KEY: staff endpoints are open")
		staff = auth.DevAuthMiddleware()
	} else {
		staff = auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			SigningKey: []byte(cfg.AuthSigningKey),
		})
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	apiV1 := e.Group("/api/v1")
	turnLimit := middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		KeyFunc:           intake.PatientKey,
	})
	intake.NewHandler(svc, turnLimit).RegisterRoutes(apiV1, staff)
	report.NewHandler(reports).RegisterRoutes(apiV1, staff)

	var gateway *messaging.Gateway
	if cfg.WhatsAppEnabled() {
		client := whatsapp.NewClient(whatsapp.Config{
			APIBase:       cfg.WhatsAppAPIBase,
			PhoneNumberID: cfg.WhatsAppPhoneNumberID,
			AccessToken:   cfg.WhatsAppAccessToken,
		})
		gateway = messaging.NewGateway(svc, client, seen, messaging.Options{
			ReplyCooldown: cfg.ReplyCooldown,
			TurnTimeout:   cfg.RequestTimeout,
		}, logger)
		messaging.NewHandler(gateway, cfg.WhatsAppVerifyToken, cfg.WhatsAppAppSecret).RegisterRoutes(e)
		logger.Info().Str("phone_number_id", cfg.WhatsAppPhoneNumberID).Msg("whatsapp webhook enabled")
	}

	addr := ":" + cfg.Port
	go func() {
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown")
	}
	if gateway != nil {
		if err := gateway.Wait(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("in-flight messages abandoned")
		}
	}
	dispatcher.Close()
	select {
	case <-reportsDone:
	case <-shutdownCtx.Done():
		logger.Warn().Msg("pending reports abandoned")
		stopReports()
		<-reportsDone
	}
	return nil
}
