// Package main provides the entry point for the AgencyTrack referral
// tracking service: tracking-link redirects, LINE webhook attribution,
// and the agency dashboard API on a single HTTP port.
package main

import (
	"AgencyTrack-Backend/internal/analytics"
	"AgencyTrack-Backend/internal/attribution"
	"AgencyTrack-Backend/internal/auth"
	"AgencyTrack-Backend/internal/config"
	"AgencyTrack-Backend/internal/database"
	"AgencyTrack-Backend/internal/forwarder"
	httpHandler "AgencyTrack-Backend/internal/handler/http"
	"AgencyTrack-Backend/internal/lineapi"
	"AgencyTrack-Backend/internal/ratelimit"
	"AgencyTrack-Backend/internal/repository/postgres"
	"AgencyTrack-Backend/internal/service"
	"AgencyTrack-Backend/pkg/logger"
	"AgencyTrack-Backend/pkg/useragent"
	"context"
	"fmt"
	lg "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

func main() {
	cfg := config.MustLoad()
	log := logger.New(cfg.Env)
	defer func() {
		if err := log.Sync(); err != nil {
			lg.Printf("ERROR: failed to sync zap logger: %v\n", err)
		}
	}()

	log.Info("starting AgencyTrack service", zap.String("env", cfg.Env))

	// Initialize database connection
	db, err := database.NewConnection(&cfg.Database, log)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := database.Close(db, log); err != nil {
			log.Error("failed to close database connection", zap.Error(err))
		}
	}()

	// Run database migrations if enabled
	if cfg.Database.AutoMigrate {
		log.Info("running database migrations (auto_migrate: true)")
		if err := database.AutoMigrate(db, log); err != nil {
			log.Fatal("failed to run database migrations", zap.Error(err))
		}
	} else {
		log.Info("skipping database migrations (auto_migrate: false)")
	}

	// Seed tracked services if enabled
	if cfg.Database.SeedData {
		log.Info("seeding database with initial data (seed_data: true)")
		if err := database.SeedData(db, log); err != nil {
			log.Fatal("failed to seed database", zap.Error(err))
		}
	} else {
		log.Info("skipping database seeding (seed_data: false)")
	}

	// Initialize User-Agent parser; the fallback parser still classifies
	// device type from substrings if the regex file is missing.
	uaParser, err := useragent.NewParser(cfg.Tracking.RegexesPath, log)
	if err != nil {
		log.Warn("failed to initialize User-Agent parser, using fallback", zap.Error(err))
		uaParser = nil
	}

	storage := postgres.New(db, log)

	// Visit/session bookkeeping runs off the request path.
	processor := analytics.NewProcessor(storage, uaParser, log, analytics.DefaultConfig())
	if err := processor.Start(); err != nil {
		log.Fatal("failed to start visit processor", zap.Error(err))
	}
	defer func() {
		if err := processor.Stop(); err != nil {
			log.Error("failed to stop visit processor", zap.Error(err))
		}
	}()

	// Attribution core: matcher links LINE identities to visits/sessions,
	// recorder writes the conversion ledger.
	matcher := attribution.NewMatcher(storage, log)
	recorder := attribution.NewRecorder(storage, log)

	// One LINE API client per configured channel; services without an
	// access token skip profile fetching.
	lineClients := make(map[string]*lineapi.Client)
	for _, code := range []string{"taskmate", "subsidy"} {
		channel := cfg.Line.Channel(code)
		if channel == nil || channel.ChannelAccessToken == "" {
			log.Info("LINE channel not configured, skipping client", zap.String("service", code))
			continue
		}
		lineClients[code] = lineapi.NewClient(channel.ChannelAccessToken, log)
	}

	fw := forwarder.New("agencytrack", log)

	jwtService := auth.NewJWTService(&auth.JWTConfig{
		SecretKey:           []byte(cfg.Auth.JWTSecret),
		AccessTokenDuration: cfg.Auth.AccessTokenTTL,
		Issuer:              cfg.Auth.Issuer,
	})
	passwordService := auth.NewPasswordService()

	httpAPIServer := httpHandler.NewServer(
		storage,
		service.NewTrackingLinkService(storage, &cfg.Tracking),
		processor,
		matcher,
		recorder,
		lineClients,
		fw,
		jwtService,
		passwordService,
		&cfg.Line,
		&cfg.Tracking,
		func(ctx context.Context) error { return database.HealthCheck(db) },
		log,
	)

	var handler http.Handler = httpAPIServer.SetupRoutes()

	// Optional Redis-backed rate limiting on the whole surface; the
	// limiter fails open so Redis outages never take down redirects.
	if cfg.Redis.Enabled {
		redisClient, err := ratelimit.NewRedisClient(&cfg.Redis, log)
		if err != nil {
			log.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Error("failed to close redis connection", zap.Error(err))
			}
		}()

		limiter := ratelimit.New(redisClient, 120, time.Minute, "http", log)
		handler = limiter.Middleware(handler)
		log.Info("rate limiting enabled", zap.String("redis_addr", cfg.Redis.Addr))
	}

	addr := fmt.Sprintf(":%d", cfg.HTTPServer.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.HTTPServer.ReadTimeout,
		WriteTimeout: cfg.HTTPServer.WriteTimeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	log.Info("starting HTTP server", zap.String("address", addr))

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server failed", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down AgencyTrack service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to shutdown HTTP server", zap.Error(err))
	} else {
		log.Info("HTTP server stopped")
	}
}
