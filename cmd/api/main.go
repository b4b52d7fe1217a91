package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"server/internal/adapter/repo"
	"server/internal/conditioning"
	"server/internal/engine"
	"server/internal/generation"
	"server/internal/http/handlers"
	httpapi "server/internal/http/httpapi"
	"server/internal/infra"
	"server/internal/infra/credentials"
	"server/internal/infra/geoip"
	"server/internal/middleware"
	"server/internal/ratelimit"
	"server/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	runner := infra.NewSQLRunner(dbpool, logger)

	// Hosted-engine tokens: environment first, database fallback.
	creds := credentials.NewStore(runner)
	if cfg.ReplicateAPIToken == "" {
		if token, err := creds.ReplicateAPIToken(ctx); err == nil {
			cfg.ReplicateAPIToken = token
		}
	}
	if cfg.HFAPIToken == "" {
		if token, err := creds.HFAPIToken(ctx); err == nil {
			cfg.HFAPIToken = token
		}
	}

	store, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize file store")
	}

	priority, err := generation.ParsePriority(cfg.EnginePriority)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid ENGINE_PRIORITY")
	}

	limiter := ratelimit.NewLimiter(ratelimit.Config{
		FreeDailyLimit: cfg.FreeDailyLimit,
		Cooldown:       time.Duration(cfg.CooldownSecs) * time.Second,
		HourlyCeiling:  cfg.HourlyCeiling,
	})

	orchestrator, err := generation.NewOrchestrator(generation.Options{
		Limiter:        limiter,
		Adapter:        conditioning.NewAdapter(cfg.Resolution),
		Factory:        engine.NewFactory(&logger),
		Priority:       priority,
		Configs:        generation.EngineConfigs(cfg),
		AttemptTimeout: cfg.GenerationTimeout,
		Logger:         &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to assemble generation pipeline")
	}

	var lookup middleware.CountryLookup
	if resolver, err := geoip.NewResolver(cfg.GeoIPDBPath); err != nil {
		logger.Warn().Err(err).Msg("geoip resolver disabled")
	} else if resolver != nil {
		lookup = resolver.CountryCode
	}

	app := &handlers.App{
		SQL:          runner,
		Designs:      repo.NewDesignRepository(dbpool),
		Orchestrator: orchestrator,
		Store:        store,
		Config:       cfg,
		Logger:       logger,
	}

	router := httpapi.NewRouter(app, lookup)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
