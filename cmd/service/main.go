package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-news-api/internal/auth"
	"github.com/kjstillabower/weather-news-api/internal/client"
	"github.com/kjstillabower/weather-news-api/internal/config"
	httphandler "github.com/kjstillabower/weather-news-api/internal/http"
	"github.com/kjstillabower/weather-news-api/internal/lifecycle"
	"github.com/kjstillabower/weather-news-api/internal/observability"
	"github.com/kjstillabower/weather-news-api/internal/service"
	"github.com/kjstillabower/weather-news-api/internal/store"
	"github.com/kjstillabower/weather-news-api/internal/traffic"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}
	state := lifecycle.NewState(time.Now())

	records, err := openStore(cfg)
	if err != nil {
		logger.Fatal("record store", zap.Error(err))
	}
	logger.Info("record store opened", zap.String("backend", cfg.StoreBackend))

	creds, err := auth.NewStaticCredentialStore(auth.DefaultCredentials(), cfg.BcryptCost)
	if err != nil {
		logger.Fatal("credentials", zap.Error(err))
	}
	tokens, err := auth.NewTokenService([]byte(cfg.JWTSecret), cfg.TokenTTL, creds, nil)
	if err != nil {
		logger.Fatal("token service", zap.Error(err))
	}

	weatherClient, err := client.NewOpenWeatherClient(cfg.WeatherAPIKey, cfg.WeatherAPIURL, cfg.WeatherAPITimeout)
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}
	weatherClient.SetCircuitBreaker(client.NewCircuitBreaker(client.BreakerConfig{
		FailureThreshold: cfg.BreakerFailureThreshold,
		HalfOpenRequests: cfg.BreakerHalfOpenRequests,
		OpenTimeout:      cfg.BreakerOpenTimeout,
	}, logger))
	logger.Info("circuit breaker enabled",
		zap.Uint32("failure_threshold", cfg.BreakerFailureThreshold),
		zap.Duration("open_timeout", cfg.BreakerOpenTimeout))

	weatherOutcomes := traffic.NewTracker(cfg.HealthWeatherWindow, nil)
	news := service.NewNewsService(records, nil)
	aggregator := service.NewAggregator(records, weatherClient, cfg.WeatherLocation, cfg.WeatherAPITimeout, weatherOutcomes)

	handler := httphandler.NewHandler(news, aggregator, tokens, &httphandler.HealthConfig{
		StorePing:       records.Ping,
		Weather:         weatherOutcomes,
		WeatherWindow:   cfg.HealthWeatherWindow,
		WeatherErrorPct: cfg.HealthWeatherErrorPct,
		State:           state,
		Version:         version,
	}, logger)

	inFlight := httphandler.NewInFlightTracker()
	router := httphandler.NewRouter(handler, httphandler.RouterConfig{
		SecretID:       cfg.SecretID,
		Tokens:         tokens,
		LoginLimiter:   httphandler.NewClientLimiter(rate.Limit(cfg.LoginRateLimitRPS), cfg.LoginRateLimitBurst),
		RequestTimeout: cfg.RequestTimeout,
		InFlight:       inFlight,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	state.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight.Count()))
	if err := inFlight.WaitForZero(shutdownCtx, 50*time.Millisecond); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", inFlight.Count()))
	}

	if err := records.Close(); err != nil {
		logger.Error("record store close", zap.Error(err))
	}
	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		fmt.Fprintf(os.Stderr, "telemetry flush: %v\n", err)
	}
	logger.Info("shutdown complete")
}

func openStore(cfg *config.Config) (store.RecordStore, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		return store.NewMemoryStore(), nil
	case config.BackendPostgres:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		pg, err := store.OpenPostgres(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, err
		}
		return pg, nil
	default:
		lite, err := store.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return lite, nil
	}
}
