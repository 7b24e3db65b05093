package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"momentum-peaks/internal/cache"
	"momentum-peaks/internal/config"
	"momentum-peaks/internal/forecast"
	"momentum-peaks/internal/handlers"
	"momentum-peaks/internal/repository"
	"momentum-peaks/internal/services"
	"momentum-peaks/pkg/database"
	"momentum-peaks/pkg/logging"
	"momentum-peaks/pkg/metrics"
)

const version = "1.0.0"

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewStructuredLogger("momentum-api", version, cfg.LogLevel())

	ctx := context.Background()
	logger.Info(ctx, "[STARTUP] Starting momentum peaks API server", logging.Fields{
		"version":       version,
		"environment":   cfg.Environment,
		"server_host":   cfg.Server.Host,
		"server_port":   cfg.Server.Port,
		"db_host":       cfg.Database.Host,
		"db_name":       cfg.Database.Database,
		"redis_enabled": cfg.Redis.Enabled,
		"scheme":        cfg.Scheme(),
	})

	metricsCollector := metrics.NewCollector("momentum_peaks")

	venueRegistry, err := cfg.LoadVenues()
	if err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to load venue table", logging.Fields{
			"venues_file": cfg.VenuesFile,
		}, err)
	}
	for _, w := range venueRegistry.Warnings() {
		logger.Warn(ctx, "[VENUE_CONFIG_WARNING] Venue table accepted with warning", logging.Fields{"warning": w})
	}

	db, err := database.NewPostgresDB(cfg.Postgres(), logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to connect to database", logging.Fields{}, err)
	}
	defer db.Close()

	salesRepo := repository.NewSalesRepository(db, logger, metricsCollector)

	checks := map[string]handlers.HealthCheck{
		"database": db.HealthCheck,
	}

	// The forecast cache is optional; without Redis every request recomputes.
	var forecastCache services.ForecastCache
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()

		fc := cache.NewForecastCache(client, cfg.Forecast.CacheTTL, logger, metricsCollector)
		if err := fc.Ping(ctx); err != nil {
			logger.Warn(ctx, "[STARTUP_REDIS_UNAVAILABLE] Redis not reachable, cache calls will miss", logging.Fields{
				"redis_addr": cfg.Redis.Addr,
				"error":      err.Error(),
			})
		}
		forecastCache = fc
		checks["redis"] = fc.Ping
	}

	engine := forecast.NewEngine(cfg.Scheme(), cfg.Forecast.FlatFeeWindowDays)

	// Initialize services
	scoreService := services.NewScoreService(venueRegistry, logger, metricsCollector)
	forecastService := services.NewForecastService(salesRepo, venueRegistry, engine, forecastCache, logger, metricsCollector)
	recordService := services.NewRecordService(salesRepo, venueRegistry, forecastService, logger, metricsCollector)
	summaryService := services.NewSummaryService(salesRepo, venueRegistry, cfg.FiscalStart(), logger, metricsCollector)

	router := handlers.NewRouter(handlers.Routes{
		Venues:  handlers.NewVenueHandler(scoreService, forecastService, logger, metricsCollector),
		Records: handlers.NewRecordHandler(recordService, summaryService, logger, metricsCollector),
		Health:  handlers.NewHealthHandler(checks, logger),
		Metrics: promhttp.Handler(),
	}, logger, metricsCollector)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info(ctx, "[SERVER_START] HTTP server listening", logging.Fields{
			"address": server.Addr,
		})

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal(ctx, "[SERVER_ERROR] Server failed", logging.Fields{}, err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "[SHUTDOWN] Shutting down server...", logging.Fields{})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "[SHUTDOWN_ERROR] Server forced to shutdown", logging.Fields{}, err)
	}

	logger.Info(ctx, "[SHUTDOWN_COMPLETE] Server stopped", logging.Fields{})
}
