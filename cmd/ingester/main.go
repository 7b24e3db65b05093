package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"

	"momentum-peaks/internal/cache"
	"momentum-peaks/internal/config"
	"momentum-peaks/internal/repository"
	"momentum-peaks/internal/services"
	"momentum-peaks/pkg/database"
	"momentum-peaks/pkg/logging"
	"momentum-peaks/pkg/metrics"
)

func main() {
	// Parse command-line flags
	dataDir := flag.String("data-dir", "./sales_data", "Directory containing VENUE[__CHANNEL].tsv actuals files")
	batchSize := flag.Int("batch-size", 1000, "Number of records to upsert in each batch")
	calculateSummaries := flag.Bool("calculate-summaries", true, "Recalculate fiscal summaries for the ingested years")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewStructuredLogger("momentum-ingester", "1.0.0", cfg.LogLevel())

	ctx := context.Background()
	logger.Info(ctx, "[INGESTER_START] Starting actuals ingestion", logging.Fields{
		"version":             "1.0.0",
		"data_dir":            *dataDir,
		"batch_size":          *batchSize,
		"calculate_summaries": *calculateSummaries,
	})

	metricsCollector := metrics.NewCollector("momentum_ingester")

	venueRegistry, err := cfg.LoadVenues()
	if err != nil {
		logger.Fatal(ctx, "[INGESTER_ERROR] Failed to load venue table", logging.Fields{
			"venues_file": cfg.VenuesFile,
		}, err)
	}

	db, err := database.NewPostgresDB(cfg.Postgres(), logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[INGESTER_ERROR] Failed to connect to database", logging.Fields{}, err)
	}
	defer db.Close()

	salesRepo := repository.NewSalesRepository(db, logger, metricsCollector)

	ingestionService := services.NewIngestionService(salesRepo, venueRegistry, logger, metricsCollector)
	summaryService := services.NewSummaryService(salesRepo, venueRegistry, cfg.FiscalStart(), logger, metricsCollector)

	result, err := ingestionService.IngestDirectory(ctx, *dataDir, *batchSize)
	if err != nil {
		logger.Fatal(ctx, "[INGESTION_ERROR] Ingestion failed", logging.Fields{
			"error": err.Error(),
		}, err)
	}

	// Print results
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("INGESTION COMPLETE")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Total Files:        %d\n", result.TotalFiles)
	fmt.Printf("Total Records:      %d\n", result.TotalRecords)
	fmt.Printf("Successful Records: %d\n", result.SuccessfulRecords)
	fmt.Printf("Failed Records:     %d\n", result.FailedRecords)
	fmt.Printf("Venues:             %s\n", strings.Join(result.Venues, ", "))
	if !result.FirstDate.IsZero() {
		fmt.Printf("Date Range:         %s .. %s\n", result.FirstDate.Format("2006-01-02"), result.LastDate.Format("2006-01-02"))
	}
	fmt.Printf("Duration:           %v\n", result.Duration)

	if len(result.Errors) > 0 {
		fmt.Printf("\nErrors (%d):\n", len(result.Errors))
		for i, errMsg := range result.Errors {
			if i < 10 {
				fmt.Printf("  - %s\n", errMsg)
			}
		}
		if len(result.Errors) > 10 {
			fmt.Printf("  ... and %d more errors\n", len(result.Errors)-10)
		}
	}

	// Forecasts cached by the API are stale once a venue's actuals change
	if cfg.Redis.Enabled && len(result.Venues) > 0 {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()

		fc := cache.NewForecastCache(client, cfg.Forecast.CacheTTL, logger, metricsCollector)
		for _, venueID := range result.Venues {
			n, err := fc.InvalidateVenue(ctx, venueID)
			if err != nil {
				logger.Warn(ctx, "[INGESTER_CACHE_INVALIDATE_FAILED] Cached forecasts left until TTL", logging.Fields{
					"venue_id": venueID,
					"error":    err.Error(),
				})
				continue
			}
			fmt.Printf("Invalidated %d cached forecasts for %s\n", n, venueID)
		}
	}

	if *calculateSummaries && !result.FirstDate.IsZero() {
		fmt.Println("\n" + strings.Repeat("=", 80))
		fmt.Println("CALCULATING FISCAL SUMMARIES")
		fmt.Println(strings.Repeat("=", 80))

		fromFY, toFY := summaryService.FiscalYearsBetween(result.FirstDate, result.LastDate)
		saved, err := summaryService.CalculateSummaries(ctx, fromFY, toFY)
		if err != nil {
			logger.Error(ctx, "[SUMMARY_ERROR] Fiscal summary calculation failed", logging.Fields{
				"from_fiscal_year": fromFY,
				"to_fiscal_year":   toFY,
			}, err)
			fmt.Printf("Fiscal summary calculation failed: %v\n", err)
		} else {
			fmt.Printf("Saved %d fiscal summaries for FY%d..FY%d\n", saved, fromFY, toFY)
		}
	}

	logger.Info(ctx, "[INGESTER_COMPLETE] Ingestion completed successfully", logging.Fields{
		"total_records":      result.TotalRecords,
		"successful_records": result.SuccessfulRecords,
		"failed_records":     result.FailedRecords,
		"venues":             result.Venues,
		"duration_seconds":   result.Duration.Seconds(),
	})
}
