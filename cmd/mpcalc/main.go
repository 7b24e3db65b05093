// Command mpcalc computes momentum scores and forecasts from local actuals
// files, without a database or cache.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"momentum-peaks/internal/calendar"
	"momentum-peaks/internal/forecast"
	"momentum-peaks/internal/models"
	"momentum-peaks/internal/scoring"
	"momentum-peaks/internal/services"
	"momentum-peaks/internal/venues"
	"momentum-peaks/pkg/logging"
	"momentum-peaks/pkg/metrics"
)

type report struct {
	Scores   []*models.ScoreResult `json:"scores"`
	Forecast *models.VenueForecast `json:"forecast,omitempty"`
}

func main() {
	venueID := flag.String("venue", "", "Venue ID, e.g. MOIWAYAMA")
	dateStr := flag.String("date", "", "Target date (YYYY-MM-DD)")
	days := flag.Int("days", 1, "Number of days to score starting at -date")
	dataDir := flag.String("data-dir", "", "Directory of VENUE[__CHANNEL].tsv actuals; empty skips the forecast")
	schemeStr := flag.String("scheme", string(calendar.SchemeSolarTerm), "Matching scheme: solar_term or month")
	window := flag.Int("flat-fee-window", forecast.DefaultFlatFeeWindowDays, "Trailing window in days for flat-fee channels")
	venuesFile := flag.String("venues", "", "Venue table YAML; empty uses the built-in table")
	asJSON := flag.Bool("json", false, "Print JSON instead of text")
	verbose := flag.Bool("v", false, "Verbose logging to stderr")
	flag.Parse()

	if *venueID == "" || *dateStr == "" {
		flag.Usage()
		os.Exit(2)
	}

	level := logging.ErrorLevel
	if *verbose {
		level = logging.DebugLevel
	}
	logger := logging.NewStructuredLogger("mpcalc", "1.0.0", level)
	logger.SetOutput(os.Stderr)

	if err := run(*venueID, *dateStr, *days, *dataDir, *schemeStr, *window, *venuesFile, *asJSON, logger); err != nil {
		fmt.Fprintf(os.Stderr, "mpcalc: %v\n", err)
		os.Exit(1)
	}
}

func run(venueID, dateStr string, days int, dataDir, schemeStr string, window int, venuesFile string, asJSON bool, logger *logging.StructuredLogger) error {
	ctx := context.Background()

	date, err := calendar.ParseDate(dateStr)
	if err != nil {
		return err
	}
	scheme, err := calendar.ParseScheme(schemeStr)
	if err != nil {
		return err
	}
	if days < 1 {
		days = 1
	}

	var reg *venues.Registry
	if venuesFile != "" {
		reg, err = venues.Load(venuesFile)
	} else {
		reg, err = venues.Default()
	}
	if err != nil {
		return fmt.Errorf("loading venue table: %w", err)
	}

	out := report{}
	scores, err := scoring.NewCalculator(reg, logger).ComputeRange(ctx, venueID, date, date.AddDate(0, 0, days-1))
	if err != nil {
		return fmt.Errorf("score: %w", err)
	}
	out.Scores = scores

	if dataDir != "" {
		out.Forecast, err = forecastFromDir(ctx, reg, venueID, date, dataDir, scheme, window, logger)
		if err != nil {
			return err
		}
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	printReport(out)
	return nil
}

// fileHistory serves actuals read from disk to the forecast service
type fileHistory struct {
	records []models.DailyRecord
}

func (h *fileHistory) ListHistory(_ context.Context, venueID, channelID string, before time.Time) ([]models.DailyRecord, error) {
	var out []models.DailyRecord
	for _, r := range h.records {
		if r.VenueID != strings.ToUpper(venueID) || !r.Date.Before(before) {
			continue
		}
		if channelID != "" && r.ChannelID != channelID {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func forecastFromDir(ctx context.Context, reg *venues.Registry, venueID string, date time.Time, dataDir string, scheme calendar.Scheme, window int, logger *logging.StructuredLogger) (*models.VenueForecast, error) {
	records, skipped, err := services.ReadSalesDir(dataDir, venueID)
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "[MPCALC_HISTORY] Actuals loaded", logging.Fields{
		"data_dir": dataDir,
		"rows":     len(records),
		"skipped":  skipped,
	})

	m := metrics.NewCollectorWithRegistry("mpcalc", prometheus.NewRegistry())
	svc := services.NewForecastService(&fileHistory{records: records}, reg, forecast.NewEngine(scheme, window), nil, logger, m)
	res, err := svc.ForecastVenue(ctx, venueID, date)
	if err != nil {
		return nil, fmt.Errorf("forecast: %w", err)
	}
	return res, nil
}

func printReport(out report) {
	fmt.Println("DATE            SCORE  LEVEL  EVENTS")
	for _, s := range out.Scores {
		fmt.Printf("%s  %5.2f  %-5s  %s\n", s.Date.Format("2006-01-02 Mon"), s.CompositeScore, s.LevelLabel, events(s))
	}

	if out.Forecast == nil {
		return
	}
	f := out.Forecast.Forecast
	fmt.Println()
	fmt.Printf("FORECAST %s %s (%s %s, %d matches)\n", f.VenueID, f.TargetDate.Format("2006-01-02"), f.Scheme, f.TargetPeriod, f.MatchCount)
	fmt.Printf("  %-14s %8s %8s %12s  %s\n", "CHANNEL", "COUNT", "SPEND", "SALES", "METHOD")
	fmt.Printf("  %-14s %8d %8d %12d  %s\n", "(venue)", f.PredictedCustomerCount, f.PredictedAverageSpend, f.PredictedSales, f.Method)

	ids := make([]string, 0, len(out.Forecast.Channels))
	for id := range out.Forecast.Channels {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		c := out.Forecast.Channels[id]
		fmt.Printf("  %-14s %8d %8d %12d  %s\n", id, c.PredictedCustomerCount, c.PredictedAverageSpend, c.PredictedSales, c.Method)
	}
}

func events(s *models.ScoreResult) string {
	var parts []string
	if s.PositiveEvents != "" {
		parts = append(parts, "+"+s.PositiveEvents)
	}
	if s.NegativeEvents != "" {
		parts = append(parts, "-"+s.NegativeEvents)
	}
	return strings.Join(parts, " ")
}
