package services

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"momentum-peaks/internal/models"
	"momentum-peaks/pkg/logging"
	"momentum-peaks/pkg/metrics"
)

// channelSeparator splits the venue and channel in a data file name, e.g. MOIWAYAMA__beer_garden.tsv
const channelSeparator = "__"

// BatchWriter persists daily records in batches
type BatchWriter interface {
	UpsertDailyRecordsBatch(ctx context.Context, recs []*models.DailyRecord) error
}

// IngestionService loads daily actuals files into the store
type IngestionService struct {
	repo    BatchWriter
	venues  VenueLookup
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// IngestionResult contains ingestion statistics
type IngestionResult struct {
	TotalFiles        int
	TotalRecords      int
	SuccessfulRecords int
	FailedRecords     int
	Venues            []string
	FirstDate         time.Time
	LastDate          time.Time
	Duration          time.Duration
	Errors            []string
}

// NewIngestionService creates a new ingestion service
func NewIngestionService(repo BatchWriter, venues VenueLookup, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *IngestionService {
	return &IngestionService{
		repo:    repo,
		venues:  venues,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// IngestDirectory ingests every *.tsv file in dataDir
func (s *IngestionService) IngestDirectory(ctx context.Context, dataDir string, batchSize int) (*IngestionResult, error) {
	startTime := time.Now()
	if batchSize <= 0 {
		batchSize = 1000
	}

	s.logger.Info(ctx, "[INGEST_START] Starting data ingestion", logging.Fields{
		"data_dir":   dataDir,
		"batch_size": batchSize,
		"stage":      "INITIALIZATION",
	})

	result := &IngestionResult{
		Errors: make([]string, 0),
	}

	files, err := filepath.Glob(filepath.Join(dataDir, "*.tsv"))
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no data files found in %s", dataDir)
	}

	result.TotalFiles = len(files)

	s.logger.Info(ctx, "[INGEST_FILES] Found data files", logging.Fields{
		"file_count": len(files),
		"stage":      "FILE_DISCOVERY",
	})

	seen := make(map[string]bool)
	for _, filePath := range files {
		fileResult, err := s.ingestFile(ctx, filePath, batchSize)
		if err != nil {
			errMsg := fmt.Sprintf("failed to ingest %s: %v", filePath, err)
			result.Errors = append(result.Errors, errMsg)
			s.logger.Error(ctx, "[INGEST_FILE_ERROR] File ingestion failed", logging.Fields{
				"file_path": filePath,
				"stage":     "FILE_PROCESSING",
			}, err)
			s.metrics.RecordIngestionError("file_error")
			continue
		}

		result.TotalRecords += fileResult.TotalRecords
		result.SuccessfulRecords += fileResult.SuccessfulRecords
		result.FailedRecords += fileResult.FailedRecords
		if fileResult.SuccessfulRecords > 0 && !seen[fileResult.VenueID] {
			seen[fileResult.VenueID] = true
			result.Venues = append(result.Venues, fileResult.VenueID)
		}
		result.extendDates(fileResult.FirstDate, fileResult.LastDate)

		s.logger.Info(ctx, "[INGEST_FILE_SUCCESS] File ingested successfully", logging.Fields{
			"file_path":          filePath,
			"venue_id":           fileResult.VenueID,
			"channel_id":         fileResult.ChannelID,
			"total_records":      fileResult.TotalRecords,
			"successful_records": fileResult.SuccessfulRecords,
			"failed_records":     fileResult.FailedRecords,
			"stage":              "FILE_COMPLETE",
		})
	}

	result.Duration = time.Since(startTime)
	s.metrics.IngestionDuration.Observe(result.Duration.Seconds())

	s.logger.Info(ctx, "[INGEST_COMPLETE] Data ingestion completed", logging.Fields{
		"total_files":        result.TotalFiles,
		"total_records":      result.TotalRecords,
		"successful_records": result.SuccessfulRecords,
		"failed_records":     result.FailedRecords,
		"venues":             result.Venues,
		"duration_seconds":   result.Duration.Seconds(),
		"error_count":        len(result.Errors),
		"stage":              "COMPLETE",
	})

	return result, nil
}

func (r *IngestionResult) extendDates(first, last time.Time) {
	if first.IsZero() {
		return
	}
	if r.FirstDate.IsZero() || first.Before(r.FirstDate) {
		r.FirstDate = first
	}
	if last.After(r.LastDate) {
		r.LastDate = last
	}
}

// FileIngestionResult contains per-file ingestion statistics
type FileIngestionResult struct {
	VenueID           string
	ChannelID         string
	TotalRecords      int
	SuccessfulRecords int
	FailedRecords     int
	FirstDate         time.Time
	LastDate          time.Time
}

// ingestFile ingests a single actuals file
func (s *IngestionService) ingestFile(ctx context.Context, filePath string, batchSize int) (*FileIngestionResult, error) {
	venueID, channelID, err := ParseFileName(filePath)
	if err != nil {
		return nil, err
	}
	if err := s.checkKnown(venueID, channelID); err != nil {
		return nil, err
	}

	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	result := &FileIngestionResult{VenueID: venueID, ChannelID: channelID}
	batch := make([]*models.DailyRecord, 0, batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.repo.UpsertDailyRecordsBatch(ctx, batch); err != nil {
			return fmt.Errorf("failed to upsert batch: %w", err)
		}
		result.SuccessfulRecords += len(batch)
		batch = batch[:0]
		return nil
	}

	err = ScanSalesFile(file, func(raw *models.RawSalesRecord, parseErr error) error {
		result.TotalRecords++
		if parseErr != nil {
			result.FailedRecords++
			s.metrics.RecordIngestionError("parse_error")
			return nil
		}

		rec, err := raw.ToDailyRecord(venueID, channelID)
		if err != nil {
			result.FailedRecords++
			s.metrics.RecordIngestionError("conversion_error")
			return nil
		}

		if result.FirstDate.IsZero() || rec.Date.Before(result.FirstDate) {
			result.FirstDate = rec.Date
		}
		if rec.Date.After(result.LastDate) {
			result.LastDate = rec.Date
		}

		batch = append(batch, rec)
		if len(batch) >= batchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := flush(); err != nil {
		return nil, err
	}

	return result, nil
}

func (s *IngestionService) checkKnown(venueID, channelID string) error {
	if s.venues == nil {
		return nil
	}
	profile, ok := s.venues.Venue(venueID)
	if !ok {
		return &models.ConfigurationError{VenueID: venueID, Reason: "venue not configured"}
	}
	if channelID != "" {
		if _, ok := profile.Channel(channelID); !ok {
			return &models.ConfigurationError{VenueID: venueID, Reason: "channel " + channelID + " not configured"}
		}
	}
	return nil
}

// ParseFileName extracts the venue and channel from a file named
// VENUE.tsv (venue totals) or VENUE__CHANNEL.tsv.
func ParseFileName(filePath string) (string, string, error) {
	name := strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
	venueID, channelID, _ := strings.Cut(name, channelSeparator)
	venueID = strings.ToUpper(strings.TrimSpace(venueID))
	if venueID == "" {
		return "", "", &models.ValidationError{Field: "file", Value: filePath, Message: "file name has no venue id"}
	}
	return venueID, strings.TrimSpace(channelID), nil
}

// ReadSalesDir loads every valid row for venueID from the *.tsv files in dir,
// without a database. Unparseable lines are skipped and counted.
func ReadSalesDir(dir, venueID string) ([]models.DailyRecord, int, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.tsv"))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read directory: %w", err)
	}

	venueID = strings.ToUpper(strings.TrimSpace(venueID))
	var records []models.DailyRecord
	skipped := 0
	for _, filePath := range files {
		fileVenue, channelID, err := ParseFileName(filePath)
		if err != nil || fileVenue != venueID {
			continue
		}

		f, err := os.Open(filePath)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to open file: %w", err)
		}
		err = ScanSalesFile(f, func(raw *models.RawSalesRecord, parseErr error) error {
			if parseErr != nil {
				skipped++
				return nil
			}
			rec, err := raw.ToDailyRecord(fileVenue, channelID)
			if err != nil {
				skipped++
				return nil
			}
			records = append(records, *rec)
			return nil
		})
		f.Close()
		if err != nil {
			return nil, 0, fmt.Errorf("%s: %w", filePath, err)
		}
	}
	return records, skipped, nil
}

// ScanSalesFile reads an actuals file line by line, calling fn with each parsed
// line or its parse error. Blank lines and lines starting with # are skipped.
// A non-nil error from fn stops the scan.
func ScanSalesFile(r io.Reader, fn func(*models.RawSalesRecord, error) error) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		raw, err := ParseSalesLine(line)
		if err := fn(raw, err); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading file: %w", err)
	}
	return nil
}

// ParseSalesLine parses a single line of an actuals file.
// Format: YYYYMMDD\tSALES\tCOUNT\tFOOD\tDRINK, where "-" or -9999 marks a missing value.
// FOOD and DRINK may be omitted.
func ParseSalesLine(line string) (*models.RawSalesRecord, error) {
	parts := strings.Split(line, "\t")
	if len(parts) != 3 && len(parts) != 5 {
		return nil, fmt.Errorf("invalid line format: expected 3 or 5 fields, got %d", len(parts))
	}

	values := make([]int64, 4)
	for i := range values {
		values[i] = models.MissingValue
	}
	names := []string{"sales", "customer count", "food sales", "drink sales"}
	for i, part := range parts[1:] {
		v, err := parseAmount(part)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", names[i], err)
		}
		values[i] = v
	}

	return &models.RawSalesRecord{
		Date:       strings.TrimSpace(parts[0]),
		Sales:      values[0],
		Count:      values[1],
		FoodSales:  values[2],
		DrinkSales: values[3],
	}, nil
}

func parseAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return models.MissingValue, nil
	}
	return strconv.ParseInt(strings.ReplaceAll(s, ",", ""), 10, 64)
}
