package services

import (
	"context"
	"strings"
	"time"

	"momentum-peaks/internal/models"
	"momentum-peaks/internal/repository"
	"momentum-peaks/pkg/logging"
	"momentum-peaks/pkg/metrics"
)

// CacheInvalidator drops cached forecasts for a venue
type CacheInvalidator interface {
	InvalidateVenue(ctx context.Context, venueID string)
}

// RecordService handles reads and explicit corrections of daily actuals
type RecordService struct {
	repo        repository.SalesRepository
	venues      VenueLookup
	invalidator CacheInvalidator
	logger      *logging.StructuredLogger
	metrics     *metrics.Collector
}

// NewRecordService creates a new record service. invalidator may be nil.
func NewRecordService(repo repository.SalesRepository, venues VenueLookup, invalidator CacheInvalidator, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *RecordService {
	return &RecordService{
		repo:        repo,
		venues:      venues,
		invalidator: invalidator,
		logger:      logger,
		metrics:     metricsCollector,
	}
}

// GetRecords retrieves daily records with filtering
func (s *RecordService) GetRecords(ctx context.Context, filter repository.RecordFilter) ([]*models.DailyRecord, int, error) {
	return s.repo.GetDailyRecords(ctx, filter)
}

// checkKnown rejects records for venues or channels missing from the venue table
func (s *RecordService) checkKnown(venueID, channelID string) error {
	profile, ok := s.venues.Venue(venueID)
	if !ok {
		return &models.ValidationError{Field: "venue_id", Value: venueID, Message: "unknown venue " + venueID}
	}
	if channelID == "" {
		return nil
	}
	if _, ok := profile.Channel(channelID); !ok {
		return &models.ValidationError{Field: "channel_id", Value: channelID, Message: "unknown channel " + channelID + " for venue " + profile.ID}
	}
	return nil
}

// UpsertRecord stores or corrects one day's actuals
func (s *RecordService) UpsertRecord(ctx context.Context, rec *models.DailyRecord) error {
	rec.VenueID = strings.ToUpper(strings.TrimSpace(rec.VenueID))
	if err := s.checkKnown(rec.VenueID, rec.ChannelID); err != nil {
		return err
	}
	if err := rec.Validate(); err != nil {
		return err
	}

	ctx = logging.WithVenueID(ctx, rec.VenueID)
	if err := s.repo.UpsertDailyRecord(ctx, rec); err != nil {
		return err
	}

	s.logger.Info(ctx, "[RECORD_UPSERT] Daily record stored", logging.Fields{
		"channel_id": rec.ChannelID,
		"date":       rec.Date.Format("2006-01-02"),
		"sales":      rec.ActualSales,
		"customers":  rec.ActualCustomerCount,
	})
	s.invalidate(ctx, rec.VenueID)
	return nil
}

// DeleteRecord removes one day's actuals as an explicit correction
func (s *RecordService) DeleteRecord(ctx context.Context, venueID, channelID string, date time.Time) error {
	venueID = strings.ToUpper(strings.TrimSpace(venueID))
	ctx = logging.WithVenueID(ctx, venueID)

	if err := s.repo.DeleteDailyRecord(ctx, venueID, channelID, date); err != nil {
		if repository.IsNotFound(err) {
			s.logger.Info(ctx, "[RECORD_DELETE_MISSING] No record to delete", logging.Fields{
				"channel_id": channelID,
				"date":       date.Format("2006-01-02"),
			})
		}
		return err
	}
	s.invalidate(ctx, venueID)
	return nil
}

func (s *RecordService) invalidate(ctx context.Context, venueID string) {
	if s.invalidator != nil {
		s.invalidator.InvalidateVenue(ctx, venueID)
	}
}
