package services

import (
	"context"
	"fmt"
	"time"

	"momentum-peaks/internal/calendar"
	"momentum-peaks/internal/models"
	"momentum-peaks/internal/repository"
	"momentum-peaks/pkg/logging"
	"momentum-peaks/pkg/metrics"
)

// SummaryService handles fiscal-year summary calculations
type SummaryService struct {
	repo       repository.SalesRepository
	venues     VenueLookup
	startMonth time.Month
	logger     *logging.StructuredLogger
	metrics    *metrics.Collector
}

// NewSummaryService creates a new summary service for fiscal years starting in startMonth
func NewSummaryService(repo repository.SalesRepository, venues VenueLookup, startMonth time.Month, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *SummaryService {
	return &SummaryService{
		repo:       repo,
		venues:     venues,
		startMonth: startMonth,
		logger:     logger,
		metrics:    metricsCollector,
	}
}

// FiscalYearsBetween returns the fiscal years touched by the dates from..to
func (s *SummaryService) FiscalYearsBetween(from, to time.Time) (int, int) {
	return calendar.FiscalYear(from, s.startMonth), calendar.FiscalYear(to, s.startMonth)
}

// CalculateSummaries recomputes every venue's summaries for fiscal years fromFY..toFY.
// A year left without sales has its stored summary removed. Failures are
// logged and counted, not fatal.
func (s *SummaryService) CalculateSummaries(ctx context.Context, fromFY, toFY int) (int, error) {
	if toFY < fromFY {
		return 0, &models.ValidationError{
			Field:   "fiscal_year",
			Value:   fmt.Sprintf("%d..%d", fromFY, toFY),
			Message: "fiscal year range is reversed",
		}
	}

	timer := s.metrics.NewTimer(s.metrics.SummaryRunDuration)

	s.logger.Info(ctx, "[SUMMARY_CALC_START] Starting fiscal summary calculation", logging.Fields{
		"from_fiscal_year": fromFY,
		"to_fiscal_year":   toFY,
		"stage":            "INITIALIZATION",
	})

	saved, removed, failed := 0, 0, 0
	venueIDs := s.venues.IDs()
	for _, venueID := range venueIDs {
		for fy := fromFY; fy <= toFY; fy++ {
			start, end := calendar.FiscalYearRange(fy, s.startMonth)
			summary, err := s.repo.CalculateFiscalYearSummary(ctx, venueID, fy, start, end)
			if err != nil {
				failed++
				s.logger.Error(ctx, "[SUMMARY_CALC_ERROR] Failed to calculate fiscal summary", logging.Fields{
					"venue_id":    venueID,
					"fiscal_year": fy,
				}, err)
				continue
			}

			if summary.SalesDays == 0 {
				ok, err := s.repo.DeleteSummary(ctx, venueID, fy)
				if err != nil {
					failed++
					s.logger.Error(ctx, "[SUMMARY_DELETE_ERROR] Failed to remove empty fiscal summary", logging.Fields{
						"venue_id":    venueID,
						"fiscal_year": fy,
					}, err)
				} else if ok {
					removed++
				}
				continue
			}
			if err := s.repo.UpsertSummary(ctx, summary); err != nil {
				failed++
				s.logger.Error(ctx, "[SUMMARY_SAVE_ERROR] Failed to save fiscal summary", logging.Fields{
					"venue_id":    venueID,
					"fiscal_year": fy,
				}, err)
				continue
			}
			saved++
		}

		s.logger.Info(ctx, "[SUMMARY_VENUE_COMPLETE] Venue summaries calculated", logging.Fields{
			"venue_id": venueID,
		})
	}

	s.logger.Info(ctx, "[SUMMARY_CALC_COMPLETE] Fiscal summary calculation completed", logging.Fields{
		"total_venues":     len(venueIDs),
		"total_summaries":  saved,
		"removed":          removed,
		"failed":           failed,
		"duration_seconds": timer.ObserveDuration().Seconds(),
		"stage":            "COMPLETE",
	})

	if failed > 0 {
		return saved, fmt.Errorf("%d fiscal summaries failed", failed)
	}
	return saved, nil
}

// GetSummaries retrieves summaries with filtering
func (s *SummaryService) GetSummaries(ctx context.Context, filter repository.SummaryFilter) ([]*models.FiscalYearSummary, int, error) {
	return s.repo.GetSummaries(ctx, filter)
}
