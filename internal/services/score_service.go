package services

import (
	"context"
	"errors"
	"time"

	"momentum-peaks/internal/models"
	"momentum-peaks/internal/scoring"
	"momentum-peaks/pkg/logging"
	"momentum-peaks/pkg/metrics"
)

// VenueLookup is the read-only venue table the services share
type VenueLookup interface {
	Venue(id string) (*models.VenueProfile, bool)
	List() []models.VenueProfile
	IDs() []string
}

// ScoreService serves momentum scores
type ScoreService struct {
	venues     VenueLookup
	calculator *scoring.Calculator
	logger     *logging.StructuredLogger
	metrics    *metrics.Collector
}

// NewScoreService creates a new score service
func NewScoreService(venues VenueLookup, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *ScoreService {
	return &ScoreService{
		venues:     venues,
		calculator: scoring.NewCalculator(venues, logger),
		logger:     logger,
		metrics:    metricsCollector,
	}
}

// ListVenues returns every configured venue profile
func (s *ScoreService) ListVenues() []models.VenueProfile {
	return s.venues.List()
}

// Score computes the score of venueID on date. A *models.ConfigurationError is
// returned for unconfigured venues or months so callers can render "no data".
func (s *ScoreService) Score(ctx context.Context, venueID string, date time.Time) (*models.ScoreResult, error) {
	ctx = logging.WithVenueID(ctx, venueID)

	res, err := s.calculator.Compute(ctx, venueID, date)
	if err != nil {
		s.recordFailure(venueID, err)
		return nil, err
	}

	s.metrics.RecordScore(res.VenueID, res.Level)
	return res, nil
}

// ScoreRange computes scores for every day from..to inclusive
func (s *ScoreService) ScoreRange(ctx context.Context, venueID string, from, to time.Time) ([]*models.ScoreResult, error) {
	ctx = logging.WithVenueID(ctx, venueID)

	results, err := s.calculator.ComputeRange(ctx, venueID, from, to)
	if err != nil {
		s.recordFailure(venueID, err)
		return nil, err
	}

	for _, r := range results {
		s.metrics.RecordScore(r.VenueID, r.Level)
	}

	s.logger.Debug(ctx, "[SCORE_RANGE] Score range computed", logging.Fields{
		"from": from.Format("2006-01-02"),
		"to":   to.Format("2006-01-02"),
		"days": len(results),
	})
	return results, nil
}

func (s *ScoreService) recordFailure(venueID string, err error) {
	var cfgErr *models.ConfigurationError
	if errors.As(err, &cfgErr) {
		s.metrics.RecordScoreConfigError(venueID)
	}
}
