// Package scoring computes the daily momentum score of a venue: the rounded
// mean of the seasonal, day-of-week and visitor indices, bucketed into 5 levels.
package scoring

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"momentum-peaks/internal/calendar"
	"momentum-peaks/internal/models"
	"momentum-peaks/pkg/logging"
)

// MaxRangeDays bounds ComputeRange
const MaxRangeDays = 366

// dayIndexTable is the coarse weekday weight shared by every venue, indexed by
// time.Weekday. Per-venue multipliers belong to forecasting only.
var dayIndexTable = [7]int{
	time.Sunday:    4,
	time.Monday:    2,
	time.Tuesday:   2,
	time.Wednesday: 2,
	time.Thursday:  3,
	time.Friday:    4,
	time.Saturday:  5,
}

// DayIndex returns the fixed day-of-week index for d
func DayIndex(d time.Weekday) int {
	return dayIndexTable[d]
}

type threshold struct {
	min   float64
	level int
	label string
}

// lower-inclusive, checked top-down
var levelThresholds = []threshold{
	{min: 4.0, level: 5, label: "PEAK"},
	{min: 3.5, level: 4, label: "HIGH"},
	{min: 3.0, level: 3, label: "MID"},
	{min: 2.5, level: 2, label: "LOW"},
}

// LevelFor buckets a composite score into a level and its label
func LevelFor(score float64) (int, string) {
	for _, th := range levelThresholds {
		if score >= th.min {
			return th.level, th.label
		}
	}
	return 1, "CALM"
}

// Composite returns round-half-up((seasonal+weekday+visitor)/3, 2) computed in decimal
func Composite(seasonal, weekday int, visitor float64) float64 {
	sum := decimal.NewFromInt(int64(seasonal)).
		Add(decimal.NewFromInt(int64(weekday))).
		Add(decimal.NewFromFloat(visitor))
	return sum.Div(decimal.NewFromInt(3)).Round(2).InexactFloat64()
}

// VenueLookup resolves venue profiles by ID
type VenueLookup interface {
	Venue(id string) (*models.VenueProfile, bool)
}

// Calculator computes momentum scores from the static venue table
type Calculator struct {
	venues VenueLookup
	logger *logging.StructuredLogger
}

// NewCalculator creates a score calculator over venues
func NewCalculator(venues VenueLookup, logger *logging.StructuredLogger) *Calculator {
	return &Calculator{venues: venues, logger: logger}
}

// Compute returns the score of venueID on date.
// A missing venue or month yields a *models.ConfigurationError (logged here);
// a zero date or empty venue ID yields a *models.ValidationError.
func (c *Calculator) Compute(ctx context.Context, venueID string, date time.Time) (*models.ScoreResult, error) {
	if venueID == "" {
		return nil, &models.ValidationError{Field: "venue_id", Message: "venue_id is required"}
	}
	if date.IsZero() {
		return nil, &models.ValidationError{Field: "date", Message: "date is required"}
	}

	profile, ok := c.venues.Venue(venueID)
	if !ok {
		return nil, c.configError(ctx, &models.ConfigurationError{VenueID: venueID, Reason: "venue not configured"})
	}

	month, ok := profile.Month(date.Month())
	if !ok {
		return nil, c.configError(ctx, &models.ConfigurationError{
			VenueID: venueID,
			Month:   int(date.Month()),
			Reason:  "month entry missing",
		})
	}

	weekday := DayIndex(date.Weekday())
	composite := Composite(month.Seasonal, weekday, month.Visitor)
	level, label := LevelFor(composite)

	return &models.ScoreResult{
		Date:           calendar.DateOnly(date),
		VenueID:        profile.ID,
		SeasonalIndex:  month.Seasonal,
		WeekdayIndex:   weekday,
		VisitorIndex:   month.Visitor,
		CompositeScore: composite,
		Level:          level,
		LevelLabel:     label,
		PositiveEvents: month.PositiveEvents,
		NegativeEvents: month.NegativeEvents,
	}, nil
}

// ComputeRange scores every day from..to inclusive
func (c *Calculator) ComputeRange(ctx context.Context, venueID string, from, to time.Time) ([]*models.ScoreResult, error) {
	from, to = calendar.DateOnly(from), calendar.DateOnly(to)
	if to.Before(from) {
		return nil, &models.ValidationError{Field: "to", Message: "to must not be before from"}
	}
	days := int(to.Sub(from).Hours()/24) + 1
	if days > MaxRangeDays {
		return nil, &models.ValidationError{
			Field:   "to",
			Value:   fmt.Sprint(days),
			Message: fmt.Sprintf("range too long: %d days, max %d", days, MaxRangeDays),
		}
	}

	results := make([]*models.ScoreResult, 0, days)
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		res, err := c.Compute(ctx, venueID, d)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (c *Calculator) configError(ctx context.Context, err *models.ConfigurationError) error {
	c.logger.Warn(ctx, "[SCORE_CONFIG_MISSING] Score unavailable", logging.Fields{
		"venue_id": err.VenueID,
		"month":    err.Month,
		"reason":   err.Reason,
	})
	return err
}
