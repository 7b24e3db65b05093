package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ScoreResult is the momentum score of one venue on one day. It is never persisted.
type ScoreResult struct {
	Date           time.Time `json:"date"`
	VenueID        string    `json:"venue_id"`
	SeasonalIndex  int       `json:"seasonal_index"`
	WeekdayIndex   int       `json:"weekday_index"`
	VisitorIndex   float64   `json:"visitor_index"`
	CompositeScore float64   `json:"composite_score"`
	Level          int       `json:"level"`
	LevelLabel     string    `json:"level_label"`
	PositiveEvents string    `json:"positive_events"`
	NegativeEvents string    `json:"negative_events"`
}

// MatchedRecord is a historical day used as an analogy, with its recency weight
type MatchedRecord struct {
	Date   time.Time `json:"date"`
	Weight float64   `json:"weight"`
}

// Forecast methods
const (
	MethodPeriodWeekday = "period_weekday"
	MethodTrailingFlat  = "trailing_flat"
)

// ChannelForecast is one channel's share of a venue forecast
type ChannelForecast struct {
	ChannelID              string `json:"channel_id"`
	Method                 string `json:"method"`
	PredictedCustomerCount int64  `json:"predicted_customer_count"`
	PredictedAverageSpend  int64  `json:"predicted_average_spend"`
	PredictedSales         int64  `json:"predicted_sales"`
	MatchCount             int    `json:"match_count"`
}

// ForecastResult is a prediction for one venue (or channel) on a target date.
// When MatchCount is 0 every predicted quantity is 0.
type ForecastResult struct {
	VenueID           string    `json:"venue_id"`
	ChannelID         string    `json:"channel_id,omitempty"`
	TargetDate        time.Time `json:"target_date"`
	Scheme            string    `json:"scheme"`
	TargetPeriod      string    `json:"target_period"`
	Method            string    `json:"method"`
	WeekdayMultiplier float64   `json:"weekday_multiplier"`

	PredictedCustomerCount int64           `json:"predicted_customer_count"`
	PredictedAverageSpend  int64           `json:"predicted_average_spend"`
	PredictedSales         int64           `json:"predicted_sales"`
	MatchedRecords         []MatchedRecord `json:"matched_records"`
	MatchCount             int             `json:"match_count"`

	Channels map[string]ChannelForecast `json:"channels,omitempty"`
}

// FiscalYearSummary aggregates a venue's actuals over one fiscal year
type FiscalYearSummary struct {
	ID             int64           `json:"id" db:"id"`
	VenueID        string          `json:"venue_id" db:"venue_id"`
	FiscalYear     int             `json:"fiscal_year" db:"fiscal_year"`
	TotalSales     int64           `json:"total_sales" db:"total_sales"`
	TotalCustomers int64           `json:"total_customers" db:"total_customers"`
	SalesDays      int             `json:"sales_days" db:"sales_days"`
	AverageSpend   decimal.Decimal `json:"average_spend" db:"average_spend"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// ComputeAverageSpend sets AverageSpend to TotalSales / TotalCustomers, rounded to 2 places
func (s *FiscalYearSummary) ComputeAverageSpend() {
	if s.TotalCustomers <= 0 {
		s.AverageSpend = decimal.Zero
		return
	}
	s.AverageSpend = decimal.NewFromInt(s.TotalSales).
		Div(decimal.NewFromInt(s.TotalCustomers)).
		Round(2)
}

// VenueForecast is a venue-level forecast together with each channel forecast
// from that channel's own history.
type VenueForecast struct {
	Forecast ForecastResult            `json:"forecast"`
	Channels map[string]ForecastResult `json:"channels"`
}
