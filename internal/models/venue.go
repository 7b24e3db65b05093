package models

import "time"

// MonthIndex is the editorially curated entry for one calendar month of a venue
type MonthIndex struct {
	Seasonal          int     `json:"seasonal" yaml:"seasonal"`
	WeekdayBaseline   float64 `json:"weekday_baseline" yaml:"weekday_baseline"`
	Visitor           float64 `json:"visitor" yaml:"visitor"`
	CompositeBaseline float64 `json:"composite_baseline" yaml:"composite_baseline"`
	PositiveEvents    string  `json:"positive_events" yaml:"positive_events"`
	NegativeEvents    string  `json:"negative_events" yaml:"negative_events"`
}

// Channel is a revenue stream within a venue.
// A FlatFee channel is forecast from a trailing average instead of seasonal analogies.
type Channel struct {
	ID                string   `json:"id" yaml:"id"`
	Name              string   `json:"name" yaml:"name"`
	DaySegments       []string `json:"day_segments,omitempty" yaml:"day_segments"`
	FlatFee           bool     `json:"flat_fee,omitempty" yaml:"flat_fee"`
	FlatFeeWindowDays int      `json:"flat_fee_window_days,omitempty" yaml:"flat_fee_window_days"`
}

// VenueProfile is the static configuration of one venue
type VenueProfile struct {
	ID           string             `json:"id" yaml:"id"`
	DisplayName  string             `json:"display_name" yaml:"display_name"`
	MonthlyIndex map[int]MonthIndex `json:"monthly_index" yaml:"monthly_index"`
	// WeekdayMultiplier is ordered Monday..Sunday, 1.0 = average day.
	WeekdayMultiplier []float64 `json:"weekday_multiplier" yaml:"weekday_multiplier"`
	Channels          []Channel `json:"channels" yaml:"channels"`
}

// Month returns the index entry for m
func (v *VenueProfile) Month(m time.Month) (MonthIndex, bool) {
	idx, ok := v.MonthlyIndex[int(m)]
	return idx, ok
}

// MultiplierFor returns the empirical multiplier for d, or 1.0 when not configured
func (v *VenueProfile) MultiplierFor(d time.Weekday) float64 {
	// Monday-first ordering
	i := (int(d) + 6) % 7
	if i >= len(v.WeekdayMultiplier) {
		return 1.0
	}
	return v.WeekdayMultiplier[i]
}

// Channel looks up a channel by ID
func (v *VenueProfile) Channel(id string) (Channel, bool) {
	for _, ch := range v.Channels {
		if ch.ID == id {
			return ch, true
		}
	}
	return Channel{}, false
}
