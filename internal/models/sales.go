package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// MissingValue marks a field that was not entered in a raw data file
const MissingValue = -9999

// ChannelActuals holds one channel's share of a day's actuals
type ChannelActuals struct {
	Sales      int64 `json:"sales"`
	Count      int64 `json:"count"`
	FoodSales  int64 `json:"food_sales"`
	DrinkSales int64 `json:"drink_sales"`
}

// DailyRecord is one day of actuals for a venue, or for one channel of a venue.
// An empty ChannelID means the row carries venue totals.
type DailyRecord struct {
	ID                  int64     `json:"id" db:"id"`
	VenueID             string    `json:"venue_id" db:"venue_id"`
	ChannelID           string    `json:"channel_id" db:"channel_id"`
	Date                time.Time `json:"date" db:"record_date"`
	ActualSales         int64     `json:"actual_sales" db:"actual_sales"`
	ActualCustomerCount int64     `json:"actual_customer_count" db:"actual_customer_count"`
	FoodSales           int64     `json:"food_sales" db:"food_sales"`
	DrinkSales          int64     `json:"drink_sales" db:"drink_sales"`
	CreatedAt           time.Time `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time `json:"updated_at" db:"updated_at"`

	ChannelBreakdown map[string]ChannelActuals `json:"channel_breakdown,omitempty" db:"-"`
}

// WeekdayLabel is the short English weekday of the record date
func (r *DailyRecord) WeekdayLabel() string {
	return r.Date.Weekday().String()[:3]
}

// MarshalJSON adds weekday_label to the stored columns
func (r DailyRecord) MarshalJSON() ([]byte, error) {
	type record DailyRecord
	return json.Marshal(struct {
		record
		WeekdayLabel string `json:"weekday_label"`
	}{record(r), r.WeekdayLabel()})
}

// Validate checks the invariants a stored record must hold
func (r *DailyRecord) Validate() error {
	if r.VenueID == "" {
		return &ValidationError{Field: "venue_id", Message: "venue_id is required"}
	}
	if r.Date.IsZero() {
		return &ValidationError{Field: "date", Message: "date is required"}
	}
	if r.ActualSales < 0 {
		return &ValidationError{
			Field:   "actual_sales",
			Value:   fmt.Sprint(r.ActualSales),
			Message: "actual_sales must not be negative",
		}
	}
	if r.ActualCustomerCount < 0 {
		return &ValidationError{
			Field:   "actual_customer_count",
			Value:   fmt.Sprint(r.ActualCustomerCount),
			Message: "actual_customer_count must not be negative",
		}
	}
	if r.FoodSales < 0 || r.DrinkSales < 0 {
		return &ValidationError{Field: "food_sales", Message: "food and drink sales must not be negative"}
	}
	return nil
}

// AggregateDaily folds per-channel rows into one venue-level record per date,
// ordered by date. A venue-total row (empty ChannelID) takes precedence over
// the channel sum for that date; channel rows always land in ChannelBreakdown.
func AggregateDaily(rows []DailyRecord) []DailyRecord {
	type bucket struct {
		rec      DailyRecord
		hasTotal bool
	}
	byDate := make(map[string]*bucket)

	for _, row := range rows {
		key := row.VenueID + "|" + row.Date.Format("2006-01-02")
		b, ok := byDate[key]
		if !ok {
			b = &bucket{rec: DailyRecord{
				VenueID:          row.VenueID,
				Date:             row.Date,
				ChannelBreakdown: make(map[string]ChannelActuals),
			}}
			byDate[key] = b
		}

		if row.ChannelID == "" {
			b.hasTotal = true
			b.rec.ActualSales = row.ActualSales
			b.rec.ActualCustomerCount = row.ActualCustomerCount
			b.rec.FoodSales = row.FoodSales
			b.rec.DrinkSales = row.DrinkSales
			continue
		}

		b.rec.ChannelBreakdown[row.ChannelID] = ChannelActuals{
			Sales:      row.ActualSales,
			Count:      row.ActualCustomerCount,
			FoodSales:  row.FoodSales,
			DrinkSales: row.DrinkSales,
		}
		if !b.hasTotal {
			b.rec.ActualSales += row.ActualSales
			b.rec.ActualCustomerCount += row.ActualCustomerCount
			b.rec.FoodSales += row.FoodSales
			b.rec.DrinkSales += row.DrinkSales
		}
	}

	out := make([]DailyRecord, 0, len(byDate))
	for _, b := range byDate {
		if len(b.rec.ChannelBreakdown) == 0 {
			b.rec.ChannelBreakdown = nil
		}
		out = append(out, b.rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].VenueID < out[j].VenueID
	})
	return out
}

// RawSalesRecord is a single line of an actuals file before validation
type RawSalesRecord struct {
	Date       string
	Sales      int64 // may be MissingValue
	Count      int64 // may be MissingValue
	FoodSales  int64 // MissingValue reads as 0
	DrinkSales int64 // MissingValue reads as 0
}

// ToDailyRecord converts the raw line into a DailyRecord for venue/channel.
// Days whose sales or customer count were never entered are rejected.
func (r *RawSalesRecord) ToDailyRecord(venueID, channelID string) (*DailyRecord, error) {
	date, err := time.Parse("20060102", r.Date)
	if err != nil {
		return nil, &ValidationError{
			Field:   "date",
			Value:   r.Date,
			Message: "invalid date format, expected YYYYMMDD",
		}
	}

	if r.Sales == MissingValue || r.Count == MissingValue {
		return nil, &ValidationError{
			Field:   "sales",
			Value:   r.Date,
			Message: "sales and customer count must both be entered",
		}
	}

	now := time.Now().UTC()
	rec := &DailyRecord{
		VenueID:             venueID,
		ChannelID:           channelID,
		Date:                date,
		ActualSales:         r.Sales,
		ActualCustomerCount: r.Count,
		FoodSales:           orZero(r.FoodSales),
		DrinkSales:          orZero(r.DrinkSales),
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

func orZero(v int64) int64 {
	if v == MissingValue {
		return 0
	}
	return v
}
