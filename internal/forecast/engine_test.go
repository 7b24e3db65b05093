package forecast

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"momentum-peaks/internal/calendar"
	"momentum-peaks/internal/models"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func rec(date string, count, sales int64) models.DailyRecord {
	return models.DailyRecord{VenueID: "MOIWAYAMA", Date: day(date), ActualCustomerCount: count, ActualSales: sales}
}

func testProfile() *models.VenueProfile {
	return &models.VenueProfile{
		ID:                "MOIWAYAMA",
		WeekdayMultiplier: []float64{0.82, 0.80, 0.84, 0.90, 1.05, 1.42, 1.17},
		Channels: []models.Channel{
			{ID: "restaurant"},
			{ID: "beer_garden"},
			{ID: "seating_fee", FlatFee: true, FlatFeeWindowDays: 30},
		},
	}
}

// 2025-07-19 is a Saturday in 小暑
var target = day("2025-07-19")

func TestRecencyWeight(t *testing.T) {
	tests := []struct {
		yearsAgo int
		expected string
	}{
		{0, "1.05"},
		{1, "1.05"},
		{2, "1.03"},
		{3, "1"},
		{10, "1"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.expected, RecencyWeight(tc.yearsAgo).String(), "yearsAgo=%d", tc.yearsAgo)
	}
}

func TestForecast_WeightedMatch(t *testing.T) {
	records := []models.DailyRecord{
		rec("2022-07-09", 90, 270000),  // 3 years, weight 1.00
		rec("2024-07-13", 100, 300000), // 1 year, weight 1.05
		rec("2023-07-15", 80, 200000),  // 2 years, weight 1.03
		rec("2024-07-14", 500, 900000), // Sunday
		rec("2024-07-27", 500, 900000), // Saturday in 大暑
		rec("2021-07-10", 70, 0),       // no sales
	}

	res, err := NewEngine(calendar.SchemeSolarTerm, 0).Forecast(target, testProfile(), records)
	require.NoError(t, err)

	assert.Equal(t, 3, res.MatchCount)
	assert.Equal(t, "小暑", res.TargetPeriod)
	assert.Equal(t, "solar_term", res.Scheme)
	assert.Equal(t, models.MethodPeriodWeekday, res.Method)
	assert.Equal(t, 1.42, res.WeekdayMultiplier)

	// (100*1.05 + 80*1.03 + 90) / 3.08 = 90.06
	assert.Equal(t, int64(90), res.PredictedCustomerCount)
	// (3000*1.05 + 2500*1.03 + 3000) / 3.08 = 2832.79
	assert.Equal(t, int64(2833), res.PredictedAverageSpend)
	assert.Equal(t, int64(90*2833), res.PredictedSales)

	require.Len(t, res.MatchedRecords, 3)
	assert.Equal(t, day("2022-07-09"), res.MatchedRecords[0].Date)
	assert.Equal(t, 1.0, res.MatchedRecords[0].Weight)
	assert.Equal(t, 1.03, res.MatchedRecords[1].Weight)
	assert.Equal(t, 1.05, res.MatchedRecords[2].Weight)
}

func TestForecast_SalesIsCountTimesSpend(t *testing.T) {
	records := []models.DailyRecord{
		rec("2024-07-13", 120, 240000),
		rec("2023-07-15", 40, 200000),
		rec("2022-07-09", 77, 123456),
	}

	res, err := NewEngine(calendar.SchemeSolarTerm, 0).Forecast(target, testProfile(), records)
	require.NoError(t, err)
	require.Equal(t, 3, res.MatchCount)

	assert.Equal(t, res.PredictedCustomerCount*res.PredictedAverageSpend, res.PredictedSales)
	assert.Equal(t, int64(79), res.PredictedCustomerCount)
	assert.Equal(t, int64(2874), res.PredictedAverageSpend)
	assert.Equal(t, int64(227046), res.PredictedSales)

	// a plain weighted mean of raw sales would give 188784
	assert.NotEqual(t, int64(188784), res.PredictedSales)
}

func TestForecast_NoLookahead(t *testing.T) {
	records := []models.DailyRecord{
		rec("2024-07-13", 100, 300000),
		rec("2025-07-19", 999, 9999999), // same day
		rec("2026-07-11", 999, 9999999), // next year, same term and weekday
	}

	res, err := NewEngine(calendar.SchemeSolarTerm, 0).Forecast(target.Add(15*time.Hour), testProfile(), records)
	require.NoError(t, err)

	assert.Equal(t, 1, res.MatchCount)
	for _, m := range res.MatchedRecords {
		assert.True(t, m.Date.Before(target), "matched %v on or after target", m.Date)
	}
	assert.Equal(t, int64(100), res.PredictedCustomerCount)
	assert.Equal(t, int64(3000), res.PredictedAverageSpend)
}

func TestForecast_ZeroHistory(t *testing.T) {
	tests := []struct {
		name    string
		records []models.DailyRecord
	}{
		{name: "no records", records: nil},
		{name: "only non-matching", records: []models.DailyRecord{rec("2024-07-14", 10, 1000)}},
		{name: "only future", records: []models.DailyRecord{rec("2026-07-11", 10, 1000)}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := NewEngine(calendar.SchemeSolarTerm, 0).Forecast(target, testProfile(), tc.records)
			require.NoError(t, err)

			assert.Equal(t, 0, res.MatchCount)
			assert.Equal(t, int64(0), res.PredictedCustomerCount)
			assert.Equal(t, int64(0), res.PredictedAverageSpend)
			assert.Equal(t, int64(0), res.PredictedSales)
			assert.NotNil(t, res.MatchedRecords)
			assert.Empty(t, res.MatchedRecords)
		})
	}
}

func TestForecast_ZeroCountExcludedFromSpend(t *testing.T) {
	records := []models.DailyRecord{
		rec("2024-07-13", 10, 10000),
		rec("2023-07-15", 0, 5000),
	}

	res, err := NewEngine(calendar.SchemeSolarTerm, 0).Forecast(target, testProfile(), records)
	require.NoError(t, err)

	assert.Equal(t, 2, res.MatchCount)
	// (10*1.05 + 0*1.03) / 2.08 = 5.05
	assert.Equal(t, int64(5), res.PredictedCustomerCount)
	assert.Equal(t, int64(1000), res.PredictedAverageSpend)
	assert.Equal(t, int64(5000), res.PredictedSales)
}

func TestForecast_RoundsHalfUp(t *testing.T) {
	records := []models.DailyRecord{
		rec("2025-07-12", 10, 1000),
		rec("2024-07-13", 11, 1100),
	}

	res, err := NewEngine(calendar.SchemeSolarTerm, 0).Forecast(target, testProfile(), records)
	require.NoError(t, err)

	assert.Equal(t, int64(11), res.PredictedCustomerCount)
	assert.Equal(t, int64(100), res.PredictedAverageSpend)
	assert.Equal(t, int64(1100), res.PredictedSales)
}

func TestForecast_MonthScheme(t *testing.T) {
	records := []models.DailyRecord{
		rec("2024-07-13", 100, 300000),
		rec("2024-07-27", 50, 100000), // July, but 大暑
	}

	solar, err := NewEngine(calendar.SchemeSolarTerm, 0).Forecast(target, testProfile(), records)
	require.NoError(t, err)
	month, err := NewEngine(calendar.SchemeMonth, 0).Forecast(target, testProfile(), records)
	require.NoError(t, err)

	assert.Equal(t, 1, solar.MatchCount)
	assert.Equal(t, 2, month.MatchCount)
	assert.Equal(t, "July", month.TargetPeriod)
	assert.Equal(t, "month", month.Scheme)
}

func TestForecast_ChannelBreakdown(t *testing.T) {
	withChannels := func(r models.DailyRecord, breakdown map[string]models.ChannelActuals) models.DailyRecord {
		r.ChannelBreakdown = breakdown
		return r
	}
	records := []models.DailyRecord{
		withChannels(rec("2024-07-13", 100, 300000), map[string]models.ChannelActuals{
			"restaurant":  {Sales: 200000, Count: 60},
			"beer_garden": {Sales: 100000, Count: 40},
		}),
		withChannels(rec("2023-07-15", 80, 200000), map[string]models.ChannelActuals{
			"restaurant":  {Sales: 150000, Count: 50},
			"beer_garden": {Sales: 50000, Count: 30},
		}),
		// seating fee only counted through the trailing window
		withChannels(rec("2025-06-01", 10, 10000), map[string]models.ChannelActuals{"seating_fee": {Sales: 90000}}),
		withChannels(rec("2025-07-01", 10, 10000), map[string]models.ChannelActuals{"seating_fee": {Sales: 30000}}),
		withChannels(rec("2025-07-10", 10, 10000), map[string]models.ChannelActuals{"seating_fee": {Sales: 36000}}),
		withChannels(rec("2025-07-19", 10, 10000), map[string]models.ChannelActuals{"seating_fee": {Sales: 99999}}),
	}

	res, err := NewEngine(calendar.SchemeSolarTerm, 0).Forecast(target, testProfile(), records)
	require.NoError(t, err)
	require.Len(t, res.Channels, 3)

	restaurant := res.Channels["restaurant"]
	assert.Equal(t, 2, restaurant.MatchCount)
	assert.Equal(t, int64(55), restaurant.PredictedCustomerCount)
	// uniform weights: (3333.33 + 3000) / 2, recency weights would give 3168
	assert.Equal(t, int64(3167), restaurant.PredictedAverageSpend)
	assert.Equal(t, int64(55*3167), restaurant.PredictedSales)

	beer := res.Channels["beer_garden"]
	assert.Equal(t, int64(35), beer.PredictedCustomerCount)
	assert.Equal(t, int64(2083), beer.PredictedAverageSpend)

	fee := res.Channels["seating_fee"]
	assert.Equal(t, models.MethodTrailingFlat, fee.Method)
	assert.Equal(t, 2, fee.MatchCount)
	assert.Equal(t, int64(33000), fee.PredictedSales)
	assert.Equal(t, int64(0), fee.PredictedCustomerCount)
	assert.Equal(t, int64(0), fee.PredictedAverageSpend)
}

func TestForecastChannel(t *testing.T) {
	engine := NewEngine(calendar.SchemeSolarTerm, 0)

	t.Run("period channel", func(t *testing.T) {
		series := []models.DailyRecord{
			rec("2024-07-13", 60, 200000),
			rec("2023-07-15", 50, 150000),
		}
		res, err := engine.ForecastChannel(target, testProfile(), "restaurant", series)
		require.NoError(t, err)

		assert.Equal(t, "restaurant", res.ChannelID)
		assert.Equal(t, models.MethodPeriodWeekday, res.Method)
		assert.Equal(t, 2, res.MatchCount)
		// recency weighted: (3333.33*1.05 + 3000*1.03) / 2.08
		assert.Equal(t, int64(3168), res.PredictedAverageSpend)
		assert.Equal(t, res.PredictedCustomerCount*res.PredictedAverageSpend, res.PredictedSales)
	})

	t.Run("flat fee channel", func(t *testing.T) {
		series := []models.DailyRecord{
			rec("2025-06-01", 0, 90000),
			rec("2025-06-20", 4, 32000),
			rec("2025-07-18", 2, 34000),
			rec("2025-07-20", 0, 99999),
		}
		res, err := engine.ForecastChannel(target, testProfile(), "seating_fee", series)
		require.NoError(t, err)

		assert.Equal(t, models.MethodTrailingFlat, res.Method)
		assert.Equal(t, 2, res.MatchCount)
		assert.Equal(t, int64(33000), res.PredictedSales)
		assert.Equal(t, int64(3), res.PredictedCustomerCount)
		assert.Equal(t, int64(11000), res.PredictedAverageSpend)
	})

	t.Run("default window", func(t *testing.T) {
		profile := testProfile()
		profile.Channels[2].FlatFeeWindowDays = 0
		series := []models.DailyRecord{
			rec("2025-04-01", 0, 90000), // outside 90 days
			rec("2025-05-01", 0, 30000),
		}
		res, err := engine.ForecastChannel(target, profile, "seating_fee", series)
		require.NoError(t, err)
		assert.Equal(t, 1, res.MatchCount)
		assert.Equal(t, int64(30000), res.PredictedSales)
	})

	t.Run("unknown channel", func(t *testing.T) {
		_, err := engine.ForecastChannel(target, testProfile(), "sauna", nil)
		var cfgErr *models.ConfigurationError
		require.True(t, errors.As(err, &cfgErr))
		assert.Equal(t, "MOIWAYAMA", cfgErr.VenueID)
	})
}

func TestForecast_InvalidInput(t *testing.T) {
	engine := NewEngine(calendar.SchemeSolarTerm, 0)

	_, err := engine.Forecast(time.Time{}, testProfile(), nil)
	var vErr *models.ValidationError
	assert.True(t, errors.As(err, &vErr))

	_, err = engine.Forecast(target, nil, nil)
	var cfgErr *models.ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
}
