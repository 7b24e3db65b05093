package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"momentum-peaks/internal/calendar"
	"momentum-peaks/internal/models"
	"momentum-peaks/internal/venues"
	"momentum-peaks/pkg/logging"
)

func TestForecastFromDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "MOIWAYAMA__restaurant.tsv"),
		[]byte("20240713\t150000\t50\n20250726\t999999\t999\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "MOIWAYAMA__beer_garden.tsv"),
		[]byte("20240713\t60000\t30\n"), 0o644))

	reg, err := venues.Default()
	require.NoError(t, err)

	target := time.Date(2025, 7, 19, 0, 0, 0, 0, time.UTC)
	res, err := forecastFromDir(context.Background(), reg, "moiwayama", target, dir, calendar.SchemeSolarTerm, 90, logging.NewNopLogger())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Forecast.MatchCount)
	assert.Equal(t, int64(80), res.Forecast.PredictedCustomerCount)
	assert.Equal(t, int64(210000), res.Forecast.PredictedSales)
	assert.Equal(t, int64(150000), res.Channels["restaurant"].PredictedSales)
	assert.Equal(t, int64(60000), res.Channels["beer_garden"].PredictedSales)
}

func TestFileHistory(t *testing.T) {
	d := func(s string) time.Time { tm, _ := time.Parse("2006-01-02", s); return tm }
	h := &fileHistory{}
	h.records = append(h.records,
		rec("MOIWAYAMA", "restaurant", d("2025-07-01")),
		rec("MOIWAYAMA", "", d("2025-07-01")),
		rec("MOIWAYAMA", "restaurant", d("2025-07-19")),
		rec("TVTOWER", "shop", d("2025-07-01")),
	)

	all, err := h.ListHistory(context.Background(), "moiwayama", "", d("2025-07-19"))
	require.NoError(t, err)
	assert.Len(t, all, 2)

	ch, err := h.ListHistory(context.Background(), "MOIWAYAMA", "restaurant", d("2025-07-20"))
	require.NoError(t, err)
	assert.Len(t, ch, 2)
}

func rec(venueID, channelID string, date time.Time) models.DailyRecord {
	return models.DailyRecord{VenueID: venueID, ChannelID: channelID, Date: date, ActualSales: 1, ActualCustomerCount: 1}
}
