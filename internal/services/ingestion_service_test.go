package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"momentum-peaks/internal/models"
	"momentum-peaks/pkg/logging"
)

func TestParseSalesLine(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		expected *models.RawSalesRecord
		wantErr  bool
	}{
		{
			name:     "full line",
			line:     "20250719\t245000\t82\t180000\t65000",
			expected: &models.RawSalesRecord{Date: "20250719", Sales: 245000, Count: 82, FoodSales: 180000, DrinkSales: 65000},
		},
		{
			name:     "without food and drink",
			line:     "20250719\t245000\t82",
			expected: &models.RawSalesRecord{Date: "20250719", Sales: 245000, Count: 82, FoodSales: models.MissingValue, DrinkSales: models.MissingValue},
		},
		{
			name:     "missing markers",
			line:     "20250719\t-\t-9999\t-\t",
			expected: &models.RawSalesRecord{Date: "20250719", Sales: models.MissingValue, Count: models.MissingValue, FoodSales: models.MissingValue, DrinkSales: models.MissingValue},
		},
		{
			name:     "thousands separators",
			line:     "20250719\t1,245,000\t82",
			expected: &models.RawSalesRecord{Date: "20250719", Sales: 1245000, Count: 82, FoodSales: models.MissingValue, DrinkSales: models.MissingValue},
		},
		{name: "too few fields", line: "20250719\t245000", wantErr: true},
		{name: "four fields", line: "20250719\t245000\t82\t1", wantErr: true},
		{name: "not a number", line: "20250719\tabc\t82", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseSalesLine(tc.line)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestParseFileName(t *testing.T) {
	tests := []struct {
		path    string
		venue   string
		channel string
		wantErr bool
	}{
		{"data/moiwayama.tsv", "MOIWAYAMA", "", false},
		{"/tmp/MOIWAYAMA__beer_garden.tsv", "MOIWAYAMA", "beer_garden", false},
		{"__restaurant.tsv", "", "", true},
	}
	for _, tc := range tests {
		venue, channel, err := ParseFileName(tc.path)
		if tc.wantErr {
			assert.Error(t, err, tc.path)
			continue
		}
		require.NoError(t, err, tc.path)
		assert.Equal(t, tc.venue, venue)
		assert.Equal(t, tc.channel, channel)
	}
}

func TestScanSalesFile(t *testing.T) {
	input := strings.Join([]string{
		"# date\tsales\tcount\tfood\tdrink",
		"20250718\t120000\t40\t90000\t30000",
		"",
		"20250719\tbad\t40",
		"20250720\t150000\t50\r",
	}, "\n")

	var ok, failed int
	err := ScanSalesFile(strings.NewReader(input), func(raw *models.RawSalesRecord, err error) error {
		if err != nil {
			failed++
			return nil
		}
		ok++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, ok)
	assert.Equal(t, 1, failed)

	stop := errors.New("stop")
	err = ScanSalesFile(strings.NewReader(input), func(*models.RawSalesRecord, error) error { return stop })
	assert.ErrorIs(t, err, stop)
}

func writeFile(t *testing.T, dir, name string, lines ...string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(strings.Join(lines, "\n")+"\n"), 0o644))
}

func TestIngestDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "MOIWAYAMA__restaurant.tsv",
		"20240713\t150000\t50\t100000\t50000",
		"20240714\t90000\t30",
		"20240715\t-\t-",
	)
	writeFile(t, dir, "MOIWAYAMA__beer_garden.tsv",
		"20240713\t60000\t30",
	)
	writeFile(t, dir, "OKURAYAMA.tsv",
		"20240801\t50000\t25",
	)
	writeFile(t, dir, "NOWHERE.tsv",
		"20240801\t1\t1",
	)
	writeFile(t, dir, "notes.txt", "ignored")

	collector := testMetrics()
	repo := newMemoryRepo()
	repo.metrics = collector
	svc := NewIngestionService(repo, testVenues(t), logging.NewNopLogger(), collector)

	result, err := svc.IngestDirectory(context.Background(), dir, 2)
	require.NoError(t, err)

	// each stored row is counted once, by the store
	assert.Equal(t, float64(result.SuccessfulRecords), testutil.ToFloat64(collector.IngestionRecordsTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.IngestionErrorsTotal.WithLabelValues("conversion_error")))

	assert.Equal(t, 4, result.TotalFiles)
	assert.Equal(t, 5, result.TotalRecords)
	assert.Equal(t, 4, result.SuccessfulRecords)
	assert.Equal(t, 1, result.FailedRecords, "missing sales are rejected")
	assert.ElementsMatch(t, []string{"MOIWAYAMA", "OKURAYAMA"}, result.Venues)
	assert.Equal(t, day("2024-07-13"), result.FirstDate)
	assert.Equal(t, day("2024-08-01"), result.LastDate)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "NOWHERE")

	rec, ok := repo.records["MOIWAYAMA|restaurant|2024-07-13"]
	require.True(t, ok)
	assert.Equal(t, int64(100000), rec.FoodSales)

	total, ok := repo.records["OKURAYAMA||2024-08-01"]
	require.True(t, ok)
	assert.Equal(t, "", total.ChannelID)
	assert.Equal(t, int64(0), total.DrinkSales)
}

func TestIngestDirectory_Empty(t *testing.T) {
	svc := NewIngestionService(newMemoryRepo(), nil, logging.NewNopLogger(), testMetrics())
	_, err := svc.IngestDirectory(context.Background(), t.TempDir(), 100)
	assert.Error(t, err)
}

func TestReadSalesDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "MOIWAYAMA__restaurant.tsv",
		"20240713\t150000\t50",
		"20240714\tbroken",
	)
	writeFile(t, dir, "moiwayama.tsv",
		"20240713\t210000\t80",
	)
	writeFile(t, dir, "OKURAYAMA.tsv",
		"20240713\t50000\t25",
	)

	records, skipped, err := ReadSalesDir(dir, "Moiwayama")
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	require.Len(t, records, 2)

	channels := map[string]int64{}
	for _, r := range records {
		assert.Equal(t, "MOIWAYAMA", r.VenueID)
		channels[r.ChannelID] = r.ActualSales
	}
	assert.Equal(t, map[string]int64{"": 210000, "restaurant": 150000}, channels)

	records, _, err = ReadSalesDir(dir, "TVTOWER")
	require.NoError(t, err)
	assert.Empty(t, records)
}
