package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"momentum-peaks/internal/calendar"
	"momentum-peaks/internal/forecast"
	"momentum-peaks/internal/models"
	"momentum-peaks/internal/repository"
	"momentum-peaks/internal/venues"
	"momentum-peaks/pkg/logging"
	"momentum-peaks/pkg/metrics"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func testMetrics() *metrics.Collector {
	return metrics.NewCollectorWithRegistry("test", prometheus.NewRegistry())
}

func testVenues(t *testing.T) *venues.Registry {
	t.Helper()
	reg, err := venues.Default()
	require.NoError(t, err)
	return reg
}

// memoryRepo is an in-memory SalesRepository
type memoryRepo struct {
	mu           sync.Mutex
	records      map[string]models.DailyRecord
	summaries    map[string]*models.FiscalYearSummary
	historyCalls int
	batches      []int
	summaryErr   map[int]error
	// metrics, when set, is fed the way the Postgres repository feeds it
	metrics *metrics.Collector
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		records:    make(map[string]models.DailyRecord),
		summaries:  make(map[string]*models.FiscalYearSummary),
		summaryErr: make(map[int]error),
	}
}

func recordKey(venueID, channelID string, date time.Time) string {
	return strings.ToUpper(venueID) + "|" + channelID + "|" + date.Format("2006-01-02")
}

func (m *memoryRepo) add(venueID, channelID, date string, count, sales int64) {
	m.records[recordKey(venueID, channelID, day(date))] = models.DailyRecord{
		VenueID:             venueID,
		ChannelID:           channelID,
		Date:                day(date),
		ActualCustomerCount: count,
		ActualSales:         sales,
	}
}

func (m *memoryRepo) UpsertDailyRecord(_ context.Context, rec *models.DailyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[recordKey(rec.VenueID, rec.ChannelID, rec.Date)] = *rec
	return nil
}

func (m *memoryRepo) UpsertDailyRecordsBatch(_ context.Context, recs []*models.DailyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, len(recs))
	for _, rec := range recs {
		m.records[recordKey(rec.VenueID, rec.ChannelID, rec.Date)] = *rec
	}
	if m.metrics != nil {
		m.metrics.IngestionBatchSize.Observe(float64(len(recs)))
		m.metrics.IngestionRecordsTotal.Add(float64(len(recs)))
	}
	return nil
}

func (m *memoryRepo) GetDailyRecords(_ context.Context, filter repository.RecordFilter) ([]*models.DailyRecord, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.DailyRecord
	for _, r := range m.records {
		if filter.VenueID != nil && r.VenueID != *filter.VenueID {
			continue
		}
		rec := r
		out = append(out, &rec)
	}
	return out, len(out), nil
}

func (m *memoryRepo) ListHistory(_ context.Context, venueID, channelID string, before time.Time) ([]models.DailyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.historyCalls++
	var out []models.DailyRecord
	for _, r := range m.records {
		if r.VenueID != strings.ToUpper(venueID) || !r.Date.Before(before) {
			continue
		}
		if channelID != "" && r.ChannelID != channelID {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ChannelID < out[j].ChannelID
	})
	return out, nil
}

func (m *memoryRepo) DeleteDailyRecord(_ context.Context, venueID, channelID string, date time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := recordKey(venueID, channelID, date)
	if _, ok := m.records[key]; !ok {
		return &models.NotFoundError{Resource: "daily_record", ID: key}
	}
	delete(m.records, key)
	return nil
}

func (m *memoryRepo) CalculateFiscalYearSummary(_ context.Context, venueID string, fiscalYear int, start, end time.Time) (*models.FiscalYearSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.summaryErr[fiscalYear]; err != nil {
		return nil, err
	}
	var rows []models.DailyRecord
	for _, r := range m.records {
		if r.VenueID == venueID && !r.Date.Before(start) && r.Date.Before(end) {
			rows = append(rows, r)
		}
	}
	summary := &models.FiscalYearSummary{VenueID: venueID, FiscalYear: fiscalYear}
	for _, d := range models.AggregateDaily(rows) {
		summary.TotalSales += d.ActualSales
		summary.TotalCustomers += d.ActualCustomerCount
		if d.ActualSales > 0 {
			summary.SalesDays++
		}
	}
	summary.ComputeAverageSpend()
	return summary, nil
}

func (m *memoryRepo) UpsertSummary(_ context.Context, summary *models.FiscalYearSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries[fmt.Sprintf("%s|%d", summary.VenueID, summary.FiscalYear)] = summary
	return nil
}

func (m *memoryRepo) DeleteSummary(_ context.Context, venueID string, fiscalYear int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := fmt.Sprintf("%s|%d", venueID, fiscalYear)
	_, ok := m.summaries[key]
	delete(m.summaries, key)
	return ok, nil
}

func (m *memoryRepo) GetSummaries(_ context.Context, _ repository.SummaryFilter) ([]*models.FiscalYearSummary, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.FiscalYearSummary
	for _, s := range m.summaries {
		out = append(out, s)
	}
	return out, len(out), nil
}

func (m *memoryRepo) HealthCheck(context.Context) error { return nil }

// memoryCache is an in-memory ForecastCache
type memoryCache struct {
	mu          sync.Mutex
	entries     map[string]models.ForecastResult
	generations map[string]int64
	invalidated []string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{
		entries:     make(map[string]models.ForecastResult),
		generations: make(map[string]int64),
	}
}

func (c *memoryCache) Generation(_ context.Context, venueID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[strings.ToUpper(venueID)], nil
}

func cacheKey(venueID, channelID string, date time.Time, scheme string) string {
	return strings.Join([]string{strings.ToUpper(venueID), channelID, date.Format("2006-01-02"), scheme}, "|")
}

func (c *memoryCache) Get(_ context.Context, venueID, channelID string, date time.Time, scheme string) (*models.ForecastResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res, ok := c.entries[cacheKey(venueID, channelID, date, scheme)]
	if !ok {
		return nil, false
	}
	return &res, true
}

func (c *memoryCache) Set(_ context.Context, res *models.ForecastResult, generation int64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[strings.ToUpper(res.VenueID)] != generation {
		return false, nil
	}
	c.entries[cacheKey(res.VenueID, res.ChannelID, res.TargetDate, res.Scheme)] = *res
	return true, nil
}

func (c *memoryCache) InvalidateVenue(_ context.Context, venueID string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, venueID)
	c.generations[strings.ToUpper(venueID)]++
	n := 0
	for k := range c.entries {
		if strings.HasPrefix(k, venueID+"|") {
			delete(c.entries, k)
			n++
		}
	}
	return n, nil
}

func TestScoreService(t *testing.T) {
	svc := NewScoreService(testVenues(t), logging.NewNopLogger(), testMetrics())
	ctx := context.Background()

	res, err := svc.Score(ctx, "moiwayama", day("2025-07-19"))
	require.NoError(t, err)
	assert.Equal(t, "MOIWAYAMA", res.VenueID)
	assert.Equal(t, 5.00, res.CompositeScore)
	assert.Equal(t, 5, res.Level)

	_, err = svc.Score(ctx, "NOWHERE", day("2025-07-19"))
	var cfgErr *models.ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))

	week, err := svc.ScoreRange(ctx, "TVTOWER", day("2025-07-14"), day("2025-07-20"))
	require.NoError(t, err)
	assert.Len(t, week, 7)

	assert.Len(t, svc.ListVenues(), 4)
}

// 2025-07-19 is a Saturday in 小暑; 2024-07-13 is the Saturday a year earlier.
func seedMoiwayama(repo *memoryRepo) {
	repo.add("MOIWAYAMA", "restaurant", "2024-07-13", 50, 150000)
	repo.add("MOIWAYAMA", "beer_garden", "2024-07-13", 30, 60000)
	repo.add("MOIWAYAMA", "seating_fee", "2025-07-15", 3, 30000)
	// after the target, never used
	repo.add("MOIWAYAMA", "restaurant", "2025-07-26", 500, 9000000)
}

func TestForecastService_ForecastVenue(t *testing.T) {
	repo := newMemoryRepo()
	seedMoiwayama(repo)
	engine := forecast.NewEngine(calendar.SchemeSolarTerm, forecast.DefaultFlatFeeWindowDays)
	svc := NewForecastService(repo, testVenues(t), engine, nil, logging.NewNopLogger(), testMetrics())

	out, err := svc.ForecastVenue(context.Background(), "moiwayama", day("2025-07-19"))
	require.NoError(t, err)

	assert.Equal(t, "MOIWAYAMA", out.Forecast.VenueID)
	assert.Equal(t, 1, out.Forecast.MatchCount)
	assert.Equal(t, int64(80), out.Forecast.PredictedCustomerCount)
	assert.Equal(t, int64(2625), out.Forecast.PredictedAverageSpend)
	assert.Equal(t, int64(210000), out.Forecast.PredictedSales)

	require.Len(t, out.Channels, 4)

	restaurant := out.Channels["restaurant"]
	assert.Equal(t, "restaurant", restaurant.ChannelID)
	assert.Equal(t, int64(50), restaurant.PredictedCustomerCount)
	assert.Equal(t, int64(3000), restaurant.PredictedAverageSpend)

	beer := out.Channels["beer_garden"]
	assert.Equal(t, int64(30), beer.PredictedCustomerCount)
	assert.Equal(t, int64(2000), beer.PredictedAverageSpend)

	takeout := out.Channels["takeout"]
	assert.Equal(t, 0, takeout.MatchCount)
	assert.Equal(t, int64(0), takeout.PredictedSales)
	assert.NotNil(t, takeout.MatchedRecords)

	fee := out.Channels["seating_fee"]
	assert.Equal(t, models.MethodTrailingFlat, fee.Method)
	assert.Equal(t, int64(30000), fee.PredictedSales)
	assert.Equal(t, int64(3), fee.PredictedCustomerCount)
	assert.Equal(t, int64(10000), fee.PredictedAverageSpend)
}

func TestForecastService_UsesCache(t *testing.T) {
	repo := newMemoryRepo()
	seedMoiwayama(repo)
	cache := newMemoryCache()
	engine := forecast.NewEngine(calendar.SchemeSolarTerm, forecast.DefaultFlatFeeWindowDays)
	svc := NewForecastService(repo, testVenues(t), engine, cache, logging.NewNopLogger(), testMetrics())
	ctx := context.Background()

	first, err := svc.ForecastVenue(ctx, "MOIWAYAMA", day("2025-07-19"))
	require.NoError(t, err)
	assert.Equal(t, 1, repo.historyCalls)
	assert.Len(t, cache.entries, 5, "venue plus four channels")

	second, err := svc.ForecastVenue(ctx, "MOIWAYAMA", day("2025-07-19"))
	require.NoError(t, err)
	assert.Equal(t, 1, repo.historyCalls, "served from cache")
	assert.Equal(t, first.Forecast.PredictedSales, second.Forecast.PredictedSales)
	assert.Equal(t, first.Channels["restaurant"].PredictedAverageSpend, second.Channels["restaurant"].PredictedAverageSpend)

	ch, err := svc.ForecastChannel(ctx, "MOIWAYAMA", "beer_garden", day("2025-07-19"))
	require.NoError(t, err)
	assert.Equal(t, int64(30), ch.PredictedCustomerCount)
	assert.Equal(t, 1, repo.historyCalls)

	svc.InvalidateVenue(ctx, "MOIWAYAMA")
	assert.Empty(t, cache.entries)

	_, err = svc.ForecastChannel(ctx, "MOIWAYAMA", "beer_garden", day("2025-07-19"))
	require.NoError(t, err)
	assert.Equal(t, 2, repo.historyCalls)
}

// correctingHistory commits a correction right after the first history read,
// as a concurrent PUT would between the read and the cache write-back.
type correctingHistory struct {
	*memoryRepo
	once    sync.Once
	correct func()
}

func (h *correctingHistory) ListHistory(ctx context.Context, venueID, channelID string, before time.Time) ([]models.DailyRecord, error) {
	rows, err := h.memoryRepo.ListHistory(ctx, venueID, channelID, before)
	h.once.Do(h.correct)
	return rows, err
}

func TestForecastService_CorrectionDuringComputation(t *testing.T) {
	repo := newMemoryRepo()
	repo.add("MOIWAYAMA", "restaurant", "2024-07-13", 100, 300000)

	cache := newMemoryCache()
	reg := testVenues(t)
	engine := forecast.NewEngine(calendar.SchemeSolarTerm, forecast.DefaultFlatFeeWindowDays)
	history := &correctingHistory{memoryRepo: repo}
	forecasts := NewForecastService(history, reg, engine, cache, logging.NewNopLogger(), testMetrics())
	records := NewRecordService(repo, reg, forecasts, logging.NewNopLogger(), testMetrics())
	ctx := context.Background()

	history.correct = func() {
		require.NoError(t, records.UpsertRecord(ctx, &models.DailyRecord{
			VenueID:             "MOIWAYAMA",
			ChannelID:           "restaurant",
			Date:                day("2024-07-13"),
			ActualSales:         900000,
			ActualCustomerCount: 300,
		}))
	}

	first, err := forecasts.ForecastVenue(ctx, "MOIWAYAMA", day("2025-07-19"))
	require.NoError(t, err)
	assert.Equal(t, int64(100), first.Forecast.PredictedCustomerCount, "computed from the rows read before the correction")
	assert.Empty(t, cache.entries, "results older than the correction are not cached")

	second, err := forecasts.ForecastVenue(ctx, "MOIWAYAMA", day("2025-07-19"))
	require.NoError(t, err)
	assert.Equal(t, int64(300), second.Forecast.PredictedCustomerCount)
	assert.Equal(t, int64(300), second.Channels["restaurant"].PredictedCustomerCount)
	assert.Len(t, cache.entries, 5)

	calls := repo.historyCalls
	third, err := forecasts.ForecastVenue(ctx, "MOIWAYAMA", day("2025-07-19"))
	require.NoError(t, err)
	assert.Equal(t, int64(300), third.Forecast.PredictedCustomerCount)
	assert.Equal(t, calls, repo.historyCalls, "served from cache")
}

func TestForecastService_ChannelCorrectionDuringComputation(t *testing.T) {
	repo := newMemoryRepo()
	repo.add("MOIWAYAMA", "beer_garden", "2024-07-13", 30, 60000)

	cache := newMemoryCache()
	reg := testVenues(t)
	engine := forecast.NewEngine(calendar.SchemeSolarTerm, forecast.DefaultFlatFeeWindowDays)
	history := &correctingHistory{memoryRepo: repo}
	forecasts := NewForecastService(history, reg, engine, cache, logging.NewNopLogger(), testMetrics())
	records := NewRecordService(repo, reg, forecasts, logging.NewNopLogger(), testMetrics())
	ctx := context.Background()

	history.correct = func() {
		require.NoError(t, records.DeleteRecord(ctx, "MOIWAYAMA", "beer_garden", day("2024-07-13")))
	}

	first, err := forecasts.ForecastChannel(ctx, "MOIWAYAMA", "beer_garden", day("2025-07-19"))
	require.NoError(t, err)
	assert.Equal(t, int64(30), first.PredictedCustomerCount)
	assert.Empty(t, cache.entries)

	second, err := forecasts.ForecastChannel(ctx, "MOIWAYAMA", "beer_garden", day("2025-07-19"))
	require.NoError(t, err)
	assert.Equal(t, 0, second.MatchCount)
	assert.Equal(t, int64(0), second.PredictedCustomerCount)
}

func TestForecastService_Errors(t *testing.T) {
	engine := forecast.NewEngine(calendar.SchemeSolarTerm, forecast.DefaultFlatFeeWindowDays)
	svc := NewForecastService(newMemoryRepo(), testVenues(t), engine, nil, logging.NewNopLogger(), testMetrics())
	ctx := context.Background()

	var cfgErr *models.ConfigurationError
	var valErr *models.ValidationError

	_, err := svc.ForecastVenue(ctx, "NOWHERE", day("2025-07-19"))
	assert.True(t, errors.As(err, &cfgErr))

	_, err = svc.ForecastChannel(ctx, "MOIWAYAMA", "karaoke", day("2025-07-19"))
	assert.True(t, errors.As(err, &cfgErr))

	_, err = svc.ForecastVenue(ctx, "MOIWAYAMA", time.Time{})
	assert.True(t, errors.As(err, &valErr))

	out, err := svc.ForecastVenue(ctx, "OKURAYAMA", day("2025-07-19"))
	require.NoError(t, err, "no history is not an error")
	assert.Equal(t, 0, out.Forecast.MatchCount)
	assert.Equal(t, int64(0), out.Forecast.PredictedSales)
}

func TestRecordService_Upsert(t *testing.T) {
	repo := newMemoryRepo()
	cache := newMemoryCache()
	engine := forecast.NewEngine(calendar.SchemeSolarTerm, forecast.DefaultFlatFeeWindowDays)
	reg := testVenues(t)
	forecasts := NewForecastService(repo, reg, engine, cache, logging.NewNopLogger(), testMetrics())
	svc := NewRecordService(repo, reg, forecasts, logging.NewNopLogger(), testMetrics())
	ctx := context.Background()

	err := svc.UpsertRecord(ctx, &models.DailyRecord{
		VenueID:             " moiwayama ",
		ChannelID:           "restaurant",
		Date:                day("2025-07-12"),
		ActualSales:         120000,
		ActualCustomerCount: 40,
	})
	require.NoError(t, err)
	assert.Contains(t, repo.records, "MOIWAYAMA|restaurant|2025-07-12")
	assert.Equal(t, []string{"MOIWAYAMA"}, cache.invalidated)

	tests := []struct {
		name  string
		rec   models.DailyRecord
		field string
	}{
		{"unknown venue", models.DailyRecord{VenueID: "NOWHERE", Date: day("2025-07-12")}, "venue_id"},
		{"unknown channel", models.DailyRecord{VenueID: "OKURAYAMA", ChannelID: "beer_garden", Date: day("2025-07-12")}, "channel_id"},
		{"negative sales", models.DailyRecord{VenueID: "OKURAYAMA", Date: day("2025-07-12"), ActualSales: -1}, "actual_sales"},
		{"missing date", models.DailyRecord{VenueID: "OKURAYAMA"}, "date"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := tc.rec
			err := svc.UpsertRecord(ctx, &rec)
			var valErr *models.ValidationError
			require.True(t, errors.As(err, &valErr), "got %v", err)
			assert.Equal(t, tc.field, valErr.Field)
		})
	}
	assert.Len(t, cache.invalidated, 1, "rejected records do not invalidate")
}

func TestRecordService_Delete(t *testing.T) {
	repo := newMemoryRepo()
	repo.add("TVTOWER", "", "2025-01-05", 900, 1800000)
	cache := newMemoryCache()
	engine := forecast.NewEngine(calendar.SchemeSolarTerm, forecast.DefaultFlatFeeWindowDays)
	reg := testVenues(t)
	forecasts := NewForecastService(repo, reg, engine, cache, logging.NewNopLogger(), testMetrics())
	svc := NewRecordService(repo, reg, forecasts, logging.NewNopLogger(), testMetrics())
	ctx := context.Background()

	err := svc.DeleteRecord(ctx, "TVTOWER", "", day("2025-01-06"))
	assert.True(t, repository.IsNotFound(err))
	assert.Empty(t, cache.invalidated)

	require.NoError(t, svc.DeleteRecord(ctx, "tvtower", "", day("2025-01-05")))
	assert.Empty(t, repo.records)
	assert.Equal(t, []string{"TVTOWER"}, cache.invalidated)
}

func TestSummaryService(t *testing.T) {
	repo := newMemoryRepo()
	// FY2024 with an April start
	repo.add("AKARENGA", "dining", "2024-05-01", 10, 10000)
	repo.add("AKARENGA", "brewery", "2024-05-01", 5, 4000)
	repo.add("AKARENGA", "", "2025-03-31", 4, 6000)
	// FY2025
	repo.add("AKARENGA", "", "2025-04-01", 3, 3000)

	svc := NewSummaryService(repo, testVenues(t), time.April, logging.NewNopLogger(), testMetrics())
	ctx := context.Background()

	from, to := svc.FiscalYearsBetween(day("2024-05-01"), day("2025-04-01"))
	assert.Equal(t, 2024, from)
	assert.Equal(t, 2025, to)

	saved, err := svc.CalculateSummaries(ctx, from, to)
	require.NoError(t, err)
	assert.Equal(t, 2, saved, "venues without sales are skipped")

	fy24 := repo.summaries["AKARENGA|2024"]
	require.NotNil(t, fy24)
	assert.Equal(t, int64(20000), fy24.TotalSales)
	assert.Equal(t, int64(19), fy24.TotalCustomers)
	assert.Equal(t, 2, fy24.SalesDays)
	assert.Equal(t, "1052.63", fy24.AverageSpend.StringFixed(2))

	fy25 := repo.summaries["AKARENGA|2025"]
	require.NotNil(t, fy25)
	assert.Equal(t, 1, fy25.SalesDays)

	_, err = svc.CalculateSummaries(ctx, 2026, 2025)
	var valErr *models.ValidationError
	assert.True(t, errors.As(err, &valErr))

	// correcting away FY2025's only actuals removes its summary
	require.NoError(t, repo.DeleteDailyRecord(ctx, "AKARENGA", "", day("2025-04-01")))
	saved, err = svc.CalculateSummaries(ctx, 2025, 2025)
	require.NoError(t, err)
	assert.Equal(t, 0, saved)
	assert.NotContains(t, repo.summaries, "AKARENGA|2025")
	assert.Contains(t, repo.summaries, "AKARENGA|2024")

	repo.add("AKARENGA", "", "2025-04-01", 3, 3000)
	repo.summaryErr[2025] = errors.New("connection reset")
	saved, err = svc.CalculateSummaries(ctx, 2024, 2025)
	assert.Error(t, err)
	assert.Equal(t, 1, saved)
}
