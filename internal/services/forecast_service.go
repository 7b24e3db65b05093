package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"momentum-peaks/internal/calendar"
	"momentum-peaks/internal/forecast"
	"momentum-peaks/internal/models"
	"momentum-peaks/pkg/logging"
	"momentum-peaks/pkg/metrics"
)

// maxChannelWorkers bounds the per-channel fan-out of a venue forecast
const maxChannelWorkers = 4

// HistoryReader loads actuals dated strictly before a day
type HistoryReader interface {
	ListHistory(ctx context.Context, venueID, channelID string, before time.Time) ([]models.DailyRecord, error)
}

// ForecastCache stores computed forecasts. Implementations must be safe for concurrent use.
//
// Every InvalidateVenue advances the venue's generation. Set stores only when
// the generation still matches the one read before the history load, so a
// forecast computed from pre-correction rows never outlives the correction.
type ForecastCache interface {
	Generation(ctx context.Context, venueID string) (int64, error)
	Get(ctx context.Context, venueID, channelID string, date time.Time, scheme string) (*models.ForecastResult, bool)
	Set(ctx context.Context, result *models.ForecastResult, generation int64) (bool, error)
	InvalidateVenue(ctx context.Context, venueID string) (int, error)
}

// cacheGeneration is the cache generation a computation started at. An invalid
// generation disables the write-back.
type cacheGeneration struct {
	value int64
	valid bool
}

// ForecastService loads history, runs the forecast engine and caches results
type ForecastService struct {
	history HistoryReader
	venues  VenueLookup
	engine  *forecast.Engine
	cache   ForecastCache
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewForecastService creates a new forecast service. cache may be nil.
func NewForecastService(history HistoryReader, venues VenueLookup, engine *forecast.Engine, cache ForecastCache, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *ForecastService {
	return &ForecastService{
		history: history,
		venues:  venues,
		engine:  engine,
		cache:   cache,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// Scheme returns the engine's matching scheme
func (s *ForecastService) Scheme() calendar.Scheme {
	return s.engine.Scheme()
}

func (s *ForecastService) profile(venueID string) (*models.VenueProfile, error) {
	profile, ok := s.venues.Venue(venueID)
	if !ok {
		return nil, &models.ConfigurationError{VenueID: strings.ToUpper(venueID), Reason: "venue not configured"}
	}
	return profile, nil
}

// ForecastChannel forecasts one channel of a venue from that channel's own history
func (s *ForecastService) ForecastChannel(ctx context.Context, venueID, channelID string, date time.Time) (*models.ForecastResult, error) {
	if date.IsZero() {
		return nil, &models.ValidationError{Field: "date", Message: "date is required"}
	}
	profile, err := s.profile(venueID)
	if err != nil {
		return nil, err
	}
	if _, ok := profile.Channel(channelID); !ok {
		return nil, &models.ConfigurationError{VenueID: profile.ID, Reason: "channel " + channelID + " not configured"}
	}

	ctx = logging.WithVenueID(ctx, profile.ID)
	target := calendar.DateOnly(date)

	if cached, ok := s.fromCache(ctx, profile.ID, channelID, target); ok {
		return cached, nil
	}

	gen := s.generation(ctx, profile.ID)
	rows, err := s.history.ListHistory(ctx, profile.ID, channelID, target)
	if err != nil {
		return nil, fmt.Errorf("loading %s/%s history: %w", profile.ID, channelID, err)
	}

	res, err := s.runChannel(ctx, target, profile, channelID, rows)
	if err != nil {
		return nil, err
	}
	s.store(ctx, gen, res)
	return res, nil
}

// ForecastVenue forecasts the venue totals and, in parallel, every configured
// channel from its own rows. History is read once and shared read-only.
func (s *ForecastService) ForecastVenue(ctx context.Context, venueID string, date time.Time) (*models.VenueForecast, error) {
	if date.IsZero() {
		return nil, &models.ValidationError{Field: "date", Message: "date is required"}
	}
	profile, err := s.profile(venueID)
	if err != nil {
		return nil, err
	}

	ctx = logging.WithVenueID(ctx, profile.ID)
	target := calendar.DateOnly(date)

	if cached, ok := s.venueFromCache(ctx, profile, target); ok {
		return cached, nil
	}

	timer := s.metrics.NewTimer(s.metrics.ForecastDuration)
	gen := s.generation(ctx, profile.ID)
	rows, err := s.history.ListHistory(ctx, profile.ID, "", target)
	if err != nil {
		return nil, fmt.Errorf("loading %s history: %w", profile.ID, err)
	}

	venueResult, err := s.engine.Forecast(target, profile, models.AggregateDaily(rows))
	if err != nil {
		return nil, err
	}
	s.metrics.RecordForecast(venueResult.Scheme, venueResult.MatchCount)

	byChannel := splitByChannel(rows)
	out := &models.VenueForecast{
		Forecast: venueResult,
		Channels: make(map[string]models.ForecastResult, len(profile.Channels)),
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxChannelWorkers)
	for _, ch := range profile.Channels {
		channelID := ch.ID
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := s.runChannel(gctx, target, profile, channelID, byChannel[channelID])
			if err != nil {
				return fmt.Errorf("channel %s: %w", channelID, err)
			}
			mu.Lock()
			out.Channels[channelID] = *res
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	elapsed := timer.ObserveDuration()
	s.logger.Info(ctx, "[FORECAST_COMPLETE] Venue forecast computed", logging.Fields{
		"target_date":     target.Format("2006-01-02"),
		"scheme":          venueResult.Scheme,
		"target_period":   venueResult.TargetPeriod,
		"match_count":     venueResult.MatchCount,
		"channels":        len(out.Channels),
		"history_rows":    len(rows),
		"duration_ms":     elapsed.Milliseconds(),
		"predicted_sales": venueResult.PredictedSales,
	})

	s.store(ctx, gen, &out.Forecast)
	for id := range out.Channels {
		res := out.Channels[id]
		s.store(ctx, gen, &res)
	}
	return out, nil
}

// InvalidateVenue drops cached forecasts after the venue's actuals change
func (s *ForecastService) InvalidateVenue(ctx context.Context, venueID string) {
	if s.cache == nil {
		return
	}
	if _, err := s.cache.InvalidateVenue(ctx, venueID); err != nil {
		s.logger.Warn(ctx, "[FORECAST_CACHE_INVALIDATE_FAILED] Stale forecasts may be served until TTL", logging.Fields{
			"venue_id": venueID,
			"error":    err.Error(),
		})
	}
}

func (s *ForecastService) runChannel(ctx context.Context, target time.Time, profile *models.VenueProfile, channelID string, rows []models.DailyRecord) (*models.ForecastResult, error) {
	res, err := s.engine.ForecastChannel(target, profile, channelID, rows)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordForecast(res.Scheme, res.MatchCount)
	s.logger.Debug(ctx, "[FORECAST_CHANNEL] Channel forecast computed", logging.Fields{
		"channel_id":  channelID,
		"method":      res.Method,
		"match_count": res.MatchCount,
	})
	return &res, nil
}

func (s *ForecastService) fromCache(ctx context.Context, venueID, channelID string, target time.Time) (*models.ForecastResult, bool) {
	if s.cache == nil {
		return nil, false
	}
	return s.cache.Get(ctx, venueID, channelID, target, string(s.engine.Scheme()))
}

func (s *ForecastService) venueFromCache(ctx context.Context, profile *models.VenueProfile, target time.Time) (*models.VenueForecast, bool) {
	if s.cache == nil {
		return nil, false
	}
	venueResult, ok := s.fromCache(ctx, profile.ID, "", target)
	if !ok {
		return nil, false
	}
	out := &models.VenueForecast{
		Forecast: *venueResult,
		Channels: make(map[string]models.ForecastResult, len(profile.Channels)),
	}
	for _, ch := range profile.Channels {
		res, ok := s.fromCache(ctx, profile.ID, ch.ID, target)
		if !ok {
			return nil, false
		}
		out.Channels[ch.ID] = *res
	}
	return out, true
}

func (s *ForecastService) generation(ctx context.Context, venueID string) cacheGeneration {
	if s.cache == nil {
		return cacheGeneration{}
	}
	value, err := s.cache.Generation(ctx, venueID)
	if err != nil {
		s.logger.Warn(ctx, "[FORECAST_CACHE_ERROR] Generation unavailable, result will not be cached", logging.Fields{
			"venue_id": venueID,
			"error":    err.Error(),
		})
		return cacheGeneration{}
	}
	return cacheGeneration{value: value, valid: true}
}

func (s *ForecastService) store(ctx context.Context, gen cacheGeneration, res *models.ForecastResult) {
	if s.cache == nil || !gen.valid {
		return
	}
	stored, err := s.cache.Set(ctx, res, gen.value)
	if err != nil {
		s.logger.Warn(ctx, "[FORECAST_CACHE_SET_FAILED] Forecast not cached", logging.Fields{
			"channel_id": res.ChannelID,
			"error":      err.Error(),
		})
		return
	}
	if !stored {
		s.logger.Debug(ctx, "[FORECAST_CACHE_SKIPPED] Actuals changed during computation", logging.Fields{
			"channel_id": res.ChannelID,
			"generation": gen.value,
		})
	}
}

// splitByChannel groups channel rows by channel ID, dropping venue-total rows
func splitByChannel(rows []models.DailyRecord) map[string][]models.DailyRecord {
	out := make(map[string][]models.DailyRecord)
	for _, r := range rows {
		if r.ChannelID == "" {
			continue
		}
		out[r.ChannelID] = append(out[r.ChannelID], r)
	}
	return out
}
