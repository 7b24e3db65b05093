// Package cache stores computed forecasts in Redis so repeated dashboard
// requests for the same venue, channel and day skip the history scan.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"momentum-peaks/internal/models"
	"momentum-peaks/pkg/logging"
	"momentum-peaks/pkg/metrics"
)

// KeyPrefix versions the cached payload layout
const KeyPrefix = "mp_forecast_v1:"

// GenerationPrefix keys the per-venue generation counter bumped on invalidation
const GenerationPrefix = "mp_forecast_gen_v1:"

// venueScope stands in for the channel segment of venue-level entries
const venueScope = "_venue"

const scanBatch = 200

// ForecastCache is a Redis-backed forecast cache
type ForecastCache struct {
	redis   *redis.Client
	ttl     time.Duration
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewForecastCache creates a cache over client. metricsCollector may be nil.
func NewForecastCache(client *redis.Client, ttl time.Duration, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *ForecastCache {
	return &ForecastCache{
		redis:   client,
		ttl:     ttl,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// Key builds the cache key for a forecast
func Key(venueID, channelID string, date time.Time, scheme string) string {
	if channelID == "" {
		channelID = venueScope
	}
	return fmt.Sprintf("%s%s:%s:%s:%s", KeyPrefix, strings.ToUpper(venueID), channelID, date.Format("2006-01-02"), scheme)
}

func generationKey(venueID string) string {
	return GenerationPrefix + strings.ToUpper(venueID)
}

// Generation returns the venue's current cache generation. A venue that was
// never invalidated is at generation 0.
func (c *ForecastCache) Generation(ctx context.Context, venueID string) (int64, error) {
	gen, err := c.redis.Get(ctx, generationKey(venueID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading cache generation of %s: %w", venueID, err)
	}
	return gen, nil
}

// Get returns the cached forecast, or false on a miss. Redis and decode
// failures are logged and reported as misses.
func (c *ForecastCache) Get(ctx context.Context, venueID, channelID string, date time.Time, scheme string) (*models.ForecastResult, bool) {
	key := Key(venueID, channelID, date, scheme)

	data, err := c.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.record("miss")
		return nil, false
	}
	if err != nil {
		c.record("error")
		c.logger.Warn(ctx, "[FORECAST_CACHE_ERROR] Redis get failed", logging.Fields{"key": key, "error": err.Error()})
		return nil, false
	}

	var result models.ForecastResult
	if err := json.Unmarshal(data, &result); err != nil {
		c.record("error")
		c.logger.Warn(ctx, "[FORECAST_CACHE_ERROR] Dropping undecodable entry", logging.Fields{"key": key, "error": err.Error()})
		c.redis.Del(ctx, key)
		return nil, false
	}

	c.record("hit")
	return &result, true
}

// Set stores result under the key derived from its own venue, channel, date
// and scheme, but only while the venue is still at generation. It reports
// false when an invalidation happened since the caller read generation.
func (c *ForecastCache) Set(ctx context.Context, result *models.ForecastResult, generation int64) (bool, error) {
	key := Key(result.VenueID, result.ChannelID, result.TargetDate, result.Scheme)
	genKey := generationKey(result.VenueID)

	data, err := json.Marshal(result)
	if err != nil {
		return false, fmt.Errorf("encoding forecast for cache: %w", err)
	}

	stored := false
	err = c.redis.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != generation {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, c.ttl)
			return nil
		})
		if err == nil {
			stored = true
		}
		return err
	}, genKey)

	// the generation moved between WATCH and EXEC
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("caching forecast %s: %w", key, err)
	}

	if !stored {
		c.logger.Debug(ctx, "[FORECAST_CACHE_STALE] Forecast computed before invalidation not cached", logging.Fields{
			"key":        key,
			"generation": generation,
		})
		return false, nil
	}
	c.logger.Debug(ctx, "[FORECAST_CACHED] Forecast cached", logging.Fields{"key": key, "ttl": c.ttl.String()})
	return true, nil
}

// InvalidateVenue bumps the venue's generation, so forecasts still being
// computed from older history are not stored, then deletes every cached
// forecast of venueID. It returns how many entries went.
func (c *ForecastCache) InvalidateVenue(ctx context.Context, venueID string) (int, error) {
	if err := c.redis.Incr(ctx, generationKey(venueID)).Err(); err != nil {
		return 0, fmt.Errorf("bumping cache generation of %s: %w", venueID, err)
	}

	pattern := KeyPrefix + strings.ToUpper(venueID) + ":*"

	deleted := 0
	var cursor uint64
	for {
		keys, next, err := c.redis.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return deleted, fmt.Errorf("scanning %s: %w", pattern, err)
		}
		if len(keys) > 0 {
			n, err := c.redis.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, fmt.Errorf("deleting cached forecasts for %s: %w", venueID, err)
			}
			deleted += int(n)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	c.logger.Info(ctx, "[FORECAST_CACHE_INVALIDATED] Venue forecasts dropped", logging.Fields{
		"venue_id": venueID,
		"keys":     deleted,
	})
	return deleted, nil
}

// Ping checks the Redis connection
func (c *ForecastCache) Ping(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}

func (c *ForecastCache) record(result string) {
	if c.metrics != nil {
		c.metrics.RecordCacheResult(result)
	}
}
