package cache

import (
	"context"
	"fmt"
	"time"

	"demandcast/decision"
	"demandcast/ensemble"
	"demandcast/spike"
)

// Pub/sub channels for engine events.
const (
	ChannelAnomalies = "demandcast:anomalies"
	ChannelSpikes    = "demandcast:spikes"
)

// ForecastCache provides caching for computed forecast pipeline outputs.
// Forecasts are stateless given current inputs, so the cache is purely a
// read amortizer: a miss recomputes, a hit skips the four-model run.
type ForecastCache struct {
	redis *RedisClient
}

// NewForecastCache creates a new forecast cache instance
func NewForecastCache(redis *RedisClient) *ForecastCache {
	return &ForecastCache{
		redis: redis,
	}
}

// GetForecast retrieves a cached ensemble forecast series for a SKU.
// Returns the cached series and true if found, nil and false otherwise.
func (c *ForecastCache) GetForecast(ctx context.Context, sku string, horizonDays int) ([]ensemble.Forecast, bool) {
	if c.redis == nil {
		return nil, false
	}

	cacheKey := fmt.Sprintf("forecast:series:%s:%d", sku, horizonDays)
	var series []ensemble.Forecast

	if err := c.redis.Get(ctx, cacheKey, &series); err != nil {
		return nil, false
	}

	return series, true
}

// SetForecast caches an ensemble forecast series for a SKU
func (c *ForecastCache) SetForecast(ctx context.Context, sku string, horizonDays int, series []ensemble.Forecast, ttl time.Duration) error {
	if c.redis == nil {
		return fmt.Errorf("redis client not available")
	}

	cacheKey := fmt.Sprintf("forecast:series:%s:%d", sku, horizonDays)
	return c.redis.Set(ctx, cacheKey, series, ttl)
}

// GetRecommendation retrieves a cached reorder recommendation for a SKU
func (c *ForecastCache) GetRecommendation(ctx context.Context, sku string) (*decision.Recommendation, bool) {
	if c.redis == nil {
		return nil, false
	}

	cacheKey := fmt.Sprintf("forecast:recommendation:%s", sku)
	var rec decision.Recommendation

	if err := c.redis.Get(ctx, cacheKey, &rec); err != nil {
		return nil, false
	}

	return &rec, true
}

// SetRecommendation caches a reorder recommendation for a SKU
func (c *ForecastCache) SetRecommendation(ctx context.Context, sku string, rec *decision.Recommendation, ttl time.Duration) error {
	if c.redis == nil {
		return fmt.Errorf("redis client not available")
	}

	cacheKey := fmt.Sprintf("forecast:recommendation:%s", sku)
	return c.redis.Set(ctx, cacheKey, rec, ttl)
}

// GetSpike retrieves a cached spike read for a SKU
func (c *ForecastCache) GetSpike(ctx context.Context, sku string) (*spike.Detection, bool) {
	if c.redis == nil {
		return nil, false
	}

	cacheKey := fmt.Sprintf("forecast:spike:%s", sku)
	var det spike.Detection

	if err := c.redis.Get(ctx, cacheKey, &det); err != nil {
		return nil, false
	}

	return &det, true
}

// SetSpike caches a spike read for a SKU
func (c *ForecastCache) SetSpike(ctx context.Context, sku string, det *spike.Detection, ttl time.Duration) error {
	if c.redis == nil {
		return fmt.Errorf("redis client not available")
	}

	cacheKey := fmt.Sprintf("forecast:spike:%s", sku)
	return c.redis.Set(ctx, cacheKey, det, ttl)
}

// Invalidate drops every cached output for a SKU, called after new sales
// land or weights change.
func (c *ForecastCache) Invalidate(ctx context.Context, sku string, horizons ...int) {
	if c.redis == nil {
		return
	}

	for _, h := range horizons {
		_ = c.redis.Delete(ctx, fmt.Sprintf("forecast:series:%s:%d", sku, h))
	}
	_ = c.redis.Delete(ctx, fmt.Sprintf("forecast:recommendation:%s", sku))
	_ = c.redis.Delete(ctx, fmt.Sprintf("forecast:spike:%s", sku))
}

// PublishAnomaly pushes a detected anomaly onto the alert channel
func (c *ForecastCache) PublishAnomaly(ctx context.Context, event interface{}) error {
	if c.redis == nil {
		return fmt.Errorf("redis client not available")
	}
	return c.redis.Publish(ctx, ChannelAnomalies, event)
}

// PublishSpike pushes a spike detection onto the alert channel
func (c *ForecastCache) PublishSpike(ctx context.Context, event interface{}) error {
	if c.redis == nil {
		return fmt.Errorf("redis client not available")
	}
	return c.redis.Publish(ctx, ChannelSpikes, event)
}
