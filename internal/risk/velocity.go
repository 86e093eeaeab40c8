package risk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// VelocityStats is the trailing-window activity snapshot for one user,
// including the attempt currently being scored.
type VelocityStats struct {
	HourCount  int64
	DayCount   int64
	HourVolume int64
	DayVolume  int64
}

// Counters records transfer attempts and reports trailing-window stats.
type Counters interface {
	Observe(ctx context.Context, userID string, amount int64) (VelocityStats, error)
}

const velocityPrefix = "risk:vel:v1:"

// RedisCounters keeps hourly and daily activity buckets in Redis. The current
// attempt is counted before the stats are read so the decision always sees it.
type RedisCounters struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisCounters builds velocity counters over the shared Redis client.
func NewRedisCounters(client *redis.Client) *RedisCounters {
	return &RedisCounters{client: client, now: time.Now}
}

// MemoryCounters keeps velocity buckets in process memory. Used in
// development mode and tests where no Redis is available.
type MemoryCounters struct {
	mu      sync.Mutex
	buckets map[string]*VelocityStats
	now     func() time.Time
}

// NewMemoryCounters builds in-process velocity counters.
func NewMemoryCounters() *MemoryCounters {
	return &MemoryCounters{buckets: make(map[string]*VelocityStats), now: time.Now}
}

// Observe increments the user's current hour and day buckets.
func (c *MemoryCounters) Observe(_ context.Context, userID string, amount int64) (VelocityStats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now().UTC()
	key := userID + ":" + now.Format("20060102")
	stats, ok := c.buckets[key]
	if !ok {
		stats = &VelocityStats{}
		c.buckets[key] = stats
	}
	// Hour buckets roll within the day bucket.
	hourKey := key + ":" + now.Format("15")
	hour, ok := c.buckets[hourKey]
	if !ok {
		hour = &VelocityStats{}
		c.buckets[hourKey] = hour
	}
	hour.HourCount++
	hour.HourVolume += amount
	stats.DayCount++
	stats.DayVolume += amount

	return VelocityStats{
		HourCount:  hour.HourCount,
		HourVolume: hour.HourVolume,
		DayCount:   stats.DayCount,
		DayVolume:  stats.DayVolume,
	}, nil
}

// Observe increments the user's hour and day buckets and returns the totals.
func (c *RedisCounters) Observe(ctx context.Context, userID string, amount int64) (VelocityStats, error) {
	now := c.now().UTC()
	hourKey := fmt.Sprintf("%s%s:h:%s", velocityPrefix, userID, now.Format("2006010215"))
	dayKey := fmt.Sprintf("%s%s:d:%s", velocityPrefix, userID, now.Format("20060102"))

	pipe := c.client.TxPipeline()
	hourCount := pipe.Incr(ctx, hourKey+":n")
	hourVolume := pipe.IncrBy(ctx, hourKey+":v", amount)
	dayCount := pipe.Incr(ctx, dayKey+":n")
	dayVolume := pipe.IncrBy(ctx, dayKey+":v", amount)
	pipe.Expire(ctx, hourKey+":n", 2*time.Hour)
	pipe.Expire(ctx, hourKey+":v", 2*time.Hour)
	pipe.Expire(ctx, dayKey+":n", 48*time.Hour)
	pipe.Expire(ctx, dayKey+":v", 48*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return VelocityStats{}, fmt.Errorf("velocity counters: %w", err)
	}

	return VelocityStats{
		HourCount:  hourCount.Val(),
		DayCount:   dayCount.Val(),
		HourVolume: hourVolume.Val(),
		DayVolume:  dayVolume.Val(),
	}, nil
}
