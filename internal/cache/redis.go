// Package cache keeps read-side directory results in Redis. A nil client
// turns every call into a miss so the service runs without Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/punchamoorthee/hostelops/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Summaries are stored under a generation-suffixed key. Invalidation bumps
// the generation, so a summary computed before a write can only land under a
// generation nobody reads any more.
const (
	SummaryKeyPrefix = "hostel:summary:"
	SummaryGenKey    = "hostel:summary:gen"
)

func summaryKey(gen int64) string { return SummaryKeyPrefix + strconv.FormatInt(gen, 10) }

type SummaryCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// Connect dials addr and pings it. On failure it returns a cache with no
// client alongside the error so callers can log and continue.
func Connect(ctx context.Context, addr, password string, ttl time.Duration, logger *slog.Logger) (*SummaryCache, error) {
	if addr == "" {
		return New(nil, ttl, logger), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return New(nil, ttl, logger), err
	}
	return New(client, ttl, logger), nil
}

func New(client *redis.Client, ttl time.Duration, logger *slog.Logger) *SummaryCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &SummaryCache{client: client, ttl: ttl, logger: logger}
}

func (c *SummaryCache) Enabled() bool { return c != nil && c.client != nil }

// GetSummary returns the cached summary for the current generation. The
// generation is returned on a miss too and must be passed back to SetSummary.
// A negative generation means the cache could not be read.
func (c *SummaryCache) GetSummary(ctx context.Context) (domain.Summary, int64, bool) {
	var s domain.Summary
	if !c.Enabled() {
		return s, -1, false
	}
	gen, err := c.client.Get(ctx, SummaryGenKey).Int64()
	if errors.Is(err, redis.Nil) {
		gen = 0
	} else if err != nil {
		return s, -1, false
	}
	data, err := c.client.Get(ctx, summaryKey(gen)).Bytes()
	if err != nil {
		return s, gen, false
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, gen, false
	}
	return s, gen, true
}

func (c *SummaryCache) SetSummary(ctx context.Context, gen int64, s domain.Summary) {
	if !c.Enabled() || gen < 0 {
		return
	}
	data, err := json.Marshal(s)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, summaryKey(gen), data, c.ttl).Err(); err != nil {
		c.logger.Warn("summary cache write failed", "error", err)
	}
}

// InvalidateSummary moves readers to a new generation. Called after every
// committed allocation change; superseded entries expire with their TTL.
func (c *SummaryCache) InvalidateSummary(ctx context.Context) {
	if !c.Enabled() {
		return
	}
	if err := c.client.Incr(ctx, SummaryGenKey).Err(); err != nil {
		c.logger.Warn("summary cache invalidation failed", "error", err)
	}
}

func (c *SummaryCache) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Close()
}
