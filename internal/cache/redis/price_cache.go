package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/DanielNuud/reactive-my-stock-app/internal/domain"
)

// PriceCache implements domain.LatestPriceCache using Redis hashes.
// Each ticker's latest tick is stored as a hash at key "tick:{TICKER}" with
// fields "price" and "ts" (Unix millisecond timestamp), expiring after TTL so
// stale symbols age out on their own.
type PriceCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPriceCache creates a PriceCache backed by the given Client. A zero ttl
// stores entries without expiry.
func NewPriceCache(c *Client, ttl time.Duration) *PriceCache {
	return &PriceCache{rdb: c.Underlying(), ttl: ttl}
}

func tickKey(ticker string) string {
	return "tick:" + ticker
}

// SetLatest stores the most recent tick for a ticker.
func (pc *PriceCache) SetLatest(ctx context.Context, tick domain.PriceTick) error {
	key := tickKey(tick.Ticker)
	fields := map[string]interface{}{
		"price": strconv.FormatFloat(tick.Price, 'f', -1, 64),
		"ts":    strconv.FormatInt(tick.Timestamp, 10),
	}
	pipe := pc.rdb.Pipeline()
	pipe.HSet(ctx, key, fields)
	if pc.ttl > 0 {
		pipe.Expire(ctx, key, pc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set latest %s: %w", tick.Ticker, err)
	}
	return nil
}

// GetLatest retrieves the most recent tick for a ticker.
// It returns domain.ErrNotFound when the key does not exist.
func (pc *PriceCache) GetLatest(ctx context.Context, ticker string) (domain.PriceTick, error) {
	key := tickKey(ticker)
	vals, err := pc.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return domain.PriceTick{}, fmt.Errorf("redis: get latest %s: %w", ticker, err)
	}
	if len(vals) == 0 {
		return domain.PriceTick{}, domain.ErrNotFound
	}

	priceStr, ok := vals["price"]
	if !ok {
		return domain.PriceTick{}, domain.ErrNotFound
	}
	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return domain.PriceTick{}, fmt.Errorf("redis: parse price %s: %w", ticker, err)
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return domain.PriceTick{}, domain.ErrNotFound
	}
	ts, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return domain.PriceTick{}, fmt.Errorf("redis: parse ts %s: %w", ticker, err)
	}

	return domain.PriceTick{Ticker: ticker, Price: price, Timestamp: ts}, nil
}

// Compile-time interface check.
var _ domain.LatestPriceCache = (*PriceCache)(nil)
