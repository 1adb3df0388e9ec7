package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/DanielNuud/reactive-my-stock-app/internal/domain"
)

func testClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := New(context.Background(), ClientConfig{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestPriceCacheRoundTrip(t *testing.T) {
	c, _ := testClient(t)
	pc := NewPriceCache(c, time.Minute)
	ctx := context.Background()

	in := domain.PriceTick{Ticker: "AAPL", Price: 187.45, Timestamp: 1700000000000}
	if err := pc.SetLatest(ctx, in); err != nil {
		t.Fatalf("SetLatest: %v", err)
	}

	out, err := pc.GetLatest(ctx, "AAPL")
	if err != nil {
		t.Fatalf("GetLatest: %v", err)
	}
	if out != in {
		t.Fatalf("GetLatest = %+v, want %+v", out, in)
	}
}

func TestPriceCacheOverwriteKeepsNewest(t *testing.T) {
	c, _ := testClient(t)
	pc := NewPriceCache(c, time.Minute)
	ctx := context.Background()

	_ = pc.SetLatest(ctx, domain.PriceTick{Ticker: "TSLA", Price: 200, Timestamp: 1})
	_ = pc.SetLatest(ctx, domain.PriceTick{Ticker: "TSLA", Price: 201.5, Timestamp: 2})

	out, err := pc.GetLatest(ctx, "TSLA")
	if err != nil {
		t.Fatalf("GetLatest: %v", err)
	}
	if out.Price != 201.5 || out.Timestamp != 2 {
		t.Fatalf("GetLatest = %+v, want newest tick", out)
	}
}

func TestPriceCacheMissingTicker(t *testing.T) {
	c, _ := testClient(t)
	pc := NewPriceCache(c, time.Minute)

	_, err := pc.GetLatest(context.Background(), "MSFT")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestPriceCacheEntriesExpire(t *testing.T) {
	c, mr := testClient(t)
	pc := NewPriceCache(c, time.Minute)
	ctx := context.Background()

	_ = pc.SetLatest(ctx, domain.PriceTick{Ticker: "AAPL", Price: 100, Timestamp: 1})
	mr.FastForward(2 * time.Minute)

	_, err := pc.GetLatest(ctx, "AAPL")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound after TTL", err)
	}
}
