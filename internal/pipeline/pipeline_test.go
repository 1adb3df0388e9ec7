package pipeline

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/DanielNuud/reactive-my-stock-app/internal/alert"
	"github.com/DanielNuud/reactive-my-stock-app/internal/domain"
	"github.com/DanielNuud/reactive-my-stock-app/internal/history"
	"github.com/DanielNuud/reactive-my-stock-app/internal/hub"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type staticLookup []string

func (l staticLookup) UsersInterestedIn(string) []string { return l }

type captureSink struct {
	mu   sync.Mutex
	sent []domain.Notification
}

func (s *captureSink) Send(_ context.Context, n domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, n)
	return nil
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type capturePublisher struct {
	mu    sync.Mutex
	ticks []domain.PriceTick
}

func (p *capturePublisher) Publish(tick domain.PriceTick) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ticks = append(p.ticks, tick)
}

type captureCache struct {
	mu     sync.Mutex
	latest map[string]domain.PriceTick
}

func (c *captureCache) SetLatest(_ context.Context, tick domain.PriceTick) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.latest == nil {
		c.latest = make(map[string]domain.PriceTick)
	}
	c.latest[tick.Ticker] = tick
	return nil
}

func (c *captureCache) GetLatest(_ context.Context, ticker string) (domain.PriceTick, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tick, ok := c.latest[ticker]
	if !ok {
		return domain.PriceTick{}, domain.ErrNotFound
	}
	return tick, nil
}

func newTestPipeline(opts ...Option) (*Pipeline, *history.Store, *hub.Hub, *captureSink) {
	logger := discardLogger()
	hist := history.NewStore(history.DefaultCapacity)
	h := hub.New(hub.DefaultSubscriberBuffer, logger)
	sink := &captureSink{}
	engine := alert.NewEngine(alert.DefaultThreshold, staticLookup{"user-1"}, sink, nil, logger)
	return New(hist, h, engine, logger, opts...), hist, h, sink
}

func TestHandleTickFeedsAllConsumers(t *testing.T) {
	pub := &capturePublisher{}
	cache := &captureCache{}
	pl, hist, h, sink := newTestPipeline(WithPublisher(pub), WithCache(cache))
	defer pl.Close()

	sub := h.Attach("AAPL")
	defer sub.Close()

	pl.HandleTick(domain.PriceTick{Ticker: "AAPL", Price: 100, Timestamp: 1})
	pl.HandleTick(domain.PriceTick{Ticker: "AAPL", Price: 112, Timestamp: 2})

	if got := len(hist.Recent("AAPL")); got != 2 {
		t.Fatalf("history entries = %d, want 2", got)
	}
	for i := 0; i < 2; i++ {
		select {
		case <-sub.Ticks():
		default:
			t.Fatalf("hub delivered %d ticks, want 2", i)
		}
	}
	if sink.count() != 1 {
		t.Fatalf("alerts fired = %d, want 1 after a 12%% move", sink.count())
	}

	pub.mu.Lock()
	published := len(pub.ticks)
	pub.mu.Unlock()
	if published != 2 {
		t.Fatalf("published ticks = %d, want 2", published)
	}

	// Cache writes land asynchronously.
	deadline := time.Now().Add(2 * time.Second)
	for {
		latest, err := cache.GetLatest(context.Background(), "AAPL")
		if err == nil && latest.Price == 112 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("cached tick = %+v err=%v, want price 112", latest, err)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHandleTickWithoutOptionalConsumers(t *testing.T) {
	pl, hist, _, _ := newTestPipeline()

	pl.HandleTick(domain.PriceTick{Ticker: "TSLA", Price: 250, Timestamp: 1})

	got, ok := hist.Latest("TSLA")
	if !ok || got.Price != 250 {
		t.Fatalf("Latest = %+v ok=%v, want recorded tick", got, ok)
	}
}

type blockingCache struct {
	release chan struct{}
}

func (c *blockingCache) SetLatest(ctx context.Context, _ domain.PriceTick) error {
	select {
	case <-c.release:
	case <-ctx.Done():
	}
	return nil
}

func (c *blockingCache) GetLatest(context.Context, string) (domain.PriceTick, error) {
	return domain.PriceTick{}, domain.ErrNotFound
}

func TestHandleTickDoesNotBlockOnSlowCache(t *testing.T) {
	cache := &blockingCache{release: make(chan struct{})}
	pl, _, _, _ := newTestPipeline(WithCache(cache))
	defer pl.Close()
	defer close(cache.release)

	done := make(chan struct{})
	go func() {
		// Enough ticks to overfill the queue past any write in flight.
		for i := 0; i < cacheQueueSize+10; i++ {
			pl.HandleTick(domain.PriceTick{Ticker: "AAPL", Price: float64(i + 1), Timestamp: int64(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("HandleTick blocked on a hung cache")
	}
}

func TestHandleTickHistoryBeforeHub(t *testing.T) {
	pl, hist, h, _ := newTestPipeline()

	sub := h.Attach("NVDA")
	defer sub.Close()

	pl.HandleTick(domain.PriceTick{Ticker: "NVDA", Price: 900, Timestamp: 7})

	select {
	case tick := <-sub.Ticks():
		latest, ok := hist.Latest("NVDA")
		if !ok || latest.Timestamp < tick.Timestamp {
			t.Fatalf("history behind hub: latest=%+v ok=%v tick=%+v", latest, ok, tick)
		}
	default:
		t.Fatal("hub did not deliver the tick")
	}
}
