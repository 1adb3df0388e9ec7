// Package pipeline routes every decoded tick through the in-process consumers
// in a fixed order.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/DanielNuud/reactive-my-stock-app/internal/alert"
	"github.com/DanielNuud/reactive-my-stock-app/internal/domain"
	"github.com/DanielNuud/reactive-my-stock-app/internal/history"
	"github.com/DanielNuud/reactive-my-stock-app/internal/hub"
)

const (
	// cacheQueueSize bounds in-flight cache writes; overflow drops the write.
	// The next tick for the ticker carries a fresher price anyway.
	cacheQueueSize = 1024

	// cacheWriteTimeout bounds each cache update.
	cacheWriteTimeout = 5 * time.Second
)

// Pipeline is the single tick handler wired into the tick source. History is
// recorded before the hub emit, so a viewer that reads history right after
// receiving a tick always sees that tick included. HandleTick never performs
// network I/O: the optional cache and publisher consume through bounded
// queues on their own goroutines.
type Pipeline struct {
	history *history.Store
	hub     *hub.Hub
	alerts  *alert.Engine
	logger  *slog.Logger

	// Optional consumers; nil disables them.
	publisher domain.PricePublisher
	cache     domain.LatestPriceCache

	cacheQueue chan domain.PriceTick
	done       chan struct{}
}

// Option configures optional tick consumers.
type Option func(*Pipeline)

// WithPublisher forwards every tick to a durable downstream.
func WithPublisher(p domain.PricePublisher) Option {
	return func(pl *Pipeline) { pl.publisher = p }
}

// WithCache mirrors the latest tick per ticker into a shared cache.
func WithCache(c domain.LatestPriceCache) Option {
	return func(pl *Pipeline) { pl.cache = c }
}

// New assembles a pipeline over the mandatory consumers. When a cache is
// configured its delivery loop starts immediately; Close stops it.
func New(hist *history.Store, h *hub.Hub, alerts *alert.Engine, logger *slog.Logger, opts ...Option) *Pipeline {
	pl := &Pipeline{
		history: hist,
		hub:     h,
		alerts:  alerts,
		logger:  logger.With(slog.String("component", "pipeline")),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(pl)
	}
	if pl.cache != nil {
		pl.cacheQueue = make(chan domain.PriceTick, cacheQueueSize)
		go pl.cacheLoop()
	}
	return pl
}

// HandleTick dispatches one tick to every consumer. Safe for concurrent use;
// never blocks on a sink.
func (p *Pipeline) HandleTick(tick domain.PriceTick) {
	p.history.Record(tick)
	p.hub.Emit(tick)
	p.alerts.OnTick(context.Background(), tick)

	if p.publisher != nil {
		p.publisher.Publish(tick)
	}
	if p.cache != nil {
		select {
		case p.cacheQueue <- tick:
		default:
			p.logger.Warn("cache queue overflow, dropping tick",
				slog.String("ticker", tick.Ticker),
			)
		}
	}
}

// Close stops the cache delivery loop. Queued writes are abandoned; the cache
// is best-effort by contract.
func (p *Pipeline) Close() {
	close(p.done)
}

// cacheLoop drains queued ticks into the shared cache. A hung or failing
// cache only costs dropped writes, never tick-path latency.
func (p *Pipeline) cacheLoop() {
	for {
		select {
		case <-p.done:
			return
		case tick := <-p.cacheQueue:
			ctx, cancel := context.WithTimeout(context.Background(), cacheWriteTimeout)
			err := p.cache.SetLatest(ctx, tick)
			cancel()
			if err != nil {
				p.logger.Warn("latest price cache update failed",
					slog.String("ticker", tick.Ticker),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
