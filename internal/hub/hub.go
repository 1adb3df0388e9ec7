// Package hub is the per-ticker multicast point between the tick pipeline and
// live viewers. Streams are created lazily on first attach and torn down on
// last detach; a ticker nobody watches costs nothing.
package hub

import (
	"log/slog"
	"sync"

	"github.com/DanielNuud/reactive-my-stock-app/internal/domain"
	"github.com/DanielNuud/reactive-my-stock-app/internal/subs"
)

// DefaultSubscriberBuffer is the per-viewer channel depth when the caller
// passes a non-positive value.
const DefaultSubscriberBuffer = 16

// Hub fans each emitted tick out to every subscription attached to its
// ticker. Emit never blocks: a slow viewer's oldest buffered tick is dropped
// in favour of the new one, so the upstream ingestion path is never
// backpressured.
type Hub struct {
	buffer int
	logger *slog.Logger

	mu      sync.RWMutex
	tickers map[string]map[*Subscription]struct{}
}

// Subscription is one viewer's live stream for a single ticker. Close is
// idempotent and releases the stream's resources synchronously.
type Subscription struct {
	ticker string
	ch     chan domain.PriceTick
	hub    *Hub
	once   sync.Once
}

// New creates a Hub with the given per-subscriber buffer depth.
func New(buffer int, logger *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	return &Hub{
		buffer:  buffer,
		logger:  logger.With(slog.String("component", "hub")),
		tickers: make(map[string]map[*Subscription]struct{}),
	}
}

// Attach creates a live stream for the ticker. The ticker's multicast entry
// is created on first attach.
func (h *Hub) Attach(rawTicker string) *Subscription {
	ticker := subs.NormalizeTicker(rawTicker)

	sub := &Subscription{
		ticker: ticker,
		ch:     make(chan domain.PriceTick, h.buffer),
		hub:    h,
	}

	h.mu.Lock()
	set, ok := h.tickers[ticker]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.tickers[ticker] = set
	}
	set[sub] = struct{}{}
	n := len(set)
	h.mu.Unlock()

	h.logger.Debug("viewer attached",
		slog.String("ticker", ticker),
		slog.Int("viewers", n),
	)
	return sub
}

// Emit delivers a tick to every subscription attached to its ticker. A no-op
// when nobody is attached: this is a live feed, not a durable log.
func (h *Hub) Emit(tick domain.PriceTick) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	set, ok := h.tickers[tick.Ticker]
	if !ok {
		return
	}
	for sub := range set {
		sub.push(tick)
	}
}

// Viewers returns the number of subscriptions attached to the ticker.
func (h *Hub) Viewers(rawTicker string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.tickers[subs.NormalizeTicker(rawTicker)])
}

// detach removes a subscription; the ticker's multicast entry is discarded
// when its last subscription detaches.
func (h *Hub) detach(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.tickers[sub.ticker]
	if !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(h.tickers, sub.ticker)
		h.logger.Debug("last viewer detached, stream discarded",
			slog.String("ticker", sub.ticker),
		)
	}
}

// Ticks returns the subscription's receive channel. It is closed by Close.
func (s *Subscription) Ticks() <-chan domain.PriceTick {
	return s.ch
}

// Ticker returns the ticker this subscription streams.
func (s *Subscription) Ticker() string {
	return s.ticker
}

// Close detaches the subscription from the hub and closes its channel. Safe
// to call multiple times.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.detach(s)
		close(s.ch)
	})
}

// push delivers a tick without ever blocking. When the viewer's buffer is
// full the oldest buffered tick is dropped to make room.
func (s *Subscription) push(tick domain.PriceTick) {
	select {
	case s.ch <- tick:
		return
	default:
	}
	// Buffer full: evict one, then retry once. A concurrent consumer may have
	// drained the channel in between, in which case the second send wins
	// immediately.
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- tick:
	default:
	}
}
