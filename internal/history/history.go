// Package history keeps a bounded in-memory ring of recent ticks per ticker,
// used to splice an up-to-the-second point onto historical chart queries.
package history

import (
	"sync"

	"github.com/DanielNuud/reactive-my-stock-app/internal/domain"
	"github.com/DanielNuud/reactive-my-stock-app/internal/subs"
)

// DefaultCapacity is the per-ticker ring size when the caller passes a
// non-positive value.
const DefaultCapacity = 100

// Store holds one fixed-capacity FIFO ring per ticker. Rings are created on
// first tick and bounded, so memory per ticker never grows past capacity.
type Store struct {
	capacity int

	mu    sync.RWMutex
	rings map[string]*ring
}

// ring is a circular buffer of ticks in arrival order.
type ring struct {
	buf   []domain.PriceTick
	start int
	n     int
}

// NewStore creates a Store with the given per-ticker capacity.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		capacity: capacity,
		rings:    make(map[string]*ring),
	}
}

// Record appends a tick to its ticker's ring, evicting the oldest entry once
// at capacity.
func (s *Store) Record(tick domain.PriceTick) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rings[tick.Ticker]
	if !ok {
		r = &ring{buf: make([]domain.PriceTick, s.capacity)}
		s.rings[tick.Ticker] = r
	}
	r.push(tick)
}

// Latest returns the most recent tick for the ticker.
func (s *Store) Latest(rawTicker string) (domain.PriceTick, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rings[subs.NormalizeTicker(rawTicker)]
	if !ok || r.n == 0 {
		return domain.PriceTick{}, false
	}
	return r.buf[(r.start+r.n-1)%len(r.buf)], true
}

// Recent returns the ticker's buffered ticks, oldest first. The slice is a
// copy; callers may keep it.
func (s *Store) Recent(rawTicker string) []domain.PriceTick {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rings[subs.NormalizeTicker(rawTicker)]
	if !ok {
		return nil
	}
	out := make([]domain.PriceTick, r.n)
	for i := 0; i < r.n; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

func (r *ring) push(tick domain.PriceTick) {
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = tick
		r.n++
		return
	}
	// Full: overwrite the oldest slot and advance.
	r.buf[r.start] = tick
	r.start = (r.start + 1) % len(r.buf)
}
