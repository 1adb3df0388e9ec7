package upstream

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/DanielNuud/reactive-my-stock-app/internal/domain"
	"github.com/DanielNuud/reactive-my-stock-app/internal/subs"
)

// MockSource generates plausible random-walk ticks for every ticker with
// active interest. It implements the same TickSource contract as the live
// Link so the rest of the pipeline is unaware which one is wired in.
type MockSource struct {
	period time.Duration
	handle domain.TickHandler
	logger *slog.Logger

	mu     sync.Mutex
	active map[string]struct{}
	last   map[string]float64
	rnd    *rand.Rand
}

// NewMockSource creates a generator emitting one tick per active ticker every
// period.
func NewMockSource(period time.Duration, handle domain.TickHandler, logger *slog.Logger) *MockSource {
	return &MockSource{
		period: period,
		handle: handle,
		logger: logger.With(slog.String("component", "mock_source")),
		active: make(map[string]struct{}),
		last:   make(map[string]float64),
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SubscribeTo starts generating ticks for the ticker.
func (m *MockSource) SubscribeTo(rawTicker string) {
	ticker := subs.NormalizeTicker(rawTicker)
	if ticker == "" {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.active[ticker]; !ok {
		m.active[ticker] = struct{}{}
		m.logger.Info("mock subscribe", slog.String("ticker", ticker))
	}
}

// Unsubscribe stops generating ticks for the ticker.
func (m *MockSource) Unsubscribe(rawTicker string) {
	ticker := subs.NormalizeTicker(rawTicker)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.active[ticker]; ok {
		delete(m.active, ticker)
		m.logger.Info("mock unsubscribe", slog.String("ticker", ticker))
	}
}

// Run emits ticks on the configured interval until ctx is cancelled.
func (m *MockSource) Run(ctx context.Context) error {
	m.logger.Info("mock mode: real provider connection is disabled",
		slog.Duration("period", m.period),
	)

	ticker := time.NewTicker(m.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, tick := range m.nextBatch() {
				m.handle(tick)
			}
		}
	}
}

// nextBatch advances every active ticker's random walk by one step.
func (m *MockSource) nextBatch() []domain.PriceTick {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.active) == 0 {
		return nil
	}

	now := time.Now().UnixMilli()
	batch := make([]domain.PriceTick, 0, len(m.active))
	for t := range m.active {
		prev, ok := m.last[t]
		if !ok {
			prev = 120 + m.rnd.Float64()*80
		}
		next := prev + (m.rnd.Float64()-0.5)*1.8
		if next < 1.0 {
			next = 1.0
		}
		m.last[t] = next

		batch = append(batch, domain.PriceTick{
			Ticker:    t,
			Price:     next,
			Timestamp: now,
		})
	}
	return batch
}

// Compile-time interface check.
var _ domain.TickSource = (*MockSource)(nil)
