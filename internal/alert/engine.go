// Package alert implements the anchor-based price movement detector. Each
// ticker carries a single anchor price; a move beyond the configured
// threshold fires one deduplicated notification per interested user and
// resets the anchor to the price that fired it.
package alert

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DanielNuud/reactive-my-stock-app/internal/domain"
)

// DefaultThreshold is the fractional move that fires an alert.
const DefaultThreshold = 0.10

// dedupPrefix namespaces the dedup key consumed by the notification service.
const dedupPrefix = "MOVE10"

const (
	// auditQueueSize bounds in-flight audit inserts; overflow drops the record.
	auditQueueSize = 256

	// auditWriteTimeout bounds each audit insert.
	auditWriteTimeout = 5 * time.Second
)

// InterestLookup resolves which users should receive an alert for a ticker.
type InterestLookup interface {
	UsersInterestedIn(ticker string) []string
}

// Engine watches the tick stream for threshold crossings. Anchors drift
// deliberately: deviation is measured from the last reported level, not a
// moving average.
type Engine struct {
	threshold float64
	lookup    InterestLookup
	sink      domain.NotificationSink
	store     domain.AlertStore // optional audit trail, may be nil
	logger    *slog.Logger

	mu      sync.Mutex
	anchors map[string]float64

	auditQueue chan domain.MoveAlert
	done       chan struct{}
}

// NewEngine creates an Engine. store may be nil when no audit persistence is
// configured; when it is set the audit delivery loop starts immediately and
// Close stops it.
func NewEngine(threshold float64, lookup InterestLookup, sink domain.NotificationSink, store domain.AlertStore, logger *slog.Logger) *Engine {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	e := &Engine{
		threshold: threshold,
		lookup:    lookup,
		sink:      sink,
		store:     store,
		logger:    logger.With(slog.String("component", "move_alert_engine")),
		anchors:   make(map[string]float64),
		done:      make(chan struct{}),
	}
	if store != nil {
		e.auditQueue = make(chan domain.MoveAlert, auditQueueSize)
		go e.auditLoop()
	}
	return e
}

// Close stops the audit delivery loop. Queued inserts are abandoned; the
// audit trail is best-effort by contract.
func (e *Engine) Close() {
	close(e.done)
}

// auditLoop drains fired alerts into the store. A hung or failing store only
// costs dropped audit rows, never tick-path latency.
func (e *Engine) auditLoop() {
	for {
		select {
		case <-e.done:
			return
		case alert := <-e.auditQueue:
			ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
			err := e.store.Insert(ctx, alert)
			cancel()
			if err != nil {
				e.logger.Warn("alert audit insert failed",
					slog.String("ticker", alert.Ticker),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// OnTick evaluates one tick. The first observation of a ticker only seeds the
// anchor; an anchor of exactly zero is treated as absent since a move from a
// zero baseline is meaningless.
func (e *Engine) OnTick(ctx context.Context, tick domain.PriceTick) {
	fired, alert := e.evaluate(tick)
	if !fired {
		return
	}

	if e.store != nil {
		select {
		case e.auditQueue <- alert:
		default:
			e.logger.Warn("audit queue overflow, dropping alert",
				slog.String("ticker", alert.Ticker),
			)
		}
	}

	users := e.lookup.UsersInterestedIn(alert.Ticker)
	if len(users) == 0 {
		return
	}

	title := "Price move " + alert.Direction
	body := fmt.Sprintf("%s moved %.2f%% from %.2f to %.2f",
		alert.Ticker, alert.Percent, alert.AnchorFrom, alert.AnchorTo)

	for _, user := range users {
		n := domain.Notification{
			UserKey:   user,
			Title:     title,
			Body:      body,
			Severity:  domain.SeverityWarn,
			Code:      alert.DedupKey,
			Timestamp: alert.FiredAt.UnixMilli(),
		}
		if err := e.sink.Send(ctx, n); err != nil {
			e.logger.Warn("alert notify failed",
				slog.String("user", user),
				slog.String("error", err.Error()),
			)
		}
	}

	e.logger.Info("movement alert fired",
		slog.String("ticker", alert.Ticker),
		slog.String("direction", alert.Direction),
		slog.Float64("percent", alert.Percent),
		slog.Int("users", len(users)),
	)
}

// evaluate updates the ticker's anchor state and reports whether the tick
// crossed the threshold.
func (e *Engine) evaluate(tick domain.PriceTick) (bool, domain.MoveAlert) {
	e.mu.Lock()
	defer e.mu.Unlock()

	anchor, ok := e.anchors[tick.Ticker]
	if !ok || anchor == 0 {
		e.anchors[tick.Ticker] = tick.Price
		return false, domain.MoveAlert{}
	}

	change := (tick.Price - anchor) / anchor
	if math.Abs(change) < e.threshold {
		return false, domain.MoveAlert{}
	}

	direction := "UP"
	if change < 0 {
		direction = "DOWN"
	}
	e.anchors[tick.Ticker] = tick.Price

	return true, domain.MoveAlert{
		ID:         uuid.NewString(),
		Ticker:     tick.Ticker,
		Direction:  direction,
		Percent:    round2(math.Abs(change) * 100),
		AnchorFrom: anchor,
		AnchorTo:   tick.Price,
		FiredAt:    time.Now().UTC(),
		DedupKey:   dedupPrefix + ":" + tick.Ticker + ":" + direction,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
