package alert

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/DanielNuud/reactive-my-stock-app/internal/domain"
)

type staticLookup map[string][]string

func (l staticLookup) UsersInterestedIn(ticker string) []string { return l[ticker] }

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

func (s *captureSink) all() []domain.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Notification(nil), s.sent...)
}

func newTestEngine(lookup InterestLookup, sink domain.NotificationSink) *Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEngine(0.10, lookup, sink, nil, logger)
}

func tick(ticker string, price float64) domain.PriceTick {
	return domain.PriceTick{Ticker: ticker, Price: price, Timestamp: 1}
}

func TestEngine_NoAlertOnFirstTick(t *testing.T) {
	sink := &captureSink{}
	e := newTestEngine(staticLookup{"AAPL": {"u1"}}, sink)

	// Any price, even an extreme one, only seeds the anchor.
	e.OnTick(context.Background(), tick("AAPL", 99999))

	if got := sink.all(); len(got) != 0 {
		t.Fatalf("first tick fired %d notifications, want 0", len(got))
	}
}

func TestEngine_ThresholdCrossing(t *testing.T) {
	sink := &captureSink{}
	e := newTestEngine(staticLookup{"AAPL": {"u1"}}, sink)
	ctx := context.Background()

	e.OnTick(ctx, tick("AAPL", 100)) // anchor = 100

	e.OnTick(ctx, tick("AAPL", 109.99)) // inside threshold
	if got := sink.all(); len(got) != 0 {
		t.Fatalf("109.99 fired %d notifications, want 0", len(got))
	}

	e.OnTick(ctx, tick("AAPL", 110.01)) // crosses +10%
	got := sink.all()
	if len(got) != 1 {
		t.Fatalf("110.01 fired %d notifications, want 1", len(got))
	}
	n := got[0]
	if n.Title != "Price move UP" {
		t.Errorf("title = %q", n.Title)
	}
	if n.Code != "MOVE10:AAPL:UP" {
		t.Errorf("dedup code = %q, want MOVE10:AAPL:UP", n.Code)
	}
	if n.Severity != domain.SeverityWarn {
		t.Errorf("severity = %q, want WARN", n.Severity)
	}

	// Anchor reset to 110.01: a nearby follow-up stays quiet.
	e.OnTick(ctx, tick("AAPL", 110.5))
	if got := sink.all(); len(got) != 1 {
		t.Fatalf("tick within new anchor fired %d extra notifications", len(got)-1)
	}
}

func TestEngine_DownMoveAndPercentRounding(t *testing.T) {
	sink := &captureSink{}
	e := newTestEngine(staticLookup{"TSLA": {"u1"}}, sink)
	ctx := context.Background()

	e.OnTick(ctx, tick("TSLA", 200))
	e.OnTick(ctx, tick("TSLA", 175)) // -12.5%

	got := sink.all()
	if len(got) != 1 {
		t.Fatalf("fired %d notifications, want 1", len(got))
	}
	if got[0].Code != "MOVE10:TSLA:DOWN" {
		t.Errorf("dedup code = %q", got[0].Code)
	}
	if got[0].Body != "TSLA moved 12.50% from 200.00 to 175.00" {
		t.Errorf("body = %q", got[0].Body)
	}
}

func TestEngine_OppositeCrossingsBackToBack(t *testing.T) {
	sink := &captureSink{}
	e := newTestEngine(staticLookup{"AAPL": {"u1"}}, sink)
	ctx := context.Background()

	e.OnTick(ctx, tick("AAPL", 100))
	e.OnTick(ctx, tick("AAPL", 115)) // UP, anchor -> 115
	e.OnTick(ctx, tick("AAPL", 100)) // DOWN from 115, fires again

	got := sink.all()
	if len(got) != 2 {
		t.Fatalf("fired %d notifications, want 2", len(got))
	}
	if got[0].Code != "MOVE10:AAPL:UP" || got[1].Code != "MOVE10:AAPL:DOWN" {
		t.Errorf("codes = %q, %q", got[0].Code, got[1].Code)
	}
}

func TestEngine_ZeroAnchorTreatedAsAbsent(t *testing.T) {
	sink := &captureSink{}
	e := newTestEngine(staticLookup{"PENNY": {"u1"}}, sink)
	ctx := context.Background()

	e.OnTick(ctx, tick("PENNY", 0))  // seeds a zero anchor
	e.OnTick(ctx, tick("PENNY", 50)) // must not divide by zero or alert

	if got := sink.all(); len(got) != 0 {
		t.Fatalf("fired %d notifications from a zero baseline, want 0", len(got))
	}

	// The second tick became the real anchor.
	e.OnTick(ctx, tick("PENNY", 60)) // +20% from 50
	if got := sink.all(); len(got) != 1 {
		t.Fatalf("fired %d notifications, want 1", len(got))
	}
}

func TestEngine_FanOutToAllInterestedUsers(t *testing.T) {
	sink := &captureSink{}
	e := newTestEngine(staticLookup{"AAPL": {"u1", "u2", "u3"}}, sink)
	ctx := context.Background()

	e.OnTick(ctx, tick("AAPL", 100))
	e.OnTick(ctx, tick("AAPL", 120))

	got := sink.all()
	if len(got) != 3 {
		t.Fatalf("fired %d notifications, want 3", len(got))
	}
	seen := map[string]bool{}
	for _, n := range got {
		seen[n.UserKey] = true
	}
	for _, u := range []string{"u1", "u2", "u3"} {
		if !seen[u] {
			t.Errorf("user %s did not receive the alert", u)
		}
	}
}

type captureStore struct {
	inserted chan domain.MoveAlert
}

func (s *captureStore) Insert(_ context.Context, a domain.MoveAlert) error {
	s.inserted <- a
	return nil
}

type blockingStore struct {
	release chan struct{}
}

func (s *blockingStore) Insert(ctx context.Context, _ domain.MoveAlert) error {
	select {
	case <-s.release:
	case <-ctx.Done():
	}
	return nil
}

func TestEngine_AuditInsertHappensOffTickPath(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sink := &captureSink{}
	store := &captureStore{inserted: make(chan domain.MoveAlert, 1)}
	e := NewEngine(0.10, staticLookup{"AAPL": {"u1"}}, sink, store, logger)
	defer e.Close()
	ctx := context.Background()

	e.OnTick(ctx, tick("AAPL", 100))
	e.OnTick(ctx, tick("AAPL", 120))

	select {
	case a := <-store.inserted:
		if a.Ticker != "AAPL" || a.Direction != "UP" {
			t.Fatalf("inserted alert = %+v, want AAPL UP", a)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("audit insert never happened")
	}
}

func TestEngine_OnTickDoesNotBlockOnHungStore(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sink := &captureSink{}
	store := &blockingStore{release: make(chan struct{})}
	e := NewEngine(0.10, staticLookup{"AAPL": {"u1"}}, sink, store, logger)
	defer e.Close()
	defer close(store.release)

	done := make(chan struct{})
	go func() {
		ctx := context.Background()
		price := 100.0
		e.OnTick(ctx, tick("AAPL", price))
		// Alternate crossings so every tick after the first fires an alert,
		// overfilling the audit queue past any insert in flight.
		for i := 0; i < auditQueueSize+10; i++ {
			if i%2 == 0 {
				price *= 1.2
			} else {
				price /= 1.2
			}
			e.OnTick(ctx, tick("AAPL", price))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("OnTick blocked on a hung audit store")
	}
}

func TestEngine_NoInterestedUsersStillResetsAnchor(t *testing.T) {
	sink := &captureSink{}
	e := newTestEngine(staticLookup{}, sink)
	ctx := context.Background()

	e.OnTick(ctx, tick("AAPL", 100))
	e.OnTick(ctx, tick("AAPL", 120)) // fires internally, nobody to notify

	if got := sink.all(); len(got) != 0 {
		t.Fatalf("fired %d notifications, want 0", len(got))
	}

	// Anchor moved to 120: 125 is within 10%.
	e.OnTick(ctx, tick("AAPL", 125))
	if got := sink.all(); len(got) != 0 {
		t.Fatalf("anchor did not reset on the unobserved crossing")
	}
}
