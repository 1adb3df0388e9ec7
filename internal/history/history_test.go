package history

import (
	"testing"

	"github.com/DanielNuud/reactive-my-stock-app/internal/domain"
)

func tick(ticker string, i int) domain.PriceTick {
	return domain.PriceTick{Ticker: ticker, Price: float64(i), Timestamp: int64(i)}
}

func TestStore_Bound(t *testing.T) {
	const k = 10
	s := NewStore(k)

	for i := 1; i <= k+5; i++ {
		s.Record(tick("AAPL", i))
	}

	recent := s.Recent("AAPL")
	if len(recent) != k {
		t.Fatalf("len(Recent) = %d, want %d", len(recent), k)
	}
	// Exactly the most recent k remain, oldest first.
	for i, tk := range recent {
		if want := int64(6 + i); tk.Timestamp != want {
			t.Errorf("recent[%d].Timestamp = %d, want %d", i, tk.Timestamp, want)
		}
	}
}

func TestStore_Latest(t *testing.T) {
	s := NewStore(3)

	if _, ok := s.Latest("AAPL"); ok {
		t.Fatal("Latest on an unknown ticker should report ok=false")
	}

	s.Record(tick("AAPL", 1))
	s.Record(tick("AAPL", 2))

	got, ok := s.Latest("aapl")
	if !ok || got.Timestamp != 2 {
		t.Errorf("Latest = (%+v, %v), want timestamp 2", got, ok)
	}

	// After wrapping, Latest still tracks the newest entry.
	s.Record(tick("AAPL", 3))
	s.Record(tick("AAPL", 4))
	got, _ = s.Latest("AAPL")
	if got.Timestamp != 4 {
		t.Errorf("Latest.Timestamp = %d, want 4", got.Timestamp)
	}
}

func TestStore_PerTickerIsolation(t *testing.T) {
	s := NewStore(5)

	s.Record(tick("AAPL", 1))
	s.Record(tick("TSLA", 2))

	if got := s.Recent("AAPL"); len(got) != 1 || got[0].Timestamp != 1 {
		t.Errorf("Recent(AAPL) = %v", got)
	}
	if got := s.Recent("TSLA"); len(got) != 1 || got[0].Timestamp != 2 {
		t.Errorf("Recent(TSLA) = %v", got)
	}
	if got := s.Recent("GOOG"); got != nil {
		t.Errorf("Recent(GOOG) = %v, want nil", got)
	}
}
