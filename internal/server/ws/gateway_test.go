package ws

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/DanielNuud/reactive-my-stock-app/internal/domain"
	"github.com/DanielNuud/reactive-my-stock-app/internal/history"
	"github.com/DanielNuud/reactive-my-stock-app/internal/hub"
	"github.com/DanielNuud/reactive-my-stock-app/internal/subs"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	registry *subs.Registry
	hub      *hub.Hub
	history  *history.Store
	server   *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		registry: subs.NewRegistry(),
		hub:      hub.New(hub.DefaultSubscriberBuffer, discardLogger()),
		history:  history.NewStore(history.DefaultCapacity),
	}
	gw := NewGateway(f.registry, f.hub, f.history, discardLogger())
	gw.follow = 10 * time.Millisecond

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/prices", gw.HandleWS)
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fixture) dial(t *testing.T, userKey string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/prices"
	header := http.Header{}
	if userKey != "" {
		header.Set("X-User-Key", userKey)
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readTick(t *testing.T, conn *websocket.Conn) domain.PriceTick {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var tick domain.PriceTick
	if err := json.Unmarshal(data, &tick); err != nil {
		t.Fatalf("unmarshal %q: %v", data, err)
	}
	return tick
}

func TestViewerReceivesTicksForActiveTicker(t *testing.T) {
	f := newFixture(t)
	f.registry.Subscribe("alice", "AAPL")

	conn := f.dial(t, "alice")

	// Give the follow loop time to attach, then emit.
	deadline := time.Now().Add(time.Second)
	for f.hub.Viewers("AAPL") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("session never attached to AAPL")
		}
		time.Sleep(5 * time.Millisecond)
	}
	f.hub.Emit(domain.PriceTick{Ticker: "AAPL", Price: 187.45, Timestamp: 1})

	tick := readTick(t, conn)
	if tick.Ticker != "AAPL" || tick.Price != 187.45 {
		t.Fatalf("tick = %+v, want AAPL @ 187.45", tick)
	}
}

func TestViewerGetsSnapshotOnAttach(t *testing.T) {
	f := newFixture(t)
	f.history.Record(domain.PriceTick{Ticker: "TSLA", Price: 250, Timestamp: 9})
	f.registry.Subscribe("bob", "TSLA")

	conn := f.dial(t, "bob")

	tick := readTick(t, conn)
	if tick.Ticker != "TSLA" || tick.Price != 250 {
		t.Fatalf("snapshot = %+v, want last recorded TSLA tick", tick)
	}
}

func TestViewerFollowsTickerSwitch(t *testing.T) {
	f := newFixture(t)
	f.registry.Subscribe("alice", "AAPL")

	conn := f.dial(t, "alice")

	deadline := time.Now().Add(time.Second)
	for f.hub.Viewers("AAPL") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("session never attached to AAPL")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Switch the user's subscription; the session must move with it.
	f.registry.Subscribe("alice", "NVDA")
	deadline = time.Now().Add(time.Second)
	for f.hub.Viewers("NVDA") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("session never attached to NVDA")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if f.hub.Viewers("AAPL") != 0 {
		t.Fatalf("AAPL viewers = %d, want 0 after switch", f.hub.Viewers("AAPL"))
	}

	f.hub.Emit(domain.PriceTick{Ticker: "NVDA", Price: 900, Timestamp: 2})
	tick := readTick(t, conn)
	if tick.Ticker != "NVDA" {
		t.Fatalf("tick = %+v, want NVDA", tick)
	}
}

func TestBlankUserKeyMapsToGuest(t *testing.T) {
	f := newFixture(t)
	f.registry.Subscribe("guest", "AAPL")

	f.dial(t, "")

	deadline := time.Now().Add(time.Second)
	for f.hub.Viewers("AAPL") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("guest session never attached")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
