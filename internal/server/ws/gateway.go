// Package ws serves the live price stream over WebSocket. Each connection
// follows a single user's active subscription and receives that ticker's
// ticks as JSON text frames.
package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/DanielNuud/reactive-my-stock-app/internal/domain"
	"github.com/DanielNuud/reactive-my-stock-app/internal/history"
	"github.com/DanielNuud/reactive-my-stock-app/internal/hub"
	"github.com/DanielNuud/reactive-my-stock-app/internal/subs"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum size of an incoming message. Clients only
	// send control frames; anything larger is a protocol violation.
	maxMessageSize = 512

	// sendBufferSize is the channel buffer for outgoing messages per client.
	sendBufferSize = 64

	// defaultFollowInterval is how often a session re-checks which ticker the
	// user is subscribed to.
	defaultFollowInterval = 500 * time.Millisecond
)

// upgrader configures the WebSocket upgrade parameters.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Gateway upgrades viewer connections and runs one session per connection.
type Gateway struct {
	registry *subs.Registry
	hub      *hub.Hub
	history  *history.Store
	logger   *slog.Logger
	follow   time.Duration
}

// NewGateway creates a Gateway over the shared registry, hub, and history.
func NewGateway(registry *subs.Registry, h *hub.Hub, hist *history.Store, logger *slog.Logger) *Gateway {
	return &Gateway{
		registry: registry,
		hub:      h,
		history:  hist,
		logger:   logger.With(slog.String("component", "ws")),
		follow:   defaultFollowInterval,
	}
}

// HandleWS upgrades the request and starts the session pumps. The user key
// comes from the X-User-Key header; a blank header means the guest user.
// GET /ws/prices
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	userKey := subs.NormalizeUser(r.Header.Get("X-User-Key"))

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Error("upgrade failed", slog.String("error", err.Error()))
		return
	}

	s := &session{
		gw:      g,
		conn:    conn,
		userKey: userKey,
		send:    make(chan []byte, sendBufferSize),
		done:    make(chan struct{}),
	}

	g.logger.Info("viewer connected", slog.String("user", userKey))

	go s.writePump()
	go s.followLoop()
	go s.readPump()
}

// session is one viewer connection. The follow loop tracks the user's active
// ticker and re-attaches the hub stream when it changes; the write pump owns
// the connection for writes; the read pump exists only to notice closes and
// keep pong handling alive.
type session struct {
	gw      *Gateway
	conn    *websocket.Conn
	userKey string
	send    chan []byte
	done    chan struct{}
}

// followLoop keeps the session attached to the hub stream for whatever ticker
// the user is currently subscribed to. On attach it pushes the last known
// tick so the client renders a price before the next live update arrives.
func (s *session) followLoop() {
	var (
		current string
		sub     *hub.Subscription
		ticks   <-chan domain.PriceTick
	)
	detach := func() {
		if sub != nil {
			sub.Close()
			sub = nil
			ticks = nil
		}
	}
	defer detach()

	poll := time.NewTicker(s.gw.follow)
	defer poll.Stop()

	for {
		select {
		case <-s.done:
			return

		case <-poll.C:
			want, ok := s.gw.registry.ActiveTicker(s.userKey)
			if !ok {
				want = ""
			}
			if want == current {
				continue
			}
			detach()
			current = want
			if current == "" {
				continue
			}
			sub = s.gw.hub.Attach(current)
			ticks = sub.Ticks()
			if last, ok := s.gw.history.Latest(current); ok {
				s.push(last)
			}

		case tick, ok := <-ticks:
			if !ok {
				// Hub dropped the stream; re-attach on the next poll.
				sub = nil
				ticks = nil
				current = ""
				continue
			}
			s.push(tick)
		}
	}
}

// push serializes the tick onto the send buffer. A full buffer drops the
// frame; the next tick carries a fresher price anyway.
func (s *session) push(tick domain.PriceTick) {
	data, err := json.Marshal(tick)
	if err != nil {
		return
	}
	select {
	case s.send <- data:
	default:
		s.gw.logger.Warn("dropping frame for slow viewer",
			slog.String("user", s.userKey),
			slog.String("ticker", tick.Ticker),
		)
	}
}

// readPump drains inbound frames until the peer goes away.
func (s *session) readPump() {
	defer func() {
		close(s.done)
		s.conn.Close()
		s.gw.logger.Info("viewer disconnected", slog.String("user", s.userKey))
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.gw.logger.Warn("unexpected close",
					slog.String("user", s.userKey),
					slog.String("error", err.Error()),
				)
			}
			return
		}
	}
}

// writePump pumps frames from the send buffer to the connection and sends
// periodic pings for keepalive.
func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case <-s.done:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			s.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case data := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
