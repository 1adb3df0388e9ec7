// Package upstream owns the single connection to the streaming price
// provider: it multiplexes per-ticker subscribe/unsubscribe commands onto one
// websocket, decodes inbound batches, and survives disconnects with
// exponential backoff. A mock generator in this package implements the same
// TickSource contract for environments without a real provider.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/DanielNuud/reactive-my-stock-app/internal/domain"
	"github.com/DanielNuud/reactive-my-stock-app/internal/subs"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// handshakeTimeout bounds the websocket dial.
	handshakeTimeout = 15 * time.Second

	// channelPrefix is the provider's aggregate-minute channel namespace.
	channelPrefix = "AM."
)

// Link states.
const (
	StateDisconnected int32 = iota
	StateConnecting
	StateAuthenticating
	StateActive
)

// StateName returns the human-readable name of a link state for logs and the
// health endpoint.
func StateName(s int32) string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateActive:
		return "active"
	default:
		return "disconnected"
	}
}

// command is one outbound wire command:
// {"action":"auth"|"subscribe"|"unsubscribe","params":...}.
type command struct {
	Action string `json:"action"`
	Params string `json:"params"`
}

// Link maintains exactly one logical connection to the upstream provider.
// Subscribe/unsubscribe intents are queued onto a single ordered outbound
// queue; if no connection is active they are replayed after the next
// successful authentication instead of being dropped.
type Link struct {
	wsURL   string
	apiKey  string
	backoff *Backoff
	handle  domain.TickHandler
	logger  *slog.Logger

	mu     sync.Mutex
	wanted map[string]struct{}
	queue  []command
	wake   chan struct{} // buffered(1); signals the write loop

	state atomic.Int32
}

// NewLink creates a Link. The handler receives every decoded tick; it must be
// fast and non-blocking.
func NewLink(wsURL, apiKey string, backoff *Backoff, handle domain.TickHandler, logger *slog.Logger) *Link {
	return &Link{
		wsURL:   wsURL,
		apiKey:  apiKey,
		backoff: backoff,
		handle:  handle,
		logger:  logger.With(slog.String("component", "upstream_link")),
		wanted:  make(map[string]struct{}),
		wake:    make(chan struct{}, 1),
	}
}

// State returns the link's current connection state.
func (l *Link) State() int32 {
	return l.state.Load()
}

// SubscribeTo opens upstream interest in a ticker. Idempotent; the command
// queues even while the link is down. Failures never surface to the caller.
func (l *Link) SubscribeTo(rawTicker string) {
	ticker := subs.NormalizeTicker(rawTicker)
	if ticker == "" {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.wanted[ticker]; ok {
		return
	}
	l.wanted[ticker] = struct{}{}
	l.enqueueLocked(command{Action: "subscribe", Params: channelPrefix + ticker})
	l.logger.Info("subscribe requested", slog.String("ticker", ticker))
}

// Unsubscribe closes upstream interest in a ticker. Idempotent no-op when the
// ticker is not currently wanted.
func (l *Link) Unsubscribe(rawTicker string) {
	ticker := subs.NormalizeTicker(rawTicker)
	if ticker == "" {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.wanted[ticker]; !ok {
		return
	}
	delete(l.wanted, ticker)
	l.enqueueLocked(command{Action: "unsubscribe", Params: channelPrefix + ticker})
	l.logger.Info("unsubscribe requested", slog.String("ticker", ticker))
}

// Run drives the connect/auth/read cycle until ctx is cancelled. Transport
// failures are never returned; they schedule a backoff-delayed reconnect.
func (l *Link) Run(ctx context.Context) error {
	for {
		err := l.runConnection(ctx)
		l.state.Store(StateDisconnected)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		delay := l.backoff.Next()
		l.logger.Warn("upstream disconnected, reconnecting",
			slog.String("error", errString(err)),
			slog.Duration("delay", delay),
			slog.Int("attempt", l.backoff.Attempts()),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// runConnection dials once and runs the send and receive pumps as two joined
// tasks over the same connection; either one failing tears both down.
func (l *Link) runConnection(ctx context.Context) error {
	l.state.Store(StateConnecting)

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, l.wsURL, nil)
	if err != nil {
		return fmt.Errorf("upstream: connect: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// Auth goes out first on every fresh connection.
	l.mu.Lock()
	l.queue = append([]command{{Action: "auth", Params: l.apiKey}}, l.queue...)
	l.mu.Unlock()
	l.signalWake()
	l.state.Store(StateAuthenticating)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return l.writeLoop(gctx, conn) })
	g.Go(func() error { return l.readLoop(conn) })
	g.Go(func() error {
		// Unblocks the read loop when the pipeline shuts down or the write
		// side fails.
		<-gctx.Done()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		return conn.Close()
	})
	return g.Wait()
}

// writeLoop drains the outbound queue onto the connection and keeps the
// connection alive with periodic pings.
func (l *Link) writeLoop(ctx context.Context, conn *websocket.Conn) error {
	pings := time.NewTicker(pingPeriod)
	defer pings.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-pings.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return fmt.Errorf("upstream: ping: %w", err)
			}
		case <-l.wake:
			for {
				cmd, ok := l.popCommand()
				if !ok {
					break
				}
				data, err := json.Marshal(cmd)
				if err != nil {
					return fmt.Errorf("upstream: marshal command: %w", err)
				}
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
					// Put the command back so it replays after reconnect.
					l.requeueFront(cmd)
					return fmt.Errorf("upstream: write %s: %w", cmd.Action, err)
				}
				l.logger.Debug("command sent",
					slog.String("action", cmd.Action),
					slog.String("params", abbreviateParams(cmd)),
				)
			}
		}
	}
}

// readLoop consumes inbound frames until the connection fails. Malformed
// frames are logged and skipped, never fatal.
func (l *Link) readLoop(conn *websocket.Conn) error {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("upstream: read: %w", err)
		}

		ticks, statuses, err := DecodeBatch(raw)
		if err != nil {
			l.logger.Warn("dropping undecodable frame",
				slog.String("error", err.Error()),
				slog.Int("payload_len", len(raw)),
			)
			continue
		}
		for _, st := range statuses {
			l.handleStatus(st)
		}
		for _, tick := range ticks {
			l.handle(tick)
		}
	}
}

// handleStatus feeds a control frame into the state machine. Successful
// authentication resets the backoff and re-issues subscribes for every ticker
// currently wanted, covering interest registered while the link was down.
func (l *Link) handleStatus(st domain.StatusEvent) {
	if !st.Authenticated() {
		l.logger.Debug("upstream status",
			slog.String("status", st.Status),
			slog.String("message", st.Message),
		)
		return
	}

	l.state.Store(StateActive)
	l.backoff.Reset()

	l.mu.Lock()
	// Pending commands are superseded: subscribe/unsubscribe by the wanted
	// set, and any auth left over from a connection that died before draining
	// its queue (each dial injects a fresh auth). Rebuilding from the wanted
	// set converges the upstream channel set exactly.
	l.queue = l.queue[:0]
	for ticker := range l.wanted {
		l.queue = append(l.queue, command{Action: "subscribe", Params: channelPrefix + ticker})
	}
	n := len(l.wanted)
	l.mu.Unlock()
	l.signalWake()

	l.logger.Info("upstream authenticated", slog.Int("tickers", n))
}

// enqueueLocked appends a command to the outbound queue. Caller holds l.mu.
func (l *Link) enqueueLocked(cmd command) {
	l.queue = append(l.queue, cmd)
	l.signalWake()
}

// popCommand removes and returns the oldest queued command.
func (l *Link) popCommand() (command, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.queue) == 0 {
		return command{}, false
	}
	cmd := l.queue[0]
	l.queue = append(l.queue[:0], l.queue[1:]...)
	return cmd, true
}

// requeueFront puts a failed command back at the head of the queue.
func (l *Link) requeueFront(cmd command) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.queue = append([]command{cmd}, l.queue...)
}

func (l *Link) signalWake() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// abbreviateParams hides the API key in auth command logs.
func abbreviateParams(cmd command) string {
	if cmd.Action == "auth" {
		return "***"
	}
	return cmd.Params
}

func errString(err error) string {
	if err == nil {
		return "clean close"
	}
	return err.Error()
}

// Compile-time interface check.
var _ domain.TickSource = (*Link)(nil)
