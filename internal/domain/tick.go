package domain

import "time"

// PriceTick is a single price observation for a ticker. It is produced by the
// upstream decoder (or the mock generator) and fanned out to the history
// buffer, the live viewer hub, and the movement alert engine.
type PriceTick struct {
	Ticker    string  `json:"ticker"`
	Price     float64 `json:"price"`
	Timestamp int64   `json:"timestamp"` // event end time, Unix milliseconds
}

// Time returns the tick's event time.
func (t PriceTick) Time() time.Time {
	return time.UnixMilli(t.Timestamp)
}

// StatusEvent is a control frame from the upstream provider ("connected",
// "authenticated", "auth_failed", ...). It never produces a tick; the link's
// state machine consumes it instead.
type StatusEvent struct {
	Status  string
	Message string
}

// Authenticated reports whether this status frame confirms a successful
// authentication on the upstream connection.
func (s StatusEvent) Authenticated() bool {
	switch s.Status {
	case "authenticated", "auth_success":
		return true
	default:
		return false
	}
}
