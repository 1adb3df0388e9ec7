package domain

import "time"

// Alert severities mirror the values the notification service accepts.
const (
	SeverityInfo = "INFO"
	SeverityWarn = "WARN"
)

// MoveAlert is a fired price-movement alert. One MoveAlert fans out into one
// notification per interested user; the alert itself (without the user key) is
// what the audit store records.
type MoveAlert struct {
	ID         string    // UUID
	Ticker     string
	Direction  string // "UP" or "DOWN"
	Percent    float64 // absolute move, rounded to 2 decimals
	AnchorFrom float64 // anchor the move was measured against
	AnchorTo   float64 // price the anchor was reset to
	FiredAt    time.Time
	DedupKey   string
}

// Notification is the command handed to a NotificationSink. Delivery is
// at-least-once; the sink's consumer deduplicates on Code.
type Notification struct {
	UserKey   string `json:"userKey"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	Severity  string `json:"severity"`
	Code      string `json:"code"` // dedup key
	Timestamp int64  `json:"timestamp"`
}
