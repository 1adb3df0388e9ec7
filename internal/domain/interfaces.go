package domain

import "context"

// TickSource is a running feed of price ticks. The live upstream link and the
// mock generator both implement it, so the rest of the pipeline never branches
// on which one is wired in.
type TickSource interface {
	// Run drives the source until ctx is cancelled. Connection failures are
	// handled internally (reconnect with backoff); Run only returns ctx.Err()
	// or a terminal setup error.
	Run(ctx context.Context) error
	// SubscribeTo opens upstream interest in a ticker. Idempotent and
	// fire-and-forget: failures drive the internal reconnect loop, never the
	// caller.
	SubscribeTo(ticker string)
	// Unsubscribe closes upstream interest in a ticker. Idempotent no-op when
	// the ticker is not subscribed.
	Unsubscribe(ticker string)
}

// TickHandler receives every decoded tick. Implementations must be fast and
// non-blocking relative to tick arrival rate.
type TickHandler func(tick PriceTick)

// NotificationSink delivers user notifications. Fire-and-forget: errors are
// for logging only and must never stall the tick path.
type NotificationSink interface {
	Send(ctx context.Context, n Notification) error
}

// PricePublisher forwards ticks to a durable downstream (Kafka). Best-effort;
// a full queue drops the tick.
type PricePublisher interface {
	Publish(tick PriceTick)
}

// LatestPriceCache stores the most recent tick per ticker for cheap REST
// reads across service instances.
type LatestPriceCache interface {
	SetLatest(ctx context.Context, tick PriceTick) error
	GetLatest(ctx context.Context, ticker string) (PriceTick, error)
}

// AlertStore records fired movement alerts for later inspection.
type AlertStore interface {
	Insert(ctx context.Context, alert MoveAlert) error
}
