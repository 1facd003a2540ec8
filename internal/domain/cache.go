package domain

import (
	"context"
	"time"
)

// PriceCache provides fast access to the latest spot quotes.
type PriceCache interface {
	SetPrice(ctx context.Context, symbol string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, symbol string) (float64, time.Time, error)
}

// BookCache stores per-ticker top-of-book summaries for observers (status
// server, monitor mode). The authoritative book lives in-process.
type BookCache interface {
	SetTop(ctx context.Context, top TopOfBook) error
	GetTop(ctx context.Context, ticker string) (TopOfBook, error)
}

// RateLimiter provides rate limiting shared across processes. The status
// server counts requests per client IP; the live broker paces order
// submissions so retries and flattens stay inside the venue budget.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	// Wait blocks until a slot under the limit opens or ctx ends.
	Wait(ctx context.Context, key string, limit int, window time.Duration) error
}

// LockManager provides distributed locking. The live broker holds a lock so
// that only one process submits orders for an account.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
	// Hold acquires the lock and keeps refreshing its TTL until the
	// returned release function is called or ctx ends. A crashed holder
	// frees the lock within one TTL.
	Hold(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// StreamMessage is a single entry read back from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus publishes trading activity to out-of-process observers.
// Signals and fills land on durable, bounded streams that dashboards can
// replay; Publish/Subscribe carries ephemeral notifications.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	AppendSignal(ctx context.Context, sig TradeSignal) error
	AppendFill(ctx context.Context, fill Fill) error
	ReadSignals(ctx context.Context, lastID string, count int) ([]StreamMessage, error)
	ReadFills(ctx context.Context, lastID string, count int) ([]StreamMessage, error)
}
