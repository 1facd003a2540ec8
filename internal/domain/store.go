package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// TradeStore persists executed fills.
type TradeStore interface {
	InsertBatch(ctx context.Context, fills []Fill) error
	ListByTicker(ctx context.Context, ticker string, opts ListOpts) ([]Fill, error)
	ListRecent(ctx context.Context, limit int) ([]Fill, error)
	// ListBefore returns fills older than the cutoff, for archival.
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]Fill, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// DailySummary is one UTC day of ledger activity.
type DailySummary struct {
	Day           time.Time
	Trades        int64
	VolumeCents   int64
	FeesCents     int64
	RealizedCents int64
	EndCashCents  int64
}

// LedgerStore persists position snapshots and daily summaries.
type LedgerStore interface {
	UpsertPositions(ctx context.Context, positions []Position) error
	ListPositions(ctx context.Context) ([]Position, error)
	UpsertDailySummary(ctx context.Context, s DailySummary) error
	ListDailySummaries(ctx context.Context, opts ListOpts) ([]DailySummary, error)
}

// RiskEventStore persists the append-only risk event log.
type RiskEventStore interface {
	Insert(ctx context.Context, ev RiskEvent) error
	ListRecent(ctx context.Context, limit int) ([]RiskEvent, error)
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]RiskEvent, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
