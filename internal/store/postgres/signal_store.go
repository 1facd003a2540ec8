package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// SignalStore keeps an audit trail of every signal the strategies emitted,
// whether or not the risk gate let it through.
type SignalStore struct {
	pool *pgxpool.Pool
}

// NewSignalStore creates a new SignalStore backed by the given pool.
func NewSignalStore(pool *pgxpool.Pool) *SignalStore {
	return &SignalStore{pool: pool}
}

// Insert records one emitted signal. Replays of the same signal id are
// dropped.
func (s *SignalStore) Insert(ctx context.Context, sig domain.TradeSignal) error {
	const query = `
		INSERT INTO signal_log (
			signal_id, strategy, ticker, side, action, directive,
			price_cents, contracts, reason, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (signal_id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		sig.ID, sig.Strategy, sig.Ticker,
		string(sig.Side), string(sig.Action), string(sig.Directive),
		sig.PriceCents, sig.Contracts, sig.Reason, sig.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert signal %s: %w", sig.ID, err)
	}
	return nil
}

// ListRecent returns the newest signals first.
func (s *SignalStore) ListRecent(ctx context.Context, limit int) ([]domain.TradeSignal, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT signal_id, strategy, ticker, side, action, directive,
			price_cents, contracts, reason, created_at
		FROM signal_log ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent signals: %w", err)
	}
	defer rows.Close()

	var signals []domain.TradeSignal
	for rows.Next() {
		var sig domain.TradeSignal
		var side, action, directive string
		if err := rows.Scan(
			&sig.ID, &sig.Strategy, &sig.Ticker,
			&side, &action, &directive,
			&sig.PriceCents, &sig.Contracts, &sig.Reason, &sig.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan signal: %w", err)
		}
		sig.Side = domain.Side(side)
		sig.Action = domain.OrderAction(action)
		sig.Directive = domain.Directive(directive)
		signals = append(signals, sig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list recent signals rows: %w", err)
	}
	return signals, nil
}
