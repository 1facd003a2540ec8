package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

var _ domain.TradeStore = (*TradeStore)(nil)

// NewTradeStore creates a new TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const fillSelectCols = `order_id, ticker, event_id, strategy, side, action,
	price_cents, contracts, fee_cents, is_maker, filled_at`

func scanFillRows(rows pgx.Rows) ([]domain.Fill, error) {
	var fills []domain.Fill
	for rows.Next() {
		var f domain.Fill
		var side, action string
		if err := rows.Scan(
			&f.OrderID, &f.Ticker, &f.EventID, &f.Strategy,
			&side, &action,
			&f.PriceCents, &f.Contracts, &f.FeeCents,
			&f.IsMaker, &f.At,
		); err != nil {
			return nil, err
		}
		f.Side = domain.Side(side)
		f.Action = domain.OrderAction(action)
		fills = append(fills, f)
	}
	return fills, rows.Err()
}

// InsertBatch inserts multiple fills efficiently using pgx Batch. Replayed
// fills (same order, time, and price) are silently skipped via ON CONFLICT
// DO NOTHING.
func (s *TradeStore) InsertBatch(ctx context.Context, fills []domain.Fill) error {
	if len(fills) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO fills (
			order_id, ticker, event_id, strategy, side, action,
			price_cents, contracts, fee_cents, is_maker, filled_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11
		) ON CONFLICT (order_id, filled_at, price_cents) DO NOTHING`

	for _, f := range fills {
		batch.Queue(query,
			f.OrderID, f.Ticker, f.EventID, f.Strategy,
			string(f.Side), string(f.Action),
			f.PriceCents, f.Contracts, f.FeeCents,
			f.IsMaker, f.At,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range fills {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert fill batch item %d: %w", i, err)
		}
	}
	return nil
}

// ListByTicker returns fills for a given market with pagination and optional
// time filtering.
func (s *TradeStore) ListByTicker(ctx context.Context, ticker string, opts domain.ListOpts) ([]domain.Fill, error) {
	query := `SELECT ` + fillSelectCols + ` FROM fills WHERE ticker = $1`
	args := []any{ticker}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND filled_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND filled_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY filled_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list fills by ticker: %w", err)
	}
	defer rows.Close()

	fills, err := scanFillRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan fills by ticker: %w", err)
	}
	return fills, nil
}

// ListRecent returns the newest fills across all markets.
func (s *TradeStore) ListRecent(ctx context.Context, limit int) ([]domain.Fill, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+fillSelectCols+` FROM fills ORDER BY filled_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent fills: %w", err)
	}
	defer rows.Close()

	fills, err := scanFillRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan recent fills: %w", err)
	}
	return fills, nil
}

// ListBefore returns fills older than the cutoff, oldest first, for archiving.
func (s *TradeStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Fill, error) {
	query := `SELECT ` + fillSelectCols + ` FROM fills WHERE filled_at < $1 ORDER BY filled_at ASC`
	args := []any{cutoff}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list fills before: %w", err)
	}
	defer rows.Close()
	return scanFillRows(rows)
}

// DeleteBefore deletes all fills older than the cutoff. Returns the number
// deleted.
func (s *TradeStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM fills WHERE filled_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete fills before: %w", err)
	}
	return tag.RowsAffected(), nil
}
