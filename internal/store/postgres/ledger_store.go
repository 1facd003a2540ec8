package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// LedgerStore implements domain.LedgerStore using PostgreSQL.
type LedgerStore struct {
	pool *pgxpool.Pool
}

var _ domain.LedgerStore = (*LedgerStore)(nil)

// NewLedgerStore creates a new LedgerStore backed by the given connection pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// UpsertPositions writes the current position set. Flat positions are kept so
// realized P&L history survives the position going to zero.
func (s *LedgerStore) UpsertPositions(ctx context.Context, positions []domain.Position) error {
	if len(positions) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO positions (
			ticker, event_id, net_contracts, avg_entry_cents, realized_cents, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (ticker) DO UPDATE SET
			event_id        = EXCLUDED.event_id,
			net_contracts   = EXCLUDED.net_contracts,
			avg_entry_cents = EXCLUDED.avg_entry_cents,
			realized_cents  = EXCLUDED.realized_cents,
			updated_at      = EXCLUDED.updated_at`

	for _, p := range positions {
		batch.Queue(query,
			p.Ticker, p.EventID, p.NetContracts,
			p.AvgEntryCents, p.RealizedCents, p.UpdatedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range positions {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert position batch item %d: %w", i, err)
		}
	}
	return nil
}

// ListPositions returns every persisted position, open exposure first.
func (s *LedgerStore) ListPositions(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT ticker, event_id, net_contracts, avg_entry_cents, realized_cents, updated_at
		FROM positions
		ORDER BY net_contracts = 0, ticker`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		var p domain.Position
		if err := rows.Scan(
			&p.Ticker, &p.EventID, &p.NetContracts,
			&p.AvgEntryCents, &p.RealizedCents, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list positions rows: %w", err)
	}
	return positions, nil
}

// UpsertDailySummary writes one UTC day of activity, replacing any earlier
// write for the same day.
func (s *LedgerStore) UpsertDailySummary(ctx context.Context, sum domain.DailySummary) error {
	const query = `
		INSERT INTO daily_summaries (
			day, trades, volume_cents, fees_cents, realized_cents, end_cash_cents
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (day) DO UPDATE SET
			trades         = EXCLUDED.trades,
			volume_cents   = EXCLUDED.volume_cents,
			fees_cents     = EXCLUDED.fees_cents,
			realized_cents = EXCLUDED.realized_cents,
			end_cash_cents = EXCLUDED.end_cash_cents`

	_, err := s.pool.Exec(ctx, query,
		sum.Day, sum.Trades, sum.VolumeCents,
		sum.FeesCents, sum.RealizedCents, sum.EndCashCents,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert daily summary %s: %w", sum.Day.Format("2006-01-02"), err)
	}
	return nil
}

// ListDailySummaries returns daily summaries newest first.
func (s *LedgerStore) ListDailySummaries(ctx context.Context, opts domain.ListOpts) ([]domain.DailySummary, error) {
	query := `SELECT day, trades, volume_cents, fees_cents, realized_cents, end_cash_cents
		FROM daily_summaries WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND day >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND day <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY day DESC"

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
		return nil, fmt.Errorf("postgres: list daily summaries: %w", err)
	}
	defer rows.Close()

	var sums []domain.DailySummary
	for rows.Next() {
		var sum domain.DailySummary
		if err := rows.Scan(
			&sum.Day, &sum.Trades, &sum.VolumeCents,
			&sum.FeesCents, &sum.RealizedCents, &sum.EndCashCents,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan daily summary: %w", err)
		}
		sums = append(sums, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list daily summaries rows: %w", err)
	}
	return sums, nil
}
