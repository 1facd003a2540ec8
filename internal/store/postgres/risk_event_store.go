package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// RiskEventStore implements domain.RiskEventStore using PostgreSQL. The table
// is append-only; rows leave only through archival.
type RiskEventStore struct {
	pool *pgxpool.Pool
}

var _ domain.RiskEventStore = (*RiskEventStore)(nil)

// NewRiskEventStore creates a new RiskEventStore backed by the given pool.
func NewRiskEventStore(pool *pgxpool.Pool) *RiskEventStore {
	return &RiskEventStore{pool: pool}
}

// Insert appends one risk event. The detail map is stored as JSONB.
func (s *RiskEventStore) Insert(ctx context.Context, ev domain.RiskEvent) error {
	detailJSON, err := json.Marshal(ev.Detail)
	if err != nil {
		return fmt.Errorf("postgres: marshal risk event detail: %w", err)
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	const query = `INSERT INTO risk_events (kind, ticker, detail, created_at) VALUES ($1, $2, $3, $4)`
	if _, err := s.pool.Exec(ctx, query, ev.Kind, ev.Ticker, detailJSON, at); err != nil {
		return fmt.Errorf("postgres: insert risk event %s: %w", ev.Kind, err)
	}
	return nil
}

func scanRiskEventRows(rows pgx.Rows) ([]domain.RiskEvent, error) {
	var events []domain.RiskEvent
	for rows.Next() {
		var ev domain.RiskEvent
		var detailJSON []byte
		if err := rows.Scan(&ev.ID, &ev.Kind, &ev.Ticker, &detailJSON, &ev.At); err != nil {
			return nil, err
		}
		if detailJSON != nil {
			if err := json.Unmarshal(detailJSON, &ev.Detail); err != nil {
				return nil, fmt.Errorf("unmarshal risk event detail: %w", err)
			}
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// ListRecent returns the newest events first.
func (s *RiskEventStore) ListRecent(ctx context.Context, limit int) ([]domain.RiskEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, kind, ticker, detail, created_at
		FROM risk_events ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent risk events: %w", err)
	}
	defer rows.Close()

	events, err := scanRiskEventRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan recent risk events: %w", err)
	}
	return events, nil
}

// ListBefore returns events older than the cutoff, oldest first, for
// archiving.
func (s *RiskEventStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.RiskEvent, error) {
	query := `SELECT id, kind, ticker, detail, created_at
		FROM risk_events WHERE created_at < $1 ORDER BY created_at ASC`
	args := []any{cutoff}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list risk events before: %w", err)
	}
	defer rows.Close()
	return scanRiskEventRows(rows)
}

// DeleteBefore deletes events older than the cutoff. Returns the number
// deleted.
func (s *RiskEventStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM risk_events WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete risk events before: %w", err)
	}
	return tag.RowsAffected(), nil
}
