package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// archiveBatchSize bounds how many rows each export pulls from Postgres.
const archiveBatchSize = 5000

// fillSource is the slice of the trade store the archiver needs.
type fillSource interface {
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Fill, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// riskEventSource is the slice of the risk event store the archiver needs.
type riskEventSource interface {
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.RiskEvent, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Archiver exports aged fills and risk events to object storage as JSONL
// and prunes the exported rows from Postgres. Rows are only deleted after
// the upload succeeds, so a failed export leaves hot storage intact.
type Archiver struct {
	writer     *Writer
	fills      fillSource
	riskEvents riskEventSource
	logger     *slog.Logger
}

var _ domain.Archiver = (*Archiver)(nil)

// NewArchiver creates an Archiver that writes through the given blob writer.
func NewArchiver(writer *Writer, fills fillSource, riskEvents riskEventSource, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer:     writer,
		fills:      fills,
		riskEvents: riskEvents,
		logger:     logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveBefore exports all fills and risk events older than the cutoff and
// deletes them from hot storage. Each kind is exported independently so a
// failure in one does not block the other; the first error is returned.
func (a *Archiver) ArchiveBefore(ctx context.Context, cutoff time.Time) error {
	var firstErr error

	if err := a.archiveFills(ctx, cutoff); err != nil {
		a.logger.Error("fill archive failed", slog.String("error", err.Error()))
		firstErr = err
	}

	if err := a.archiveRiskEvents(ctx, cutoff); err != nil {
		a.logger.Error("risk event archive failed", slog.String("error", err.Error()))
		if firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

func (a *Archiver) archiveFills(ctx context.Context, cutoff time.Time) error {
	for {
		fills, err := a.fills.ListBefore(ctx, cutoff, archiveBatchSize)
		if err != nil {
			return fmt.Errorf("s3blob: list fills before %s: %w", cutoff.Format(time.RFC3339), err)
		}
		if len(fills) == 0 {
			return nil
		}

		body, err := marshalJSONL(fills)
		if err != nil {
			return fmt.Errorf("s3blob: marshal fills: %w", err)
		}

		key := archivePath("fills", fills[len(fills)-1].At)
		if err := a.writer.Write(ctx, key, "application/x-ndjson", bytes.NewReader(body)); err != nil {
			return err
		}

		// Prune only up to the newest exported row, not the full cutoff,
		// so rows in later batches survive an interrupted run.
		batchCutoff := fills[len(fills)-1].At.Add(time.Nanosecond)
		if batchCutoff.After(cutoff) {
			batchCutoff = cutoff
		}
		deleted, err := a.fills.DeleteBefore(ctx, batchCutoff)
		if err != nil {
			return fmt.Errorf("s3blob: delete archived fills: %w", err)
		}

		a.logger.Info("archived fills",
			slog.String("key", key),
			slog.Int("exported", len(fills)),
			slog.Int64("deleted", deleted))

		if len(fills) < archiveBatchSize {
			return nil
		}
	}
}

func (a *Archiver) archiveRiskEvents(ctx context.Context, cutoff time.Time) error {
	for {
		events, err := a.riskEvents.ListBefore(ctx, cutoff, archiveBatchSize)
		if err != nil {
			return fmt.Errorf("s3blob: list risk events before %s: %w", cutoff.Format(time.RFC3339), err)
		}
		if len(events) == 0 {
			return nil
		}

		body, err := marshalJSONL(events)
		if err != nil {
			return fmt.Errorf("s3blob: marshal risk events: %w", err)
		}

		key := archivePath("risk_events", events[len(events)-1].At)
		if err := a.writer.Write(ctx, key, "application/x-ndjson", bytes.NewReader(body)); err != nil {
			return err
		}

		batchCutoff := events[len(events)-1].At.Add(time.Nanosecond)
		if batchCutoff.After(cutoff) {
			batchCutoff = cutoff
		}
		deleted, err := a.riskEvents.DeleteBefore(ctx, batchCutoff)
		if err != nil {
			return fmt.Errorf("s3blob: delete archived risk events: %w", err)
		}

		a.logger.Info("archived risk events",
			slog.String("key", key),
			slog.Int("exported", len(events)),
			slog.Int64("deleted", deleted))

		if len(events) < archiveBatchSize {
			return nil
		}
	}
}

// marshalJSONL encodes a slice as newline-delimited JSON.
func marshalJSONL[T any](rows []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// archivePath builds the object key for an archive batch. Batches are
// grouped by month with a nanosecond suffix so repeated runs within the
// same month never overwrite each other.
func archivePath(kind string, newest time.Time) string {
	return fmt.Sprintf("archive/%s/%s/%d.jsonl",
		kind, newest.UTC().Format("2006-01"), newest.UTC().UnixNano())
}
