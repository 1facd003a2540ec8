package handler

import (
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// SnapshotSource provides the in-memory ledger view the position handler
// reads from. It is satisfied by *ledger.Ledger.
type SnapshotSource interface {
	Snapshot() domain.LedgerSnapshot
}

// PositionHandler serves position and capital endpoints off the live ledger.
type PositionHandler struct {
	ledger SnapshotSource
	logger *slog.Logger
}

// NewPositionHandler creates a PositionHandler over the given ledger.
func NewPositionHandler(ledger SnapshotSource, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		ledger: ledger,
		logger: logger,
	}
}

type positionRow struct {
	Ticker        string  `json:"ticker"`
	EventID       string  `json:"event_id"`
	NetContracts  int64   `json:"net_contracts"`
	AvgEntryCents float64 `json:"avg_entry_cents"`
	RealizedCents int64   `json:"realized_cents"`
	ExposureCents int64   `json:"exposure_cents"`
}

type listPositionsResponse struct {
	Positions          []positionRow `json:"positions"`
	TotalExposureCents int64         `json:"total_exposure_cents"`
	CashCents          int64         `json:"cash_cents"`
	DailyPnLCents      int64         `json:"daily_pnl_cents"`
	WeeklyPnLCents     int64         `json:"weekly_pnl_cents"`
	TakenAt            time.Time     `json:"taken_at"`
}

// ListPositions returns open positions and the capital state from the live
// ledger. Flat positions are omitted.
// GET /api/positions
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	snap := h.ledger.Snapshot()

	rows := make([]positionRow, 0, len(snap.Positions))
	for _, p := range snap.Positions {
		if p.Flat() {
			continue
		}
		rows = append(rows, positionRow{
			Ticker:        p.Ticker,
			EventID:       p.EventID,
			NetContracts:  p.NetContracts,
			AvgEntryCents: p.AvgEntryCents,
			RealizedCents: p.RealizedCents,
			ExposureCents: p.ExposureCents(),
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Ticker < rows[j].Ticker })

	writeJSON(w, http.StatusOK, listPositionsResponse{
		Positions:          rows,
		TotalExposureCents: snap.ExposureCents(),
		CashCents:          snap.Capital.CashCents,
		DailyPnLCents:      snap.Capital.DailyPnLCents,
		WeeklyPnLCents:     snap.Capital.WeeklyPnLCents,
		TakenAt:            snap.TakenAt,
	})
}
