package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// KillChecker evaluates the kill switch against a ledger snapshot. It is
// satisfied by *risk.Gate.
type KillChecker interface {
	CheckKillSwitch(snap domain.LedgerSnapshot, venueTradable bool) (bool, string)
	ShouldFlattenAll(snap domain.LedgerSnapshot) bool
}

// RiskEventSource reads back persisted risk events.
type RiskEventSource interface {
	ListRecent(ctx context.Context, limit int) ([]domain.RiskEvent, error)
}

// RiskHandler serves the risk status and risk event endpoints.
type RiskHandler struct {
	ledger SnapshotSource
	gate   KillChecker
	events RiskEventSource
	logger *slog.Logger
}

// NewRiskHandler creates a RiskHandler over the given ledger, gate and store.
func NewRiskHandler(ledger SnapshotSource, gate KillChecker, events RiskEventSource, logger *slog.Logger) *RiskHandler {
	return &RiskHandler{
		ledger: ledger,
		gate:   gate,
		events: events,
		logger: logger,
	}
}

type riskStatusResponse struct {
	KillSwitch         bool   `json:"kill_switch"`
	KillReason         string `json:"kill_reason,omitempty"`
	FlattenAll         bool   `json:"flatten_all"`
	BankrollCents      int64  `json:"bankroll_cents"`
	CashCents          int64  `json:"cash_cents"`
	TotalExposureCents int64  `json:"total_exposure_cents"`
	DailyPnLCents      int64  `json:"daily_pnl_cents"`
	WeeklyPnLCents     int64  `json:"weekly_pnl_cents"`
}

// RiskStatus reports the kill-switch evaluation over the current ledger
// state. The venue is assumed tradeable here; a venue outage trips the
// switch in the trading loop, not in this read-only view.
// GET /api/risk/status
func (h *RiskHandler) RiskStatus(w http.ResponseWriter, r *http.Request) {
	snap := h.ledger.Snapshot()
	tripped, reason := h.gate.CheckKillSwitch(snap, true)

	writeJSON(w, http.StatusOK, riskStatusResponse{
		KillSwitch:         tripped,
		KillReason:         reason,
		FlattenAll:         h.gate.ShouldFlattenAll(snap),
		BankrollCents:      snap.Capital.BankrollCents,
		CashCents:          snap.Capital.CashCents,
		TotalExposureCents: snap.ExposureCents(),
		DailyPnLCents:      snap.Capital.DailyPnLCents,
		WeeklyPnLCents:     snap.Capital.WeeklyPnLCents,
	})
}

type riskEventRow struct {
	ID     int64          `json:"id"`
	Kind   string         `json:"kind"`
	Ticker string         `json:"ticker,omitempty"`
	Detail map[string]any `json:"detail,omitempty"`
	At     string         `json:"at"`
}

// ListRecentEvents returns the most recent risk events, newest first.
// GET /api/risk/events?limit=50
func (h *RiskHandler) ListRecentEvents(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	events, err := h.events.ListRecent(r.Context(), opts.Limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list risk events failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list risk events")
		return
	}

	rows := make([]riskEventRow, 0, len(events))
	for _, ev := range events {
		rows = append(rows, riskEventRow{
			ID:     ev.ID,
			Kind:   ev.Kind,
			Ticker: ev.Ticker,
			Detail: ev.Detail,
			At:     ev.At.UTC().Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"events": rows})
}
