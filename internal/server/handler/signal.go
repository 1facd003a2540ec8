package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// SignalSource reads back the persisted signal audit trail.
type SignalSource interface {
	ListRecent(ctx context.Context, limit int) ([]domain.TradeSignal, error)
}

// FillSource reads back persisted fills.
type FillSource interface {
	ListRecent(ctx context.Context, limit int) ([]domain.Fill, error)
}

// SignalHandler serves the signal and fill audit endpoints.
type SignalHandler struct {
	signals SignalSource
	fills   FillSource
	logger  *slog.Logger
}

// NewSignalHandler creates a SignalHandler over the given stores.
func NewSignalHandler(signals SignalSource, fills FillSource, logger *slog.Logger) *SignalHandler {
	return &SignalHandler{
		signals: signals,
		fills:   fills,
		logger:  logger,
	}
}

type signalRow struct {
	ID         string `json:"id"`
	Strategy   string `json:"strategy"`
	Ticker     string `json:"ticker"`
	Side       string `json:"side"`
	Action     string `json:"action"`
	Directive  string `json:"directive"`
	PriceCents int64  `json:"price_cents"`
	Contracts  int64  `json:"contracts"`
	Reason     string `json:"reason"`
	CreatedAt  string `json:"created_at"`
}

// ListRecentSignals returns the most recently emitted signals, newest first.
// GET /api/signals/recent?limit=50
func (h *SignalHandler) ListRecentSignals(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	signals, err := h.signals.ListRecent(r.Context(), opts.Limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list signals failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list signals")
		return
	}

	rows := make([]signalRow, 0, len(signals))
	for _, s := range signals {
		rows = append(rows, signalRow{
			ID:         s.ID,
			Strategy:   s.Strategy,
			Ticker:     s.Ticker,
			Side:       string(s.Side),
			Action:     string(s.Action),
			Directive:  string(s.Directive),
			PriceCents: s.PriceCents,
			Contracts:  s.Contracts,
			Reason:     s.Reason,
			CreatedAt:  s.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"signals": rows})
}

type fillRow struct {
	OrderID    string `json:"order_id"`
	Ticker     string `json:"ticker"`
	Strategy   string `json:"strategy"`
	Side       string `json:"side"`
	Action     string `json:"action"`
	PriceCents int64  `json:"price_cents"`
	Contracts  int64  `json:"contracts"`
	FeeCents   int64  `json:"fee_cents"`
	IsMaker    bool   `json:"is_maker"`
	At         string `json:"at"`
}

// ListRecentFills returns the most recent executions, newest first.
// GET /api/fills/recent?limit=50
func (h *SignalHandler) ListRecentFills(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	fills, err := h.fills.ListRecent(r.Context(), opts.Limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list fills failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list fills")
		return
	}

	rows := make([]fillRow, 0, len(fills))
	for _, f := range fills {
		rows = append(rows, fillRow{
			OrderID:    f.OrderID,
			Ticker:     f.Ticker,
			Strategy:   f.Strategy,
			Side:       string(f.Side),
			Action:     string(f.Action),
			PriceCents: f.PriceCents,
			Contracts:  f.Contracts,
			FeeCents:   f.FeeCents,
			IsMaker:    f.IsMaker,
			At:         f.At.UTC().Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"fills": rows})
}
