// Package risk screens trade signals against capital limits before they
// reach the router. Checks run in a fixed order and a rejection names the
// first rule that failed.
package risk

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// Limits are the gate's thresholds as fractions of bankroll.
type Limits struct {
	PerTradePct   float64 // max notional of a single signal
	PerStrikePct  float64 // max filled + resting exposure on one ticker
	PerEventPct   float64 // max exposure across one event's ladder
	TotalPct      float64 // max exposure across the whole book
	CashBufferPct float64 // min free cash after the trade
	DailyLossPct  float64 // realized daily loss that halts new risk
	WeeklyLossPct float64 // realized weekly loss that halts new risk
}

// DefaultLimits returns the standard limit schedule.
func DefaultLimits() Limits {
	return Limits{
		PerTradePct:   0.10,
		PerStrikePct:  0.15,
		PerEventPct:   0.30,
		TotalPct:      0.75,
		CashBufferPct: 0.25,
		DailyLossPct:  0.05,
		WeeklyLossPct: 0.10,
	}
}

// Evaluator exposes the ledger's atomic evaluate-and-reserve. Approvals
// reserve their notional under the same lock that applies fills.
type Evaluator interface {
	Evaluate(fn func(snap domain.LedgerSnapshot, reserve func(ticker string, cents int64)) error) error
}

// Gate filters signals against the limit schedule.
type Gate struct {
	limits Limits
	ledger Evaluator
	logger *slog.Logger
	now    func() time.Time
}

// NewGate creates a Gate over the given ledger.
func NewGate(limits Limits, ledger Evaluator, logger *slog.Logger) *Gate {
	return &Gate{
		limits: limits,
		ledger: ledger,
		logger: logger.With(slog.String("component", "risk_gate")),
		now:    time.Now,
	}
}

// SetClock overrides the time source, for tests.
func (g *Gate) SetClock(now func() time.Time) {
	g.now = now
}

// Filter evaluates signals in order against a ledger frozen for the whole
// batch. Approved buy-side signals reserve their notional so later signals
// in the batch see it; the executor must Release on fill or cancel.
// Risk-reducing signals pass without consuming limits.
func (g *Gate) Filter(signals []domain.TradeSignal) (approved []domain.TradeSignal, rejections []domain.Rejection) {
	if len(signals) == 0 {
		return nil, nil
	}

	_ = g.ledger.Evaluate(func(snap domain.LedgerSnapshot, reserve func(string, int64)) error {
		bankroll := float64(snap.Capital.BankrollCents)

		// Running totals for notional approved earlier in this batch.
		addedByTicker := make(map[string]int64)
		addedByEvent := make(map[string]int64)
		var addedTotal int64

		for _, sig := range signals {
			if reducing(sig, snap) {
				// Reducing signals skip the limit checks but still reserve,
				// so the router releases every approval the same way.
				reserve(sig.Ticker, sig.NotionalCents())
				approved = append(approved, sig)
				continue
			}

			rule, detail := g.check(sig, snap, bankroll, addedByTicker, addedByEvent, addedTotal)
			if rule != "" {
				rejections = append(rejections, domain.Rejection{
					SignalID: sig.ID,
					Ticker:   sig.Ticker,
					Strategy: sig.Strategy,
					Rule:     rule,
					Detail:   detail,
					At:       g.now(),
				})
				g.logger.Warn("signal rejected",
					slog.String("signal_id", sig.ID),
					slog.String("ticker", sig.Ticker),
					slog.String("strategy", sig.Strategy),
					slog.String("rule", string(rule)),
					slog.String("detail", detail),
				)
				continue
			}

			notional := sig.NotionalCents()
			addedByTicker[sig.Ticker] += notional
			addedByEvent[sig.EventID] += notional
			addedTotal += notional
			reserve(sig.Ticker, notional)
			approved = append(approved, sig)
		}
		return nil
	})

	return approved, rejections
}

// check runs the ordered rules for one risk-increasing signal and returns
// the first rule violated, or "" when all pass.
func (g *Gate) check(
	sig domain.TradeSignal,
	snap domain.LedgerSnapshot,
	bankroll float64,
	addedByTicker, addedByEvent map[string]int64,
	addedTotal int64,
) (domain.RiskRule, string) {
	notional := sig.NotionalCents()

	if limit := int64(g.limits.PerTradePct * bankroll); notional > limit {
		return domain.RulePerTradeCap, fmt.Sprintf("notional %d > cap %d", notional, limit)
	}

	strikeExp := snap.StrikeExposureCents(sig.Ticker) + addedByTicker[sig.Ticker]
	if limit := int64(g.limits.PerStrikePct * bankroll); strikeExp+notional > limit {
		return domain.RulePerStrikeCap, fmt.Sprintf("strike exposure %d + %d > cap %d", strikeExp, notional, limit)
	}

	eventExp := snap.EventExposureCents(sig.EventID) + addedByEvent[sig.EventID]
	if limit := int64(g.limits.PerEventPct * bankroll); eventExp+notional > limit {
		return domain.RulePerEventCap, fmt.Sprintf("event exposure %d + %d > cap %d", eventExp, notional, limit)
	}

	totalExp := snap.ExposureCents() + restingTotal(snap) + addedTotal
	if limit := int64(g.limits.TotalPct * bankroll); totalExp+notional > limit {
		return domain.RuleTotalCap, fmt.Sprintf("total exposure %d + %d > cap %d", totalExp, notional, limit)
	}

	cashAfter := snap.Capital.CashCents - addedTotal - notional
	if floor := int64(g.limits.CashBufferPct * bankroll); cashAfter < floor {
		return domain.RuleCashBuffer, fmt.Sprintf("cash after %d < buffer %d", cashAfter, floor)
	}

	if limit := int64(g.limits.DailyLossPct * bankroll); snap.Capital.DailyPnLCents <= -limit {
		return domain.RuleDailyLoss, fmt.Sprintf("daily pnl %d breaches -%d", snap.Capital.DailyPnLCents, limit)
	}

	if limit := int64(g.limits.WeeklyLossPct * bankroll); snap.Capital.WeeklyPnLCents <= -limit {
		return domain.RuleWeeklyLoss, fmt.Sprintf("weekly pnl %d breaches -%d", snap.Capital.WeeklyPnLCents, limit)
	}

	return "", ""
}

// CheckKillSwitch reports whether all trading must stop: the daily loss
// limit is breached or the venue is not tradeable.
func (g *Gate) CheckKillSwitch(snap domain.LedgerSnapshot, venueTradable bool) (bool, string) {
	if !venueTradable {
		return true, "venue not tradeable"
	}
	limit := int64(g.limits.DailyLossPct * float64(snap.Capital.BankrollCents))
	if snap.Capital.DailyPnLCents <= -limit {
		return true, fmt.Sprintf("daily pnl %d breaches -%d", snap.Capital.DailyPnLCents, limit)
	}
	return false, ""
}

// ShouldFlattenAll reports whether losses have reached twice the daily
// limit, at which point open positions are closed at market.
func (g *Gate) ShouldFlattenAll(snap domain.LedgerSnapshot) bool {
	limit := int64(2 * g.limits.DailyLossPct * float64(snap.Capital.BankrollCents))
	return snap.Capital.DailyPnLCents <= -limit
}

// reducing reports whether a signal shrinks an existing position rather
// than adding risk.
func reducing(sig domain.TradeSignal, snap domain.LedgerSnapshot) bool {
	pos, ok := snap.Positions[sig.Ticker]
	if !ok || pos.Flat() {
		return false
	}

	delta := sig.Contracts
	if sig.Action == domain.ActionSell {
		delta = -delta
	}
	if sig.Side == domain.SideNo {
		delta = -delta
	}

	if pos.NetContracts > 0 && delta < 0 {
		return -delta <= pos.NetContracts
	}
	if pos.NetContracts < 0 && delta > 0 {
		return delta <= -pos.NetContracts
	}
	return false
}

func restingTotal(snap domain.LedgerSnapshot) int64 {
	var total int64
	for _, c := range snap.RestingCents {
		total += c
	}
	return total
}
