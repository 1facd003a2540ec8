// Package ledger keeps the authoritative position and P&L state. A single
// goroutine owns mutation; everything else reads immutable snapshots. Risk
// evaluation runs under the same lock as fill application, so a signal is
// never approved against a ledger that a concurrent fill is changing.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// Ledger tracks positions on the YES axis, free cash, and realized P&L with
// UTC-day and ISO-week rollover.
type Ledger struct {
	mu        sync.Mutex
	positions map[string]*domain.Position
	resting   map[string]int64 // ticker -> open resting notional, cents
	bankroll  int64
	cash      int64

	day           time.Time // UTC midnight of the current day
	dailyRealized int64
	tradesToday   int64
	volumeToday   int64
	feesToday     int64

	weekYear       int
	week           int
	weeklyRealized int64

	now    func() time.Time
	logger *slog.Logger

	// OnApply, when set, is invoked after every fill with the realized
	// P&L delta (price realization minus the fill's fee).
	OnApply func(domain.Fill, int64)
}

// New creates a Ledger starting with the full bankroll in cash.
func New(bankrollCents int64, logger *slog.Logger) *Ledger {
	return &Ledger{
		positions: make(map[string]*domain.Position),
		resting:   make(map[string]int64),
		bankroll:  bankrollCents,
		cash:      bankrollCents,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "ledger")),
	}
}

// SetClock overrides the time source, for tests.
func (l *Ledger) SetClock(now func() time.Time) {
	l.now = now
}

// Run consumes fills until the channel closes or the context ends. This is
// the only goroutine that should call Apply in production.
func (l *Ledger) Run(ctx context.Context, fills <-chan domain.Fill) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-fills:
			if !ok {
				return nil
			}
			l.Apply(f)
		}
	}
}

// Apply folds one fill into the ledger and returns the realized P&L delta
// net of the fill's fee. NO-side fills are mapped onto the YES axis first:
// buying NO at p is short YES at 100−p.
func (l *Ledger) Apply(f domain.Fill) int64 {
	l.mu.Lock()

	l.rollover(f.At)

	delta, price := f.YesEquivalent()
	pos, ok := l.positions[f.Ticker]
	if !ok {
		pos = &domain.Position{Ticker: f.Ticker, EventID: f.EventID}
		l.positions[f.Ticker] = pos
	}

	realized := applyDelta(pos, delta, float64(price))
	pos.RealizedCents += realized
	pos.UpdatedAt = f.At
	if pos.Flat() {
		pos.AvgEntryCents = 0
	}

	l.cash -= f.CostCents()

	net := realized - f.FeeCents
	l.dailyRealized += net
	l.weeklyRealized += net
	l.tradesToday++
	l.volumeToday += f.PriceCents * f.Contracts
	l.feesToday += f.FeeCents

	onApply := l.OnApply
	l.mu.Unlock()

	l.logger.Debug("fill applied",
		slog.String("ticker", f.Ticker),
		slog.String("side", string(f.Side)),
		slog.String("action", string(f.Action)),
		slog.Int64("price_cents", f.PriceCents),
		slog.Int64("contracts", f.Contracts),
		slog.Int64("realized_cents", net),
	)

	if onApply != nil {
		onApply(f, net)
	}
	return net
}

// applyDelta folds a signed YES-equivalent delta into the position and
// returns the realized P&L in cents (before fees).
func applyDelta(pos *domain.Position, delta int64, price float64) int64 {
	if delta == 0 {
		return 0
	}

	net := pos.NetContracts

	// Same direction (or flat): size up and recompute the average entry.
	if net == 0 || sameSign(net, delta) {
		oldAbs := abs(net)
		newAbs := oldAbs + abs(delta)
		pos.AvgEntryCents = (pos.AvgEntryCents*float64(oldAbs) + price*float64(abs(delta))) / float64(newAbs)
		pos.NetContracts = net + delta
		return 0
	}

	// Reduction. Longs realize price − entry, shorts entry − price.
	closed := abs(delta)
	if closed > abs(net) {
		closed = abs(net)
	}
	perContract := price - pos.AvgEntryCents
	if net < 0 {
		perContract = -perContract
	}
	realized := int64(perContract*float64(closed) + roundHalf(perContract))

	pos.NetContracts = net + delta
	if sameSign(pos.NetContracts, delta) && pos.NetContracts != 0 {
		// Crossed through zero; the remainder opens at the fill price.
		pos.AvgEntryCents = price
	}
	return realized
}

// Evaluate runs fn while holding the apply lock. The risk gate uses this so
// its decision and any resting-notional reservations are atomic with respect
// to fill application. reserve must only be called from inside fn.
func (l *Ledger) Evaluate(fn func(snap domain.LedgerSnapshot, reserve func(ticker string, cents int64)) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	reserve := func(ticker string, cents int64) {
		l.resting[ticker] += cents
	}
	return fn(l.snapshotLocked(), reserve)
}

// Release returns reserved resting notional when an order fills, cancels,
// or is rejected.
func (l *Ledger) Release(ticker string, cents int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.resting[ticker] -= cents
	if l.resting[ticker] <= 0 {
		delete(l.resting, ticker)
	}
}

// Snapshot returns an immutable copy of the ledger.
func (l *Ledger) Snapshot() domain.LedgerSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

func (l *Ledger) snapshotLocked() domain.LedgerSnapshot {
	l.rollover(l.now())

	positions := make(map[string]domain.Position, len(l.positions))
	for t, p := range l.positions {
		if !p.Flat() || p.RealizedCents != 0 {
			positions[t] = *p
		}
	}
	resting := make(map[string]int64, len(l.resting))
	for t, c := range l.resting {
		resting[t] = c
	}
	return domain.LedgerSnapshot{
		Positions:    positions,
		RestingCents: resting,
		Capital: domain.CapitalState{
			BankrollCents:  l.bankroll,
			CashCents:      l.cash,
			DailyPnLCents:  l.dailyRealized,
			WeeklyPnLCents: l.weeklyRealized,
		},
		TakenAt: l.now(),
	}
}

// DailySummary returns the current UTC day's activity.
func (l *Ledger) DailySummary() domain.DailySummary {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rollover(l.now())
	return domain.DailySummary{
		Day:           l.day,
		Trades:        l.tradesToday,
		VolumeCents:   l.volumeToday,
		FeesCents:     l.feesToday,
		RealizedCents: l.dailyRealized,
		EndCashCents:  l.cash,
	}
}

// Reconcile compares the ledger against the venue's authoritative position
// view. It returns the per-ticker drift (authoritative minus ledger) and
// domain.ErrLedgerDrift when any ticker disagrees.
func (l *Ledger) Reconcile(authoritative map[string]int64) (map[string]int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	drift := make(map[string]int64)
	for ticker, venueNet := range authoritative {
		var ours int64
		if p, ok := l.positions[ticker]; ok {
			ours = p.NetContracts
		}
		if venueNet != ours {
			drift[ticker] = venueNet - ours
		}
	}
	for ticker, p := range l.positions {
		if p.Flat() {
			continue
		}
		if _, ok := authoritative[ticker]; !ok {
			drift[ticker] = -p.NetContracts
		}
	}

	if len(drift) == 0 {
		return nil, nil
	}

	tickers := make([]string, 0, len(drift))
	for t := range drift {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)
	return drift, fmt.Errorf("ledger: drift on %s: %w", strings.Join(tickers, ","), domain.ErrLedgerDrift)
}

// rollover resets daily counters when the UTC day changes and weekly
// realized P&L when the ISO week changes. Caller must hold l.mu.
func (l *Ledger) rollover(at time.Time) {
	at = at.UTC()
	day := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)
	if !day.Equal(l.day) {
		if !l.day.IsZero() && l.dailyRealized != 0 {
			l.logger.Info("daily rollover",
				slog.String("day", l.day.Format("2006-01-02")),
				slog.Int64("realized_cents", l.dailyRealized),
			)
		}
		l.day = day
		l.dailyRealized = 0
		l.tradesToday = 0
		l.volumeToday = 0
		l.feesToday = 0
	}

	year, week := at.ISOWeek()
	if year != l.weekYear || week != l.week {
		l.weekYear = year
		l.week = week
		l.weeklyRealized = 0
	}
}

func sameSign(a, b int64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func roundHalf(perContract float64) float64 {
	if perContract < 0 {
		return -0.5
	}
	return 0.5
}
