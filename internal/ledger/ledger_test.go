package ledger

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

func newLedger(bankroll int64) *Ledger {
	return New(bankroll, slog.New(slog.DiscardHandler))
}

func fill(ticker string, side domain.Side, action domain.OrderAction, price, contracts, fee int64, at time.Time) domain.Fill {
	return domain.Fill{
		OrderID:    "o1",
		Ticker:     ticker,
		EventID:    "EV",
		Side:       side,
		Action:     action,
		PriceCents: price,
		Contracts:  contracts,
		FeeCents:   fee,
		At:         at,
	}
}

func TestApplyBuildsPosition(t *testing.T) {
	l := newLedger(100_000)
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	net := l.Apply(fill("T1", domain.SideYes, domain.ActionBuy, 40, 10, 3, at))
	assert.Equal(t, int64(-3), net, "opening trade realizes only the fee")

	snap := l.Snapshot()
	pos := snap.PositionFor("T1")
	assert.Equal(t, int64(10), pos.NetContracts)
	assert.Equal(t, 40.0, pos.AvgEntryCents)
	assert.Equal(t, int64(100_000-400-3), snap.Capital.CashCents)

	// Averaging up.
	l.Apply(fill("T1", domain.SideYes, domain.ActionBuy, 50, 10, 3, at))
	pos = l.Snapshot().PositionFor("T1")
	assert.Equal(t, int64(20), pos.NetContracts)
	assert.Equal(t, 45.0, pos.AvgEntryCents)
}

func TestPartialReductionRealizes(t *testing.T) {
	l := newLedger(100_000)
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	l.Apply(fill("T1", domain.SideYes, domain.ActionBuy, 40, 10, 3, at))
	net := l.Apply(fill("T1", domain.SideYes, domain.ActionSell, 50, 4, 1, at))
	assert.Equal(t, int64(4*10-1), net)

	pos := l.Snapshot().PositionFor("T1")
	assert.Equal(t, int64(6), pos.NetContracts)
	assert.Equal(t, 40.0, pos.AvgEntryCents, "reductions keep the average entry")
}

func TestNoSideBuyIsShortYes(t *testing.T) {
	l := newLedger(100_000)
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	// Buying NO at 60 is short YES at 40.
	l.Apply(fill("T1", domain.SideNo, domain.ActionBuy, 60, 10, 3, at))
	pos := l.Snapshot().PositionFor("T1")
	assert.Equal(t, int64(-10), pos.NetContracts)
	assert.Equal(t, 40.0, pos.AvgEntryCents)

	// YES drops to 30; buying back 10 YES realizes 10¢ per contract.
	net := l.Apply(fill("T1", domain.SideYes, domain.ActionBuy, 30, 10, 2, at))
	assert.Equal(t, int64(100-2), net)
	assert.True(t, l.Snapshot().PositionFor("T1").Flat())
}

func TestCrossingZero(t *testing.T) {
	l := newLedger(100_000)
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	l.Apply(fill("T1", domain.SideYes, domain.ActionBuy, 40, 6, 2, at))
	net := l.Apply(fill("T1", domain.SideYes, domain.ActionSell, 50, 10, 3, at))
	assert.Equal(t, int64(6*10-3), net, "only the closed contracts realize")

	pos := l.Snapshot().PositionFor("T1")
	assert.Equal(t, int64(-4), pos.NetContracts)
	assert.Equal(t, 50.0, pos.AvgEntryCents, "remainder opens at the fill price")
}

func TestDailyAndWeeklyRollover(t *testing.T) {
	l := newLedger(100_000)
	// Monday of ISO week 10.
	monday := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	clock := monday
	l.SetClock(func() time.Time { return clock })

	l.Apply(fill("T1", domain.SideYes, domain.ActionBuy, 40, 10, 3, monday))
	l.Apply(fill("T1", domain.SideYes, domain.ActionSell, 50, 10, 3, monday))

	snap := l.Snapshot()
	assert.Equal(t, int64(100-6), snap.Capital.DailyPnLCents)
	assert.Equal(t, int64(100-6), snap.Capital.WeeklyPnLCents)

	// Next day: daily resets, weekly carries.
	clock = monday.AddDate(0, 0, 1)
	snap = l.Snapshot()
	assert.Zero(t, snap.Capital.DailyPnLCents)
	assert.Equal(t, int64(94), snap.Capital.WeeklyPnLCents)

	// Next ISO week: weekly resets too.
	clock = monday.AddDate(0, 0, 7)
	snap = l.Snapshot()
	assert.Zero(t, snap.Capital.WeeklyPnLCents)
}

func TestEvaluateReserveRelease(t *testing.T) {
	l := newLedger(100_000)

	err := l.Evaluate(func(snap domain.LedgerSnapshot, reserve func(string, int64)) error {
		assert.Zero(t, snap.StrikeExposureCents("T1"))
		reserve("T1", 500)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, int64(500), l.Snapshot().StrikeExposureCents("T1"))

	l.Release("T1", 500)
	assert.Zero(t, l.Snapshot().StrikeExposureCents("T1"))
}

func TestReconcile(t *testing.T) {
	l := newLedger(100_000)
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	l.Apply(fill("T1", domain.SideYes, domain.ActionBuy, 40, 10, 3, at))

	drift, err := l.Reconcile(map[string]int64{"T1": 10})
	require.NoError(t, err)
	assert.Empty(t, drift)

	drift, err = l.Reconcile(map[string]int64{"T1": 7, "T2": 5})
	assert.ErrorIs(t, err, domain.ErrLedgerDrift)
	assert.Equal(t, int64(-3), drift["T1"])
	assert.Equal(t, int64(5), drift["T2"])

	// A position the venue no longer reports is drift too.
	drift, err = l.Reconcile(map[string]int64{})
	assert.ErrorIs(t, err, domain.ErrLedgerDrift)
	assert.Equal(t, int64(-10), drift["T1"])
}

func TestDailySummary(t *testing.T) {
	l := newLedger(100_000)
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	l.SetClock(func() time.Time { return at })

	l.Apply(fill("T1", domain.SideYes, domain.ActionBuy, 40, 10, 3, at))
	l.Apply(fill("T1", domain.SideYes, domain.ActionSell, 50, 10, 3, at))

	s := l.DailySummary()
	assert.Equal(t, int64(2), s.Trades)
	assert.Equal(t, int64(400+500), s.VolumeCents)
	assert.Equal(t, int64(6), s.FeesCents)
	assert.Equal(t, int64(94), s.RealizedCents)
	assert.Equal(t, int64(100_000-403+497), s.EndCashCents)
}
