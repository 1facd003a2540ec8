package book

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

func seedManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(0)
	m.ApplySnapshot("BTC-T100000",
		[]domain.BookLevel{{PriceCents: 40, Contracts: 100}, {PriceCents: 38, Contracts: 250}},
		[]domain.BookLevel{{PriceCents: 57, Contracts: 80}, {PriceCents: 55, Contracts: 300}},
	)
	return m
}

func TestDerivedAsks(t *testing.T) {
	m := seedManager(t)

	snap, err := m.Snapshot("BTC-T100000")
	require.NoError(t, err)

	bid, ok := snap.BestYesBid()
	require.True(t, ok)
	assert.Equal(t, int64(40), bid)

	// yes_ask = 100 − best_no_bid = 100 − 57 = 43
	ask, ok := snap.BestYesAsk()
	require.True(t, ok)
	assert.Equal(t, int64(43), ask)

	noAsk, ok := snap.BestNoAsk()
	require.True(t, ok)
	assert.Equal(t, int64(60), noAsk)

	spread, ok := snap.SpreadCents()
	require.True(t, ok)
	assert.Equal(t, int64(3), spread)

	// Depth at the derived yes ask is the size resting at the best NO bid.
	assert.Equal(t, int64(80), snap.AskDepth(domain.SideYes))
	assert.Equal(t, int64(100), snap.AskDepth(domain.SideNo))
}

func TestEmptySideMeansNoAsk(t *testing.T) {
	m := NewManager(0)
	m.ApplySnapshot("BTC-T100000",
		[]domain.BookLevel{{PriceCents: 40, Contracts: 100}},
		nil,
	)

	snap, err := m.Snapshot("BTC-T100000")
	require.NoError(t, err)

	_, ok := snap.BestYesAsk()
	assert.False(t, ok, "empty NO side must not imply an ask at 100")

	_, ok = snap.BestNoBid()
	assert.False(t, ok)

	_, ok = snap.SpreadCents()
	assert.False(t, ok)

	noAsk, ok := snap.BestNoAsk()
	require.True(t, ok)
	assert.Equal(t, int64(60), noAsk)
}

func TestApplyDelta(t *testing.T) {
	m := seedManager(t)

	// Improve the best NO bid; the derived YES ask tightens.
	m.ApplyDelta("BTC-T100000", domain.SideNo, 58, 50)
	snap, err := m.Snapshot("BTC-T100000")
	require.NoError(t, err)
	ask, ok := snap.BestYesAsk()
	require.True(t, ok)
	assert.Equal(t, int64(42), ask)

	// Zero size removes the level.
	m.ApplyDelta("BTC-T100000", domain.SideNo, 58, 0)
	m.ApplyDelta("BTC-T100000", domain.SideNo, 57, 0)
	snap, err = m.Snapshot("BTC-T100000")
	require.NoError(t, err)
	ask, ok = snap.BestYesAsk()
	require.True(t, ok)
	assert.Equal(t, int64(45), ask)

	// Deltas for unknown tickers are dropped.
	m.ApplyDelta("UNKNOWN", domain.SideYes, 50, 10)
	_, err = m.Snapshot("UNKNOWN")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestApplyDepthChange(t *testing.T) {
	m := seedManager(t)

	// +20 on the best NO bid, then drain it below zero.
	m.ApplyDepthChange("BTC-T100000", domain.SideNo, 57, 20)
	snap, err := m.Snapshot("BTC-T100000")
	require.NoError(t, err)
	assert.Equal(t, int64(100), snap.AskDepth(domain.SideYes))

	m.ApplyDepthChange("BTC-T100000", domain.SideNo, 57, -150)
	snap, err = m.Snapshot("BTC-T100000")
	require.NoError(t, err)
	ask, ok := snap.BestYesAsk()
	require.True(t, ok)
	assert.Equal(t, int64(45), ask, "drained level is gone")
}

func TestSnapshotIsolation(t *testing.T) {
	m := seedManager(t)

	snap, err := m.Snapshot("BTC-T100000")
	require.NoError(t, err)
	snap.YesBids[0].Contracts = 1

	again, err := m.Snapshot("BTC-T100000")
	require.NoError(t, err)
	assert.Equal(t, int64(100), again.YesBids[0].Contracts)
}

func TestStaleness(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := NewManager(5 * time.Second)
	m.SetClock(func() time.Time { return now })

	m.ApplySnapshot("BTC-T100000", []domain.BookLevel{{PriceCents: 40, Contracts: 10}}, nil)

	_, err := m.Snapshot("BTC-T100000")
	assert.NoError(t, err)

	now = now.Add(6 * time.Second)
	snap, err := m.Snapshot("BTC-T100000")
	assert.ErrorIs(t, err, domain.ErrStaleData)
	// The stale snapshot is still returned for diagnostics.
	assert.NotEmpty(t, snap.YesBids)

	// A delta refreshes the clock.
	m.ApplyDelta("BTC-T100000", domain.SideYes, 41, 5)
	_, err = m.Snapshot("BTC-T100000")
	assert.NoError(t, err)
}
