package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

func upDownMarket(ticker, event string) domain.Market {
	return domain.Market{
		Ticker:    ticker,
		EventID:   event,
		Symbol:    "BTCUSDT",
		Kind:      domain.KindUpDown,
		ExpiresAt: testNow.Add(10 * time.Minute),
		Volume24h: 20_000,
		Tradable:  true,
	}
}

func TestFifteenMinBuysMomentumSide(t *testing.T) {
	// Momentum 1% scaled by 20 clamps at the max bias: probUp 0.65.
	// YES asks at 55 with fair 65, leaving 82 total edge after the
	// 18-cent taker fee on ten contracts.
	books := fakeBooks{
		"UD1": bookWith("UD1", 40, 30, 45, 30),
	}
	markets := fakeMarkets{upDownMarket("UD1", "EV1")}
	deps := testDeps(books, &fakeSpot{price: 105_000, vol: 0.65, mom: 0.01}, markets, fakeLedger{})

	s := NewFifteenMin(DefaultFifteenMinConfig(), deps, testLogger())
	signals, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, signals, 1)

	sig := signals[0]
	assert.Equal(t, "fifteen_min", sig.Strategy)
	assert.Equal(t, domain.SideYes, sig.Side)
	assert.Equal(t, domain.TIFImmediateOrCancel, sig.TIF)
	assert.Equal(t, int64(55), sig.PriceCents)
	assert.Equal(t, int64(10), sig.Contracts)
}

func TestFifteenMinBuysNoOnDownMomentum(t *testing.T) {
	// Negative momentum flips the bias: probUp 0.35, NO fair 65 against a
	// derived NO ask of 55.
	books := fakeBooks{
		"UD1": bookWith("UD1", 45, 30, 40, 30),
	}
	markets := fakeMarkets{upDownMarket("UD1", "EV1")}
	deps := testDeps(books, &fakeSpot{price: 105_000, vol: 0.65, mom: -0.01}, markets, fakeLedger{})

	s := NewFifteenMin(DefaultFifteenMinConfig(), deps, testLogger())
	signals, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Equal(t, domain.SideNo, signals[0].Side)
	assert.Equal(t, int64(55), signals[0].PriceCents)
}

func TestFifteenMinCooldownBlocksReentry(t *testing.T) {
	books := fakeBooks{
		"UD1": bookWith("UD1", 40, 30, 45, 30),
	}
	markets := fakeMarkets{upDownMarket("UD1", "EV1")}
	deps := testDeps(books, &fakeSpot{price: 105_000, vol: 0.65, mom: 0.01}, markets, fakeLedger{})

	s := NewFifteenMin(DefaultFifteenMinConfig(), deps, testLogger())

	first, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, second, "cooldown holds until thirty seconds pass")
}

func TestFifteenMinNoEdgeNoTrade(t *testing.T) {
	// Flat momentum: fair is the 50 coin flip, asks at 55 on both sides.
	books := fakeBooks{
		"UD1": bookWith("UD1", 45, 30, 45, 30),
	}
	markets := fakeMarkets{upDownMarket("UD1", "EV1")}
	deps := testDeps(books, &fakeSpot{price: 105_000, vol: 0.65, mom: 0}, markets, fakeLedger{})

	s := NewFifteenMin(DefaultFifteenMinConfig(), deps, testLogger())
	signals, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestFifteenMinSkipsOpenPositions(t *testing.T) {
	books := fakeBooks{
		"UD1": bookWith("UD1", 40, 30, 45, 30),
	}
	markets := fakeMarkets{upDownMarket("UD1", "EV1")}
	led := fakeLedger{Positions: map[string]domain.Position{
		"UD1": {Ticker: "UD1", NetContracts: 5, AvgEntryCents: 50},
	}}
	deps := testDeps(books, &fakeSpot{price: 105_000, vol: 0.65, mom: 0.01}, markets, led)

	s := NewFifteenMin(DefaultFifteenMinConfig(), deps, testLogger())
	signals, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, signals)
}
