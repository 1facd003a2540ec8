package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

func rangeMarket(ticker, event string, floorDollars, capDollars float64) domain.Market {
	return domain.Market{
		Ticker:      ticker,
		EventID:     event,
		Symbol:      "BTCUSDT",
		Kind:        domain.KindRange,
		StrikeCents: int64(floorDollars * 100),
		CapCents:    int64(capDollars * 100),
		ExpiresAt:   testNow.Add(4 * time.Hour),
		Volume24h:   20_000,
		Tradable:    true,
	}
}

type staleBooks struct {
	fakeBooks
	stale map[string]bool
}

func (f staleBooks) Snapshot(ticker string) (domain.BookSnapshot, error) {
	if f.stale[ticker] {
		return domain.BookSnapshot{}, domain.ErrStaleData
	}
	return f.fakeBooks.Snapshot(ticker)
}

func TestArbitrageMonotonicity(t *testing.T) {
	// The 101k strike bids 50 while the 100k strike asks 40: buy the cheap
	// YES and the expensive strike's NO.
	books := fakeBooks{
		"BTC-T100000": bookWith("BTC-T100000", 0, 0, 60, 30),
		"BTC-T101000": bookWith("BTC-T101000", 50, 40, 0, 0),
	}
	markets := fakeMarkets{
		aboveMarket("BTC-T100000", "EV1", 100_000, 4),
		aboveMarket("BTC-T101000", "EV1", 101_000, 4),
	}
	deps := testDeps(books, &fakeSpot{price: 100_500, vol: 0.65}, markets, fakeLedger{})

	s := NewArbitrage(DefaultArbitrageConfig(), deps, testLogger())
	signals, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, signals, 2)

	assert.Equal(t, signals[0].LegGroupID, signals[1].LegGroupID)
	for _, sig := range signals {
		assert.Equal(t, "arbitrage", sig.Strategy)
		assert.Equal(t, domain.TIFImmediateOrCancel, sig.TIF)
		assert.Equal(t, domain.LegPolicyAllOrNone, sig.LegPolicy)
		assert.Equal(t, int64(30), sig.Contracts, "sized to the thinner leg")
		assert.Equal(t, 2, sig.LegCount)
	}

	assert.Equal(t, "BTC-T100000", signals[0].Ticker)
	assert.Equal(t, domain.SideYes, signals[0].Side)
	assert.Equal(t, int64(40), signals[0].PriceCents)

	assert.Equal(t, "BTC-T101000", signals[1].Ticker)
	assert.Equal(t, domain.SideNo, signals[1].Side)
	assert.Equal(t, int64(50), signals[1].PriceCents, "NO at the complement of the high bid")
}

func TestArbitrageMonotonicityNoCross(t *testing.T) {
	// High bid 40 equals the low ask: nothing locked in.
	books := fakeBooks{
		"BTC-T100000": bookWith("BTC-T100000", 0, 0, 60, 30),
		"BTC-T101000": bookWith("BTC-T101000", 40, 40, 0, 0),
	}
	markets := fakeMarkets{
		aboveMarket("BTC-T100000", "EV1", 100_000, 4),
		aboveMarket("BTC-T101000", "EV1", 101_000, 4),
	}
	deps := testDeps(books, &fakeSpot{price: 100_500, vol: 0.65}, markets, fakeLedger{})

	s := NewArbitrage(DefaultArbitrageConfig(), deps, testLogger())
	signals, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestArbitrageParity(t *testing.T) {
	// YES asks 40 and NO asks 50 on the same strike: 90 buys a sure dollar.
	books := fakeBooks{
		"BTC-T100000": bookWith("BTC-T100000", 50, 35, 60, 35),
	}
	markets := fakeMarkets{aboveMarket("BTC-T100000", "EV1", 100_000, 4)}
	deps := testDeps(books, &fakeSpot{price: 100_500, vol: 0.65}, markets, fakeLedger{})

	s := NewArbitrage(DefaultArbitrageConfig(), deps, testLogger())
	signals, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, signals, 2)

	assert.Equal(t, signals[0].LegGroupID, signals[1].LegGroupID)
	assert.Equal(t, domain.SideYes, signals[0].Side)
	assert.Equal(t, int64(40), signals[0].PriceCents)
	assert.Equal(t, domain.SideNo, signals[1].Side)
	assert.Equal(t, int64(50), signals[1].PriceCents)
	assert.Equal(t, int64(35), signals[0].Contracts)
}

func TestArbitrageRangeSum(t *testing.T) {
	// Three adjacent ranges ask 30 each: 90 for a partition paying 100.
	books := fakeBooks{
		"R1": bookWith("R1", 0, 0, 70, 40),
		"R2": bookWith("R2", 0, 0, 70, 40),
		"R3": bookWith("R3", 0, 0, 70, 40),
	}
	markets := fakeMarkets{
		rangeMarket("R1", "EV1", 100_000, 101_000),
		rangeMarket("R2", "EV1", 101_000, 102_000),
		rangeMarket("R3", "EV1", 102_000, 103_000),
	}
	deps := testDeps(books, &fakeSpot{price: 101_500, vol: 0.65}, markets, fakeLedger{})

	s := NewArbitrage(DefaultArbitrageConfig(), deps, testLogger())
	signals, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, signals, 3)

	group := signals[0].LegGroupID
	for _, sig := range signals {
		assert.Equal(t, group, sig.LegGroupID)
		assert.Equal(t, domain.SideYes, sig.Side)
		assert.Equal(t, int64(30), sig.PriceCents)
		assert.Equal(t, int64(40), sig.Contracts)
		assert.Equal(t, 3, sig.LegCount)
	}
}

func TestArbitrageRangeSumMissingAsk(t *testing.T) {
	// A leg with no derived ask invalidates the whole partition.
	books := fakeBooks{
		"R1": bookWith("R1", 0, 0, 70, 40),
		"R2": bookWith("R2", 0, 0, 0, 0),
		"R3": bookWith("R3", 0, 0, 70, 40),
	}
	markets := fakeMarkets{
		rangeMarket("R1", "EV1", 100_000, 101_000),
		rangeMarket("R2", "EV1", 101_000, 102_000),
		rangeMarket("R3", "EV1", 102_000, 103_000),
	}
	deps := testDeps(books, &fakeSpot{price: 101_500, vol: 0.65}, markets, fakeLedger{})

	s := NewArbitrage(DefaultArbitrageConfig(), deps, testLogger())
	signals, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestArbitrageRangeSumGapBreaksPartition(t *testing.T) {
	books := fakeBooks{
		"R1": bookWith("R1", 0, 0, 70, 40),
		"R3": bookWith("R3", 0, 0, 70, 40),
	}
	markets := fakeMarkets{
		rangeMarket("R1", "EV1", 100_000, 101_000),
		rangeMarket("R3", "EV1", 102_000, 103_000),
	}
	deps := testDeps(books, &fakeSpot{price: 101_500, vol: 0.65}, markets, fakeLedger{})

	s := NewArbitrage(DefaultArbitrageConfig(), deps, testLogger())
	signals, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestArbitrageStaleBookPoisonsEvent(t *testing.T) {
	books := staleBooks{
		fakeBooks: fakeBooks{
			"BTC-T100000": bookWith("BTC-T100000", 0, 0, 60, 30),
			"BTC-T101000": bookWith("BTC-T101000", 50, 40, 0, 0),
		},
		stale: map[string]bool{"BTC-T101000": true},
	}
	markets := fakeMarkets{
		aboveMarket("BTC-T100000", "EV1", 100_000, 4),
		aboveMarket("BTC-T101000", "EV1", 101_000, 4),
	}
	deps := testDeps(nil, &fakeSpot{price: 100_500, vol: 0.65}, markets, fakeLedger{})
	deps.Books = books

	s := NewArbitrage(DefaultArbitrageConfig(), deps, testLogger())
	signals, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, signals)
}
