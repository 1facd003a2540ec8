package scanner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

func TestClassify(t *testing.T) {
	expiry := time.Date(2026, 3, 1, 17, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		raw    RawMarket
		kind   domain.ContractKind
		strike int64
		cap    int64
	}{
		{
			name: "explicit greater",
			raw: RawMarket{Ticker: "KXBTCD-26MAR0117-T112249.99", EventTicker: "KXBTCD-26MAR0117",
				StrikeType: "greater", FloorStrike: 112249.99, ExpiresAt: expiry, Status: "active"},
			kind:   domain.KindAbove,
			strike: 11224999,
		},
		{
			name: "explicit less",
			raw: RawMarket{Ticker: "KXBTCD-26MAR0117-T112249.99",
				StrikeType: "less", CapStrike: 112249.99, ExpiresAt: expiry, Status: "active"},
			kind:   domain.KindBelow,
			strike: 11224999,
		},
		{
			name: "explicit between",
			raw: RawMarket{Ticker: "KXBTCD-26MAR0117-B112375",
				StrikeType: "between", FloorStrike: 112250, CapStrike: 112500, ExpiresAt: expiry, Status: "active"},
			kind:   domain.KindRange,
			strike: 11225000,
			cap:    11250000,
		},
		{
			name: "strike parsed from ticker",
			raw: RawMarket{Ticker: "KXBTCD-26MAR0117-T112000",
				ExpiresAt: expiry, Status: "active"},
			kind:   domain.KindAbove,
			strike: 11200000,
		},
		{
			name: "up down series",
			raw: RawMarket{Ticker: "KXBTC15M-26MAR011200", Series: "KXBTC15M",
				ExpiresAt: expiry, Status: "active"},
			kind: domain.KindUpDown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Classify(tt.raw, "BTCUSDT")
			require.NoError(t, err)
			assert.Equal(t, tt.kind, m.Kind)
			assert.Equal(t, tt.strike, m.StrikeCents)
			assert.Equal(t, tt.cap, m.CapCents)
			assert.Equal(t, "BTCUSDT", m.Symbol)
			assert.True(t, m.Tradable)
		})
	}
}

func TestClassifyRejects(t *testing.T) {
	_, err := Classify(RawMarket{Ticker: "KXBTCD-NOSTRIKE"}, "BTCUSDT")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = Classify(RawMarket{Ticker: "X", StrikeType: "between", FloorStrike: 2, CapStrike: 1}, "BTCUSDT")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = Classify(RawMarket{Ticker: "X", StrikeType: "spread"}, "BTCUSDT")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestFilter(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mk := func(ticker string, hours float64, vol int64, tradable bool) domain.Market {
		return domain.Market{
			Ticker:    ticker,
			ExpiresAt: now.Add(time.Duration(hours * float64(time.Hour))),
			Volume24h: vol,
			Tradable:  tradable,
		}
	}

	markets := []domain.Market{
		mk("KEEP", 4, 20000, true),
		mk("EXPIRED", -1, 20000, true),
		mk("TOO_FAR", 30, 20000, true),
		mk("THIN", 4, 100, true),
		mk("HALTED", 4, 20000, false),
	}

	got := Filter(markets, now, 10000, 24)
	require.Len(t, got, 1)
	assert.Equal(t, "KEEP", got[0].Ticker)
}

func TestGroupAndNearestStrikes(t *testing.T) {
	markets := []domain.Market{
		{Ticker: "A-T3", EventID: "A", StrikeCents: 300},
		{Ticker: "A-T1", EventID: "A", StrikeCents: 100},
		{Ticker: "A-T2", EventID: "A", StrikeCents: 200},
		{Ticker: "B-T9", EventID: "B", StrikeCents: 900},
	}

	groups := GroupByEvent(markets)
	require.Len(t, groups, 2)
	require.Len(t, groups["A"], 3)
	assert.Equal(t, "A-T1", groups["A"][0].Ticker, "ladder sorted by strike")

	near := NearestStrikes(groups["A"], 2.1, 1)
	require.Len(t, near, 3)
	assert.Equal(t, "A-T1", near[0].Ticker)
	assert.Equal(t, "A-T3", near[2].Ticker)

	// ATM at the ladder edge clips the wing.
	near = NearestStrikes(groups["A"], 0.5, 1)
	require.Len(t, near, 2)
	assert.Equal(t, "A-T1", near[0].Ticker)

	assert.Nil(t, NearestStrikes(nil, 1, 1))
}
