package strategy

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

func TestMomentumFindsDeepITM(t *testing.T) {
	// Spot 5% through the strike: fair well above 0.90 while the book
	// still offers YES at 91.
	books := fakeBooks{
		"BTC-T100000": bookWith("BTC-T100000", 89, 40, 9, 50),
	}
	markets := fakeMarkets{aboveMarket("BTC-T100000", "EV1", 100_000, 4)}
	deps := testDeps(books, &fakeSpot{price: 105_000, vol: 0.65}, markets, fakeLedger{})

	s := NewMomentum(DefaultMomentumConfig(), deps, testLogger())
	signals, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, signals, 1)

	sig := signals[0]
	assert.Equal(t, "momentum", sig.Strategy)
	assert.Equal(t, domain.SideYes, sig.Side)
	assert.Equal(t, domain.ActionBuy, sig.Action)
	assert.Equal(t, domain.TIFPostOnly, sig.TIF)
	assert.Equal(t, int64(90), sig.PriceCents, "posts one cent above the best bid")
	assert.NotEmpty(t, sig.ID)
	assert.Equal(t, testNow.Add(DefaultMomentumConfig().SignalTTL), sig.ExpiresAt)
}

func TestMomentumRejections(t *testing.T) {
	cfg := DefaultMomentumConfig()

	tests := []struct {
		name   string
		book   domain.BookSnapshot
		market domain.Market
		ledger fakeLedger
	}{
		{
			name:   "ask above ceiling",
			book:   bookWith("T", 93, 40, 5, 50), // yes ask 95
			market: aboveMarket("T", "EV", 100_000, 4),
		},
		{
			name:   "thin ask depth",
			book:   bookWith("T", 89, 40, 9, 10),
			market: aboveMarket("T", "EV", 100_000, 4),
		},
		{
			name:   "too far from settlement",
			book:   bookWith("T", 89, 40, 9, 50),
			market: aboveMarket("T", "EV", 100_000, 12),
		},
		{
			name:   "fair below threshold",
			book:   bookWith("T", 50, 40, 45, 50),
			market: aboveMarket("T", "EV", 105_500, 4), // roughly at the money
		},
		{
			name:   "already positioned",
			book:   bookWith("T", 89, 40, 9, 50),
			market: aboveMarket("T", "EV", 100_000, 4),
			ledger: fakeLedger{Positions: map[string]domain.Position{
				"T": {Ticker: "T", NetContracts: 10, AvgEntryCents: 88},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := testDeps(fakeBooks{"T": tt.book}, &fakeSpot{price: 105_000, vol: 0.65},
				fakeMarkets{tt.market}, tt.ledger)
			s := NewMomentum(cfg, deps, testLogger())
			signals, err := s.Scan(context.Background())
			require.NoError(t, err)
			assert.Empty(t, signals)
		})
	}
}

func TestMomentumEdgeGatesOnQuotedAsk(t *testing.T) {
	// Fair ~92 with the ask at 93: no edge at the quoted ask, even though
	// posting above the 80 bid would leave a wide paper margin.
	books := fakeBooks{
		"BTC-T100000": bookWith("BTC-T100000", 80, 40, 7, 50),
	}
	markets := fakeMarkets{aboveMarket("BTC-T100000", "EV1", 100_000, 4)}
	deps := testDeps(books, &fakeSpot{price: 102_000, vol: 0.65}, markets, fakeLedger{})

	s := NewMomentum(DefaultMomentumConfig(), deps, testLogger())
	signals, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, signals, "entry edge is measured against the ask, not the posted limit")
}

func TestMomentumRanksAndCaps(t *testing.T) {
	// Eight qualifying strikes with edges improving as the ask cheapens;
	// only the configured TopN best make it out.
	books := fakeBooks{}
	markets := fakeMarkets{}
	for i := 0; i < 8; i++ {
		ticker := fmt.Sprintf("BTC-T%d", i)
		noBid := int64(9 + i) // yes ask 91 − i... inverted: higher noBid means lower ask
		books[ticker] = bookWith(ticker, 80, 40, noBid, 50)
		markets = append(markets, aboveMarket(ticker, "EV1", 100_000, 4))
	}
	deps := testDeps(books, &fakeSpot{price: 105_000, vol: 0.65}, markets, fakeLedger{})

	s := NewMomentum(DefaultMomentumConfig(), deps, testLogger())
	signals, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Len(t, signals, DefaultMomentumConfig().TopN)
}

func TestMomentumStaleSpotSkipsScan(t *testing.T) {
	deps := testDeps(fakeBooks{}, &fakeSpot{err: domain.ErrStaleData}, fakeMarkets{}, fakeLedger{})
	s := NewMomentum(DefaultMomentumConfig(), deps, testLogger())

	_, err := s.Scan(context.Background())
	assert.ErrorIs(t, err, domain.ErrStaleData)
}
