package strategy

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/kalshibot/internal/domain"
	"github.com/alanyoungcy/kalshibot/internal/fees"
	"github.com/alanyoungcy/kalshibot/internal/pricing"
)

// Shared fakes for strategy tests.

var testNow = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

type fakeBooks map[string]domain.BookSnapshot

func (f fakeBooks) Snapshot(ticker string) (domain.BookSnapshot, error) {
	snap, ok := f[ticker]
	if !ok {
		return domain.BookSnapshot{}, fmt.Errorf("book: %s: %w", ticker, domain.ErrNotFound)
	}
	return snap, nil
}

type fakeSpot struct {
	price float64
	vol   float64
	mom   float64
	err   error
}

func (f *fakeSpot) Last(string) (float64, time.Time, error) {
	if f.err != nil {
		return 0, time.Time{}, f.err
	}
	return f.price, testNow, nil
}

func (f *fakeSpot) Volatility(string) float64              { return f.vol }
func (f *fakeSpot) Momentum(string, time.Duration) float64 { return f.mom }

type fakeMarkets []domain.Market

func (f fakeMarkets) Universe() []domain.Market { return f }

type fakeLedger domain.LedgerSnapshot

func (f fakeLedger) Snapshot() domain.LedgerSnapshot { return domain.LedgerSnapshot(f) }

func testDeps(books fakeBooks, spot *fakeSpot, markets fakeMarkets, led fakeLedger) Deps {
	return Deps{
		Books:   books,
		Spot:    spot,
		Markets: markets,
		Ledger:  led,
		Pricer:  pricing.NewModel(),
		Fees:    fees.DefaultModel(),
		Symbol:  "BTCUSDT",
		Now:     func() time.Time { return testNow },
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// book builds a snapshot with a single level per side; zero contracts
// omits the side.
func bookWith(ticker string, yesBid, yesBidSize, noBid, noBidSize int64) domain.BookSnapshot {
	snap := domain.BookSnapshot{Ticker: ticker, UpdatedAt: testNow}
	if yesBidSize > 0 {
		snap.YesBids = []domain.BookLevel{{PriceCents: yesBid, Contracts: yesBidSize}}
	}
	if noBidSize > 0 {
		snap.NoBids = []domain.BookLevel{{PriceCents: noBid, Contracts: noBidSize}}
	}
	return snap
}

func aboveMarket(ticker, event string, strikeDollars float64, hoursOut float64) domain.Market {
	return domain.Market{
		Ticker:      ticker,
		EventID:     event,
		Symbol:      "BTCUSDT",
		Kind:        domain.KindAbove,
		StrikeCents: int64(strikeDollars * 100),
		ExpiresAt:   testNow.Add(time.Duration(hoursOut * float64(time.Hour))),
		Volume24h:   20_000,
		Tradable:    true,
	}
}
