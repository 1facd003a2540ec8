// Package strategy contains the trading strategies and the engine that runs
// them. Each strategy scans the market on its own cadence and emits trade
// signals; the executor downstream owns dedup, risk checks, and placement.
package strategy

import (
	"context"
	"time"

	"github.com/alanyoungcy/kalshibot/internal/domain"
	"github.com/alanyoungcy/kalshibot/internal/fees"
	"github.com/alanyoungcy/kalshibot/internal/pricing"
)

// Strategy is the contract every trading strategy implements. Scan is called
// on the strategy's cadence and returns zero or more signals; it must not
// block on downstream work.
type Strategy interface {
	Name() string
	Interval() time.Duration
	Scan(ctx context.Context) ([]domain.TradeSignal, error)
	Close() error
}

// BookSource provides current order books.
type BookSource interface {
	Snapshot(ticker string) (domain.BookSnapshot, error)
}

// SpotSource provides the underlying spot state.
type SpotSource interface {
	Last(symbol string) (float64, time.Time, error)
	Volatility(symbol string) float64
	Momentum(symbol string, lookback time.Duration) float64
}

// MarketSource provides the tradable universe.
type MarketSource interface {
	Universe() []domain.Market
}

// LedgerSource provides read access to current positions and capital.
type LedgerSource interface {
	Snapshot() domain.LedgerSnapshot
}

// Deps bundles the collaborators handed to every strategy.
type Deps struct {
	Books   BookSource
	Spot    SpotSource
	Markets MarketSource
	Ledger  LedgerSource
	Pricer  pricing.Model
	Fees    fees.Model
	Symbol  string // underlying spot symbol, e.g. "BTCUSDT"
	Now     func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}
