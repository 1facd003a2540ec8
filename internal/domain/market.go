// Package domain holds the core types shared across the bot: markets, books,
// signals, orders, fills, positions, and the store/cache interfaces their
// collaborators implement. Prices are integer cents in [1, 99]; dollar
// amounts are int64 cents.
package domain

import "time"

// ContractKind classifies how a binary contract settles against spot.
type ContractKind string

const (
	KindAbove  ContractKind = "above"   // YES pays when spot settles above strike
	KindBelow  ContractKind = "below"   // YES pays when spot settles below strike
	KindRange  ContractKind = "range"   // YES pays when spot settles in [strike, cap)
	KindUpDown ContractKind = "up_down" // YES pays when spot closes above the period open
)

// Market is venue metadata for a single binary contract.
type Market struct {
	Ticker      string
	EventID     string // groups strikes on the same underlying and expiry
	Symbol      string // underlying spot symbol, e.g. "BTCUSDT"
	Kind        ContractKind
	StrikeCents int64 // strike in underlying cents; lower bound for range markets
	CapCents    int64 // upper bound for range markets, 0 otherwise
	ExpiresAt   time.Time
	Volume24h   int64 // contracts traded in the trailing 24h
	Tradable    bool
}

// HoursToExpiry returns the time remaining until settlement in hours.
// Expired markets return 0.
func (m Market) HoursToExpiry(now time.Time) float64 {
	d := m.ExpiresAt.Sub(now)
	if d <= 0 {
		return 0
	}
	return d.Hours()
}

// Strike returns the strike in underlying dollars.
func (m Market) Strike() float64 {
	return float64(m.StrikeCents) / 100
}

// Cap returns the range upper bound in underlying dollars.
func (m Market) Cap() float64 {
	return float64(m.CapCents) / 100
}
