package domain

import "time"

// Position is the ledger's view of one market, on the YES axis.
// NetContracts > 0 is long YES, < 0 is short YES (long NO).
type Position struct {
	Ticker        string
	EventID       string
	NetContracts  int64
	AvgEntryCents float64 // average entry on the YES axis
	RealizedCents int64
	UpdatedAt     time.Time
}

// Flat reports whether the position has no open exposure.
func (p Position) Flat() bool {
	return p.NetContracts == 0
}

// ExposureCents is the cash tied up in the open position: contracts times
// average entry, on whichever axis the position is held.
func (p Position) ExposureCents() int64 {
	n := p.NetContracts
	entry := p.AvgEntryCents
	if n < 0 {
		n = -n
		entry = 100 - entry
	}
	return int64(float64(n)*entry + 0.5)
}

// CapitalState is the bankroll view the risk gate evaluates against.
type CapitalState struct {
	BankrollCents  int64 // configured starting bankroll
	CashCents      int64 // free cash after open exposure and fees
	DailyPnLCents  int64 // realized, UTC day
	WeeklyPnLCents int64 // realized, ISO week
}

// LedgerSnapshot is an immutable copy of the ledger handed to the risk gate
// and strategies. RestingCents maps ticker to the notional of open resting
// orders, which counts toward per-strike exposure.
type LedgerSnapshot struct {
	Positions    map[string]Position // keyed by ticker
	RestingCents map[string]int64
	Capital      CapitalState
	TakenAt      time.Time
}

// PositionFor returns the position for a ticker, zero-valued when flat.
func (s LedgerSnapshot) PositionFor(ticker string) Position {
	return s.Positions[ticker]
}

// ExposureCents sums open exposure across all positions.
func (s LedgerSnapshot) ExposureCents() int64 {
	var total int64
	for _, p := range s.Positions {
		total += p.ExposureCents()
	}
	return total
}

// EventExposureCents sums exposure across positions sharing an event.
func (s LedgerSnapshot) EventExposureCents(eventID string) int64 {
	var total int64
	for _, p := range s.Positions {
		if p.EventID == eventID {
			total += p.ExposureCents()
		}
	}
	return total
}

// EventNetContracts sums signed YES-equivalent contracts across an event,
// used by the market maker's inventory cap.
func (s LedgerSnapshot) EventNetContracts(eventID string) int64 {
	var total int64
	for _, p := range s.Positions {
		if p.EventID == eventID {
			total += p.NetContracts
		}
	}
	return total
}

// StrikeExposureCents returns filled plus resting exposure for one ticker.
func (s LedgerSnapshot) StrikeExposureCents(ticker string) int64 {
	return s.PositionFor(ticker).ExposureCents() + s.RestingCents[ticker]
}
