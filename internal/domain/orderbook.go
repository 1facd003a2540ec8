package domain

import "time"

// Side is the contract side an order trades.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// Opposite returns the other contract side.
func (s Side) Opposite() Side {
	if s == SideYes {
		return SideNo
	}
	return SideYes
}

// BookLevel is a single resting bid level: a price in contract cents and the
// number of contracts offered there.
type BookLevel struct {
	PriceCents int64
	Contracts  int64
}

// BookSnapshot is an immutable copy of one market's book. The venue exposes
// bids only: YES bids and NO bids. Asks are derived, never quoted directly.
// Levels are sorted by price descending (best bid first).
type BookSnapshot struct {
	Ticker    string
	YesBids   []BookLevel
	NoBids    []BookLevel
	UpdatedAt time.Time
}

// BestYesBid returns the highest YES bid. ok is false when no YES bids rest.
func (b BookSnapshot) BestYesBid() (priceCents int64, ok bool) {
	if len(b.YesBids) == 0 {
		return 0, false
	}
	return b.YesBids[0].PriceCents, true
}

// BestNoBid returns the highest NO bid. ok is false when no NO bids rest.
func (b BookSnapshot) BestNoBid() (priceCents int64, ok bool) {
	if len(b.NoBids) == 0 {
		return 0, false
	}
	return b.NoBids[0].PriceCents, true
}

// BestYesAsk derives the cheapest YES offer from the best NO bid
// (yes_ask = 100 − best_no_bid). ok is false when no NO bids rest; an empty
// opposite book means no ask exists, not an ask at 100.
func (b BookSnapshot) BestYesAsk() (priceCents int64, ok bool) {
	noBid, ok := b.BestNoBid()
	if !ok {
		return 0, false
	}
	return 100 - noBid, true
}

// BestNoAsk derives the cheapest NO offer from the best YES bid.
func (b BookSnapshot) BestNoAsk() (priceCents int64, ok bool) {
	yesBid, ok := b.BestYesBid()
	if !ok {
		return 0, false
	}
	return 100 - yesBid, true
}

// SpreadCents returns best_yes_ask − best_yes_bid. ok is false unless both
// sides of the book are populated.
func (b BookSnapshot) SpreadCents() (int64, bool) {
	bid, okBid := b.BestYesBid()
	ask, okAsk := b.BestYesAsk()
	if !okBid || !okAsk {
		return 0, false
	}
	return ask - bid, true
}

// AskDepth returns the number of contracts offered at the best derived ask
// for the given side. The depth at yes_ask is the size resting at the best
// NO bid, and vice versa.
func (b BookSnapshot) AskDepth(side Side) int64 {
	levels := b.NoBids
	if side == SideNo {
		levels = b.YesBids
	}
	if len(levels) == 0 {
		return 0
	}
	return levels[0].Contracts
}

// BidDepth returns the contracts resting at the best bid for the given side.
func (b BookSnapshot) BidDepth(side Side) int64 {
	levels := b.YesBids
	if side == SideNo {
		levels = b.NoBids
	}
	if len(levels) == 0 {
		return 0
	}
	return levels[0].Contracts
}

// TopOfBook is the cached best-of-book summary published to observers.
type TopOfBook struct {
	Ticker    string
	YesBid    int64
	YesAsk    int64
	HasYesBid bool
	HasYesAsk bool
	UpdatedAt time.Time
}
