package domain

import "time"

// Fill is a single execution against a resting or crossing order. FeeCents is
// the venue fee actually charged for this fill at the maker or taker schedule.
type Fill struct {
	OrderID    string
	Ticker     string
	EventID    string
	Strategy   string
	Side       Side
	Action     OrderAction
	PriceCents int64
	Contracts  int64
	FeeCents   int64
	IsMaker    bool
	At         time.Time
}

// CostCents returns the cash debited by this fill for buys (price plus fee)
// or credited for sells (proceeds minus fee).
func (f Fill) CostCents() int64 {
	notional := f.PriceCents * f.Contracts
	if f.Action == ActionBuy {
		return notional + f.FeeCents
	}
	return -(notional - f.FeeCents)
}

// YesEquivalent maps the fill onto the YES axis: buying NO at p is the same
// exposure as selling YES at 100−p. It returns the signed contract delta and
// the effective YES price.
func (f Fill) YesEquivalent() (deltaContracts int64, priceCents int64) {
	price := f.PriceCents
	delta := f.Contracts
	if f.Action == ActionSell {
		delta = -delta
	}
	if f.Side == SideNo {
		delta = -delta
		price = 100 - price
	}
	return delta, price
}
