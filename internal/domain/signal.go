package domain

import "time"

// OrderAction indicates whether a signal opens or reduces exposure.
type OrderAction string

const (
	ActionBuy  OrderAction = "buy"
	ActionSell OrderAction = "sell"
)

// TimeInForce is the order placement policy.
type TimeInForce string

const (
	TIFImmediateOrCancel TimeInForce = "ioc"       // taker: fill what crosses, cancel the rest
	TIFPostOnly          TimeInForce = "post_only" // maker: reject instead of crossing
	TIFGoodTilCancelled  TimeInForce = "gtc"
)

// SignalUrgency indicates how quickly a signal should be acted upon.
type SignalUrgency int

const (
	SignalUrgencyLow SignalUrgency = iota
	SignalUrgencyMedium
	SignalUrgencyHigh
	SignalUrgencyImmediate
)

// LegPolicy governs how multi-leg signals are executed.
type LegPolicy string

const (
	LegPolicyAllOrNone  LegPolicy = "all_or_none"
	LegPolicyBestEffort LegPolicy = "best_effort"
)

// Directive tells the executor how to treat a signal's existing orders.
type Directive string

const (
	// DirectivePlace places a new order, leaving existing orders alone.
	DirectivePlace Directive = ""
	// DirectiveRequote cancels the strategy's open orders on the ticker
	// and side before placing.
	DirectiveRequote Directive = "requote"
	// DirectiveCancel cancels the strategy's open orders on the ticker and
	// places nothing. Price and contracts are ignored.
	DirectiveCancel Directive = "cancel"
)

// TradeSignal is emitted by a strategy to request order execution. Signals
// that belong to a multi-leg structure share a LegGroupID and carry the total
// leg count; they must be routed together under the group's LegPolicy.
type TradeSignal struct {
	ID         string // UUID, used for dedup
	Strategy   string
	Ticker     string
	EventID    string
	Side       Side
	Action     OrderAction
	TIF        TimeInForce
	Directive  Directive
	PriceCents int64
	Contracts  int64
	Urgency    SignalUrgency
	Reason     string
	LegGroupID string
	LegIndex   int
	LegCount   int
	LegPolicy  LegPolicy
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// NotionalCents returns the cash this signal puts at risk: cost to open for
// buys (price × contracts), proceeds forgone for sells.
func (s TradeSignal) NotionalCents() int64 {
	return s.PriceCents * s.Contracts
}

// MultiLeg reports whether the signal is part of a leg group.
func (s TradeSignal) MultiLeg() bool {
	return s.LegGroupID != "" && s.LegCount > 1
}

// Expired reports whether the signal's validity window has passed.
func (s TradeSignal) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}
