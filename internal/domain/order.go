package domain

import "time"

// OrderStatus tracks the order lifecycle.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusResting   OrderStatus = "resting"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusPartial   OrderStatus = "partial"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusRejected  OrderStatus = "rejected"
)

// OrderInstruction is an approved signal stamped for submission. The
// idempotency token is minted exactly once per signal so that a retry of the
// same instruction cannot double-place.
type OrderInstruction struct {
	IdempotencyToken string // UUID
	Signal           TradeSignal
	SubmittedAt      time.Time
}

// Order is a resting or completed order as tracked by the router.
type Order struct {
	ID               string // venue order id, or the idempotency token in paper mode
	IdempotencyToken string
	Ticker           string
	EventID          string
	Strategy         string
	Side             Side
	Action           OrderAction
	TIF              TimeInForce
	PriceCents       int64
	Contracts        int64
	FilledContracts  int64
	Status           OrderStatus
	LegGroupID       string
	CreatedAt        time.Time
	ExpiresAt        time.Time // cancel-on-timeout deadline, zero for none
}

// Remaining returns the unfilled contract count.
func (o Order) Remaining() int64 {
	return o.Contracts - o.FilledContracts
}

// Open reports whether the order can still fill.
func (o Order) Open() bool {
	return o.Status == OrderStatusPending || o.Status == OrderStatusResting || o.Status == OrderStatusPartial
}

// OrderResult wraps the broker response after order submission.
type OrderResult struct {
	OrderID     string
	Status      OrderStatus
	FilledNow   int64
	Message     string
	ShouldRetry bool
}
