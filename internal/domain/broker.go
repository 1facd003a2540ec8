package domain

import "context"

// Broker places and cancels orders at the venue. The paper simulator and the
// live client both implement it.
type Broker interface {
	// Place submits an instruction. Crossing IOC instructions may fill
	// immediately; the result reports contracts filled at submission.
	Place(ctx context.Context, inst OrderInstruction) (OrderResult, error)
	// Cancel withdraws a resting order. Cancelling an unknown or already
	// terminal order returns ErrNotFound.
	Cancel(ctx context.Context, orderID string) error
	// CancelAll withdraws every resting order, optionally scoped to a ticker
	// (empty ticker means all). Returns the number cancelled.
	CancelAll(ctx context.Context, ticker string) (int, error)
	// OpenOrders lists orders that can still fill.
	OpenOrders(ctx context.Context) ([]Order, error)
	// Positions returns the venue's authoritative position view, keyed by
	// ticker, as signed YES-equivalent contracts. Used for reconciliation.
	Positions(ctx context.Context) (map[string]int64, error)
}
