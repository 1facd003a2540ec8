// Package fees implements the venue's trading fee schedule. Fees scale with
// p·(1−p), so they peak at 50¢ and vanish toward the extremes, and round up
// to the next cent with a minimum of one cent per trade.
package fees

import "math"

// Role distinguishes the maker and taker fee schedules.
type Role int

const (
	RoleTaker Role = iota
	RoleMaker
)

// String returns the schedule name.
func (r Role) String() string {
	if r == RoleMaker {
		return "maker"
	}
	return "taker"
}

// Default fee coefficients published by the venue.
const (
	DefaultTakerCoeff = 0.07
	DefaultMakerCoeff = 0.0175
)

// roundingEpsilon keeps exact-cent products from ceiling up an extra cent
// after float error.
const roundingEpsilon = 1e-9

// Model computes trading fees from the two schedule coefficients.
type Model struct {
	takerCoeff float64
	makerCoeff float64
}

// NewModel creates a fee model with explicit coefficients.
func NewModel(takerCoeff, makerCoeff float64) Model {
	return Model{takerCoeff: takerCoeff, makerCoeff: makerCoeff}
}

// DefaultModel returns a model with the venue's published coefficients.
func DefaultModel() Model {
	return NewModel(DefaultTakerCoeff, DefaultMakerCoeff)
}

// Fee returns the fee in cents for trading the given number of contracts at
// priceCents under the role's schedule:
//
//	fee = ceil(coeff × contracts × p × (1−p) × 100)
//
// with p the price in dollars. Any nonzero trade pays at least one cent.
func (m Model) Fee(contracts, priceCents int64, role Role) int64 {
	if contracts <= 0 {
		return 0
	}

	coeff := m.takerCoeff
	if role == RoleMaker {
		coeff = m.makerCoeff
	}

	p := float64(priceCents) / 100
	raw := coeff * float64(contracts) * p * (1 - p) * 100
	fee := int64(math.Ceil(raw - roundingEpsilon))
	if fee < 1 {
		fee = 1
	}
	return fee
}

// NetProfit returns the profit in cents of entering at entryCents and exiting
// at exitCents, after the fee on each leg. Negative spreads yield negative
// profit.
func (m Model) NetProfit(contracts, entryCents, exitCents int64, entryRole, exitRole Role) int64 {
	gross := (exitCents - entryCents) * contracts
	return gross - m.Fee(contracts, entryCents, entryRole) - m.Fee(contracts, exitCents, exitRole)
}

// MinProfitableSpread returns the smallest whole-cent favorable move from
// entryCents that yields positive net profit when both legs trade under the
// given role. It returns 0 when no exit inside the price domain is
// profitable.
func (m Model) MinProfitableSpread(contracts, entryCents int64, role Role) int64 {
	for spread := int64(1); entryCents+spread < 100; spread++ {
		if m.NetProfit(contracts, entryCents, entryCents+spread, role, role) > 0 {
			return spread
		}
	}
	return 0
}
