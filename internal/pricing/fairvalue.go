// Package pricing computes fair values for binary contracts on spot prices.
// A YES contract paying $1 when spot settles above the strike is a digital
// call: under a lognormal spot its value is Φ(d2) with
//
//	d2 = (ln(S/K) − 0.5·σ²·t) / (σ·√t)
//
// where t is time to settlement in years and σ the annualized volatility.
package pricing

import (
	"fmt"
	"math"
	"time"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// HoursPerYear converts an hours-to-expiry into the year fraction used by
// the pricing formulas.
const HoursPerYear = 8760

// Model prices binary contracts. It is stateless and safe for concurrent
// use.
type Model struct{}

// NewModel returns a pricing model.
func NewModel() Model {
	return Model{}
}

// ProbAbove returns the probability that spot settles above strike after
// tteHours, i.e. the fair value of a YES contract on an "above" market.
//
// Volatility must be positive and tteHours non-negative; otherwise
// domain.ErrInvalidInput is returned. At exactly zero time to expiry the
// contract is a step function, worth 0.5 when spot sits exactly on the
// strike.
func (Model) ProbAbove(spot, strike, volAnnual, tteHours float64) (float64, error) {
	if spot <= 0 || strike <= 0 {
		return 0, fmt.Errorf("pricing: spot %.2f strike %.2f: %w", spot, strike, domain.ErrInvalidInput)
	}
	if volAnnual <= 0 {
		return 0, fmt.Errorf("pricing: volatility %.4f: %w", volAnnual, domain.ErrInvalidInput)
	}
	if tteHours < 0 {
		return 0, fmt.Errorf("pricing: tte %.4fh: %w", tteHours, domain.ErrInvalidInput)
	}

	if tteHours == 0 {
		switch {
		case spot > strike:
			return 1, nil
		case spot < strike:
			return 0, nil
		default:
			return 0.5, nil
		}
	}

	t := tteHours / HoursPerYear
	d2 := (math.Log(spot/strike) - 0.5*volAnnual*volAnnual*t) / (volAnnual * math.Sqrt(t))
	return clamp01(normCDF(d2)), nil
}

// ProbBelow is the complement of ProbAbove.
func (m Model) ProbBelow(spot, strike, volAnnual, tteHours float64) (float64, error) {
	above, err := m.ProbAbove(spot, strike, volAnnual, tteHours)
	if err != nil {
		return 0, err
	}
	return 1 - above, nil
}

// ProbRange returns the probability that spot settles in [low, high).
func (m Model) ProbRange(spot, low, high, volAnnual, tteHours float64) (float64, error) {
	if high <= low {
		return 0, fmt.Errorf("pricing: range [%.2f, %.2f): %w", low, high, domain.ErrInvalidInput)
	}
	aboveLow, err := m.ProbAbove(spot, low, volAnnual, tteHours)
	if err != nil {
		return 0, err
	}
	aboveHigh, err := m.ProbAbove(spot, high, volAnnual, tteHours)
	if err != nil {
		return 0, err
	}
	return clamp01(aboveLow - aboveHigh), nil
}

// Fair returns the YES fair value for a market given the current spot and
// annualized volatility. Up/down markets are priced as "above" against the
// period open, which the caller passes as the strike.
func (m Model) Fair(mkt domain.Market, spot, volAnnual float64, now time.Time) (float64, error) {
	tte := mkt.HoursToExpiry(now)
	switch mkt.Kind {
	case domain.KindAbove, domain.KindUpDown:
		return m.ProbAbove(spot, mkt.Strike(), volAnnual, tte)
	case domain.KindBelow:
		return m.ProbBelow(spot, mkt.Strike(), volAnnual, tte)
	case domain.KindRange:
		return m.ProbRange(spot, mkt.Strike(), mkt.Cap(), volAnnual, tte)
	default:
		return 0, fmt.Errorf("pricing: contract kind %q: %w", mkt.Kind, domain.ErrInvalidInput)
	}
}

// Cents converts a probability to contract cents, rounded to the nearest
// cent and clamped to the tradable [1, 99] band.
func Cents(prob float64) int64 {
	c := int64(math.Round(prob * 100))
	if c < 1 {
		return 1
	}
	if c > 99 {
		return 99
	}
	return c
}

func normCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

func clamp01(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
