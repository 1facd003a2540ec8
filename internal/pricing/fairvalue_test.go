package pricing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

func TestProbAboveATM(t *testing.T) {
	m := NewModel()

	// At the money the drift term is tiny over short horizons, so the
	// probability sits just under one half.
	p, err := m.ProbAbove(100000, 100000, 0.65, 4)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, p, 0.01)
	assert.Less(t, p, 0.5)
}

func TestProbAboveMonotonicInStrike(t *testing.T) {
	m := NewModel()

	prev := 1.0
	for _, strike := range []float64{95000, 98000, 100000, 102000, 105000} {
		p, err := m.ProbAbove(100000, strike, 0.65, 6)
		require.NoError(t, err)
		assert.Less(t, p, prev, "strike %.0f", strike)
		prev = p
	}
}

func TestProbAboveDeepITM(t *testing.T) {
	m := NewModel()

	// Spot 5% through the strike with an hour left is near certainty.
	p, err := m.ProbAbove(105000, 100000, 0.65, 1)
	require.NoError(t, err)
	assert.Greater(t, p, 0.99)
}

func TestProbBelowComplement(t *testing.T) {
	m := NewModel()

	above, err := m.ProbAbove(100000, 101000, 0.8, 12)
	require.NoError(t, err)
	below, err := m.ProbBelow(100000, 101000, 0.8, 12)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, above+below, 1e-12)
}

func TestProbRange(t *testing.T) {
	m := NewModel()

	p, err := m.ProbRange(100000, 99000, 101000, 0.65, 6)
	require.NoError(t, err)
	assert.Greater(t, p, 0.0)
	assert.Less(t, p, 1.0)

	// A partition of disjoint ranges covering the line sums to one.
	bounds := []float64{1, 90000, 95000, 100000, 105000, 110000, 1e9}
	var sum float64
	for i := 0; i+1 < len(bounds); i++ {
		pr, err := m.ProbRange(100000, bounds[i], bounds[i+1], 0.65, 6)
		require.NoError(t, err)
		sum += pr
	}
	assert.InDelta(t, 1.0, sum, 1e-6)

	_, err = m.ProbRange(100000, 101000, 99000, 0.65, 6)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestExpiryStepFunction(t *testing.T) {
	m := NewModel()

	p, err := m.ProbAbove(100001, 100000, 0.65, 0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, p)

	p, err = m.ProbAbove(99999, 100000, 0.65, 0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, p)

	// Exactly on the strike the contract is a coin flip.
	p, err = m.ProbAbove(100000, 100000, 0.65, 0)
	require.NoError(t, err)
	assert.Equal(t, 0.5, p)
}

func TestInvalidInputs(t *testing.T) {
	m := NewModel()

	_, err := m.ProbAbove(100000, 100000, 0, 4)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = m.ProbAbove(100000, 100000, -0.5, 4)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = m.ProbAbove(100000, 100000, 0.65, -1)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = m.ProbAbove(0, 100000, 0.65, 4)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestFairByKind(t *testing.T) {
	m := NewModel()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	expiry := now.Add(6 * time.Hour)

	above := domain.Market{Kind: domain.KindAbove, StrikeCents: 100000_00, ExpiresAt: expiry}
	below := domain.Market{Kind: domain.KindBelow, StrikeCents: 100000_00, ExpiresAt: expiry}

	fa, err := m.Fair(above, 100000, 0.65, now)
	require.NoError(t, err)
	fb, err := m.Fair(below, 100000, 0.65, now)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, fa+fb, 1e-12)

	rng := domain.Market{Kind: domain.KindRange, StrikeCents: 99000_00, CapCents: 101000_00, ExpiresAt: expiry}
	fr, err := m.Fair(rng, 100000, 0.65, now)
	require.NoError(t, err)
	assert.Greater(t, fr, 0.0)

	_, err = m.Fair(domain.Market{Kind: "spread"}, 100000, 0.65, now)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestCents(t *testing.T) {
	assert.Equal(t, int64(50), Cents(0.5))
	assert.Equal(t, int64(1), Cents(0))
	assert.Equal(t, int64(99), Cents(1))
	assert.Equal(t, int64(93), Cents(0.934))
}
