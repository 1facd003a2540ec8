package fees

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFeeSchedule(t *testing.T) {
	m := DefaultModel()

	tests := []struct {
		name       string
		contracts  int64
		priceCents int64
		role       Role
		want       int64
	}{
		{"one contract at midpoint", 1, 50, RoleTaker, 2},
		{"hundred contracts at midpoint", 100, 50, RoleTaker, 175},
		{"taker deep in the money", 100, 95, RoleTaker, 34},
		{"maker deep in the money", 100, 95, RoleMaker, 9},
		{"exact cent product does not round up", 100, 10, RoleTaker, 63},
		{"minimum one cent", 1, 1, RoleTaker, 1},
		{"minimum one cent maker", 1, 99, RoleMaker, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.Fee(tt.contracts, tt.priceCents, tt.role))
		})
	}
}

func TestFeeZeroContracts(t *testing.T) {
	m := DefaultModel()
	assert.Zero(t, m.Fee(0, 50, RoleTaker))
	assert.Zero(t, m.Fee(-5, 50, RoleTaker))
}

func TestFeeSymmetry(t *testing.T) {
	// p(1-p) is symmetric around the midpoint.
	m := DefaultModel()
	for p := int64(1); p < 50; p++ {
		assert.Equal(t, m.Fee(100, p, RoleTaker), m.Fee(100, 100-p, RoleTaker), "price %d", p)
	}
}

func TestNetProfit(t *testing.T) {
	m := DefaultModel()

	// 100 contracts bought at 50¢ and sold at 55¢: gross 500¢, entry fee
	// 175¢, exit fee ceil(0.07·100·0.55·0.45·100)=174¢.
	got := m.NetProfit(100, 50, 55, RoleTaker, RoleTaker)
	assert.Equal(t, int64(500-175-174), got)

	// Losing trade stays negative after fees.
	assert.Negative(t, m.NetProfit(100, 55, 50, RoleTaker, RoleTaker))

	// Maker entry pays less than taker entry for the same move.
	assert.Greater(t,
		m.NetProfit(100, 50, 55, RoleMaker, RoleTaker),
		m.NetProfit(100, 50, 55, RoleTaker, RoleTaker),
	)
}

func TestMinProfitableSpread(t *testing.T) {
	m := DefaultModel()

	// Single contract at the midpoint: each taker leg costs 2¢, so a 4¢
	// move only breaks even and 5¢ is the first profitable spread.
	assert.Equal(t, int64(5), m.MinProfitableSpread(1, 50, RoleTaker))

	// Maker legs are cheaper, so the spread shrinks.
	makerSpread := m.MinProfitableSpread(1, 50, RoleMaker)
	assert.LessOrEqual(t, makerSpread, int64(5))
	assert.Positive(t, makerSpread)

	// Verify the returned spread is actually the minimum.
	spread := m.MinProfitableSpread(100, 30, RoleTaker)
	assert.Positive(t, m.NetProfit(100, 30, 30+spread, RoleTaker, RoleTaker))
	assert.LessOrEqual(t, m.NetProfit(100, 30, 30+spread-1, RoleTaker, RoleTaker), int64(0))

	// No profitable exit exists from the top of the price domain.
	assert.Zero(t, m.MinProfitableSpread(1, 99, RoleTaker))
}
