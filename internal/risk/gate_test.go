package risk

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/kalshibot/internal/domain"
	"github.com/alanyoungcy/kalshibot/internal/ledger"
)

func newGate(t *testing.T, bankroll int64) (*Gate, *ledger.Ledger) {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	led := ledger.New(bankroll, logger)
	return NewGate(DefaultLimits(), led, logger), led
}

func sig(id, ticker, event string, price, contracts int64) domain.TradeSignal {
	return domain.TradeSignal{
		ID:         id,
		Strategy:   "test",
		Ticker:     ticker,
		EventID:    event,
		Side:       domain.SideYes,
		Action:     domain.ActionBuy,
		TIF:        domain.TIFPostOnly,
		PriceCents: price,
		Contracts:  contracts,
	}
}

func TestPerTradeCap(t *testing.T) {
	g, _ := newGate(t, 100_000) // per-trade cap 10_000

	approved, rejections := g.Filter([]domain.TradeSignal{
		sig("ok", "T1", "EV", 50, 100),  // 5_000
		sig("big", "T2", "EV", 50, 300), // 15_000
	})

	require.Len(t, approved, 1)
	assert.Equal(t, "ok", approved[0].ID)
	require.Len(t, rejections, 1)
	assert.Equal(t, domain.RulePerTradeCap, rejections[0].Rule)
	assert.Equal(t, "big", rejections[0].SignalID)
}

func TestPerStrikeCapCountsRestingAndBatch(t *testing.T) {
	g, led := newGate(t, 100_000) // per-strike cap 15_000

	// First signal reserves 9_000 on T1; the second would push T1 to
	// 18_000 and must name the strike rule.
	approved, rejections := g.Filter([]domain.TradeSignal{
		sig("a", "T1", "EV", 90, 100),
		sig("b", "T1", "EV", 90, 100),
	})
	require.Len(t, approved, 1)
	require.Len(t, rejections, 1)
	assert.Equal(t, domain.RulePerStrikeCap, rejections[0].Rule)

	// The approval's reservation persists until released.
	assert.Equal(t, int64(9_000), led.Snapshot().StrikeExposureCents("T1"))

	led.Release("T1", 9_000)
	approved, _ = g.Filter([]domain.TradeSignal{sig("c", "T1", "EV", 90, 100)})
	assert.Len(t, approved, 1)
}

func TestPerEventCap(t *testing.T) {
	g, _ := newGate(t, 100_000) // per-event cap 30_000

	// Four strikes in one event at 9_000 each: the fourth breaches 30_000.
	signals := []domain.TradeSignal{
		sig("a", "T1", "EV", 90, 100),
		sig("b", "T2", "EV", 90, 100),
		sig("c", "T3", "EV", 90, 100),
		sig("d", "T4", "EV", 90, 100),
	}
	approved, rejections := g.Filter(signals)
	require.Len(t, approved, 3)
	require.Len(t, rejections, 1)
	assert.Equal(t, domain.RulePerEventCap, rejections[0].Rule)
	assert.Equal(t, "d", rejections[0].SignalID)
}

func TestCashBuffer(t *testing.T) {
	// Loosen every other limit so the buffer rule is what trips.
	limits := DefaultLimits()
	limits.PerTradePct = 1
	limits.PerStrikePct = 1
	limits.PerEventPct = 1
	limits.TotalPct = 1
	logger := slog.New(slog.DiscardHandler)
	led := ledger.New(10_000, logger) // buffer floor 2_500
	g := NewGate(limits, led, logger)

	// Tie up most of the cash in one position.
	led.Apply(domain.Fill{
		Ticker: "T0", EventID: "E0", Side: domain.SideYes, Action: domain.ActionBuy,
		PriceCents: 65, Contracts: 100, FeeCents: 160, At: time.Now(),
	})

	// Cash is now 3_340; an 850-cent buy would leave 2_490.
	approved, rejections := g.Filter([]domain.TradeSignal{sig("a", "T1", "EV", 85, 10)})
	assert.Empty(t, approved)
	require.Len(t, rejections, 1)
	assert.Equal(t, domain.RuleCashBuffer, rejections[0].Rule)
}

func TestDailyLossHaltsNewRisk(t *testing.T) {
	g, led := newGate(t, 100_000) // daily limit 5_000

	// Realize a 5_100-cent loss: buy 100 at 90, sell at 40.
	at := time.Now()
	led.Apply(domain.Fill{Ticker: "T0", EventID: "E0", Side: domain.SideYes,
		Action: domain.ActionBuy, PriceCents: 90, Contracts: 100, FeeCents: 50, At: at})
	led.Apply(domain.Fill{Ticker: "T0", EventID: "E0", Side: domain.SideYes,
		Action: domain.ActionSell, PriceCents: 40, Contracts: 100, FeeCents: 50, At: at})

	_, rejections := g.Filter([]domain.TradeSignal{sig("a", "T1", "EV", 50, 20)})
	require.Len(t, rejections, 1)
	assert.Equal(t, domain.RuleDailyLoss, rejections[0].Rule)

	// But a signal that closes existing risk still passes.
	led.Apply(domain.Fill{Ticker: "T2", EventID: "E2", Side: domain.SideYes,
		Action: domain.ActionBuy, PriceCents: 50, Contracts: 10, FeeCents: 10, At: at})
	exit := sig("x", "T2", "E2", 45, 10)
	exit.Action = domain.ActionSell
	approved, rejections := g.Filter([]domain.TradeSignal{exit})
	assert.Len(t, approved, 1)
	assert.Empty(t, rejections)
}

func TestKillSwitchAndFlatten(t *testing.T) {
	g, led := newGate(t, 100_000)

	tripped, _ := g.CheckKillSwitch(led.Snapshot(), true)
	assert.False(t, tripped)

	tripped, reason := g.CheckKillSwitch(led.Snapshot(), false)
	assert.True(t, tripped)
	assert.Equal(t, "venue not tradeable", reason)

	// Drive daily pnl through −5% and then −10%.
	at := time.Now()
	led.Apply(domain.Fill{Ticker: "T0", EventID: "E0", Side: domain.SideYes,
		Action: domain.ActionBuy, PriceCents: 80, Contracts: 100, FeeCents: 0, At: at})
	led.Apply(domain.Fill{Ticker: "T0", EventID: "E0", Side: domain.SideYes,
		Action: domain.ActionSell, PriceCents: 20, Contracts: 100, FeeCents: 0, At: at})

	snap := led.Snapshot()
	tripped, _ = g.CheckKillSwitch(snap, true)
	assert.True(t, tripped)
	assert.False(t, g.ShouldFlattenAll(snap), "6_000 loss is under the 10_000 flatten trigger")

	led.Apply(domain.Fill{Ticker: "T1", EventID: "E1", Side: domain.SideYes,
		Action: domain.ActionBuy, PriceCents: 80, Contracts: 100, FeeCents: 0, At: at})
	led.Apply(domain.Fill{Ticker: "T1", EventID: "E1", Side: domain.SideYes,
		Action: domain.ActionSell, PriceCents: 20, Contracts: 100, FeeCents: 0, At: at})
	assert.True(t, g.ShouldFlattenAll(led.Snapshot()))
}
