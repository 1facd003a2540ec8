package app

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/kalshibot/internal/config"
	"github.com/alanyoungcy/kalshibot/internal/domain"
	"github.com/alanyoungcy/kalshibot/internal/strategy"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestNeedsPostgres(t *testing.T) {
	assert.True(t, needsPostgres("paper"))
	assert.True(t, needsPostgres("live"))
	assert.False(t, needsPostgres("monitor"))
}

func TestTopOfBookDerivesAskFromNoBid(t *testing.T) {
	snap := domain.BookSnapshot{
		Ticker:    "KXBTCD-26MAR0217-T67250",
		YesBids:   []domain.BookLevel{{PriceCents: 44, Contracts: 10}},
		NoBids:    []domain.BookLevel{{PriceCents: 52, Contracts: 5}},
		UpdatedAt: time.Date(2026, 3, 2, 16, 0, 0, 0, time.UTC),
	}

	top := topOfBook(snap)
	assert.True(t, top.HasYesBid)
	assert.Equal(t, int64(44), top.YesBid)
	assert.True(t, top.HasYesAsk)
	assert.Equal(t, int64(48), top.YesAsk)
}

func TestTopOfBookEmptySides(t *testing.T) {
	top := topOfBook(domain.BookSnapshot{Ticker: "X"})
	assert.False(t, top.HasYesBid)
	assert.False(t, top.HasYesAsk)
}

func TestBuildRegistryRegistersAllStrategies(t *testing.T) {
	cfg := config.Defaults()
	reg, err := buildRegistry(cfg.Strategy, strategy.Deps{Symbol: "BTCUSDT"}, testLogger())
	require.NoError(t, err)
	assert.ElementsMatch(t,
		[]string{"momentum", "fifteen_min", "market_maker", "arbitrage"},
		reg.List(),
	)
}

func TestRegistryAcceptsConfiguredActiveList(t *testing.T) {
	cfg := config.Defaults()
	reg, err := buildRegistry(cfg.Strategy, strategy.Deps{Symbol: "BTCUSDT"}, testLogger())
	require.NoError(t, err)

	// Every name the config layer accepts must resolve in the registry.
	for _, name := range []string{"momentum", "fifteen_min", "market_maker", "arbitrage"} {
		_, err := reg.Get(name)
		assert.NoError(t, err, name)
	}

	ch := make(chan domain.TradeSignal, 1)
	_, err = strategy.NewEngine(reg, cfg.Strategy.Active, ch, testLogger())
	require.NoError(t, err)
}

func TestBuildRuntimeRejectsUnpairedSeries(t *testing.T) {
	cfg := config.Defaults()
	cfg.Kalshi.Series = []string{"KXBTCD", "KXETHD"}
	cfg.Spot.Symbols = []string{"btcusdt"}

	a := New(&cfg, testLogger())
	_, err := a.buildRuntime()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pair up")
}

func TestBuildRuntimeOneDeskPerSeries(t *testing.T) {
	cfg := config.Defaults()
	a := New(&cfg, testLogger())

	rt, err := a.buildRuntime()
	require.NoError(t, err)
	require.Len(t, rt.desks, 2)
	assert.Equal(t, "KXBTCD", rt.desks[0].series)
	assert.Equal(t, "BTCUSDT", rt.desks[0].symbol)
	assert.Equal(t, "KXETHD", rt.desks[1].series)
	assert.Equal(t, "ETHUSDT", rt.desks[1].symbol)
}

func TestStrategyConfigConversion(t *testing.T) {
	cfg := config.Defaults()

	mm := marketMakerConfig(cfg.Strategy.MarketMaker)
	assert.Equal(t, 3*time.Second, mm.Interval)
	assert.Equal(t, int64(4), mm.SpreadCents)
	assert.Equal(t, 5*time.Minute, mm.KillPause)

	mom := momentumConfig(cfg.Strategy.Momentum)
	assert.Equal(t, 0.90, mom.MinFair)
	assert.Equal(t, 15*time.Second, mom.SignalTTL)
}
