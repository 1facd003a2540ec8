// Package feed tracks spot prices for the underlyings the bot trades. A
// websocket trade stream feeds per-symbol trackers that maintain the last
// price, a rolling VWAP, realized volatility, and short-horizon momentum.
package feed

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

const (
	// vwapWindow is the rolling window for the volume-weighted average price.
	vwapWindow = 60 * time.Second

	// sampleInterval is the spacing of price samples used for realized
	// volatility and momentum.
	sampleInterval = 10 * time.Second

	// sampleRetention keeps enough history for the market maker's
	// 30-minute kill-switch window.
	sampleRetention = 40 * time.Minute

	// annualizeFactor converts the stddev of 10-second log returns to an
	// annualized volatility: sqrt(3,153,600) ten-second periods per year.
	annualizeFactor = 1775.8378

	minVolSamples = 6
	volFloor      = 0.05
	volCeiling    = 5.0
)

type trade struct {
	price float64
	qty   float64
	at    time.Time
}

type sample struct {
	price float64
	at    time.Time
}

type symbolState struct {
	last       float64
	lastAt     time.Time
	trades     []trade  // vwap window
	samples    []sample // volatility and momentum history
	lastSample time.Time
}

// Tracker maintains spot state per symbol. It is safe for concurrent use.
type Tracker struct {
	mu         sync.RWMutex
	symbols    map[string]*symbolState
	defaultVol float64
	maxAge     time.Duration
	now        func() time.Time
}

// NewTracker creates a Tracker. defaultVol is returned until enough samples
// accumulate; quotes older than maxAge are reported stale.
func NewTracker(defaultVol float64, maxAge time.Duration) *Tracker {
	return &Tracker{
		symbols:    make(map[string]*symbolState),
		defaultVol: defaultVol,
		maxAge:     maxAge,
		now:        time.Now,
	}
}

// SetClock overrides the time source, for tests.
func (t *Tracker) SetClock(now func() time.Time) {
	t.now = now
}

// Record ingests one trade from the stream.
func (t *Tracker) Record(symbol string, price, qty float64, at time.Time) {
	if price <= 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.symbols[symbol]
	if !ok {
		st = &symbolState{}
		t.symbols[symbol] = st
	}

	st.last = price
	st.lastAt = at
	st.trades = append(st.trades, trade{price: price, qty: qty, at: at})
	trimTrades(st, at)

	if st.lastSample.IsZero() || at.Sub(st.lastSample) >= sampleInterval {
		st.samples = append(st.samples, sample{price: price, at: at})
		st.lastSample = at
		trimSamples(st, at)
	}
}

// Last returns the most recent price. It returns domain.ErrStaleData when
// the quote is older than the configured max age and domain.ErrNotFound for
// unknown symbols.
func (t *Tracker) Last(symbol string) (float64, time.Time, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	st, ok := t.symbols[symbol]
	if !ok || st.lastAt.IsZero() {
		return 0, time.Time{}, fmt.Errorf("feed: %s: %w", symbol, domain.ErrNotFound)
	}
	if t.maxAge > 0 && t.now().Sub(st.lastAt) > t.maxAge {
		return st.last, st.lastAt, fmt.Errorf("feed: %s quote age %s: %w",
			symbol, t.now().Sub(st.lastAt).Round(time.Millisecond), domain.ErrStaleData)
	}
	return st.last, st.lastAt, nil
}

// VWAP returns the volume-weighted average price over the rolling window,
// falling back to the last price when the window holds no volume.
func (t *Tracker) VWAP(symbol string) (float64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	st, ok := t.symbols[symbol]
	if !ok || st.lastAt.IsZero() {
		return 0, fmt.Errorf("feed: %s: %w", symbol, domain.ErrNotFound)
	}

	var pv, vol float64
	cutoff := t.now().Add(-vwapWindow)
	for _, tr := range st.trades {
		if tr.at.Before(cutoff) {
			continue
		}
		pv += tr.price * tr.qty
		vol += tr.qty
	}
	if vol == 0 {
		return st.last, nil
	}
	return pv / vol, nil
}

// Volatility returns annualized realized volatility from the sampled price
// history, clamped to [0.05, 5.0]. Until enough samples accumulate it
// returns the configured default.
func (t *Tracker) Volatility(symbol string) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	st, ok := t.symbols[symbol]
	if !ok || len(st.samples) < minVolSamples {
		return t.defaultVol
	}

	returns := make([]float64, 0, len(st.samples)-1)
	for i := 1; i < len(st.samples); i++ {
		prev, cur := st.samples[i-1].price, st.samples[i].price
		if prev > 0 && cur > 0 {
			returns = append(returns, math.Log(cur/prev))
		}
	}
	if len(returns) < minVolSamples-1 {
		return t.defaultVol
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)

	vol := math.Sqrt(variance) * annualizeFactor
	if vol < volFloor {
		return volFloor
	}
	if vol > volCeiling {
		return volCeiling
	}
	return vol
}

// Momentum returns the fractional price change over the lookback window,
// zero when history is insufficient.
func (t *Tracker) Momentum(symbol string, lookback time.Duration) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	st, ok := t.symbols[symbol]
	if !ok || st.lastAt.IsZero() {
		return 0
	}

	ref, ok := priceAt(st.samples, t.now().Add(-lookback))
	if !ok || ref <= 0 {
		return 0
	}
	return (st.last - ref) / ref
}

// priceAt returns the newest sample at or before the cutoff.
func priceAt(samples []sample, cutoff time.Time) (float64, bool) {
	for i := len(samples) - 1; i >= 0; i-- {
		if !samples[i].at.After(cutoff) {
			return samples[i].price, true
		}
	}
	return 0, false
}

func trimTrades(st *symbolState, now time.Time) {
	cutoff := now.Add(-vwapWindow)
	i := 0
	for i < len(st.trades) && st.trades[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		st.trades = append(st.trades[:0], st.trades[i:]...)
	}
}

func trimSamples(st *symbolState, now time.Time) {
	cutoff := now.Add(-sampleRetention)
	i := 0
	for i < len(st.samples) && st.samples[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		st.samples = append(st.samples[:0], st.samples[i:]...)
	}
}
