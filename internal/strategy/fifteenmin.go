package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/kalshibot/internal/domain"
	"github.com/alanyoungcy/kalshibot/internal/fees"
	"github.com/alanyoungcy/kalshibot/internal/pricing"
)

// FifteenMinConfig tunes the short-cycle up/down momentum strategy.
type FifteenMinConfig struct {
	Interval     time.Duration
	Lookback     time.Duration // spot momentum window
	MaxBias      float64       // momentum bias clamp around the 0.5 prior
	BiasScale    float64       // momentum-to-probability multiplier
	MinEdgeCents int64         // required edge per contract after the taker fee
	Contracts    int64
	TopN         int
	Cooldown     time.Duration // per-ticker re-entry spacing
	SignalTTL    time.Duration
}

// DefaultFifteenMinConfig returns the standard tuning.
func DefaultFifteenMinConfig() FifteenMinConfig {
	return FifteenMinConfig{
		Interval:     10 * time.Second,
		Lookback:     3 * time.Minute,
		MaxBias:      0.15,
		BiasScale:    20,
		MinEdgeCents: 2,
		Contracts:    10,
		TopN:         3,
		Cooldown:     30 * time.Second,
		SignalTTL:    15 * time.Second,
	}
}

// FifteenMin trades the 15-minute up/down markets on spot momentum. The
// prior is a coin flip; recent momentum shifts it by a clamped bias, and the
// favored side is bought when the derived ask still leaves edge after the
// taker fee.
type FifteenMin struct {
	cfg    FifteenMinConfig
	deps   Deps
	logger *slog.Logger

	mu        sync.Mutex
	lastEntry map[string]time.Time
}

// NewFifteenMin creates the up/down momentum strategy.
func NewFifteenMin(cfg FifteenMinConfig, deps Deps, logger *slog.Logger) *FifteenMin {
	return &FifteenMin{
		cfg:       cfg,
		deps:      deps,
		logger:    logger.With(slog.String("component", "fifteen_min")),
		lastEntry: make(map[string]time.Time),
	}
}

func (s *FifteenMin) Name() string            { return "fifteen_min" }
func (s *FifteenMin) Interval() time.Duration { return s.cfg.Interval }
func (s *FifteenMin) Close() error            { return nil }

type upDownCandidate struct {
	sig  domain.TradeSignal
	edge int64
}

// Scan buys the momentum-favored side of up/down markets.
func (s *FifteenMin) Scan(ctx context.Context) ([]domain.TradeSignal, error) {
	now := s.deps.now()

	if _, _, err := s.deps.Spot.Last(s.deps.Symbol); err != nil {
		return nil, fmt.Errorf("fifteen_min: spot: %w", err)
	}

	bias := s.deps.Spot.Momentum(s.deps.Symbol, s.cfg.Lookback) * s.cfg.BiasScale
	if bias > s.cfg.MaxBias {
		bias = s.cfg.MaxBias
	}
	if bias < -s.cfg.MaxBias {
		bias = -s.cfg.MaxBias
	}
	probUp := 0.5 + bias

	ledger := s.deps.Ledger.Snapshot()

	var candidates []upDownCandidate
	for _, mkt := range s.deps.Markets.Universe() {
		if mkt.Kind != domain.KindUpDown || !mkt.Tradable {
			continue
		}
		if mkt.HoursToExpiry(now) <= 0 {
			continue
		}
		if !ledger.PositionFor(mkt.Ticker).Flat() {
			continue
		}
		if !s.cooledDown(mkt.Ticker, now) {
			continue
		}

		snap, err := s.deps.Books.Snapshot(mkt.Ticker)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrStaleData) {
				continue
			}
			return nil, err
		}

		cand, ok := s.evaluate(mkt, snap, probUp, now)
		if ok {
			candidates = append(candidates, cand)
		}
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].edge > candidates[j].edge })
	if len(candidates) > s.cfg.TopN {
		candidates = candidates[:s.cfg.TopN]
	}

	signals := make([]domain.TradeSignal, 0, len(candidates))
	for _, c := range candidates {
		s.markEntry(c.sig.Ticker, now)
		signals = append(signals, c.sig)
	}
	return signals, nil
}

// evaluate checks both sides of one up/down market against the biased
// probability and returns the better, if it clears the fee.
func (s *FifteenMin) evaluate(mkt domain.Market, snap domain.BookSnapshot, probUp float64, now time.Time) (upDownCandidate, bool) {
	type sideQuote struct {
		side domain.Side
		fair int64
		ask  int64
		ok   bool
	}

	yesAsk, yesOK := snap.BestYesAsk()
	noAsk, noOK := snap.BestNoAsk()
	quotes := []sideQuote{
		{side: domain.SideYes, fair: pricing.Cents(probUp), ask: yesAsk, ok: yesOK},
		{side: domain.SideNo, fair: pricing.Cents(1 - probUp), ask: noAsk, ok: noOK},
	}

	best := upDownCandidate{}
	found := false
	for _, q := range quotes {
		if !q.ok {
			continue
		}
		takerFee := s.deps.Fees.Fee(s.cfg.Contracts, q.ask, fees.RoleTaker)
		edgeTotal := (q.fair-q.ask)*s.cfg.Contracts - takerFee
		if edgeTotal < s.cfg.MinEdgeCents*s.cfg.Contracts {
			continue
		}
		if found && edgeTotal <= best.edge {
			continue
		}

		best = upDownCandidate{
			edge: edgeTotal,
			sig: domain.TradeSignal{
				ID:         uuid.New().String(),
				Strategy:   s.Name(),
				Ticker:     mkt.Ticker,
				EventID:    mkt.EventID,
				Side:       q.side,
				Action:     domain.ActionBuy,
				TIF:        domain.TIFImmediateOrCancel,
				PriceCents: q.ask,
				Contracts:  s.cfg.Contracts,
				Urgency:    domain.SignalUrgencyHigh,
				Reason: fmt.Sprintf("momentum bias %+.3f, fair %d vs %s ask %d",
					probUp-0.5, q.fair, q.side, q.ask),
				CreatedAt: now,
				ExpiresAt: now.Add(s.cfg.SignalTTL),
			},
		}
		found = true
	}
	return best, found
}

func (s *FifteenMin) cooledDown(ticker string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.lastEntry[ticker]
	return !ok || now.Sub(last) >= s.cfg.Cooldown
}

func (s *FifteenMin) markEntry(ticker string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastEntry[ticker] = now
}
