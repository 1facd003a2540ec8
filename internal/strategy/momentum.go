package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/kalshibot/internal/domain"
	"github.com/alanyoungcy/kalshibot/internal/fees"
	"github.com/alanyoungcy/kalshibot/internal/pricing"
)

// MomentumConfig tunes the deep in-the-money scalp.
type MomentumConfig struct {
	Interval     time.Duration
	MinFair      float64 // minimum model probability to consider
	MaxAskCents  int64   // never pay more than this
	MinEdgeCents int64   // required edge per contract after the maker fee
	MinDepth     int64   // contracts resting at the derived ask
	MaxHours     float64 // ignore markets settling further out
	Contracts    int64   // order size
	TopN         int     // best candidates per scan
	SignalTTL    time.Duration
}

// DefaultMomentumConfig returns the standard scalp tuning.
func DefaultMomentumConfig() MomentumConfig {
	return MomentumConfig{
		Interval:     10 * time.Second,
		MinFair:      0.90,
		MaxAskCents:  93,
		MinEdgeCents: 3,
		MinDepth:     20,
		MaxHours:     8,
		Contracts:    10,
		TopN:         5,
		SignalTTL:    30 * time.Second,
	}
}

// Momentum buys deeply in-the-money contracts when the book lags the model:
// fair value near certainty but the derived ask still cheap. Orders post
// one cent above the best bid so fills earn the maker rebate schedule.
type Momentum struct {
	cfg    MomentumConfig
	deps   Deps
	logger *slog.Logger
}

// NewMomentum creates the scalp strategy.
func NewMomentum(cfg MomentumConfig, deps Deps, logger *slog.Logger) *Momentum {
	return &Momentum{
		cfg:    cfg,
		deps:   deps,
		logger: logger.With(slog.String("component", "momentum")),
	}
}

func (s *Momentum) Name() string            { return "momentum" }
func (s *Momentum) Interval() time.Duration { return s.cfg.Interval }
func (s *Momentum) Close() error            { return nil }

type scalpCandidate struct {
	sig  domain.TradeSignal
	edge int64
}

// Scan ranks qualifying markets by model edge and emits post-only buys for
// the best few.
func (s *Momentum) Scan(ctx context.Context) ([]domain.TradeSignal, error) {
	now := s.deps.now()

	spot, _, err := s.deps.Spot.Last(s.deps.Symbol)
	if err != nil {
		return nil, fmt.Errorf("momentum: spot: %w", err)
	}
	vol := s.deps.Spot.Volatility(s.deps.Symbol)
	ledger := s.deps.Ledger.Snapshot()

	var candidates []scalpCandidate
	for _, mkt := range s.deps.Markets.Universe() {
		if mkt.Kind != domain.KindAbove && mkt.Kind != domain.KindBelow {
			continue
		}
		if !mkt.Tradable || mkt.HoursToExpiry(now) > s.cfg.MaxHours || mkt.HoursToExpiry(now) <= 0 {
			continue
		}
		if !ledger.PositionFor(mkt.Ticker).Flat() {
			continue
		}

		snap, err := s.deps.Books.Snapshot(mkt.Ticker)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrStaleData) {
				continue
			}
			return nil, err
		}

		cand, ok := s.evaluate(mkt, snap, spot, vol, now)
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
		signals = append(signals, c.sig)
	}
	return signals, nil
}

// evaluate applies the entry conditions to one market.
func (s *Momentum) evaluate(mkt domain.Market, snap domain.BookSnapshot, spot, vol float64, now time.Time) (scalpCandidate, bool) {
	ask, ok := snap.BestYesAsk()
	if !ok || ask > s.cfg.MaxAskCents {
		return scalpCandidate{}, false
	}
	bid, ok := snap.BestYesBid()
	if !ok {
		return scalpCandidate{}, false
	}
	if snap.AskDepth(domain.SideYes) < s.cfg.MinDepth {
		return scalpCandidate{}, false
	}

	fair, err := s.deps.Pricer.Fair(mkt, spot, vol, now)
	if err != nil {
		s.logger.Warn("pricing failed",
			slog.String("ticker", mkt.Ticker),
			slog.String("error", err.Error()),
		)
		return scalpCandidate{}, false
	}
	if fair < s.cfg.MinFair {
		return scalpCandidate{}, false
	}

	// Post one cent above the best bid without crossing the ask.
	limit := bid + 1
	if limit >= ask {
		limit = ask - 1
	}
	if limit <= 0 {
		return scalpCandidate{}, false
	}

	fairCents := pricing.Cents(fair)
	makerFee := s.deps.Fees.Fee(s.cfg.Contracts, limit, fees.RoleMaker)
	// Entry gates on the quoted ask; the posted limit only improves the
	// realized edge.
	edgeTotal := (fairCents-ask)*s.cfg.Contracts - makerFee
	if edgeTotal < s.cfg.MinEdgeCents*s.cfg.Contracts {
		return scalpCandidate{}, false
	}

	sig := domain.TradeSignal{
		ID:         uuid.New().String(),
		Strategy:   s.Name(),
		Ticker:     mkt.Ticker,
		EventID:    mkt.EventID,
		Side:       domain.SideYes,
		Action:     domain.ActionBuy,
		TIF:        domain.TIFPostOnly,
		PriceCents: limit,
		Contracts:  s.cfg.Contracts,
		Urgency:    domain.SignalUrgencyMedium,
		Reason: fmt.Sprintf("fair %d vs ask %d, edge %d/contract after maker fee",
			fairCents, ask, edgeTotal/s.cfg.Contracts),
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.SignalTTL),
	}
	return scalpCandidate{sig: sig, edge: edgeTotal}, true
}
