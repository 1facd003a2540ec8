package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/kalshibot/internal/domain"
	"github.com/alanyoungcy/kalshibot/internal/fees"
	"github.com/alanyoungcy/kalshibot/internal/scanner"
)

// ArbitrageConfig tunes the cross-strike arbitrage scans.
type ArbitrageConfig struct {
	Interval          time.Duration
	MinProfitCents    int64 // required net profit per contract
	MaxContracts      int64 // size cap per structure
	RangeSumThreshold int64 // buy a range partition when asks sum below this
	SignalTTL         time.Duration
}

// DefaultArbitrageConfig returns the standard tuning.
func DefaultArbitrageConfig() ArbitrageConfig {
	return ArbitrageConfig{
		Interval:          5 * time.Second,
		MinProfitCents:    2,
		MaxContracts:      100,
		RangeSumThreshold: 95,
		SignalTTL:         10 * time.Second,
	}
}

// Arbitrage hunts structural mispricings inside an event ladder:
//
//   - monotonicity: P(above K_low) ≥ P(above K_high), so a higher strike's
//     bid crossing a lower strike's ask is free money;
//   - parity: a strike's YES ask plus NO ask summing under $1;
//   - range sum: a partition of range markets whose asks sum under $1.
//
// Every structure is emitted as an all-or-none leg group sized to the
// thinnest leg.
type Arbitrage struct {
	cfg    ArbitrageConfig
	deps   Deps
	logger *slog.Logger
}

// NewArbitrage creates the arbitrage strategy.
func NewArbitrage(cfg ArbitrageConfig, deps Deps, logger *slog.Logger) *Arbitrage {
	return &Arbitrage{
		cfg:    cfg,
		deps:   deps,
		logger: logger.With(slog.String("component", "arbitrage")),
	}
}

func (s *Arbitrage) Name() string            { return "arbitrage" }
func (s *Arbitrage) Interval() time.Duration { return s.cfg.Interval }
func (s *Arbitrage) Close() error            { return nil }

// Scan walks every event ladder looking for the three structures.
func (s *Arbitrage) Scan(ctx context.Context) ([]domain.TradeSignal, error) {
	now := s.deps.now()

	var signals []domain.TradeSignal
	for _, ladder := range scanner.GroupByEvent(s.deps.Markets.Universe()) {
		books, ok := s.snapshotLadder(ladder)
		if !ok {
			continue
		}

		signals = append(signals, s.scanMonotonicity(ladder, books, now)...)
		signals = append(signals, s.scanParity(ladder, books, now)...)
		signals = append(signals, s.scanRangeSum(ladder, books, now)...)
	}
	return signals, nil
}

// snapshotLadder fetches every book in the ladder. A stale book poisons the
// whole event; missing books just exclude their legs.
func (s *Arbitrage) snapshotLadder(ladder []domain.Market) (map[string]domain.BookSnapshot, bool) {
	books := make(map[string]domain.BookSnapshot, len(ladder))
	for _, mkt := range ladder {
		snap, err := s.deps.Books.Snapshot(mkt.Ticker)
		if err != nil {
			if errors.Is(err, domain.ErrStaleData) {
				return nil, false
			}
			continue
		}
		books[mkt.Ticker] = snap
	}
	return books, true
}

// scanMonotonicity pairs every lower strike with every higher strike in the
// above-kind ladder. Buying YES at the low strike's ask and NO at the high
// strike's derived ask locks the crossed quotes in.
func (s *Arbitrage) scanMonotonicity(ladder []domain.Market, books map[string]domain.BookSnapshot, now time.Time) []domain.TradeSignal {
	thresholds := aboveOnly(ladder)

	var signals []domain.TradeSignal
	for i := 0; i < len(thresholds); i++ {
		for j := i + 1; j < len(thresholds); j++ {
			low, high := thresholds[i], thresholds[j]
			lowBook, okL := books[low.Ticker]
			highBook, okH := books[high.Ticker]
			if !okL || !okH {
				continue
			}

			lowAsk, ok := lowBook.BestYesAsk()
			if !ok {
				continue
			}
			highBid, ok := highBook.BestYesBid()
			if !ok {
				continue
			}
			if highBid <= lowAsk {
				continue
			}

			size := min64(lowBook.AskDepth(domain.SideYes), highBook.BidDepth(domain.SideYes))
			size = min64(size, s.cfg.MaxContracts)
			if size <= 0 {
				continue
			}

			// Selling YES at the high bid is buying NO at its complement.
			highNoPrice := 100 - highBid
			gross := (highBid - lowAsk) * size
			cost := s.deps.Fees.Fee(size, lowAsk, fees.RoleTaker) +
				s.deps.Fees.Fee(size, highNoPrice, fees.RoleTaker)
			if gross-cost < s.cfg.MinProfitCents*size {
				continue
			}

			legs := []leg{
				{market: low, side: domain.SideYes, price: lowAsk},
				{market: high, side: domain.SideNo, price: highNoPrice},
			}
			signals = append(signals, s.legGroup(legs, size, now,
				fmt.Sprintf("monotonicity: %s bid %d over %s ask %d", high.Ticker, highBid, low.Ticker, lowAsk))...)
		}
	}
	return signals
}

// scanParity buys YES and NO on the same strike when the derived asks sum
// under a dollar after fees.
func (s *Arbitrage) scanParity(ladder []domain.Market, books map[string]domain.BookSnapshot, now time.Time) []domain.TradeSignal {
	var signals []domain.TradeSignal
	for _, mkt := range ladder {
		book, ok := books[mkt.Ticker]
		if !ok {
			continue
		}
		yesAsk, okY := book.BestYesAsk()
		noAsk, okN := book.BestNoAsk()
		if !okY || !okN || yesAsk+noAsk >= 100 {
			continue
		}

		size := min64(book.AskDepth(domain.SideYes), book.AskDepth(domain.SideNo))
		size = min64(size, s.cfg.MaxContracts)
		if size <= 0 {
			continue
		}

		gross := (100 - yesAsk - noAsk) * size
		cost := s.deps.Fees.Fee(size, yesAsk, fees.RoleTaker) +
			s.deps.Fees.Fee(size, noAsk, fees.RoleTaker)
		if gross-cost < s.cfg.MinProfitCents*size {
			continue
		}

		legs := []leg{
			{market: mkt, side: domain.SideYes, price: yesAsk},
			{market: mkt, side: domain.SideNo, price: noAsk},
		}
		signals = append(signals, s.legGroup(legs, size, now,
			fmt.Sprintf("parity: yes %d + no %d < 100", yesAsk, noAsk))...)
	}
	return signals
}

// scanRangeSum buys a full partition of adjacent range markets when the
// asks sum under the threshold. Exactly one range settles YES, so the
// structure pays 100 at expiry. A missing ask invalidates the partition.
func (s *Arbitrage) scanRangeSum(ladder []domain.Market, books map[string]domain.BookSnapshot, now time.Time) []domain.TradeSignal {
	partition := contiguousRanges(ladder)
	if len(partition) < 2 {
		return nil
	}

	var sum int64
	size := s.cfg.MaxContracts
	legs := make([]leg, 0, len(partition))
	for _, mkt := range partition {
		book, ok := books[mkt.Ticker]
		if !ok {
			return nil
		}
		ask, ok := book.BestYesAsk()
		if !ok {
			return nil
		}
		sum += ask
		size = min64(size, book.AskDepth(domain.SideYes))
		legs = append(legs, leg{market: mkt, side: domain.SideYes, price: ask})
	}

	if sum >= s.cfg.RangeSumThreshold || size <= 0 {
		return nil
	}

	gross := (100 - sum) * size
	var cost int64
	for _, l := range legs {
		cost += s.deps.Fees.Fee(size, l.price, fees.RoleTaker)
	}
	if gross-cost < s.cfg.MinProfitCents*size {
		return nil
	}

	return s.legGroup(legs, size, now, fmt.Sprintf("range sum %d across %d legs", sum, len(legs)))
}

type leg struct {
	market domain.Market
	side   domain.Side
	price  int64
}

// legGroup stamps the legs with a shared group id under all-or-none policy.
func (s *Arbitrage) legGroup(legs []leg, size int64, now time.Time, reason string) []domain.TradeSignal {
	groupID := uuid.New().String()

	signals := make([]domain.TradeSignal, 0, len(legs))
	for i, l := range legs {
		signals = append(signals, domain.TradeSignal{
			ID:         uuid.New().String(),
			Strategy:   s.Name(),
			Ticker:     l.market.Ticker,
			EventID:    l.market.EventID,
			Side:       l.side,
			Action:     domain.ActionBuy,
			TIF:        domain.TIFImmediateOrCancel,
			PriceCents: l.price,
			Contracts:  size,
			Urgency:    domain.SignalUrgencyHigh,
			Reason:     reason,
			LegGroupID: groupID,
			LegIndex:   i,
			LegCount:   len(legs),
			LegPolicy:  domain.LegPolicyAllOrNone,
			CreatedAt:  now,
			ExpiresAt:  now.Add(s.cfg.SignalTTL),
		})
	}

	s.logger.Info("arbitrage structure found",
		slog.String("leg_group_id", groupID),
		slog.Int("legs", len(legs)),
		slog.Int64("contracts", size),
		slog.String("reason", reason),
	)
	return signals
}

// contiguousRanges returns the ladder's range markets when they tile an
// interval without gaps, in strike order. Any gap breaks the partition.
func contiguousRanges(ladder []domain.Market) []domain.Market {
	ranges := make([]domain.Market, 0, len(ladder))
	for _, m := range ladder {
		if m.Kind == domain.KindRange {
			ranges = append(ranges, m)
		}
	}
	if len(ranges) < 2 {
		return nil
	}
	for i := 1; i < len(ranges); i++ {
		if ranges[i].StrikeCents != ranges[i-1].CapCents {
			return nil
		}
	}
	return ranges
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
