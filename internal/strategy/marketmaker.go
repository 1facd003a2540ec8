package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/kalshibot/internal/domain"
	"github.com/alanyoungcy/kalshibot/internal/fees"
	"github.com/alanyoungcy/kalshibot/internal/pricing"
	"github.com/alanyoungcy/kalshibot/internal/scanner"
)

// MarketMakerConfig tunes the two-sided quoting strategy.
type MarketMakerConfig struct {
	Interval        time.Duration
	MinVolume24h    int64         // only quote liquid strikes
	Wings           int           // strikes quoted each side of ATM
	SpreadCents     int64         // full quoted spread around fair
	QuoteContracts  int64         // size per side
	MaxNetContracts int64         // hard per-event inventory cap
	HedgeTrigger    int64         // inventory that starts leaning quotes
	LeanCents       int64         // quote shift applied past the trigger
	RequoteInterval time.Duration // min spacing between full requotes
	KillMovePct     float64       // spot move that pulls quotes
	KillWindow      time.Duration // window the move is measured over
	KillPause       time.Duration // quoting pause after a trip
	SignalTTL       time.Duration
}

// DefaultMarketMakerConfig returns the standard tuning.
func DefaultMarketMakerConfig() MarketMakerConfig {
	return MarketMakerConfig{
		Interval:        3 * time.Second,
		MinVolume24h:    10_000,
		Wings:           1,
		SpreadCents:     4,
		QuoteContracts:  50,
		MaxNetContracts: 500,
		HedgeTrigger:    200,
		LeanCents:       1,
		RequoteInterval: 3 * time.Second,
		KillMovePct:     0.02,
		KillWindow:      30 * time.Minute,
		KillPause:       5 * time.Minute,
		SignalTTL:       10 * time.Second,
	}
}

// MarketMaker quotes both sides of the at-the-money strikes on daily
// events: a YES bid below fair and a NO bid below the complementary fair,
// which together make a two-sided market around the model price. Inventory
// past the hedge trigger leans quotes toward reduction; inventory past the
// hard cap is flattened at market. A fast spot move pulls every quote and
// pauses the strategy.
type MarketMaker struct {
	cfg    MarketMakerConfig
	deps   Deps
	logger *slog.Logger

	mu          sync.Mutex
	lastRequote map[string]time.Time // ticker -> last quote placement
	quoted      map[string]bool      // tickers with live quotes
	pausedUntil time.Time
}

// NewMarketMaker creates the quoting strategy.
func NewMarketMaker(cfg MarketMakerConfig, deps Deps, logger *slog.Logger) *MarketMaker {
	return &MarketMaker{
		cfg:         cfg,
		deps:        deps,
		logger:      logger.With(slog.String("component", "market_maker")),
		lastRequote: make(map[string]time.Time),
		quoted:      make(map[string]bool),
	}
}

func (s *MarketMaker) Name() string            { return "market_maker" }
func (s *MarketMaker) Interval() time.Duration { return s.cfg.Interval }
func (s *MarketMaker) Close() error            { return nil }

// Scan requotes the ATM band, manages inventory, and enforces the
// spot-move kill switch.
func (s *MarketMaker) Scan(ctx context.Context) ([]domain.TradeSignal, error) {
	now := s.deps.now()

	spot, _, err := s.deps.Spot.Last(s.deps.Symbol)
	if err != nil {
		return nil, fmt.Errorf("market_maker: spot: %w", err)
	}

	// Kill switch: a fast spot move makes stale quotes toxic.
	move := s.deps.Spot.Momentum(s.deps.Symbol, s.cfg.KillWindow)
	if move < 0 {
		move = -move
	}
	if move >= s.cfg.KillMovePct {
		return s.tripKillSwitch(now, move), nil
	}
	if s.paused(now) {
		return nil, nil
	}

	vol := s.deps.Spot.Volatility(s.deps.Symbol)
	ledger := s.deps.Ledger.Snapshot()

	var signals []domain.TradeSignal
	quotable := scanner.Filter(s.deps.Markets.Universe(), now, s.cfg.MinVolume24h, 24)
	for eventID, ladder := range scanner.GroupByEvent(quotable) {
		net := ledger.EventNetContracts(eventID)

		// Hard cap: stop quoting and flatten the excess at market.
		if net >= s.cfg.MaxNetContracts || net <= -s.cfg.MaxNetContracts {
			signals = append(signals, s.flattenExcess(eventID, ladder, ledger, now)...)
			continue
		}

		for _, mkt := range scanner.NearestStrikes(aboveOnly(ladder), spot, s.cfg.Wings) {
			quote, ok := s.quoteFor(mkt, spot, vol, net, now)
			if ok {
				signals = append(signals, quote...)
			}
		}
	}
	return signals, nil
}

// quoteFor builds the two-sided quote for one strike, if it is profitable
// and the requote interval has elapsed.
func (s *MarketMaker) quoteFor(mkt domain.Market, spot, vol float64, eventNet int64, now time.Time) ([]domain.TradeSignal, bool) {
	if !s.requoteDue(mkt.Ticker, now) {
		return nil, false
	}

	// An absent book is quotable; a stale one is not.
	if _, err := s.deps.Books.Snapshot(mkt.Ticker); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, false
	}

	fair, err := s.deps.Pricer.Fair(mkt, spot, vol, now)
	if err != nil {
		return nil, false
	}
	fairCents := pricing.Cents(fair)

	half := s.cfg.SpreadCents / 2
	bid := fairCents - half
	askEquiv := fairCents + half // quoted by bidding NO at 100−ask

	// Lean quotes once inventory passes the hedge trigger: long inventory
	// lowers both quotes to favor selling, short inventory raises them.
	if eventNet >= s.cfg.HedgeTrigger {
		bid -= s.cfg.LeanCents
		askEquiv -= s.cfg.LeanCents
	} else if eventNet <= -s.cfg.HedgeTrigger {
		bid += s.cfg.LeanCents
		askEquiv += s.cfg.LeanCents
	}

	noBid := 100 - askEquiv
	if bid < 1 || noBid < 1 || bid > 99 || noBid > 99 {
		return nil, false
	}

	// Both legs must clear the maker fee against fair.
	yesFee := s.deps.Fees.Fee(s.cfg.QuoteContracts, bid, fees.RoleMaker)
	noFee := s.deps.Fees.Fee(s.cfg.QuoteContracts, noBid, fees.RoleMaker)
	if (fairCents-bid)*s.cfg.QuoteContracts <= yesFee {
		return nil, false
	}
	if (askEquiv-fairCents)*s.cfg.QuoteContracts <= noFee {
		return nil, false
	}

	s.markRequote(mkt.Ticker, now)

	base := domain.TradeSignal{
		Strategy:  s.Name(),
		Ticker:    mkt.Ticker,
		EventID:   mkt.EventID,
		Action:    domain.ActionBuy,
		TIF:       domain.TIFPostOnly,
		Directive: domain.DirectiveRequote,
		Contracts: s.cfg.QuoteContracts,
		Urgency:   domain.SignalUrgencyLow,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.SignalTTL),
	}

	yesQuote := base
	yesQuote.ID = uuid.New().String()
	yesQuote.Side = domain.SideYes
	yesQuote.PriceCents = bid
	yesQuote.Reason = fmt.Sprintf("quote yes %d / no %d around fair %d", bid, noBid, fairCents)

	noQuote := base
	noQuote.ID = uuid.New().String()
	noQuote.Side = domain.SideNo
	noQuote.PriceCents = noBid
	noQuote.Reason = yesQuote.Reason

	return []domain.TradeSignal{yesQuote, noQuote}, true
}

// flattenExcess pulls quotes on the event and sells inventory back to the
// cap at market.
func (s *MarketMaker) flattenExcess(eventID string, ladder []domain.Market, ledger domain.LedgerSnapshot, now time.Time) []domain.TradeSignal {
	var signals []domain.TradeSignal

	for _, mkt := range ladder {
		if s.hasQuote(mkt.Ticker) {
			signals = append(signals, s.cancelSignal(mkt, now))
		}

		pos := ledger.PositionFor(mkt.Ticker)
		if pos.Flat() {
			continue
		}

		snap, err := s.deps.Books.Snapshot(mkt.Ticker)
		if err != nil {
			continue
		}

		sig, ok := s.reduceAtMarket(mkt, pos, snap, now)
		if ok {
			signals = append(signals, sig)
		}
	}

	s.logger.Warn("inventory cap exceeded, flattening",
		slog.String("event", eventID),
		slog.Int64("net_contracts", ledger.EventNetContracts(eventID)),
	)
	return signals
}

// reduceAtMarket crosses the spread to cut one position.
func (s *MarketMaker) reduceAtMarket(mkt domain.Market, pos domain.Position, snap domain.BookSnapshot, now time.Time) (domain.TradeSignal, bool) {
	contracts := pos.NetContracts
	side := domain.SideYes
	action := domain.ActionSell
	var price int64
	var ok bool

	if contracts > 0 {
		// Long YES: sell into the YES bid.
		price, ok = snap.BestYesBid()
	} else {
		// Short YES: buy YES back at the derived ask.
		contracts = -contracts
		action = domain.ActionBuy
		price, ok = snap.BestYesAsk()
	}
	if !ok {
		return domain.TradeSignal{}, false
	}

	return domain.TradeSignal{
		ID:         uuid.New().String(),
		Strategy:   s.Name(),
		Ticker:     mkt.Ticker,
		EventID:    mkt.EventID,
		Side:       side,
		Action:     action,
		TIF:        domain.TIFImmediateOrCancel,
		PriceCents: price,
		Contracts:  contracts,
		Urgency:    domain.SignalUrgencyImmediate,
		Reason:     "inventory cap flatten",
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.cfg.SignalTTL),
	}, true
}

// tripKillSwitch pulls every live quote and pauses quoting.
func (s *MarketMaker) tripKillSwitch(now time.Time, move float64) []domain.TradeSignal {
	s.mu.Lock()
	alreadyPaused := now.Before(s.pausedUntil)
	quoted := make([]string, 0, len(s.quoted))
	for t := range s.quoted {
		quoted = append(quoted, t)
	}
	s.pausedUntil = now.Add(s.cfg.KillPause)
	s.quoted = make(map[string]bool)
	s.mu.Unlock()

	if alreadyPaused && len(quoted) == 0 {
		return nil
	}

	s.logger.Warn("kill switch tripped, pulling quotes",
		slog.Float64("spot_move", move),
		slog.Int("quoted_tickers", len(quoted)),
		slog.Time("paused_until", now.Add(s.cfg.KillPause)),
	)

	signals := make([]domain.TradeSignal, 0, len(quoted))
	for _, ticker := range quoted {
		signals = append(signals, domain.TradeSignal{
			ID:        uuid.New().String(),
			Strategy:  s.Name(),
			Ticker:    ticker,
			TIF:       domain.TIFPostOnly,
			Directive: domain.DirectiveCancel,
			Urgency:   domain.SignalUrgencyImmediate,
			Reason:    fmt.Sprintf("kill switch: spot moved %.2f%%", move*100),
			CreatedAt: now,
			ExpiresAt: now.Add(s.cfg.SignalTTL),
		})
	}
	return signals
}

func (s *MarketMaker) cancelSignal(mkt domain.Market, now time.Time) domain.TradeSignal {
	s.mu.Lock()
	delete(s.quoted, mkt.Ticker)
	s.mu.Unlock()

	return domain.TradeSignal{
		ID:        uuid.New().String(),
		Strategy:  s.Name(),
		Ticker:    mkt.Ticker,
		EventID:   mkt.EventID,
		TIF:       domain.TIFPostOnly,
		Directive: domain.DirectiveCancel,
		Urgency:   domain.SignalUrgencyImmediate,
		Reason:    "pulling quote",
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.SignalTTL),
	}
}

func (s *MarketMaker) hasQuote(ticker string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quoted[ticker]
}

func (s *MarketMaker) paused(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Before(s.pausedUntil)
}

func (s *MarketMaker) requoteDue(ticker string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.lastRequote[ticker]
	return !ok || now.Sub(last) >= s.cfg.RequoteInterval
}

func (s *MarketMaker) markRequote(ticker string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRequote[ticker] = now
	s.quoted[ticker] = true
}

// aboveOnly keeps the threshold strikes that form the event ladder.
func aboveOnly(ladder []domain.Market) []domain.Market {
	out := make([]domain.Market, 0, len(ladder))
	for _, m := range ladder {
		if m.Kind == domain.KindAbove {
			out = append(out, m)
		}
	}
	return out
}
