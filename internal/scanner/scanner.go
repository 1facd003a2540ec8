// Package scanner discovers and classifies tradable markets. It maps raw
// venue metadata onto domain markets, groups strike ladders by event, and
// maintains a cached universe refreshed on a cadence.
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// RawMarket is venue metadata before classification.
type RawMarket struct {
	Ticker      string
	EventTicker string
	Series      string
	StrikeType  string // "greater", "less", "between", or empty
	FloorStrike float64
	CapStrike   float64
	ExpiresAt   time.Time
	Volume24h   int64
	Status      string
}

// Lister fetches active markets from the venue.
type Lister interface {
	ActiveMarkets(ctx context.Context, series []string) ([]RawMarket, error)
}

// strikePattern extracts the strike embedded in threshold and range tickers,
// e.g. "KXBTCD-25AUG3117-T112249.99" or "...-B112375".
var strikePattern = regexp.MustCompile(`-[TB](\d+(?:\.\d+)?)$`)

// upDownPattern matches the 15-minute up/down series tickers.
var upDownPattern = regexp.MustCompile(`(?i)(updown|15m)`)

// Classify converts raw venue metadata into a domain market. Classification
// prefers the explicit strike type and falls back to parsing the ticker.
func Classify(raw RawMarket, symbol string) (domain.Market, error) {
	m := domain.Market{
		Ticker:    raw.Ticker,
		EventID:   raw.EventTicker,
		Symbol:    symbol,
		ExpiresAt: raw.ExpiresAt,
		Volume24h: raw.Volume24h,
		Tradable:  raw.Status == "active",
	}

	switch raw.StrikeType {
	case "greater", "greater_or_equal":
		m.Kind = domain.KindAbove
		m.StrikeCents = toCents(raw.FloorStrike)
	case "less", "less_or_equal":
		m.Kind = domain.KindBelow
		m.StrikeCents = toCents(raw.CapStrike)
	case "between":
		m.Kind = domain.KindRange
		m.StrikeCents = toCents(raw.FloorStrike)
		m.CapCents = toCents(raw.CapStrike)
	case "":
		if upDownPattern.MatchString(raw.Series) || upDownPattern.MatchString(raw.Ticker) {
			m.Kind = domain.KindUpDown
			break
		}
		strike, ok := strikeFromTicker(raw.Ticker)
		if !ok {
			return domain.Market{}, fmt.Errorf("scanner: classify %s: %w", raw.Ticker, domain.ErrInvalidInput)
		}
		m.Kind = domain.KindAbove
		m.StrikeCents = toCents(strike)
	default:
		return domain.Market{}, fmt.Errorf("scanner: strike type %q on %s: %w",
			raw.StrikeType, raw.Ticker, domain.ErrInvalidInput)
	}

	if m.Kind != domain.KindUpDown && m.StrikeCents <= 0 {
		return domain.Market{}, fmt.Errorf("scanner: no strike on %s: %w", raw.Ticker, domain.ErrInvalidInput)
	}
	if m.Kind == domain.KindRange && m.CapCents <= m.StrikeCents {
		return domain.Market{}, fmt.Errorf("scanner: range bounds on %s: %w", raw.Ticker, domain.ErrInvalidInput)
	}
	return m, nil
}

func strikeFromTicker(ticker string) (float64, bool) {
	match := strikePattern.FindStringSubmatch(ticker)
	if match == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func toCents(v float64) int64 {
	return int64(v*100 + 0.5)
}

// Filter returns markets that are tradable, unexpired, meet the volume
// floor, and settle within maxHours.
func Filter(markets []domain.Market, now time.Time, minVolume int64, maxHours float64) []domain.Market {
	out := make([]domain.Market, 0, len(markets))
	for _, m := range markets {
		if !m.Tradable || m.Volume24h < minVolume {
			continue
		}
		h := m.HoursToExpiry(now)
		if h <= 0 || h > maxHours {
			continue
		}
		out = append(out, m)
	}
	return out
}

// GroupByEvent buckets markets by event with each ladder sorted by strike
// ascending.
func GroupByEvent(markets []domain.Market) map[string][]domain.Market {
	groups := make(map[string][]domain.Market)
	for _, m := range markets {
		groups[m.EventID] = append(groups[m.EventID], m)
	}
	for _, ladder := range groups {
		sort.Slice(ladder, func(i, j int) bool {
			return ladder[i].StrikeCents < ladder[j].StrikeCents
		})
	}
	return groups
}

// NearestStrikes returns the ladder entries closest to spot: the at-the-money
// strike and up to `wings` neighbors on each side.
func NearestStrikes(ladder []domain.Market, spot float64, wings int) []domain.Market {
	if len(ladder) == 0 {
		return nil
	}

	atm := 0
	best := -1.0
	for i, m := range ladder {
		d := spot - m.Strike()
		if d < 0 {
			d = -d
		}
		if best < 0 || d < best {
			best = d
			atm = i
		}
	}

	lo := atm - wings
	if lo < 0 {
		lo = 0
	}
	hi := atm + wings + 1
	if hi > len(ladder) {
		hi = len(ladder)
	}
	out := make([]domain.Market, hi-lo)
	copy(out, ladder[lo:hi])
	return out
}

// Scanner maintains a cached market universe.
type Scanner struct {
	lister Lister
	series []string
	symbol string
	logger *slog.Logger

	mu       sync.RWMutex
	universe []domain.Market
	byTicker map[string]domain.Market
}

// New creates a Scanner over the given series tickers for one underlying.
func New(lister Lister, series []string, symbol string, logger *slog.Logger) *Scanner {
	return &Scanner{
		lister:   lister,
		series:   series,
		symbol:   symbol,
		logger:   logger.With(slog.String("component", "scanner")),
		byTicker: make(map[string]domain.Market),
	}
}

// Refresh reloads the universe from the venue. Markets that fail
// classification are skipped with a warning.
func (s *Scanner) Refresh(ctx context.Context) error {
	raws, err := s.lister.ActiveMarkets(ctx, s.series)
	if err != nil {
		return fmt.Errorf("scanner: refresh: %w", err)
	}

	universe := make([]domain.Market, 0, len(raws))
	byTicker := make(map[string]domain.Market, len(raws))
	for _, raw := range raws {
		m, err := Classify(raw, s.symbol)
		if err != nil {
			s.logger.WarnContext(ctx, "skipping unclassifiable market",
				slog.String("ticker", raw.Ticker),
				slog.String("error", err.Error()),
			)
			continue
		}
		universe = append(universe, m)
		byTicker[m.Ticker] = m
	}

	s.mu.Lock()
	s.universe = universe
	s.byTicker = byTicker
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "universe refreshed",
		slog.Int("markets", len(universe)),
	)
	return nil
}

// Universe returns a copy of the cached universe.
func (s *Scanner) Universe() []domain.Market {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Market, len(s.universe))
	copy(out, s.universe)
	return out
}

// Lookup returns a market by ticker.
func (s *Scanner) Lookup(ticker string) (domain.Market, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byTicker[ticker]
	return m, ok
}
