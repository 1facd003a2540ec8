// Package book maintains live order books for subscribed markets. The venue
// sends bids-only books (YES bids and NO bids) as full snapshots followed by
// level deltas; asks are derived from the opposite side's bids.
package book

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// Manager holds the current book for every tracked ticker. Reads hand out
// copies; callers never observe a book mid-update.
type Manager struct {
	mu     sync.RWMutex
	books  map[string]*state
	maxAge time.Duration
	now    func() time.Time
}

type state struct {
	yesBids map[int64]int64 // price cents -> contracts
	noBids  map[int64]int64
	updated time.Time
}

// NewManager creates a Manager. Books older than maxAge are reported stale;
// maxAge <= 0 disables staleness checks.
func NewManager(maxAge time.Duration) *Manager {
	return &Manager{
		books:  make(map[string]*state),
		maxAge: maxAge,
		now:    time.Now,
	}
}

// SetClock overrides the time source, for tests.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// ApplySnapshot replaces the full book for a ticker.
func (m *Manager) ApplySnapshot(ticker string, yesBids, noBids []domain.BookLevel) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := &state{
		yesBids: make(map[int64]int64, len(yesBids)),
		noBids:  make(map[int64]int64, len(noBids)),
		updated: m.now(),
	}
	for _, l := range yesBids {
		if l.Contracts > 0 {
			st.yesBids[l.PriceCents] = l.Contracts
		}
	}
	for _, l := range noBids {
		if l.Contracts > 0 {
			st.noBids[l.PriceCents] = l.Contracts
		}
	}
	m.books[ticker] = st
}

// ApplyDelta updates a single level. Zero or negative contracts remove the
// level. Deltas for unknown tickers are dropped; the snapshot must arrive
// first.
func (m *Manager) ApplyDelta(ticker string, side domain.Side, priceCents, contracts int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.books[ticker]
	if !ok {
		return
	}

	levels := st.yesBids
	if side == domain.SideNo {
		levels = st.noBids
	}
	if contracts <= 0 {
		delete(levels, priceCents)
	} else {
		levels[priceCents] = contracts
	}
	st.updated = m.now()
}

// ApplyDepthChange adjusts one level by a signed contract delta, as the
// venue's delta feed reports. Levels driven to zero or below are removed.
func (m *Manager) ApplyDepthChange(ticker string, side domain.Side, priceCents, delta int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.books[ticker]
	if !ok {
		return
	}

	levels := st.yesBids
	if side == domain.SideNo {
		levels = st.noBids
	}
	next := levels[priceCents] + delta
	if next <= 0 {
		delete(levels, priceCents)
	} else {
		levels[priceCents] = next
	}
	st.updated = m.now()
}

// Snapshot returns a copy of the ticker's book with levels sorted best
// first. It returns domain.ErrNotFound for untracked tickers and
// domain.ErrStaleData when the book has not updated within the max age.
func (m *Manager) Snapshot(ticker string) (domain.BookSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.books[ticker]
	if !ok {
		return domain.BookSnapshot{}, fmt.Errorf("book: %s: %w", ticker, domain.ErrNotFound)
	}

	snap := domain.BookSnapshot{
		Ticker:    ticker,
		YesBids:   sortedLevels(st.yesBids),
		NoBids:    sortedLevels(st.noBids),
		UpdatedAt: st.updated,
	}

	if m.maxAge > 0 && m.now().Sub(st.updated) > m.maxAge {
		return snap, fmt.Errorf("book: %s last update %s: %w",
			ticker, st.updated.Format(time.RFC3339), domain.ErrStaleData)
	}
	return snap, nil
}

// Tickers returns the tracked ticker set.
func (m *Manager) Tickers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.books))
	for t := range m.books {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Drop removes a ticker's book, e.g. after the market settles.
func (m *Manager) Drop(ticker string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.books, ticker)
}

func sortedLevels(levels map[int64]int64) []domain.BookLevel {
	out := make([]domain.BookLevel, 0, len(levels))
	for p, c := range levels {
		out = append(out, domain.BookLevel{PriceCents: p, Contracts: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PriceCents > out[j].PriceCents })
	return out
}
