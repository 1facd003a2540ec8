package executor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// pendingGroup buffers one leg group until every leg arrives or the gap
// timer fires.
type pendingGroup struct {
	legs     []domain.TradeSignal
	expected int
	policy   domain.LegPolicy
	timer    *time.Timer
}

// legAccumulator collects multi-leg signals by LegGroupID. A complete group
// is handed to onComplete as one batch; a group whose legs do not all arrive
// within maxGap is discarded through onTimeout.
type legAccumulator struct {
	mu         sync.Mutex
	groups     map[string]*pendingGroup
	maxGap     time.Duration
	onComplete func(ctx context.Context, legs []domain.TradeSignal, policy domain.LegPolicy)
	onTimeout  func(groupID string, received, expected int)
	logger     *slog.Logger
}

func newLegAccumulator(
	maxGap time.Duration,
	onComplete func(ctx context.Context, legs []domain.TradeSignal, policy domain.LegPolicy),
	onTimeout func(groupID string, received, expected int),
	logger *slog.Logger,
) *legAccumulator {
	return &legAccumulator{
		groups:     make(map[string]*pendingGroup),
		maxGap:     maxGap,
		onComplete: onComplete,
		onTimeout:  onTimeout,
		logger:     logger.With(slog.String("component", "leg_accumulator")),
	}
}

// Add buffers one leg. When the group completes, onComplete runs on the
// caller's goroutine with the accumulator unlocked.
func (a *legAccumulator) Add(ctx context.Context, sig domain.TradeSignal) {
	groupID := sig.LegGroupID

	a.mu.Lock()
	g, exists := a.groups[groupID]
	if !exists {
		expected := sig.LegCount
		if expected < 1 {
			expected = 1
		}
		g = &pendingGroup{expected: expected, policy: sig.LegPolicy}
		g.timer = time.AfterFunc(a.maxGap, func() { a.expire(groupID) })
		a.groups[groupID] = g
	}
	g.legs = append(g.legs, sig)

	if len(g.legs) < g.expected {
		a.mu.Unlock()
		return
	}

	g.timer.Stop()
	delete(a.groups, groupID)
	legs := make([]domain.TradeSignal, len(g.legs))
	copy(legs, g.legs)
	a.mu.Unlock()

	a.onComplete(ctx, legs, g.policy)
}

func (a *legAccumulator) expire(groupID string) {
	a.mu.Lock()
	g, ok := a.groups[groupID]
	if ok {
		delete(a.groups, groupID)
	}
	a.mu.Unlock()
	if !ok {
		return
	}

	a.logger.Warn("leg group timed out incomplete",
		slog.String("leg_group_id", groupID),
		slog.Int("received", len(g.legs)),
		slog.Int("expected", g.expected),
	)
	if a.onTimeout != nil {
		a.onTimeout(groupID, len(g.legs), g.expected)
	}
}
