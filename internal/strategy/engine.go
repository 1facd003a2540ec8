package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// Engine runs the enabled strategies, each on its own cadence, and forwards
// emitted signals to the channel consumed by the executor. Scan errors are
// logged and the cadence continues; only context cancellation stops a
// strategy loop.
type Engine struct {
	registry *Registry
	enabled  []string
	signalCh chan<- domain.TradeSignal
	logger   *slog.Logger

	mu            sync.Mutex
	recentSignals []domain.TradeSignal
	recentLimit   int
	dropped       int64
}

// NewEngine creates an Engine emitting into signalCh.
func NewEngine(registry *Registry, enabled []string, signalCh chan<- domain.TradeSignal, logger *slog.Logger) (*Engine, error) {
	for _, name := range enabled {
		if _, err := registry.Get(name); err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
	}
	return &Engine{
		registry:    registry,
		enabled:     enabled,
		signalCh:    signalCh,
		logger:      logger.With(slog.String("component", "strategy_engine")),
		recentLimit: 500,
	}, nil
}

// RunAll runs every enabled strategy until the context is cancelled, then
// closes each strategy.
func (e *Engine) RunAll(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, name := range e.enabled {
		s, err := e.registry.Get(name)
		if err != nil {
			return err
		}
		g.Go(func() error {
			defer func() {
				if cerr := s.Close(); cerr != nil {
					e.logger.Warn("strategy close failed",
						slog.String("strategy", s.Name()),
						slog.String("error", cerr.Error()),
					)
				}
			}()
			return e.runOne(ctx, s)
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// runOne drives one strategy's scan cadence.
func (e *Engine) runOne(ctx context.Context, s Strategy) error {
	e.logger.Info("strategy started",
		slog.String("strategy", s.Name()),
		slog.Duration("interval", s.Interval()),
	)

	ticker := time.NewTicker(s.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		signals, err := s.Scan(ctx)
		if err != nil {
			if errors.Is(err, domain.ErrStaleData) {
				e.logger.Debug("scan skipped on stale data",
					slog.String("strategy", s.Name()),
				)
				continue
			}
			e.logger.Error("scan failed",
				slog.String("strategy", s.Name()),
				slog.String("error", err.Error()),
			)
			continue
		}
		e.emit(ctx, signals)
	}
}

// emit forwards signals without blocking the scan cadence. A full channel
// drops the signal; strategies re-derive state on the next scan.
func (e *Engine) emit(ctx context.Context, signals []domain.TradeSignal) {
	for _, sig := range signals {
		select {
		case e.signalCh <- sig:
			e.record(sig)
		case <-ctx.Done():
			return
		default:
			e.mu.Lock()
			e.dropped++
			dropped := e.dropped
			e.mu.Unlock()
			e.logger.Warn("signal channel full, dropping",
				slog.String("strategy", sig.Strategy),
				slog.String("ticker", sig.Ticker),
				slog.Int64("dropped_total", dropped),
			)
		}
	}
}

func (e *Engine) record(sig domain.TradeSignal) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.recentSignals = append(e.recentSignals, sig)
	if len(e.recentSignals) > e.recentLimit {
		e.recentSignals = e.recentSignals[len(e.recentSignals)-e.recentLimit:]
	}
}

// RecentSignals returns up to limit of the most recently emitted signals,
// newest first.
func (e *Engine) RecentSignals(limit int) []domain.TradeSignal {
	if limit <= 0 {
		limit = 20
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	n := len(e.recentSignals)
	if limit > n {
		limit = n
	}
	out := make([]domain.TradeSignal, 0, limit)
	for i := n - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, e.recentSignals[i])
	}
	return out
}

// Enabled returns the names of the strategies this engine runs.
func (e *Engine) Enabled() []string {
	out := make([]string, len(e.enabled))
	copy(out, e.enabled)
	return out
}
