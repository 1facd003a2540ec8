// Package executor routes trade signals to a broker. Signals pass through
// deduplication, expiry, leg-group accumulation, and the risk gate before an
// instruction is minted and submitted. The paper broker in this package and
// the live venue client are interchangeable behind domain.Broker.
package executor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// RiskFilter screens a batch of signals. Approved signals have their notional
// reserved against the ledger; the executor must Release each reservation
// once its order reaches a terminal state.
type RiskFilter interface {
	Filter(signals []domain.TradeSignal) ([]domain.TradeSignal, []domain.Rejection)
}

// Reservations frees resting notional reserved at approval.
type Reservations interface {
	Release(ticker string, cents int64)
}

// Config tunes the router's housekeeping cadences.
type Config struct {
	DedupTTL        time.Duration
	CleanupInterval time.Duration
	LegGap          time.Duration // max spread between first and last leg of a group
	OrderPoll       time.Duration // resting-order reconciliation cadence
	OrderTimeout    time.Duration // deadline for orders whose signal carries none
}

// DefaultConfig returns the standard tuning.
func DefaultConfig() Config {
	return Config{
		DedupTTL:        2 * time.Minute,
		CleanupInterval: 30 * time.Second,
		LegGap:          2 * time.Second,
		OrderPoll:       time.Second,
		OrderTimeout:    30 * time.Second,
	}
}

// trackedOrder is a live order whose reservation is still held.
type trackedOrder struct {
	ticker   string
	notional int64
	deadline time.Time
}

// Executor consumes the signal channel and drives the broker.
type Executor struct {
	cfg      Config
	signalCh <-chan domain.TradeSignal
	broker   domain.Broker
	gate     RiskFilter
	ledger   Reservations
	events   domain.RiskEventStore // optional
	dedup    *dedup
	legs     *legAccumulator
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	tracked map[string]trackedOrder // order id -> reservation
	quotes  map[string]string       // strategy|ticker|side -> order id
}

// New creates an Executor. events may be nil when risk events are not
// persisted.
func New(
	cfg Config,
	signalCh <-chan domain.TradeSignal,
	broker domain.Broker,
	gate RiskFilter,
	ledger Reservations,
	events domain.RiskEventStore,
	logger *slog.Logger,
) *Executor {
	e := &Executor{
		cfg:      cfg,
		signalCh: signalCh,
		broker:   broker,
		gate:     gate,
		ledger:   ledger,
		events:   events,
		dedup:    newDedup(cfg.DedupTTL),
		logger:   logger.With(slog.String("component", "executor")),
		now:      time.Now,
		tracked:  make(map[string]trackedOrder),
		quotes:   make(map[string]string),
	}
	e.legs = newLegAccumulator(cfg.LegGap, e.placeLegGroup, e.legGroupTimedOut, e.logger)
	return e
}

// SetClock overrides the time source, for tests.
func (e *Executor) SetClock(now func() time.Time) {
	e.now = now
	e.dedup.now = now
}

// Run processes signals until the context ends, then drains whatever is
// already buffered so in-flight signals are not silently dropped.
func (e *Executor) Run(ctx context.Context) error {
	e.logger.Info("executor started")
	defer e.logger.Info("executor stopped")

	cleanup := time.NewTicker(e.cfg.CleanupInterval)
	defer cleanup.Stop()
	poll := time.NewTicker(e.cfg.OrderPoll)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			e.drain()
			return ctx.Err()
		case sig, ok := <-e.signalCh:
			if !ok {
				return nil
			}
			e.process(ctx, sig)
		case <-cleanup.C:
			e.dedup.Cleanup()
		case <-poll.C:
			e.pollOrders(ctx)
		}
	}
}

// process runs one signal through the pipeline.
func (e *Executor) process(ctx context.Context, sig domain.TradeSignal) {
	log := e.logger.With(
		slog.String("signal_id", sig.ID),
		slog.String("strategy", sig.Strategy),
		slog.String("ticker", sig.Ticker),
		slog.String("side", string(sig.Side)),
	)

	if sig.Directive == domain.DirectiveCancel {
		e.cancelQuotes(ctx, sig.Strategy, sig.Ticker, log)
		return
	}

	if sig.MultiLeg() {
		e.legs.Add(ctx, sig)
		return
	}

	if e.dedup.IsDuplicate(sig.ID) {
		log.Debug("duplicate signal skipped")
		return
	}
	if sig.Expired(e.now()) {
		log.Warn("signal expired before execution", slog.Time("expires_at", sig.ExpiresAt))
		return
	}

	approved, rejections := e.gate.Filter([]domain.TradeSignal{sig})
	e.recordRejections(ctx, rejections)
	if len(approved) == 0 {
		return
	}

	if sig.Directive == domain.DirectiveRequote {
		e.cancelQuote(ctx, quoteKey(sig.Strategy, sig.Ticker, sig.Side), log)
	}

	e.place(ctx, sig, log)
}

// place mints the instruction and submits it, tracking the reservation until
// the order is terminal.
func (e *Executor) place(ctx context.Context, sig domain.TradeSignal, log *slog.Logger) {
	inst := domain.OrderInstruction{
		IdempotencyToken: uuid.New().String(),
		Signal:           sig,
		SubmittedAt:      e.now(),
	}

	res, err := e.broker.Place(ctx, inst)
	if err != nil {
		if errors.Is(err, domain.ErrPostOnlyCross) {
			log.Debug("post-only would cross, not placed")
		} else {
			log.Error("order placement failed", slog.String("error", err.Error()))
		}
		e.ledger.Release(sig.Ticker, sig.NotionalCents())
		return
	}

	switch res.Status {
	case domain.OrderStatusRejected, domain.OrderStatusCancelled:
		log.Warn("order rejected",
			slog.String("order_id", res.OrderID),
			slog.String("message", res.Message),
		)
		e.ledger.Release(sig.Ticker, sig.NotionalCents())
	case domain.OrderStatusFilled:
		log.Info("order filled at submit",
			slog.String("order_id", res.OrderID),
			slog.Int64("contracts", res.FilledNow),
		)
		e.ledger.Release(sig.Ticker, sig.NotionalCents())
	default:
		deadline := sig.ExpiresAt
		if deadline.IsZero() {
			deadline = e.now().Add(e.cfg.OrderTimeout)
		}
		e.mu.Lock()
		e.tracked[res.OrderID] = trackedOrder{
			ticker:   sig.Ticker,
			notional: sig.NotionalCents(),
			deadline: deadline,
		}
		if sig.Directive == domain.DirectiveRequote {
			e.quotes[quoteKey(sig.Strategy, sig.Ticker, sig.Side)] = res.OrderID
		}
		e.mu.Unlock()
		log.Info("order resting",
			slog.String("order_id", res.OrderID),
			slog.Int64("filled_now", res.FilledNow),
			slog.Time("deadline", deadline),
		)
	}
}

// placeLegGroup executes a complete leg group. Under all_or_none any
// rejection or short fill abandons the remaining legs.
func (e *Executor) placeLegGroup(ctx context.Context, legs []domain.TradeSignal, policy domain.LegPolicy) {
	groupID := legs[0].LegGroupID
	log := e.logger.With(
		slog.String("leg_group_id", groupID),
		slog.Int("legs", len(legs)),
	)

	if e.dedup.IsDuplicate(groupID) {
		log.Debug("duplicate leg group skipped")
		return
	}
	now := e.now()
	for _, leg := range legs {
		if leg.Expired(now) {
			log.Warn("leg group expired before execution")
			return
		}
	}

	approved, rejections := e.gate.Filter(legs)
	e.recordRejections(ctx, rejections)
	if len(approved) < len(legs) && policy == domain.LegPolicyAllOrNone {
		for _, leg := range approved {
			e.ledger.Release(leg.Ticker, leg.NotionalCents())
		}
		e.recordEvent(ctx, "leg_failure", legs[0].Ticker, map[string]any{
			"leg_group_id": groupID,
			"reason":       "risk gate rejected a leg",
		})
		log.Warn("leg group abandoned at risk gate",
			slog.Int("rejected", len(legs)-len(approved)),
		)
		return
	}

	for i, leg := range approved {
		inst := domain.OrderInstruction{
			IdempotencyToken: uuid.New().String(),
			Signal:           leg,
			SubmittedAt:      e.now(),
		}
		res, err := e.broker.Place(ctx, inst)
		filled := err == nil && res.FilledNow == leg.Contracts
		e.ledger.Release(leg.Ticker, leg.NotionalCents())

		if filled {
			continue
		}

		detail := map[string]any{
			"leg_group_id": groupID,
			"leg_index":    leg.LegIndex,
			"error":        domain.ErrPartialLegFailure.Error(),
		}
		if err != nil {
			detail["cause"] = err.Error()
		} else {
			detail["filled"] = res.FilledNow
			detail["wanted"] = leg.Contracts
		}
		e.recordEvent(ctx, "leg_failure", leg.Ticker, detail)
		log.Error("leg group execution failed",
			slog.Int("leg_index", leg.LegIndex),
			slog.String("ticker", leg.Ticker),
		)

		if policy == domain.LegPolicyAllOrNone {
			for _, rest := range approved[i+1:] {
				e.ledger.Release(rest.Ticker, rest.NotionalCents())
			}
			return
		}
	}
}

func (e *Executor) legGroupTimedOut(groupID string, received, expected int) {
	// Legs are generated together, so an incomplete group means the channel
	// dropped some of them. Nothing was placed; just record it.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	e.recordEvent(ctx, "leg_failure", "", map[string]any{
		"leg_group_id": groupID,
		"received":     received,
		"expected":     expected,
		"error":        domain.ErrPartialLegFailure.Error(),
	})
}

// pollOrders reconciles tracked orders against the broker: timed-out orders
// are cancelled, terminal orders have their reservations released.
func (e *Executor) pollOrders(ctx context.Context) {
	e.mu.Lock()
	if len(e.tracked) == 0 {
		e.mu.Unlock()
		return
	}
	snapshot := make(map[string]trackedOrder, len(e.tracked))
	for id, t := range e.tracked {
		snapshot[id] = t
	}
	e.mu.Unlock()

	open, err := e.broker.OpenOrders(ctx)
	if err != nil {
		e.logger.Warn("open order poll failed", slog.String("error", err.Error()))
		return
	}
	openSet := make(map[string]bool, len(open))
	for _, o := range open {
		openSet[o.ID] = true
	}

	now := e.now()
	for id, t := range snapshot {
		switch {
		case openSet[id] && now.After(t.deadline):
			if err := e.broker.Cancel(ctx, id); err != nil && !errors.Is(err, domain.ErrNotFound) {
				e.logger.Warn("timeout cancel failed",
					slog.String("order_id", id),
					slog.String("error", err.Error()),
				)
				continue
			}
			e.recordEvent(ctx, "order_timeout", t.ticker, map[string]any{
				"order_id": id,
				"error":    domain.ErrOrderTimeout.Error(),
			})
			e.logger.Info("order cancelled on timeout",
				slog.String("order_id", id),
				slog.String("ticker", t.ticker),
			)
			e.release(id, t)
		case !openSet[id]:
			// Filled or cancelled elsewhere; the ledger already saw the fills.
			e.release(id, t)
		}
	}
}

func (e *Executor) release(orderID string, t trackedOrder) {
	e.mu.Lock()
	delete(e.tracked, orderID)
	for key, id := range e.quotes {
		if id == orderID {
			delete(e.quotes, key)
		}
	}
	e.mu.Unlock()
	e.ledger.Release(t.ticker, t.notional)
}

// cancelQuotes withdraws a strategy's live quotes on a ticker, both sides.
func (e *Executor) cancelQuotes(ctx context.Context, strategy, ticker string, log *slog.Logger) {
	for _, side := range []domain.Side{domain.SideYes, domain.SideNo, ""} {
		e.cancelQuote(ctx, quoteKey(strategy, ticker, side), log)
	}
}

func (e *Executor) cancelQuote(ctx context.Context, key string, log *slog.Logger) {
	e.mu.Lock()
	orderID, ok := e.quotes[key]
	var t trackedOrder
	if ok {
		t = e.tracked[orderID]
	}
	e.mu.Unlock()
	if !ok {
		return
	}

	if err := e.broker.Cancel(ctx, orderID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		log.Warn("quote cancel failed",
			slog.String("order_id", orderID),
			slog.String("error", err.Error()),
		)
		return
	}
	e.release(orderID, t)
	log.Debug("quote cancelled", slog.String("order_id", orderID))
}

func (e *Executor) recordRejections(ctx context.Context, rejections []domain.Rejection) {
	for _, r := range rejections {
		e.recordEvent(ctx, "rejection", r.Ticker, map[string]any{
			"signal_id": r.SignalID,
			"strategy":  r.Strategy,
			"rule":      string(r.Rule),
			"detail":    r.Detail,
		})
	}
}

func (e *Executor) recordEvent(ctx context.Context, kind, ticker string, detail map[string]any) {
	if e.events == nil {
		return
	}
	ev := domain.RiskEvent{Kind: kind, Ticker: ticker, Detail: detail, At: e.now()}
	if err := e.events.Insert(ctx, ev); err != nil {
		e.logger.Warn("risk event insert failed",
			slog.String("kind", kind),
			slog.String("error", err.Error()),
		)
	}
}

// drain processes signals already buffered at shutdown under a short-lived
// context so external calls cannot hang the stop sequence.
func (e *Executor) drain() {
	for {
		select {
		case sig, ok := <-e.signalCh:
			if !ok {
				return
			}
			e.logger.Warn("draining signal after shutdown", slog.String("signal_id", sig.ID))
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			e.process(ctx, sig)
			cancel()
		default:
			return
		}
	}
}

func quoteKey(strategy, ticker string, side domain.Side) string {
	return strategy + "|" + ticker + "|" + string(side)
}
