package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/kalshibot/internal/domain"
	"github.com/alanyoungcy/kalshibot/internal/fees"
)

// BookSource provides current book snapshots for fill simulation.
type BookSource interface {
	Snapshot(ticker string) (domain.BookSnapshot, error)
}

// Paper simulates the venue against live book data. Crossing IOC orders fill
// at book prices walking depth and pay the taker fee; post-only orders that
// would cross are refused; resting orders fill at their own price as maker
// when a later book trades through them. An order never fills against a book
// older than the one it was judged on.
type Paper struct {
	books  BookSource
	fees   fees.Model
	fills  chan<- domain.Fill
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	orders    map[string]*domain.Order
	positions map[string]int64 // signed YES-equivalent contracts per ticker
}

var _ domain.Broker = (*Paper)(nil)

// NewPaper creates a paper broker emitting fills into the ledger channel.
func NewPaper(books BookSource, feeModel fees.Model, fills chan<- domain.Fill, logger *slog.Logger) *Paper {
	return &Paper{
		books:     books,
		fees:      feeModel,
		fills:     fills,
		logger:    logger.With(slog.String("component", "paper_broker")),
		now:       time.Now,
		orders:    make(map[string]*domain.Order),
		positions: make(map[string]int64),
	}
}

// SetClock overrides the time source, for tests.
func (p *Paper) SetClock(now func() time.Time) {
	p.now = now
}

// Place simulates submission against the current book.
func (p *Paper) Place(ctx context.Context, inst domain.OrderInstruction) (domain.OrderResult, error) {
	sig := inst.Signal
	if sig.PriceCents < 1 || sig.PriceCents > 99 || sig.Contracts <= 0 {
		return domain.OrderResult{}, fmt.Errorf("paper: price %d size %d: %w",
			sig.PriceCents, sig.Contracts, domain.ErrInvalidInput)
	}

	snap, err := p.books.Snapshot(sig.Ticker)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("paper: book %s: %w", sig.Ticker, err)
	}

	order := domain.Order{
		ID:               inst.IdempotencyToken,
		IdempotencyToken: inst.IdempotencyToken,
		Ticker:           sig.Ticker,
		EventID:          sig.EventID,
		Strategy:         sig.Strategy,
		Side:             sig.Side,
		Action:           sig.Action,
		TIF:              sig.TIF,
		PriceCents:       sig.PriceCents,
		Contracts:        sig.Contracts,
		LegGroupID:       sig.LegGroupID,
		CreatedAt:        inst.SubmittedAt,
		ExpiresAt:        sig.ExpiresAt,
	}

	switch sig.TIF {
	case domain.TIFPostOnly:
		if crosses(order, snap) {
			return domain.OrderResult{Status: domain.OrderStatusRejected, Message: "would cross"},
				fmt.Errorf("paper: %s at %d: %w", sig.Ticker, sig.PriceCents, domain.ErrPostOnlyCross)
		}
		order.Status = domain.OrderStatusResting
		p.mu.Lock()
		p.orders[order.ID] = &order
		p.mu.Unlock()
		return domain.OrderResult{OrderID: order.ID, Status: domain.OrderStatusResting}, nil

	case domain.TIFImmediateOrCancel:
		fills := p.cross(&order, snap, false)
		p.emit(fills)
		if order.FilledContracts == order.Contracts {
			order.Status = domain.OrderStatusFilled
		} else {
			order.Status = domain.OrderStatusCancelled
		}
		return domain.OrderResult{
			OrderID:   order.ID,
			Status:    order.Status,
			FilledNow: order.FilledContracts,
		}, nil

	case domain.TIFGoodTilCancelled:
		fills := p.cross(&order, snap, false)
		p.emit(fills)
		if order.FilledContracts == order.Contracts {
			order.Status = domain.OrderStatusFilled
			return domain.OrderResult{OrderID: order.ID, Status: order.Status, FilledNow: order.FilledContracts}, nil
		}
		if order.FilledContracts > 0 {
			order.Status = domain.OrderStatusPartial
		} else {
			order.Status = domain.OrderStatusResting
		}
		p.mu.Lock()
		p.orders[order.ID] = &order
		p.mu.Unlock()
		return domain.OrderResult{OrderID: order.ID, Status: order.Status, FilledNow: order.FilledContracts}, nil

	default:
		return domain.OrderResult{}, fmt.Errorf("paper: tif %q: %w", sig.TIF, domain.ErrInvalidInput)
	}
}

// crosses reports whether a passive order at its limit would trade
// immediately against the book.
func crosses(o domain.Order, snap domain.BookSnapshot) bool {
	if o.Action == domain.ActionBuy {
		ask, ok := bestAsk(o.Side, snap)
		return ok && o.PriceCents >= ask
	}
	bid, ok := bestBid(o.Side, snap)
	return ok && o.PriceCents <= bid
}

// cross fills the order against the book, walking depth, and returns the
// fills. asMaker selects the fee schedule and fill price: maker fills happen
// at the order's own price.
func (p *Paper) cross(o *domain.Order, snap domain.BookSnapshot, asMaker bool) []domain.Fill {
	var out []domain.Fill
	for _, lvl := range contraLevels(o, snap) {
		if o.Remaining() <= 0 {
			break
		}
		if o.Action == domain.ActionBuy && lvl.PriceCents > o.PriceCents {
			break
		}
		if o.Action == domain.ActionSell && lvl.PriceCents < o.PriceCents {
			break
		}

		contracts := o.Remaining()
		if !asMaker && lvl.Contracts < contracts {
			contracts = lvl.Contracts
		}
		price := lvl.PriceCents
		role := fees.RoleTaker
		if asMaker {
			price = o.PriceCents
			role = fees.RoleMaker
		}

		fill := domain.Fill{
			OrderID:    o.ID,
			Ticker:     o.Ticker,
			EventID:    o.EventID,
			Strategy:   o.Strategy,
			Side:       o.Side,
			Action:     o.Action,
			PriceCents: price,
			Contracts:  contracts,
			FeeCents:   p.fees.Fee(contracts, price, role),
			IsMaker:    asMaker,
			At:         p.now(),
		}
		o.FilledContracts += contracts
		out = append(out, fill)

		p.mu.Lock()
		delta, _ := fill.YesEquivalent()
		p.positions[o.Ticker] += delta
		if p.positions[o.Ticker] == 0 {
			delete(p.positions, o.Ticker)
		}
		p.mu.Unlock()

		if asMaker {
			break
		}
	}
	return out
}

// contraLevels returns the book levels the order trades against, best first,
// as prices on the order's own side.
func contraLevels(o *domain.Order, snap domain.BookSnapshot) []domain.BookLevel {
	if o.Action == domain.ActionBuy {
		// Buying fills against the opposite side's bids at the complement.
		bids := snap.NoBids
		if o.Side == domain.SideNo {
			bids = snap.YesBids
		}
		out := make([]domain.BookLevel, len(bids))
		for i, b := range bids {
			out[i] = domain.BookLevel{PriceCents: 100 - b.PriceCents, Contracts: b.Contracts}
		}
		return out
	}

	// Selling fills against same-side bids directly.
	if o.Side == domain.SideNo {
		return snap.NoBids
	}
	return snap.YesBids
}

func bestAsk(side domain.Side, snap domain.BookSnapshot) (int64, bool) {
	if side == domain.SideNo {
		return snap.BestNoAsk()
	}
	return snap.BestYesAsk()
}

func bestBid(side domain.Side, snap domain.BookSnapshot) (int64, bool) {
	if side == domain.SideNo {
		return snap.BestNoBid()
	}
	return snap.BestYesBid()
}

// OnBook advances resting orders against a fresh snapshot for one ticker.
// Expired orders cancel; orders the book traded through fill at their own
// price as maker.
func (p *Paper) OnBook(snap domain.BookSnapshot) {
	now := p.now()

	p.mu.Lock()
	var touched []*domain.Order
	for _, o := range p.orders {
		if o.Ticker != snap.Ticker || !o.Open() {
			continue
		}
		if !o.ExpiresAt.IsZero() && now.After(o.ExpiresAt) {
			o.Status = domain.OrderStatusCancelled
			delete(p.orders, o.ID)
			p.logger.Debug("resting order expired",
				slog.String("order_id", o.ID),
				slog.String("ticker", o.Ticker),
			)
			continue
		}
		if crosses(*o, snap) {
			// Pulled from the map while filling so no reader sees the
			// order mid-mutation.
			delete(p.orders, o.ID)
			touched = append(touched, o)
		}
	}
	p.mu.Unlock()

	for _, o := range touched {
		fills := p.cross(o, snap, true)
		p.mu.Lock()
		if o.Remaining() == 0 {
			o.Status = domain.OrderStatusFilled
		} else {
			o.Status = domain.OrderStatusPartial
			p.orders[o.ID] = o
		}
		p.mu.Unlock()
		p.emit(fills)
	}
}

// Cancel withdraws a resting order.
func (p *Paper) Cancel(ctx context.Context, orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	o, ok := p.orders[orderID]
	if !ok || !o.Open() {
		return fmt.Errorf("paper: cancel %s: %w", orderID, domain.ErrNotFound)
	}
	o.Status = domain.OrderStatusCancelled
	delete(p.orders, orderID)
	return nil
}

// CancelAll withdraws every resting order, optionally scoped to a ticker.
func (p *Paper) CancelAll(ctx context.Context, ticker string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for id, o := range p.orders {
		if ticker != "" && o.Ticker != ticker {
			continue
		}
		o.Status = domain.OrderStatusCancelled
		delete(p.orders, id)
		n++
	}
	return n, nil
}

// OpenOrders lists resting orders.
func (p *Paper) OpenOrders(ctx context.Context) ([]domain.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]domain.Order, 0, len(p.orders))
	for _, o := range p.orders {
		out = append(out, *o)
	}
	return out, nil
}

// Positions returns the simulator's own position view for reconciliation.
func (p *Paper) Positions(ctx context.Context) (map[string]int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[string]int64, len(p.positions))
	for t, n := range p.positions {
		out[t] = n
	}
	return out, nil
}

func (p *Paper) emit(fills []domain.Fill) {
	for _, f := range fills {
		p.fills <- f
	}
}
