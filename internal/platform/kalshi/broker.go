package kalshi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// Order submission budget shared across processes for one account. The
// venue rejects bursts above this; pacing locally keeps rejections out of
// the retry path.
const (
	orderBudgetKey    = "kalshi:orders"
	orderBudgetLimit  = 10
	orderBudgetWindow = time.Second
)

// Broker adapts the REST client to the order router's broker contract.
// When a rate limiter is supplied, Place waits for an order slot before
// hitting the venue.
type Broker struct {
	client  *Client
	limiter domain.RateLimiter
	logger  *slog.Logger
}

var _ domain.Broker = (*Broker)(nil)

func NewBroker(client *Client, limiter domain.RateLimiter, logger *slog.Logger) *Broker {
	return &Broker{
		client:  client,
		limiter: limiter,
		logger:  logger.With(slog.String("component", "kalshi_broker")),
	}
}

// Place submits the instruction as a limit order. The idempotency token is
// forwarded as the client order id so a retried submission cannot double-book.
func (b *Broker) Place(ctx context.Context, inst domain.OrderInstruction) (domain.OrderResult, error) {
	sig := inst.Signal

	if b.limiter != nil {
		if err := b.limiter.Wait(ctx, orderBudgetKey, orderBudgetLimit, orderBudgetWindow); err != nil {
			return domain.OrderResult{
				Status:      domain.OrderStatusRejected,
				Message:     err.Error(),
				ShouldRetry: true,
			}, fmt.Errorf("kalshi: order budget %s: %w", sig.Ticker, err)
		}
	}

	req := OrderRequest{
		Ticker:        sig.Ticker,
		ClientOrderID: inst.IdempotencyToken,
		Action:        string(sig.Action),
		Side:          string(sig.Side),
		Type:          "limit",
		Count:         sig.Contracts,
	}
	price := sig.PriceCents
	if sig.Side == domain.SideNo {
		req.NoPrice = &price
	} else {
		req.YesPrice = &price
	}
	switch sig.TIF {
	case domain.TIFImmediateOrCancel:
		req.TimeInForce = "immediate_or_cancel"
	case domain.TIFPostOnly:
		req.PostOnly = true
	}
	if !sig.ExpiresAt.IsZero() {
		ts := sig.ExpiresAt.Unix()
		req.ExpirationTS = &ts
	}

	info, err := b.client.CreateOrder(ctx, req)
	if err != nil {
		return domain.OrderResult{
			Status:      domain.OrderStatusRejected,
			Message:     err.Error(),
			ShouldRetry: retryable(err),
		}, fmt.Errorf("kalshi: place %s: %w", sig.Ticker, err)
	}

	res := domain.OrderResult{
		OrderID:   info.OrderID,
		Status:    orderStatus(info),
		FilledNow: info.TakerFillCount,
	}
	b.logger.Debug("order placed",
		slog.String("order_id", info.OrderID),
		slog.String("ticker", sig.Ticker),
		slog.String("status", string(res.Status)),
		slog.Int64("filled_now", res.FilledNow))
	return res, nil
}

func (b *Broker) Cancel(ctx context.Context, orderID string) error {
	if err := b.client.CancelOrder(ctx, orderID); err != nil {
		return fmt.Errorf("kalshi: cancel %s: %w", orderID, err)
	}
	return nil
}

// CancelAll pulls every resting order, optionally scoped to one ticker.
func (b *Broker) CancelAll(ctx context.Context, ticker string) (int, error) {
	orders, err := b.client.GetOrders(ctx, "resting", ticker)
	if err != nil {
		return 0, fmt.Errorf("kalshi: cancel all: %w", err)
	}
	if len(orders) == 0 {
		return 0, nil
	}

	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.OrderID)
	}
	n, err := b.client.BatchCancel(ctx, ids)
	if err != nil {
		return n, fmt.Errorf("kalshi: cancel all: %w", err)
	}
	b.logger.Info("cancelled resting orders",
		slog.Int("count", n), slog.String("ticker", ticker))
	return n, nil
}

func (b *Broker) OpenOrders(ctx context.Context) ([]domain.Order, error) {
	infos, err := b.client.GetOrders(ctx, "resting", "")
	if err != nil {
		return nil, fmt.Errorf("kalshi: open orders: %w", err)
	}

	out := make([]domain.Order, 0, len(infos))
	for _, info := range infos {
		out = append(out, toOrder(info))
	}
	return out, nil
}

// Positions returns signed YES-equivalent contracts keyed by ticker.
func (b *Broker) Positions(ctx context.Context) (map[string]int64, error) {
	infos, err := b.client.GetPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("kalshi: positions: %w", err)
	}

	out := make(map[string]int64, len(infos))
	for _, p := range infos {
		if p.Position != 0 {
			out[p.Ticker] = p.Position
		}
	}
	return out, nil
}

func orderStatus(info OrderInfo) domain.OrderStatus {
	switch info.Status {
	case "executed":
		return domain.OrderStatusFilled
	case "canceled":
		if info.TakerFillCount+info.MakerFillCount > 0 {
			return domain.OrderStatusPartial
		}
		return domain.OrderStatusCancelled
	case "resting":
		if info.TakerFillCount+info.MakerFillCount > 0 {
			return domain.OrderStatusPartial
		}
		return domain.OrderStatusResting
	default:
		return domain.OrderStatusPending
	}
}

func toOrder(info OrderInfo) domain.Order {
	side := domain.SideYes
	price := info.YesPrice
	if info.Side == "no" {
		side = domain.SideNo
		price = info.NoPrice
	}
	action := domain.ActionBuy
	if info.Action == "sell" {
		action = domain.ActionSell
	}

	o := domain.Order{
		ID:               info.OrderID,
		IdempotencyToken: info.ClientOrderID,
		Ticker:           info.Ticker,
		Side:             side,
		Action:           action,
		PriceCents:       price,
		Contracts:        info.InitialCount,
		FilledContracts:  info.InitialCount - info.RemainingCount,
		Status:           orderStatus(info),
	}
	if t, err := time.Parse(time.RFC3339, info.CreatedTime); err == nil {
		o.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, info.ExpirationTime); err == nil {
		o.ExpiresAt = t
	}
	return o
}

// retryable reports whether a placement failure is worth retrying. Auth and
// validation failures are not; rate limits and transport errors are.
func retryable(err error) bool {
	switch {
	case errors.Is(err, domain.ErrUnauthorized),
		errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrNotFound):
		return false
	default:
		return true
	}
}
