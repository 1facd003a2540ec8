package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/alanyoungcy/kalshibot/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Stream names and approximate retention. Fills are the audit trail and get
// the deeper buffer; signals churn faster and matter less after expiry.
const (
	signalStream = "signals"
	fillStream   = "fills"

	signalStreamMaxLen int64 = 10_000
	fillStreamMaxLen   int64 = 50_000
)

// SignalBus implements domain.SignalBus on Redis. Trade signals and fills go
// onto capped streams keyed with their ticker and strategy so consumers can
// filter without unmarshalling every payload; pub/sub carries ephemeral
// notifications.
type SignalBus struct {
	rdb *redis.Client
}

// NewSignalBus creates a SignalBus backed by the given Client.
func NewSignalBus(c *Client) *SignalBus {
	return &SignalBus{rdb: c.Underlying()}
}

// AppendSignal records an emitted trade signal on the signal stream.
func (sb *SignalBus) AppendSignal(ctx context.Context, sig domain.TradeSignal) error {
	payload, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("redis: marshal signal %s: %w", sig.ID, err)
	}
	return sb.append(ctx, signalStream, signalStreamMaxLen, map[string]interface{}{
		"ticker":   sig.Ticker,
		"strategy": sig.Strategy,
		"payload":  payload,
	})
}

// AppendFill records an applied fill on the fill stream.
func (sb *SignalBus) AppendFill(ctx context.Context, fill domain.Fill) error {
	payload, err := json.Marshal(fill)
	if err != nil {
		return fmt.Errorf("redis: marshal fill %s: %w", fill.OrderID, err)
	}
	return sb.append(ctx, fillStream, fillStreamMaxLen, map[string]interface{}{
		"ticker":   fill.Ticker,
		"strategy": fill.Strategy,
		"payload":  payload,
	})
}

func (sb *SignalBus) append(ctx context.Context, stream string, maxLen int64, values map[string]interface{}) error {
	args := &redis.XAddArgs{
		Stream: stream,
		MaxLen: maxLen,
		Approx: true,
		Values: values,
	}
	if err := sb.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: append %s: %w", stream, err)
	}
	return nil
}

// ReadSignals returns up to count signal entries after lastID. Use "0" to
// replay the retained window, "$" to follow new entries only.
func (sb *SignalBus) ReadSignals(ctx context.Context, lastID string, count int) ([]domain.StreamMessage, error) {
	return sb.read(ctx, signalStream, lastID, count)
}

// ReadFills returns up to count fill entries after lastID.
func (sb *SignalBus) ReadFills(ctx context.Context, lastID string, count int) ([]domain.StreamMessage, error) {
	return sb.read(ctx, fillStream, lastID, count)
}

func (sb *SignalBus) read(ctx context.Context, stream, lastID string, count int) ([]domain.StreamMessage, error) {
	args := &redis.XReadArgs{
		Streams: []string{stream, lastID},
		Count:   int64(count),
	}

	results, err := sb.rdb.XRead(ctx, args).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis: read %s: %w", stream, err)
	}

	var messages []domain.StreamMessage
	for _, s := range results {
		for _, msg := range s.Messages {
			data, ok := payloadBytes(msg.Values["payload"])
			if !ok {
				continue
			}
			messages = append(messages, domain.StreamMessage{
				ID:      msg.ID,
				Payload: data,
			})
		}
	}
	return messages, nil
}

func payloadBytes(v interface{}) ([]byte, bool) {
	switch p := v.(type) {
	case string:
		return []byte(p), true
	case []byte:
		return p, true
	default:
		return nil, false
	}
}

// Publish sends a payload to a pub/sub channel. Delivery is best effort;
// nothing durable should ride on it.
func (sb *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := sb.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe returns a channel of payloads from a pub/sub channel. The
// subscription and the returned channel are closed when ctx ends.
func (sb *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	var pubsub *redis.PubSub
	if strings.ContainsAny(channel, "*?[") {
		pubsub = sb.rdb.PSubscribe(ctx, channel)
	} else {
		pubsub = sb.rdb.Subscribe(ctx, channel)
	}

	// Confirm the subscription before handing the channel out.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	out := make(chan []byte, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Compile-time interface check.
var _ domain.SignalBus = (*SignalBus)(nil)
