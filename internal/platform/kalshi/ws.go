package kalshi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

const (
	wsWriteWait         = 10 * time.Second
	wsPongWait          = 30 * time.Second
	wsPingPeriod        = (wsPongWait * 9) / 10
	wsReconnectDelay    = 2 * time.Second
	wsMaxReconnectDelay = 60 * time.Second
)

// SnapshotHandler receives a full book replace for one ticker.
type SnapshotHandler func(ticker string, yesBids, noBids []domain.BookLevel)

// DeltaHandler receives a signed depth change at one price level.
type DeltaHandler func(ticker string, side domain.Side, priceCents, delta int64)

// WSClient streams orderbook snapshots and deltas. Subscriptions are
// restored automatically after a reconnect.
type WSClient struct {
	wsURL  string
	logger *slog.Logger

	mu     sync.RWMutex
	conn   *websocket.Conn
	closed bool

	subscribed []string
	cmdID      int64

	handlerMu  sync.RWMutex
	onSnapshot []SnapshotHandler
	onDelta    []DeltaHandler

	done chan struct{}
}

// NewWSClient creates a websocket client for the given endpoint, e.g.
// "wss://api.elections.kalshi.com/trade-api/ws/v2".
func NewWSClient(wsURL string, logger *slog.Logger) *WSClient {
	return &WSClient{
		wsURL:  wsURL,
		logger: logger.With(slog.String("component", "kalshi_ws")),
		done:   make(chan struct{}),
	}
}

// OnSnapshot registers a handler for full book replaces.
func (w *WSClient) OnSnapshot(h SnapshotHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.onSnapshot = append(w.onSnapshot, h)
}

// OnDelta registers a handler for level changes.
func (w *WSClient) OnDelta(h DeltaHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.onDelta = append(w.onDelta, h)
}

// Connect dials the endpoint and starts the read and ping loops.
func (w *WSClient) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("kalshi/ws: client closed: %w", domain.ErrWSDisconnect)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("kalshi/ws: connect: %w", err)
	}
	w.conn = conn

	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})
	// The venue also pings us; answering keeps the read deadline fresh.
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteMessage(websocket.PongMessage, []byte(appData))
	})

	go w.readLoop(conn)
	go w.pingLoop(conn)

	if len(w.subscribed) > 0 {
		if err := w.sendSubscribe(w.subscribed); err != nil {
			return fmt.Errorf("kalshi/ws: restore subscriptions: %w", err)
		}
		w.logger.Info("subscriptions restored", slog.Int("tickers", len(w.subscribed)))
	}
	return nil
}

// Subscribe adds tickers to the orderbook_delta channel.
func (w *WSClient) Subscribe(ctx context.Context, tickers []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("kalshi/ws: not connected: %w", domain.ErrWSDisconnect)
	}
	if err := w.sendSubscribe(tickers); err != nil {
		return fmt.Errorf("kalshi/ws: subscribe: %w", err)
	}

	existing := make(map[string]struct{}, len(w.subscribed))
	for _, t := range w.subscribed {
		existing[t] = struct{}{}
	}
	for _, t := range tickers {
		if _, ok := existing[t]; !ok {
			w.subscribed = append(w.subscribed, t)
		}
	}
	return nil
}

// Close shuts the connection down and stops the reconnect loop.
func (w *WSClient) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	close(w.done)

	if w.conn != nil {
		_ = w.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return w.conn.Close()
	}
	return nil
}

// sendSubscribe writes the subscribe command. Caller holds w.mu.
func (w *WSClient) sendSubscribe(tickers []string) error {
	w.cmdID++
	cmd := wsCommand{
		ID:  w.cmdID,
		Cmd: "subscribe",
		Params: wsParams{
			Channels: []string{"orderbook_delta"},
			Tickers:  tickers,
		},
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	w.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (w *WSClient) readLoop(conn *websocket.Conn) {
	defer conn.Close()

	for {
		select {
		case <-w.done:
			return
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-w.done:
				return
			default:
			}
			w.logger.Warn("read failed, reconnecting", slog.String("error", err.Error()))
			w.reconnect()
			return
		}
		w.dispatch(message)
	}
}

func (w *WSClient) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dispatch parses one message and fans it out.
func (w *WSClient) dispatch(raw []byte) {
	var env wsEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return
	}

	switch env.Type {
	case "orderbook_snapshot":
		var snap wsSnapshot
		if err := json.Unmarshal(env.Msg, &snap); err != nil {
			w.logger.Warn("bad snapshot payload", slog.String("error", err.Error()))
			return
		}
		yes := toDomainLevels(snap.YesBids)
		no := toDomainLevels(snap.NoBids)
		w.handlerMu.RLock()
		handlers := w.onSnapshot
		w.handlerMu.RUnlock()
		for _, h := range handlers {
			h(snap.Ticker, yes, no)
		}

	case "orderbook_delta":
		var d wsDelta
		if err := json.Unmarshal(env.Msg, &d); err != nil {
			w.logger.Warn("bad delta payload", slog.String("error", err.Error()))
			return
		}
		side := domain.SideYes
		if d.Side == "no" {
			side = domain.SideNo
		}
		w.handlerMu.RLock()
		handlers := w.onDelta
		w.handlerMu.RUnlock()
		for _, h := range handlers {
			h(d.Ticker, side, d.PriceCents, d.Delta)
		}
	}
}

// reconnect redials with exponential backoff until Close.
func (w *WSClient) reconnect() {
	delay := wsReconnectDelay
	for {
		select {
		case <-w.done:
			return
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := w.Connect(ctx)
		cancel()
		if err == nil {
			w.logger.Info("reconnected")
			return
		}
		w.logger.Warn("reconnect failed", slog.String("error", err.Error()))

		delay *= 2
		if delay > wsMaxReconnectDelay {
			delay = wsMaxReconnectDelay
		}
	}
}

func toDomainLevels(levels []PriceLevel) []domain.BookLevel {
	out := make([]domain.BookLevel, len(levels))
	for i, l := range levels {
		out[i] = domain.BookLevel{PriceCents: l.PriceCents, Contracts: l.Contracts}
	}
	return out
}
