package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	binanceWriteWait = 10 * time.Second

	// binanceReadWait must exceed Binance's ~3 minute server ping interval.
	binanceReadWait = 5 * time.Minute

	binanceReconnectDelay    = 2 * time.Second
	binanceMaxReconnectDelay = 60 * time.Second
)

// TradeHandler receives one spot trade from the stream.
type TradeHandler func(symbol string, price, qty float64, at time.Time)

// binanceTrade is the @trade stream payload.
type binanceTrade struct {
	Symbol   string `json:"s"`
	Price    string `json:"p"`
	Quantity string `json:"q"`
	TradeTs  int64  `json:"T"` // trade time, ms
}

// BinanceWS streams spot trades for a set of symbols over a combined
// websocket subscription.
type BinanceWS struct {
	wsURL   string
	symbols []string

	mu     sync.RWMutex
	conn   *websocket.Conn
	closed bool

	handlerMu sync.RWMutex
	handlers  []TradeHandler

	done chan struct{}
}

// NewBinanceWS creates a client for the given stream endpoint (e.g.
// "wss://stream.binance.com:9443/ws") and symbols ("BTCUSDT", ...).
func NewBinanceWS(wsURL string, symbols []string) *BinanceWS {
	return &BinanceWS{
		wsURL:   wsURL,
		symbols: symbols,
		done:    make(chan struct{}),
	}
}

// OnTrade registers a handler for every received trade.
func (b *BinanceWS) OnTrade(h TradeHandler) {
	b.handlerMu.Lock()
	defer b.handlerMu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Connect dials the stream and starts the read loop. Binance pings the
// client; gorilla's default ping handler answers, so only the read deadline
// needs refreshing.
func (b *BinanceWS) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("feed/binance: client is closed")
	}

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}

	conn, _, err := dialer.DialContext(ctx, b.streamURL(), nil)
	if err != nil {
		return fmt.Errorf("feed/binance: connect: %w", err)
	}

	b.conn = conn
	conn.SetReadDeadline(time.Now().Add(binanceReadWait))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(binanceReadWait))
		conn.SetWriteDeadline(time.Now().Add(binanceWriteWait))
		return conn.WriteMessage(websocket.PongMessage, []byte(appData))
	})

	go b.readLoop()
	return nil
}

// Close shuts down the connection.
func (b *BinanceWS) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	close(b.done)

	if b.conn != nil {
		_ = b.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return b.conn.Close()
	}
	return nil
}

// streamURL builds the combined raw-stream path for all symbols.
func (b *BinanceWS) streamURL() string {
	parts := make([]string, 0, len(b.symbols))
	for _, s := range b.symbols {
		parts = append(parts, strings.ToLower(s)+"@trade")
	}
	return strings.TrimRight(b.wsURL, "/") + "/" + strings.Join(parts, "/")
}

func (b *BinanceWS) readLoop() {
	for {
		select {
		case <-b.done:
			return
		default:
		}

		b.mu.RLock()
		conn := b.conn
		b.mu.RUnlock()

		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-b.done:
				return
			default:
			}
			b.reconnect()
			return
		}

		b.handleMessage(message)
	}
}

func (b *BinanceWS) handleMessage(raw []byte) {
	var tr binanceTrade
	if err := json.Unmarshal(raw, &tr); err != nil || tr.Symbol == "" {
		return
	}

	price, err := strconv.ParseFloat(tr.Price, 64)
	if err != nil || price <= 0 {
		return
	}
	qty, err := strconv.ParseFloat(tr.Quantity, 64)
	if err != nil {
		return
	}
	at := time.UnixMilli(tr.TradeTs)

	b.handlerMu.RLock()
	handlers := b.handlers
	b.handlerMu.RUnlock()

	for _, h := range handlers {
		h(tr.Symbol, price, qty, at)
	}
}

func (b *BinanceWS) reconnect() {
	delay := binanceReconnectDelay

	for {
		select {
		case <-b.done:
			return
		default:
		}

		time.Sleep(delay)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := b.Connect(ctx)
		cancel()

		if err == nil {
			return
		}

		delay *= 2
		if delay > binanceMaxReconnectDelay {
			delay = binanceMaxReconnectDelay
		}
	}
}
