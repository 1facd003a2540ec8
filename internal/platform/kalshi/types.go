package kalshi

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/kalshibot/internal/scanner"
)

// Market is a market as the REST API returns it. Prices are integer cents.
type Market struct {
	Ticker       string  `json:"ticker"`
	EventTicker  string  `json:"event_ticker"`
	SeriesTicker string  `json:"series_ticker"`
	Title        string  `json:"title"`
	Status       string  `json:"status"` // "active", "closed", "settled"
	YesBid       int64   `json:"yes_bid"`
	YesAsk       int64   `json:"yes_ask"`
	NoBid        int64   `json:"no_bid"`
	LastPrice    int64   `json:"last_price"`
	Volume       int64   `json:"volume"`
	Volume24H    int64   `json:"volume_24h"`
	OpenInterest int64   `json:"open_interest"`
	StrikeType   string  `json:"strike_type"`
	FloorStrike  float64 `json:"floor_strike"`
	CapStrike    float64 `json:"cap_strike"`
	CloseTime    string  `json:"close_time"`
	Result       string  `json:"result"`
}

// ToRaw maps the venue DTO onto the scanner's classification input.
func (m Market) ToRaw() (scanner.RawMarket, error) {
	closeAt, err := time.Parse(time.RFC3339, m.CloseTime)
	if err != nil {
		return scanner.RawMarket{}, fmt.Errorf("kalshi: close_time %q on %s: %w", m.CloseTime, m.Ticker, err)
	}
	return scanner.RawMarket{
		Ticker:      m.Ticker,
		EventTicker: m.EventTicker,
		Series:      m.SeriesTicker,
		StrikeType:  m.StrikeType,
		FloorStrike: m.FloorStrike,
		CapStrike:   m.CapStrike,
		ExpiresAt:   closeAt,
		Volume24h:   m.Volume24H,
		Status:      m.Status,
	}, nil
}

// PriceLevel is one bid level, sent on the wire as a [price, contracts] pair.
type PriceLevel struct {
	PriceCents int64
	Contracts  int64
}

func (l *PriceLevel) UnmarshalJSON(data []byte) error {
	var pair [2]int64
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("kalshi: price level: %w", err)
	}
	l.PriceCents, l.Contracts = pair[0], pair[1]
	return nil
}

func (l PriceLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int64{l.PriceCents, l.Contracts})
}

// Orderbook is the bids-only book for one market.
type Orderbook struct {
	Ticker  string       `json:"-"`
	YesBids []PriceLevel `json:"yes"`
	NoBids  []PriceLevel `json:"no"`
}

// OrderRequest is an order submission. ClientOrderID carries the router's
// idempotency token.
type OrderRequest struct {
	Ticker        string `json:"ticker"`
	ClientOrderID string `json:"client_order_id"`
	Action        string `json:"action"` // "buy" or "sell"
	Side          string `json:"side"`   // "yes" or "no"
	Type          string `json:"type"`   // "limit"
	Count         int64  `json:"count"`
	YesPrice      *int64 `json:"yes_price,omitempty"`
	NoPrice       *int64 `json:"no_price,omitempty"`
	TimeInForce   string `json:"time_in_force,omitempty"` // "immediate_or_cancel"
	PostOnly      bool   `json:"post_only,omitempty"`
	ExpirationTS  *int64 `json:"expiration_ts,omitempty"`
}

// OrderInfo is an order as the API reports it.
type OrderInfo struct {
	OrderID        string `json:"order_id"`
	ClientOrderID  string `json:"client_order_id"`
	Ticker         string `json:"ticker"`
	Status         string `json:"status"` // "resting", "canceled", "executed", "pending"
	Action         string `json:"action"`
	Side           string `json:"side"`
	YesPrice       int64  `json:"yes_price"`
	NoPrice        int64  `json:"no_price"`
	InitialCount   int64  `json:"initial_count"`
	RemainingCount int64  `json:"remaining_count"`
	TakerFillCount int64  `json:"taker_fill_count"`
	MakerFillCount int64  `json:"maker_fill_count"`
	CreatedTime    string `json:"created_time"`
	ExpirationTime string `json:"expiration_time"`
}

// FillInfo is one execution as the API reports it.
type FillInfo struct {
	TradeID     string `json:"trade_id"`
	OrderID     string `json:"order_id"`
	Ticker      string `json:"ticker"`
	Side        string `json:"side"`
	Action      string `json:"action"`
	Count       int64  `json:"count"`
	YesPrice    int64  `json:"yes_price"`
	NoPrice     int64  `json:"no_price"`
	IsTaker     bool   `json:"is_taker"`
	CreatedTime string `json:"created_time"`
}

// PositionInfo is the venue's view of one market position. Position is
// signed YES-equivalent contracts.
type PositionInfo struct {
	Ticker         string `json:"ticker"`
	Position       int64  `json:"position"`
	MarketExposure int64  `json:"market_exposure"`
	RealizedPnL    int64  `json:"realized_pnl"`
	TotalTraded    int64  `json:"total_traded"`
	FeesPaid       int64  `json:"fees_paid"`
}

// Balance is the portfolio cash balance in cents.
type Balance struct {
	BalanceCents int64 `json:"balance"`
}

// ExchangeStatus reports whether the venue accepts orders.
type ExchangeStatus struct {
	ExchangeActive bool `json:"exchange_active"`
	TradingActive  bool `json:"trading_active"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// wsEnvelope wraps every websocket message.
type wsEnvelope struct {
	Type string          `json:"type"` // "orderbook_snapshot", "orderbook_delta", ...
	SID  int64           `json:"sid"`
	Seq  int64           `json:"seq"`
	Msg  json.RawMessage `json:"msg"`
}

// wsSnapshot is a full book replace.
type wsSnapshot struct {
	Ticker  string       `json:"market_ticker"`
	YesBids []PriceLevel `json:"yes"`
	NoBids  []PriceLevel `json:"no"`
}

// wsDelta is a signed depth change at one price.
type wsDelta struct {
	Ticker     string `json:"market_ticker"`
	PriceCents int64  `json:"price"`
	Delta      int64  `json:"delta"`
	Side       string `json:"side"` // "yes" or "no"
}

type wsCommand struct {
	ID     int64    `json:"id"`
	Cmd    string   `json:"cmd"`
	Params wsParams `json:"params"`
}

type wsParams struct {
	Channels []string `json:"channels"`
	Tickers  []string `json:"market_tickers"`
}
