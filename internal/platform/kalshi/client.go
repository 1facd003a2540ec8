// Package kalshi wraps the exchange's REST and websocket APIs. Requests are
// signed with RSA-PSS over timestamp + method + path; all prices cross the
// wire as integer cents.
package kalshi

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/kalshibot/internal/domain"
	"github.com/alanyoungcy/kalshibot/internal/scanner"
)

// Client is the REST client for the exchange API.
type Client struct {
	baseURL    string
	basePath   string // path prefix signed along with each request path
	apiKeyID   string
	privateKey *rsa.PrivateKey
	httpClient *http.Client
	now        func() time.Time
}

// NewClient creates a REST client. baseURL is the API root, e.g.
// "https://api.elections.kalshi.com/trade-api/v2".
func NewClient(baseURL, apiKeyID string) *Client {
	basePath := ""
	if u, err := url.Parse(baseURL); err == nil {
		basePath = u.Path
	}
	return &Client{
		baseURL:  baseURL,
		basePath: basePath,
		apiKeyID: apiKeyID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		now: time.Now,
	}
}

// SetPrivateKey configures the signing key directly, as loaded by the key
// manager.
func (c *Client) SetPrivateKey(key *rsa.PrivateKey) {
	c.privateKey = key
}

// SetPrivateKeyPEM parses a PEM-encoded RSA private key (PKCS8 or PKCS1) and
// configures it for signing.
func (c *Client) SetPrivateKeyPEM(pemBytes []byte) error {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return fmt.Errorf("kalshi: no PEM block in private key: %w", domain.ErrInvalidInput)
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		pkcs1Key, pkcs1Err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if pkcs1Err != nil {
			return fmt.Errorf("kalshi: parse private key: %w (pkcs1: %v)", err, pkcs1Err)
		}
		c.privateKey = pkcs1Key
		return nil
	}

	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return fmt.Errorf("kalshi: expected RSA private key, got %T: %w", key, domain.ErrInvalidInput)
	}
	c.privateKey = rsaKey
	return nil
}

// MarketsPage is one page of the markets listing.
type MarketsPage struct {
	Markets []Market `json:"markets"`
	Cursor  string   `json:"cursor"`
}

// GetMarkets returns one page of markets, optionally filtered by series and
// status.
func (c *Client) GetMarkets(ctx context.Context, series, status, cursor string, limit int) (MarketsPage, error) {
	params := url.Values{}
	if series != "" {
		params.Set("series_ticker", series)
	}
	if status != "" {
		params.Set("status", status)
	}
	if cursor != "" {
		params.Set("cursor", cursor)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	path := "/markets"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var page MarketsPage
	if err := c.get(ctx, path, &page); err != nil {
		return MarketsPage{}, fmt.Errorf("kalshi: get markets: %w", err)
	}
	return page, nil
}

// ActiveMarkets pages through every active market in the given series,
// mapped for the scanner.
func (c *Client) ActiveMarkets(ctx context.Context, series []string) ([]scanner.RawMarket, error) {
	var out []scanner.RawMarket
	for _, s := range series {
		cursor := ""
		for {
			page, err := c.GetMarkets(ctx, s, "active", cursor, 200)
			if err != nil {
				return nil, err
			}
			for _, m := range page.Markets {
				raw, err := m.ToRaw()
				if err != nil {
					continue
				}
				out = append(out, raw)
			}
			if page.Cursor == "" || len(page.Markets) == 0 {
				break
			}
			cursor = page.Cursor
		}
	}
	return out, nil
}

// GetOrderbook returns the current book for one market.
func (c *Client) GetOrderbook(ctx context.Context, ticker string, depth int) (Orderbook, error) {
	path := fmt.Sprintf("/markets/%s/orderbook", url.PathEscape(ticker))
	if depth > 0 {
		path += "?depth=" + strconv.Itoa(depth)
	}

	var resp struct {
		Orderbook Orderbook `json:"orderbook"`
	}
	if err := c.get(ctx, path, &resp); err != nil {
		return Orderbook{}, fmt.Errorf("kalshi: get orderbook %s: %w", ticker, err)
	}
	resp.Orderbook.Ticker = ticker
	return resp.Orderbook, nil
}

// CreateOrder submits an order and returns the venue's view of it.
func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (OrderInfo, error) {
	var resp struct {
		Order OrderInfo `json:"order"`
	}
	if err := c.do(ctx, http.MethodPost, "/portfolio/orders", req, &resp); err != nil {
		return OrderInfo{}, fmt.Errorf("kalshi: create order %s: %w", req.Ticker, err)
	}
	return resp.Order, nil
}

// CancelOrder withdraws a resting order.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	path := fmt.Sprintf("/portfolio/orders/%s", url.PathEscape(orderID))
	if err := c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("kalshi: cancel order %s: %w", orderID, err)
	}
	return nil
}

// BatchCancel withdraws up to 20 orders per call and returns how many the
// venue acknowledged.
func (c *Client) BatchCancel(ctx context.Context, orderIDs []string) (int, error) {
	cancelled := 0
	for len(orderIDs) > 0 {
		batch := orderIDs
		if len(batch) > 20 {
			batch = batch[:20]
		}
		orderIDs = orderIDs[len(batch):]

		req := struct {
			IDs []string `json:"ids"`
		}{IDs: batch}
		var resp struct {
			Orders []OrderInfo `json:"orders"`
		}
		if err := c.do(ctx, http.MethodDelete, "/portfolio/orders/batched", req, &resp); err != nil {
			return cancelled, fmt.Errorf("kalshi: batch cancel: %w", err)
		}
		cancelled += len(resp.Orders)
	}
	return cancelled, nil
}

// GetOrders lists orders, optionally filtered by status and ticker.
func (c *Client) GetOrders(ctx context.Context, status, ticker string) ([]OrderInfo, error) {
	params := url.Values{}
	if status != "" {
		params.Set("status", status)
	}
	if ticker != "" {
		params.Set("ticker", ticker)
	}
	path := "/portfolio/orders"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var resp struct {
		Orders []OrderInfo `json:"orders"`
	}
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("kalshi: get orders: %w", err)
	}
	return resp.Orders, nil
}

// GetFills lists executions newer than the cursor position.
func (c *Client) GetFills(ctx context.Context, ticker string, limit int) ([]FillInfo, error) {
	params := url.Values{}
	if ticker != "" {
		params.Set("ticker", ticker)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	path := "/portfolio/fills"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var resp struct {
		Fills []FillInfo `json:"fills"`
	}
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("kalshi: get fills: %w", err)
	}
	return resp.Fills, nil
}

// GetPositions returns the venue's authoritative position view.
func (c *Client) GetPositions(ctx context.Context) ([]PositionInfo, error) {
	var resp struct {
		MarketPositions []PositionInfo `json:"market_positions"`
	}
	if err := c.get(ctx, "/portfolio/positions", &resp); err != nil {
		return nil, fmt.Errorf("kalshi: get positions: %w", err)
	}
	return resp.MarketPositions, nil
}

// GetBalance returns free cash in cents.
func (c *Client) GetBalance(ctx context.Context) (int64, error) {
	var resp Balance
	if err := c.get(ctx, "/portfolio/balance", &resp); err != nil {
		return 0, fmt.Errorf("kalshi: get balance: %w", err)
	}
	return resp.BalanceCents, nil
}

// GetExchangeStatus reports whether trading is open, feeding the kill
// switch's venue check.
func (c *Client) GetExchangeStatus(ctx context.Context) (ExchangeStatus, error) {
	var resp ExchangeStatus
	if err := c.get(ctx, "/exchange/status", &resp); err != nil {
		return ExchangeStatus{}, fmt.Errorf("kalshi: exchange status: %w", err)
	}
	return resp, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// do builds, signs, sends, and decodes one request.
func (c *Client) do(ctx context.Context, method, path string, reqBody, out any) error {
	var bodyReader io.Reader
	if reqBody != nil {
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	if err := c.sign(req, method, path); err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if err := checkStatus(resp.StatusCode, respBody); err != nil {
		return err
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// sign adds the RSA-PSS-SHA256 authentication headers. The signed message is
// timestamp + method + path (query string excluded).
func (c *Client) sign(req *http.Request, method, path string) error {
	if c.privateKey == nil {
		return fmt.Errorf("kalshi: signing key not configured: %w", domain.ErrUnauthorized)
	}

	if q := strings.IndexByte(path, '?'); q >= 0 {
		path = path[:q]
	}

	ts := strconv.FormatInt(c.now().UnixMilli(), 10)
	message := ts + method + c.basePath + path

	hash := sha256.Sum256([]byte(message))
	signature, err := rsa.SignPSS(rand.Reader, c.privateKey, crypto.SHA256, hash[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		return fmt.Errorf("rsa sign: %w", err)
	}

	req.Header.Set("KALSHI-ACCESS-KEY", c.apiKeyID)
	req.Header.Set("KALSHI-ACCESS-SIGNATURE", base64.StdEncoding.EncodeToString(signature))
	req.Header.Set("KALSHI-ACCESS-TIMESTAMP", ts)
	return nil
}

// checkStatus maps non-2xx responses onto the domain's sentinel errors.
func checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr errorResponse
	_ = json.Unmarshal(body, &apiErr)

	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%s (%s): %w", apiErr.Message, apiErr.Code, domain.ErrNotFound)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%s (%s): %w", apiErr.Message, apiErr.Code, domain.ErrUnauthorized)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%s (%s): %w", apiErr.Message, apiErr.Code, domain.ErrRateLimited)
	default:
		return fmt.Errorf("kalshi: HTTP %d: %s (%s)", statusCode, apiErr.Message, apiErr.Code)
	}
}
