package kalshi

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

var testKey, _ = rsa.GenerateKey(rand.Reader, 2048)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func testClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL+"/trade-api/v2", "key-id")
	c.SetPrivateKey(testKey)
	c.now = func() time.Time { return time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC) }
	return c, srv
}

func TestSignatureVerifiesAndStripsQuery(t *testing.T) {
	var got *http.Request
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		w.Write([]byte(`{"markets":[],"cursor":""}`))
	}))

	_, err := c.GetMarkets(context.Background(), "KXBTCD", "active", "", 10)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, "key-id", got.Header.Get("KALSHI-ACCESS-KEY"))
	ts := got.Header.Get("KALSHI-ACCESS-TIMESTAMP")
	require.NotEmpty(t, ts)

	sig, err := base64.StdEncoding.DecodeString(got.Header.Get("KALSHI-ACCESS-SIGNATURE"))
	require.NoError(t, err)

	// The query string is excluded from the signed message.
	message := ts + http.MethodGet + "/trade-api/v2/markets"
	hash := sha256.Sum256([]byte(message))
	err = rsa.VerifyPSS(&testKey.PublicKey, crypto.SHA256, hash[:], sig, &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	assert.NoError(t, err, "signature must verify over timestamp+method+path")
}

func TestMissingKeyRefusesToSend(t *testing.T) {
	c := NewClient("http://localhost:0/trade-api/v2", "key-id")
	_, err := c.GetBalance(context.Background())
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestStatusCodeMapping(t *testing.T) {
	tests := []struct {
		code int
		want error
	}{
		{http.StatusNotFound, domain.ErrNotFound},
		{http.StatusUnauthorized, domain.ErrUnauthorized},
		{http.StatusForbidden, domain.ErrUnauthorized},
		{http.StatusTooManyRequests, domain.ErrRateLimited},
	}
	for _, tt := range tests {
		code := tt.code
		c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
			w.Write([]byte(`{"code":"err","message":"nope"}`))
		}))
		_, err := c.GetBalance(context.Background())
		assert.ErrorIs(t, err, tt.want, "HTTP %d", tt.code)
	}
}

func TestOrderbookDecodesPairLevels(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/trade-api/v2/markets/BTC-T100000/orderbook", r.URL.Path)
		w.Write([]byte(`{"orderbook":{"yes":[[40,100],[38,250]],"no":[[57,80]]}}`))
	}))

	book, err := c.GetOrderbook(context.Background(), "BTC-T100000", 10)
	require.NoError(t, err)
	assert.Equal(t, "BTC-T100000", book.Ticker)
	require.Len(t, book.YesBids, 2)
	assert.Equal(t, PriceLevel{PriceCents: 40, Contracts: 100}, book.YesBids[0])
	require.Len(t, book.NoBids, 1)
	assert.Equal(t, int64(57), book.NoBids[0].PriceCents)
}

func TestCreateOrderSendsIdempotencyToken(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req OrderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "tok-1", req.ClientOrderID)
		assert.Equal(t, "limit", req.Type)
		require.NotNil(t, req.NoPrice)
		assert.Equal(t, int64(55), *req.NoPrice)
		assert.Nil(t, req.YesPrice)
		w.Write([]byte(`{"order":{"order_id":"o-1","status":"executed","taker_fill_count":20}}`))
	}))

	price := int64(55)
	info, err := c.CreateOrder(context.Background(), OrderRequest{
		Ticker:        "BTC-T100000",
		ClientOrderID: "tok-1",
		Action:        "buy",
		Side:          "no",
		Type:          "limit",
		Count:         20,
		NoPrice:       &price,
		TimeInForce:   "immediate_or_cancel",
	})
	require.NoError(t, err)
	assert.Equal(t, "o-1", info.OrderID)
	assert.Equal(t, int64(20), info.TakerFillCount)
}

func TestActiveMarketsPagesAndSkipsBadRows(t *testing.T) {
	calls := 0
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Query().Get("cursor") == "" {
			w.Write([]byte(`{"markets":[
				{"ticker":"BTC-T100000","event_ticker":"E1","close_time":"2026-03-02T16:00:00Z","status":"active"},
				{"ticker":"BTC-BAD","event_ticker":"E1","close_time":"not-a-time","status":"active"}
			],"cursor":"next"}`))
			return
		}
		w.Write([]byte(`{"markets":[
			{"ticker":"BTC-T101000","event_ticker":"E1","close_time":"2026-03-02T16:00:00Z","status":"active"}
		],"cursor":""}`))
	}))

	raws, err := c.ActiveMarkets(context.Background(), []string{"KXBTCD"})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	require.Len(t, raws, 2, "unparseable close_time is skipped")
	assert.Equal(t, "BTC-T100000", raws[0].Ticker)
	assert.Equal(t, "BTC-T101000", raws[1].Ticker)
}

func TestOrderStatusMapping(t *testing.T) {
	tests := []struct {
		info OrderInfo
		want domain.OrderStatus
	}{
		{OrderInfo{Status: "executed"}, domain.OrderStatusFilled},
		{OrderInfo{Status: "resting"}, domain.OrderStatusResting},
		{OrderInfo{Status: "resting", MakerFillCount: 5}, domain.OrderStatusPartial},
		{OrderInfo{Status: "canceled"}, domain.OrderStatusCancelled},
		{OrderInfo{Status: "canceled", TakerFillCount: 3}, domain.OrderStatusPartial},
		{OrderInfo{Status: "pending"}, domain.OrderStatusPending},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, orderStatus(tt.info), "status %q", tt.info.Status)
	}
}

type fakeLimiter struct {
	waits int
	key   string
	err   error
}

func (f *fakeLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return true, nil
}

func (f *fakeLimiter) Wait(_ context.Context, key string, _ int, _ time.Duration) error {
	f.waits++
	f.key = key
	return f.err
}

func TestBrokerPlaceWaitsForOrderBudget(t *testing.T) {
	submitted := 0
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		submitted++
		w.Write([]byte(`{"order":{"order_id":"o-1","status":"resting"}}`))
	}))

	limiter := &fakeLimiter{}
	b := NewBroker(c, limiter, testLogger())

	inst := domain.OrderInstruction{
		IdempotencyToken: "tok-1",
		Signal: domain.TradeSignal{
			Ticker:     "BTC-T100000",
			Side:       domain.SideYes,
			Action:     domain.ActionBuy,
			PriceCents: 40,
			Contracts:  10,
		},
	}
	res, err := b.Place(context.Background(), inst)
	require.NoError(t, err)
	assert.Equal(t, 1, limiter.waits)
	assert.Equal(t, "kalshi:orders", limiter.key)
	assert.Equal(t, 1, submitted)
	assert.Equal(t, domain.OrderStatusResting, res.Status)

	// A cancelled wait never reaches the venue and stays retryable.
	limiter.err = context.Canceled
	res, err = b.Place(context.Background(), inst)
	require.Error(t, err)
	assert.Equal(t, 1, submitted)
	assert.Equal(t, domain.OrderStatusRejected, res.Status)
	assert.True(t, res.ShouldRetry)
}

func TestBrokerCancelAllBatches(t *testing.T) {
	var batched [][]string
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			// 25 resting orders forces two batches of 20 and 5.
			orders := make([]OrderInfo, 25)
			for i := range orders {
				orders[i] = OrderInfo{OrderID: "o", Status: "resting"}
			}
			resp := struct {
				Orders []OrderInfo `json:"orders"`
			}{Orders: orders}
			json.NewEncoder(w).Encode(resp)
		case r.Method == http.MethodDelete:
			var req struct {
				IDs []string `json:"ids"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			batched = append(batched, req.IDs)
			acked := make([]OrderInfo, len(req.IDs))
			resp := struct {
				Orders []OrderInfo `json:"orders"`
			}{Orders: acked}
			json.NewEncoder(w).Encode(resp)
		}
	}))

	b := NewBroker(c, nil, testLogger())
	n, err := b.CancelAll(context.Background(), "BTC-T100000")
	require.NoError(t, err)
	assert.Equal(t, 25, n)
	require.Len(t, batched, 2)
	assert.Len(t, batched[0], 20)
	assert.Len(t, batched[1], 5)
}
