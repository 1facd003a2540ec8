package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/kalshibot/internal/domain"
	"github.com/redis/go-redis/v9"
)

// BookCache implements domain.BookCache using one Redis hash per ticker at
// key "book:{ticker}". The authoritative book lives in-process; this cache
// only serves out-of-process observers, so it holds top of book rather than
// full depth.
type BookCache struct {
	rdb *redis.Client
}

// NewBookCache creates a BookCache backed by the given Client.
func NewBookCache(c *Client) *BookCache {
	return &BookCache{rdb: c.Underlying()}
}

func bookKey(ticker string) string {
	return "book:" + ticker
}

// SetTop stores the latest top of book for a ticker. Absent sides are written
// as sentinel -1 so readers can distinguish "no bid" from "bid at 0".
func (bc *BookCache) SetTop(ctx context.Context, top domain.TopOfBook) error {
	yesBid, yesAsk := int64(-1), int64(-1)
	if top.HasYesBid {
		yesBid = top.YesBid
	}
	if top.HasYesAsk {
		yesAsk = top.YesAsk
	}

	fields := map[string]interface{}{
		"yes_bid": strconv.FormatInt(yesBid, 10),
		"yes_ask": strconv.FormatInt(yesAsk, 10),
		"ts":      strconv.FormatInt(top.UpdatedAt.UnixNano(), 10),
	}
	if err := bc.rdb.HSet(ctx, bookKey(top.Ticker), fields).Err(); err != nil {
		return fmt.Errorf("redis: set top of book %s: %w", top.Ticker, err)
	}
	return nil
}

// GetTop retrieves the latest top of book for a ticker. It returns
// domain.ErrNotFound when the ticker has never been written.
func (bc *BookCache) GetTop(ctx context.Context, ticker string) (domain.TopOfBook, error) {
	vals, err := bc.rdb.HGetAll(ctx, bookKey(ticker)).Result()
	if err != nil {
		return domain.TopOfBook{}, fmt.Errorf("redis: get top of book %s: %w", ticker, err)
	}
	if len(vals) == 0 {
		return domain.TopOfBook{}, domain.ErrNotFound
	}

	top := domain.TopOfBook{Ticker: ticker}

	if v, ok := vals["yes_bid"]; ok {
		if bid, err := strconv.ParseInt(v, 10, 64); err == nil && bid >= 0 {
			top.YesBid = bid
			top.HasYesBid = true
		}
	}
	if v, ok := vals["yes_ask"]; ok {
		if ask, err := strconv.ParseInt(v, 10, 64); err == nil && ask >= 0 {
			top.YesAsk = ask
			top.HasYesAsk = true
		}
	}
	if v, ok := vals["ts"]; ok {
		if tsNano, err := strconv.ParseInt(v, 10, 64); err == nil {
			top.UpdatedAt = time.Unix(0, tsNano)
		}
	}

	return top, nil
}

// Compile-time interface check.
var _ domain.BookCache = (*BookCache)(nil)
