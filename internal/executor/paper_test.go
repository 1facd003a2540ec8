package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/kalshibot/internal/domain"
	"github.com/alanyoungcy/kalshibot/internal/fees"
)

var testNow = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

type fakeBooks map[string]domain.BookSnapshot

func (f fakeBooks) Snapshot(ticker string) (domain.BookSnapshot, error) {
	snap, ok := f[ticker]
	if !ok {
		return domain.BookSnapshot{}, domain.ErrNotFound
	}
	return snap, nil
}

func paperSig(ticker string, side domain.Side, action domain.OrderAction, tif domain.TimeInForce, price, contracts int64) domain.TradeSignal {
	return domain.TradeSignal{
		ID:         ticker + "-sig",
		Strategy:   "test",
		Ticker:     ticker,
		EventID:    "EV",
		Side:       side,
		Action:     action,
		TIF:        tif,
		PriceCents: price,
		Contracts:  contracts,
		CreatedAt:  testNow,
		ExpiresAt:  testNow.Add(30 * time.Second),
	}
}

func instFor(sig domain.TradeSignal, token string) domain.OrderInstruction {
	return domain.OrderInstruction{IdempotencyToken: token, Signal: sig, SubmittedAt: testNow}
}

func newPaper(t *testing.T, books fakeBooks) (*Paper, chan domain.Fill) {
	t.Helper()
	fills := make(chan domain.Fill, 32)
	p := NewPaper(books, fees.DefaultModel(), fills, testLogger())
	p.SetClock(func() time.Time { return testNow })
	return p, fills
}

func drainFills(ch chan domain.Fill) []domain.Fill {
	var out []domain.Fill
	for {
		select {
		case f := <-ch:
			out = append(out, f)
		default:
			return out
		}
	}
}

func TestPaperIOCWalksDepth(t *testing.T) {
	// NO bids at 60 and 55 are YES offered at 40 and 45.
	books := fakeBooks{"T": {
		Ticker: "T",
		NoBids: []domain.BookLevel{{PriceCents: 60, Contracts: 20}, {PriceCents: 55, Contracts: 30}},
	}}
	p, fills := newPaper(t, books)

	sig := paperSig("T", domain.SideYes, domain.ActionBuy, domain.TIFImmediateOrCancel, 45, 40)
	res, err := p.Place(context.Background(), instFor(sig, "tok1"))
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusFilled, res.Status)
	assert.Equal(t, int64(40), res.FilledNow)

	got := drainFills(fills)
	require.Len(t, got, 2)
	assert.Equal(t, int64(40), got[0].PriceCents)
	assert.Equal(t, int64(20), got[0].Contracts)
	assert.Equal(t, int64(34), got[0].FeeCents)
	assert.False(t, got[0].IsMaker)
	assert.Equal(t, int64(45), got[1].PriceCents)
	assert.Equal(t, int64(20), got[1].Contracts)
	assert.Equal(t, int64(35), got[1].FeeCents)

	positions, err := p.Positions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(40), positions["T"])
}

func TestPaperIOCRemainderCancelled(t *testing.T) {
	books := fakeBooks{"T": {
		Ticker: "T",
		NoBids: []domain.BookLevel{{PriceCents: 60, Contracts: 20}, {PriceCents: 55, Contracts: 30}},
	}}
	p, fills := newPaper(t, books)

	// Limit 40 only reaches the first derived ask level.
	sig := paperSig("T", domain.SideYes, domain.ActionBuy, domain.TIFImmediateOrCancel, 40, 40)
	res, err := p.Place(context.Background(), instFor(sig, "tok1"))
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, res.Status)
	assert.Equal(t, int64(20), res.FilledNow)
	assert.Len(t, drainFills(fills), 1)

	open, err := p.OpenOrders(context.Background())
	require.NoError(t, err)
	assert.Empty(t, open, "ioc never rests")
}

func TestPaperSellFillsAgainstBids(t *testing.T) {
	books := fakeBooks{"T": {
		Ticker:  "T",
		YesBids: []domain.BookLevel{{PriceCents: 48, Contracts: 100}},
	}}
	p, fills := newPaper(t, books)

	sig := paperSig("T", domain.SideYes, domain.ActionSell, domain.TIFImmediateOrCancel, 48, 60)
	res, err := p.Place(context.Background(), instFor(sig, "tok1"))
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusFilled, res.Status)

	got := drainFills(fills)
	require.Len(t, got, 1)
	assert.Equal(t, int64(48), got[0].PriceCents)
	assert.Equal(t, int64(60), got[0].Contracts)

	positions, err := p.Positions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(-60), positions["T"])
}

func TestPaperPostOnlyCrossRefused(t *testing.T) {
	books := fakeBooks{"T": {
		Ticker: "T",
		NoBids: []domain.BookLevel{{PriceCents: 60, Contracts: 20}},
	}}
	p, fills := newPaper(t, books)

	// Best derived YES ask is 40; bidding 40 would cross.
	sig := paperSig("T", domain.SideYes, domain.ActionBuy, domain.TIFPostOnly, 40, 10)
	_, err := p.Place(context.Background(), instFor(sig, "tok1"))
	assert.ErrorIs(t, err, domain.ErrPostOnlyCross)
	assert.Empty(t, drainFills(fills))
}

func TestPaperPostOnlyRestsThenFillsAsMaker(t *testing.T) {
	books := fakeBooks{"T": {
		Ticker: "T",
		NoBids: []domain.BookLevel{{PriceCents: 60, Contracts: 20}},
	}}
	p, fills := newPaper(t, books)

	sig := paperSig("T", domain.SideYes, domain.ActionBuy, domain.TIFPostOnly, 38, 10)
	res, err := p.Place(context.Background(), instFor(sig, "tok1"))
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusResting, res.Status)

	open, err := p.OpenOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, open, 1)

	// A book that has not traded through leaves the order resting.
	p.OnBook(domain.BookSnapshot{
		Ticker: "T",
		NoBids: []domain.BookLevel{{PriceCents: 61, Contracts: 20}},
	})
	assert.Empty(t, drainFills(fills))

	// The ask dropping to 38 means the bid was traded through: fill at the
	// order's own price on the maker schedule.
	p.OnBook(domain.BookSnapshot{
		Ticker: "T",
		NoBids: []domain.BookLevel{{PriceCents: 62, Contracts: 15}},
	})
	got := drainFills(fills)
	require.Len(t, got, 1)
	assert.Equal(t, int64(38), got[0].PriceCents)
	assert.Equal(t, int64(10), got[0].Contracts)
	assert.True(t, got[0].IsMaker)
	// 0.0175 * 10 * 0.38 * 0.62 * 100 rounds up to 5.
	assert.Equal(t, int64(5), got[0].FeeCents)

	open, err = p.OpenOrders(context.Background())
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestPaperRestingOrderExpires(t *testing.T) {
	books := fakeBooks{"T": {
		Ticker: "T",
		NoBids: []domain.BookLevel{{PriceCents: 60, Contracts: 20}},
	}}
	p, fills := newPaper(t, books)

	sig := paperSig("T", domain.SideYes, domain.ActionBuy, domain.TIFPostOnly, 38, 10)
	_, err := p.Place(context.Background(), instFor(sig, "tok1"))
	require.NoError(t, err)

	// Past the deadline even a crossing book must not fill.
	p.SetClock(func() time.Time { return testNow.Add(time.Minute) })
	p.OnBook(domain.BookSnapshot{
		Ticker: "T",
		NoBids: []domain.BookLevel{{PriceCents: 62, Contracts: 15}},
	})
	assert.Empty(t, drainFills(fills))

	open, err := p.OpenOrders(context.Background())
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestPaperCancel(t *testing.T) {
	books := fakeBooks{"T": {
		Ticker: "T",
		NoBids: []domain.BookLevel{{PriceCents: 60, Contracts: 20}},
	}}
	p, _ := newPaper(t, books)

	sig := paperSig("T", domain.SideYes, domain.ActionBuy, domain.TIFPostOnly, 38, 10)
	res, err := p.Place(context.Background(), instFor(sig, "tok1"))
	require.NoError(t, err)

	require.NoError(t, p.Cancel(context.Background(), res.OrderID))
	assert.ErrorIs(t, p.Cancel(context.Background(), res.OrderID), domain.ErrNotFound)

	_, err = p.Place(context.Background(), instFor(sig, "tok2"))
	require.NoError(t, err)
	n, err := p.CancelAll(context.Background(), "T")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPaperRejectsBadInput(t *testing.T) {
	p, _ := newPaper(t, fakeBooks{"T": {Ticker: "T"}})

	bad := paperSig("T", domain.SideYes, domain.ActionBuy, domain.TIFImmediateOrCancel, 0, 10)
	_, err := p.Place(context.Background(), instFor(bad, "tok1"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	missing := paperSig("GONE", domain.SideYes, domain.ActionBuy, domain.TIFImmediateOrCancel, 50, 10)
	_, err = p.Place(context.Background(), instFor(missing, "tok2"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
