package demo_test

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/copybot/internal/adapters/demo"
	"github.com/alejandrodnm/copybot/internal/domain"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newExchange(chance float64) *demo.Exchange {
	return demo.New(demo.Options{
		NewChance: chance,
		Rand:      rand.New(rand.NewPCG(1, 2)),
		Now:       func() time.Time { return fixedNow },
	})
}

func TestListTrades_SeedSpansAgeCategories(t *testing.T) {
	x := newExchange(0.0001)

	trades, err := x.ListTradesForUser(context.Background(), demo.DefaultUserID, domain.Cursor{})

	require.NoError(t, err)
	require.Len(t, trades, 15)
	cats := map[domain.AgeCategory]int{}
	for i, tr := range trades {
		cats[domain.AgeOf(tr.CreatedAt, fixedNow)]++
		assert.GreaterOrEqual(t, tr.Price, 1)
		assert.LessOrEqual(t, tr.Price, 99)
		if i > 0 {
			assert.False(t, tr.After(trades[i-1]), "más nuevos primero")
		}
	}
	assert.Len(t, cats, 4)
}

func TestListTrades_AddsLiveTrades(t *testing.T) {
	x := newExchange(1)
	ctx := context.Background()

	first, err := x.ListTradesForUser(ctx, "u", domain.Cursor{})
	require.NoError(t, err)
	second, err := x.ListTradesForUser(ctx, "u", domain.Cursor{})
	require.NoError(t, err)

	require.Len(t, second, len(first)+1)
	assert.Equal(t, fixedNow, second[0].CreatedAt)
	assert.Equal(t, "u", second[0].UserID)
}

func TestPlaceOrder_FillsAndChargesOnce(t *testing.T) {
	x := newExchange(0.0001)
	ctx := context.Background()
	spec := domain.OrderSpec{Ticker: "T", Side: domain.SideYes, Action: domain.ActionBuy, Type: domain.OrderTypeLimit, Price: 50, Count: 10, ClientOrderID: "c1"}

	res, err := x.PlaceOrder(ctx, spec)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderExecuted, res.Status)
	assert.Equal(t, 10, res.FilledCount)
	assert.Equal(t, "demo-c1", res.OrderID)

	again, err := x.PlaceOrder(ctx, spec)
	require.NoError(t, err)
	assert.Equal(t, res.OrderID, again.OrderID)

	bal, err := x.GetAccountBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000-500), bal.Cents)
	assert.Len(t, x.Orders(), 1)
}

func TestPlaceOrder_RejectsInvalid(t *testing.T) {
	x := newExchange(0.0001)
	_, err := x.PlaceOrder(context.Background(), domain.OrderSpec{Ticker: "T", Price: 0, Count: 1})
	assert.ErrorIs(t, err, domain.ErrRejected)
}
