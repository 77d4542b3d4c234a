package mirror

import (
	"testing"

	"github.com/alejandrodnm/copybot/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestDecide_ClampsToMaxCopyAmount(t *testing.T) {
	trade := makeTrade("t1", 0, 500)
	settings := testSettings()
	settings.MaxCopyAmount = 100

	d := Decide(trade, settings)

	assert.True(t, d.ShouldCopy())
	assert.Equal(t, 100, d.Order.Count)
	assert.Contains(t, d.Reason, "clamped")
}

func TestDecide_BelowCapKeepsQuantity(t *testing.T) {
	d := Decide(makeTrade("t1", 0, 7), testSettings())

	assert.True(t, d.ShouldCopy())
	assert.Equal(t, 7, d.Order.Count)
	assert.Equal(t, "mirror", d.Reason)
}

func TestDecide_DisabledAlwaysSkips(t *testing.T) {
	settings := testSettings()
	settings.AutoCopyEnabled = false

	for _, count := range []int{1, 50, 500, 100000} {
		for _, price := range []int{1, 50, 99} {
			trade := makeTrade("t", 0, count)
			trade.Price = price
			d := Decide(trade, settings)
			assert.Equal(t, domain.DecisionSkip, d.Action)
			assert.Equal(t, ReasonDisabled, d.Reason)
		}
	}
}

func TestDecide_ZeroQuantitySkips(t *testing.T) {
	d := Decide(makeTrade("t1", 0, 0), testSettings())
	assert.False(t, d.ShouldCopy())
	assert.Equal(t, ReasonZeroQuantity, d.Reason)
}

func TestDecide_PassesThroughSideAndMarket(t *testing.T) {
	trade := makeTrade("t1", 0, 10)
	trade.Side = domain.SideNo
	trade.Action = domain.ActionSell
	trade.Price = 38

	d := Decide(trade, testSettings())

	assert.True(t, d.ShouldCopy())
	assert.Equal(t, trade.Ticker, d.Order.Ticker)
	assert.Equal(t, domain.SideNo, d.Order.Side)
	assert.Equal(t, domain.ActionSell, d.Order.Action)
	assert.Equal(t, 38, d.Order.Price)
	assert.Equal(t, domain.OrderTypeLimit, d.Order.Type)
	assert.Empty(t, d.Order.ClientOrderID)
}

func TestDecide_InvalidPriceOrSideSkips(t *testing.T) {
	trade := makeTrade("t1", 0, 10)
	trade.Price = 0
	assert.False(t, Decide(trade, testSettings()).ShouldCopy())

	trade.Price = 100
	assert.False(t, Decide(trade, testSettings()).ShouldCopy())

	trade = makeTrade("t2", 0, 10)
	trade.Side = "maybe"
	d := Decide(trade, testSettings())
	assert.False(t, d.ShouldCopy())
	assert.Equal(t, ReasonBadTrade, d.Reason)
}

func TestDecide_Deterministic(t *testing.T) {
	trade := makeTrade("t1", 0, 250)
	settings := testSettings()
	assert.Equal(t, Decide(trade, settings), Decide(trade, settings))
}
