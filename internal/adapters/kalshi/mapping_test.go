package kalshi

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alejandrodnm/copybot/internal/domain"
)

func TestPriceCents(t *testing.T) {
	assert.Equal(t, 62, priceCents(json.Number("62"), ""))
	assert.Equal(t, 55, priceCents("", "0.5500"))
	assert.Equal(t, 7, priceCents("", "0.065"), "redondea al centavo")
	assert.Equal(t, 0, priceCents("", "n/a"))
}

func TestParseTradeTimestamp(t *testing.T) {
	want := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, want, parseTradeTimestamp("2026-03-01T12:00:00Z"))
	assert.Equal(t, want, parseTradeTimestamp("1772366400"))
	assert.Equal(t, want, parseTradeTimestamp("1772366400000"))
	assert.True(t, parseTradeTimestamp("yesterday").IsZero())
}

func TestMapTrade_DerivesMissingSidePrice(t *testing.T) {
	tr, ok := mapTrade(rawTrade{ID: "t", Ticker: "X", Side: "NO", YesPrice: "70", Count: 3}, "u1")

	assert.True(t, ok)
	assert.Equal(t, domain.SideNo, tr.Side)
	assert.Equal(t, 30, tr.Price)
	assert.Equal(t, "u1", tr.UserID)
	assert.Equal(t, domain.ActionBuy, tr.Action)
}
