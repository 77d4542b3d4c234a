package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/alejandrodnm/copybot/internal/adapters/storage"
	"github.com/alejandrodnm/copybot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDB(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func makeEntry(id string, created time.Time) domain.LedgerEntry {
	trade := domain.Trade{
		ID:        id,
		Ticker:    "FED-" + id,
		Title:     "Will the Federal Reserve raise interest rates in March?",
		Side:      domain.SideNo,
		Action:    domain.ActionBuy,
		Price:     38,
		Count:     250,
		CreatedAt: created.Add(123 * time.Nanosecond),
		UserID:    "demo-trader-123",
		IsTaker:   true,
	}
	return domain.LedgerEntry{
		ID:            "uuid-" + id,
		SourceTradeID: id,
		Epoch:         2,
		Trade:         trade,
		Decision: domain.CopyDecision{
			Action: domain.DecisionCopy,
			Reason: "clamped 250 -> 100",
			Order: domain.OrderSpec{
				Ticker: trade.Ticker, Side: trade.Side, Action: trade.Action,
				Type: domain.OrderTypeLimit, Price: 38, Count: 100, ClientOrderID: "uuid-" + id,
			},
		},
		Status:    domain.StatusPending,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestSQLiteStorage_LedgerRoundTrip(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	e := makeEntry("t1", now)
	require.NoError(t, db.SaveLedgerEntry(ctx, e))

	// finalizar reemplaza la fila
	e.Status = domain.StatusCopied
	e.OrderID = "ord-1"
	e.FilledCount = 60
	e.Attempts = 2
	e.UpdatedAt = now.Add(time.Second)
	require.NoError(t, db.SaveLedgerEntry(ctx, e))

	entries, err := db.LoadLedgerEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	got := entries[0]
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, 2, got.Epoch)
	assert.Equal(t, domain.StatusCopied, got.Status)
	assert.Equal(t, "ord-1", got.OrderID)
	assert.Equal(t, 60, got.FilledCount)
	assert.Equal(t, 2, got.Attempts)
	assert.True(t, e.Trade.CreatedAt.Equal(got.Trade.CreatedAt), "precisión de nanosegundos")
	assert.Equal(t, e.Trade.Title, got.Trade.Title)
	assert.True(t, got.Trade.IsTaker)
	assert.Equal(t, e.Decision, got.Decision)
}

func TestSQLiteStorage_LoadOrderAndClear(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()
	base := time.Now().UTC()

	require.NoError(t, db.SaveLedgerEntry(ctx, makeEntry("b", base.Add(time.Second))))
	require.NoError(t, db.SaveLedgerEntry(ctx, makeEntry("a", base)))

	entries, err := db.LoadLedgerEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].SourceTradeID)

	require.NoError(t, db.ClearLedger(ctx))
	entries, err = db.LoadLedgerEntries(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSQLiteStorage_SkipDecisionHasNoOrder(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()

	e := makeEntry("s1", time.Now().UTC())
	e.Decision = domain.Skip("auto-copy disabled")
	e.Status = domain.StatusSkipped
	require.NoError(t, db.SaveLedgerEntry(ctx, e))

	entries, err := db.LoadLedgerEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Decision.ShouldCopy())
	assert.Equal(t, "auto-copy disabled", entries[0].Decision.Reason)
	assert.Empty(t, entries[0].Decision.Order.ClientOrderID)
}

func TestSQLiteStorage_Cursor(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()

	empty, err := db.LoadCursor(ctx)
	require.NoError(t, err)
	assert.True(t, empty.IsZero())

	c := domain.Cursor{
		UserID:    "demo-trader-123",
		TradeID:   "trade_007",
		TradeTime: time.Date(2026, 3, 1, 12, 0, 0, 42, time.UTC),
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, db.SaveCursor(ctx, c))
	c.TradeID = "trade_008"
	require.NoError(t, db.SaveCursor(ctx, c))

	got, err := db.LoadCursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, "trade_008", got.TradeID)
	assert.Equal(t, c.UserID, got.UserID)
	assert.True(t, c.TradeTime.Equal(got.TradeTime))
}

func TestSQLiteStorage_Epoch(t *testing.T) {
	db := newDB(t)
	ctx := context.Background()

	epoch, err := db.LoadEpoch(ctx)
	require.NoError(t, err)
	assert.Zero(t, epoch)

	require.NoError(t, db.SaveEpoch(ctx, 1))
	require.NoError(t, db.SaveEpoch(ctx, 3))

	epoch, err = db.LoadEpoch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, epoch)

	// borrar el ledger no toca la época
	require.NoError(t, db.ClearLedger(ctx))
	epoch, err = db.LoadEpoch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, epoch)
}

func TestSQLiteStorage_ApplySchemaIdempotent(t *testing.T) {
	db := newDB(t)
	assert.NoError(t, db.ApplyMirrorSchema(context.Background()))
}
