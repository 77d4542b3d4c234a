package mirror

import (
	"context"
	"errors"
	"testing"

	"github.com/alejandrodnm/copybot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func copyDecision(trade domain.Trade) domain.CopyDecision {
	return Decide(trade, testSettings())
}

func TestLedger_RecordPendingAssignsClientOrderID(t *testing.T) {
	l := NewLedger(nil)
	trade := makeTrade("t1", 0, 5)

	entry, err := l.RecordPending(context.Background(), trade, copyDecision(trade), false)

	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, entry.Status)
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, entry.ID, entry.Decision.Order.ClientOrderID)
	assert.Equal(t, "t1", entry.SourceTradeID)
}

func TestLedger_DuplicateRejected(t *testing.T) {
	l := NewLedger(nil)
	ctx := context.Background()
	trade := makeTrade("t1", 0, 5)

	first, err := l.RecordPending(ctx, trade, copyDecision(trade), false)
	require.NoError(t, err)

	existing, err := l.RecordPending(ctx, trade, copyDecision(trade), true)
	require.ErrorIs(t, err, domain.ErrDuplicateTrade)
	assert.Equal(t, first.ID, existing.ID)
	assert.Equal(t, 1, l.Stats().Total)
}

func TestLedger_FinalizeTransitions(t *testing.T) {
	l := NewLedger(nil)
	ctx := context.Background()
	trade := makeTrade("t1", 0, 5)
	_, err := l.RecordPending(ctx, trade, copyDecision(trade), false)
	require.NoError(t, err)

	_, err = l.Finalize(ctx, "t1", domain.Outcome{Status: domain.StatusPending})
	assert.Error(t, err, "pending no es terminal")

	final, err := l.Finalize(ctx, "t1", domain.Outcome{Status: domain.StatusCopied, OrderID: "o1", FilledCount: 5, Attempts: 1})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCopied, final.Status)
	assert.Equal(t, "o1", final.OrderID)

	_, err = l.Finalize(ctx, "t1", domain.Outcome{Status: domain.StatusFailed})
	assert.Error(t, err, "una entrada terminal no cambia")

	got, ok := l.Get("t1")
	require.True(t, ok)
	assert.Equal(t, domain.StatusCopied, got.Status)

	_, err = l.Finalize(ctx, "missing", domain.Outcome{Status: domain.StatusSkipped})
	assert.Error(t, err)
}

func TestLedger_ResetEpochs(t *testing.T) {
	ctx := context.Background()
	trade := makeTrade("t1", 0, 5)

	t.Run("older epoch blocks without supersede", func(t *testing.T) {
		l := NewLedger(nil)
		_, err := l.RecordPending(ctx, trade, copyDecision(trade), false)
		require.NoError(t, err)
		require.NoError(t, l.Reset(ctx, false))
		assert.Equal(t, 1, l.Epoch())

		_, err = l.RecordPending(ctx, trade, copyDecision(trade), false)
		assert.ErrorIs(t, err, domain.ErrDuplicateTrade)
	})

	t.Run("older epoch superseded when allowed", func(t *testing.T) {
		l := NewLedger(nil)
		_, err := l.RecordPending(ctx, trade, copyDecision(trade), false)
		require.NoError(t, err)
		require.NoError(t, l.Reset(ctx, false))

		entry, err := l.RecordPending(ctx, trade, copyDecision(trade), true)
		require.NoError(t, err)
		assert.Equal(t, 1, entry.Epoch)
		assert.Equal(t, 1, l.Stats().Total)

		_, err = l.RecordPending(ctx, trade, copyDecision(trade), true)
		assert.ErrorIs(t, err, domain.ErrDuplicateTrade, "dentro de la misma época sigue siendo at-most-once")
	})

	t.Run("clear removes entries", func(t *testing.T) {
		store := newMemStorage()
		l := NewLedger(store)
		_, err := l.RecordPending(ctx, trade, copyDecision(trade), false)
		require.NoError(t, err)
		require.NoError(t, l.Reset(ctx, true))

		assert.Equal(t, 0, l.Stats().Total)
		stored, err := store.LoadLedgerEntries(ctx)
		require.NoError(t, err)
		assert.Empty(t, stored)

		_, err = l.RecordPending(ctx, trade, copyDecision(trade), false)
		assert.NoError(t, err)
	})
}

func TestLedger_PersistFailureRejectsTrade(t *testing.T) {
	store := newMemStorage()
	store.saveErr = errors.New("disk full")
	l := NewLedger(store)
	trade := makeTrade("t1", 0, 5)

	_, err := l.RecordPending(context.Background(), trade, copyDecision(trade), false)

	require.Error(t, err)
	_, ok := l.Get("t1")
	assert.False(t, ok)
}

func TestLedger_LoadRestoresEntriesAndEpoch(t *testing.T) {
	ctx := context.Background()
	store := newMemStorage()

	l := NewLedger(store)
	a, b := makeTrade("a", 0, 1), makeTrade("b", 1, 1)
	_, err := l.RecordPending(ctx, a, copyDecision(a), false)
	require.NoError(t, err)
	require.NoError(t, l.Reset(ctx, false))
	_, err = l.RecordPending(ctx, b, copyDecision(b), false)
	require.NoError(t, err)

	restored := NewLedger(store)
	require.NoError(t, restored.Load(ctx))

	assert.Equal(t, 1, restored.Epoch())
	assert.Equal(t, 2, restored.Stats().Total)
	_, err = restored.RecordPending(ctx, a, copyDecision(a), false)
	assert.ErrorIs(t, err, domain.ErrDuplicateTrade)
}

func TestLedger_EpochSurvivesRestartWithoutEntries(t *testing.T) {
	ctx := context.Background()
	store := newMemStorage()

	l := NewLedger(store)
	a := makeTrade("a", 0, 1)
	_, err := l.RecordPending(ctx, a, domain.Skip(ReasonBaseline), false)
	require.NoError(t, err)
	require.NoError(t, l.Reset(ctx, false))
	require.NoError(t, l.Reset(ctx, false))

	// la poda se llevó la única entrada
	require.NoError(t, store.ClearLedger(ctx))

	restored := NewLedger(store)
	require.NoError(t, restored.Load(ctx))
	assert.Equal(t, 2, restored.Epoch())
}

func TestLedger_RecentNewestFirst(t *testing.T) {
	l := NewLedger(nil)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		tr := makeTrade(id, 0, 1)
		_, err := l.RecordPending(ctx, tr, domain.Skip("x"), false)
		require.NoError(t, err)
	}

	recent := l.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "c", recent[0].SourceTradeID)
	assert.Equal(t, "b", recent[1].SourceTradeID)
	assert.Len(t, l.Recent(0), 3)
}
