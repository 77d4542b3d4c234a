package mirror

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alejandrodnm/copybot/internal/domain"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func makeTrade(id string, offset time.Duration, count int) domain.Trade {
	return domain.Trade{
		ID:        id,
		Ticker:    "MKT-" + id,
		Title:     "Will X happen?",
		Side:      domain.SideYes,
		Action:    domain.ActionBuy,
		Price:     55,
		Count:     count,
		CreatedAt: t0.Add(offset),
		UserID:    "target",
	}
}

func testSettings() domain.Settings {
	return domain.Settings{
		TargetUserID:      "target",
		MaxCopyAmount:     100,
		PollingIntervalMs: 1000,
		AutoCopyEnabled:   true,
	}
}

// fakeExchange devuelve el feed configurado y registra las órdenes.
type fakeExchange struct {
	mu        sync.Mutex
	feed      []domain.Trade
	listErr   error
	place     func(spec domain.OrderSpec) (domain.OrderResult, error)
	placed    []domain.OrderSpec
	listCalls int
	balance   domain.Balance
}

func (f *fakeExchange) Authenticate(context.Context) error { return nil }

func (f *fakeExchange) ListTradesForUser(_ context.Context, _ string, _ domain.Cursor) ([]domain.Trade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]domain.Trade, len(f.feed))
	copy(out, f.feed)
	return out, nil
}

func (f *fakeExchange) PlaceOrder(_ context.Context, spec domain.OrderSpec) (domain.OrderResult, error) {
	f.mu.Lock()
	f.placed = append(f.placed, spec)
	fn := f.place
	f.mu.Unlock()
	if fn != nil {
		return fn(spec)
	}
	return domain.OrderResult{
		OrderID:        fmt.Sprintf("ord-%s", spec.ClientOrderID),
		Status:         domain.OrderExecuted,
		FilledCount:    spec.Count,
		RequestedCount: spec.Count,
	}, nil
}

func (f *fakeExchange) GetAccountBalance(context.Context) (domain.Balance, error) {
	return f.balance, nil
}

func (f *fakeExchange) setFeed(trades ...domain.Trade) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.feed = trades
}

func (f *fakeExchange) placedOrders() []domain.OrderSpec {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.OrderSpec(nil), f.placed...)
}

// memStorage es un LedgerStorage en memoria con fallos inyectables.
type memStorage struct {
	mu       sync.Mutex
	entries  map[string]domain.LedgerEntry
	order    []string
	cursor   domain.Cursor
	epoch    int
	saveErr  error
	cursorOK int
}

func newMemStorage() *memStorage {
	return &memStorage{entries: make(map[string]domain.LedgerEntry)}
}

func (m *memStorage) ApplyMirrorSchema(context.Context) error { return nil }

func (m *memStorage) SaveLedgerEntry(_ context.Context, e domain.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	if _, ok := m.entries[e.SourceTradeID]; !ok {
		m.order = append(m.order, e.SourceTradeID)
	}
	m.entries[e.SourceTradeID] = e
	return nil
}

func (m *memStorage) LoadLedgerEntries(context.Context) ([]domain.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.LedgerEntry, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.entries[id])
	}
	return out, nil
}

func (m *memStorage) ClearLedger(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]domain.LedgerEntry)
	m.order = nil
	return nil
}

func (m *memStorage) SaveCursor(_ context.Context, c domain.Cursor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursor = c
	m.cursorOK++
	return nil
}

func (m *memStorage) LoadCursor(context.Context) (domain.Cursor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor, nil
}

func (m *memStorage) SaveEpoch(_ context.Context, epoch int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.epoch = epoch
	return nil
}

func (m *memStorage) LoadEpoch(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epoch, nil
}

func (m *memStorage) Close() error { return nil }

func noSleep(context.Context, time.Duration) {}
