package mirror

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/copybot/internal/domain"
	"github.com/alejandrodnm/copybot/internal/ports"
)

// Ledger registra cada trade origen evaluado y su resultado.
// RecordPending es la única puerta hacia la ejecución: un trade con entrada
// en la época actual nunca vuelve a ejecutarse.
//
// Solo el tick escribe; el mutex existe para que Status pueda leer desde
// los handlers HTTP.
type Ledger struct {
	mu      sync.RWMutex
	entries map[string]*domain.LedgerEntry // sourceTradeID → entry
	order   []string                       // sourceTradeIDs en orden de registro
	epoch   int
	store   ports.LedgerStorage // opcional
	now     func() time.Time
}

// NewLedger crea un ledger vacío. store puede ser nil.
func NewLedger(store ports.LedgerStorage) *Ledger {
	return &Ledger{
		entries: make(map[string]*domain.LedgerEntry),
		store:   store,
		now:     time.Now,
	}
}

// Load precarga el ledger desde el storage. La época es la guardada, o la
// mayor de las entradas si esta fuera más alta.
func (l *Ledger) Load(ctx context.Context) error {
	if l.store == nil {
		return nil
	}
	entries, err := l.store.LoadLedgerEntries(ctx)
	if err != nil {
		return fmt.Errorf("ledger.Load: %w", err)
	}
	epoch, err := l.store.LoadEpoch(ctx)
	if err != nil {
		return fmt.Errorf("ledger.Load: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.epoch = max(l.epoch, epoch)
	for i := range entries {
		e := entries[i]
		if _, ok := l.entries[e.SourceTradeID]; !ok {
			l.order = append(l.order, e.SourceTradeID)
		}
		l.entries[e.SourceTradeID] = &e
		if e.Epoch > l.epoch {
			l.epoch = e.Epoch
		}
	}
	return nil
}

// RecordPending crea la entrada pending para el trade. Falla con
// domain.ErrDuplicateTrade si ya existe una entrada que lo bloquea: cualquier
// entrada de la época actual, o de épocas anteriores si allowSupersede es false.
func (l *Ledger) RecordPending(ctx context.Context, trade domain.Trade, decision domain.CopyDecision, allowSupersede bool) (domain.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	prev, exists := l.entries[trade.ID]
	if exists && (prev.Epoch == l.epoch || !allowSupersede) {
		return *prev, fmt.Errorf("ledger.RecordPending %s: %w", trade.ID, domain.ErrDuplicateTrade)
	}

	now := l.now()
	entryID := uuid.New().String()
	if decision.ShouldCopy() {
		decision.Order.ClientOrderID = entryID
	}
	entry := domain.LedgerEntry{
		ID:            entryID,
		SourceTradeID: trade.ID,
		Epoch:         l.epoch,
		Trade:         trade,
		Decision:      decision,
		Status:        domain.StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if l.store != nil {
		if err := l.store.SaveLedgerEntry(ctx, entry); err != nil {
			return domain.LedgerEntry{}, fmt.Errorf("ledger.RecordPending %s: persist: %w", trade.ID, err)
		}
	}

	if !exists {
		l.order = append(l.order, trade.ID)
	}
	l.entries[trade.ID] = &entry
	return entry, nil
}

// Reopen vuelve a poner en pending una entrada skipped que nunca llegó al
// exchange, con una decisión de copia nueva y un client_order_id nuevo.
// Entradas copied, failed o cerradas por duplicado o interrupción no se
// reabren: podrían tener una orden real detrás.
func (l *Ledger) Reopen(ctx context.Context, sourceTradeID string, decision domain.CopyDecision) (domain.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cur, ok := l.entries[sourceTradeID]
	if !ok {
		return domain.LedgerEntry{}, fmt.Errorf("ledger.Reopen %s: %w", sourceTradeID, domain.ErrTradeNotFound)
	}
	if cur.Status != domain.StatusSkipped || cur.Decision.ShouldCopy() ||
		cur.Error == ReasonDuplicate || cur.Error == ReasonInterrupted {
		return *cur, fmt.Errorf("ledger.Reopen %s: status %s (%s): %w",
			sourceTradeID, cur.Status, cur.Error, domain.ErrNotCopyable)
	}
	if !decision.ShouldCopy() {
		return *cur, fmt.Errorf("ledger.Reopen %s: %s: %w", sourceTradeID, decision.Reason, domain.ErrNotCopyable)
	}

	next := *cur
	next.ID = uuid.New().String()
	decision.Order.ClientOrderID = next.ID
	next.Decision = decision
	next.Epoch = l.epoch
	next.Status = domain.StatusPending
	next.Error = ""
	next.UpdatedAt = l.now()

	if l.store != nil {
		if err := l.store.SaveLedgerEntry(ctx, next); err != nil {
			return *cur, fmt.Errorf("ledger.Reopen %s: persist: %w", sourceTradeID, err)
		}
	}
	*cur = next
	return next, nil
}

// Finalize mueve una entrada pending a su estado terminal.
func (l *Ledger) Finalize(ctx context.Context, sourceTradeID string, out domain.Outcome) (domain.LedgerEntry, error) {
	if !out.Status.Terminal() {
		return domain.LedgerEntry{}, fmt.Errorf("ledger.Finalize %s: status %q is not terminal", sourceTradeID, out.Status)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	cur, ok := l.entries[sourceTradeID]
	if !ok {
		return domain.LedgerEntry{}, fmt.Errorf("ledger.Finalize %s: no entry", sourceTradeID)
	}
	if cur.Status != domain.StatusPending {
		return *cur, fmt.Errorf("ledger.Finalize %s: already %s", sourceTradeID, cur.Status)
	}

	next := *cur
	next.Status = out.Status
	next.OrderID = out.OrderID
	next.FilledCount = out.FilledCount
	next.Attempts = out.Attempts
	next.Error = out.Error
	next.UpdatedAt = l.now()

	if l.store != nil {
		if err := l.store.SaveLedgerEntry(ctx, next); err != nil {
			// el estado en memoria es la fuente de verdad del gate; se avisa
			// al caller pero se aplica igual para no re-ejecutar el trade
			*cur = next
			return next, fmt.Errorf("ledger.Finalize %s: persist: %w", sourceTradeID, err)
		}
	}
	*cur = next
	return next, nil
}

// Get devuelve la entrada de un trade origen.
func (l *Ledger) Get(sourceTradeID string) (domain.LedgerEntry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.entries[sourceTradeID]
	if !ok {
		return domain.LedgerEntry{}, false
	}
	return *e, true
}

// Recent devuelve las últimas n entradas, más nuevas primero. n <= 0 devuelve todas.
func (l *Ledger) Recent(n int) []domain.LedgerEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 || n > len(l.order) {
		n = len(l.order)
	}
	out := make([]domain.LedgerEntry, 0, n)
	for i := len(l.order) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, *l.entries[l.order[i]])
	}
	return out
}

// Pending devuelve las entradas que siguen en pending, en orden de registro.
func (l *Ledger) Pending() []domain.LedgerEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []domain.LedgerEntry
	for _, id := range l.order {
		if e := l.entries[id]; e.Status == domain.StatusPending {
			out = append(out, *e)
		}
	}
	return out
}

// Epoch devuelve la época actual.
func (l *Ledger) Epoch() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.epoch
}

// Stats cuenta las entradas por estado.
func (l *Ledger) Stats() domain.LedgerStats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	st := domain.LedgerStats{Total: len(l.entries), Epoch: l.epoch}
	for _, e := range l.entries {
		switch e.Status {
		case domain.StatusPending:
			st.Pending++
		case domain.StatusCopied:
			st.Copied++
		case domain.StatusFailed:
			st.Failed++
		case domain.StatusSkipped:
			st.Skipped++
		}
	}
	return st
}

// Reset abre una nueva época. Con clear=true además borra todas las entradas.
func (l *Ledger) Reset(ctx context.Context, clear bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.store != nil {
		if clear {
			if err := l.store.ClearLedger(ctx); err != nil {
				return fmt.Errorf("ledger.Reset: %w", err)
			}
		}
		if err := l.store.SaveEpoch(ctx, l.epoch+1); err != nil {
			return fmt.Errorf("ledger.Reset: %w", err)
		}
	}
	l.epoch++
	if clear {
		l.entries = make(map[string]*domain.LedgerEntry)
		l.order = nil
	}
	return nil
}
