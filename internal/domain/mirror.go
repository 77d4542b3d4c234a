package domain

import "time"

// Cursor marca el trade más reciente procesado para un usuario objetivo.
type Cursor struct {
	UserID    string
	TradeID   string
	TradeTime time.Time
	UpdatedAt time.Time
}

// IsZero devuelve true si el cursor todavía no apunta a ningún trade.
func (c Cursor) IsZero() bool {
	return c.TradeID == "" && c.TradeTime.IsZero()
}

// Admits devuelve true si t es estrictamente más nuevo que el cursor.
func (c Cursor) Admits(t Trade) bool {
	if c.IsZero() {
		return true
	}
	return t.After(Trade{ID: c.TradeID, CreatedAt: c.TradeTime})
}

// Advance devuelve el cursor movido a t. Nunca retrocede: si t no es más
// nuevo, devuelve el cursor sin cambios.
func (c Cursor) Advance(t Trade, now time.Time) Cursor {
	if !c.Admits(t) {
		return c
	}
	return Cursor{
		UserID:    c.UserID,
		TradeID:   t.ID,
		TradeTime: t.CreatedAt,
		UpdatedAt: now,
	}
}

// DecisionAction es el resultado de la política de copia.
type DecisionAction string

const (
	DecisionSkip DecisionAction = "skip"
	DecisionCopy DecisionAction = "copy"
)

// CopyDecision es el valor transitorio que produce la política para un trade.
type CopyDecision struct {
	Action DecisionAction
	Reason string
	Order  OrderSpec // solo válido si Action == DecisionCopy
}

// ShouldCopy devuelve true si la decisión es copiar.
func (d CopyDecision) ShouldCopy() bool {
	return d.Action == DecisionCopy
}

// Skip construye una decisión de no copiar con el motivo dado.
func Skip(reason string) CopyDecision {
	return CopyDecision{Action: DecisionSkip, Reason: reason}
}

// LedgerStatus es el estado de una entrada del ledger.
type LedgerStatus string

const (
	StatusPending LedgerStatus = "pending"
	StatusCopied  LedgerStatus = "copied"
	StatusFailed  LedgerStatus = "failed"
	StatusSkipped LedgerStatus = "skipped"
)

// Terminal devuelve true para copied, failed y skipped.
func (s LedgerStatus) Terminal() bool {
	return s == StatusCopied || s == StatusFailed || s == StatusSkipped
}

// LedgerEntry registra la evaluación de un trade origen y su resultado.
type LedgerEntry struct {
	ID            string // UUID local
	SourceTradeID string
	Epoch         int
	Trade         Trade
	Decision      CopyDecision
	Status        LedgerStatus
	OrderID       string
	FilledCount   int
	Attempts      int
	Error         string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Outcome es lo que el executor (o el engine) escribe al finalizar una entrada.
type Outcome struct {
	Status      LedgerStatus
	OrderID     string
	FilledCount int
	Attempts    int
	Error       string
}

// LedgerStats agrega las entradas del ledger por estado.
type LedgerStats struct {
	Total   int
	Pending int
	Copied  int
	Failed  int
	Skipped int
	Epoch   int
}
