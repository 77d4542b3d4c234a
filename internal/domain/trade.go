package domain

import "time"

// Side es el lado del contrato en un mercado binario de Kalshi.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// Valid devuelve true si el lado es yes o no.
func (s Side) Valid() bool {
	return s == SideYes || s == SideNo
}

// Action es la dirección de la operación.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
)

// Valid devuelve true si la acción es buy o sell.
func (a Action) Valid() bool {
	return a == ActionBuy || a == ActionSell
}

// Trade representa un trade del usuario objetivo observado en la API.
// Es inmutable: nunca se modifica después de crearse.
type Trade struct {
	ID        string
	Ticker    string
	Title     string
	Side      Side
	Action    Action
	Price     int // centavos del lado operado (1..99)
	Count     int // contratos
	CreatedAt time.Time
	UserID    string
	IsTaker   bool
}

// After devuelve true si t es estrictamente posterior a other en el orden
// (CreatedAt, ID) que usa el cursor.
func (t Trade) After(other Trade) bool {
	if !t.CreatedAt.Equal(other.CreatedAt) {
		return t.CreatedAt.After(other.CreatedAt)
	}
	return t.ID > other.ID
}

// AgeCategory clasifica un trade por antigüedad para la vista de estado.
type AgeCategory string

const (
	AgeRecent  AgeCategory = "recent"
	AgeHour    AgeCategory = "hour"
	AgeHalfDay AgeCategory = "halfday"
	AgeOld     AgeCategory = "old"
)

// AgeOf devuelve la categoría de antigüedad de created respecto a now.
func AgeOf(created, now time.Time) AgeCategory {
	age := now.Sub(created)
	switch {
	case age <= 5*time.Minute:
		return AgeRecent
	case age <= time.Hour:
		return AgeHour
	case age <= 12*time.Hour:
		return AgeHalfDay
	default:
		return AgeOld
	}
}

// OrderType es el tipo de orden enviado al exchange.
type OrderType string

const OrderTypeLimit OrderType = "limit"

// OrderSpec es la orden dimensionada que produce la política de copia.
type OrderSpec struct {
	Ticker        string
	Side          Side
	Action        Action
	Type          OrderType
	Price         int // centavos; límite marketable al precio observado
	Count         int
	ClientOrderID string // estable entre reintentos para que el exchange deduplique
}

// OrderStatus es el estado de una orden tal como lo devuelve el exchange.
type OrderStatus string

const (
	OrderResting  OrderStatus = "resting"
	OrderExecuted OrderStatus = "executed"
	OrderCanceled OrderStatus = "canceled"
)

// OrderResult es la respuesta del exchange tras colocar una orden.
type OrderResult struct {
	OrderID        string
	Status         OrderStatus
	FilledCount    int
	RequestedCount int
}

// PartialFill devuelve true si la orden se llenó solo en parte.
func (r OrderResult) PartialFill() bool {
	return r.FilledCount > 0 && r.FilledCount < r.RequestedCount
}

// Balance es el saldo disponible de la cuenta del operador, en centavos.
type Balance struct {
	Cents     int64
	FetchedAt time.Time
}

// Dollars devuelve el saldo en dólares.
func (b Balance) Dollars() float64 {
	return float64(b.Cents) / 100
}
