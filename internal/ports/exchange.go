package ports

import (
	"context"

	"github.com/alejandrodnm/copybot/internal/domain"
)

// Exchange es la capacidad que el mirror necesita del exchange.
// Hay dos implementaciones: Kalshi real y el exchange demo.
// Los errores deben envolver domain.ErrTransient, domain.ErrRejected,
// domain.ErrInvalidTarget o domain.ErrUpstreamUnavailable para que el core
// pueda decidir si reintenta.
type Exchange interface {
	// Authenticate obtiene (o renueva) la sesión con el exchange.
	Authenticate(ctx context.Context) error

	// ListTradesForUser devuelve los trades recientes del usuario.
	// since es una pista: la implementación puede devolver trades más viejos,
	// el poller vuelve a filtrar.
	ListTradesForUser(ctx context.Context, userID string, since domain.Cursor) ([]domain.Trade, error)

	// PlaceOrder envía una orden límite y devuelve el resultado inmediato.
	PlaceOrder(ctx context.Context, spec domain.OrderSpec) (domain.OrderResult, error)

	// GetAccountBalance devuelve el saldo disponible del operador.
	GetAccountBalance(ctx context.Context) (domain.Balance, error)
}
