package ports

import (
	"context"

	"github.com/alejandrodnm/copybot/internal/domain"
)

// Notifier presenta el resultado de cada tick al operador.
type Notifier interface {
	// NotifyTick recibe las entradas del ledger finalizadas en el tick.
	// En la implementación de consola imprime una tabla.
	NotifyTick(ctx context.Context, entries []domain.LedgerEntry) error
}
