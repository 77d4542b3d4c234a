package ports

import (
	"context"

	"github.com/alejandrodnm/copybot/internal/domain"
)

// LedgerStorage persiste el ledger y el cursor entre reinicios.
// Es opcional: sin storage el ledger vive solo en memoria.
type LedgerStorage interface {
	ApplyMirrorSchema(ctx context.Context) error

	// SaveLedgerEntry inserta o reemplaza la entrada de un trade origen.
	SaveLedgerEntry(ctx context.Context, entry domain.LedgerEntry) error
	// LoadLedgerEntries devuelve todas las entradas, más antiguas primero.
	LoadLedgerEntries(ctx context.Context) ([]domain.LedgerEntry, error)
	// ClearLedger borra todas las entradas.
	ClearLedger(ctx context.Context) error

	SaveCursor(ctx context.Context, c domain.Cursor) error
	// LoadCursor devuelve un cursor vacío si no hay ninguno guardado.
	LoadCursor(ctx context.Context) (domain.Cursor, error)

	// SaveEpoch guarda la época del ledger; LoadEpoch devuelve 0 si no hay.
	SaveEpoch(ctx context.Context, epoch int) error
	LoadEpoch(ctx context.Context) (int, error)

	Close() error
}
