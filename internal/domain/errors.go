package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUpstreamUnavailable: fallo de red/auth al consultar el exchange. Transitorio.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrInvalidTarget: el usuario objetivo no existe o no está configurado.
	ErrInvalidTarget = errors.New("invalid target user")
	// ErrDuplicateTrade: el trade ya tiene entrada en el ledger. No debería ocurrir.
	ErrDuplicateTrade = errors.New("duplicate trade")
	// ErrRejected: el exchange rechazó la orden. Terminal.
	ErrRejected = errors.New("order rejected")
	// ErrOrderExists: el exchange ya tiene una orden con ese client_order_id.
	// Tras un timeout significa que el intento anterior sí llegó.
	ErrOrderExists = errors.New("order already exists")
	// ErrTransient: error de ejecución reintentable.
	ErrTransient = errors.New("transient exchange error")
	// ErrValidation: configuración inválida, rechazada antes de mutar nada.
	ErrValidation = errors.New("validation error")
	// ErrTradeNotFound: el trade no tiene entrada en el ledger.
	ErrTradeNotFound = errors.New("trade not found in ledger")
	// ErrNotCopyable: la entrada ya se ejecutó o la política no permite copiarla.
	ErrNotCopyable = errors.New("trade cannot be copied")
	// ErrTickInProgress: ya hay un tick en curso.
	ErrTickInProgress = errors.New("tick already in progress")
)

// ValidationError describe qué campo de la configuración es inválido.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// IsTransient devuelve true si el error admite reintento.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrUpstreamUnavailable)
}
