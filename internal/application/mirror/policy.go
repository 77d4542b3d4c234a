package mirror

import (
	"fmt"

	"github.com/alejandrodnm/copybot/internal/domain"
)

const (
	minPriceCents = 1
	maxPriceCents = 99
)

// Skip reasons.
const (
	ReasonDisabled     = "auto-copy disabled"
	ReasonZeroQuantity = "clamped quantity <= 0"
	ReasonBadPrice     = "price out of range"
	ReasonBadTrade     = "unsupported side or action"
	ReasonBaseline     = "baseline: observed before mirroring started"
	ReasonDuplicate    = "duplicate trade"
	ReasonInterrupted  = "interrupted before execution finished"
)

// Decide mapea un trade origen y la configuración actual a una decisión de
// copia. Es pura: mismas entradas, misma salida.
//
// El ClientOrderID no se asigna aquí; lo asigna el ledger al registrar la
// entrada para que sea estable entre reintentos.
func Decide(trade domain.Trade, settings domain.Settings) domain.CopyDecision {
	if !settings.AutoCopyEnabled {
		return domain.Skip(ReasonDisabled)
	}

	qty := min(trade.Count, settings.MaxCopyAmount)
	if qty <= 0 {
		return domain.Skip(ReasonZeroQuantity)
	}

	if !trade.Side.Valid() || !trade.Action.Valid() {
		return domain.Skip(ReasonBadTrade)
	}

	if trade.Price < minPriceCents || trade.Price > maxPriceCents {
		return domain.Skip(fmt.Sprintf("%s: %d¢", ReasonBadPrice, trade.Price))
	}

	reason := "mirror"
	if qty < trade.Count {
		reason = fmt.Sprintf("clamped %d -> %d", trade.Count, qty)
	}

	return domain.CopyDecision{
		Action: domain.DecisionCopy,
		Reason: reason,
		Order: domain.OrderSpec{
			Ticker: trade.Ticker,
			Side:   trade.Side,
			Action: trade.Action,
			Type:   domain.OrderTypeLimit,
			Price:  trade.Price,
			Count:  qty,
		},
	}
}
