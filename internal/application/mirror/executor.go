package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/alejandrodnm/copybot/internal/domain"
	"github.com/alejandrodnm/copybot/internal/ports"
)

const (
	defaultMaxAttempts = 3
	defaultBaseBackoff = 500 * time.Millisecond
	maxBackoff         = 10 * time.Second
)

// ExecutorConfig controla reintentos y timeouts de colocación de órdenes.
type ExecutorConfig struct {
	MaxAttempts int           // intentos totales ante errores transitorios
	BaseBackoff time.Duration // espera tras el primer fallo; se duplica en cada intento
	CallTimeout time.Duration // timeout por llamada a PlaceOrder
}

// Executor coloca la orden de una entrada del ledger y escribe el resultado.
type Executor struct {
	exchange ports.Exchange
	ledger   *Ledger
	cfg      ExecutorConfig
	sleep    func(ctx context.Context, d time.Duration)
}

// NewExecutor crea un Executor aplicando defaults a los campos vacíos.
func NewExecutor(exchange ports.Exchange, ledger *Ledger, cfg ExecutorConfig) *Executor {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = defaultBaseBackoff
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	return &Executor{
		exchange: exchange,
		ledger:   ledger,
		cfg:      cfg,
		sleep:    sleepCtx,
	}
}

// Execute envía la orden de la entrada y la finaliza en el ledger.
// Nunca deja la entrada en pending: cualquier camino termina en copied o failed.
func (e *Executor) Execute(ctx context.Context, entry domain.LedgerEntry) (domain.LedgerEntry, error) {
	out := e.submit(ctx, entry.Decision.Order)

	final, err := e.ledger.Finalize(ctx, entry.SourceTradeID, out)
	if err != nil {
		return final, fmt.Errorf("executor.Execute: %w", err)
	}
	return final, nil
}

// submit aplica la política de reintentos y traduce el resultado a un Outcome.
func (e *Executor) submit(ctx context.Context, spec domain.OrderSpec) domain.Outcome {
	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		res, err := e.place(ctx, spec)
		if err == nil {
			return outcomeFromResult(res, attempt)
		}
		lastErr = err

		if errors.Is(err, domain.ErrOrderExists) {
			// un intento anterior llegó al exchange aunque no vimos la respuesta
			slog.Warn("executor: order already on exchange, recording as copied",
				"ticker", spec.Ticker,
				"client_order_id", spec.ClientOrderID,
				"attempt", attempt,
			)
			return domain.Outcome{
				Status:   domain.StatusCopied,
				Attempts: attempt,
				Error:    "order already on exchange; fill unknown",
			}
		}

		if !retryable(err) {
			slog.Warn("executor: order rejected",
				"ticker", spec.Ticker,
				"client_order_id", spec.ClientOrderID,
				"attempt", attempt,
				"err", err,
			)
			return domain.Outcome{Status: domain.StatusFailed, Attempts: attempt, Error: err.Error()}
		}

		slog.Warn("executor: transient error placing order",
			"ticker", spec.Ticker,
			"client_order_id", spec.ClientOrderID,
			"attempt", attempt,
			"max_attempts", e.cfg.MaxAttempts,
			"err", err,
		)
		if attempt < e.cfg.MaxAttempts {
			e.sleep(ctx, backoff(e.cfg.BaseBackoff, attempt))
		}
	}

	return domain.Outcome{
		Status:   domain.StatusFailed,
		Attempts: e.cfg.MaxAttempts,
		Error:    fmt.Sprintf("gave up after %d attempts: %v", e.cfg.MaxAttempts, lastErr),
	}
}

func (e *Executor) place(ctx context.Context, spec domain.OrderSpec) (domain.OrderResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()

	res, err := e.exchange.PlaceOrder(callCtx, spec)
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		return res, fmt.Errorf("%w: %w", domain.ErrTransient, err)
	}
	return res, err
}

// retryable: solo transitorios. Errores sin clasificar se tratan como
// terminales para no arriesgar órdenes duplicadas.
func retryable(err error) bool {
	return domain.IsTransient(err) && !errors.Is(err, domain.ErrRejected)
}

func outcomeFromResult(res domain.OrderResult, attempts int) domain.Outcome {
	if res.Status == domain.OrderCanceled && res.FilledCount == 0 {
		return domain.Outcome{
			Status:   domain.StatusFailed,
			OrderID:  res.OrderID,
			Attempts: attempts,
			Error:    "order canceled without fill",
		}
	}
	return domain.Outcome{
		Status:      domain.StatusCopied,
		OrderID:     res.OrderID,
		FilledCount: res.FilledCount,
		Attempts:    attempts,
	}
}

// backoff devuelve base * 2^(attempt-1), acotado a maxBackoff.
func backoff(base time.Duration, attempt int) time.Duration {
	d := time.Duration(math.Pow(2, float64(attempt-1))) * base
	return min(d, maxBackoff)
}

// sleepCtx espera d respetando el contexto.
func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
