package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alejandrodnm/copybot/internal/domain"
	"github.com/alejandrodnm/copybot/internal/ports"
)

const defaultStatusEntries = 50

// State es el estado del engine entre ticks.
type State string

const (
	StateIdle    State = "idle"
	StateTicking State = "ticking"
)

// Config agrupa los parámetros fijos del engine (no editables en caliente).
type Config struct {
	Executor    ExecutorConfig
	CallTimeout time.Duration // timeout por llamada del poller y del balance
	DemoMode    bool          // solo informativo, para el status
}

// TickResult resume un tick.
type TickResult struct {
	Skipped   bool // sin usuario objetivo: no se consultó el exchange
	Baseline  bool
	Fetched   int
	Processed int
	Copied    int
	Failed    int
	Ignored   int // decisiones skip
	Duplicate int // trades que ya tenían entrada en el ledger
	Entries   []domain.LedgerEntry
	Cursor    domain.Cursor
	Duration  time.Duration
}

// Status es la vista que se expone por HTTP.
type Status struct {
	State      State
	DemoMode   bool
	Settings   domain.Settings
	Cursor     domain.Cursor
	Entries    []domain.LedgerEntry
	Stats      domain.LedgerStats
	Balance    *domain.Balance
	StartedAt  time.Time
	LastTickAt time.Time
	LastError  string
	Ticks      int64
}

// Engine orquesta Poller → Decide → Ledger → Executor → Cursor en cada tick.
type Engine struct {
	exchange ports.Exchange
	store    ports.LedgerStorage // opcional
	notifier ports.Notifier      // opcional
	settings *SettingsStore
	poller   *Poller
	executor *Executor
	ledger   *Ledger
	cfg      Config

	tickMu  sync.Mutex // exactamente un tick a la vez
	ticking atomic.Bool
	ticks   atomic.Int64

	mu         sync.RWMutex // protege lo de abajo
	cursor     domain.Cursor
	primed     bool // false → el próximo poll es baseline
	balance    *domain.Balance
	lastTickAt time.Time
	lastErr    string
	startedAt  time.Time
}

// New crea un engine. store y notifier pueden ser nil.
func New(
	exchange ports.Exchange,
	settings *SettingsStore,
	store ports.LedgerStorage,
	notifier ports.Notifier,
	cfg Config,
) *Engine {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	if cfg.Executor.CallTimeout <= 0 {
		cfg.Executor.CallTimeout = cfg.CallTimeout
	}

	ledger := NewLedger(store)
	return &Engine{
		exchange:  exchange,
		store:     store,
		notifier:  notifier,
		settings:  settings,
		poller:    NewPoller(exchange, cfg.CallTimeout),
		executor:  NewExecutor(exchange, ledger, cfg.Executor),
		ledger:    ledger,
		cfg:       cfg,
		startedAt: time.Now(),
	}
}

// Restore carga ledger y cursor desde el storage. El primer poll tras
// arrancar sigue siendo baseline: no se reconcilian trades ocurridos mientras
// el proceso estaba parado. Las entradas que quedaron en pending (el proceso
// murió a mitad de trade) se cierran como skipped y no se re-ejecutan.
func (e *Engine) Restore(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	if err := e.ledger.Load(ctx); err != nil {
		return fmt.Errorf("engine.Restore: %w", err)
	}
	for _, p := range e.ledger.Pending() {
		slog.Warn("engine: closing entry left pending by previous run",
			"trade", p.SourceTradeID,
			"ticker", p.Trade.Ticker,
			"client_order_id", p.Decision.Order.ClientOrderID,
		)
		if _, err := e.ledger.Finalize(ctx, p.SourceTradeID, domain.Outcome{
			Status: domain.StatusSkipped,
			Error:  ReasonInterrupted,
		}); err != nil {
			slog.Warn("engine: finalize interrupted entry", "trade", p.SourceTradeID, "err", err)
		}
	}
	c, err := e.store.LoadCursor(ctx)
	if err != nil {
		return fmt.Errorf("engine.Restore: cursor: %w", err)
	}

	e.mu.Lock()
	e.cursor = c
	e.mu.Unlock()

	st := e.ledger.Stats()
	slog.Info("engine: state restored",
		"entries", st.Total,
		"epoch", st.Epoch,
		"cursor_user", c.UserID,
		"cursor_trade", c.TradeID,
	)
	return nil
}

// Run ejecuta ticks hasta que se cancele el contexto. El intervalo se relee
// de la configuración en cada vuelta.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine starting",
		"interval", e.settings.Get().PollingInterval(),
		"demo", e.cfg.DemoMode,
	)

	e.runTick(ctx)

	timer := time.NewTimer(e.settings.Get().PollingInterval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("engine stopped", "ticks", e.ticks.Load())
			return nil
		case <-timer.C:
			e.runTick(ctx)
			timer.Reset(e.settings.Get().PollingInterval())
		}
	}
}

func (e *Engine) runTick(ctx context.Context) {
	res, err := e.Tick(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		slog.Error("tick failed", "err", err)
		return
	}
	if res.Processed > 0 {
		slog.Info("tick complete",
			"fetched", res.Fetched,
			"processed", res.Processed,
			"copied", res.Copied,
			"failed", res.Failed,
			"skipped", res.Ignored,
			"duplicates", res.Duplicate,
			"baseline", res.Baseline,
			"cursor", res.Cursor.TradeID,
			"duration", res.Duration.Round(time.Millisecond),
		)
	} else {
		slog.Debug("tick: no new trades", "duration", res.Duration.Round(time.Millisecond))
	}
}

// Tick ejecuta un ciclo completo. Devuelve domain.ErrTickInProgress si ya
// hay otro tick en curso. Los fallos terminales de trades individuales
// quedan en el ledger y no se devuelven como error.
func (e *Engine) Tick(ctx context.Context) (*TickResult, error) {
	if !e.tickMu.TryLock() {
		return nil, domain.ErrTickInProgress
	}
	defer e.tickMu.Unlock()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	e.ticking.Store(true)
	defer e.ticking.Store(false)
	e.ticks.Add(1)

	start := time.Now()
	res, err := e.tick(ctx)

	e.mu.Lock()
	e.lastTickAt = time.Now()
	if err != nil {
		e.lastErr = err.Error()
	} else {
		e.lastErr = ""
	}
	e.mu.Unlock()

	if err != nil {
		return nil, err
	}
	res.Duration = time.Since(start)

	if e.notifier != nil && len(res.Entries) > 0 && !res.Baseline {
		if err := e.notifier.NotifyTick(ctx, res.Entries); err != nil {
			slog.Warn("notifier error", "err", err)
		}
	}
	return res, nil
}

func (e *Engine) tick(ctx context.Context) (*TickResult, error) {
	// la configuración se lee una vez: un cambio a mitad de tick aplica al siguiente
	settings := e.settings.Get()
	res := &TickResult{}

	if settings.TargetUserID == "" {
		res.Skipped = true
		return res, nil
	}

	cursor, primed := e.cursorFor(settings.TargetUserID)

	trades, err := e.poller.FetchNew(ctx, settings.TargetUserID, cursor)
	if err != nil {
		return nil, fmt.Errorf("engine.Tick: %w", err)
	}
	res.Fetched = len(trades)

	e.refreshBalance(ctx)

	if !primed {
		res.Baseline = true
		return e.recordBaseline(ctx, res, trades, cursor)
	}

	// cada trade se procesa hasta su estado terminal aunque llegue la señal de
	// parada; solo se deja de empezar trades nuevos
	work := context.WithoutCancel(ctx)
	for _, trade := range trades {
		if ctx.Err() != nil {
			slog.Info("engine: shutdown requested, stopping tick", "remaining", len(trades)-res.Processed)
			break
		}

		entry, dup, err := e.process(work, trade, settings)
		if err != nil {
			// no se pudo registrar: el cursor no avanza y el tick se corta aquí
			return nil, fmt.Errorf("engine.Tick: trade %s: %w", trade.ID, err)
		}

		cursor = e.advanceCursor(work, cursor, trade)
		res.Processed++
		if dup {
			res.Duplicate++
			continue
		}
		res.Entries = append(res.Entries, entry)
		switch entry.Status {
		case domain.StatusCopied:
			res.Copied++
		case domain.StatusFailed:
			res.Failed++
		default:
			res.Ignored++
		}
	}

	res.Cursor = cursor
	return res, nil
}

// process lleva un trade a una entrada terminal del ledger. dup indica que el
// trade ya estaba registrado y no se evaluó de nuevo.
func (e *Engine) process(ctx context.Context, trade domain.Trade, settings domain.Settings) (entry domain.LedgerEntry, dup bool, err error) {
	decision := Decide(trade, settings)

	entry, err = e.ledger.RecordPending(ctx, trade, decision, settings.RecopyAfterReset)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateTrade) {
			return e.handleDuplicate(ctx, trade, entry), true, nil
		}
		return domain.LedgerEntry{}, false, err
	}

	if !decision.ShouldCopy() {
		final, err := e.ledger.Finalize(ctx, trade.ID, domain.Outcome{
			Status: domain.StatusSkipped,
			Error:  decision.Reason,
		})
		if err != nil {
			slog.Warn("engine: finalize skipped entry", "trade", trade.ID, "err", err)
		}
		return final, false, nil
	}

	final, err := e.executor.Execute(ctx, entry)
	if err != nil {
		slog.Warn("engine: finalize executed entry", "trade", trade.ID, "err", err)
	}
	logOutcome(final)
	return final, false, nil
}

// handleDuplicate: el trade no se ejecuta. Si quedó una entrada pending
// (p.ej. crash a mitad de tick) se cierra como skipped.
func (e *Engine) handleDuplicate(ctx context.Context, trade domain.Trade, existing domain.LedgerEntry) domain.LedgerEntry {
	attrs := []any{
		"trade", trade.ID,
		"ticker", trade.Ticker,
		"existing_status", existing.Status,
		"existing_epoch", existing.Epoch,
	}
	if existing.Epoch < e.ledger.Epoch() {
		// re-observado tras un reset del operador con RecopyAfterReset=false
		slog.Warn("engine: trade already mirrored before reset, not copying again", attrs...)
	} else {
		slog.Error("engine: DUPLICATE TRADE, refusing to copy again", attrs...)
	}
	if existing.Status != domain.StatusPending {
		return existing
	}
	final, err := e.ledger.Finalize(ctx, trade.ID, domain.Outcome{
		Status: domain.StatusSkipped,
		Error:  ReasonDuplicate,
	})
	if err != nil {
		slog.Warn("engine: finalize duplicate entry", "trade", trade.ID, "err", err)
	}
	return final
}

// recordBaseline registra los trades del primer poll como skipped y mueve el
// cursor al más nuevo, sin copiar nada.
func (e *Engine) recordBaseline(ctx context.Context, res *TickResult, trades []domain.Trade, cursor domain.Cursor) (*TickResult, error) {
	for _, trade := range trades {
		if _, known := e.ledger.Get(trade.ID); !known {
			if _, err := e.ledger.RecordPending(ctx, trade, domain.Skip(ReasonBaseline), false); err != nil {
				return nil, fmt.Errorf("engine.Tick: baseline %s: %w", trade.ID, err)
			}
			entry, err := e.ledger.Finalize(ctx, trade.ID, domain.Outcome{
				Status: domain.StatusSkipped,
				Error:  ReasonBaseline,
			})
			if err != nil {
				slog.Warn("engine: finalize baseline entry", "trade", trade.ID, "err", err)
			}
			res.Entries = append(res.Entries, entry)
			res.Ignored++
		}
		cursor = e.advanceCursor(ctx, cursor, trade)
		res.Processed++
	}

	e.mu.Lock()
	e.primed = true
	e.mu.Unlock()

	res.Cursor = cursor
	slog.Info("engine: baseline recorded",
		"user", cursor.UserID,
		"trades", len(trades),
		"cursor", cursor.TradeID,
	)
	return res, nil
}

// cursorFor devuelve el cursor del usuario objetivo. Si el objetivo cambió,
// empieza un cursor nuevo y re-arma el baseline.
func (e *Engine) cursorFor(userID string) (domain.Cursor, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cursor.UserID != userID {
		if e.cursor.UserID != "" {
			slog.Info("engine: target user changed, starting new cursor",
				"from", e.cursor.UserID, "to", userID)
		}
		e.cursor = domain.Cursor{UserID: userID}
		e.primed = false
	}
	return e.cursor, e.primed
}

// advanceCursor mueve el cursor y lo persiste. Un fallo al persistir no
// bloquea: el ledger ya protege contra re-ejecución.
func (e *Engine) advanceCursor(ctx context.Context, cursor domain.Cursor, trade domain.Trade) domain.Cursor {
	next := cursor.Advance(trade, time.Now())

	e.mu.Lock()
	e.cursor = next
	e.mu.Unlock()

	if e.store != nil {
		if err := e.store.SaveCursor(ctx, next); err != nil {
			slog.Warn("engine: persist cursor", "trade", trade.ID, "err", err)
		}
	}
	return next
}

func (e *Engine) refreshBalance(ctx context.Context) {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()

	bal, err := e.exchange.GetAccountBalance(callCtx)
	if err != nil {
		slog.Debug("engine: balance refresh failed", "err", err)
		return
	}
	e.mu.Lock()
	e.balance = &bal
	e.mu.Unlock()
}

// Status devuelve una instantánea del engine con las últimas limit entradas.
func (e *Engine) Status(limit int) Status {
	if limit <= 0 {
		limit = defaultStatusEntries
	}

	st := Status{
		State:    StateIdle,
		DemoMode: e.cfg.DemoMode,
		Settings: e.settings.Get(),
		Entries:  e.ledger.Recent(limit),
		Stats:    e.ledger.Stats(),
		Ticks:    e.ticks.Load(),
	}
	if e.ticking.Load() {
		st.State = StateTicking
	}

	e.mu.RLock()
	st.Cursor = e.cursor
	st.StartedAt = e.startedAt
	st.LastTickAt = e.lastTickAt
	st.LastError = e.lastErr
	if e.balance != nil {
		b := *e.balance
		st.Balance = &b
	}
	e.mu.RUnlock()
	return st
}

// Entries devuelve las últimas limit entradas del ledger (0 = todas).
func (e *Engine) Entries(limit int) []domain.LedgerEntry {
	return e.ledger.Recent(limit)
}

// UpdateSettings valida y aplica un cambio parcial de configuración.
func (e *Engine) UpdateSettings(patch domain.SettingsPatch) (domain.Settings, error) {
	prev, next, err := e.settings.Apply(patch)
	if err != nil {
		return prev, err
	}
	slog.Info("settings updated",
		"target_user", next.TargetUserID,
		"max_copy_amount", next.MaxCopyAmount,
		"polling_interval_ms", next.PollingIntervalMs,
		"auto_copy", next.AutoCopyEnabled,
		"recopy_after_reset", next.RecopyAfterReset,
	)
	return next, nil
}

// ToggleAutoCopy invierte el interruptor de auto-copy y devuelve el nuevo valor.
func (e *Engine) ToggleAutoCopy() (bool, error) {
	cur := e.settings.Get().AutoCopyEnabled
	flipped := !cur
	next, err := e.UpdateSettings(domain.SettingsPatch{AutoCopyEnabled: &flipped})
	if err != nil {
		return cur, err
	}
	return next.AutoCopyEnabled, nil
}

// ResetCursor limpia el cursor del objetivo actual y abre una nueva época del
// ledger. Espera a que termine el tick en curso. Con RecopyAfterReset activo
// las entradas anteriores dejan de bloquear. Si clearLedger es true sin
// RecopyAfterReset, el próximo poll vuelve a ser baseline para no copiar
// trades anteriores al arranque.
func (e *Engine) ResetCursor(ctx context.Context, clearLedger bool) error {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	if err := e.ledger.Reset(ctx, clearLedger); err != nil {
		return fmt.Errorf("engine.ResetCursor: %w", err)
	}
	rebaseline := clearLedger && !e.settings.Get().RecopyAfterReset

	e.mu.Lock()
	if rebaseline {
		e.primed = false
	}
	e.cursor = domain.Cursor{UserID: e.cursor.UserID, UpdatedAt: time.Now()}
	cleared := e.cursor
	e.mu.Unlock()

	if e.store != nil {
		if err := e.store.SaveCursor(ctx, cleared); err != nil {
			return fmt.Errorf("engine.ResetCursor: persist cursor: %w", err)
		}
	}

	slog.Warn("engine: cursor reset by operator",
		"user", cleared.UserID,
		"clear_ledger", clearLedger,
		"rebaseline", rebaseline,
		"epoch", e.ledger.Epoch(),
	)
	return nil
}

// CopyTrade copia a mano un trade que el ledger registró como skipped sin
// ejecutarlo (auto-copy apagado o baseline). Usa la configuración actual
// salvo el interruptor de auto-copy. Espera a que termine el tick en curso.
func (e *Engine) CopyTrade(ctx context.Context, sourceTradeID string) (domain.LedgerEntry, error) {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	existing, ok := e.ledger.Get(sourceTradeID)
	if !ok {
		return domain.LedgerEntry{}, fmt.Errorf("engine.CopyTrade %s: %w", sourceTradeID, domain.ErrTradeNotFound)
	}

	settings := e.settings.Get()
	settings.AutoCopyEnabled = true
	decision := Decide(existing.Trade, settings)

	work := context.WithoutCancel(ctx)
	entry, err := e.ledger.Reopen(work, sourceTradeID, decision)
	if err != nil {
		return entry, fmt.Errorf("engine.CopyTrade: %w", err)
	}

	slog.Info("engine: manual copy requested", "trade", sourceTradeID, "ticker", existing.Trade.Ticker)
	final, err := e.executor.Execute(work, entry)
	if err != nil {
		slog.Warn("engine: finalize manual copy", "trade", sourceTradeID, "err", err)
	}
	logOutcome(final)
	return final, nil
}

// Authenticate renueva la sesión con el exchange.
func (e *Engine) Authenticate(ctx context.Context) error {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()
	if err := e.exchange.Authenticate(callCtx); err != nil {
		return fmt.Errorf("engine.Authenticate: %w", err)
	}
	slog.Info("engine: authenticated with exchange")
	return nil
}

func logOutcome(entry domain.LedgerEntry) {
	attrs := []any{
		"trade", entry.SourceTradeID,
		"ticker", entry.Trade.Ticker,
		"side", entry.Trade.Side,
		"count", entry.Decision.Order.Count,
		"price", entry.Decision.Order.Price,
		"status", entry.Status,
		"attempts", entry.Attempts,
	}
	switch entry.Status {
	case domain.StatusCopied:
		slog.Info("trade mirrored", append(attrs, "order_id", entry.OrderID, "filled", entry.FilledCount)...)
	case domain.StatusFailed:
		slog.Warn("trade mirror failed", append(attrs, "err", entry.Error)...)
	}
}
