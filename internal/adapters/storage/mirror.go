package storage

// mirror.go — persistencia del ledger de copias y del cursor.
//
// Tablas:
//   mirror_ledger — una fila por trade origen (UPSERT por source_trade_id)
//   mirror_cursor — una sola fila con el último trade procesado
//   mirror_epoch  — una sola fila con la época actual del ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/alejandrodnm/copybot/internal/domain"
)

const mirrorSchema = `
CREATE TABLE IF NOT EXISTS mirror_ledger (
    source_trade_id TEXT PRIMARY KEY,
    id              TEXT NOT NULL,      -- UUID local, también client_order_id
    epoch           INTEGER NOT NULL DEFAULT 0,
    status          TEXT NOT NULL,      -- pending / copied / failed / skipped
    ticker          TEXT NOT NULL,
    title           TEXT,
    side            TEXT NOT NULL,
    action          TEXT NOT NULL,
    price           INTEGER NOT NULL,
    count           INTEGER NOT NULL,
    trade_time      INTEGER NOT NULL,   -- unix nanos
    user_id         TEXT NOT NULL DEFAULT '',
    is_taker        INTEGER NOT NULL DEFAULT 0,
    decision        TEXT NOT NULL,      -- skip / copy
    reason          TEXT,
    order_type      TEXT NOT NULL DEFAULT '',
    order_price     INTEGER NOT NULL DEFAULT 0,
    order_count     INTEGER NOT NULL DEFAULT 0,
    order_id        TEXT NOT NULL DEFAULT '',
    filled_count    INTEGER NOT NULL DEFAULT 0,
    attempts        INTEGER NOT NULL DEFAULT 0,
    error           TEXT,
    created_at      INTEGER NOT NULL,
    updated_at      INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS mirror_ledger_status  ON mirror_ledger(status);
CREATE INDEX IF NOT EXISTS mirror_ledger_created ON mirror_ledger(created_at);

CREATE TABLE IF NOT EXISTS mirror_cursor (
    id          INTEGER PRIMARY KEY DEFAULT 1,
    user_id     TEXT NOT NULL DEFAULT '',
    trade_id    TEXT NOT NULL DEFAULT '',
    trade_time  INTEGER NOT NULL DEFAULT 0,
    updated_at  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS mirror_epoch (
    id     INTEGER PRIMARY KEY DEFAULT 1,
    epoch  INTEGER NOT NULL DEFAULT 0
);
`

// ApplyMirrorSchema crea las tablas del mirror si no existen.
func (s *SQLiteStorage) ApplyMirrorSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, mirrorSchema); err != nil {
		return fmt.Errorf("mirror schema: %w", err)
	}
	return nil
}

// ─── Ledger ──────────────────────────────────────────────────────────────────

// SaveLedgerEntry inserta o reemplaza la entrada de un trade origen.
func (s *SQLiteStorage) SaveLedgerEntry(ctx context.Context, e domain.LedgerEntry) error {
	t, d := e.Trade, e.Decision
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO mirror_ledger
		  (source_trade_id, id, epoch, status, ticker, title, side, action, price, count,
		   trade_time, user_id, is_taker, decision, reason, order_type, order_price,
		   order_count, order_id, filled_count, attempts, error, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		e.SourceTradeID, e.ID, e.Epoch, string(e.Status),
		t.Ticker, t.Title, string(t.Side), string(t.Action), t.Price, t.Count,
		unixNano(t.CreatedAt), t.UserID, boolToInt(t.IsTaker),
		string(d.Action), d.Reason, string(d.Order.Type), d.Order.Price, d.Order.Count,
		e.OrderID, e.FilledCount, e.Attempts, e.Error,
		unixNano(e.CreatedAt), unixNano(e.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveLedgerEntry %s: %w", e.SourceTradeID, err)
	}
	return nil
}

// LoadLedgerEntries devuelve todas las entradas, más antiguas primero.
func (s *SQLiteStorage) LoadLedgerEntries(ctx context.Context) ([]domain.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_trade_id, id, epoch, status, ticker, title, side, action, price, count,
		       trade_time, user_id, is_taker, decision, reason, order_type, order_price,
		       order_count, order_id, filled_count, attempts, error, created_at, updated_at
		FROM mirror_ledger
		ORDER BY created_at ASC, rowid ASC`)
	if err != nil {
		return nil, fmt.Errorf("storage.LoadLedgerEntries: query: %w", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var (
			e                               domain.LedgerEntry
			status, side, action, decision  string
			orderType                       string
			title, reason, errText          sql.NullString
			tradeTime, createdAt, updatedAt int64
			isTaker                         int
		)
		if err := rows.Scan(
			&e.SourceTradeID, &e.ID, &e.Epoch, &status,
			&e.Trade.Ticker, &title, &side, &action, &e.Trade.Price, &e.Trade.Count,
			&tradeTime, &e.Trade.UserID, &isTaker,
			&decision, &reason, &orderType, &e.Decision.Order.Price, &e.Decision.Order.Count,
			&e.OrderID, &e.FilledCount, &e.Attempts, &errText,
			&createdAt, &updatedAt,
		); err != nil {
			return nil, fmt.Errorf("storage.LoadLedgerEntries: scan row: %w", err)
		}

		e.Status = domain.LedgerStatus(status)
		e.Trade.ID = e.SourceTradeID
		e.Trade.Title = title.String
		e.Trade.Side = domain.Side(side)
		e.Trade.Action = domain.Action(action)
		e.Trade.CreatedAt = fromUnixNano(tradeTime)
		e.Trade.IsTaker = isTaker == 1

		e.Decision.Action = domain.DecisionAction(decision)
		e.Decision.Reason = reason.String
		if e.Decision.ShouldCopy() {
			e.Decision.Order.Ticker = e.Trade.Ticker
			e.Decision.Order.Side = e.Trade.Side
			e.Decision.Order.Action = e.Trade.Action
			e.Decision.Order.Type = domain.OrderType(orderType)
			e.Decision.Order.ClientOrderID = e.ID
		}

		e.Error = errText.String
		e.CreatedAt = fromUnixNano(createdAt)
		e.UpdatedAt = fromUnixNano(updatedAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ClearLedger borra todas las entradas.
func (s *SQLiteStorage) ClearLedger(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM mirror_ledger`); err != nil {
		return fmt.Errorf("storage.ClearLedger: %w", err)
	}
	return nil
}

// ─── Cursor ──────────────────────────────────────────────────────────────────

// SaveCursor reemplaza el cursor guardado.
func (s *SQLiteStorage) SaveCursor(ctx context.Context, c domain.Cursor) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO mirror_cursor (id, user_id, trade_id, trade_time, updated_at)
		VALUES (1, ?, ?, ?, ?)`,
		c.UserID, c.TradeID, unixNano(c.TradeTime), unixNano(c.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveCursor: %w", err)
	}
	return nil
}

// LoadCursor devuelve el cursor guardado o uno vacío.
func (s *SQLiteStorage) LoadCursor(ctx context.Context) (domain.Cursor, error) {
	var (
		c                    domain.Cursor
		tradeTime, updatedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, trade_id, trade_time, updated_at FROM mirror_cursor WHERE id = 1`,
	).Scan(&c.UserID, &c.TradeID, &tradeTime, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Cursor{}, nil
	}
	if err != nil {
		return domain.Cursor{}, fmt.Errorf("storage.LoadCursor: %w", err)
	}
	c.TradeTime = fromUnixNano(tradeTime)
	c.UpdatedAt = fromUnixNano(updatedAt)
	return c, nil
}

// ─── Epoch ───────────────────────────────────────────────────────────────────

// SaveEpoch guarda la época actual del ledger. Vive aparte de las entradas
// para que la poda no la haga retroceder.
func (s *SQLiteStorage) SaveEpoch(ctx context.Context, epoch int) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO mirror_epoch (id, epoch) VALUES (1, ?)`, epoch); err != nil {
		return fmt.Errorf("storage.SaveEpoch: %w", err)
	}
	return nil
}

// LoadEpoch devuelve la época guardada, 0 si no hay ninguna.
func (s *SQLiteStorage) LoadEpoch(ctx context.Context) (int, error) {
	var epoch int
	err := s.db.QueryRowContext(ctx, `SELECT epoch FROM mirror_epoch WHERE id = 1`).Scan(&epoch)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("storage.LoadEpoch: %w", err)
	}
	return epoch, nil
}
