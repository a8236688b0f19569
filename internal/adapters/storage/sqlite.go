package storage

// sqlite.go: trade log append-only.
//
// Estrategia:
//   - `trades`: una fila por trade cerrado. Nunca se actualiza ni se borra.
//   - Idempotencia: UNIQUE(strategy, idem_key) con idem_key = (timestamp, action, price).
//     Reescribir el mismo trade (reimport de CSV, reintento tras un crash) es un no-op.
//   - pnl y duration se guardan como TEXT tal cual llegan: una celda corrupta
//     sobrevive al round-trip y es el motor de métricas quien la descarta.

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/alejandrodnm/alphaquant/internal/domain"
	"github.com/alejandrodnm/alphaquant/internal/ports"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS trades (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    strategy  TEXT    NOT NULL,
    idem_key  TEXT    NOT NULL,
    ts        TEXT    NOT NULL,
    symbol    TEXT    NOT NULL DEFAULT '',
    action    TEXT    NOT NULL DEFAULT '',
    price     REAL    NOT NULL DEFAULT 0,
    pnl       TEXT    NOT NULL DEFAULT '',
    duration  TEXT    NOT NULL DEFAULT '',
    extra     TEXT    NOT NULL DEFAULT '{}',
    logged_at TEXT    NOT NULL,
    UNIQUE(strategy, idem_key)
);

CREATE INDEX IF NOT EXISTS idx_trades_strategy ON trades(strategy, id);
`

// SQLiteStorage implementa ports.TradeLog usando SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db *sql.DB
	mu sync.Mutex
}

var _ ports.TradeLog = (*SQLiteStorage)(nil)

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada y aplica el schema.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}
	return &SQLiteStorage{db: db}, nil
}

// Append inserta el trade si su idempotency key no existe ya para la estrategia.
func (s *SQLiteStorage) Append(ctx context.Context, rec domain.TradeRecord) (bool, error) {
	if rec.Strategy == "" {
		return false, fmt.Errorf("storage.Append: %w", ErrNoStrategy)
	}

	extra := "{}"
	if len(rec.Extra) > 0 {
		b, err := json.Marshal(rec.Extra)
		if err != nil {
			return false, fmt.Errorf("storage.Append: encode extra: %w", err)
		}
		extra = string(b)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO trades (strategy, idem_key, ts, symbol, action, price, pnl, duration, extra, logged_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(strategy, idem_key) DO NOTHING`,
		rec.Strategy, rec.Key(), formatTime(rec.Timestamp), rec.Symbol, rec.Action,
		rec.Price, string(rec.PnL), string(rec.Duration), extra,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return false, fmt.Errorf("storage.Append: insert %s: %w", rec.Strategy, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("storage.Append: rows affected: %w", err)
	}
	return n == 1, nil
}

// List devuelve los trades de la estrategia en orden de inserción.
func (s *SQLiteStorage) List(ctx context.Context, strategy string) ([]domain.TradeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT strategy, ts, symbol, action, price, pnl, duration, extra
		FROM trades WHERE strategy = ?
		ORDER BY id ASC`, strategy)
	if err != nil {
		return nil, fmt.Errorf("storage.List: query: %w", err)
	}
	defer rows.Close()

	var out []domain.TradeRecord
	for rows.Next() {
		var rec domain.TradeRecord
		var ts, pnl, duration, extra string
		if err := rows.Scan(&rec.Strategy, &ts, &rec.Symbol, &rec.Action, &rec.Price, &pnl, &duration, &extra); err != nil {
			return nil, fmt.Errorf("storage.List: scan row: %w", err)
		}
		rec.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		rec.PnL = domain.Value(pnl)
		rec.Duration = domain.Value(duration)
		if extra != "" && extra != "{}" {
			if err := json.Unmarshal([]byte(extra), &rec.Extra); err != nil {
				return nil, fmt.Errorf("storage.List: decode extra: %w", err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Strategies devuelve los nombres de estrategia con al menos un trade.
func (s *SQLiteStorage) Strategies(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT strategy FROM trades ORDER BY strategy`)
	if err != nil {
		return nil, fmt.Errorf("storage.Strategies: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("storage.Strategies: scan: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// formatTime guarda siempre UTC; el zero time se conserva como tal.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
