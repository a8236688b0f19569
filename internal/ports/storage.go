package ports

import (
	"context"

	"github.com/alejandrodnm/alphaquant/internal/domain"
)

// TradeLog es el log append-only de trades cerrados, uno por estrategia.
type TradeLog interface {
	// Append inserts rec unless a record with the same strategy and Key()
	// already exists. It reports whether the record was new. Existing rows
	// are never updated.
	Append(ctx context.Context, rec domain.TradeRecord) (bool, error)

	// List devuelve el log de la estrategia en orden de inserción.
	List(ctx context.Context, strategy string) ([]domain.TradeRecord, error)

	// Strategies returns the distinct strategy names that have a log, sorted.
	Strategies(ctx context.Context) ([]string, error)

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}
