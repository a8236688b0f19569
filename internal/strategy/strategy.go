package strategy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alejandrodnm/alphaquant/internal/domain"
	"github.com/alejandrodnm/alphaquant/internal/ports"
)

// Strategy define el contrato de una estrategia de trading.
// Cada estrategia decide, a partir del mercado y de su propio historial,
// si ejecuta órdenes y qué trades escribe en su log.
type Strategy interface {
	// Name devuelve el identificador único de la estrategia (nombre del log).
	Name() string

	// Evaluate consulta el broker, envía las órdenes necesarias y devuelve los
	// trades nuevos a registrar. Devolver nada sin error es válido: significa
	// que no se cumplen las condiciones para operar.
	Evaluate(ctx context.Context, broker ports.Broker, history []domain.TradeRecord, now time.Time) ([]domain.TradeRecord, error)
}

// ErrUnknownKind is returned by New for a kind nobody registered.
var ErrUnknownKind = errors.New("unknown strategy kind")

// Factory builds a Strategy from its definition.
type Factory func(def Definition) (Strategy, error)

// Registry mantiene las factories disponibles indexadas por kind.
type Registry map[string]Factory

// NewRegistry crea un registry con las estrategias incluidas.
func NewRegistry() Registry {
	r := make(Registry)
	r.Register(KindCrossover, func(def Definition) (Strategy, error) { return NewCrossover(def) })
	r.Register(KindBullPut, func(def Definition) (Strategy, error) { return NewBullPut(def) })
	return r
}

// Register añade una factory al registry.
func (r Registry) Register(kind string, f Factory) {
	r[kind] = f
}

// Get devuelve la factory por kind.
func (r Registry) Get(kind string) (Factory, bool) {
	f, ok := r[kind]
	return f, ok
}

// New construye la estrategia descrita por def.
func (r Registry) New(def Definition) (Strategy, error) {
	f, ok := r.Get(def.Kind)
	if !ok {
		return nil, fmt.Errorf("strategy.New %q: %w %q", def.Name, ErrUnknownKind, def.Kind)
	}
	return f(def)
}

// Build construye todas las definiciones. Los nombres deben ser únicos porque
// cada uno identifica un log.
func (r Registry) Build(defs []Definition) ([]Strategy, error) {
	seen := make(map[string]bool, len(defs))
	out := make([]Strategy, 0, len(defs))
	for _, def := range defs {
		s, err := r.New(def)
		if err != nil {
			return nil, err
		}
		if seen[s.Name()] {
			return nil, fmt.Errorf("strategy.Build: duplicate name %q", s.Name())
		}
		seen[s.Name()] = true
		out = append(out, s)
	}
	return out, nil
}

var defaultRegistry = NewRegistry()

// New construye def con las estrategias incluidas.
func New(def Definition) (Strategy, error) {
	return defaultRegistry.New(def)
}

// Build construye defs con las estrategias incluidas.
func Build(defs []Definition) ([]Strategy, error) {
	return defaultRegistry.Build(defs)
}
