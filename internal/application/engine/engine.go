package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/alejandrodnm/alphaquant/internal/domain"
	"github.com/alejandrodnm/alphaquant/internal/ports"
	"github.com/alejandrodnm/alphaquant/internal/strategy"
)

// DefaultStopFile es el archivo cuya aparición detiene Loop.
const DefaultStopFile = "STOP"

// ErrUnknownStrategy is returned when RunConfig.Only names a strategy the
// engine does not have.
var ErrUnknownStrategy = errors.New("unknown strategy")

// ErrNoBroker is returned by a live Run on an engine built without a broker.
var ErrNoBroker = errors.New("live run without broker")

// RunConfig controla una ejecución. Live=false es modo replay: solo se leen
// los logs existentes, sin tocar el broker.
type RunConfig struct {
	Live bool
	Only []string // nombres de estrategia; vacío = todas
}

// Observer recibe el resultado de cada estrategia en cada ejecución.
type Observer func(strategy string, appended int, err error)

// Engine ejecuta estrategias contra un broker y persiste sus trades.
type Engine struct {
	broker     ports.Broker
	log        ports.TradeLog
	strategies []strategy.Strategy

	now      func() time.Time
	workers  int
	stopFile string
	observer Observer

	// una evaluación live a la vez por estrategia: el historial leído debe
	// incluir lo que añadió la anterior
	locks map[string]*sync.Mutex
}

// Option configura un Engine.
type Option func(*Engine)

// WithClock fija el reloj usado como timestamp de los trades.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithWorkers limita cuántas estrategias se evalúan en paralelo.
func WithWorkers(n int) Option {
	return func(e *Engine) { e.workers = n }
}

// WithStopFile cambia el archivo de parada de Loop.
func WithStopFile(path string) Option {
	return func(e *Engine) { e.stopFile = path }
}

// WithObserver registra un Observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// New crea un Engine con las dependencias inyectadas.
func New(b ports.Broker, log ports.TradeLog, strategies ...strategy.Strategy) *Engine {
	locks := make(map[string]*sync.Mutex, len(strategies))
	for _, s := range strategies {
		locks[s.Name()] = &sync.Mutex{}
	}
	return &Engine{
		broker:     b,
		log:        log,
		strategies: strategies,
		now:        time.Now,
		stopFile:   DefaultStopFile,
		locks:      locks,
	}
}

// With aplica opciones y devuelve el mismo Engine.
func (e *Engine) With(opts ...Option) *Engine {
	for _, o := range opts {
		o(e)
	}
	return e
}

// Strategies devuelve los nombres de las estrategias configuradas.
func (e *Engine) Strategies() []string {
	names := make([]string, len(e.strategies))
	for i, s := range e.strategies {
		names[i] = s.Name()
	}
	return names
}

// Run ejecuta una pasada sobre las estrategias seleccionadas y devuelve el
// log completo de cada una. Un fallo de una estrategia se registra y no
// afecta al resto; su log se devuelve igualmente.
func (e *Engine) Run(ctx context.Context, cfg RunConfig) (map[string][]domain.TradeRecord, error) {
	selected, err := e.selectStrategies(cfg.Only)
	if err != nil {
		return nil, err
	}
	if cfg.Live && e.broker == nil {
		return nil, fmt.Errorf("engine.Run: %w", ErrNoBroker)
	}

	start := time.Now()
	results := runConcurrent(ctx, selected, e.workers, func(ctx context.Context, s strategy.Strategy) result {
		return e.runStrategy(ctx, s, cfg.Live)
	})

	out := make(map[string][]domain.TradeRecord, len(results))
	appended := 0
	for _, r := range results {
		if r.fatal != nil {
			return nil, r.fatal
		}
		out[r.name] = r.trades
		appended += r.appended
	}

	slog.Info("run complete",
		"strategies", len(selected),
		"live", cfg.Live,
		"appended", appended,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return out, nil
}

type result struct {
	name     string
	trades   []domain.TradeRecord
	appended int
	fatal    error // storage failures abort the run
}

func (e *Engine) runStrategy(ctx context.Context, s strategy.Strategy, live bool) result {
	name := s.Name()
	res := result{name: name}

	if live {
		mu := e.locks[name]
		mu.Lock()
		defer mu.Unlock()
	}

	history, err := e.log.List(ctx, name)
	if err != nil {
		res.fatal = fmt.Errorf("engine.Run: %s: %w", name, err)
		return res
	}

	if live {
		fresh, evalErr := s.Evaluate(ctx, e.broker, history, e.now().UTC())
		if evalErr != nil {
			slog.Error("strategy failed", "strategy", name, "err", evalErr)
		}
		// lo que se ejecutó antes del error también se registra
		for _, rec := range fresh {
			rec.Strategy = name
			ok, err := e.log.Append(ctx, rec)
			if err != nil {
				res.fatal = fmt.Errorf("engine.Run: %s: %w", name, err)
				return res
			}
			if ok {
				res.appended++
			}
		}
		if e.observer != nil {
			e.observer(name, res.appended, evalErr)
		}
		if res.appended > 0 {
			if history, err = e.log.List(ctx, name); err != nil {
				res.fatal = fmt.Errorf("engine.Run: %s: %w", name, err)
				return res
			}
		}
	}

	res.trades = history
	return res
}

func (e *Engine) selectStrategies(only []string) ([]strategy.Strategy, error) {
	if len(only) == 0 {
		return e.strategies, nil
	}
	var out []strategy.Strategy
	for _, name := range only {
		i := slices.IndexFunc(e.strategies, func(s strategy.Strategy) bool { return s.Name() == name })
		if i < 0 {
			return nil, fmt.Errorf("engine.Run: %w %q", ErrUnknownStrategy, name)
		}
		out = append(out, e.strategies[i])
	}
	return out, nil
}

// Loop ejecuta Run cada interval hasta que el contexto se cancele o aparezca
// el archivo de parada. La primera pasada es inmediata.
func (e *Engine) Loop(ctx context.Context, cfg RunConfig, interval time.Duration, onRun func(map[string][]domain.TradeRecord)) error {
	slog.Info("loop started — press Ctrl+C or create "+e.stopFile+" file to exit",
		"interval", interval,
		"live", cfg.Live,
	)

	cycle := 0
	runCycle := func() error {
		cycle++
		logs, err := e.Run(ctx, cfg)
		if err != nil {
			return err
		}
		if onRun != nil {
			onRun(logs)
		}
		return nil
	}

	if err := runCycle(); err != nil {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("loop stopped (signal)", "total_cycles", cycle)
			return nil
		case <-ticker.C:
			if _, err := os.Stat(e.stopFile); err == nil {
				slog.Info(e.stopFile+" file detected — shutting down", "total_cycles", cycle)
				os.Remove(e.stopFile)
				return nil
			}
			if err := runCycle(); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				slog.Error("run cycle failed", "err", err)
			}
		}
	}
}
