package engine

// concurrent.go: worker pool para evaluar estrategias en paralelo.
//
// Cada estrategia hace varias llamadas al broker (una por símbolo); el rate
// limiter del client es compartido, así que el paralelismo solo solapa la
// latencia de red.

import (
	"context"
	"log/slog"
	"runtime"
	"sync"

	"github.com/alejandrodnm/alphaquant/internal/strategy"
)

// runConcurrent ejecuta fn para cada estrategia usando un worker pool y
// devuelve los resultados en el mismo orden que strategies.
//
// Si workers <= 0 usa runtime.NumCPU().
func runConcurrent(
	ctx context.Context,
	strategies []strategy.Strategy,
	workers int,
	fn func(context.Context, strategy.Strategy) result,
) []result {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(strategies) {
		workers = len(strategies)
	}

	type work struct {
		idx int
		s   strategy.Strategy
	}

	workCh := make(chan work, len(strategies))
	results := make([]result, len(strategies))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for w := range workCh {
				results[w.idx] = fn(ctx, w.s)
			}
		}()
	}

	for i, s := range strategies {
		workCh <- work{idx: i, s: s}
	}
	close(workCh)
	wg.Wait()

	slog.Debug("concurrent run complete", "strategies", len(strategies), "workers", workers)
	return results
}
