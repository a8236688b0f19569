package engine_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alejandrodnm/alphaquant/internal/adapters/broker"
	"github.com/alejandrodnm/alphaquant/internal/adapters/storage"
	"github.com/alejandrodnm/alphaquant/internal/application/engine"
	"github.com/alejandrodnm/alphaquant/internal/domain"
	"github.com/alejandrodnm/alphaquant/internal/ports"
	"github.com/alejandrodnm/alphaquant/internal/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var clock = time.Date(2025, 4, 1, 15, 30, 0, 0, time.UTC)

type fakeStrategy struct {
	name   string
	trades []domain.TradeRecord
	err    error

	mu      sync.Mutex
	calls   int
	history int
}

func (f *fakeStrategy) Name() string { return f.name }

func (f *fakeStrategy) Evaluate(_ context.Context, _ ports.Broker, history []domain.TradeRecord, now time.Time) ([]domain.TradeRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.history = len(history)
	out := make([]domain.TradeRecord, len(f.trades))
	for i, t := range f.trades {
		t.Timestamp = now.Add(time.Duration(i) * time.Second)
		out[i] = t
	}
	return out, f.err
}

func newLog(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seed(t *testing.T, log ports.TradeLog, name string, pnls ...string) {
	t.Helper()
	for i, p := range pnls {
		_, err := log.Append(context.Background(), domain.TradeRecord{
			Timestamp: clock.Add(-time.Duration(len(pnls)-i) * time.Hour),
			Strategy:  name, Symbol: "AAPL", Action: domain.ActionBuy, Price: float64(100 + i), PnL: domain.Value(p),
		})
		require.NoError(t, err)
	}
}

func TestRun_Replay(t *testing.T) {
	log := newLog(t)
	seed(t, log, "aapl", "1", "-2", "3")

	s := &fakeStrategy{name: "aapl", trades: []domain.TradeRecord{{Action: domain.ActionBuy}}}
	e := engine.New(nil, log, s, &fakeStrategy{name: "spx"})

	got, err := e.Run(context.Background(), engine.RunConfig{})
	require.NoError(t, err)

	assert.Len(t, got["aapl"], 3)
	assert.Empty(t, got["spx"])
	assert.Contains(t, got, "spx")
	assert.Zero(t, s.calls, "replay never evaluates")
}

func TestRun_LiveAppendsAndDedupes(t *testing.T) {
	log := newLog(t)
	seed(t, log, "aapl", "1")

	s := &fakeStrategy{name: "aapl", trades: []domain.TradeRecord{
		{Symbol: "AAPL", Action: domain.ActionSell, Price: 99, PnL: "2.5"},
	}}
	var observed []int
	e := engine.New(broker.NewPaper(broker.StaticFeed{}), log, s).With(
		engine.WithClock(func() time.Time { return clock }),
		engine.WithObserver(func(_ string, appended int, err error) {
			assert.NoError(t, err)
			observed = append(observed, appended)
		}),
	)

	got, err := e.Run(context.Background(), engine.RunConfig{Live: true})
	require.NoError(t, err)
	require.Len(t, got["aapl"], 2)
	assert.Equal(t, "aapl", got["aapl"][1].Strategy)
	assert.Equal(t, domain.Value("2.5"), got["aapl"][1].PnL)
	assert.Equal(t, 1, s.history)

	// mismo reloj: mismo key, no se duplica
	got, err = e.Run(context.Background(), engine.RunConfig{Live: true})
	require.NoError(t, err)
	assert.Len(t, got["aapl"], 2)
	assert.Equal(t, []int{1, 0}, observed)
}

func TestRun_StrategyFailureIsNotFatal(t *testing.T) {
	log := newLog(t)
	boom := errors.New("gateway down")

	bad := &fakeStrategy{name: "bad", err: boom, trades: []domain.TradeRecord{{Action: domain.ActionBuy, Price: 1, PnL: "1"}}}
	good := &fakeStrategy{name: "good", trades: []domain.TradeRecord{{Action: domain.ActionBuy, Price: 2, PnL: "2"}}}

	errs := map[string]error{}
	var mu sync.Mutex
	e := engine.New(broker.NewPaper(broker.StaticFeed{}), log, bad, good).With(
		engine.WithWorkers(2),
		engine.WithObserver(func(name string, _ int, err error) {
			mu.Lock()
			errs[name] = err
			mu.Unlock()
		}),
	)

	got, err := e.Run(context.Background(), engine.RunConfig{Live: true})
	require.NoError(t, err)
	assert.Len(t, got["good"], 1)
	assert.Len(t, got["bad"], 1, "trades executed before the error are kept")
	assert.ErrorIs(t, errs["bad"], boom)
	assert.NoError(t, errs["good"])
}

func TestRun_Only(t *testing.T) {
	log := newLog(t)
	a := &fakeStrategy{name: "a"}
	b := &fakeStrategy{name: "b"}
	e := engine.New(broker.NewPaper(broker.StaticFeed{}), log, a, b)

	got, err := e.Run(context.Background(), engine.RunConfig{Live: true, Only: []string{"b"}})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Contains(t, got, "b")
	assert.Zero(t, a.calls)
	assert.Equal(t, 1, b.calls)

	_, err = e.Run(context.Background(), engine.RunConfig{Only: []string{"zzz"}})
	assert.ErrorIs(t, err, engine.ErrUnknownStrategy)

	assert.Equal(t, []string{"a", "b"}, e.Strategies())
}

func TestRun_LiveWithoutBroker(t *testing.T) {
	e := engine.New(nil, newLog(t), &fakeStrategy{name: "a"})
	_, err := e.Run(context.Background(), engine.RunConfig{Live: true})
	assert.ErrorIs(t, err, engine.ErrNoBroker)
}

func TestRun_ConcurrentLiveRunsPlaceOneOrder(t *testing.T) {
	log := newLog(t)
	feed := broker.StaticFeed{Series: map[string][]domain.Bar{
		"AAPL": {{Close: 10}, {Close: 10}, {Close: 13}},
	}}
	s, err := strategy.New(strategy.Definition{
		Name: "aapl", Kind: strategy.KindCrossover, Cooldown: time.Hour,
		Symbols: []strategy.SymbolWindow{{Symbol: "AAPL", Window: 3}},
	})
	require.NoError(t, err)

	paper := broker.NewPaper(feed)
	e := engine.New(paper, log, s).With(engine.WithClock(func() time.Time { return clock }))

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Run(context.Background(), engine.RunConfig{Live: true})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, paper.Fills(), 1, "later runs see the first trade and respect the cooldown")
	got, err := log.List(context.Background(), "aapl")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestRun_WithCrossover(t *testing.T) {
	log := newLog(t)
	feed := broker.StaticFeed{Series: map[string][]domain.Bar{
		"AAPL": {{Close: 10}, {Close: 10}, {Close: 13}},
	}}
	s, err := strategy.New(strategy.Definition{
		Name: "aapl", Kind: strategy.KindCrossover,
		Symbols: []strategy.SymbolWindow{{Symbol: "AAPL", Window: 3}},
	})
	require.NoError(t, err)

	e := engine.New(broker.NewPaper(feed), log, s).With(engine.WithClock(func() time.Time { return clock }))
	got, err := e.Run(context.Background(), engine.RunConfig{Live: true})
	require.NoError(t, err)
	require.Len(t, got["aapl"], 1)
	assert.Equal(t, domain.ActionBuy, got["aapl"][0].Action)
	assert.Equal(t, domain.Value("2"), got["aapl"][0].PnL)
}

func TestLoop_StopFile(t *testing.T) {
	stop := filepath.Join(t.TempDir(), "STOP")
	s := &fakeStrategy{name: "a"}
	e := engine.New(nil, newLog(t), s).With(engine.WithStopFile(stop))

	runs := 0
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := e.Loop(ctx, engine.RunConfig{}, 10*time.Millisecond, func(logs map[string][]domain.TradeRecord) {
		runs++
		if runs == 2 {
			require.NoError(t, os.WriteFile(stop, nil, 0o644))
		}
	})
	require.NoError(t, err)
	assert.Equal(t, 2, runs)
	assert.NoFileExists(t, stop)
	assert.NoError(t, ctx.Err(), "stopped by file, not timeout")
}

func TestLoop_ContextCancel(t *testing.T) {
	e := engine.New(nil, newLog(t), &fakeStrategy{name: "a"}).With(engine.WithStopFile(filepath.Join(t.TempDir(), "STOP")))

	ctx, cancel := context.WithCancel(context.Background())
	runs := 0
	err := e.Loop(ctx, engine.RunConfig{}, 10*time.Millisecond, func(map[string][]domain.TradeRecord) {
		runs++
		if runs == 1 {
			cancel()
		}
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, runs)
}
