package strategy_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alejandrodnm/alphaquant/internal/adapters/broker"
	"github.com/alejandrodnm/alphaquant/internal/domain"
	"github.com/alejandrodnm/alphaquant/internal/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 4, 1, 15, 0, 0, 0, time.UTC)

func barsOf(closes ...float64) []domain.Bar {
	out := make([]domain.Bar, len(closes))
	for i, c := range closes {
		out[i] = domain.Bar{Time: now.AddDate(0, 0, i-len(closes)), Close: c}
	}
	return out
}

func paper(series map[string][]domain.Bar) *broker.Paper {
	return broker.NewPaper(broker.StaticFeed{Series: series})
}

func crossover(t *testing.T, def strategy.Definition) strategy.Strategy {
	t.Helper()
	def.Kind = strategy.KindCrossover
	s, err := strategy.New(def)
	require.NoError(t, err)
	return s
}

func trade(action string, price float64, at time.Time) domain.TradeRecord {
	return domain.TradeRecord{Timestamp: at, Symbol: "AAPL", Action: action, Price: price, PnL: "0"}
}

func TestSMA(t *testing.T) {
	v, ok := strategy.SMA([]float64{1, 2, 3, 4, 5}, 2)
	require.True(t, ok)
	assert.InDelta(t, 4.5, v, 1e-12)

	_, ok = strategy.SMA([]float64{1, 2}, 3)
	assert.False(t, ok)

	_, ok = strategy.SMA(nil, 0)
	assert.False(t, ok)
}

func TestCrossover_SMADistance(t *testing.T) {
	b := paper(map[string][]domain.Bar{"AAPL": barsOf(1, 2, 3, 4, 5, 6, 7, 8, 9, 10)})
	s := crossover(t, strategy.Definition{
		Name:    "aapl",
		Symbols: []strategy.SymbolWindow{{Symbol: "AAPL", Window: 5}},
	})

	got, err := s.Evaluate(context.Background(), b, nil, now)
	require.NoError(t, err)
	require.Len(t, got, 1)

	rec := got[0]
	assert.Equal(t, "aapl", rec.Strategy)
	assert.Equal(t, domain.ActionBuy, rec.Action)
	assert.InDelta(t, 10.0, rec.Price, 1e-9)
	assert.Equal(t, domain.Value("2"), rec.PnL)
	assert.Equal(t, domain.Value("0"), rec.Duration)
	assert.Equal(t, "8.0000", rec.Extra["sma"])
	assert.Equal(t, "5", rec.Extra["sma_window"])
	assert.Equal(t, broker.StatusFilled, rec.Extra["status"])
	assert.Equal(t, now, rec.Timestamp)

	fills := b.Fills()
	require.Len(t, fills, 1)
	assert.Equal(t, domain.ActionBuy, fills[0].Stock.Action)
	assert.InDelta(t, 1.0, fills[0].Stock.Quantity, 1e-9)
}

func TestCrossover_SellBelowSMA(t *testing.T) {
	b := paper(map[string][]domain.Bar{"AAPL": barsOf(10, 10, 10, 7)})
	s := crossover(t, strategy.Definition{
		Name:    "aapl",
		Symbols: []strategy.SymbolWindow{{Symbol: "AAPL", Window: 4}},
	})

	got, err := s.Evaluate(context.Background(), b, nil, now)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.ActionSell, got[0].Action)
	assert.Equal(t, domain.Value("2.25"), got[0].PnL)
}

func TestCrossover_NotEnoughBars(t *testing.T) {
	b := paper(map[string][]domain.Bar{"AAPL": barsOf(1, 2, 3)})
	s := crossover(t, strategy.Definition{
		Name:    "aapl",
		Symbols: []strategy.SymbolWindow{{Symbol: "AAPL", Window: 180}},
	})

	got, err := s.Evaluate(context.Background(), b, nil, now)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, b.Fills())
}

func TestCrossover_PriceOnSMA(t *testing.T) {
	b := paper(map[string][]domain.Bar{"AAPL": barsOf(5, 5, 5)})
	s := crossover(t, strategy.Definition{
		Name:    "flat",
		Symbols: []strategy.SymbolWindow{{Symbol: "AAPL", Window: 3}},
	})

	got, err := s.Evaluate(context.Background(), b, nil, now)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCrossover_PositionalRoundTrip(t *testing.T) {
	def := strategy.Definition{
		Name:             "tsla_5min",
		Symbols:          []strategy.SymbolWindow{{Symbol: "AAPL", Window: 3}},
		BarSize:          "5 mins",
		Positional:       true,
		DoubleOnReversal: true,
		PnLModel:         strategy.PnLRoundTrip,
		Cooldown:         5 * time.Minute,
		MinMove:          0.1,
	}
	opened := now.Add(-10 * time.Minute)

	tests := []struct {
		name    string
		closes  []float64
		history []domain.TradeRecord
		action  string
		qty     float64
		pnl     domain.Value
	}{
		{
			name:   "flat opens long",
			closes: []float64{100, 100, 103},
			action: domain.ActionBuy, qty: 1, pnl: "0",
		},
		{
			name:    "long reverses to short",
			closes:  []float64{110, 110, 95},
			history: []domain.TradeRecord{trade(domain.ActionBuy, 100, opened)},
			action:  domain.ActionSell, qty: 2, pnl: "-5",
		},
		{
			name:    "short reverses to long",
			closes:  []float64{90, 90, 97.5},
			history: []domain.TradeRecord{trade(domain.ActionSell, 100, opened)},
			action:  domain.ActionBuy, qty: 2, pnl: "2.5",
		},
		{
			name:    "long stays long above SMA",
			closes:  []float64{100, 100, 120},
			history: []domain.TradeRecord{trade(domain.ActionBuy, 100, opened)},
		},
		{
			name:    "cooldown active",
			closes:  []float64{110, 110, 95},
			history: []domain.TradeRecord{trade(domain.ActionBuy, 100, now.Add(-time.Minute))},
		},
		{
			name:    "move below minimum",
			closes:  []float64{110, 110, 100.05},
			history: []domain.TradeRecord{trade(domain.ActionBuy, 100, opened)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := paper(map[string][]domain.Bar{"AAPL": barsOf(tt.closes...)})
			got, err := crossover(t, def).Evaluate(context.Background(), b, tt.history, now)
			require.NoError(t, err)

			if tt.action == "" {
				assert.Empty(t, got)
				assert.Empty(t, b.Fills())
				return
			}
			require.Len(t, got, 1)
			assert.Equal(t, tt.action, got[0].Action)
			assert.Equal(t, tt.pnl, got[0].PnL)
			require.Len(t, b.Fills(), 1)
			assert.InDelta(t, tt.qty, b.Fills()[0].Stock.Quantity, 1e-9)
			if len(tt.history) > 0 {
				assert.Equal(t, domain.Value("600"), got[0].Duration)
			}
		})
	}
}

func TestCrossover_RelativeMinMove(t *testing.T) {
	def := strategy.Definition{
		Name:       "sma200",
		Symbols:    []strategy.SymbolWindow{{Symbol: "AAPL", Window: 2}},
		MinMovePct: 0.005,
	}
	closes := barsOf(9, 10)

	// misma acción y precio casi igual: se salta
	b := paper(map[string][]domain.Bar{"AAPL": closes})
	got, err := crossover(t, def).Evaluate(context.Background(), b, []domain.TradeRecord{trade(domain.ActionBuy, 10.01, now.Add(-time.Hour))}, now)
	require.NoError(t, err)
	assert.Empty(t, got)

	// acción distinta: opera aunque el precio apenas se mueva
	b = paper(map[string][]domain.Bar{"AAPL": closes})
	got, err = crossover(t, def).Evaluate(context.Background(), b, []domain.TradeRecord{trade(domain.ActionSell, 10.01, now.Add(-time.Hour))}, now)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.ActionBuy, got[0].Action)
}

func TestCrossover_MultipleSymbols(t *testing.T) {
	b := paper(map[string][]domain.Bar{
		"MSFT": barsOf(1, 1, 1, 5),
		"NVDA": barsOf(9, 9, 3),
		"META": barsOf(1),
	})
	s := crossover(t, strategy.Definition{
		Name: "mag7",
		Symbols: []strategy.SymbolWindow{
			{Symbol: "MSFT", Window: 4},
			{Symbol: "NVDA", Window: 3},
			{Symbol: "META", Window: 2},
		},
	})

	got, err := s.Evaluate(context.Background(), b, nil, now)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "MSFT", got[0].Symbol)
	assert.Equal(t, domain.ActionBuy, got[0].Action)
	assert.Equal(t, "NVDA", got[1].Symbol)
	assert.Equal(t, domain.ActionSell, got[1].Action)
}

type rejectingBroker struct {
	*broker.Paper
}

var errRejected = errors.New("order rejected")

func (rejectingBroker) PlaceOrder(context.Context, domain.OrderRequest) (domain.OrderAck, error) {
	return domain.OrderAck{}, errRejected
}

func (rejectingBroker) PlaceSpread(context.Context, domain.SpreadOrder) (domain.OrderAck, error) {
	return domain.OrderAck{}, errRejected
}

func TestCrossover_OrderError(t *testing.T) {
	b := rejectingBroker{paper(map[string][]domain.Bar{"AAPL": barsOf(1, 2)})}
	s := crossover(t, strategy.Definition{
		Name:    "aapl",
		Symbols: []strategy.SymbolWindow{{Symbol: "AAPL", Window: 2}},
	})

	got, err := s.Evaluate(context.Background(), b, nil, now)
	assert.ErrorIs(t, err, errRejected)
	assert.Empty(t, got)
}

func TestCrossover_FeedError(t *testing.T) {
	s := crossover(t, strategy.Definition{
		Name:    "aapl",
		Symbols: []strategy.SymbolWindow{{Symbol: "AAPL", Window: 2}},
	})

	_, err := s.Evaluate(context.Background(), paper(nil), nil, now)
	assert.ErrorIs(t, err, broker.ErrNoMarketData)
}

func TestRegistry(t *testing.T) {
	_, err := strategy.New(strategy.Definition{Name: "x", Kind: "martingale"})
	assert.ErrorIs(t, err, strategy.ErrUnknownKind)

	_, err = strategy.New(strategy.Definition{Name: "x", Kind: strategy.KindCrossover})
	assert.ErrorIs(t, err, strategy.ErrInvalidDefinition)

	_, err = strategy.New(strategy.Definition{
		Name: "x", Kind: strategy.KindCrossover, PnLModel: "vibes",
		Symbols: []strategy.SymbolWindow{{Symbol: "AAPL", Window: 3}},
	})
	assert.ErrorIs(t, err, strategy.ErrInvalidDefinition)

	s, err := strategy.New(strategy.Definition{Kind: strategy.KindBullPut})
	require.NoError(t, err)
	assert.Equal(t, strategy.KindBullPut, s.Name(), "name defaults to kind")

	defs := []strategy.Definition{
		{Name: "aapl", Kind: strategy.KindCrossover, Symbols: []strategy.SymbolWindow{{Symbol: "AAPL", Window: 180}}},
		{Name: "spx", Kind: strategy.KindBullPut},
	}
	built, err := strategy.Build(defs)
	require.NoError(t, err)
	require.Len(t, built, 2)
	assert.Equal(t, "spx", built[1].Name())

	_, err = strategy.Build(append(defs, strategy.Definition{Name: "aapl", Kind: strategy.KindBullPut}))
	assert.Error(t, err)
}

func TestRegistry_Custom(t *testing.T) {
	r := strategy.NewRegistry()
	r.Register("noop", func(def strategy.Definition) (strategy.Strategy, error) {
		return strategy.NewBullPut(def)
	})

	_, ok := r.Get("noop")
	assert.True(t, ok)
	s, err := r.New(strategy.Definition{Name: "n", Kind: "noop"})
	require.NoError(t, err)
	assert.Equal(t, "n", s.Name())
}
