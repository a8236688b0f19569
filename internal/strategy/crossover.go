package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/alejandrodnm/alphaquant/internal/domain"
	"github.com/alejandrodnm/alphaquant/internal/ports"
)

// Crossover opera el cruce del precio con su media móvil simple.
//
// En modo no posicional compra si el último close está por encima de la SMA
// y vende si está por debajo, en cada evaluación. En modo posicional la
// posición (NONE/LONG/SHORT) se infiere del historial y solo se opera al
// cruzar; la reversión puede duplicar la cantidad para pasar de largo a corto.
type Crossover struct {
	def Definition
}

// NewCrossover valida def y crea la estrategia.
func NewCrossover(def Definition) (*Crossover, error) {
	def = def.withDefaults()
	if err := def.validateCrossover(); err != nil {
		return nil, err
	}
	return &Crossover{def: def}, nil
}

// Name implementa Strategy.
func (c *Crossover) Name() string {
	return c.def.Name
}

// Evaluate implementa Strategy. Evalúa cada símbolo por separado; un símbolo
// sin datos suficientes se salta sin error.
func (c *Crossover) Evaluate(ctx context.Context, b ports.Broker, history []domain.TradeRecord, now time.Time) ([]domain.TradeRecord, error) {
	seen := append([]domain.TradeRecord(nil), history...)
	var out []domain.TradeRecord

	for _, sw := range c.def.Symbols {
		rec, ok, err := c.evaluateSymbol(ctx, b, seen, sw, now)
		if err != nil {
			return out, fmt.Errorf("%s: %w", c.def.Name, err)
		}
		if !ok {
			continue
		}
		seen = append(seen, rec)
		out = append(out, rec)
	}
	return out, nil
}

func (c *Crossover) evaluateSymbol(ctx context.Context, b ports.Broker, history []domain.TradeRecord, sw SymbolWindow, now time.Time) (domain.TradeRecord, bool, error) {
	log := slog.With("strategy", c.def.Name, "symbol", sw.Symbol)

	bars, err := b.Bars(ctx, sw.Symbol, c.def.BarSize, sw.Window*2)
	if err != nil {
		return domain.TradeRecord{}, false, err
	}
	closes := make([]float64, 0, len(bars))
	for _, bar := range bars {
		closes = append(closes, bar.Close)
	}
	closes = finiteCloses(closes)

	sma, ok := SMA(closes, sw.Window)
	if !ok {
		log.Debug("not enough bars for SMA", "bars", len(closes), "window", sw.Window)
		return domain.TradeRecord{}, false, nil
	}
	price := closes[len(closes)-1]

	last, hasLast := domain.LastTrade(history, sw.Symbol)
	if hasLast && c.def.Cooldown > 0 && now.Sub(last.Timestamp) < c.def.Cooldown {
		log.Debug("cooldown active", "since_last", now.Sub(last.Timestamp))
		return domain.TradeRecord{}, false, nil
	}

	action, qty := c.signal(domain.PositionAfter(history, sw.Symbol), price, sma)
	if action == "" {
		return domain.TradeRecord{}, false, nil
	}

	if hasLast {
		move := math.Abs(price - last.Price)
		if c.def.MinMove > 0 && move <= c.def.MinMove {
			log.Debug("price move too small", "move", move)
			return domain.TradeRecord{}, false, nil
		}
		if c.def.MinMovePct > 0 && last.Action == action && last.Price > 0 && move/last.Price < c.def.MinMovePct {
			log.Debug("duplicate action, price change too small", "action", action, "move", move)
			return domain.TradeRecord{}, false, nil
		}
	}

	ack, err := b.PlaceOrder(ctx, domain.OrderRequest{
		Symbol:    sw.Symbol,
		Action:    action,
		Quantity:  qty,
		OrderType: domain.OrderTypeMarket,
	})
	if err != nil {
		return domain.TradeRecord{}, false, err
	}

	var duration float64
	if hasLast && !last.Timestamp.IsZero() {
		duration = now.Sub(last.Timestamp).Seconds()
	}

	rec := domain.TradeRecord{
		Timestamp: now,
		Strategy:  c.def.Name,
		Symbol:    sw.Symbol,
		Action:    action,
		Price:     price,
		PnL:       domain.Num(c.pnl(action, price, sma, last, hasLast)),
		Duration:  domain.Num(duration),
		Extra: map[string]string{
			"sma":        strconv.FormatFloat(sma, 'f', 4, 64),
			"sma_window": strconv.Itoa(sw.Window),
			"quantity":   strconv.FormatFloat(qty, 'f', -1, 64),
			"order_id":   ack.OrderID,
			"status":     ack.Status,
		},
	}
	log.Info("trade", "action", action, "price", price, "sma", sma, "qty", qty, "pnl", rec.PnL)
	return rec, true, nil
}

// signal decide la acción para la posición actual. Precio igual a la SMA no
// es un cruce.
func (c *Crossover) signal(pos domain.Position, price, sma float64) (string, float64) {
	qty := c.def.Quantity
	if !c.def.Positional {
		pos = domain.PositionNone
	}
	reversal := qty
	if c.def.DoubleOnReversal {
		reversal = 2 * qty
	}

	switch pos {
	case domain.PositionLong:
		if price < sma {
			return domain.ActionSell, reversal
		}
	case domain.PositionShort:
		if price > sma {
			return domain.ActionBuy, reversal
		}
	default:
		if price > sma {
			return domain.ActionBuy, qty
		}
		if price < sma {
			return domain.ActionSell, qty
		}
	}
	return "", 0
}

func (c *Crossover) pnl(action string, price, sma float64, last domain.TradeRecord, hasLast bool) float64 {
	if c.def.PnLModel == PnLSMADistance {
		return round2(math.Abs(price - sma))
	}
	// round_trip: se realiza al cerrar la pata anterior
	if !hasLast || last.Action == action || last.Price <= 0 {
		return 0
	}
	if action == domain.ActionBuy {
		return round2(last.Price - price)
	}
	return round2(price - last.Price)
}
