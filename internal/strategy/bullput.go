package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/alejandrodnm/alphaquant/internal/domain"
	"github.com/alejandrodnm/alphaquant/internal/ports"
	"github.com/shopspring/decimal"
)

// BullPut vende un put spread 0DTE sobre el índice.
//
// El strike vendido es el más alto por debajo de open × (1 − OTM%) dentro de
// la banda; el comprado está Width puntos por debajo y debe cotizar. Solo se
// opera el vencimiento del mismo día.
type BullPut struct {
	def Definition
}

// NewBullPut crea la estrategia con los defaults del SPX.
func NewBullPut(def Definition) (*BullPut, error) {
	def = def.withDefaults()
	if def.Width >= def.StrikeBand*2 {
		return nil, fmt.Errorf("%w: %s: width %.2f outside strike band", ErrInvalidDefinition, def.Name, def.Width)
	}
	return &BullPut{def: def}, nil
}

// Name implementa Strategy.
func (s *BullPut) Name() string {
	return s.def.Name
}

// Evaluate implementa Strategy.
func (s *BullPut) Evaluate(ctx context.Context, b ports.Broker, _ []domain.TradeRecord, now time.Time) ([]domain.TradeRecord, error) {
	log := slog.With("strategy", s.def.Name, "symbol", s.def.Symbol)

	q, err := b.Quote(ctx, s.def.Symbol)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.def.Name, err)
	}
	open := q.OpenOrFallback(s.def.DefaultOpen)
	target := decimal.NewFromFloat(open).Mul(decimal.NewFromInt(1).Sub(decimal.NewFromFloat(s.def.OTMPct))).InexactFloat64()

	expiry := now.Format("20060102")
	listed, err := b.OptionStrikes(ctx, s.def.Symbol, expiry)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.def.Name, err)
	}
	if len(listed) == 0 {
		log.Info("no same-day expiry", "expiry", expiry)
		return nil, nil
	}

	sell, buy, ok := pickStrikes(listed, target, s.def.StrikeBand, s.def.Width)
	if !ok {
		log.Info("no valid strikes", "target", target, "listed", len(listed))
		return nil, nil
	}

	ack, err := b.PlaceSpread(ctx, domain.SpreadOrder{
		Symbol:     s.def.Symbol,
		Exchange:   s.def.Exchange,
		Expiry:     expiry,
		SellStrike: sell,
		BuyStrike:  buy,
		Right:      "P",
		Quantity:   s.def.Quantity,
		Credit:     s.def.Credit,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.def.Name, err)
	}

	log.Info("spread placed", "sell_strike", sell, "buy_strike", buy, "credit", s.def.Credit, "status", ack.Status)
	return []domain.TradeRecord{{
		Timestamp: now,
		Strategy:  s.def.Name,
		Symbol:    s.def.Symbol,
		Action:    domain.ActionSellPutSpread,
		Price:     ack.FilledPrice,
		PnL:       domain.Num(0),
		Extra: map[string]string{
			"sell_strike": fmtStrike(sell),
			"buy_strike":  fmtStrike(buy),
			"credit":      strconv.FormatFloat(s.def.Credit, 'f', 2, 64),
			"expiry":      expiry,
			"status":      ack.Status,
			"order_id":    ack.OrderID,
		},
	}}, nil
}

// pickStrikes elige el par (vendido, comprado) dentro de target ± band.
func pickStrikes(listed []float64, target, band, width float64) (sell, buy float64, ok bool) {
	var strikes []float64
	for _, k := range listed {
		if k >= target-band && k <= target+band {
			strikes = append(strikes, k)
		}
	}
	if len(strikes) == 0 {
		return 0, 0, false
	}
	sort.Float64s(strikes)

	sell = strikes[0]
	for _, k := range strikes {
		if k <= target {
			sell = k
		}
	}
	buy = sell - width
	for _, k := range strikes {
		if math.Abs(k-buy) < 1e-9 {
			return sell, k, true
		}
	}
	return 0, 0, false
}

func fmtStrike(k float64) string {
	return strconv.FormatFloat(k, 'f', -1, 64)
}
