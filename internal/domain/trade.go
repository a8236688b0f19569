package domain

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Trade actions written to the log.
const (
	ActionBuy           = "BUY"
	ActionSell          = "SELL"
	ActionSellPutSpread = "SELL PUT SPREAD"
)

// Value es una celda numérica tal como aparece en el trade log.
// El valor vacío representa null. Cualquier texto que no sea un número
// decimal finito se considera no numérico.
type Value string

// Num formats f as a log cell.
func Num(f float64) Value {
	return Value(strconv.FormatFloat(f, 'f', -1, 64))
}

// IsNull reports whether the cell is empty.
func (v Value) IsNull() bool {
	return strings.TrimSpace(string(v)) == ""
}

// maxExponent acota el exponente decimal de una celda: más allá la suma
// exacta tendría que expandir 10^exp.
const maxExponent = 400

// Decimal parses the cell. ok is false for null, NaN, infinities, values
// outside the float64 range and any text that is not a number. A finite
// value whose decimal exponent exceeds ±maxExponent is kept at float64
// precision.
func (v Value) Decimal() (d decimal.Decimal, ok bool) {
	s := strings.TrimSpace(string(v))
	if s == "" {
		return decimal.Zero, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return decimal.Zero, false
	}
	d, err = decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	if e := d.Exponent(); e > maxExponent || e < -maxExponent {
		return decimal.NewFromFloat(f), true
	}
	return d, true
}

// Float is Decimal converted to float64.
func (v Value) Float() (float64, bool) {
	d, ok := v.Decimal()
	if !ok {
		return 0, false
	}
	return d.InexactFloat64(), true
}

// TradeRecord is one closed trade as logged by a strategy.
type TradeRecord struct {
	Timestamp time.Time
	Strategy  string
	Symbol    string
	Action    string // BUY | SELL | SELL PUT SPREAD
	Price     float64
	PnL       Value
	Duration  Value // seconds the position was open, optional

	// Extra holds pass-through columns (sma, strikes, credit, status...).
	Extra map[string]string
}

// Key is the idempotency key of the record inside its strategy log:
// the (timestamp, action, price) tuple.
func (t TradeRecord) Key() string {
	return t.Timestamp.UTC().Format(time.RFC3339Nano) + "|" +
		t.Action + "|" + strconv.FormatFloat(t.Price, 'f', -1, 64)
}

// Position is the net exposure a strategy holds on a symbol.
type Position string

const (
	PositionNone  Position = "NONE"
	PositionLong  Position = "LONG"
	PositionShort Position = "SHORT"
)

// PositionAfter returns the position implied by the last BUY/SELL for symbol
// in history. Spread entries are ignored.
func PositionAfter(history []TradeRecord, symbol string) Position {
	for i := len(history) - 1; i >= 0; i-- {
		t := history[i]
		if t.Symbol != "" && symbol != "" && t.Symbol != symbol {
			continue
		}
		switch t.Action {
		case ActionBuy:
			return PositionLong
		case ActionSell:
			return PositionShort
		}
	}
	return PositionNone
}

// LastTrade returns the most recent BUY/SELL for symbol, if any.
func LastTrade(history []TradeRecord, symbol string) (TradeRecord, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		t := history[i]
		if t.Symbol != "" && symbol != "" && t.Symbol != symbol {
			continue
		}
		if t.Action == ActionBuy || t.Action == ActionSell {
			return t, true
		}
	}
	return TradeRecord{}, false
}
