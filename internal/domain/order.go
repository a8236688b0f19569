package domain

import "time"

// Order types accepted by the broker.
const (
	OrderTypeMarket = "MKT"
	OrderTypeLimit  = "LMT"
)

// Bar is one OHLCV candle.
type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Quote is the current market snapshot for a symbol.
type Quote struct {
	Symbol string
	Last   float64
	Open   float64
	Close  float64
	Bid    float64
	Ask    float64
}

// OpenOrFallback returns the session open, falling back to last, then close,
// then def when the feed has no value.
func (q Quote) OpenOrFallback(def float64) float64 {
	for _, v := range []float64{q.Open, q.Last, q.Close} {
		if v > 0 {
			return v
		}
	}
	return def
}

// OrderRequest is a single-leg stock order.
type OrderRequest struct {
	Symbol     string
	Action     string // BUY | SELL
	Quantity   float64
	OrderType  string // MKT | LMT
	LimitPrice float64
}

// SpreadOrder is a two-leg vertical put spread: sell the upper strike, buy
// the lower one, for a limit credit.
type SpreadOrder struct {
	Symbol     string
	Exchange   string
	Expiry     string // YYYYMMDD
	SellStrike float64
	BuyStrike  float64
	Right      string // "P"
	Quantity   float64
	Credit     float64
}

// OrderAck is the broker's answer to an order submission.
type OrderAck struct {
	OrderID     string
	Status      string
	FilledPrice float64
	SubmittedAt time.Time
}
