package metrics

import (
	"time"

	"github.com/alejandrodnm/alphaquant/internal/domain"
)

// Point is one step of the equity curve.
type Point struct {
	Timestamp  time.Time `json:"timestamp"`
	PnL        float64   `json:"pnl"`
	Cumulative float64   `json:"cumulative"`
	Drawdown   float64   `json:"drawdown"`
}

// EquityCurve is the cumulative P&L and drawdown series of a log.
type EquityCurve struct {
	Points      []Point `json:"points"`
	HasDrawdown bool    `json:"has_drawdown"`
}

// Curve builds the equity and drawdown series over the numeric pnl rows, in
// the order given. Unlike Compute it has no degenerate branch: a single row
// yields a single point.
func Curve(trades []domain.TradeRecord) EquityCurve {
	curve := EquityCurve{Points: make([]Point, 0, len(trades))}
	var cum, peak float64
	for _, t := range trades {
		p, ok := t.PnL.Float()
		if !ok {
			continue
		}
		cum += p
		if len(curve.Points) == 0 || cum > peak {
			peak = cum
		}
		dd := peak - cum
		if dd > 0 {
			curve.HasDrawdown = true
		}
		curve.Points = append(curve.Points, Point{
			Timestamp:  t.Timestamp,
			PnL:        p,
			Cumulative: cum,
			Drawdown:   dd,
		})
	}
	return curve
}
