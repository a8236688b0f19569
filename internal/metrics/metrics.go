// Package metrics derives risk/return statistics from a closed-trade log.
//
// Compute is total: every input, including an empty log, malformed P&L cells
// or a zero-variance series, maps to a fully populated Result. It performs no
// I/O and never mutates its input, so it is safe to call concurrently.
package metrics

import (
	"math"

	"github.com/alejandrodnm/alphaquant/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	// TradingPeriods annualises per-trade Sharpe and Sortino ratios.
	TradingPeriods = 252

	// epsilon keeps the ratio denominators away from zero.
	epsilon = 1e-9
)

// Compute derives the performance metrics of a trade log.
//
// Rows whose pnl does not parse as a finite number are excluded from every
// count and sum. Cumulative statistics follow the given order. With fewer
// than two numeric rows, or when the P&L sums to exactly zero, Sharpe,
// Sortino and max drawdown are reported as 0.
func Compute(trades []domain.TradeRecord) Result {
	pnl := make([]float64, 0, len(trades))
	total := decimal.Zero
	var durSum float64
	var durN int

	for _, t := range trades {
		if d, ok := t.PnL.Decimal(); ok {
			pnl = append(pnl, d.InexactFloat64())
			total = total.Add(d)
		}
		if d, ok := t.Duration.Float(); ok {
			durSum += d
			durN++
		}
	}

	res := Result{
		NumberOfTrades: len(pnl),
		ClosedPL:       total.InexactFloat64(),
	}
	if durN > 0 {
		res.AvgTradeDuration = finite(durSum / float64(durN))
	}

	var winSum, lossSum float64
	for _, p := range pnl {
		if p > 0 {
			res.Wins++
			winSum += p
		} else {
			res.Losses++
			lossSum += p
		}
	}
	if res.NumberOfTrades > 0 {
		res.WinRate = 100 * float64(res.Wins) / float64(res.NumberOfTrades)
	}
	if res.Wins > 0 {
		res.AvgWin = finite(winSum / float64(res.Wins))
	}
	if res.Losses > 0 {
		res.AvgLoss = finite(lossSum / float64(res.Losses))
	}
	res.ProfitFactor = profitFactor(winSum, lossSum)

	if len(pnl) < 2 || total.IsZero() {
		return res
	}

	res.MaxDrawdown = maxDrawdown(pnl)
	mu := mean(pnl)
	res.Sharpe = ratio(mu, stddev(pnl))

	var downside []float64
	for _, p := range pnl {
		if p < 0 {
			downside = append(downside, p)
		}
	}
	res.Sortino = ratio(mu, stddev(downside))

	return res
}

// profitFactor is |gross wins / gross losses|. No gross loss with some gross
// win yields +Inf; no gross win yields 0.
func profitFactor(winSum, lossSum float64) float64 {
	if winSum == 0 {
		return 0
	}
	if lossSum == 0 {
		return math.Inf(1)
	}
	return finite(math.Abs(winSum / lossSum))
}

// ratio annualises mean/sd. A zero sd reports 0 instead of a huge value.
func ratio(mu, sd float64) float64 {
	if sd == 0 {
		return 0
	}
	return finite(mu / (sd + epsilon) * math.Sqrt(TradingPeriods))
}

// maxDrawdown is the largest decline of the running sum from its running peak.
func maxDrawdown(pnl []float64) float64 {
	var cum, peak, worst float64
	for i, p := range pnl {
		cum += p
		if i == 0 || cum > peak {
			peak = cum
		}
		if dd := peak - cum; dd > worst {
			worst = dd
		}
	}
	return finite(worst)
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

// stddev is the sample standard deviation (n-1). Fewer than two samples or
// identical samples give exactly 0, so rounding noise never reaches ratio.
func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	identical := true
	for _, x := range xs[1:] {
		if x != xs[0] {
			identical = false
			break
		}
	}
	if identical {
		return 0
	}
	mu := mean(xs)
	var ss float64
	for _, x := range xs {
		d := x - mu
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

func finite(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return x
}
