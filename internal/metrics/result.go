package metrics

import (
	"encoding/json"
	"math"
	"strconv"
)

// Keys lists every Result key in display order.
var Keys = []string{
	"sharpe",
	"sortino",
	"wins",
	"losses",
	"win_rate",
	"closed_pl",
	"avg_win",
	"avg_loss",
	"profit_factor",
	"max_drawdown",
	"avg_trade_duration",
	"number_of_trades",
}

// Infinity is how an infinite profit factor is written to JSON and CSV.
const Infinity = "Infinity"

// Result is the fixed-shape output of Compute.
type Result struct {
	Sharpe           float64 `json:"sharpe"`
	Sortino          float64 `json:"sortino"`
	Wins             int     `json:"wins"`
	Losses           int     `json:"losses"`
	WinRate          float64 `json:"win_rate"`
	ClosedPL         float64 `json:"closed_pl"`
	AvgWin           float64 `json:"avg_win"`
	AvgLoss          float64 `json:"avg_loss"`
	ProfitFactor     float64 `json:"profit_factor"` // +Inf when there is no gross loss
	MaxDrawdown      float64 `json:"max_drawdown"`
	AvgTradeDuration float64 `json:"avg_trade_duration"`
	NumberOfTrades   int     `json:"number_of_trades"`
}

// TotalPnL is an alias of ClosedPL.
func (r Result) TotalPnL() float64 { return r.ClosedPL }

// InfiniteProfitFactor reports whether the log has wins and no gross loss.
func (r Result) InfiniteProfitFactor() bool { return math.IsInf(r.ProfitFactor, 1) }

// Value returns the metric stored under key as a float64.
func (r Result) Value(key string) (float64, bool) {
	switch key {
	case "sharpe":
		return r.Sharpe, true
	case "sortino":
		return r.Sortino, true
	case "wins":
		return float64(r.Wins), true
	case "losses":
		return float64(r.Losses), true
	case "win_rate":
		return r.WinRate, true
	case "closed_pl", "total_pnl":
		return r.ClosedPL, true
	case "avg_win":
		return r.AvgWin, true
	case "avg_loss":
		return r.AvgLoss, true
	case "profit_factor":
		return r.ProfitFactor, true
	case "max_drawdown":
		return r.MaxDrawdown, true
	case "avg_trade_duration":
		return r.AvgTradeDuration, true
	case "number_of_trades":
		return float64(r.NumberOfTrades), true
	}
	return 0, false
}

// Format renders the metric under key with prec decimals (-1 for the
// shortest exact form). Counts are always integers.
func (r Result) Format(key string, prec int) string {
	switch key {
	case "wins", "losses", "number_of_trades":
		v, _ := r.Value(key)
		return strconv.Itoa(int(v))
	}
	v, ok := r.Value(key)
	if !ok {
		return ""
	}
	if math.IsInf(v, 1) {
		return Infinity
	}
	if prec >= 0 {
		v = Round(v, prec)
	}
	return strconv.FormatFloat(v, 'f', prec, 64)
}

// MarshalJSON keeps the output valid JSON: an infinite profit factor is
// encoded as the string "Infinity".
func (r Result) MarshalJSON() ([]byte, error) {
	type plain Result
	out := struct {
		plain
		ProfitFactor any `json:"profit_factor"`
	}{plain: plain(r), ProfitFactor: r.ProfitFactor}
	if r.InfiniteProfitFactor() {
		out.ProfitFactor = Infinity
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts what MarshalJSON produces.
func (r *Result) UnmarshalJSON(b []byte) error {
	type plain Result
	in := struct {
		*plain
		ProfitFactor json.RawMessage `json:"profit_factor"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	if len(in.ProfitFactor) == 0 {
		return nil
	}
	var s string
	if json.Unmarshal(in.ProfitFactor, &s) == nil {
		if s == Infinity {
			r.ProfitFactor = math.Inf(1)
		}
		return nil
	}
	return json.Unmarshal(in.ProfitFactor, &r.ProfitFactor)
}

// Round rounds half away from zero to prec decimals.
func Round(v float64, prec int) float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return v
	}
	p := math.Pow(10, float64(prec))
	return math.Round(v*p) / p
}
