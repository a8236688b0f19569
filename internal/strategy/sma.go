package strategy

import (
	"math"

	"github.com/shopspring/decimal"
)

// SMA devuelve la media simple de las últimas window closes.
// ok es false si no hay suficientes datos.
func SMA(closes []float64, window int) (float64, bool) {
	if window < 1 || len(closes) < window {
		return 0, false
	}
	var sum float64
	for _, c := range closes[len(closes)-window:] {
		sum += c
	}
	return sum / float64(window), true
}

// finiteCloses descarta closes NaN/Inf que el feed pueda devolver.
func finiteCloses(closes []float64) []float64 {
	out := closes[:0:0]
	for _, c := range closes {
		if !math.IsNaN(c) && !math.IsInf(c, 0) {
			out = append(out, c)
		}
	}
	return out
}

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
