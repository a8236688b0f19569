package ports

import "github.com/alejandrodnm/alphaquant/internal/metrics"

// StrategySummary is one row of the performance summary.
type StrategySummary struct {
	Strategy string         `json:"strategy"`
	Metrics  metrics.Result `json:"metrics"`
}

// Reporter presenta el resumen de rendimiento al usuario.
type Reporter interface {
	// Report renders one row per strategy. An empty slice renders the
	// "no trades" placeholder.
	Report(rows []StrategySummary) error
}
