package report

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"sort"
	"strings"

	"github.com/alejandrodnm/alphaquant/internal/domain"
	"github.com/alejandrodnm/alphaquant/internal/metrics"
	"github.com/alejandrodnm/alphaquant/internal/ports"
)

// SummaryFile es el nombre del CSV de resumen que se ofrece para descargar.
const SummaryFile = "strategy_performance_summary.csv"

// KeyStrategy ordena por nombre de estrategia.
const KeyStrategy = "strategy"

// ErrUnknownKey is returned by Sort for a key that is not a metric.
var ErrUnknownKey = errors.New("unknown sort key")

// Build calcula las métricas de cada estrategia. Si names está vacío usa
// todas las estrategias con trades en el log.
func Build(ctx context.Context, log ports.TradeLog, names []string) ([]ports.StrategySummary, error) {
	if len(names) == 0 {
		var err error
		if names, err = log.Strategies(ctx); err != nil {
			return nil, fmt.Errorf("report.Build: %w", err)
		}
	}

	rows := make([]ports.StrategySummary, 0, len(names))
	for _, name := range names {
		trades, err := log.List(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("report.Build: %s: %w", name, err)
		}
		rows = append(rows, ports.StrategySummary{Strategy: name, Metrics: metrics.Compute(trades)})
	}
	return rows, nil
}

// FromLogs resume logs ya cargados (la salida de engine.Run), por nombre.
func FromLogs(logs map[string][]domain.TradeRecord) []ports.StrategySummary {
	names := make([]string, 0, len(logs))
	for name := range logs {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([]ports.StrategySummary, 0, len(names))
	for _, name := range names {
		rows = append(rows, ports.StrategySummary{Strategy: name, Metrics: metrics.Compute(logs[name])})
	}
	return rows
}

// Filter keeps the rows whose strategy is in names. No names keeps all.
func Filter(rows []ports.StrategySummary, names []string) []ports.StrategySummary {
	if len(names) == 0 {
		return rows
	}
	out := make([]ports.StrategySummary, 0, len(rows))
	for _, r := range rows {
		if slices.Contains(names, r.Strategy) {
			out = append(out, r)
		}
	}
	return out
}

// Sort ordena rows in place por key (una métrica o "strategy"). Empates se
// resuelven por nombre para que el orden sea estable entre llamadas.
func Sort(rows []ports.StrategySummary, key string, ascending bool) error {
	if key == "" {
		key = KeyStrategy
	}
	if key != KeyStrategy {
		if _, ok := (metrics.Result{}).Value(key); !ok {
			return fmt.Errorf("report.Sort: %w %q", ErrUnknownKey, key)
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if key != KeyStrategy {
			va, _ := a.Metrics.Value(key)
			vb, _ := b.Metrics.Value(key)
			if va != vb && !(math.IsInf(va, 1) && math.IsInf(vb, 1)) {
				if ascending {
					return va < vb
				}
				return va > vb
			}
			return a.Strategy < b.Strategy
		}
		if ascending {
			return a.Strategy < b.Strategy
		}
		return a.Strategy > b.Strategy
	})
	return nil
}

// Header devuelve las columnas del CSV de resumen.
func Header() []string {
	return append([]string{KeyStrategy}, metrics.Keys...)
}

// WriteCSV escribe el resumen con los valores redondeados a 2 decimales,
// igual que la tabla del dashboard.
func WriteCSV(w io.Writer, rows []ports.StrategySummary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header()); err != nil {
		return fmt.Errorf("report.WriteCSV: header: %w", err)
	}
	for _, r := range rows {
		if err := cw.Write(Row(r)); err != nil {
			return fmt.Errorf("report.WriteCSV: %s: %w", r.Strategy, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Row formats one summary row as WriteCSV does.
func Row(r ports.StrategySummary) []string {
	row := make([]string, 0, len(metrics.Keys)+1)
	row = append(row, r.Strategy)
	for _, k := range metrics.Keys {
		row = append(row, r.Metrics.Format(k, 2))
	}
	return row
}

// WriteCSVFile escribe el resumen en path (se crea o se trunca).
func WriteCSVFile(path string, rows []ports.StrategySummary) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report.WriteCSVFile: %w", err)
	}
	if err := WriteCSV(f, rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// StrategyDetail es la vista completa de una estrategia.
type StrategyDetail struct {
	Strategy string
	Trades   []domain.TradeRecord
	Metrics  metrics.Result
	Curve    metrics.EquityCurve
}

// HasTrades reports whether the strategy logged anything.
func (d StrategyDetail) HasTrades() bool { return len(d.Trades) > 0 }

// Detail carga el log de name y calcula métricas y curva. Una estrategia sin
// trades devuelve un detalle vacío, no un error.
func Detail(ctx context.Context, log ports.TradeLog, name string) (StrategyDetail, error) {
	name = strings.TrimSpace(name)
	trades, err := log.List(ctx, name)
	if err != nil {
		return StrategyDetail{}, fmt.Errorf("report.Detail: %s: %w", name, err)
	}
	return StrategyDetail{
		Strategy: name,
		Trades:   trades,
		Metrics:  metrics.Compute(trades),
		Curve:    metrics.Curve(trades),
	}, nil
}
