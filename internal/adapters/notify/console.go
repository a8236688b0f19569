package notify

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/alejandrodnm/alphaquant/internal/domain"
	"github.com/alejandrodnm/alphaquant/internal/metrics"
	"github.com/alejandrodnm/alphaquant/internal/ports"
	"github.com/olekukonko/tablewriter"
)

// Placeholders impresos cuando no hay nada que mostrar.
const (
	NoSummary = "No strategies selected or no trades generated yet."
	NoTrades  = "No trades generated for this strategy yet."
	NoDrawdn  = "No drawdown detected - all trades are profitable or flat"
)

// Console implementa ports.Reporter sobre un io.Writer.
type Console struct {
	out io.Writer
}

var _ ports.Reporter = (*Console)(nil)

// NewConsole crea un reporter que escribe a stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout}
}

// NewConsoleWriter crea un reporter sobre w (tests, archivos).
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w}
}

// Report imprime la tabla de rendimiento, una fila por estrategia.
func (c *Console) Report(rows []ports.StrategySummary) error {
	if len(rows) == 0 {
		fmt.Fprintln(c.out, NoSummary)
		return nil
	}

	fmt.Fprintf(c.out, "\n[%s] Performance Summary — %d strategies\n", time.Now().Format("15:04:05"), len(rows))

	table := tablewriter.NewWriter(c.out)
	table.Header("Strategy", "Sharpe", "Sortino", "Win %", "Wins", "Losses", "Closed P/L",
		"Avg Win", "Avg Loss", "Profit F.", "Max DD", "Avg Dur (s)", "Trades")

	for _, r := range rows {
		m := r.Metrics
		table.Append(
			r.Strategy,
			m.Format("sharpe", 2),
			m.Format("sortino", 2),
			m.Format("win_rate", 2),
			m.Format("wins", 0),
			m.Format("losses", 0),
			m.Format("closed_pl", 2),
			m.Format("avg_win", 2),
			m.Format("avg_loss", 2),
			m.Format("profit_factor", 2),
			m.Format("max_drawdown", 2),
			m.Format("avg_trade_duration", 2),
			m.Format("number_of_trades", 0),
		)
	}

	table.Render()
	return nil
}

// PrintDetail imprime el trade log, la curva de equity/drawdown y las
// métricas completas de una estrategia.
func (c *Console) PrintDetail(name string, trades []domain.TradeRecord, m metrics.Result, curve metrics.EquityCurve) error {
	fmt.Fprintf(c.out, "\n── DETAIL: %s ──\n", name)
	if len(trades) == 0 {
		fmt.Fprintln(c.out, "  "+NoTrades)
		return nil
	}

	fmt.Fprintf(c.out, "\n  Trade Log (%d)\n", len(trades))
	tbl := tablewriter.NewWriter(c.out)
	tbl.Header("Timestamp", "Symbol", "Action", "Price", "PnL", "Duration")
	for _, t := range trades {
		tbl.Append(
			fmtTime(t.Timestamp),
			t.Symbol,
			t.Action,
			strconv.FormatFloat(t.Price, 'f', 2, 64),
			string(t.PnL),
			string(t.Duration),
		)
	}
	tbl.Render()

	if len(curve.Points) > 0 {
		fmt.Fprintln(c.out, "\n  Equity Curve")
		eq := tablewriter.NewWriter(c.out)
		eq.Header("Timestamp", "PnL", "Cumulative", "Drawdown")
		for _, p := range curve.Points {
			eq.Append(
				fmtTime(p.Timestamp),
				fmt.Sprintf("%.2f", p.PnL),
				fmt.Sprintf("%.2f", p.Cumulative),
				fmt.Sprintf("%.2f", p.Drawdown),
			)
		}
		eq.Render()
		if !curve.HasDrawdown {
			fmt.Fprintln(c.out, "  "+NoDrawdn)
		}
	} else {
		fmt.Fprintf(c.out, "  No valid 'pnl' data available for %s.\n", name)
	}

	fmt.Fprintln(c.out, "\n  Additional Metrics")
	b, err := json.MarshalIndent(m, "  ", "  ")
	if err != nil {
		return fmt.Errorf("notify.PrintDetail: %w", err)
	}
	fmt.Fprintf(c.out, "  %s\n", b)
	return nil
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}
