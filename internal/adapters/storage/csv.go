package storage

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/alphaquant/internal/domain"
	"github.com/alejandrodnm/alphaquant/internal/ports"
)

// LogSuffix identifies trade log files in an import directory.
const LogSuffix = "_trades.csv"

var baseColumns = []string{"timestamp", "symbol", "action", "price", "pnl", "duration"}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// ReadCSV parses a header-driven trade log. Columns other than the base ones
// are kept in Extra. Timestamps that do not parse become the zero time; pnl
// and duration are kept verbatim.
func ReadCSV(r io.Reader, strategy string) ([]domain.TradeRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("storage.ReadCSV: %w", ErrBadHeader)
	}
	if err != nil {
		return nil, fmt.Errorf("storage.ReadCSV: header: %w", err)
	}
	for i, h := range header {
		header[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	}

	var out []domain.TradeRecord
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("storage.ReadCSV: line %d: %w", line, err)
		}

		rec := domain.TradeRecord{Strategy: strategy}
		for i, cell := range row {
			if i >= len(header) {
				break
			}
			switch header[i] {
			case "timestamp":
				rec.Timestamp = parseTime(cell)
			case "symbol":
				rec.Symbol = cell
			case "action":
				rec.Action = cell
			case "price":
				rec.Price, _ = strconv.ParseFloat(strings.TrimSpace(cell), 64)
			case "pnl":
				rec.PnL = domain.Value(cell)
			case "duration":
				rec.Duration = domain.Value(cell)
			case "", "strategy":
			default:
				if rec.Extra == nil {
					rec.Extra = make(map[string]string)
				}
				rec.Extra[header[i]] = cell
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

// WriteCSV writes trades with the base columns followed by every Extra
// column seen, sorted by name.
func WriteCSV(w io.Writer, trades []domain.TradeRecord) error {
	extraSet := make(map[string]struct{})
	for _, t := range trades {
		for k := range t.Extra {
			extraSet[k] = struct{}{}
		}
	}
	extras := make([]string, 0, len(extraSet))
	for k := range extraSet {
		extras = append(extras, k)
	}
	sort.Strings(extras)

	cw := csv.NewWriter(w)
	if err := cw.Write(append(append([]string{}, baseColumns...), extras...)); err != nil {
		return fmt.Errorf("storage.WriteCSV: header: %w", err)
	}
	for _, t := range trades {
		row := []string{
			t.Timestamp.UTC().Format(time.RFC3339Nano),
			t.Symbol,
			t.Action,
			strconv.FormatFloat(t.Price, 'f', -1, 64),
			string(t.PnL),
			string(t.Duration),
		}
		for _, k := range extras {
			row = append(row, t.Extra[k])
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("storage.WriteCSV: row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ImportResult counts what ImportDir did.
type ImportResult struct {
	Files    int
	Inserted int
	Skipped  int // duplicates already in the log
}

// Import appends trades to log, skipping records already present.
func Import(ctx context.Context, log ports.TradeLog, trades []domain.TradeRecord) (ImportResult, error) {
	var res ImportResult
	for _, t := range trades {
		ok, err := log.Append(ctx, t)
		if err != nil {
			return res, fmt.Errorf("storage.Import: %w", err)
		}
		if ok {
			res.Inserted++
		} else {
			res.Skipped++
		}
	}
	return res, nil
}

// ImportDir appends every *_trades.csv in dir to log. The strategy name is
// the file name without the suffix (aapl_trades.csv → aapl).
func ImportDir(ctx context.Context, log ports.TradeLog, dir string) (ImportResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ImportResult{}, fmt.Errorf("storage.ImportDir: read %q: %w", dir, err)
	}

	var total ImportResult
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), LogSuffix) {
			continue
		}
		name := strings.TrimSuffix(e.Name(), LogSuffix)

		trades, err := readFile(filepath.Join(dir, e.Name()), name)
		if err != nil {
			return total, err
		}
		res, err := Import(ctx, log, trades)
		if err != nil {
			return total, err
		}
		slog.Info("imported trade log", "strategy", name, "inserted", res.Inserted, "skipped", res.Skipped)

		total.Files++
		total.Inserted += res.Inserted
		total.Skipped += res.Skipped
	}
	return total, nil
}

func readFile(path, strategy string) ([]domain.TradeRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("storage.ImportDir: open %q: %w", path, err)
	}
	defer f.Close()

	trades, err := ReadCSV(f, strategy)
	if err != nil {
		return nil, fmt.Errorf("storage.ImportDir: %s: %w", filepath.Base(path), err)
	}
	return trades, nil
}

func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// ExportDir writes one <strategy>_trades.csv per logged strategy into dir.
// It returns the number of files written.
func ExportDir(ctx context.Context, log ports.TradeLog, dir string) (int, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("storage.ExportDir: mkdir %q: %w", dir, err)
	}
	names, err := log.Strategies(ctx)
	if err != nil {
		return 0, fmt.Errorf("storage.ExportDir: %w", err)
	}

	for i, name := range names {
		trades, err := log.List(ctx, name)
		if err != nil {
			return i, fmt.Errorf("storage.ExportDir: %w", err)
		}
		if err := writeFile(filepath.Join(dir, name+LogSuffix), trades); err != nil {
			return i, err
		}
	}
	return len(names), nil
}

func writeFile(path string, trades []domain.TradeRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("storage.ExportDir: create %q: %w", path, err)
	}
	if err := WriteCSV(f, trades); err != nil {
		f.Close()
		return fmt.Errorf("storage.ExportDir: %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}
