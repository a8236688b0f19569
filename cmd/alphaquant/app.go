package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"time"

	"github.com/alejandrodnm/alphaquant/internal/adapters/notify"
	"github.com/alejandrodnm/alphaquant/internal/adapters/storage"
	"github.com/alejandrodnm/alphaquant/internal/application/engine"
	"github.com/alejandrodnm/alphaquant/internal/application/report"
	"github.com/alejandrodnm/alphaquant/internal/dashboard"
	"github.com/alejandrodnm/alphaquant/internal/domain"
	"github.com/alejandrodnm/alphaquant/internal/ports"
)

type app struct {
	store   *storage.SQLiteStorage
	engine  *engine.Engine
	console *notify.Console
	run     engine.RunConfig
	sortKey string
	asc     bool
	export  string
}

// runOnce hace una pasada. En replay el resumen incluye también los logs
// importados de estrategias que no están en la config.
func (a *app) runOnce(ctx context.Context) error {
	logs, err := a.engine.Run(ctx, a.run)
	if err != nil {
		return err
	}

	var rows []ports.StrategySummary
	if a.run.Live {
		rows = report.FromLogs(logs)
	} else {
		rows, err = report.Build(ctx, a.store, a.names(ctx))
		if err != nil {
			return err
		}
	}
	if err := a.printSummary(rows); err != nil {
		return err
	}
	return a.exportAll(ctx, rows)
}

func (a *app) loop(ctx context.Context, interval time.Duration) error {
	err := a.engine.Loop(ctx, a.run, interval, func(logs map[string][]domain.TradeRecord) {
		if err := a.printSummary(report.FromLogs(logs)); err != nil {
			slog.Warn("summary print failed", "err", err)
		}
	})
	if err != nil {
		return err
	}
	return a.exportAll(context.WithoutCancel(ctx), nil)
}

// serve levanta el dashboard. Con loop=true el engine corre en paralelo y
// sus resultados alimentan las métricas de Prometheus.
func (a *app) serve(ctx context.Context, addr string, loop bool, interval time.Duration) error {
	srv := dashboard.NewServer(a.store, a.engine)
	a.engine.With(engine.WithObserver(srv.Metrics().ObserveRun))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if loop {
		go func() {
			// STOP o error del loop también apagan el servidor
			defer cancel()
			err := a.engine.Loop(ctx, a.run, interval, func(logs map[string][]domain.TradeRecord) {
				srv.Metrics().ObserveSummary(report.FromLogs(logs))
			})
			if err != nil {
				slog.Error("engine loop exited with error", "err", err)
			}
		}()
	}
	return srv.ListenAndServe(ctx, addr)
}

func (a *app) printDetail(ctx context.Context, name string) error {
	d, err := report.Detail(ctx, a.store, name)
	if err != nil {
		return err
	}
	return a.console.PrintDetail(d.Strategy, d.Trades, d.Metrics, d.Curve)
}

func (a *app) printSummary(rows []ports.StrategySummary) error {
	key, asc := a.sortKey, a.asc
	if key == "" {
		key, asc = report.KeyStrategy, true
	}
	if err := report.Sort(rows, key, asc); err != nil {
		return err
	}
	return a.console.Report(rows)
}

// exportAll escribe el resumen y los trade logs en a.export. rows=nil
// recalcula el resumen desde el almacenamiento.
func (a *app) exportAll(ctx context.Context, rows []ports.StrategySummary) error {
	if a.export == "" {
		return nil
	}
	n, err := storage.ExportDir(ctx, a.store, a.export)
	if err != nil {
		return err
	}
	if rows == nil {
		if rows, err = report.Build(ctx, a.store, a.names(ctx)); err != nil {
			return err
		}
	}
	path := filepath.Join(a.export, report.SummaryFile)
	if err := report.WriteCSVFile(path, rows); err != nil {
		return fmt.Errorf("export summary: %w", err)
	}
	slog.Info("export complete", "dir", a.export, "trade_logs", n, "summary", path)
	return nil
}

// names devuelve las estrategias a resumir: las pedidas con -strategy o,
// si no hay, las configuradas más las que tienen log.
func (a *app) names(ctx context.Context) []string {
	if len(a.run.Only) > 0 {
		return a.run.Only
	}
	logged, err := a.store.Strategies(ctx)
	if err != nil {
		slog.Warn("could not list logged strategies", "err", err)
	}
	all := append(a.engine.Strategies(), logged...)
	slices.Sort(all)
	return slices.Compact(all)
}
