package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alejandrodnm/alphaquant/config"
	"github.com/alejandrodnm/alphaquant/internal/adapters/broker"
	"github.com/alejandrodnm/alphaquant/internal/adapters/notify"
	"github.com/alejandrodnm/alphaquant/internal/adapters/storage"
	"github.com/alejandrodnm/alphaquant/internal/application/engine"
	"github.com/alejandrodnm/alphaquant/internal/ports"
	"github.com/alejandrodnm/alphaquant/internal/strategy"
	"github.com/gin-gonic/gin"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	live := flag.Bool("live", false, "evaluate strategies against the broker (default: replay stored logs)")
	once := flag.Bool("once", false, "run one pass and exit")
	serve := flag.Bool("serve", false, "serve the dashboard on dashboard.addr")
	only := flag.String("strategy", "", "comma-separated strategy names (default: all)")
	detail := flag.String("detail", "", "print trade log, equity curve and metrics for one strategy")
	sortKey := flag.String("sort", "", "summary sort key (default: strategy)")
	asc := flag.Bool("asc", false, "sort ascending")
	importDir := flag.String("import", "", "import *_trades.csv files from dir before running")
	exportDir := flag.String("export", "", "write summary and per-strategy trade logs to dir after running")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	slog.Info("alphaquant starting",
		"config", *configPath,
		"strategies", len(cfg.Strategies),
		"live", *live,
		"paper", cfg.Broker.Paper,
		"once", *once,
		"serve", *serve,
	)

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *importDir != "" {
		res, err := storage.ImportDir(ctx, store, *importDir)
		if err != nil {
			slog.Error("import failed", "err", err, "dir", *importDir)
			os.Exit(1)
		}
		slog.Info("import complete", "files", res.Files, "inserted", res.Inserted, "skipped", res.Skipped)
	}

	strategies, err := strategy.Build(cfg.Strategies)
	if err != nil {
		slog.Error("invalid strategy configuration", "err", err)
		os.Exit(1)
	}

	var b ports.Broker
	if *live {
		b = newBroker(cfg.Broker, cfg.BrokerTimeout())
	}

	eng := engine.New(b, store, strategies...).With(
		engine.WithWorkers(cfg.Runner.Workers),
		engine.WithStopFile(cfg.Runner.StopFile),
	)
	console := notify.NewConsole()

	a := &app{
		store:   store,
		engine:  eng,
		console: console,
		run:     engine.RunConfig{Live: *live, Only: splitNames(*only)},
		sortKey: *sortKey,
		asc:     *asc,
		export:  *exportDir,
	}

	switch {
	case *detail != "":
		err = a.printDetail(ctx, *detail)
	case *serve:
		err = a.serve(ctx, cfg.Dashboard.Addr, *live && !*once, cfg.Interval())
	case *live && !*once:
		err = a.loop(ctx, cfg.Interval())
	default:
		err = a.runOnce(ctx)
	}
	if err != nil {
		slog.Error("alphaquant exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("alphaquant stopped cleanly")
}

// newBroker crea el cliente del gateway. En modo paper las órdenes se
// simulan sobre los datos de mercado reales.
func newBroker(cfg config.BrokerConfig, timeout time.Duration) ports.Broker {
	client := broker.NewClient(broker.Options{
		BaseURL: cfg.BaseURL,
		Account: cfg.Account,
		Token:   cfg.Token,
		Timeout: timeout,
	})
	if cfg.Paper {
		slog.Info("=== PAPER MODE: orders are simulated ===")
		return broker.NewPaper(client)
	}
	slog.Warn("=== LIVE MODE: orders are sent to the broker ===", "account", cfg.Account)
	return client
}

func splitNames(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
