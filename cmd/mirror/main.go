package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/copybot/config"
	"github.com/alejandrodnm/copybot/internal/adapters/demo"
	"github.com/alejandrodnm/copybot/internal/adapters/kalshi"
	"github.com/alejandrodnm/copybot/internal/adapters/notify"
	"github.com/alejandrodnm/copybot/internal/adapters/storage"
	"github.com/alejandrodnm/copybot/internal/application/mirror"
	"github.com/alejandrodnm/copybot/internal/ports"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	demoMode := flag.Bool("demo", false, "use the simulated exchange (no credentials, no real orders)")
	once := flag.Bool("once", false, "run a single tick and exit")
	report := flag.Bool("report", false, "print the persisted ledger and exit")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print a full table per tick (default: compact 1-line)")
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
	closeLog := setupLogger(cfg.Log)
	defer closeLog()

	if *demoMode && cfg.Mirror.TargetUserID == "" {
		cfg.Mirror.TargetUserID = demo.DefaultUserID
	}

	slog.Info("copybot starting",
		"config", *configPath,
		"demo", *demoMode,
		"target_user", cfg.Mirror.TargetUserID,
		"max_copy_amount", cfg.Mirror.MaxCopyAmount,
		"interval", cfg.Settings().PollingInterval(),
		"auto_copy", cfg.Mirror.AutoCopyEnabled,
	)

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var exchange ports.Exchange
	if *demoMode {
		exchange = demo.New(demo.Options{})
	} else {
		exchange = kalshi.NewClient(cfg.Kalshi.BaseURL, cfg.Kalshi.Email, cfg.Kalshi.Password)
	}

	settings, err := mirror.NewSettingsStore(cfg.Settings())
	if err != nil {
		slog.Error("invalid mirror settings", "err", err)
		os.Exit(1)
	}
	notifier := notify.NewConsole(*table)
	engine := mirror.New(exchange, settings, store, notifier, mirror.Config{
		Executor: mirror.ExecutorConfig{
			MaxAttempts: cfg.Executor.MaxAttempts,
			BaseBackoff: cfg.BaseBackoff(),
			CallTimeout: cfg.CallTimeout(),
		},
		CallTimeout: cfg.CallTimeout(),
		DemoMode:    *demoMode,
	})

	if err := engine.Restore(ctx); err != nil {
		slog.Error("failed to restore state", "err", err)
		os.Exit(1)
	}

	if *report {
		printReport(engine, notifier)
		return
	}

	if err := exchange.Authenticate(ctx); err != nil {
		slog.Error("exchange authentication failed", "err", err)
		os.Exit(1)
	}

	if *once {
		res, err := engine.Tick(ctx)
		if err != nil {
			slog.Error("tick failed", "err", err)
			os.Exit(1)
		}
		slog.Info("tick done", "fetched", res.Fetched, "copied", res.Copied, "failed", res.Failed, "baseline", res.Baseline)
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return engine.Run(gctx)
	})
	if cfg.HTTP.Addr != "" {
		g.Go(func() error {
			return runHTTPServer(gctx, cfg.HTTP.Addr, engine)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("copybot exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("copybot stopped cleanly")
}

func printReport(engine *mirror.Engine, notifier *notify.Console) {
	st := engine.Status(1)
	notifier.PrintLedgerReport(notify.LedgerReportInput{
		Stats:   st.Stats,
		Entries: engine.Entries(0),
		Cursor:  st.Cursor,
		Balance: st.Balance,
	})
}
