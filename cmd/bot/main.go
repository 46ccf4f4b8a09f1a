package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Demonss1309/Polysport/config"
	"github.com/Demonss1309/Polysport/internal/adapters/notify"
	"github.com/Demonss1309/Polysport/internal/adapters/polymarket"
	"github.com/Demonss1309/Polysport/internal/adapters/storage"
	"github.com/Demonss1309/Polysport/internal/engine"
	"github.com/Demonss1309/Polysport/internal/scanner"
	"github.com/Demonss1309/Polysport/internal/scheduler"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "run one reconciliation cycle and exit")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print the tracked-orders table each cycle (default: compact 1-line)")
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

	slog.Info("polysport starting",
		"config", *configPath,
		"interval", cfg.CycleInterval(),
		"entry_stake", cfg.Bot.EntryStakeUSDC,
		"once", *once,
	)

	client := polymarket.NewClient(cfg.API.CLOBBase, cfg.API.GammaBase)
	auth, err := polymarket.NewAuthClient(client, polymarket.Credentials{
		PrivateKey: cfg.API.PrivateKey,
		APIKey:     cfg.API.APIKey,
		Secret:     cfg.API.Secret,
		Passphrase: cfg.API.Passphrase,
	})
	if err != nil {
		slog.Error("failed to build venue client", "err", err)
		os.Exit(1)
	}

	store, err := storage.NewSQLiteStore(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	markets := scanner.New(client, scanner.FilterConfig{
		MinVolume:      cfg.Filters.MinVolumeUSDC,
		MaxTotalPrice:  cfg.Filters.MaxTotalPrice,
		MinStrongPrice: cfg.Filters.MinStrongPrice,
		StartHorizon:   cfg.StartHorizon(),
		StartGrace:     cfg.StartGrace(),
	})

	sched := scheduler.New(store, store, scheduler.Config{
		EntryWindow: cfg.EntryWindow(),
	})

	notifier := notify.NewConsole(*table)

	eng := engine.New(
		markets,
		polymarket.NewGateway(auth),
		store,
		store,
		sched,
		notifier,
		engine.Config{
			EntryStake:            cfg.Bot.EntryStakeUSDC,
			CycleInterval:         cfg.CycleInterval(),
			PartialFillThreshold:  cfg.Bot.PartialFillThreshold,
			RetentionWindow:       cfg.RetentionWindow(),
			RecreateWarnThreshold: cfg.Bot.RecreateWarnThreshold,
			LockWindow:            cfg.LockWindow(),
			ManualOverride:        cfg.ManualOverrides(),
		},
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *once {
		runOnce(ctx, eng, notifier)
		return
	}

	if err := eng.Run(ctx); err != nil {
		slog.Error("engine exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("polysport stopped cleanly")
}

// runOnce executes startup reconciliation plus exactly one cycle.
func runOnce(ctx context.Context, eng *engine.Engine, notifier *notify.Console) {
	if err := eng.ReconcileStartup(ctx); err != nil {
		slog.Error("startup reconciliation failed", "err", err)
		os.Exit(1)
	}
	report, err := eng.RunCycle(ctx)
	if err != nil {
		slog.Error("cycle failed", "err", err)
		os.Exit(1)
	}
	if err := notifier.Notify(ctx, *report); err != nil {
		slog.Warn("notifier error", "err", err)
	}
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
