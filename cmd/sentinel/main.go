package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"ValuationSentinel/internal/collector"
	"ValuationSentinel/internal/config"
	"ValuationSentinel/internal/ledger"
	"ValuationSentinel/internal/logger"
	"ValuationSentinel/internal/notifier"
	"ValuationSentinel/internal/recorder"
	"ValuationSentinel/internal/scheduler"
)

func main() {
	// Load config
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		bootLog := logger.New(logger.Config{Pretty: true})
		bootLog.Fatal().Err(err).Msg("load config")
	}
	log := logger.New(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("config validation")
	}
	loc, err := cfg.Location()
	if err != nil {
		log.Fatal().Err(err).Str("timezone", cfg.Schedule.Timezone).Msg("load time zone")
	}
	log.Info().Str("config", cfgPath).Int("indices", len(cfg.Data.Targets)).Msg("ValuationSentinel starting")

	// Init collector
	fetcher := collector.NewFileFetcher(cfg.Data.Dir)
	col := collector.NewCollector(fetcher, cfg.Data.CacheTTL, log)
	col.Concurrency = cfg.Data.Concurrency
	log.Info().Str("source", fetcher.Name()).Msg("data source ready")

	// Init ledger
	lm, err := ledger.NewManager(cfg.Ledger.StateFile, cfg.Codes(), log)
	if err != nil {
		log.Fatal().Err(err).Str("file", cfg.Ledger.StateFile).Msg("init ledger")
	}

	// Init notifier
	var (
		n  notifier.Notifier
		tn *notifier.TelegramNotifier
	)
	if cfg.TelegramEnabled() {
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, log)
		n = notifier.RetryingNotifier{TelegramNotifier: tn, MaxRetries: cfg.Telegram.MaxRetries}
	} else {
		log.Warn().Msg("telegram not configured, notifications go to the log")
		n = notifier.NewLogNotifier(log)
	}

	// Init recorder
	var rec recorder.Recorder
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, log)
		if err != nil {
			log.Warn().Err(err).Msg("init sqlite recorder failed, using noop")
			rec = recorder.NewNoopRecorder()
		} else {
			rec = sr
			defer sr.Close()
		}
	} else {
		rec = recorder.NewNoopRecorder()
	}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Init scheduler
	sched := scheduler.NewScheduler(ctx, col, lm, n, rec, scheduler.Options{
		Indices:   cfg.Data.Targets,
		Benchmark: cfg.Data.Benchmark,
		Title:     cfg.Report.Title,
		Strategy:  cfg.Strategy,
		Location:  loc,
	}, log)
	if err := sched.RegisterAll(cfg.Schedule.DailyCron, cfg.Schedule.WeeklyCron); err != nil {
		log.Fatal().Err(err).Msg("register cron tasks")
	}
	sched.Start()
	defer sched.Stop()

	// Start Telegram polling
	if tn != nil {
		go tn.StartPolling(ctx, sched.HandleCommand)
		log.Info().Msg("telegram polling started")
	}

	// Optional: run immediately on start
	if os.Getenv("RUN_ON_START") == "true" {
		log.Info().Msg("RUN_ON_START enabled, executing daily task now")
		go sched.RunDailyNow()
	}

	log.Info().Msg("ValuationSentinel is running. Press Ctrl+C to stop.")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("shutdown signal received, stopping...")
	cancel()
}
