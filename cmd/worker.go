package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/himanstore/dmpilot/internal/channels/instagram"
	"github.com/himanstore/dmpilot/internal/config"
	"github.com/himanstore/dmpilot/internal/notify"
	"github.com/himanstore/dmpilot/internal/orders"
	"github.com/himanstore/dmpilot/internal/pipeline"
	"github.com/himanstore/dmpilot/internal/providers"
	"github.com/himanstore/dmpilot/internal/store/db"
	"github.com/himanstore/dmpilot/internal/telemetry"
	"github.com/himanstore/dmpilot/internal/worker"
)

func runWorker() {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}
	setupLogging(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		slog.Error("telemetry init failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			slog.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	stores, conn, err := db.NewStores(cfg.Database.DSN)
	if err != nil {
		slog.Error("database open failed", "dsn", cfg.Database.DSN, "error", err)
		os.Exit(1)
	}
	defer conn.Close()
	slog.Info("database ready", "dsn", cfg.Database.DSN)

	provider := providers.NewOpenAIProvider("openai", cfg.Generation.APIKey, cfg.Generation.APIBase, cfg.Generation.AgentModel)
	pipe := pipeline.New(provider, *stores, pipeline.Config{
		AgentModel:       cfg.Generation.AgentModel,
		SerializerModel:  cfg.Generation.SerializerModel,
		AgentPrompt:      cfg.Generation.AgentPrompt,
		SerializerPrompt: cfg.Generation.SerializerPrompt,
		Temperature:      cfg.Generation.Temperature,
		MaxTokens:        cfg.Generation.MaxTokens,
		HistoryLimit:     cfg.Generation.HistoryLimit,
		ImageLimit:       cfg.Generation.ImageLimit,
	})

	notifier := notify.New(stores.Notifications, buildBroadcasters(cfg)...)
	orderSvc := orders.New(stores.Orders)

	transport := instagram.New(cfg.Instagram.AccessToken, cfg.Instagram.APIBase, cfg.Instagram.MessagesPerSecond)

	workerCfg := workerConfig(cfg)
	dispatcher := worker.NewDispatcher(transport, stores.Outbound, stores.Messages, workerCfg.GuardWindow)
	effects := worker.NewSideEffects(*stores, orderSvc, notifier)
	processor := worker.NewProcessor(*stores, pipe, dispatcher, effects, notifier, workerCfg)
	scanner := worker.NewScanner(stores.Conversations, processor, workerCfg)

	sweeper := worker.NewSweeper(*stores, orderSvc, worker.SweepConfig{
		Schedule: cfg.Sweep.Schedule,
		Lookback: cfg.Sweep.LookbackDuration(),
		Limit:    cfg.Sweep.Limit,
	})
	go func() {
		if err := sweeper.Run(ctx); err != nil && ctx.Err() == nil {
			slog.Error("order sweep exited", "error", err)
		}
	}()

	slog.Info("worker starting", "version", Version)
	if err := scanner.Run(ctx); err != nil && ctx.Err() == nil {
		slog.Error("scanner exited", "error", err)
		os.Exit(1)
	}
}

func buildBroadcasters(cfg *config.Config) []notify.Broadcaster {
	var out []notify.Broadcaster
	if cfg.Notify.Telegram.Token != "" && cfg.Notify.Telegram.ChatID != 0 {
		tg, err := notify.NewTelegramBroadcaster(cfg.Notify.Telegram.Token, cfg.Notify.Telegram.ChatID)
		if err != nil {
			slog.Warn("telegram broadcaster disabled", "error", err)
		} else {
			out = append(out, tg)
			slog.Info("telegram notifications enabled")
		}
	}
	if cfg.Notify.Discord.Token != "" && cfg.Notify.Discord.ChannelID != "" {
		dc, err := notify.NewDiscordBroadcaster(cfg.Notify.Discord.Token, cfg.Notify.Discord.ChannelID)
		if err != nil {
			slog.Warn("discord broadcaster disabled", "error", err)
		} else {
			out = append(out, dc)
			slog.Info("discord notifications enabled")
		}
	}
	return out
}

func workerConfig(cfg *config.Config) worker.Config {
	wc := worker.DefaultConfig()
	a := cfg.Automation
	if a.ScanIntervalMs > 0 {
		wc.ScanInterval = time.Duration(a.ScanIntervalMs) * time.Millisecond
	}
	if a.BatchSize > 0 {
		wc.BatchSize = a.BatchSize
	}
	if a.DebounceSeconds > 0 {
		wc.DebounceSeconds = a.DebounceSeconds
	}
	if a.PostponeWindowSeconds > 0 {
		wc.PostponeWindowSeconds = a.PostponeWindowSeconds
	}
	if a.PostponeMax > 0 {
		wc.PostponeMax = a.PostponeMax
	}
	if a.AutoRetryMax > 0 {
		wc.AutoRetryMax = a.AutoRetryMax
	}
	if a.ConfidenceThreshold > 0 {
		wc.ConfidenceThreshold = a.ConfidenceThreshold
	}
	if a.GuardWindowSeconds > 0 {
		wc.GuardWindow = time.Duration(a.GuardWindowSeconds) * time.Second
	}
	return wc
}
