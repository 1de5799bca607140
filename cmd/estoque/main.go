package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/subosito/gotenv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/estoque-bot/internal/bot"
	"github.com/Spok95/estoque-bot/internal/config"
	"github.com/Spok95/estoque-bot/internal/domain/debtors"
	"github.com/Spok95/estoque-bot/internal/domain/inventory"
	httpx "github.com/Spok95/estoque-bot/internal/infra/http"
	"github.com/Spok95/estoque-bot/internal/infra/logger"
	"github.com/Spok95/estoque-bot/internal/notify"
	"github.com/Spok95/estoque-bot/internal/store"
	"github.com/Spok95/estoque-bot/internal/transfer"
)

func main() {
	_ = gotenv.Load()

	cfg, err := config.Load("config/example.yaml")
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.App.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		log.Error("store open failed", "path", cfg.Store.Path, "err", err)
		return
	}
	defer func() { _ = db.Close() }()
	log.Info("store opened", "path", cfg.Store.Path)

	inv, err := inventory.NewProvider(db, log)
	if err != nil {
		log.Error("inventory provider failed", "err", err)
		return
	}
	defer inv.Close()

	deb, err := debtors.NewProvider(db, log)
	if err != nil {
		log.Error("debtors provider failed", "err", err)
		return
	}
	defer deb.Close()

	api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		log.Error("telegram init failed", "err", err)
		return
	}
	log.Info("telegram connected", "bot", api.Self.UserName)

	sched := notify.NewScheduler(db.KV(), notify.NewTelegramSender(api, cfg.Telegram.AdminChatID), log)
	if err := sched.EnsureDefault(cfg.Notify.EnabledDefault); err != nil {
		log.Error("seed notification preference failed", "err", err)
		return
	}

	tr := transfer.NewService(inv, deb, log)

	srv := httpx.New(cfg.HTTP.Addr, cfg.Metrics.Enabled)
	go func() {
		if err := srv.Start(); err != nil && err.Error() != "http: Server closed" {
			log.Error("http server error", "err", err)
		}
	}()
	log.Info("HTTP server started", "addr", cfg.HTTP.Addr)

	interval := time.Duration(cfg.Notify.IntervalMinutes) * time.Minute
	go sched.Run(ctx, interval, inv, deb, cfg.Notify.LowStockThreshold)

	b := bot.New(api, log, inv, deb, sched, tr, cfg.Telegram.AdminChatID, cfg.Notify.LowStockThreshold)
	go func() {
		if err := b.Run(ctx, 30); err != nil && ctx.Err() == nil {
			log.Error("bot stopped", "err", err)
		}
	}()
	log.Info("bot started")

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Info("graceful shutdown complete")
}
