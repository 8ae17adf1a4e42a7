package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/Anykei/telegram-ha-bot/internal/config"
	"github.com/Anykei/telegram-ha-bot/internal/device"
	"github.com/Anykei/telegram-ha-bot/internal/fanout"
	"github.com/Anykei/telegram-ha-bot/internal/ha"
	"github.com/Anykei/telegram-ha-bot/internal/maintenance"
	"github.com/Anykei/telegram-ha-bot/internal/metrics"
	"github.com/Anykei/telegram-ha-bot/internal/render"
	"github.com/Anykei/telegram-ha-bot/internal/router"
	"github.com/Anykei/telegram-ha-bot/internal/screens"
	"github.com/Anykei/telegram-ha-bot/internal/session"
	"github.com/Anykei/telegram-ha-bot/internal/store"
	"github.com/Anykei/telegram-ha-bot/internal/telegram"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (optional; env vars work alone)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}
	setupLogging(cfg.LogLevel)

	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		slog.Error("db open failed", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	repo, err := store.New(db)
	if err != nil {
		slog.Error("db migrate failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := ha.NewClient(cfg.HAURL, cfg.HAToken)

	// Best effort: the bot starts on the last known registry if the hub is
	// down right now.
	syncCtx, syncCancel := context.WithTimeout(ctx, 30*time.Second)
	if err := device.SyncRegistry(syncCtx, repo, hub); err != nil {
		slog.Warn("startup registry sync failed", "error", err)
	}
	syncCancel()

	bot, err := telegram.New(cfg.TelegramToken, cfg.NotificationTTL)
	if err != nil {
		slog.Error("telegram connect failed", "error", err)
		os.Exit(1)
	}

	// Sessions restore before any producer starts, so the first event can
	// already find its watchers.
	sessions := session.NewStore(repo)
	rows, err := repo.Sessions(ctx)
	if err != nil {
		slog.Error("session restore failed", "error", err)
		os.Exit(1)
	}
	restored := make(map[int64]session.Session, len(rows))
	for _, row := range rows {
		restored[row.UserID] = session.Session{LastMessageID: row.MessageID, Context: row.Context}
	}
	sessions.Restore(restored)
	slog.Info("sessions restored", "count", sessions.Len())

	executor := device.NewExecutor(hub)
	builder := screens.NewBuilder(repo, hub)
	rtr := router.New(repo, builder, executor, cfg.AlertWindow)
	reconciler := render.NewReconciler(bot, sessions)
	isAdmin := func(userID int64) bool { return userID == cfg.RootUser }
	refresher := render.NewRefresher(rtr, sessions, reconciler, isAdmin)

	engine := fanout.New(repo, sessions, refresher, bot, cfg.EventQueueCapacity)
	listener := ha.NewListener(cfg.HAURL, cfg.HAToken, engine)
	loop := telegram.NewLoop(bot, repo, sessions, rtr, reconciler, cfg.RootUser)
	maint := maintenance.NewLoop(repo, sessions, refresher, cfg.MaintenanceInterval, cfg.EventRetention)

	var wg sync.WaitGroup
	for name, run := range map[string]func(context.Context){
		"fanout":      engine.Run,
		"hub-stream":  listener.Run,
		"telegram":    loop.Run,
		"maintenance": maint.Run,
	} {
		wg.Add(1)
		go func(name string, run func(context.Context)) {
			defer wg.Done()
			slog.Info("worker started", "worker", name)
			run(ctx)
			slog.Info("worker stopped", "worker", name)
		}(name, run)
	}

	var backup *maintenance.Backup
	if cfg.BackupDir != "" && cfg.BackupSchedule != "" {
		backup = maintenance.NewBackup(repo, cfg.BackupDir)
		if err := backup.Start(cfg.BackupSchedule); err != nil {
			slog.Error("backup schedule failed", "error", err)
			os.Exit(1)
		}
	}

	adminSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("admin server listening", "addr", adminSrv.Addr)
		if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("admin server error", "error", err)
			cancel()
		}
	}()

	stop := make(chan os.Signal, 2)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-stop:
		slog.Info("shutdown requested")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = adminSrv.Shutdown(shutdownCtx)
	if backup != nil {
		backup.Stop()
	}
	cancel()
	wg.Wait()
}

func setupLogging(level string) {
	lvl := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	h := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(h))
}
