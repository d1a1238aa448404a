package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"cloak/server/internal/audit"
	"cloak/server/internal/auth"
	"cloak/server/internal/config"
	"cloak/server/internal/core"
	"cloak/server/internal/history"
	"cloak/server/internal/httpapi"
	"cloak/server/internal/relaystats"
	"cloak/server/internal/store"
	"cloak/server/internal/ws"

	"github.com/redis/go-redis/v9"
)

// Version is injected at build time with -ldflags.
var Version = "0.1.0-dev"

const statsInterval = time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	addr := flag.String("addr", cfg.Addr, "HTTP listen address")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	debug := flag.Bool("debug", false, "Enable debug logging (auto-enabled for dev builds)")
	flag.Parse()

	// Auto-enable debug logging for dev builds; override with -debug flag.
	level := slog.LevelInfo
	if *debug || strings.Contains(Version, "dev") {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("starting relay", "version", Version, "addr", *addr, "db", *dbPath, "history", cfg.HistoryBackend)

	sqliteStore, err := store.Open(*dbPath)
	if err != nil {
		slog.Error("open sqlite store", "err", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := sqliteStore.Close(); closeErr != nil {
			slog.Error("close sqlite store", "err", closeErr)
		}
	}()

	var log history.Log
	switch cfg.HistoryBackend {
	case config.HistorySQLite:
		log = history.NewSQLiteLog(sqliteStore, cfg.HistoryCapacity)
	case config.HistoryRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer client.Close()
		log = history.NewRedisLog(client, "cloak:history:", cfg.HistoryCapacity)
	default:
		log = history.NewMemoryLog(cfg.HistoryCapacity)
	}

	authSvc := auth.New(sqliteStore, cfg.JWTSecret, 0)
	notifier := audit.NewNotifier(audit.SlogSink{}, cfg.AuditQueue)
	defer notifier.Close()

	stats := relaystats.NewCounters()
	router := core.NewRouter(
		core.NewRoomDirectory(),
		core.NewRegistry(),
		core.NewModerationStore(),
		log,
		authSvc,
		notifier,
		stats,
		core.Config{AnnounceJoins: cfg.AnnounceJoins},
	)

	server := httpapi.New(router, authSvc, ws.Options{
		RequireRegistration: cfg.RequireRegistration,
		SendBuffer:          cfg.SendBuffer,
	}, cfg.RootUsers)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go relaystats.Run(ctx, stats, statsInterval)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		slog.Info("received interrupt, shutting down")
		cancel()
	}()

	slog.Info("listening", "addr", *addr)
	if err := server.Run(ctx, *addr); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
	slog.Info("relay stopped")
}
