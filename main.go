package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"audiodigest/internal/api"
	"audiodigest/internal/config"
	"audiodigest/internal/pipeline"
	"audiodigest/internal/redis"
	"audiodigest/internal/service/engine"
	"audiodigest/internal/service/upload"
	"audiodigest/internal/storage"
	"audiodigest/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {
	cfgPath := os.Getenv("AUDIODIGEST_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fatal("load config", err)
	}
	slog.SetDefault(newLogger(cfg.BasicConfig.LogLevel, cfg.BasicConfig.LogFormat))

	dbType := os.Getenv("AUDIODIGEST_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	slog.Info("opening database", "type", dbType)
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		fatal("open database", err)
	}
	defer db.Close()
	if err := storage.Migrate(db, dbType); err != nil {
		fatal("migrate database", err)
	}

	rdb, err := redis.NewRedisClient(cfg)
	if err != nil {
		fatal("create redis client", err)
	}
	defer rdb.Close()

	uploads, err := upload.NewService(db, cfg.BasicConfig.UploadDir)
	if err != nil {
		fatal("init upload service", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	uploads.StartCleaner(ctx,
		time.Duration(cfg.BasicConfig.UploadTTL)*time.Minute,
		time.Duration(cfg.BasicConfig.CleanInterval)*time.Minute,
	)

	policy, err := engine.PolicyByName(cfg.Engines.Summarizer.LengthPolicy)
	if err != nil {
		fatal("select length policy", err)
	}
	p := pipeline.New(
		engine.NewTranscription(cfg),
		engine.NewSummarization(cfg),
		policy,
		uploads,
		slog.Default(),
		pipeline.Options{CleanupOnFailure: cfg.BasicConfig.CleanupOnFailure},
	)

	workers := worker.NewManager(p, rdb, worker.DispatcherConfig{
		MinWorkers:  cfg.BasicConfig.MinWorkers,
		MaxWorkers:  cfg.BasicConfig.MaxWorkers,
		QueueSize:   cfg.BasicConfig.QueueSize,
		IdleTimeout: time.Duration(cfg.BasicConfig.WorkerIdleTimeout) * time.Minute,
	})
	defer workers.Close()

	handlers := api.NewHandler(uploads, workers, int64(cfg.BasicConfig.MaxUploadMB)<<20)
	router := gin.Default()
	handlers.RegisterRoutes(router)

	srv := &http.Server{Addr: cfg.BasicConfig.ServerAddress, Handler: router}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown", "error", err)
		}
	}()

	slog.Info("server listening", "addr", srv.Addr,
		"transcriber", cfg.Engines.Transcriber.Kind,
		"summarizer", cfg.Engines.Summarizer.Provider)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fatal("server stopped", err)
	}
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}
