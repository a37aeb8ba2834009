package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kdimtricp/poseannotator/internal/annotation"
	"github.com/kdimtricp/poseannotator/internal/api"
	"github.com/kdimtricp/poseannotator/internal/auth"
	"github.com/kdimtricp/poseannotator/internal/config"
	"github.com/kdimtricp/poseannotator/internal/database"
	"github.com/kdimtricp/poseannotator/internal/events"
	"github.com/kdimtricp/poseannotator/internal/frameset"
	"github.com/kdimtricp/poseannotator/internal/logger"
	"github.com/kdimtricp/poseannotator/internal/tracing"
	"github.com/kdimtricp/poseannotator/internal/video"
)

func main() {
	envFile := flag.String("env", ".env", "Path to an optional .env file")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	fatalOnErr(err, "load config")

	log, err := logger.New(cfg.LogLevel)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.JaegerEndpoint != "" {
		tp, err := tracing.InitTracer(ctx, cfg.JaegerEndpoint)
		if err != nil {
			log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
		} else {
			defer tp.Shutdown(context.Background())
		}
	}

	db, err := database.NewDB(cfg.Database())
	fatalOnErr(err, "connect to database")
	defer db.Close()

	fatalOnErr(db.RunMigrations(cfg.MigrationsPath, log), "run migrations")

	store, err := cfg.ObjectStore(ctx)
	fatalOnErr(err, "open object store")

	var publisher events.Publisher = events.Nop{}
	if cfg.RabbitMQURL != "" {
		rp, err := events.NewRabbitPublisher(cfg.RabbitMQURL, cfg.RabbitMQExchange)
		if err != nil {
			log.Warn("rabbitmq unavailable, events disabled", zap.Error(err))
		} else {
			defer rp.Close()
			publisher = rp
		}
	}

	ffmpeg, err := video.NewFFmpeg(log)
	fatalOnErr(err, "locate ffmpeg")

	cache := frameset.NewCache(store, cfg.CacheMaxEntries)
	gate := auth.NewGate(database.NewTokenRepo(db), log)

	app := &api.App{
		Builder: frameset.NewBuilder(store, cache, publisher, log, frameset.Config{
			MaxRenderHeight: cfg.MaxRenderHeight,
			JPEGQuality:     cfg.JPEGQuality,
		}),
		Cache:         cache,
		Storage:       store,
		Annotations:   annotation.NewManager(database.NewSessionRepo(db), cache, store, gate, publisher, log),
		Gate:          gate,
		Videos:        ffmpeg,
		Logger:        log,
		MaxUploadSize: cfg.MaxUploadSize,
		TempDir:       cfg.TempDir,
		FrontendURL:   cfg.FrontendURL,
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(app, cfg.CORSOrigin),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("server starting",
			zap.String("port", cfg.Port),
			zap.String("db_type", cfg.DBType),
			zap.String("storage_type", cfg.StorageType),
			zap.Int64("max_upload_size", cfg.MaxUploadSize),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", zap.Error(err))
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}
