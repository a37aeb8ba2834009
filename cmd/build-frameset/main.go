// Command build-frameset samples frames from a local video file into the
// configured object store, without going through the HTTP upload.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/kdimtricp/poseannotator/internal/config"
	"github.com/kdimtricp/poseannotator/internal/events"
	"github.com/kdimtricp/poseannotator/internal/frameset"
	"github.com/kdimtricp/poseannotator/internal/logger"
	"github.com/kdimtricp/poseannotator/internal/video"
)

func main() {
	var (
		envFile   = flag.String("env", ".env", "Path to an optional .env file")
		path      = flag.String("video", "", "Video file to sample")
		numFrames = flag.Int("n", 10, "Number of frames to sample")
		keep      = flag.Bool("keep-video", false, "Upload the source video next to the frames")
	)
	flag.Parse()

	if *path == "" {
		fmt.Fprintln(os.Stderr, "Please provide a video file with -video")
		os.Exit(2)
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load config:", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to init logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx := context.Background()

	store, err := cfg.ObjectStore(ctx)
	if err != nil {
		log.Fatal("failed to open object store", zap.Error(err))
	}

	ffmpeg, err := video.NewFFmpeg(log)
	if err != nil {
		log.Fatal("failed to locate ffmpeg", zap.Error(err))
	}

	src, err := ffmpeg.Open(ctx, *path)
	if err != nil {
		log.Fatal("failed to open video", zap.Error(err))
	}
	defer src.Close()

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

	builder := frameset.NewBuilder(store, frameset.NewCache(store, 1), publisher, log, frameset.Config{
		MaxRenderHeight: cfg.MaxRenderHeight,
		JPEGQuality:     cfg.JPEGQuality,
	})

	name := filepath.Base(*path)
	desc, err := builder.Build(ctx, src, frameset.BuildOptions{
		VideoID:      strings.TrimSuffix(name, filepath.Ext(name)),
		SampleCount:  *numFrames,
		RetainSource: *keep,
		SourcePath:   *path,
	})
	if err != nil {
		log.Fatal("failed to build frame set", zap.Error(err))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(desc)
}
