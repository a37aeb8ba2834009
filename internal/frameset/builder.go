package frameset

import (
	"context"
	"fmt"
	"math/rand/v2"
	"mime"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/kdimtricp/poseannotator/internal/events"
	"github.com/kdimtricp/poseannotator/internal/metrics"
	"github.com/kdimtricp/poseannotator/internal/models"
	"github.com/kdimtricp/poseannotator/internal/storage"
	"github.com/kdimtricp/poseannotator/internal/tracing"
	"github.com/kdimtricp/poseannotator/internal/video"
)

type Builder struct {
	store     storage.ObjectStore
	cache     *Cache
	publisher events.Publisher
	logger    *zap.Logger
	maxHeight int
	quality   int

	mu  sync.Mutex
	rng *rand.Rand
}

type Config struct {
	MaxRenderHeight int
	JPEGQuality     int
	// Rand overrides the sampling source, mainly for deterministic tests.
	Rand *rand.Rand
}

type BuildOptions struct {
	VideoID     string
	SampleCount int
	// RetainSource uploads the file at SourcePath next to the frames.
	RetainSource bool
	SourcePath   string
}

func NewBuilder(store storage.ObjectStore, cache *Cache, publisher events.Publisher, logger *zap.Logger, cfg Config) *Builder {
	if cfg.MaxRenderHeight == 0 {
		cfg.MaxRenderHeight = video.DefaultMaxHeight
	}
	if cfg.JPEGQuality == 0 {
		cfg.JPEGQuality = 85
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if publisher == nil {
		publisher = events.Nop{}
	}

	return &Builder{
		store:     store,
		cache:     cache,
		publisher: publisher,
		logger:    logger,
		maxHeight: cfg.MaxRenderHeight,
		quality:   cfg.JPEGQuality,
		rng:       cfg.Rand,
	}
}

func (b *Builder) sample(total, n int) []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Sample(b.rng, total, n)
}

// Build samples frames from src, uploads each one as a JPEG and then
// persists the descriptor. The frame set exists only once its meta.json
// has been written. Cancelling ctx does not interrupt a build in progress.
func (b *Builder) Build(ctx context.Context, src video.Source, opts BuildOptions) (*models.FrameSetDescriptor, error) {
	ctx = context.WithoutCancel(ctx)
	ctx, span := tracing.Tracer("frameset").Start(ctx, "Builder.Build")
	defer span.End()

	if opts.SampleCount <= 0 {
		return nil, fmt.Errorf("%w: num_frames must be greater than 0", models.ErrInvalidInput)
	}

	info := src.Info()
	if info.FrameCount <= 0 {
		metrics.FrameSetsBuiltTotal.WithLabelValues("empty").Inc()
		return nil, models.ErrEmptySource
	}

	start := time.Now()
	frameSetID := models.NewFrameSetID()
	frameNumbers := b.sample(info.FrameCount, opts.SampleCount)

	span.SetAttributes(
		attribute.String("frame_set.id", frameSetID),
		attribute.Int("frame_set.total_frames", info.FrameCount),
		attribute.Int("frame_set.sample_count", len(frameNumbers)),
	)

	log := b.logger.With(zap.String("frame_set_id", frameSetID), zap.String("video_id", opts.VideoID))

	records, failures := b.renderFrames(ctx, src, frameSetID, frameNumbers, log)
	metrics.FrameSetBuildDuration.WithLabelValues("extract").Observe(time.Since(start).Seconds())

	if len(records) == 0 {
		span.SetStatus(codes.Error, "no frames extracted")
		metrics.FrameSetsBuiltTotal.WithLabelValues("extraction_failed").Inc()
		return nil, fmt.Errorf("%w (attempted %d frames)", models.ErrExtractionFailed, len(frameNumbers))
	}

	desc := &models.FrameSetDescriptor{
		ID:             frameSetID,
		VideoID:        opts.VideoID,
		FPS:            info.FPS,
		Width:          info.Width,
		Height:         info.Height,
		TotalFrames:    info.FrameCount,
		SampleCount:    len(frameNumbers),
		RequestedCount: opts.SampleCount,
		FrameNumbers:   frameNumbers,
		Frames:         records,
	}

	if opts.RetainSource && opts.SourcePath != "" {
		ext := strings.ToLower(filepath.Ext(opts.SourcePath))
		key := models.SourceVideoKey(frameSetID, ext)
		contentType := mime.TypeByExtension(ext)
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		if err := b.store.PutFile(ctx, key, opts.SourcePath, contentType); err != nil {
			log.Warn("failed to upload original video", zap.Error(err))
		} else {
			desc.SourceKey = key
		}
	}

	if err := storage.PutJSON(ctx, b.store, models.MetaKey(frameSetID), desc); err != nil {
		span.SetStatus(codes.Error, "metadata upload failed")
		metrics.FrameSetsBuiltTotal.WithLabelValues("storage_failed").Inc()
		return nil, fmt.Errorf("%w: upload metadata: %v", models.ErrStorageFailure, err)
	}

	b.cache.Put(desc)

	metrics.FrameSetsBuiltTotal.WithLabelValues("created").Inc()
	metrics.FrameSetBuildDuration.WithLabelValues("total").Observe(time.Since(start).Seconds())

	if err := b.publisher.Publish(ctx, events.Event{
		Type:       events.FrameSetCreated,
		FrameSetID: frameSetID,
		VideoID:    opts.VideoID,
		FrameCount: len(records),
		OccurredAt: time.Now().UTC(),
	}); err != nil {
		log.Warn("failed to publish frame set event", zap.Error(err))
	}

	log.Info("frame set created",
		zap.Int("total_frames", info.FrameCount),
		zap.Int("sampled", len(frameNumbers)),
		zap.Int("stored", len(records)),
		zap.Int("failed", failures),
	)

	return desc, nil
}

// renderFrames extracts, resizes and uploads every sampled frame in order.
// A failing frame is logged and skipped; the sample position of the others
// stays equal to their rank in frameNumbers.
func (b *Builder) renderFrames(ctx context.Context, src video.Source, frameSetID string, frameNumbers []int, log *zap.Logger) ([]models.FrameRecord, int) {
	records := make([]models.FrameRecord, 0, len(frameNumbers))
	failures := 0

	for pos, frameNum := range frameNumbers {
		rec, err := b.renderFrame(ctx, src, frameSetID, pos, frameNum)
		if err != nil {
			failures++
			metrics.FramesFailedTotal.Inc()
			log.Warn("skipping frame", zap.Int("frame_num", frameNum), zap.Int("frame_idx", pos), zap.Error(err))
			continue
		}
		metrics.FramesExtractedTotal.Inc()
		records = append(records, rec)
	}

	return records, failures
}

func (b *Builder) renderFrame(ctx context.Context, src video.Source, frameSetID string, pos, frameNum int) (models.FrameRecord, error) {
	img, err := src.Frame(ctx, frameNum)
	if err != nil {
		return models.FrameRecord{}, err
	}

	img = video.Fit(img, b.maxHeight)
	data, err := video.EncodeJPEG(img, b.quality)
	if err != nil {
		return models.FrameRecord{}, err
	}

	key := models.FrameKey(frameSetID, pos)
	if err := b.store.Put(ctx, key, data, "image/jpeg"); err != nil {
		return models.FrameRecord{}, fmt.Errorf("upload frame: %w", err)
	}

	bounds := img.Bounds()
	return models.FrameRecord{
		Position: pos,
		FrameNum: frameNum,
		Key:      key,
		Width:    bounds.Dx(),
		Height:   bounds.Dy(),
	}, nil
}
