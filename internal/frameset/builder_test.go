package frameset

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kdimtricp/poseannotator/internal/events"
	"github.com/kdimtricp/poseannotator/internal/events/eventstest"
	"github.com/kdimtricp/poseannotator/internal/models"
	"github.com/kdimtricp/poseannotator/internal/storage"
	"github.com/kdimtricp/poseannotator/internal/video"
)

type fakeSource struct {
	info    video.Info
	failing map[int]bool
	calls   []int
}

func (f *fakeSource) Info() video.Info { return f.info }

func (f *fakeSource) Frame(ctx context.Context, index int) (image.Image, error) {
	f.calls = append(f.calls, index)
	if f.failing[index] {
		return nil, fmt.Errorf("corrupt frame %d", index)
	}
	return image.NewRGBA(image.Rect(0, 0, f.info.Width, f.info.Height)), nil
}

func (f *fakeSource) Close() error { return nil }

// failingStore fails every write whose key contains match.
type failingStore struct {
	storage.ObjectStore
	match string
}

func (s *failingStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if strings.Contains(key, s.match) {
		return errors.New("bucket unavailable")
	}
	return s.ObjectStore.Put(ctx, key, data, contentType)
}

func (s *failingStore) PutFile(ctx context.Context, key string, path string, contentType string) error {
	if strings.Contains(key, s.match) {
		return errors.New("bucket unavailable")
	}
	return s.ObjectStore.PutFile(ctx, key, path, contentType)
}

func newTestBuilder(t *testing.T, store storage.ObjectStore) (*Builder, *Cache, *eventstest.Recorder) {
	t.Helper()
	cache := NewCache(store, 0)
	rec := &eventstest.Recorder{}
	b := NewBuilder(store, cache, rec, zap.NewNop(), Config{
		MaxRenderHeight: 72,
		JPEGQuality:     80,
		Rand:            rand.New(rand.NewPCG(11, 13)),
	})
	return b, cache, rec
}

func newLocalStore(t *testing.T) *storage.LocalStorage {
	t.Helper()
	s, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestBuilder_Build(t *testing.T) {
	store := newLocalStore(t)
	b, cache, rec := newTestBuilder(t, store)
	ctx := context.Background()

	src := &fakeSource{info: video.Info{FrameCount: 300, FPS: 30, Width: 192, Height: 108}}

	desc, err := b.Build(ctx, src, BuildOptions{VideoID: "squat", SampleCount: 10})
	require.NoError(t, err)

	assert.Len(t, desc.ID, 32)
	assert.Equal(t, "squat", desc.VideoID)
	assert.Equal(t, 300, desc.TotalFrames)
	assert.Equal(t, 10, desc.SampleCount)
	assert.Len(t, desc.FrameNumbers, 10)
	require.Len(t, desc.Frames, 10)

	for pos, f := range desc.Frames {
		assert.Equal(t, pos, f.Position)
		assert.Equal(t, desc.FrameNumbers[pos], f.FrameNum)
		assert.Equal(t, models.FrameKey(desc.ID, pos), f.Key)
		assert.Equal(t, 128, f.Width)
		assert.Equal(t, 72, f.Height)

		ok, err := store.Exists(ctx, f.Key)
		require.NoError(t, err)
		assert.True(t, ok, "frame %d not uploaded", pos)
	}

	// Frames are decoded in ascending native order.
	assert.Equal(t, desc.FrameNumbers, src.calls)

	var stored models.FrameSetDescriptor
	require.NoError(t, storage.GetJSON(ctx, store, models.MetaKey(desc.ID), &stored))
	assert.Equal(t, desc.FrameNumbers, stored.FrameNumbers)
	assert.Equal(t, desc.Frames, stored.Frames)

	assert.Equal(t, 1, cache.Len())

	got := rec.Events()
	require.Len(t, got, 1)
	assert.Equal(t, events.FrameSetCreated, got[0].Type)
	assert.Equal(t, desc.ID, got[0].FrameSetID)
}

// cancellingSource cancels the caller's context after the first decoded
// frame and, like an exec'd decoder, refuses to decode once ctx is done.
type cancellingSource struct {
	*fakeSource
	cancel context.CancelFunc
}

func (c *cancellingSource) Frame(ctx context.Context, index int) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer c.cancel()
	return c.fakeSource.Frame(ctx, index)
}

func TestBuilder_Build_RunsToCompletionAfterCancel(t *testing.T) {
	store := newLocalStore(t)
	b, cache, _ := newTestBuilder(t, store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := &cancellingSource{
		fakeSource: &fakeSource{info: video.Info{FrameCount: 100, FPS: 25, Width: 64, Height: 48}},
		cancel:     cancel,
	}

	desc, err := b.Build(ctx, src, BuildOptions{VideoID: "clip", SampleCount: 5})
	require.NoError(t, err)
	require.Error(t, ctx.Err())
	assert.Len(t, desc.Frames, 5)

	ok, err := store.Exists(context.Background(), models.MetaKey(desc.ID))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, cache.Len())
}

func TestBuilder_Build_SampleCountCappedAtFrameCount(t *testing.T) {
	b, _, _ := newTestBuilder(t, newLocalStore(t))
	src := &fakeSource{info: video.Info{FrameCount: 4, FPS: 24, Width: 64, Height: 48}}

	desc, err := b.Build(context.Background(), src, BuildOptions{VideoID: "short", SampleCount: 50})
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1, 2, 3}, desc.FrameNumbers)
	assert.Equal(t, 4, desc.SampleCount)
	assert.Equal(t, 50, desc.RequestedCount)

	// Below the render cap the frame keeps its native size.
	assert.Equal(t, 64, desc.Frames[0].Width)
	assert.Equal(t, 48, desc.Frames[0].Height)
}

func TestBuilder_Build_InvalidInput(t *testing.T) {
	store := newLocalStore(t)
	b, _, _ := newTestBuilder(t, store)
	src := &fakeSource{info: video.Info{FrameCount: 100, Width: 64, Height: 48}}

	for _, n := range []int{0, -3} {
		_, err := b.Build(context.Background(), src, BuildOptions{SampleCount: n})
		assert.ErrorIs(t, err, models.ErrInvalidInput)
	}
	assert.Empty(t, src.calls)

	keys, err := store.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestBuilder_Build_EmptySource(t *testing.T) {
	b, _, _ := newTestBuilder(t, newLocalStore(t))
	src := &fakeSource{info: video.Info{FrameCount: 0}}

	_, err := b.Build(context.Background(), src, BuildOptions{SampleCount: 5})
	assert.ErrorIs(t, err, models.ErrEmptySource)
}

func TestBuilder_Build_SkipsFailedFrames(t *testing.T) {
	b, _, _ := newTestBuilder(t, newLocalStore(t))
	src := &fakeSource{
		info:    video.Info{FrameCount: 3, Width: 64, Height: 48},
		failing: map[int]bool{1: true},
	}

	desc, err := b.Build(context.Background(), src, BuildOptions{SampleCount: 3})
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1, 2}, desc.FrameNumbers)
	require.Len(t, desc.Frames, 2)
	assert.Equal(t, 0, desc.Frames[0].Position)
	assert.Equal(t, 2, desc.Frames[1].Position)
	assert.Equal(t, 2, desc.Frames[1].FrameNum)

	_, ok := desc.Frame(1)
	assert.False(t, ok)
}

func TestBuilder_Build_AllFramesFail(t *testing.T) {
	store := newLocalStore(t)
	b, cache, _ := newTestBuilder(t, store)
	src := &fakeSource{
		info:    video.Info{FrameCount: 2, Width: 64, Height: 48},
		failing: map[int]bool{0: true, 1: true},
	}

	_, err := b.Build(context.Background(), src, BuildOptions{SampleCount: 2})
	assert.ErrorIs(t, err, models.ErrExtractionFailed)
	assert.Equal(t, 0, cache.Len())

	keys, err := store.List(context.Background(), models.FrameSetsPrefix)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestBuilder_Build_UploadFailuresAreBestEffort(t *testing.T) {
	store := &failingStore{ObjectStore: newLocalStore(t), match: "frame_1.jpg"}
	b, _, _ := newTestBuilder(t, store)
	src := &fakeSource{info: video.Info{FrameCount: 3, Width: 64, Height: 48}}

	desc, err := b.Build(context.Background(), src, BuildOptions{SampleCount: 3})
	require.NoError(t, err)
	assert.Len(t, desc.Frames, 2)
}

func TestBuilder_Build_MetadataFailure(t *testing.T) {
	store := &failingStore{ObjectStore: newLocalStore(t), match: "meta.json"}
	b, cache, rec := newTestBuilder(t, store)
	src := &fakeSource{info: video.Info{FrameCount: 10, Width: 64, Height: 48}}

	_, err := b.Build(context.Background(), src, BuildOptions{SampleCount: 2})
	assert.ErrorIs(t, err, models.ErrStorageFailure)
	assert.Equal(t, 0, cache.Len())
	assert.Empty(t, rec.Events())
}

func TestBuilder_Build_RetainSource(t *testing.T) {
	store := newLocalStore(t)
	b, _, _ := newTestBuilder(t, store)
	src := &fakeSource{info: video.Info{FrameCount: 10, Width: 64, Height: 48}}

	path := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(path, []byte("fake mp4"), 0644))

	desc, err := b.Build(context.Background(), src, BuildOptions{
		SampleCount:  2,
		RetainSource: true,
		SourcePath:   path,
	})
	require.NoError(t, err)
	assert.Equal(t, models.SourceVideoKey(desc.ID, ".mp4"), desc.SourceKey)

	ok, err := store.Exists(context.Background(), desc.SourceKey)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBuilder_Build_RetainSourceFailureIsNonFatal(t *testing.T) {
	store := &failingStore{ObjectStore: newLocalStore(t), match: "/video"}
	b, _, _ := newTestBuilder(t, store)
	src := &fakeSource{info: video.Info{FrameCount: 10, Width: 64, Height: 48}}

	path := filepath.Join(t.TempDir(), "clip.mov")
	require.NoError(t, os.WriteFile(path, []byte("fake mov"), 0644))

	desc, err := b.Build(context.Background(), src, BuildOptions{
		SampleCount:  2,
		RetainSource: true,
		SourcePath:   path,
	})
	require.NoError(t, err)
	assert.Empty(t, desc.SourceKey)
}
