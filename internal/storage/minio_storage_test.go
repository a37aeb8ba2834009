package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcminio "github.com/testcontainers/testcontainers-go/modules/minio"
)

func TestMinioStorage(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping minio integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	container, err := tcminio.Run(ctx,
		"minio/minio:RELEASE.2024-01-16T16-07-38Z",
		tcminio.WithUsername("minioadmin"),
		tcminio.WithPassword("minioadmin"),
	)
	require.NoError(t, err)
	defer container.Terminate(ctx)

	endpoint, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	s, err := NewMinioStorage(MinioConfig{
		Endpoint:  endpoint,
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Bucket:    "pose-annotator-test",
	})
	require.NoError(t, err)
	require.NoError(t, s.EnsureBucket(ctx))

	require.NoError(t, s.Put(ctx, "frame_sets/a/frames/frame_0.jpg", []byte("img0"), "image/jpeg"))
	require.NoError(t, s.Put(ctx, "frame_sets/a/frames/frame_1.jpg", []byte("img1"), "image/jpeg"))
	require.NoError(t, PutJSON(ctx, s, "frame_sets/a/meta.json", map[string]string{"frame_set_id": "a"}))
	require.NoError(t, s.Put(ctx, "frame_sets/b/meta.json", []byte("{}"), "application/json"))

	data, err := s.Get(ctx, "frame_sets/a/frames/frame_1.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("img1"), data)

	var meta map[string]string
	require.NoError(t, GetJSON(ctx, s, "frame_sets/a/meta.json", &meta))
	assert.Equal(t, "a", meta["frame_set_id"])

	_, err = s.Get(ctx, "frame_sets/missing/meta.json")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	ok, err := s.Exists(ctx, "frame_sets/a/meta.json")
	require.NoError(t, err)
	assert.True(t, ok)

	keys, err := s.List(ctx, "frame_sets/a/")
	require.NoError(t, err)
	assert.Len(t, keys, 3)

	require.NoError(t, s.DeletePrefix(ctx, "frame_sets/a/"))

	keys, err = s.List(ctx, "frame_sets/a/")
	require.NoError(t, err)
	assert.Empty(t, keys)

	ok, err = s.Exists(ctx, "frame_sets/b/meta.json")
	require.NoError(t, err)
	assert.True(t, ok)
}
