package api

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcminio "github.com/testcontainers/testcontainers-go/modules/minio"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kdimtricp/poseannotator/internal/database"
	"github.com/kdimtricp/poseannotator/internal/models"
	"github.com/kdimtricp/poseannotator/internal/storage"
)

// TestFrameSetLifecycle_PostgresMinio runs the upload, annotate and delete
// flow against real postgres and S3-compatible backends.
func TestFrameSetLifecycle_PostgresMinio(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pg, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("poseannotator_test"),
		postgres.WithUsername("poseannotator_test"),
		postgres.WithPassword("poseannotator_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { pg.Terminate(context.Background()) })

	dsn, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := database.NewDB(database.Config{Type: "postgres", URL: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.RunMigrations(filepath.Join("..", "..", "migrations"), nil))

	mc, err := tcminio.Run(ctx,
		"minio/minio:RELEASE.2024-01-16T16-07-38Z",
		tcminio.WithUsername("minioadmin"),
		tcminio.WithPassword("minioadmin"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { mc.Terminate(context.Background()) })

	endpoint, err := mc.ConnectionString(ctx)
	require.NoError(t, err)

	store, err := storage.NewMinioStorage(storage.MinioConfig{
		Endpoint:  endpoint,
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Bucket:    "frame-sets",
	})
	require.NoError(t, err)
	require.NoError(t, store.EnsureBucket(ctx))

	s := newTestServerWith(t, db, store)
	fs := s.createFrameSet(t, 3)

	keys, err := store.List(ctx, models.FrameSetPrefix(fs.FrameSetID))
	require.NoError(t, err)
	assert.Len(t, keys, 4, "three frames and meta.json")

	resp := s.postJSON(t, "/annotations/save", map[string]any{
		"frame_set_id": fs.FrameSetID,
		"video_id":     fs.VideoID,
		"annotations": map[string]any{
			"0": map[string]any{"nose": map[string]any{"x": 1, "y": 2, "not_visible": false}},
		},
	})
	require.Equal(t, 200, resp.StatusCode)

	resp = s.get(t, "/annotations/sessions")
	require.Equal(t, 200, resp.StatusCode)
	sessions := decode[map[string]any](t, resp)["sessions"].([]any)
	require.Len(t, sessions, 1)
	assert.Equal(t, 33.33, sessions[0].(map[string]any)["progress_percentage"])

	require.Equal(t, 200, s.delete(t, "/annotations/session/"+fs.FrameSetID).StatusCode)

	keys, err = store.List(ctx, models.FrameSetPrefix(fs.FrameSetID))
	require.NoError(t, err)
	assert.Empty(t, keys)
}
