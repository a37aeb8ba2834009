package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLocalStorage(t *testing.T) {
	tmpDir := t.TempDir()
	storage, err := NewLocalStorage(tmpDir)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	ctx := context.Background()

	t.Run("PutAndGet", func(t *testing.T) {
		content := []byte("jpeg bytes")
		if err := storage.Put(ctx, "frame_sets/abc/frames/frame_0.jpg", content, "image/jpeg"); err != nil {
			t.Fatalf("Failed to put object: %v", err)
		}

		savedPath := filepath.Join(tmpDir, "frame_sets", "abc", "frames", "frame_0.jpg")
		if _, err := os.Stat(savedPath); os.IsNotExist(err) {
			t.Errorf("Object was not saved to expected location: %s", savedPath)
		}

		got, err := storage.Get(ctx, "frame_sets/abc/frames/frame_0.jpg")
		if err != nil {
			t.Fatalf("Failed to get object: %v", err)
		}
		if string(got) != string(content) {
			t.Errorf("Object content mismatch: %q", got)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		_, err := storage.Get(ctx, "frame_sets/missing/meta.json")
		if err != ErrObjectNotFound {
			t.Errorf("Expected ErrObjectNotFound, got %v", err)
		}
	})

	t.Run("JSONRoundTrip", func(t *testing.T) {
		in := map[string]int{"num_frames": 3}
		if err := PutJSON(ctx, storage, "frame_sets/json/meta.json", in); err != nil {
			t.Fatalf("Failed to put json: %v", err)
		}
		var out map[string]int
		if err := GetJSON(ctx, storage, "frame_sets/json/meta.json", &out); err != nil {
			t.Fatalf("Failed to get json: %v", err)
		}
		if out["num_frames"] != 3 {
			t.Errorf("Expected num_frames 3, got %d", out["num_frames"])
		}
	})

	t.Run("PutFile", func(t *testing.T) {
		src := filepath.Join(t.TempDir(), "clip.mp4")
		if err := os.WriteFile(src, []byte("fake mp4"), 0644); err != nil {
			t.Fatalf("Failed to create source file: %v", err)
		}
		if err := storage.PutFile(ctx, "frame_sets/file/video.mp4", src, "video/mp4"); err != nil {
			t.Fatalf("Failed to put file: %v", err)
		}
		ok, err := storage.Exists(ctx, "frame_sets/file/video.mp4")
		if err != nil || !ok {
			t.Errorf("Expected uploaded file to exist, got %v, %v", ok, err)
		}
	})

	t.Run("ListAndDeletePrefix", func(t *testing.T) {
		for _, key := range []string{
			"frame_sets/del/meta.json",
			"frame_sets/del/frames/frame_0.jpg",
			"frame_sets/del/frames/frame_1.jpg",
			"frame_sets/keep/meta.json",
		} {
			if err := storage.Put(ctx, key, []byte("x"), "application/octet-stream"); err != nil {
				t.Fatalf("Failed to put %s: %v", key, err)
			}
		}

		keys, err := storage.List(ctx, "frame_sets/del/")
		if err != nil {
			t.Fatalf("Failed to list: %v", err)
		}
		if len(keys) != 3 {
			t.Errorf("Expected 3 keys, got %v", keys)
		}

		if err := storage.DeletePrefix(ctx, "frame_sets/del/"); err != nil {
			t.Fatalf("Failed to delete prefix: %v", err)
		}

		keys, _ = storage.List(ctx, "frame_sets/del/")
		if len(keys) != 0 {
			t.Errorf("Expected prefix to be empty, got %v", keys)
		}
		if ok, _ := storage.Exists(ctx, "frame_sets/keep/meta.json"); !ok {
			t.Errorf("Object outside the prefix was deleted")
		}
	})

	t.Run("PathTraversalPrevention", func(t *testing.T) {
		_, err := storage.Get(ctx, "../../../etc/passwd")
		if err == nil {
			t.Errorf("Path traversal was not prevented")
		}

		err = storage.Put(ctx, "../../../tmp/evil", []byte("x"), "text/plain")
		if err == nil {
			t.Errorf("Path traversal was not prevented in put")
		}
	})
}
