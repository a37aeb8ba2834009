package api

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kdimtricp/poseannotator/internal/frameset"
	"github.com/kdimtricp/poseannotator/internal/models"
	"github.com/kdimtricp/poseannotator/internal/storage"
)

var allowedVideoExtensions = map[string]bool{
	".mp4": true,
	".avi": true,
	".mov": true,
	".mkv": true,
}

const multipartMemory = 32 << 20

type frameResponse struct {
	FrameSetID   string `json:"frame_set_id,omitempty"`
	FrameCount   int    `json:"frame_count,omitempty"`
	FrameIdx     int    `json:"frame_idx"`
	FrameNum     int    `json:"frame_num"`
	FrameImg     string `json:"frame_img"`
	RenderWidth  int    `json:"render_width"`
	RenderHeight int    `json:"render_height"`
}

type frameSetResponse struct {
	VideoID      string         `json:"video_id"`
	FrameSetID   string         `json:"frame_set_id"`
	FPS          float64        `json:"fps"`
	OrigWidth    int            `json:"orig_width"`
	OrigHeight   int            `json:"orig_height"`
	RenderWidth  int            `json:"render_width"`
	RenderHeight int            `json:"render_height"`
	TotalFrames  int            `json:"total_frames"`
	Count        int            `json:"count"`
	FrameNumbers []int          `json:"frame_numbers"`
	FirstFrame   *frameResponse `json:"first_frame,omitempty"`
}

func newFrameSetResponse(desc *models.FrameSetDescriptor) frameSetResponse {
	rw, rh := desc.RenderSize()
	return frameSetResponse{
		VideoID:      desc.VideoID,
		FrameSetID:   desc.ID,
		FPS:          desc.FPS,
		OrigWidth:    desc.Width,
		OrigHeight:   desc.Height,
		RenderWidth:  rw,
		RenderHeight: rh,
		TotalFrames:  desc.TotalFrames,
		Count:        desc.Count(),
		FrameNumbers: desc.FrameNumbers,
	}
}

func formBool(r *http.Request, key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(r.FormValue(key)))
	if v == "" {
		return def
	}
	return v == "1" || v == "true" || v == "yes"
}

// CreateFrameSetHandler accepts a multipart video upload and builds a frame
// set from it.
func (app *App) CreateFrameSetHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, app.MaxUploadSize)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		app.badRequest(w, "Invalid upload: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("video")
	if err != nil {
		app.badRequest(w, "No video file provided")
		return
	}
	defer file.Close()

	filename := filepath.Base(header.Filename)
	if filename == "" || filename == "." || filename == "/" {
		app.badRequest(w, "No file selected")
		return
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedVideoExtensions[ext] {
		app.badRequest(w, "Invalid video file type")
		return
	}

	numFrames, err := strconv.Atoi(r.FormValue("num_frames"))
	if err != nil || numFrames <= 0 {
		app.badRequest(w, "num_frames must be greater than 0")
		return
	}
	getFirstFrame := formBool(r, "get_first_frame", true)
	keepVideo := formBool(r, "keep_video", false)
	videoID := strings.TrimSuffix(filename, filepath.Ext(filename))

	tmp, err := os.CreateTemp(app.TempDir, "upload-*"+ext)
	if err != nil {
		app.writeError(w, r, fmt.Errorf("%w: create temp file: %v", models.ErrStorageFailure, err))
		return
	}
	tmpPath := tmp.Name()
	defer func() {
		if err := os.Remove(tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			app.Logger.Warn("failed to delete temp file", zap.String("path", tmpPath), zap.Error(err))
		}
	}()

	_, copyErr := io.Copy(tmp, file)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		app.writeError(w, r, fmt.Errorf("%w: save upload: %v", models.ErrStorageFailure, errors.Join(copyErr, closeErr)))
		return
	}

	src, err := app.Videos.Open(r.Context(), tmpPath)
	if err != nil {
		app.Logger.Warn("failed to open uploaded video", zap.String("video_id", videoID), zap.Error(err))
		app.writeError(w, r, fmt.Errorf("%w: %v", models.ErrEmptySource, err))
		return
	}
	defer src.Close()

	desc, err := app.Builder.Build(r.Context(), src, frameset.BuildOptions{
		VideoID:      videoID,
		SampleCount:  numFrames,
		RetainSource: keepVideo,
		SourcePath:   tmpPath,
	})
	if err != nil {
		app.writeError(w, r, err)
		return
	}

	resp := newFrameSetResponse(desc)
	if getFirstFrame {
		if rec, ok := desc.Frame(0); ok {
			data, err := app.Storage.Get(r.Context(), rec.Key)
			if err != nil {
				app.Logger.Warn("failed to read first frame", zap.String("frame_set_id", desc.ID), zap.Error(err))
			} else {
				resp.FirstFrame = &frameResponse{
					FrameIdx:     rec.Position,
					FrameNum:     rec.FrameNum,
					FrameImg:     base64.StdEncoding.EncodeToString(data),
					RenderWidth:  rec.Width,
					RenderHeight: rec.Height,
				}
			}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (app *App) FrameSetInfoHandler(w http.ResponseWriter, r *http.Request) {
	desc, err := app.Cache.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		app.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newFrameSetResponse(desc))
}

// lookupFrame resolves a sample position to its stored record and bytes.
func (app *App) lookupFrame(r *http.Request, frameSetID, rawIndex string) (*models.FrameSetDescriptor, models.FrameRecord, []byte, error) {
	desc, err := app.Cache.Get(r.Context(), frameSetID)
	if err != nil {
		return nil, models.FrameRecord{}, nil, err
	}

	if rawIndex == "" {
		return nil, models.FrameRecord{}, nil, fmt.Errorf("%w: missing index parameter", models.ErrInvalidInput)
	}
	idx, err := strconv.Atoi(rawIndex)
	if err != nil {
		return nil, models.FrameRecord{}, nil, fmt.Errorf("%w: index must be an integer", models.ErrInvalidInput)
	}
	if idx < 0 || idx >= desc.Count() {
		return nil, models.FrameRecord{}, nil, fmt.Errorf("%w: index out of range", models.ErrInvalidInput)
	}

	rec, ok := desc.Frame(idx)
	if !ok {
		return nil, models.FrameRecord{}, nil, fmt.Errorf("%w: frame index %d not found in frame paths", models.ErrNotFound, idx)
	}

	data, err := app.Storage.Get(r.Context(), rec.Key)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, models.FrameRecord{}, nil, fmt.Errorf("%w: frame %s", models.ErrNotFound, rec.Key)
	}
	if err != nil {
		return nil, models.FrameRecord{}, nil, fmt.Errorf("%w: download frame: %v", models.ErrStorageFailure, err)
	}
	return desc, rec, data, nil
}

// FrameHandler returns one frame of a set as base64 JSON.
func (app *App) FrameHandler(w http.ResponseWriter, r *http.Request) {
	frameSetID := chi.URLParam(r, "id")
	desc, rec, data, err := app.lookupFrame(r, frameSetID, r.URL.Query().Get("index"))
	if err != nil {
		app.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, frameResponse{
		FrameSetID:   frameSetID,
		FrameCount:   desc.Count(),
		FrameIdx:     rec.Position,
		FrameNum:     rec.FrameNum,
		FrameImg:     base64.StdEncoding.EncodeToString(data),
		RenderWidth:  rec.Width,
		RenderHeight: rec.Height,
	})
}

// FrameImageHandler serves the raw JPEG bytes of one frame.
func (app *App) FrameImageHandler(w http.ResponseWriter, r *http.Request) {
	_, rec, data, err := app.lookupFrame(r, chi.URLParam(r, "id"), chi.URLParam(r, "index"))
	if err != nil {
		app.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	http.ServeContent(w, r, filepath.Base(rec.Key), time.Time{}, bytes.NewReader(data))
}
