package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kdimtricp/poseannotator/internal/annotation"
	"github.com/kdimtricp/poseannotator/internal/export"
	"github.com/kdimtricp/poseannotator/internal/models"
)

type sessionInfo struct {
	CreatedAt          string               `json:"created_at"`
	UpdatedAt          string               `json:"updated_at"`
	TotalFrames        int                  `json:"total_frames"`
	AnnotatedFrames    int                  `json:"annotated_frames"`
	LastFrameAnnotated int                  `json:"last_frame_annotated"`
	Status             models.SessionStatus `json:"status"`
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", models.ErrInvalidInput, err)
	}
	return nil
}

func (app *App) SaveAnnotationsHandler(w http.ResponseWriter, r *http.Request) {
	var req annotation.SaveRequest
	if err := decodeBody(r, &req); err != nil {
		app.writeError(w, r, err)
		return
	}
	req.Token = tokenFrom(r, req.Token)

	res, err := app.Annotations.Save(r.Context(), req)
	if err != nil {
		app.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":          true,
		"message":          fmt.Sprintf("Saved %d frames", res.Saved),
		"frame_set_id":     res.FrameSetID,
		"annotated_frames": res.Progress.AnnotatedFrames,
		"total_frames":     res.Progress.TotalFrames,
		"status":           res.Progress.Status,
	})
}

func (app *App) AutoSaveHandler(w http.ResponseWriter, r *http.Request) {
	var req annotation.AutoSaveRequest
	if err := decodeBody(r, &req); err != nil {
		app.writeError(w, r, err)
		return
	}
	req.Token = tokenFrom(r, req.Token)

	if err := app.Annotations.AutoSave(r.Context(), req); err != nil {
		app.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("Auto-saved frame %d for frame set %s", *req.FrameNum, req.FrameSetID),
	})
}

func (app *App) LoadAnnotationsHandler(w http.ResponseWriter, r *http.Request) {
	frameSetID := chi.URLParam(r, "id")
	loaded, err := app.Annotations.Load(r.Context(), frameSetID, r.URL.Query().Get("token"))
	if err != nil {
		app.writeError(w, r, err)
		return
	}

	s := loaded.Session
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"frame_set_id": frameSetID,
		"video_id":     s.VideoID,
		"annotations":  loaded.Annotations(),
		"session_info": sessionInfo{
			CreatedAt:          s.CreatedAt.Format(timeLayout),
			UpdatedAt:          s.UpdatedAt.Format(timeLayout),
			TotalFrames:        s.TotalFrames,
			AnnotatedFrames:    s.AnnotatedFrames,
			LastFrameAnnotated: s.LastFrameAnnotated,
			Status:             s.Status,
		},
	})
}

const timeLayout = "2006-01-02T15:04:05.999999Z07:00"

func (app *App) ListSessionsHandler(w http.ResponseWriter, r *http.Request) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		limit = annotation.DefaultListLimit
	}

	sessions, err := app.Annotations.List(r.Context(), limit, r.URL.Query().Get("token"))
	if err != nil {
		app.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"sessions": sessions,
	})
}

func (app *App) DeleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	frameSetID := chi.URLParam(r, "id")

	var body struct {
		Token string `json:"token"`
	}
	// The body is optional; a token may come from the query instead.
	json.NewDecoder(r.Body).Decode(&body)

	if err := app.Annotations.Delete(r.Context(), frameSetID, tokenFrom(r, body.Token)); err != nil {
		app.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("Annotation session %s deleted", frameSetID),
	})
}

// ExportCSVHandler converts a posted annotations object into a CSV
// download in original video coordinates.
func (app *App) ExportCSVHandler(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		app.badRequest(w, "Failed to read request body")
		return
	}

	payload, err := export.ParseExportPayload(raw)
	if err != nil {
		app.writeError(w, r, err)
		return
	}
	app.writeCSV(w, r, "annotations.csv", payload)
}

// ExportSessionHandler exports the stored annotations of a session.
func (app *App) ExportSessionHandler(w http.ResponseWriter, r *http.Request) {
	frameSetID := chi.URLParam(r, "id")
	loaded, err := app.Annotations.Load(r.Context(), frameSetID, r.URL.Query().Get("token"))
	if err != nil {
		app.writeError(w, r, err)
		return
	}
	app.writeCSV(w, r, frameSetID+"_annotations.csv", loaded.Payload())
}

func (app *App) writeCSV(w http.ResponseWriter, r *http.Request, filename string, payload annotation.Payload) {
	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, export.ToRecords(payload.Frames, payload.Dimensions)); err != nil {
		app.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
