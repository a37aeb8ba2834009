package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kdimtricp/poseannotator/internal/annotation"
	"github.com/kdimtricp/poseannotator/internal/auth"
	"github.com/kdimtricp/poseannotator/internal/frameset"
	"github.com/kdimtricp/poseannotator/internal/models"
	"github.com/kdimtricp/poseannotator/internal/storage"
	"github.com/kdimtricp/poseannotator/internal/video"
)

// VideoOpener turns an uploaded file on disk into a frame source.
type VideoOpener interface {
	Open(ctx context.Context, path string) (video.Source, error)
}

type App struct {
	Builder       *frameset.Builder
	Cache         *frameset.Cache
	Storage       storage.ObjectStore
	Annotations   *annotation.Manager
	Gate          *auth.Gate
	Videos        VideoOpener
	Logger        *zap.Logger
	MaxUploadSize int64
	TempDir       string
	FrontendURL   string
}

func (app *App) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidInput), errors.Is(err, models.ErrEmptySource):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrExtractionFailed):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (app *App) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		app.Logger.Error("request failed",
			zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (app *App) badRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": message})
}

// tokenFrom prefers a token carried in the body over the query string.
func tokenFrom(r *http.Request, body string) string {
	if body != "" {
		return body
	}
	return r.URL.Query().Get("token")
}
