package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func NewRouter(app *App, corsOrigin string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(app.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: splitOrigins(corsOrigin),
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))

	r.Get("/health", app.HealthHandler)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/frame-set", func(r chi.Router) {
		r.Post("/", app.CreateFrameSetHandler)
		r.Get("/{id}/info", app.FrameSetInfoHandler)
		r.Get("/{id}/frame", app.FrameHandler)
		r.Get("/{id}/frame/{index}.jpg", app.FrameImageHandler)
	})

	r.Route("/annotations", func(r chi.Router) {
		r.Post("/save", app.SaveAnnotationsHandler)
		r.Post("/auto-save", app.AutoSaveHandler)
		r.Get("/load/{id}", app.LoadAnnotationsHandler)
		r.Get("/sessions", app.ListSessionsHandler)
		r.Delete("/session/{id}", app.DeleteSessionHandler)
		r.Post("/export-csv", app.ExportCSVHandler)
		r.Get("/export/{id}", app.ExportSessionHandler)
	})

	r.Post("/admin/generate-token", app.GenerateTokenHandler)
	r.Get("/validate-token/{token}", app.ValidateTokenHandler)

	return r
}

func splitOrigins(origins string) []string {
	var out []string
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
