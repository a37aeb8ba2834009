package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FrameSetsBuiltTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poseannotator_frame_sets_built_total",
		Help: "Total number of frame set builds, by outcome",
	}, []string{"outcome"})

	FrameSetBuildDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "poseannotator_frame_set_build_duration_seconds",
		Help:    "Duration of frame set build stages",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
	}, []string{"stage"})

	FramesExtractedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "poseannotator_frames_extracted_total",
		Help: "Total number of frames extracted and uploaded across all frame sets",
	})

	FramesFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "poseannotator_frames_failed_total",
		Help: "Total number of frames skipped because extraction or upload failed",
	})

	MetadataCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poseannotator_metadata_cache_total",
		Help: "Frame set metadata lookups, by result",
	}, []string{"result"})

	AnnotationsSavedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poseannotator_annotations_saved_total",
		Help: "Frame annotations written, by save mode",
	}, []string{"mode"})

	SessionsCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "poseannotator_sessions_completed_total",
		Help: "Number of times a session transitioned to completed",
	})
)
