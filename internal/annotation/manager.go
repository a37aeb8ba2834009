// Package annotation manages durable annotation sessions: saving, loading,
// listing and deleting the per-frame keypoints of a frame set.
package annotation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/kdimtricp/poseannotator/internal/database"
	"github.com/kdimtricp/poseannotator/internal/events"
	"github.com/kdimtricp/poseannotator/internal/metrics"
	"github.com/kdimtricp/poseannotator/internal/models"
	"go.uber.org/zap"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

type SessionStore interface {
	UpsertSession(ctx context.Context, in database.SessionUpsert) error
	UpsertFrameAnnotation(ctx context.Context, frameSetID string, frameNum int, keypoints models.KeypointMap, isComplete bool) error
	RecomputeProgress(ctx context.Context, frameSetID string) (database.Progress, error)
	GetSession(ctx context.Context, frameSetID string) (*models.AnnotationSession, error)
	LoadSession(ctx context.Context, frameSetID string) (*models.AnnotationSession, []models.FrameAnnotation, error)
	ListSessions(ctx context.Context, limit int, owner *string) ([]models.SessionSummary, error)
	DeleteSession(ctx context.Context, frameSetID string) (bool, error)
}

type DescriptorCache interface {
	Get(ctx context.Context, frameSetID string) (*models.FrameSetDescriptor, error)
	Evict(frameSetID string)
}

type ObjectRemover interface {
	DeletePrefix(ctx context.Context, prefix string) error
}

type TokenGate interface {
	Check(ctx context.Context, presented string) error
	Authorize(ctx context.Context, presented string, owner *string) error
}

type SaveRequest struct {
	FrameSetID         string          `json:"frame_set_id"`
	VideoID            string          `json:"video_id"`
	Token              string          `json:"token"`
	LastFrameAnnotated int             `json:"last_frame_annotated"`
	TotalFrames        int             `json:"total_frames"`
	Annotations        json.RawMessage `json:"annotations"`
	models.Dimensions
}

type SaveResult struct {
	FrameSetID string
	Saved      int
	Progress   database.Progress
}

type AutoSaveRequest struct {
	FrameSetID         string          `json:"frame_set_id"`
	VideoID            string          `json:"video_id"`
	Token              string          `json:"token"`
	FrameNum           *int            `json:"frame_num"`
	LastFrameAnnotated int             `json:"last_frame_annotated"`
	TotalFrames        int             `json:"total_frames"`
	Annotations        json.RawMessage `json:"annotations"`
	models.Dimensions
}

type LoadResult struct {
	Session *models.AnnotationSession
	Frames  []models.FrameAnnotation
}

// Annotations rebuilds the flat annotations object a client saved: the
// session dimensions plus one entry per stored frame keyed by frame number.
func (r *LoadResult) Annotations() map[string]any {
	out := map[string]any{
		"orig_width":    r.Session.OrigWidth,
		"orig_height":   r.Session.OrigHeight,
		"render_width":  r.Session.RenderWidth,
		"render_height": r.Session.RenderHeight,
	}
	for _, f := range r.Frames {
		out[strconv.Itoa(f.FrameNum)] = f.Keypoints
	}
	return out
}

// Payload converts the loaded frames back into a parsed payload.
func (r *LoadResult) Payload() Payload {
	p := Payload{
		Dimensions: models.Dimensions{
			OrigWidth:    r.Session.OrigWidth,
			OrigHeight:   r.Session.OrigHeight,
			RenderWidth:  r.Session.RenderWidth,
			RenderHeight: r.Session.RenderHeight,
		},
		Frames: make(map[int]models.KeypointMap, len(r.Frames)),
	}
	for _, f := range r.Frames {
		p.Frames[f.FrameNum] = f.Keypoints
	}
	return p
}

type Manager struct {
	sessions    SessionStore
	descriptors DescriptorCache
	objects     ObjectRemover
	gate        TokenGate
	publisher   events.Publisher
	logger      *zap.Logger
}

func NewManager(sessions SessionStore, descriptors DescriptorCache, objects ObjectRemover, gate TokenGate, publisher events.Publisher, logger *zap.Logger) *Manager {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Manager{
		sessions:    sessions,
		descriptors: descriptors,
		objects:     objects,
		gate:        gate,
		publisher:   publisher,
		logger:      logger,
	}
}

// IsComplete reports whether every keypoint in a frame is satisfied.
func IsComplete(kps models.KeypointMap) bool {
	return kps.Complete()
}

// Save writes a batch of frame annotations and recomputes the session's
// progress. Frames that fail to persist are logged and skipped. Once
// started, a save is not cut short by cancellation of ctx.
func (m *Manager) Save(ctx context.Context, req SaveRequest) (*SaveResult, error) {
	ctx = context.WithoutCancel(ctx)

	if req.FrameSetID == "" || req.VideoID == "" {
		return nil, fmt.Errorf("%w: frame_set_id and video_id are required", models.ErrInvalidInput)
	}

	payload, err := ParseAnnotations(req.Annotations)
	if err != nil {
		return nil, err
	}

	total := req.TotalFrames
	if desc := m.descriptor(ctx, req.FrameSetID); desc != nil && desc.SampleCount > 0 {
		total = desc.SampleCount
	}
	if total <= 0 {
		total = len(payload.Frames)
	}
	if total == 0 {
		return nil, fmt.Errorf("%w: no frame annotations provided", models.ErrInvalidInput)
	}

	if err := m.authorizeSession(ctx, req.FrameSetID, req.Token); err != nil {
		return nil, err
	}

	if err := m.sessions.UpsertSession(ctx, database.SessionUpsert{
		FrameSetID:         req.FrameSetID,
		VideoID:            req.VideoID,
		Dimensions:         req.Dimensions.Merge(payload.Dimensions),
		TotalFrames:        total,
		LastFrameAnnotated: req.LastFrameAnnotated,
		UserToken:          tokenPtr(req.Token),
	}); err != nil {
		return nil, storageErr(err)
	}

	saved := 0
	for _, frameNum := range payload.FrameNums() {
		kps := payload.Frames[frameNum]
		if err := m.sessions.UpsertFrameAnnotation(ctx, req.FrameSetID, frameNum, kps, IsComplete(kps)); err != nil {
			m.logger.Warn("failed to save frame annotation",
				zap.String("frame_set_id", req.FrameSetID),
				zap.Int("frame_num", frameNum),
				zap.Error(err))
			continue
		}
		saved++
	}
	metrics.AnnotationsSavedTotal.WithLabelValues("save").Add(float64(saved))

	progress, err := m.sessions.RecomputeProgress(ctx, req.FrameSetID)
	if err != nil {
		return nil, storageErr(err)
	}
	if progress.Status == models.StatusCompleted && progress.Previous != models.StatusCompleted {
		metrics.SessionsCompletedTotal.Inc()
		m.publish(ctx, events.Event{
			Type:       events.SessionCompleted,
			FrameSetID: req.FrameSetID,
			VideoID:    req.VideoID,
			FrameCount: progress.AnnotatedFrames,
		})
	}

	m.logger.Info("saved annotations",
		zap.String("frame_set_id", req.FrameSetID),
		zap.Int("saved", saved),
		zap.Int("annotated_frames", progress.AnnotatedFrames),
		zap.Int("total_frames", progress.TotalFrames))

	return &SaveResult{FrameSetID: req.FrameSetID, Saved: saved, Progress: progress}, nil
}

// AutoSave writes a single frame. Progress is left for the next full save.
func (m *Manager) AutoSave(ctx context.Context, req AutoSaveRequest) error {
	ctx = context.WithoutCancel(ctx)

	if req.FrameSetID == "" || req.VideoID == "" || req.FrameNum == nil {
		return fmt.Errorf("%w: frame_set_id, video_id and frame_num are required", models.ErrInvalidInput)
	}
	if *req.FrameNum < 0 {
		return fmt.Errorf("%w: frame_num must not be negative", models.ErrInvalidInput)
	}

	kps := models.KeypointMap{}
	if len(req.Annotations) > 0 && string(req.Annotations) != "null" {
		decoded, err := models.DecodeKeypointMap(req.Annotations)
		if err != nil {
			return fmt.Errorf("%w: annotations must be an object of keypoints", models.ErrInvalidInput)
		}
		kps = decoded
	}

	if err := m.authorizeSession(ctx, req.FrameSetID, req.Token); err != nil {
		return err
	}

	total := req.TotalFrames
	if total <= 0 {
		if desc := m.descriptor(ctx, req.FrameSetID); desc != nil {
			total = desc.SampleCount
		}
	}

	if err := m.sessions.UpsertSession(ctx, database.SessionUpsert{
		FrameSetID:         req.FrameSetID,
		VideoID:            req.VideoID,
		Dimensions:         req.Dimensions,
		TotalFrames:        total,
		LastFrameAnnotated: req.LastFrameAnnotated,
		UserToken:          tokenPtr(req.Token),
	}); err != nil {
		return storageErr(err)
	}

	if err := m.sessions.UpsertFrameAnnotation(ctx, req.FrameSetID, *req.FrameNum, kps, IsComplete(kps)); err != nil {
		return storageErr(err)
	}
	metrics.AnnotationsSavedTotal.WithLabelValues("auto").Inc()
	return nil
}

func (m *Manager) Load(ctx context.Context, frameSetID, token string) (*LoadResult, error) {
	if err := m.gate.Check(ctx, token); err != nil {
		return nil, err
	}

	session, frames, err := m.sessions.LoadSession(ctx, frameSetID)
	if err != nil {
		return nil, storageErr(err)
	}
	if err := m.gate.Authorize(ctx, token, session.UserToken); err != nil {
		return nil, err
	}
	return &LoadResult{Session: session, Frames: frames}, nil
}

// List returns the most recently updated sessions, scoped to token when
// one is presented.
func (m *Manager) List(ctx context.Context, limit int, token string) ([]models.SessionSummary, error) {
	if err := m.gate.Check(ctx, token); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	summaries, err := m.sessions.ListSessions(ctx, limit, tokenPtr(token))
	if err != nil {
		return nil, storageErr(err)
	}
	return summaries, nil
}

// Delete removes the session rows, then the frame set's stored objects,
// then its cached descriptor.
func (m *Manager) Delete(ctx context.Context, frameSetID, token string) error {
	ctx = context.WithoutCancel(ctx)

	if err := m.authorizeSession(ctx, frameSetID, token); err != nil {
		return err
	}

	deleted, err := m.sessions.DeleteSession(ctx, frameSetID)
	if err != nil {
		return storageErr(err)
	}
	if !deleted {
		return fmt.Errorf("%w: session %s", models.ErrNotFound, frameSetID)
	}

	storeErr := m.objects.DeletePrefix(ctx, models.FrameSetPrefix(frameSetID))
	m.descriptors.Evict(frameSetID)
	if storeErr != nil {
		m.logger.Error("failed to delete frame set objects",
			zap.String("frame_set_id", frameSetID), zap.Error(storeErr))
		return fmt.Errorf("%w: delete frame set objects: %v", models.ErrStorageFailure, storeErr)
	}

	m.publish(ctx, events.Event{Type: events.SessionDeleted, FrameSetID: frameSetID})
	m.logger.Info("deleted session", zap.String("frame_set_id", frameSetID))
	return nil
}

// authorizeSession validates token and, when the session already exists,
// its ownership.
func (m *Manager) authorizeSession(ctx context.Context, frameSetID, token string) error {
	if token == "" {
		return nil
	}
	if err := m.gate.Check(ctx, token); err != nil {
		return err
	}
	session, err := m.sessions.GetSession(ctx, frameSetID)
	if errors.Is(err, models.ErrNotFound) {
		return nil
	}
	if err != nil {
		return storageErr(err)
	}
	return m.gate.Authorize(ctx, token, session.UserToken)
}

// descriptor returns the frame set descriptor, or nil when it cannot be
// read.
func (m *Manager) descriptor(ctx context.Context, frameSetID string) *models.FrameSetDescriptor {
	desc, err := m.descriptors.Get(ctx, frameSetID)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			m.logger.Warn("failed to read frame set descriptor",
				zap.String("frame_set_id", frameSetID), zap.Error(err))
		}
		return nil
	}
	return desc
}

func (m *Manager) publish(ctx context.Context, e events.Event) {
	e.OccurredAt = time.Now().UTC()
	if err := m.publisher.Publish(ctx, e); err != nil {
		m.logger.Warn("failed to publish event", zap.String("type", e.Type), zap.Error(err))
	}
}

func tokenPtr(token string) *string {
	if token == "" {
		return nil
	}
	return &token
}

// storageErr passes sentinel errors through and classifies anything else
// as a storage failure.
func storageErr(err error) error {
	for _, sentinel := range []error{models.ErrNotFound, models.ErrInvalidInput, models.ErrUnauthorized, models.ErrForbidden} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", models.ErrStorageFailure, err)
}
