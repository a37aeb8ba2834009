package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kdimtricp/poseannotator/internal/models"
)

// SessionUpsert is the session-level state carried by a save.
type SessionUpsert struct {
	FrameSetID         string
	VideoID            string
	Dimensions         models.Dimensions
	TotalFrames        int
	LastFrameAnnotated int
	// UserToken, when nil, leaves any recorded owner untouched.
	UserToken *string
}

// Progress is the outcome of recomputing a session's completed frames.
type Progress struct {
	Previous        models.SessionStatus
	Status          models.SessionStatus
	AnnotatedFrames int
	TotalFrames     int
}

type SessionRepo struct {
	db  *DB
	now func() time.Time
}

func NewSessionRepo(db *DB) *SessionRepo {
	return &SessionRepo{db: db, now: func() time.Time { return time.Now().UTC() }}
}

const sessionColumns = `frame_set_id, video_id, orig_width, orig_height, render_width, render_height,
	total_frames, annotated_frames, last_frame_annotated, status, user_token, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.AnnotationSession, error) {
	var s models.AnnotationSession
	var status string
	err := row.Scan(
		&s.FrameSetID, &s.VideoID,
		&s.OrigWidth, &s.OrigHeight, &s.RenderWidth, &s.RenderHeight,
		&s.TotalFrames, &s.AnnotatedFrames, &s.LastFrameAnnotated,
		&status, &s.UserToken, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.Status = models.SessionStatus(status)
	return &s, nil
}

// UpsertSession creates the session or overwrites its metadata. Status is
// kept consistent with the stored completed count against the new total.
func (r *SessionRepo) UpsertSession(ctx context.Context, in SessionUpsert) error {
	now := r.now()
	query := fmt.Sprintf(`
		INSERT INTO annotation_sessions (
			frame_set_id, video_id, orig_width, orig_height, render_width, render_height,
			total_frames, last_frame_annotated, user_token, status, annotated_frames,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 0, $11, $11)
		ON CONFLICT (frame_set_id) DO UPDATE SET
			video_id = excluded.video_id,
			orig_width = excluded.orig_width,
			orig_height = excluded.orig_height,
			render_width = excluded.render_width,
			render_height = excluded.render_height,
			total_frames = excluded.total_frames,
			last_frame_annotated = excluded.last_frame_annotated,
			user_token = COALESCE(excluded.user_token, annotation_sessions.user_token),
			status = CASE WHEN annotation_sessions.annotated_frames >= excluded.total_frames
				THEN '%s' ELSE '%s' END,
			updated_at = %s`,
		models.StatusCompleted, models.StatusInProgress,
		r.db.greatest("annotation_sessions.updated_at", "excluded.updated_at"))

	return r.db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, query,
			in.FrameSetID,
			in.VideoID,
			in.Dimensions.OrigWidth,
			in.Dimensions.OrigHeight,
			in.Dimensions.RenderWidth,
			in.Dimensions.RenderHeight,
			in.TotalFrames,
			in.LastFrameAnnotated,
			in.UserToken,
			string(models.StatusFor(0, in.TotalFrames)),
			now,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert session %s: %w", in.FrameSetID, err)
		}
		return nil
	})
}

// UpsertFrameAnnotation stores one frame's keypoints and bumps the owning
// session's updated_at. The session must already exist.
func (r *SessionRepo) UpsertFrameAnnotation(ctx context.Context, frameSetID string, frameNum int, keypoints models.KeypointMap, isComplete bool) error {
	if keypoints == nil {
		keypoints = models.KeypointMap{}
	}
	data, err := json.Marshal(keypoints)
	if err != nil {
		return fmt.Errorf("failed to marshal keypoints: %w", err)
	}
	now := r.now()

	touch := fmt.Sprintf(`UPDATE annotation_sessions SET updated_at = %s WHERE frame_set_id = $1`,
		r.db.greatest("updated_at", "$2"))

	upsert := fmt.Sprintf(`
		INSERT INTO frame_annotations (frame_set_id, frame_num, annotations, is_completed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (frame_set_id, frame_num) DO UPDATE SET
			annotations = excluded.annotations,
			is_completed = excluded.is_completed,
			updated_at = %s`,
		r.db.greatest("frame_annotations.updated_at", "excluded.updated_at"))

	return r.db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, touch, frameSetID, now)
		if err != nil {
			return fmt.Errorf("failed to touch session %s: %w", frameSetID, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("%w: session %s", models.ErrNotFound, frameSetID)
		}

		if _, err := tx.ExecContext(ctx, upsert, frameSetID, frameNum, string(data), isComplete, now); err != nil {
			return fmt.Errorf("failed to upsert frame %d of %s: %w", frameNum, frameSetID, err)
		}
		return nil
	})
}

// RecomputeProgress re-derives annotated_frames and status from the stored
// frame rows.
func (r *SessionRepo) RecomputeProgress(ctx context.Context, frameSetID string) (Progress, error) {
	var p Progress
	lock := ""
	if r.db.dbType == "postgres" {
		lock = " FOR UPDATE"
	}

	err := r.db.withTx(ctx, func(tx *sql.Tx) error {
		var prev string
		err := tx.QueryRowContext(ctx,
			`SELECT status, total_frames FROM annotation_sessions WHERE frame_set_id = $1`+lock,
			frameSetID,
		).Scan(&prev, &p.TotalFrames)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: session %s", models.ErrNotFound, frameSetID)
		}
		if err != nil {
			return fmt.Errorf("failed to read session %s: %w", frameSetID, err)
		}
		p.Previous = models.SessionStatus(prev)

		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM frame_annotations WHERE frame_set_id = $1 AND is_completed = $2`,
			frameSetID, true,
		).Scan(&p.AnnotatedFrames); err != nil {
			return fmt.Errorf("failed to count completed frames: %w", err)
		}

		p.Status = models.StatusFor(p.AnnotatedFrames, p.TotalFrames)

		update := fmt.Sprintf(`
			UPDATE annotation_sessions
			SET annotated_frames = $2, status = $3, updated_at = %s
			WHERE frame_set_id = $1`, r.db.greatest("updated_at", "$4"))
		if _, err := tx.ExecContext(ctx, update, frameSetID, p.AnnotatedFrames, string(p.Status), r.now()); err != nil {
			return fmt.Errorf("failed to update progress: %w", err)
		}
		return nil
	})
	return p, err
}

func (r *SessionRepo) GetSession(ctx context.Context, frameSetID string) (*models.AnnotationSession, error) {
	row := r.db.conn.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM annotation_sessions WHERE frame_set_id = $1`, frameSetID)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: session %s", models.ErrNotFound, frameSetID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session %s: %w", frameSetID, err)
	}
	return s, nil
}

// LoadSession returns the session and all of its frames ordered by frame
// number, read in one transaction.
func (r *SessionRepo) LoadSession(ctx context.Context, frameSetID string) (*models.AnnotationSession, []models.FrameAnnotation, error) {
	var session *models.AnnotationSession
	var frames []models.FrameAnnotation

	err := r.db.withTx(ctx, func(tx *sql.Tx) error {
		s, err := scanSession(tx.QueryRowContext(ctx,
			`SELECT `+sessionColumns+` FROM annotation_sessions WHERE frame_set_id = $1`, frameSetID))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: session %s", models.ErrNotFound, frameSetID)
		}
		if err != nil {
			return fmt.Errorf("failed to load session %s: %w", frameSetID, err)
		}
		session = s

		rows, err := tx.QueryContext(ctx, `
			SELECT frame_num, annotations, is_completed, updated_at
			FROM frame_annotations
			WHERE frame_set_id = $1
			ORDER BY frame_num`, frameSetID)
		if err != nil {
			return fmt.Errorf("failed to load frames of %s: %w", frameSetID, err)
		}
		defer rows.Close()

		for rows.Next() {
			f := models.FrameAnnotation{FrameSetID: frameSetID}
			var raw []byte
			if err := rows.Scan(&f.FrameNum, &raw, &f.IsComplete, &f.UpdatedAt); err != nil {
				return fmt.Errorf("failed to scan frame: %w", err)
			}
			if err := json.Unmarshal(raw, &f.Keypoints); err != nil {
				return fmt.Errorf("failed to decode frame %d: %w", f.FrameNum, err)
			}
			frames = append(frames, f)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, nil, err
	}
	return session, frames, nil
}

// ListSessions returns up to limit sessions, most recently updated first,
// optionally restricted to one owner token.
func (r *SessionRepo) ListSessions(ctx context.Context, limit int, owner *string) ([]models.SessionSummary, error) {
	query := `
		SELECT frame_set_id, video_id, created_at, updated_at, total_frames, annotated_frames, status
		FROM annotation_sessions`
	args := []any{}
	if owner != nil {
		query += ` WHERE user_token = $1 ORDER BY updated_at DESC LIMIT $2`
		args = append(args, *owner, limit)
	} else {
		query += ` ORDER BY updated_at DESC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := r.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	summaries := []models.SessionSummary{}
	for rows.Next() {
		var s models.SessionSummary
		var status string
		if err := rows.Scan(&s.FrameSetID, &s.VideoID, &s.CreatedAt, &s.UpdatedAt,
			&s.TotalFrames, &s.AnnotatedFrames, &status); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		s.Status = models.SessionStatus(status)
		s.ProgressPercentage = models.ProgressPercentage(s.AnnotatedFrames, s.TotalFrames)
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// DeleteSession removes the session and its frames, reporting whether a
// session row existed.
func (r *SessionRepo) DeleteSession(ctx context.Context, frameSetID string) (bool, error) {
	var deleted bool
	err := r.db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM frame_annotations WHERE frame_set_id = $1`, frameSetID); err != nil {
			return fmt.Errorf("failed to delete frames of %s: %w", frameSetID, err)
		}
		res, err := tx.ExecContext(ctx,
			`DELETE FROM annotation_sessions WHERE frame_set_id = $1`, frameSetID)
		if err != nil {
			return fmt.Errorf("failed to delete session %s: %w", frameSetID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		deleted = n > 0
		return nil
	})
	return deleted, err
}
