package models

import (
	"math"
	"time"
)

type SessionStatus string

const (
	StatusInProgress SessionStatus = "in_progress"
	StatusCompleted  SessionStatus = "completed"
)

type AnnotationSession struct {
	FrameSetID         string        `json:"frame_set_id"`
	VideoID            string        `json:"video_id"`
	OrigWidth          *int          `json:"orig_width"`
	OrigHeight         *int          `json:"orig_height"`
	RenderWidth        *int          `json:"render_width"`
	RenderHeight       *int          `json:"render_height"`
	TotalFrames        int           `json:"total_frames"`
	AnnotatedFrames    int           `json:"annotated_frames"`
	LastFrameAnnotated int           `json:"last_frame_annotated"`
	Status             SessionStatus `json:"status"`
	UserToken          *string       `json:"-"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// StatusFor derives the session status from its completed frame count.
func StatusFor(completed, total int) SessionStatus {
	if completed >= total {
		return StatusCompleted
	}
	return StatusInProgress
}

type FrameAnnotation struct {
	FrameSetID string      `json:"frame_set_id"`
	FrameNum   int         `json:"frame_num"`
	Keypoints  KeypointMap `json:"annotations"`
	IsComplete bool        `json:"is_completed"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

type SessionSummary struct {
	FrameSetID         string        `json:"frame_set_id"`
	VideoID            string        `json:"video_id"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
	TotalFrames        int           `json:"total_frames"`
	AnnotatedFrames    int           `json:"annotated_frames"`
	Status             SessionStatus `json:"status"`
	ProgressPercentage float64       `json:"progress_percentage"`
}

// ProgressPercentage is completed/total as a percentage rounded to two
// decimals, or 0 when total is 0.
func ProgressPercentage(completed, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(completed)/float64(total)*100*100) / 100
}

// Dimensions carries the original and rendered frame sizes of a session.
// Nil fields were not supplied by the client.
type Dimensions struct {
	OrigWidth    *int `json:"orig_width"`
	OrigHeight   *int `json:"orig_height"`
	RenderWidth  *int `json:"render_width"`
	RenderHeight *int `json:"render_height"`
}

// Merge fills unset fields from other.
func (d Dimensions) Merge(other Dimensions) Dimensions {
	if d.OrigWidth == nil {
		d.OrigWidth = other.OrigWidth
	}
	if d.OrigHeight == nil {
		d.OrigHeight = other.OrigHeight
	}
	if d.RenderWidth == nil {
		d.RenderWidth = other.RenderWidth
	}
	if d.RenderHeight == nil {
		d.RenderHeight = other.RenderHeight
	}
	return d
}

type AccessToken struct {
	ID        uint      `gorm:"primaryKey"`
	Token     string    `gorm:"uniqueIndex;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	IsActive  bool      `gorm:"not null;default:true"`
}

func (AccessToken) TableName() string {
	return "user_tokens"
}
