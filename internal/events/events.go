package events

import (
	"context"
	"time"
)

const (
	FrameSetCreated  = "frameset.created"
	SessionCompleted = "session.completed"
	SessionDeleted   = "session.deleted"
)

type Event struct {
	Type       string    `json:"type"`
	FrameSetID string    `json:"frame_set_id"`
	VideoID    string    `json:"video_id,omitempty"`
	FrameCount int       `json:"frame_count,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop discards every event. Used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
