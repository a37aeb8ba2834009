package models

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const FrameSetsPrefix = "frame_sets"

type FrameRecord struct {
	Position int    `json:"frame_idx"`
	FrameNum int    `json:"frame_num"`
	Key      string `json:"r2_key"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// FrameSetDescriptor is the immutable description of a sampled frame set.
// Frames is indexed by sample position and only holds frames that were
// successfully extracted and uploaded.
type FrameSetDescriptor struct {
	ID             string        `json:"frame_set_id"`
	VideoID        string        `json:"video_id"`
	FPS            float64       `json:"fps"`
	Width          int           `json:"width"`
	Height         int           `json:"height"`
	TotalFrames    int           `json:"total_frames"`
	SampleCount    int           `json:"num_frames"`
	RequestedCount int           `json:"requested_frames"`
	FrameNumbers   []int         `json:"frame_numbers"`
	Frames         []FrameRecord `json:"frame_paths"`
	SourceKey      string        `json:"video_key,omitempty"`
}

func NewFrameSetID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

func FrameSetPrefix(frameSetID string) string {
	return fmt.Sprintf("%s/%s/", FrameSetsPrefix, frameSetID)
}

func MetaKey(frameSetID string) string {
	return FrameSetPrefix(frameSetID) + "meta.json"
}

func FrameKey(frameSetID string, position int) string {
	return fmt.Sprintf("%sframes/frame_%d.jpg", FrameSetPrefix(frameSetID), position)
}

func SourceVideoKey(frameSetID, ext string) string {
	return FrameSetPrefix(frameSetID) + "video" + ext
}

// Frame returns the record stored for a sample position.
func (d *FrameSetDescriptor) Frame(position int) (FrameRecord, bool) {
	for _, f := range d.Frames {
		if f.Position == position {
			return f, true
		}
	}
	return FrameRecord{}, false
}

func (d *FrameSetDescriptor) Count() int {
	return len(d.FrameNumbers)
}

// RenderSize reports the dimensions frames were rendered at, taken from the
// first stored frame. Falls back to the native size.
func (d *FrameSetDescriptor) RenderSize() (int, int) {
	if len(d.Frames) == 0 {
		return d.Width, d.Height
	}
	return d.Frames[0].Width, d.Frames[0].Height
}
