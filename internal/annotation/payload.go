package annotation

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/kdimtricp/poseannotator/internal/models"
)

// Payload is a flat annotations object split into its dimension fields and
// its per-frame keypoint maps.
type Payload struct {
	Dimensions models.Dimensions
	Frames     map[int]models.KeypointMap
}

// FrameNums returns the frame numbers in ascending order.
func (p Payload) FrameNums() []int {
	nums := make([]int, 0, len(p.Frames))
	for n := range p.Frames {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

// ParseAnnotations separates the reserved dimension keys of a flat
// annotations object from its frame entries. Keys that are not
// non-negative integers, and frame values that are not objects, are
// skipped. A null or empty body yields an empty payload.
func ParseAnnotations(raw json.RawMessage) (Payload, error) {
	p := Payload{Frames: map[int]models.KeypointMap{}}
	if len(raw) == 0 || string(raw) == "null" {
		return p, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return p, fmt.Errorf("%w: annotations must be an object: %v", models.ErrInvalidInput, err)
	}

	for key, value := range fields {
		switch key {
		case "orig_width":
			p.Dimensions.OrigWidth = decodeDimension(value)
		case "orig_height":
			p.Dimensions.OrigHeight = decodeDimension(value)
		case "render_width":
			p.Dimensions.RenderWidth = decodeDimension(value)
		case "render_height":
			p.Dimensions.RenderHeight = decodeDimension(value)
		default:
			// Only canonical decimal keys name a frame; "05" and "+5"
			// would otherwise alias "5".
			frameNum, err := strconv.Atoi(key)
			if err != nil || frameNum < 0 || strconv.Itoa(frameNum) != key {
				continue
			}
			kps, err := models.DecodeKeypointMap(value)
			if err != nil {
				continue
			}
			p.Frames[frameNum] = kps
		}
	}
	return p, nil
}

// decodeDimension accepts a JSON number, rounding fractional values. Null
// and anything else yield nil.
func decodeDimension(raw json.RawMessage) *int {
	var f *float64
	if err := json.Unmarshal(raw, &f); err != nil || f == nil {
		return nil
	}
	v := int(math.Round(*f))
	return &v
}
