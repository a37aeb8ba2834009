// Package export flattens stored keypoints into long-format rows in the
// original video's pixel space.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"

	"github.com/kdimtricp/poseannotator/internal/annotation"
	"github.com/kdimtricp/poseannotator/internal/models"
)

var Header = []string{"frame_num", "keypoint_id", "keypoint_name", "x", "y", "visible"}

type Record struct {
	FrameNum     int
	KeypointID   *int
	KeypointName string
	X            *int
	Y            *int
	Visible      bool
}

// ParseExportPayload reads the flat annotations object posted for export.
// A payload without frames is rejected.
func ParseExportPayload(raw json.RawMessage) (annotation.Payload, error) {
	p, err := annotation.ParseAnnotations(raw)
	if err != nil {
		return p, err
	}
	if len(p.Frames) == 0 {
		return p, fmt.Errorf("%w: no annotations data provided", models.ErrInvalidInput)
	}
	return p, nil
}

// ToRecords emits one row per keypoint with coordinates scaled from the
// render size back to the original size. Rows are ordered by frame number,
// then keypoint id with unknown names last, then name.
func ToRecords(frames map[int]models.KeypointMap, dims models.Dimensions) []Record {
	sx := scale(dims.OrigWidth, dims.RenderWidth)
	sy := scale(dims.OrigHeight, dims.RenderHeight)

	var records []Record
	for frameNum, kps := range frames {
		for name, kp := range kps {
			normalized := models.NormalizeKeypointName(name)
			r := Record{
				FrameNum:     frameNum,
				KeypointName: normalized,
				X:            rescale(kp.X, sx),
				Y:            rescale(kp.Y, sy),
				Visible:      !kp.NotVisible,
			}
			if id, ok := models.KeypointID(normalized); ok {
				r.KeypointID = &id
			}
			records = append(records, r)
		}
	}

	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.FrameNum != b.FrameNum {
			return a.FrameNum < b.FrameNum
		}
		switch {
		case a.KeypointID != nil && b.KeypointID != nil:
			if *a.KeypointID != *b.KeypointID {
				return *a.KeypointID < *b.KeypointID
			}
		case a.KeypointID != nil:
			return true
		case b.KeypointID != nil:
			return false
		}
		return a.KeypointName < b.KeypointName
	})
	return records
}

func scale(orig, render *int) float64 {
	if orig == nil || render == nil || *render == 0 {
		return 1
	}
	return float64(*orig) / float64(*render)
}

// rescale multiplies v by factor and rounds half away from zero.
func rescale(v *float64, factor float64) *int {
	if v == nil {
		return nil
	}
	scaled := int(math.Round(*v * factor))
	return &scaled
}

// WriteCSV writes the header and one line per record. Missing values are
// empty cells.
func WriteCSV(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{
			strconv.Itoa(r.FrameNum),
			optionalInt(r.KeypointID),
			r.KeypointName,
			optionalInt(r.X),
			optionalInt(r.Y),
			pythonBool(r.Visible),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func optionalInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

// pythonBool keeps the True/False spelling downstream tooling already parses.
func pythonBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
