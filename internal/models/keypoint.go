package models

import (
	"encoding/json"
	"strings"
)

type Keypoint struct {
	X          *float64 `json:"x"`
	Y          *float64 `json:"y"`
	NotVisible bool     `json:"not_visible"`
}

type KeypointMap map[string]Keypoint

// Satisfied reports whether the keypoint is either placed and visible, or
// explicitly marked not visible.
func (k Keypoint) Satisfied() bool {
	return (k.X != nil && k.Y != nil && !k.NotVisible) || k.NotVisible
}

// Complete reports whether every keypoint present is satisfied. Keypoints
// absent from the map are not evaluated, so an empty map is complete.
func (m KeypointMap) Complete() bool {
	for _, kp := range m {
		if !kp.Satisfied() {
			return false
		}
	}
	return true
}

var keypointIDs = map[string]int{
	"nose":           0,
	"left_eye":       1,
	"right_eye":      2,
	"left_ear":       3,
	"right_ear":      4,
	"left_shoulder":  5,
	"right_shoulder": 6,
	"left_elbow":     7,
	"right_elbow":    8,
	"left_wrist":     9,
	"right_wrist":    10,
	"left_hip":       11,
	"right_hip":      12,
	"left_knee":      13,
	"right_knee":     14,
	"left_ankle":     15,
	"right_ankle":    16,
}

// NormalizeKeypointName lowercases a body part label and replaces every
// space with an underscore, so "Left Eye" becomes "left_eye". Runs of spaces
// are not collapsed.
func NormalizeKeypointName(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), " ", "_")
}

// KeypointID looks a normalized name up in the COCO 17-keypoint vocabulary.
func KeypointID(name string) (int, bool) {
	id, ok := keypointIDs[name]
	return id, ok
}

// DecodeKeypointMap decodes a JSON object of keypoints. Any non-object
// payload is rejected.
func DecodeKeypointMap(raw json.RawMessage) (KeypointMap, error) {
	var m KeypointMap
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrInvalidInput
	}
	return m, nil
}
