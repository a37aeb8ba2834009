package annotation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kdimtricp/poseannotator/internal/models"
)

func TestParseAnnotations(t *testing.T) {
	raw := json.RawMessage(`{
		"orig_width": 1920,
		"orig_height": 1080.4,
		"render_width": null,
		"3": {"nose": {"x": 10, "y": 20, "not_visible": false}},
		"0": {"Left Eye": {"x": null, "y": null, "not_visible": true}},
		"notes": {"nose": {"x": 1, "y": 1}},
		"-1": {"nose": {"x": 1, "y": 1}},
		"7": "not an object",
		"8": null
	}`)

	p, err := ParseAnnotations(raw)
	require.NoError(t, err)

	assert.Equal(t, 1920, *p.Dimensions.OrigWidth)
	assert.Equal(t, 1080, *p.Dimensions.OrigHeight)
	assert.Nil(t, p.Dimensions.RenderWidth)
	assert.Nil(t, p.Dimensions.RenderHeight)

	assert.Equal(t, []int{0, 3}, p.FrameNums())
	assert.True(t, p.Frames[0]["Left Eye"].NotVisible)
	assert.Equal(t, 10.0, *p.Frames[3]["nose"].X)
}

func TestParseAnnotations_CanonicalFrameKeys(t *testing.T) {
	for i := 0; i < 20; i++ {
		p, err := ParseAnnotations(json.RawMessage(`{
			"5": {"nose": {"x": 5, "y": 5}},
			"05": {"nose": {"x": 50, "y": 50}},
			"+5": {"nose": {"x": 500, "y": 500}},
			" 6": {"nose": {"x": 6, "y": 6}}
		}`))
		require.NoError(t, err)
		require.Equal(t, []int{5}, p.FrameNums())
		assert.Equal(t, 5.0, *p.Frames[5]["nose"].X)
	}
}

func TestParseAnnotations_Empty(t *testing.T) {
	for _, raw := range []string{"", "null", "{}"} {
		p, err := ParseAnnotations(json.RawMessage(raw))
		require.NoError(t, err, raw)
		assert.Empty(t, p.Frames)
	}
}

func TestParseAnnotations_NotAnObject(t *testing.T) {
	_, err := ParseAnnotations(json.RawMessage(`[1, 2]`))
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestIsComplete(t *testing.T) {
	x, y := 1.0, 2.0
	tests := []struct {
		name string
		kps  models.KeypointMap
		want bool
	}{
		{"placed", models.KeypointMap{"nose": {X: &x, Y: &y}}, true},
		{"not visible", models.KeypointMap{"nose": {NotVisible: true}}, true},
		{"placed and not visible", models.KeypointMap{"nose": {X: &x, Y: &y, NotVisible: true}}, true},
		{"missing y", models.KeypointMap{"nose": {X: &x}}, false},
		{"untouched", models.KeypointMap{"nose": {}}, false},
		{"one of two pending", models.KeypointMap{"nose": {X: &x, Y: &y}, "left_eye": {}}, false},
		{"empty frame", models.KeypointMap{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsComplete(tt.kps))
		})
	}
}
