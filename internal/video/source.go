package video

import (
	"context"
	"image"
)

type Info struct {
	FrameCount int
	FPS        float64
	Width      int
	Height     int
}

// Source is an opened video that can decode any frame by its 0-based
// native index.
type Source interface {
	Info() Info
	Frame(ctx context.Context, index int) (image.Image, error)
	Close() error
}
