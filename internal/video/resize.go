package video

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"math"

	"golang.org/x/image/draw"
)

const DefaultMaxHeight = 720

// FitSize returns the dimensions of a w x h frame scaled down so its height
// does not exceed maxHeight, preserving aspect ratio. Frames already within
// the cap keep their size.
func FitSize(w, h, maxHeight int) (int, int) {
	if h <= maxHeight || h == 0 {
		return w, h
	}
	nw := int(math.Round(float64(w) * float64(maxHeight) / float64(h)))
	if nw < 1 {
		nw = 1
	}
	return nw, maxHeight
}

// Fit scales img down to FitSize. It never upscales.
func Fit(img image.Image, maxHeight int) image.Image {
	b := img.Bounds()
	w, h := FitSize(b.Dx(), b.Dy(), maxHeight)
	if w == b.Dx() && h == b.Dy() {
		return img
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return buf.Bytes(), nil
}
