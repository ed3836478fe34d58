package encoder

import (
	"bytes"
	"image"
	"image/jpeg"
	"sync/atomic"
)

// JPEGEncoder encodes frames as JPEG. Quality may be changed while the
// encoder is in use by another goroutine.
type JPEGEncoder struct {
	quality atomic.Int64
}

// NewJPEGEncoder creates a JPEG encoder with the given quality (1-100).
func NewJPEGEncoder(quality int) *JPEGEncoder {
	e := &JPEGEncoder{}
	e.SetQuality(quality)
	return e
}

func (e *JPEGEncoder) Encode(img *image.RGBA) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(256 * 1024) // pre-allocate 256KB
	err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: int(e.quality.Load())})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SetQuality clamps quality into 1-100 and applies it to subsequent frames.
func (e *JPEGEncoder) SetQuality(quality int) {
	if quality < 1 {
		quality = 1
	}
	if quality > 100 {
		quality = 100
	}
	e.quality.Store(int64(quality))
}

// Quality reports the current encode quality.
func (e *JPEGEncoder) Quality() int {
	return int(e.quality.Load())
}
