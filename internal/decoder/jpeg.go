package decoder

import (
	"bytes"
	"image"
	"image/jpeg"

	xdraw "golang.org/x/image/draw"
)

// JPEGDecoder decodes JPEG bytes into *image.RGBA, optionally scaling the
// result to a fixed size. A zero width or height keeps the native size.
type JPEGDecoder struct {
	width  int
	height int
}

func NewJPEGDecoder() *JPEGDecoder {
	return &JPEGDecoder{}
}

// NewResizingJPEGDecoder decodes and scales every frame to width x height.
func NewResizingJPEGDecoder(width, height int) *JPEGDecoder {
	return &JPEGDecoder{width: width, height: height}
}

func (d *JPEGDecoder) Decode(data []byte) (*image.RGBA, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	if d.width > 0 && d.height > 0 {
		b := img.Bounds()
		if b.Dx() != d.width || b.Dy() != d.height {
			scaled := image.NewRGBA(image.Rect(0, 0, d.width, d.height))
			xdraw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), img, b, xdraw.Src, nil)
			return scaled, nil
		}
	}

	// Convert to RGBA if needed.
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba, nil
	}
	b := img.Bounds()
	rgba := image.NewRGBA(b)
	xdraw.Draw(rgba, b, img, b.Min, xdraw.Src)
	return rgba, nil
}
