package capture

import "image"

// Provider produces a raw pixel buffer for a region of a display at call
// time. Implementations are used only by the sender.
type Provider interface {
	// Bounds reports the full pixel bounds of the display.
	Bounds() (image.Rectangle, error)
	// Capture grabs the given region. The region must lie within Bounds.
	Capture(region image.Rectangle) (*image.RGBA, error)
}
