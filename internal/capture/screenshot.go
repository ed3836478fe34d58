package capture

import (
	"fmt"
	"image"

	"github.com/kbinani/screenshot"
)

// ScreenProvider captures a physical display through the OS screenshot API.
type ScreenProvider struct {
	display int
}

// NewScreenProvider selects a display by index (0 = primary).
func NewScreenProvider(display int) (*ScreenProvider, error) {
	n := screenshot.NumActiveDisplays()
	if n == 0 {
		return nil, fmt.Errorf("no active displays")
	}
	if display < 0 || display >= n {
		return nil, fmt.Errorf("display %d out of range (have %d)", display, n)
	}
	return &ScreenProvider{display: display}, nil
}

func (p *ScreenProvider) Bounds() (image.Rectangle, error) {
	return screenshot.GetDisplayBounds(p.display), nil
}

func (p *ScreenProvider) Capture(region image.Rectangle) (*image.RGBA, error) {
	img, err := screenshot.CaptureRect(region)
	if err != nil {
		return nil, fmt.Errorf("capture region %v: %w", region, err)
	}
	return img, nil
}
