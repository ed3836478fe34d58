package display

import (
	"fmt"
	"image"
	"math"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
)

// Viewer renders received frames in an Ebitengine window. It is a passive
// consumer of the engine's event surface: frames, status text, and
// throughput samples are pushed from the engine goroutine; rendering runs
// on the main goroutine.
type Viewer struct {
	title string

	mu          sync.Mutex
	frame       *image.RGBA
	status      string
	fps         int
	peer        string
	ebitenImage *ebiten.Image
	shutdown    bool
}

func NewViewer(title string) *Viewer {
	return &Viewer{
		title:  title,
		status: "waiting for frames",
		peer:   "none",
	}
}

// SetFrame updates the displayed frame (called from the engine goroutine).
func (v *Viewer) SetFrame(img *image.RGBA) {
	v.mu.Lock()
	v.frame = img
	v.mu.Unlock()
}

// SetStatus updates the overlay status line.
func (v *Viewer) SetStatus(text string) {
	v.mu.Lock()
	v.status = text
	v.mu.Unlock()
}

// SetThroughput updates the overlay FPS sample.
func (v *Viewer) SetThroughput(fps int) {
	v.mu.Lock()
	v.fps = fps
	v.mu.Unlock()
}

// SetPeer updates the overlay peer identity.
func (v *Viewer) SetPeer(identity string) {
	v.mu.Lock()
	v.peer = identity
	v.mu.Unlock()
}

// Shutdown makes the next Update tick end the game loop.
func (v *Viewer) Shutdown() {
	v.mu.Lock()
	v.shutdown = true
	v.mu.Unlock()
}

// Run starts the Ebitengine game loop. Must be called from the main
// goroutine.
func (v *Viewer) Run() error {
	ebiten.SetWindowSize(960, 540)
	ebiten.SetWindowTitle(v.title)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	err := ebiten.RunGame(v)
	if err == ebiten.Termination {
		return nil
	}
	return err
}

// --- ebiten.Game interface ---

func (v *Viewer) Update() error {
	v.mu.Lock()
	done := v.shutdown
	v.mu.Unlock()
	if done {
		return ebiten.Termination
	}
	return nil
}

func (v *Viewer) Draw(screen *ebiten.Image) {
	v.mu.Lock()
	frame := v.frame
	overlay := fmt.Sprintf("%s\npeer: %s  fps: %d", v.status, v.peer, v.fps)
	v.mu.Unlock()

	if frame != nil {
		if v.ebitenImage == nil ||
			v.ebitenImage.Bounds().Dx() != frame.Bounds().Dx() ||
			v.ebitenImage.Bounds().Dy() != frame.Bounds().Dy() {
			v.ebitenImage = ebiten.NewImage(frame.Bounds().Dx(), frame.Bounds().Dy())
		}
		v.ebitenImage.WritePixels(frame.Pix)

		sw, sh := screen.Bounds().Dx(), screen.Bounds().Dy()
		fw, fh := float64(frame.Bounds().Dx()), float64(frame.Bounds().Dy())
		scale, offsetX, offsetY := aspectFitTransform(float64(sw), float64(sh), fw, fh)

		op := &ebiten.DrawImageOptions{}
		op.GeoM.Scale(scale, scale)
		op.GeoM.Translate(offsetX, offsetY)
		screen.DrawImage(v.ebitenImage, op)
	}

	ebitenutil.DebugPrint(screen, overlay)
}

func (v *Viewer) Layout(outsideWidth, outsideHeight int) (int, int) {
	return outsideWidth, outsideHeight
}

// aspectFitTransform returns scale and offsets to fit frame into view with
// letterboxing.
func aspectFitTransform(viewW, viewH, frameW, frameH float64) (scale, offsetX, offsetY float64) {
	scale = math.Min(viewW/frameW, viewH/frameH)
	offsetX = (viewW - frameW*scale) / 2
	offsetY = (viewH - frameH*scale) / 2
	return
}
