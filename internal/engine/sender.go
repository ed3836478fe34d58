package engine

import (
	"errors"
	"fmt"
	"image"
	"sync/atomic"
	"time"

	"github.com/hxlab/hxstream/internal/capture"
	"github.com/hxlab/hxstream/internal/encoder"
	"github.com/hxlab/hxstream/internal/logging"
	"github.com/hxlab/hxstream/internal/metrics"
	"github.com/hxlab/hxstream/internal/transport"
)

// Sender captures a centered crop of the display, compresses each frame,
// and ships it to a fixed peer, pacing itself to the FPS ceiling. One
// goroutine owns the loop; Stop is cooperative and observed within roughly
// one frame interval.
type Sender struct {
	settings  Settings
	provider  capture.Provider
	enc       *encoder.JPEGEncoder
	events    Events
	collector *metrics.Collector

	fpsCeiling atomic.Int64
	running    atomic.Bool
	state      atomic.Int32
	done       chan struct{}
}

func NewSender(settings Settings, provider capture.Provider, events Events, collector *metrics.Collector) *Sender {
	s := &Sender{
		settings:  settings,
		provider:  provider,
		enc:       encoder.NewJPEGEncoder(settings.Quality),
		events:    events,
		collector: collector,
	}
	s.fpsCeiling.Store(int64(settings.FPSCeiling))
	s.state.Store(int32(StateIdle))
	return s
}

// Start validates settings, opens the transport, and launches the stream
// loop. A connect or configuration failure is returned synchronously and
// leaves the sender stopped.
func (s *Sender) Start() error {
	if s.running.Load() {
		return ErrAlreadyRunning
	}
	if err := s.settings.ValidateSender(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	conn, err := s.openTransport()
	if err != nil {
		s.setState(StateError)
		s.events.status("connection failed: " + err.Error())
		return err
	}

	s.running.Store(true)
	s.done = make(chan struct{})
	s.setState(StateStreaming)
	go s.run(conn)
	return nil
}

func (s *Sender) openTransport() (transport.FrameSender, error) {
	switch s.settings.Protocol {
	case ProtocolStream:
		addr := s.settings.hostPort()
		s.setState(StateConnecting)
		s.events.status(fmt.Sprintf("connecting tcp -> %s", addr))
		conn, err := transport.DialStream(addr, s.settings.SocketTimeout, s.settings.SocketTimeout)
		if err != nil {
			return nil, err
		}
		s.events.status(fmt.Sprintf("tcp streaming -> %s", addr))
		return conn, nil
	case ProtocolDatagram:
		addr := s.settings.hostPort()
		conn, err := transport.DialDatagram(addr)
		if err != nil {
			return nil, err
		}
		s.events.status(fmt.Sprintf("udp sending -> %s", addr))
		return conn, nil
	case ProtocolChannel:
		s.setState(StateConnecting)
		s.events.status(fmt.Sprintf("connecting channel -> %s", s.settings.PeerID))
		conn, err := transport.DialChannel(
			s.settings.SignalingURL, s.settings.LocalID, s.settings.PeerID,
			s.settings.SocketTimeout*10, s.settings.SocketTimeout)
		if err != nil {
			return nil, err
		}
		s.events.status(fmt.Sprintf("channel streaming -> %s", s.settings.PeerID))
		return conn, nil
	default:
		return nil, fmt.Errorf("unknown protocol %q", s.settings.Protocol)
	}
}

// Stop requests a cooperative shutdown; completion is signaled by the
// Stopped status event and the Done channel.
func (s *Sender) Stop() {
	if s.running.CompareAndSwap(true, false) {
		s.setState(StateStopping)
	}
}

// Done is closed when the stream loop has fully exited.
func (s *Sender) Done() <-chan struct{} {
	return s.done
}

func (s *Sender) State() State {
	return State(s.state.Load())
}

// UpdateQuality applies a new JPEG quality to subsequent frames mid-run.
func (s *Sender) UpdateQuality(quality int) {
	s.enc.SetQuality(quality)
}

// UpdateFPSCeiling applies a new pacing ceiling mid-run.
func (s *Sender) UpdateFPSCeiling(fps int) {
	s.fpsCeiling.Store(int64(fps))
}

func (s *Sender) setState(st State) {
	s.state.Store(int32(st))
}

func (s *Sender) run(conn transport.FrameSender) {
	defer close(s.done)
	defer func() {
		if err := conn.Close(); err != nil {
			logging.Debug("close transport", logging.Fields{logging.FieldError: err.Error()})
		}
		s.running.Store(false)
		if s.State() != StateError {
			s.setState(StateStopped)
		}
		s.events.throughput(0)
		s.events.status("Stopped")
	}()

	region, adjusted, err := s.captureRegion()
	if err != nil {
		s.setState(StateError)
		s.events.status("capture setup failed: " + err.Error())
		return
	}
	if adjusted {
		s.events.status(fmt.Sprintf("capture size exceeds the display, cropped to %dx%d",
			region.Dx(), region.Dy()))
	}

	oversizeWarn := newWarnLimiter()
	fpsCounter := 0
	lastFlush := time.Now()

	for s.running.Load() {
		loopStart := time.Now()

		img, err := s.provider.Capture(region)
		if err != nil {
			s.setState(StateError)
			s.events.status("capture failed: " + err.Error())
			return
		}
		s.events.frame(img) // local preview

		data, err := s.enc.Encode(img)
		if err != nil {
			logging.Warn("encode failed", logging.Fields{logging.FieldError: err.Error()})
			continue
		}

		if err := conn.SendFrame(data); err != nil {
			if s.fatalSendError(err, len(data), oversizeWarn) {
				return
			}
		} else {
			s.collector.FrameSent(len(data))
			fpsCounter++
		}

		if time.Since(lastFlush) >= time.Second {
			s.events.throughput(fpsCounter)
			s.collector.SetThroughput(fpsCounter)
			fpsCounter = 0
			lastFlush = time.Now()
		}

		if budget := FrameBudget(int(s.fpsCeiling.Load())); budget > 0 {
			if wait := budget - time.Since(loopStart); wait > 0 {
				time.Sleep(wait)
			}
		}
	}
}

// fatalSendError classifies a send failure. On the stream path any failure
// means the byte stream is no longer coherent; the datagram and channel
// paths drop the frame and keep going.
func (s *Sender) fatalSendError(err error, size int, warn *warnLimiter) bool {
	if errors.Is(err, transport.ErrFrameTooLarge) && s.settings.Protocol != ProtocolStream {
		s.collector.FrameDropped()
		if warn.Allow(time.Now()) {
			s.events.status(fmt.Sprintf(
				"frame too large (%d bytes), dropped; lower the quality or size", size))
		}
		return false
	}
	if s.settings.Protocol == ProtocolDatagram {
		s.collector.FrameDropped()
		if warn.Allow(time.Now()) {
			s.events.status("send failed, frame dropped: " + err.Error())
		}
		return false
	}
	if transport.IsTimeout(err) {
		s.events.status("send timed out, streaming stopped")
	} else {
		s.events.status("send failed, streaming stopped: " + err.Error())
	}
	return true
}

// captureRegion centers the requested crop on the display, clamping to the
// display bounds. adjusted reports whether clamping changed the size.
func (s *Sender) captureRegion() (image.Rectangle, bool, error) {
	bounds, err := s.provider.Bounds()
	if err != nil {
		return image.Rectangle{}, false, err
	}
	w := s.settings.Width
	h := s.settings.Height
	if w > bounds.Dx() {
		w = bounds.Dx()
	}
	if h > bounds.Dy() {
		h = bounds.Dy()
	}
	if w <= 0 || h <= 0 {
		return image.Rectangle{}, false, fmt.Errorf("capture size must be positive")
	}
	left := bounds.Min.X + (bounds.Dx()-w)/2
	top := bounds.Min.Y + (bounds.Dy()-h)/2
	region := image.Rect(left, top, left+w, top+h)
	adjusted := w != s.settings.Width || h != s.settings.Height
	return region, adjusted, nil
}
