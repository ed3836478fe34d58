package engine

import (
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/hxlab/hxstream/internal/decoder"
	"github.com/hxlab/hxstream/internal/logging"
	"github.com/hxlab/hxstream/internal/metrics"
	"github.com/hxlab/hxstream/internal/transport"
)

const acceptTimeout = time.Second

// frameSource is the receive half of a frame transport: a blocking read
// that yields one whole frame.
type frameSource interface {
	ReadFrame() ([]byte, error)
}

// Receiver binds a transport, reconstructs frames, and emits decoded images
// through the event surface. The stream path accepts one peer at a time and
// returns to accepting after a disconnect or framing violation; the
// datagram path tracks whichever address sent last.
type Receiver struct {
	settings  Settings
	events    Events
	collector *metrics.Collector

	fpsCeiling atomic.Int64
	running    atomic.Bool
	state      atomic.Int32
	done       chan struct{}
	boundAddr  string
}

func NewReceiver(settings Settings, events Events, collector *metrics.Collector) *Receiver {
	r := &Receiver{
		settings:  settings,
		events:    events,
		collector: collector,
	}
	r.fpsCeiling.Store(int64(settings.FPSCeiling))
	r.state.Store(int32(StateIdle))
	return r
}

// Start validates settings and binds the transport synchronously, so bind
// failures surface here; the receive loop then runs on its own goroutine.
// A bind failure on a specific address falls back once to the wildcard.
func (r *Receiver) Start() error {
	if r.running.Load() {
		return ErrAlreadyRunning
	}
	if err := r.settings.ValidateReceiver(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	r.running.Store(true)
	r.done = make(chan struct{})

	var err error
	switch r.settings.Protocol {
	case ProtocolStream:
		var ln *transport.StreamListener
		ln, err = r.bindStream()
		if err == nil {
			r.boundAddr = ln.Addr()
			r.setState(StateListening)
			go r.runStream(ln)
		}
	case ProtocolDatagram:
		var ln *transport.DatagramListener
		ln, err = r.bindDatagram()
		if err == nil {
			r.boundAddr = ln.Addr()
			r.setState(StateListening)
			go r.runDatagram(ln)
		}
	case ProtocolChannel:
		var ln *transport.ChannelListener
		ln, err = transport.ListenChannel(r.settings.SignalingURL, r.settings.LocalID, r.settings.SocketTimeout)
		if err == nil {
			r.boundAddr = ln.Addr()
			r.setState(StateListening)
			go r.runChannel(ln)
		}
	default:
		err = fmt.Errorf("unknown protocol %q", r.settings.Protocol)
	}

	if err != nil {
		r.running.Store(false)
		close(r.done)
		r.setState(StateError)
		r.events.status("bind failed: " + err.Error())
		return err
	}
	return nil
}

func (r *Receiver) bindStream() (*transport.StreamListener, error) {
	ln, err := transport.ListenStream(r.settings.hostPort(), acceptTimeout, r.settings.SocketTimeout)
	if err != nil && !r.settings.isWildcardBind() {
		r.warnFallback(err)
		ln, err = transport.ListenStream(r.wildcardHostPort(), acceptTimeout, r.settings.SocketTimeout)
	}
	return ln, err
}

func (r *Receiver) bindDatagram() (*transport.DatagramListener, error) {
	ln, err := transport.ListenDatagram(r.settings.hostPort(), acceptTimeout)
	if err != nil && !r.settings.isWildcardBind() {
		r.warnFallback(err)
		ln, err = transport.ListenDatagram(r.wildcardHostPort(), acceptTimeout)
	}
	return ln, err
}

func (r *Receiver) wildcardHostPort() string {
	return fmt.Sprintf("0.0.0.0:%d", r.settings.Port)
}

func (r *Receiver) warnFallback(err error) {
	msg := fmt.Sprintf("bind %s failed (%v), falling back to 0.0.0.0", r.settings.hostPort(), err)
	r.events.status(msg)
	logging.Warn("bind fallback", logging.Fields{
		logging.FieldAddr:  r.settings.hostPort(),
		logging.FieldError: err.Error(),
	})
}

// Stop requests a cooperative shutdown, observed at the next accept or read
// timeout (bounded by the socket timeout).
func (r *Receiver) Stop() {
	if r.running.CompareAndSwap(true, false) {
		r.setState(StateStopping)
	}
}

// Done is closed when the receive loop has fully exited.
func (r *Receiver) Done() <-chan struct{} {
	return r.done
}

func (r *Receiver) State() State {
	return State(r.state.Load())
}

// Addr reports the bound listen address (useful with port 0).
func (r *Receiver) Addr() string {
	return r.boundAddr
}

// UpdateFPSCeiling applies a new delivery ceiling mid-run.
func (r *Receiver) UpdateFPSCeiling(fps int) {
	r.fpsCeiling.Store(int64(fps))
}

func (r *Receiver) setState(st State) {
	r.state.Store(int32(st))
}

func (r *Receiver) finishRun(closeFn func() error) {
	if err := closeFn(); err != nil {
		logging.Debug("close listener", logging.Fields{logging.FieldError: err.Error()})
	}
	r.running.Store(false)
	if r.State() != StateError {
		r.setState(StateStopped)
	}
	r.events.throughput(0)
	r.collector.SetThroughput(0)
	r.events.peer(PeerNone)
	r.events.status("Stopped")
	close(r.done)
}

func (r *Receiver) newDecoder() *decoder.JPEGDecoder {
	if r.settings.Width > 0 && r.settings.Height > 0 {
		return decoder.NewResizingJPEGDecoder(r.settings.Width, r.settings.Height)
	}
	return decoder.NewJPEGDecoder()
}

// runStream is the outer accept loop: one peer connection at a time, always
// returning to accepting when the inner connection ends.
func (r *Receiver) runStream(ln *transport.StreamListener) {
	defer r.finishRun(ln.Close)

	r.events.status("tcp listening -> " + ln.Addr())
	r.events.peer(PeerNone)

	for r.running.Load() {
		conn, err := ln.Accept()
		if err != nil {
			if transport.IsTimeout(err) {
				continue
			}
			if !r.running.Load() {
				return
			}
			logging.Warn("accept failed", logging.Fields{logging.FieldError: err.Error()})
			continue
		}

		peer := conn.RemoteAddr()
		r.events.status("tcp connected <- " + peer)
		r.events.peer(peer)

		r.serveFrames(conn, peer)
		conn.Close()

		r.events.throughput(0)
		r.collector.SetThroughput(0)
		r.events.peer(PeerNone)
	}
}

// runChannel mirrors runStream over the brokered data-channel listener.
func (r *Receiver) runChannel(ln *transport.ChannelListener) {
	defer r.finishRun(ln.Close)

	r.events.status("channel listening as " + ln.Addr())
	r.events.peer(PeerNone)

	for r.running.Load() {
		conn, err := ln.Accept(acceptTimeout)
		if err != nil {
			if transport.IsTimeout(err) {
				continue
			}
			return
		}

		peer := conn.RemoteAddr()
		r.events.status("channel connected <- " + peer)
		r.events.peer(peer)

		r.serveFrames(conn, peer)
		conn.Close()

		r.events.throughput(0)
		r.collector.SetThroughput(0)
		r.events.peer(PeerNone)
	}
}

// serveFrames drains one connected peer until disconnect, a framing
// violation, or stop. Governor check runs before decode so over-budget
// frames cost no decode work.
func (r *Receiver) serveFrames(conn frameSource, peer string) {
	dec := r.newDecoder()
	var gov RateGovernor
	decodeWarn := newWarnLimiter()
	fpsCounter := 0
	lastFlush := time.Now()

	flush := func() {
		if time.Since(lastFlush) >= time.Second {
			r.events.throughput(fpsCounter)
			r.collector.SetThroughput(fpsCounter)
			fpsCounter = 0
			lastFlush = time.Now()
		}
	}

	for r.running.Load() {
		frame, err := conn.ReadFrame()
		if err != nil {
			if transport.IsTimeout(err) {
				flush()
				continue
			}
			if errors.Is(err, io.EOF) {
				r.events.status("peer " + peer + " disconnected, waiting for a new connection")
				return
			}
			if errors.Is(err, transport.ErrBadFrameLength) {
				r.events.status(fmt.Sprintf("protocol violation from %s (%v), dropping connection", peer, err))
				return
			}
			r.events.status("connection lost: " + err.Error())
			return
		}
		r.collector.FrameReceived(len(frame))

		now := time.Now()
		if !gov.ShouldEmit(now, int(r.fpsCeiling.Load())) {
			continue
		}

		img, err := dec.Decode(frame)
		if err != nil {
			r.collector.FrameDropped()
			if decodeWarn.Allow(now) {
				r.events.status("received an undecodable frame, dropped")
			}
			continue
		}

		r.events.frame(img)
		fpsCounter++
		flush()
	}
}

// runDatagram is a single receive loop with no session concept: the peer
// identity follows whichever address sent the last datagram.
func (r *Receiver) runDatagram(ln *transport.DatagramListener) {
	defer r.finishRun(ln.Close)

	r.events.status("udp listening -> " + ln.Addr())
	r.events.peer(PeerNone)

	dec := r.newDecoder()
	var gov RateGovernor
	decodeWarn := newWarnLimiter()
	lastSender := ""
	fpsCounter := 0
	lastFlush := time.Now()

	flush := func() {
		if time.Since(lastFlush) >= time.Second {
			r.events.throughput(fpsCounter)
			r.collector.SetThroughput(fpsCounter)
			fpsCounter = 0
			lastFlush = time.Now()
		}
	}

	for r.running.Load() {
		frame, sender, err := ln.ReadFrame()
		if err != nil {
			if transport.IsTimeout(err) {
				flush()
				continue
			}
			if !r.running.Load() {
				return
			}
			logging.Warn("datagram read failed", logging.Fields{logging.FieldError: err.Error()})
			continue
		}

		if sender != lastSender {
			lastSender = sender
			r.events.peer(sender)
			r.events.status("udp receiving <- " + sender)
		}
		r.collector.FrameReceived(len(frame))

		now := time.Now()
		if !gov.ShouldEmit(now, int(r.fpsCeiling.Load())) {
			continue
		}

		img, err := dec.Decode(frame)
		if err != nil {
			// Each datagram is independent, so a bad one is never fatal.
			r.collector.FrameDropped()
			if decodeWarn.Allow(now) {
				r.events.status("received an undecodable datagram, dropped")
			}
			continue
		}

		r.events.frame(img)
		fpsCounter++
		flush()
	}
}
