package engine

import (
	"encoding/binary"
	"image"
	"image/color"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hxlab/hxstream/internal/encoder"
	"github.com/hxlab/hxstream/internal/transport"
)

// fakeProvider serves synthetic frames so engine tests need no display.
type fakeProvider struct {
	bounds image.Rectangle
}

func (p fakeProvider) Bounds() (image.Rectangle, error) {
	return p.bounds, nil
}

func (p fakeProvider) Capture(region image.Rectangle) (*image.RGBA, error) {
	img := image.NewRGBA(image.Rect(0, 0, region.Dx(), region.Dy()))
	for y := 0; y < region.Dy(); y++ {
		for x := 0; x < region.Dx(); x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 64, A: 255})
		}
	}
	return img, nil
}

// recorder collects engine events for assertions.
type recorder struct {
	mu       sync.Mutex
	frames   int
	statuses []string
	peers    []string
	fps      []int
}

func (r *recorder) events() Events {
	return Events{
		OnFrame:      func(*image.RGBA) { r.mu.Lock(); r.frames++; r.mu.Unlock() },
		OnStatus:     func(s string) { r.mu.Lock(); r.statuses = append(r.statuses, s); r.mu.Unlock() },
		OnPeerChange: func(p string) { r.mu.Lock(); r.peers = append(r.peers, p); r.mu.Unlock() },
		OnThroughput: func(f int) { r.mu.Lock(); r.fps = append(r.fps, f); r.mu.Unlock() },
	}
}

func (r *recorder) frameCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

func (r *recorder) lastPeer() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.peers) == 0 {
		return ""
	}
	return r.peers[len(r.peers)-1]
}

func (r *recorder) statusContaining(substr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.statuses {
		if strings.Contains(s, substr) {
			return true
		}
	}
	return false
}

func (r *recorder) maxThroughput() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	max := 0
	for _, f := range r.fps {
		if f > max {
			max = f
		}
	}
	return max
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func splitAddr(t *testing.T, addr string) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split %q: %v", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("port %q: %v", portStr, err)
	}
	return host, port
}

func stopAndWait(t *testing.T, stop func(), done <-chan struct{}) {
	t.Helper()
	stop()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop")
	}
}

func startReceiver(t *testing.T, protocol Protocol, rec *recorder) *Receiver {
	t.Helper()
	receiver := NewReceiver(Settings{
		Address:       "127.0.0.1",
		Port:          0,
		Protocol:      protocol,
		FPSCeiling:    240,
		SocketTimeout: 200 * time.Millisecond,
	}, rec.events(), nil)
	if err := receiver.Start(); err != nil {
		t.Fatalf("start receiver: %v", err)
	}
	return receiver
}

func startSender(t *testing.T, protocol Protocol, addr string, rec *recorder) *Sender {
	t.Helper()
	host, port := splitAddr(t, addr)
	sender := NewSender(Settings{
		Address:       host,
		Port:          port,
		Protocol:      protocol,
		Width:         64,
		Height:        64,
		Quality:       70,
		FPSCeiling:    60,
		SocketTimeout: 200 * time.Millisecond,
	}, fakeProvider{bounds: image.Rect(0, 0, 640, 480)}, rec.events(), nil)
	if err := sender.Start(); err != nil {
		t.Fatalf("start sender: %v", err)
	}
	return sender
}

func TestStreamEndToEnd(t *testing.T) {
	recvRec := &recorder{}
	receiver := startReceiver(t, ProtocolStream, recvRec)
	defer stopAndWait(t, receiver.Stop, receiver.Done())

	sendRec := &recorder{}
	sender := startSender(t, ProtocolStream, receiver.Addr(), sendRec)

	waitFor(t, 5*time.Second, "frames at the receiver", func() bool {
		return recvRec.frameCount() > 5
	})
	if peer := recvRec.lastPeer(); peer == PeerNone || !strings.HasPrefix(peer, "127.0.0.1:") {
		t.Fatalf("peer identity %q, want the sender's address:port", peer)
	}
	if receiver.State() != StateListening && receiver.State() != StateStreaming {
		t.Fatalf("unexpected receiver state %v", receiver.State())
	}

	// Disconnect: the receiver reports it and returns to accepting.
	stopAndWait(t, sender.Stop, sender.Done())
	waitFor(t, 5*time.Second, "peer reset after disconnect", func() bool {
		return recvRec.lastPeer() == PeerNone
	})
	if !recvRec.statusContaining("disconnected") {
		t.Fatal("expected a disconnect status")
	}

	// A second sender is accepted on the same listener.
	before := recvRec.frameCount()
	sender2 := startSender(t, ProtocolStream, receiver.Addr(), &recorder{})
	defer stopAndWait(t, sender2.Stop, sender2.Done())
	waitFor(t, 5*time.Second, "frames from the second sender", func() bool {
		return recvRec.frameCount() > before
	})
}

func TestStreamThroughputTracksSenderRate(t *testing.T) {
	recvRec := &recorder{}
	receiver := startReceiver(t, ProtocolStream, recvRec)
	defer stopAndWait(t, receiver.Stop, receiver.Done())

	host, port := splitAddr(t, receiver.Addr())
	sender := NewSender(Settings{
		Address:       host,
		Port:          port,
		Protocol:      ProtocolStream,
		Width:         64,
		Height:        64,
		Quality:       70,
		FPSCeiling:    30,
		SocketTimeout: 200 * time.Millisecond,
	}, fakeProvider{bounds: image.Rect(0, 0, 640, 480)}, Events{}, nil)
	if err := sender.Start(); err != nil {
		t.Fatalf("start sender: %v", err)
	}
	defer stopAndWait(t, sender.Stop, sender.Done())

	// Let a couple of one-second sample windows complete.
	waitFor(t, 10*time.Second, "a throughput sample near the 30fps ceiling", func() bool {
		got := recvRec.maxThroughput()
		return got >= 20 && got <= 40
	})
}

func TestStreamProtocolViolationDropsConnection(t *testing.T) {
	recvRec := &recorder{}
	receiver := startReceiver(t, ProtocolStream, recvRec)
	defer stopAndWait(t, receiver.Stop, receiver.Done())

	// A hostile peer sends an absurd length prefix.
	raw, err := net.Dial("tcp", receiver.Addr())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], 0xFFFFFFFF)
	if _, err := raw.Write(hdr[:]); err != nil {
		t.Fatalf("write: %v", err)
	}

	waitFor(t, 5*time.Second, "the connection to be dropped", func() bool {
		return recvRec.statusContaining("protocol violation")
	})
	raw.Close()
	waitFor(t, 5*time.Second, "peer reset", func() bool {
		return recvRec.lastPeer() == PeerNone
	})

	// The listener survives and accepts a well-behaved peer.
	conn, err := transport.DialStream(receiver.Addr(), time.Second, time.Second)
	if err != nil {
		t.Fatalf("dial after violation: %v", err)
	}
	defer conn.Close()

	frame := encodeFrame(t, 32, 32)
	if err := conn.SendFrame(frame); err != nil {
		t.Fatalf("send: %v", err)
	}
	waitFor(t, 5*time.Second, "a decoded frame after recovery", func() bool {
		return recvRec.frameCount() > 0
	})
}

func TestDatagramEndToEnd(t *testing.T) {
	recvRec := &recorder{}
	receiver := startReceiver(t, ProtocolDatagram, recvRec)
	defer stopAndWait(t, receiver.Stop, receiver.Done())

	sendRec := &recorder{}
	sender := startSender(t, ProtocolDatagram, receiver.Addr(), sendRec)
	defer stopAndWait(t, sender.Stop, sender.Done())

	waitFor(t, 5*time.Second, "datagram frames at the receiver", func() bool {
		return recvRec.frameCount() > 5
	})
	if peer := recvRec.lastPeer(); peer == PeerNone || !strings.HasPrefix(peer, "127.0.0.1:") {
		t.Fatalf("peer identity %q, want the sender's address:port", peer)
	}
}

func TestDatagramUndecodableFrameIsDropped(t *testing.T) {
	recvRec := &recorder{}
	receiver := startReceiver(t, ProtocolDatagram, recvRec)
	defer stopAndWait(t, receiver.Stop, receiver.Done())

	conn, err := transport.DialDatagram(receiver.Addr())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.SendFrame([]byte("not a jpeg")); err != nil {
		t.Fatalf("send: %v", err)
	}
	waitFor(t, 5*time.Second, "the drop warning", func() bool {
		return recvRec.statusContaining("undecodable")
	})

	// A valid frame still gets through afterwards.
	if err := conn.SendFrame(encodeFrame(t, 32, 32)); err != nil {
		t.Fatalf("send valid: %v", err)
	}
	waitFor(t, 5*time.Second, "a decoded frame after the bad one", func() bool {
		return recvRec.frameCount() > 0
	})
}

func TestReceiverBindFallbackToWildcard(t *testing.T) {
	rec := &recorder{}
	receiver := NewReceiver(Settings{
		Address:       "203.0.113.1", // not local, bind must fail
		Port:          0,
		Protocol:      ProtocolStream,
		FPSCeiling:    60,
		SocketTimeout: 200 * time.Millisecond,
	}, rec.events(), nil)
	if err := receiver.Start(); err != nil {
		t.Fatalf("fallback bind failed: %v", err)
	}
	defer stopAndWait(t, receiver.Stop, receiver.Done())

	if !rec.statusContaining("falling back") {
		t.Fatal("expected a fallback status")
	}
	host, _ := splitAddr(t, receiver.Addr())
	if host != "0.0.0.0" {
		t.Fatalf("bound to %q, want the wildcard", host)
	}
}

func TestSenderDoubleStart(t *testing.T) {
	recvRec := &recorder{}
	receiver := startReceiver(t, ProtocolStream, recvRec)
	defer stopAndWait(t, receiver.Stop, receiver.Done())

	sender := startSender(t, ProtocolStream, receiver.Addr(), &recorder{})
	defer stopAndWait(t, sender.Stop, sender.Done())

	if err := sender.Start(); err != ErrAlreadyRunning {
		t.Fatalf("second Start: got %v, want ErrAlreadyRunning", err)
	}
}

func TestSenderConnectFailure(t *testing.T) {
	// A closed port: the dial fails synchronously.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("probe listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	rec := &recorder{}
	host, port := splitAddr(t, addr)
	sender := NewSender(Settings{
		Address:       host,
		Port:          port,
		Protocol:      ProtocolStream,
		Width:         64,
		Height:        64,
		Quality:       70,
		FPSCeiling:    30,
		SocketTimeout: 200 * time.Millisecond,
	}, fakeProvider{bounds: image.Rect(0, 0, 640, 480)}, rec.events(), nil)

	if err := sender.Start(); err == nil {
		t.Fatal("expected a connect error")
	}
	if sender.State() != StateError {
		t.Fatalf("state %v, want Error", sender.State())
	}
	if !rec.statusContaining("connection failed") {
		t.Fatal("expected a connection failed status")
	}
}

func TestSenderCropAdjustedToDisplay(t *testing.T) {
	recvRec := &recorder{}
	receiver := startReceiver(t, ProtocolStream, recvRec)
	defer stopAndWait(t, receiver.Stop, receiver.Done())

	sendRec := &recorder{}
	host, port := splitAddr(t, receiver.Addr())
	sender := NewSender(Settings{
		Address:       host,
		Port:          port,
		Protocol:      ProtocolStream,
		Width:         4096, // wider than the 640x480 fake display
		Height:        64,
		Quality:       70,
		FPSCeiling:    60,
		SocketTimeout: 200 * time.Millisecond,
	}, fakeProvider{bounds: image.Rect(0, 0, 640, 480)}, sendRec.events(), nil)
	if err := sender.Start(); err != nil {
		t.Fatalf("start sender: %v", err)
	}
	defer stopAndWait(t, sender.Stop, sender.Done())

	waitFor(t, 5*time.Second, "the crop notice", func() bool {
		return sendRec.statusContaining("cropped to 640x64")
	})
	waitFor(t, 5*time.Second, "frames at the receiver", func() bool {
		return recvRec.frameCount() > 0
	})
}

func encodeFrame(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	data, err := encoder.NewJPEGEncoder(70).Encode(img)
	if err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return data
}
