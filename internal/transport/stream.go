package transport

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"
)

// FrameScanner reassembles length-prefixed frames from an arbitrarily
// chunked byte stream. The buffer persists across reads, so one underlying
// read may complete zero, one, or several frames.
type FrameScanner struct {
	r     io.Reader
	buf   []byte
	max   int
	chunk []byte
}

// NewFrameScanner wraps r with a reassembly buffer. max caps a single
// frame's declared length; a prefix of zero or above max poisons the stream
// and the scanner discards everything it buffered.
func NewFrameScanner(r io.Reader, max int) *FrameScanner {
	return &FrameScanner{
		r:     r,
		max:   max,
		chunk: make([]byte, 64*1024),
	}
}

// Next returns the next complete frame. Read errors from the underlying
// reader (timeouts, EOF) surface as-is with the partial buffer kept for a
// later retry; ErrBadFrameLength is unrecoverable for this stream.
func (s *FrameScanner) Next() ([]byte, error) {
	for {
		if frame, ok, err := s.extract(); ok || err != nil {
			return frame, err
		}
		n, err := s.r.Read(s.chunk)
		if n > 0 {
			s.buf = append(s.buf, s.chunk[:n]...)
			continue
		}
		if err != nil {
			return nil, err
		}
	}
}

func (s *FrameScanner) extract() ([]byte, bool, error) {
	if len(s.buf) < 4 {
		return nil, false, nil
	}
	length := binary.BigEndian.Uint32(s.buf[:4])
	if length == 0 || int64(length) > int64(s.max) {
		// A corrupted length prefix cannot be resynchronized.
		s.buf = nil
		return nil, false, fmt.Errorf("%w: %d bytes", ErrBadFrameLength, length)
	}
	total := 4 + int(length)
	if len(s.buf) < total {
		return nil, false, nil
	}
	frame := make([]byte, length)
	copy(frame, s.buf[4:total])
	s.buf = s.buf[:copy(s.buf, s.buf[total:])]
	return frame, true, nil
}

// Buffered reports how many unconsumed bytes the scanner is holding.
func (s *FrameScanner) Buffered() int {
	return len(s.buf)
}

// StreamConn frames frames over a reliable ordered byte connection:
// u32 big-endian length followed by the payload, written as one buffer.
type StreamConn struct {
	conn    net.Conn
	timeout time.Duration
	scanner *FrameScanner
}

// DialStream connects to addr with a bounded connect timeout. ioTimeout
// bounds every subsequent read and write so a cooperative stop stays
// responsive.
func DialStream(addr string, connectTimeout, ioTimeout time.Duration) (*StreamConn, error) {
	conn, err := net.DialTimeout("tcp", addr, connectTimeout)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}
	return NewStreamConn(conn, ioTimeout), nil
}

// NewStreamConn wraps an established connection (typically one returned by
// StreamListener.Accept).
func NewStreamConn(conn net.Conn, ioTimeout time.Duration) *StreamConn {
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	return &StreamConn{
		conn:    conn,
		timeout: ioTimeout,
		scanner: NewFrameScanner(conn, MaxStreamFrameBytes),
	}
}

// SendFrame writes the length prefix and payload as a single write. Any
// error, including a deadline expiration, means the stream is no longer
// coherent and the session must end.
func (c *StreamConn) SendFrame(data []byte) error {
	if len(data) == 0 || len(data) > MaxStreamFrameBytes {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(data))
	}
	buf := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(data)))
	copy(buf[4:], data)

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return err
	}
	if _, err := c.conn.Write(buf); err != nil {
		return fmt.Errorf("send frame: %w", err)
	}
	return nil
}

// ReadFrame blocks until one whole frame is reassembled, the per-read
// deadline expires, or the connection fails. io.EOF signals a clean peer
// disconnect.
func (c *StreamConn) ReadFrame() ([]byte, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return nil, err
	}
	return c.scanner.Next()
}

// RemoteAddr identifies the peer as address:port.
func (c *StreamConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *StreamConn) Close() error {
	return c.conn.Close()
}

// StreamListener accepts stream peers with a bounded accept timeout so the
// owning loop can observe its stop flag while idle.
type StreamListener struct {
	ln            *net.TCPListener
	acceptTimeout time.Duration
	ioTimeout     time.Duration
}

func ListenStream(addr string, acceptTimeout, ioTimeout time.Duration) (*StreamListener, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}
	ln, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return &StreamListener{
		ln:            ln,
		acceptTimeout: acceptTimeout,
		ioTimeout:     ioTimeout,
	}, nil
}

// Accept returns the next peer connection, or a timeout error after the
// accept window elapses with no peer.
func (l *StreamListener) Accept() (*StreamConn, error) {
	if err := l.ln.SetDeadline(time.Now().Add(l.acceptTimeout)); err != nil {
		return nil, err
	}
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	return NewStreamConn(conn, l.ioTimeout), nil
}

// Addr reports the bound listen address.
func (l *StreamListener) Addr() string {
	return l.ln.Addr().String()
}

func (l *StreamListener) Close() error {
	return l.ln.Close()
}
