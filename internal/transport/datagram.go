package transport

import (
	"fmt"
	"net"
	"time"
)

// DatagramConn sends one frame per datagram to a fixed peer. No header, no
// fragmentation: frames at or above MaxDatagramBytes are refused with
// ErrFrameTooLarge and the caller decides whether to warn.
type DatagramConn struct {
	conn *net.UDPConn
}

func DialDatagram(addr string) (*DatagramConn, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &DatagramConn{conn: conn}, nil
}

func (c *DatagramConn) SendFrame(data []byte) error {
	if len(data) >= MaxDatagramBytes {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(data))
	}
	if _, err := c.conn.Write(data); err != nil {
		return fmt.Errorf("send datagram: %w", err)
	}
	return nil
}

func (c *DatagramConn) Close() error {
	return c.conn.Close()
}

// DatagramListener receives candidate frames, one per inbound datagram.
// Each datagram is independent; there is no session or ordering.
type DatagramListener struct {
	conn        *net.UDPConn
	readTimeout time.Duration
	buf         []byte
}

func ListenDatagram(addr string, readTimeout time.Duration) (*DatagramListener, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", addr, err)
	}
	return &DatagramListener{
		conn:        conn,
		readTimeout: readTimeout,
		buf:         make([]byte, MaxDatagramRead),
	}, nil
}

// ReadFrame blocks for one datagram and returns its payload plus the
// sender's address:port. The per-read deadline keeps stop checks and
// throughput flushes running while idle.
func (l *DatagramListener) ReadFrame() ([]byte, string, error) {
	if err := l.conn.SetReadDeadline(time.Now().Add(l.readTimeout)); err != nil {
		return nil, "", err
	}
	n, sender, err := l.conn.ReadFromUDP(l.buf)
	if err != nil {
		return nil, "", err
	}
	frame := make([]byte, n)
	copy(frame, l.buf[:n])
	return frame, sender.String(), nil
}

// Addr reports the bound listen address.
func (l *DatagramListener) Addr() string {
	return l.conn.LocalAddr().String()
}

func (l *DatagramListener) Close() error {
	return l.conn.Close()
}
