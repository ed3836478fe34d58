package transport

import (
	"errors"
	"net"
)

// Size limits. Neither is negotiated on the wire: the stream limit protects
// the receiver from corrupt or hostile length prefixes, the datagram limit
// keeps frames under common path-MTU fragmentation thresholds.
const (
	// MaxStreamFrameBytes caps a single length-prefixed frame on the
	// reliable stream path.
	MaxStreamFrameBytes = 20 * 1024 * 1024

	// MaxDatagramBytes is the largest frame the datagram sender will put on
	// the wire as a single packet.
	MaxDatagramBytes = 60000

	// MaxDatagramRead bounds a single receive buffer (the UDP payload
	// maximum).
	MaxDatagramRead = 65535

	// MaxChannelFrameBytes caps a frame on the data-channel path, where
	// SCTP message size limits apply.
	MaxChannelFrameBytes = 256 * 1024
)

var (
	// ErrFrameTooLarge marks a frame dropped for exceeding the transport's
	// size limit. Non-fatal on the datagram and channel paths.
	ErrFrameTooLarge = errors.New("frame exceeds transport size limit")

	// ErrBadFrameLength marks a zero or oversized length prefix on the
	// stream path. Fatal for the connection that produced it.
	ErrBadFrameLength = errors.New("invalid frame length prefix")

	// ErrClosed is returned by operations on a closed transport.
	ErrClosed = errors.New("transport closed")
)

// FrameSender ships one compressed frame per call.
type FrameSender interface {
	SendFrame(data []byte) error
	Close() error
}

// IsTimeout reports whether err is a transient read/write deadline
// expiration rather than a real failure.
func IsTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
