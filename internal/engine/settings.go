package engine

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// Protocol selects the frame transport strategy for a run.
type Protocol string

const (
	// ProtocolStream frames over a reliable ordered TCP connection.
	ProtocolStream Protocol = "tcp"
	// ProtocolDatagram sends one frame per UDP datagram.
	ProtocolDatagram Protocol = "udp"
	// ProtocolChannel frames over a brokered WebRTC data channel.
	ProtocolChannel Protocol = "webrtc"
)

// ParseProtocol maps a config string to a Protocol.
func ParseProtocol(s string) (Protocol, error) {
	switch Protocol(s) {
	case ProtocolStream, ProtocolDatagram, ProtocolChannel:
		return Protocol(s), nil
	default:
		return "", fmt.Errorf("unknown protocol %q (want tcp, udp, or webrtc)", s)
	}
}

// Dimension limits for the capture crop, matching the desktop app's input
// validation.
const (
	MinDimension = 16
	MaxDimension = 8192
)

var ErrAlreadyRunning = errors.New("engine is already running")

// Settings fixes one engine run. Quality and FPSCeiling have live-update
// counterparts on the engines; everything else is immutable until the next
// Start.
type Settings struct {
	// Address is the peer address for the sender, the bind address for the
	// receiver ("" or "0.0.0.0" binds the wildcard).
	Address string
	Port    int

	Protocol Protocol

	// Width/Height are the capture crop for the sender. On the receiver
	// they are an optional display resize; zero keeps the native size.
	Width  int
	Height int

	Quality       int
	FPSCeiling    int
	SocketTimeout time.Duration

	// Channel transport only.
	SignalingURL string
	LocalID      string
	PeerID       string
}

func (s *Settings) validateCommon() error {
	if _, err := ParseProtocol(string(s.Protocol)); err != nil {
		return err
	}
	if s.SocketTimeout <= 0 {
		return fmt.Errorf("socket timeout must be positive, got %s", s.SocketTimeout)
	}
	if s.FPSCeiling < 1 {
		return fmt.Errorf("fps ceiling must be at least 1, got %d", s.FPSCeiling)
	}
	return nil
}

// ValidateSender rejects configurations before a sender run starts.
func (s *Settings) ValidateSender() error {
	if err := s.validateCommon(); err != nil {
		return err
	}
	if s.Protocol == ProtocolChannel {
		if s.SignalingURL == "" || s.PeerID == "" {
			return fmt.Errorf("webrtc transport needs a signaling URL and a peer ID")
		}
	} else {
		if s.Address == "" {
			return fmt.Errorf("peer address must not be empty")
		}
		if s.Port < 1 || s.Port > 65535 {
			return fmt.Errorf("port %d out of range 1-65535", s.Port)
		}
	}
	if s.Width < MinDimension || s.Width > MaxDimension {
		return fmt.Errorf("width %d out of range %d-%d", s.Width, MinDimension, MaxDimension)
	}
	if s.Height < MinDimension || s.Height > MaxDimension {
		return fmt.Errorf("height %d out of range %d-%d", s.Height, MinDimension, MaxDimension)
	}
	if s.Quality < 1 || s.Quality > 100 {
		return fmt.Errorf("quality %d out of range 1-100", s.Quality)
	}
	return nil
}

// ValidateReceiver rejects configurations before a receiver run starts.
func (s *Settings) ValidateReceiver() error {
	if err := s.validateCommon(); err != nil {
		return err
	}
	if s.Protocol == ProtocolChannel && s.SignalingURL == "" {
		return fmt.Errorf("webrtc transport needs a signaling URL")
	}
	// Port 0 binds an ephemeral port.
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("port %d out of range 0-65535", s.Port)
	}
	if s.Width < 0 || s.Width > MaxDimension || s.Height < 0 || s.Height > MaxDimension {
		return fmt.Errorf("display size %dx%d out of range", s.Width, s.Height)
	}
	return nil
}

func (s *Settings) hostPort() string {
	return net.JoinHostPort(s.Address, fmt.Sprintf("%d", s.Port))
}

func (s *Settings) isWildcardBind() bool {
	return s.Address == "" || s.Address == "0.0.0.0" || s.Address == "::"
}
