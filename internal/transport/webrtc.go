package transport

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/hxlab/hxstream/internal/logging"
	"github.com/hxlab/hxstream/internal/signaling"
)

// ICEServers is the default ICE server configuration for channel transports.
var ICEServers = []webrtc.ICEServer{
	{URLs: []string{"stun:stun.l.google.com:19302", "stun:stun1.l.google.com:19302"}},
}

const channelLabel = "frames"

// channelTimeoutError satisfies net.Error so IsTimeout treats an idle
// channel read like a socket deadline expiration.
type channelTimeoutError struct{}

func (channelTimeoutError) Error() string   { return "channel read timeout" }
func (channelTimeoutError) Timeout() bool   { return true }
func (channelTimeoutError) Temporary() bool { return true }

// ChannelConn carries frames over a WebRTC data channel configured like a
// datagram path: unordered, zero retransmits, size-capped.
type ChannelConn struct {
	pc   *webrtc.PeerConnection
	sig  *signaling.Client
	peer string

	mu sync.Mutex
	dc *webrtc.DataChannel

	frames      chan []byte
	readTimeout time.Duration
	closed      chan struct{}
	closeOnce   sync.Once
}

func newChannelConn(pc *webrtc.PeerConnection, sig *signaling.Client, peer string, readTimeout time.Duration) *ChannelConn {
	return &ChannelConn{
		pc:          pc,
		sig:         sig,
		peer:        peer,
		frames:      make(chan []byte, 32),
		readTimeout: readTimeout,
		closed:      make(chan struct{}),
	}
}

func (c *ChannelConn) setChannel(dc *webrtc.DataChannel) {
	c.mu.Lock()
	c.dc = dc
	c.mu.Unlock()
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		select {
		case c.frames <- msg.Data:
		default:
			// Receiver is behind; dropping is the datagram-like contract.
		}
	})
	dc.OnClose(func() {
		c.markClosed()
	})
}

func (c *ChannelConn) markClosed() {
	c.closeOnce.Do(func() { close(c.closed) })
}

func (c *ChannelConn) SendFrame(data []byte) error {
	if len(data) >= MaxChannelFrameBytes {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(data))
	}
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	c.mu.Lock()
	dc := c.dc
	c.mu.Unlock()
	if dc == nil {
		return ErrClosed
	}
	if err := dc.Send(data); err != nil {
		return fmt.Errorf("send channel frame: %w", err)
	}
	return nil
}

// ReadFrame blocks for the next whole frame, a read-timeout tick, or
// channel teardown (reported as io.EOF like a stream disconnect).
func (c *ChannelConn) ReadFrame() ([]byte, error) {
	select {
	case frame := <-c.frames:
		return frame, nil
	case <-time.After(c.readTimeout):
		return nil, channelTimeoutError{}
	case <-c.closed:
		return nil, io.EOF
	}
}

// RemoteAddr identifies the peer by its signaling ID.
func (c *ChannelConn) RemoteAddr() string {
	return c.peer
}

func (c *ChannelConn) Close() error {
	c.markClosed()
	err := c.pc.Close()
	if c.sig != nil {
		c.sig.Close()
	}
	return err
}

func newPeerConnection() (*webrtc.PeerConnection, error) {
	return webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: ICEServers})
}

func watchConnectionState(pc *webrtc.PeerConnection, conn *ChannelConn) {
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		logging.Debug("peer connection state", logging.Fields{
			logging.FieldPeer: conn.peer,
			"state":           state.String(),
		})
		switch state {
		case webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateDisconnected,
			webrtc.PeerConnectionStateClosed:
			conn.markClosed()
		}
	})
}

// DialChannel brokers a data channel to peerID through the signaling server
// and blocks until the channel opens or connectTimeout elapses.
func DialChannel(signalingURL, localID, peerID string, connectTimeout, readTimeout time.Duration) (*ChannelConn, error) {
	pc, err := newPeerConnection()
	if err != nil {
		return nil, err
	}

	ordered := false
	retransmits := uint16(0)
	dc, err := pc.CreateDataChannel(channelLabel, &webrtc.DataChannelInit{
		Ordered:        &ordered,
		MaxRetransmits: &retransmits,
	})
	if err != nil {
		pc.Close()
		return nil, err
	}

	registered := make(chan struct{})
	opened := make(chan struct{})

	var sig *signaling.Client
	sig = signaling.NewClient(signalingURL, localID, signaling.RoleSender, signaling.Handler{
		OnRegistered: func() { close(registered) },
		OnAnswer: func(from string, payload json.RawMessage) {
			var answer webrtc.SessionDescription
			if err := json.Unmarshal(payload, &answer); err != nil {
				logging.Warn("bad answer payload", logging.Fields{logging.FieldError: err.Error()})
				return
			}
			if err := pc.SetRemoteDescription(answer); err != nil {
				logging.Warn("set remote description failed", logging.Fields{logging.FieldError: err.Error()})
			}
		},
		OnCandidate: func(from string, payload json.RawMessage) {
			var candidate webrtc.ICECandidateInit
			if err := json.Unmarshal(payload, &candidate); err != nil {
				return
			}
			_ = pc.AddICECandidate(candidate)
		},
		OnError: func(msg string) {
			logging.Warn("signaling error", logging.Fields{logging.FieldError: msg})
		},
	})

	conn := newChannelConn(pc, sig, peerID, readTimeout)
	conn.setChannel(dc)
	dc.OnOpen(func() { close(opened) })
	watchConnectionState(pc, conn)

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		data, err := json.Marshal(c.ToJSON())
		if err != nil {
			return
		}
		_ = sig.SendCandidate(peerID, data)
	})

	if err := sig.Connect(); err != nil {
		pc.Close()
		return nil, err
	}

	select {
	case <-registered:
	case <-time.After(connectTimeout):
		conn.Close()
		return nil, fmt.Errorf("signaling register timeout")
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		conn.Close()
		return nil, err
	}
	offerJSON, err := json.Marshal(offer)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := sig.SendOffer(peerID, offerJSON); err != nil {
		conn.Close()
		return nil, err
	}

	select {
	case <-opened:
		return conn, nil
	case <-conn.closed:
		conn.Close()
		return nil, fmt.Errorf("channel closed during connect")
	case <-time.After(connectTimeout):
		conn.Close()
		return nil, fmt.Errorf("channel open timeout after %s", connectTimeout)
	}
}

// ChannelListener registers with the signaling server and answers offers,
// yielding one ChannelConn per connected sender.
type ChannelListener struct {
	sig         *signaling.Client
	id          string
	readTimeout time.Duration

	accepted  chan *ChannelConn
	closed    chan struct{}
	closeOnce sync.Once
}

func ListenChannel(signalingURL, localID string, readTimeout time.Duration) (*ChannelListener, error) {
	l := &ChannelListener{
		id:          localID,
		readTimeout: readTimeout,
		accepted:    make(chan *ChannelConn, 1),
		closed:      make(chan struct{}),
	}
	l.sig = signaling.NewClient(signalingURL, localID, signaling.RoleReceiver, signaling.Handler{
		OnOffer: func(from string, payload json.RawMessage) {
			if err := l.handleOffer(from, payload); err != nil {
				logging.Warn("handle offer failed", logging.Fields{
					logging.FieldPeer:  from,
					logging.FieldError: err.Error(),
				})
			}
		},
		OnError: func(msg string) {
			logging.Warn("signaling error", logging.Fields{logging.FieldError: msg})
		},
	})
	if err := l.sig.Connect(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *ChannelListener) handleOffer(from string, payload json.RawMessage) error {
	var offer webrtc.SessionDescription
	if err := json.Unmarshal(payload, &offer); err != nil {
		return err
	}

	pc, err := newPeerConnection()
	if err != nil {
		return err
	}
	conn := newChannelConn(pc, nil, from, l.readTimeout)
	watchConnectionState(pc, conn)

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != channelLabel {
			return
		}
		conn.setChannel(dc)
		dc.OnOpen(func() {
			select {
			case l.accepted <- conn:
			case <-l.closed:
				conn.Close()
			}
		})
	})
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		data, err := json.Marshal(c.ToJSON())
		if err != nil {
			return
		}
		_ = l.sig.SendCandidate(from, data)
	})

	if err := pc.SetRemoteDescription(offer); err != nil {
		pc.Close()
		return err
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		return err
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		return err
	}
	answerJSON, err := json.Marshal(answer)
	if err != nil {
		pc.Close()
		return err
	}
	return l.sig.SendAnswer(from, answerJSON)
}

// Accept blocks for the next connected sender or a timeout.
func (l *ChannelListener) Accept(timeout time.Duration) (*ChannelConn, error) {
	select {
	case conn := <-l.accepted:
		return conn, nil
	case <-time.After(timeout):
		return nil, channelTimeoutError{}
	case <-l.closed:
		return nil, ErrClosed
	}
}

// Addr reports the listener's signaling identity.
func (l *ChannelListener) Addr() string {
	return l.id
}

func (l *ChannelListener) Close() error {
	l.closeOnce.Do(func() {
		close(l.closed)
		l.sig.Close()
	})
	return nil
}
