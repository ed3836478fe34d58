package engine

import (
	"testing"
	"time"
)

func validSenderSettings() Settings {
	return Settings{
		Address:       "127.0.0.1",
		Port:          7878,
		Protocol:      ProtocolStream,
		Width:         256,
		Height:        256,
		Quality:       80,
		FPSCeiling:    30,
		SocketTimeout: time.Second,
	}
}

func TestValidateSenderAcceptsDefaults(t *testing.T) {
	s := validSenderSettings()
	if err := s.ValidateSender(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateSenderRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"empty address", func(s *Settings) { s.Address = "" }},
		{"port zero", func(s *Settings) { s.Port = 0 }},
		{"port too high", func(s *Settings) { s.Port = 70000 }},
		{"width too small", func(s *Settings) { s.Width = MinDimension - 1 }},
		{"height too large", func(s *Settings) { s.Height = MaxDimension + 1 }},
		{"quality zero", func(s *Settings) { s.Quality = 0 }},
		{"quality above 100", func(s *Settings) { s.Quality = 101 }},
		{"fps zero", func(s *Settings) { s.FPSCeiling = 0 }},
		{"no timeout", func(s *Settings) { s.SocketTimeout = 0 }},
		{"bad protocol", func(s *Settings) { s.Protocol = "smoke-signals" }},
		{"channel without peer", func(s *Settings) {
			s.Protocol = ProtocolChannel
			s.SignalingURL = "ws://localhost:8080"
			s.PeerID = ""
		}},
	}
	for _, tc := range cases {
		s := validSenderSettings()
		tc.mutate(&s)
		if err := s.ValidateSender(); err == nil {
			t.Fatalf("%s: expected an error", tc.name)
		}
	}
}

func TestValidateSenderChannelSkipsAddress(t *testing.T) {
	s := validSenderSettings()
	s.Protocol = ProtocolChannel
	s.Address = ""
	s.Port = 0
	s.SignalingURL = "ws://localhost:8080"
	s.PeerID = "receiver-1"
	if err := s.ValidateSender(); err != nil {
		t.Fatalf("channel settings need no address: %v", err)
	}
}

func TestValidateReceiverAllowsEphemeralPort(t *testing.T) {
	s := Settings{
		Address:       "127.0.0.1",
		Port:          0,
		Protocol:      ProtocolStream,
		FPSCeiling:    60,
		SocketTimeout: time.Second,
	}
	if err := s.ValidateReceiver(); err != nil {
		t.Fatalf("port 0 must bind ephemeral: %v", err)
	}
}

func TestValidateReceiverRejections(t *testing.T) {
	base := Settings{
		Address:       "0.0.0.0",
		Port:          7878,
		Protocol:      ProtocolStream,
		FPSCeiling:    60,
		SocketTimeout: time.Second,
	}
	cases := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"negative port", func(s *Settings) { s.Port = -1 }},
		{"port too high", func(s *Settings) { s.Port = 65536 }},
		{"oversized display", func(s *Settings) { s.Width = MaxDimension + 1; s.Height = 100 }},
		{"negative display", func(s *Settings) { s.Height = -5 }},
		{"channel without signaling", func(s *Settings) { s.Protocol = ProtocolChannel }},
		{"bad protocol", func(s *Settings) { s.Protocol = "pigeon" }},
	}
	for _, tc := range cases {
		s := base
		tc.mutate(&s)
		if err := s.ValidateReceiver(); err == nil {
			t.Fatalf("%s: expected an error", tc.name)
		}
	}
}

func TestParseProtocol(t *testing.T) {
	for _, raw := range []string{"tcp", "udp", "webrtc"} {
		if _, err := ParseProtocol(raw); err != nil {
			t.Fatalf("%s: %v", raw, err)
		}
	}
	if _, err := ParseProtocol("quic"); err == nil {
		t.Fatal("expected an error for an unknown protocol")
	}
}
