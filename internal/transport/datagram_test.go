package transport

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func TestDatagramRoundTrip(t *testing.T) {
	ln, err := ListenDatagram("127.0.0.1:0", time.Second)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	conn, err := DialDatagram(ln.Addr())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	payload := bytes.Repeat([]byte{0x42}, 1500)
	if err := conn.SendFrame(payload); err != nil {
		t.Fatalf("send: %v", err)
	}

	frame, sender, err := ln.ReadFrame()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(frame, payload) {
		t.Fatalf("got %d bytes, want %d", len(frame), len(payload))
	}
	if sender == "" {
		t.Fatal("expected a sender address")
	}
}

func TestDatagramRefusesOversizedFrame(t *testing.T) {
	ln, err := ListenDatagram("127.0.0.1:0", 50*time.Millisecond)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	conn, err := DialDatagram(ln.Addr())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.SendFrame(make([]byte, MaxDatagramBytes)); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge at the limit, got %v", err)
	}

	// Nothing should have hit the wire.
	if _, _, err := ln.ReadFrame(); !IsTimeout(err) {
		t.Fatalf("expected read timeout, got %v", err)
	}
}

func TestDatagramLargestAllowedFrame(t *testing.T) {
	ln, err := ListenDatagram("127.0.0.1:0", time.Second)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	conn, err := DialDatagram(ln.Addr())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	payload := make([]byte, MaxDatagramBytes-1)
	if err := conn.SendFrame(payload); err != nil {
		t.Fatalf("send at limit-1: %v", err)
	}
	frame, _, err := ln.ReadFrame()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(frame) != len(payload) {
		t.Fatalf("got %d bytes, want %d", len(frame), len(payload))
	}
}
