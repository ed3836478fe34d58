package engine

import "image"

// PeerNone is the peer identity reported when no remote sender is active.
const PeerNone = "none"

// Events are the callbacks an engine emits for its presentation consumer.
// All callbacks run on the engine goroutine and must return quickly; nil
// callbacks are skipped.
type Events struct {
	// OnFrame delivers a decoded frame (receiver) or the local capture
	// preview (sender).
	OnFrame func(img *image.RGBA)
	// OnThroughput reports frames per second once per second.
	OnThroughput func(fps int)
	// OnStatus carries human-readable state changes and failures.
	OnStatus func(text string)
	// OnPeerChange reports the active remote sender, or PeerNone.
	OnPeerChange func(identity string)
}

func (e Events) frame(img *image.RGBA) {
	if e.OnFrame != nil {
		e.OnFrame(img)
	}
}

func (e Events) throughput(fps int) {
	if e.OnThroughput != nil {
		e.OnThroughput(fps)
	}
}

func (e Events) status(text string) {
	if e.OnStatus != nil {
		e.OnStatus(text)
	}
}

func (e Events) peer(identity string) {
	if e.OnPeerChange != nil {
		e.OnPeerChange(identity)
	}
}
