//go:build unix

package main

import (
	"log"

	"github.com/specan/pkg/framering"
)

// framePublisher mirrors streamed frames into a shared-memory ring so
// external visualizers can pick up the newest frame without a socket.
type framePublisher struct {
	ring *framering.Ring
}

// newFramePublisher opens the ring named in the config; an empty name
// disables publishing. Slot geometry covers one serialized frame.
func newFramePublisher(name string, fftSize int) *framePublisher {
	if name == "" {
		return &framePublisher{}
	}
	// Header + bins, rounded up generously to keep slots page-friendly.
	slotSize := uint32(fftSize*4 + 256)
	ring, err := framering.Create(name, slotSize, 8)
	if err != nil {
		log.Printf("Frame ring %s unavailable: %v", name, err)
		return &framePublisher{}
	}
	log.Printf("Publishing frames to shared-memory ring %s", name)
	return &framePublisher{ring: ring}
}

func (p *framePublisher) Publish(frame []byte) {
	if p.ring == nil {
		return
	}
	if err := p.ring.Publish(frame); err != nil {
		log.Printf("Frame ring publish failed: %v", err)
	}
}

func (p *framePublisher) Close() {
	if p.ring != nil {
		p.ring.Close()
	}
}
