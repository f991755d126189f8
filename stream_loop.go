package main

import (
	"context"
	"log"
	"time"

	"github.com/specan/pkg/pipeline"
)

// runGlobalStreamLoop streams frames from the pipeline and broadcasts them
// to all WebSocket clients, throttled to the configured frame rate. One
// loop serves every client; it exits when the last client leaves.
func runGlobalStreamLoop(cfg *Config, pipe *pipeline.Pipeline) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pub := newFramePublisher(cfg.Server.ShmRing, cfg.Sampling.FFTSize)
	defer pub.Close()

	frames := pipe.Stream(ctx)
	var lastSent time.Time

	for frame := range frames {
		// The zero-client check and the flag clear share one critical
		// section, so a client registering in between either sees the flag
		// still set while this loop keeps serving it, or sees it cleared
		// and starts a fresh loop.
		wsClientsMu.Lock()
		if len(wsClients) == 0 {
			streamLoopRunning = false
			wsClientsMu.Unlock()
			log.Println("Global stream loop stopped")
			return
		}
		wsClientsMu.Unlock()

		serverState.mu.RLock()
		enabled := serverState.StreamingEnabled
		fps := serverState.StreamFPS
		serverState.mu.RUnlock()

		if !enabled {
			continue
		}
		if fps <= 0 {
			fps = 30
		}
		if time.Since(lastSent) < time.Second/time.Duration(fps) {
			continue // drop: consumers want the freshest frame, not all of them
		}
		lastSent = time.Now()

		buf, err := frame.MarshalBinary()
		if err != nil {
			log.Printf("Frame encode failed: %v", err)
			continue
		}
		broadcastBinary(buf)
		pub.Publish(buf)
	}

	// Frame stream ended on its own.
	wsClientsMu.Lock()
	streamLoopRunning = false
	wsClientsMu.Unlock()
	log.Println("Global stream loop stopped")
}
