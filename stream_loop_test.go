package main

import (
	"testing"
	"time"

	"github.com/specan/pkg/pipeline"
	"github.com/specan/pkg/xfer"
)

func newLoopTestPipeline(t *testing.T, cfg *Config) *pipeline.Pipeline {
	t.Helper()

	sim := xfer.NewSim(xfer.SimConfig{
		FsHz:        cfg.Sampling.FsHz,
		FFTSize:     cfg.Sampling.FFTSize,
		FilterTaps:  cfg.Sampling.FilterTaps,
		FramePeriod: time.Millisecond,
		ToneHz:      cfg.Sim.ToneHz,
	})
	t.Cleanup(func() { sim.Close() })

	return pipeline.New(pipeline.Config{
		Sampling: pipeline.SamplingContext{
			FsHz:       cfg.Sampling.FsHz,
			FFTSize:    cfg.Sampling.FFTSize,
			FilterTaps: cfg.Sampling.FilterTaps,
		},
		Transport: sim,
	})
}

// registerStreamClient mirrors the /ws registration handshake: add the
// client and take loop ownership under one lock acquisition.
func registerStreamClient(cfg *Config, pipe *pipeline.Pipeline, client *Client) {
	wsClientsMu.Lock()
	wsClients[client] = true
	shouldStart := !streamLoopRunning
	if shouldStart {
		streamLoopRunning = true
	}
	wsClientsMu.Unlock()
	if shouldStart {
		go runGlobalStreamLoop(cfg, pipe)
	}
}

func waitForFrame(t *testing.T, client *Client, what string) {
	t.Helper()
	select {
	case msg := <-client.send:
		if _, ok := msg.([]byte); !ok {
			t.Fatalf("%s: expected a binary frame, got %T", what, msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("%s: no frame delivered", what)
	}
}

// A client connecting right after the previous one disconnects must always
// end up with a serving loop: either the old loop is still running and picks
// the new client up, or the running flag is already down and the new client
// starts a fresh loop. The disconnect/reconnect cycle races the loop's exit
// path on purpose.
func TestStreamLoop_ReconnectAfterLastClientAlwaysStreams(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sampling.FFTSize = 256
	cfg.Server.ShmRing = ""
	pipe := newLoopTestPipeline(t, cfg)

	serverState.mu.Lock()
	serverState.StreamFPS = 1000
	serverState.mu.Unlock()
	t.Cleanup(func() {
		serverState.mu.Lock()
		serverState.StreamFPS = 30
		serverState.mu.Unlock()
	})

	prev := &Client{send: make(chan interface{}, 16)}
	registerStreamClient(cfg, pipe, prev)
	waitForFrame(t, prev, "initial client")

	for i := 0; i < 20; i++ {
		wsClientsMu.Lock()
		delete(wsClients, prev)
		wsClientsMu.Unlock()

		next := &Client{send: make(chan interface{}, 16)}
		registerStreamClient(cfg, pipe, next)
		waitForFrame(t, next, "reconnected client")
		prev = next
	}

	wsClientsMu.Lock()
	delete(wsClients, prev)
	wsClientsMu.Unlock()

	deadline := time.Now().Add(2 * time.Second)
	for {
		wsClientsMu.RLock()
		running := streamLoopRunning
		wsClientsMu.RUnlock()
		if !running {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("stream loop never released ownership after the last client left")
		}
		time.Sleep(time.Millisecond)
	}
}
