package main

import (
	"context"
	"sync"
)

// ServerState is the mutable state of the samd service.
type ServerState struct {
	mu sync.RWMutex

	// Streaming
	StreamingEnabled bool
	StreamFPS        int

	// Recording
	Recording       bool
	RecordingID     string
	RecordingFile   string
	RecordingFrames int // target frame count; 0 = run until stopped
	RecordedFrames  int
	stopRecording   context.CancelFunc
}

var serverState = &ServerState{
	StreamingEnabled: true,
	StreamFPS:        30,
}
