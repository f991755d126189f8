package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/specan/pkg/pipeline"
)

// handleRecordStart begins writing captured frames to a parquet file.
func (s *apiServer) handleRecordStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		File   string `json:"file"`
		Frames int    `json:"frames"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id := uuid.New().String()
	if req.File == "" {
		req.File = fmt.Sprintf("spectrum_%s.parquet", time.Now().Format("20060102_150405"))
	}

	serverState.mu.Lock()
	if serverState.Recording {
		serverState.mu.Unlock()
		http.Error(w, "recording already in progress", http.StatusConflict)
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	serverState.Recording = true
	serverState.RecordingID = id
	serverState.RecordingFile = req.File
	serverState.RecordingFrames = req.Frames
	serverState.RecordedFrames = 0
	serverState.stopRecording = cancel
	serverState.mu.Unlock()

	go performRecording(ctx, s.pipe, req.File, req.Frames)

	writeJSON(w, map[string]interface{}{
		"recording": true,
		"id":        id,
		"file":      req.File,
	})
}

func (s *apiServer) handleRecordStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	serverState.mu.Lock()
	stop := serverState.stopRecording
	serverState.mu.Unlock()

	if stop != nil {
		stop()
	}
	writeJSON(w, map[string]bool{"recording": false})
}

func (s *apiServer) handleRecordStatus(w http.ResponseWriter, r *http.Request) {
	serverState.mu.RLock()
	defer serverState.mu.RUnlock()
	writeJSON(w, map[string]interface{}{
		"recording": serverState.Recording,
		"id":        serverState.RecordingID,
		"file":      serverState.RecordingFile,
		"target":    serverState.RecordingFrames,
		"recorded":  serverState.RecordedFrames,
	})
}

// performRecording streams frames into a parquet file until the target
// count is reached or the recording is stopped. The capture path here is
// independent of the WebSocket broadcast loop; both consume the same
// continuously streaming accelerator.
func performRecording(ctx context.Context, pipe *pipeline.Pipeline, path string, target int) {
	defer func() {
		serverState.mu.Lock()
		serverState.Recording = false
		serverState.stopRecording = nil
		serverState.mu.Unlock()
	}()

	f, err := os.Create(path)
	if err != nil {
		log.Printf("Recording: create %s: %v", path, err)
		return
	}

	writer := NewFrameWriter(f, pipe.Status(), pipe.Sampling())
	recorded := 0

	for frame := range pipe.Stream(ctx) {
		if _, err := WriteFrame(writer, frame); err != nil {
			log.Printf("Recording: write frame: %v", err)
			break
		}
		recorded++
		metricRecordedFrames.Inc()

		serverState.mu.Lock()
		serverState.RecordedFrames = recorded
		serverState.mu.Unlock()

		if target > 0 && recorded >= target {
			break
		}
	}

	if err := writer.Close(); err != nil {
		log.Printf("Recording: close writer: %v", err)
	}
	if err := f.Close(); err != nil {
		log.Printf("Recording: close file: %v", err)
	}
	log.Printf("Recording finished: %d frames -> %s", recorded, path)

	broadcastJSON(map[string]interface{}{
		"type":     "recording_done",
		"file":     path,
		"recorded": recorded,
	})
}
