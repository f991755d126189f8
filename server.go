package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/specan/pkg/pipeline"
	"github.com/specan/pkg/rf"
)

// WebSocket clients
var (
	wsClients         = make(map[*Client]bool)
	wsClientsMu       sync.RWMutex
	streamLoopRunning = false
)

// Client is one WebSocket consumer with its own send queue. Slow consumers
// drop frames rather than stalling the broadcast loop.
type Client struct {
	conn *websocket.Conn
	send chan interface{}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		switch v := msg.(type) {
		case []byte:
			if err := c.conn.WriteMessage(websocket.BinaryMessage, v); err != nil {
				return
			}
		default:
			if err := c.conn.WriteJSON(v); err != nil {
				return
			}
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// runServer starts the HTTP/WebSocket service around the pipeline.
func runServer(cfg *Config, pipe *pipeline.Pipeline, tx *rf.Transmitter) {
	upgrader := websocket.Upgrader{
		CheckOrigin:     func(r *http.Request) bool { return true },
		ReadBufferSize:  1024,
		WriteBufferSize: 65536,
	}

	srv := &apiServer{cfg: cfg, pipe: pipe, tx: tx}

	// Parameter surface
	http.HandleFunc("/api/status", srv.handleStatus)
	http.HandleFunc("/api/bandwidth", srv.handleBandwidth)
	http.HandleFunc("/api/window", srv.handleWindow)
	http.HandleFunc("/api/window/custom", srv.handleCustomWindow)
	http.HandleFunc("/api/receiver/frequency", srv.handleReceiverFrequency)
	http.HandleFunc("/api/frame", srv.handleFrame)

	// Test transmitter
	http.HandleFunc("/api/txgen/state", srv.handleTxState)
	http.HandleFunc("/api/txgen/config", srv.handleTxConfig)

	// Recording
	http.HandleFunc("/api/record/start", srv.handleRecordStart)
	http.HandleFunc("/api/record/stop", srv.handleRecordStop)
	http.HandleFunc("/api/record/status", srv.handleRecordStatus)

	http.Handle("/metrics", promhttp.Handler())

	// WebSocket frame streaming
	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("Upgrade:", err)
			return
		}

		log.Println("Client connected")
		client := &Client{conn: conn, send: make(chan interface{}, 256)}

		wsClientsMu.Lock()
		wsClients[client] = true
		metricWSClients.Set(float64(len(wsClients)))
		shouldStart := !streamLoopRunning
		if shouldStart {
			streamLoopRunning = true
		}
		wsClientsMu.Unlock()

		if shouldStart {
			go runGlobalStreamLoop(cfg, pipe)
		}

		go client.writePump()

		defer func() {
			wsClientsMu.Lock()
			delete(wsClients, client)
			metricWSClients.Set(float64(len(wsClients)))
			wsClientsMu.Unlock()
			close(client.send)
			log.Println("Client disconnected")
		}()

		// Read pump: control messages from the client.
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var ctrl struct {
				Type    string `json:"type"`
				Enabled *bool  `json:"enabled"`
				FPS     int    `json:"fps"`
			}
			if err := json.Unmarshal(msg, &ctrl); err != nil {
				continue
			}
			serverState.mu.Lock()
			if ctrl.Type == "stream_control" && ctrl.Enabled != nil {
				serverState.StreamingEnabled = *ctrl.Enabled
			}
			if ctrl.FPS > 0 {
				serverState.StreamFPS = ctrl.FPS
			}
			serverState.mu.Unlock()
		}
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Printf("Spectrum analyser server listening on http://localhost%s", addr)
	log.Fatal(http.ListenAndServe(addr, nil))
}

func broadcastJSON(msg interface{}) {
	wsClientsMu.RLock()
	defer wsClientsMu.RUnlock()
	for client := range wsClients {
		select {
		case client.send <- msg:
		default:
		}
	}
}

func broadcastBinary(msg []byte) {
	wsClientsMu.RLock()
	defer wsClientsMu.RUnlock()
	for client := range wsClients {
		select {
		case client.send <- msg:
		default:
			// Drop the frame rather than block the loop.
		}
	}
}
