// Minimal WebSocket consumer used to smoke-test the frame stream: connects,
// reads a handful of frames and prints the peak of each.
package main

import (
	"flag"
	"fmt"
	"log"
	"net/url"

	"github.com/gorilla/websocket"

	"github.com/specan/pkg/pipeline"
)

func main() {
	host := flag.String("host", "localhost:8080", "samd host:port")
	count := flag.Int("n", 20, "frames to read")
	flag.Parse()

	u := url.URL{Scheme: "ws", Host: *host, Path: "/ws"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer c.Close()

	c.WriteJSON(map[string]interface{}{"type": "stream_control", "enabled": true, "fps": 10})

	read := 0
	for read < *count {
		msgType, msg, err := c.ReadMessage()
		if err != nil {
			log.Fatal("read:", err)
		}
		if msgType != websocket.BinaryMessage {
			continue // JSON status updates
		}

		var frame pipeline.Frame
		if err := frame.UnmarshalBinary(msg); err != nil {
			log.Printf("bad frame: %v", err)
			continue
		}

		peakDB, peakHz := -1e9, 0.0
		for i, db := range frame.MagnitudeDB {
			if db > peakDB {
				peakDB = db
				peakHz = frame.FrequencyHz[i]
			}
		}
		fmt.Printf("frame %6d  center %8.3f MHz  res %7.1f Hz  peak %6.1f dB @ %8.3f MHz\n",
			frame.Sequence, frame.Meta.CenterFrequencyHz/1e6, frame.Meta.ResolutionHz,
			peakDB, peakHz/1e6)
		read++
	}
}
