package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/specan/pkg/coeff"
	"github.com/specan/pkg/fir"
	"github.com/specan/pkg/pipeline"
	"github.com/specan/pkg/rf"
)

// apiServer binds the HTTP handlers to the pipeline.
type apiServer struct {
	cfg  *Config
	pipe *pipeline.Pipeline
	tx   *rf.Transmitter
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// httpStatus maps the control-plane error taxonomy onto status codes.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, fir.ErrInvalidParameter),
		errors.Is(err, fir.ErrUnsupportedWindow),
		errors.Is(err, coeff.ErrLengthMismatch):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrCaptureTimeout):
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus(err))
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.pipe.Status())
}

func (s *apiServer) handleBandwidth(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		st := s.pipe.Status()
		writeJSON(w, st.Bandwidth)
	case http.MethodPost:
		var req struct {
			BandwidthHz float64 `json:"bandwidth_hz"`
			CenterHz    float64 `json:"center_hz"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		spec, err := s.pipe.SetBandwidth(req.BandwidthHz, req.CenterHz)
		if err != nil {
			writeError(w, err)
			return
		}
		broadcastJSON(map[string]interface{}{"type": "bandwidth_update", "bandwidth": spec})
		writeJSON(w, spec)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *apiServer) handleWindow(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, map[string]interface{}{
			"known":  fir.KnownWindows,
			"active": s.pipe.Status().WindowKind,
		})
	case http.MethodPost:
		var req struct {
			Kind      string `json:"kind"`
			DCRemoval bool   `json:"dc_removal"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		kind, err := fir.ParseWindowKind(req.Kind)
		if err != nil {
			writeError(w, err)
			return
		}
		spec, err := s.pipe.SetWindow(kind, req.DCRemoval)
		if err != nil {
			writeError(w, err)
			return
		}
		broadcastJSON(map[string]interface{}{"type": "window_update", "window": spec})
		writeJSON(w, spec)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *apiServer) handleCustomWindow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Coefficients []float64 `json:"coefficients"`
		DCRemoval    bool      `json:"dc_removal"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	spec, err := s.pipe.SetCustomWindow(req.Coefficients, req.DCRemoval)
	if err != nil {
		writeError(w, err)
		return
	}
	broadcastJSON(map[string]interface{}{"type": "window_update", "window": spec})
	writeJSON(w, spec)
}

func (s *apiServer) handleReceiverFrequency(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		st := s.pipe.Status()
		center := 0.0
		if st.Bandwidth != nil {
			center = st.Bandwidth.CenterFrequencyHz
		}
		writeJSON(w, map[string]float64{"center_hz": center})
	case http.MethodPost:
		var req struct {
			CenterHz float64 `json:"center_hz"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		spec, err := s.pipe.SetReceiver(req.CenterHz)
		if err != nil {
			writeError(w, err)
			return
		}
		broadcastJSON(map[string]interface{}{"type": "bandwidth_update", "bandwidth": spec})
		writeJSON(w, spec)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleFrame captures and returns a single frame as JSON.
func (s *apiServer) handleFrame(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*s.cfg.CaptureTimeout())
	defer cancel()

	frame, err := s.pipe.GetFrame(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{
		"sequence":     frame.Sequence,
		"timestamp":    frame.Timestamp.Format(time.RFC3339Nano),
		"frequency_hz": frame.FrequencyHz,
		"magnitude_db": frame.MagnitudeDB,
		"meta":         frame.Meta,
	})
}

func (s *apiServer) handleTxState(w http.ResponseWriter, r *http.Request) {
	if s.tx == nil {
		writeJSON(w, map[string]bool{"configured": false})
		return
	}
	writeJSON(w, s.tx.State())
}

func (s *apiServer) handleTxConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var params pipeline.TxParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.pipe.ConfigureTransmitter(params); err != nil {
		writeError(w, err)
		return
	}
	if s.tx != nil {
		writeJSON(w, s.tx.State())
		return
	}
	writeJSON(w, map[string]bool{"success": true})
}
