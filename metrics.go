package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the control plane and the streaming surface.
var (
	metricFramesCaptured = promauto.NewCounter(prometheus.CounterOpts{
		Name: "specan_frames_captured_total",
		Help: "PSD frames successfully captured from the accelerator",
	})
	metricFramesDiscarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "specan_frames_discarded_total",
		Help: "Frames discarded because a reconfiguration landed mid-transfer",
	})
	metricCaptureTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "specan_capture_timeouts_total",
		Help: "Captures that saw no start-of-frame marker within the bounded wait",
	})
	metricCoeffReloads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "specan_coefficient_reloads_total",
		Help: "Completed coefficient reloads (filter or window)",
	})
	metricReloadFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "specan_coefficient_reload_failures_total",
		Help: "Reconfigurations that failed and reverted to the previous state",
	})
	metricWSClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "specan_websocket_clients",
		Help: "Currently connected WebSocket consumers",
	})
	metricRecordedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "specan_recorded_frames_total",
		Help: "Frames written to parquet recordings",
	})
)
