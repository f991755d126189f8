package main

import (
	"flag"
	"log"
	"time"

	"github.com/specan/pkg/fir"
	"github.com/specan/pkg/pipeline"
	"github.com/specan/pkg/rf"
	"github.com/specan/pkg/xfer"
)

func main() {
	configPath := flag.String("config", "", "YAML configuration file")
	isServer := flag.Bool("server", false, "Run the HTTP/WebSocket server")
	port := flag.Int("p", 0, "Port to listen on (overrides config)")
	isSim := flag.Bool("sim", false, "Use the simulated accelerator instead of XDMA devices")
	frames := flag.Int("frames", 10, "Frames to capture (CLI mode)")
	outputFile := flag.String("o", "capture.parquet", "Output filename (CLI mode)")
	flag.Parse()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Config: %v", err)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *isSim {
		cfg.Hardware.Simulate = true
	}

	sctx := pipeline.SamplingContext{
		FsHz:       cfg.Sampling.FsHz,
		FFTSize:    cfg.Sampling.FFTSize,
		FilterTaps: cfg.Sampling.FilterTaps,
	}

	var transport xfer.Transport
	if cfg.Hardware.Simulate {
		log.Println("Using simulated accelerator")
		transport = xfer.NewSim(xfer.SimConfig{
			FsHz:         sctx.FsHz,
			FFTSize:      sctx.FFTSize,
			FilterTaps:   sctx.FilterTaps,
			FramePeriod:  time.Duration(cfg.Sim.FramePeriodUs) * time.Microsecond,
			ToneHz:       cfg.Sim.ToneHz,
			ToneDB:       cfg.Sim.ToneDB,
			NoiseFloorDB: cfg.Sim.NoiseFloorDB,
		})
	} else {
		transport, err = xfer.OpenXDMA(xfer.XDMAConfig{
			ControlDevice: cfg.Hardware.ControlDevice,
			FrameDevice:   cfg.Hardware.FrameDevice,
			CoeffDevice:   cfg.Hardware.CoeffDevice,
			FrameBytes:    sctx.FFTSize * 4,
		})
		if err != nil {
			log.Fatalf("Open accelerator: %v", err)
		}
	}
	defer transport.Close()

	var tx *rf.Transmitter
	var txCtl pipeline.TransmitterControl
	if cfg.Transmitter.Address != "" {
		tx = rf.NewTransmitter(cfg.Transmitter.Address)
		if err := tx.Connect(); err != nil {
			log.Printf("Transmitter unavailable: %v", err)
		}
		txCtl = tx
	}

	pipe := pipeline.New(pipeline.Config{
		Sampling:       sctx,
		Transport:      transport,
		Receiver:       rf.NewReceiver(transport, sctx.FsHz),
		Transmitter:    txCtl,
		CaptureTimeout: cfg.CaptureTimeout(),
		Hooks: pipeline.Hooks{
			Capture: pipeline.CaptureHooks{
				FrameCaptured:  metricFramesCaptured.Inc,
				FrameDiscarded: metricFramesDiscarded.Inc,
				Timeout:        metricCaptureTimeouts.Inc,
			},
			ReloadDone:    metricCoeffReloads.Inc,
			ReloadFailure: metricReloadFailures.Inc,
		},
	})

	applyDefaults(cfg, pipe)

	if *isServer {
		runServer(cfg, pipe, tx)
	} else {
		runCLI(cfg, pipe, *frames, *outputFile)
	}
}

// applyDefaults pushes the startup window and bandwidth into the pipeline.
// Failures are logged, not fatal: the API can reconfigure later.
func applyDefaults(cfg *Config, pipe *pipeline.Pipeline) {
	if cfg.Defaults.Window != "" {
		kind, err := fir.ParseWindowKind(cfg.Defaults.Window)
		if err != nil {
			log.Printf("Default window: %v", err)
		} else if _, err := pipe.SetWindow(kind, cfg.Defaults.DCRemoval); err != nil {
			log.Printf("Default window: %v", err)
		}
	}
	if cfg.Defaults.BandwidthHz > 0 {
		if _, err := pipe.SetBandwidth(cfg.Defaults.BandwidthHz, cfg.Defaults.CenterHz); err != nil {
			log.Printf("Default bandwidth: %v", err)
		}
	}
}
