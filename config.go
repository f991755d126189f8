package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the samd configuration, loaded from YAML with sane defaults
// for a ZCU111-class overlay.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Hardware    HardwareConfig    `yaml:"hardware"`
	Sampling    SamplingConfig    `yaml:"sampling"`
	Capture     CaptureConfig     `yaml:"capture"`
	Defaults    DefaultsConfig    `yaml:"defaults"`
	Transmitter TransmitterConfig `yaml:"transmitter"`
	Sim         SimulatorConfig   `yaml:"sim"`
}

// ServerConfig controls the HTTP/WebSocket surface.
type ServerConfig struct {
	Port int `yaml:"port"`
	// ShmRing, when set (e.g. "/specan_frames"), mirrors every streamed
	// frame into a shared-memory ring for external visualizers.
	ShmRing string `yaml:"shm_ring"`
}

// HardwareConfig names the accelerator devices.
type HardwareConfig struct {
	ControlDevice string `yaml:"control_device"`
	FrameDevice   string `yaml:"frame_device"`
	CoeffDevice   string `yaml:"coeff_device"`
	Simulate      bool   `yaml:"simulate"`
}

// SamplingConfig holds the per-session constants of the overlay.
type SamplingConfig struct {
	FsHz       float64 `yaml:"fs_hz"`
	FFTSize    int     `yaml:"fft_size"`
	FilterTaps int     `yaml:"filter_taps"`
}

// CaptureConfig bounds the frame-capture waits.
type CaptureConfig struct {
	TimeoutMs int `yaml:"timeout_ms"`
}

// DefaultsConfig is the configuration pushed into the pipeline at startup.
type DefaultsConfig struct {
	BandwidthHz float64 `yaml:"bandwidth_hz"`
	CenterHz    float64 `yaml:"center_hz"`
	Window      string  `yaml:"window"`
	DCRemoval   bool    `yaml:"dc_removal"`
}

// TransmitterConfig points at the bench signal generator, if any.
type TransmitterConfig struct {
	Address string `yaml:"address"`
}

// SimulatorConfig shapes the scene the simulated accelerator renders.
type SimulatorConfig struct {
	FramePeriodUs int     `yaml:"frame_period_us"`
	ToneHz        float64 `yaml:"tone_hz"`
	ToneDB        float64 `yaml:"tone_db"`
	NoiseFloorDB  float64 `yaml:"noise_floor_db"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Hardware: HardwareConfig{
			ControlDevice: "/dev/xdma0_user",
			FrameDevice:   "/dev/xdma0_c2h_0",
			CoeffDevice:   "/dev/xdma0_h2c_0",
		},
		Sampling: SamplingConfig{
			FsHz:       256e6,
			FFTSize:    4096,
			FilterTaps: 128,
		},
		Capture: CaptureConfig{TimeoutMs: 500},
		Defaults: DefaultsConfig{
			BandwidthHz: 256e6,
			CenterHz:    64e6,
			Window:      "blackman",
		},
		Sim: SimulatorConfig{
			FramePeriodUs: 2000,
			ToneHz:        72e6,
			ToneDB:        -10,
			NoiseFloorDB:  -90,
		},
	}
}

// LoadConfig reads a YAML config file over the defaults. An empty path
// returns the defaults unchanged.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Sampling.FsHz <= 0 {
		return fmt.Errorf("config: sampling.fs_hz must be positive")
	}
	if c.Sampling.FFTSize <= 0 || c.Sampling.FFTSize&(c.Sampling.FFTSize-1) != 0 {
		return fmt.Errorf("config: sampling.fft_size must be a positive power of two")
	}
	if c.Sampling.FilterTaps <= 0 {
		return fmt.Errorf("config: sampling.filter_taps must be positive")
	}
	if c.Capture.TimeoutMs <= 0 {
		return fmt.Errorf("config: capture.timeout_ms must be positive")
	}
	return nil
}

// CaptureTimeout returns the bounded frame wait as a duration.
func (c *Config) CaptureTimeout() time.Duration {
	return time.Duration(c.Capture.TimeoutMs) * time.Millisecond
}
