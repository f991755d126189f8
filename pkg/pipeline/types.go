// Package pipeline is the control plane of the spectrum analyser: it owns
// the relationship between requested bandwidth, decimation, filter cutoff
// and resolution, drives coefficient design and glitch-free reload into the
// streaming hardware path, and captures start-of-frame-aligned PSD frames
// with consistent metadata.
package pipeline

import (
	"time"

	"github.com/specan/pkg/fir"
)

// SamplingContext holds the per-session constants of the overlay. It is
// fixed at pipeline construction and never mutated.
type SamplingContext struct {
	// FsHz is the base (undecimated) sampling frequency.
	FsHz float64
	// FFTSize is the hardware FFT length; also the window length and the
	// number of bins per frame.
	FFTSize int
	// FilterTaps is the fixed length of the reloadable decimation filter.
	FilterTaps int
}

// BandwidthSpec describes one live bandwidth configuration. Instances are
// replaced wholesale on reconfiguration; readers never see a mix of old and
// new fields.
type BandwidthSpec struct {
	RequestedBandwidthHz float64 `json:"requested_bandwidth_hz"`
	RequestedCenterHz    float64 `json:"requested_center_hz"`

	// CenterFrequencyHz is the achieved center after NCO quantization.
	// Repeat-request detection compares against RequestedCenterHz, never
	// this field.
	CenterFrequencyHz float64 `json:"center_frequency_hz"`

	DecimationFactor int     `json:"decimation_factor"`
	CutoffHz         float64 `json:"cutoff_hz"`
	TransitionHz     float64 `json:"transition_hz"`
}

// Resolution is the per-bin frequency step at this decimation.
func (s BandwidthSpec) Resolution(sctx SamplingContext) float64 {
	return sctx.FsHz / (float64(s.DecimationFactor) * float64(sctx.FFTSize))
}

// SampleRate is the decimated rate feeding the FFT.
func (s BandwidthSpec) SampleRate(sctx SamplingContext) float64 {
	return sctx.FsHz / float64(s.DecimationFactor)
}

// WindowSpec describes the active FFT window and DC-removal policy.
type WindowSpec struct {
	Kind         fir.WindowKind `json:"kind"`
	Coefficients []float64      `json:"-"`
	DCRemoval    bool           `json:"dc_removal"`
}

// FrameMeta is the configuration snapshot attached to every frame, taken at
// capture time so frames stay self-describing across reconfigurations.
type FrameMeta struct {
	CenterFrequencyHz float64 `json:"center_frequency_hz"`
	ResolutionHz      float64 `json:"resolution_hz"`
	DecimationFactor  int     `json:"decimation_factor"`
}

// Frame is one captured PSD frame. Immutable once returned; plain host data
// with no hardware-side lifetime.
type Frame struct {
	Sequence  uint64
	Timestamp time.Time

	// FrequencyHz and MagnitudeDB are the same length (FFTSize), with the
	// center frequency in the middle bin.
	FrequencyHz []float64
	MagnitudeDB []float64

	Meta FrameMeta
}
