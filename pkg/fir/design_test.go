package fir

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	symmetryTolerance = 1e-12
	dcGainTolerance   = 1e-9
)

func TestDesignLowpass_TapCountAndSymmetry(t *testing.T) {
	tests := []struct {
		name    string
		fs      float64
		cutoff  float64
		numTaps int
	}{
		{"narrow_129", 256e6, 10e6, 129},
		{"wide_128", 256e6, 62.4e6, 128},
		{"audio_65", 48e3, 8e3, 65},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := DesignLowpass(tt.fs, tt.cutoff, tt.cutoff/10, tt.numTaps)
			require.NoError(t, err)
			require.Len(t, d.Coefficients, tt.numTaps)

			// Linear phase: impulse response symmetric about its center.
			for i := 0; i < tt.numTaps/2; i++ {
				assert.InDelta(t, d.Coefficients[i], d.Coefficients[tt.numTaps-1-i],
					symmetryTolerance, "tap %d", i)
			}
		})
	}
}

func TestDesignLowpass_UnityDCGain(t *testing.T) {
	d, err := DesignLowpass(256e6, 31.2e6, 1.6e6, 128)
	require.NoError(t, err)

	sum := 0.0
	for _, c := range d.Coefficients {
		sum += c
	}
	assert.InDelta(t, 1.0, sum, dcGainTolerance, "passband gain at DC")

	// The evaluated response must agree: ~0 dB at DC.
	assert.InDelta(t, 0.0, d.MagnitudeDB[0], 1e-6)
}

func TestDesignLowpass_StopbandAttenuation(t *testing.T) {
	fs := 256e6
	cutoff := 32e6
	d, err := DesignLowpass(fs, cutoff, 3.2e6, 129)
	require.NoError(t, err)

	// Hamming-windowed sinc: expect the stopband well below -40 dB once
	// past the transition region.
	for i, f := range d.FrequencyHz {
		if f > cutoff+8e6 {
			assert.Less(t, d.MagnitudeDB[i], -40.0, "at %.1f MHz", f/1e6)
		}
	}
}

func TestDesignLowpass_Deterministic(t *testing.T) {
	a, err := DesignLowpass(256e6, 20e6, 2e6, 101)
	require.NoError(t, err)
	b, err := DesignLowpass(256e6, 20e6, 2e6, 101)
	require.NoError(t, err)
	assert.Equal(t, a.Coefficients, b.Coefficients, "same inputs must be bit-identical")
}

func TestDesignLowpass_InvalidParameters(t *testing.T) {
	tests := []struct {
		name       string
		fs         float64
		cutoff     float64
		transition float64
		numTaps    int
	}{
		{"zero_cutoff", 256e6, 0, 1e6, 129},
		{"cutoff_at_nyquist", 256e6, 128e6, 1e6, 129},
		{"cutoff_above_nyquist", 256e6, 200e6, 1e6, 129},
		{"zero_transition", 256e6, 10e6, 0, 129},
		{"negative_transition", 256e6, 10e6, -1, 129},
		{"zero_taps", 256e6, 10e6, 1e6, 0},
		{"zero_fs", 0, 10e6, 1e6, 129},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DesignLowpass(tt.fs, tt.cutoff, tt.transition, tt.numTaps)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidParameter)
		})
	}
}

func TestFrequencyResponse_Shape(t *testing.T) {
	d, err := DesignLowpass(256e6, 32e6, 3e6, 65)
	require.NoError(t, err)

	require.Equal(t, len(d.FrequencyHz), len(d.MagnitudeDB))
	assert.Equal(t, 0.0, d.FrequencyHz[0])
	last := d.FrequencyHz[len(d.FrequencyHz)-1]
	assert.InDelta(t, 128e6, last, 1.0, "response spans to Nyquist")
	assert.False(t, math.IsInf(last, 0))
}
