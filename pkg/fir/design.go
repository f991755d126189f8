// Package fir designs the coefficient sets loaded into the hardware DSP
// pipeline: windowed-sinc lowpass filters for the decimation stage and
// spectral windows for the FFT stage. Everything in this package is pure
// computation; identical inputs produce bit-identical outputs.
package fir

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

var (
	// ErrInvalidParameter is returned when a caller-supplied design
	// parameter is outside its valid domain.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrUnsupportedWindow is returned for window kinds this package
	// does not know how to generate.
	ErrUnsupportedWindow = errors.New("unsupported window")
)

const (
	// Number of points the frequency response is evaluated at.
	responsePoints = 512

	// Floor applied before converting magnitude to dB.
	minMagnitude = 1e-12
)

// LowpassDesign holds a designed lowpass filter together with its evaluated
// frequency response. Coefficients are symmetric (linear phase) and
// normalized to unity gain at DC.
type LowpassDesign struct {
	Coefficients []float64

	// Response evaluated from 0 to fs/2.
	FrequencyHz []float64
	MagnitudeDB []float64
}

// DesignLowpass designs a symmetric FIR lowpass filter using the windowed
// sinc method with a Hamming smoothing window. fsHz is the sample rate the
// filter runs at, cutoffHz the -6 dB edge and transitionHz the width of the
// roll-off region. Exactly numTaps coefficients are produced.
//
// Even tap counts are accepted; they carry a half-sample group delay which
// is irrelevant to magnitude-only spectrum display.
func DesignLowpass(fsHz, cutoffHz, transitionHz float64, numTaps int) (*LowpassDesign, error) {
	if fsHz <= 0 {
		return nil, fmt.Errorf("%w: sample rate %g Hz", ErrInvalidParameter, fsHz)
	}
	if cutoffHz <= 0 || cutoffHz >= fsHz/2 {
		return nil, fmt.Errorf("%w: cutoff %g Hz outside (0, %g)", ErrInvalidParameter, cutoffHz, fsHz/2)
	}
	if transitionHz <= 0 {
		return nil, fmt.Errorf("%w: transition width %g Hz", ErrInvalidParameter, transitionHz)
	}
	if numTaps <= 0 {
		return nil, fmt.Errorf("%w: %d taps", ErrInvalidParameter, numTaps)
	}

	// Place the sinc cutoff in the middle of the transition band so the
	// requested cutoff is the edge of the passband rather than the -6 dB
	// point.
	fc := (cutoffHz + transitionHz/2) / fsHz
	if fc >= 0.5 {
		fc = cutoffHz / fsHz
	}

	coeffs := make([]float64, numTaps)
	center := float64(numTaps-1) / 2
	for n := range coeffs {
		x := float64(n) - center

		var sinc float64
		if math.Abs(x) < 1e-10 {
			sinc = 2 * fc
		} else {
			sinc = math.Sin(2*math.Pi*fc*x) / (math.Pi * x)
		}

		// Hamming smoothing window suppresses the Gibbs ripple of the
		// truncated sinc.
		w := 0.54 - 0.46*math.Cos(2*math.Pi*float64(n)/float64(numTaps-1))
		if numTaps == 1 {
			w = 1
		}
		coeffs[n] = sinc * w
	}

	// Unity gain at DC.
	var sum float64
	for _, c := range coeffs {
		sum += c
	}
	if math.Abs(sum) > 1e-12 {
		for n := range coeffs {
			coeffs[n] /= sum
		}
	}

	freqs, mags := frequencyResponse(coeffs, fsHz)
	return &LowpassDesign{
		Coefficients: coeffs,
		FrequencyHz:  freqs,
		MagnitudeDB:  mags,
	}, nil
}

// frequencyResponse evaluates |H(f)| in dB on [0, fs/2) via a zero-padded
// FFT of the impulse response.
func frequencyResponse(coeffs []float64, fsHz float64) (freqs, magsDB []float64) {
	n := 2 * responsePoints
	for n < 2*len(coeffs) {
		n *= 2
	}

	padded := make([]float64, n)
	copy(padded, coeffs)

	fft := fourier.NewFFT(n)
	spec := fft.Coefficients(nil, padded)

	// Real input: keep the positive-frequency half.
	half := n/2 + 1
	freqs = make([]float64, half)
	magsDB = make([]float64, half)
	for k := 0; k < half; k++ {
		freqs[k] = float64(k) * fsHz / float64(n)
		mag := math.Hypot(real(spec[k]), imag(spec[k]))
		if mag < minMagnitude {
			mag = minMagnitude
		}
		magsDB[k] = 20 * math.Log10(mag)
	}
	return freqs, magsDB
}
