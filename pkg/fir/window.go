package fir

import (
	"fmt"
	"math"
)

// WindowKind enumerates the spectral window shapes the hardware FFT stage
// can be programmed with.
type WindowKind string

const (
	WindowRectangular WindowKind = "rectangular"
	WindowBartlett    WindowKind = "bartlett"
	WindowBlackman    WindowKind = "blackman"
	WindowHamming     WindowKind = "hamming"
	WindowHanning     WindowKind = "hanning"

	// WindowCustom marks caller-supplied coefficients. DesignWindow
	// rejects it; custom coefficient sets enter through the controller's
	// custom path and are validated for length only.
	WindowCustom WindowKind = "custom"
)

// KnownWindows lists the kinds DesignWindow can generate, in display order.
var KnownWindows = []WindowKind{
	WindowRectangular,
	WindowBartlett,
	WindowBlackman,
	WindowHamming,
	WindowHanning,
}

// DesignWindow generates the closed-form coefficients for a predefined
// window kind, normalized to unit peak. Generation is deterministic: the
// same kind and length always reproduce the same coefficients.
func DesignWindow(kind WindowKind, length int) ([]float64, error) {
	if length <= 0 {
		return nil, fmt.Errorf("%w: window length %d", ErrInvalidParameter, length)
	}

	w := make([]float64, length)
	if length == 1 {
		w[0] = 1
		return w, nil
	}
	den := float64(length - 1)

	switch kind {
	case WindowRectangular:
		for i := range w {
			w[i] = 1
		}
	case WindowBartlett:
		for i := range w {
			w[i] = 1 - math.Abs((float64(i)-den/2)/(den/2))
		}
	case WindowBlackman:
		for i := range w {
			arg := 2 * math.Pi * float64(i) / den
			w[i] = 0.42 - 0.5*math.Cos(arg) + 0.08*math.Cos(2*arg)
		}
	case WindowHamming:
		for i := range w {
			w[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/den)
		}
	case WindowHanning:
		for i := range w {
			w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/den)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedWindow, kind)
	}

	normalizePeak(w)
	return w, nil
}

// normalizePeak scales coefficients so the largest magnitude is exactly 1.
func normalizePeak(w []float64) {
	peak := 0.0
	for _, v := range w {
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	if peak > 0 && peak != 1 {
		for i := range w {
			w[i] /= peak
		}
	}
}

// ParseWindowKind maps a user-facing name to a WindowKind.
func ParseWindowKind(s string) (WindowKind, error) {
	switch WindowKind(s) {
	case WindowRectangular, WindowBartlett, WindowBlackman, WindowHamming, WindowHanning:
		return WindowKind(s), nil
	case WindowCustom:
		return WindowCustom, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedWindow, s)
}
