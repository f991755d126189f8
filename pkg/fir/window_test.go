package fir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDesignWindow_AllKinds(t *testing.T) {
	const length = 4096

	for _, kind := range KnownWindows {
		t.Run(string(kind), func(t *testing.T) {
			w, err := DesignWindow(kind, length)
			require.NoError(t, err)
			require.Len(t, w, length)

			// Unit peak after normalization.
			peak := 0.0
			for _, v := range w {
				if v > peak {
					peak = v
				}
			}
			assert.Equal(t, 1.0, peak, "peak must normalize to exactly 1")

			for i, v := range w {
				assert.GreaterOrEqual(t, v, -1e-12, "coefficient %d", i)
				assert.LessOrEqual(t, v, 1.0, "coefficient %d", i)
			}
		})
	}
}

func TestDesignWindow_KnownValues(t *testing.T) {
	// Odd-length windows place their peak exactly at the center tap, which
	// pins the endpoint values after peak normalization.
	const n = 101

	hamming, err := DesignWindow(WindowHamming, n)
	require.NoError(t, err)
	assert.InDelta(t, 0.08/1.0, hamming[0], 1e-12)
	assert.Equal(t, 1.0, hamming[n/2])

	hanning, err := DesignWindow(WindowHanning, n)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, hanning[0], 1e-12)
	assert.Equal(t, 1.0, hanning[n/2])

	bartlett, err := DesignWindow(WindowBartlett, n)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, bartlett[0], 1e-12)
	assert.Equal(t, 1.0, bartlett[n/2])

	rect, err := DesignWindow(WindowRectangular, n)
	require.NoError(t, err)
	for _, v := range rect {
		assert.Equal(t, 1.0, v)
	}
}

func TestDesignWindow_Symmetry(t *testing.T) {
	for _, kind := range KnownWindows {
		w, err := DesignWindow(kind, 256)
		require.NoError(t, err)
		for i := 0; i < len(w)/2; i++ {
			assert.InDelta(t, w[i], w[len(w)-1-i], 1e-12, "%s tap %d", kind, i)
		}
	}
}

func TestDesignWindow_Deterministic(t *testing.T) {
	a, err := DesignWindow(WindowBlackman, 4096)
	require.NoError(t, err)
	b, err := DesignWindow(WindowBlackman, 4096)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDesignWindow_Errors(t *testing.T) {
	_, err := DesignWindow(WindowHamming, 0)
	assert.ErrorIs(t, err, ErrInvalidParameter)

	_, err = DesignWindow(WindowCustom, 64)
	assert.ErrorIs(t, err, ErrUnsupportedWindow)

	_, err = DesignWindow(WindowKind("kaiser"), 64)
	assert.ErrorIs(t, err, ErrUnsupportedWindow)
}

func TestDesignWindow_SingleTap(t *testing.T) {
	w, err := DesignWindow(WindowHanning, 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, w)
}

func TestParseWindowKind(t *testing.T) {
	for _, kind := range KnownWindows {
		got, err := ParseWindowKind(string(kind))
		require.NoError(t, err)
		assert.Equal(t, kind, got)
	}

	got, err := ParseWindowKind("custom")
	require.NoError(t, err)
	assert.Equal(t, WindowCustom, got)

	_, err = ParseWindowKind("flattop")
	assert.ErrorIs(t, err, ErrUnsupportedWindow)
}
