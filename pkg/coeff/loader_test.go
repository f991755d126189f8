package coeff

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specan/pkg/xfer"
)

const (
	testTaps    = 128
	testFFTSize = 1024
)

func newTestSim(t *testing.T, framePeriod time.Duration) *xfer.Sim {
	t.Helper()
	sim := xfer.NewSim(xfer.SimConfig{
		FsHz:        256e6,
		FFTSize:     testFFTSize,
		FilterTaps:  testTaps,
		FramePeriod: framePeriod,
	})
	t.Cleanup(func() { sim.Close() })
	return sim
}

func ramp(n int) []float64 {
	c := make([]float64, n)
	for i := range c {
		c[i] = float64(i) / float64(n)
	}
	return c
}

func encoded(coeffs []float64) []byte {
	out := make([]byte, len(coeffs)*4)
	for i, c := range coeffs {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(float32(c)))
	}
	return out
}

func TestLoad_SwapsInactiveBank(t *testing.T) {
	sim := newTestSim(t, time.Millisecond)
	l := NewLoader(sim, testTaps, testFFTSize)

	require.Equal(t, 0, sim.ActiveBank(xfer.BufferFilter))

	coeffs := ramp(testTaps)
	require.NoError(t, l.Load(xfer.BufferFilter, coeffs))

	// The write landed in the previously inactive bank, and the swap made
	// it the active one.
	assert.Equal(t, 1, sim.ActiveBank(xfer.BufferFilter))
	assert.Equal(t, encoded(coeffs), sim.BankBytes(xfer.BufferFilter, 1))

	// A second load ping-pongs back to bank 0.
	coeffs2 := ramp(testTaps)
	for i := range coeffs2 {
		coeffs2[i] = -coeffs2[i]
	}
	require.NoError(t, l.Load(xfer.BufferFilter, coeffs2))
	assert.Equal(t, 0, sim.ActiveBank(xfer.BufferFilter))
	assert.Equal(t, encoded(coeffs2), sim.BankBytes(xfer.BufferFilter, 0))
}

func TestLoad_WindowStoreIndependent(t *testing.T) {
	sim := newTestSim(t, time.Millisecond)
	l := NewLoader(sim, testTaps, testFFTSize)

	require.NoError(t, l.Load(xfer.BufferWindow, ramp(testFFTSize)))
	assert.Equal(t, 1, sim.ActiveBank(xfer.BufferWindow))
	// Filter store untouched.
	assert.Equal(t, 0, sim.ActiveBank(xfer.BufferFilter))
}

func TestLoad_LengthMismatch(t *testing.T) {
	sim := newTestSim(t, time.Millisecond)
	l := NewLoader(sim, testTaps, testFFTSize)

	err := l.Load(xfer.BufferFilter, ramp(testTaps-1))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLengthMismatch)
	assert.Equal(t, 0, sim.ActiveBank(xfer.BufferFilter))

	err = l.Load(xfer.BufferWindow, ramp(testFFTSize+5))
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestLoad_TransferFaultLeavesActiveBank(t *testing.T) {
	sim := newTestSim(t, time.Millisecond)
	l := NewLoader(sim, testTaps, testFFTSize)

	good := ramp(testTaps)
	require.NoError(t, l.Load(xfer.BufferFilter, good))
	require.Equal(t, 1, sim.ActiveBank(xfer.BufferFilter))

	sim.FailWrites(1)
	err := l.Load(xfer.BufferFilter, ramp(testTaps))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransferFailed)

	// The active bank and its contents are exactly as before the fault.
	assert.Equal(t, 1, sim.ActiveBank(xfer.BufferFilter))
	assert.Equal(t, encoded(good), sim.BankBytes(xfer.BufferFilter, 1))

	// The fault is transient: the retry goes through.
	require.NoError(t, l.Load(xfer.BufferFilter, good))
	assert.Equal(t, 0, sim.ActiveBank(xfer.BufferFilter))
}

func TestLoad_RejectsPendingSwap(t *testing.T) {
	// A frame period longer than the test means no boundary ever passes,
	// so a requested swap stays pending.
	sim := newTestSim(t, time.Hour)
	l := NewLoader(sim, testTaps, testFFTSize)
	l.SetSwapTimeout(5 * time.Millisecond)

	require.NoError(t, sim.WriteReg(xfer.RegFilterCtrl, xfer.CtrlSwapRequest))

	err := l.Load(xfer.BufferFilter, ramp(testTaps))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransferFailed)
}

func TestLoad_SwapTimeout(t *testing.T) {
	sim := newTestSim(t, time.Hour)
	l := NewLoader(sim, testTaps, testFFTSize)
	l.SetSwapTimeout(10 * time.Millisecond)

	start := time.Now()
	err := l.Load(xfer.BufferFilter, ramp(testTaps))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransferFailed)
	assert.Less(t, time.Since(start), time.Second, "timeout must be bounded")
}
