// Package coeff drives the double-buffered coefficient stores of the
// spectrum analyser. Each store holds two fixed banks; the streaming path
// reads exactly one of them at any instant. A reload writes the inactive
// bank in full, then requests an activation swap that the logic commits on
// a frame boundary, so the live path never observes a partially written
// coefficient set.
package coeff

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/specan/pkg/xfer"
)

var (
	// ErrLengthMismatch is returned when a coefficient set does not
	// match the store's fixed length.
	ErrLengthMismatch = errors.New("coefficient length mismatch")

	// ErrTransferFailed wraps transport-level failures. The previously
	// active bank is unaffected; the caller retries the whole load.
	ErrTransferFailed = errors.New("coefficient transfer failed")
)

const (
	defaultSwapTimeout = 250 * time.Millisecond
	swapPollInterval   = 200 * time.Microsecond
)

// Loader serializes reloads into the filter and window stores.
type Loader struct {
	tr xfer.Transport

	filterMu sync.Mutex
	windowMu sync.Mutex

	expected    map[xfer.BufferID]int
	swapTimeout time.Duration
}

// NewLoader builds a loader for stores of the given fixed lengths.
func NewLoader(tr xfer.Transport, filterTaps, windowLen int) *Loader {
	return &Loader{
		tr: tr,
		expected: map[xfer.BufferID]int{
			xfer.BufferFilter: filterTaps,
			xfer.BufferWindow: windowLen,
		},
		swapTimeout: defaultSwapTimeout,
	}
}

// SetSwapTimeout overrides the bounded wait for the activation handshake.
func (l *Loader) SetSwapTimeout(d time.Duration) { l.swapTimeout = d }

func (l *Loader) lock(id xfer.BufferID) *sync.Mutex {
	if id == xfer.BufferWindow {
		return &l.windowMu
	}
	return &l.filterMu
}

func ctrlReg(id xfer.BufferID) int {
	if id == xfer.BufferWindow {
		return xfer.RegWindowCtrl
	}
	return xfer.RegFilterCtrl
}

// Load replaces the active coefficient set of a store. The write targets
// the inactive bank and the swap commits atomically at the next frame
// boundary; on any failure the active configuration is unchanged.
func (l *Loader) Load(id xfer.BufferID, coeffs []float64) error {
	want := l.expected[id]
	if len(coeffs) != want {
		return fmt.Errorf("%w: %s store expects %d coefficients, got %d",
			ErrLengthMismatch, id, want, len(coeffs))
	}

	mu := l.lock(id)
	mu.Lock()
	defer mu.Unlock()

	reg := ctrlReg(id)
	ctrl, err := l.tr.ReadReg(reg)
	if err != nil {
		return fmt.Errorf("%w: read %s bank control: %v", ErrTransferFailed, id, err)
	}
	if ctrl&xfer.CtrlSwapRequest != 0 {
		// A previous swap never committed; waiting it out here would
		// race the streaming path.
		return fmt.Errorf("%w: %s store has a swap pending", ErrTransferFailed, id)
	}

	inactive := 0
	if ctrl&xfer.CtrlActiveBank == 0 {
		inactive = 1
	}

	if err := l.tr.WriteBuffer(id, inactive, encode(coeffs)); err != nil {
		return fmt.Errorf("%w: write %s bank %d: %v", ErrTransferFailed, id, inactive, err)
	}

	if err := l.tr.WriteReg(reg, ctrl|xfer.CtrlSwapRequest); err != nil {
		return fmt.Errorf("%w: request %s swap: %v", ErrTransferFailed, id, err)
	}

	// The logic clears the request bit once the swap lands on a frame
	// boundary.
	timeout := time.After(l.swapTimeout)
	for {
		select {
		case <-timeout:
			return fmt.Errorf("%w: %s swap not committed within %v", ErrTransferFailed, id, l.swapTimeout)
		default:
			v, err := l.tr.ReadReg(reg)
			if err != nil {
				return fmt.Errorf("%w: poll %s swap: %v", ErrTransferFailed, id, err)
			}
			if v&xfer.CtrlSwapRequest == 0 {
				return nil
			}
			time.Sleep(swapPollInterval)
		}
	}
}

// encode packs coefficients as the little-endian float32 words the stores
// hold.
func encode(coeffs []float64) []byte {
	out := make([]byte, len(coeffs)*4)
	for i, c := range coeffs {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(float32(c)))
	}
	return out
}
