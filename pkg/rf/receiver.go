// Package rf controls the data-converter collaborators around the DSP
// pipeline: the receive-side mixer (NCO) that centers the requested band at
// baseband, and the bench signal generator used as a test transmitter.
package rf

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/specan/pkg/xfer"
)

const (
	ncoUpdateTimeout = 250 * time.Millisecond
	ncoPollInterval  = 200 * time.Microsecond
)

// Receiver programs the receive mixer through the control registers. The
// frequency word commits on a sample boundary via the same
// request-and-clear handshake the coefficient banks use.
type Receiver struct {
	tr   xfer.Transport
	fsHz float64

	mu     sync.Mutex
	lastHz float64
}

// NewReceiver builds a mixer control for a converter sampling at fsHz.
func NewReceiver(tr xfer.Transport, fsHz float64) *Receiver {
	return &Receiver{tr: tr, fsHz: fsHz}
}

// SetCenterFrequency tunes the mixer so the band around hz lands at
// baseband. The frequency is quantized to the NCO step; the achieved value
// is returned.
func (r *Receiver) SetCenterFrequency(hz float64) (float64, error) {
	if hz < 0 || hz >= r.fsHz {
		return 0, fmt.Errorf("center frequency %g Hz outside [0, %g)", hz, r.fsHz)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// 32-bit phase accumulator: step = fs / 2^32.
	pinc := uint32(math.Round(hz / r.fsHz * float64(1<<32)))
	actual := float64(pinc) / float64(1<<32) * r.fsHz

	if err := r.tr.WriteReg(xfer.RegNCOPhaseInc, pinc); err != nil {
		return 0, fmt.Errorf("write NCO phase increment: %w", err)
	}
	if err := r.tr.WriteReg(xfer.RegRxCtrl, xfer.RxUpdateRequest); err != nil {
		return 0, fmt.Errorf("request NCO update: %w", err)
	}

	timeout := time.After(ncoUpdateTimeout)
	for {
		select {
		case <-timeout:
			return 0, fmt.Errorf("NCO update not committed within %v", ncoUpdateTimeout)
		default:
			v, err := r.tr.ReadReg(xfer.RegRxCtrl)
			if err != nil {
				return 0, fmt.Errorf("poll NCO update: %w", err)
			}
			if v&xfer.RxUpdateRequest == 0 {
				r.lastHz = actual
				return actual, nil
			}
			time.Sleep(ncoPollInterval)
		}
	}
}

// CenterFrequency reports the last committed mixer frequency.
func (r *Receiver) CenterFrequency() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastHz
}
