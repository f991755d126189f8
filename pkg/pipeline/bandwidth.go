package pipeline

import (
	"fmt"
	"log"
	"math"
	"sync"
	"sync/atomic"

	"github.com/specan/pkg/coeff"
	"github.com/specan/pkg/fir"
	"github.com/specan/pkg/xfer"
)

// Fraction of the decimated Nyquist reserved as filter roll-off guard band.
const guardFraction = 0.025

// State tracks where a controller is in its reconfiguration cycle. Loading
// is never observable through the public surface: a failed reconfiguration
// reverts to the last Active (or Idle) state before returning.
type State int32

const (
	StateIdle State = iota
	StateComputing
	StateLoading
	StateActive
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateComputing:
		return "computing"
	case StateLoading:
		return "loading"
	case StateActive:
		return "active"
	}
	return "unknown"
}

// ReceiverControl programs the data-converter mixer so the requested band
// is centered at baseband.
type ReceiverControl interface {
	SetCenterFrequency(hz float64) (float64, error)
}

// BandwidthController owns the bandwidth/decimation/cutoff relationship and
// drives filter design, coefficient reload and receiver tuning.
type BandwidthController struct {
	sctx   SamplingContext
	loader *coeff.Loader
	rx     ReceiverControl
	gen    *atomic.Uint64

	mu    sync.Mutex // serializes reconfiguration
	cur   atomic.Pointer[BandwidthSpec]
	state atomic.Int32
}

// NewBandwidthController wires the controller to its collaborators. gen is
// the pipeline-wide generation counter bumped around every reconfiguration.
func NewBandwidthController(sctx SamplingContext, loader *coeff.Loader, rx ReceiverControl, gen *atomic.Uint64) *BandwidthController {
	c := &BandwidthController{sctx: sctx, loader: loader, rx: rx, gen: gen}
	c.state.Store(int32(StateIdle))
	return c
}

// Current returns the live spec, if any reconfiguration has completed.
func (c *BandwidthController) Current() (BandwidthSpec, bool) {
	if s := c.cur.Load(); s != nil {
		return *s, true
	}
	return BandwidthSpec{}, false
}

// State reports the controller state for status surfaces.
func (c *BandwidthController) State() State {
	return State(c.state.Load())
}

// SetBandwidth reconfigures the pipeline for the requested bandwidth around
// centerHz. Repeating an identical request returns the live spec untouched;
// a request mapping to the unchanged decimation factor skips the filter
// reload and only republishes the spec. Any failure leaves the previous
// configuration live and safe to retry.
func (c *BandwidthController) SetBandwidth(requestedHz, centerHz float64) (BandwidthSpec, error) {
	if requestedHz <= 0 || requestedHz > c.sctx.FsHz {
		return BandwidthSpec{}, fmt.Errorf("%w: bandwidth %g Hz outside (0, %g]",
			fir.ErrInvalidParameter, requestedHz, c.sctx.FsHz)
	}
	if centerHz < 0 || centerHz >= c.sctx.FsHz {
		return BandwidthSpec{}, fmt.Errorf("%w: center frequency %g Hz outside [0, %g)",
			fir.ErrInvalidParameter, centerHz, c.sctx.FsHz)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	decim := int(math.Floor(c.sctx.FsHz / requestedHz))
	if decim < 1 {
		decim = 1
	}

	prev := c.cur.Load()
	if prev != nil && prev.RequestedBandwidthHz == requestedHz && prev.RequestedCenterHz == centerHz {
		return *prev, nil
	}

	// Odd generation marks a reconfiguration in flight; the capture path
	// discards frames that overlap it.
	c.gen.Add(1)
	defer c.gen.Add(1)

	revert := func() {
		if prev != nil {
			c.state.Store(int32(StateActive))
		} else {
			c.state.Store(int32(StateIdle))
		}
	}

	// Cutoff sits a guard band below the decimated Nyquist so the
	// transition region never folds back into the displayed span.
	nyquist := c.sctx.FsHz / (2 * float64(decim))
	cutoff := (1 - guardFraction) * nyquist
	transition := guardFraction * nyquist

	if prev == nil || prev.DecimationFactor != decim {
		c.state.Store(int32(StateComputing))
		design, err := fir.DesignLowpass(c.sctx.FsHz, cutoff, transition, c.sctx.FilterTaps)
		if err != nil {
			revert()
			return BandwidthSpec{}, fmt.Errorf("design lowpass: %w", err)
		}

		c.state.Store(int32(StateLoading))
		if err := c.loader.Load(xfer.BufferFilter, design.Coefficients); err != nil {
			revert()
			return BandwidthSpec{}, fmt.Errorf("load filter coefficients: %w", err)
		}
	}

	// Compare against the requested center, not the quantized one the
	// receiver achieved, or a center off the NCO grid would reprogram the
	// mixer on every identical repeat.
	centerChanged := prev == nil || prev.RequestedCenterHz != centerHz

	actual := centerHz
	if !centerChanged {
		actual = prev.CenterFrequencyHz
	}
	if c.rx != nil && centerChanged {
		hz, err := c.rx.SetCenterFrequency(centerHz)
		if err != nil {
			revert()
			return BandwidthSpec{}, fmt.Errorf("program receiver: %w", err)
		}
		actual = hz
	}

	spec := &BandwidthSpec{
		RequestedBandwidthHz: requestedHz,
		RequestedCenterHz:    centerHz,
		CenterFrequencyHz:    actual,
		DecimationFactor:     decim,
		CutoffHz:             cutoff,
		TransitionHz:         transition,
	}
	c.cur.Store(spec)
	c.state.Store(int32(StateActive))
	log.Printf("Bandwidth set: %.3f MHz around %.3f MHz (decimation %d, resolution %.1f Hz)",
		requestedHz/1e6, actual/1e6, decim, spec.Resolution(c.sctx))
	return *spec, nil
}

// SetCenter retunes the receiver keeping the current bandwidth.
func (c *BandwidthController) SetCenter(centerHz float64) (BandwidthSpec, error) {
	cur, ok := c.Current()
	if !ok {
		return BandwidthSpec{}, fmt.Errorf("%w: no bandwidth configured", fir.ErrInvalidParameter)
	}
	return c.SetBandwidth(cur.RequestedBandwidthHz, centerHz)
}
