package pipeline

import (
	"fmt"
	"log"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/specan/pkg/coeff"
	"github.com/specan/pkg/fir"
	"github.com/specan/pkg/xfer"
)

// WindowController owns the active FFT window and the DC-removal policy.
type WindowController struct {
	sctx   SamplingContext
	loader *coeff.Loader
	tr     xfer.Transport
	gen    *atomic.Uint64

	mu  sync.Mutex // serializes reconfiguration
	cur atomic.Pointer[WindowSpec]
}

// NewWindowController wires the controller to the loader and the control
// registers (for the DC-removal enable).
func NewWindowController(sctx SamplingContext, loader *coeff.Loader, tr xfer.Transport, gen *atomic.Uint64) *WindowController {
	return &WindowController{sctx: sctx, loader: loader, tr: tr, gen: gen}
}

// Current returns the live window spec, if one has been applied.
func (c *WindowController) Current() (WindowSpec, bool) {
	if s := c.cur.Load(); s != nil {
		return *s, true
	}
	return WindowSpec{}, false
}

// SetWindow generates and applies a predefined window. Reapplying the
// active kind with the same DC-removal flag performs no hardware write.
func (c *WindowController) SetWindow(kind fir.WindowKind, dcRemoval bool) (WindowSpec, error) {
	if kind == fir.WindowCustom {
		return WindowSpec{}, fmt.Errorf("%w: custom coefficients go through SetCustomWindow",
			fir.ErrInvalidParameter)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.cur.Load()
	if prev != nil && prev.Kind == kind && prev.DCRemoval == dcRemoval {
		return *prev, nil
	}

	coeffs, err := fir.DesignWindow(kind, c.sctx.FFTSize)
	if err != nil {
		return WindowSpec{}, fmt.Errorf("design window: %w", err)
	}
	return c.apply(WindowSpec{Kind: kind, Coefficients: coeffs, DCRemoval: dcRemoval})
}

// SetCustomWindow applies caller-supplied coefficients, validated for
// length only.
func (c *WindowController) SetCustomWindow(coeffs []float64, dcRemoval bool) (WindowSpec, error) {
	if len(coeffs) != c.sctx.FFTSize {
		return WindowSpec{}, fmt.Errorf("%w: window store expects %d coefficients, got %d",
			coeff.ErrLengthMismatch, c.sctx.FFTSize, len(coeffs))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.cur.Load()
	if prev != nil && prev.Kind == fir.WindowCustom && prev.DCRemoval == dcRemoval &&
		slices.Equal(prev.Coefficients, coeffs) {
		return *prev, nil
	}

	own := append([]float64(nil), coeffs...)
	return c.apply(WindowSpec{Kind: fir.WindowCustom, Coefficients: own, DCRemoval: dcRemoval})
}

// apply loads the coefficients, programs DC removal and publishes the spec.
// Callers hold c.mu.
func (c *WindowController) apply(spec WindowSpec) (WindowSpec, error) {
	c.gen.Add(1)
	defer c.gen.Add(1)

	if err := c.loader.Load(xfer.BufferWindow, spec.Coefficients); err != nil {
		return WindowSpec{}, fmt.Errorf("load window coefficients: %w", err)
	}

	dc := uint32(0)
	if spec.DCRemoval {
		dc = 1
	}
	if err := c.tr.WriteReg(xfer.RegDCRemoval, dc); err != nil {
		return WindowSpec{}, fmt.Errorf("%w: program dc removal: %v", coeff.ErrTransferFailed, err)
	}

	c.cur.Store(&spec)
	log.Printf("Window set: %s (dc removal %v)", spec.Kind, spec.DCRemoval)
	return spec, nil
}
