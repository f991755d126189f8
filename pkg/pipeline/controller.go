package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/specan/pkg/coeff"
	"github.com/specan/pkg/fir"
	"github.com/specan/pkg/xfer"
)

// TransmitterControl is the parameter sink for the test transmitter.
type TransmitterControl interface {
	SetFrequency(hz float64) error
	SetPower(dbm float64) error
	SetModulation(scheme string, carrierHz float64) error
	EnableOutput(on bool) error
}

// TxParams carries the transmitter settings to apply; nil fields are left
// untouched (same shape as a partial hardware config update).
type TxParams struct {
	FrequencyHz *float64 `json:"frequency_hz,omitempty"`
	PowerDBm    *float64 `json:"power_dbm,omitempty"`
	Modulation  *string  `json:"modulation,omitempty"`
	CarrierHz   *float64 `json:"carrier_hz,omitempty"`
	Output      *bool    `json:"output,omitempty"`
}

// Config assembles a Pipeline.
type Config struct {
	Sampling       SamplingContext
	Transport      xfer.Transport
	Receiver       ReceiverControl    // may be nil (no converter control)
	Transmitter    TransmitterControl // may be nil (no test source)
	CaptureTimeout time.Duration
	Hooks          Hooks
}

// Hooks are optional observation points for metrics.
type Hooks struct {
	Capture       CaptureHooks
	ReloadDone    func()
	ReloadFailure func()
}

func (h Hooks) reloadDone() {
	if h.ReloadDone != nil {
		h.ReloadDone()
	}
}
func (h Hooks) reloadFailed() {
	if h.ReloadFailure != nil {
		h.ReloadFailure()
	}
}

// Pipeline composes the bandwidth and window controllers with the capture
// engine behind one parameter-and-frames surface. It holds no algorithmic
// logic of its own; it orders calls and wraps errors with the failing
// operation.
type Pipeline struct {
	sctx   SamplingContext
	loader *coeff.Loader
	bw     *BandwidthController
	win    *WindowController
	cap    *CaptureEngine
	tx     TransmitterControl
	hooks  Hooks

	gen atomic.Uint64
}

// Status is the reportable pipeline state.
type Status struct {
	State      string         `json:"state"`
	Generation uint64         `json:"generation"`
	Bandwidth  *BandwidthSpec `json:"bandwidth,omitempty"`
	Window     *WindowSpec    `json:"window,omitempty"`
	WindowKind string         `json:"window_kind,omitempty"`
	DCRemoval  bool           `json:"dc_removal"`
}

// New builds a pipeline over the given transport and collaborators.
func New(cfg Config) *Pipeline {
	p := &Pipeline{
		sctx:  cfg.Sampling,
		tx:    cfg.Transmitter,
		hooks: cfg.Hooks,
	}
	p.loader = coeff.NewLoader(cfg.Transport, cfg.Sampling.FilterTaps, cfg.Sampling.FFTSize)
	p.bw = NewBandwidthController(cfg.Sampling, p.loader, cfg.Receiver, &p.gen)
	p.win = NewWindowController(cfg.Sampling, p.loader, cfg.Transport, &p.gen)
	p.cap = NewCaptureEngine(cfg.Transport, cfg.Sampling, &p.gen, p.bw.Current,
		cfg.CaptureTimeout, cfg.Hooks.Capture)
	return p
}

// Sampling returns the immutable per-session constants.
func (p *Pipeline) Sampling() SamplingContext { return p.sctx }

// SetBandwidth selects the displayed span around centerHz.
func (p *Pipeline) SetBandwidth(requestedHz, centerHz float64) (BandwidthSpec, error) {
	spec, err := p.bw.SetBandwidth(requestedHz, centerHz)
	if err != nil {
		p.hooks.reloadFailed()
		return spec, fmt.Errorf("set bandwidth: %w", err)
	}
	p.hooks.reloadDone()
	return spec, nil
}

// SetReceiver retunes the center frequency keeping the current span.
func (p *Pipeline) SetReceiver(centerHz float64) (BandwidthSpec, error) {
	spec, err := p.bw.SetCenter(centerHz)
	if err != nil {
		return spec, fmt.Errorf("set receiver: %w", err)
	}
	return spec, nil
}

// SetWindow selects a predefined FFT window and the DC-removal policy.
func (p *Pipeline) SetWindow(kind fir.WindowKind, dcRemoval bool) (WindowSpec, error) {
	spec, err := p.win.SetWindow(kind, dcRemoval)
	if err != nil {
		p.hooks.reloadFailed()
		return spec, fmt.Errorf("set window: %w", err)
	}
	p.hooks.reloadDone()
	return spec, nil
}

// SetCustomWindow applies caller-supplied window coefficients.
func (p *Pipeline) SetCustomWindow(coeffs []float64, dcRemoval bool) (WindowSpec, error) {
	spec, err := p.win.SetCustomWindow(coeffs, dcRemoval)
	if err != nil {
		p.hooks.reloadFailed()
		return spec, fmt.Errorf("set custom window: %w", err)
	}
	p.hooks.reloadDone()
	return spec, nil
}

// ConfigureTransmitter forwards test-source parameters to the generator.
func (p *Pipeline) ConfigureTransmitter(params TxParams) error {
	if p.tx == nil {
		return fmt.Errorf("configure transmitter: no transmitter attached")
	}
	if params.FrequencyHz != nil {
		if err := p.tx.SetFrequency(*params.FrequencyHz); err != nil {
			return fmt.Errorf("configure transmitter: %w", err)
		}
	}
	if params.PowerDBm != nil {
		if err := p.tx.SetPower(*params.PowerDBm); err != nil {
			return fmt.Errorf("configure transmitter: %w", err)
		}
	}
	if params.Modulation != nil {
		carrier := 0.0
		if params.CarrierHz != nil {
			carrier = *params.CarrierHz
		}
		if err := p.tx.SetModulation(*params.Modulation, carrier); err != nil {
			return fmt.Errorf("configure transmitter: %w", err)
		}
	}
	if params.Output != nil {
		if err := p.tx.EnableOutput(*params.Output); err != nil {
			return fmt.Errorf("configure transmitter: %w", err)
		}
	}
	return nil
}

// GetFrame captures a single frame.
func (p *Pipeline) GetFrame(ctx context.Context) (*Frame, error) {
	frame, err := p.cap.GetFrame(ctx)
	if err != nil {
		return nil, fmt.Errorf("get frame: %w", err)
	}
	return frame, nil
}

// Stream captures frames until ctx is cancelled.
func (p *Pipeline) Stream(ctx context.Context) <-chan *Frame {
	return p.cap.Stream(ctx)
}

// Status snapshots the pipeline for status surfaces.
func (p *Pipeline) Status() Status {
	st := Status{
		State:      p.bw.State().String(),
		Generation: p.gen.Load(),
	}
	if spec, ok := p.bw.Current(); ok {
		st.Bandwidth = &spec
	}
	if spec, ok := p.win.Current(); ok {
		st.Window = &spec
		st.WindowKind = string(spec.Kind)
		st.DCRemoval = spec.DCRemoval
	}
	return st
}
