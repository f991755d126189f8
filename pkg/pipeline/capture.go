package pipeline

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"math"
	"sync/atomic"
	"time"

	"github.com/specan/pkg/xfer"
)

// ErrCaptureTimeout is returned when no start-of-frame marker arrives
// within the bounded wait. Recoverable; the caller decides whether to
// retry.
var ErrCaptureTimeout = errors.New("capture timeout")

const (
	defaultCaptureTimeout = 500 * time.Millisecond

	// Backoff while a reconfiguration holds the generation counter odd.
	reconfigWait = 200 * time.Microsecond
)

// CaptureHooks are optional observation points, used for metrics.
type CaptureHooks struct {
	FrameCaptured  func()
	FrameDiscarded func()
	Timeout        func()
}

func (h CaptureHooks) captured() {
	if h.FrameCaptured != nil {
		h.FrameCaptured()
	}
}
func (h CaptureHooks) discarded() {
	if h.FrameDiscarded != nil {
		h.FrameDiscarded()
	}
}
func (h CaptureHooks) timedOut() {
	if h.Timeout != nil {
		h.Timeout()
	}
}

// CaptureEngine acquires discrete PSD frames from the continuously
// streaming accelerator. Captures synchronize to the start-of-frame marker
// and are validated against the pipeline generation counter: a frame whose
// transfer overlapped a reconfiguration is computed from mixed old and new
// coefficients and is silently discarded and retried.
type CaptureEngine struct {
	tr      xfer.Transport
	sctx    SamplingContext
	gen     *atomic.Uint64
	bw      func() (BandwidthSpec, bool)
	timeout time.Duration
	hooks   CaptureHooks

	seq atomic.Uint64
}

// NewCaptureEngine wires the engine to the transport, the generation
// counter and the bandwidth-spec snapshot provider.
func NewCaptureEngine(tr xfer.Transport, sctx SamplingContext, gen *atomic.Uint64,
	bw func() (BandwidthSpec, bool), timeout time.Duration, hooks CaptureHooks) *CaptureEngine {
	if timeout <= 0 {
		timeout = defaultCaptureTimeout
	}
	return &CaptureEngine{tr: tr, sctx: sctx, gen: gen, bw: bw, timeout: timeout, hooks: hooks}
}

// GetFrame captures one frame. Torn frames are retried internally; a
// missing start-of-frame marker surfaces as ErrCaptureTimeout.
func (e *CaptureEngine) GetFrame(ctx context.Context) (*Frame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// Generation is even while the configuration is stable and odd
		// while a reconfiguration is in flight (seqlock discipline).
		g1 := e.gen.Load()
		if g1&1 == 1 {
			time.Sleep(reconfigWait)
			continue
		}

		// Snapshot the spec under the same generation the frame will be
		// validated against, so metadata can never mix configurations.
		spec, ok := e.bw()

		cctx, cancel := context.WithTimeout(ctx, e.timeout)
		raw, err := e.tr.ReadFrame(cctx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				e.hooks.timedOut()
				return nil, fmt.Errorf("%w: no start-of-frame within %v", ErrCaptureTimeout, e.timeout)
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("frame transfer: %w", err)
		}

		if g2 := e.gen.Load(); g2 != g1 {
			// Reconfiguration landed mid-frame; expected transient,
			// not a fault.
			e.hooks.discarded()
			continue
		}

		frame, err := e.assemble(raw, spec, ok)
		if err != nil {
			return nil, err
		}
		e.hooks.captured()
		return frame, nil
	}
}

// assemble decodes the raw dB values and attaches the frequency axis and
// metadata derived from the capture-time spec.
func (e *CaptureEngine) assemble(raw []byte, spec BandwidthSpec, configured bool) (*Frame, error) {
	n := e.sctx.FFTSize
	if len(raw) != n*4 {
		return nil, fmt.Errorf("frame size %d bytes, expected %d", len(raw), n*4)
	}

	if !configured {
		// Pipeline not configured yet: full span at decimation 1.
		spec = BandwidthSpec{RequestedBandwidthHz: e.sctx.FsHz, DecimationFactor: 1}
	}
	res := spec.Resolution(e.sctx)

	freqs := make([]float64, n)
	mags := make([]float64, n)
	half := n / 2
	for i := 0; i < n; i++ {
		freqs[i] = spec.CenterFrequencyHz + float64(i-half)*res
		mags[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:])))
	}

	return &Frame{
		Sequence:    e.seq.Add(1),
		Timestamp:   time.Now(),
		FrequencyHz: freqs,
		MagnitudeDB: mags,
		Meta: FrameMeta{
			CenterFrequencyHz: spec.CenterFrequencyHz,
			ResolutionHz:      res,
			DecimationFactor:  spec.DecimationFactor,
		},
	}, nil
}

// Stream captures frames continuously until ctx is cancelled, then closes
// the channel. Cancellation between frames never yields another frame and
// never truncates one; a cancelled stream is not restartable, request a
// fresh one instead. Capture timeouts are logged and retried so a paused
// accelerator does not kill the stream.
func (e *CaptureEngine) Stream(ctx context.Context) <-chan *Frame {
	out := make(chan *Frame)
	go func() {
		defer close(out)
		for {
			frame, err := e.GetFrame(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if errors.Is(err, ErrCaptureTimeout) {
					log.Printf("Stream: %v, retrying", err)
					continue
				}
				log.Printf("Stream: capture failed: %v", err)
				return
			}
			select {
			case out <- frame:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
