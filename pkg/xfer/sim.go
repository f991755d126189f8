package xfer

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"math/cmplx"
	"math/rand"
	"sync"
	"time"

	"gonum.org/v1/gonum/dsp/fourier"
)

// SimConfig parameterizes the software model of the accelerator.
type SimConfig struct {
	FsHz       float64
	FFTSize    int
	FilterTaps int

	// FramePeriod is the spacing of start-of-frame markers. Defaults to
	// 2ms, fast enough for tests and slow enough to observe boundaries.
	FramePeriod time.Duration

	// Synthesized scene: a single tone over a flat noise floor. A zero
	// ToneDB or NoiseFloorDB selects the default level (-10 dBFS tone,
	// -90 dBFS floor); pass a distinct value like -0.01 for a full-scale
	// tone.
	ToneHz       float64
	ToneDB       float64
	NoiseFloorDB float64

	Seed int64
}

type pendingSwap struct {
	reqBoundary int64
}

// Sim models the accelerator in memory: a control register file whose bank
// swaps and mixer updates commit on frame boundaries, double-buffered
// coefficient banks, and synthesized PSD frames. It stands in for the real
// logic in tests and -sim mode.
type Sim struct {
	cfg   SimConfig
	start time.Time

	mu          sync.Mutex
	regs        map[int]uint32
	banks       map[BufferID][2][]byte
	swaps       map[int]pendingSwap // ctrl reg addr -> pending swap
	rxPending   *pendingSwap
	ncoApplied  uint32
	rng         *rand.Rand
	fft         *fourier.CmplxFFT
	failWrites  int
	holdFrames  bool
	frameSeq    uint64
	closed      bool
}

// NewSim builds a simulated accelerator with the pipeline idle at bank 0
// and a rectangular window.
func NewSim(cfg SimConfig) *Sim {
	if cfg.FramePeriod <= 0 {
		cfg.FramePeriod = 2 * time.Millisecond
	}
	if cfg.ToneDB == 0 {
		cfg.ToneDB = -10
	}
	if cfg.NoiseFloorDB == 0 {
		cfg.NoiseFloorDB = -90
	}

	s := &Sim{
		cfg:   cfg,
		start: time.Now(),
		regs: map[int]uint32{
			RegStatus: StatusPipelineUp,
		},
		banks: map[BufferID][2][]byte{
			BufferFilter: {},
			BufferWindow: {},
		},
		swaps: make(map[int]pendingSwap),
		rng:   rand.New(rand.NewSource(cfg.Seed)),
		fft:   fourier.NewCmplxFFT(cfg.FFTSize),
	}
	return s
}

// boundary returns the index of the most recent frame boundary.
func (s *Sim) boundary() int64 {
	return int64(time.Since(s.start) / s.cfg.FramePeriod)
}

// advance commits every pending swap or mixer update whose request predates
// the latest frame boundary. Callers hold s.mu.
func (s *Sim) advance() {
	b := s.boundary()
	for addr, p := range s.swaps {
		if b > p.reqBoundary {
			v := s.regs[addr]
			v &^= CtrlSwapRequest
			v ^= CtrlActiveBank
			s.regs[addr] = v
			delete(s.swaps, addr)
		}
	}
	if s.rxPending != nil && b > s.rxPending.reqBoundary {
		s.ncoApplied = s.regs[RegNCOPhaseInc]
		s.regs[RegRxCtrl] &^= RxUpdateRequest
		s.rxPending = nil
	}
}

func (s *Sim) ReadReg(addr int) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	s.advance()
	return s.regs[addr], nil
}

func (s *Sim) WriteReg(addr int, val uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.advance()

	switch addr {
	case RegFilterCtrl, RegWindowCtrl:
		// ActiveBank is owned by the logic; the host only requests.
		cur := s.regs[addr]
		if val&CtrlSwapRequest != 0 && cur&CtrlSwapRequest == 0 {
			s.swaps[addr] = pendingSwap{reqBoundary: s.boundary()}
			cur |= CtrlSwapRequest
		}
		s.regs[addr] = cur
	case RegRxCtrl:
		cur := s.regs[addr]
		if val&RxUpdateRequest != 0 && cur&RxUpdateRequest == 0 {
			s.rxPending = &pendingSwap{reqBoundary: s.boundary()}
			cur |= RxUpdateRequest
		}
		s.regs[addr] = cur
	default:
		s.regs[addr] = val
	}
	return nil
}

func (s *Sim) WriteBuffer(id BufferID, bank int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if bank != 0 && bank != 1 {
		return fmt.Errorf("sim: no bank %d for %s store", bank, id)
	}
	if s.failWrites > 0 {
		s.failWrites--
		return fmt.Errorf("sim: injected transfer fault on %s bank %d", id, bank)
	}

	b := s.banks[id]
	b[bank] = append([]byte(nil), data...)
	s.banks[id] = b
	return nil
}

// ReadFrame waits for the next start-of-frame boundary and synthesizes one
// PSD frame from the committed register and coefficient state.
func (s *Sim) ReadFrame(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	hold := s.holdFrames
	next := s.start.Add(time.Duration(s.boundary()+1) * s.cfg.FramePeriod)
	s.mu.Unlock()

	if hold {
		// Marker withheld: block until the caller gives up.
		<-ctx.Done()
		return nil, ctx.Err()
	}

	t := time.NewTimer(time.Until(next))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.C:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	s.advance()
	s.frameSeq++
	return s.synthFrame(), nil
}

// synthFrame renders the tone-plus-noise scene through the active window
// coefficients, mirroring what the hardware FFT/PSD path would emit.
// Callers hold s.mu.
func (s *Sim) synthFrame() []byte {
	n := s.cfg.FFTSize
	centerHz := float64(s.ncoApplied) / float64(1<<32) * s.cfg.FsHz
	offsetHz := s.cfg.ToneHz - centerHz

	window := s.activeWindow()
	amp := math.Pow(10, s.cfg.ToneDB/20)

	iq := make([]complex128, n)
	var mean complex128
	for i := range iq {
		ph := 2 * math.Pi * offsetHz * float64(i) / s.cfg.FsHz
		iq[i] = complex(amp*math.Cos(ph), amp*math.Sin(ph))
		mean += iq[i]
	}
	if s.regs[RegDCRemoval] != 0 {
		mean /= complex(float64(n), 0)
		for i := range iq {
			iq[i] -= mean
		}
	}
	for i := range iq {
		iq[i] *= complex(window[i], 0)
	}

	spec := s.fft.Coefficients(nil, iq)

	noise := math.Pow(10, s.cfg.NoiseFloorDB/10)
	out := make([]byte, n*4)
	half := n / 2
	for i := 0; i < n; i++ {
		// Shift DC to the center of the frame.
		src := (i + half) % n
		p := cmplx.Abs(spec[src]) / float64(n)
		pwr := p*p + noise*(0.8+0.4*s.rng.Float64())
		db := 10 * math.Log10(pwr)
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(float32(db)))
	}
	return out
}

// activeWindow decodes the window coefficients the streaming path currently
// reads, falling back to rectangular when the bank was never loaded.
func (s *Sim) activeWindow() []float64 {
	n := s.cfg.FFTSize
	bank := 0
	if s.regs[RegWindowCtrl]&CtrlActiveBank != 0 {
		bank = 1
	}
	raw := s.banks[BufferWindow][bank]
	w := make([]float64, n)
	if len(raw) != n*4 {
		for i := range w {
			w[i] = 1
		}
		return w
	}
	for i := range w {
		w[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:])))
	}
	return w
}

func (s *Sim) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// FailWrites makes the next n buffer writes fail with a transfer fault.
func (s *Sim) FailWrites(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWrites = n
}

// HoldFrames withholds the start-of-frame marker while held, so captures
// time out.
func (s *Sim) HoldFrames(hold bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holdFrames = hold
}

// ActiveBank reports which bank of a store the streaming path reads.
func (s *Sim) ActiveBank(id BufferID) int {
	addr := RegFilterCtrl
	if id == BufferWindow {
		addr = RegWindowCtrl
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance()
	if s.regs[addr]&CtrlActiveBank != 0 {
		return 1
	}
	return 0
}

// BankBytes returns a copy of one bank's contents, for tests.
func (s *Sim) BankBytes(id BufferID, bank int) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.banks[id][bank]...)
}
