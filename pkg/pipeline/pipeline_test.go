package pipeline

import (
	"sync"
	"testing"
	"time"

	"github.com/specan/pkg/xfer"
)

const (
	testFs      = 256e6
	testFFTSize = 1024
	testTaps    = 128
)

// countingTransport wraps a transport and counts coefficient bank and
// register writes, so tests can assert when a reconfiguration touched the
// hardware.
type countingTransport struct {
	xfer.Transport

	mu        sync.Mutex
	writes    map[xfer.BufferID]int
	regWrites map[int]int
}

func newCountingTransport(inner xfer.Transport) *countingTransport {
	return &countingTransport{
		Transport: inner,
		writes:    make(map[xfer.BufferID]int),
		regWrites: make(map[int]int),
	}
}

func (c *countingTransport) WriteBuffer(id xfer.BufferID, bank int, data []byte) error {
	c.mu.Lock()
	c.writes[id]++
	c.mu.Unlock()
	return c.Transport.WriteBuffer(id, bank, data)
}

func (c *countingTransport) WriteReg(addr int, val uint32) error {
	c.mu.Lock()
	c.regWrites[addr]++
	c.mu.Unlock()
	return c.Transport.WriteReg(addr, val)
}

func (c *countingTransport) bufferWrites(id xfer.BufferID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes[id]
}

func (c *countingTransport) regWriteCount(addr int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.regWrites[addr]
}

// newSimPipeline builds a pipeline over a fast simulated accelerator.
func newSimPipeline(t *testing.T, cfg Config) (*Pipeline, *xfer.Sim, *countingTransport) {
	t.Helper()

	sim := xfer.NewSim(xfer.SimConfig{
		FsHz:        testFs,
		FFTSize:     testFFTSize,
		FilterTaps:  testTaps,
		FramePeriod: time.Millisecond,
		ToneHz:      72e6,
	})
	t.Cleanup(func() { sim.Close() })

	ct := newCountingTransport(sim)
	cfg.Sampling = SamplingContext{FsHz: testFs, FFTSize: testFFTSize, FilterTaps: testTaps}
	cfg.Transport = ct
	return New(cfg), sim, ct
}

// recordingReceiver implements ReceiverControl for tests.
type recordingReceiver struct {
	mu    sync.Mutex
	calls []float64
	err   error
}

func (r *recordingReceiver) SetCenterFrequency(hz float64) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return 0, r.err
	}
	r.calls = append(r.calls, hz)
	return hz, nil
}

func (r *recordingReceiver) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}
