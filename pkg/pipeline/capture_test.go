package pipeline

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specan/pkg/fir"
	"github.com/specan/pkg/xfer"
)

func TestGetFrame_AxisAndMetadata(t *testing.T) {
	pipe, _, _ := newSimPipeline(t, Config{})

	spec, err := pipe.SetBandwidth(64e6, 32e6)
	require.NoError(t, err)

	frame, err := pipe.GetFrame(context.Background())
	require.NoError(t, err)

	require.Len(t, frame.FrequencyHz, testFFTSize)
	require.Len(t, frame.MagnitudeDB, testFFTSize)
	assert.False(t, frame.Timestamp.IsZero())

	res := spec.Resolution(pipe.Sampling())
	assert.Equal(t, spec.CenterFrequencyHz, frame.FrequencyHz[testFFTSize/2],
		"center frequency sits in the middle bin")
	assert.InDelta(t, res, frame.FrequencyHz[1]-frame.FrequencyHz[0], 1e-9)

	assert.Equal(t, spec.CenterFrequencyHz, frame.Meta.CenterFrequencyHz)
	assert.Equal(t, spec.DecimationFactor, frame.Meta.DecimationFactor)
	assert.InDelta(t, res, frame.Meta.ResolutionHz, 1e-9)
}

func TestGetFrame_SequenceIncrements(t *testing.T) {
	pipe, _, _ := newSimPipeline(t, Config{})
	ctx := context.Background()

	a, err := pipe.GetFrame(ctx)
	require.NoError(t, err)
	b, err := pipe.GetFrame(ctx)
	require.NoError(t, err)
	assert.Equal(t, a.Sequence+1, b.Sequence)
}

func TestGetFrame_UnconfiguredFallback(t *testing.T) {
	pipe, _, _ := newSimPipeline(t, Config{})

	// No bandwidth set yet: full span at decimation 1, centered at 0.
	frame, err := pipe.GetFrame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, frame.Meta.DecimationFactor)
	assert.Equal(t, 0.0, frame.Meta.CenterFrequencyHz)
	assert.InDelta(t, testFs/testFFTSize, frame.Meta.ResolutionHz, 1e-9)
}

func TestGetFrame_Timeout(t *testing.T) {
	var timeouts atomic.Int64
	pipe, sim, _ := newSimPipeline(t, Config{
		CaptureTimeout: 30 * time.Millisecond,
		Hooks: Hooks{Capture: CaptureHooks{
			Timeout: func() { timeouts.Add(1) },
		}},
	})

	sim.HoldFrames(true)
	start := time.Now()
	_, err := pipe.GetFrame(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCaptureTimeout)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, int64(1), timeouts.Load())

	// Releasing the marker recovers without restarting anything.
	sim.HoldFrames(false)
	_, err = pipe.GetFrame(context.Background())
	assert.NoError(t, err)
}

func TestGetFrame_ContextCancellation(t *testing.T) {
	pipe, sim, _ := newSimPipeline(t, Config{})
	sim.HoldFrames(true)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := pipe.GetFrame(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGetFrame_DiscardsFramesOverlappingReconfiguration(t *testing.T) {
	sim := xfer.NewSim(xfer.SimConfig{
		FsHz:        testFs,
		FFTSize:     testFFTSize,
		FilterTaps:  testTaps,
		FramePeriod: 20 * time.Millisecond,
	})
	defer sim.Close()

	var gen atomic.Uint64
	var discarded atomic.Int64
	sctx := SamplingContext{FsHz: testFs, FFTSize: testFFTSize, FilterTaps: testTaps}
	eng := NewCaptureEngine(sim, sctx, &gen,
		func() (BandwidthSpec, bool) { return BandwidthSpec{}, false },
		time.Second,
		CaptureHooks{FrameDiscarded: func() { discarded.Add(1) }})

	type result struct {
		frame *Frame
		err   error
	}
	done := make(chan result, 1)
	go func() {
		frame, err := eng.GetFrame(context.Background())
		done <- result{frame, err}
	}()

	// Bump the generation while the first frame transfer is in flight:
	// that frame must be discarded, and a clean one returned instead.
	time.Sleep(5 * time.Millisecond)
	gen.Add(2)

	select {
	case res := <-done:
		require.NoError(t, res.err)
		require.NotNil(t, res.frame)
	case <-time.After(2 * time.Second):
		t.Fatal("capture did not complete")
	}
	assert.GreaterOrEqual(t, discarded.Load(), int64(1))
}

func TestGetFrame_WaitsOutInFlightReconfiguration(t *testing.T) {
	sim := xfer.NewSim(xfer.SimConfig{
		FsHz:        testFs,
		FFTSize:     testFFTSize,
		FilterTaps:  testTaps,
		FramePeriod: time.Millisecond,
	})
	defer sim.Close()

	var gen atomic.Uint64
	gen.Store(1) // reconfiguration in flight
	sctx := SamplingContext{FsHz: testFs, FFTSize: testFFTSize, FilterTaps: testTaps}
	eng := NewCaptureEngine(sim, sctx, &gen,
		func() (BandwidthSpec, bool) { return BandwidthSpec{}, false },
		time.Second, CaptureHooks{})

	done := make(chan error, 1)
	go func() {
		_, err := eng.GetFrame(context.Background())
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("frame delivered while the generation counter was odd")
	case <-time.After(20 * time.Millisecond):
	}

	gen.Add(1)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("capture did not resume after reconfiguration settled")
	}
}

func TestStream_DeliversAndStopsOnCancel(t *testing.T) {
	pipe, _, _ := newSimPipeline(t, Config{})
	_, err := pipe.SetBandwidth(64e6, 32e6)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	frames := pipe.Stream(ctx)

	var lastSeq uint64
	for i := 0; i < 5; i++ {
		frame, ok := <-frames
		require.True(t, ok)
		if lastSeq != 0 {
			assert.Equal(t, lastSeq+1, frame.Sequence)
		}
		lastSeq = frame.Sequence
	}

	cancel()

	// The channel drains and closes; at most one frame was already in
	// flight at cancellation.
	extra := 0
	for range frames {
		extra++
	}
	assert.LessOrEqual(t, extra, 1)
}

func TestConcurrentReconfigureAndCapture_MetadataNeverMixes(t *testing.T) {
	pipe, _, _ := newSimPipeline(t, Config{})

	specA, err := pipe.SetBandwidth(256e6, 64e6)
	require.NoError(t, err)
	specB, err := pipe.SetBandwidth(64e6, 32e6)
	require.NoError(t, err)

	metaA := FrameMeta{
		CenterFrequencyHz: specA.CenterFrequencyHz,
		ResolutionHz:      specA.Resolution(pipe.Sampling()),
		DecimationFactor:  specA.DecimationFactor,
	}
	metaB := FrameMeta{
		CenterFrequencyHz: specB.CenterFrequencyHz,
		ResolutionHz:      specB.Resolution(pipe.Sampling()),
		DecimationFactor:  specB.DecimationFactor,
	}

	stop := make(chan struct{})
	reconfigDone := make(chan struct{})
	go func() {
		defer close(reconfigDone)
		flip := false
		for {
			select {
			case <-stop:
				return
			default:
			}
			var err error
			if flip {
				_, err = pipe.SetBandwidth(256e6, 64e6)
			} else {
				_, err = pipe.SetBandwidth(64e6, 32e6)
			}
			if err != nil {
				t.Error(err)
				return
			}
			flip = !flip
			time.Sleep(3 * time.Millisecond)
		}
	}()

	ctx := context.Background()
	for i := 0; i < 40; i++ {
		frame, err := pipe.GetFrame(ctx)
		require.NoError(t, err)
		// Every frame carries exactly one of the two configurations,
		// never a mixture of fields from both.
		if frame.Meta != metaA && frame.Meta != metaB {
			t.Fatalf("frame %d carries mixed metadata: %+v", i, frame.Meta)
		}
	}

	close(stop)
	<-reconfigDone
}

func TestPipelineStatus(t *testing.T) {
	pipe, _, _ := newSimPipeline(t, Config{})

	st := pipe.Status()
	assert.Equal(t, "idle", st.State)
	assert.Nil(t, st.Bandwidth)
	assert.Nil(t, st.Window)

	_, err := pipe.SetBandwidth(64e6, 32e6)
	require.NoError(t, err)
	_, err = pipe.SetWindow(fir.WindowBlackman, true)
	require.NoError(t, err)

	st = pipe.Status()
	assert.Equal(t, "active", st.State)
	require.NotNil(t, st.Bandwidth)
	assert.Equal(t, 4, st.Bandwidth.DecimationFactor)
	assert.Equal(t, string(fir.WindowBlackman), st.WindowKind)
	assert.True(t, st.DCRemoval)
	assert.Zero(t, st.Generation&1)
}
