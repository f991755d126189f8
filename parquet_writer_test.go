package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/segmentio/parquet-go"

	"github.com/specan/pkg/pipeline"
)

func testFrame(seq uint64, bins int) *pipeline.Frame {
	f := &pipeline.Frame{
		Sequence:  seq,
		Timestamp: time.Unix(1724500000, 0),
		Meta: pipeline.FrameMeta{
			CenterFrequencyHz: 64e6,
			ResolutionHz:      62500,
			DecimationFactor:  4,
		},
	}
	f.FrequencyHz = make([]float64, bins)
	f.MagnitudeDB = make([]float64, bins)
	half := bins / 2
	for i := 0; i < bins; i++ {
		f.FrequencyHz[i] = f.Meta.CenterFrequencyHz + float64(i-half)*f.Meta.ResolutionHz
		f.MagnitudeDB[i] = -90 + float64(i)
	}
	return f
}

func TestParquetWriter_RowsRoundTrip(t *testing.T) {
	const bins = 32
	var buf bytes.Buffer

	status := pipeline.Status{State: "active"}
	sctx := pipeline.SamplingContext{FsHz: 256e6, FFTSize: bins, FilterTaps: 128}
	writer := NewFrameWriter(&buf, status, sctx)

	for seq := uint64(1); seq <= 3; seq++ {
		n, err := WriteFrame(writer, testFrame(seq, bins))
		if err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
		if n != bins {
			t.Fatalf("wrote %d rows, want %d", n, bins)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reader := parquet.NewGenericReader[SpectrumRow](bytes.NewReader(buf.Bytes()))
	defer reader.Close()

	rows := make([]SpectrumRow, 3*bins)
	n, err := reader.Read(rows)
	if err != nil && n != len(rows) {
		t.Fatalf("Read: got %d rows, err %v", n, err)
	}

	first := rows[0]
	if first.Sequence != 1 {
		t.Errorf("first row sequence = %d, want 1", first.Sequence)
	}
	if first.FrequencyHz != 64e6-16*62500 {
		t.Errorf("first row frequency = %g", first.FrequencyHz)
	}
	if first.PowerDB != -90 {
		t.Errorf("first row power = %g, want -90", first.PowerDB)
	}
	last := rows[len(rows)-1]
	if last.Sequence != 3 {
		t.Errorf("last row sequence = %d, want 3", last.Sequence)
	}
}

func TestParquetWriter_EmbedsStatusMetadata(t *testing.T) {
	var buf bytes.Buffer
	status := pipeline.Status{State: "active", Generation: 8}
	sctx := pipeline.SamplingContext{FsHz: 256e6, FFTSize: 16, FilterTaps: 128}
	writer := NewFrameWriter(&buf, status, sctx)

	if _, err := WriteFrame(writer, testFrame(1, 16)); err != nil {
		t.Fatal(err)
	}
	if err := writer.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := parquet.OpenFile(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}

	statusJSON, ok := f.Lookup("pipeline_status")
	if !ok {
		t.Fatal("pipeline_status metadata missing")
	}
	if !strings.Contains(statusJSON, `"state":"active"`) {
		t.Errorf("pipeline_status = %s", statusJSON)
	}

	samplingJSON, ok := f.Lookup("sampling")
	if !ok {
		t.Fatal("sampling metadata missing")
	}
	if !strings.Contains(samplingJSON, `"fft_size":16`) {
		t.Errorf("sampling = %s", samplingJSON)
	}
}
