package main

import (
	"encoding/json"
	"io"

	"github.com/segmentio/parquet-go"

	"github.com/specan/pkg/pipeline"
)

// SpectrumRow is one frequency bin of one captured frame.
type SpectrumRow struct {
	Sequence    int64   `parquet:"sequence"`
	TimestampUs int64   `parquet:"timestamp_us"`
	FrequencyHz float64 `parquet:"frequency_hz"`
	PowerDB     float64 `parquet:"power_db"`
}

// NewFrameWriter creates a parquet writer with the pipeline status at
// recording start embedded as file metadata, so a recording stays
// interpretable without the service that wrote it.
func NewFrameWriter(w io.Writer, status pipeline.Status, sctx pipeline.SamplingContext) *parquet.GenericWriter[SpectrumRow] {
	statusJSON := "{}"
	if b, err := json.Marshal(status); err == nil {
		statusJSON = string(b)
	}
	samplingJSON := "{}"
	if b, err := json.Marshal(map[string]interface{}{
		"fs_hz":       sctx.FsHz,
		"fft_size":    sctx.FFTSize,
		"filter_taps": sctx.FilterTaps,
	}); err == nil {
		samplingJSON = string(b)
	}

	return parquet.NewGenericWriter[SpectrumRow](w,
		parquet.KeyValueMetadata("pipeline_status", statusJSON),
		parquet.KeyValueMetadata("sampling", samplingJSON),
	)
}

// WriteFrame appends one frame as per-bin rows.
func WriteFrame(writer *parquet.GenericWriter[SpectrumRow], frame *pipeline.Frame) (int, error) {
	rows := make([]SpectrumRow, len(frame.MagnitudeDB))
	ts := frame.Timestamp.UnixMicro()
	for i := range rows {
		rows[i] = SpectrumRow{
			Sequence:    int64(frame.Sequence),
			TimestampUs: ts,
			FrequencyHz: frame.FrequencyHz[i],
			PowerDB:     frame.MagnitudeDB[i],
		}
	}
	_, err := writer.Write(rows)
	return len(rows), err
}
