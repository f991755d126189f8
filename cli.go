package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/specan/pkg/pipeline"
)

// runCLI captures a fixed number of frames to a parquet file and prints a
// capture summary.
func runCLI(cfg *Config, pipe *pipeline.Pipeline, frames int, outputFile string) {
	fmt.Println("--- Spectrum Capture Session Start ---")

	f, err := os.Create(outputFile)
	if err != nil {
		log.Fatalf("Create output file: %v", err)
	}
	writer := NewFrameWriter(f, pipe.Status(), pipe.Sampling())

	fmt.Printf(">>> CAPTURING %d frames...\n", frames)
	start := time.Now()

	var (
		captured  int
		firstSeq  uint64
		lastSeq   uint64
		peakDB    = -1e9
		peakHz    float64
		lastMeta  pipeline.FrameMeta
	)

	ctx := context.Background()
	for captured < frames {
		frame, err := pipe.GetFrame(ctx)
		if err != nil {
			log.Fatalf("Capture failed after %d frames: %v", captured, err)
		}
		if captured == 0 {
			firstSeq = frame.Sequence
		}
		lastSeq = frame.Sequence
		lastMeta = frame.Meta

		for i, db := range frame.MagnitudeDB {
			if db > peakDB {
				peakDB = db
				peakHz = frame.FrequencyHz[i]
			}
		}

		if _, err := WriteFrame(writer, frame); err != nil {
			log.Fatalf("Write frame: %v", err)
		}
		captured++
	}
	elapsed := time.Since(start)

	if err := writer.Close(); err != nil {
		log.Fatalf("Close parquet writer: %v", err)
	}
	if err := f.Close(); err != nil {
		log.Fatalf("Close output file: %v", err)
	}

	fmt.Println("--- Results ---")
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Metric", "Value"})
	table.Append([]string{"Frames", fmt.Sprintf("%d (seq %d..%d)", captured, firstSeq, lastSeq)})
	table.Append([]string{"Duration", elapsed.Round(time.Millisecond).String()})
	table.Append([]string{"Center", fmt.Sprintf("%.3f MHz", lastMeta.CenterFrequencyHz/1e6)})
	table.Append([]string{"Resolution", fmt.Sprintf("%.1f Hz", lastMeta.ResolutionHz)})
	table.Append([]string{"Decimation", fmt.Sprintf("%d", lastMeta.DecimationFactor)})
	table.Append([]string{"Peak", fmt.Sprintf("%.1f dB @ %.3f MHz", peakDB, peakHz/1e6)})
	table.Append([]string{"Output", outputFile})
	table.Render()
}
