package pipeline

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Wire format for frames pushed to consumers (WebSocket, shared-memory
// ring). The frequency axis is not serialized; consumers rebuild it from
// the metadata, halving the frame size.
const (
	frameMagic   = 0x53414d46 // "SAMF"
	frameVersion = 1
	frameHdrLen  = 4 + 2 + 2 + 8 + 8 + 8 + 8 + 4 + 4
)

// MarshalBinary serializes the frame header and magnitude bins.
func (f *Frame) MarshalBinary() ([]byte, error) {
	n := len(f.MagnitudeDB)
	out := make([]byte, frameHdrLen+n*4)

	binary.LittleEndian.PutUint32(out[0:], frameMagic)
	binary.LittleEndian.PutUint16(out[4:], frameVersion)
	binary.LittleEndian.PutUint16(out[6:], 0)
	binary.LittleEndian.PutUint64(out[8:], f.Sequence)
	binary.LittleEndian.PutUint64(out[16:], uint64(f.Timestamp.UnixNano()))
	binary.LittleEndian.PutUint64(out[24:], math.Float64bits(f.Meta.CenterFrequencyHz))
	binary.LittleEndian.PutUint64(out[32:], math.Float64bits(f.Meta.ResolutionHz))
	binary.LittleEndian.PutUint32(out[40:], uint32(f.Meta.DecimationFactor))
	binary.LittleEndian.PutUint32(out[44:], uint32(n))

	for i, v := range f.MagnitudeDB {
		binary.LittleEndian.PutUint32(out[frameHdrLen+i*4:], math.Float32bits(float32(v)))
	}
	return out, nil
}

// UnmarshalBinary rebuilds a frame, including the frequency axis, from the
// wire form.
func (f *Frame) UnmarshalBinary(data []byte) error {
	if len(data) < frameHdrLen {
		return fmt.Errorf("frame too short: %d bytes", len(data))
	}
	if binary.LittleEndian.Uint32(data[0:]) != frameMagic {
		return fmt.Errorf("bad frame magic")
	}
	if v := binary.LittleEndian.Uint16(data[4:]); v != frameVersion {
		return fmt.Errorf("unsupported frame version %d", v)
	}

	n := int(binary.LittleEndian.Uint32(data[44:]))
	if len(data) != frameHdrLen+n*4 {
		return fmt.Errorf("frame size %d bytes, expected %d", len(data), frameHdrLen+n*4)
	}

	f.Sequence = binary.LittleEndian.Uint64(data[8:])
	f.Timestamp = time.Unix(0, int64(binary.LittleEndian.Uint64(data[16:])))
	f.Meta = FrameMeta{
		CenterFrequencyHz: math.Float64frombits(binary.LittleEndian.Uint64(data[24:])),
		ResolutionHz:      math.Float64frombits(binary.LittleEndian.Uint64(data[32:])),
		DecimationFactor:  int(binary.LittleEndian.Uint32(data[40:])),
	}

	f.MagnitudeDB = make([]float64, n)
	f.FrequencyHz = make([]float64, n)
	half := n / 2
	for i := 0; i < n; i++ {
		f.MagnitudeDB[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[frameHdrLen+i*4:])))
		f.FrequencyHz[i] = f.Meta.CenterFrequencyHz + float64(i-half)*f.Meta.ResolutionHz
	}
	return nil
}
