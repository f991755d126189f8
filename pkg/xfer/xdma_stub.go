//go:build !linux

package xfer

import "context"

// XDMAConfig names the character devices of the accelerator.
type XDMAConfig struct {
	ControlDevice string
	FrameDevice   string
	CoeffDevice   string
	FrameBytes    int
}

// XDMA is only available on linux; use Sim elsewhere.
type XDMA struct{}

func OpenXDMA(cfg XDMAConfig) (*XDMA, error) { return nil, ErrUnsupported }

func (x *XDMA) ReadReg(addr int) (uint32, error) { return 0, ErrUnsupported }

func (x *XDMA) WriteReg(addr int, val uint32) error { return ErrUnsupported }

func (x *XDMA) WriteBuffer(id BufferID, bank int, data []byte) error { return ErrUnsupported }

func (x *XDMA) ReadFrame(ctx context.Context) ([]byte, error) { return nil, ErrUnsupported }

func (x *XDMA) Close() error { return nil }
