//go:build linux

package xfer

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// Byte offsets of the coefficient banks in the h2c address space.
const (
	filterBank0Off = 0x0000_1000
	filterBank1Off = 0x0000_2000
	windowBank0Off = 0x0001_0000
	windowBank1Off = 0x0002_0000
)

// XDMAConfig names the character devices of the accelerator.
type XDMAConfig struct {
	// ControlDevice is the register BAR, e.g. /dev/xdma0_user.
	ControlDevice string
	// FrameDevice is the card-to-host stream, e.g. /dev/xdma0_c2h_0.
	FrameDevice string
	// CoeffDevice is the host-to-card channel the coefficient banks
	// hang off, e.g. /dev/xdma0_h2c_0.
	CoeffDevice string
	// FrameBytes is the size of one PSD frame on the wire.
	FrameBytes int
}

// XDMA talks to the real accelerator through the xdma driver.
type XDMA struct {
	cfg XDMAConfig

	mu      sync.Mutex
	frameFd int
	closed  bool
}

// OpenXDMA opens the frame stream and verifies the control BAR responds.
func OpenXDMA(cfg XDMAConfig) (*XDMA, error) {
	if cfg.FrameBytes <= 0 {
		return nil, fmt.Errorf("xdma: frame size %d", cfg.FrameBytes)
	}

	fd, err := unix.Open(cfg.FrameDevice, unix.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("xdma: open frame device %s: %w", cfg.FrameDevice, err)
	}

	// Larger pipe buffer keeps up with the streaming path.
	const maxPipeSize = 1024 * 1024
	_, _ = unix.FcntlInt(uintptr(fd), unix.F_SETPIPE_SZ, maxPipeSize)

	x := &XDMA{cfg: cfg, frameFd: fd}
	if _, err := x.ReadReg(RegStatus); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("xdma: control BAR probe: %w", err)
	}
	return x, nil
}

// ReadReg reads a 32-bit value from the control BAR.
func (x *XDMA) ReadReg(addr int) (uint32, error) {
	f, err := os.OpenFile(x.cfg.ControlDevice, os.O_RDONLY, 0)
	if err != nil {
		return 0, fmt.Errorf("xdma: open control device: %w", err)
	}
	defer f.Close()

	buf := make([]byte, 4)
	if _, err := f.ReadAt(buf, int64(addr)); err != nil {
		return 0, fmt.Errorf("xdma: read reg 0x%02x: %w", addr, err)
	}
	return binary.LittleEndian.Uint32(buf), nil
}

// WriteReg writes a 32-bit value to the control BAR.
func (x *XDMA) WriteReg(addr int, val uint32) error {
	f, err := os.OpenFile(x.cfg.ControlDevice, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("xdma: open control device: %w", err)
	}
	defer f.Close()

	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, val)
	if _, err := f.WriteAt(buf, int64(addr)); err != nil {
		return fmt.Errorf("xdma: write reg 0x%02x: %w", addr, err)
	}
	return nil
}

func bankOffset(id BufferID, bank int) (int64, error) {
	switch {
	case id == BufferFilter && bank == 0:
		return filterBank0Off, nil
	case id == BufferFilter && bank == 1:
		return filterBank1Off, nil
	case id == BufferWindow && bank == 0:
		return windowBank0Off, nil
	case id == BufferWindow && bank == 1:
		return windowBank1Off, nil
	}
	return 0, fmt.Errorf("xdma: no bank %d for %s store", bank, id)
}

// WriteBuffer writes a coefficient block to one bank over the h2c channel.
func (x *XDMA) WriteBuffer(id BufferID, bank int, data []byte) error {
	off, err := bankOffset(id, bank)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(x.cfg.CoeffDevice, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("xdma: open coeff device: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteAt(data, off); err != nil {
		return fmt.Errorf("xdma: write %s bank %d: %w", id, bank, err)
	}
	return nil
}

// ReadFrame waits for the stream to become readable, then reads exactly one
// frame. The DMA engine packetizes on the start-of-frame marker, so a full
// read from the head of the channel is frame-aligned.
func (x *XDMA) ReadFrame(ctx context.Context) ([]byte, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return nil, ErrClosed
	}

	buf := make([]byte, x.cfg.FrameBytes)
	total := 0
	for total < len(buf) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// Poll in short slices so cancellation stays responsive.
		timeoutMs := 50
		if dl, ok := ctx.Deadline(); ok {
			if rem := time.Until(dl); rem < 50*time.Millisecond {
				timeoutMs = int(rem / time.Millisecond)
				if timeoutMs <= 0 {
					return nil, context.DeadlineExceeded
				}
			}
		}

		fds := []unix.PollFd{{Fd: int32(x.frameFd), Events: unix.POLLIN}}
		n, err := unix.Poll(fds, timeoutMs)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return nil, fmt.Errorf("xdma: poll frame device: %w", err)
		}
		if n == 0 {
			continue
		}

		r, err := unix.Read(x.frameFd, buf[total:])
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return nil, fmt.Errorf("xdma: read frame after %d bytes: %w", total, err)
		}
		if r == 0 {
			return nil, fmt.Errorf("xdma: frame stream EOF after %d bytes", total)
		}
		total += r
	}
	return buf, nil
}

// Close releases the frame stream.
func (x *XDMA) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return nil
	}
	x.closed = true
	return unix.Close(x.frameFd)
}
