// Package xfer moves bytes between the host and the spectrum analyser
// logic: control-register access, coefficient block writes into the
// double-buffered stores, and start-of-frame-aligned reads of PSD frames.
//
// Two implementations exist: XDMA drives the real accelerator through the
// xdma character devices, and Sim is a self-contained software model of the
// accelerator used by tests and -sim mode.
package xfer

import (
	"context"
	"errors"
)

// BufferID names a hardware-resident coefficient store.
type BufferID int

const (
	// BufferFilter is the reloadable decimation-filter coefficient store.
	BufferFilter BufferID = iota
	// BufferWindow is the FFT window coefficient store.
	BufferWindow
)

func (b BufferID) String() string {
	switch b {
	case BufferFilter:
		return "filter"
	case BufferWindow:
		return "window"
	}
	return "unknown"
}

// Control register map of the spectrum analyser overlay. Addresses are byte
// offsets into the control BAR.
const (
	RegStatus      = 0x00 // global status
	RegFilterCtrl  = 0x04 // filter store bank control
	RegWindowCtrl  = 0x08 // window store bank control
	RegNCOPhaseInc = 0x0C // receiver mixer phase increment
	RegRxCtrl      = 0x10 // receiver update handshake
	RegDCRemoval   = 0x14 // per-frame mean subtraction enable
)

// Bank control bits (RegFilterCtrl / RegWindowCtrl). The host writes the
// inactive bank, then sets CtrlSwapRequest; the logic commits the swap at
// the next frame boundary and clears the bit. CtrlActiveBank always reports
// the bank the streaming path is reading.
const (
	CtrlSwapRequest = uint32(1) << 0
	CtrlActiveBank  = uint32(1) << 1
)

// Receiver handshake bits (RegRxCtrl). Same request/commit discipline as
// the bank swaps: the mixer frequency changes on a sample boundary.
const (
	RxUpdateRequest = uint32(1) << 0
)

// Status bits (RegStatus).
const (
	StatusPipelineUp = uint32(1) << 0
)

var (
	// ErrUnsupported is returned by the XDMA transport on platforms
	// without the xdma character devices.
	ErrUnsupported = errors.New("xdma transport not supported on this platform")

	// ErrClosed is returned once a transport has been shut down.
	ErrClosed = errors.New("transport closed")
)

// Transport is the byte-moving surface the control plane runs on.
type Transport interface {
	// ReadReg reads a 32-bit control register.
	ReadReg(addr int) (uint32, error)
	// WriteReg writes a 32-bit control register.
	WriteReg(addr int, val uint32) error

	// WriteBuffer writes a coefficient block into one bank of a
	// double-buffered store. It must never touch the other bank.
	WriteBuffer(id BufferID, bank int, data []byte) error

	// ReadFrame blocks until the next start-of-frame marker, then
	// returns one complete frame. It never returns a partial frame;
	// ctx bounds the wait.
	ReadFrame(ctx context.Context) ([]byte, error)

	Close() error
}
