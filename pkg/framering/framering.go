//go:build unix

// Package framering publishes serialized spectrum frames through a
// shared-memory slot ring, so external visualizers can mmap the newest
// frame without attaching to the WebSocket stream. One writer, any number
// of readers; readers validate the slot sequence around the copy to reject
// torn reads.
package framering

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// RingHeader sits at the start of the shared memory segment.
type RingHeader struct {
	Magic     uint64
	Version   uint32
	SlotSize  uint32
	SlotCount uint32
	_         uint32
	Head      uint64 // frames published so far; newest slot is (Head-1)%SlotCount
}

const (
	HeaderSize = uint64(unsafe.Sizeof(RingHeader{}))
	MagicValue = 0x53414d52494e4731 // "SAMRING1"

	// Per-slot prefix: sequence (u64) + payload length (u32) + pad.
	slotPrefix = 16
)

// Ring is a mapped frame ring.
type Ring struct {
	fd     int
	data   []byte
	header *RingHeader
}

func shmPath(name string) string { return "/dev/shm" + name }

// Create creates (or attaches to) a ring with the given slot geometry.
// slotSize must fit the largest serialized frame plus the slot prefix.
func Create(name string, slotSize, slotCount uint32) (*Ring, error) {
	path := shmPath(name)
	f, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_EXCL, 0666)
	if err != nil {
		if err == unix.EEXIST {
			return Open(name)
		}
		return nil, fmt.Errorf("open shm: %w", err)
	}

	total := HeaderSize + uint64(slotSize)*uint64(slotCount)
	if err := unix.Ftruncate(f, int64(total)); err != nil {
		unix.Close(f)
		return nil, fmt.Errorf("ftruncate: %w", err)
	}

	data, err := unix.Mmap(f, 0, int(total), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(f)
		return nil, fmt.Errorf("mmap: %w", err)
	}

	r := &Ring{fd: f, data: data}
	r.header = (*RingHeader)(unsafe.Pointer(&data[0]))
	r.header.Magic = MagicValue
	r.header.Version = 1
	r.header.SlotSize = slotSize
	r.header.SlotCount = slotCount
	atomic.StoreUint64(&r.header.Head, 0)
	return r, nil
}

// Open attaches to an existing ring.
func Open(name string) (*Ring, error) {
	path := shmPath(name)
	f, err := unix.Open(path, unix.O_RDWR, 0666)
	if err != nil {
		return nil, fmt.Errorf("open shm: %w", err)
	}

	var stat unix.Stat_t
	if err := unix.Fstat(f, &stat); err != nil {
		unix.Close(f)
		return nil, fmt.Errorf("fstat: %w", err)
	}

	data, err := unix.Mmap(f, 0, int(stat.Size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(f)
		return nil, fmt.Errorf("mmap: %w", err)
	}

	r := &Ring{fd: f, data: data}
	r.header = (*RingHeader)(unsafe.Pointer(&data[0]))
	if r.header.Magic != MagicValue {
		r.Close()
		return nil, fmt.Errorf("invalid magic value in shm ring")
	}
	return r, nil
}

func (r *Ring) slot(i uint64) []byte {
	size := uint64(r.header.SlotSize)
	off := HeaderSize + (i%uint64(r.header.SlotCount))*size
	return r.data[off : off+size]
}

// Publish copies one serialized frame into the next slot and advances the
// head. The sequence word is written last so readers can detect slots still
// being filled.
func (r *Ring) Publish(frame []byte) error {
	if uint32(len(frame))+slotPrefix > r.header.SlotSize {
		return fmt.Errorf("frame of %d bytes exceeds slot size %d", len(frame), r.header.SlotSize)
	}

	head := atomic.LoadUint64(&r.header.Head)
	s := r.slot(head)

	// Invalidate the slot first so a concurrent reader can never accept a
	// half-written payload.
	atomic.StoreUint64((*uint64)(unsafe.Pointer(&s[0])), 0)
	*(*uint32)(unsafe.Pointer(&s[8])) = uint32(len(frame))
	copy(s[slotPrefix:], frame)
	atomic.StoreUint64((*uint64)(unsafe.Pointer(&s[0])), head+1)
	atomic.StoreUint64(&r.header.Head, head+1)
	return nil
}

// Latest returns a copy of the newest published frame and its sequence
// number. Returns false when nothing has been published yet or the slot was
// overwritten mid-copy.
func (r *Ring) Latest() ([]byte, uint64, bool) {
	head := atomic.LoadUint64(&r.header.Head)
	if head == 0 {
		return nil, 0, false
	}

	s := r.slot(head - 1)
	seq := atomic.LoadUint64((*uint64)(unsafe.Pointer(&s[0])))
	n := *(*uint32)(unsafe.Pointer(&s[8]))
	if seq != head || n == 0 || n+slotPrefix > r.header.SlotSize {
		return nil, 0, false
	}

	out := make([]byte, n)
	copy(out, s[slotPrefix:slotPrefix+n])

	// Reject the copy if the writer lapped us while we were reading.
	if atomic.LoadUint64((*uint64)(unsafe.Pointer(&s[0]))) != seq {
		return nil, 0, false
	}
	return out, seq, true
}

// Close unmaps the ring; the segment stays until Remove.
func (r *Ring) Close() error {
	if r.data != nil {
		unix.Munmap(r.data)
		r.data = nil
	}
	if r.fd != 0 {
		unix.Close(r.fd)
		r.fd = 0
	}
	return nil
}

// Remove unlinks the shared memory segment.
func Remove(name string) error {
	err := unix.Unlink(shmPath(name))
	if err != nil && err != unix.ENOENT {
		return err
	}
	return nil
}
