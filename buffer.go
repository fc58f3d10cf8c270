package gpuval

import (
	"fmt"
	"sync"

	"github.com/gogpu/gpuval/serial"
	"github.com/gogpu/gpuval/track"
)

// BufferMapState represents the mapping state of a buffer.
type BufferMapState int

const (
	// BufferMapStateUnmapped means the buffer is not mapped.
	BufferMapStateUnmapped BufferMapState = iota
	// BufferMapStatePending means a map read is waiting for the GPU.
	BufferMapStatePending
	// BufferMapStateMapped means the mapped bytes are available.
	BufferMapStateMapped
)

// String returns the string representation of BufferMapState.
func (s BufferMapState) String() string {
	switch s {
	case BufferMapStateUnmapped:
		return "Unmapped"
	case BufferMapStatePending:
		return "Pending"
	case BufferMapStateMapped:
		return "Mapped"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// MapReadStatus is the result passed to a map read callback.
type MapReadStatus int

const (
	// MapReadStatusSuccess means the data is valid until Unmap.
	MapReadStatusSuccess MapReadStatus = iota
	// MapReadStatusError means the request was invalid or the read failed.
	MapReadStatusError
	// MapReadStatusUnknown means the request was cancelled by Unmap or Destroy.
	MapReadStatusUnknown
	// MapReadStatusContextLost means the device was destroyed first.
	MapReadStatusContextLost
)

// String returns the string representation of MapReadStatus.
func (s MapReadStatus) String() string {
	switch s {
	case MapReadStatusSuccess:
		return "Success"
	case MapReadStatusError:
		return "Error"
	case MapReadStatusUnknown:
		return "Unknown"
	case MapReadStatusContextLost:
		return "ContextLost"
	default:
		return fmt.Sprintf("MapReadStatus(%d)", int(s))
	}
}

// MapReadCallback receives the outcome of Buffer.MapReadAsync. data is nil
// unless status is MapReadStatusSuccess.
type MapReadCallback func(status MapReadStatus, data []byte)

// BufferDescriptor describes a buffer to create.
type BufferDescriptor struct {
	// Label is an optional debug name.
	Label string

	// Size is the buffer size in bytes.
	Size uint64

	// Usage is the set of usages the buffer may ever take.
	Usage track.BufferUsage

	// InitialUsage is the current usage right after creation.
	InitialUsage track.BufferUsage
}

// Buffer is a linear GPU allocation.
//
// The embedded UsageTracker holds the allowed and current usage. Usage
// tracking follows the single-goroutine recording model and is not
// synchronised; map state and destruction are.
type Buffer struct {
	track.UsageTracker[track.BufferUsage]

	device *Device
	label  string
	size   uint64
	native any

	mu        sync.Mutex
	mapState  BufferMapState
	mapReq    *mapReadRequest
	mapped    []byte
	lastUse   serial.Serial
	destroyed bool
}

// CreateBuffer creates a buffer.
func (d *Device) CreateBuffer(desc BufferDescriptor) (*Buffer, error) {
	const op = "CreateBuffer"
	if desc.Size == 0 {
		return nil, d.fail(op, ErrZeroSize)
	}
	if !track.IsUsagePossible(desc.Usage, desc.InitialUsage) {
		return nil, d.fail(op, fmt.Errorf("%w: %s (allowed %s)", ErrInitialUsageNotAllowed, desc.InitialUsage, desc.Usage))
	}

	b := &Buffer{
		UsageTracker: track.NewUsageTracker(desc.Usage),
		device:       d,
		label:        desc.Label,
		size:         desc.Size,
	}
	if err := b.UsageTracker.TransitionUsage(desc.InitialUsage); err != nil {
		return nil, d.fail(op, err)
	}
	native, err := create(d, op, b, d.backend.CreateBuffer)
	if err != nil {
		return nil, err
	}
	b.native = native
	return b, nil
}

// Label returns the buffer's debug label.
func (b *Buffer) Label() string { return b.label }

// Size returns the buffer size in bytes.
func (b *Buffer) Size() uint64 { return b.size }

// Native returns the backend handle.
func (b *Buffer) Native() any { return b.native }

// Device returns the device that created the buffer.
func (b *Buffer) Device() *Device { return b.device }

// MapState returns the current mapping state.
func (b *Buffer) MapState() BufferMapState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mapState
}

// IsDestroyed reports whether Destroy has been called.
func (b *Buffer) IsDestroyed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.destroyed
}

// LastUse returns the serial of the last submission that referenced the buffer.
func (b *Buffer) LastUse() serial.Serial {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastUse
}

// MappedRange returns the bytes delivered by the last successful map read,
// or nil when the buffer is not mapped.
func (b *Buffer) MappedRange() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.mapState != BufferMapStateMapped {
		return nil
	}
	return b.mapped
}

// TransitionUsage sets the buffer's current usage. A failure is reported to
// the device error channel and leaves the usage unchanged.
func (b *Buffer) TransitionUsage(u track.BufferUsage) error {
	if err := b.UsageTracker.TransitionUsage(u); err != nil {
		return b.device.fail("Buffer.TransitionUsage", err)
	}
	return nil
}

// FreezeUsage narrows the allowed usage to u for the rest of the buffer's
// life. A failure is reported to the device error channel.
func (b *Buffer) FreezeUsage(u track.BufferUsage) error {
	if err := b.UsageTracker.FreezeUsage(u); err != nil {
		return b.device.fail("Buffer.FreezeUsage", err)
	}
	return nil
}

// ClearUsage resets the current usage. It fails on a frozen buffer.
func (b *Buffer) ClearUsage() error {
	if err := b.UsageTracker.ClearUsage(); err != nil {
		return b.device.fail("Buffer.ClearUsage", err)
	}
	return nil
}

// SetSubData writes data into the buffer at start. The buffer must allow
// TransferDst, must not be mapped, and the range must fit.
func (b *Buffer) SetSubData(start uint64, data []byte) error {
	const op = "Buffer.SetSubData"
	d := b.device

	b.mu.Lock()
	destroyed, state := b.destroyed, b.mapState
	b.mu.Unlock()

	switch {
	case destroyed:
		return d.fail(op, ErrBufferDestroyed)
	case state != BufferMapStateUnmapped:
		return d.fail(op, ErrBufferMapped)
	case !b.HasUsage(track.BufferUsageTransferDst):
		return d.fail(op, ErrSubDataUsage)
	case !fitsInBuffer(b.size, start, uint64(len(data))):
		return d.fail(op, fmt.Errorf("%w: start %d + %d bytes > size %d", ErrCopyOverflowsBuffer, start, len(data), b.size))
	}
	if len(data) == 0 {
		return nil
	}

	d.mu.Lock()
	err := d.backend.WriteBuffer(b, start, data)
	d.mu.Unlock()
	if err != nil {
		return d.failBackend(op, err)
	}
	return nil
}

// MapReadAsync asks for size bytes at start once every submission that may
// write the buffer has completed. The callback runs from Device.Tick.
//
// The buffer must allow MapRead and must not be mapped or pending. On
// failure the callback is invoked with MapReadStatusError before
// MapReadAsync returns.
func (b *Buffer) MapReadAsync(start, size uint64, callback MapReadCallback) error {
	const op = "Buffer.MapReadAsync"
	d := b.device
	if callback == nil {
		return d.fail(op, ErrCallbackNil)
	}

	b.mu.Lock()
	var err error
	switch {
	case d.IsDestroyed():
		b.mu.Unlock()
		callback(MapReadStatusContextLost, nil)
		return d.fail(op, ErrDeviceDestroyed)
	case b.destroyed:
		err = ErrBufferDestroyed
	case b.mapState != BufferMapStateUnmapped:
		err = ErrBufferAlreadyMapped
	case !b.HasUsage(track.BufferUsageMapRead):
		err = ErrMapUsageMismatch
	case !fitsInBuffer(b.size, start, size):
		err = fmt.Errorf("%w: start %d + size %d > buffer size %d", ErrInvalidMapRange, start, size, b.size)
	case !b.IsFrozen() || b.Usage() != track.BufferUsageMapRead:
		err = b.UsageTracker.TransitionUsage(track.BufferUsageMapRead)
	}
	if err != nil {
		b.mu.Unlock()
		callback(MapReadStatusError, nil)
		return d.fail(op, err)
	}

	req := &mapReadRequest{buffer: b, start: start, size: size, callback: callback}
	b.mapState = BufferMapStatePending
	b.mapReq = req
	b.mu.Unlock()

	d.mapReads.track(req, d.LastSubmittedSerial())
	return nil
}

// Unmap releases mapped bytes, or cancels a pending map read whose callback
// then receives MapReadStatusUnknown.
func (b *Buffer) Unmap() {
	b.mu.Lock()
	req := b.mapReq
	b.resetMapLocked()
	b.mu.Unlock()

	if req != nil {
		req.callback(MapReadStatusUnknown, nil)
	}
}

// resetMapLocked returns the buffer to the unmapped state.
func (b *Buffer) resetMapLocked() {
	if b.mapState == BufferMapStateUnmapped {
		return
	}
	b.mapState = BufferMapStateUnmapped
	b.mapReq = nil
	b.mapped = nil
	// A buffer frozen as MapRead keeps its usage.
	_ = b.UsageTracker.ClearUsage()
}

// Destroy releases the buffer. The backend frees the allocation once the
// last submission that referenced the buffer has completed. A pending map
// read is cancelled.
func (b *Buffer) Destroy() {
	b.mu.Lock()
	if b.destroyed {
		b.mu.Unlock()
		return
	}
	b.destroyed = true
	var req *mapReadRequest
	if b.mapState == BufferMapStatePending {
		req = b.mapReq
	}
	b.resetMapLocked()
	last := b.lastUse
	b.mu.Unlock()

	if req != nil {
		req.callback(MapReadStatusUnknown, nil)
	}
	b.device.release(b.native, last)
}

// checkSubmittable reports why the buffer cannot be used by a submission.
func (b *Buffer) checkSubmittable() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case b.destroyed:
		return fmt.Errorf("%w: %q", ErrBufferDestroyed, b.label)
	case b.mapState != BufferMapStateUnmapped:
		return fmt.Errorf("%w: %q", ErrBufferMapped, b.label)
	}
	return nil
}

func (b *Buffer) markUsed(s serial.Serial) {
	b.mu.Lock()
	b.lastUse = s
	b.mu.Unlock()
}

// fitsInBuffer reports whether [offset, offset+size) lies inside a buffer
// of bufferSize bytes without overflowing.
func fitsInBuffer(bufferSize, offset, size uint64) bool {
	return offset <= bufferSize && size <= bufferSize-offset
}
