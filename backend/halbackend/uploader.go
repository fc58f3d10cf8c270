package halbackend

import (
	"fmt"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpuval/serial"
	"github.com/gogpu/gpuval/track"
)

// uploader performs buffer writes. On queues that copy through command
// buffers, each write goes through a mapped staging buffer and a copy
// recorded on a pending encoder; the next submission carries the pending
// encoder ahead of its own work, and the staging buffers are destroyed once
// that submission's serial completes. Other queues write directly.
type uploader struct {
	device   hal.Device
	queue    hal.Queue
	encoders *encoderPool
	batching bool

	pending  hal.CommandEncoder // nil until the first staged write
	barriers barrierBatch
	staging  []hal.Buffer
	inFlight serial.Queue[hal.Buffer]
}

func newUploader(device hal.Device, queue hal.Queue, encoders *encoderPool) *uploader {
	return &uploader{
		device:   device,
		queue:    queue,
		encoders: encoders,
		batching: queue.SupportsCommandBufferCopies(),
	}
}

// write copies data into dst at offset.
func (u *uploader) write(dst *buffer, offset uint64, data []byte) error {
	if !u.batching {
		return u.queue.WriteBuffer(dst.raw, offset, data)
	}
	if len(data) == 0 {
		return nil
	}

	size := uint64(len(data))
	staging, err := u.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "gpuval upload",
		Size:  size,
		Usage: gputypes.BufferUsageMapWrite | gputypes.BufferUsageCopySrc,
	})
	if err != nil {
		return fmt.Errorf("create staging buffer: %w", err)
	}
	m, err := u.device.MapBuffer(staging, 0, size)
	if err != nil {
		u.device.DestroyBuffer(staging)
		return fmt.Errorf("map staging buffer: %w", err)
	}
	copy(unsafe.Slice((*byte)(m.Ptr), len(data)), data)
	if err := u.device.UnmapBuffer(staging); err != nil {
		u.device.DestroyBuffer(staging)
		return fmt.Errorf("unmap staging buffer: %w", err)
	}

	if u.pending == nil {
		enc, err := u.encoders.acquire("gpuval pending writes")
		if err != nil {
			u.device.DestroyBuffer(staging)
			return err
		}
		u.pending = enc
	}
	u.barriers.buffer(dst, track.BufferUsageTransferDst)
	u.barriers.flush(u.pending)
	u.pending.CopyBufferToBuffer(staging, dst.raw, []hal.BufferCopy{{DstOffset: offset, Size: size}})
	u.staging = append(u.staging, staging)
	return nil
}

// hasPending reports whether staged writes wait for a submission.
func (u *uploader) hasPending() bool { return u.pending != nil }

// flush ends the pending encoder and returns its command buffer, or nil
// when nothing was staged. The encoder and the staging buffers are
// retired at serial s.
func (u *uploader) flush(s serial.Serial) (hal.CommandBuffer, error) {
	if u.pending == nil {
		return nil, nil
	}
	enc := u.pending
	u.pending = nil
	staging := u.staging
	u.staging = nil

	raw, err := enc.EndEncoding()
	if err != nil {
		u.encoders.discard(enc)
		for _, b := range staging {
			u.device.DestroyBuffer(b)
		}
		return nil, fmt.Errorf("halbackend: end pending writes: %w", err)
	}
	u.encoders.retire(enc, raw, s)
	for _, b := range staging {
		u.inFlight.Enqueue(b, s)
	}
	return raw, nil
}

// tick destroys the staging buffers of every serial up to completed.
func (u *uploader) tick(completed serial.Serial) int {
	n := 0
	for _, b := range u.inFlight.UpTo(completed) {
		u.device.DestroyBuffer(b)
		n++
	}
	u.inFlight.ClearUpTo(completed)
	return n
}

// destroy drops unsubmitted writes and frees every staging buffer. The
// device must be idle.
func (u *uploader) destroy() {
	if u.pending != nil {
		u.encoders.discard(u.pending)
		u.pending = nil
	}
	for _, b := range u.staging {
		u.device.DestroyBuffer(b)
	}
	u.staging = nil
	u.tick(serial.Max)
}
