// Package gpuval validates GPU command buffers and tracks resource hazards
// before any work reaches a native graphics backend.
//
// # Overview
//
// Applications record copies, render passes and compute passes into a
// [CommandBufferBuilder]. Finishing the builder runs a single linear scan over
// the recorded command log that
//
//   - drives a per-pass state machine deciding which commands are legal,
//   - accumulates how every buffer and texture is used inside each pass,
//   - rejects passes that would use a resource for writing and anything else
//     at the same time,
//   - checks every copy against buffer and texture bounds and usages.
//
// A command buffer that passes validation carries one [PassResourceUsage]
// per pass. Explicit-barrier backends turn those into resource transitions
// before replaying the pass natively.
//
// # Quick Start
//
//	dev, err := gpuval.NewDevice(gpuval.WithBackend(b))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer dev.Destroy()
//
//	src, _ := dev.CreateBuffer(gpuval.BufferDescriptor{Size: 256, Usage: track.BufferUsageTransferSrc})
//	dst, _ := dev.CreateBuffer(gpuval.BufferDescriptor{Size: 256, Usage: track.BufferUsageTransferDst})
//
//	b := dev.CreateCommandBufferBuilder("upload")
//	b.CopyBufferToBuffer(src, 0, dst, 0, 256)
//	cb, err := b.Finish()
//	if err != nil {
//		// The command buffer was not created; record it again.
//	}
//	err = dev.Queue().Submit(cb)
//
// # Errors
//
// Every recording and validation error is reported once into the device
// error channel, classified by [ErrorKind]. Errors can be captured with
// [Device.PushErrorScope] and [Device.PopErrorScope]; uncaptured errors go to
// the callback set with [WithErrorCallback], or to the logger.
//
// # Timeline
//
// Each submission carries a serial. Destroyed resources, pending buffer
// reads and backend allocations are released by [Device.Tick] once the
// backend reports the serial that last used them as completed.
package gpuval
