// Package halbackend executes validated gpuval command buffers on a
// github.com/gogpu/wgpu/hal device.
//
// The frontend validates command buffers and accumulates, per pass, the
// usage of every buffer and texture. This backend turns that usage into
// explicit barriers: before each pass and each copy it transitions every
// resource from the usage it was last left in to the usage the pass needs,
// then replays the pass on a hal command encoder.
//
// Work is tracked by serial. Each Execute submits one hal command buffer
// and remembers the hal submission index under the device serial;
// CompletedSerial maps the queue's completed submission index back to a
// serial. Released natives and used command encoders wait in serial
// queues until their serial completes and are destroyed or recycled by
// Tick.
//
// # Registration
//
// Importing the package registers a backend on the hal noop device under
// the name "noop":
//
//	import _ "github.com/gogpu/gpuval/backend/halbackend"
//
//	dev, err := backend.Open("noop")
//
// New wraps a device opened elsewhere.
package halbackend
