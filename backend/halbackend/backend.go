package halbackend

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/gpuval"
	"github.com/gogpu/gpuval/backend"
	"github.com/gogpu/gpuval/serial"
)

// Name is the backend name of a Backend created with New.
const Name = "hal"

// Backend executes gpuval command buffers on a hal device.
//
// The device calls every method except CompletedSerial with its lock
// held. CompletedSerial may run concurrently with Execute.
type Backend struct {
	name     string
	device   hal.Device
	queue    hal.Queue
	instance hal.Instance // set when the backend owns the device

	logger atomic.Pointer[slog.Logger]

	encoders  *encoderPool
	resources *resourceAllocator
	uploads   *uploader
	last      serial.Serial // serial of the last Execute

	// owned destroys the natives that are never released individually,
	// in creation order.
	owned       []func()
	emptyLayout hal.BindGroupLayout

	// mu guards submissions, the hal submission index of every Execute
	// keyed by its serial.
	mu          sync.Mutex
	submissions serial.Queue[uint64]
}

// New creates a backend on an open hal device. The caller keeps ownership
// of device and queue; Destroy leaves them open.
func New(device hal.Device, queue hal.Queue) *Backend {
	encoders := newEncoderPool(device)
	b := &Backend{
		name:      Name,
		device:    device,
		queue:     queue,
		encoders:  encoders,
		resources: newResourceAllocator(device),
		uploads:   newUploader(device, queue, encoders),
	}
	b.logger.Store(gpuval.Logger())
	return b
}

// OpenNoop opens the hal noop device and creates a backend owning it.
func OpenNoop() (*Backend, error) {
	instance, err := noop.API{}.CreateInstance(nil)
	if err != nil {
		return nil, fmt.Errorf("halbackend: create noop instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, ErrNoAdapter
	}
	open, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("halbackend: open noop device: %w", err)
	}

	b := New(open.Device, open.Queue)
	b.name = backend.BackendNoop
	b.instance = instance
	return b, nil
}

// Name returns "noop" for OpenNoop backends and "hal" otherwise.
func (b *Backend) Name() string { return b.name }

// SetLogger sets the logger for backend diagnostics.
func (b *Backend) SetLogger(l *slog.Logger) { b.logger.Store(l) }

func (b *Backend) log() *slog.Logger { return b.logger.Load() }

// Execute encodes cb on a recycled command encoder and submits it, preceded
// by the buffer writes staged since the last submission.
func (b *Backend) Execute(cb *gpuval.CommandBuffer, s serial.Serial) error {
	enc, err := b.encoders.acquire(cb.Label())
	if err != nil {
		return err
	}
	if err := b.encode(enc, cb); err != nil {
		b.encoders.discard(enc)
		return err
	}
	raw, err := enc.EndEncoding()
	if err != nil {
		b.encoders.discard(enc)
		return fmt.Errorf("halbackend: end encoding %q: %w", cb.Label(), err)
	}
	pending, err := b.uploads.flush(s)
	if err != nil {
		b.encoders.recycle(encoding{encoder: enc, buffer: raw})
		return err
	}
	cbs := []hal.CommandBuffer{raw}
	if pending != nil {
		cbs = []hal.CommandBuffer{pending, raw}
	}
	b.last = s
	index, err := b.queue.Submit(cbs)
	if err != nil {
		b.encoders.recycle(encoding{encoder: enc, buffer: raw})
		return fmt.Errorf("halbackend: submit %q: %w", cb.Label(), err)
	}
	b.encoders.retire(enc, raw, s)

	b.mu.Lock()
	b.submissions.Enqueue(index, s)
	b.mu.Unlock()

	b.log().Debug("halbackend: submitted",
		"label", cb.Label(), "serial", uint64(s), "submission", index, "passes", len(cb.Passes()))
	return nil
}

// CompletedSerial maps the queue's completed submission index to the last
// serial whose submissions have all completed.
func (b *Backend) CompletedSerial() serial.Serial {
	done := b.queue.PollCompleted()

	b.mu.Lock()
	defer b.mu.Unlock()
	completed := serial.Max
	for s, index := range b.submissions.All() {
		if index > done {
			completed = s - 1
			break
		}
	}
	b.submissions.ClearUpTo(completed)
	return completed
}

// Release destroys native once s has completed.
func (b *Backend) Release(native any, s serial.Serial) {
	b.resources.release(native, s)
}

// Tick recycles command encoders and destroys released natives and
// staging buffers whose serial completed.
func (b *Backend) Tick(completed serial.Serial) {
	recycled := b.encoders.tick(completed)
	staging := b.uploads.tick(completed)
	freed, err := b.resources.tick(completed)
	if err != nil {
		b.log().Warn("halbackend: release failed", "err", err)
	}
	if recycled > 0 || freed > 0 || staging > 0 {
		b.log().Debug("halbackend: tick",
			"completed", uint64(completed), "encoders", recycled, "freed", freed, "staging", staging)
	}
}

// WriteBuffer writes data into buf. On queues that copy through command
// buffers the write lands with the next submission.
func (b *Backend) WriteBuffer(buf *gpuval.Buffer, offset uint64, data []byte) error {
	nb, err := nativeOf[*buffer](buf, "buffer")
	if err != nil {
		return err
	}
	if err := b.uploads.write(nb, offset, data); err != nil {
		return fmt.Errorf("halbackend: write buffer %q: %w", buf.Label(), err)
	}
	return nil
}

// ReadBuffer maps the range of buf and copies it into dst. Writes still
// staged are submitted and waited for first.
func (b *Backend) ReadBuffer(buf *gpuval.Buffer, offset uint64, dst []byte) error {
	nb, err := nativeOf[*buffer](buf, "buffer")
	if err != nil {
		return err
	}
	if len(dst) == 0 {
		return nil
	}
	if b.uploads.hasPending() {
		if err := b.submitUploads(); err != nil {
			return err
		}
	}
	m, err := b.device.MapBuffer(nb.raw, offset, uint64(len(dst)))
	if err != nil {
		return fmt.Errorf("halbackend: map buffer %q: %w", buf.Label(), err)
	}
	copy(dst, unsafe.Slice((*byte)(m.Ptr), len(dst)))
	if err := b.device.UnmapBuffer(nb.raw); err != nil {
		return fmt.Errorf("halbackend: unmap buffer %q: %w", buf.Label(), err)
	}
	return nil
}

// submitUploads submits the staged writes on their own and waits for the
// device, so their encoder may be retired at an already completed serial.
func (b *Backend) submitUploads() error {
	pending, err := b.uploads.flush(b.last)
	if err != nil {
		return err
	}
	if _, err := b.queue.Submit([]hal.CommandBuffer{pending}); err != nil {
		return fmt.Errorf("halbackend: submit pending writes: %w", err)
	}
	if err := b.device.WaitIdle(); err != nil {
		return fmt.Errorf("halbackend: wait for pending writes: %w", err)
	}
	return nil
}

// Destroy waits for the device to go idle and destroys every native the
// backend created. A device opened by OpenNoop is destroyed too. Writes
// still staged are dropped.
func (b *Backend) Destroy() {
	if err := b.device.WaitIdle(); err != nil {
		b.log().Warn("halbackend: wait idle", "err", err)
	}
	b.uploads.destroy()
	b.encoders.destroy()
	if _, err := b.resources.tick(serial.Max); err != nil {
		b.log().Warn("halbackend: release failed", "err", err)
	}
	for i := len(b.owned) - 1; i >= 0; i-- {
		b.owned[i]()
	}
	b.owned = nil
	b.emptyLayout = nil

	b.mu.Lock()
	b.submissions.Clear()
	b.mu.Unlock()

	if b.instance != nil {
		b.device.Destroy()
		b.instance.Destroy()
		b.instance = nil
	}
}

// own registers destroy to run when the backend is destroyed.
func (b *Backend) own(destroy func()) {
	b.owned = append(b.owned, destroy)
}

// nativeOf returns the native of obj as a T.
func nativeOf[T any](obj interface{ Native() any }, what string) (T, error) {
	n, ok := obj.Native().(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s", ErrForeignNative, what)
	}
	return n, nil
}

var _ gpuval.Backend = (*Backend)(nil)
