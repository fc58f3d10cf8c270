package gpuval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/wgpu/core"

	"github.com/gogpu/gpuval/internal/shadercache"
	"github.com/gogpu/gpuval/serial"
)

// Device owns the frontend objects, the error channel and the serial
// timeline of one backend.
//
// Thread Safety:
// Device methods are safe for concurrent use. Submission, Tick and every
// backend call are serialised by one lock. Command buffer builders are not
// safe for concurrent use and must stay on one goroutine.
type Device struct {
	opts     deviceOptions
	backend  Backend
	timeline *serial.Timeline
	scopes   *core.ErrorScopeManager
	queue    *Queue
	mapReads *mapReadTracker
	shaders  *shadercache.Cache // nil when disabled

	// mu serialises backend calls, submission and Tick.
	mu sync.Mutex

	// releaseSerial is the highest serial handed to Backend.Release.
	releaseSerial serial.Serial

	destroyed atomic.Bool
}

// NewDevice creates a device. Without WithBackend the device uses a backend
// that keeps buffers in memory and completes every submission immediately.
func NewDevice(opts ...DeviceOption) (*Device, error) {
	o := defaultDeviceOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxBindGroups == 0 {
		return nil, fmt.Errorf("gpuval: max bind groups must be positive")
	}
	if o.maxVertexBuffers == 0 {
		return nil, fmt.Errorf("gpuval: max vertex buffers must be positive")
	}
	if o.backend == nil {
		o.backend = newNullBackend()
	}

	d := &Device{
		opts:    o,
		backend: o.backend,
		scopes:  core.NewErrorScopeManager(),
	}
	d.timeline = serial.NewTimeline(serial.FenceFunc(d.backend.CompletedSerial),
		serial.WithPollInterval(o.pollInterval))
	d.mapReads = newMapReadTracker(d)
	d.queue = &Queue{device: d}
	if o.shaderCacheSize > 0 {
		d.shaders = shadercache.New(o.shaderCacheSize)
	}

	d.timeline.AddReclaimer(serial.ReclaimerFunc(d.backend.Tick))
	d.timeline.AddReclaimer(d.mapReads)

	trackBackend(d.backend)
	Logger().Info("gpuval: device created", "backend", d.backend.Name())
	return d, nil
}

// Backend returns the backend executing the device's work.
func (d *Device) Backend() Backend { return d.backend }

// Queue returns the device queue.
func (d *Device) Queue() *Queue { return d.queue }

// MaxBindGroups returns the number of bind group slots.
func (d *Device) MaxBindGroups() uint32 { return d.opts.maxBindGroups }

// MaxVertexBuffers returns the number of vertex buffer slots.
func (d *Device) MaxVertexBuffers() uint32 { return d.opts.maxVertexBuffers }

// MaxPushConstants returns the number of 32-bit push constant words.
func (d *Device) MaxPushConstants() uint32 { return d.opts.maxPushConstants }

// =============================================================================
// Error channel
// =============================================================================

// PushErrorScope starts capturing errors of the given kind.
// Each PushErrorScope must be paired with a PopErrorScope.
func (d *Device) PushErrorScope(kind ErrorKind) {
	d.scopes.PushErrorScope(kind.Filter())
}

// PopErrorScope ends the innermost error scope and returns the first error
// it captured, or nil. It fails if no scope is open.
func (d *Device) PopErrorScope() (*core.GPUError, error) {
	gpuErr, err := d.scopes.PopErrorScope()
	if err != nil {
		return nil, fmt.Errorf("gpuval: %w", err)
	}
	return gpuErr, nil
}

// reportError delivers err to the innermost matching scope, the uncaptured
// error callback or the logger, in that order.
func (d *Device) reportError(err *Error) {
	if d.scopes.ReportError(err.Kind.Filter(), err.Error()) {
		return
	}
	if d.opts.onError != nil {
		d.opts.onError(err)
		return
	}
	Logger().Warn("gpuval: uncaptured error", "kind", err.Kind, "op", err.Op, "err", err.Err)
}

// fail classifies err as a validation error of op, reports it and returns it.
func (d *Device) fail(op string, err error) error {
	e := validationError(op, err)
	d.reportError(e)
	return e
}

// failBackend classifies a backend error of op, reports it and returns it.
func (d *Device) failBackend(op string, err error) error {
	e := backendError(op, err)
	d.reportError(e)
	return e
}

// =============================================================================
// Timeline
// =============================================================================

// GetSerial returns the serial the next submission will carry.
func (d *Device) GetSerial() serial.Serial { return d.timeline.GetSerial() }

// LastSubmittedSerial returns the serial of the last submission, or 0.
func (d *Device) LastSubmittedSerial() serial.Serial { return d.timeline.LastSubmittedSerial() }

// CompletedSerial returns the last completed serial observed by Tick or a wait.
func (d *Device) CompletedSerial() serial.Serial { return d.timeline.CompletedSerial() }

// NextSerial closes the pending serial and returns it. Queue.Submit calls it
// after handing work to the backend; backends that batch work of their own
// may call it directly.
func (d *Device) NextSerial() serial.Serial {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timeline.NextSerial()
}

// WaitForSerial blocks until serial s has completed. The wait has no
// timeout; use WaitForSerialContext to bound it.
func (d *Device) WaitForSerial(s serial.Serial) error {
	return d.WaitForSerialContext(context.Background(), s)
}

// WaitForSerialContext blocks until serial s has completed or ctx is done.
func (d *Device) WaitForSerialContext(ctx context.Context, s serial.Serial) error {
	if err := d.timeline.WaitForSerialContext(ctx, s); err != nil {
		if errors.Is(err, serial.ErrNotSubmitted) {
			return fmt.Errorf("gpuval: wait for serial %d: %w", s, err)
		}
		return err
	}
	return nil
}

// Tick polls the backend for the completed serial, recycles everything
// tagged with completed serials and fires finished buffer map callbacks.
// It returns the completed serial.
func (d *Device) Tick() serial.Serial {
	d.mu.Lock()
	completed := d.timeline.Tick()
	ready := d.mapReads.takeReady()
	d.mu.Unlock()

	for _, r := range ready {
		r.complete()
	}
	if len(ready) > 0 {
		Logger().Debug("gpuval: tick", "completed", uint64(completed), "mapReads", len(ready))
	}
	return completed
}

// Destroy waits for outstanding work, cancels pending buffer maps and
// destroys the backend. The device must not be used afterwards.
func (d *Device) Destroy() {
	if !d.destroyed.CompareAndSwap(false, true) {
		return
	}
	d.mu.Lock()
	pending := d.mapReads.cancelAll()
	d.backend.Destroy()
	d.mu.Unlock()

	for _, r := range pending {
		r.lose()
	}
	untrackBackend(d.backend)
	Logger().Info("gpuval: device destroyed", "backend", d.backend.Name())
}

// IsDestroyed reports whether Destroy has been called.
func (d *Device) IsDestroyed() bool { return d.destroyed.Load() }

// release hands native to the backend for destruction once s completes.
// Serials passed to Backend.Release never decrease, so a resource last used
// before a later release waits for that later serial.
func (d *Device) release(native any, s serial.Serial) {
	if native == nil || d.destroyed.Load() {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	s = max(s, d.releaseSerial)
	d.releaseSerial = s
	d.backend.Release(native, s)
}

// create runs a backend constructor under the device lock.
func create[T any](d *Device, op string, obj T, fn func(T) (any, error)) (any, error) {
	if d.destroyed.Load() {
		return nil, d.fail(op, ErrDeviceDestroyed)
	}
	d.mu.Lock()
	native, err := fn(obj)
	d.mu.Unlock()
	if err != nil {
		return nil, d.failBackend(op, err)
	}
	return native, nil
}
