package gpuval

import (
	"fmt"
	"sync"

	"github.com/gogpu/gpuval/serial"
)

// mapReadRequest is one outstanding Buffer.MapReadAsync.
type mapReadRequest struct {
	buffer      *Buffer
	start, size uint64
	callback    MapReadCallback

	// Filled by the tracker once the serial completed.
	data []byte
	err  error
}

// complete delivers the request unless it was cancelled meanwhile.
func (r *mapReadRequest) complete() {
	b := r.buffer
	b.mu.Lock()
	if b.mapReq != r {
		b.mu.Unlock()
		return
	}
	if r.err != nil {
		b.resetMapLocked()
		b.mu.Unlock()
		r.callback(MapReadStatusError, nil)
		return
	}
	b.mapState = BufferMapStateMapped
	b.mapReq = nil
	b.mapped = r.data
	b.mu.Unlock()

	r.callback(MapReadStatusSuccess, r.data)
}

// lose delivers MapReadStatusContextLost unless the request was cancelled.
func (r *mapReadRequest) lose() {
	b := r.buffer
	b.mu.Lock()
	if b.mapReq != r {
		b.mu.Unlock()
		return
	}
	b.resetMapLocked()
	b.mu.Unlock()

	r.callback(MapReadStatusContextLost, nil)
}

// mapReadTracker holds map read requests until the serial they wait for
// completes. Tick runs under the device lock and reads the bytes through the
// backend; the device fires the callbacks after releasing the lock.
type mapReadTracker struct {
	device *Device

	mu      sync.Mutex
	pending serial.Queue[*mapReadRequest]
	ready   []*mapReadRequest
}

func newMapReadTracker(d *Device) *mapReadTracker {
	return &mapReadTracker{device: d}
}

// track queues r behind serial s.
func (t *mapReadTracker) track(r *mapReadRequest, s serial.Serial) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending.Enqueue(r, s)
}

// Tick moves every request whose serial completed to the ready list.
func (t *mapReadTracker) Tick(completed serial.Serial) {
	t.mu.Lock()
	var due []*mapReadRequest
	for _, r := range t.pending.UpTo(completed) {
		due = append(due, r)
	}
	t.pending.ClearUpTo(completed)
	t.mu.Unlock()

	for _, r := range due {
		if r.buffer.IsDestroyed() {
			continue
		}
		r.data = make([]byte, r.size)
		if err := t.device.backend.ReadBuffer(r.buffer, r.start, r.data); err != nil {
			r.data = nil
			r.err = fmt.Errorf("read buffer %q: %w", r.buffer.label, err)
			t.device.reportError(backendError("Buffer.MapReadAsync", r.err))
		}
	}

	t.mu.Lock()
	t.ready = append(t.ready, due...)
	t.mu.Unlock()
}

// takeReady returns and forgets the requests ready for their callbacks.
func (t *mapReadTracker) takeReady() []*mapReadRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	ready := t.ready
	t.ready = nil
	return ready
}

// cancelAll returns every request not yet delivered and forgets them.
func (t *mapReadTracker) cancelAll() []*mapReadRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	var all []*mapReadRequest
	for _, r := range t.pending.All() {
		all = append(all, r)
	}
	all = append(all, t.ready...)
	t.pending.Clear()
	t.ready = nil
	return all
}
