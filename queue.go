package gpuval

import (
	"fmt"

	"github.com/gogpu/gpuval/serial"
)

// Queue submits command buffers to the device backend.
type Queue struct {
	device *Device
}

// Submit hands cbs to the backend as the work of one serial and closes the
// serial. Nothing is executed if any command buffer is invalid, was already
// submitted, or references a mapped buffer or a destroyed resource.
func (q *Queue) Submit(cbs ...*CommandBuffer) error {
	const op = "Queue.Submit"
	d := q.device
	if d.destroyed.Load() {
		return d.fail(op, ErrDeviceDestroyed)
	}

	d.mu.Lock()
	if err := checkSubmission(d, cbs); err != nil {
		d.mu.Unlock()
		return d.fail(op, err)
	}

	s := d.timeline.GetSerial()
	for i, cb := range cbs {
		if err := d.backend.Execute(cb, s); err != nil {
			// The command buffers before cb reached the backend, so their
			// resources stay alive until s completes.
			for _, done := range cbs[:i] {
				markSubmitted(done, s)
			}
			d.timeline.NextSerial()
			d.mu.Unlock()
			return d.failBackend(op, fmt.Errorf("command buffer %q: %w", cb.label, err))
		}
	}
	for _, cb := range cbs {
		markSubmitted(cb, s)
	}
	d.timeline.NextSerial()
	d.mu.Unlock()

	Logger().Debug("gpuval: submit", "serial", uint64(s), "commandBuffers", len(cbs))
	return nil
}

func checkSubmission(d *Device, cbs []*CommandBuffer) error {
	seen := make(map[*CommandBuffer]struct{}, len(cbs))
	for _, cb := range cbs {
		if _, dup := seen[cb]; dup && cb != nil {
			return fmt.Errorf("%w: %q listed twice", ErrCommandBufferSubmitted, cb.label)
		}
		seen[cb] = struct{}{}

		switch {
		case cb == nil:
			return fmt.Errorf("%w: command buffer", ErrNilResource)
		case cb.device != d:
			return fmt.Errorf("%w: command buffer %q", ErrForeignResource, cb.label)
		case cb.submitted:
			return fmt.Errorf("%w: %q", ErrCommandBufferSubmitted, cb.label)
		case cb.commands == nil:
			return fmt.Errorf("%w: %q released", ErrCommandBufferInvalid, cb.label)
		}
		for _, b := range cb.buffers {
			if err := b.checkSubmittable(); err != nil {
				return err
			}
		}
		for _, t := range cb.textures {
			if err := t.checkSubmittable(); err != nil {
				return err
			}
		}
		for _, g := range cb.bindGroups {
			if err := g.checkSubmittable(); err != nil {
				return err
			}
		}
	}
	return nil
}

func markSubmitted(cb *CommandBuffer, s serial.Serial) {
	cb.submitted = true
	for _, b := range cb.buffers {
		b.markUsed(s)
	}
	for _, t := range cb.textures {
		t.markUsed(s)
	}
	for _, g := range cb.bindGroups {
		g.markUsed(s)
	}
}
