package serial

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrNotSubmitted is returned when waiting for a serial that has not been
// submitted yet and therefore can never complete.
var ErrNotSubmitted = errors.New("serial: waiting for a serial that was never submitted")

// Fence reports the most recent serial the GPU has finished executing.
// It is supplied by the backend and must be non-blocking.
type Fence interface {
	CompletedSerial() Serial
}

// FenceFunc adapts a function to the Fence interface.
type FenceFunc func() Serial

// CompletedSerial calls f.
func (f FenceFunc) CompletedSerial() Serial { return f() }

// Reclaimer releases work whose last use is at or before completed.
type Reclaimer interface {
	Tick(completed Serial)
}

// ReclaimerFunc adapts a function to the Reclaimer interface.
type ReclaimerFunc func(completed Serial)

// Tick calls f.
func (f ReclaimerFunc) Tick(completed Serial) { f(completed) }

// DefaultPollInterval is how often WaitForSerial queries the fence.
const DefaultPollInterval = 200 * time.Microsecond

// TimelineOption configures a Timeline.
type TimelineOption func(*Timeline)

// WithPollInterval sets how often waits query the fence.
// Non-positive values keep the default.
func WithPollInterval(d time.Duration) TimelineOption {
	return func(t *Timeline) {
		if d > 0 {
			t.pollInterval = d
		}
	}
}

// Timeline tracks the pending and completed serials of one device.
//
// GetSerial is the serial the next submission will carry. NextSerial closes
// it after a submission. The completed serial only moves forward and is
// refreshed from the fence by QueryCompletedSerial, WaitForSerial and Tick.
//
// Serial reads are safe from any goroutine. NextSerial and Tick are expected
// to be called from the goroutine that owns the device.
type Timeline struct {
	fence        Fence
	pollInterval time.Duration

	pending   atomic.Uint64
	completed atomic.Uint64

	mu         sync.Mutex
	reclaimers []Reclaimer
}

// NewTimeline creates a timeline whose completion is reported by fence.
// The first submission carries serial 1.
func NewTimeline(fence Fence, opts ...TimelineOption) *Timeline {
	t := &Timeline{
		fence:        fence,
		pollInterval: DefaultPollInterval,
	}
	t.pending.Store(1)
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// GetSerial returns the serial of the submission being assembled.
// Resources used by it are tagged with this serial.
func (t *Timeline) GetSerial() Serial {
	return Serial(t.pending.Load())
}

// LastSubmittedSerial returns the serial of the most recent submission,
// or 0 if nothing was submitted yet.
func (t *Timeline) LastSubmittedSerial() Serial {
	return Serial(t.pending.Load() - 1)
}

// NextSerial closes the current serial and returns it. Called once per
// submission, after the backend has handed the work to the GPU.
func (t *Timeline) NextSerial() Serial {
	return Serial(t.pending.Add(1) - 1)
}

// CompletedSerial returns the last completed serial observed, without
// querying the fence.
func (t *Timeline) CompletedSerial() Serial {
	return Serial(t.completed.Load())
}

// QueryCompletedSerial asks the fence for the last completed serial and
// records it. The recorded value never decreases and never passes the last
// submitted serial.
func (t *Timeline) QueryCompletedSerial() Serial {
	s := t.fence.CompletedSerial()
	if last := t.LastSubmittedSerial(); s > last {
		s = last
	}
	for {
		cur := t.completed.Load()
		if uint64(s) <= cur {
			return Serial(cur)
		}
		if t.completed.CompareAndSwap(cur, uint64(s)) {
			return s
		}
	}
}

// WaitForSerial blocks until s has completed. The wait is unconditional;
// use WaitForSerialContext to bound it.
// It returns ErrNotSubmitted if s was never submitted.
func (t *Timeline) WaitForSerial(s Serial) error {
	return t.WaitForSerialContext(context.Background(), s)
}

// WaitForSerialContext blocks until s has completed or ctx is done.
func (t *Timeline) WaitForSerialContext(ctx context.Context, s Serial) error {
	if s > t.LastSubmittedSerial() {
		return ErrNotSubmitted
	}
	if t.QueryCompletedSerial() >= s {
		return nil
	}

	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if t.QueryCompletedSerial() >= s {
				return nil
			}
		}
	}
}

// AddReclaimer registers r to be ticked with the completed serial.
// Reclaimers run in registration order.
func (t *Timeline) AddReclaimer(r Reclaimer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reclaimers = append(t.reclaimers, r)
}

// Tick refreshes the completed serial from the fence and hands it to every
// reclaimer. It returns the completed serial.
func (t *Timeline) Tick() Serial {
	completed := t.QueryCompletedSerial()

	t.mu.Lock()
	reclaimers := t.reclaimers
	t.mu.Unlock()

	for _, r := range reclaimers {
		r.Tick(completed)
	}
	return completed
}
