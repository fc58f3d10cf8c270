package gpuval

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gogpu/gpuval/serial"
	"github.com/gogpu/gpuval/track"
)

// manualFenceBackend is a NullBackend whose completed serial only moves
// when the test says so.
type manualFenceBackend struct {
	*NullBackend
	done atomic.Uint64
}

func (m *manualFenceBackend) CompletedSerial() serial.Serial {
	return serial.Serial(m.done.Load())
}

func (m *manualFenceBackend) complete(s serial.Serial) { m.done.Store(uint64(s)) }

func newManualFenceDevice(t *testing.T) (*Device, *manualFenceBackend) {
	t.Helper()
	mb := &manualFenceBackend{NullBackend: NewNullBackend()}
	d, err := NewDevice(WithBackend(mb), WithPollInterval(time.Millisecond))
	if err != nil {
		t.Fatalf("NewDevice() = %v", err)
	}
	t.Cleanup(d.Destroy)
	return d, mb
}

// submitCopy submits one copy between fresh buffers and returns its serial.
func submitCopy(t *testing.T, d *Device, src, dst *Buffer) serial.Serial {
	t.Helper()
	b := d.CreateCommandBufferBuilder("copy")
	b.CopyBufferToBuffer(src, 0, dst, 0, min(src.Size(), dst.Size()))
	s := d.GetSerial()
	if err := d.Queue().Submit(mustFinish(t, b)); err != nil {
		t.Fatalf("Submit() = %v", err)
	}
	return s
}

func TestDevice_ErrorScopes(t *testing.T) {
	var errs errorCounter
	d, _ := newTestDevice(t, errs.option())

	d.PushErrorScope(ErrorKindOutOfMemory)
	d.PushErrorScope(ErrorKindValidation)
	if _, err := d.CreateBuffer(BufferDescriptor{Label: "empty"}); !errors.Is(err, ErrZeroSize) {
		t.Fatalf("CreateBuffer() = %v, want %v", err, ErrZeroSize)
	}
	if _, err := d.CreateBuffer(BufferDescriptor{Label: "empty again"}); err == nil {
		t.Fatal("CreateBuffer() succeeded, want error")
	}

	gpuErr, err := d.PopErrorScope()
	if err != nil {
		t.Fatalf("PopErrorScope() = %v", err)
	}
	if gpuErr == nil {
		t.Fatal("validation scope captured nothing")
	}
	if want := "CreateBuffer: " + ErrZeroSize.Error(); gpuErr.Message != want {
		t.Errorf("captured %q, want the first error %q", gpuErr.Message, want)
	}

	// The out-of-memory scope does not capture validation errors.
	if _, err := d.CreateBuffer(BufferDescriptor{Label: "empty"}); err == nil {
		t.Fatal("CreateBuffer() succeeded, want error")
	}
	if len(errs.errs) != 1 {
		t.Errorf("callback got %d errors, want 1", len(errs.errs))
	}
	if gpuErr, err := d.PopErrorScope(); err != nil || gpuErr != nil {
		t.Errorf("PopErrorScope() = %v, %v; want nil, nil", gpuErr, err)
	}
	if _, err := d.PopErrorScope(); err == nil {
		t.Error("PopErrorScope() on empty stack succeeded")
	}
}

func TestDevice_DeferredDestroy(t *testing.T) {
	d, mb := newManualFenceDevice(t)
	src := mustBuffer(t, d, "src", 16, track.BufferUsageTransferSrc)
	dst := mustBuffer(t, d, "dst", 16, track.BufferUsageTransferDst)

	s := submitCopy(t, d, src, dst)
	if src.LastUse() != s || dst.LastUse() != s {
		t.Fatalf("LastUse() = %d, %d; want %d", src.LastUse(), dst.LastUse(), s)
	}

	src.Destroy()
	if mb.Pending() != 1 || mb.Freed() != 0 {
		t.Fatalf("after Destroy: pending %d freed %d, want 1, 0", mb.Pending(), mb.Freed())
	}
	d.Tick()
	if mb.Freed() != 0 {
		t.Fatalf("freed before serial %d completed", s)
	}

	mb.complete(s)
	if got := d.Tick(); got != s {
		t.Errorf("Tick() = %d, want %d", got, s)
	}
	if mb.Pending() != 0 || mb.Freed() != 1 {
		t.Errorf("after completion: pending %d freed %d, want 0, 1", mb.Pending(), mb.Freed())
	}
}

func TestDevice_ReleaseSerialsNeverDecrease(t *testing.T) {
	d, mb := newManualFenceDevice(t)
	src := mustBuffer(t, d, "src", 16, track.BufferUsageTransferSrc)
	dst := mustBuffer(t, d, "dst", 16, track.BufferUsageTransferDst)
	idle := mustBuffer(t, d, "idle", 16, track.BufferUsageVertex)

	s := submitCopy(t, d, src, dst)
	src.Destroy()
	idle.Destroy()

	if got, ok := mb.pending.FirstSerial(); !ok || got != s {
		t.Errorf("first pending serial = %d, %v; want %d", got, ok, s)
	}
	mb.complete(s)
	d.Tick()
	if mb.Freed() != 2 {
		t.Errorf("Freed() = %d, want 2", mb.Freed())
	}
}

func TestDevice_Serials(t *testing.T) {
	d, _ := newTestDevice(t)
	if d.GetSerial() != 1 || d.LastSubmittedSerial() != 0 {
		t.Fatalf("fresh device: GetSerial %d LastSubmitted %d, want 1, 0", d.GetSerial(), d.LastSubmittedSerial())
	}
	src := mustBuffer(t, d, "src", 16, track.BufferUsageTransferSrc)
	dst := mustBuffer(t, d, "dst", 16, track.BufferUsageTransferDst)

	for want := serial.Serial(1); want <= 3; want++ {
		if got := submitCopy(t, d, src, dst); got != want {
			t.Errorf("submission serial = %d, want %d", got, want)
		}
	}
	if d.LastSubmittedSerial() != 3 || d.GetSerial() != 4 {
		t.Errorf("after 3 submits: LastSubmitted %d GetSerial %d, want 3, 4", d.LastSubmittedSerial(), d.GetSerial())
	}
	if got := d.Tick(); got != 3 {
		t.Errorf("Tick() = %d, want 3", got)
	}
	if err := d.WaitForSerial(3); err != nil {
		t.Errorf("WaitForSerial(3) = %v", err)
	}
}

func TestDevice_WaitForSerialContext(t *testing.T) {
	d, mb := newManualFenceDevice(t)
	src := mustBuffer(t, d, "src", 16, track.BufferUsageTransferSrc)
	dst := mustBuffer(t, d, "dst", 16, track.BufferUsageTransferDst)

	if err := d.WaitForSerial(1); !errors.Is(err, serial.ErrNotSubmitted) {
		t.Errorf("WaitForSerial(unsubmitted) = %v, want %v", err, serial.ErrNotSubmitted)
	}

	s := submitCopy(t, d, src, dst)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := d.WaitForSerialContext(ctx, s); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitForSerialContext() = %v, want %v", err, context.DeadlineExceeded)
	}

	go func() {
		time.Sleep(5 * time.Millisecond)
		mb.complete(s)
	}()
	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	if err := d.WaitForSerialContext(ctx2, s); err != nil {
		t.Errorf("WaitForSerialContext() = %v after completion", err)
	}
	if d.CompletedSerial() != s {
		t.Errorf("CompletedSerial() = %d, want %d", d.CompletedSerial(), s)
	}
}

func TestDevice_MapReadRoundTrip(t *testing.T) {
	d, _ := newTestDevice(t)
	src := mustBuffer(t, d, "src", 16, track.BufferUsageTransferSrc|track.BufferUsageTransferDst)
	readback := mustBuffer(t, d, "readback", 16, track.BufferUsageTransferDst|track.BufferUsageMapRead)

	want := []byte("0123456789abcdef")
	if err := src.SetSubData(0, want); err != nil {
		t.Fatalf("SetSubData() = %v", err)
	}
	submitCopy(t, d, src, readback)

	var (
		calls  int
		status MapReadStatus
		got    []byte
	)
	if err := readback.MapReadAsync(4, 8, func(s MapReadStatus, data []byte) {
		calls++
		status, got = s, data
	}); err != nil {
		t.Fatalf("MapReadAsync() = %v", err)
	}
	if calls != 0 || readback.MapState() != BufferMapStatePending {
		t.Fatalf("before Tick: %d calls, state %s", calls, readback.MapState())
	}

	d.Tick()
	if calls != 1 || status != MapReadStatusSuccess {
		t.Fatalf("after Tick: %d calls, status %s", calls, status)
	}
	if !bytes.Equal(got, want[4:12]) {
		t.Errorf("data = %q, want %q", got, want[4:12])
	}
	if readback.MapState() != BufferMapStateMapped || !bytes.Equal(readback.MappedRange(), got) {
		t.Errorf("state %s, mapped range %q", readback.MapState(), readback.MappedRange())
	}

	readback.Unmap()
	if readback.MapState() != BufferMapStateUnmapped || readback.MappedRange() != nil {
		t.Errorf("after Unmap: state %s", readback.MapState())
	}
}

func TestDevice_MapReadFrozenBuffer(t *testing.T) {
	d, _ := newTestDevice(t)
	readback := mustBuffer(t, d, "readback", 16, track.BufferUsageTransferDst|track.BufferUsageMapRead)
	if err := readback.FreezeUsage(track.BufferUsageMapRead); err != nil {
		t.Fatalf("FreezeUsage() = %v", err)
	}

	for i := range 2 {
		var status MapReadStatus = -1
		if err := readback.MapReadAsync(0, 16, func(s MapReadStatus, _ []byte) { status = s }); err != nil {
			t.Fatalf("map %d: MapReadAsync() = %v", i, err)
		}
		d.Tick()
		if status != MapReadStatusSuccess {
			t.Fatalf("map %d: status = %s, want Success", i, status)
		}
		readback.Unmap()
		if !readback.IsFrozen() || readback.Usage() != track.BufferUsageMapRead {
			t.Errorf("map %d: frozen %v usage %s, want frozen MapRead", i, readback.IsFrozen(), readback.Usage())
		}
	}
}

func TestDevice_UsageErrorsReported(t *testing.T) {
	var errs errorCounter
	d, _ := newTestDevice(t, errs.option())
	buf := mustBuffer(t, d, "vertex", 16, track.BufferUsageVertex)
	tex := mustTexture(t, d, "sampled", 4, 4, track.TextureUsageSampled)

	tests := []struct {
		name    string
		do      func() error
		wantErr error
	}{
		{"buffer transition", func() error { return buf.TransitionUsage(track.BufferUsageStorage) }, track.ErrUsageNotAllowed},
		{"buffer freeze", func() error { return buf.FreezeUsage(track.BufferUsageUniform) }, track.ErrUsageNotAllowed},
		{"texture transition", func() error { return tex.TransitionUsage(track.TextureUsageStorage) }, track.ErrUsageNotAllowed},
		{"texture freeze", func() error { return tex.FreezeUsage(track.TextureUsageOutputAttachment) }, track.ErrUsageNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d.PushErrorScope(ErrorKindValidation)
			if err := tt.do(); !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			gpuErr, err := d.PopErrorScope()
			if err != nil {
				t.Fatalf("PopErrorScope() = %v", err)
			}
			if gpuErr == nil {
				t.Error("validation scope captured nothing")
			}
		})
	}

	if err := buf.TransitionUsage(track.BufferUsageVertex); err != nil {
		t.Fatalf("TransitionUsage(Vertex) = %v", err)
	}
	if err := tex.FreezeUsage(track.TextureUsageSampled); err != nil {
		t.Fatalf("FreezeUsage(Sampled) = %v", err)
	}
	if len(errs.errs) != 0 {
		t.Fatalf("callback got %d errors before the frozen texture, want 0", len(errs.errs))
	}
	if err := tex.ClearUsage(); !errors.Is(err, track.ErrFrozen) {
		t.Errorf("ClearUsage() = %v, want %v", err, track.ErrFrozen)
	}
	if len(errs.errs) != 1 || errs.errs[0].Op != "Texture.ClearUsage" {
		t.Errorf("uncaptured errors = %v, want one from Texture.ClearUsage", errs.errs)
	}
}

func TestDevice_MapReadErrors(t *testing.T) {
	d, _ := newTestDevice(t)
	readable := mustBuffer(t, d, "readable", 16, track.BufferUsageMapRead)
	plain := mustBuffer(t, d, "plain", 16, track.BufferUsageTransferDst)
	destroyed := mustBuffer(t, d, "destroyed", 16, track.BufferUsageMapRead)
	destroyed.Destroy()

	if err := readable.MapReadAsync(0, 4, func(MapReadStatus, []byte) {}); err != nil {
		t.Fatalf("MapReadAsync() = %v", err)
	}

	tests := []struct {
		name        string
		buffer      *Buffer
		start, size uint64
		wantErr     error
	}{
		{"already pending", readable, 0, 4, ErrBufferAlreadyMapped},
		{"no map read usage", plain, 0, 4, ErrMapUsageMismatch},
		{"range", mustBuffer(t, d, "small", 16, track.BufferUsageMapRead), 8, 16, ErrInvalidMapRange},
		{"destroyed", destroyed, 0, 4, ErrBufferDestroyed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var status MapReadStatus = -1
			err := tt.buffer.MapReadAsync(tt.start, tt.size, func(s MapReadStatus, _ []byte) { status = s })
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("MapReadAsync() = %v, want %v", err, tt.wantErr)
			}
			if status != MapReadStatusError {
				t.Errorf("callback status = %s, want Error", status)
			}
		})
	}

	if err := readable.MapReadAsync(0, 4, nil); !errors.Is(err, ErrCallbackNil) {
		t.Errorf("MapReadAsync(nil) = %v, want %v", err, ErrCallbackNil)
	}
}

func TestDevice_MapReadCancelled(t *testing.T) {
	d, _ := newManualFenceDevice(t)
	src := mustBuffer(t, d, "src", 16, track.BufferUsageTransferSrc)
	unmapped := mustBuffer(t, d, "unmapped", 16, track.BufferUsageTransferDst|track.BufferUsageMapRead)
	destroyed := mustBuffer(t, d, "destroyed", 16, track.BufferUsageTransferDst|track.BufferUsageMapRead)
	lost := mustBuffer(t, d, "lost", 16, track.BufferUsageTransferDst|track.BufferUsageMapRead)
	submitCopy(t, d, src, unmapped)

	statuses := make(map[string]MapReadStatus)
	for _, b := range []*Buffer{unmapped, destroyed, lost} {
		if err := b.MapReadAsync(0, 16, func(s MapReadStatus, _ []byte) { statuses[b.Label()] = s }); err != nil {
			t.Fatalf("MapReadAsync(%q) = %v", b.Label(), err)
		}
	}

	unmapped.Unmap()
	destroyed.Destroy()
	d.Destroy()

	want := map[string]MapReadStatus{
		"unmapped":  MapReadStatusUnknown,
		"destroyed": MapReadStatusUnknown,
		"lost":      MapReadStatusContextLost,
	}
	for label, s := range want {
		if statuses[label] != s {
			t.Errorf("%s: status = %s, want %s", label, statuses[label], s)
		}
	}
}

func TestDevice_DestroyedRejectsWork(t *testing.T) {
	d, _ := newTestDevice(t)
	b := mustBuffer(t, d, "b", 16, track.BufferUsageMapRead)
	d.Destroy()
	d.Destroy()

	if !d.IsDestroyed() {
		t.Fatal("IsDestroyed() = false")
	}
	if _, err := d.CreateBuffer(BufferDescriptor{Size: 4, Usage: track.BufferUsageVertex}); !errors.Is(err, ErrDeviceDestroyed) {
		t.Errorf("CreateBuffer() = %v, want %v", err, ErrDeviceDestroyed)
	}
	if err := d.Queue().Submit(); !errors.Is(err, ErrDeviceDestroyed) {
		t.Errorf("Submit() = %v, want %v", err, ErrDeviceDestroyed)
	}
	var status MapReadStatus = -1
	if err := b.MapReadAsync(0, 4, func(s MapReadStatus, _ []byte) { status = s }); !errors.Is(err, ErrDeviceDestroyed) {
		t.Errorf("MapReadAsync() = %v, want %v", err, ErrDeviceDestroyed)
	}
	if status != MapReadStatusContextLost {
		t.Errorf("status = %s, want ContextLost", status)
	}
}
