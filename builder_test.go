package gpuval

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gpuval/track"
)

// errorCounter collects uncaptured errors.
type errorCounter struct {
	errs []*Error
}

func (c *errorCounter) option() DeviceOption {
	return WithErrorCallback(func(e *Error) { c.errs = append(c.errs, e) })
}

func TestBuilder_RecordingErrors(t *testing.T) {
	var errs errorCounter
	d, _ := newTestDevice(t, errs.option(), WithMaxPushConstants(4))
	other, _ := newTestDevice(t)
	buf := mustBuffer(t, d, "buf", 64, track.BufferUsageVertex)
	foreign := mustBuffer(t, other, "foreign", 64, track.BufferUsageVertex)
	group := mustBindGroup(t, d, mustBindGroupLayout(t, d))

	tests := []struct {
		name    string
		record  func(b *CommandBufferBuilder)
		wantErr error
	}{
		{"too many push constants", func(b *CommandBufferBuilder) {
			b.SetPushConstants(gputypes.ShaderStageVertex, 2, []uint32{1, 2, 3})
		}, ErrTooManyPushConstants},
		{"bind group index over max", func(b *CommandBufferBuilder) {
			b.SetBindGroup(d.MaxBindGroups(), group)
		}, ErrBindGroupIndexOverMax},
		{"nil bind group", func(b *CommandBufferBuilder) {
			b.SetBindGroup(0, nil)
		}, ErrNilResource},
		{"vertex slot over max", func(b *CommandBufferBuilder) {
			b.SetVertexBuffers(d.MaxVertexBuffers()-1, []*Buffer{buf, buf}, []uint64{0, 0})
		}, ErrVertexSlotOverMax},
		{"vertex buffers mismatch", func(b *CommandBufferBuilder) {
			b.SetVertexBuffers(0, []*Buffer{buf}, nil)
		}, ErrVertexBuffersMismatch},
		{"nil index buffer", func(b *CommandBufferBuilder) {
			b.SetIndexBuffer(nil, 0)
		}, ErrNilResource},
		{"foreign copy source", func(b *CommandBufferBuilder) {
			b.CopyBufferToBuffer(foreign, 0, buf, 0, 4)
		}, ErrForeignResource},
		{"nil render pass", func(b *CommandBufferBuilder) {
			b.BeginRenderPass(nil)
		}, ErrNilResource},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs.errs = nil
			b := d.CreateCommandBufferBuilder(tt.name)
			tt.record(b)
			if len(errs.errs) != 1 || !errors.Is(errs.errs[0], tt.wantErr) {
				t.Fatalf("reported %v while recording, want one %v", errs.errs, tt.wantErr)
			}
			if !errors.Is(b.Err(), tt.wantErr) {
				t.Errorf("Err() = %v, want %v", b.Err(), tt.wantErr)
			}
			if err := finishErr(t, b); !errors.Is(err, tt.wantErr) {
				t.Errorf("Finish() = %v, want %v", err, tt.wantErr)
			}
			if len(errs.errs) != 1 {
				t.Errorf("Finish reported the recording error again: %v", errs.errs)
			}
		})
	}
}

func TestBuilder_FirstErrorWins(t *testing.T) {
	var errs errorCounter
	d, _ := newTestDevice(t, errs.option())

	b := d.CreateCommandBufferBuilder("first")
	b.SetIndexBuffer(nil, 0)
	b.SetVertexBuffers(0, nil, []uint64{0})
	b.Dispatch(1, 1, 1)

	if err := finishErr(t, b); !errors.Is(err, ErrNilResource) {
		t.Errorf("Finish() = %v, want %v", err, ErrNilResource)
	}
	if len(errs.errs) != 1 {
		t.Errorf("reported %d errors, want 1", len(errs.errs))
	}
}

func TestBuilder_Finalized(t *testing.T) {
	var errs errorCounter
	d, _ := newTestDevice(t, errs.option())

	b := d.CreateCommandBufferBuilder("once")
	b.BeginComputePass()
	b.EndComputePass()
	mustFinish(t, b)

	if _, err := b.Finish(); !errors.Is(err, ErrBuilderFinalized) {
		t.Errorf("second Finish() = %v, want %v", err, ErrBuilderFinalized)
	}
	b.Dispatch(1, 1, 1)
	if len(errs.errs) != 2 || !errors.Is(errs.errs[1], ErrBuilderFinalized) {
		t.Errorf("recording after Finish reported %v, want %v", errs.errs, ErrBuilderFinalized)
	}
}

func TestBuilder_FailedFinishIsFinal(t *testing.T) {
	d, _ := newTestDevice(t)

	b := d.CreateCommandBufferBuilder("broken")
	b.Dispatch(1, 1, 1)
	if err := finishErr(t, b); !errors.Is(err, ErrDisallowedOutsidePass) {
		t.Fatalf("Finish() = %v, want %v", err, ErrDisallowedOutsidePass)
	}
	if _, err := b.Finish(); !errors.Is(err, ErrBuilderFinalized) {
		t.Errorf("Finish() after failure = %v, want %v", err, ErrBuilderFinalized)
	}
}

func TestBuilder_ValidationErrorKind(t *testing.T) {
	var errs errorCounter
	d, _ := newTestDevice(t, errs.option())

	b := d.CreateCommandBufferBuilder("kind")
	b.BeginComputePass()
	_, err := b.Finish()

	var gerr *Error
	if !errors.As(err, &gerr) {
		t.Fatalf("Finish() = %T, want *Error", err)
	}
	if gerr.Kind != ErrorKindValidation || gerr.Op != "CommandBufferBuilder.Finish" {
		t.Errorf("error = %v/%q, want Validation/CommandBufferBuilder.Finish", gerr.Kind, gerr.Op)
	}
	if len(errs.errs) != 1 || errs.errs[0] != gerr {
		t.Errorf("callback got %v, want the returned error", errs.errs)
	}
}
