package gpuval

import (
	"errors"
	"testing"

	"github.com/gogpu/gpuval/track"
)

func TestPassResourceUsageTracker_BufferUsages(t *testing.T) {
	tests := []struct {
		name    string
		allowed track.BufferUsage
		uses    []track.BufferUsage
		wantErr error
	}{
		{"single read", track.BufferUsageAll, []track.BufferUsage{track.BufferUsageUniform}, nil},
		{"many reads", track.BufferUsageAll, []track.BufferUsage{track.BufferUsageUniform, track.BufferUsageVertex, track.BufferUsageIndex}, nil},
		{"single write", track.BufferUsageAll, []track.BufferUsage{track.BufferUsageStorage}, nil},
		{"write and read", track.BufferUsageAll, []track.BufferUsage{track.BufferUsageStorage, track.BufferUsageUniform}, ErrBufferWritableConflict},
		{"read and write", track.BufferUsageAll, []track.BufferUsage{track.BufferUsageVertex, track.BufferUsageStorage}, ErrBufferWritableConflict},
		{"missing usage", track.BufferUsageVertex, []track.BufferUsage{track.BufferUsageUniform}, ErrBufferMissingUsage},
		{"missing usage wins over conflict", track.BufferUsageUniform, []track.BufferUsage{track.BufferUsageStorage, track.BufferUsageUniform}, ErrBufferMissingUsage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, _ := newTestDevice(t)
			b := mustBuffer(t, d, "b", 64, tt.allowed)

			u := NewPassResourceUsageTracker()
			for _, use := range tt.uses {
				u.BufferUsedAs(b, use)
			}
			err := u.ValidateUsages(PassTypeRender)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateUsages() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPassResourceUsageTracker_TextureUsages(t *testing.T) {
	tests := []struct {
		name    string
		allowed track.TextureUsage
		uses    []track.TextureUsage
		wantErr error
	}{
		{"sampled", track.TextureUsageAll, []track.TextureUsage{track.TextureUsageSampled}, nil},
		{"sampled twice", track.TextureUsageAll, []track.TextureUsage{track.TextureUsageSampled, track.TextureUsageSampled}, nil},
		{"attachment", track.TextureUsageAll, []track.TextureUsage{track.TextureUsageOutputAttachment}, nil},
		{"sampled attachment", track.TextureUsageAll, []track.TextureUsage{track.TextureUsageOutputAttachment, track.TextureUsageSampled}, ErrTextureWritableConflict},
		{"storage and sampled", track.TextureUsageAll, []track.TextureUsage{track.TextureUsageStorage, track.TextureUsageSampled}, ErrTextureWritableConflict},
		{"missing usage", track.TextureUsageSampled, []track.TextureUsage{track.TextureUsageStorage}, ErrTextureMissingUsage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, _ := newTestDevice(t)
			tex := mustTexture(t, d, "tex", 4, 4, tt.allowed)

			u := NewPassResourceUsageTracker()
			for _, use := range tt.uses {
				u.TextureUsedAs(tex, use)
			}
			err := u.ValidateUsages(PassTypeRender)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateUsages() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPassResourceUsageTracker_StorageUsedTwice(t *testing.T) {
	d, _ := newTestDevice(t)
	b := mustBuffer(t, d, "storage", 64, track.BufferUsageStorage)
	tex := mustTexture(t, d, "image", 4, 4, track.TextureUsageStorage)

	tests := []struct {
		name    string
		use     func(u *PassResourceUsageTracker)
		pass    PassType
		wantErr error
	}{
		{"buffer in compute pass", func(u *PassResourceUsageTracker) {
			u.BufferUsedAs(b, track.BufferUsageStorage)
			u.BufferUsedAs(b, track.BufferUsageStorage)
		}, PassTypeCompute, ErrStorageUsedMultipleTimes},
		{"texture in compute pass", func(u *PassResourceUsageTracker) {
			u.TextureUsedAs(tex, track.TextureUsageStorage)
			u.TextureUsedAs(tex, track.TextureUsageStorage)
		}, PassTypeCompute, ErrStorageUsedMultipleTimes},
		{"buffer in render pass", func(u *PassResourceUsageTracker) {
			u.BufferUsedAs(b, track.BufferUsageStorage)
			u.BufferUsedAs(b, track.BufferUsageStorage)
		}, PassTypeRender, nil},
		{"buffer once in compute pass", func(u *PassResourceUsageTracker) {
			u.BufferUsedAs(b, track.BufferUsageStorage)
		}, PassTypeCompute, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := NewPassResourceUsageTracker()
			tt.use(u)
			if err := u.ValidateUsages(tt.pass); !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateUsages(%s) = %v, want %v", tt.pass, err, tt.wantErr)
			}
		})
	}
}

func TestPassResourceUsageTracker_AcquireOrder(t *testing.T) {
	d, _ := newTestDevice(t)
	a := mustBuffer(t, d, "a", 16, track.BufferUsageAll)
	b := mustBuffer(t, d, "b", 16, track.BufferUsageAll)
	tex := mustTexture(t, d, "tex", 4, 4, track.TextureUsageAll)

	u := NewPassResourceUsageTracker()
	u.BufferUsedAs(b, track.BufferUsageVertex)
	u.BufferUsedAs(a, track.BufferUsageUniform)
	u.BufferUsedAs(b, track.BufferUsageIndex)
	u.TextureUsedAs(tex, track.TextureUsageSampled)

	got := u.AcquireResourceUsage(PassTypeRender)
	if got.Type != PassTypeRender {
		t.Errorf("Type = %s, want Render", got.Type)
	}
	if len(got.Buffers) != 2 || got.Buffers[0] != b || got.Buffers[1] != a {
		t.Fatalf("Buffers = %v, want [b a]", got.Buffers)
	}
	if want := track.BufferUsageVertex | track.BufferUsageIndex; got.BufferUsages[0] != want {
		t.Errorf("BufferUsages[0] = %s, want %s", got.BufferUsages[0], want)
	}
	if got.BufferUsages[1] != track.BufferUsageUniform {
		t.Errorf("BufferUsages[1] = %s, want Uniform", got.BufferUsages[1])
	}
	if len(got.Textures) != 1 || got.TextureUsages[0] != track.TextureUsageSampled {
		t.Errorf("Textures = %v %v, want one sampled texture", got.Textures, got.TextureUsages)
	}
}

func TestPassResourceUsageTracker_AcquireTwicePanics(t *testing.T) {
	u := NewPassResourceUsageTracker()
	u.AcquireResourceUsage(PassTypeCompute)

	defer func() {
		if recover() == nil {
			t.Error("second AcquireResourceUsage did not panic")
		}
	}()
	u.AcquireResourceUsage(PassTypeCompute)
}
