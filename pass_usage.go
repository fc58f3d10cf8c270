package gpuval

import (
	"fmt"

	"github.com/gogpu/gpuval/track"
)

// PassType distinguishes render passes from compute passes.
type PassType int

const (
	PassTypeRender PassType = iota
	PassTypeCompute
)

// String returns the name of the pass type.
func (t PassType) String() string {
	switch t {
	case PassTypeRender:
		return "Render"
	case PassTypeCompute:
		return "Compute"
	default:
		return fmt.Sprintf("PassType(%d)", int(t))
	}
}

// PassResourceUsage lists every resource a pass uses together with the
// union of its usages in the pass. Buffers[i] is used as BufferUsages[i],
// Textures[i] as TextureUsages[i], in order of first use.
//
// Explicit-barrier backends transition each resource to its usage before
// replaying the pass.
type PassResourceUsage struct {
	Type          PassType
	Buffers       []*Buffer
	BufferUsages  []track.BufferUsage
	Textures      []*Texture
	TextureUsages []track.TextureUsage
}

// PassResourceUsageTracker accumulates the usage of every resource touched
// inside one pass and checks the result when the pass ends.
type PassResourceUsageTracker struct {
	bufferIndex   map[*Buffer]int
	buffers       []*Buffer
	bufferUsages  []track.BufferUsage
	textureIndex  map[*Texture]int
	textures      []*Texture
	textureUsages []track.TextureUsage

	storageUsedMultipleTimes bool
	acquired                 bool
}

// NewPassResourceUsageTracker returns an empty tracker.
func NewPassResourceUsageTracker() *PassResourceUsageTracker {
	return &PassResourceUsageTracker{
		bufferIndex:  make(map[*Buffer]int),
		textureIndex: make(map[*Texture]int),
	}
}

// BufferUsedAs records that the pass uses b as usage.
func (t *PassResourceUsageTracker) BufferUsedAs(b *Buffer, usage track.BufferUsage) {
	i, ok := t.bufferIndex[b]
	if !ok {
		i = len(t.buffers)
		t.bufferIndex[b] = i
		t.buffers = append(t.buffers, b)
		t.bufferUsages = append(t.bufferUsages, track.BufferUsageNone)
	}
	if usage == track.BufferUsageStorage && t.bufferUsages[i].Contains(track.BufferUsageStorage) {
		t.storageUsedMultipleTimes = true
	}
	t.bufferUsages[i] |= usage
}

// TextureUsedAs records that the pass uses tex as usage.
func (t *PassResourceUsageTracker) TextureUsedAs(tex *Texture, usage track.TextureUsage) {
	i, ok := t.textureIndex[tex]
	if !ok {
		i = len(t.textures)
		t.textureIndex[tex] = i
		t.textures = append(t.textures, tex)
		t.textureUsages = append(t.textureUsages, track.TextureUsageNone)
	}
	if usage == track.TextureUsageStorage && t.textureUsages[i].Contains(track.TextureUsageStorage) {
		t.storageUsedMultipleTimes = true
	}
	t.textureUsages[i] |= usage
}

// ValidateUsages checks the accumulated usages at the end of a pass of the
// given type:
//
//   - a compute pass must not use any storage resource twice, since its
//     dispatches are unordered;
//   - every usage must be allowed by the resource;
//   - a buffer must be used read-only or in exactly one way;
//   - a texture must be used in at most one way, Sampled being its only
//     read-only usage inside a pass.
func (t *PassResourceUsageTracker) ValidateUsages(pass PassType) error {
	if pass == PassTypeCompute && t.storageUsedMultipleTimes {
		return ErrStorageUsedMultipleTimes
	}

	for i, b := range t.buffers {
		usage := t.bufferUsages[i]
		if !usage.IsSubsetOf(b.AllowedUsage()) {
			return fmt.Errorf("%w: %q used as %s, allowed %s", ErrBufferMissingUsage, b.label, usage, b.AllowedUsage())
		}
		if !usage.IsReadOnly() && !usage.HasSingleBit() {
			return fmt.Errorf("%w: %q used as %s", ErrBufferWritableConflict, b.label, usage)
		}
	}

	for i, tex := range t.textures {
		usage := t.textureUsages[i]
		if !usage.IsSubsetOf(tex.AllowedUsage()) {
			return fmt.Errorf("%w: %q used as %s, allowed %s", ErrTextureMissingUsage, tex.label, usage, tex.AllowedUsage())
		}
		if usage != track.TextureUsageNone && !usage.HasSingleBit() {
			return fmt.Errorf("%w: %q used as %s", ErrTextureWritableConflict, tex.label, usage)
		}
	}
	return nil
}

// AcquireResourceUsage moves the accumulated usages out of the tracker.
// It panics when called twice.
func (t *PassResourceUsageTracker) AcquireResourceUsage(pass PassType) PassResourceUsage {
	if t.acquired {
		panic("gpuval: pass resource usage acquired twice")
	}
	t.acquired = true

	u := PassResourceUsage{
		Type:          pass,
		Buffers:       t.buffers,
		BufferUsages:  t.bufferUsages,
		Textures:      t.textures,
		TextureUsages: t.textureUsages,
	}
	t.bufferIndex, t.textureIndex = nil, nil
	t.buffers, t.bufferUsages = nil, nil
	t.textures, t.textureUsages = nil, nil
	return u
}
