package gpuval

import (
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gpuval/serial"
	"github.com/gogpu/gpuval/track"
)

// BindingType is the kind of resource a layout binding accepts.
type BindingType int

const (
	BindingTypeUniformBuffer BindingType = iota
	BindingTypeStorageBuffer
	BindingTypeSampledTexture
	BindingTypeStorageTexture
)

// String returns the name of the binding type.
func (t BindingType) String() string {
	switch t {
	case BindingTypeUniformBuffer:
		return "UniformBuffer"
	case BindingTypeStorageBuffer:
		return "StorageBuffer"
	case BindingTypeSampledTexture:
		return "SampledTexture"
	case BindingTypeStorageTexture:
		return "StorageTexture"
	default:
		return fmt.Sprintf("BindingType(%d)", int(t))
	}
}

// IsBuffer reports whether the binding takes a buffer range.
func (t BindingType) IsBuffer() bool {
	return t == BindingTypeUniformBuffer || t == BindingTypeStorageBuffer
}

// bufferUsage returns the usage a buffer bound as t takes inside a pass.
func (t BindingType) bufferUsage() track.BufferUsage {
	if t == BindingTypeStorageBuffer {
		return track.BufferUsageStorage
	}
	return track.BufferUsageUniform
}

// textureUsage returns the usage a texture bound as t takes inside a pass.
func (t BindingType) textureUsage() track.TextureUsage {
	if t == BindingTypeStorageTexture {
		return track.TextureUsageStorage
	}
	return track.TextureUsageSampled
}

// bindingTypeOf classifies a layout entry. Samplers and read-only storage
// buffers are not supported.
func bindingTypeOf(e gputypes.BindGroupLayoutEntry) (BindingType, error) {
	set := 0
	for _, ok := range []bool{e.Buffer != nil, e.Sampler != nil, e.Texture != nil, e.StorageTexture != nil} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return 0, fmt.Errorf("%w: binding %d must describe exactly one resource", ErrUnsupportedBinding, e.Binding)
	}
	switch {
	case e.Buffer != nil:
		switch e.Buffer.Type {
		case gputypes.BufferBindingTypeUniform:
			return BindingTypeUniformBuffer, nil
		case gputypes.BufferBindingTypeStorage:
			return BindingTypeStorageBuffer, nil
		}
		return 0, fmt.Errorf("%w: binding %d buffer type %d", ErrUnsupportedBinding, e.Binding, e.Buffer.Type)
	case e.Texture != nil:
		return BindingTypeSampledTexture, nil
	case e.StorageTexture != nil:
		return BindingTypeStorageTexture, nil
	}
	return 0, fmt.Errorf("%w: binding %d sampler", ErrUnsupportedBinding, e.Binding)
}

// BindGroupLayoutDescriptor describes a bind group layout.
type BindGroupLayoutDescriptor struct {
	Label   string
	Entries []gputypes.BindGroupLayoutEntry
}

// BindGroupLayout describes the bindings of a bind group.
type BindGroupLayout struct {
	device  *Device
	label   string
	entries []gputypes.BindGroupLayoutEntry
	types   []BindingType
	native  any
}

// CreateBindGroupLayout creates a bind group layout.
func (d *Device) CreateBindGroupLayout(desc BindGroupLayoutDescriptor) (*BindGroupLayout, error) {
	const op = "CreateBindGroupLayout"
	l := &BindGroupLayout{
		device:  d,
		label:   desc.Label,
		entries: append([]gputypes.BindGroupLayoutEntry(nil), desc.Entries...),
		types:   make([]BindingType, len(desc.Entries)),
	}
	seen := make(map[uint32]bool, len(desc.Entries))
	for i, e := range desc.Entries {
		if seen[e.Binding] {
			return nil, d.fail(op, fmt.Errorf("%w: binding %d declared twice", ErrBindingMismatch, e.Binding))
		}
		seen[e.Binding] = true
		t, err := bindingTypeOf(e)
		if err != nil {
			return nil, d.fail(op, err)
		}
		l.types[i] = t
	}
	native, err := create(d, op, l, d.backend.CreateBindGroupLayout)
	if err != nil {
		return nil, err
	}
	l.native = native
	return l, nil
}

// Label returns the layout's debug label.
func (l *BindGroupLayout) Label() string { return l.label }

// Entries returns the layout entries in declaration order.
func (l *BindGroupLayout) Entries() []gputypes.BindGroupLayoutEntry { return l.entries }

// BindingType returns the type of the i-th entry.
func (l *BindGroupLayout) BindingType(i int) BindingType { return l.types[i] }

// Native returns the backend handle.
func (l *BindGroupLayout) Native() any { return l.native }

// BindGroupEntry binds one resource. Buffer bindings set Buffer, Offset and
// Size (0 means the rest of the buffer); texture bindings set TextureView.
type BindGroupEntry struct {
	Binding     uint32
	Buffer      *Buffer
	Offset      uint64
	Size        uint64
	TextureView *TextureView
}

// BindGroupDescriptor describes a bind group.
type BindGroupDescriptor struct {
	Label   string
	Layout  *BindGroupLayout
	Entries []BindGroupEntry
}

// BindGroup is a set of resources matching a BindGroupLayout.
type BindGroup struct {
	device  *Device
	label   string
	layout  *BindGroupLayout
	entries []BindGroupEntry // in layout order
	native  any

	mu        sync.Mutex
	lastUse   serial.Serial
	destroyed bool
}

// CreateBindGroup creates a bind group. Every layout binding needs exactly
// one entry of the matching kind, and the bound resource must allow the
// usage its binding implies.
func (d *Device) CreateBindGroup(desc BindGroupDescriptor) (*BindGroup, error) {
	const op = "CreateBindGroup"
	if desc.Layout == nil {
		return nil, d.fail(op, fmt.Errorf("%w: layout", ErrNilResource))
	}
	layout := desc.Layout
	if len(desc.Entries) != len(layout.entries) {
		return nil, d.fail(op, fmt.Errorf("%w: %d entries for %d bindings", ErrBindingMismatch, len(desc.Entries), len(layout.entries)))
	}

	byBinding := make(map[uint32]BindGroupEntry, len(desc.Entries))
	for _, e := range desc.Entries {
		if _, dup := byBinding[e.Binding]; dup {
			return nil, d.fail(op, fmt.Errorf("%w: binding %d set twice", ErrBindingMismatch, e.Binding))
		}
		byBinding[e.Binding] = e
	}

	g := &BindGroup{device: d, label: desc.Label, layout: layout, entries: make([]BindGroupEntry, len(layout.entries))}
	for i, le := range layout.entries {
		e, ok := byBinding[le.Binding]
		if !ok {
			return nil, d.fail(op, fmt.Errorf("%w: binding %d missing", ErrBindingMismatch, le.Binding))
		}
		resolved, err := resolveBindGroupEntry(d, layout.types[i], e)
		if err != nil {
			return nil, d.fail(op, err)
		}
		g.entries[i] = resolved
	}

	native, err := create(d, op, g, d.backend.CreateBindGroup)
	if err != nil {
		return nil, err
	}
	g.native = native
	return g, nil
}

func resolveBindGroupEntry(d *Device, t BindingType, e BindGroupEntry) (BindGroupEntry, error) {
	if t.IsBuffer() {
		if e.Buffer == nil || e.TextureView != nil {
			return e, fmt.Errorf("%w: binding %d is a %s", ErrBindingMismatch, e.Binding, t)
		}
		if e.Buffer.device != d {
			return e, ErrForeignResource
		}
		if e.Size == 0 && e.Offset <= e.Buffer.size {
			e.Size = e.Buffer.size - e.Offset
		}
		if !fitsInBuffer(e.Buffer.size, e.Offset, e.Size) {
			return e, fmt.Errorf("%w: binding %d offset %d size %d", ErrBufferViewOutOfBounds, e.Binding, e.Offset, e.Size)
		}
		if !e.Buffer.HasUsage(t.bufferUsage()) {
			return e, fmt.Errorf("%w: binding %d needs %s", ErrBindingUsage, e.Binding, t.bufferUsage())
		}
		return e, nil
	}

	if e.TextureView == nil || e.Buffer != nil {
		return e, fmt.Errorf("%w: binding %d is a %s", ErrBindingMismatch, e.Binding, t)
	}
	tex := e.TextureView.texture
	if tex.device != d {
		return e, ErrForeignResource
	}
	if !tex.HasUsage(t.textureUsage()) {
		return e, fmt.Errorf("%w: binding %d needs %s", ErrBindingUsage, e.Binding, t.textureUsage())
	}
	return e, nil
}

// Label returns the bind group's debug label.
func (g *BindGroup) Label() string { return g.label }

// Layout returns the layout the group was created against.
func (g *BindGroup) Layout() *BindGroupLayout { return g.layout }

// Native returns the backend handle.
func (g *BindGroup) Native() any { return g.native }

// Entries returns the bound resources, one per layout entry.
func (g *BindGroup) Entries() []BindGroupEntry { return g.entries }

// IsDestroyed reports whether Destroy has been called.
func (g *BindGroup) IsDestroyed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.destroyed
}

// LastUse returns the serial of the last submission that set the group.
func (g *BindGroup) LastUse() serial.Serial {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastUse
}

// Destroy releases the group's descriptors once its last submission has
// completed. The bound resources are not affected.
func (g *BindGroup) Destroy() {
	g.mu.Lock()
	if g.destroyed {
		g.mu.Unlock()
		return
	}
	g.destroyed = true
	last := g.lastUse
	g.mu.Unlock()

	g.device.release(g.native, last)
}

func (g *BindGroup) checkSubmittable() error {
	if g.IsDestroyed() {
		return fmt.Errorf("%w: %q", ErrBindGroupDestroyed, g.label)
	}
	return nil
}

func (g *BindGroup) markUsed(s serial.Serial) {
	g.mu.Lock()
	g.lastUse = s
	g.mu.Unlock()
}

// trackUsage feeds every bound resource into t with the usage its binding
// implies.
func (g *BindGroup) trackUsage(t *PassResourceUsageTracker) {
	for i, e := range g.entries {
		bt := g.layout.types[i]
		if bt.IsBuffer() {
			t.BufferUsedAs(e.Buffer, bt.bufferUsage())
		} else {
			t.TextureUsedAs(e.TextureView.texture, bt.textureUsage())
		}
	}
}
