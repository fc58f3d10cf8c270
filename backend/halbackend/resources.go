package halbackend

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpuval"
	"github.com/gogpu/gpuval/serial"
	"github.com/gogpu/gpuval/track"
)

// buffer is the native of a gpuval.Buffer. usage is the usage the buffer
// was last transitioned to on the command stream.
type buffer struct {
	raw   hal.Buffer
	usage track.BufferUsage
}

// texture is the native of a gpuval.Texture. Barriers cover every
// subresource, so one usage describes the whole texture.
type texture struct {
	raw    hal.Texture
	mips   uint32
	layers uint32
	usage  track.TextureUsage
}

type textureView struct {
	raw hal.TextureView
}

// bindGroup is the native of a gpuval.BindGroup. Groups the device never
// released are destroyed with the backend.
type bindGroup struct {
	raw       hal.BindGroup
	destroyed bool
}

// CreateBuffer creates a native buffer with every usage the buffer allows.
func (b *Backend) CreateBuffer(buf *gpuval.Buffer) (any, error) {
	raw, err := b.device.CreateBuffer(&hal.BufferDescriptor{
		Label: buf.Label(),
		Size:  buf.Size(),
		Usage: buf.AllowedUsage().GPU(),
	})
	if err != nil {
		return nil, fmt.Errorf("halbackend: create buffer %q: %w", buf.Label(), err)
	}
	return &buffer{raw: raw}, nil
}

// CreateTexture creates a native 2D texture. Its barrier state starts
// with no usage.
func (b *Backend) CreateTexture(t *gpuval.Texture) (any, error) {
	raw, err := b.device.CreateTexture(&hal.TextureDescriptor{
		Label: t.Label(),
		Size: hal.Extent3D{
			Width:              t.Width(),
			Height:             t.Height(),
			DepthOrArrayLayers: t.ArrayLayers(),
		},
		MipLevelCount: t.MipLevelCount(),
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        t.Format(),
		Usage:         t.AllowedUsage().GPU(),
	})
	if err != nil {
		return nil, fmt.Errorf("halbackend: create texture %q: %w", t.Label(), err)
	}
	return &texture{raw: raw, mips: t.MipLevelCount(), layers: t.ArrayLayers()}, nil
}

// CreateTextureView creates a view of every mip level and layer.
func (b *Backend) CreateTextureView(v *gpuval.TextureView) (any, error) {
	t := v.Texture()
	nt, err := nativeOf[*texture](t, "texture")
	if err != nil {
		return nil, err
	}
	dim := gputypes.TextureViewDimension2D
	if t.ArrayLayers() > 1 {
		dim = gputypes.TextureViewDimension2DArray
	}
	raw, err := b.device.CreateTextureView(nt.raw, &hal.TextureViewDescriptor{
		Label:           t.Label(),
		Format:          t.Format(),
		Dimension:       dim,
		Aspect:          gputypes.TextureAspectAll,
		MipLevelCount:   t.MipLevelCount(),
		ArrayLayerCount: t.ArrayLayers(),
	})
	if err != nil {
		return nil, fmt.Errorf("halbackend: create view of %q: %w", t.Label(), err)
	}
	return &textureView{raw: raw}, nil
}

// CreateBindGroupLayout creates a native layout. It lives as long as the backend.
func (b *Backend) CreateBindGroupLayout(l *gpuval.BindGroupLayout) (any, error) {
	raw, err := b.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   l.Label(),
		Entries: l.Entries(),
	})
	if err != nil {
		return nil, fmt.Errorf("halbackend: create bind group layout %q: %w", l.Label(), err)
	}
	b.own(func() { b.device.DestroyBindGroupLayout(raw) })
	return raw, nil
}

// CreateBindGroup creates a native bind group. Releasing it frees its
// descriptors once the group's last submission has completed.
func (b *Backend) CreateBindGroup(g *gpuval.BindGroup) (any, error) {
	layout, err := nativeOf[hal.BindGroupLayout](g.Layout(), "bind group layout")
	if err != nil {
		return nil, err
	}
	entries := make([]gputypes.BindGroupEntry, 0, len(g.Entries()))
	for _, e := range g.Entries() {
		entry := gputypes.BindGroupEntry{Binding: e.Binding}
		if e.Buffer != nil {
			nb, err := nativeOf[*buffer](e.Buffer, "buffer")
			if err != nil {
				return nil, err
			}
			entry.Resource = gputypes.BufferBinding{Buffer: nb.raw.NativeHandle(), Offset: e.Offset, Size: e.Size}
		} else {
			nv, err := nativeOf[*textureView](e.TextureView, "texture view")
			if err != nil {
				return nil, err
			}
			entry.Resource = gputypes.TextureViewBinding{TextureView: nv.raw.NativeHandle()}
		}
		entries = append(entries, entry)
	}
	raw, err := b.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   g.Label(),
		Layout:  layout,
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("halbackend: create bind group %q: %w", g.Label(), err)
	}
	ng := &bindGroup{raw: raw}
	b.own(func() {
		if !ng.destroyed {
			b.device.DestroyBindGroup(raw)
		}
	})
	return ng, nil
}

// CreatePipelineLayout creates a native pipeline layout, filling unset
// group slots with an empty layout.
func (b *Backend) CreatePipelineLayout(l *gpuval.PipelineLayout) (any, error) {
	groups := make([]hal.BindGroupLayout, len(l.BindGroupLayouts()))
	for i, gl := range l.BindGroupLayouts() {
		if gl == nil {
			empty, err := b.emptyBindGroupLayout()
			if err != nil {
				return nil, err
			}
			groups[i] = empty
			continue
		}
		raw, err := nativeOf[hal.BindGroupLayout](gl, "bind group layout")
		if err != nil {
			return nil, err
		}
		groups[i] = raw
	}

	desc := &hal.PipelineLayoutDescriptor{Label: l.Label(), BindGroupLayouts: groups}
	if stages := l.PushConstantStages(); stages != gputypes.ShaderStageNone {
		desc.PushConstantRanges = []hal.PushConstantRange{{
			Stages: stages,
			Range:  hal.Range{Start: 0, End: 4 * l.Device().MaxPushConstants()},
		}}
	}
	raw, err := b.device.CreatePipelineLayout(desc)
	if err != nil {
		return nil, fmt.Errorf("halbackend: create pipeline layout %q: %w", l.Label(), err)
	}
	b.own(func() { b.device.DestroyPipelineLayout(raw) })
	return raw, nil
}

// emptyBindGroupLayout fills the unused indices of pipeline layouts.
func (b *Backend) emptyBindGroupLayout() (hal.BindGroupLayout, error) {
	if b.emptyLayout != nil {
		return b.emptyLayout, nil
	}
	raw, err := b.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{Label: "empty"})
	if err != nil {
		return nil, fmt.Errorf("halbackend: create empty bind group layout: %w", err)
	}
	b.own(func() { b.device.DestroyBindGroupLayout(raw) })
	b.emptyLayout = raw
	return raw, nil
}

// CreateShaderModule creates a module from the SPIR-V words.
func (b *Backend) CreateShaderModule(m *gpuval.ShaderModule) (any, error) {
	raw, err := b.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  m.Label(),
		Source: hal.ShaderSource{SPIRV: m.SPIRV()},
	})
	if err != nil {
		return nil, fmt.Errorf("halbackend: create shader module %q: %w", m.Label(), err)
	}
	b.own(func() { b.device.DestroyShaderModule(raw) })
	return raw, nil
}

// CreateRenderPipeline creates a native render pipeline.
func (b *Backend) CreateRenderPipeline(p *gpuval.RenderPipeline) (any, error) {
	desc := p.Descriptor()
	layout, err := nativeOf[hal.PipelineLayout](desc.Layout, "pipeline layout")
	if err != nil {
		return nil, err
	}
	vertex, err := nativeOf[hal.ShaderModule](desc.Vertex.Module, "vertex shader")
	if err != nil {
		return nil, err
	}

	hd := &hal.RenderPipelineDescriptor{
		Label:  desc.Label,
		Layout: layout,
		Vertex: hal.VertexState{
			Module:     vertex,
			EntryPoint: desc.Vertex.EntryPoint,
			Buffers:    desc.VertexBuffers,
		},
		Primitive:   desc.Primitive,
		Multisample: gputypes.DefaultMultisampleState(),
	}
	if desc.DepthStencilFormat != gputypes.TextureFormatUndefined {
		hd.DepthStencil = &hal.DepthStencilState{
			Format:       desc.DepthStencilFormat,
			DepthCompare: gputypes.CompareFunctionAlways,
		}
	}
	if desc.Fragment != nil {
		fragment, err := nativeOf[hal.ShaderModule](desc.Fragment.Module, "fragment shader")
		if err != nil {
			return nil, err
		}
		targets := make([]gputypes.ColorTargetState, len(desc.ColorFormats))
		for i, f := range desc.ColorFormats {
			targets[i] = gputypes.ColorTargetState{Format: f, WriteMask: gputypes.ColorWriteMaskAll}
		}
		hd.Fragment = &hal.FragmentState{
			Module:     fragment,
			EntryPoint: desc.Fragment.EntryPoint,
			Targets:    targets,
		}
	}

	raw, err := b.device.CreateRenderPipeline(hd)
	if err != nil {
		return nil, fmt.Errorf("halbackend: create render pipeline %q: %w", desc.Label, err)
	}
	b.own(func() { b.device.DestroyRenderPipeline(raw) })
	return raw, nil
}

// CreateComputePipeline creates a native compute pipeline.
func (b *Backend) CreateComputePipeline(p *gpuval.ComputePipeline) (any, error) {
	desc := p.Descriptor()
	layout, err := nativeOf[hal.PipelineLayout](desc.Layout, "pipeline layout")
	if err != nil {
		return nil, err
	}
	module, err := nativeOf[hal.ShaderModule](desc.Compute.Module, "compute shader")
	if err != nil {
		return nil, err
	}
	raw, err := b.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   desc.Label,
		Layout:  layout,
		Compute: hal.ComputeState{Module: module, EntryPoint: desc.Compute.EntryPoint},
	})
	if err != nil {
		return nil, fmt.Errorf("halbackend: create compute pipeline %q: %w", desc.Label, err)
	}
	b.own(func() { b.device.DestroyComputePipeline(raw) })
	return raw, nil
}

// resourceAllocator destroys released buffers, textures, views and bind
// groups once the serial they were released at has completed.
type resourceAllocator struct {
	device    hal.Device
	pending   serial.Queue[any]
	destroyed int
}

func newResourceAllocator(device hal.Device) *resourceAllocator {
	return &resourceAllocator{device: device}
}

func (a *resourceAllocator) release(native any, s serial.Serial) {
	a.pending.Enqueue(native, s)
}

// tick destroys every native released at or before completed and returns
// how many it destroyed.
func (a *resourceAllocator) tick(completed serial.Serial) (int, error) {
	n := 0
	var err error
	for _, native := range a.pending.UpTo(completed) {
		switch v := native.(type) {
		case *buffer:
			a.device.DestroyBuffer(v.raw)
		case *texture:
			a.device.DestroyTexture(v.raw)
		case *textureView:
			a.device.DestroyTextureView(v.raw)
		case *bindGroup:
			a.device.DestroyBindGroup(v.raw)
			v.destroyed = true
		default:
			if err == nil {
				err = fmt.Errorf("%w: released %T", ErrForeignNative, native)
			}
			continue
		}
		n++
	}
	a.pending.ClearUpTo(completed)
	a.destroyed += n
	return n, err
}
