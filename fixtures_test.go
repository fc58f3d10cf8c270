package gpuval

import (
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gpuval/track"
)

// spirvHeader is the SPIR-V magic number; the null backend does not look
// past it.
var spirvHeader = []uint32{0x07230203}

func newTestDevice(t *testing.T, opts ...DeviceOption) (*Device, *NullBackend) {
	t.Helper()
	nb := NewNullBackend()
	d, err := NewDevice(append([]DeviceOption{WithBackend(nb)}, opts...)...)
	if err != nil {
		t.Fatalf("NewDevice() = %v", err)
	}
	t.Cleanup(d.Destroy)
	return d, nb
}

func mustBuffer(t *testing.T, d *Device, label string, size uint64, usage track.BufferUsage) *Buffer {
	t.Helper()
	b, err := d.CreateBuffer(BufferDescriptor{Label: label, Size: size, Usage: usage})
	if err != nil {
		t.Fatalf("CreateBuffer(%q) = %v", label, err)
	}
	return b
}

func mustTexture(t *testing.T, d *Device, label string, width, height uint32, usage track.TextureUsage) *Texture {
	t.Helper()
	tex, err := d.CreateTexture(TextureDescriptor{
		Label:         label,
		Width:         width,
		Height:        height,
		MipLevelCount: 1,
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Usage:         usage,
	})
	if err != nil {
		t.Fatalf("CreateTexture(%q) = %v", label, err)
	}
	return tex
}

func mustView(t *testing.T, tex *Texture) *TextureView {
	t.Helper()
	v, err := tex.CreateView()
	if err != nil {
		t.Fatalf("CreateView(%q) = %v", tex.Label(), err)
	}
	return v
}

func bufferEntry(binding uint32, typ gputypes.BufferBindingType) gputypes.BindGroupLayoutEntry {
	return gputypes.BindGroupLayoutEntry{
		Binding:    binding,
		Visibility: gputypes.ShaderStageVertex | gputypes.ShaderStageFragment | gputypes.ShaderStageCompute,
		Buffer:     &gputypes.BufferBindingLayout{Type: typ},
	}
}

func uniformEntry(binding uint32) gputypes.BindGroupLayoutEntry {
	return bufferEntry(binding, gputypes.BufferBindingTypeUniform)
}

func storageEntry(binding uint32) gputypes.BindGroupLayoutEntry {
	return bufferEntry(binding, gputypes.BufferBindingTypeStorage)
}

func sampledEntry(binding uint32) gputypes.BindGroupLayoutEntry {
	return gputypes.BindGroupLayoutEntry{
		Binding:    binding,
		Visibility: gputypes.ShaderStageFragment,
		Texture:    &gputypes.TextureBindingLayout{},
	}
}

func storageTextureEntry(binding uint32) gputypes.BindGroupLayoutEntry {
	return gputypes.BindGroupLayoutEntry{
		Binding:        binding,
		Visibility:     gputypes.ShaderStageCompute,
		StorageTexture: &gputypes.StorageTextureBindingLayout{Format: gputypes.TextureFormatRGBA8Unorm},
	}
}

func mustBindGroupLayout(t *testing.T, d *Device, entries ...gputypes.BindGroupLayoutEntry) *BindGroupLayout {
	t.Helper()
	l, err := d.CreateBindGroupLayout(BindGroupLayoutDescriptor{Entries: entries})
	if err != nil {
		t.Fatalf("CreateBindGroupLayout() = %v", err)
	}
	return l
}

func mustBindGroup(t *testing.T, d *Device, layout *BindGroupLayout, entries ...BindGroupEntry) *BindGroup {
	t.Helper()
	g, err := d.CreateBindGroup(BindGroupDescriptor{Layout: layout, Entries: entries})
	if err != nil {
		t.Fatalf("CreateBindGroup() = %v", err)
	}
	return g
}

func mustPipelineLayout(t *testing.T, d *Device, groups ...*BindGroupLayout) *PipelineLayout {
	t.Helper()
	l, err := d.CreatePipelineLayout(PipelineLayoutDescriptor{BindGroupLayouts: groups})
	if err != nil {
		t.Fatalf("CreatePipelineLayout() = %v", err)
	}
	return l
}

func mustShader(t *testing.T, d *Device) *ShaderModule {
	t.Helper()
	m, err := d.CreateShaderModule(ShaderModuleDescriptor{SPIRV: spirvHeader})
	if err != nil {
		t.Fatalf("CreateShaderModule() = %v", err)
	}
	return m
}

func mustComputePipeline(t *testing.T, d *Device, layout *PipelineLayout) *ComputePipeline {
	t.Helper()
	p, err := d.CreateComputePipeline(ComputePipelineDescriptor{
		Layout:  layout,
		Compute: ProgrammableStage{Module: mustShader(t, d), EntryPoint: "main"},
	})
	if err != nil {
		t.Fatalf("CreateComputePipeline() = %v", err)
	}
	return p
}

// mustRenderPipeline creates a pipeline drawing to one RGBA8 target and
// reading vertexBuffers vertex buffer slots.
func mustRenderPipeline(t *testing.T, d *Device, layout *PipelineLayout, vertexBuffers int) *RenderPipeline {
	t.Helper()
	m := mustShader(t, d)
	vbs := make([]gputypes.VertexBufferLayout, vertexBuffers)
	for i := range vbs {
		vbs[i] = gputypes.VertexBufferLayout{ArrayStride: 16, StepMode: gputypes.VertexStepModeVertex}
	}
	p, err := d.CreateRenderPipeline(RenderPipelineDescriptor{
		Layout:        layout,
		Vertex:        ProgrammableStage{Module: m, EntryPoint: "vs_main"},
		Fragment:      &ProgrammableStage{Module: m, EntryPoint: "fs_main"},
		VertexBuffers: vbs,
		Primitive:     gputypes.PrimitiveState{Topology: gputypes.PrimitiveTopologyTriangleList},
		ColorFormats:  []gputypes.TextureFormat{gputypes.TextureFormatRGBA8Unorm},
	})
	if err != nil {
		t.Fatalf("CreateRenderPipeline() = %v", err)
	}
	return p
}

// mustRenderPass creates a render pass with one color attachment per
// texture.
func mustRenderPass(t *testing.T, d *Device, targets ...*Texture) *RenderPass {
	t.Helper()
	colors := make([]RenderPassColorAttachment, len(targets))
	for i, tex := range targets {
		colors[i] = RenderPassColorAttachment{
			View:    mustView(t, tex),
			LoadOp:  gputypes.LoadOpClear,
			StoreOp: gputypes.StoreOpStore,
		}
	}
	rp, err := d.CreateRenderPassDescriptor(RenderPassDescriptor{ColorAttachments: colors})
	if err != nil {
		t.Fatalf("CreateRenderPassDescriptor() = %v", err)
	}
	return rp
}

// finishErr finishes b and returns the validation error, failing the test
// if Finish succeeds.
func finishErr(t *testing.T, b *CommandBufferBuilder) error {
	t.Helper()
	cb, err := b.Finish()
	if err == nil {
		t.Fatalf("Finish() succeeded with %d passes, want error", len(cb.Passes()))
	}
	return err
}

func mustFinish(t *testing.T, b *CommandBufferBuilder) *CommandBuffer {
	t.Helper()
	cb, err := b.Finish()
	if err != nil {
		t.Fatalf("Finish() = %v", err)
	}
	return cb
}
