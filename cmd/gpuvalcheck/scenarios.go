package main

import (
	"context"
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gpuval"
	"github.com/gogpu/gpuval/track"
)

const drawShader = `
@vertex
fn vs_main(@location(0) pos: vec4<f32>) -> @builtin(position) vec4<f32> {
    return pos;
}

@fragment
fn fs_main() -> @location(0) vec4<f32> {
    return vec4<f32>(1.0, 0.0, 0.0, 1.0);
}
`

const doubleShader = `
@group(0) @binding(0) var<storage, read_write> data: array<u32>;

@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    data[id.x] = data[id.x] * 2u;
}
`

func extent(w, h uint32) gputypes.Extent3D {
	return gputypes.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1}
}

func copyScenario(d *gpuval.Device) (*plan, error) {
	src, err := d.CreateBuffer(gpuval.BufferDescriptor{
		Label: "upload", Size: 2048, Usage: track.BufferUsageTransferSrc | track.BufferUsageTransferDst,
	})
	if err != nil {
		return nil, err
	}
	readback, err := d.CreateBuffer(gpuval.BufferDescriptor{
		Label: "readback", Size: 16, Usage: track.BufferUsageTransferDst | track.BufferUsageMapRead,
	})
	if err != nil {
		return nil, err
	}
	tex, err := d.CreateTexture(gpuval.TextureDescriptor{
		Label: "image", Width: 8, Height: 8, MipLevelCount: 1,
		Format: gputypes.TextureFormatRGBA8Unorm,
		Usage:  track.TextureUsageTransferSrc | track.TextureUsageTransferDst,
	})
	if err != nil {
		return nil, err
	}
	payload := make([]byte, 16)
	for i := range payload {
		payload[i] = byte(i + 1)
	}
	if err := src.SetSubData(0, payload); err != nil {
		return nil, err
	}

	checks := []check{
		{label: "buffer copy", record: func(b *gpuval.CommandBufferBuilder) {
			b.CopyBufferToBuffer(src, 0, readback, 0, 16)
		}},
		{label: "texture round trip", record: func(b *gpuval.CommandBufferBuilder) {
			b.CopyBufferToTexture(gpuval.BufferCopyLocation{Buffer: src}, 256, gpuval.TextureCopyLocation{Texture: tex}, extent(8, 8))
			b.CopyTextureToBuffer(gpuval.TextureCopyLocation{Texture: tex}, extent(8, 8), gpuval.BufferCopyLocation{Buffer: src}, 256)
		}},
		{label: "copy overflow", wantErr: gpuval.ErrCopyOverflowsBuffer, record: func(b *gpuval.CommandBufferBuilder) {
			b.CopyBufferToBuffer(src, 2040, readback, 0, 16)
		}},
		{label: "unaligned row pitch", wantErr: gpuval.ErrRowPitchAlignment, record: func(b *gpuval.CommandBufferBuilder) {
			b.CopyBufferToTexture(gpuval.BufferCopyLocation{Buffer: src}, 100, gpuval.TextureCopyLocation{Texture: tex}, extent(8, 1))
		}},
		{label: "copy into itself", wantErr: gpuval.ErrCopySameTexture, record: func(b *gpuval.CommandBufferBuilder) {
			b.CopyTextureToTexture(gpuval.TextureCopyLocation{Texture: tex}, gpuval.TextureCopyLocation{Texture: tex}, extent(1, 1))
		}},
	}

	verify := func(context.Context) error {
		var status gpuval.MapReadStatus
		var got int
		called := false
		if err := readback.MapReadAsync(0, 16, func(s gpuval.MapReadStatus, data []byte) {
			status, got, called = s, len(data), true
		}); err != nil {
			return fmt.Errorf("map readback: %w", err)
		}
		d.Tick()
		defer readback.Unmap()
		if !called || status != gpuval.MapReadStatusSuccess || got != 16 {
			return fmt.Errorf("map readback: called=%v status=%s bytes=%d", called, status, got)
		}
		return nil
	}
	return &plan{checks: checks, verify: verify}, nil
}

func renderScenario(d *gpuval.Device) (*plan, error) {
	target, err := d.CreateTexture(gpuval.TextureDescriptor{
		Label: "target", Width: 64, Height: 64, MipLevelCount: 1,
		Format: gputypes.TextureFormatRGBA8Unorm,
		Usage:  track.TextureUsageOutputAttachment | track.TextureUsageSampled,
	})
	if err != nil {
		return nil, err
	}
	view, err := target.CreateView()
	if err != nil {
		return nil, err
	}
	rp, err := d.CreateRenderPassDescriptor(gpuval.RenderPassDescriptor{
		Label: "main",
		ColorAttachments: []gpuval.RenderPassColorAttachment{{
			View: view, LoadOp: gputypes.LoadOpClear, StoreOp: gputypes.StoreOpStore,
		}},
	})
	if err != nil {
		return nil, err
	}
	module, err := d.CreateShaderModule(gpuval.ShaderModuleDescriptor{Label: "draw", WGSL: drawShader})
	if err != nil {
		return nil, err
	}
	layout, err := d.CreatePipelineLayout(gpuval.PipelineLayoutDescriptor{Label: "draw"})
	if err != nil {
		return nil, err
	}
	pipeline, err := d.CreateRenderPipeline(gpuval.RenderPipelineDescriptor{
		Label:    "draw",
		Layout:   layout,
		Vertex:   gpuval.ProgrammableStage{Module: module, EntryPoint: "vs_main"},
		Fragment: &gpuval.ProgrammableStage{Module: module, EntryPoint: "fs_main"},
		VertexBuffers: []gputypes.VertexBufferLayout{{
			ArrayStride: 16,
			StepMode:    gputypes.VertexStepModeVertex,
			Attributes:  []gputypes.VertexAttribute{{Format: gputypes.VertexFormatFloat32x4}},
		}},
		Primitive:    gputypes.PrimitiveState{Topology: gputypes.PrimitiveTopologyTriangleList},
		ColorFormats: []gputypes.TextureFormat{gputypes.TextureFormatRGBA8Unorm},
	})
	if err != nil {
		return nil, err
	}
	vertices, err := d.CreateBuffer(gpuval.BufferDescriptor{
		Label: "vertices", Size: 3 * 16, Usage: track.BufferUsageVertex | track.BufferUsageStorage,
	})
	if err != nil {
		return nil, err
	}
	storageLayout, err := d.CreateBindGroupLayout(gpuval.BindGroupLayoutDescriptor{
		Entries: []gputypes.BindGroupLayoutEntry{{
			Binding:    0,
			Visibility: gputypes.ShaderStageFragment,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage},
		}},
	})
	if err != nil {
		return nil, err
	}
	vertexStorage, err := d.CreateBindGroup(gpuval.BindGroupDescriptor{
		Layout:  storageLayout,
		Entries: []gpuval.BindGroupEntry{{Binding: 0, Buffer: vertices}},
	})
	if err != nil {
		return nil, err
	}

	triangle := func(b *gpuval.CommandBufferBuilder) {
		b.SetRenderPipeline(pipeline)
		b.SetVertexBuffers(0, []*gpuval.Buffer{vertices}, []uint64{0})
		b.DrawArrays(3, 1, 0, 0)
	}
	checks := []check{
		{label: "triangle", record: func(b *gpuval.CommandBufferBuilder) {
			b.BeginRenderPass(rp)
			b.SetScissorRect(0, 0, 64, 64)
			b.SetBlendColor(gputypes.Color{R: 1, A: 1})
			triangle(b)
			b.EndRenderPass()
		}},
		{label: "draw without pipeline", wantErr: gpuval.ErrNoRenderPipeline, record: func(b *gpuval.CommandBufferBuilder) {
			b.BeginRenderPass(rp)
			b.DrawArrays(3, 1, 0, 0)
			b.EndRenderPass()
		}},
		{label: "vertex buffer written as storage", wantErr: gpuval.ErrBufferWritableConflict, record: func(b *gpuval.CommandBufferBuilder) {
			b.BeginRenderPass(rp)
			triangle(b)
			b.SetBindGroup(1, vertexStorage)
			b.EndRenderPass()
		}},
		{label: "unfinished pass", wantErr: gpuval.ErrUnfinishedRenderPass, record: func(b *gpuval.CommandBufferBuilder) {
			b.BeginRenderPass(rp)
			triangle(b)
		}},
	}
	return &plan{checks: checks}, nil
}

func computeScenario(d *gpuval.Device) (*plan, error) {
	module, err := d.CreateShaderModule(gpuval.ShaderModuleDescriptor{Label: "double", WGSL: doubleShader})
	if err != nil {
		return nil, err
	}
	groupLayout, err := d.CreateBindGroupLayout(gpuval.BindGroupLayoutDescriptor{
		Label: "data",
		Entries: []gputypes.BindGroupLayoutEntry{{
			Binding:    0,
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage},
		}},
	})
	if err != nil {
		return nil, err
	}
	layout, err := d.CreatePipelineLayout(gpuval.PipelineLayoutDescriptor{
		Label:              "double",
		BindGroupLayouts:   []*gpuval.BindGroupLayout{groupLayout},
		PushConstantStages: gputypes.ShaderStageCompute,
	})
	if err != nil {
		return nil, err
	}
	pipeline, err := d.CreateComputePipeline(gpuval.ComputePipelineDescriptor{
		Label:   "double",
		Layout:  layout,
		Compute: gpuval.ProgrammableStage{Module: module, EntryPoint: "main"},
	})
	if err != nil {
		return nil, err
	}
	data, err := d.CreateBuffer(gpuval.BufferDescriptor{
		Label: "data", Size: 256, Usage: track.BufferUsageStorage,
	})
	if err != nil {
		return nil, err
	}
	group, err := d.CreateBindGroup(gpuval.BindGroupDescriptor{
		Label:   "data",
		Layout:  groupLayout,
		Entries: []gpuval.BindGroupEntry{{Binding: 0, Buffer: data}},
	})
	if err != nil {
		return nil, err
	}

	checks := []check{
		{label: "dispatch", record: func(b *gpuval.CommandBufferBuilder) {
			b.BeginComputePass()
			b.SetComputePipeline(pipeline)
			b.SetBindGroup(0, group)
			b.SetPushConstants(gputypes.ShaderStageCompute, 0, []uint32{2})
			b.Dispatch(1, 1, 1)
			b.EndComputePass()
		}},
		{label: "storage bound twice", wantErr: gpuval.ErrStorageUsedMultipleTimes, record: func(b *gpuval.CommandBufferBuilder) {
			b.BeginComputePass()
			b.SetComputePipeline(pipeline)
			b.SetBindGroup(0, group)
			b.Dispatch(1, 1, 1)
			b.SetBindGroup(0, group)
			b.Dispatch(1, 1, 1)
			b.EndComputePass()
		}},
		{label: "dispatch outside pass", wantErr: gpuval.ErrDisallowedOutsidePass, record: func(b *gpuval.CommandBufferBuilder) {
			b.Dispatch(1, 1, 1)
		}},
		{label: "vertex push constants", wantErr: gpuval.ErrPushConstantsComputeStage, record: func(b *gpuval.CommandBufferBuilder) {
			b.BeginComputePass()
			b.SetPushConstants(gputypes.ShaderStageVertex, 0, []uint32{1})
			b.EndComputePass()
		}},
	}
	return &plan{checks: checks}, nil
}

// hazardScenario records valid command buffers and breaks them between
// Finish and Submit.
func hazardScenario(d *gpuval.Device) (*plan, error) {
	newBuffer := func(label string, usage track.BufferUsage) (*gpuval.Buffer, error) {
		return d.CreateBuffer(gpuval.BufferDescriptor{Label: label, Size: 64, Usage: usage})
	}
	src, err := newBuffer("src", track.BufferUsageTransferSrc)
	if err != nil {
		return nil, err
	}
	victim, err := newBuffer("victim", track.BufferUsageTransferDst)
	if err != nil {
		return nil, err
	}
	mapped, err := newBuffer("mapped", track.BufferUsageTransferDst|track.BufferUsageMapRead)
	if err != nil {
		return nil, err
	}
	dst, err := newBuffer("dst", track.BufferUsageTransferDst)
	if err != nil {
		return nil, err
	}
	copyTo := func(to *gpuval.Buffer) func(b *gpuval.CommandBufferBuilder) {
		return func(b *gpuval.CommandBufferBuilder) { b.CopyBufferToBuffer(src, 0, to, 0, 64) }
	}

	checks := []check{
		{label: "destroyed buffer", wantErr: gpuval.ErrBufferDestroyed, record: copyTo(victim),
			before: func(*gpuval.CommandBuffer) error {
				victim.Destroy()
				return nil
			}},
		{label: "mapped buffer", wantErr: gpuval.ErrBufferMapped, record: copyTo(mapped),
			before: func(*gpuval.CommandBuffer) error {
				return mapped.MapReadAsync(0, 64, func(gpuval.MapReadStatus, []byte) {})
			}},
		{label: "submitted twice", wantErr: gpuval.ErrCommandBufferSubmitted, record: copyTo(dst),
			before: func(cb *gpuval.CommandBuffer) error {
				return d.Queue().Submit(cb)
			}},
	}
	verify := func(context.Context) error {
		mapped.Unmap()
		return nil
	}
	return &plan{checks: checks, verify: verify}, nil
}
