package gpuval

import (
	"fmt"
	"slices"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gpuval/cmdlog"
)

// CommandBufferBuilder records commands into a log that Finish validates
// and turns into a CommandBuffer.
//
// Calls that are malformed on their own (a bind group index over the
// device limit, too many push constants) are reported to the device at
// once and make the builder invalid; recording stops and Finish returns the
// first such error. Everything that depends on the sequence of commands is
// checked by Finish.
//
// A builder is not safe for concurrent use.
type CommandBufferBuilder struct {
	device *Device
	label  string
	alloc  cmdlog.Allocator[Opcode]

	err      error
	finished bool
}

// CreateCommandBufferBuilder returns an empty builder.
func (d *Device) CreateCommandBufferBuilder(label string) *CommandBufferBuilder {
	return &CommandBufferBuilder{device: d, label: label}
}

// Label returns the builder's debug label.
func (b *CommandBufferBuilder) Label() string { return b.label }

// Err returns the first recording error, or nil.
func (b *CommandBufferBuilder) Err() error { return b.err }

// recording reports whether a command of op may be recorded. A non-nil
// check result invalidates the builder.
func (b *CommandBufferBuilder) recording(op string, check error) bool {
	if b.finished {
		b.device.fail(op, ErrBuilderFinalized)
		return false
	}
	if b.err != nil {
		return false
	}
	if check != nil {
		b.err = b.device.fail(op, check)
		return false
	}
	return true
}

func (b *CommandBufferBuilder) checkBuffer(buf *Buffer) error {
	switch {
	case buf == nil:
		return fmt.Errorf("%w: buffer", ErrNilResource)
	case buf.device != b.device:
		return fmt.Errorf("%w: buffer %q", ErrForeignResource, buf.label)
	}
	return nil
}

func (b *CommandBufferBuilder) checkTexture(t *Texture) error {
	switch {
	case t == nil:
		return fmt.Errorf("%w: texture", ErrNilResource)
	case t.device != b.device:
		return fmt.Errorf("%w: texture %q", ErrForeignResource, t.label)
	}
	return nil
}

// BeginComputePass starts a compute pass.
func (b *CommandBufferBuilder) BeginComputePass() {
	if !b.recording("BeginComputePass", nil) {
		return
	}
	cmdlog.Allocate[BeginComputePassCmd](&b.alloc, OpBeginComputePass)
}

// BeginRenderPass starts a render pass drawing into rp's attachments.
func (b *CommandBufferBuilder) BeginRenderPass(rp *RenderPass) {
	var check error
	if rp == nil {
		check = fmt.Errorf("%w: render pass", ErrNilResource)
	}
	if !b.recording("BeginRenderPass", check) {
		return
	}
	cmdlog.Allocate[BeginRenderPassCmd](&b.alloc, OpBeginRenderPass).Pass = rp
}

// CopyBufferToBuffer copies size bytes between two buffers.
func (b *CommandBufferBuilder) CopyBufferToBuffer(src *Buffer, srcOffset uint64, dst *Buffer, dstOffset, size uint64) {
	check := b.checkBuffer(src)
	if check == nil {
		check = b.checkBuffer(dst)
	}
	if !b.recording("CopyBufferToBuffer", check) {
		return
	}
	cmd := cmdlog.Allocate[CopyBufferToBufferCmd](&b.alloc, OpCopyBufferToBuffer)
	cmd.Source = BufferCopyLocation{Buffer: src, Offset: srcOffset}
	cmd.Destination = BufferCopyLocation{Buffer: dst, Offset: dstOffset}
	cmd.Size = size
}

// CopyBufferToTexture copies rows of rowPitch bytes from src into a region
// of dst. A rowPitch of 0 means tightly packed rows.
func (b *CommandBufferBuilder) CopyBufferToTexture(src BufferCopyLocation, rowPitch uint32, dst TextureCopyLocation, size gputypes.Extent3D) {
	check := b.checkBuffer(src.Buffer)
	if check == nil {
		check = b.checkTexture(dst.Texture)
	}
	if !b.recording("CopyBufferToTexture", check) {
		return
	}
	if rowPitch == 0 {
		rowPitch = size.Width * dst.Texture.texelSize
	}
	cmd := cmdlog.Allocate[CopyBufferToTextureCmd](&b.alloc, OpCopyBufferToTexture)
	cmd.Source = src
	cmd.RowPitch = rowPitch
	cmd.Destination = dst
	cmd.Size = size
}

// CopyTextureToBuffer copies a region of src into rows of rowPitch bytes in
// dst. A rowPitch of 0 means tightly packed rows.
func (b *CommandBufferBuilder) CopyTextureToBuffer(src TextureCopyLocation, size gputypes.Extent3D, dst BufferCopyLocation, rowPitch uint32) {
	check := b.checkTexture(src.Texture)
	if check == nil {
		check = b.checkBuffer(dst.Buffer)
	}
	if !b.recording("CopyTextureToBuffer", check) {
		return
	}
	if rowPitch == 0 {
		rowPitch = size.Width * src.Texture.texelSize
	}
	cmd := cmdlog.Allocate[CopyTextureToBufferCmd](&b.alloc, OpCopyTextureToBuffer)
	cmd.Source = src
	cmd.Size = size
	cmd.Destination = dst
	cmd.RowPitch = rowPitch
}

// CopyTextureToTexture copies a region between two textures of the same
// format.
func (b *CommandBufferBuilder) CopyTextureToTexture(src, dst TextureCopyLocation, size gputypes.Extent3D) {
	check := b.checkTexture(src.Texture)
	if check == nil {
		check = b.checkTexture(dst.Texture)
	}
	if !b.recording("CopyTextureToTexture", check) {
		return
	}
	cmd := cmdlog.Allocate[CopyTextureToTextureCmd](&b.alloc, OpCopyTextureToTexture)
	cmd.Source = src
	cmd.Destination = dst
	cmd.Size = size
}

// Dispatch records a compute dispatch.
func (b *CommandBufferBuilder) Dispatch(x, y, z uint32) {
	if !b.recording("Dispatch", nil) {
		return
	}
	*cmdlog.Allocate[DispatchCmd](&b.alloc, OpDispatch) = DispatchCmd{X: x, Y: y, Z: z}
}

// DrawArrays records a non-indexed draw.
func (b *CommandBufferBuilder) DrawArrays(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	if !b.recording("DrawArrays", nil) {
		return
	}
	*cmdlog.Allocate[DrawArraysCmd](&b.alloc, OpDrawArrays) = DrawArraysCmd{
		VertexCount:   vertexCount,
		InstanceCount: instanceCount,
		FirstVertex:   firstVertex,
		FirstInstance: firstInstance,
	}
}

// DrawElements records an indexed draw.
func (b *CommandBufferBuilder) DrawElements(indexCount, instanceCount, firstIndex, firstInstance uint32) {
	if !b.recording("DrawElements", nil) {
		return
	}
	*cmdlog.Allocate[DrawElementsCmd](&b.alloc, OpDrawElements) = DrawElementsCmd{
		IndexCount:    indexCount,
		InstanceCount: instanceCount,
		FirstIndex:    firstIndex,
		FirstInstance: firstInstance,
	}
}

// EndComputePass ends the current compute pass.
func (b *CommandBufferBuilder) EndComputePass() {
	if !b.recording("EndComputePass", nil) {
		return
	}
	cmdlog.Allocate[EndComputePassCmd](&b.alloc, OpEndComputePass)
}

// EndRenderPass ends the current render pass.
func (b *CommandBufferBuilder) EndRenderPass() {
	if !b.recording("EndRenderPass", nil) {
		return
	}
	cmdlog.Allocate[EndRenderPassCmd](&b.alloc, OpEndRenderPass)
}

// SetComputePipeline binds a compute pipeline.
func (b *CommandBufferBuilder) SetComputePipeline(p *ComputePipeline) {
	var check error
	switch {
	case p == nil:
		check = fmt.Errorf("%w: compute pipeline", ErrNilResource)
	case p.device != b.device:
		check = ErrForeignResource
	}
	if !b.recording("SetComputePipeline", check) {
		return
	}
	cmdlog.Allocate[SetComputePipelineCmd](&b.alloc, OpSetComputePipeline).Pipeline = p
}

// SetRenderPipeline binds a render pipeline.
func (b *CommandBufferBuilder) SetRenderPipeline(p *RenderPipeline) {
	var check error
	switch {
	case p == nil:
		check = fmt.Errorf("%w: render pipeline", ErrNilResource)
	case p.device != b.device:
		check = ErrForeignResource
	}
	if !b.recording("SetRenderPipeline", check) {
		return
	}
	cmdlog.Allocate[SetRenderPipelineCmd](&b.alloc, OpSetRenderPipeline).Pipeline = p
}

// SetPushConstants writes data at word offset for the given stages.
func (b *CommandBufferBuilder) SetPushConstants(stages gputypes.ShaderStages, offset uint32, data []uint32) {
	var check error
	if uint64(offset)+uint64(len(data)) > uint64(b.device.opts.maxPushConstants) {
		check = fmt.Errorf("%w: %d words at offset %d, max %d", ErrTooManyPushConstants, len(data), offset, b.device.opts.maxPushConstants)
	}
	if !b.recording("SetPushConstants", check) {
		return
	}
	cmd := cmdlog.Allocate[SetPushConstantsCmd](&b.alloc, OpSetPushConstants)
	cmd.Stages = stages
	cmd.Offset = offset
	cmd.Count = uint32(len(data))
	copy(cmdlog.AllocateData[uint32](&b.alloc, len(data)), data)
}

// SetStencilReference sets the stencil reference value.
func (b *CommandBufferBuilder) SetStencilReference(reference uint32) {
	if !b.recording("SetStencilReference", nil) {
		return
	}
	cmdlog.Allocate[SetStencilReferenceCmd](&b.alloc, OpSetStencilReference).Reference = reference
}

// SetBlendColor sets the blend constant.
func (b *CommandBufferBuilder) SetBlendColor(c gputypes.Color) {
	if !b.recording("SetBlendColor", nil) {
		return
	}
	cmdlog.Allocate[SetBlendColorCmd](&b.alloc, OpSetBlendColor).Color = c
}

// SetScissorRect sets the scissor rectangle.
func (b *CommandBufferBuilder) SetScissorRect(x, y, width, height uint32) {
	if !b.recording("SetScissorRect", nil) {
		return
	}
	*cmdlog.Allocate[SetScissorRectCmd](&b.alloc, OpSetScissorRect) = SetScissorRectCmd{X: x, Y: y, Width: width, Height: height}
}

// SetBindGroup binds g at index.
func (b *CommandBufferBuilder) SetBindGroup(index uint32, g *BindGroup) {
	var check error
	switch {
	case index >= b.device.opts.maxBindGroups:
		check = fmt.Errorf("%w: %d, max %d", ErrBindGroupIndexOverMax, index, b.device.opts.maxBindGroups)
	case g == nil:
		check = fmt.Errorf("%w: bind group", ErrNilResource)
	case g.device != b.device:
		check = ErrForeignResource
	}
	if !b.recording("SetBindGroup", check) {
		return
	}
	*cmdlog.Allocate[SetBindGroupCmd](&b.alloc, OpSetBindGroup) = SetBindGroupCmd{Index: index, Group: g}
}

// SetIndexBuffer binds buf as the index buffer, starting at offset.
func (b *CommandBufferBuilder) SetIndexBuffer(buf *Buffer, offset uint64) {
	if !b.recording("SetIndexBuffer", b.checkBuffer(buf)) {
		return
	}
	*cmdlog.Allocate[SetIndexBufferCmd](&b.alloc, OpSetIndexBuffer) = SetIndexBufferCmd{Buffer: buf, Offset: offset}
}

// SetVertexBuffers binds buffers[i] at offsets[i] to slot start+i.
func (b *CommandBufferBuilder) SetVertexBuffers(start uint32, buffers []*Buffer, offsets []uint64) {
	var check error
	switch {
	case len(buffers) != len(offsets):
		check = fmt.Errorf("%w: %d buffers, %d offsets", ErrVertexBuffersMismatch, len(buffers), len(offsets))
	case uint64(start)+uint64(len(buffers)) > uint64(b.device.opts.maxVertexBuffers):
		check = fmt.Errorf("%w: slots %d..%d, max %d", ErrVertexSlotOverMax, start, uint64(start)+uint64(len(buffers)), b.device.opts.maxVertexBuffers)
	default:
		for _, buf := range buffers {
			if check = b.checkBuffer(buf); check != nil {
				break
			}
		}
	}
	if !b.recording("SetVertexBuffers", check) {
		return
	}
	cmd := cmdlog.Allocate[SetVertexBuffersCmd](&b.alloc, OpSetVertexBuffers)
	cmd.StartSlot = start
	cmd.Count = uint32(len(buffers))
	copy(cmdlog.AllocateData[*Buffer](&b.alloc, len(buffers)), buffers)
	copy(cmdlog.AllocateData[uint64](&b.alloc, len(offsets)), offsets)
}

// Finish ends recording and validates the log. On success the builder's
// commands move into the returned CommandBuffer. The builder cannot be used
// afterwards, whether Finish succeeds or not.
func (b *CommandBufferBuilder) Finish() (*CommandBuffer, error) {
	const op = "CommandBufferBuilder.Finish"
	if b.finished {
		return nil, b.device.fail(op, ErrBuilderFinalized)
	}
	b.finished = true

	it := b.alloc.Freeze()
	if b.err != nil {
		it.Release()
		return nil, b.err
	}

	result, err := newValidator(b.device, it).ValidateGetResult()
	if err != nil {
		it.Release()
		return nil, b.device.fail(op, err)
	}

	cb := &CommandBuffer{
		device:   b.device,
		label:    b.label,
		commands: it,
		passes:   result.passes,
		buffers:  slices.Clip(result.buffers),
		textures: slices.Clip(result.textures),

		bindGroups: slices.Clip(result.bindGroups),
	}
	Logger().Debug("gpuval: command buffer finished",
		"label", b.label, "commands", it.Len(), "passes", len(result.passes))
	return cb, nil
}
