package gpuval

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// Opcode tags a recorded command.
type Opcode uint8

const (
	OpBeginComputePass Opcode = iota
	OpBeginRenderPass
	OpCopyBufferToBuffer
	OpCopyBufferToTexture
	OpCopyTextureToBuffer
	OpCopyTextureToTexture
	OpDispatch
	OpDrawArrays
	OpDrawElements
	OpEndComputePass
	OpEndRenderPass
	OpSetComputePipeline
	OpSetRenderPipeline
	OpSetPushConstants
	OpSetStencilReference
	OpSetBlendColor
	OpSetScissorRect
	OpSetBindGroup
	OpSetIndexBuffer
	OpSetVertexBuffers

	// OpcodeCount is the number of opcodes.
	OpcodeCount
)

var opcodeNames = [OpcodeCount]string{
	OpBeginComputePass:     "BeginComputePass",
	OpBeginRenderPass:      "BeginRenderPass",
	OpCopyBufferToBuffer:   "CopyBufferToBuffer",
	OpCopyBufferToTexture:  "CopyBufferToTexture",
	OpCopyTextureToBuffer:  "CopyTextureToBuffer",
	OpCopyTextureToTexture: "CopyTextureToTexture",
	OpDispatch:             "Dispatch",
	OpDrawArrays:           "DrawArrays",
	OpDrawElements:         "DrawElements",
	OpEndComputePass:       "EndComputePass",
	OpEndRenderPass:        "EndRenderPass",
	OpSetComputePipeline:   "SetComputePipeline",
	OpSetRenderPipeline:    "SetRenderPipeline",
	OpSetPushConstants:     "SetPushConstants",
	OpSetStencilReference:  "SetStencilReference",
	OpSetBlendColor:        "SetBlendColor",
	OpSetScissorRect:       "SetScissorRect",
	OpSetBindGroup:         "SetBindGroup",
	OpSetIndexBuffer:       "SetIndexBuffer",
	OpSetVertexBuffers:     "SetVertexBuffers",
}

// String returns the name of the opcode.
func (op Opcode) String() string {
	if op < OpcodeCount {
		return opcodeNames[op]
	}
	return fmt.Sprintf("Opcode(%d)", uint8(op))
}

// IsCopy reports whether op is one of the copy commands.
func (op Opcode) IsCopy() bool {
	return op >= OpCopyBufferToBuffer && op <= OpCopyTextureToTexture
}

// BufferCopyLocation is the buffer side of a copy.
type BufferCopyLocation struct {
	Buffer *Buffer
	Offset uint64
}

// TextureCopyLocation is the texture side of a copy.
type TextureCopyLocation struct {
	Texture    *Texture
	MipLevel   uint32
	ArrayLayer uint32
	Origin     gputypes.Origin3D
}

type BeginComputePassCmd struct{}

type BeginRenderPassCmd struct {
	Pass *RenderPass
}

type CopyBufferToBufferCmd struct {
	Source      BufferCopyLocation
	Destination BufferCopyLocation
	Size        uint64
}

// CopyBufferToTextureCmd copies rows of RowPitch bytes from a buffer into a
// texture region.
type CopyBufferToTextureCmd struct {
	Source      BufferCopyLocation
	RowPitch    uint32
	Destination TextureCopyLocation
	Size        gputypes.Extent3D
}

type CopyTextureToBufferCmd struct {
	Source      TextureCopyLocation
	Size        gputypes.Extent3D
	Destination BufferCopyLocation
	RowPitch    uint32
}

type CopyTextureToTextureCmd struct {
	Source      TextureCopyLocation
	Destination TextureCopyLocation
	Size        gputypes.Extent3D
}

type DispatchCmd struct {
	X, Y, Z uint32
}

type DrawArraysCmd struct {
	VertexCount   uint32
	InstanceCount uint32
	FirstVertex   uint32
	FirstInstance uint32
}

type DrawElementsCmd struct {
	IndexCount    uint32
	InstanceCount uint32
	FirstIndex    uint32
	FirstInstance uint32
}

type EndComputePassCmd struct{}

type EndRenderPassCmd struct{}

type SetComputePipelineCmd struct {
	Pipeline *ComputePipeline
}

type SetRenderPipelineCmd struct {
	Pipeline *RenderPipeline
}

// SetPushConstantsCmd is followed by a payload of Count uint32 words.
type SetPushConstantsCmd struct {
	Stages gputypes.ShaderStages
	Offset uint32
	Count  uint32
}

type SetStencilReferenceCmd struct {
	Reference uint32
}

type SetBlendColorCmd struct {
	Color gputypes.Color
}

type SetScissorRectCmd struct {
	X, Y, Width, Height uint32
}

type SetBindGroupCmd struct {
	Index uint32
	Group *BindGroup
}

type SetIndexBufferCmd struct {
	Buffer *Buffer
	Offset uint64
}

// SetVertexBuffersCmd is followed by a payload of Count buffers and a
// payload of Count uint64 offsets.
type SetVertexBuffersCmd struct {
	StartSlot uint32
	Count     uint32
}
