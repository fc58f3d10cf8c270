package gpuval

import (
	"github.com/gogpu/gpuval/cmdlog"
	"github.com/gogpu/gpuval/track"
)

// validationResult is what a successful validation hands to the command
// buffer: the usage of every pass and every resource the log references.
type validationResult struct {
	passes     []PassResourceUsage
	buffers    []*Buffer
	textures   []*Texture
	bindGroups []*BindGroup
}

// validator walks a frozen command log once and checks it.
type validator struct {
	device *Device
	it     *cmdlog.Iterator[Opcode]

	result       validationResult
	seenBuffers  map[*Buffer]struct{}
	seenTextures map[*Texture]struct{}
	seenGroups   map[*BindGroup]struct{}
}

func newValidator(d *Device, it *cmdlog.Iterator[Opcode]) *validator {
	return &validator{
		device:       d,
		it:           it,
		seenBuffers:  make(map[*Buffer]struct{}),
		seenTextures: make(map[*Texture]struct{}),
		seenGroups:   make(map[*BindGroup]struct{}),
	}
}

// ValidateGetResult validates the whole log. Outside of passes only copies
// and pass beginnings are legal; each pass is validated by its own state
// tracker and usage tracker. The iterator is rewound before returning.
func (v *validator) ValidateGetResult() (validationResult, error) {
	v.it.Reset()
	defer v.it.Reset()

	outside := NewCommandBufferStateTracker(v.device.opts.maxBindGroups, v.device.opts.maxVertexBuffers)
	for op, ok := v.it.NextCommandID(); ok; op, ok = v.it.NextCommandID() {
		switch op {
		case OpBeginComputePass:
			cmdlog.NextCommand[BeginComputePassCmd](v.it)
			if err := v.validateComputePass(); err != nil {
				return validationResult{}, err
			}

		case OpBeginRenderPass:
			cmd := cmdlog.NextCommand[BeginRenderPassCmd](v.it)
			if err := v.validateRenderPass(cmd.Pass); err != nil {
				return validationResult{}, err
			}

		case OpCopyBufferToBuffer:
			cmd := cmdlog.NextCommand[CopyBufferToBufferCmd](v.it)
			if err := validateCopyBufferToBuffer(cmd); err != nil {
				return validationResult{}, err
			}
			v.referenceBuffer(cmd.Source.Buffer)
			v.referenceBuffer(cmd.Destination.Buffer)

		case OpCopyBufferToTexture:
			cmd := cmdlog.NextCommand[CopyBufferToTextureCmd](v.it)
			if err := validateCopyBufferToTexture(cmd); err != nil {
				return validationResult{}, err
			}
			v.referenceBuffer(cmd.Source.Buffer)
			v.referenceTexture(cmd.Destination.Texture)

		case OpCopyTextureToBuffer:
			cmd := cmdlog.NextCommand[CopyTextureToBufferCmd](v.it)
			if err := validateCopyTextureToBuffer(cmd); err != nil {
				return validationResult{}, err
			}
			v.referenceTexture(cmd.Source.Texture)
			v.referenceBuffer(cmd.Destination.Buffer)

		case OpCopyTextureToTexture:
			cmd := cmdlog.NextCommand[CopyTextureToTextureCmd](v.it)
			if err := validateCopyTextureToTexture(cmd); err != nil {
				return validationResult{}, err
			}
			v.referenceTexture(cmd.Source.Texture)
			v.referenceTexture(cmd.Destination.Texture)

		default:
			return validationResult{}, outside.ValidateOpcode(op)
		}
	}
	return v.result, nil
}

func (v *validator) validateComputePass() error {
	usage := NewPassResourceUsageTracker()
	state := NewCommandBufferStateTracker(v.device.opts.maxBindGroups, v.device.opts.maxVertexBuffers)
	if err := state.BeginComputePass(); err != nil {
		return err
	}

	for op, ok := v.it.NextCommandID(); ok; op, ok = v.it.NextCommandID() {
		var err error
		switch op {
		case OpEndComputePass:
			cmdlog.NextCommand[EndComputePassCmd](v.it)
			if err := state.EndPass(); err != nil {
				return err
			}
			return v.finishPass(usage, PassTypeCompute)

		case OpDispatch:
			cmdlog.NextCommand[DispatchCmd](v.it)
			err = state.ValidateCanDispatch()

		case OpSetComputePipeline:
			cmd := cmdlog.NextCommand[SetComputePipelineCmd](v.it)
			err = state.SetComputePipeline(cmd.Pipeline)

		case OpSetPushConstants:
			cmd := cmdlog.NextCommand[SetPushConstantsCmd](v.it)
			cmdlog.NextData[uint32](v.it, int(cmd.Count))
			err = state.ValidatePushConstantStages(cmd.Stages)

		case OpSetBindGroup:
			cmd := cmdlog.NextCommand[SetBindGroupCmd](v.it)
			v.referenceBindGroup(cmd.Group)
			cmd.Group.trackUsage(usage)
			err = state.SetBindGroup(cmd.Index, cmd.Group)

		default:
			err = state.ValidateOpcode(op)
		}
		if err != nil {
			return err
		}
	}
	return ErrUnfinishedComputePass
}

func (v *validator) validateRenderPass(rp *RenderPass) error {
	usage := NewPassResourceUsageTracker()
	state := NewCommandBufferStateTracker(v.device.opts.maxBindGroups, v.device.opts.maxVertexBuffers)
	if err := state.BeginRenderPass(rp); err != nil {
		return err
	}
	for _, tex := range rp.attachmentTextures() {
		usage.TextureUsedAs(tex, track.TextureUsageOutputAttachment)
	}

	for op, ok := v.it.NextCommandID(); ok; op, ok = v.it.NextCommandID() {
		var err error
		switch op {
		case OpEndRenderPass:
			cmdlog.NextCommand[EndRenderPassCmd](v.it)
			if err := state.EndPass(); err != nil {
				return err
			}
			return v.finishPass(usage, PassTypeRender)

		case OpDrawArrays:
			cmdlog.NextCommand[DrawArraysCmd](v.it)
			err = state.ValidateCanDrawArrays()

		case OpDrawElements:
			cmdlog.NextCommand[DrawElementsCmd](v.it)
			err = state.ValidateCanDrawElements()

		case OpSetRenderPipeline:
			cmd := cmdlog.NextCommand[SetRenderPipelineCmd](v.it)
			err = state.SetRenderPipeline(cmd.Pipeline)

		case OpSetPushConstants:
			cmd := cmdlog.NextCommand[SetPushConstantsCmd](v.it)
			cmdlog.NextData[uint32](v.it, int(cmd.Count))
			err = state.ValidatePushConstantStages(cmd.Stages)

		case OpSetStencilReference:
			cmdlog.NextCommand[SetStencilReferenceCmd](v.it)
			err = state.ValidateOpcode(op)

		case OpSetBlendColor:
			cmdlog.NextCommand[SetBlendColorCmd](v.it)
			err = state.ValidateOpcode(op)

		case OpSetScissorRect:
			cmdlog.NextCommand[SetScissorRectCmd](v.it)
			err = state.ValidateOpcode(op)

		case OpSetBindGroup:
			cmd := cmdlog.NextCommand[SetBindGroupCmd](v.it)
			v.referenceBindGroup(cmd.Group)
			cmd.Group.trackUsage(usage)
			err = state.SetBindGroup(cmd.Index, cmd.Group)

		case OpSetIndexBuffer:
			cmd := cmdlog.NextCommand[SetIndexBufferCmd](v.it)
			usage.BufferUsedAs(cmd.Buffer, track.BufferUsageIndex)
			err = state.SetIndexBuffer()

		case OpSetVertexBuffers:
			cmd := cmdlog.NextCommand[SetVertexBuffersCmd](v.it)
			buffers := cmdlog.NextData[*Buffer](v.it, int(cmd.Count))
			cmdlog.NextData[uint64](v.it, int(cmd.Count))
			for _, b := range buffers {
				usage.BufferUsedAs(b, track.BufferUsageVertex)
			}
			err = state.SetVertexBuffers(cmd.StartSlot, cmd.Count)

		default:
			err = state.ValidateOpcode(op)
		}
		if err != nil {
			return err
		}
	}
	return ErrUnfinishedRenderPass
}

// finishPass checks the usages accumulated by a pass and keeps them.
func (v *validator) finishPass(usage *PassResourceUsageTracker, pass PassType) error {
	if err := usage.ValidateUsages(pass); err != nil {
		return err
	}
	u := usage.AcquireResourceUsage(pass)
	for _, b := range u.Buffers {
		v.referenceBuffer(b)
	}
	for _, t := range u.Textures {
		v.referenceTexture(t)
	}
	v.result.passes = append(v.result.passes, u)
	return nil
}

func (v *validator) referenceBuffer(b *Buffer) {
	if _, ok := v.seenBuffers[b]; ok {
		return
	}
	v.seenBuffers[b] = struct{}{}
	v.result.buffers = append(v.result.buffers, b)
}

func (v *validator) referenceTexture(t *Texture) {
	if _, ok := v.seenTextures[t]; ok {
		return
	}
	v.seenTextures[t] = struct{}{}
	v.result.textures = append(v.result.textures, t)
}

func (v *validator) referenceBindGroup(g *BindGroup) {
	if _, ok := v.seenGroups[g]; ok {
		return
	}
	v.seenGroups[g] = struct{}{}
	v.result.bindGroups = append(v.result.bindGroups, g)
}
