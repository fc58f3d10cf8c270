package gpuval

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// PassState is the state of a CommandBufferStateTracker.
type PassState int

const (
	// StateOutside is between passes. Only copies and pass beginnings are legal.
	StateOutside PassState = iota
	// StateInRenderPass is inside a render pass.
	StateInRenderPass
	// StateInComputePass is inside a compute pass.
	StateInComputePass
	// StateEnded is after the end of the pass. Nothing is legal.
	StateEnded
)

// String returns the name of the state.
func (s PassState) String() string {
	switch s {
	case StateOutside:
		return "Outside"
	case StateInRenderPass:
		return "InRenderPass"
	case StateInComputePass:
		return "InComputePass"
	case StateEnded:
		return "Ended"
	default:
		return fmt.Sprintf("PassState(%d)", int(s))
	}
}

// legalOpcodes is the transition table: the opcodes allowed in each state.
var legalOpcodes = [...][OpcodeCount]bool{
	StateOutside: {
		OpBeginRenderPass:      true,
		OpBeginComputePass:     true,
		OpCopyBufferToBuffer:   true,
		OpCopyBufferToTexture:  true,
		OpCopyTextureToBuffer:  true,
		OpCopyTextureToTexture: true,
	},
	StateInRenderPass: {
		OpSetRenderPipeline:   true,
		OpSetPushConstants:    true,
		OpSetStencilReference: true,
		OpSetBlendColor:       true,
		OpSetScissorRect:      true,
		OpSetBindGroup:        true,
		OpSetIndexBuffer:      true,
		OpSetVertexBuffers:    true,
		OpDrawArrays:          true,
		OpDrawElements:        true,
		OpEndRenderPass:       true,
	},
	StateInComputePass: {
		OpSetComputePipeline: true,
		OpSetPushConstants:   true,
		OpSetBindGroup:       true,
		OpDispatch:           true,
		OpEndComputePass:     true,
	},
	StateEnded: {},
}

// disallowed maps each state to the error of an illegal opcode.
var disallowed = [...]error{
	StateOutside:       ErrDisallowedOutsidePass,
	StateInRenderPass:  ErrDisallowedInRenderPass,
	StateInComputePass: ErrDisallowedInComputePass,
	StateEnded:         ErrPassEnded,
}

// CommandBufferStateTracker is the state machine of one pass. It decides
// which opcodes are legal and tracks the pipeline and bindings that draws
// and dispatches need.
type CommandBufferStateTracker struct {
	state PassState

	renderPass      *RenderPass
	renderPipeline  *RenderPipeline
	computePipeline *ComputePipeline
	bindGroups      []*BindGroup
	vertexBuffers   []bool
	indexBufferSet  bool
}

// NewCommandBufferStateTracker returns a tracker in StateOutside.
func NewCommandBufferStateTracker(maxBindGroups, maxVertexBuffers uint32) *CommandBufferStateTracker {
	return &CommandBufferStateTracker{
		bindGroups:    make([]*BindGroup, maxBindGroups),
		vertexBuffers: make([]bool, maxVertexBuffers),
	}
}

// State returns the current state.
func (s *CommandBufferStateTracker) State() PassState { return s.state }

// ValidateOpcode reports whether op is legal in the current state.
func (s *CommandBufferStateTracker) ValidateOpcode(op Opcode) error {
	if op >= OpcodeCount {
		return fmt.Errorf("%w: %s", disallowed[s.state], op)
	}
	if !legalOpcodes[s.state][op] {
		return fmt.Errorf("%w: %s", disallowed[s.state], op)
	}
	return nil
}

// BeginRenderPass enters a render pass using rp's attachments.
func (s *CommandBufferStateTracker) BeginRenderPass(rp *RenderPass) error {
	if err := s.ValidateOpcode(OpBeginRenderPass); err != nil {
		return err
	}
	s.state = StateInRenderPass
	s.renderPass = rp
	return nil
}

// BeginComputePass enters a compute pass.
func (s *CommandBufferStateTracker) BeginComputePass() error {
	if err := s.ValidateOpcode(OpBeginComputePass); err != nil {
		return err
	}
	s.state = StateInComputePass
	return nil
}

// EndPass ends the current pass.
func (s *CommandBufferStateTracker) EndPass() error {
	op := OpEndRenderPass
	if s.state == StateInComputePass {
		op = OpEndComputePass
	}
	if err := s.ValidateOpcode(op); err != nil {
		return err
	}
	s.state = StateEnded
	return nil
}

// SetRenderPipeline binds p. The pipeline must render to the attachment
// formats of the current render pass.
func (s *CommandBufferStateTracker) SetRenderPipeline(p *RenderPipeline) error {
	if err := s.ValidateOpcode(OpSetRenderPipeline); err != nil {
		return err
	}
	if !p.IsCompatibleWith(s.renderPass) {
		return ErrIncompatiblePipeline
	}
	s.renderPipeline = p
	return nil
}

// SetComputePipeline binds p.
func (s *CommandBufferStateTracker) SetComputePipeline(p *ComputePipeline) error {
	if err := s.ValidateOpcode(OpSetComputePipeline); err != nil {
		return err
	}
	s.computePipeline = p
	return nil
}

// ValidatePushConstantStages checks the stage mask of a push constant update
// against the kind of pass.
func (s *CommandBufferStateTracker) ValidatePushConstantStages(stages gputypes.ShaderStages) error {
	if err := s.ValidateOpcode(OpSetPushConstants); err != nil {
		return err
	}
	if s.state == StateInComputePass {
		if stages&^gputypes.ShaderStageCompute != 0 {
			return ErrPushConstantsComputeStage
		}
		return nil
	}
	if stages&^(gputypes.ShaderStageVertex|gputypes.ShaderStageFragment) != 0 {
		return ErrPushConstantsRenderStages
	}
	return nil
}

// SetBindGroup binds g at index.
func (s *CommandBufferStateTracker) SetBindGroup(index uint32, g *BindGroup) error {
	if err := s.ValidateOpcode(OpSetBindGroup); err != nil {
		return err
	}
	if index >= uint32(len(s.bindGroups)) {
		return fmt.Errorf("%w: %d", ErrBindGroupIndexOverMax, index)
	}
	s.bindGroups[index] = g
	return nil
}

// SetIndexBuffer records that an index buffer is bound.
func (s *CommandBufferStateTracker) SetIndexBuffer() error {
	if err := s.ValidateOpcode(OpSetIndexBuffer); err != nil {
		return err
	}
	s.indexBufferSet = true
	return nil
}

// SetVertexBuffers records that count slots from start are bound.
func (s *CommandBufferStateTracker) SetVertexBuffers(start, count uint32) error {
	if err := s.ValidateOpcode(OpSetVertexBuffers); err != nil {
		return err
	}
	if uint64(start)+uint64(count) > uint64(len(s.vertexBuffers)) {
		return fmt.Errorf("%w: slots %d..%d", ErrVertexSlotOverMax, start, uint64(start)+uint64(count))
	}
	for i := start; i < start+count; i++ {
		s.vertexBuffers[i] = true
	}
	return nil
}

// ValidateCanDrawArrays checks that a render pipeline, its bind groups and
// its vertex buffers are bound.
func (s *CommandBufferStateTracker) ValidateCanDrawArrays() error {
	if err := s.ValidateOpcode(OpDrawArrays); err != nil {
		return err
	}
	return s.validateCanDraw()
}

// ValidateCanDrawElements additionally requires an index buffer.
func (s *CommandBufferStateTracker) ValidateCanDrawElements() error {
	if err := s.ValidateOpcode(OpDrawElements); err != nil {
		return err
	}
	if err := s.validateCanDraw(); err != nil {
		return err
	}
	if !s.indexBufferSet {
		return ErrIndexBufferNotSet
	}
	return nil
}

func (s *CommandBufferStateTracker) validateCanDraw() error {
	if s.renderPipeline == nil {
		return ErrNoRenderPipeline
	}
	if err := s.validateBindGroups(s.renderPipeline.Layout()); err != nil {
		return err
	}
	for slot := range s.renderPipeline.desc.VertexBuffers {
		if slot >= len(s.vertexBuffers) || !s.vertexBuffers[slot] {
			return fmt.Errorf("%w: slot %d", ErrMissingVertexBuffer, slot)
		}
	}
	return nil
}

// ValidateCanDispatch checks that a compute pipeline and its bind groups
// are bound.
func (s *CommandBufferStateTracker) ValidateCanDispatch() error {
	if err := s.ValidateOpcode(OpDispatch); err != nil {
		return err
	}
	if s.computePipeline == nil {
		return ErrNoComputePipeline
	}
	return s.validateBindGroups(s.computePipeline.Layout())
}

func (s *CommandBufferStateTracker) validateBindGroups(layout *PipelineLayout) error {
	for i, want := range layout.groups {
		if want == nil {
			continue
		}
		if i >= len(s.bindGroups) || s.bindGroups[i] == nil {
			return fmt.Errorf("%w: index %d", ErrMissingBindGroup, i)
		}
		if s.bindGroups[i].layout != want {
			return fmt.Errorf("%w: index %d", ErrBindGroupLayoutMismatch, i)
		}
	}
	return nil
}
