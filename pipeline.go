package gpuval

import (
	"fmt"
	"slices"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
)

// PipelineLayoutDescriptor describes a pipeline layout.
type PipelineLayoutDescriptor struct {
	Label string

	// BindGroupLayouts holds one layout per bind group index. A nil entry
	// leaves the index unused.
	BindGroupLayouts []*BindGroupLayout

	// PushConstantStages are the stages reading push constants.
	PushConstantStages gputypes.ShaderStages
}

// PipelineLayout is the bind group and push constant interface of a pipeline.
type PipelineLayout struct {
	device     *Device
	label      string
	groups     []*BindGroupLayout
	pushStages gputypes.ShaderStages
	native     any
}

// CreatePipelineLayout creates a pipeline layout.
func (d *Device) CreatePipelineLayout(desc PipelineLayoutDescriptor) (*PipelineLayout, error) {
	const op = "CreatePipelineLayout"
	if uint32(len(desc.BindGroupLayouts)) > d.opts.maxBindGroups {
		return nil, d.fail(op, fmt.Errorf("%w: %d > %d", ErrTooManyBindGroups, len(desc.BindGroupLayouts), d.opts.maxBindGroups))
	}
	l := &PipelineLayout{
		device:     d,
		label:      desc.Label,
		groups:     slices.Clone(desc.BindGroupLayouts),
		pushStages: desc.PushConstantStages,
	}
	native, err := create(d, op, l, d.backend.CreatePipelineLayout)
	if err != nil {
		return nil, err
	}
	l.native = native
	return l, nil
}

// Label returns the layout's debug label.
func (l *PipelineLayout) Label() string { return l.label }

// Device returns the device that created the layout.
func (l *PipelineLayout) Device() *Device { return l.device }

// BindGroupLayouts returns the layout of every bind group index.
func (l *PipelineLayout) BindGroupLayouts() []*BindGroupLayout { return l.groups }

// PushConstantStages returns the stages reading push constants.
func (l *PipelineLayout) PushConstantStages() gputypes.ShaderStages { return l.pushStages }

// Native returns the backend handle.
func (l *PipelineLayout) Native() any { return l.native }

// ShaderModuleDescriptor describes a shader module. WGSL is compiled to
// SPIR-V; SPIRV is taken as is.
type ShaderModuleDescriptor struct {
	Label string
	WGSL  string
	SPIRV []uint32
}

// ShaderModule holds SPIR-V code.
type ShaderModule struct {
	device *Device
	label  string
	spirv  []uint32
	native any
}

// CreateShaderModule compiles desc.WGSL with naga, or takes desc.SPIRV.
func (d *Device) CreateShaderModule(desc ShaderModuleDescriptor) (*ShaderModule, error) {
	const op = "CreateShaderModule"
	code := desc.SPIRV
	switch {
	case desc.WGSL != "":
		var err error
		if code, err = d.compileWGSL(desc.WGSL); err != nil {
			return nil, d.fail(op, err)
		}
	case len(code) == 0:
		return nil, d.fail(op, ErrMissingShaderModule)
	}

	m := &ShaderModule{device: d, label: desc.Label, spirv: slices.Clone(code)}
	native, err := create(d, op, m, d.backend.CreateShaderModule)
	if err != nil {
		return nil, err
	}
	m.native = native
	return m, nil
}

// ShaderCacheStats are the counters of the device's WGSL compilation cache.
type ShaderCacheStats struct {
	Entries int
	Hits    uint64
	Misses  uint64
}

// ShaderCacheStats returns the compilation cache counters. They stay zero
// when the cache is disabled.
func (d *Device) ShaderCacheStats() ShaderCacheStats {
	if d.shaders == nil {
		return ShaderCacheStats{}
	}
	s := d.shaders.Stats()
	return ShaderCacheStats{Entries: s.Len, Hits: s.Hits, Misses: s.Misses}
}

func (d *Device) compileWGSL(src string) ([]uint32, error) {
	if d.shaders == nil {
		return compileWGSL(src)
	}
	return d.shaders.Compile(src, compileWGSL)
}

// compileWGSL compiles WGSL source to little-endian SPIR-V words.
func compileWGSL(src string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrShaderCompile, err)
	}
	code := make([]uint32, len(spirvBytes)/4)
	for i := range code {
		code[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return code, nil
}

// Label returns the module's debug label.
func (m *ShaderModule) Label() string { return m.label }

// SPIRV returns the module's SPIR-V words. Callers must not modify them.
func (m *ShaderModule) SPIRV() []uint32 { return m.spirv }

// Native returns the backend handle.
func (m *ShaderModule) Native() any { return m.native }

// ProgrammableStage names a shader entry point.
type ProgrammableStage struct {
	Module     *ShaderModule
	EntryPoint string
}

// RenderPipelineDescriptor describes a render pipeline.
type RenderPipelineDescriptor struct {
	Label  string
	Layout *PipelineLayout

	Vertex   ProgrammableStage
	Fragment *ProgrammableStage

	// VertexBuffers holds one layout per vertex buffer slot the pipeline reads.
	VertexBuffers []gputypes.VertexBufferLayout

	Primitive gputypes.PrimitiveState

	// ColorFormats and DepthStencilFormat must match the render pass the
	// pipeline is used in.
	ColorFormats       []gputypes.TextureFormat
	DepthStencilFormat gputypes.TextureFormat

	// IndexFormat is used by indexed draws.
	IndexFormat gputypes.IndexFormat
}

// RenderPipeline is a validated render pipeline.
type RenderPipeline struct {
	device *Device
	desc   RenderPipelineDescriptor
	native any
}

// CreateRenderPipeline creates a render pipeline.
func (d *Device) CreateRenderPipeline(desc RenderPipelineDescriptor) (*RenderPipeline, error) {
	const op = "CreateRenderPipeline"
	switch {
	case desc.Layout == nil:
		return nil, d.fail(op, fmt.Errorf("%w: layout", ErrNilResource))
	case desc.Vertex.Module == nil:
		return nil, d.fail(op, fmt.Errorf("%w: vertex stage", ErrMissingShaderModule))
	case desc.Fragment != nil && desc.Fragment.Module == nil:
		return nil, d.fail(op, fmt.Errorf("%w: fragment stage", ErrMissingShaderModule))
	case uint32(len(desc.VertexBuffers)) > d.opts.maxVertexBuffers:
		return nil, d.fail(op, fmt.Errorf("%w: %d vertex buffers", ErrVertexSlotOverMax, len(desc.VertexBuffers)))
	}
	if desc.IndexFormat == gputypes.IndexFormatUndefined {
		desc.IndexFormat = gputypes.IndexFormatUint32
	}
	desc.ColorFormats = slices.Clone(desc.ColorFormats)
	desc.VertexBuffers = slices.Clone(desc.VertexBuffers)

	p := &RenderPipeline{device: d, desc: desc}
	native, err := create(d, op, p, d.backend.CreateRenderPipeline)
	if err != nil {
		return nil, err
	}
	p.native = native
	return p, nil
}

// Descriptor returns the descriptor the pipeline was created with.
func (p *RenderPipeline) Descriptor() RenderPipelineDescriptor { return p.desc }

// Layout returns the pipeline layout.
func (p *RenderPipeline) Layout() *PipelineLayout { return p.desc.Layout }

// Native returns the backend handle.
func (p *RenderPipeline) Native() any { return p.native }

// IsCompatibleWith reports whether the pipeline renders to the same
// attachment formats as rp, in the same order.
func (p *RenderPipeline) IsCompatibleWith(rp *RenderPass) bool {
	if !slices.Equal(p.desc.ColorFormats, rp.ColorFormats()) {
		return false
	}
	return p.desc.DepthStencilFormat == rp.DepthStencilFormat()
}

// ComputePipelineDescriptor describes a compute pipeline.
type ComputePipelineDescriptor struct {
	Label   string
	Layout  *PipelineLayout
	Compute ProgrammableStage
}

// ComputePipeline is a validated compute pipeline.
type ComputePipeline struct {
	device *Device
	desc   ComputePipelineDescriptor
	native any
}

// CreateComputePipeline creates a compute pipeline.
func (d *Device) CreateComputePipeline(desc ComputePipelineDescriptor) (*ComputePipeline, error) {
	const op = "CreateComputePipeline"
	switch {
	case desc.Layout == nil:
		return nil, d.fail(op, fmt.Errorf("%w: layout", ErrNilResource))
	case desc.Compute.Module == nil:
		return nil, d.fail(op, fmt.Errorf("%w: compute stage", ErrMissingShaderModule))
	}
	p := &ComputePipeline{device: d, desc: desc}
	native, err := create(d, op, p, d.backend.CreateComputePipeline)
	if err != nil {
		return nil, err
	}
	p.native = native
	return p, nil
}

// Descriptor returns the descriptor the pipeline was created with.
func (p *ComputePipeline) Descriptor() ComputePipelineDescriptor { return p.desc }

// Layout returns the pipeline layout.
func (p *ComputePipeline) Layout() *PipelineLayout { return p.desc.Layout }

// Native returns the backend handle.
func (p *ComputePipeline) Native() any { return p.native }
