package gpuval

import "github.com/gogpu/gpuval/serial"

// Backend creates native objects for the frontend objects of a Device and
// executes validated command buffers.
//
// Every Create method receives a fully validated object and returns the
// native handle the device stores on it. Backends read the object through
// its exported accessors and reach the natives of referenced objects with
// their Native methods.
//
// The device calls Backend methods with its submission lock held, so a
// backend used by a single device needs no locking of its own. Backends
// that also implement SetLogger(*slog.Logger) receive the package logger.
type Backend interface {
	// Name returns the backend name, e.g. "noop".
	Name() string

	CreateBuffer(b *Buffer) (any, error)
	CreateTexture(t *Texture) (any, error)
	CreateTextureView(v *TextureView) (any, error)
	CreateBindGroupLayout(l *BindGroupLayout) (any, error)
	CreateBindGroup(g *BindGroup) (any, error)
	CreatePipelineLayout(l *PipelineLayout) (any, error)
	CreateShaderModule(m *ShaderModule) (any, error)
	CreateRenderPipeline(p *RenderPipeline) (any, error)
	CreateComputePipeline(p *ComputePipeline) (any, error)

	// WriteBuffer copies data into b at offset.
	WriteBuffer(b *Buffer, offset uint64, data []byte) error

	// ReadBuffer copies len(dst) bytes of b starting at offset into dst.
	// The device only calls it once every submission using b has completed.
	ReadBuffer(b *Buffer, offset uint64, dst []byte) error

	// Execute submits cb as the work of serial s. The command buffer has
	// passed validation; its passes carry their resource usage.
	Execute(cb *CommandBuffer, s serial.Serial) error

	// CompletedSerial returns the last serial whose work has completed.
	// With no work in flight it may return serial.Max; the device never
	// reports a serial past its last submission.
	CompletedSerial() serial.Serial

	// Release destroys native once serial s has completed. Successive
	// calls carry non-decreasing serials.
	Release(native any, s serial.Serial)

	// Tick recycles whatever the backend holds for serials up to completed.
	Tick(completed serial.Serial)

	// Destroy waits for outstanding work and frees everything.
	Destroy()
}
