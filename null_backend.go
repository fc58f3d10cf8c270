package gpuval

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/gpuval/cmdlog"
	"github.com/gogpu/gpuval/serial"
)

// NullBackendName is the name of the in-memory backend.
const NullBackendName = "null"

// NullBackend keeps buffers and textures in host memory and executes
// command buffers synchronously: copies are applied at once, draws and
// dispatches do nothing, and every submission is complete as soon as
// Execute returns.
//
// Released resources are still freed by serial, so deferred destruction
// behaves as it would on a GPU backend.
type NullBackend struct {
	logger  atomic.Pointer[slog.Logger]
	pending serial.Queue[any]
	freed   int
}

type nullBuffer struct {
	data []byte
}

// nullTexture holds one tightly packed image per layer and mip level.
type nullTexture struct {
	texelSize uint32
	widths    []uint32
	levels    [][][]byte // [layer][level]
}

type nullObject struct {
	kind string
}

// NewNullBackend returns an empty in-memory backend.
func NewNullBackend() *NullBackend {
	n := &NullBackend{}
	n.logger.Store(Logger())
	return n
}

func newNullBackend() Backend { return NewNullBackend() }

// Name returns NullBackendName.
func (n *NullBackend) Name() string { return NullBackendName }

// SetLogger sets the logger used for debug output.
func (n *NullBackend) SetLogger(l *slog.Logger) { n.logger.Store(l) }

// Pending returns the number of released resources not yet freed.
func (n *NullBackend) Pending() int { return n.pending.Len() }

// Freed returns the number of released resources freed so far.
func (n *NullBackend) Freed() int { return n.freed }

// CreateBuffer allocates the buffer's bytes in memory.
func (n *NullBackend) CreateBuffer(b *Buffer) (any, error) {
	return &nullBuffer{data: make([]byte, b.Size())}, nil
}

// CreateTexture allocates texel storage for every mip level.
func (n *NullBackend) CreateTexture(t *Texture) (any, error) {
	nt := &nullTexture{
		texelSize: t.TexelSize(),
		widths:    make([]uint32, t.MipLevelCount()),
		levels:    make([][][]byte, t.ArrayLayers()),
	}
	for level := range nt.widths {
		nt.widths[level] = max(t.Width()>>level, 1)
	}
	for layer := range nt.levels {
		nt.levels[layer] = make([][]byte, t.MipLevelCount())
		for level := range nt.levels[layer] {
			h := max(t.Height()>>level, 1)
			nt.levels[layer][level] = make([]byte, uint64(nt.widths[level])*uint64(h)*uint64(nt.texelSize))
		}
	}
	return nt, nil
}

// CreateTextureView returns a placeholder native.
func (n *NullBackend) CreateTextureView(*TextureView) (any, error) {
	return &nullObject{kind: "texture view"}, nil
}

// CreateBindGroupLayout returns a placeholder native.
func (n *NullBackend) CreateBindGroupLayout(*BindGroupLayout) (any, error) {
	return &nullObject{kind: "bind group layout"}, nil
}

// CreateBindGroup returns a placeholder native.
func (n *NullBackend) CreateBindGroup(*BindGroup) (any, error) {
	return &nullObject{kind: "bind group"}, nil
}

// CreatePipelineLayout returns a placeholder native.
func (n *NullBackend) CreatePipelineLayout(*PipelineLayout) (any, error) {
	return &nullObject{kind: "pipeline layout"}, nil
}

// CreateShaderModule returns a placeholder native.
func (n *NullBackend) CreateShaderModule(*ShaderModule) (any, error) {
	return &nullObject{kind: "shader module"}, nil
}

// CreateRenderPipeline returns a placeholder native.
func (n *NullBackend) CreateRenderPipeline(*RenderPipeline) (any, error) {
	return &nullObject{kind: "render pipeline"}, nil
}

// CreateComputePipeline returns a placeholder native.
func (n *NullBackend) CreateComputePipeline(*ComputePipeline) (any, error) {
	return &nullObject{kind: "compute pipeline"}, nil
}

// WriteBuffer copies data into the buffer's memory.
func (n *NullBackend) WriteBuffer(b *Buffer, offset uint64, data []byte) error {
	nb, err := nullBufferOf(b)
	if err != nil {
		return err
	}
	copy(nb.data[offset:], data)
	return nil
}

// ReadBuffer copies the buffer's memory at offset into dst.
func (n *NullBackend) ReadBuffer(b *Buffer, offset uint64, dst []byte) error {
	nb, err := nullBufferOf(b)
	if err != nil {
		return err
	}
	copy(dst, nb.data[offset:])
	return nil
}

// Execute applies the copies of cb.
func (n *NullBackend) Execute(cb *CommandBuffer, s serial.Serial) error {
	it := cb.Commands()
	copies := 0
	for op, ok := it.NextCommandID(); ok; op, ok = it.NextCommandID() {
		var err error
		switch op {
		case OpCopyBufferToBuffer:
			err = n.copyBufferToBuffer(cmdlog.NextCommand[CopyBufferToBufferCmd](it))
		case OpCopyBufferToTexture:
			cmd := cmdlog.NextCommand[CopyBufferToTextureCmd](it)
			err = n.copyRows(cmd.Source, cmd.RowPitch, cmd.Destination, cmd.Size.Width, cmd.Size.Height, true)
		case OpCopyTextureToBuffer:
			cmd := cmdlog.NextCommand[CopyTextureToBufferCmd](it)
			err = n.copyRows(cmd.Destination, cmd.RowPitch, cmd.Source, cmd.Size.Width, cmd.Size.Height, false)
		case OpCopyTextureToTexture:
			err = n.copyTextureToTexture(cmdlog.NextCommand[CopyTextureToTextureCmd](it))
		default:
			continue
		}
		if err != nil {
			return err
		}
		copies++
	}
	n.logger.Load().Debug("gpuval: null backend executed", "label", cb.Label(), "serial", uint64(s), "copies", copies)
	return nil
}

func (n *NullBackend) copyBufferToBuffer(cmd *CopyBufferToBufferCmd) error {
	src, err := nullBufferOf(cmd.Source.Buffer)
	if err != nil {
		return err
	}
	dst, err := nullBufferOf(cmd.Destination.Buffer)
	if err != nil {
		return err
	}
	copy(dst.data[cmd.Destination.Offset:cmd.Destination.Offset+cmd.Size],
		src.data[cmd.Source.Offset:cmd.Source.Offset+cmd.Size])
	return nil
}

// copyRows copies height rows of width texels between a buffer and a
// texture, into the texture when toTexture is set.
func (n *NullBackend) copyRows(buf BufferCopyLocation, rowPitch uint32, tex TextureCopyLocation, width, height uint32, toTexture bool) error {
	nb, err := nullBufferOf(buf.Buffer)
	if err != nil {
		return err
	}
	nt, err := nullTextureOf(tex.Texture)
	if err != nil {
		return err
	}
	image := nt.levels[tex.ArrayLayer][tex.MipLevel]
	rowBytes := uint64(width) * uint64(nt.texelSize)
	for y := range uint64(height) {
		b := buf.Offset + y*uint64(rowPitch)
		t := nt.offset(tex, y)
		if toTexture {
			copy(image[t:t+rowBytes], nb.data[b:b+rowBytes])
		} else {
			copy(nb.data[b:b+rowBytes], image[t:t+rowBytes])
		}
	}
	return nil
}

func (n *NullBackend) copyTextureToTexture(cmd *CopyTextureToTextureCmd) error {
	src, err := nullTextureOf(cmd.Source.Texture)
	if err != nil {
		return err
	}
	dst, err := nullTextureOf(cmd.Destination.Texture)
	if err != nil {
		return err
	}
	from := src.levels[cmd.Source.ArrayLayer][cmd.Source.MipLevel]
	to := dst.levels[cmd.Destination.ArrayLayer][cmd.Destination.MipLevel]
	rowBytes := uint64(cmd.Size.Width) * uint64(src.texelSize)
	for y := range uint64(cmd.Size.Height) {
		s, d := src.offset(cmd.Source, y), dst.offset(cmd.Destination, y)
		copy(to[d:d+rowBytes], from[s:s+rowBytes])
	}
	return nil
}

// offset returns the byte offset of row y of a copy at loc.
func (nt *nullTexture) offset(loc TextureCopyLocation, y uint64) uint64 {
	w := uint64(nt.widths[loc.MipLevel])
	return ((uint64(loc.Origin.Y)+y)*w + uint64(loc.Origin.X)) * uint64(nt.texelSize)
}

// CompletedSerial reports every submission as complete: Execute finishes
// its work before returning.
func (n *NullBackend) CompletedSerial() serial.Serial { return serial.Max }

// Release queues native until s completes.
func (n *NullBackend) Release(native any, s serial.Serial) {
	n.pending.Enqueue(native, s)
}

// Tick frees every resource released at or before completed.
func (n *NullBackend) Tick(completed serial.Serial) {
	for range n.pending.UpTo(completed) {
		n.freed++
	}
	n.pending.ClearUpTo(completed)
}

// Destroy frees everything.
func (n *NullBackend) Destroy() {
	n.freed += n.pending.Len()
	n.pending.Clear()
}

func nullBufferOf(b *Buffer) (*nullBuffer, error) {
	nb, ok := b.Native().(*nullBuffer)
	if !ok {
		return nil, fmt.Errorf("gpuval: buffer %q has native %T, not a null backend buffer", b.Label(), b.Native())
	}
	return nb, nil
}

func nullTextureOf(t *Texture) (*nullTexture, error) {
	nt, ok := t.Native().(*nullTexture)
	if !ok {
		return nil, fmt.Errorf("gpuval: texture %q has native %T, not a null backend texture", t.Label(), t.Native())
	}
	return nt, nil
}
