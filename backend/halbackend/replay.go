package halbackend

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpuval"
	"github.com/gogpu/gpuval/cmdlog"
	"github.com/gogpu/gpuval/track"
)

// encode replays cb onto enc. Each pass is preceded by the barriers that
// move its resources into the usage recorded for it; each copy by the
// transfer transitions of its source and destination.
func (b *Backend) encode(enc hal.CommandEncoder, cb *gpuval.CommandBuffer) error {
	it := cb.Commands()
	if it == nil {
		return nil
	}
	passes := cb.Passes()
	var batch barrierBatch
	pass := 0

	for op, ok := it.NextCommandID(); ok; op, ok = it.NextCommandID() {
		switch op {
		case gpuval.OpBeginRenderPass, gpuval.OpBeginComputePass:
			if pass >= len(passes) {
				return fmt.Errorf("%w: pass %d has no recorded usage", ErrUnexpectedCommand, pass)
			}
			if err := batch.pass(passes[pass]); err != nil {
				return err
			}
			pass++
			batch.flush(enc)
			var err error
			if op == gpuval.OpBeginRenderPass {
				err = b.encodeRenderPass(enc, cmdlog.NextCommand[gpuval.BeginRenderPassCmd](it).Pass, it)
			} else {
				err = b.encodeComputePass(enc, it)
			}
			if err != nil {
				return err
			}

		case gpuval.OpCopyBufferToBuffer:
			cmd := cmdlog.NextCommand[gpuval.CopyBufferToBufferCmd](it)
			src, dst, err := copyBuffers(&batch, cmd.Source.Buffer, cmd.Destination.Buffer)
			if err != nil {
				return err
			}
			batch.flush(enc)
			enc.CopyBufferToBuffer(src.raw, dst.raw, []hal.BufferCopy{{
				SrcOffset: cmd.Source.Offset,
				DstOffset: cmd.Destination.Offset,
				Size:      cmd.Size,
			}})

		case gpuval.OpCopyBufferToTexture:
			cmd := cmdlog.NextCommand[gpuval.CopyBufferToTextureCmd](it)
			src, err := nativeOf[*buffer](cmd.Source.Buffer, "buffer")
			if err != nil {
				return err
			}
			dst, err := nativeOf[*texture](cmd.Destination.Texture, "texture")
			if err != nil {
				return err
			}
			batch.buffer(src, track.BufferUsageTransferSrc)
			batch.texture(dst, track.TextureUsageTransferDst)
			batch.flush(enc)
			enc.CopyBufferToTexture(src.raw, dst.raw, []hal.BufferTextureCopy{
				bufferTextureCopy(cmd.Source, cmd.RowPitch, dst, cmd.Destination, cmd.Size),
			})

		case gpuval.OpCopyTextureToBuffer:
			cmd := cmdlog.NextCommand[gpuval.CopyTextureToBufferCmd](it)
			src, err := nativeOf[*texture](cmd.Source.Texture, "texture")
			if err != nil {
				return err
			}
			dst, err := nativeOf[*buffer](cmd.Destination.Buffer, "buffer")
			if err != nil {
				return err
			}
			batch.texture(src, track.TextureUsageTransferSrc)
			batch.buffer(dst, track.BufferUsageTransferDst)
			batch.flush(enc)
			enc.CopyTextureToBuffer(src.raw, dst.raw, []hal.BufferTextureCopy{
				bufferTextureCopy(cmd.Destination, cmd.RowPitch, src, cmd.Source, cmd.Size),
			})

		case gpuval.OpCopyTextureToTexture:
			cmd := cmdlog.NextCommand[gpuval.CopyTextureToTextureCmd](it)
			src, err := nativeOf[*texture](cmd.Source.Texture, "texture")
			if err != nil {
				return err
			}
			dst, err := nativeOf[*texture](cmd.Destination.Texture, "texture")
			if err != nil {
				return err
			}
			batch.texture(src, track.TextureUsageTransferSrc)
			batch.texture(dst, track.TextureUsageTransferDst)
			batch.flush(enc)
			enc.CopyTextureToTexture(src.raw, dst.raw, []hal.TextureCopy{{
				SrcBase: imageCopy(src, cmd.Source),
				DstBase: imageCopy(dst, cmd.Destination),
				Size:    extent3D(cmd.Size),
			}})

		default:
			return fmt.Errorf("%w: %s outside a pass", ErrUnexpectedCommand, op)
		}
	}
	return nil
}

func copyBuffers(batch *barrierBatch, src, dst *gpuval.Buffer) (*buffer, *buffer, error) {
	ns, err := nativeOf[*buffer](src, "buffer")
	if err != nil {
		return nil, nil, err
	}
	nd, err := nativeOf[*buffer](dst, "buffer")
	if err != nil {
		return nil, nil, err
	}
	batch.buffer(ns, track.BufferUsageTransferSrc)
	batch.buffer(nd, track.BufferUsageTransferDst)
	return ns, nd, nil
}

func bufferTextureCopy(buf gpuval.BufferCopyLocation, rowPitch uint32, nt *texture, tex gpuval.TextureCopyLocation, size gputypes.Extent3D) hal.BufferTextureCopy {
	return hal.BufferTextureCopy{
		BufferLayout: hal.ImageDataLayout{
			Offset:       buf.Offset,
			BytesPerRow:  rowPitch,
			RowsPerImage: size.Height,
		},
		TextureBase: imageCopy(nt, tex),
		Size:        extent3D(size),
	}
}

// imageCopy addresses one layer of a 2D texture; the layer is the Z origin.
func imageCopy(nt *texture, loc gpuval.TextureCopyLocation) hal.ImageCopyTexture {
	return hal.ImageCopyTexture{
		Texture:  nt.raw,
		MipLevel: loc.MipLevel,
		Origin:   hal.Origin3D{X: loc.Origin.X, Y: loc.Origin.Y, Z: loc.ArrayLayer},
		Aspect:   gputypes.TextureAspectAll,
	}
}

func extent3D(e gputypes.Extent3D) hal.Extent3D {
	return hal.Extent3D{Width: e.Width, Height: e.Height, DepthOrArrayLayers: e.DepthOrArrayLayers}
}

func renderPassDescriptor(rp *gpuval.RenderPass) (*hal.RenderPassDescriptor, error) {
	desc := &hal.RenderPassDescriptor{Label: rp.Label()}
	for _, c := range rp.ColorAttachments() {
		v, err := nativeOf[*textureView](c.View, "color attachment")
		if err != nil {
			return nil, err
		}
		desc.ColorAttachments = append(desc.ColorAttachments, hal.RenderPassColorAttachment{
			View:       v.raw,
			LoadOp:     c.LoadOp,
			StoreOp:    c.StoreOp,
			ClearValue: c.ClearValue,
		})
	}
	if ds := rp.DepthStencilAttachment(); ds != nil {
		v, err := nativeOf[*textureView](ds.View, "depth-stencil attachment")
		if err != nil {
			return nil, err
		}
		desc.DepthStencilAttachment = &hal.RenderPassDepthStencilAttachment{
			View:              v.raw,
			DepthLoadOp:       ds.DepthLoadOp,
			DepthStoreOp:      ds.DepthStoreOp,
			DepthClearValue:   ds.DepthClearValue,
			StencilLoadOp:     ds.StencilLoadOp,
			StencilStoreOp:    ds.StencilStoreOp,
			StencilClearValue: ds.StencilClearValue,
		}
	}
	return desc, nil
}

func (b *Backend) encodeRenderPass(enc hal.CommandEncoder, rp *gpuval.RenderPass, it *cmdlog.Iterator[gpuval.Opcode]) error {
	desc, err := renderPassDescriptor(rp)
	if err != nil {
		return err
	}
	pass := enc.BeginRenderPass(desc)
	err = b.replayRenderPass(pass, it)
	pass.End()
	return err
}

// renderState defers binding the index buffer to the draw, since its
// format comes from the pipeline bound at that point.
type renderState struct {
	pipeline    *gpuval.RenderPipeline
	index       *buffer
	indexOffset uint64
	indexDirty  bool
	boundFormat gputypes.IndexFormat
}

func (s *renderState) bindIndexBuffer(pass hal.RenderPassEncoder) {
	format := gputypes.IndexFormatUint32
	if s.pipeline != nil && s.pipeline.Descriptor().IndexFormat != gputypes.IndexFormatUndefined {
		format = s.pipeline.Descriptor().IndexFormat
	}
	if !s.indexDirty && format == s.boundFormat {
		return
	}
	pass.SetIndexBuffer(s.index.raw, format, s.indexOffset)
	s.indexDirty = false
	s.boundFormat = format
}

func (b *Backend) replayRenderPass(pass hal.RenderPassEncoder, it *cmdlog.Iterator[gpuval.Opcode]) error {
	var st renderState
	for op, ok := it.NextCommandID(); ok; op, ok = it.NextCommandID() {
		switch op {
		case gpuval.OpEndRenderPass:
			cmdlog.NextCommand[gpuval.EndRenderPassCmd](it)
			return nil

		case gpuval.OpSetRenderPipeline:
			cmd := cmdlog.NextCommand[gpuval.SetRenderPipelineCmd](it)
			raw, err := nativeOf[hal.RenderPipeline](cmd.Pipeline, "render pipeline")
			if err != nil {
				return err
			}
			pass.SetPipeline(raw)
			st.pipeline = cmd.Pipeline

		case gpuval.OpSetBindGroup:
			cmd := cmdlog.NextCommand[gpuval.SetBindGroupCmd](it)
			ng, err := nativeOf[*bindGroup](cmd.Group, "bind group")
			if err != nil {
				return err
			}
			pass.SetBindGroup(cmd.Index, ng.raw, nil)

		case gpuval.OpSetIndexBuffer:
			cmd := cmdlog.NextCommand[gpuval.SetIndexBufferCmd](it)
			nb, err := nativeOf[*buffer](cmd.Buffer, "index buffer")
			if err != nil {
				return err
			}
			st.index, st.indexOffset, st.indexDirty = nb, cmd.Offset, true

		case gpuval.OpSetVertexBuffers:
			cmd := cmdlog.NextCommand[gpuval.SetVertexBuffersCmd](it)
			bufs := cmdlog.NextData[*gpuval.Buffer](it, int(cmd.Count))
			offsets := cmdlog.NextData[uint64](it, int(cmd.Count))
			for i, buf := range bufs {
				nb, err := nativeOf[*buffer](buf, "vertex buffer")
				if err != nil {
					return err
				}
				pass.SetVertexBuffer(cmd.StartSlot+uint32(i), nb.raw, offsets[i])
			}

		case gpuval.OpSetPushConstants:
			skipPushConstants(it)

		case gpuval.OpSetStencilReference:
			pass.SetStencilReference(cmdlog.NextCommand[gpuval.SetStencilReferenceCmd](it).Reference)

		case gpuval.OpSetBlendColor:
			c := cmdlog.NextCommand[gpuval.SetBlendColorCmd](it).Color
			pass.SetBlendConstant(&c)

		case gpuval.OpSetScissorRect:
			cmd := cmdlog.NextCommand[gpuval.SetScissorRectCmd](it)
			pass.SetScissorRect(cmd.X, cmd.Y, cmd.Width, cmd.Height)

		case gpuval.OpDrawArrays:
			cmd := cmdlog.NextCommand[gpuval.DrawArraysCmd](it)
			pass.Draw(cmd.VertexCount, cmd.InstanceCount, cmd.FirstVertex, cmd.FirstInstance)

		case gpuval.OpDrawElements:
			cmd := cmdlog.NextCommand[gpuval.DrawElementsCmd](it)
			st.bindIndexBuffer(pass)
			pass.DrawIndexed(cmd.IndexCount, cmd.InstanceCount, cmd.FirstIndex, 0, cmd.FirstInstance)

		default:
			return fmt.Errorf("%w: %s in a render pass", ErrUnexpectedCommand, op)
		}
	}
	return fmt.Errorf("%w: render pass without end", ErrUnexpectedCommand)
}

func (b *Backend) encodeComputePass(enc hal.CommandEncoder, it *cmdlog.Iterator[gpuval.Opcode]) error {
	cmdlog.NextCommand[gpuval.BeginComputePassCmd](it)
	pass := enc.BeginComputePass(&hal.ComputePassDescriptor{Label: "gpuval"})
	err := b.replayComputePass(pass, it)
	pass.End()
	return err
}

func (b *Backend) replayComputePass(pass hal.ComputePassEncoder, it *cmdlog.Iterator[gpuval.Opcode]) error {
	for op, ok := it.NextCommandID(); ok; op, ok = it.NextCommandID() {
		switch op {
		case gpuval.OpEndComputePass:
			cmdlog.NextCommand[gpuval.EndComputePassCmd](it)
			return nil

		case gpuval.OpSetComputePipeline:
			cmd := cmdlog.NextCommand[gpuval.SetComputePipelineCmd](it)
			raw, err := nativeOf[hal.ComputePipeline](cmd.Pipeline, "compute pipeline")
			if err != nil {
				return err
			}
			pass.SetPipeline(raw)

		case gpuval.OpSetBindGroup:
			cmd := cmdlog.NextCommand[gpuval.SetBindGroupCmd](it)
			ng, err := nativeOf[*bindGroup](cmd.Group, "bind group")
			if err != nil {
				return err
			}
			pass.SetBindGroup(cmd.Index, ng.raw, nil)

		case gpuval.OpSetPushConstants:
			skipPushConstants(it)

		case gpuval.OpDispatch:
			cmd := cmdlog.NextCommand[gpuval.DispatchCmd](it)
			pass.Dispatch(cmd.X, cmd.Y, cmd.Z)

		default:
			return fmt.Errorf("%w: %s in a compute pass", ErrUnexpectedCommand, op)
		}
	}
	return fmt.Errorf("%w: compute pass without end", ErrUnexpectedCommand)
}

// skipPushConstants consumes a push constant command. hal pass encoders
// have no push constant entry point, so the words are dropped.
func skipPushConstants(it *cmdlog.Iterator[gpuval.Opcode]) {
	cmd := cmdlog.NextCommand[gpuval.SetPushConstantsCmd](it)
	cmdlog.NextData[uint32](it, int(cmd.Count))
}
