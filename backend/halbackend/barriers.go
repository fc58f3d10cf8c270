package halbackend

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpuval"
	"github.com/gogpu/gpuval/track"
)

// barrierBatch collects the transitions needed before one pass or copy.
// A resource staying in the same read-only usage needs no barrier; every
// other change, including a writable usage repeated, gets one.
type barrierBatch struct {
	buffers  []hal.BufferBarrier
	textures []hal.TextureBarrier
}

func (bb *barrierBatch) buffer(nb *buffer, usage track.BufferUsage) {
	if nb.usage == usage && usage.IsReadOnly() {
		return
	}
	bb.buffers = append(bb.buffers, hal.BufferBarrier{
		Buffer: nb.raw,
		Usage: hal.BufferUsageTransition{
			OldUsage: nb.usage.GPU(),
			NewUsage: usage.GPU(),
		},
	})
	nb.usage = usage
}

func (bb *barrierBatch) texture(nt *texture, usage track.TextureUsage) {
	if nt.usage == usage && usage.IsReadOnly() {
		return
	}
	bb.textures = append(bb.textures, hal.TextureBarrier{
		Texture: nt.raw,
		Range: hal.TextureRange{
			Aspect:          gputypes.TextureAspectAll,
			MipLevelCount:   nt.mips,
			ArrayLayerCount: nt.layers,
		},
		Usage: hal.TextureUsageTransition{
			OldUsage: nt.usage.GPU(),
			NewUsage: usage.GPU(),
		},
	})
	nt.usage = usage
}

// pass adds the transitions of every resource a pass uses.
func (bb *barrierBatch) pass(p gpuval.PassResourceUsage) error {
	for i, buf := range p.Buffers {
		nb, err := nativeOf[*buffer](buf, "buffer")
		if err != nil {
			return err
		}
		bb.buffer(nb, p.BufferUsages[i])
	}
	for i, tex := range p.Textures {
		nt, err := nativeOf[*texture](tex, "texture")
		if err != nil {
			return err
		}
		bb.texture(nt, p.TextureUsages[i])
	}
	return nil
}

// flush records the collected barriers on enc and empties the batch.
func (bb *barrierBatch) flush(enc hal.CommandEncoder) {
	if len(bb.buffers) > 0 {
		enc.TransitionBuffers(bb.buffers)
		bb.buffers = bb.buffers[:0]
	}
	if len(bb.textures) > 0 {
		enc.TransitionTextures(bb.textures)
		bb.textures = bb.textures[:0]
	}
}
