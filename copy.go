package gpuval

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gpuval/track"
)

// validateCopyBufferToBuffer checks that both ranges fit and that the
// buffers allow the transfer usages.
func validateCopyBufferToBuffer(cmd *CopyBufferToBufferCmd) error {
	if err := validateCopySizeFitsInBuffer(cmd.Source, cmd.Size); err != nil {
		return err
	}
	if err := validateCopySizeFitsInBuffer(cmd.Destination, cmd.Size); err != nil {
		return err
	}
	if err := validateCanUseBufferAs(cmd.Source.Buffer, track.BufferUsageTransferSrc); err != nil {
		return err
	}
	return validateCanUseBufferAs(cmd.Destination.Buffer, track.BufferUsageTransferDst)
}

func validateCopyBufferToTexture(cmd *CopyBufferToTextureCmd) error {
	tex := cmd.Destination.Texture
	if err := validateRowPitch(cmd.Size, cmd.RowPitch, tex.texelSize); err != nil {
		return err
	}
	size := computeTextureCopyBufferSize(cmd.Size, cmd.RowPitch, tex.texelSize)
	if err := validateCopyLocationFitsInTexture(cmd.Destination, cmd.Size); err != nil {
		return err
	}
	if err := validateCopySizeFitsInBuffer(cmd.Source, size); err != nil {
		return err
	}
	if err := validateTexelBufferOffset(tex, cmd.Source.Offset); err != nil {
		return err
	}
	if err := validateCanUseBufferAs(cmd.Source.Buffer, track.BufferUsageTransferSrc); err != nil {
		return err
	}
	return validateCanUseTextureAs(tex, track.TextureUsageTransferDst)
}

func validateCopyTextureToBuffer(cmd *CopyTextureToBufferCmd) error {
	tex := cmd.Source.Texture
	if err := validateRowPitch(cmd.Size, cmd.RowPitch, tex.texelSize); err != nil {
		return err
	}
	size := computeTextureCopyBufferSize(cmd.Size, cmd.RowPitch, tex.texelSize)
	if err := validateCopyLocationFitsInTexture(cmd.Source, cmd.Size); err != nil {
		return err
	}
	if err := validateCopySizeFitsInBuffer(cmd.Destination, size); err != nil {
		return err
	}
	if err := validateTexelBufferOffset(tex, cmd.Destination.Offset); err != nil {
		return err
	}
	if err := validateCanUseTextureAs(tex, track.TextureUsageTransferSrc); err != nil {
		return err
	}
	return validateCanUseBufferAs(cmd.Destination.Buffer, track.BufferUsageTransferDst)
}

func validateCopyTextureToTexture(cmd *CopyTextureToTextureCmd) error {
	src, dst := cmd.Source.Texture, cmd.Destination.Texture
	if err := validateCopyLocationFitsInTexture(cmd.Source, cmd.Size); err != nil {
		return err
	}
	if err := validateCopyLocationFitsInTexture(cmd.Destination, cmd.Size); err != nil {
		return err
	}
	if src == dst {
		return fmt.Errorf("%w: %q", ErrCopySameTexture, src.label)
	}
	if src.format != dst.format {
		return fmt.Errorf("%w: %s and %s", ErrCopyFormatMismatch, src.format, dst.format)
	}
	if err := validateCanUseTextureAs(src, track.TextureUsageTransferSrc); err != nil {
		return err
	}
	return validateCanUseTextureAs(dst, track.TextureUsageTransferDst)
}

// validateCopyLocationFitsInTexture checks a copy region against the mip
// level it addresses. Only 2D copies of a single layer are supported.
func validateCopyLocationFitsInTexture(loc TextureCopyLocation, size gputypes.Extent3D) error {
	tex := loc.Texture
	if loc.MipLevel >= tex.mips {
		return fmt.Errorf("%w: level %d of %d", ErrCopyMipLevel, loc.MipLevel, tex.mips)
	}
	if loc.ArrayLayer >= tex.layers {
		return fmt.Errorf("%w: layer %d of %d", ErrCopyArrayLayer, loc.ArrayLayer, tex.layers)
	}

	level := loc.MipLevel
	if uint64(loc.Origin.X)+uint64(size.Width) > uint64(tex.width)>>level ||
		uint64(loc.Origin.Y)+uint64(size.Height) > uint64(tex.height)>>level {
		return fmt.Errorf("%w: %dx%d at (%d,%d) in level %d", ErrCopyOutsideTexture,
			size.Width, size.Height, loc.Origin.X, loc.Origin.Y, level)
	}

	if loc.Origin.Z != 0 || size.DepthOrArrayLayers != 1 {
		return ErrCopyDepth
	}
	return nil
}

// validateCopySizeFitsInBuffer checks that size bytes from loc.Offset lie
// inside the buffer.
func validateCopySizeFitsInBuffer(loc BufferCopyLocation, size uint64) error {
	if !fitsInBuffer(loc.Buffer.size, loc.Offset, size) {
		return fmt.Errorf("%w: %q offset %d size %d of %d", ErrCopyOverflowsBuffer,
			loc.Buffer.label, loc.Offset, size, loc.Buffer.size)
	}
	return nil
}

// validateRowPitch checks the row pitch of a buffer-texture copy.
func validateRowPitch(size gputypes.Extent3D, rowPitch, texelSize uint32) error {
	if rowPitch%RowPitchAlignment != 0 {
		return fmt.Errorf("%w: %d", ErrRowPitchAlignment, rowPitch)
	}
	if uint64(rowPitch) < uint64(size.Width)*uint64(texelSize) {
		return fmt.Errorf("%w: %d < %d", ErrRowPitchTooSmall, rowPitch, uint64(size.Width)*uint64(texelSize))
	}
	return nil
}

// computeTextureCopyBufferSize returns the bytes a copy of size touches in
// the buffer: every row but the last takes rowPitch bytes, the last only its
// texels.
func computeTextureCopyBufferSize(size gputypes.Extent3D, rowPitch, texelSize uint32) uint64 {
	if size.Height == 0 {
		return 0
	}
	return uint64(rowPitch)*uint64(size.Height-1) + uint64(size.Width)*uint64(texelSize)
}

func validateTexelBufferOffset(tex *Texture, offset uint64) error {
	if offset%uint64(tex.texelSize) != 0 {
		return fmt.Errorf("%w: offset %d, texel size %d", ErrBufferOffsetAlignment, offset, tex.texelSize)
	}
	return nil
}

func validateCanUseBufferAs(b *Buffer, usage track.BufferUsage) error {
	if b.HasUsage(usage) {
		return nil
	}
	if usage == track.BufferUsageTransferSrc {
		return fmt.Errorf("%w: %q", ErrBufferNoTransferSrc, b.label)
	}
	return fmt.Errorf("%w: %q", ErrBufferNoTransferDst, b.label)
}

func validateCanUseTextureAs(t *Texture, usage track.TextureUsage) error {
	if t.HasUsage(usage) {
		return nil
	}
	if usage == track.TextureUsageTransferSrc {
		return fmt.Errorf("%w: %q", ErrTextureNoTransferSrc, t.label)
	}
	return fmt.Errorf("%w: %q", ErrTextureNoTransferDst, t.label)
}
