package gpuval

import (
	"fmt"
	"slices"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gpuval/track"
)

// RenderPassColorAttachment is one color target of a render pass.
type RenderPassColorAttachment struct {
	View       *TextureView
	LoadOp     gputypes.LoadOp
	StoreOp    gputypes.StoreOp
	ClearValue gputypes.Color
}

// RenderPassDepthStencilAttachment is the depth-stencil target of a render pass.
type RenderPassDepthStencilAttachment struct {
	View              *TextureView
	DepthLoadOp       gputypes.LoadOp
	DepthStoreOp      gputypes.StoreOp
	DepthClearValue   float32
	StencilLoadOp     gputypes.LoadOp
	StencilStoreOp    gputypes.StoreOp
	StencilClearValue uint32
}

// RenderPassDescriptor describes the attachments of a render pass.
type RenderPassDescriptor struct {
	Label                  string
	ColorAttachments       []RenderPassColorAttachment
	DepthStencilAttachment *RenderPassDepthStencilAttachment
}

// RenderPass is a validated set of attachments that a command buffer can
// begin a render pass with.
type RenderPass struct {
	label  string
	colors []RenderPassColorAttachment
	depth  *RenderPassDepthStencilAttachment
	width  uint32
	height uint32
}

// CreateRenderPassDescriptor validates desc. Every attachment must allow
// OutputAttachment and all attachments must have the same size.
func (d *Device) CreateRenderPassDescriptor(desc RenderPassDescriptor) (*RenderPass, error) {
	const op = "CreateRenderPassDescriptor"
	views := make([]*TextureView, 0, len(desc.ColorAttachments)+1)
	for _, c := range desc.ColorAttachments {
		views = append(views, c.View)
	}
	if desc.DepthStencilAttachment != nil {
		views = append(views, desc.DepthStencilAttachment.View)
	}
	if len(views) == 0 {
		return nil, d.fail(op, ErrNoAttachments)
	}

	rp := &RenderPass{label: desc.Label, colors: slices.Clone(desc.ColorAttachments)}
	if desc.DepthStencilAttachment != nil {
		ds := *desc.DepthStencilAttachment
		rp.depth = &ds
	}
	for i, v := range views {
		if v == nil {
			return nil, d.fail(op, fmt.Errorf("%w: attachment %d view", ErrNilResource, i))
		}
		tex := v.texture
		if tex.device != d {
			return nil, d.fail(op, ErrForeignResource)
		}
		if !tex.HasUsage(track.TextureUsageOutputAttachment) {
			return nil, d.fail(op, fmt.Errorf("%w: %q", ErrAttachmentUsage, tex.label))
		}
		if i == 0 {
			rp.width, rp.height = tex.width, tex.height
			continue
		}
		if tex.width != rp.width || tex.height != rp.height {
			return nil, d.fail(op, fmt.Errorf("%w: %dx%d and %dx%d", ErrAttachmentSizeMismatch, rp.width, rp.height, tex.width, tex.height))
		}
	}
	return rp, nil
}

// Label returns the render pass's debug label.
func (rp *RenderPass) Label() string { return rp.label }

// Width returns the attachment width shared by every attachment.
func (rp *RenderPass) Width() uint32 { return rp.width }

// Height returns the attachment height shared by every attachment.
func (rp *RenderPass) Height() uint32 { return rp.height }

// ColorAttachments returns the color attachments in slot order.
func (rp *RenderPass) ColorAttachments() []RenderPassColorAttachment { return rp.colors }

// DepthStencilAttachment returns the depth-stencil attachment, or nil.
func (rp *RenderPass) DepthStencilAttachment() *RenderPassDepthStencilAttachment { return rp.depth }

// ColorFormats returns the formats of the color attachments in order.
func (rp *RenderPass) ColorFormats() []gputypes.TextureFormat {
	formats := make([]gputypes.TextureFormat, len(rp.colors))
	for i, c := range rp.colors {
		formats[i] = c.View.texture.format
	}
	return formats
}

// DepthStencilFormat returns the depth-stencil format, or
// TextureFormatUndefined without a depth-stencil attachment.
func (rp *RenderPass) DepthStencilFormat() gputypes.TextureFormat {
	if rp.depth == nil {
		return gputypes.TextureFormatUndefined
	}
	return rp.depth.View.texture.format
}

// attachmentTextures returns the texture of every attachment.
func (rp *RenderPass) attachmentTextures() []*Texture {
	textures := make([]*Texture, 0, len(rp.colors)+1)
	for _, c := range rp.colors {
		textures = append(textures, c.View.texture)
	}
	if rp.depth != nil {
		textures = append(textures, rp.depth.View.texture)
	}
	return textures
}
