package gpuval

import (
	"fmt"
	"math/bits"
	"sync"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gpuval/serial"
	"github.com/gogpu/gpuval/track"
)

// TextureDescriptor describes a 2D texture to create.
type TextureDescriptor struct {
	Label string

	Width, Height uint32

	// ArrayLayers defaults to 1.
	ArrayLayers uint32

	// MipLevelCount must be between 1 and the full chain length.
	MipLevelCount uint32

	Format gputypes.TextureFormat

	// Usage is the set of usages the texture may ever take.
	Usage track.TextureUsage

	// InitialUsage is the current usage right after creation.
	InitialUsage track.TextureUsage
}

// Texture is a 2D image, possibly with mip levels and array layers.
type Texture struct {
	track.UsageTracker[track.TextureUsage]

	device    *Device
	label     string
	width     uint32
	height    uint32
	layers    uint32
	mips      uint32
	format    gputypes.TextureFormat
	texelSize uint32
	native    any

	mu        sync.Mutex
	lastUse   serial.Serial
	destroyed bool
}

// CreateTexture creates a texture. The format must have a fixed texel size.
func (d *Device) CreateTexture(desc TextureDescriptor) (*Texture, error) {
	const op = "CreateTexture"
	if desc.Width == 0 || desc.Height == 0 {
		return nil, d.fail(op, ErrZeroSize)
	}
	texel, ok := TexelSize(desc.Format)
	if !ok {
		return nil, d.fail(op, fmt.Errorf("%w: %s", ErrFormatNotCopyable, desc.Format))
	}
	maxMips := uint32(bits.Len32(max(desc.Width, desc.Height)))
	if desc.MipLevelCount == 0 || desc.MipLevelCount > maxMips {
		return nil, d.fail(op, fmt.Errorf("%w: %d (max %d)", ErrInvalidMipLevelCount, desc.MipLevelCount, maxMips))
	}
	if !track.IsUsagePossible(desc.Usage, desc.InitialUsage) {
		return nil, d.fail(op, fmt.Errorf("%w: %s (allowed %s)", ErrInitialUsageNotAllowed, desc.InitialUsage, desc.Usage))
	}
	layers := desc.ArrayLayers
	if layers == 0 {
		layers = 1
	}

	t := &Texture{
		UsageTracker: track.NewUsageTracker(desc.Usage),
		device:       d,
		label:        desc.Label,
		width:        desc.Width,
		height:       desc.Height,
		layers:       layers,
		mips:         desc.MipLevelCount,
		format:       desc.Format,
		texelSize:    texel,
	}
	if err := t.UsageTracker.TransitionUsage(desc.InitialUsage); err != nil {
		return nil, d.fail(op, err)
	}
	native, err := create(d, op, t, d.backend.CreateTexture)
	if err != nil {
		return nil, err
	}
	t.native = native
	return t, nil
}

// Label returns the texture's debug label.
func (t *Texture) Label() string { return t.label }

// Width returns the width of mip level 0 in texels.
func (t *Texture) Width() uint32 { return t.width }

// Height returns the height of mip level 0 in texels.
func (t *Texture) Height() uint32 { return t.height }

// ArrayLayers returns the number of array layers, at least 1.
func (t *Texture) ArrayLayers() uint32 { return t.layers }

// MipLevelCount returns the number of mip levels.
func (t *Texture) MipLevelCount() uint32 { return t.mips }

// Format returns the texel format.
func (t *Texture) Format() gputypes.TextureFormat { return t.format }

// TexelSize returns the size of one texel in bytes.
func (t *Texture) TexelSize() uint32 { return t.texelSize }

// Native returns the backend handle.
func (t *Texture) Native() any { return t.native }

// Device returns the device that created the texture.
func (t *Texture) Device() *Device { return t.device }

// TransitionUsage sets the texture's current usage. A failure is reported to
// the device error channel and leaves the usage unchanged.
func (t *Texture) TransitionUsage(u track.TextureUsage) error {
	if err := t.UsageTracker.TransitionUsage(u); err != nil {
		return t.device.fail("Texture.TransitionUsage", err)
	}
	return nil
}

// FreezeUsage narrows the allowed usage to u for the rest of the texture's
// life. A failure is reported to the device error channel.
func (t *Texture) FreezeUsage(u track.TextureUsage) error {
	if err := t.UsageTracker.FreezeUsage(u); err != nil {
		return t.device.fail("Texture.FreezeUsage", err)
	}
	return nil
}

// ClearUsage resets the current usage. It fails on a frozen texture.
func (t *Texture) ClearUsage() error {
	if err := t.UsageTracker.ClearUsage(); err != nil {
		return t.device.fail("Texture.ClearUsage", err)
	}
	return nil
}

// IsDestroyed reports whether Destroy has been called.
func (t *Texture) IsDestroyed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.destroyed
}

// LastUse returns the serial of the last submission that referenced the texture.
func (t *Texture) LastUse() serial.Serial {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastUse
}

// Destroy releases the texture once its last submission has completed.
// Views of the texture must not be used afterwards.
func (t *Texture) Destroy() {
	t.mu.Lock()
	if t.destroyed {
		t.mu.Unlock()
		return
	}
	t.destroyed = true
	last := t.lastUse
	t.mu.Unlock()

	t.device.release(t.native, last)
}

func (t *Texture) checkSubmittable() error {
	if t.IsDestroyed() {
		return fmt.Errorf("%w: %q", ErrTextureDestroyed, t.label)
	}
	return nil
}

func (t *Texture) markUsed(s serial.Serial) {
	t.mu.Lock()
	t.lastUse = s
	t.mu.Unlock()
}

// TextureView is a view of every mip level and layer of a texture.
type TextureView struct {
	texture *Texture
	native  any
}

// CreateView creates a view of the whole texture.
func (t *Texture) CreateView() (*TextureView, error) {
	const op = "Texture.CreateView"
	if t.IsDestroyed() {
		return nil, t.device.fail(op, ErrTextureDestroyed)
	}
	v := &TextureView{texture: t}
	native, err := create(t.device, op, v, t.device.backend.CreateTextureView)
	if err != nil {
		return nil, err
	}
	v.native = native
	return v, nil
}

// Texture returns the viewed texture.
func (v *TextureView) Texture() *Texture { return v.texture }

// Native returns the backend handle.
func (v *TextureView) Native() any { return v.native }

// Destroy releases the view once the texture's last submission has completed.
func (v *TextureView) Destroy() {
	if v.native == nil {
		return
	}
	native := v.native
	v.native = nil
	v.texture.device.release(native, v.texture.LastUse())
}
