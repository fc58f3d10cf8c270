package gpuval

import (
	"bytes"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gpuval/track"
)

// readBack copies tex into a fresh buffer and returns its bytes.
func readBack(t *testing.T, d *Device, nb *NullBackend, loc TextureCopyLocation, size gputypes.Extent3D) []byte {
	t.Helper()
	const pitch = 256
	out := mustBuffer(t, d, "readback", uint64(pitch*size.Height), track.BufferUsageTransferDst)
	b := d.CreateCommandBufferBuilder("readback")
	b.CopyTextureToBuffer(loc, size, BufferCopyLocation{Buffer: out}, pitch)
	if err := d.Queue().Submit(mustFinish(t, b)); err != nil {
		t.Fatalf("Submit() = %v", err)
	}
	got := make([]byte, out.Size())
	if err := nb.ReadBuffer(out, 0, got); err != nil {
		t.Fatalf("ReadBuffer() = %v", err)
	}
	return got
}

func TestNullBackend_TextureRoundTrip(t *testing.T) {
	d, nb := newTestDevice(t)
	staging := mustBuffer(t, d, "staging", 512, track.BufferUsageTransferSrc|track.BufferUsageTransferDst)
	a := mustTexture(t, d, "a", 8, 8, track.TextureUsageTransferSrc|track.TextureUsageTransferDst)
	c := mustTexture(t, d, "c", 8, 8, track.TextureUsageTransferSrc|track.TextureUsageTransferDst)

	// Two rows of 4 texels at pitch 256.
	upload := make([]byte, 512)
	for i := range 16 {
		upload[i] = byte(i + 1)
		upload[256+i] = byte(i + 101)
	}
	if err := staging.SetSubData(0, upload); err != nil {
		t.Fatalf("SetSubData() = %v", err)
	}

	b := d.CreateCommandBufferBuilder("upload")
	b.CopyBufferToTexture(BufferCopyLocation{Buffer: staging}, 256,
		TextureCopyLocation{Texture: a, Origin: gputypes.Origin3D{X: 2, Y: 3}}, extent(4, 2))
	b.CopyTextureToTexture(TextureCopyLocation{Texture: a, Origin: gputypes.Origin3D{X: 2, Y: 3}},
		TextureCopyLocation{Texture: c}, extent(4, 2))
	if err := d.Queue().Submit(mustFinish(t, b)); err != nil {
		t.Fatalf("Submit() = %v", err)
	}

	got := readBack(t, d, nb, TextureCopyLocation{Texture: c}, extent(4, 2))
	if !bytes.Equal(got[:16], upload[:16]) || !bytes.Equal(got[256:272], upload[256:272]) {
		t.Errorf("rows = %v / %v, want %v / %v", got[:16], got[256:272], upload[:16], upload[256:272])
	}

	// The neighbouring texel in a stays zero.
	around := readBack(t, d, nb, TextureCopyLocation{Texture: a, Origin: gputypes.Origin3D{X: 1, Y: 3}}, extent(1, 1))
	if !bytes.Equal(around[:4], make([]byte, 4)) {
		t.Errorf("texel left of the upload = %v, want zero", around[:4])
	}
}

func TestNullBackend_MipLevels(t *testing.T) {
	d, nb := newTestDevice(t)
	tex, err := d.CreateTexture(TextureDescriptor{
		Label: "mipped", Width: 8, Height: 8, MipLevelCount: 3,
		Format: gputypes.TextureFormatRGBA8Unorm,
		Usage:  track.TextureUsageTransferSrc | track.TextureUsageTransferDst,
	})
	if err != nil {
		t.Fatalf("CreateTexture() = %v", err)
	}
	staging := mustBuffer(t, d, "staging", 256*2, track.BufferUsageTransferSrc|track.BufferUsageTransferDst)
	data := make([]byte, 512)
	for i := range 8 {
		data[i] = 0xAA
		data[256+i] = 0xBB
	}
	if err := staging.SetSubData(0, data); err != nil {
		t.Fatalf("SetSubData() = %v", err)
	}

	b := d.CreateCommandBufferBuilder("mip 2")
	b.CopyBufferToTexture(BufferCopyLocation{Buffer: staging}, 256, TextureCopyLocation{Texture: tex, MipLevel: 2}, extent(2, 2))
	if err := d.Queue().Submit(mustFinish(t, b)); err != nil {
		t.Fatalf("Submit() = %v", err)
	}

	got := readBack(t, d, nb, TextureCopyLocation{Texture: tex, MipLevel: 2}, extent(2, 2))
	if !bytes.Equal(got[:8], data[:8]) || !bytes.Equal(got[256:264], data[256:264]) {
		t.Errorf("mip 2 = %v / %v", got[:8], got[256:264])
	}
	level0 := readBack(t, d, nb, TextureCopyLocation{Texture: tex}, extent(2, 1))
	if !bytes.Equal(level0[:8], make([]byte, 8)) {
		t.Errorf("mip 0 = %v, want zero", level0[:8])
	}
}

func TestNullBackend_ReleaseAndTick(t *testing.T) {
	nb := NewNullBackend()
	nb.Release("a", 1)
	nb.Release("b", 2)
	nb.Release("c", 2)

	nb.Tick(0)
	if nb.Freed() != 0 || nb.Pending() != 3 {
		t.Fatalf("Tick(0): freed %d pending %d", nb.Freed(), nb.Pending())
	}
	nb.Tick(1)
	if nb.Freed() != 1 || nb.Pending() != 2 {
		t.Errorf("Tick(1): freed %d pending %d, want 1, 2", nb.Freed(), nb.Pending())
	}
	nb.Destroy()
	if nb.Freed() != 3 || nb.Pending() != 0 {
		t.Errorf("Destroy: freed %d pending %d, want 3, 0", nb.Freed(), nb.Pending())
	}
}
