// Package track holds the usage capability sets of buffers and textures and
// the per-resource UsageTracker that enforces the single-writer rule:
// a resource may be used in any number of read-only ways at once, or in
// exactly one way that may write, never both.
package track

import (
	"math/bits"
	"strings"

	"github.com/gogpu/gputypes"
)

// BufferUsage is a set of buffer usage bits.
type BufferUsage gputypes.BufferUsage

// Buffer usage bits.
const (
	BufferUsageNone        = BufferUsage(gputypes.BufferUsageNone)
	BufferUsageMapRead     = BufferUsage(gputypes.BufferUsageMapRead)
	BufferUsageMapWrite    = BufferUsage(gputypes.BufferUsageMapWrite)
	BufferUsageTransferSrc = BufferUsage(gputypes.BufferUsageCopySrc)
	BufferUsageTransferDst = BufferUsage(gputypes.BufferUsageCopyDst)
	BufferUsageIndex       = BufferUsage(gputypes.BufferUsageIndex)
	BufferUsageVertex      = BufferUsage(gputypes.BufferUsageVertex)
	BufferUsageUniform     = BufferUsage(gputypes.BufferUsageUniform)
	BufferUsageStorage     = BufferUsage(gputypes.BufferUsageStorage)
	BufferUsageIndirect    = BufferUsage(gputypes.BufferUsageIndirect)
)

// BufferUsageReadOnly is the union of every buffer usage that never writes.
const BufferUsageReadOnly = BufferUsageMapRead | BufferUsageTransferSrc |
	BufferUsageIndex | BufferUsageVertex | BufferUsageUniform | BufferUsageIndirect

// BufferUsageAll is the union of every buffer usage bit.
const BufferUsageAll = BufferUsageReadOnly | BufferUsageMapWrite |
	BufferUsageTransferDst | BufferUsageStorage

// IsReadOnly reports whether u contains only read-only bits.
// The empty set is read-only.
func (u BufferUsage) IsReadOnly() bool { return u&^BufferUsageReadOnly == 0 }

// HasSingleBit reports whether exactly one bit is set.
func (u BufferUsage) HasSingleBit() bool { return bits.OnesCount64(uint64(u)) == 1 }

// Contains reports whether every bit of bit is set in u.
func (u BufferUsage) Contains(bit BufferUsage) bool { return u&bit == bit }

// IsSubsetOf reports whether u only uses bits present in allowed.
func (u BufferUsage) IsSubsetOf(allowed BufferUsage) bool { return u&^allowed == 0 }

// GPU returns u as the gputypes flag set.
func (u BufferUsage) GPU() gputypes.BufferUsage { return gputypes.BufferUsage(u) }

var bufferUsageNames = []struct {
	bit  BufferUsage
	name string
}{
	{BufferUsageMapRead, "MapRead"},
	{BufferUsageMapWrite, "MapWrite"},
	{BufferUsageTransferSrc, "TransferSrc"},
	{BufferUsageTransferDst, "TransferDst"},
	{BufferUsageIndex, "Index"},
	{BufferUsageVertex, "Vertex"},
	{BufferUsageUniform, "Uniform"},
	{BufferUsageStorage, "Storage"},
	{BufferUsageIndirect, "Indirect"},
}

// String returns the set bits joined with "|", or "None".
func (u BufferUsage) String() string {
	if u == BufferUsageNone {
		return "None"
	}
	var names []string
	for _, n := range bufferUsageNames {
		if u&n.bit != 0 {
			names = append(names, n.name)
		}
	}
	if rest := u &^ BufferUsageAll; rest != 0 {
		names = append(names, "Unknown")
	}
	return strings.Join(names, "|")
}

// TextureUsage is a set of texture usage bits.
type TextureUsage gputypes.TextureUsage

// Texture usage bits.
const (
	TextureUsageNone             = TextureUsage(gputypes.TextureUsageNone)
	TextureUsageTransferSrc      = TextureUsage(gputypes.TextureUsageCopySrc)
	TextureUsageTransferDst      = TextureUsage(gputypes.TextureUsageCopyDst)
	TextureUsageSampled          = TextureUsage(gputypes.TextureUsageTextureBinding)
	TextureUsageStorage          = TextureUsage(gputypes.TextureUsageStorageBinding)
	TextureUsageOutputAttachment = TextureUsage(gputypes.TextureUsageRenderAttachment)
)

// TextureUsageReadOnly is the union of every texture usage that never writes.
// Sampled is the only one of them that can be bound inside a pass.
const TextureUsageReadOnly = TextureUsageTransferSrc | TextureUsageSampled

// TextureUsageAll is the union of every texture usage bit.
const TextureUsageAll = TextureUsageReadOnly | TextureUsageTransferDst |
	TextureUsageStorage | TextureUsageOutputAttachment

// IsReadOnly reports whether u contains only read-only bits.
// The empty set is read-only.
func (u TextureUsage) IsReadOnly() bool { return u&^TextureUsageReadOnly == 0 }

// HasSingleBit reports whether exactly one bit is set.
func (u TextureUsage) HasSingleBit() bool { return bits.OnesCount64(uint64(u)) == 1 }

// Contains reports whether every bit of bit is set in u.
func (u TextureUsage) Contains(bit TextureUsage) bool { return u&bit == bit }

// IsSubsetOf reports whether u only uses bits present in allowed.
func (u TextureUsage) IsSubsetOf(allowed TextureUsage) bool { return u&^allowed == 0 }

// GPU returns u as the gputypes flag set.
func (u TextureUsage) GPU() gputypes.TextureUsage { return gputypes.TextureUsage(u) }

var textureUsageNames = []struct {
	bit  TextureUsage
	name string
}{
	{TextureUsageTransferSrc, "TransferSrc"},
	{TextureUsageTransferDst, "TransferDst"},
	{TextureUsageSampled, "Sampled"},
	{TextureUsageStorage, "Storage"},
	{TextureUsageOutputAttachment, "OutputAttachment"},
}

// String returns the set bits joined with "|", or "None".
func (u TextureUsage) String() string {
	if u == TextureUsageNone {
		return "None"
	}
	var names []string
	for _, n := range textureUsageNames {
		if u&n.bit != 0 {
			names = append(names, n.name)
		}
	}
	if rest := u &^ TextureUsageAll; rest != 0 {
		names = append(names, "Unknown")
	}
	return strings.Join(names, "|")
}
