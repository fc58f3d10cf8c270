package track

import "testing"

func TestBufferUsageShape(t *testing.T) {
	tests := []struct {
		name     string
		usage    BufferUsage
		readOnly bool
		single   bool
	}{
		{"none", BufferUsageNone, true, false},
		{"vertex", BufferUsageVertex, true, true},
		{"vertex+index", BufferUsageVertex | BufferUsageIndex, true, false},
		{"uniform+transfer src", BufferUsageUniform | BufferUsageTransferSrc, true, false},
		{"indirect", BufferUsageIndirect, true, true},
		{"storage", BufferUsageStorage, false, true},
		{"transfer dst", BufferUsageTransferDst, false, true},
		{"map write", BufferUsageMapWrite, false, true},
		{"storage+uniform", BufferUsageStorage | BufferUsageUniform, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.usage.IsReadOnly(); got != tt.readOnly {
				t.Errorf("IsReadOnly() = %v, want %v", got, tt.readOnly)
			}
			if got := tt.usage.HasSingleBit(); got != tt.single {
				t.Errorf("HasSingleBit() = %v, want %v", got, tt.single)
			}
		})
	}
}

func TestTextureUsageShape(t *testing.T) {
	tests := []struct {
		name     string
		usage    TextureUsage
		readOnly bool
		single   bool
	}{
		{"none", TextureUsageNone, true, false},
		{"sampled", TextureUsageSampled, true, true},
		{"sampled+transfer src", TextureUsageSampled | TextureUsageTransferSrc, true, false},
		{"storage", TextureUsageStorage, false, true},
		{"output attachment", TextureUsageOutputAttachment, false, true},
		{"sampled+output", TextureUsageSampled | TextureUsageOutputAttachment, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.usage.IsReadOnly(); got != tt.readOnly {
				t.Errorf("IsReadOnly() = %v, want %v", got, tt.readOnly)
			}
			if got := tt.usage.HasSingleBit(); got != tt.single {
				t.Errorf("HasSingleBit() = %v, want %v", got, tt.single)
			}
		})
	}
}

func TestUsageSetOps(t *testing.T) {
	allowed := BufferUsageVertex | BufferUsageTransferDst
	if !BufferUsageVertex.IsSubsetOf(allowed) {
		t.Error("Vertex should be a subset of Vertex|TransferDst")
	}
	if (BufferUsageVertex | BufferUsageStorage).IsSubsetOf(allowed) {
		t.Error("Vertex|Storage should not be a subset of Vertex|TransferDst")
	}
	if !allowed.Contains(BufferUsageTransferDst) {
		t.Error("Contains(TransferDst) = false")
	}
	if TextureUsageSampled.Contains(TextureUsageStorage) {
		t.Error("Sampled.Contains(Storage) = true")
	}
}

func TestUsageString(t *testing.T) {
	tests := []struct {
		got  string
		want string
	}{
		{BufferUsageNone.String(), "None"},
		{BufferUsageStorage.String(), "Storage"},
		{(BufferUsageVertex | BufferUsageIndex).String(), "Index|Vertex"},
		{TextureUsageNone.String(), "None"},
		{(TextureUsageSampled | TextureUsageOutputAttachment).String(), "Sampled|OutputAttachment"},
		{BufferUsage(1 << 40).String(), "Unknown"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("String() = %q, want %q", tt.got, tt.want)
		}
	}
}
