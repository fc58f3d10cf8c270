package gpuval

import (
	"testing"
	"time"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gpuval/serial"
)

// TestNewDeviceDefault tests that NewDevice uses the null backend and the
// default limits.
func TestNewDeviceDefault(t *testing.T) {
	d, err := NewDevice()
	if err != nil {
		t.Fatalf("NewDevice() = %v", err)
	}
	defer d.Destroy()

	if _, ok := d.Backend().(*NullBackend); !ok {
		t.Errorf("Backend() = %T, want *NullBackend", d.Backend())
	}
	limits := gputypes.DefaultLimits()
	if d.MaxBindGroups() != limits.MaxBindGroups {
		t.Errorf("MaxBindGroups() = %d, want %d", d.MaxBindGroups(), limits.MaxBindGroups)
	}
	if d.MaxVertexBuffers() != limits.MaxVertexBuffers {
		t.Errorf("MaxVertexBuffers() = %d, want %d", d.MaxVertexBuffers(), limits.MaxVertexBuffers)
	}
	if d.MaxPushConstants() != DefaultMaxPushConstants {
		t.Errorf("MaxPushConstants() = %d, want %d", d.MaxPushConstants(), DefaultMaxPushConstants)
	}
	if d.opts.pollInterval != serial.DefaultPollInterval {
		t.Errorf("poll interval = %v, want %v", d.opts.pollInterval, serial.DefaultPollInterval)
	}
}

// TestNewDeviceWithBackend tests dependency injection of a custom backend.
func TestNewDeviceWithBackend(t *testing.T) {
	nb := NewNullBackend()
	d, err := NewDevice(WithBackend(nb))
	if err != nil {
		t.Fatalf("NewDevice() = %v", err)
	}
	defer d.Destroy()

	if d.Backend() != nb {
		t.Error("Backend() is not the injected backend")
	}
}

func TestDeviceLimitOptions(t *testing.T) {
	tests := []struct {
		name         string
		opts         []DeviceOption
		wantGroups   uint32
		wantVertex   uint32
		wantPushWord uint32
	}{
		{
			name:         "max bind groups",
			opts:         []DeviceOption{WithMaxBindGroups(2)},
			wantGroups:   2,
			wantVertex:   gputypes.DefaultLimits().MaxVertexBuffers,
			wantPushWord: DefaultMaxPushConstants,
		},
		{
			name:         "max push constants",
			opts:         []DeviceOption{WithMaxPushConstants(4)},
			wantGroups:   gputypes.DefaultLimits().MaxBindGroups,
			wantVertex:   gputypes.DefaultLimits().MaxVertexBuffers,
			wantPushWord: 4,
		},
		{
			name:         "limits",
			opts:         []DeviceOption{WithLimits(gputypes.Limits{MaxBindGroups: 3, MaxVertexBuffers: 5})},
			wantGroups:   3,
			wantVertex:   5,
			wantPushWord: DefaultMaxPushConstants,
		},
		{
			name:         "zero limits keep defaults",
			opts:         []DeviceOption{WithLimits(gputypes.Limits{})},
			wantGroups:   gputypes.DefaultLimits().MaxBindGroups,
			wantVertex:   gputypes.DefaultLimits().MaxVertexBuffers,
			wantPushWord: DefaultMaxPushConstants,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewDevice(tt.opts...)
			if err != nil {
				t.Fatalf("NewDevice() = %v", err)
			}
			defer d.Destroy()

			if got := d.MaxBindGroups(); got != tt.wantGroups {
				t.Errorf("MaxBindGroups() = %d, want %d", got, tt.wantGroups)
			}
			if got := d.MaxVertexBuffers(); got != tt.wantVertex {
				t.Errorf("MaxVertexBuffers() = %d, want %d", got, tt.wantVertex)
			}
			if got := d.MaxPushConstants(); got != tt.wantPushWord {
				t.Errorf("MaxPushConstants() = %d, want %d", got, tt.wantPushWord)
			}
		})
	}
}

func TestNewDeviceRejectsZeroBindGroups(t *testing.T) {
	if _, err := NewDevice(WithMaxBindGroups(0)); err == nil {
		t.Error("NewDevice(WithMaxBindGroups(0)) succeeded, want error")
	}
}

func TestWithPollInterval(t *testing.T) {
	d, err := NewDevice(WithPollInterval(time.Millisecond))
	if err != nil {
		t.Fatalf("NewDevice() = %v", err)
	}
	defer d.Destroy()

	if d.opts.pollInterval != time.Millisecond {
		t.Errorf("poll interval = %v, want 1ms", d.opts.pollInterval)
	}
}

func TestWithErrorCallback(t *testing.T) {
	var got []*Error
	d, err := NewDevice(WithErrorCallback(func(e *Error) { got = append(got, e) }))
	if err != nil {
		t.Fatalf("NewDevice() = %v", err)
	}
	defer d.Destroy()

	if _, err := d.CreateBuffer(BufferDescriptor{Label: "empty"}); err == nil {
		t.Fatal("CreateBuffer(size 0) succeeded")
	}
	if len(got) != 1 {
		t.Fatalf("callback called %d times, want 1", len(got))
	}
	if got[0].Kind != ErrorKindValidation || got[0].Op != "CreateBuffer" {
		t.Errorf("callback got %v (%v), want a CreateBuffer validation error", got[0], got[0].Kind)
	}
}

func TestWithShaderCacheSize(t *testing.T) {
	tests := []struct {
		name      string
		opts      []DeviceOption
		wantCache bool
	}{
		{"default", nil, true},
		{"sized", []DeviceOption{WithShaderCacheSize(8)}, true},
		{"disabled", []DeviceOption{WithShaderCacheSize(0)}, false},
		{"negative", []DeviceOption{WithShaderCacheSize(-1)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewDevice(tt.opts...)
			if err != nil {
				t.Fatalf("NewDevice() = %v", err)
			}
			defer d.Destroy()
			if got := d.shaders != nil; got != tt.wantCache {
				t.Errorf("cache enabled = %v, want %v", got, tt.wantCache)
			}
		})
	}
}
