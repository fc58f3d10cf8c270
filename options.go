package gpuval

import (
	"time"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/gpuval/internal/shadercache"
	"github.com/gogpu/gpuval/serial"
)

// Default device limits.
const (
	// DefaultMaxPushConstants is the number of 32-bit push constant words a
	// command buffer may set.
	DefaultMaxPushConstants = 32

	// RowPitchAlignment is the alignment of the row pitch of buffer/texture copies.
	RowPitchAlignment = 256
)

// DeviceOption configures a Device during creation.
//
// Example:
//
//	dev, err := gpuval.NewDevice(
//		gpuval.WithBackend(b),
//		gpuval.WithErrorCallback(func(err *gpuval.Error) { log.Print(err) }),
//	)
type DeviceOption func(*deviceOptions)

type deviceOptions struct {
	backend          Backend
	onError          func(*Error)
	maxBindGroups    uint32
	maxVertexBuffers uint32
	maxPushConstants uint32
	pollInterval     time.Duration
	shaderCacheSize  int
}

func defaultDeviceOptions() deviceOptions {
	limits := gputypes.DefaultLimits()
	return deviceOptions{
		maxBindGroups:    limits.MaxBindGroups,
		maxVertexBuffers: limits.MaxVertexBuffers,
		maxPushConstants: DefaultMaxPushConstants,
		pollInterval:     serial.DefaultPollInterval,
		shaderCacheSize:  shadercache.DefaultCapacity,
	}
}

// WithBackend sets the backend that creates native resources and executes
// command buffers. Without it the device validates only and every
// submission completes immediately.
func WithBackend(b Backend) DeviceOption {
	return func(o *deviceOptions) {
		o.backend = b
	}
}

// WithErrorCallback sets the function receiving errors that no error scope
// captured. By default they are logged at Warn level.
func WithErrorCallback(fn func(*Error)) DeviceOption {
	return func(o *deviceOptions) {
		o.onError = fn
	}
}

// WithLimits takes the bind group and vertex buffer limits from l.
func WithLimits(l gputypes.Limits) DeviceOption {
	return func(o *deviceOptions) {
		if l.MaxBindGroups > 0 {
			o.maxBindGroups = l.MaxBindGroups
		}
		if l.MaxVertexBuffers > 0 {
			o.maxVertexBuffers = l.MaxVertexBuffers
		}
	}
}

// WithMaxBindGroups sets the number of bind group slots.
func WithMaxBindGroups(n uint32) DeviceOption {
	return func(o *deviceOptions) {
		o.maxBindGroups = n
	}
}

// WithMaxPushConstants sets the number of push constant words.
func WithMaxPushConstants(n uint32) DeviceOption {
	return func(o *deviceOptions) {
		o.maxPushConstants = n
	}
}

// WithPollInterval sets how often WaitForSerial polls the backend fence.
func WithPollInterval(d time.Duration) DeviceOption {
	return func(o *deviceOptions) {
		o.pollInterval = d
	}
}

// WithShaderCacheSize sets how many WGSL sources the device keeps compiled.
// Zero disables the cache.
func WithShaderCacheSize(n int) DeviceOption {
	return func(o *deviceOptions) {
		o.shaderCacheSize = max(n, 0)
	}
}
