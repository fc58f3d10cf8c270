package backend

import "github.com/gogpu/gpuval"

// init registers the null backend on package import.
func init() {
	Register(BackendNull, func() gpuval.Backend {
		return gpuval.NewNullBackend()
	})
}

// NewNullBackend creates a backend that keeps buffers and textures in
// memory and completes every submission as soon as it is executed.
func NewNullBackend() *gpuval.NullBackend {
	return gpuval.NewNullBackend()
}
