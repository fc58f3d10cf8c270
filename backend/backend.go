package backend

import (
	"errors"

	"github.com/gogpu/gpuval"
)

// Backend name constants.
const (
	// BackendNull is the name of the in-memory backend from package gpuval.
	BackendNull = gpuval.NullBackendName
	// BackendNoop is the name of the explicit-barrier backend running on the
	// hal noop device (package halbackend).
	BackendNoop = "noop"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not available.
	ErrBackendNotAvailable = errors.New("backend: not available")
)

// Factory creates a new backend instance. A factory returns nil when the
// backend cannot run on this machine.
type Factory func() gpuval.Backend
