package backend

import (
	"fmt"
	"slices"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/gpuval"
)

// Priority order for backend selection (first available wins).
// The hal backend records real barriers; null is the fallback.
var backendPriority = []string{BackendNoop, BackendNull}

var registry = gpucontext.NewRegistry[gpuval.Backend](
	gpucontext.WithPriority(backendPriority...),
)

// Register registers a backend factory with the given name.
// This is typically called from init() functions in backend packages.
// If a backend with the same name is already registered, it will be replaced.
func Register(name string, factory Factory) {
	registry.Register(name, factory)
}

// Unregister removes a backend from the registry.
// This is useful for testing.
func Unregister(name string) {
	registry.Unregister(name)
}

// Available returns the registered backend names, sorted.
func Available() []string {
	names := registry.Available()
	slices.Sort(names)
	return names
}

// IsRegistered checks if a backend with the given name is registered.
func IsRegistered(name string) bool {
	return registry.Has(name)
}

// Get returns a backend instance by name.
// Returns nil if the backend is not registered or cannot run.
func Get(name string) gpuval.Backend {
	return registry.Get(name)
}

// Default returns the best available backend based on priority.
// Returns nil if no registered backend can run.
func Default() gpuval.Backend {
	for _, name := range backendPriority {
		if b := registry.Get(name); b != nil {
			gpuval.Logger().Info("backend: selected", "backend", name)
			return b
		}
	}

	// Fallback: first registered backend that can run
	for _, name := range Available() {
		if b := registry.Get(name); b != nil {
			gpuval.Logger().Info("backend: selected", "backend", name)
			return b
		}
	}
	return nil
}

// DefaultName returns the name of the highest priority registered backend,
// or "" if none is registered.
func DefaultName() string {
	return registry.BestName()
}

// MustDefault returns the default backend or panics.
func MustDefault() gpuval.Backend {
	b := Default()
	if b == nil {
		panic("backend: no backend available")
	}
	return b
}

// InitDefault creates a device on the default backend. The selected backend
// overrides any WithBackend in opts.
func InitDefault(opts ...gpuval.DeviceOption) (*gpuval.Device, error) {
	b := Default()
	if b == nil {
		return nil, ErrBackendNotAvailable
	}
	return gpuval.NewDevice(append(opts, gpuval.WithBackend(b))...)
}

// Open creates a device on the named backend.
func Open(name string, opts ...gpuval.DeviceOption) (*gpuval.Device, error) {
	b := Get(name)
	if b == nil {
		return nil, fmt.Errorf("%w: %q", ErrBackendNotAvailable, name)
	}
	return gpuval.NewDevice(append(opts, gpuval.WithBackend(b))...)
}
