// Package backend provides the named registry of gpuval backends.
//
// Backends register a factory under a name from an init() function and are
// selected at runtime. The null backend is registered on import:
//
//	import _ "github.com/gogpu/gpuval/backend"
//
// The explicit-barrier backend over the hal noop device registers itself
// when its package is imported:
//
//	import _ "github.com/gogpu/gpuval/backend/halbackend"
//
// # Backend Selection
//
// Use Default() to get the best available backend, or Get() to request
// a specific backend by name:
//
//	b := backend.Default()
//	b := backend.Get("null")
//
// # Usage with Device
//
// InitDefault and Open create a device on a registered backend:
//
//	dev, err := backend.InitDefault(gpuval.WithErrorCallback(report))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer dev.Destroy()
package backend
