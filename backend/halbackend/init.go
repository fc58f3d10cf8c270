package halbackend

import (
	"github.com/gogpu/gpuval"
	"github.com/gogpu/gpuval/backend"
)

// init registers the noop hal backend on package import.
func init() {
	backend.Register(backend.BackendNoop, func() gpuval.Backend {
		b, err := OpenNoop()
		if err != nil {
			gpuval.Logger().Warn("halbackend: noop device unavailable", "err", err)
			return nil
		}
		return b
	})
}
