package gpuval

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gogpu/wgpu/hal"
)

// nopHandler is a slog.Handler that silently discards all log records.
// The Enabled method returns false so the caller skips message formatting
// entirely, making disabled logging effectively zero-cost.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// newNopLogger creates a logger that silently discards all output.
func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	l := newNopLogger()
	loggerPtr.Store(l)
}

// SetLogger configures the logger for gpuval, its backends and the wgpu HAL
// layer underneath them. By default nothing is logged.
//
// SetLogger is safe for concurrent use: it stores the new logger atomically.
// Pass nil to disable logging (restore default silent behavior).
//
// Log levels used by gpuval:
//   - [slog.LevelDebug]: command buffer diagnostics (pass count, serials, reclamation)
//   - [slog.LevelInfo]: lifecycle events (device created, backend selected)
//   - [slog.LevelWarn]: uncaptured device errors, resource release failures
//
// Example:
//
//	gpuval.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
	hal.SetLogger(l)

	liveBackendsMu.Lock()
	defer liveBackendsMu.Unlock()
	for b := range liveBackends {
		propagateLogger(b, l)
	}
}

// Logger returns the current logger used by gpuval.
// Backend packages call this to share the same logger configuration
// without introducing import cycles.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// loggerSetter is implemented by backends that accept a logger.
type loggerSetter interface {
	SetLogger(*slog.Logger)
}

// liveBackends holds the backends of devices that are not destroyed yet, so
// SetLogger reaches them.
var (
	liveBackendsMu sync.Mutex
	liveBackends   = make(map[Backend]struct{})
)

// trackBackend hands the current logger to b and keeps it for later
// SetLogger calls.
func trackBackend(b Backend) {
	liveBackendsMu.Lock()
	defer liveBackendsMu.Unlock()
	liveBackends[b] = struct{}{}
	propagateLogger(b, Logger())
}

func untrackBackend(b Backend) {
	liveBackendsMu.Lock()
	defer liveBackendsMu.Unlock()
	delete(liveBackends, b)
}

// propagateLogger passes the logger to a backend if it implements
// the loggerSetter interface.
func propagateLogger(b Backend, l *slog.Logger) {
	if ls, ok := b.(loggerSetter); ok {
		ls.SetLogger(l)
	}
}
