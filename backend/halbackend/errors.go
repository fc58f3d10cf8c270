package halbackend

import "errors"

var (
	// ErrForeignNative is returned when an object carries a native handle
	// that this backend did not create.
	ErrForeignNative = errors.New("halbackend: object was not created by this backend")

	// ErrUnexpectedCommand is returned when a command appears where the
	// validated log cannot hold it.
	ErrUnexpectedCommand = errors.New("halbackend: unexpected command")

	// ErrNoAdapter is returned when the hal instance exposes no adapter.
	ErrNoAdapter = errors.New("halbackend: no adapter available")
)
