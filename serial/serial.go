// Package serial implements the submission timeline shared by every backend.
//
// Each submission to a device is identified by a [Serial]. Work that the GPU
// may still be reading (native allocations, command encoders, staging memory,
// pending map callbacks) is tagged with the serial of its last submission and
// parked in a [Queue]. When the backend's fence reports that a serial has
// completed, [Timeline.Tick] hands that serial to every registered
// [Reclaimer], which drains its queues up to it.
//
// Serials start at 1 for the first submission; 0 means "nothing completed".
package serial

import "math"

// Serial identifies one submission generation on a device timeline.
// Serials never decrease.
type Serial uint64

// Max compares greater than or equal to every serial. Draining a queue up to
// Max releases everything in it.
const Max Serial = math.MaxUint64
