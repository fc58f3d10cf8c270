package track

import (
	"errors"
	"fmt"
)

var (
	// ErrFrozen is returned when changing the usage of a frozen resource.
	ErrFrozen = errors.New("track: resource usage is frozen")

	// ErrUsageNotAllowed is returned for a usage outside the allowed set, or
	// one that combines a writable usage with any other usage.
	ErrUsageNotAllowed = errors.New("track: usage not allowed")
)

// Usage is implemented by BufferUsage and TextureUsage.
type Usage interface {
	~uint64
	fmt.Stringer
	IsReadOnly() bool
	HasSingleBit() bool
}

// UsageTracker records the allowed and current usage of one resource.
//
// The current usage is always a subset of the allowed usage. Once frozen,
// both are fixed for the rest of the resource's life.
//
// UsageTracker is not safe for concurrent use.
type UsageTracker[U Usage] struct {
	allowed U
	current U
	frozen  bool
}

// NewUsageTracker returns a tracker allowing allowed with no current usage.
func NewUsageTracker[U Usage](allowed U) UsageTracker[U] {
	return UsageTracker[U]{allowed: allowed}
}

// AllowedUsage returns the capability set.
func (t *UsageTracker[U]) AllowedUsage() U { return t.allowed }

// Usage returns the current usage.
func (t *UsageTracker[U]) Usage() U { return t.current }

// IsFrozen reports whether FreezeUsage has succeeded.
func (t *UsageTracker[U]) IsFrozen() bool { return t.frozen }

// HasUsage reports whether every bit of u is in the allowed set.
func (t *UsageTracker[U]) HasUsage(u U) bool { return u&^t.allowed == 0 }

// IsTransitionPossible reports whether the resource may move to usage u.
// It is false for a frozen resource. Otherwise u must be a subset of the
// allowed usage and be either read-only or a single bit.
func (t *UsageTracker[U]) IsTransitionPossible(u U) bool {
	if t.frozen {
		return false
	}
	return IsUsagePossible(t.allowed, u)
}

// IsUsagePossible reports whether u is a subset of allowed and is either
// read-only or a single bit.
func IsUsagePossible[U Usage](allowed, u U) bool {
	if u&^allowed != 0 {
		return false
	}
	return u.IsReadOnly() || u.HasSingleBit()
}

// TransitionUsage sets the current usage to u.
// On failure the tracker is unchanged.
func (t *UsageTracker[U]) TransitionUsage(u U) error {
	if err := t.checkTransition(u); err != nil {
		return err
	}
	t.current = u
	return nil
}

// FreezeUsage narrows the allowed usage to u and makes it permanent.
// It fails exactly when TransitionUsage(u) would.
func (t *UsageTracker[U]) FreezeUsage(u U) error {
	if err := t.checkTransition(u); err != nil {
		return err
	}
	t.allowed = u
	t.current = u
	t.frozen = true
	return nil
}

// ClearUsage resets the current usage to none.
func (t *UsageTracker[U]) ClearUsage() error {
	if t.frozen {
		return ErrFrozen
	}
	var none U
	t.current = none
	return nil
}

func (t *UsageTracker[U]) checkTransition(u U) error {
	if t.frozen {
		return ErrFrozen
	}
	if !IsUsagePossible(t.allowed, u) {
		return fmt.Errorf("%w: %s (allowed %s)", ErrUsageNotAllowed, u, t.allowed)
	}
	return nil
}
