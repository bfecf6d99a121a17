package device

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrAllocation        = errors.New("device memory exhausted")
	ErrInvalidAllocation = errors.New("invalid or already freed allocation")
	ErrInvalidSize       = errors.New("invalid allocation size")
	ErrClosed            = errors.New("device closed")
	ErrUnavailable       = errors.New("device not available")
)

// AllocationError reports a failed allocation with the device's memory state.
type AllocationError struct {
	Device    string
	Requested int
	InUse     int64
	Capacity  int64
}

// Error implements the error interface.
func (e *AllocationError) Error() string {
	return fmt.Sprintf("%s: %s: requested %d bytes, %d of %d bytes in use",
		e.Device, ErrAllocation, e.Requested, e.InUse, e.Capacity)
}

// Is makes errors.Is(err, ErrAllocation) succeed.
func (e *AllocationError) Is(target error) bool {
	return target == ErrAllocation
}
