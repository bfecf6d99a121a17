package tensor

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors.
var (
	ErrShapeMismatch    = errors.New("shapes not compatible for broadcasting")
	ErrInvalidShape     = errors.New("invalid shape")
	ErrInvalidStrides   = errors.New("invalid strides")
	ErrDTypeMismatch    = errors.New("data type mismatch")
	ErrNotContiguous    = errors.New("array is not contiguous")
	ErrScalarConversion = errors.New("scalar cannot be converted")
)

// ShapeMismatchError reports that no broadcast shape exists for a set of shapes.
type ShapeMismatchError struct {
	Shapes []Shape // All shapes that were broadcast together
	Axis   int     // Output axis where the conflict was found
	Dims   [2]int  // Conflicting dimension sizes
}

// Error implements the error interface.
func (e *ShapeMismatchError) Error() string {
	parts := make([]string, len(e.Shapes))
	for i, s := range e.Shapes {
		parts[i] = s.String()
	}
	return fmt.Sprintf("%s: %s (axis %d: %d vs %d)",
		ErrShapeMismatch, strings.Join(parts, " vs "), e.Axis, e.Dims[0], e.Dims[1])
}

// Is makes errors.Is(err, ErrShapeMismatch) succeed.
func (e *ShapeMismatchError) Is(target error) bool {
	return target == ErrShapeMismatch
}
