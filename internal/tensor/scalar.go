package tensor

import (
	"fmt"
	"math"
)

// Scalar is a single typed value that broadcasts against arrays as shape ().
//
// Scalars are weakly typed during kernel specialization: a scalar may be
// converted to the element type a signature requires, see ConvertibleTo.
type Scalar struct {
	dtype DataType
	f     float64
	i     int64
	b     bool
}

// ScalarOf creates a Scalar from a Go value.
func ScalarOf[T DType](v T) Scalar {
	dt := TypeOf[T]()
	s := Scalar{dtype: dt}
	switch x := any(v).(type) {
	case float32:
		s.f = float64(x)
	case float64:
		s.f = x
	case int32:
		s.i = int64(x)
	case int64:
		s.i = x
	case uint8:
		s.i = int64(x)
	case bool:
		s.b = x
	}
	return s
}

// DType returns the scalar's own element type.
func (s Scalar) DType() DataType {
	return s.dtype
}

// Shape returns the empty shape.
func (s Scalar) Shape() Shape {
	return Shape{}
}

// String formats the value with its type.
func (s Scalar) String() string {
	switch {
	case s.dtype.IsFloat():
		return fmt.Sprintf("%v(%s)", s.f, s.dtype)
	case s.dtype == Bool:
		return fmt.Sprintf("%v(%s)", s.b, s.dtype)
	default:
		return fmt.Sprintf("%d(%s)", s.i, s.dtype)
	}
}

// ConvertibleTo reports whether the scalar can be represented as dt
// without changing its kind: integers may become floats, integral floats may
// become integers in range, bools stay bools.
func (s Scalar) ConvertibleTo(dt DataType) bool {
	if s.dtype == dt {
		return true
	}
	if s.dtype == Bool || dt == Bool {
		return false
	}
	if dt.IsFloat() {
		return true
	}
	if s.dtype.IsFloat() && (math.Trunc(s.f) != s.f || math.Abs(s.f) >= 1<<63) {
		return false
	}
	v := s.asInt()
	switch dt {
	case Int32:
		return v >= math.MinInt32 && v <= math.MaxInt32
	case Uint8:
		return v >= 0 && v <= math.MaxUint8
	default:
		return true
	}
}

// Bytes encodes the scalar as one element of type dt in the native layout
// used by host array storage.
func (s Scalar) Bytes(dt DataType) ([]byte, error) {
	if !s.ConvertibleTo(dt) {
		return nil, fmt.Errorf("%w: %s to %s", ErrScalarConversion, s, dt)
	}
	out := make([]byte, dt.Size())
	switch dt {
	case Float32:
		view[float32](out)[0] = float32(s.asFloat())
	case Float64:
		view[float64](out)[0] = s.asFloat()
	case Int32:
		view[int32](out)[0] = int32(s.asInt()) //nolint:gosec // range checked by ConvertibleTo
	case Int64:
		view[int64](out)[0] = s.asInt()
	case Uint8:
		out[0] = uint8(s.asInt()) //nolint:gosec // range checked by ConvertibleTo
	case Bool:
		view[bool](out)[0] = s.b
	}
	return out, nil
}

func (s Scalar) asFloat() float64 {
	if s.dtype.IsFloat() {
		return s.f
	}
	return float64(s.i)
}

func (s Scalar) asInt() int64 {
	if s.dtype.IsFloat() {
		return int64(s.f)
	}
	return s.i
}
