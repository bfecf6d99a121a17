// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/accel/internal/tensor"
)

// Type aliases for public API

// DType is a constraint for array element types.
// Supported types: float32, float64, int32, int64, uint8, bool.
type DType = tensor.DType

// DataType is the runtime element type tag.
type DataType = tensor.DataType

// Data type constants.
const (
	Float32 DataType = tensor.Float32
	Float64 DataType = tensor.Float64
	Int32   DataType = tensor.Int32
	Int64   DataType = tensor.Int64
	Uint8   DataType = tensor.Uint8
	Bool    DataType = tensor.Bool
)

// Shape represents the dimensions of an array.
// Example: Shape{2, 3} is a 2x3 matrix, Shape{} is a scalar.
type Shape = tensor.Shape

// HostArray is a typed, strided array in host memory.
type HostArray = tensor.HostArray

// Scalar is a single typed value that broadcasts as shape ().
type Scalar = tensor.Scalar

// ShapeMismatchError reports shapes that cannot be broadcast together.
type ShapeMismatchError = tensor.ShapeMismatchError

// Errors.
var (
	ErrShapeMismatch    = tensor.ErrShapeMismatch
	ErrInvalidShape     = tensor.ErrInvalidShape
	ErrInvalidStrides   = tensor.ErrInvalidStrides
	ErrDTypeMismatch    = tensor.ErrDTypeMismatch
	ErrNotContiguous    = tensor.ErrNotContiguous
	ErrScalarConversion = tensor.ErrScalarConversion
)

// Creation functions

// NewHost creates a zero-filled contiguous host array.
func NewHost(shape Shape, dtype DataType) (*HostArray, error) {
	return tensor.NewHost(shape, dtype)
}

// NewHostStrided wraps existing bytes with an explicit byte-strided layout.
func NewHostStrided(data []byte, shape Shape, strides []int, dtype DataType, offset int) (*HostArray, error) {
	return tensor.NewHostStrided(data, shape, strides, dtype, offset)
}

// FromSlice creates a host array from a Go slice.
//
// Example:
//
//	x, err := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
func FromSlice[T DType](values []T, shape Shape) (*HostArray, error) {
	return tensor.FromSlice(values, shape)
}

// Full creates a host array filled with v.
func Full[T DType](shape Shape, v T) (*HostArray, error) {
	return tensor.Full(shape, v)
}

// Arange creates the 1-D array [0, 1, ..., n-1].
//
// Example:
//
//	x, _ := tensor.Arange[float32](16)
//	m, _ := x.Reshape(tensor.Shape{4, 4})
func Arange[T ~float32 | ~float64 | ~int32 | ~int64 | ~uint8](n int) (*HostArray, error) {
	return tensor.Arange[T](n)
}

// ScalarOf creates a scalar operand.
func ScalarOf[T DType](v T) Scalar {
	return tensor.ScalarOf(v)
}

// TypeOf returns the DataType tag for T.
func TypeOf[T DType]() DataType {
	return tensor.TypeOf[T]()
}

// Element access

// Values returns a row-major copy of the elements of h.
func Values[T DType](h *HostArray) ([]T, error) {
	return tensor.Values[T](h)
}

// MustValues is Values that panics on a dtype mismatch.
func MustValues[T DType](h *HostArray) []T {
	return tensor.MustValues[T](h)
}

// Broadcast returns the shape that shapes broadcast to.
func Broadcast(shapes ...Shape) (Shape, error) {
	return tensor.Broadcast(shapes...)
}
