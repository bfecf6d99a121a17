package tensor

import (
	"fmt"
	"unsafe"
)

// HostArray is a typed, strided, host-resident multidimensional buffer.
// Strides are byte offsets per dimension.
//
// Arrays created by Reshape or Transpose are views: they share the backing
// bytes with their parent, and writes through one are visible in the other.
type HostArray struct {
	data    []byte
	shape   Shape
	strides []int
	dtype   DataType
	offset  int
}

// NewHost creates a zero-filled contiguous host array.
func NewHost(shape Shape, dtype DataType) (*HostArray, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidShape, err)
	}
	if !dtype.Valid() {
		return nil, fmt.Errorf("%w: unknown dtype %d", ErrDTypeMismatch, int(dtype))
	}
	return &HostArray{
		data:    make([]byte, shape.NumElements()*dtype.Size()),
		shape:   shape.Clone(),
		strides: byteStrides(shape, dtype),
		dtype:   dtype,
	}, nil
}

// NewHostStrided wraps existing bytes with an explicit layout.
// data must cover every element addressed by shape, strides and offset.
func NewHostStrided(data []byte, shape Shape, strides []int, dtype DataType, offset int) (*HostArray, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidShape, err)
	}
	if len(strides) != len(shape) {
		return nil, fmt.Errorf("%w: %d strides for shape %v", ErrInvalidStrides, len(strides), shape)
	}
	if !dtype.Valid() {
		return nil, fmt.Errorf("%w: unknown dtype %d", ErrDTypeMismatch, int(dtype))
	}
	size := dtype.Size()
	if offset%size != 0 {
		return nil, fmt.Errorf("%w: offset %d is not a multiple of %s size %d", ErrInvalidStrides, offset, dtype, size)
	}
	last := offset
	for i, st := range strides {
		if st < 0 || st%size != 0 {
			return nil, fmt.Errorf("%w: stride %d at axis %d for %s", ErrInvalidStrides, st, i, dtype)
		}
		if shape[i] > 0 {
			last += (shape[i] - 1) * st
		}
	}
	if offset < 0 || (shape.NumElements() > 0 && last+size > len(data)) {
		return nil, fmt.Errorf("%w: layout %v/%v at offset %d exceeds %d bytes",
			ErrInvalidStrides, shape, strides, offset, len(data))
	}
	return &HostArray{
		data:    data,
		shape:   shape.Clone(),
		strides: append([]int(nil), strides...),
		dtype:   dtype,
		offset:  offset,
	}, nil
}

// FromSlice copies values into a new contiguous array of the given shape.
func FromSlice[T DType](values []T, shape Shape) (*HostArray, error) {
	h, err := NewHost(shape, TypeOf[T]())
	if err != nil {
		return nil, err
	}
	if len(values) != shape.NumElements() {
		return nil, fmt.Errorf("%w: %d values for shape %v", ErrInvalidShape, len(values), shape)
	}
	copy(view[T](h.data), values)
	return h, nil
}

// Full creates a contiguous array filled with v.
func Full[T DType](shape Shape, v T) (*HostArray, error) {
	h, err := NewHost(shape, TypeOf[T]())
	if err != nil {
		return nil, err
	}
	vals := view[T](h.data)
	for i := range vals {
		vals[i] = v
	}
	return h, nil
}

// Arange creates the 1-D array [0, 1, ..., n-1].
func Arange[T ~float32 | ~float64 | ~int32 | ~int64 | ~uint8](n int) (*HostArray, error) {
	h, err := NewHost(Shape{n}, TypeOf[T]())
	if err != nil {
		return nil, err
	}
	vals := view[T](h.data)
	for i := range vals {
		vals[i] = T(i)
	}
	return h, nil
}

// DType returns the element type.
func (h *HostArray) DType() DataType {
	return h.dtype
}

// Shape returns the array's shape.
func (h *HostArray) Shape() Shape {
	return h.shape
}

// Strides returns the byte strides.
func (h *HostArray) Strides() []int {
	return h.strides
}

// NumElements returns the total number of elements.
func (h *HostArray) NumElements() int {
	return h.shape.NumElements()
}

// ByteSize returns the logical size in bytes: NumElements * dtype size.
func (h *HostArray) ByteSize() int {
	return h.NumElements() * h.dtype.Size()
}

// IsContiguous reports whether the array is laid out row-major without gaps.
func (h *HostArray) IsContiguous() bool {
	want := byteStrides(h.shape, h.dtype)
	for i, st := range h.strides {
		if h.shape[i] > 1 && st != want[i] {
			return false
		}
	}
	return true
}

// Bytes returns the backing bytes of a contiguous array without copying.
// Writes through the returned slice modify the array.
func (h *HostArray) Bytes() ([]byte, error) {
	if !h.IsContiguous() {
		return nil, fmt.Errorf("%w: shape %v strides %v", ErrNotContiguous, h.shape, h.strides)
	}
	return h.data[h.offset : h.offset+h.ByteSize()], nil
}

// ContiguousBytes returns the elements in row-major order.
// Contiguous arrays return their backing bytes; strided arrays are gathered
// into a fresh slice.
func (h *HostArray) ContiguousBytes() []byte {
	if b, err := h.Bytes(); err == nil {
		return b
	}
	size := h.dtype.Size()
	out := make([]byte, h.ByteSize())
	for i := range h.NumElements() {
		src := h.ElementOffset(i)
		copy(out[i*size:(i+1)*size], h.data[src:src+size])
	}
	return out
}

// ElementOffset returns the byte offset into the backing data of the element
// at row-major index i.
func (h *HostArray) ElementOffset(i int) int {
	off := h.offset
	for d := len(h.shape) - 1; d >= 0; d-- {
		dim := h.shape[d]
		if dim == 0 {
			return off
		}
		off += (i % dim) * h.strides[d]
		i /= dim
	}
	return off
}

// Backing returns the full backing byte slice and the base offset.
// Used by executors that address elements through Strides.
func (h *HostArray) Backing() ([]byte, int) {
	return h.data, h.offset
}

// Reshape returns a view with a new shape over the same data.
// The array must be contiguous and the element count must match.
func (h *HostArray) Reshape(shape Shape) (*HostArray, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("reshape: %w: %w", ErrInvalidShape, err)
	}
	if shape.NumElements() != h.NumElements() {
		return nil, fmt.Errorf("reshape: %w: %v -> %v (different number of elements)",
			ErrInvalidShape, h.shape, shape)
	}
	if !h.IsContiguous() {
		return nil, fmt.Errorf("reshape: %w: shape %v strides %v", ErrNotContiguous, h.shape, h.strides)
	}
	return &HostArray{
		data:    h.data,
		shape:   shape.Clone(),
		strides: byteStrides(shape, h.dtype),
		dtype:   h.dtype,
		offset:  h.offset,
	}, nil
}

// Transpose returns a view with the axes reversed.
func (h *HostArray) Transpose() *HostArray {
	n := len(h.shape)
	shape := make(Shape, n)
	strides := make([]int, n)
	for i := range n {
		shape[i] = h.shape[n-1-i]
		strides[i] = h.strides[n-1-i]
	}
	return &HostArray{
		data:    h.data,
		shape:   shape,
		strides: strides,
		dtype:   h.dtype,
		offset:  h.offset,
	}
}

// String returns a short description, not the contents.
func (h *HostArray) String() string {
	return fmt.Sprintf("HostArray(shape=%v, dtype=%s)", h.shape, h.dtype)
}

// Values returns a row-major copy of the elements as []T.
func Values[T DType](h *HostArray) ([]T, error) {
	if want := TypeOf[T](); h.dtype != want {
		return nil, fmt.Errorf("%w: array is %s, requested %s", ErrDTypeMismatch, h.dtype, want)
	}
	out := make([]T, h.NumElements())
	copy(out, view[T](h.ContiguousBytes()))
	return out, nil
}

// MustValues is Values for tests and examples; it panics on dtype mismatch.
func MustValues[T DType](h *HostArray) []T {
	v, err := Values[T](h)
	if err != nil {
		panic(err)
	}
	return v
}

// View reinterprets a byte slice as []T without copying.
func View[T DType](b []byte) []T {
	return view[T](b)
}

// view reinterprets b as []T. len(b) must be a multiple of the element size.
func view[T DType](b []byte) []T {
	if len(b) == 0 {
		return nil
	}
	var zero T
	n := len(b) / int(unsafe.Sizeof(zero))
	//nolint:gosec // unsafe.Slice for zero-copy reinterpretation, length derived from len(b)
	return unsafe.Slice((*T)(unsafe.Pointer(&b[0])), n)
}

// byteStrides returns row-major byte strides.
func byteStrides(shape Shape, dtype DataType) []int {
	strides := shape.ComputeStrides()
	size := dtype.Size()
	for i := range strides {
		strides[i] *= size
	}
	return strides
}
