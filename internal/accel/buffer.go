package accel

import (
	"fmt"
	"sync/atomic"

	"github.com/born-ml/accel/internal/device"
	"github.com/born-ml/accel/internal/tensor"
)

var bufferIDs atomic.Uint64

// DeviceBuffer is a contiguous, device-resident array owned by a Manager.
//
// Shape and dtype never change. The buffer is ready once its contents have
// been written by a transfer or a kernel; reading an unready buffer fails.
// A DeviceBuffer is not safe for concurrent use and must be freed exactly
// once through its Manager.
type DeviceBuffer struct {
	id    uint64
	shape tensor.Shape
	dtype tensor.DataType
	alloc device.Allocation
	mgr   *Manager
	ready atomic.Bool // Written by the device stream when a queued kernel fails
	freed bool
}

// ID returns an identifier unique within the process.
func (b *DeviceBuffer) ID() uint64 {
	return b.id
}

// Shape returns the buffer's shape.
func (b *DeviceBuffer) Shape() tensor.Shape {
	return b.shape
}

// DType returns the element type.
func (b *DeviceBuffer) DType() tensor.DataType {
	return b.dtype
}

// NumElements returns the total number of elements.
func (b *DeviceBuffer) NumElements() int {
	return b.shape.NumElements()
}

// ByteSize returns NumElements * dtype size.
func (b *DeviceBuffer) ByteSize() int {
	return b.NumElements() * b.dtype.Size()
}

// Ready reports whether the contents have been written.
func (b *DeviceBuffer) Ready() bool {
	return b.ready.Load()
}

// Freed reports whether the buffer has been released.
func (b *DeviceBuffer) Freed() bool {
	return b.freed
}

// String returns a short description, not the contents.
func (b *DeviceBuffer) String() string {
	return fmt.Sprintf("DeviceBuffer(id=%d, shape=%v, dtype=%s, ready=%t)", b.id, b.shape, b.dtype, b.Ready())
}
