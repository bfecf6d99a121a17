// Package accel manages device buffer lifetimes and runs broadcasting
// elementwise kernels over host and device operands.
//
// Transfers are explicit: ToDevice copies a host array into a new device
// buffer, CopyToHost copies it back, and Free releases it. An Executor applies
// kernels, optionally writing into a caller-supplied output so repeated calls
// reuse one allocation.
package accel

import (
	"fmt"

	"github.com/born-ml/accel/internal/device"
	"github.com/born-ml/accel/internal/tensor"
)

// Manager owns the device buffers allocated from one memory space.
// It is safe for concurrent use; the buffers it returns are not.
type Manager struct {
	mem device.Memory
}

// NewManager creates a manager over mem. The caller keeps ownership of mem.
func NewManager(mem device.Memory) *Manager {
	return &Manager{mem: mem}
}

// Device returns the underlying memory space.
func (m *Manager) Device() device.Memory {
	return m.mem
}

// ToDevice allocates a device buffer and copies every element of h into it.
// Strided host arrays are gathered into row-major order. The result is ready
// and does not alias h.
func (m *Manager) ToDevice(h *tensor.HostArray) (*DeviceBuffer, error) {
	b, err := m.alloc(h.Shape(), h.DType())
	if err != nil {
		return nil, fmt.Errorf("to device: %w", err)
	}
	if err := m.mem.Upload(b.alloc, h.ContiguousBytes()); err != nil {
		_ = m.release(b)
		return nil, fmt.Errorf("to device: %w", err)
	}
	b.ready.Store(true)
	return b, nil
}

// DeviceArray allocates an uninitialized, unready device buffer.
func (m *Manager) DeviceArray(shape tensor.Shape, dtype tensor.DataType) (*DeviceBuffer, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("device array: %w: %w", tensor.ErrInvalidShape, err)
	}
	if !dtype.Valid() {
		return nil, fmt.Errorf("device array: %w: unknown dtype %d", tensor.ErrDTypeMismatch, int(dtype))
	}
	b, err := m.alloc(shape, dtype)
	if err != nil {
		return nil, fmt.Errorf("device array: %w", err)
	}
	return b, nil
}

// CopyToHost copies the buffer into a new contiguous host array.
// The buffer stays allocated.
func (m *Manager) CopyToHost(b *DeviceBuffer) (*tensor.HostArray, error) {
	if err := m.checkReadable(b, "copy to host"); err != nil {
		return nil, err
	}
	h, err := tensor.NewHost(b.shape, b.dtype)
	if err != nil {
		return nil, err
	}
	dst, _ := h.Bytes()
	if err := m.mem.Download(dst, b.alloc); err != nil {
		return nil, fmt.Errorf("copy to host: %w", err)
	}
	return h, nil
}

// CopyToHostInto copies the buffer into an existing host array, which must be
// contiguous with the buffer's shape and dtype.
func (m *Manager) CopyToHostInto(b *DeviceBuffer, h *tensor.HostArray) error {
	if err := m.checkReadable(b, "copy to host"); err != nil {
		return err
	}
	if err := checkHostOut(h, b.shape, b.dtype); err != nil {
		return fmt.Errorf("copy to host: %w", err)
	}
	dst, _ := h.Bytes()
	if err := m.mem.Download(dst, b.alloc); err != nil {
		return fmt.Errorf("copy to host: %w", err)
	}
	return nil
}

// CopyFromHost overwrites the buffer with the elements of h, which must have
// the buffer's shape and dtype. The buffer becomes ready.
func (m *Manager) CopyFromHost(b *DeviceBuffer, h *tensor.HostArray) error {
	if err := m.check(b, "copy from host"); err != nil {
		return err
	}
	if !h.Shape().Equal(b.shape) {
		return fmt.Errorf("copy from host: %w", &OutputContractError{Field: "shape", Want: h.Shape().String(), Got: b.shape.String()})
	}
	if h.DType() != b.dtype {
		return fmt.Errorf("copy from host: %w", &OutputContractError{Field: "dtype", Want: h.DType().String(), Got: b.dtype.String()})
	}
	if err := m.mem.Upload(b.alloc, h.ContiguousBytes()); err != nil {
		return fmt.Errorf("copy from host: %w", err)
	}
	b.ready.Store(true)
	return nil
}

// Free releases the buffer. Freeing it again returns a *UseAfterFreeError.
func (m *Manager) Free(b *DeviceBuffer) error {
	if err := m.check(b, "free"); err != nil {
		return err
	}
	return m.release(b)
}

// Synchronize waits for all issued device work and reports the first
// deferred error.
func (m *Manager) Synchronize() error {
	if err := m.mem.Synchronize(); err != nil {
		return fmt.Errorf("synchronize: %w", err)
	}
	return nil
}

// Stats returns the memory space's counters.
func (m *Manager) Stats() device.Stats {
	return m.mem.Stats()
}

func (m *Manager) alloc(shape tensor.Shape, dtype tensor.DataType) (*DeviceBuffer, error) {
	a, err := m.mem.Alloc(shape.NumElements() * dtype.Size())
	if err != nil {
		return nil, err
	}
	return &DeviceBuffer{
		id:    bufferIDs.Add(1),
		shape: shape.Clone(),
		dtype: dtype,
		alloc: a,
		mgr:   m,
	}, nil
}

func (m *Manager) release(b *DeviceBuffer) error {
	b.freed = true
	b.ready.Store(false)
	if err := m.mem.Free(b.alloc); err != nil {
		return fmt.Errorf("free buffer %d: %w", b.id, err)
	}
	return nil
}

// check verifies that b is live and owned by m.
func (m *Manager) check(b *DeviceBuffer, op string) error {
	if b == nil || b.mgr != m {
		return fmt.Errorf("%s: %w", op, ErrForeignBuffer)
	}
	if b.freed {
		return &UseAfterFreeError{Buffer: b.id, Op: op}
	}
	return nil
}

// checkReadable is check plus the ready flag.
func (m *Manager) checkReadable(b *DeviceBuffer, op string) error {
	if err := m.check(b, op); err != nil {
		return err
	}
	if !b.Ready() {
		return &NotReadyError{Buffer: b.id, Op: op}
	}
	return nil
}

// checkHostOut validates a host array as the destination of a result.
func checkHostOut(h *tensor.HostArray, shape tensor.Shape, dtype tensor.DataType) error {
	if !h.Shape().Equal(shape) {
		return &OutputContractError{Field: "shape", Want: shape.String(), Got: h.Shape().String()}
	}
	if h.DType() != dtype {
		return &OutputContractError{Field: "dtype", Want: dtype.String(), Got: h.DType().String()}
	}
	if !h.IsContiguous() {
		return &OutputContractError{Field: "layout", Want: "contiguous", Got: fmt.Sprintf("strides %v", h.Strides())}
	}
	return nil
}
