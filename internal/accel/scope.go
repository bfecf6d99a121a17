package accel

import (
	"errors"

	"github.com/born-ml/accel/internal/tensor"
)

// Scope tracks device buffers and frees the live ones on Close.
//
//	s := mgr.NewScope()
//	defer s.Close()
type Scope struct {
	mgr  *Manager
	bufs []*DeviceBuffer
}

// NewScope creates an empty scope.
func (m *Manager) NewScope() *Scope {
	return &Scope{mgr: m}
}

// ToDevice is Manager.ToDevice with the result tracked by s.
func (s *Scope) ToDevice(h *tensor.HostArray) (*DeviceBuffer, error) {
	b, err := s.mgr.ToDevice(h)
	if err != nil {
		return nil, err
	}
	return s.Track(b), nil
}

// DeviceArray is Manager.DeviceArray with the result tracked by s.
func (s *Scope) DeviceArray(shape tensor.Shape, dtype tensor.DataType) (*DeviceBuffer, error) {
	b, err := s.mgr.DeviceArray(shape, dtype)
	if err != nil {
		return nil, err
	}
	return s.Track(b), nil
}

// Track adds b to the scope and returns it.
func (s *Scope) Track(b *DeviceBuffer) *DeviceBuffer {
	s.bufs = append(s.bufs, b)
	return b
}

// Close frees every tracked buffer that is still live. Buffers freed
// explicitly before Close are skipped. Close is idempotent.
func (s *Scope) Close() error {
	var errs []error
	for _, b := range s.bufs {
		if b.Freed() {
			continue
		}
		if err := s.mgr.Free(b); err != nil {
			errs = append(errs, err)
		}
	}
	s.bufs = nil
	return errors.Join(errs...)
}
