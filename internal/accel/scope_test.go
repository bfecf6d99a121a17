package accel

import (
	"testing"

	"github.com/born-ml/accel/internal/kernel"
	"github.com/born-ml/accel/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopeClose(t *testing.T) {
	mgr := newTestManager(t, nil)
	s := mgr.NewScope()

	a, err := s.ToDevice(mustFromSlice(t, []float32{1, 2}, 2))
	require.NoError(t, err)
	b, err := s.DeviceArray(tensor.Shape{8}, tensor.Int64)
	require.NoError(t, err)
	c, err := s.DeviceArray(tensor.Shape{1}, tensor.Uint8)
	require.NoError(t, err)

	// Explicitly freed buffers are skipped by Close.
	require.NoError(t, mgr.Free(c))

	require.NoError(t, s.Close())
	assert.True(t, a.Freed())
	assert.True(t, b.Freed())

	stats := mgr.Stats()
	assert.Equal(t, uint64(3), stats.Frees)
	assert.Equal(t, int64(0), stats.BytesInUse)

	require.NoError(t, s.Close())
	assert.Equal(t, uint64(3), mgr.Stats().Frees)
}

func TestScopeTrackResult(t *testing.T) {
	e := newTestExecutor(t, nil)
	mgr := e.Manager()

	func() {
		s := mgr.NewScope()
		defer func() { require.NoError(t, s.Close()) }()

		x, err := s.ToDevice(mustFromSlice(t, []float64{1, 2, 3}, 3))
		require.NoError(t, err)
		res, err := e.Apply(kernel.Negate, x)
		require.NoError(t, err)
		s.Track(res.(*DeviceBuffer))
		s.Track(x) // tracked twice, freed once
	}()

	assert.Equal(t, int64(0), mgr.Stats().BytesInUse)
	assert.Equal(t, uint64(2), mgr.Stats().Frees)
}

func TestScopeAllocationError(t *testing.T) {
	mgr := newTestManager(t, nil)
	s := mgr.NewScope()
	defer func() { _ = s.Close() }()

	_, err := s.DeviceArray(tensor.Shape{-2}, tensor.Float32)
	assert.ErrorIs(t, err, tensor.ErrInvalidShape)
	_, err = s.ToDevice(mustFromSlice(t, make([]float32, 1<<19), 1<<19))
	assert.Error(t, err)
}
