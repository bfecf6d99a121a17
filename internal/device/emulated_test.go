package device

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/born-ml/accel/internal/parallel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDevice(t *testing.T, mutate func(*Config)) *Emulated {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Parallel = parallel.Config{Enabled: true, NumWorkers: 4, MinChunkSize: 4}
	if mutate != nil {
		mutate(&cfg)
	}
	dev := NewEmulated(cfg)
	t.Cleanup(func() { _ = dev.Close() })
	return dev
}

// addJob builds a float32 a+b job over n elements.
func addJob(out Allocation, ins []Allocation, n int) Job {
	return Job{
		Name: "add",
		N:    n,
		Out:  out,
		Ins:  ins,
		Run: func(out []byte, ins [][]byte, lo, hi int) error {
			a, b := f32(ins[0]), f32(ins[1])
			for i := lo; i < hi; i++ {
				binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(a[i]+b[i]))
			}
			return nil
		},
	}
}

func f32(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return out
}

func TestEmulatedUploadDownload(t *testing.T) {
	dev := newTestDevice(t, nil)

	a, err := dev.Alloc(8)
	require.NoError(t, err)
	assert.Equal(t, 8, a.Size())

	src := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	require.NoError(t, dev.Upload(a, src))

	src[0] = 99 // device copy must not alias
	dst := make([]byte, 8)
	require.NoError(t, dev.Download(dst, a))
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, dst)

	stats := dev.Stats()
	assert.Equal(t, uint64(1), stats.Allocs)
	assert.Equal(t, uint64(1), stats.Uploads)
	assert.Equal(t, uint64(1), stats.Downloads)
}

func TestEmulatedPoisonsFreshMemory(t *testing.T) {
	dev := newTestDevice(t, nil)

	a, err := dev.Alloc(4)
	require.NoError(t, err)

	dst := make([]byte, 4)
	require.NoError(t, dev.Download(dst, a))
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF, 0xFF}, dst)
	assert.True(t, math.IsNaN(float64(f32(dst)[0])))
}

func TestEmulatedDoubleFree(t *testing.T) {
	dev := newTestDevice(t, nil)

	a, err := dev.Alloc(16)
	require.NoError(t, err)
	require.NoError(t, dev.Free(a))

	err = dev.Free(a)
	assert.ErrorIs(t, err, ErrInvalidAllocation)
	assert.ErrorIs(t, dev.Upload(a, []byte{1}), ErrInvalidAllocation)

	stats := dev.Stats()
	assert.Equal(t, uint64(1), stats.Frees)
	assert.Equal(t, int64(0), stats.BytesInUse)
}

func TestEmulatedForeignAllocation(t *testing.T) {
	dev := newTestDevice(t, nil)
	other := newTestDevice(t, nil)

	a, err := other.Alloc(4)
	require.NoError(t, err)
	assert.ErrorIs(t, dev.Free(a), ErrInvalidAllocation)
}

func TestEmulatedCapacity(t *testing.T) {
	dev := newTestDevice(t, func(c *Config) { c.Capacity = 256 })

	a, err := dev.Alloc(200)
	require.NoError(t, err)

	_, err = dev.Alloc(100)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAllocation))

	var allocErr *AllocationError
	require.ErrorAs(t, err, &allocErr)
	assert.Equal(t, 100, allocErr.Requested)
	assert.Equal(t, int64(256), allocErr.Capacity)
	assert.Contains(t, err.Error(), "requested 100 bytes")

	require.NoError(t, dev.Free(a))
	_, err = dev.Alloc(100)
	assert.NoError(t, err)
}

func TestEmulatedPoolReuse(t *testing.T) {
	dev := newTestDevice(t, nil)

	a, err := dev.Alloc(1000)
	require.NoError(t, err)
	require.NoError(t, dev.Free(a))
	assert.Equal(t, 1, dev.PooledBlocks())

	b, err := dev.Alloc(900)
	require.NoError(t, err)
	assert.Equal(t, 900, b.Size())
	assert.NotEqual(t, a.ID(), b.ID())

	stats := dev.Stats()
	assert.Equal(t, uint64(2), stats.Allocs)
	assert.Equal(t, uint64(1), stats.PoolHits)
	assert.Equal(t, uint64(1), stats.PoolMisses)
	assert.Equal(t, 0, dev.PooledBlocks())

	// Far smaller requests do not take oversized blocks.
	require.NoError(t, dev.Free(b))
	_, err = dev.Alloc(10)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), dev.Stats().PoolHits)
}

func TestEmulatedLaunch(t *testing.T) {
	dev := newTestDevice(t, nil)

	n := 64
	a, _ := dev.Alloc(4 * n)
	b, _ := dev.Alloc(4 * n)
	out, _ := dev.Alloc(4 * n)

	ones := make([]byte, 4*n)
	twos := make([]byte, 4*n)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint32(ones[4*i:], math.Float32bits(1))
		binary.LittleEndian.PutUint32(twos[4*i:], math.Float32bits(2))
	}
	require.NoError(t, dev.Upload(a, ones))
	require.NoError(t, dev.Upload(b, twos))
	require.NoError(t, dev.Launch(addJob(out, []Allocation{a, b}, n)))

	dst := make([]byte, 4*n)
	require.NoError(t, dev.Download(dst, out))
	for i, v := range f32(dst) {
		if v != 3 {
			t.Fatalf("element %d = %v, want 3", i, v)
		}
	}
	assert.Equal(t, uint64(1), dev.Stats().Launches)
}

func TestEmulatedLaunchError(t *testing.T) {
	dev := newTestDevice(t, nil)
	out, _ := dev.Alloc(4)

	boom := errors.New("boom")
	err := dev.Launch(Job{
		Name: "fail",
		N:    1,
		Out:  out,
		Run:  func(_ []byte, _ [][]byte, _, _ int) error { return boom },
	})
	assert.ErrorIs(t, err, boom)
}

func TestEmulatedAsyncErrorsSurfaceAtSynchronize(t *testing.T) {
	dev := newTestDevice(t, func(c *Config) { c.Async = true })
	out, _ := dev.Alloc(4)

	boom := errors.New("boom")
	job := Job{
		Name: "fail",
		N:    1,
		Out:  out,
		Run:  func(_ []byte, _ [][]byte, _, _ int) error { return boom },
	}
	require.NoError(t, dev.Launch(job))
	assert.ErrorIs(t, dev.Synchronize(), boom)
	assert.NoError(t, dev.Synchronize(), "deferred error is reported once")
}

func TestEmulatedAsyncOrdering(t *testing.T) {
	dev := newTestDevice(t, func(c *Config) { c.Async = true })
	out, _ := dev.Alloc(4)

	// Each job appends its index; issue order must be preserved.
	var order []int
	for i := 0; i < 10; i++ {
		i := i
		require.NoError(t, dev.Launch(Job{
			Name: "record",
			N:    1,
			Out:  out,
			Run: func(_ []byte, _ [][]byte, _, _ int) error {
				order = append(order, i)
				return nil
			},
		}))
	}
	require.NoError(t, dev.Synchronize())
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
}

func TestEmulatedDoneHook(t *testing.T) {
	dev := newTestDevice(t, func(c *Config) { c.Async = true })
	out, _ := dev.Alloc(64)

	boom := errors.New("boom")
	var got []error
	for _, fail := range []bool{true, false} {
		require.NoError(t, dev.Launch(Job{
			Name: "maybe",
			N:    16,
			Out:  out,
			Run: func(_ []byte, _ [][]byte, lo, _ int) error {
				if fail && lo == 0 {
					return boom
				}
				return nil
			},
			Done: func(err error) { got = append(got, err) },
		}))
	}
	assert.ErrorIs(t, dev.Synchronize(), boom)
	require.Len(t, got, 2)
	assert.ErrorIs(t, got[0], boom)
	assert.NoError(t, got[1])
}

func TestEmulatedAsyncFreeRecyclesInOrder(t *testing.T) {
	dev := newTestDevice(t, func(c *Config) { c.Async = true })

	a, err := dev.Alloc(128)
	require.NoError(t, err)
	require.NoError(t, dev.Free(a))
	require.NoError(t, dev.Synchronize())
	assert.Equal(t, 1, dev.PooledBlocks())
}

func TestEmulatedClose(t *testing.T) {
	dev := NewEmulated(DefaultConfig())
	a, err := dev.Alloc(4)
	require.NoError(t, err)

	require.NoError(t, dev.Close())
	require.NoError(t, dev.Close())

	_, err = dev.Alloc(4)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, dev.Free(a), ErrClosed)
}

func TestEmulatedInvalidSize(t *testing.T) {
	dev := newTestDevice(t, nil)

	_, err := dev.Alloc(-1)
	assert.ErrorIs(t, err, ErrInvalidSize)

	a, _ := dev.Alloc(2)
	assert.ErrorIs(t, dev.Upload(a, []byte{1, 2, 3}), ErrInvalidSize)
	assert.ErrorIs(t, dev.Download(make([]byte, 3), a), ErrInvalidSize)
}

func TestHostInfo(t *testing.T) {
	h := Host()
	assert.Positive(t, h.NumCPU)
	assert.NotEmpty(t, h.Arch)
	assert.Contains(t, h.String(), h.Arch)
}
