package accel

import (
	"testing"

	"github.com/born-ml/accel/internal/device"
	"github.com/born-ml/accel/internal/kernel"
	"github.com/born-ml/accel/internal/parallel"
	"github.com/born-ml/accel/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExecutor(t *testing.T, mutate func(*device.Config)) *Executor {
	t.Helper()
	return NewExecutor(newTestManager(t, mutate), parallel.Config{Enabled: true, NumWorkers: 4, MinChunkSize: 2})
}

func matrix16(t *testing.T) *tensor.HostArray {
	t.Helper()
	a, err := tensor.Arange[float32](16)
	require.NoError(t, err)
	a, err = a.Reshape(tensor.Shape{4, 4})
	require.NoError(t, err)
	return a
}

var (
	rowWise = []float32{10, 21, 32, 43, 14, 25, 36, 47, 18, 29, 40, 51, 22, 33, 44, 55}
	colWise = []float32{10, 11, 12, 13, 24, 25, 26, 27, 38, 39, 40, 41, 52, 53, 54, 55}
)

// hostValues reads a result operand back to the host.
func hostValues[T tensor.DType](t *testing.T, e *Executor, res Operand) []T {
	t.Helper()
	switch r := res.(type) {
	case *tensor.HostArray:
		return tensor.MustValues[T](r)
	case *DeviceBuffer:
		require.NoError(t, e.Manager().Synchronize())
		h, err := e.Manager().CopyToHost(r)
		require.NoError(t, err)
		return tensor.MustValues[T](h)
	default:
		t.Fatalf("unexpected result %T", res)
		return nil
	}
}

func TestApplyBroadcastAdd(t *testing.T) {
	e := newTestExecutor(t, nil)
	a := matrix16(t)
	v := mustFromSlice(t, []float32{10, 20, 30, 40}, 4)
	col, err := v.Reshape(tensor.Shape{4, 1})
	require.NoError(t, err)

	t.Run("host row-wise", func(t *testing.T) {
		res, err := e.Apply(kernel.Add, a, v)
		require.NoError(t, err)
		assert.IsType(t, &tensor.HostArray{}, res)
		assert.Equal(t, tensor.Shape{4, 4}, res.Shape())
		assert.Equal(t, rowWise, hostValues[float32](t, e, res))
	})

	t.Run("host column-wise", func(t *testing.T) {
		res, err := e.Apply(kernel.Add, a, col)
		require.NoError(t, err)
		assert.Equal(t, colWise, hostValues[float32](t, e, res))
	})

	t.Run("device row-wise", func(t *testing.T) {
		da, err := e.Manager().ToDevice(a)
		require.NoError(t, err)
		dv, err := e.Manager().ToDevice(v)
		require.NoError(t, err)

		res, err := e.Apply(kernel.Add, da, dv)
		require.NoError(t, err)
		require.IsType(t, &DeviceBuffer{}, res)
		assert.True(t, res.(*DeviceBuffer).Ready())
		assert.Equal(t, rowWise, hostValues[float32](t, e, res))
	})

	t.Run("mixed host and device column-wise", func(t *testing.T) {
		da, err := e.Manager().ToDevice(a)
		require.NoError(t, err)
		before := e.Manager().Stats()

		res, err := e.Apply(kernel.Add, da, col)
		require.NoError(t, err)
		assert.Equal(t, colWise, hostValues[float32](t, e, res))

		// One temporary for the host input, one result; the temporary is freed.
		after := e.Manager().Stats()
		assert.Equal(t, before.Allocs+2, after.Allocs)
		assert.Equal(t, before.Frees+1, after.Frees)
	})
}

func TestApplyScalar(t *testing.T) {
	e := newTestExecutor(t, nil)
	x := mustFromSlice(t, []float32{1, 2, 3}, 3)

	res, err := e.Apply(kernel.Add, x, tensor.ScalarOf(1.5))
	require.NoError(t, err)
	assert.Equal(t, tensor.Float32, res.DType())
	assert.Equal(t, []float32{2.5, 3.5, 4.5}, hostValues[float32](t, e, res))

	s := tensor.ScalarOf(int64(10))
	res, err = e.Apply(kernel.Mul, &s, mustFromSlice(t, []int64{1, 2}, 2))
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 20}, hostValues[int64](t, e, res))

	dx, err := e.Manager().ToDevice(x)
	require.NoError(t, err)
	res, err = e.Apply(kernel.Sub, dx, tensor.ScalarOf(int32(1)))
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1, 2}, hostValues[float32](t, e, res))

	_, err = e.Apply(kernel.Add, tensor.ScalarOf(1.0), tensor.ScalarOf(2.0))
	assert.ErrorIs(t, err, ErrNoArrayOperand)
}

func TestApplyStridedHostInput(t *testing.T) {
	e := newTestExecutor(t, nil)
	h := mustFromSlice(t, []float64{1, 2, 3, 4, 5, 6}, 2, 3)
	tr := h.Transpose() // (3, 2): [[1, 4], [2, 5], [3, 6]]

	res, err := e.Apply(kernel.Mul, tr, mustFromSlice(t, []float64{1, 10}, 2))
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 40, 2, 50, 3, 60}, hostValues[float64](t, e, res))

	dres, err := e.ApplyToHost(kernel.Add, tr, mustFromSlice(t, []float64{0}, 1))
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 4, 2, 5, 3, 6}, tensor.MustValues[float64](dres))
}

func TestApplyIntoReusesOutput(t *testing.T) {
	e := newTestExecutor(t, nil)
	mgr := e.Manager()

	out, err := mgr.DeviceArray(tensor.Shape{4, 4}, tensor.Float32)
	require.NoError(t, err)
	a, err := mgr.ToDevice(matrix16(t))
	require.NoError(t, err)
	v, err := mgr.ToDevice(mustFromSlice(t, []float32{10, 20, 30, 40}, 4))
	require.NoError(t, err)
	w, err := mgr.ToDevice(mustFromSlice(t, []float32{1}, 1))
	require.NoError(t, err)

	before := mgr.Stats().Allocs

	res, err := e.ApplyInto(out, kernel.Add, a, v)
	require.NoError(t, err)
	assert.Same(t, out, res)
	assert.True(t, out.Ready())
	assert.Equal(t, rowWise, hostValues[float32](t, e, out))

	res, err = e.ApplyInto(out, kernel.Add, a, w)
	require.NoError(t, err)
	assert.Same(t, out, res)
	assert.Equal(t, float32(1), hostValues[float32](t, e, out)[0])
	assert.Equal(t, float32(16), hostValues[float32](t, e, out)[15])

	assert.Equal(t, before, mgr.Stats().Allocs)
}

func TestApplyIntoHostOutput(t *testing.T) {
	e := newTestExecutor(t, nil)
	out, err := tensor.NewHost(tensor.Shape{4, 4}, tensor.Float32)
	require.NoError(t, err)

	res, err := e.ApplyInto(out, kernel.Add, matrix16(t), mustFromSlice(t, []float32{10, 20, 30, 40}, 4))
	require.NoError(t, err)
	assert.Same(t, out, res)
	assert.Equal(t, rowWise, tensor.MustValues[float32](out))
	assert.Equal(t, uint64(0), e.Manager().Stats().Allocs)
}

func TestApplyIntoPromotesHostInputs(t *testing.T) {
	e := newTestExecutor(t, nil)
	out, err := e.Manager().DeviceArray(tensor.Shape{3}, tensor.Int32)
	require.NoError(t, err)

	res, err := e.ApplyInto(out, kernel.Maximum,
		mustFromSlice(t, []int32{1, 5, 3}, 3), mustFromSlice(t, []int32{4, 2, 6}, 3))
	require.NoError(t, err)
	assert.Same(t, out, res)
	assert.Equal(t, []int32{4, 5, 6}, hostValues[int32](t, e, out))

	stats := e.Manager().Stats()
	assert.Equal(t, uint64(3), stats.Allocs)
	assert.Equal(t, uint64(2), stats.Frees)
}

func TestApplyOutputContract(t *testing.T) {
	e := newTestExecutor(t, nil)
	mgr := e.Manager()
	x, err := mgr.ToDevice(mustFromSlice(t, []float32{1, 2, 3}, 3))
	require.NoError(t, err)

	tests := []struct {
		name  string
		out   func() Operand
		field string
	}{
		{"shape", func() Operand { b, _ := mgr.DeviceArray(tensor.Shape{4}, tensor.Float32); return b }, "shape"},
		{"dtype", func() Operand { b, _ := mgr.DeviceArray(tensor.Shape{3}, tensor.Float64); return b }, "dtype"},
		{"host out for device inputs", func() Operand { h, _ := tensor.NewHost(tensor.Shape{3}, tensor.Float32); return h }, "memory space"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.ApplyInto(tt.out(), kernel.Add, x, x)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrOutputContract)

			var oc *OutputContractError
			require.ErrorAs(t, err, &oc)
			assert.Equal(t, tt.field, oc.Field)
		})
	}

	t.Run("non-contiguous host out", func(t *testing.T) {
		h, _ := tensor.NewHost(tensor.Shape{2, 3}, tensor.Float32)
		a := mustFromSlice(t, []float32{1, 2, 3, 4, 5, 6}, 3, 2)
		_, err := e.ApplyInto(h.Transpose(), kernel.Add, a, a)
		var oc *OutputContractError
		require.ErrorAs(t, err, &oc)
		assert.Equal(t, "layout", oc.Field)
	})

	t.Run("nil out", func(t *testing.T) {
		_, err := e.ApplyInto(nil, kernel.Add, x, x)
		assert.ErrorIs(t, err, ErrOutputContract)
	})

	t.Run("freed out", func(t *testing.T) {
		b, err := mgr.DeviceArray(tensor.Shape{3}, tensor.Float32)
		require.NoError(t, err)
		require.NoError(t, mgr.Free(b))
		_, err = e.ApplyInto(b, kernel.Add, x, x)
		assert.ErrorIs(t, err, ErrUseAfterFree)
	})
}

func TestApplyShapeMismatch(t *testing.T) {
	e := newTestExecutor(t, nil)

	_, err := e.Apply(kernel.Add, mustFromSlice(t, []float32{1, 2, 3}, 3), mustFromSlice(t, []float32{1, 2, 3, 4}, 4))
	require.Error(t, err)
	assert.ErrorIs(t, err, tensor.ErrShapeMismatch)

	var sm *tensor.ShapeMismatchError
	require.ErrorAs(t, err, &sm)
	assert.Equal(t, []tensor.Shape{{3}, {4}}, sm.Shapes)
	assert.Contains(t, err.Error(), "(3,) vs (4,)")
}

func TestApplyCompilationError(t *testing.T) {
	e := newTestExecutor(t, nil)

	_, err := e.Apply(kernel.Add, mustFromSlice(t, []float32{1}, 1), mustFromSlice(t, []int32{1}, 1))
	assert.ErrorIs(t, err, kernel.ErrCompilation)

	_, err = e.Apply(kernel.Hypot, mustFromSlice(t, []int64{3}, 1), mustFromSlice(t, []int64{4}, 1))
	var ce *kernel.CompilationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "hypot", ce.Kernel)
}

func TestApplyCallErrors(t *testing.T) {
	e := newTestExecutor(t, nil)
	x := mustFromSlice(t, []float32{1}, 1)

	_, err := e.Apply(kernel.Add, x)
	assert.ErrorIs(t, err, ErrArity)

	_, err = e.Apply(kernel.Add, x, nil)
	assert.ErrorIs(t, err, ErrUnsupportedOperand)

	var nilHost *tensor.HostArray
	_, err = e.Apply(kernel.Add, x, nilHost)
	assert.ErrorIs(t, err, ErrUnsupportedOperand)
}

func TestApplyUnreadyAndFreedInputs(t *testing.T) {
	e := newTestExecutor(t, nil)
	mgr := e.Manager()

	unready, err := mgr.DeviceArray(tensor.Shape{2}, tensor.Float32)
	require.NoError(t, err)
	_, err = e.Apply(kernel.Negate, unready)
	assert.ErrorIs(t, err, ErrNotReady)

	freed, err := mgr.ToDevice(mustFromSlice(t, []float32{1, 2}, 2))
	require.NoError(t, err)
	require.NoError(t, mgr.Free(freed))
	_, err = e.Apply(kernel.Negate, freed)
	assert.ErrorIs(t, err, ErrUseAfterFree)
}

func TestApplyKernelPanic(t *testing.T) {
	e := newTestExecutor(t, nil)
	mgr := e.Manager()
	num := mustFromSlice(t, []int32{1, 2, 3, 4}, 4)
	den := mustFromSlice(t, []int32{1, 1, 0, 1}, 4)

	t.Run("host", func(t *testing.T) {
		_, err := e.Apply(kernel.Div, num, den)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrKernelPanic)

		var kp *KernelPanicError
		require.ErrorAs(t, err, &kp)
		assert.Equal(t, "div", kp.Kernel)
	})

	t.Run("device out marked not ready", func(t *testing.T) {
		out, err := mgr.DeviceArray(tensor.Shape{4}, tensor.Int32)
		require.NoError(t, err)
		require.NoError(t, mgr.CopyFromHost(out, num))

		_, err = e.ApplyInto(out, kernel.Div, num, den)
		assert.ErrorIs(t, err, ErrKernelPanic)
		assert.False(t, out.Ready())

		_, err = mgr.CopyToHost(out)
		assert.ErrorIs(t, err, ErrNotReady)
	})

	t.Run("allocated result is released", func(t *testing.T) {
		dn, err := mgr.ToDevice(num)
		require.NoError(t, err)
		inUse := mgr.Stats().BytesInUse

		_, err = e.Apply(kernel.Div, dn, den)
		assert.ErrorIs(t, err, ErrKernelPanic)
		assert.Equal(t, inUse, mgr.Stats().BytesInUse)
	})
}

func TestApplyAsyncDevice(t *testing.T) {
	e := newTestExecutor(t, func(c *device.Config) { c.Async = true })
	mgr := e.Manager()

	a, err := mgr.ToDevice(matrix16(t))
	require.NoError(t, err)
	v, err := mgr.ToDevice(mustFromSlice(t, []float32{10, 20, 30, 40}, 4))
	require.NoError(t, err)

	res, err := e.Apply(kernel.Add, a, v)
	require.NoError(t, err)
	require.NoError(t, mgr.Synchronize())
	assert.Equal(t, rowWise, hostValues[float32](t, e, res))

	t.Run("deferred panic surfaces at synchronize", func(t *testing.T) {
		n, err := mgr.ToDevice(mustFromSlice(t, []int64{1, 2}, 2))
		require.NoError(t, err)
		z, err := mgr.ToDevice(mustFromSlice(t, []int64{0, 0}, 2))
		require.NoError(t, err)

		out, err := e.Apply(kernel.Div, n, z)
		require.NoError(t, err)

		err = mgr.Synchronize()
		assert.ErrorIs(t, err, ErrKernelPanic)
		assert.False(t, out.(*DeviceBuffer).Ready())
	})

	t.Run("last queued write decides readiness", func(t *testing.T) {
		n, err := mgr.ToDevice(mustFromSlice(t, []int64{6, 8}, 2))
		require.NoError(t, err)
		z, err := mgr.ToDevice(mustFromSlice(t, []int64{0, 0}, 2))
		require.NoError(t, err)
		two, err := mgr.ToDevice(mustFromSlice(t, []int64{2, 2}, 2))
		require.NoError(t, err)
		out, err := mgr.DeviceArray(tensor.Shape{2}, tensor.Int64)
		require.NoError(t, err)

		_, err = e.ApplyInto(out, kernel.Div, n, z)
		require.NoError(t, err)
		_, err = e.ApplyInto(out, kernel.Div, n, two)
		require.NoError(t, err)

		assert.ErrorIs(t, mgr.Synchronize(), ErrKernelPanic)
		assert.True(t, out.Ready())
		back, err := mgr.CopyToHost(out)
		require.NoError(t, err)
		assert.Equal(t, []int64{3, 4}, tensor.MustValues[int64](back))

		_, err = e.ApplyInto(out, kernel.Div, n, two)
		require.NoError(t, err)
		_, err = e.ApplyInto(out, kernel.Div, n, z)
		require.NoError(t, err)
		assert.ErrorIs(t, mgr.Synchronize(), ErrKernelPanic)
		assert.False(t, out.Ready())
	})

	t.Run("apply to host synchronizes", func(t *testing.T) {
		h, err := e.ApplyToHost(kernel.Mul, a, tensor.ScalarOf(2.0))
		require.NoError(t, err)
		assert.Equal(t, float32(30), tensor.MustValues[float32](h)[15])
	})
}

func TestApplyToHost(t *testing.T) {
	e := newTestExecutor(t, nil)
	mgr := e.Manager()

	a, err := mgr.ToDevice(mustFromSlice(t, []float64{3, 5}, 2))
	require.NoError(t, err)
	b, err := mgr.ToDevice(mustFromSlice(t, []float64{4, 12}, 2))
	require.NoError(t, err)

	live := mgr.Stats().BytesInUse
	h, err := e.ApplyToHost(kernel.Hypot, a, b)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{5, 13}, tensor.MustValues[float64](h), 1e-12)
	assert.Equal(t, live, mgr.Stats().BytesInUse, "device result is freed")

	// Host-only calls return the host result directly.
	h, err = e.ApplyToHost(kernel.Abs, mustFromSlice(t, []int32{-3, 3}, 2))
	require.NoError(t, err)
	assert.Equal(t, []int32{3, 3}, tensor.MustValues[int32](h))
}

func TestApplyEmpty(t *testing.T) {
	e := newTestExecutor(t, nil)
	x := mustFromSlice(t, []float32{}, 0, 3)

	res, err := e.Apply(kernel.Add, x, mustFromSlice(t, []float32{1, 2, 3}, 3))
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{0, 3}, res.Shape())

	dx, err := e.Manager().ToDevice(x)
	require.NoError(t, err)
	res, err = e.Apply(kernel.Negate, dx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.(*DeviceBuffer).NumElements())
}

func TestShaderFor(t *testing.T) {
	sameShape := []kernel.ArgType{kernel.ArrayArg(tensor.Float32), kernel.ArrayArg(tensor.Float32)}
	impl, err := kernel.Add.Specialize(sameShape)
	require.NoError(t, err)

	same := &call{impl: impl, ops: make([]operand, 2), shape: tensor.Shape{4}}
	l := kernel.NewLayout(tensor.Shape{4}, kernel.Input{Shape: tensor.Shape{4}}, kernel.Input{Shape: tensor.Shape{4}})
	s := shaderFor(same, l)
	require.NotNil(t, s)
	assert.Equal(t, "a + b", s.Expr)
	assert.Equal(t, 2, s.Arity)

	l = kernel.NewLayout(tensor.Shape{2, 4}, kernel.Input{Shape: tensor.Shape{2, 4}}, kernel.Input{Shape: tensor.Shape{4}})
	assert.Nil(t, shaderFor(same, l))

	withScalar := &call{impl: impl, ops: []operand{{}, {scalar: []byte{0, 0, 0, 0}}}, shape: tensor.Shape{4}}
	l = kernel.NewLayout(tensor.Shape{4}, kernel.Input{Shape: tensor.Shape{4}}, kernel.Input{Shape: tensor.Shape{}})
	assert.Nil(t, shaderFor(withScalar, l))
}
