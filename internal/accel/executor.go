package accel

import (
	"fmt"
	"sync"

	"github.com/born-ml/accel/internal/device"
	"github.com/born-ml/accel/internal/kernel"
	"github.com/born-ml/accel/internal/parallel"
	"github.com/born-ml/accel/internal/tensor"
)

// Operand is an input or result of an elementwise call:
// a *tensor.HostArray, a *DeviceBuffer or a tensor.Scalar.
type Operand interface {
	DType() tensor.DataType
	Shape() tensor.Shape
}

// Executor applies elementwise kernels with broadcasting.
//
// A call runs on the device when any input or the supplied output is a
// DeviceBuffer; host inputs of such a call are copied to temporary device
// buffers that are freed before the call returns. Otherwise it runs on the
// host, fanned out according to the executor's parallel.Config.
type Executor struct {
	mgr *Manager
	cfg parallel.Config
}

// NewExecutor creates an executor over mgr.
func NewExecutor(mgr *Manager, cfg parallel.Config) *Executor {
	return &Executor{mgr: mgr, cfg: cfg}
}

// Manager returns the manager device results are allocated from.
func (e *Executor) Manager() *Manager {
	return e.mgr
}

// Apply evaluates k elementwise over the broadcast of args and returns a
// newly allocated result in the call's memory space.
func (e *Executor) Apply(k *kernel.Kernel, args ...Operand) (Operand, error) {
	return e.apply(k, nil, args)
}

// ApplyInto evaluates k into out and returns out. out must have the broadcast
// shape, the kernel's result dtype and the call's memory space; host outputs
// must be contiguous. Reusing out allocates no device memory when every input
// is already on the device.
//
// If the call fails after validation, out's contents are indeterminate and a
// device output is marked not ready.
func (e *Executor) ApplyInto(out Operand, k *kernel.Kernel, args ...Operand) (Operand, error) {
	if out == nil {
		return nil, fmt.Errorf("apply %s: %w", k.Name(),
			&OutputContractError{Field: "memory space", Want: "host array or device buffer", Got: "nil"})
	}
	return e.apply(k, out, args)
}

// ApplyToHost is Apply followed by a copy of a device result back to the
// host. The device result is freed.
func (e *Executor) ApplyToHost(k *kernel.Kernel, args ...Operand) (*tensor.HostArray, error) {
	res, err := e.Apply(k, args...)
	if err != nil {
		return nil, err
	}
	b, ok := res.(*DeviceBuffer)
	if !ok {
		return res.(*tensor.HostArray), nil
	}

	h, err := e.copyBack(b)
	if ferr := e.mgr.Free(b); ferr != nil && err == nil {
		err = ferr
	}
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (e *Executor) copyBack(b *DeviceBuffer) (*tensor.HostArray, error) {
	if err := e.mgr.Synchronize(); err != nil {
		return nil, err
	}
	return e.mgr.CopyToHost(b)
}

// operand is one classified call argument. Exactly one field is set.
type operand struct {
	host   *tensor.HostArray
	dev    *DeviceBuffer
	scalar []byte // Encoded as the specialized input dtype
}

// call is a validated, specialized invocation.
type call struct {
	impl     *kernel.Impl
	ops      []operand
	shape    tensor.Shape
	onDevice bool
}

func (e *Executor) apply(k *kernel.Kernel, out Operand, args []Operand) (Operand, error) {
	c, err := e.prepare(k, out, args)
	if err != nil {
		return nil, err
	}

	if !c.onDevice {
		h, _ := out.(*tensor.HostArray)
		res, err := e.runHost(c, h)
		if err != nil {
			return nil, err
		}
		return res, nil
	}
	b, _ := out.(*DeviceBuffer)
	res, err := e.runDevice(c, b)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// prepare classifies args, resolves the broadcast shape, specializes k and
// checks out against the result.
func (e *Executor) prepare(k *kernel.Kernel, out Operand, args []Operand) (*call, error) {
	name := k.Name()
	if len(args) != k.Arity() {
		return nil, fmt.Errorf("apply %s: %w: takes %d inputs, got %d", name, ErrArity, k.Arity(), len(args))
	}

	c := &call{ops: make([]operand, len(args))}
	types := make([]kernel.ArgType, len(args))
	shapes := make([]tensor.Shape, len(args))
	scalars := make(map[int]tensor.Scalar)
	arrays := 0

	for i, a := range args {
		switch v := a.(type) {
		case *tensor.HostArray:
			if v == nil {
				return nil, fmt.Errorf("apply %s: %w: input %d is a nil host array", name, ErrUnsupportedOperand, i)
			}
			c.ops[i].host = v
			types[i] = kernel.ArrayArg(v.DType())
			arrays++
		case *DeviceBuffer:
			if err := e.mgr.checkReadable(v, "apply "+name); err != nil {
				return nil, err
			}
			c.ops[i].dev = v
			c.onDevice = true
			types[i] = kernel.ArrayArg(v.DType())
			arrays++
		case tensor.Scalar:
			scalars[i] = v
			types[i] = kernel.ScalarArg(v)
		case *tensor.Scalar:
			if v == nil {
				return nil, fmt.Errorf("apply %s: %w: input %d is a nil scalar", name, ErrUnsupportedOperand, i)
			}
			scalars[i] = *v
			types[i] = kernel.ScalarArg(*v)
		default:
			return nil, fmt.Errorf("apply %s: %w: input %d is %T", name, ErrUnsupportedOperand, i, a)
		}
		shapes[i] = a.Shape()
	}
	if arrays == 0 {
		return nil, fmt.Errorf("apply %s: %w", name, ErrNoArrayOperand)
	}

	shape, err := tensor.Broadcast(shapes...)
	if err != nil {
		return nil, fmt.Errorf("apply %s: %w", name, err)
	}
	c.shape = shape

	impl, err := k.Specialize(types)
	if err != nil {
		return nil, err
	}
	c.impl = impl

	for i, s := range scalars {
		b, err := s.Bytes(impl.In[i])
		if err != nil {
			return nil, fmt.Errorf("apply %s: input %d: %w", name, i, err)
		}
		c.ops[i].scalar = b
	}

	if err := e.checkOut(c, out); err != nil {
		return nil, fmt.Errorf("apply %s: %w", name, err)
	}
	return c, nil
}

func (e *Executor) checkOut(c *call, out Operand) error {
	switch o := out.(type) {
	case nil:
		return nil
	case *DeviceBuffer:
		if err := e.mgr.check(o, "output"); err != nil {
			return err
		}
		if !o.shape.Equal(c.shape) {
			return &OutputContractError{Field: "shape", Want: c.shape.String(), Got: o.shape.String()}
		}
		if o.dtype != c.impl.Out {
			return &OutputContractError{Field: "dtype", Want: c.impl.Out.String(), Got: o.dtype.String()}
		}
		c.onDevice = true
		return nil
	case *tensor.HostArray:
		if o == nil {
			return fmt.Errorf("%w: nil host output", ErrUnsupportedOperand)
		}
		if c.onDevice {
			return &OutputContractError{Field: "memory space", Want: "device buffer", Got: "host array"}
		}
		return checkHostOut(o, c.shape, c.impl.Out)
	default:
		return fmt.Errorf("%w: output is %T", ErrUnsupportedOperand, out)
	}
}

func (e *Executor) runHost(c *call, out *tensor.HostArray) (*tensor.HostArray, error) {
	if out == nil {
		var err error
		if out, err = tensor.NewHost(c.shape, c.impl.Out); err != nil {
			return nil, err
		}
	}

	ins := make([][]byte, len(c.ops))
	inputs := make([]kernel.Input, len(c.ops))
	for i, op := range c.ops {
		if op.scalar != nil {
			ins[i] = op.scalar
			inputs[i] = kernel.Input{Shape: tensor.Shape{}}
			continue
		}
		data, off := op.host.Backing()
		size := op.host.DType().Size()
		strides := make([]int, len(op.host.Strides()))
		for d, st := range op.host.Strides() {
			strides[d] = st / size
		}
		ins[i] = data[off:]
		inputs[i] = kernel.Input{Shape: op.host.Shape(), Strides: strides}
	}

	layout := kernel.NewLayout(c.shape, inputs...)
	dst, _ := out.Bytes()

	var (
		mu       sync.Mutex
		firstErr error
	)
	parallel.ForRange(c.shape.NumElements(), func(lo, hi int) {
		if err := eval(c.impl, dst, ins, layout, lo, hi); err != nil {
			mu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			mu.Unlock()
		}
	}, e.cfg)
	if firstErr != nil {
		return nil, fmt.Errorf("apply %s: %w", c.impl.Kernel, firstErr)
	}
	return out, nil
}

func (e *Executor) runDevice(c *call, out *DeviceBuffer) (res *DeviceBuffer, err error) {
	name := c.impl.Kernel

	var temps []*DeviceBuffer
	defer func() {
		for _, t := range temps {
			if ferr := e.mgr.Free(t); ferr != nil && err == nil {
				res, err = nil, ferr
			}
		}
	}()

	// slots[i] is the index of input i in the job's allocations, or -1 for
	// scalars, which travel with the job body.
	slots := make([]int, len(c.ops))
	inputs := make([]kernel.Input, len(c.ops))
	var allocs []device.Allocation
	for i, op := range c.ops {
		if op.scalar != nil {
			slots[i] = -1
			inputs[i] = kernel.Input{Shape: tensor.Shape{}}
			continue
		}
		buf := op.dev
		if op.host != nil {
			if buf, err = e.mgr.ToDevice(op.host); err != nil {
				return nil, fmt.Errorf("apply %s: input %d: %w", name, i, err)
			}
			temps = append(temps, buf)
		}
		slots[i] = len(allocs)
		allocs = append(allocs, buf.alloc)
		inputs[i] = kernel.Input{Shape: buf.shape}
	}

	allocated := out == nil
	if allocated {
		if out, err = e.mgr.DeviceArray(c.shape, c.impl.Out); err != nil {
			return nil, fmt.Errorf("apply %s: %w", name, err)
		}
	}

	layout := kernel.NewLayout(c.shape, inputs...)
	target := out
	job := device.Job{
		Name: name,
		N:    c.shape.NumElements(),
		Out:  out.alloc,
		Ins:  allocs,
		Run: func(dst []byte, devIns [][]byte, lo, hi int) error {
			ins := make([][]byte, len(slots))
			for i, s := range slots {
				if s < 0 {
					ins[i] = c.ops[i].scalar
				} else {
					ins[i] = devIns[s]
				}
			}
			return eval(c.impl, dst, ins, layout, lo, hi)
		},
		Shader: shaderFor(c, layout),
		// The last job issued against out decides whether it is readable.
		Done: func(err error) { target.ready.Store(err == nil) },
	}

	// Ready is set at issue so queued calls can consume out.
	out.ready.Store(true)
	if err := e.mgr.mem.Launch(job); err != nil {
		out.ready.Store(false)
		if allocated {
			_ = e.mgr.Free(out)
		}
		return nil, fmt.Errorf("apply %s: %w", name, err)
	}
	return out, nil
}

// shaderFor returns the GPU form of a call, or nil when the call needs
// scalars or broadcasting.
func shaderFor(c *call, layout *kernel.Layout) *device.Shader {
	if c.impl.Shader == "" {
		return nil
	}
	for i, op := range c.ops {
		if op.scalar != nil || layout.Broadcasts(i) {
			return nil
		}
	}
	return &device.Shader{Expr: c.impl.Shader, Arity: len(c.ops)}
}

// eval runs one range of a kernel and converts a panic in the element
// function into a *KernelPanicError.
func eval(impl *kernel.Impl, out []byte, ins [][]byte, layout *kernel.Layout, lo, hi int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &KernelPanicError{Kernel: impl.Kernel, Value: r}
		}
	}()
	impl.Eval(out, ins, layout, lo, hi)
	return nil
}
