// Package kernel defines elementwise kernels: named functions that carry one
// Go implementation per input element-type signature.
//
// A kernel is specialized against the concrete argument types of a call, which
// selects exactly one implementation or fails with a *CompilationError. There
// is no fallback to a generic path.
package kernel

import (
	"fmt"
	"strings"

	"github.com/born-ml/accel/internal/tensor"
)

// evalFunc evaluates output elements [lo, hi).
type evalFunc func(out []byte, ins [][]byte, layout *Layout, lo, hi int)

// Signature is one typed implementation of a kernel.
type Signature struct {
	in     []tensor.DataType
	out    tensor.DataType
	shader string
	eval   evalFunc
}

// Unary builds a one-input signature from f.
func Unary[A, R tensor.DType](f func(A) R) Signature {
	return Signature{
		in:  []tensor.DataType{tensor.TypeOf[A]()},
		out: tensor.TypeOf[R](),
		eval: func(out []byte, ins [][]byte, l *Layout, lo, hi int) {
			o := tensor.View[R](out)
			a := tensor.View[A](ins[0])
			for i := lo; i < hi; i++ {
				o[i] = f(a[l.Index(0, i)])
			}
		},
	}
}

// Binary builds a two-input signature from f.
func Binary[A, B, R tensor.DType](f func(A, B) R) Signature {
	return Signature{
		in:  []tensor.DataType{tensor.TypeOf[A](), tensor.TypeOf[B]()},
		out: tensor.TypeOf[R](),
		eval: func(out []byte, ins [][]byte, l *Layout, lo, hi int) {
			o := tensor.View[R](out)
			a := tensor.View[A](ins[0])
			b := tensor.View[B](ins[1])
			for i := lo; i < hi; i++ {
				o[i] = f(a[l.Index(0, i)], b[l.Index(1, i)])
			}
		},
	}
}

// Ternary builds a three-input signature from f.
func Ternary[A, B, C, R tensor.DType](f func(A, B, C) R) Signature {
	return Signature{
		in:  []tensor.DataType{tensor.TypeOf[A](), tensor.TypeOf[B](), tensor.TypeOf[C]()},
		out: tensor.TypeOf[R](),
		eval: func(out []byte, ins [][]byte, l *Layout, lo, hi int) {
			o := tensor.View[R](out)
			a := tensor.View[A](ins[0])
			b := tensor.View[B](ins[1])
			c := tensor.View[C](ins[2])
			for i := lo; i < hi; i++ {
				o[i] = f(a[l.Index(0, i)], b[l.Index(1, i)], c[l.Index(2, i)])
			}
		},
	}
}

// WithShader attaches a WGSL expression over the operands a, b and c.
// Only float32 signatures may carry a shader.
func (s Signature) WithShader(expr string) Signature {
	s.shader = expr
	return s
}

// In returns the input element types.
func (s Signature) In() []tensor.DataType {
	return append([]tensor.DataType(nil), s.in...)
}

// Out returns the output element type.
func (s Signature) Out() tensor.DataType {
	return s.out
}

// Shader returns the attached WGSL expression, if any.
func (s Signature) Shader() string {
	return s.shader
}

// String formats the signature as "(float32, float32) -> float32".
func (s Signature) String() string {
	return formatTypes(s.in) + " -> " + s.out.String()
}

// Kernel is a named elementwise function with one or more signatures.
// Kernels are immutable and safe for concurrent use.
type Kernel struct {
	name  string
	arity int
	sigs  []Signature
}

// New creates a kernel. Signatures are tried in the order given.
func New(name string, sigs ...Signature) (*Kernel, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrInvalidKernel)
	}
	if len(sigs) == 0 {
		return nil, fmt.Errorf("%w: kernel %q has no signatures", ErrInvalidKernel, name)
	}

	arity := len(sigs[0].in)
	seen := make(map[string]bool, len(sigs))
	for _, s := range sigs {
		if s.eval == nil {
			return nil, fmt.Errorf("%w: kernel %q: signature %s has no implementation", ErrInvalidKernel, name, s)
		}
		if len(s.in) != arity {
			return nil, fmt.Errorf("%w: kernel %q mixes %d-input and %d-input signatures",
				ErrInvalidKernel, name, arity, len(s.in))
		}
		key := formatTypes(s.in)
		if seen[key] {
			return nil, fmt.Errorf("%w: kernel %q: duplicate signature %s", ErrInvalidKernel, name, key)
		}
		seen[key] = true
		if s.shader != "" && !allFloat32(s) {
			return nil, fmt.Errorf("%w: kernel %q: shader on non-float32 signature %s", ErrInvalidKernel, name, s)
		}
	}

	return &Kernel{
		name:  name,
		arity: arity,
		sigs:  append([]Signature(nil), sigs...),
	}, nil
}

// MustNew is New that panics on error. For package-level kernel definitions.
func MustNew(name string, sigs ...Signature) *Kernel {
	k, err := New(name, sigs...)
	if err != nil {
		panic(err)
	}
	return k
}

// Name returns the kernel name.
func (k *Kernel) Name() string {
	return k.name
}

// Arity returns the number of inputs every signature takes.
func (k *Kernel) Arity() int {
	return k.arity
}

// Signatures returns the kernel's signatures in resolution order.
func (k *Kernel) Signatures() []Signature {
	return append([]Signature(nil), k.sigs...)
}

// Specialize selects the implementation for the given argument types.
//
// Array operands must match a signature's element types exactly. Scalar
// operands are weak: an exact match is preferred, otherwise the first
// signature whose array operands match and whose scalar operands convert
// losslessly is chosen.
func (k *Kernel) Specialize(args []ArgType) (*Impl, error) {
	if len(args) != k.arity {
		return nil, fmt.Errorf("%w: kernel %q takes %d inputs, got %d", ErrArity, k.name, k.arity, len(args))
	}

	for _, s := range k.sigs {
		if matches(s, args, false) {
			return newImpl(k.name, s), nil
		}
	}
	for _, s := range k.sigs {
		if matches(s, args, true) {
			return newImpl(k.name, s), nil
		}
	}

	avail := make([]string, len(k.sigs))
	for i, s := range k.sigs {
		avail[i] = s.String()
	}
	return nil, &CompilationError{
		Kernel:    k.name,
		Inputs:    append([]ArgType(nil), args...),
		Available: avail,
	}
}

// String returns the kernel name.
func (k *Kernel) String() string {
	return k.name
}

func matches(s Signature, args []ArgType, weak bool) bool {
	for i, a := range args {
		want := s.in[i]
		if a.DType == want {
			continue
		}
		if !weak || !a.Scalar || !a.Value.ConvertibleTo(want) {
			return false
		}
	}
	return true
}

func allFloat32(s Signature) bool {
	if s.out != tensor.Float32 {
		return false
	}
	for _, dt := range s.in {
		if dt != tensor.Float32 {
			return false
		}
	}
	return true
}

func formatTypes(types []tensor.DataType) string {
	parts := make([]string, len(types))
	for i, dt := range types {
		parts[i] = dt.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// ArgType describes one call argument for specialization.
type ArgType struct {
	DType  tensor.DataType
	Scalar bool
	Value  tensor.Scalar // Set when Scalar is true
}

// ArrayArg describes an array operand of element type dt.
func ArrayArg(dt tensor.DataType) ArgType {
	return ArgType{DType: dt}
}

// ScalarArg describes a scalar operand.
func ScalarArg(s tensor.Scalar) ArgType {
	return ArgType{DType: s.DType(), Scalar: true, Value: s}
}

// String formats the argument as "float32" or "scalar int64".
func (a ArgType) String() string {
	if a.Scalar {
		return "scalar " + a.DType.String()
	}
	return a.DType.String()
}

// Impl is a kernel specialized to one signature.
type Impl struct {
	Kernel string
	In     []tensor.DataType
	Out    tensor.DataType
	Shader string // WGSL expression, empty if none

	eval evalFunc
}

func newImpl(name string, s Signature) *Impl {
	return &Impl{
		Kernel: name,
		In:     s.In(),
		Out:    s.out,
		Shader: s.shader,
		eval:   s.eval,
	}
}

// Eval computes output elements [lo, hi) into out, a contiguous buffer of
// Out-typed elements. ins[k] holds the raw bytes of input k, already
// converted to In[k], addressed through layout.
func (im *Impl) Eval(out []byte, ins [][]byte, layout *Layout, lo, hi int) {
	im.eval(out, ins, layout, lo, hi)
}
