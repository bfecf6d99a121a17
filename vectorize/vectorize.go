// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package vectorize

import (
	"github.com/born-ml/accel/internal/accel"
	"github.com/born-ml/accel/internal/kernel"
	"github.com/born-ml/accel/internal/parallel"
	"github.com/born-ml/accel/internal/tensor"
)

// Kernel is a named elementwise function.
type Kernel = kernel.Kernel

// Signature is one typed implementation of a kernel.
type Signature = kernel.Signature

// CompilationError reports that no signature accepts a call's argument types.
type CompilationError = kernel.CompilationError

// KernelPanicError reports a panic raised by an element function.
type KernelPanicError = accel.KernelPanicError

// Operand is a *tensor.HostArray, a *gpu.DeviceBuffer or a tensor.Scalar.
type Operand = accel.Operand

// Executor applies kernels with broadcasting.
type Executor = accel.Executor

// ParallelConfig controls host-side fan-out.
type ParallelConfig = parallel.Config

// Errors.
var (
	ErrCompilation    = kernel.ErrCompilation
	ErrArity          = accel.ErrArity
	ErrNoArrayOperand = accel.ErrNoArrayOperand
	ErrKernelPanic    = accel.ErrKernelPanic
)

// Built-in kernels.
var (
	Add     = kernel.Add
	Sub     = kernel.Sub
	Mul     = kernel.Mul
	Div     = kernel.Div
	Hypot   = kernel.Hypot
	Maximum = kernel.Maximum
	Abs     = kernel.Abs
	Negate  = kernel.Negate
)

// New creates a kernel from one or more signatures of the same arity.
func New(name string, sigs ...Signature) (*Kernel, error) {
	return kernel.New(name, sigs...)
}

// MustNew is New that panics on error.
func MustNew(name string, sigs ...Signature) *Kernel {
	return kernel.MustNew(name, sigs...)
}

// Unary builds a one-input signature.
func Unary[A, R tensor.DType](f func(A) R) Signature {
	return kernel.Unary(f)
}

// Binary builds a two-input signature.
func Binary[A, B, R tensor.DType](f func(A, B) R) Signature {
	return kernel.Binary(f)
}

// Ternary builds a three-input signature.
func Ternary[A, B, C, R tensor.DType](f func(A, B, C) R) Signature {
	return kernel.Ternary(f)
}

// DefaultParallel returns the default host fan-out configuration.
func DefaultParallel() ParallelConfig {
	return parallel.DefaultConfig()
}

// NewExecutor creates an executor that allocates device results from mgr.
func NewExecutor(mgr *accel.Manager, cfg ParallelConfig) *Executor {
	return accel.NewExecutor(mgr, cfg)
}
