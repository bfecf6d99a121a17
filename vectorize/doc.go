// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package vectorize applies elementwise kernels over host arrays, device
// buffers and scalars with NumPy-style broadcasting.
//
// # Kernels
//
// A Kernel is a named elementwise function with one implementation per input
// element-type signature:
//
//	clip := vectorize.MustNew("clip",
//	    vectorize.Ternary(func(x, lo, hi float32) float32 { return min(max(x, lo), hi) }),
//	    vectorize.Ternary(func(x, lo, hi float64) float64 { return min(max(x, lo), hi) }),
//	)
//
// Each call is specialized against the element types of its arguments.
// Scalars adapt to the array types when the value converts losslessly. When
// no signature matches, the call fails with *CompilationError; there is no
// slower fallback path.
//
// # Output Reuse
//
// ApplyInto writes into a caller-supplied output, so a loop can reuse one
// device buffer without allocating:
//
//	exec := vectorize.NewExecutor(mgr, vectorize.DefaultParallel())
//	out, _ := mgr.DeviceArray(tensor.Shape{4, 4}, tensor.Float32)
//	for _, batch := range batches {
//	    if _, err := exec.ApplyInto(out, vectorize.Add, a, batch); err != nil {
//	        return err
//	    }
//	}
package vectorize
