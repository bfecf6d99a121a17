// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides host-resident arrays for the accel packages.
//
// # Overview
//
// This package provides:
//   - Element type tags (DataType) tied to Go types by the DType constraint
//   - Shapes with NumPy-style broadcasting
//   - Strided host arrays (HostArray) with zero-copy Reshape and Transpose views
//   - Weakly typed scalars that broadcast as shape ()
//
// # Basic Usage
//
//	import "github.com/born-ml/accel/tensor"
//
//	func main() {
//	    x, _ := tensor.Arange[float32](16)
//	    m, _ := x.Reshape(tensor.Shape{4, 4})
//	    fmt.Println(m.Shape(), m.DType()) // (4, 4) float32
//	}
//
// # Broadcasting
//
// Shapes are compared from the trailing dimension. Two dimensions are
// compatible when they are equal or one of them is 1; missing leading
// dimensions count as 1:
//
//	(4, 4) and (4,)   -> (4, 4)
//	(4, 4) and (4, 1) -> (4, 4)
//	(3,)   and (4,)   -> error: *ShapeMismatchError
package tensor
