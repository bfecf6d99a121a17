// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package gpu provides device memory spaces and explicit host/device transfers.
//
// Device buffers live in a memory space and are owned by a Manager. Moving
// data is always explicit:
//
//	mem := gpu.NewEmulated(gpu.DefaultConfig())
//	defer mem.Close()
//	mgr := gpu.NewManager(mem)
//
//	d, err := mgr.ToDevice(x)        // host -> device, ready
//	out, err := mgr.DeviceArray(shape, tensor.Float32) // uninitialized
//	h, err := mgr.CopyToHost(d)      // device -> host
//	err = mgr.Free(d)                // exactly once
//
// Reading a buffer that was never written fails with *NotReadyError, and any
// use of a freed buffer fails with *UseAfterFreeError. A Scope frees every
// buffer it tracks on Close:
//
//	s := mgr.NewScope()
//	defer s.Close()
//
// On Windows, NewWebGPU returns a memory space backed by a WebGPU device.
// Elsewhere the emulated memory space models discrete device memory in host
// RAM: contents are reachable only through transfers and kernels, fresh
// allocations are poisoned, and all work runs on one in-order stream.
package gpu
