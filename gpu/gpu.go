// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package gpu

import (
	"github.com/born-ml/accel/internal/accel"
	"github.com/born-ml/accel/internal/device"
)

// Memory is a device memory space.
type Memory = device.Memory

// Config controls an emulated memory space.
type Config = device.Config

// Emulated is a memory space backed by host RAM.
type Emulated = device.Emulated

// Stats contains allocation and transfer counters of a memory space.
type Stats = device.Stats

// HostInfo describes the host CPU.
type HostInfo = device.HostInfo

// AllocationError reports an allocation the memory space could not satisfy.
type AllocationError = device.AllocationError

// Manager owns the device buffers of one memory space.
type Manager = accel.Manager

// DeviceBuffer is a device-resident array owned by a Manager.
type DeviceBuffer = accel.DeviceBuffer

// Scope frees the buffers it tracks on Close.
type Scope = accel.Scope

// Error types.
type (
	NotReadyError       = accel.NotReadyError
	UseAfterFreeError   = accel.UseAfterFreeError
	OutputContractError = accel.OutputContractError
)

// Errors.
var (
	ErrAllocation     = device.ErrAllocation
	ErrUnavailable    = device.ErrUnavailable
	ErrNotReady       = accel.ErrNotReady
	ErrUseAfterFree   = accel.ErrUseAfterFree
	ErrOutputContract = accel.ErrOutputContract
	ErrForeignBuffer  = accel.ErrForeignBuffer
)

// DefaultConfig returns a synchronous 1 GiB emulated device configuration.
func DefaultConfig() Config {
	return device.DefaultConfig()
}

// NewEmulated creates an emulated memory space.
func NewEmulated(cfg Config) *Emulated {
	return device.NewEmulated(cfg)
}

// NewWebGPU opens the default WebGPU adapter as a memory space with the
// given capacity in bytes (0 for unlimited). It returns an error wrapping
// ErrUnavailable when no adapter can be opened.
func NewWebGPU(capacity int64) (Memory, error) {
	return device.NewWebGPU(capacity)
}

// IsWebGPUAvailable reports whether NewWebGPU can succeed.
func IsWebGPUAvailable() bool {
	return device.IsWebGPUAvailable()
}

// Host returns the host CPU description.
func Host() HostInfo {
	return device.Host()
}

// NewManager creates a manager over mem.
func NewManager(mem Memory) *Manager {
	return accel.NewManager(mem)
}
