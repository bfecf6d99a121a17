//go:build !windows

package device

import "fmt"

// IsWebGPUAvailable reports false: the WebGPU memory space is built on windows only.
func IsWebGPUAvailable() bool {
	return false
}

// NewWebGPU always fails on this platform.
func NewWebGPU(_ int64) (Memory, error) {
	return nil, fmt.Errorf("webgpu: %w: requires a windows build", ErrUnavailable)
}
