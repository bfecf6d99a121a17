package accel

import (
	"errors"
	"fmt"

	"github.com/born-ml/accel/internal/kernel"
)

// Common errors.
var (
	ErrNotReady           = errors.New("device buffer not ready")
	ErrUseAfterFree       = errors.New("device buffer used after free")
	ErrOutputContract     = errors.New("output buffer does not match call")
	ErrKernelPanic        = errors.New("kernel panicked")
	ErrForeignBuffer      = errors.New("device buffer belongs to another manager")
	ErrNoArrayOperand     = errors.New("apply needs at least one array operand")
	ErrUnsupportedOperand = errors.New("unsupported operand type")

	// ErrArity reports a call whose input count differs from the kernel's.
	ErrArity = kernel.ErrArity
)

// NotReadyError reports a read of a device buffer whose contents were never
// written.
type NotReadyError struct {
	Buffer uint64
	Op     string
}

// Error implements the error interface.
func (e *NotReadyError) Error() string {
	return fmt.Sprintf("%s: %s: buffer %d", e.Op, ErrNotReady, e.Buffer)
}

// Is makes errors.Is(err, ErrNotReady) succeed.
func (e *NotReadyError) Is(target error) bool {
	return target == ErrNotReady
}

// UseAfterFreeError reports an operation on a freed device buffer.
type UseAfterFreeError struct {
	Buffer uint64
	Op     string
}

// Error implements the error interface.
func (e *UseAfterFreeError) Error() string {
	return fmt.Sprintf("%s: %s: buffer %d", e.Op, ErrUseAfterFree, e.Buffer)
}

// Is makes errors.Is(err, ErrUseAfterFree) succeed.
func (e *UseAfterFreeError) Is(target error) bool {
	return target == ErrUseAfterFree
}

// OutputContractError reports a caller-supplied output that cannot receive
// the result of a call.
type OutputContractError struct {
	Field string // "shape", "dtype", "layout" or "memory space"
	Want  string
	Got   string
}

// Error implements the error interface.
func (e *OutputContractError) Error() string {
	return fmt.Sprintf("%s: %s: want %s, got %s", ErrOutputContract, e.Field, e.Want, e.Got)
}

// Is makes errors.Is(err, ErrOutputContract) succeed.
func (e *OutputContractError) Is(target error) bool {
	return target == ErrOutputContract
}

// KernelPanicError reports a panic raised by a kernel's element function.
type KernelPanicError struct {
	Kernel string
	Value  any
}

// Error implements the error interface.
func (e *KernelPanicError) Error() string {
	return fmt.Sprintf("kernel %q: %s: %v", e.Kernel, ErrKernelPanic, e.Value)
}

// Is makes errors.Is(err, ErrKernelPanic) succeed.
func (e *KernelPanicError) Is(target error) bool {
	return target == ErrKernelPanic
}
