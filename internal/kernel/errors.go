package kernel

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors.
var (
	ErrCompilation   = errors.New("no matching kernel signature")
	ErrArity         = errors.New("wrong number of kernel inputs")
	ErrInvalidKernel = errors.New("invalid kernel definition")
)

// CompilationError reports that no signature of a kernel accepts the
// argument types of a call.
type CompilationError struct {
	Kernel    string
	Inputs    []ArgType
	Available []string // Signatures of the kernel, formatted
}

// Error implements the error interface.
func (e *CompilationError) Error() string {
	parts := make([]string, len(e.Inputs))
	for i, a := range e.Inputs {
		parts[i] = a.String()
	}
	return fmt.Sprintf("kernel %q: %s for (%s); available: %s",
		e.Kernel, ErrCompilation, strings.Join(parts, ", "), strings.Join(e.Available, ", "))
}

// Is makes errors.Is(err, ErrCompilation) succeed.
func (e *CompilationError) Is(target error) bool {
	return target == ErrCompilation
}
