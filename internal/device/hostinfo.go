package device

import (
	"fmt"
	"runtime"
	"strings"

	"golang.org/x/sys/cpu"
)

// HostInfo describes the host processor that executes host-path kernels
// and emulated device work.
type HostInfo struct {
	Arch    string
	OS      string
	NumCPU  int
	AVX2    bool
	AVX512F bool
	FMA     bool
	ASIMD   bool // ARM64 Advanced SIMD (NEON)
}

// Host detects host CPU features using golang.org/x/sys/cpu.
func Host() HostInfo {
	return HostInfo{
		Arch:    runtime.GOARCH,
		OS:      runtime.GOOS,
		NumCPU:  runtime.NumCPU(),
		AVX2:    cpu.X86.HasAVX2,
		AVX512F: cpu.X86.HasAVX512F,
		FMA:     cpu.X86.HasFMA,
		ASIMD:   cpu.ARM64.HasASIMD,
	}
}

// Features lists the detected SIMD feature names.
func (h HostInfo) Features() []string {
	var f []string
	if h.AVX2 {
		f = append(f, "avx2")
	}
	if h.AVX512F {
		f = append(f, "avx512f")
	}
	if h.FMA {
		f = append(f, "fma")
	}
	if h.ASIMD {
		f = append(f, "asimd")
	}
	return f
}

// String returns a one-line summary, e.g. "linux/amd64, 16 CPUs [avx2 fma]".
func (h HostInfo) String() string {
	return fmt.Sprintf("%s/%s, %d CPUs [%s]", h.OS, h.Arch, h.NumCPU, strings.Join(h.Features(), " "))
}
