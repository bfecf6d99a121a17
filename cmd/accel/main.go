// Package main provides the accel CLI.
package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/born-ml/accel/gpu"
	"github.com/born-ml/accel/tensor"
	"github.com/born-ml/accel/vectorize"
)

const version = "v0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}

	switch os.Args[1] {
	case "version":
		fmt.Printf("accel %s\n", version)
	case "info":
		info()
	case "demo":
		if err := demo(); err != nil {
			log.Fatalf("demo: %v", err)
		}
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Println("accel - host/device arrays and broadcasting elementwise kernels")
	fmt.Printf("Version: %s\n\n", version)
	fmt.Println("Commands:")
	fmt.Println("  version    Show version")
	fmt.Println("  info       Show host CPU and GPU availability")
	fmt.Println("  demo       Run the broadcasting demo on the emulated device")
}

func info() {
	fmt.Printf("Host:   %s\n", gpu.Host())
	if gpu.IsWebGPUAvailable() {
		fmt.Println("WebGPU: available")
	} else {
		fmt.Println("WebGPU: not available")
	}
}

func demo() error {
	mem := gpu.NewEmulated(gpu.DefaultConfig())
	defer func() { _ = mem.Close() }()

	mgr := gpu.NewManager(mem)
	exec := vectorize.NewExecutor(mgr, vectorize.DefaultParallel())

	s := mgr.NewScope()
	defer func() { _ = s.Close() }()

	x, err := tensor.Arange[float32](16)
	if err != nil {
		return err
	}
	if x, err = x.Reshape(tensor.Shape{4, 4}); err != nil {
		return err
	}
	v, err := tensor.FromSlice([]float32{10, 20, 30, 40}, tensor.Shape{4})
	if err != nil {
		return err
	}
	col, err := v.Reshape(tensor.Shape{4, 1})
	if err != nil {
		return err
	}

	dx, err := s.ToDevice(x)
	if err != nil {
		return err
	}
	dv, err := s.ToDevice(v)
	if err != nil {
		return err
	}
	dcol, err := s.ToDevice(col)
	if err != nil {
		return err
	}
	out, err := s.DeviceArray(tensor.Shape{4, 4}, tensor.Float32)
	if err != nil {
		return err
	}

	before := mgr.Stats().Allocs
	for _, step := range []struct {
		name string
		b    *gpu.DeviceBuffer
	}{
		{"row-wise    x + v", dv},
		{"column-wise x + v[:, None]", dcol},
	} {
		if _, err := exec.ApplyInto(out, vectorize.Add, dx, step.b); err != nil {
			return err
		}
		h, err := mgr.CopyToHost(out)
		if err != nil {
			return err
		}
		fmt.Printf("%s:\n%s\n", step.name, format(h))
	}

	stats := mgr.Stats()
	fmt.Printf("device %s: %d allocations during reuse, %d total, peak %d bytes\n",
		mem.Name(), stats.Allocs-before, stats.Allocs, stats.PeakBytes)
	return nil
}

// format prints a 2-D float32 array one row per line.
func format(h *tensor.HostArray) string {
	vals := tensor.MustValues[float32](h)
	cols := h.Shape()[1]
	var sb strings.Builder
	for i := 0; i < len(vals); i += cols {
		sb.WriteString("  ")
		for j, v := range vals[i : i+cols] {
			if j > 0 {
				sb.WriteString(" ")
			}
			fmt.Fprintf(&sb, "%4g", v)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
