package kernel

import "github.com/born-ml/accel/internal/tensor"

// Input describes where one operand's elements live.
// Strides and Offset are in elements, not bytes.
type Input struct {
	Shape   tensor.Shape
	Strides []int // nil means row-major contiguous
	Offset  int
}

type inputLayout struct {
	offset   int
	strides  []int // Broadcast strides over the output shape; 0 on broadcast axes
	identity bool  // Element i of the output reads element offset+i
}

// Layout maps output element indices to input element indices under
// broadcasting.
type Layout struct {
	shape      tensor.Shape
	outStrides []int
	inputs     []inputLayout
}

// NewLayout builds the index mapping from each input to the output shape.
// The input shapes must be broadcast-compatible with out.
func NewLayout(out tensor.Shape, inputs ...Input) *Layout {
	l := &Layout{
		shape:      out.Clone(),
		outStrides: out.ComputeStrides(),
		inputs:     make([]inputLayout, len(inputs)),
	}
	for k, in := range inputs {
		strides := in.Strides
		if strides == nil {
			strides = in.Shape.ComputeStrides()
		}
		if in.Shape.Equal(out) && isRowMajor(in.Shape, strides) {
			l.inputs[k] = inputLayout{offset: in.Offset, identity: true}
			continue
		}
		l.inputs[k] = inputLayout{
			offset:  in.Offset,
			strides: broadcastStrides(in.Shape, strides, out),
		}
	}
	return l
}

// Shape returns the output shape.
func (l *Layout) Shape() tensor.Shape {
	return l.shape
}

// Broadcasts reports whether input k reads any element more than once or
// out of order.
func (l *Layout) Broadcasts(k int) bool {
	return !l.inputs[k].identity
}

// Index returns the element index into input k for output element i.
func (l *Layout) Index(k, i int) int {
	in := &l.inputs[k]
	if in.identity {
		return in.offset + i
	}
	idx := in.offset
	for d, os := range l.outStrides {
		idx += (i / os) * in.strides[d]
		i %= os
	}
	return idx
}

// broadcastStrides right-aligns an input's strides against out. Missing and
// size-1 dimensions get stride 0.
func broadcastStrides(inShape tensor.Shape, inStrides []int, out tensor.Shape) []int {
	strides := make([]int, len(out))
	pad := len(out) - len(inShape)
	for i := range out {
		j := i - pad
		if j < 0 || inShape[j] == 1 {
			continue
		}
		strides[i] = inStrides[j]
	}
	return strides
}

func isRowMajor(shape tensor.Shape, strides []int) bool {
	want := shape.ComputeStrides()
	for i, st := range strides {
		if shape[i] > 1 && st != want[i] {
			return false
		}
	}
	return true
}
