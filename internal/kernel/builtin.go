package kernel

import "math"

type number interface {
	~float32 | ~float64 | ~int32 | ~int64
}

type float interface {
	~float32 | ~float64
}

// Built-in kernels.
var (
	// Add computes a + b.
	Add = MustNew("add",
		Binary(add[float32]).WithShader("a + b"),
		Binary(add[float64]),
		Binary(add[int32]),
		Binary(add[int64]),
	)

	// Sub computes a - b.
	Sub = MustNew("sub",
		Binary(sub[float32]).WithShader("a - b"),
		Binary(sub[float64]),
		Binary(sub[int32]),
		Binary(sub[int64]),
	)

	// Mul computes a * b.
	Mul = MustNew("mul",
		Binary(mul[float32]).WithShader("a * b"),
		Binary(mul[float64]),
		Binary(mul[int32]),
		Binary(mul[int64]),
	)

	// Div computes a / b. Integer division truncates toward zero and
	// panics on a zero divisor, which apply reports as a *KernelPanicError.
	Div = MustNew("div",
		Binary(div[float32]).WithShader("a / b"),
		Binary(div[float64]),
		Binary(div[int32]),
		Binary(div[int64]),
	)

	// Hypot computes sqrt(a*a + b*b) without intermediate overflow.
	Hypot = MustNew("hypot",
		Binary(hypot[float32]),
		Binary(hypot[float64]),
	)

	// Maximum returns the larger of a and b, propagating NaN.
	Maximum = MustNew("maximum",
		Binary(maximum[float32]).WithShader("max(a, b)"),
		Binary(maximum[float64]),
		Binary(maximum[int32]),
		Binary(maximum[int64]),
	)

	// Abs computes |a|.
	Abs = MustNew("abs",
		Unary(abs[float32]).WithShader("abs(a)"),
		Unary(abs[float64]),
		Unary(abs[int32]),
		Unary(abs[int64]),
	)

	// Negate computes -a.
	Negate = MustNew("negate",
		Unary(negate[float32]).WithShader("-a"),
		Unary(negate[float64]),
		Unary(negate[int32]),
		Unary(negate[int64]),
	)
)

func add[T number](a, b T) T { return a + b }
func sub[T number](a, b T) T { return a - b }
func mul[T number](a, b T) T { return a * b }
func div[T number](a, b T) T { return a / b }

func negate[T number](a T) T { return -a }

func abs[T number](a T) T {
	if a < 0 {
		return -a
	}
	return a
}

func maximum[T number](a, b T) T {
	return max(a, b)
}

func hypot[T float](a, b T) T {
	if math.IsInf(float64(a), 0) || math.IsInf(float64(b), 0) {
		return T(math.Inf(1))
	}
	x := T(math.Abs(float64(a)))
	y := T(math.Abs(float64(b)))
	t := min(x, y)
	x = max(x, y)
	if x == 0 {
		return x
	}
	t /= x
	return x * T(math.Sqrt(float64(1+t*t)))
}
