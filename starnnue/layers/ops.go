package layers

import "golang.org/x/exp/constraints"

// Ops is the set of vector primitives a star block is assembled from.
//
// Implementations must be deterministic and must not retain any argument.
// None of them validate their inputs; the preconditions below are the
// caller's responsibility and violating them is undefined behavior (results
// may differ between implementations, but never between the single and the
// batched kernels of the same implementation):
//
//   - len(in) >= w.InputDimensions and len(out) >= w.OutputDimensions.
//   - Linear with signedInput=false: every input lies in [0, 127].
//   - Linear with signedInput=true: inputs lie in [-127, 127] and no
//     negative input meets a weight of -128.
//   - CReLU: no accumulator equals math.MinInt32.
//   - Dot2: len(a), len(b) >= 2*len(out) and every value lies in [0, 127].
//
// With |bias| < 2^30 and InputDimensions < 2^16 no int32 accumulator can
// overflow.
type Ops interface {
	// Name identifies the implementation in reports.
	Name() string

	// Linear computes out[o] = w.Biases[o] + sum_i in[i]*w[o,i] in exact
	// int32 arithmetic.
	Linear(out []int32, in []int8, w *FCWeight, signedInput bool)

	// Linear4 computes Linear for BatchSize independent inputs, reading each
	// weight chunk once for all of them.
	Linear4(out [BatchSize][]int32, in [BatchSize][]int8, w *FCWeight, signedInput bool)

	// CReLU writes clamp(trunc(x/128), 0, 127) for every x in in, or
	// clamp(trunc(-x/128), 0, 127) when negate is set.
	CReLU(out []int8, in []int32, negate bool)

	// Dot2 writes clamp(round((a[2i]*b[2i] + a[2i+1]*b[2i+1]) / 128), -127, 127)
	// for every i < len(out).
	Dot2(out []int8, a, b []int8)
}

const (
	// ActivationShift is log2 of the fixed-point scale between an int32
	// accumulator and an int8 activation.
	ActivationShift = 7

	// ActivationMax is the largest clipped activation value.
	ActivationMax = 127
)

func clamp[T constraints.Integer](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// sat16 saturates v to the int16 range.
func sat16(v int32) int16 {
	return int16(clamp(v, -1<<15, 1<<15-1))
}
