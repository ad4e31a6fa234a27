package layers

import "fmt"

// blockedOps follows the instruction sequence of a vectorized kernel:
// inputs are consumed ChunkSize bytes at a time, broadcast against a
// register-wide block of outputs, and multiplied through 16-bit pair sums
// the way u8 x i8 multiply-add instructions do. Outputs are processed in
// blocks of lanes int32 values (one register).
type blockedOps struct {
	lanes int
}

// Blocked returns the register-blocked implementation of Ops with the given
// number of int32 lanes per register (8 for 256-bit vectors).
//
// Under the Ops preconditions it is bit-identical to Scalar. Outside them it
// reproduces the hardware behavior instead: the unsigned path reads inputs as
// uint8 and pair sums saturate at 16 bits, and on the signed path a weight of
// -128 meeting a negative input wraps.
func Blocked(lanes int) Ops {
	if lanes <= 0 {
		panic(fmt.Sprintf("layers: lanes must be positive, got %d", lanes))
	}
	return blockedOps{lanes: lanes}
}

func (o blockedOps) Name() string {
	return fmt.Sprintf("blocked/%d", o.lanes*32)
}

type dot4Func func(x, w []int8) int32

func dot4For(signedInput bool) dot4Func {
	if signedInput {
		return dot4I8
	}
	return dot4U7
}

func (o blockedOps) Linear(out []int32, in []int8, w *FCWeight, signedInput bool) {
	nOut, nIn := w.OutputDimensions, w.InputDimensions
	acc := out[:nOut]
	copy(acc, w.Biases[:nOut])
	dot := dot4For(signedInput)

	for c := 0; c < nIn; c += ChunkSize {
		x := in[c : c+ChunkSize]
		for base := 0; base < nOut; base += o.lanes {
			end := min(base+o.lanes, nOut)
			for j := base; j < end; j++ {
				off := j*nIn + c
				acc[j] += dot(x, w.Weights[off:off+ChunkSize])
			}
		}
	}
}

func (o blockedOps) Linear4(out [BatchSize][]int32, in [BatchSize][]int8, w *FCWeight, signedInput bool) {
	nOut, nIn := w.OutputDimensions, w.InputDimensions
	acc0, acc1, acc2, acc3 := out[0][:nOut], out[1][:nOut], out[2][:nOut], out[3][:nOut]
	copy(acc0, w.Biases[:nOut])
	copy(acc1, w.Biases[:nOut])
	copy(acc2, w.Biases[:nOut])
	copy(acc3, w.Biases[:nOut])
	dot := dot4For(signedInput)

	for c := 0; c < nIn; c += ChunkSize {
		x0 := in[0][c : c+ChunkSize]
		x1 := in[1][c : c+ChunkSize]
		x2 := in[2][c : c+ChunkSize]
		x3 := in[3][c : c+ChunkSize]
		for base := 0; base < nOut; base += o.lanes {
			end := min(base+o.lanes, nOut)
			for j := base; j < end; j++ {
				off := j*nIn + c
				wc := w.Weights[off : off+ChunkSize]
				acc0[j] += dot(x0, wc)
				acc1[j] += dot(x1, wc)
				acc2[j] += dot(x2, wc)
				acc3[j] += dot(x3, wc)
			}
		}
	}
}

func (o blockedOps) CReLU(out []int8, in []int32, negate bool) {
	n := len(in)
	out = out[:n]
	for base := 0; base < n; base += o.lanes {
		end := min(base+o.lanes, n)
		for j := base; j < end; j++ {
			x := in[j]
			if negate {
				x = -x
			}
			// Arithmetic shift floors instead of truncating; the two only
			// disagree on negative values, which clamp to 0 either way.
			out[j] = int8(clamp(x>>ActivationShift, 0, ActivationMax))
		}
	}
}

func (o blockedOps) Dot2(out []int8, a, b []int8) {
	n := len(out)
	a = a[:2*n]
	b = b[:2*n]
	for base := 0; base < n; base += o.lanes {
		end := min(base+o.lanes, n)
		for j := base; j < end; j++ {
			s := maddPair(a[2*j], b[2*j], a[2*j+1], b[2*j+1])
			v := (int32(s) + 1<<(ActivationShift-1)) >> ActivationShift
			out[j] = int8(clamp(v, -ActivationMax, ActivationMax))
		}
	}
}

// maddPair is one 16-bit lane of a u8 x i8 multiply-add: x values are read as
// unsigned bytes and the sum of the two products saturates.
func maddPair(x0, w0, x1, w1 int8) int16 {
	return sat16(int32(uint8(x0))*int32(w0) + int32(uint8(x1))*int32(w1))
}

// dot4U7 accumulates one chunk whose inputs lie in [0, 127].
func dot4U7(x, w []int8) int32 {
	_ = x[3]
	_ = w[3]
	return int32(maddPair(x[0], w[0], x[1], w[1])) + int32(maddPair(x[2], w[2], x[3], w[3]))
}

// dot4I8 accumulates one chunk of full-range inputs by moving the sign of
// each input onto its weight and feeding |x| to the unsigned path.
func dot4I8(x, w []int8) int32 {
	_ = x[3]
	_ = w[3]
	var ax, sw [ChunkSize]int8
	for k := range ChunkSize {
		ax[k], sw[k] = absSign(x[k], w[k])
	}
	return dot4U7(ax[:], sw[:])
}

// absSign returns |x| as a byte pattern and w carrying the sign of x, with
// two's-complement wrap-around for -128.
func absSign(x, w int8) (int8, int8) {
	switch {
	case x < 0:
		return -x, -w
	case x == 0:
		return 0, 0
	default:
		return x, w
	}
}
