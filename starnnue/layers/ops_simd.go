//go:build goexperiment.simd && amd64
// +build goexperiment.simd,amd64

// AVX2 kernels built on the experimental simd/archsimd package.
// Requires Go 1.26+ with GOEXPERIMENT=simd on amd64.

package layers

import (
	"simd/archsimd"
	"sync"

	"golang.org/x/sys/cpu"
)

// Number of int32 values processed per iteration (256-bit AVX2).
const simdInt32Width = 8

type simdOps struct{}

// vectorOps returns the AVX2 implementation when the CPU supports it.
func vectorOps() (Ops, bool) {
	if !cpu.X86.HasAVX2 {
		return nil, false
	}
	return simdOps{}, true
}

func (simdOps) Name() string {
	return "avx2"
}

// widened holds int32 copies of the inputs of one Linear or Linear4 call.
var widened = sync.Pool{New: func() any { return new([]int32) }}

func getWidened(n int) *[]int32 {
	p := widened.Get().(*[]int32)
	if cap(*p) < n {
		*p = make([]int32, n)
	}
	*p = (*p)[:n]
	return p
}

func widen(dst []int32, src []int8) {
	for i, v := range src {
		dst[i] = int32(v)
	}
}

func hsum(v archsimd.Int32x8) int32 {
	var t [simdInt32Width]int32
	v.StoreSlice(t[:])
	return t[0] + t[1] + t[2] + t[3] + t[4] + t[5] + t[6] + t[7]
}

// Linear multiplies in exact int32 arithmetic, so it agrees with Scalar for
// every input, not only under the Ops preconditions.
func (simdOps) Linear(out []int32, in []int8, w *FCWeight, _ bool) {
	n := w.InputDimensions
	buf := getWidened(n)
	defer widened.Put(buf)
	x := *buf
	widen(x, in[:n])

	var wb [simdInt32Width]int32
	for o := range out[:w.OutputDimensions] {
		row := w.Row(o)
		acc := archsimd.BroadcastInt32x8(0)
		i := 0
		for ; i+simdInt32Width <= n; i += simdInt32Width {
			widen(wb[:], row[i:i+simdInt32Width])
			acc = acc.Add(archsimd.LoadInt32x8Slice(x[i:]).Mul(archsimd.LoadInt32x8Slice(wb[:])))
		}
		sum := w.Biases[o] + hsum(acc)

		// Handle remaining elements
		for ; i < n; i++ {
			sum += x[i] * int32(row[i])
		}
		out[o] = sum
	}
}

func (simdOps) Linear4(out [BatchSize][]int32, in [BatchSize][]int8, w *FCWeight, _ bool) {
	n := w.InputDimensions
	buf := getWidened(BatchSize * n)
	defer widened.Put(buf)
	x := *buf
	x0, x1, x2, x3 := x[:n], x[n:2*n], x[2*n:3*n], x[3*n:]
	widen(x0, in[0][:n])
	widen(x1, in[1][:n])
	widen(x2, in[2][:n])
	widen(x3, in[3][:n])

	var wb [simdInt32Width]int32
	for o := range w.OutputDimensions {
		row := w.Row(o)
		a0 := archsimd.BroadcastInt32x8(0)
		a1, a2, a3 := a0, a0, a0
		i := 0
		for ; i+simdInt32Width <= n; i += simdInt32Width {
			widen(wb[:], row[i:i+simdInt32Width])
			wv := archsimd.LoadInt32x8Slice(wb[:])
			a0 = a0.Add(archsimd.LoadInt32x8Slice(x0[i:]).Mul(wv))
			a1 = a1.Add(archsimd.LoadInt32x8Slice(x1[i:]).Mul(wv))
			a2 = a2.Add(archsimd.LoadInt32x8Slice(x2[i:]).Mul(wv))
			a3 = a3.Add(archsimd.LoadInt32x8Slice(x3[i:]).Mul(wv))
		}
		b := w.Biases[o]
		s0, s1, s2, s3 := b+hsum(a0), b+hsum(a1), b+hsum(a2), b+hsum(a3)
		for ; i < n; i++ {
			v := int32(row[i])
			s0 += x0[i] * v
			s1 += x1[i] * v
			s2 += x2[i] * v
			s3 += x3[i] * v
		}
		out[0][o] = s0
		out[1][o] = s1
		out[2][o] = s2
		out[3][o] = s3
	}
}

// CReLU shifts instead of dividing: the two differ only on negative values,
// which the clamp maps to zero either way.
func (simdOps) CReLU(out []int8, in []int32, negate bool) {
	n := len(in)
	zero := archsimd.Int32x8{}
	maxVal := archsimd.BroadcastInt32x8(ActivationMax)
	var t [simdInt32Width]int32

	i := 0
	for ; i+simdInt32Width <= n; i += simdInt32Width {
		v := archsimd.LoadInt32x8Slice(in[i:])
		if negate {
			v = zero.Sub(v)
		}
		v = v.ShiftAllRight(ActivationShift).Max(zero).Min(maxVal)
		v.StoreSlice(t[:])
		for j, r := range t {
			out[i+j] = int8(r)
		}
	}

	// Handle remaining elements
	if i < n {
		scalarOps{}.CReLU(out[i:n], in[i:], negate)
	}
}

// Dot2 rounds half away from zero by shifting the positive and negative parts
// separately.
func (simdOps) Dot2(out []int8, a, b []int8) {
	n := len(out)
	zero := archsimd.Int32x8{}
	half := archsimd.BroadcastInt32x8(1 << (ActivationShift - 1))
	hi := archsimd.BroadcastInt32x8(ActivationMax)
	lo := archsimd.BroadcastInt32x8(-ActivationMax)
	var ae, ao, be, bo, t [simdInt32Width]int32

	i := 0
	for ; i+simdInt32Width <= n; i += simdInt32Width {
		for j := range simdInt32Width {
			k := 2 * (i + j)
			ae[j], ao[j] = int32(a[k]), int32(a[k+1])
			be[j], bo[j] = int32(b[k]), int32(b[k+1])
		}
		p := archsimd.LoadInt32x8Slice(ae[:]).Mul(archsimd.LoadInt32x8Slice(be[:])).
			Add(archsimd.LoadInt32x8Slice(ao[:]).Mul(archsimd.LoadInt32x8Slice(bo[:])))
		pos := p.Max(zero).Add(half).ShiftAllRight(ActivationShift)
		neg := zero.Sub(p).Max(zero).Add(half).ShiftAllRight(ActivationShift)
		v := pos.Sub(neg).Max(lo).Min(hi)
		v.StoreSlice(t[:])
		for j, r := range t {
			out[i+j] = int8(r)
		}
	}

	// Handle remaining elements
	if i < n {
		scalarOps{}.Dot2(out[i:], a[2*i:], b[2*i:])
	}
}
