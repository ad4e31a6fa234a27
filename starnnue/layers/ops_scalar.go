package layers

type scalarOps struct{}

// Scalar returns the reference implementation of Ops: plain widened
// integer arithmetic, one output at a time. It ignores the signedInput hint.
func Scalar() Ops {
	return scalarOps{}
}

func (scalarOps) Name() string {
	return "scalar"
}

func (scalarOps) Linear(out []int32, in []int8, w *FCWeight, _ bool) {
	in = in[:w.InputDimensions]
	out = out[:w.OutputDimensions]
	for o := range out {
		sum := w.Biases[o]
		for i, wv := range w.Row(o) {
			sum += int32(in[i]) * int32(wv)
		}
		out[o] = sum
	}
}

func (scalarOps) Linear4(out [BatchSize][]int32, in [BatchSize][]int8, w *FCWeight, _ bool) {
	n := w.InputDimensions
	in0, in1, in2, in3 := in[0][:n], in[1][:n], in[2][:n], in[3][:n]
	for o := range w.OutputDimensions {
		b := w.Biases[o]
		s0, s1, s2, s3 := b, b, b, b
		for i, wv := range w.Row(o) {
			v := int32(wv)
			s0 += int32(in0[i]) * v
			s1 += int32(in1[i]) * v
			s2 += int32(in2[i]) * v
			s3 += int32(in3[i]) * v
		}
		out[0][o] = s0
		out[1][o] = s1
		out[2][o] = s2
		out[3][o] = s3
	}
}

func (scalarOps) CReLU(out []int8, in []int32, negate bool) {
	out = out[:len(in)]
	for i, x := range in {
		v := int64(x)
		if negate {
			v = -v
		}
		// Go integer division truncates toward zero.
		out[i] = int8(clamp(v/(1<<ActivationShift), 0, ActivationMax))
	}
}

func (scalarOps) Dot2(out []int8, a, b []int8) {
	a = a[:2*len(out)]
	b = b[:2*len(out)]
	for i := range out {
		p := int32(a[2*i])*int32(b[2*i]) + int32(a[2*i+1])*int32(b[2*i+1])
		out[i] = int8(clamp(roundShift(p, ActivationShift), -ActivationMax, ActivationMax))
	}
}

// roundShift returns p / 2^shift rounded half away from zero.
func roundShift(p int32, shift uint) int32 {
	half := int32(1) << (shift - 1)
	if p < 0 {
		return -((-p + half) >> shift)
	}
	return (p + half) >> shift
}
