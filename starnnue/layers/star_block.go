// Star block: two gated expansions combined pairwise, then contracted.

package layers

import (
	"fmt"
	"io"

	"github.com/hailam/mix9nnue/starnnue/common"
	"github.com/pkg/errors"
)

// StarBlockWeight is the parameter set of one star block with
// InputDimensions inputs and OutputDimensions outputs.
type StarBlockWeight struct {
	InputDimensions  int
	OutputDimensions int

	// Up1 and Up2 expand the input to 2*OutputDimensions values each.
	Up1 *FCWeight
	Up2 *FCWeight

	// Down contracts the combined activations back to OutputDimensions.
	Down *FCWeight
}

// NewStarBlockWeight creates zeroed parameters. Both dimensions must be
// multiples of ChunkSize.
func NewStarBlockWeight(outputDims, inputDims int) *StarBlockWeight {
	return &StarBlockWeight{
		InputDimensions:  inputDims,
		OutputDimensions: outputDims,
		Up1:              NewFCWeight(2*outputDims, inputDims),
		Up2:              NewFCWeight(2*outputDims, inputDims),
		Down:             NewFCWeight(outputDims, outputDims),
	}
}

// Size returns the serialized size in bytes.
func (s *StarBlockWeight) Size() int {
	return s.Up1.Size() + s.Up2.Size() + s.Down.Size()
}

// ReadParameters reads Up1, Up2 and Down in that order.
func (s *StarBlockWeight) ReadParameters(r io.Reader) error {
	for _, l := range []struct {
		name string
		fc   *FCWeight
	}{{"up1", s.Up1}, {"up2", s.Up2}, {"down", s.Down}} {
		if err := l.fc.ReadParameters(r); err != nil {
			return errors.WithMessagef(err, "star block %s", l.name)
		}
	}
	return nil
}

func (s *StarBlockWeight) String() string {
	return fmt.Sprintf("StarBlock(%d->%d)", s.InputDimensions, s.OutputDimensions)
}

// Propagate evaluates the block on one input:
//
//	up1  = CReLU(Up1*input)
//	up2  = CReLU(-(Up2*input))
//	comb = Dot2(up1, up2)
//	out  = CReLU(Down*comb)
//
// input must hold InputDimensions values in [0, 127]; output receives
// OutputDimensions values in [0, 127]. The result depends only on input and
// the weights.
func (s *StarBlockWeight) Propagate(ops Ops, input, output []int8) {
	upDims := 2 * s.OutputDimensions
	acc := common.AlignedInt32(upDims)
	up1 := common.AlignedInt8(upDims)
	up2 := common.AlignedInt8(upDims)

	s.Up1.Propagate(ops, input, acc, false)
	ops.CReLU(up1, acc, false)

	s.Up2.Propagate(ops, input, acc, false)
	ops.CReLU(up2, acc, true)

	comb := common.AlignedInt8(s.OutputDimensions)
	ops.Dot2(comb, up1, up2)

	out := acc[:s.OutputDimensions]
	s.Down.Propagate(ops, comb, out, true)
	ops.CReLU(output[:s.OutputDimensions], out, false)
}

// Propagate4 evaluates the block on BatchSize independent inputs, sharing
// every pass over the weights between them. For every lane k, output[k] is
// bit-identical to Propagate(ops, input[k], output[k]).
func (s *StarBlockWeight) Propagate4(ops Ops, input, output [BatchSize][]int8) {
	upDims := 2 * s.OutputDimensions
	var acc [BatchSize][]int32
	var up1, up2, comb [BatchSize][]int8
	for k := range BatchSize {
		acc[k] = common.AlignedInt32(upDims)
		up1[k] = common.AlignedInt8(upDims)
		up2[k] = common.AlignedInt8(upDims)
		comb[k] = common.AlignedInt8(s.OutputDimensions)
	}

	ops.Linear4(acc, input, s.Up1, false)
	for k := range BatchSize {
		ops.CReLU(up1[k], acc[k], false)
	}

	ops.Linear4(acc, input, s.Up2, false)
	for k := range BatchSize {
		ops.CReLU(up2[k], acc[k], true)
	}

	for k := range BatchSize {
		ops.Dot2(comb[k], up1[k], up2[k])
	}

	var out [BatchSize][]int32
	for k := range BatchSize {
		out[k] = acc[k][:s.OutputDimensions]
	}
	ops.Linear4(out, comb, s.Down, true)
	for k := range BatchSize {
		ops.CReLU(output[k][:s.OutputDimensions], out[k], false)
	}
}
