// Quantized fully connected (affine) layer parameters.

package layers

import (
	"fmt"
	"io"

	"github.com/hailam/mix9nnue/starnnue/common"
	"github.com/pkg/errors"
)

const (
	// ChunkSize is the number of input bytes consumed per multiply-add step.
	// Every InputDimensions must be a multiple of it.
	ChunkSize = 4

	// BatchSize is the number of independent inputs processed by the
	// batched kernels.
	BatchSize = 4
)

// FCWeight holds the parameters of one quantized affine transform:
// int8 weights and int32 biases. It is immutable once loaded and may be
// shared by any number of concurrent evaluations.
type FCWeight struct {
	InputDimensions  int
	OutputDimensions int

	// Weights are row-major: Weights[o*InputDimensions+i].
	Weights []int8

	// Biases holds one int32 per output.
	Biases []int32
}

// NewFCWeight creates zeroed parameters for an outputDims x inputDims layer.
// It panics if inputDims is not a multiple of ChunkSize.
func NewFCWeight(outputDims, inputDims int) *FCWeight {
	if inputDims <= 0 || inputDims%ChunkSize != 0 {
		panic(fmt.Sprintf("layers: input dimensions %d must be a positive multiple of %d", inputDims, ChunkSize))
	}
	if outputDims <= 0 {
		panic(fmt.Sprintf("layers: output dimensions %d must be positive", outputDims))
	}
	return &FCWeight{
		InputDimensions:  inputDims,
		OutputDimensions: outputDims,
		Weights:          common.AlignedInt8(outputDims * inputDims),
		Biases:           common.AlignedInt32(outputDims),
	}
}

// Size returns the serialized size in bytes: weights followed by biases.
func (f *FCWeight) Size() int {
	return f.OutputDimensions*f.InputDimensions + 4*f.OutputDimensions
}

// Row returns the weights feeding output o.
func (f *FCWeight) Row(o int) []int8 {
	n := f.InputDimensions
	return f.Weights[o*n : o*n+n]
}

// ReadParameters reads the weights and then the biases, little-endian.
func (f *FCWeight) ReadParameters(r io.Reader) error {
	if err := common.ReadLittleEndianSlice(r, f.Weights); err != nil {
		return errors.Wrapf(err, "failed to read %dx%d weights", f.OutputDimensions, f.InputDimensions)
	}
	if err := common.ReadLittleEndianSlice(r, f.Biases); err != nil {
		return errors.Wrapf(err, "failed to read %d biases", f.OutputDimensions)
	}
	return nil
}

// Propagate computes output = Weights*input + Biases with the given ops.
// len(input) >= InputDimensions, len(output) >= OutputDimensions.
// signedInput must be false only if every input lies in [0, 127].
func (f *FCWeight) Propagate(ops Ops, input []int8, output []int32, signedInput bool) {
	ops.Linear(output, input, f, signedInput)
}
