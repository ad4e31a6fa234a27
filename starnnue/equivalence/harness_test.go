package equivalence

import (
	"testing"

	"github.com/hailam/mix9nnue/starnnue/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigPasses(t *testing.T) {
	for _, ops := range append(layers.All(), layers.Models()...) {
		report := Run(ops, DefaultConfig)
		assert.True(t, report.Pass(), "%s: %v", report, report.Mismatches)
		assert.Equal(t, layers.BatchSize*64, report.Compared)
	}
}

func TestOtherShapesPass(t *testing.T) {
	for _, cfg := range []Config{
		{Seed: 1, OutSize: 4, InSize: 4},
		{Seed: 2, OutSize: 12, InSize: 16},
		{Seed: 3, OutSize: 32, InSize: 64},
		{Seed: 4, OutSize: 64, InSize: 320},
	} {
		for _, ops := range append(layers.All(), layers.Models()...) {
			report := Run(ops, cfg)
			assert.True(t, report.Pass(), "%+v %s", cfg, report)
		}
	}
}

func TestSynthesizeIsDeterministic(t *testing.T) {
	w1, in1 := Synthesize(DefaultConfig)
	w2, in2 := Synthesize(DefaultConfig)
	assert.Equal(t, in1, in2)
	assert.Equal(t, w1.Up1.Weights, w2.Up1.Weights)
	assert.Equal(t, w1.Down.Biases, w2.Down.Biases)

	w3, _ := Synthesize(Config{Seed: 43, OutSize: 64, InSize: 64})
	assert.NotEqual(t, w1.Up1.Weights, w3.Up1.Weights)

	for _, b := range w1.Up2.Biases {
		require.True(t, b >= -1000 && b <= 1000, "bias %d", b)
	}
	// Inputs cover the full int8 range, negative values included.
	var negative bool
	for _, x := range in1 {
		for _, v := range x {
			negative = negative || v < 0
		}
	}
	assert.True(t, negative)
}

// skewedOps breaks the batched path on one lane.
type skewedOps struct {
	layers.Ops
	lane int
}

func (s skewedOps) Linear4(out [layers.BatchSize][]int32, in [layers.BatchSize][]int8, w *layers.FCWeight, signedInput bool) {
	s.Ops.Linear4(out, in, w, signedInput)
	if w.OutputDimensions == w.InputDimensions && signedInput {
		out[s.lane][0] += 1 << 20
		out[s.lane][3] -= 1 << 20
	}
}

func TestMismatchesAreAllRecorded(t *testing.T) {
	// Every sequential output is 50.
	w := layers.NewStarBlockWeight(8, 4)
	for o := range w.Down.Biases {
		w.Down.Biases[o] = 128 * 50
	}
	var in Inputs
	for k := range in {
		in[k] = make([]int8, 4)
	}

	report := RunWithWeights(skewedOps{Ops: layers.Scalar(), lane: 2}, w, in)
	require.False(t, report.Pass())
	require.Len(t, report.Mismatches, 2)

	first, second := report.Mismatches[0], report.Mismatches[1]
	assert.Equal(t, 2, first.Lane)
	assert.Equal(t, 0, first.Index)
	assert.Equal(t, int8(50), first.Sequential)
	assert.Equal(t, int8(127), first.Batched)
	assert.Equal(t, 3, second.Index)
	assert.Equal(t, int8(0), second.Batched)
	assert.Contains(t, report.String(), "FAILED")
	assert.Contains(t, first.String(), "Output 2 at index 0")
}

func TestRunAll(t *testing.T) {
	w, in := Synthesize(DefaultConfig)
	opsList := []layers.Ops{layers.Scalar(), layers.Blocked(8), layers.Blocked(16)}
	reports := RunAll(opsList, w, in)
	require.Len(t, reports, 5)
	assert.Equal(t, "scalar vs blocked/256", reports[3].Name)
	assert.True(t, AllPass(reports))

	assert.Len(t, RunAll(opsList[:1], w, in), 1)

	// The dispatched kernels must agree with the reference on every shape
	// the network uses.
	for _, cfg := range []Config{DefaultConfig, {Seed: 5, OutSize: 64, InSize: 320}} {
		w, in := Synthesize(cfg)
		reports := RunAll([]layers.Ops{layers.Scalar(), layers.Native()}, w, in)
		assert.True(t, AllPass(reports), "%v", reports)
	}
}
