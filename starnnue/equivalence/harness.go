// Package equivalence checks that the batched star block produces exactly the
// outputs of four sequential evaluations.
package equivalence

import (
	"fmt"
	"math/rand/v2"

	"github.com/hailam/mix9nnue/starnnue/common"
	"github.com/hailam/mix9nnue/starnnue/layers"
	"k8s.io/klog/v2"
)

// Config parameterizes a synthetic run.
type Config struct {
	Seed    uint64
	OutSize int
	InSize  int
}

// DefaultConfig is the 64x64 block of the value head, seeded with 42.
var DefaultConfig = Config{Seed: 42, OutSize: 64, InSize: 64}

// Mismatch is one output byte where the two paths disagree.
type Mismatch struct {
	Lane       int
	Index      int
	Sequential int8
	Batched    int8
}

func (m Mismatch) String() string {
	return fmt.Sprintf("Mismatch in Output %d at index %d: Ref=%d New=%d", m.Lane, m.Index, m.Sequential, m.Batched)
}

// Report is the outcome of one comparison.
type Report struct {
	// Name describes what was compared, e.g. "blocked/256" or "scalar vs blocked/256".
	Name       string
	Compared   int
	Mismatches []Mismatch
}

// Pass reports whether every compared byte matched.
func (r *Report) Pass() bool {
	return len(r.Mismatches) == 0
}

func (r *Report) String() string {
	if r.Pass() {
		return fmt.Sprintf("%s: PASSED (%d outputs match exactly)", r.Name, r.Compared)
	}
	return fmt.Sprintf("%s: FAILED (%d of %d outputs differ)", r.Name, len(r.Mismatches), r.Compared)
}

// Inputs is one batch of star block inputs.
type Inputs [layers.BatchSize][]int8

// Synthesize builds random weights and inputs for cfg. Two generators are
// seeded with cfg.Seed, one for int8 and one for int32 values, and filled in
// the order: the four inputs, then Up1, Up2 and Down (weights before biases).
// int8 values are uniform over [-128, 127] and biases over [-1000, 1000].
func Synthesize(cfg Config) (*layers.StarBlockWeight, Inputs) {
	i8 := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed))
	i32 := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed))
	fill8 := func(dst []int8) {
		for i := range dst {
			dst[i] = int8(i8.IntN(256) - 128)
		}
	}
	fill32 := func(dst []int32) {
		for i := range dst {
			dst[i] = int32(i32.IntN(2001) - 1000)
		}
	}

	var in Inputs
	for k := range in {
		in[k] = common.AlignedInt8(cfg.InSize)
		fill8(in[k])
	}

	w := layers.NewStarBlockWeight(cfg.OutSize, cfg.InSize)
	for _, fc := range []*layers.FCWeight{w.Up1, w.Up2, w.Down} {
		fill8(fc.Weights)
		fill32(fc.Biases)
	}
	return w, in
}

// Run synthesizes cfg and compares sequential and batched evaluation under ops.
func Run(ops layers.Ops, cfg Config) *Report {
	w, in := Synthesize(cfg)
	return RunWithWeights(ops, w, in)
}

// RunWithWeights evaluates w four times with Propagate and once with
// Propagate4, and records every output byte that differs. It keeps going
// after the first mismatch.
func RunWithWeights(ops layers.Ops, w *layers.StarBlockWeight, in Inputs) *Report {
	var seq, bat [layers.BatchSize][]int8
	for k := range layers.BatchSize {
		seq[k] = common.AlignedInt8(w.OutputDimensions)
		bat[k] = common.AlignedInt8(w.OutputDimensions)
		w.Propagate(ops, in[k], seq[k])
	}
	w.Propagate4(ops, in, bat)

	report := &Report{Name: ops.Name()}
	compare(report, seq, bat)
	klog.V(1).Infof("equivalence: %s on %s", report, w)
	return report
}

// CrossCheck compares sequential evaluation under two implementations. Inputs
// are clipped to [0, 127] first: outside that range the implementations are
// allowed to differ.
func CrossCheck(ref, other layers.Ops, w *layers.StarBlockWeight, in Inputs) *Report {
	var a, b [layers.BatchSize][]int8
	for k := range layers.BatchSize {
		x := common.AlignedInt8(w.InputDimensions)
		for i, v := range in[k][:w.InputDimensions] {
			x[i] = max(v, 0)
		}
		a[k] = common.AlignedInt8(w.OutputDimensions)
		b[k] = common.AlignedInt8(w.OutputDimensions)
		w.Propagate(ref, x, a[k])
		w.Propagate(other, x, b[k])
	}

	report := &Report{Name: ref.Name() + " vs " + other.Name()}
	compare(report, a, b)
	klog.V(1).Infof("equivalence: %s on %s", report, w)
	return report
}

// RunAll runs RunWithWeights for every implementation in opsList and then
// cross-checks each of them against the first one.
func RunAll(opsList []layers.Ops, w *layers.StarBlockWeight, in Inputs) []*Report {
	reports := make([]*Report, 0, 2*len(opsList))
	for _, ops := range opsList {
		reports = append(reports, RunWithWeights(ops, w, in))
	}
	for _, ops := range opsList[min(1, len(opsList)):] {
		reports = append(reports, CrossCheck(opsList[0], ops, w, in))
	}
	return reports
}

// AllPass reports whether every report passed.
func AllPass(reports []*Report) bool {
	for _, r := range reports {
		if !r.Pass() {
			return false
		}
	}
	return true
}

func compare(report *Report, want, got [layers.BatchSize][]int8) {
	for k := range layers.BatchSize {
		for i := range want[k] {
			report.Compared++
			if want[k][i] != got[k][i] {
				report.Mismatches = append(report.Mismatches, Mismatch{
					Lane:       k,
					Index:      i,
					Sequential: want[k][i],
					Batched:    got[k][i],
				})
			}
		}
	}
}
