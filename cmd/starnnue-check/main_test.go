package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/hailam/mix9nnue/internal/storage"
	"github.com/hailam/mix9nnue/starnnue/equivalence"
	"github.com/hailam/mix9nnue/starnnue/schema"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultOptions() options {
	return options{
		seed:   equivalence.DefaultConfig.Seed,
		out:    equivalence.DefaultConfig.OutSize,
		in:     equivalence.DefaultConfig.InSize,
		format: 2,
		block:  "value_corner",
		ops:    "all",
	}
}

func TestRunSynthetic(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, run(defaultOptions(), &stdout, &stderr), stderr.String())
	assert.Contains(t, stdout.String(), "Test PASSED: All outputs match exactly.")
	assert.Contains(t, stdout.String(), "Native kernels:")
	assert.Contains(t, stdout.String(), "blocked/256: PASSED")
	assert.NotContains(t, stdout.String(), "Mismatch")
}

func TestRunSingleImplementation(t *testing.T) {
	opts := defaultOptions()
	opts.ops = "blocked/512"
	opts.out, opts.in = 32, 128
	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, run(opts, &stdout, &stderr), stderr.String())
	assert.Contains(t, stdout.String(), "blocked/512: PASSED")
}

func TestRunBadArguments(t *testing.T) {
	for name, mutate := range map[string]func(*options){
		"ops":      func(o *options) { o.ops = "gpu" },
		"shape":    func(o *options) { o.in = 6 },
		"both":     func(o *options) { o.weights, o.net = "a", "b" },
		"missing":  func(o *options) { o.weights = filepath.Join(t.TempDir(), "missing.bin") },
		"format":   func(o *options) { o.weights = writeZeroNet(t); o.format = 9 },
		"block":    func(o *options) { o.weights = writeZeroNet(t); o.block = "value_l1" },
		"bucket":   func(o *options) { o.weights = writeZeroNet(t); o.bucket = 1 },
		"unstored": func(o *options) { o.store = t.TempDir(); o.net = "nothing" },
	} {
		t.Run(name, func(t *testing.T) {
			opts := defaultOptions()
			mutate(&opts)
			var stdout, stderr bytes.Buffer
			assert.Equal(t, 1, run(opts, &stdout, &stderr))
			assert.NotEmpty(t, stderr.String())
		})
	}
}

// writeZeroNet writes an all-zero v2 weight file.
func writeZeroNet(t *testing.T) string {
	path := filepath.Join(t.TempDir(), "zero.bin")
	must.M(os.WriteFile(path, make([]byte, schema.FormatV2(schema.DefaultDims).TailSize()), 0o644))
	return path
}

func TestRunWeightsFile(t *testing.T) {
	opts := defaultOptions()
	opts.weights = writeZeroNet(t)
	opts.block = "value_quad"
	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, run(opts, &stdout, &stderr), stderr.String())
	assert.Contains(t, stdout.String(), "StarBlock(64->64)")
	assert.Contains(t, stdout.String(), "PASSED")
}

func TestRunWeightsFromWeightsDir(t *testing.T) {
	t.Setenv(storage.EnvHome, t.TempDir())
	weightsDir := must.M1(storage.GetWeightsDir())
	must.M(os.Rename(writeZeroNet(t), filepath.Join(weightsDir, "zero.bin")))
	t.Chdir(t.TempDir())

	opts := defaultOptions()
	opts.weights = "zero.bin"
	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, run(opts, &stdout, &stderr), stderr.String())
	assert.Contains(t, stdout.String(), "Test PASSED")
}

func TestRunStoredNetAndList(t *testing.T) {
	dir := t.TempDir()
	s := must.M1(storage.Open(dir))
	_ = must.M1(s.Put("zero.v1", make([]byte, schema.FormatV1(schema.DefaultDims).TailSize()), 1))
	must.M(s.Close())

	opts := defaultOptions()
	opts.store, opts.net = dir, "zero.v1"
	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, run(opts, &stdout, &stderr), stderr.String())
	assert.Contains(t, stdout.String(), "Test PASSED")

	stdout.Reset()
	require.Equal(t, 0, run(options{list: true, store: dir}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "zero.v1")
	assert.Contains(t, stdout.String(), "v1")

	stdout.Reset()
	require.Equal(t, 0, run(options{remove: "zero.v1", store: dir}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "Deleted zero.v1.")
	assert.Equal(t, 1, run(options{remove: "zero.v1", store: dir}, &stdout, &stderr))

	stdout.Reset()
	require.Equal(t, 0, run(options{list: true, store: dir}, &stdout, &stderr))
	assert.NotContains(t, stdout.String(), "zero.v1")
}
