package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/hailam/mix9nnue/internal/storage"
	"github.com/hailam/mix9nnue/starnnue/schema"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var defaultOpts = options{from: 1, to: 2, header: -1}

func TestRunUsage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 1, run(defaultOpts, []string{"only-one"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "Usage:")
	assert.Zero(t, stdout.Len())
}

func TestRunMissingInput(t *testing.T) {
	dir := t.TempDir()
	var stdout, stderr bytes.Buffer
	code := run(defaultOpts, []string{filepath.Join(dir, "nope.bin"), filepath.Join(dir, "out.bin")}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "Failed to open input file")
	assert.NoFileExists(t, filepath.Join(dir, "out.bin"))
}

func TestRunTooSmall(t *testing.T) {
	dir := t.TempDir()
	in, out := filepath.Join(dir, "in.bin"), filepath.Join(dir, "out.bin")
	must.M(os.WriteFile(in, make([]byte, 1024), 0o644))

	var stdout, stderr bytes.Buffer
	assert.Equal(t, 1, run(defaultOpts, []string{in, out}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "File too small to contain weight data.")
	assert.NoFileExists(t, out)
}

func TestRunConvertsAndStores(t *testing.T) {
	dir := t.TempDir()
	in, out := filepath.Join(dir, "in.bin"), filepath.Join(dir, "net.v2")
	tail := schema.FormatV1(schema.DefaultDims).TailSize()
	must.M(os.WriteFile(in, make([]byte, 64+tail), 0o644))

	opts := defaultOpts
	opts.store = filepath.Join(dir, "store")
	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, run(opts, []string{in, out}, &stdout, &stderr), stderr.String())
	assert.Contains(t, stdout.String(), "Conversion complete.")
	assert.FileExists(t, out)

	s := must.M1(storage.Open(opts.store))
	defer s.Close()
	meta := must.M1(s.Stat("net.v2"))
	assert.Equal(t, 2, meta.Version)
	assert.Equal(t, 64+schema.FormatV2(schema.DefaultDims).TailSize(), meta.Size)
}

func TestRunUnknownVersion(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 1, run(options{from: 1, to: 7, header: -1}, []string{"a", "b"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "unknown weight format version 7")
}

func TestRunHeaderCheck(t *testing.T) {
	dir := t.TempDir()
	in, out := filepath.Join(dir, "in.bin"), filepath.Join(dir, "out.bin")
	tail := schema.FormatV1(schema.DefaultDims).TailSize()
	must.M(os.WriteFile(in, make([]byte, 64+tail), 0o644))

	opts := defaultOpts
	opts.header = 32
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 1, run(opts, []string{in, out}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "inferred leading section of 64 bytes, expected 32")
	assert.NoFileExists(t, out)

	opts.header = 64
	stderr.Reset()
	assert.Equal(t, 0, run(opts, []string{in, out}, &stdout, &stderr), stderr.String())
}

func TestRunStoreFailureLeavesNoOutput(t *testing.T) {
	dir := t.TempDir()
	in, out := filepath.Join(dir, "in.bin"), filepath.Join(dir, "net.v2")
	tail := schema.FormatV1(schema.DefaultDims).TailSize()
	must.M(os.WriteFile(in, make([]byte, 64+tail), 0o644))

	opts := defaultOpts
	opts.store = filepath.Join(dir, "not-a-directory")
	must.M(os.WriteFile(opts.store, []byte("x"), 0o644))

	var stdout, stderr bytes.Buffer
	assert.Equal(t, 1, run(opts, []string{in, out}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "Failed to store net.v2")
	assert.NotContains(t, stdout.String(), "Conversion complete.")
	assert.NoFileExists(t, out)
}

func TestRunUnreadableInput(t *testing.T) {
	dir := t.TempDir()
	var stdout, stderr bytes.Buffer
	code := run(defaultOpts, []string{dir, filepath.Join(dir, "out.bin")}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "Failed to open input file: "+dir)
	assert.NoFileExists(t, filepath.Join(dir, "out.bin"))
}

func TestRunFindsInputInWeightsDir(t *testing.T) {
	t.Setenv(storage.EnvHome, t.TempDir())
	weightsDir := must.M1(storage.GetWeightsDir())
	tail := schema.FormatV1(schema.DefaultDims).TailSize()
	must.M(os.WriteFile(filepath.Join(weightsDir, "old.v1"), make([]byte, 64+tail), 0o644))

	t.Chdir(t.TempDir())
	out := filepath.Join(t.TempDir(), "net.v2")
	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, run(defaultOpts, []string{"old.v1", out}, &stdout, &stderr), stderr.String())
	assert.FileExists(t, out)
}
