/*
Package starnnue evaluates the value-group star blocks of a mix9 network.

A star block maps InputDimensions int8 activations to OutputDimensions int8
activations:

	up1  = CReLU(Up1*x)            2*Out values in [0, 127]
	up2  = CReLU(-(Up2*x))         2*Out values in [0, 127]
	comb = Dot2(up1, up2)          Out values, adjacent pairs combined
	out  = CReLU(Down*comb)        Out values in [0, 127]

# Packages

  - layers: the quantized kernels: a scalar reference implementation, AVX2
    kernels selected per CPU when built with GOEXPERIMENT=simd (see
    layers.Native), and register-blocked models of the vector instruction
    sequence.
  - equivalence: checks that the four-input kernel matches four single calls.
  - schema: versioned weight-file layouts described field by field.
  - convert: rewrites weight files between layout versions.

# Usage

	blob, err := starnnue.OpenBlob("mix9svq.bin")
	if err != nil { ... }
	defer blob.Close()

	net, err := starnnue.Load(blob, schema.FormatV2(schema.DefaultDims))
	if err != nil { ... }

	var in, out [layers.BatchSize][]int8
	...
	net.Corners(layers.Native(), 0, out, in)

Weights are immutable after Load; a Network may be evaluated from any number
of goroutines.
*/
package starnnue
