//go:build !goexperiment.simd || !amd64
// +build !goexperiment.simd !amd64

package layers

// vectorOps reports that no vector kernel is compiled into this build.
func vectorOps() (Ops, bool) {
	return nil, false
}
