package layers

import (
	"os"

	"k8s.io/klog/v2"
)

// Environment overrides for the dispatched implementation.
const (
	// EnvNoSimd set to "1" makes Native return Scalar.
	EnvNoSimd = "STARNNUE_NO_SIMD"

	// EnvOps names the implementation Native returns, as accepted by ByName.
	EnvOps = "STARNNUE_OPS"
)

var native = detectNative(os.Getenv)

// Native returns the implementation selected for this CPU at start-up: the
// vector kernels when they are compiled in and supported, Scalar otherwise.
// The Blocked models are never selected unless named through EnvOps.
func Native() Ops {
	return native
}

// All returns every distinct implementation available on this machine,
// the reference one first.
func All() []Ops {
	if native.Name() == Scalar().Name() {
		return []Ops{Scalar()}
	}
	return []Ops{Scalar(), native}
}

// Models returns the Blocked implementations at the common register widths.
// They are checked against Scalar but never dispatched to.
func Models() []Ops {
	return []Ops{Blocked(4), Blocked(8), Blocked(16)}
}

// ByName looks up an implementation: "scalar", "native", "blocked/<bits>" or
// the name of a vector kernel supported by this CPU.
func ByName(name string) (Ops, bool) {
	if name == "native" {
		return Native(), true
	}
	return lookup(name)
}

func lookup(name string) (Ops, bool) {
	if name == "scalar" {
		return Scalar(), true
	}
	if ops, ok := vectorOps(); ok && ops.Name() == name {
		return ops, true
	}
	for _, ops := range Models() {
		if ops.Name() == name {
			return ops, true
		}
	}
	return nil, false
}

func detectNative(getenv func(string) string) Ops {
	if getenv(EnvNoSimd) == "1" {
		klog.V(1).Infof("starnnue: %s=1, using scalar kernels", EnvNoSimd)
		return Scalar()
	}
	if name := getenv(EnvOps); name != "" {
		if ops, ok := lookup(name); ok {
			klog.V(1).Infof("starnnue: %s=%s, using %s kernels", EnvOps, name, ops.Name())
			return ops
		}
		klog.Warningf("starnnue: ignoring unknown %s=%q", EnvOps, name)
	}
	ops, ok := vectorOps()
	if !ok {
		ops = Scalar()
	}
	klog.V(1).Infof("starnnue: using %s kernels", ops.Name())
	return ops
}
