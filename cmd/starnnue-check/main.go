// Command starnnue-check verifies that the four-input star block kernel
// produces exactly the outputs of four single-input evaluations, on random
// weights or on a block of a real network. It exits 0 on success and 1 on
// any mismatch.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"runtime/pprof"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/hailam/mix9nnue/internal/storage"
	"github.com/hailam/mix9nnue/starnnue"
	"github.com/hailam/mix9nnue/starnnue/equivalence"
	"github.com/hailam/mix9nnue/starnnue/layers"
	"github.com/hailam/mix9nnue/starnnue/schema"
	"github.com/klauspost/cpuid/v2"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

type options struct {
	seed    uint64
	out     int
	in      int
	weights string
	format  int
	store   string
	net     string
	bucket  int
	block   string
	ops     string
	list    bool
	remove  string
}

var (
	flagSeed       = flag.Uint64("seed", equivalence.DefaultConfig.Seed, "random seed for weights and inputs")
	flagOut        = flag.Int("out", equivalence.DefaultConfig.OutSize, "star block output size (random weights only)")
	flagIn         = flag.Int("in", equivalence.DefaultConfig.InSize, "star block input size (random weights only)")
	flagWeights    = flag.String("weights", "", "check a block of this weight file instead of random weights; bare names are also looked up in the weights directory")
	flagFormat     = flag.Int("format", 2, "format version of -weights")
	flagStore      = flag.String("store", "", "weight store directory, used with -net or -list (default: the per-user data directory)")
	flagNet        = flag.String("net", "", "check a block of this stored weight blob")
	flagBucket     = flag.Int("bucket", 0, "head bucket of the checked block")
	flagBlock      = flag.String("block", "value_corner", "star block to check: "+strings.Join(schema.StarBlocks, ", "))
	flagOps        = flag.String("ops", "all", "implementations to check: all, scalar, native, avx2 or blocked/<bits>")
	flagList       = flag.Bool("list", false, "list the blobs in -store and exit")
	flagDelete     = flag.String("delete", "", "remove this blob from -store and exit")
	flagCPUProfile = flag.String("cpuprofile", "", "write cpu profile to file")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	os.Exit(profiled())
}

// profiled runs the check, under the CPU profiler if one was requested
// (via flag or environment variable).
func profiled() int {
	defer klog.Flush()

	profilePath := *flagCPUProfile
	if profilePath == "" {
		profilePath = os.Getenv("CPUPROFILE")
	}
	if profilePath != "" {
		f, err := os.Create(profilePath)
		if err != nil {
			klog.Errorf("could not create CPU profile: %v", err)
			return 1
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			klog.Errorf("could not start CPU profile: %v", err)
			return 1
		}
		defer pprof.StopCPUProfile()
		klog.Infof("CPU profiling enabled, writing to %s", profilePath)
	}

	return run(options{
		seed:    *flagSeed,
		out:     *flagOut,
		in:      *flagIn,
		weights: *flagWeights,
		format:  *flagFormat,
		store:   *flagStore,
		net:     *flagNet,
		bucket:  *flagBucket,
		block:   *flagBlock,
		ops:     *flagOps,
		list:    *flagList,
		remove:  *flagDelete,
	}, os.Stdout, os.Stderr)
}

func run(opts options, stdout, stderr io.Writer) int {
	if opts.remove != "" {
		if err := removeStored(opts.store, opts.remove); err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		fmt.Fprintf(stdout, "Deleted %s.\n", opts.remove)
		return 0
	}
	if opts.list {
		if err := listStore(opts.store, stdout); err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		return 0
	}

	opsList, err := selectOps(opts.ops)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	printCPU(stdout)

	w, in, err := loadBlock(opts)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	fmt.Fprintf(stdout, "Running %s correctness test...\n", w)

	reports := equivalence.RunAll(opsList, w, in)
	for _, r := range reports {
		for _, m := range r.Mismatches {
			fmt.Fprintf(stdout, "[%s] %s\n", r.Name, m)
		}
		fmt.Fprintln(stdout, r)
	}

	if !equivalence.AllPass(reports) {
		fmt.Fprintln(stdout, "Test FAILED: Outputs do not match.")
		return 1
	}
	fmt.Fprintln(stdout, "Test PASSED: All outputs match exactly.")
	return 0
}

func selectOps(name string) ([]layers.Ops, error) {
	if name == "all" {
		opsList := layers.All()
		for _, m := range layers.Models() {
			if !slices.ContainsFunc(opsList, func(o layers.Ops) bool { return o.Name() == m.Name() }) {
				opsList = append(opsList, m)
			}
		}
		return opsList, nil
	}
	ops, ok := layers.ByName(name)
	if !ok {
		return nil, errors.Errorf("unknown implementation %q", name)
	}
	return []layers.Ops{ops}, nil
}

func printCPU(w io.Writer) {
	fmt.Fprintf(w, "CPU: %s (AVX2: %v, AVX-512BW: %v)\n",
		cpuid.CPU.BrandName, cpuid.CPU.Supports(cpuid.AVX2), cpuid.CPU.Supports(cpuid.AVX512BW))
	fmt.Fprintf(w, "Native kernels: %s\n", layers.Native().Name())
}

// loadBlock returns the star block to check and four inputs for it: random
// weights by default, or a block of a weight file or stored blob.
func loadBlock(opts options) (*layers.StarBlockWeight, equivalence.Inputs, error) {
	var blob *starnnue.Blob
	format := opts.format
	switch {
	case opts.weights != "" && opts.net != "":
		return nil, equivalence.Inputs{}, errors.New("-weights and -net are mutually exclusive")

	case opts.weights != "":
		b, err := starnnue.OpenBlob(storage.ResolveWeightPath(opts.weights))
		if err != nil {
			return nil, equivalence.Inputs{}, err
		}
		defer b.Close()
		klog.V(1).Infof("mapped %s (%d bytes)", b.Path(), b.Len())
		blob = b

	case opts.net != "":
		s, err := storage.Open(opts.store)
		if err != nil {
			return nil, equivalence.Inputs{}, err
		}
		defer s.Close()
		data, meta, err := s.Get(opts.net)
		if err != nil {
			return nil, equivalence.Inputs{}, err
		}
		blob = starnnue.BlobFromBytes(data)
		format = meta.Version

	default:
		if opts.out <= 0 || opts.in <= 0 || opts.in%layers.ChunkSize != 0 || opts.out%layers.ChunkSize != 0 {
			return nil, equivalence.Inputs{}, errors.Errorf("-out %d and -in %d must be positive multiples of %d",
				opts.out, opts.in, layers.ChunkSize)
		}
		w, in := equivalence.Synthesize(equivalence.Config{Seed: opts.seed, OutSize: opts.out, InSize: opts.in})
		return w, in, nil
	}

	f, err := schema.ByVersion(format, schema.DefaultDims)
	if err != nil {
		return nil, equivalence.Inputs{}, err
	}
	net, err := starnnue.Load(blob, f)
	if err != nil {
		return nil, equivalence.Inputs{}, err
	}
	bucket, err := net.Bucket(opts.bucket)
	if err != nil {
		return nil, equivalence.Inputs{}, err
	}
	w, ok := bucket.Block(opts.block)
	if !ok {
		return nil, equivalence.Inputs{}, errors.Errorf("unknown star block %q", opts.block)
	}

	// Only the random inputs are used; the weights come from the network.
	_, in := equivalence.Synthesize(equivalence.Config{Seed: opts.seed, OutSize: w.OutputDimensions, InSize: w.InputDimensions})
	return w, in, nil
}

func removeStored(dir, name string) error {
	s, err := storage.Open(dir)
	if err != nil {
		return err
	}
	defer s.Close()
	return s.Delete(name)
}

func listStore(dir string, w io.Writer) error {
	s, err := storage.Open(dir)
	if err != nil {
		return err
	}
	defer s.Close()

	metas, err := s.List()
	if err != nil {
		return err
	}
	for _, m := range metas {
		fmt.Fprintf(w, "%-32s v%d %10s  %s\n", m.Name, m.Version, humanize.Bytes(uint64(m.Size)), humanize.Time(m.StoredAt))
	}
	return nil
}
