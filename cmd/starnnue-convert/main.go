// Command starnnue-convert rewrites a mix9 weight file from the v1 head
// layout to the v2 layout, whose policy output weights are 32-byte aligned.
//
//	starnnue-convert [-store DIR] <input_old_weight> <output_new_weight>
//
// A bare input name that is not in the working directory is looked up in the
// weights directory (see storage.GetWeightsDir).
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/hailam/mix9nnue/internal/storage"
	"github.com/hailam/mix9nnue/starnnue/convert"
	"github.com/hailam/mix9nnue/starnnue/schema"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

type options struct {
	store  string
	from   int
	to     int
	header int
}

var (
	flagStore  = flag.String("store", "", "also put the converted file into the weight store in this directory")
	flagFrom   = flag.Int("from", 1, "format version of the input file")
	flagTo     = flag.Int("to", 2, "format version of the output file")
	flagHeader = flag.Int("header", -1, "expected size of the leading codebook section in bytes; -1 skips the check")
)

func main() {
	klog.InitFlags(nil)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <input_old_weight> <output_new_weight>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	opts := options{store: *flagStore, from: *flagFrom, to: *flagTo, header: *flagHeader}
	code := run(opts, flag.Args(), os.Stdout, os.Stderr)
	klog.Flush()
	os.Exit(code)
}

func run(opts options, args []string, stdout, stderr io.Writer) int {
	if len(args) != 2 {
		fmt.Fprintf(stderr, "Usage: %s <input_old_weight> <output_new_weight>\n", filepath.Base(os.Args[0]))
		return 1
	}
	in, out := args[0], args[1]

	from, err := schema.ByVersion(opts.from, schema.DefaultDims)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	to, err := schema.ByVersion(opts.to, schema.DefaultDims)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	src, err := os.ReadFile(storage.ResolveWeightPath(in))
	if err != nil {
		klog.V(1).Infof("reading input: %v", err)
		fmt.Fprintf(stderr, "Failed to open input file: %s\n", in)
		return 1
	}

	if opts.header >= 0 {
		if err := convert.CheckHeader(len(src), from, opts.header); err != nil && !errors.Is(err, convert.ErrTooSmall) {
			fmt.Fprintln(stderr, err)
			return 1
		}
	}

	converted, stats, err := convert.ConvertBytes(src, from, to)
	switch {
	case errors.Is(err, convert.ErrTooSmall):
		fmt.Fprintln(stderr, "File too small to contain weight data.")
		return 1
	case err != nil:
		klog.Errorf("conversion failed: %+v", err)
		fmt.Fprintln(stderr, err)
		return 1
	}

	// The store is written before the output file so that a failure leaves
	// nothing behind.
	if opts.store != "" {
		if err := storeConverted(opts.store, filepath.Base(out), converted, to.Version); err != nil {
			fmt.Fprintf(stderr, "Failed to store %s: %v\n", filepath.Base(out), err)
			return 1
		}
	}
	if err := convert.WriteFile(out, converted); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	fmt.Fprintf(stdout, "Converted %s (%s) to %s (%s): %s header, %d head bucket(s).\n",
		in, humanize.Bytes(uint64(stats.InputBytes)),
		out, humanize.Bytes(uint64(stats.OutputBytes)),
		humanize.Bytes(uint64(stats.HeaderBytes)), stats.HeadBuckets)
	if opts.store != "" {
		fmt.Fprintf(stdout, "Stored %s in %s.\n", filepath.Base(out), opts.store)
	}

	fmt.Fprintln(stdout, "Conversion complete.")
	return 0
}

func storeConverted(dir, name string, data []byte, version int) error {
	s, err := storage.Open(dir)
	if err != nil {
		return err
	}
	defer s.Close()
	if old, err := s.Stat(name); err == nil {
		klog.Infof("replacing stored %s (v%d, %s)", name, old.Version, humanize.Bytes(uint64(old.Size)))
	}
	_, err = s.Put(name, data, version)
	return err
}
