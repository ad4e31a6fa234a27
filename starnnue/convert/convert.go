// Package convert rewrites weight files from one schema.Format to another.
package convert

import (
	"bytes"
	"io"
	"os"
	"path/filepath"

	"github.com/hailam/mix9nnue/starnnue/schema"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ErrTooSmall is returned when the input cannot hold the fixed-size tail of
// its format.
var ErrTooSmall = errors.New("file too small to contain weight data")

// Stats describes a finished conversion.
type Stats struct {
	HeaderBytes int
	MiddleBytes int
	HeadBuckets int
	InputBytes  int
	OutputBytes int
}

// Convert writes src, a weight file in format from, to w in format to.
//
// The leading section, whose size is inferred as len(src) minus the fixed
// tail of from, and the middle section are copied verbatim. Every head bucket
// is migrated field by field, with gaps and padding zeroed. Nothing is
// written if src is too small.
func Convert(w io.Writer, src []byte, from, to schema.Format) (Stats, error) {
	if from.Dims != to.Dims {
		return Stats{}, errors.Errorf("cannot convert between different network dimensions (%+v vs %+v)", from.Dims, to.Dims)
	}
	header, middle, heads, err := from.Sections(src)
	if err != nil {
		return Stats{}, errors.Wrap(ErrTooSmall, err.Error())
	}

	stats := Stats{
		HeaderBytes: len(header),
		MiddleBytes: len(middle),
		InputBytes:  len(src),
	}
	klog.V(1).Infof("convert: v%d -> v%d, header %d bytes, middle %d bytes, %d head bucket(s)",
		from.Version, to.Version, len(header), len(middle), len(heads))
	klog.V(2).Infof("convert: head record %d -> %d bytes, alignment gaps %d -> %d, padding %d -> %d",
		from.Head.Size, to.Head.Size, from.Head.Gaps(), to.Head.Gaps(), from.Head.Padding(), to.Head.Padding())

	record := make([]byte, to.Head.Size)
	out := make([][]byte, 0, len(heads))
	for i, h := range heads {
		if err := schema.Migrate(to.Head, record, from.Head, h); err != nil {
			return Stats{}, errors.WithMessagef(err, "head bucket %d", i)
		}
		out = append(out, bytes.Clone(record))
	}

	for _, section := range append([][]byte{header, middle}, out...) {
		n, err := w.Write(section)
		stats.OutputBytes += n
		if err != nil {
			return stats, errors.Wrap(err, "failed to write converted weights")
		}
	}
	stats.HeadBuckets = len(heads)
	return stats, nil
}

// ConvertBytes is Convert into a new buffer.
func ConvertBytes(src []byte, from, to schema.Format) ([]byte, Stats, error) {
	var buf bytes.Buffer
	buf.Grow(max(0, len(src)-from.TailSize()+to.TailSize()))
	stats, err := Convert(&buf, src, from, to)
	if err != nil {
		return nil, stats, err
	}
	return buf.Bytes(), stats, nil
}

// WriteFile replaces the file at path with data atomically: data goes to a
// temporary file in the same directory, which is then renamed over path.
func WriteFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.Wrapf(err, "failed to create output file %s", path)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "failed to chmod %s", tmp.Name())
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "failed to write %s", tmp.Name())
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "failed to close %s", tmp.Name())
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrapf(err, "failed to move output into place at %s", path)
	}
	return nil
}

// CheckHeader verifies that a weight file of size bytes in format f has a
// leading section of exactly want bytes. The leading section's length is not
// stored in the file, so a file with an unexpected extra section would
// otherwise convert silently with that section folded into the header.
func CheckHeader(size int, f schema.Format, want int) error {
	if size < f.TailSize() {
		return errors.Wrapf(ErrTooSmall, "%d bytes", size)
	}
	if got := size - f.TailSize(); got != want {
		return errors.Errorf("inferred leading section of %d bytes, expected %d", got, want)
	}
	return nil
}
