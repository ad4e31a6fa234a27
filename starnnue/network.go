// Star block network loading and evaluation.

package starnnue

import (
	"bytes"
	"io"

	"github.com/hailam/mix9nnue/starnnue/layers"
	"github.com/hailam/mix9nnue/starnnue/schema"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// HeadBucket holds the value-group star blocks of one head bucket.
type HeadBucket struct {
	ValueCorner *layers.StarBlockWeight
	ValueEdge   *layers.StarBlockWeight
	ValueCenter *layers.StarBlockWeight
	ValueQuad   *layers.StarBlockWeight
}

// Block returns the star block with the given schema name.
func (h *HeadBucket) Block(name string) (*layers.StarBlockWeight, bool) {
	switch name {
	case "value_corner":
		return h.ValueCorner, true
	case "value_edge":
		return h.ValueEdge, true
	case "value_center":
		return h.ValueCenter, true
	case "value_quad":
		return h.ValueQuad, true
	}
	return nil, false
}

func (h *HeadBucket) set(name string, w *layers.StarBlockWeight) {
	switch name {
	case "value_corner":
		h.ValueCorner = w
	case "value_edge":
		h.ValueEdge = w
	case "value_center":
		h.ValueCenter = w
	case "value_quad":
		h.ValueQuad = w
	}
}

// Network is a loaded set of head buckets.
type Network struct {
	Format  schema.Format
	Buckets []*HeadBucket
}

// Load decodes every head bucket's star blocks from blob, a whole weight
// file in format f. The weights are copied out of the blob, so it may be
// closed afterwards.
func Load(blob *Blob, f schema.Format) (*Network, error) {
	_, _, heads, err := f.Sections(blob.Bytes())
	if err != nil {
		return nil, errors.WithMessage(err, "failed to locate head buckets")
	}

	net := &Network{Format: f}
	for i, head := range heads {
		bucket := &HeadBucket{}
		for _, name := range schema.StarBlocks {
			w, err := decodeStarBlock(f, head, name)
			if err != nil {
				return nil, errors.WithMessagef(err, "head bucket %d", i)
			}
			bucket.set(name, w)
		}
		net.Buckets = append(net.Buckets, bucket)
	}
	klog.V(1).Infof("starnnue: loaded %d head bucket(s) in format v%d", len(net.Buckets), f.Version)
	return net, nil
}

// decodeStarBlock reads the fields of the named block in parameter order.
// The fields need not be adjacent: the padding between them is skipped.
func decodeStarBlock(f schema.Format, head []byte, name string) (*layers.StarBlockWeight, error) {
	w := layers.NewStarBlockWeight(f.Dims.ValueDim, f.Dims.StarBlockInputs(name))
	fields := schema.StarBlockFields(name, w.OutputDimensions, w.InputDimensions)
	parts := make([]io.Reader, 0, len(fields))
	size := 0
	for _, field := range fields {
		b, err := f.Head.Slice(head, field.Name)
		if err != nil {
			return nil, err
		}
		parts = append(parts, bytes.NewReader(b))
		size += len(b)
	}
	if size != w.Size() {
		return nil, errors.Errorf("%s: fields hold %d bytes, a %s needs %d", name, size, w, w.Size())
	}
	if err := w.ReadParameters(io.MultiReader(parts...)); err != nil {
		return nil, errors.WithMessagef(err, "failed to decode %s", name)
	}
	return w, nil
}

// Bucket returns head bucket i.
func (n *Network) Bucket(i int) (*HeadBucket, error) {
	if i < 0 || i >= len(n.Buckets) {
		return nil, errors.Errorf("head bucket %d out of range [0, %d)", i, len(n.Buckets))
	}
	return n.Buckets[i], nil
}

// Corners evaluates the value_corner block of bucket on four inputs at once.
// in[k] must hold FeatureDim activations in [0, 127] and out[k] room for
// ValueDim outputs. It panics if bucket is out of range.
func (n *Network) Corners(ops layers.Ops, bucket int, out, in [layers.BatchSize][]int8) {
	n.Buckets[bucket].ValueCorner.Propagate4(ops, in, out)
}
