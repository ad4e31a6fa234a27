package schema

import (
	"fmt"

	"github.com/pkg/errors"
)

// Dims are the network dimensions that determine record sizes.
type Dims struct {
	FeatureDim      int
	PolicyDim       int
	ValueDim        int
	FeatDWConvDim   int
	PolicyPWConvDim int
	NumHeadBucket   int
	ShapeNum        int
}

// DefaultDims are the dimensions of the shipped networks.
var DefaultDims = Dims{
	FeatureDim:      64,
	PolicyDim:       32,
	ValueDim:        64,
	FeatDWConvDim:   32,
	PolicyPWConvDim: 16,
	NumHeadBucket:   1,
	ShapeNum:        442503,
}

// StarBlocks names the star blocks of a head bucket in file order.
var StarBlocks = []string{"value_corner", "value_edge", "value_center", "value_quad"}

// FCFields returns the fields of an out x in affine layer: int8 weights
// followed by int32 biases.
func FCFields(name string, out, in int) []Field {
	return []Field{
		{Name: name + ".weight", Kind: Int8, Count: out * in},
		{Name: name + ".bias", Kind: Int32, Count: out},
	}
}

// StarBlockFields returns the fields of a star block: up1, up2 and down.
func StarBlockFields(name string, out, in int) []Field {
	var fs []Field
	fs = append(fs, FCFields(name+".up1", 2*out, in)...)
	fs = append(fs, FCFields(name+".up2", 2*out, in)...)
	fs = append(fs, FCFields(name+".down", out, out)...)
	return fs
}

// StarBlockInputs returns the input width of the named star block.
func (d Dims) StarBlockInputs(name string) int {
	if name == "value_quad" {
		return d.ValueDim
	}
	return d.FeatureDim
}

// Middle is the fixed-size section between the opaque codebook stream and
// the head buckets. It is identical in every format version.
func (d Dims) Middle() Layout {
	return Layout{
		Name: "middle",
		Fields: []Field{
			{Name: "mapping_index", Kind: Uint16, Count: 2 * d.ShapeNum},
			{Name: "feature_dwconv_weight", Kind: Int16, Count: 9 * d.FeatDWConvDim},
			{Name: "feature_dwconv_bias", Kind: Int16, Count: d.FeatDWConvDim},
		},
	}
}

// headFields returns every head bucket field up to the policy output layer.
func (d Dims) headFields() []Field {
	var fs []Field
	fs = append(fs, FCFields("policy_pwconv_layer_l1", 2*d.PolicyDim, d.FeatureDim)...)
	fs = append(fs, FCFields("policy_pwconv_layer_l2", d.PolicyPWConvDim*d.PolicyDim+d.PolicyPWConvDim, 2*d.PolicyDim)...)
	for _, name := range StarBlocks {
		fs = append(fs, StarBlockFields(name, d.ValueDim, d.StarBlockInputs(name))...)
	}
	fs = append(fs, FCFields("value_l1", d.ValueDim, d.FeatureDim+4*d.ValueDim)...)
	fs = append(fs, FCFields("value_l2", d.ValueDim, d.ValueDim)...)
	fs = append(fs, FCFields("value_l3", 4, d.ValueDim)...)
	return fs
}

// Format is one version of the weight file: an opaque leading section of
// any size, the middle section, then NumHeadBucket head records.
type Format struct {
	Version int
	Dims    Dims
	Middle  *Resolved
	Head    *Resolved
}

// headLayout builds a head bucket layout whose policy output weight is
// aligned to weightAlign and whose record is padded to recordAlign.
func headLayout(d Dims, version, weightAlign, recordAlign int) Layout {
	fs := d.headFields()
	fs = append(fs,
		Field{Name: "policy_output_weight", Kind: Float32, Count: d.PolicyPWConvDim, Align: weightAlign},
		Field{Name: "policy_output_bias", Kind: Float32, Count: 1},
	)
	return Layout{Name: fmt.Sprintf("head/v%d", version), Align: recordAlign, Fields: fs}
}

// FormatV1 is the first layout: the policy output weight directly follows
// value_l3 and each head record is padded to 64 bytes.
func FormatV1(d Dims) Format {
	return Format{
		Version: 1,
		Dims:    d,
		Middle:  d.Middle().MustResolve(),
		Head:    headLayout(d, 1, 4, 64).MustResolve(),
	}
}

// FormatV2 aligns the policy output weight to 32 bytes so it can be loaded
// with aligned vector loads; records are padded to 32 bytes.
func FormatV2(d Dims) Format {
	return Format{
		Version: 2,
		Dims:    d,
		Middle:  d.Middle().MustResolve(),
		Head:    headLayout(d, 2, 32, 32).MustResolve(),
	}
}

// ByVersion returns the format with the given version number.
func ByVersion(version int, d Dims) (Format, error) {
	switch version {
	case 1:
		return FormatV1(d), nil
	case 2:
		return FormatV2(d), nil
	}
	return Format{}, errors.Errorf("unknown weight format version %d", version)
}

// HeadsSize returns the size of all head buckets.
func (f Format) HeadsSize() int {
	return f.Dims.NumHeadBucket * f.Head.Size
}

// TailSize returns the size of everything after the opaque leading section.
func (f Format) TailSize() int {
	return f.Middle.Size + f.HeadsSize()
}

// Sections splits a whole weight file into its leading section, middle
// section and head buckets. The leading section's size is not recorded in
// the file and is inferred as whatever precedes the fixed-size tail.
func (f Format) Sections(file []byte) (header, middle []byte, heads [][]byte, err error) {
	tail := f.TailSize()
	if len(file) < tail {
		return nil, nil, nil, errors.Errorf("weight file of %d bytes is smaller than the v%d tail of %d bytes",
			len(file), f.Version, tail)
	}
	h := len(file) - tail
	header = file[:h]
	middle = file[h : h+f.Middle.Size]
	off := h + f.Middle.Size
	for range f.Dims.NumHeadBucket {
		heads = append(heads, file[off:off+f.Head.Size])
		off += f.Head.Size
	}
	return header, middle, heads, nil
}
