// Package schema describes weight records as ordered lists of named, typed
// fields, so that two versions of a record can be migrated field by field
// instead of by raw offset arithmetic.
package schema

import (
	"fmt"

	"github.com/hailam/mix9nnue/starnnue/common"
	"github.com/pkg/errors"
)

// Kind is the element type of a field.
type Kind int

const (
	Int8 Kind = iota
	Int16
	Uint16
	Int32
	Float32
)

// Size returns the element size in bytes.
func (k Kind) Size() int {
	switch k {
	case Int8:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Float32:
		return 4
	}
	panic(fmt.Sprintf("schema: unknown kind %d", int(k)))
}

func (k Kind) String() string {
	switch k {
	case Int8:
		return "int8"
	case Int16:
		return "int16"
	case Uint16:
		return "uint16"
	case Int32:
		return "int32"
	case Float32:
		return "float32"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Field is Count consecutive elements of Kind. Align, when non-zero, raises
// the field's alignment above the natural alignment of Kind.
type Field struct {
	Name  string
	Kind  Kind
	Count int
	Align int
}

// Bytes returns the payload size of the field.
func (f Field) Bytes() int {
	return f.Count * f.Kind.Size()
}

func (f Field) alignment() int {
	return max(f.Kind.Size(), f.Align)
}

// Layout is an ordered record of fields. The record size is rounded up to
// Align (and to the largest field alignment).
type Layout struct {
	Name   string
	Align  int
	Fields []Field
}

// Placed is a field at its resolved byte offset.
type Placed struct {
	Field
	Offset int
}

// End returns the offset one past the field's last byte.
func (p Placed) End() int {
	return p.Offset + p.Bytes()
}

// Resolved is a Layout with every offset computed.
type Resolved struct {
	Layout
	Placed []Placed
	Size   int

	index map[string]int
}

// Resolve computes the offset of every field. Fields are laid out in order,
// each at the next multiple of its alignment. Bytes skipped that way are gaps,
// and the bytes between the last field and Size are padding.
func (l Layout) Resolve() (*Resolved, error) {
	r := &Resolved{Layout: l, index: make(map[string]int, len(l.Fields))}
	recordAlign := max(l.Align, 1)
	off := 0
	for i, f := range l.Fields {
		if f.Count <= 0 {
			return nil, errors.Errorf("layout %s: field %q has count %d", l.Name, f.Name, f.Count)
		}
		a := f.alignment()
		if a&(a-1) != 0 {
			return nil, errors.Errorf("layout %s: field %q alignment %d is not a power of two", l.Name, f.Name, a)
		}
		if _, dup := r.index[f.Name]; dup {
			return nil, errors.Errorf("layout %s: duplicate field %q", l.Name, f.Name)
		}
		off = common.CeilToMultiple(off, a)
		r.index[f.Name] = i
		r.Placed = append(r.Placed, Placed{Field: f, Offset: off})
		off += f.Bytes()
		recordAlign = max(recordAlign, a)
	}
	r.Size = common.CeilToMultiple(off, recordAlign)
	return r, nil
}

// MustResolve is Resolve for layouts known to be valid; it panics on error.
func (l Layout) MustResolve() *Resolved {
	r, err := l.Resolve()
	if err != nil {
		panic(err)
	}
	return r
}

// Field looks up a placed field by name.
func (r *Resolved) Field(name string) (Placed, bool) {
	i, ok := r.index[name]
	if !ok {
		return Placed{}, false
	}
	return r.Placed[i], true
}

// Gaps returns the total number of alignment bytes between fields.
func (r *Resolved) Gaps() int {
	n, prev := 0, 0
	for _, p := range r.Placed {
		n += p.Offset - prev
		prev = p.End()
	}
	return n
}

// Padding returns the number of bytes after the last field.
func (r *Resolved) Padding() int {
	if len(r.Placed) == 0 {
		return r.Size
	}
	return r.Size - r.Placed[len(r.Placed)-1].End()
}

// Slice returns the bytes of field name within record buf.
func (r *Resolved) Slice(buf []byte, name string) ([]byte, error) {
	p, ok := r.Field(name)
	if !ok {
		return nil, errors.Errorf("layout %s has no field %q", r.Name, name)
	}
	if len(buf) < p.End() {
		return nil, errors.Errorf("layout %s: record of %d bytes too short for field %q at [%d,%d)",
			r.Name, len(buf), name, p.Offset, p.End())
	}
	return buf[p.Offset:p.End()], nil
}

// Migrate writes the record src (laid out as from) into dst (laid out as to).
// Every field of to must exist in from with the same kind and count. Gaps
// and padding in dst are zeroed.
func Migrate(to *Resolved, dst []byte, from *Resolved, src []byte) error {
	if len(dst) < to.Size {
		return errors.Errorf("migrate %s -> %s: destination holds %d bytes, need %d", from.Name, to.Name, len(dst), to.Size)
	}
	if len(src) < from.Size {
		return errors.Errorf("migrate %s -> %s: source holds %d bytes, need %d", from.Name, to.Name, len(src), from.Size)
	}
	clear(dst[:to.Size])
	for _, p := range to.Placed {
		q, ok := from.Field(p.Name)
		if !ok {
			return errors.Errorf("migrate %s -> %s: source has no field %q", from.Name, to.Name, p.Name)
		}
		if q.Kind != p.Kind || q.Count != p.Count {
			return errors.Errorf("migrate %s -> %s: field %q is %d x %s in source but %d x %s in destination",
				from.Name, to.Name, p.Name, q.Count, q.Kind, p.Count, p.Kind)
		}
		copy(dst[p.Offset:p.End()], src[q.Offset:q.End()])
	}
	return nil
}
