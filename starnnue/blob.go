package starnnue

import (
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Blob is the raw content of a weight file, either mapped read-only from
// disk or held in memory.
type Blob struct {
	data   []byte
	mapped mmap.MMap
	path   string
}

// OpenBlob maps the file at path read-only. Close releases the mapping.
func OpenBlob(path string) (*Blob, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open weight file %s", path)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to stat weight file %s", path)
	}
	if info.Size() == 0 {
		return &Blob{path: path}, nil
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to map weight file %s", path)
	}
	klog.V(2).Infof("starnnue: mapped %s (%d bytes)", path, len(m))
	return &Blob{data: m, mapped: m, path: path}, nil
}

// BlobFromBytes wraps data without copying it.
func BlobFromBytes(data []byte) *Blob {
	return &Blob{data: data}
}

// Bytes returns the blob content. It must not be modified, and must not be
// used after Close.
func (b *Blob) Bytes() []byte {
	return b.data
}

// Len returns the blob size in bytes.
func (b *Blob) Len() int {
	return len(b.data)
}

// Path returns the file the blob was mapped from, or "" for in-memory blobs.
func (b *Blob) Path() string {
	return b.path
}

// Close unmaps a mapped blob. It is safe to call more than once.
func (b *Blob) Close() error {
	b.data = nil
	if b.mapped == nil {
		return nil
	}
	m := b.mapped
	b.mapped = nil
	return errors.Wrapf(m.Unmap(), "failed to unmap %s", b.path)
}
