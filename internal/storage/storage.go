package storage

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Key prefixes
const (
	prefixMeta = "meta/"
	prefixBlob = "blob/"
)

// ErrNotFound is returned for names that were never stored or were deleted.
var ErrNotFound = errors.New("weight blob not found")

// Meta describes a stored weight blob.
type Meta struct {
	Name     string    `json:"name"`
	Version  int       `json:"version"`
	Size     int       `json:"size"`
	StoredAt time.Time `json:"stored_at"`
}

// Storage wraps BadgerDB as a store of named weight blobs.
type Storage struct {
	db *badger.DB
}

// Open opens (or creates) a store in dir. An empty dir selects the
// per-user database directory.
func Open(dir string) (*Storage, error) {
	if dir == "" {
		var err error
		if dir, err = GetDatabaseDir(); err != nil {
			return nil, err
		}
	}

	opts := badger.DefaultOptions(dir)
	opts.Logger = nil // Disable logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open weight store in %s", dir)
	}
	klog.V(1).Infof("storage: opened %s", dir)
	return &Storage{db: db}, nil
}

// Close closes the database
func (s *Storage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func validName(name string) error {
	if name == "" || strings.ContainsAny(name, "/\x00") {
		return errors.Errorf("invalid weight blob name %q", name)
	}
	return nil
}

// Put stores blob under name in format version, replacing any previous
// blob of that name. Metadata and bytes are written in one transaction.
func (s *Storage) Put(name string, blob []byte, version int) (*Meta, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	meta := &Meta{Name: name, Version: version, Size: len(blob), StoredAt: time.Now().UTC()}
	data, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(prefixBlob+name), blob); err != nil {
			return err
		}
		return txn.Set([]byte(prefixMeta+name), data)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to store %s", name)
	}
	klog.V(1).Infof("storage: stored %s (v%d, %d bytes)", name, version, len(blob))
	return meta, nil
}

// Get returns a copy of the blob stored under name and its metadata.
func (s *Storage) Get(name string) ([]byte, *Meta, error) {
	var blob []byte
	meta := &Meta{}

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixMeta + name))
		if err == badger.ErrKeyNotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, meta)
		}); err != nil {
			return err
		}

		item, err = txn.Get([]byte(prefixBlob + name))
		if err == badger.ErrKeyNotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		blob, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, nil, errors.WithMessagef(err, "failed to load %s", name)
	}
	return blob, meta, nil
}

// Stat returns the metadata of name without reading the blob.
func (s *Storage) Stat(name string) (*Meta, error) {
	meta := &Meta{}
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixMeta + name))
		if err == badger.ErrKeyNotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, meta)
		})
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to stat %s", name)
	}
	return meta, nil
}

// List returns the metadata of every stored blob, sorted by name.
func (s *Storage) List() ([]Meta, error) {
	var metas []Meta
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixMeta)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var m Meta
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &m)
			}); err != nil {
				return err
			}
			metas = append(metas, m)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list weight blobs")
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].Name < metas[j].Name })
	return metas, nil
}

// Delete removes name. Deleting a missing name returns ErrNotFound.
func (s *Storage) Delete(name string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(prefixMeta + name)); err == badger.ErrKeyNotFound {
			return ErrNotFound
		} else if err != nil {
			return err
		}
		if err := txn.Delete([]byte(prefixMeta + name)); err != nil {
			return err
		}
		return txn.Delete([]byte(prefixBlob + name))
	})
	if err != nil {
		return errors.WithMessagef(err, "failed to delete %s", name)
	}
	return nil
}
