package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/tidwall/buntdb"
)

// File keeps the document in a local buntdb database.
type File struct {
	db  *buntdb.DB
	key string
}

// OpenFile opens (or creates) the database at path; ":memory:" is accepted.
func OpenFile(path, key string) (*File, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open buntdb %s: %w", path, err)
	}
	if key == "" {
		key = "state"
	}
	return &File{db: db, key: key}, nil
}

// Close flushes and closes the database.
func (f *File) Close() {
	if f == nil || f.db == nil {
		return
	}
	_ = f.db.Close()
}

// Load reads the stored document.
func (f *File) Load(_ context.Context) ([]byte, error) {
	var payload string
	err := f.db.View(func(tx *buntdb.Tx) error {
		value, err := tx.Get(f.key)
		if err != nil {
			return err
		}
		payload = value
		return nil
	})
	if errors.Is(err, buntdb.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("buntdb get %s: %w", f.key, err)
	}
	return []byte(payload), nil
}

// Save replaces the stored document.
func (f *File) Save(_ context.Context, payload []byte) error {
	err := f.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(f.key, string(payload), nil)
		return err
	})
	if err != nil {
		return fmt.Errorf("buntdb set %s: %w", f.key, err)
	}
	return nil
}

var _ BlobStore = (*File)(nil)
