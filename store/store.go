// Package store provides a simple, goroutine safe key-value interface. Instead
// of values being an opaque array of bytes, though, they are a stream. This
// approach allows large packages to be stored easily.
//
// The archive backends in the storage package are built on top of these
// stores. FileSystem is the one used in production for disk based archives,
// S3 for object storage, and Memory is useful for testing.
package store

import (
	"errors"
	"io"
)

// Store defines the basic stream based key-value store.
// Items are immutable once stored, but they may be deleted and then replaced
// with a new value.
//
// Since the FileSystem store uses the key as file names, keys should not
// contain forbidden filesystem characters, such as '/'.
type Store interface {
	// Open returns a reader for the given key along with its size.
	// ErrNotExist is returned if there is no such key.
	Open(key string) (io.ReadCloser, int64, error)

	// Stat returns the size of the given key, or ErrNotExist.
	Stat(key string) (int64, error)

	// Create returns a writer to save a new item under key. The item is
	// not visible in the store until the writer is closed without error.
	Create(key string) (io.WriteCloser, error)

	// Delete removes key. It is not an error if the key doesn't exist.
	Delete(key string) error
}

var (
	// ErrKeyExists indicates an attempt to create a key which already exists
	ErrKeyExists = errors.New("Key already exists")

	// ErrNotExist means the key requested is not in the store
	ErrNotExist = errors.New("Key does not exist")
)
