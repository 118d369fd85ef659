package store

import (
	"io"
)

// NewWithPrefix wraps the store s by one which will prefix all its keys by
// prefix. This provides a way to namespace the keys, and to share the same
// underlying store among more than one archive.
func NewWithPrefix(s Store, prefix string) Store {
	if prefix == "" {
		return s
	}
	return prefixstore{s: s, p: prefix}
}

type prefixstore struct {
	s Store  // the store being wrapped
	p string // the prefix for our keys
}

func (ps prefixstore) Open(key string) (io.ReadCloser, int64, error) {
	return ps.s.Open(ps.p + key)
}

func (ps prefixstore) Stat(key string) (int64, error) {
	return ps.s.Stat(ps.p + key)
}

func (ps prefixstore) Create(key string) (io.WriteCloser, error) {
	return ps.s.Create(ps.p + key)
}

func (ps prefixstore) Delete(key string) error {
	return ps.s.Delete(ps.p + key)
}
