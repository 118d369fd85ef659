package store

import (
	"bytes"
	"io"
	"sync"
)

// Memory implements a simple in-memory version of a store. It is intended
// mainly for testing.
type Memory struct {
	m     sync.RWMutex
	store map[string][]byte
}

var (
	// ensure Memory satisfies the Store interface
	_ Store = &Memory{}
)

// NewMemory returns a new, empty memory store.
func NewMemory() *Memory {
	return &Memory{store: make(map[string][]byte)}
}

// Open returns a reader and the size of the given item. The reader sees the
// content as it was when Open was called.
func (ms *Memory) Open(key string) (io.ReadCloser, int64, error) {
	ms.m.RLock()
	v, ok := ms.store[key]
	ms.m.RUnlock()
	if !ok {
		return nil, 0, ErrNotExist
	}
	return io.NopCloser(bytes.NewReader(v)), int64(len(v)), nil
}

// Stat returns the size of the given item.
func (ms *Memory) Stat(key string) (int64, error) {
	ms.m.RLock()
	v, ok := ms.store[key]
	ms.m.RUnlock()
	if !ok {
		return 0, ErrNotExist
	}
	return int64(len(v)), nil
}

// Create makes a new entry in the store, and returns a writer to save data
// into it. The entry appears when the writer is closed.
func (ms *Memory) Create(key string) (io.WriteCloser, error) {
	ms.m.RLock()
	_, ok := ms.store[key]
	ms.m.RUnlock()
	if ok {
		return nil, ErrKeyExists
	}
	return &memWriter{ms: ms, key: key}, nil
}

// Delete the given key from the store. It is not an error if the item does
// not exist in the store.
func (ms *Memory) Delete(key string) error {
	ms.m.Lock()
	delete(ms.store, key)
	ms.m.Unlock()
	return nil
}

// Keys returns the keys currently in the store, in no particular order.
func (ms *Memory) Keys() []string {
	ms.m.RLock()
	defer ms.m.RUnlock()
	result := make([]string, 0, len(ms.store))
	for k := range ms.store {
		result = append(result, k)
	}
	return result
}

type memWriter struct {
	ms  *Memory
	key string
	buf bytes.Buffer
}

func (w *memWriter) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

func (w *memWriter) Close() error {
	w.ms.m.Lock()
	defer w.ms.m.Unlock()
	if _, ok := w.ms.store[w.key]; ok {
		return ErrKeyExists
	}
	w.ms.store[w.key] = w.buf.Bytes()
	return nil
}
