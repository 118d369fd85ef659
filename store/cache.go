package store

// The S3 store needs to remember the size of remote objects so repeated
// Stat calls on a key do not each become a HEAD request.

import (
	"sync"
	"time"
)

// head is the structure stored in a sizecache.
type head struct {
	expire time.Time
	size   int64 // size of item. -1 = doesn't exist. see constant below
}

// A sizecache is used to remember the size or non-size of a remote object.
// Entries expire after some amount of time. Items not existing expire
// quicker than items with a size. Zero length objects are not cached, since
// a zero entry means "unknown".
type sizecache struct {
	m         sync.Mutex      // protects everything below
	cache     map[string]head // cache for item sizes
	sweeptime time.Time       // next time to age everything
}

const (
	// constant for head.size. Indicates that the given key is deleted.
	sizeDeleted int64 = -1 // any negative number will work

	defaultMissTTL = 5 * time.Minute
	defaultHitTTL  = 24 * time.Hour
)

func newSizeCache() *sizecache {
	return &sizecache{
		cache: make(map[string]head),
	}
}

// Get returns the size associated with key. If key is not in the cache
// it will call the fill function to figure out what the size is.
// If a size is negative the error ErrNotExist is returned.
func (s *sizecache) Get(key string, fill func(key string) (int64, error)) (int64, error) {
	s.m.Lock()
	now := time.Now()
	if now.After(s.sweeptime) {
		s.age(now)
	}
	entry, ok := s.cache[key]
	s.m.Unlock()
	if ok && now.Before(entry.expire) {
		if entry.size < 0 {
			// we have previously determined this key does not exist
			return 0, ErrNotExist
		}
		return entry.size, nil
	}
	size, err := fill(key)
	switch {
	case err == ErrNotExist:
		s.Set(key, sizeDeleted)
	case err == nil:
		s.Set(key, size)
	}
	return size, err
}

// Set caches a size to use for the given key.
// Use sizeDeleted to mark the key as missing.
func (s *sizecache) Set(key string, size int64) {
	ttl := defaultHitTTL
	switch {
	case size < 0:
		ttl = defaultMissTTL
	case size == 0:
		s.Forget(key)
		return
	}
	s.m.Lock()
	s.cache[key] = head{expire: time.Now().Add(ttl), size: size}
	s.m.Unlock()
}

// Forget removes any cached entry for key.
func (s *sizecache) Forget(key string) {
	s.m.Lock()
	delete(s.cache, key)
	s.m.Unlock()
}

// age removes the entries which have expired. The caller must hold s.m.
func (s *sizecache) age(now time.Time) {
	s.sweeptime = now.Add(time.Hour) // next sweep in an hour
	for k, v := range s.cache {
		if now.After(v.expire) {
			delete(s.cache, k) // remove aged entries
		}
	}
}
