package store

import (
	"sort"
	"testing"
)

func TestPrefix(t *testing.T) {
	mem := NewMemory()
	storeTestSuite(t, NewWithPrefix(mem, "archive-"))

	w, _ := NewWithPrefix(mem, "archive-").Create("x")
	w.Write([]byte("1"))
	w.Close()
	keys := mem.Keys()
	sort.Strings(keys)
	if len(keys) != 1 || keys[0] != "archive-x" {
		t.Errorf("Got keys %v, expected [archive-x]", keys)
	}
}

func TestPrefixEmpty(t *testing.T) {
	mem := NewMemory()
	if NewWithPrefix(mem, "") != Store(mem) {
		t.Errorf("Expected an empty prefix to return the original store")
	}
}

func TestMemory(t *testing.T) {
	storeTestSuite(t, NewMemory())
}

func TestSizeCache(t *testing.T) {
	var calls int
	fill := func(key string) (int64, error) {
		calls++
		if key == "missing" {
			return 0, ErrNotExist
		}
		return 10, nil
	}
	c := newSizeCache()
	for i := 0; i < 3; i++ {
		size, err := c.Get("present", fill)
		if err != nil || size != 10 {
			t.Errorf("Got %d, %v, expected 10", size, err)
		}
		_, err = c.Get("missing", fill)
		if err != ErrNotExist {
			t.Errorf("Got %v, expected ErrNotExist", err)
		}
	}
	if calls != 2 {
		t.Errorf("Got %d fill calls, expected 2", calls)
	}
	c.Forget("present")
	c.Get("present", fill)
	if calls != 3 {
		t.Errorf("Got %d fill calls, expected 3", calls)
	}
}
