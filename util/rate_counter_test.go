package util

import (
	"strings"
	"testing"
)

func TestRateCounter(t *testing.T) {
	// one byte a second gives an initial pool of 60 bytes
	r := NewRateCounter(1)
	reader := r.Wrap(strings.NewReader(strings.Repeat("x", 100)))
	buf := make([]byte, 100)
	n, err := reader.Read(buf)
	if n != 100 || err != nil {
		t.Fatalf("Got %d, %v, expected 100 bytes", n, err)
	}
	// the pool is now negative, so a stop is the only way out
	r.Stop()
	r.Stop()
	// the refill goroutine may hand out one last signal before it sees the stop
	for i := 0; i < 3 && err != ErrStopped; i++ {
		_, err = reader.Read(buf)
	}
	if err != ErrStopped {
		t.Errorf("Got %v, expected %v", err, ErrStopped)
	}
}
