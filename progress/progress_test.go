package progress

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/facebookgo/clock"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	m       sync.Mutex
	samples []Sample
}

func (r *recorder) report(s Sample) {
	r.m.Lock()
	r.samples = append(r.samples, s)
	r.m.Unlock()
}

func (r *recorder) len() int {
	r.m.Lock()
	defer r.m.Unlock()
	return len(r.samples)
}

func (r *recorder) last() Sample {
	r.m.Lock()
	defer r.m.Unlock()
	return r.samples[len(r.samples)-1]
}

func TestHumanSize(t *testing.T) {
	var table = []struct {
		input  int64
		output string
	}{
		{0, "0 Bytes"},
		{999, "999 Bytes"},
		{1000, "1 KB"},
		{1500000, "1 MB"},
		{2000000000, "2 GB"},
		{7000000000000, "7 TB"},
	}
	for _, tab := range table {
		result := HumanSize(tab.input)
		if result != tab.output {
			t.Errorf("HumanSize(%d) = %s, expected %s", tab.input, result, tab.output)
		}
	}
}

func TestCountingWriterAndReader(t *testing.T) {
	var p Progress
	var out bytes.Buffer
	w := p.Writer(&out)
	_, err := w.Write([]byte("hello "))
	require.NoError(t, err)

	buf := make([]byte, 16)
	r := p.Reader(strings.NewReader("world"))
	n, _ := r.Read(buf)

	require.Equal(t, 5, n)
	require.Equal(t, int64(11), p.Bytes())
	p.AddFile()
	p.AddDir()
	require.Equal(t, "1 directories, 1 files, 11 bytes", p.String())
}

func TestTrackerSamplesOnInterval(t *testing.T) {
	mock := clock.NewMock()
	var p Progress
	var rec recorder
	tr := Track(&p, 100, Options{Clock: mock, Interval: time.Second, Label: "Transferring"}, rec.report)

	// the first sample is synchronous
	require.Equal(t, 1, rec.len())

	p.AddBytes(40)
	mock.Add(time.Second)
	require.Eventually(t, func() bool { return rec.len() == 2 }, time.Second, time.Millisecond)
	s := rec.last()
	require.Equal(t, int64(40), s.Bytes)
	require.Equal(t, int64(100), s.Expected)
	require.Equal(t, "Transferring: 40 Bytes of 100 Bytes (40%), 40 Bytes/sec", s.Message)

	p.AddBytes(60)
	tr.Stop()
	n := rec.len()
	require.Equal(t, 3, n)
	require.Equal(t, int64(100), rec.last().Bytes)

	// nothing is reported once Stop returns
	mock.Add(5 * time.Second)
	time.Sleep(5 * time.Millisecond)
	require.Equal(t, n, rec.len())

	// a second Stop is harmless
	tr.Stop()
}

func TestTrackerZeroBytes(t *testing.T) {
	mock := clock.NewMock()
	var p Progress
	var rec recorder
	tr := Track(&p, 0, Options{Clock: mock, StartMessage: "Starting transfer ..."}, rec.report)
	tr.Stop()

	require.Equal(t, 2, rec.len())
	require.Equal(t, "Starting transfer ...", rec.samples[0].Message)
	require.Equal(t, "0 Bytes of 0 Bytes (100%), 0 Bytes/sec", rec.samples[1].Message)
}
