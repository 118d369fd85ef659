// Package progress keeps the running tally of a copy operation and reports
// on it from a background goroutine while the copy is in flight.
//
// A Progress is shared by reference between the goroutine doing the copy
// (usually inside a storage backend) and a Tracker sampling it. All the
// counters are updated atomically, so neither side ever blocks the other.
package progress

import (
	"fmt"
	"io"
	"sync/atomic"
)

// Progress counts the bytes, files and directories moved so far by a single
// transfer. The zero value is ready to use.
type Progress struct {
	byteCount atomic.Int64
	fileCount atomic.Int64
	dirCount  atomic.Int64
}

// AddBytes records n more bytes transferred.
func (p *Progress) AddBytes(n int64) { p.byteCount.Add(n) }

// AddFile records one more file transferred.
func (p *Progress) AddFile() { p.fileCount.Add(1) }

// AddDir records one more directory created.
func (p *Progress) AddDir() { p.dirCount.Add(1) }

// Bytes returns the number of bytes transferred so far.
func (p *Progress) Bytes() int64 { return p.byteCount.Load() }

// Files returns the number of files transferred so far.
func (p *Progress) Files() int64 { return p.fileCount.Load() }

// Dirs returns the number of directories created so far.
func (p *Progress) Dirs() int64 { return p.dirCount.Load() }

func (p *Progress) String() string {
	return fmt.Sprintf("%d directories, %d files, %d bytes", p.Dirs(), p.Files(), p.Bytes())
}

// Writer wraps w so every byte written through it is added to p.
func (p *Progress) Writer(w io.Writer) io.Writer {
	return &countWriter{w: w, p: p}
}

// Reader wraps r so every byte read through it is added to p.
func (p *Progress) Reader(r io.Reader) io.Reader {
	return &countReader{r: r, p: p}
}

// countWriter is an io.Writer that counts the number of bytes written to it.
type countWriter struct {
	w io.Writer
	p *Progress
}

func (w *countWriter) Write(b []byte) (int, error) {
	n, err := w.w.Write(b)
	w.p.AddBytes(int64(n))
	return n, err
}

type countReader struct {
	r io.Reader
	p *Progress
}

func (r *countReader) Read(b []byte) (int, error) {
	n, err := r.r.Read(b)
	r.p.AddBytes(int64(n))
	return n, err
}

// Metric constants for HumanSize. Lowercased so as to be unexported.
const (
	kb int64 = 1000
	mb       = 1000 * kb
	gb       = 1000 * mb
	tb       = 1000 * gb
)

// HumanSize renders a byte count for log lines and progress messages,
// e.g. "12 MB".
func HumanSize(size int64) string {
	var units string
	switch {
	case size < kb:
		units = "Bytes"
	case size < mb:
		size /= kb
		units = "KB"
	case size < gb:
		size /= mb
		units = "MB"
	case size < tb:
		size /= gb
		units = "GB"
	default:
		size /= tb
		units = "TB"
	}
	return fmt.Sprintf("%d %s", size, units)
}
