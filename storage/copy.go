package storage

import (
	"io"
	"os"
	"path/filepath"

	"github.com/ndlib/depositor/progress"
	"github.com/ndlib/depositor/util"
)

// copier copies files and directory trees, recording its work in a
// Progress. If rate is not nil, reads are throttled by it.
type copier struct {
	p    *progress.Progress
	rate *util.RateCounter
}

// copyPath copies src to dest. Directories are copied recursively.
func (c copier) copyPath(src, dest string) error {
	fi, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return c.copyFile(src, dest, fi.Mode().Perm())
	}
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		switch {
		case info.IsDir():
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
			c.p.AddDir()
		case info.Mode().IsRegular():
			return c.copyFile(path, target, info.Mode().Perm())
		}
		// anything else (links, devices, sockets) is not deposited
		return nil
	})
}

func (c copier) copyFile(src, dest string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm|0600)
	if err != nil {
		return err
	}
	err = c.copyStream(out, in)
	if err2 := out.Close(); err == nil {
		err = err2
	}
	if err != nil {
		os.Remove(dest)
		return err
	}
	c.p.AddFile()
	return nil
}

// copyStream copies r to w, counting the bytes in the progress.
func (c copier) copyStream(w io.Writer, r io.Reader) error {
	if c.rate != nil {
		r = c.rate.Wrap(r)
	}
	_, err := io.Copy(c.p.Writer(w), r)
	return err
}

// treeSize returns the size of path, summing every regular file below it
// if it is a directory.
func treeSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}
