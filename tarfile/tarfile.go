// Package tarfile serializes a bag directory into a single tar container and
// unpacks it again. The container holds one top level directory, named after
// the directory that was packed, so a bag "abc" unpacks into "<dest>/abc".
package tarfile

import (
	"archive/tar"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrUnsafePath means an entry in a container would be written outside
	// of the destination directory.
	ErrUnsafePath = errors.New("tar entry escapes destination directory")

	// ErrEmpty means a container has no entries, so there is no directory
	// to return.
	ErrEmpty = errors.New("tar file is empty")
)

// Create writes the directory dir and everything under it into the tar file
// out. The file out is created, and must not be inside dir.
func Create(dir, out string) error {
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	err = Write(f, dir)
	if err2 := f.Close(); err == nil {
		err = err2
	}
	if err != nil {
		os.Remove(out)
	}
	return err
}

// Write serializes the directory dir onto w. It does not close w.
func Write(w io.Writer, dir string) error {
	dir = filepath.Clean(dir)
	parent := filepath.Dir(dir)
	tw := tar.NewWriter(w)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		// only directories and plain files go into a bag container
		if !info.IsDir() && !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(parent, path)
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if info.IsDir() {
			hdr.Name += "/"
		}
		hdr.Format = tar.FormatPAX
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		return copyFileTo(tw, path)
	})
	if err != nil {
		return errors.Wrapf(err, "creating tar of %s", dir)
	}
	return tw.Close()
}

func copyFileTo(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

// Extract unpacks the tar file into destDir and returns the path of the top
// level directory it contained.
func Extract(file, destDir string) (string, error) {
	f, err := os.Open(file)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return Read(f, destDir)
}

// Read unpacks the tar stream r into destDir, creating destDir if needed.
// It returns the path of the top level directory of the stream.
func Read(r io.Reader, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", err
	}
	var top string
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", errors.Wrap(err, "reading tar")
		}
		name := filepath.FromSlash(strings.TrimSuffix(hdr.Name, "/"))
		target := filepath.Join(destDir, name)
		if !inside(destDir, target) {
			return "", errors.Wrap(ErrUnsafePath, hdr.Name)
		}
		if top == "" {
			top = strings.SplitN(filepath.ToSlash(name), "/", 2)[0]
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			err = os.MkdirAll(target, 0755)
		case tar.TypeReg, tar.TypeRegA:
			err = writeFile(target, tr, hdr.FileInfo().Mode().Perm())
		default:
			// links and devices are never written by Create
			continue
		}
		if err != nil {
			return "", err
		}
	}
	if top == "" {
		return "", ErrEmpty
	}
	return filepath.Join(destDir, top), nil
}

func writeFile(target string, r io.Reader, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm|0600)
	if err != nil {
		return err
	}
	_, err = io.Copy(out, r)
	if err2 := out.Close(); err == nil {
		err = err2
	}
	return err
}

func inside(dir, target string) bool {
	rel, err := filepath.Rel(dir, target)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
