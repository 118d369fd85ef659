package storage

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/ndlib/depositor/progress"
	"github.com/ndlib/depositor/util"
)

// LocalAliases are other names the "local" backend is registered under.
var LocalAliases = []string{
	"org.datavaultplatform.common.storage.impl.LocalFileSystem",
	"LocalFileSystem",
}

// Local is a backend on a locally mounted file system. It can be both the
// source and the archive of a deposit. Paths given to it are relative to its
// root, and may not climb out of it.
//
// Options:
//
//	root       the directory the backend is based at (required)
//	ratelimit  maximum bytes per second read during copies (optional)
//	verify     copy_back (the default) or local_only
type Local struct {
	root   string
	verify VerifyMethod
	rate   *util.RateCounter
}

var (
	_ UserStore    = &Local{}
	_ ArchiveStore = &Local{}

	// ErrOutsideRoot means a path would resolve outside a backend's root.
	ErrOutsideRoot = errors.New("path is outside of the storage root")
)

// NewLocalBackend is the Constructor for the "local" backend.
func NewLocalBackend(opts Options) (Device, error) {
	return NewLocal(opts)
}

// NewLocal makes a Local backend from its options. The root directory must
// already exist.
func NewLocal(opts Options) (*Local, error) {
	root := opts["root"]
	if root == "" {
		return nil, errors.Wrap(ErrMissingOption, "root")
	}
	fi, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, errors.Errorf("%s is not a directory", root)
	}
	verify, err := ParseVerifyMethod(opts["verify"], CopyBack)
	if err != nil {
		return nil, err
	}
	l := &Local{root: root, verify: verify}
	if s := opts["ratelimit"]; s != "" {
		rate, err := strconv.ParseFloat(s, 64)
		if err != nil || rate <= 0 {
			return nil, errors.Errorf("bad ratelimit %q", s)
		}
		l.rate = util.NewRateCounter(rate)
	}
	return l, nil
}

// Root is the directory this backend is based at.
func (l *Local) Root() string { return l.root }

// resolve turns a backend path into a local one.
func (l *Local) resolve(path string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(strings.TrimLeft(path, "/")))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", ErrOutsideRoot
	}
	return filepath.Join(l.root, clean), nil
}

// Exists returns true if there is a file or directory at path.
func (l *Local) Exists(path string) bool {
	full, err := l.resolve(path)
	if err != nil {
		return false
	}
	_, err = os.Stat(full)
	return err == nil
}

// Name returns the last element of path.
func (l *Local) Name(path string) string {
	return filepath.Base(filepath.FromSlash(path))
}

// Size returns the size of path, recursively for directories.
func (l *Local) Size(path string) (int64, error) {
	full, err := l.resolve(path)
	if err != nil {
		return 0, err
	}
	return treeSize(full)
}

// Retrieve copies path to the local destination dest.
func (l *Local) Retrieve(path string, dest string, p *progress.Progress) error {
	full, err := l.resolve(path)
	if err != nil {
		return err
	}
	return copier{p: p, rate: l.rate}.copyPath(full, dest)
}

// Store copies src into the directory pathHint under the root, keeping its
// base name. The returned id is the slash separated path relative to root.
func (l *Local) Store(pathHint string, src string, p *progress.Progress) (string, error) {
	dir, err := l.resolve(pathHint)
	if err != nil {
		return "", err
	}
	target := filepath.Join(dir, filepath.Base(src))
	if err := (copier{p: p, rate: l.rate}).copyPath(src, target); err != nil {
		return "", err
	}
	rel, err := filepath.Rel(l.root, target)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// VerifyMethod returns the configured verification, COPY_BACK by default.
func (l *Local) VerifyMethod() VerifyMethod { return l.verify }

// Close releases the rate limiter, if any.
func (l *Local) Close() error {
	if l.rate != nil {
		l.rate.Stop()
	}
	return nil
}
