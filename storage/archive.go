package storage

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/ndlib/depositor/progress"
	"github.com/ndlib/depositor/store"
)

// StoreBackend keeps deposits in a store.Store, which may be a directory,
// memory or an S3 bucket. Every package stored gets a fresh random key, which
// is its archive id. It can also serve as a user store, in which case paths
// are keys in the store.
//
// Options:
//
//	location   where the store is, see parseLocation (required)
//	prefix     prepended to every key (optional)
//	verify     copy_back or local_only. The default is local_only for
//	           s3 locations and copy_back otherwise.
type StoreBackend struct {
	s      store.Store
	verify VerifyMethod
}

var (
	_ UserStore    = &StoreBackend{}
	_ ArchiveStore = &StoreBackend{}
)

// NewStoreBackend is the Constructor for the "store" backend.
func NewStoreBackend(opts Options) (Device, error) {
	s, err := parseLocation(opts)
	if err != nil {
		return nil, err
	}
	def := CopyBack
	if _, ok := s.(*store.S3); ok {
		def = LocalOnly
	}
	verify, err := ParseVerifyMethod(opts["verify"], def)
	if err != nil {
		return nil, err
	}
	return NewStoreArchive(store.NewWithPrefix(s, opts["prefix"]), verify), nil
}

// NewStoreArchive wraps s as a backend.
func NewStoreArchive(s store.Store, verify VerifyMethod) *StoreBackend {
	return &StoreBackend{s: s, verify: verify}
}

// Exists returns true if key is in the store.
func (sb *StoreBackend) Exists(key string) bool {
	_, err := sb.s.Stat(key)
	return err == nil
}

// Name returns the key.
func (sb *StoreBackend) Name(key string) string { return key }

// Size returns the size of the item under key.
func (sb *StoreBackend) Size(key string) (int64, error) {
	return sb.s.Stat(key)
}

// Retrieve copies the item under key into the local file dest.
func (sb *StoreBackend) Retrieve(key string, dest string, p *progress.Progress) error {
	r, _, err := sb.s.Open(key)
	if err != nil {
		return errors.Wrapf(err, "opening %s", key)
	}
	defer r.Close()
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	_, err = io.Copy(p.Writer(out), r)
	if err2 := out.Close(); err == nil {
		err = err2
	}
	if err != nil {
		os.Remove(dest)
		return err
	}
	p.AddFile()
	return nil
}

// Store saves the local file src under a new key, made from a random UUID
// and the file's extension. The path hint is not used, since store keys are
// flat.
func (sb *StoreBackend) Store(pathHint string, src string, p *progress.Progress) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()
	key := uuid.New().String() + filepath.Ext(src)
	w, err := sb.s.Create(key)
	if err != nil {
		return "", errors.Wrapf(err, "creating %s", key)
	}
	_, err = io.Copy(p.Writer(w), in)
	if err2 := w.Close(); err == nil {
		err = err2
	}
	if err != nil {
		log.Println("Store", key, err)
		sb.s.Delete(key)
		return "", err
	}
	p.AddFile()
	return key, nil
}

// VerifyMethod returns the configured verification method.
func (sb *StoreBackend) VerifyMethod() VerifyMethod { return sb.verify }

// Underlying returns the store packages are kept in.
func (sb *StoreBackend) Underlying() store.Store { return sb.s }
