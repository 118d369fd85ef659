package storage

import (
	"fmt"
	"log"
	"sort"
	"sync"

	raven "github.com/getsentry/raven-go"
	"github.com/pkg/errors"
)

// Options configure a backend. They come straight from a job message or the
// worker configuration, so every value is a string.
type Options map[string]string

// Get returns the option named key, or def if it is missing or empty.
func (o Options) Get(key, def string) string {
	if v := o[key]; v != "" {
		return v
	}
	return def
}

// A Constructor builds a backend from its options. It may also check the
// backend is reachable.
type Constructor func(opts Options) (Device, error)

var (
	// ErrUnknownBackend means no constructor is registered under a name.
	ErrUnknownBackend = errors.New("unknown storage backend")

	// ErrNotUserStore means a backend cannot serve as a deposit source.
	ErrNotUserStore = errors.New("backend is not a user store")

	// ErrNotArchiveStore means a backend cannot serve as an archive.
	ErrNotArchiveStore = errors.New("backend is not an archive store")

	// ErrMissingOption means a required option was not given.
	ErrMissingOption = errors.New("missing backend option")
)

// Registry maps backend names to their constructors. It is safe for
// concurrent use.
type Registry struct {
	m     sync.RWMutex
	ctors map[string]Constructor
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{ctors: make(map[string]Constructor)}
}

// NewDefaultRegistry returns a Registry holding the builtin backends "local"
// and "store", under their own names and their aliases.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("local", NewLocalBackend, LocalAliases...)
	r.Register("store", NewStoreBackend)
	return r
}

// Register adds c to the registry under name and each alias. A later
// registration of the same name replaces the earlier one.
func (r *Registry) Register(name string, c Constructor, aliases ...string) {
	r.m.Lock()
	defer r.m.Unlock()
	r.ctors[name] = c
	for _, a := range aliases {
		r.ctors[a] = c
	}
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.m.RLock()
	defer r.m.RUnlock()
	var result []string
	for k := range r.ctors {
		result = append(result, k)
	}
	sort.Strings(result)
	return result
}

// New builds the backend registered as name. Any failure, including a
// panic inside the constructor, is returned as an error.
func (r *Registry) New(name string, opts Options) (d Device, err error) {
	r.m.RLock()
	c, ok := r.ctors[name]
	r.m.RUnlock()
	if !ok {
		return nil, errors.Wrap(ErrUnknownBackend, name)
	}
	defer func() {
		if x := recover(); x != nil {
			d = nil
			err = fmt.Errorf("constructing backend %s: %v", name, x)
			log.Println(err)
			raven.CaptureError(err, map[string]string{"backend": name})
		}
	}()
	if opts == nil {
		opts = Options{}
	}
	d, err = c(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "constructing backend %s", name)
	}
	if d == nil {
		return nil, fmt.Errorf("constructing backend %s: no backend returned", name)
	}
	return d, nil
}

// UserStore builds the backend name and checks it can act as a UserStore.
func (r *Registry) UserStore(name string, opts Options) (UserStore, error) {
	d, err := r.New(name, opts)
	if err != nil {
		return nil, err
	}
	u, ok := d.(UserStore)
	if !ok {
		return nil, errors.Wrap(ErrNotUserStore, name)
	}
	return u, nil
}

// ArchiveStore builds the backend name and checks it can act as an
// ArchiveStore.
func (r *Registry) ArchiveStore(name string, opts Options) (ArchiveStore, error) {
	d, err := r.New(name, opts)
	if err != nil {
		return nil, err
	}
	a, ok := d.(ArchiveStore)
	if !ok {
		return nil, errors.Wrap(ErrNotArchiveStore, name)
	}
	return a, nil
}
