// Package storage defines the capabilities a deposit needs from a storage
// backend, and the registry used to build backends by name at run time.
//
// A backend is any value built by a registered Constructor. It advertises
// what it can do by which of the interfaces below it satisfies. Every
// backend is a Device; the source of a deposit must also be a UserStore,
// and the destination must also be an ArchiveStore.
package storage

import (
	"errors"
	"strings"

	"github.com/ndlib/depositor/progress"
)

// A Device can move files and directories between itself and the local
// file system. Implementations record what they move in the given Progress
// as they go, since it is sampled by another goroutine during the copy.
type Device interface {
	// Retrieve copies the item at path on the device to the local path
	// dest. If the item is a directory it is copied recursively.
	Retrieve(path string, dest string, p *progress.Progress) error

	// Store copies the local file src onto the device, using pathHint as
	// a suggestion for where to put it. It returns the identifier to use
	// to Retrieve it later.
	Store(pathHint string, src string, p *progress.Progress) (string, error)
}

// A UserStore is a Device holding a user's files.
type UserStore interface {
	Device
	Exists(path string) bool
	Name(path string) string

	// Size is the number of bytes at path. For directories it is the sum
	// of every file below it.
	Size(path string) (int64, error)
}

// An ArchiveStore is a Device used for long term storage.
type ArchiveStore interface {
	Device

	// VerifyMethod says how a deposit should establish that the copy
	// in the archive is good.
	VerifyMethod() VerifyMethod
}

// VerifyMethod is how a deposit checks a package after archiving it.
type VerifyMethod int

const (
	// LocalOnly validates the local copy of the package which was sent.
	LocalOnly VerifyMethod = iota

	// CopyBack retrieves the package from the archive, compares its
	// digest with the one computed before storing, and validates it.
	CopyBack
)

func (v VerifyMethod) String() string {
	switch v {
	case LocalOnly:
		return "LOCAL_ONLY"
	case CopyBack:
		return "COPY_BACK"
	}
	return "UNKNOWN"
}

// ErrBadVerifyMethod means a verify option was not recognized.
var ErrBadVerifyMethod = errors.New("unknown verify method")

// ParseVerifyMethod reads the "verify" option of a backend. It accepts
// "copy_back" and "local_only" in any case, with dashes or underscores.
// An empty string returns def.
func ParseVerifyMethod(s string, def VerifyMethod) (VerifyMethod, error) {
	switch strings.ReplaceAll(strings.ToLower(s), "-", "_") {
	case "":
		return def, nil
	case "copy_back", "copyback":
		return CopyBack, nil
	case "local_only", "localonly", "local":
		return LocalOnly, nil
	}
	return def, ErrBadVerifyMethod
}
