// Package identify works out the content types of the files in a deposit.
package identify

import (
	"encoding/json"
	"io/fs"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
)

// Types maps slash separated file paths to their detected MIME type.
type Types map[string]string

// File returns the MIME type of the named file. Files which cannot be
// recognized are reported as "application/octet-stream".
func File(path string) (string, error) {
	m, err := mimetype.DetectFile(path)
	if err != nil {
		return "", err
	}
	return m.String(), nil
}

// Directory detects the type of every regular file under root. The keys of
// the result are relative to root.
func Directory(root string) (Types, error) {
	result := make(Types)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.Type().IsRegular() {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		t, err := File(path)
		if err != nil {
			return errors.Wrapf(err, "identifying %s", rel)
		}
		result[filepath.ToSlash(rel)] = t
		return nil
	})
	return result, err
}

// JSON returns the types as a JSON object. Keys are sorted.
func (t Types) JSON() (string, error) {
	b, err := json.Marshal(map[string]string(t))
	return string(b), err
}
