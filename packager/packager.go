// Package packager turns a deposit's working directory into an archival
// package: a BagIt bag with the deposit metadata, serialized as a tar file,
// with a digest of the tar file.
package packager

import (
	"log"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/ndlib/depositor/bagit"
	"github.com/ndlib/depositor/identify"
	"github.com/ndlib/depositor/tarfile"
	"github.com/ndlib/depositor/util"
)

// Default packages deposits as bags in tar files.
// The zero value uses SHA-1 digests.
type Default struct {
	// Algorithm is the digest computed over the tar file.
	Algorithm util.Algorithm
}

// New returns a Default packager computing digests with alg.
func New(alg util.Algorithm) *Default {
	return &Default{Algorithm: alg}
}

// CreateBag turns dir into a bag in place.
func (d *Default) CreateBag(dir string) error {
	return errors.Wrap(bagit.CreateBag(dir), "creating bag")
}

// DetectTypes returns a JSON object mapping each payload file of the bag at
// dir to its MIME type.
func (d *Default) DetectTypes(dir string) (string, error) {
	types, err := identify.Directory(filepath.Join(dir, bagit.PayloadDir))
	if err != nil {
		return "", errors.Wrap(err, "detecting file types")
	}
	return types.JSON()
}

// AddMetadata merges the deposit, vault, file type and external metadata
// into the bag at dir.
func (d *Default) AddMetadata(dir, deposit, vault, fileTypes, external string) error {
	err := bagit.AddMetadata(dir, bagit.Metadata{
		Deposit:  deposit,
		Vault:    vault,
		FileType: fileTypes,
		External: external,
	})
	return errors.Wrap(err, "adding metadata")
}

// ExtractMetadata copies the non-payload files of the bag into destDir.
func (d *Default) ExtractMetadata(dir, destDir string) error {
	return errors.Wrap(bagit.ExtractMetadata(dir, destDir), "extracting metadata")
}

// ValidateBag returns true if the bag at dir is complete and every checksum
// matches. An error is returned only if the bag could not be read at all.
func (d *Default) ValidateBag(dir string) (bool, error) {
	err := bagit.Validate(dir)
	if err == nil {
		return true, nil
	}
	if _, ok := err.(*bagit.BagError); ok {
		log.Println(err)
		return false, nil
	}
	return false, err
}

// CreateTar serializes the bag at dir into the file out.
func (d *Default) CreateTar(dir, out string) error {
	return tarfile.Create(dir, out)
}

// Untar unpacks file into destDir and returns the bag directory.
func (d *Default) Untar(file, destDir string) (string, error) {
	return tarfile.Extract(file, destDir)
}

// Digest returns the hex digest of file and the name of the algorithm used.
func (d *Default) Digest(file string) (string, string, error) {
	alg := d.Algorithm
	if alg == "" {
		alg = util.SHA1
	}
	value, err := util.DigestFile(file, alg)
	return value, string(alg), err
}
