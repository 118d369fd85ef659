// Package bagit implements enough of the BagIt specification to turn a
// deposit's working directory into a bag, to add the deposit metadata to it,
// and to validate it again after it has been through the archive.
//
// Bags are plain directories on disk. The payload lives under "data/" and
// the tag files (bagit.txt, bag-info.txt, the manifests and the "metadata/"
// directory) live next to it. Payload manifests are written for MD5 and
// SHA256. When validating, manifests for MD5, SHA1 and SHA256 are understood.
//
// Specific items not implemented are fetch files and holey bags. It doesn't
// preserve the order of the tags in the bag-info.txt file, and it doesn't
// preserve multiple occurrences of the same tag.
//
// The BagIt spec can be found at https://tools.ietf.org/html/draft-kunze-bagit-11.
package bagit

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ndlib/depositor/util"
)

const (
	// Version is the version of the BagIt specification this package implements.
	Version = "0.97"

	// PayloadDir is the name of the payload directory inside a bag.
	PayloadDir = "data"

	// MetadataDir is the tag directory holding the deposit metadata.
	MetadataDir = "metadata"
)

// The names of the files written by AddMetadata, inside MetadataDir.
const (
	DepositMetadataFile  = "deposit.json"
	VaultMetadataFile    = "vault.json"
	FileTypeMetadataFile = "filetype.json"
	ExternalMetadataFile = "external.txt"
)

// Metadata is the descriptive content merged into a bag by AddMetadata.
// Each field is saved verbatim.
type Metadata struct {
	Deposit  string
	Vault    string
	FileType string
	External string
}

// manifestAlgorithms lists the manifest types written by this package.
var manifestAlgorithms = []util.Algorithm{util.MD5, util.SHA256}

// manifestName maps a manifest suffix (e.g. "md5") to its algorithm.
var manifestName = map[string]util.Algorithm{
	"md5":    util.MD5,
	"sha1":   util.SHA1,
	"sha256": util.SHA256,
}

func algorithmSuffix(alg util.Algorithm) string {
	for k, v := range manifestName {
		if v == alg {
			return k
		}
	}
	return strings.ToLower(string(alg))
}

var (
	// ErrNotDirectory means a bag operation was given something other than
	// a directory.
	ErrNotDirectory = errors.New("bag path is not a directory")
)

// BagError lists the problems found while validating a bag.
type BagError struct {
	Dir      string
	Problems []string
}

func (b *BagError) Error() string {
	return fmt.Sprintf("bag is invalid: %s: %s", b.Dir, strings.Join(b.Problems, "; "))
}

func (b *BagError) add(format string, args ...interface{}) {
	b.Problems = append(b.Problems, fmt.Sprintf(format, args...))
}
