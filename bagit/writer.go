package bagit

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/ndlib/depositor/progress"
	"github.com/ndlib/depositor/util"
)

// CreateBag converts the directory dir into a bag in place. Everything
// currently in dir is moved into the payload directory "data/", and then
// the bag declaration, the bag-info.txt tags and the payload and tag
// manifests are written.
func CreateBag(dir string) error {
	fi, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return ErrNotDirectory
	}
	if err := movePayload(dir); err != nil {
		return errors.Wrap(err, "moving payload")
	}
	sums, size, count, err := checksumTree(filepath.Join(dir, PayloadDir), PayloadDir+"/")
	if err != nil {
		return errors.Wrap(err, "computing payload checksums")
	}
	if err := writeDeclaration(dir); err != nil {
		return err
	}
	tags := map[string]string{
		"Payload-Oxum": fmt.Sprintf("%d.%d", size, count),
		"Bagging-Date": time.Now().Format("2006-01-02"),
		"Bag-Size":     progress.HumanSize(size),
	}
	if err := writeTagFile(filepath.Join(dir, "bag-info.txt"), tags); err != nil {
		return err
	}
	for _, alg := range manifestAlgorithms {
		name := "manifest-" + algorithmSuffix(alg) + ".txt"
		if err := writeManifest(filepath.Join(dir, name), sums, alg); err != nil {
			return err
		}
	}
	return writeTagManifests(dir)
}

// AddMetadata saves the deposit metadata into the "metadata/" tag directory
// of the bag at dir and regenerates the tag manifests.
func AddMetadata(dir string, m Metadata) error {
	mdir := filepath.Join(dir, MetadataDir)
	if err := os.MkdirAll(mdir, 0755); err != nil {
		return err
	}
	var files = []struct {
		name    string
		content string
	}{
		{DepositMetadataFile, m.Deposit},
		{VaultMetadataFile, m.Vault},
		{FileTypeMetadataFile, m.FileType},
		{ExternalMetadataFile, m.External},
	}
	for _, f := range files {
		err := os.WriteFile(filepath.Join(mdir, f.name), []byte(f.content), 0644)
		if err != nil {
			return errors.Wrapf(err, "writing %s", f.name)
		}
	}
	return writeTagManifests(dir)
}

// movePayload moves the contents of dir into dir/data. The files are first
// moved into a scratch directory in case one of them is itself named "data".
func movePayload(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	scratch, err := os.MkdirTemp(dir, ".payload-")
	if err != nil {
		return err
	}
	for _, e := range entries {
		err = os.Rename(filepath.Join(dir, e.Name()), filepath.Join(scratch, e.Name()))
		if err != nil {
			return err
		}
	}
	return os.Rename(scratch, filepath.Join(dir, PayloadDir))
}

// checksum holds the hex encoded hashes of a single file.
type checksum map[util.Algorithm]string

// checksumTree walks root and computes the manifest checksums of every
// regular file under it. The returned names are slash separated, relative to
// root and prefixed with prefix. It also returns the total size and number
// of files seen.
func checksumTree(root, prefix string) (map[string]checksum, int64, int, error) {
	result := make(map[string]checksum)
	var size int64
	var count int
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.Type().IsRegular() {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		ck, n, err := checksumFile(path, manifestAlgorithms...)
		if err != nil {
			return err
		}
		result[prefix+filepath.ToSlash(rel)] = ck
		size += n
		count++
		return nil
	})
	return result, size, count, err
}

func checksumFile(path string, algs ...util.Algorithm) (checksum, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()
	hw := util.NewHashWriter(nil, algs...)
	n, err := io.Copy(hw, f)
	if err != nil {
		return nil, 0, err
	}
	ck := make(checksum)
	for _, alg := range algs {
		ck[alg] = hw.Sum(alg)
	}
	return ck, n, nil
}

func writeDeclaration(dir string) error {
	content := fmt.Sprintf("BagIt-Version: %s\nTag-File-Character-Encoding: UTF-8\n", Version)
	return os.WriteFile(filepath.Join(dir, "bagit.txt"), []byte(content), 0644)
}

// writeTagFile saves tags as "Name: value" lines, sorted by name.
func writeTagFile(fname string, tags map[string]string) error {
	var keys []string
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n", k, tags[k])
	}
	return os.WriteFile(fname, []byte(b.String()), 0644)
}

func writeManifest(fname string, sums map[string]checksum, alg util.Algorithm) error {
	var names []string
	for name := range sums {
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	for _, name := range names {
		h := sums[name][alg]
		if h == "" {
			continue
		}
		// The 2 spaces is to be identical to the GNU md5sum output.
		fmt.Fprintf(&b, "%s  %s\n", h, name)
	}
	return os.WriteFile(fname, []byte(b.String()), 0644)
}

// writeTagManifests (re)writes the tag manifests covering every file of the
// bag outside the payload directory, except the tag manifests themselves.
func writeTagManifests(dir string) error {
	sums := make(map[string]checksum)
	err := walkTags(dir, func(path, rel string) error {
		if isTagManifest(rel) {
			return nil
		}
		ck, _, err := checksumFile(path, manifestAlgorithms...)
		if err == nil {
			sums[rel] = ck
		}
		return err
	})
	if err != nil {
		return errors.Wrap(err, "computing tag checksums")
	}
	for _, alg := range manifestAlgorithms {
		name := "tagmanifest-" + algorithmSuffix(alg) + ".txt"
		if err := writeManifest(filepath.Join(dir, name), sums, alg); err != nil {
			return err
		}
	}
	return nil
}

// walkTags calls fn for every regular file of the bag at dir which is not
// in the payload directory. rel is slash separated and relative to dir.
func walkTags(dir string, fn func(path, rel string) error) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if rel == PayloadDir {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return fn(path, rel)
	})
}

func isTagManifest(rel string) bool {
	return strings.HasPrefix(rel, "tagmanifest-") && !strings.Contains(rel, "/")
}
