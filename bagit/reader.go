package bagit

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/ndlib/depositor/util"
)

// Validate checks the bag at dir. It returns nil if the bag is complete and
// every checksum in its payload and tag manifests matches. Otherwise a
// *BagError listing every problem found is returned. Other errors indicate
// the bag could not be read at all. Validate does not modify the bag.
func Validate(dir string) error {
	fi, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return ErrNotDirectory
	}
	problems := &BagError{Dir: dir}

	tags, err := ReadTags(filepath.Join(dir, "bagit.txt"))
	if err != nil {
		problems.add("missing bagit.txt")
	} else if tags["BagIt-Version"] == "" {
		problems.add("bagit.txt has no BagIt-Version")
	}

	manifests, err := filepath.Glob(filepath.Join(dir, "manifest-*.txt"))
	if err != nil {
		return err
	}
	if len(manifests) == 0 {
		problems.add("no payload manifest")
	}
	listed := make(map[string]bool)
	for _, m := range manifests {
		names, err := checkManifest(dir, m, problems)
		if err != nil {
			return err
		}
		for _, name := range names {
			listed[name] = true
		}
	}

	// every payload file needs to be in some manifest
	payload := filepath.Join(dir, PayloadDir)
	var size int64
	var count int
	err = filepath.Walk(payload, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == payload {
				problems.add("missing payload directory")
				return filepath.SkipDir
			}
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, _ := filepath.Rel(dir, path)
		rel = filepath.ToSlash(rel)
		if !listed[rel] {
			problems.add("%s is not in any manifest", rel)
		}
		size += info.Size()
		count++
		return nil
	})
	if err != nil {
		return err
	}

	tagmanifests, err := filepath.Glob(filepath.Join(dir, "tagmanifest-*.txt"))
	if err != nil {
		return err
	}
	for _, m := range tagmanifests {
		if _, err := checkManifest(dir, m, problems); err != nil {
			return err
		}
	}

	info, err := ReadTags(filepath.Join(dir, "bag-info.txt"))
	if err == nil && info["Payload-Oxum"] != "" {
		if !oxumMatches(info["Payload-Oxum"], size, count) {
			problems.add("Payload-Oxum %s does not match %d.%d", info["Payload-Oxum"], size, count)
		}
	}

	if len(problems.Problems) > 0 {
		return problems
	}
	return nil
}

// IsValid returns true if Validate finds no problems with the bag at dir.
func IsValid(dir string) bool {
	return Validate(dir) == nil
}

// checkManifest verifies each entry of the manifest file fname against the
// files in dir. It returns the names listed in the manifest. Problems are
// added to problems, and only I/O errors on the manifest itself are returned.
func checkManifest(dir, fname string, problems *BagError) ([]string, error) {
	base := filepath.Base(fname)
	suffix := strings.TrimSuffix(base[strings.Index(base, "-")+1:], ".txt")
	alg, ok := manifestName[suffix]
	if !ok {
		problems.add("unsupported manifest %s", base)
		return nil, nil
	}
	entries, err := ReadManifest(fname)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", base)
	}
	var names []string
	for name, goal := range entries {
		names = append(names, name)
		if !safePath(name) {
			problems.add("%s: bad path %s", base, name)
			continue
		}
		computed, err := util.DigestFile(filepath.Join(dir, filepath.FromSlash(name)), alg)
		if os.IsNotExist(err) {
			problems.add("%s: %s is missing", base, name)
			continue
		} else if err != nil {
			problems.add("%s: %s: %s", base, name, err)
			continue
		}
		if !strings.EqualFold(computed, goal) {
			problems.add("%s: checksum mismatch for %s", base, name)
		}
	}
	return names, nil
}

// ReadManifest parses a manifest file into a map from file name to
// hex checksum.
func ReadManifest(fname string) (map[string]string, error) {
	f, err := os.Open(fname)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	result := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		i := strings.IndexAny(line, " \t")
		if i == -1 {
			return nil, errors.Errorf("malformed manifest line %q", line)
		}
		// allow any run of spaces, and the md5sum binary marker
		name := strings.TrimLeft(line[i:], " \t")
		name = strings.TrimPrefix(name, "*")
		result[name] = line[:i]
	}
	return result, scanner.Err()
}

// ReadTags parses a tag file such as bag-info.txt. Lines beginning with
// white space continue the value of the previous tag.
func ReadTags(fname string) (map[string]string, error) {
	f, err := os.Open(fname)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseTags(f)
}

func parseTags(r io.Reader) (map[string]string, error) {
	result := make(map[string]string)
	var last string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if line[0] == ' ' || line[0] == '\t' {
			if last != "" {
				result[last] += " " + strings.TrimSpace(line)
			}
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		last = strings.TrimSpace(parts[0])
		result[last] = strings.TrimSpace(parts[1])
	}
	return result, scanner.Err()
}

// ExtractMetadata copies every file of the bag at dir which is not payload
// into destDir, keeping their relative paths. The bag is unchanged.
func ExtractMetadata(dir, destDir string) error {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return err
	}
	return walkTags(dir, func(path, rel string) error {
		target := filepath.Join(destDir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	_, err = io.Copy(out, in)
	if err2 := out.Close(); err == nil {
		err = err2
	}
	return err
}

func oxumMatches(oxum string, size int64, count int) bool {
	parts := strings.SplitN(oxum, ".", 2)
	if len(parts) != 2 {
		return false
	}
	s, err1 := strconv.ParseInt(parts[0], 10, 64)
	n, err2 := strconv.Atoi(parts[1])
	return err1 == nil && err2 == nil && s == size && n == count
}

// safePath rejects manifest entries which would point outside the bag.
func safePath(name string) bool {
	if name == "" || strings.HasPrefix(name, "/") {
		return false
	}
	for _, p := range strings.Split(name, "/") {
		if p == ".." {
			return false
		}
	}
	return true
}
