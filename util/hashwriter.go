package util

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/zeebo/blake3"
)

// An Algorithm names a digest function. The names are the ones written
// into ComputedDigest events, so they follow the usual "SHA-1" spelling.
type Algorithm string

// The supported digest algorithms.
const (
	SHA1   Algorithm = "SHA-1"
	SHA256 Algorithm = "SHA-256"
	MD5    Algorithm = "MD5"
	BLAKE3 Algorithm = "BLAKE3"
)

// ErrUnknownAlgorithm is returned when a digest name is not recognized.
var ErrUnknownAlgorithm = errors.New("unknown digest algorithm")

// ParseAlgorithm turns a digest name into an Algorithm. It is lenient about
// case and dashes, so "sha256", "SHA-256" and "sha-256" all work. An empty
// name gives SHA1.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch strings.ReplaceAll(strings.ToLower(name), "-", "") {
	case "", "sha1":
		return SHA1, nil
	case "sha256":
		return SHA256, nil
	case "md5":
		return MD5, nil
	case "blake3":
		return BLAKE3, nil
	}
	return "", ErrUnknownAlgorithm
}

// New returns a fresh hash for the algorithm. Unknown algorithms give nil.
func (a Algorithm) New() hash.Hash {
	switch a {
	case SHA1:
		return sha1.New()
	case SHA256:
		return sha256.New()
	case MD5:
		return md5.New()
	case BLAKE3:
		return blake3.New()
	}
	return nil
}

// DigestFile returns the lowercase hex digest of the named file.
func DigestFile(path string, alg Algorithm) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return DigestStream(f, alg)
}

// DigestStream reads r to the end and returns its lowercase hex digest.
// The reader is not closed when finished.
func DigestStream(r io.Reader, alg Algorithm) (string, error) {
	h := alg.New()
	if h == nil {
		return "", ErrUnknownAlgorithm
	}
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// VerifyStreamHash checksums the given io.Reader and compares the hex
// checksum against goal. It returns true if they match. An empty goal is
// treated as matching. The reader is not closed when finished.
func VerifyStreamHash(r io.Reader, alg Algorithm, goal string) (bool, error) {
	if goal == "" {
		return true, nil
	}
	computed, err := DigestStream(r, alg)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(computed, goal), nil
}

// An HashWriter wraps an io.Writer and also calculates one or more hashes of
// the bytes written.
type HashWriter struct {
	io.Writer // our io.MultiWriter
	hashes    map[Algorithm]hash.Hash
}

// NewHashWriter returns a HashWriter wrapping w which computes the given
// algorithms. If w is nil the writer only computes the checksums.
func NewHashWriter(w io.Writer, algs ...Algorithm) *HashWriter {
	hw := &HashWriter{hashes: make(map[Algorithm]hash.Hash)}
	var writers []io.Writer
	if w != nil {
		writers = append(writers, w)
	}
	for _, alg := range algs {
		h := alg.New()
		if h == nil {
			continue
		}
		hw.hashes[alg] = h
		writers = append(writers, h)
	}
	hw.Writer = io.MultiWriter(writers...)
	return hw
}

// Sum returns the hex encoded hash for alg, or the empty string if this
// writer is not computing it.
func (hw *HashWriter) Sum(alg Algorithm) string {
	h := hw.hashes[alg]
	if h == nil {
		return ""
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Check returns the hash for alg and compares it with the goal hash passed
// in. If the goal is empty then it is treated as matching.
func (hw *HashWriter) Check(alg Algorithm, goal string) (string, bool) {
	computed := hw.Sum(alg)
	ok := goal == "" || strings.EqualFold(goal, computed)
	return computed, ok
}
