package deposit

import (
	"log"
	"os"
	"strings"

	"github.com/ndlib/depositor/progress"
	"github.com/ndlib/depositor/storage"
)

// verify checks the archived package using the archive's verify method.
//
// With LocalOnly the local tar file, the one which was sent, is unpacked and
// validated. With CopyBack the local tar file is replaced by a copy read back
// from the archive, its digest compared with the one recorded before storing,
// and then it is unpacked and validated.
func (r *run) verify(rec *ArchiveRecord) error {
	method := r.archive.VerifyMethod()
	log.Println("Verification method:", method)
	switch method {
	case storage.LocalOnly:
	case storage.CopyBack:
		if err := os.Remove(r.tarFile); err != nil {
			return err
		}
		var p progress.Progress
		if err := r.archive.Retrieve(rec.ArchiveID, r.tarFile, &p); err != nil {
			return err
		}
		log.Printf("Copied back: %s", &p)
		digest, _, err := r.d.Packager.Digest(r.tarFile)
		if err != nil {
			return err
		}
		if !strings.EqualFold(digest, rec.Digest) {
			return r.fail(VerifyFailed, &ChecksumError{Computed: digest, Expected: rec.Digest})
		}
		log.Println("Checksum:", digest)
	default:
		return r.fail(VerifyFailed, storage.ErrBadVerifyMethod)
	}
	return r.validateTar()
}

// validateTar unpacks the tar file into the verify directory and validates
// the bag found there. Both are removed afterwards.
func (r *run) validateTar() error {
	defer os.RemoveAll(r.verifyDir())
	defer os.Remove(r.tarFile)
	dir, err := r.d.Packager.Untar(r.tarFile, r.verifyDir())
	if err != nil {
		return err
	}
	ok, err := r.d.Packager.ValidateBag(dir)
	if err != nil {
		return err
	}
	if !ok {
		return r.fail(VerifyFailed, ErrBagInvalid)
	}
	log.Println("Bag is valid")
	return nil
}

// verifyDir is where the tar file is unpacked for validation.
func (r *run) verifyDir() string {
	return r.bagDir + ".verify"
}
