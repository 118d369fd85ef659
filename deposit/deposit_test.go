package deposit

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/facebookgo/clock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/ndlib/depositor/event"
	"github.com/ndlib/depositor/packager"
	"github.com/ndlib/depositor/progress"
	"github.com/ndlib/depositor/storage"
	"github.com/ndlib/depositor/store"
	"github.com/ndlib/depositor/util"
)

// fixture is a deposit environment in a temporary directory.
type fixture struct {
	d        *Deposit
	rec      *event.Recorder
	userRoot string
	archive  string
	mem      *storage.StoreBackend
}

func newFixture(t *testing.T) *fixture {
	base := t.TempDir()
	f := &fixture{
		rec:      &event.Recorder{},
		userRoot: filepath.Join(base, "user"),
		archive:  filepath.Join(base, "archive"),
		mem:      storage.NewStoreArchive(store.NewMemory(), storage.CopyBack),
	}
	os.MkdirAll(f.userRoot, 0755)
	os.MkdirAll(f.archive, 0755)
	reg := storage.NewDefaultRegistry()
	reg.Register("memory", func(storage.Options) (storage.Device, error) { return f.mem, nil })
	reg.Register("corrupt", func(storage.Options) (storage.Device, error) { return corrupting{f.mem}, nil })
	f.d = &Deposit{
		TempDir:  filepath.Join(base, "temp"),
		MetaDir:  filepath.Join(base, "meta"),
		Registry: reg,
		Packager: packager.New(util.SHA1),
		Sink:     f.rec,
		Progress: progress.Options{Clock: clock.NewMock()},
	}
	return f
}

func (f *fixture) writeUserFile(t *testing.T, name, content string) {
	p := filepath.Join(f.userRoot, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
}

func (f *fixture) job(path string, archiveType string, archiveOpts storage.Options) *Job {
	return &Job{
		JobID:            "job-1",
		DepositID:        "deposit-1",
		BagID:            "bag-1",
		UserID:           "user-1",
		FilePath:         path,
		DepositMetadata:  `{"note":"test deposit"}`,
		VaultMetadata:    `{"vault":"v1"}`,
		ExternalMetadata: "external",
		UserStore:        EndpointSpec{Type: "local", Options: storage.Options{"root": f.userRoot}},
		ArchiveStore:     EndpointSpec{Type: archiveType, Options: archiveOpts},
	}
}

// collapse merges runs of UpdateProgress events into one.
func collapse(kinds []event.Kind) []event.Kind {
	var result []event.Kind
	for _, k := range kinds {
		if k == event.UpdateProgress && len(result) > 0 && result[len(result)-1] == k {
			continue
		}
		result = append(result, k)
	}
	return result
}

var successSequence = []event.Kind{
	event.InitStates,
	event.Start,
	event.ComputedSize,
	event.UpdateProgress,
	event.TransferComplete,
	event.PackageComplete,
	event.ComputedDigest,
	event.UpdateProgress,
	event.Complete,
}

// checkSuccess checks the shape of a successful event stream.
func checkSuccess(t *testing.T, events []event.Event) {
	t.Helper()
	var kinds []event.Kind
	for _, e := range events {
		kinds = append(kinds, e.Kind)
		require.Equal(t, "job-1", e.JobID)
		require.Equal(t, "deposit-1", e.DepositID)
		require.Equal(t, "user-1", e.UserID)
	}
	require.Equal(t, successSequence, collapse(kinds))

	// states only move forward
	last := -1
	for _, e := range events {
		if e.NextState == nil {
			continue
		}
		require.Greater(t, *e.NextState, last)
		last = *e.NextState
	}
	require.Equal(t, StateComplete, last)
}

func requireDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return
	}
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestLocalOnly(t *testing.T) {
	f := newFixture(t)
	f.writeUserFile(t, "docs/report.txt", "the quarterly report\n")
	job := f.job("docs/report.txt", "local", storage.Options{"root": f.archive, "verify": "local_only"})

	rec, err := f.d.Run(job)
	require.NoError(t, err)
	events := f.rec.Events()
	checkSuccess(t, events)

	require.NotEmpty(t, rec.ArchiveID)
	fi, err := os.Stat(filepath.Join(f.archive, rec.ArchiveID))
	require.NoError(t, err)
	require.Equal(t, fi.Size(), rec.ArchiveSize)
	digest, err := util.DigestFile(filepath.Join(f.archive, rec.ArchiveID), util.SHA1)
	require.NoError(t, err)
	require.Equal(t, digest, rec.Digest)

	final := events[len(events)-1]
	require.Equal(t, rec.ArchiveID, final.ArchiveID)
	require.Equal(t, rec.ArchiveSize, final.ArchiveSize)

	var sawSize, sawDigest, sawStart bool
	for _, e := range events {
		switch e.Kind {
		case event.InitStates:
			require.Equal(t, States, e.States)
		case event.ComputedSize:
			sawSize = true
			require.Equal(t, int64(21), e.Bytes)
		case event.ComputedDigest:
			sawDigest = true
			require.Equal(t, rec.Digest, e.Digest)
			require.Equal(t, "SHA-1", e.DigestAlgorithm)
		case event.UpdateProgress:
			if e.Message == "Starting transfer ..." {
				sawStart = true
			}
		}
	}
	require.True(t, sawSize && sawDigest && sawStart)

	requireDirEmpty(t, f.d.TempDir)
	_, err = os.Stat(filepath.Join(f.d.MetaDir, "bag-1", "metadata", "deposit.json"))
	require.NoError(t, err)
}

func TestCopyBack(t *testing.T) {
	f := newFixture(t)
	f.writeUserFile(t, "data.csv", "a,b,c\n1,2,3\n")
	rec, err := f.d.Run(f.job("data.csv", "memory", nil))
	require.NoError(t, err)
	checkSuccess(t, f.rec.Events())
	require.True(t, strings.HasSuffix(rec.ArchiveID, ".tar"))
	size, err := f.mem.Size(rec.ArchiveID)
	require.NoError(t, err)
	require.Equal(t, size, rec.ArchiveSize)
	requireDirEmpty(t, f.d.TempDir)
}

func TestDirectoryDeposit(t *testing.T) {
	f := newFixture(t)
	f.writeUserFile(t, "project/a.txt", "aaa")
	f.writeUserFile(t, "project/sub/b.txt", "bbbb")
	_, err := f.d.Run(f.job("project", "local", storage.Options{"root": f.archive}))
	require.NoError(t, err)
	checkSuccess(t, f.rec.Events())
	for _, e := range f.rec.Events() {
		if e.Kind == event.ComputedSize {
			require.Equal(t, int64(7), e.Bytes)
		}
	}
	types, err := os.ReadFile(filepath.Join(f.d.MetaDir, "bag-1", "metadata", "filetype.json"))
	require.NoError(t, err)
	require.Contains(t, string(types), "project/sub/b.txt")
}

func TestZeroByteFile(t *testing.T) {
	f := newFixture(t)
	f.writeUserFile(t, "empty", "")
	_, err := f.d.Run(f.job("empty", "local", storage.Options{"root": f.archive}))
	require.NoError(t, err)
	events := f.rec.Events()
	checkSuccess(t, events)

	var samples int
	for _, e := range events {
		if e.Kind == event.ComputedSize {
			require.Equal(t, int64(0), e.Bytes)
		}
		if e.Kind == event.TransferComplete {
			break
		}
		if e.Kind == event.UpdateProgress && e.NextState == nil {
			samples++
		}
	}
	require.GreaterOrEqual(t, samples, 2)
}

func TestRedelivered(t *testing.T) {
	f := newFixture(t)
	f.writeUserFile(t, "file", "content")
	job := f.job("file", "local", storage.Options{"root": f.archive})
	job.Redeliver = true

	_, err := f.d.Run(job)
	var se *StageError
	require.True(t, errors.As(err, &se))
	require.Equal(t, Redelivered, se.Kind)
	require.Equal(t, NoState, se.State)

	events := f.rec.Events()
	require.Len(t, events, 1)
	require.Equal(t, event.Error, events[0].Kind)
	require.Equal(t, "Deposit stopped: the message had been redelivered, please investigate", events[0].Message)
	_, err = os.Stat(f.d.TempDir)
	require.True(t, os.IsNotExist(err))
}

func TestFileNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.d.Run(f.job("missing", "local", storage.Options{"root": f.archive}))
	require.Error(t, err)
	require.Equal(t, []event.Kind{event.InitStates, event.Start, event.Error}, f.rec.Kinds())
	events := f.rec.Events()
	require.Equal(t, "Deposit failed: file not found", events[2].Message)
}

func TestBadBagID(t *testing.T) {
	for _, bag := range []string{"../escaped", "a/b", "..", ""} {
		f := newFixture(t)
		f.writeUserFile(t, "file", "content")
		job := f.job("file", "local", storage.Options{"root": f.archive})
		job.BagID = bag
		_, err := f.d.Run(job)
		var se *StageError
		require.True(t, errors.As(err, &se), bag)
		require.Equal(t, StageFailed, se.Kind)
		require.Equal(t, ErrBadBagID, errors.Cause(se.Err))
		require.Equal(t, []event.Kind{event.InitStates, event.Start, event.Error}, f.rec.Kinds())

		base := filepath.Dir(f.d.TempDir)
		_, err = os.Stat(filepath.Join(base, "escaped"))
		require.True(t, os.IsNotExist(err))
		_, err = os.Stat(f.d.TempDir)
		require.True(t, os.IsNotExist(err))
	}
}

func TestUnknownBackend(t *testing.T) {
	var table = []struct {
		user    string
		archive string
		message string
		kind    ErrorKind
	}{
		{"nosuch", "local", "Deposit failed: could not access user filesystem", UserStoreUnavailable},
		{"local", "nosuch", "Deposit failed: could not access archive filesystem", ArchiveStoreUnavailable},
	}
	for _, tab := range table {
		f := newFixture(t)
		f.writeUserFile(t, "file", "content")
		job := f.job("file", tab.archive, storage.Options{"root": f.archive})
		job.UserStore.Type = tab.user
		_, err := f.d.Run(job)
		var se *StageError
		require.True(t, errors.As(err, &se))
		require.Equal(t, tab.kind, se.Kind)
		require.Equal(t, storage.ErrUnknownBackend, errors.Cause(se.Err))
		require.Equal(t, []event.Kind{event.InitStates, event.Start, event.Error}, f.rec.Kinds())
		require.Equal(t, tab.message, f.rec.Events()[2].Message)
	}
}

// corrupting changes the packages it reads back from the archive.
type corrupting struct {
	*storage.StoreBackend
}

func (c corrupting) Retrieve(key string, dest string, p *progress.Progress) error {
	if err := c.StoreBackend.Retrieve(key, dest, p); err != nil {
		return err
	}
	f, err := os.OpenFile(dest, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteAt([]byte("corrupted"), 0)
	return err
}

func TestCopyBackCorrupted(t *testing.T) {
	f := newFixture(t)
	f.writeUserFile(t, "file", "precious content")
	_, err := f.d.Run(f.job("file", "corrupt", nil))
	var se *StageError
	require.True(t, errors.As(err, &se))
	require.Equal(t, VerifyFailed, se.Kind)
	require.Equal(t, StateVerifying, se.State)

	events := f.rec.Events()
	final := events[len(events)-1]
	require.Equal(t, event.Error, final.Kind)
	require.Contains(t, final.Message, "checksum failed")
	for _, e := range events {
		require.NotEqual(t, event.Complete, e.Kind)
	}
	requireDirEmpty(t, f.d.TempDir)
	_, err = os.Stat(filepath.Join(f.d.MetaDir, "bag-1"))
	require.True(t, os.IsNotExist(err))
}

// failingPackager breaks when making the tar file.
type failingPackager struct {
	*packager.Default
}

func (failingPackager) CreateTar(dir, out string) error {
	return errors.New("disk full")
}

func TestStageFailure(t *testing.T) {
	f := newFixture(t)
	f.d.Packager = failingPackager{packager.New(util.SHA1)}
	f.writeUserFile(t, "file", "content")
	_, err := f.d.Run(f.job("file", "local", storage.Options{"root": f.archive}))
	var se *StageError
	require.True(t, errors.As(err, &se))
	require.Equal(t, StageFailed, se.Kind)
	require.Equal(t, StatePackaging, se.State)

	kinds := f.rec.Kinds()
	require.Equal(t, event.Error, kinds[len(kinds)-1])
	require.Equal(t, "Deposit failed: disk full", f.rec.Events()[len(kinds)-1].Message)
	requireDirEmpty(t, f.d.TempDir)
}

func TestInvalidBag(t *testing.T) {
	f := newFixture(t)
	f.d.Packager = invalidPackager{packager.New(util.SHA1)}
	f.writeUserFile(t, "file", "content")
	_, err := f.d.Run(f.job("file", "local", storage.Options{"root": f.archive, "verify": "local_only"}))
	var se *StageError
	require.True(t, errors.As(err, &se))
	require.Equal(t, VerifyFailed, se.Kind)
	require.Equal(t, ErrBagInvalid, se.Err)
	require.Equal(t, "Deposit failed: bag is invalid", se.Message())
	requireDirEmpty(t, f.d.TempDir)
}

type invalidPackager struct {
	*packager.Default
}

func (invalidPackager) ValidateBag(dir string) (bool, error) { return false, nil }
