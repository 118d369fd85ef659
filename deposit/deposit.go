// Package deposit runs the deposit pipeline: it copies an item out of a
// user's storage, packages it as a bag inside a tar file, records the tar
// file's digest, stores it in an archive and verifies the archived copy.
//
// Every step is reported as an event on a Sink. A run always ends with
// exactly one Complete or Error event.
package deposit

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/facebookgo/stats"
	raven "github.com/getsentry/raven-go"
	"github.com/pkg/errors"

	"github.com/ndlib/depositor/event"
	"github.com/ndlib/depositor/progress"
	"github.com/ndlib/depositor/storage"
)

// The states of a deposit, in order.
const (
	StateCalculatingSize = iota
	StateTransferring
	StatePackaging
	StateStoring
	StateVerifying
	StateComplete
)

// States are the names of the deposit states, indexed by state.
var States = []string{
	"Calculating size",
	"Transferring",
	"Packaging",
	"Storing in archive",
	"Verifying",
	"Complete",
}

// Packager builds and checks the archival package of a deposit.
// Every method either succeeds completely or returns an error.
type Packager interface {
	CreateBag(dir string) error
	// DetectTypes returns a JSON description of the payload file types.
	DetectTypes(dir string) (string, error)
	AddMetadata(dir, deposit, vault, fileTypes, external string) error
	ExtractMetadata(dir, destDir string) error
	ValidateBag(dir string) (bool, error)
	CreateTar(dir, out string) error
	Untar(file, destDir string) (string, error)
	// Digest returns the digest of file and the name of its algorithm.
	Digest(file string) (string, string, error)
}

// ArchiveRecord describes a package stored in an archive.
type ArchiveRecord struct {
	ArchiveID       string
	ArchiveSize     int64
	Digest          string
	DigestAlgorithm string
}

// Deposit holds what a pipeline run needs from its surroundings. A single
// Deposit may run many jobs, concurrently, as long as their bag ids differ.
type Deposit struct {
	TempDir string // working bags and tar files live here while packaging
	MetaDir string // bag metadata is kept here after a deposit succeeds

	Registry *storage.Registry
	Packager Packager
	Sink     event.Sink

	// Progress configures the trackers reporting on copies. The Label and
	// StartMessage fields are set per copy.
	Progress progress.Options

	// Stats, if set, receives counters about deposits.
	Stats stats.Client
}

// Run deposits job. It returns the record of the archived package, or a
// *StageError. Either way the outcome has already been sent to the Sink.
func (d *Deposit) Run(job *Job) (*ArchiveRecord, error) {
	defer stats.BumpTime(d.Stats, "deposit.time").End()
	r := &run{d: d, job: job}
	rec, err := r.execute()
	if err != nil {
		se := asStageError(r.state, err)
		log.Printf("Deposit %s (job %s) failed in state %d: %s", job.DepositID, job.JobID, se.State, se)
		if se.Kind != Redelivered {
			raven.CaptureError(se, map[string]string{
				"job":     job.JobID,
				"deposit": job.DepositID,
				"bag":     job.BagID,
				"kind":    se.Kind.String(),
			})
		}
		stats.BumpSum(d.Stats, "deposit.error", 1)
		e := r.event(event.Error)
		e.Message = se.Message()
		r.send(e)
		return nil, se
	}
	log.Printf("Deposit complete: %s", rec.ArchiveID)
	stats.BumpSum(d.Stats, "deposit.complete", 1)
	stats.BumpAvg(d.Stats, "deposit.bytes", float64(rec.ArchiveSize))
	e := r.event(event.Complete).WithNextState(StateComplete)
	e.ArchiveID = rec.ArchiveID
	e.ArchiveSize = rec.ArchiveSize
	r.send(e)
	return rec, nil
}

// run is the state of one pipeline execution.
type run struct {
	d       *Deposit
	job     *Job
	state   int
	user    storage.UserStore
	archive storage.ArchiveStore

	bagDir  string
	tarFile string
	metaDir string
}

func (r *run) event(kind event.Kind) event.Event {
	return event.New(kind, r.job.JobID, r.job.DepositID).WithUserID(r.job.UserID)
}

func (r *run) send(e event.Event) {
	if r.d.Sink != nil {
		r.d.Sink.Send(e)
	}
}

// enter moves the run into state, announcing it with an event of kind.
func (r *run) enter(kind event.Kind, state int) {
	r.state = state
	r.send(r.event(kind).WithNextState(state))
}

func (r *run) fail(kind ErrorKind, err error) error {
	return &StageError{State: r.state, Kind: kind, Err: err}
}

// execute does the work of a run. Every temporary file it makes is removed
// before it returns. The metadata directory is only kept on success.
func (r *run) execute() (rec *ArchiveRecord, err error) {
	job := r.job
	r.state = NoState
	if job.Redeliver {
		return nil, r.fail(Redelivered, nil)
	}

	e := r.event(event.InitStates)
	e.States = append([]string(nil), States...)
	r.send(e)
	r.enter(event.Start, StateCalculatingSize)

	log.Printf("Deposit %s: bag %s, file %s", job.DepositID, job.BagID, job.FilePath)
	// the run owns TempDir/<bag> and MetaDir/<bag> and nothing else
	if !validBagID(job.BagID) {
		return nil, r.fail(StageFailed, errors.Wrap(ErrBadBagID, job.BagID))
	}

	r.user, err = r.d.Registry.UserStore(job.UserStore.Type, job.UserStore.Options)
	if err != nil {
		log.Println("Deposit", job.DepositID, "user store:", err)
		return nil, r.fail(UserStoreUnavailable, err)
	}
	defer closeBackend(r.user)
	r.archive, err = r.d.Registry.ArchiveStore(job.ArchiveStore.Type, job.ArchiveStore.Options)
	if err != nil {
		log.Println("Deposit", job.DepositID, "archive store:", err)
		return nil, r.fail(ArchiveStoreUnavailable, err)
	}
	defer closeBackend(r.archive)

	if !r.user.Exists(job.FilePath) {
		log.Println("Deposit", job.DepositID, "file does not exist:", job.FilePath)
		return nil, r.fail(SourceNotFound, nil)
	}

	r.bagDir = filepath.Join(r.d.TempDir, job.BagID)
	r.tarFile = filepath.Join(r.d.TempDir, job.BagID+".tar")
	r.metaDir = filepath.Join(r.d.MetaDir, job.BagID)
	if err = os.MkdirAll(r.d.TempDir, 0755); err != nil {
		return nil, err
	}
	if err = os.Mkdir(r.bagDir, 0755); err != nil {
		return nil, err
	}
	defer r.cleanup(&err)

	if err = r.transfer(); err != nil {
		return nil, err
	}
	rec, err = r.pack()
	if err != nil {
		return nil, err
	}
	if err = r.store(rec); err != nil {
		return nil, err
	}
	if err = r.verify(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// transfer copies the item from the user store into the bag directory.
func (r *run) transfer() error {
	job := r.job
	name := r.user.Name(job.FilePath)
	expected, err := r.user.Size(job.FilePath)
	if err != nil {
		return err
	}
	e := r.event(event.ComputedSize)
	e.Bytes = expected
	r.send(e)
	log.Printf("Size: %d bytes (%s)", expected, progress.HumanSize(expected))

	r.enter(event.UpdateProgress, StateTransferring)
	var p progress.Progress
	err = r.track(&p, expected, "Transferring", "Starting transfer ...", func() error {
		return r.user.Retrieve(job.FilePath, filepath.Join(r.bagDir, name), &p)
	})
	if err != nil {
		return err
	}
	log.Printf("Transferred: %s", &p)
	r.enter(event.TransferComplete, StatePackaging)
	return nil
}

// pack turns the bag directory into a tar file and computes its digest.
func (r *run) pack() (*ArchiveRecord, error) {
	job := r.job
	pk := r.d.Packager
	log.Println("Creating bag ...")
	if err := pk.CreateBag(r.bagDir); err != nil {
		return nil, err
	}
	log.Println("Identifying file types ...")
	types, err := pk.DetectTypes(r.bagDir)
	if err != nil {
		return nil, err
	}
	err = pk.AddMetadata(r.bagDir, job.DepositMetadata, job.VaultMetadata, types, job.ExternalMetadata)
	if err != nil {
		return nil, err
	}
	log.Println("Creating tar file ...")
	if err := pk.CreateTar(r.bagDir, r.tarFile); err != nil {
		return nil, err
	}
	digest, alg, err := pk.Digest(r.tarFile)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(r.tarFile)
	if err != nil {
		return nil, err
	}
	rec := &ArchiveRecord{
		ArchiveSize:     fi.Size(),
		Digest:          digest,
		DigestAlgorithm: alg,
	}
	r.enter(event.PackageComplete, StateStoring)
	log.Printf("Tar file: %d bytes, %s %s", rec.ArchiveSize, alg, digest)
	e := r.event(event.ComputedDigest)
	e.Digest = digest
	e.DigestAlgorithm = alg
	r.send(e)
	return rec, nil
}

// store extracts the bag metadata and copies the tar file to the archive.
func (r *run) store(rec *ArchiveRecord) error {
	log.Println("Copying meta files ...")
	if err := r.d.Packager.ExtractMetadata(r.bagDir, r.metaDir); err != nil {
		return err
	}
	log.Println("Copying tar file to archive ...")
	var p progress.Progress
	err := r.track(&p, rec.ArchiveSize, "Storing", "", func() error {
		var err error
		rec.ArchiveID, err = r.archive.Store("/", r.tarFile, &p)
		return err
	})
	if err != nil {
		return err
	}
	log.Printf("Copied: %s", &p)
	// the bag is only needed again as the tar file
	if err := os.RemoveAll(r.bagDir); err != nil {
		log.Println("Removing", r.bagDir, err)
	}
	r.enter(event.UpdateProgress, StateVerifying)
	return nil
}

// track runs copy while a progress tracker reports on p. The tracker is
// stopped before track returns, whatever copy does.
func (r *run) track(p *progress.Progress, expected int64, label, start string, copy func() error) error {
	opts := r.d.Progress
	opts.Label = label
	opts.StartMessage = start
	t := progress.Track(p, expected, opts, func(s progress.Sample) {
		e := r.event(event.UpdateProgress)
		e.Progress = s.Bytes
		e.ProgressMax = s.Expected
		e.Message = s.Message
		r.send(e)
	})
	defer t.Stop()
	begin := time.Now()
	err := copy()
	stats.BumpHistogram(r.d.Stats, "copy.seconds", time.Since(begin).Seconds())
	return err
}

// cleanup removes the temporary files of a run. On failure the metadata
// directory is removed as well.
func (r *run) cleanup(err *error) {
	for _, p := range []string{r.bagDir, r.tarFile, r.verifyDir()} {
		if e := os.RemoveAll(p); e != nil {
			log.Println("Cleaning up", p, e)
		}
	}
	if *err != nil {
		os.RemoveAll(r.metaDir)
	}
}

func closeBackend(d storage.Device) {
	if c, ok := d.(io.Closer); ok {
		c.Close()
	}
}
