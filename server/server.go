package server

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof" // for pprof server
	"sync"
	"time"

	"github.com/facebookgo/httpdown"
	"github.com/facebookgo/stats"
	raven "github.com/getsentry/raven-go"

	"github.com/ndlib/depositor/deposit"
	"github.com/ndlib/depositor/event"
	"github.com/ndlib/depositor/util"
)

// Version is the version of the depositor. It is set at link time.
var Version = "dev"

// RESTServer is the front end of a deposit worker. It accepts job messages
// over HTTP, queues them, and runs them through a deposit pipeline. Every
// job and every event of every job is kept in a database so that clients
// can follow their progress.
//
// Set the public fields and then call Run. Do not change any fields after
// calling Run.
type RESTServer struct {
	// Port number to listen on. defaults to 14000
	PortNumber string
	PProfPort  string

	// Deposit runs the jobs. Its Sink, if any, receives every event in
	// addition to the database. Run will panic if Deposit is nil.
	Deposit *deposit.Deposit

	// The stores used when a job message does not name one.
	UserStore    deposit.EndpointSpec
	ArchiveStore deposit.EndpointSpec

	// Workers is the number of deposits allowed to run at once. Defaults to
	// MaxConcurrentDeposits.
	Workers int

	// Pass in a dial command to use a MySQL server as a database.
	// Otherwise the internal QL database in the file Database is used. The
	// special value "memory" keeps the database in memory. (useful for
	// testing).
	MySQL    string
	Database string

	// Validator authenticates the API keys given to the server. If it is
	// nil every request is allowed.
	Validator TokenDecoder

	// Stats receives counters. If nil, the counters are published with expvar.
	Stats stats.Client

	db       DepositDB
	server   httpdown.Server // used to close our listening socket
	queue    chan delivery   // jobs waiting for a worker
	gate     util.Gate       // bounds the number of running deposits
	wg       sync.WaitGroup  // for waiting for the dispatcher and running jobs
	cancel   chan struct{}   // closed to stop taking jobs from the queue
	started  bool
	stopOnce sync.Once
	stopErr  error
	jobMu    sync.Mutex // serializes read-modify-write of job records
}

// delivery is a job waiting for a worker. Whether it is a redelivery is
// decided when it is queued, so a second submission does not change how
// an earlier one runs.
type delivery struct {
	jobID     string
	redeliver bool
}

// MaxConcurrentDeposits is the default number of deposits run at a time.
const MaxConcurrentDeposits = 2

// queueSize is how many jobs may wait for a worker before submissions are
// refused.
const queueSize = 100

var (
	// ErrQueueFull means a job was refused because too many are waiting.
	ErrQueueFull = errors.New("job queue is full")
)

// Start sets up the database and starts the goroutines running jobs. It
// does not listen for HTTP requests. Jobs left queued or running from a
// previous run of the server are started again; the running ones as
// redeliveries.
func (s *RESTServer) Start() error {
	if s.Deposit == nil {
		panic("No deposit pipeline given. Deposit is nil.")
	}
	if s.Validator == nil {
		log.Println("No Validator given")
		s.Validator = NewNobodyDecoder()
	}
	if s.Workers <= 0 {
		s.Workers = MaxConcurrentDeposits
	}
	if s.Stats == nil {
		s.Stats = NewExpvarStats("depositor")
	}
	if s.Deposit.Stats == nil {
		s.Deposit.Stats = s.Stats
	}

	var err error
	if s.MySQL != "" {
		log.Printf("Using MySQL")
		s.db, err = NewMysqlDB(s.MySQL)
	} else {
		path := s.Database
		if path == "" {
			path = "memory"
		}
		log.Printf("Using internal database at %s", path)
		s.db, err = NewQlDB(path)
	}
	if err != nil {
		return err
	}

	var dbsink event.Sink = event.SinkFunc(s.recordEvent)
	if s.Deposit.Sink != nil {
		dbsink = event.Multi(dbsink, s.Deposit.Sink)
	}
	s.Deposit.Sink = dbsink

	pending, err := s.pendingJobs()
	if err != nil {
		return err
	}

	s.queue = make(chan delivery, queueSize)
	s.cancel = make(chan struct{})
	s.gate = util.NewGate(s.Workers)
	s.wg.Add(1)
	go s.dispatcher()
	go s.requeue(pending) // run in background
	s.started = true
	return nil
}

// Run starts the server and then blocks listening for and handling http
// requests.
func (s *RESTServer) Run() error {
	log.Println("==========")
	log.Printf("Starting Depositor version %s", Version)
	log.Printf("TempDir = %s", s.Deposit.TempDir)
	log.Printf("MetaDir = %s", s.Deposit.MetaDir)

	if err := s.Start(); err != nil {
		return err
	}
	if s.PortNumber == "" {
		s.PortNumber = "14000"
	}

	// for pprof
	if s.PProfPort != "" {
		log.Println("Starting PProf on port", s.PProfPort)
		go func() {
			log.Println(http.ListenAndServe(":"+s.PProfPort, nil))
		}()
	}
	log.Println("Listening on", s.PortNumber)

	h := httpdown.HTTP{StopTimeout: time.Minute}
	var err error
	s.server, err = h.ListenAndServe(&http.Server{
		Addr:    ":" + s.PortNumber,
		Handler: s.addRoutes(),
	})
	if err != nil {
		log.Println(err)
		return err
	}
	return s.server.Wait()
}

// Stop stops taking jobs off the queue, waits for the running deposits to
// finish and then closes the listening socket.
// It is safe to call Stop more than once.
func (s *RESTServer) Stop() error {
	if !s.started {
		return nil
	}
	s.stopOnce.Do(func() {
		close(s.cancel)
		s.wg.Wait()
		if s.server != nil {
			s.stopErr = s.server.Stop()
		}
	})
	return s.stopErr
}

// messageError marks a job message which could not be parsed.
type messageError struct {
	error
}

// submit records the job message b and queues it. A job id which has been
// seen before is queued again as a redelivery.
func (s *RESTServer) submit(b []byte, user string) (*JobRecord, error) {
	job, err := deposit.ParseMessage(b)
	if err != nil {
		return nil, messageError{err}
	}
	now := time.Now()
	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	var rec *JobRecord
	if job.JobID != "" {
		rec, err = s.db.LookupJob(job.JobID)
		if err != nil {
			return nil, err
		}
	}
	if rec == nil {
		rec = &JobRecord{
			JobID:    job.JobID,
			Received: now,
		}
		if rec.JobID == "" {
			rec.JobID = newJobID()
		}
	} else {
		log.Printf("Job %s has been submitted before", rec.JobID)
	}
	rec.DepositID = job.DepositID
	rec.BagID = job.BagID
	rec.UserID = job.UserID
	if rec.UserID == "" {
		rec.UserID = user
	}
	rec.Deliveries++
	rec.Status = StatusQueued
	rec.Message = ""
	rec.Modified = now
	rec.Request = b
	if err := s.db.SaveJob(rec); err != nil {
		return nil, err
	}
	select {
	case s.queue <- delivery{jobID: rec.JobID, redeliver: rec.Deliveries > 1}:
	default:
		rec.Status = StatusError
		rec.Message = ErrQueueFull.Error()
		s.db.SaveJob(rec)
		return nil, ErrQueueFull
	}
	stats.BumpSum(s.Stats, "jobs.submitted", 1)
	return rec, nil
}

// pendingJobs returns the jobs left queued or running by a previous
// instance of the server. The running ones were interrupted part way
// through, and are marked as delivered again.
func (s *RESTServer) pendingJobs() ([]delivery, error) {
	var result []delivery
	for _, status := range []string{StatusRunning, StatusQueued} {
		recs, err := s.db.ListJobs(status)
		if err != nil {
			return nil, err
		}
		for _, rec := range recs {
			if status == StatusRunning {
				rec.Deliveries++
				rec.Modified = time.Now()
				if err := s.db.SaveJob(rec); err != nil {
					log.Println("requeue:", rec.JobID, err)
					continue
				}
			}
			result = append(result, delivery{
				jobID:     rec.JobID,
				redeliver: rec.Deliveries > 1,
			})
		}
	}
	return result, nil
}

// requeue adds the given jobs to the queue. It may block until they are all
// taken.
func (s *RESTServer) requeue(pending []delivery) {
	for _, d := range pending {
		log.Println("Requeue job", d.jobID)
		select {
		case s.queue <- d:
		case <-s.cancel:
			return
		}
	}
}

// dispatcher takes jobs off the queue and runs each in its own goroutine,
// with no more than s.Workers running at once.
func (s *RESTServer) dispatcher() {
	defer s.wg.Done()
	for {
		select {
		case <-s.cancel:
			return
		case d := <-s.queue:
			s.gate.Enter()
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				defer s.gate.Leave()
				s.process(d)
			}()
		}
	}
}

// process runs the job d through the deposit pipeline and saves the
// outcome.
func (s *RESTServer) process(d delivery) {
	rec, err := s.db.LookupJob(d.jobID)
	if err != nil || rec == nil {
		log.Println("process: cannot load job", d.jobID, err)
		return
	}
	job, err := deposit.ParseMessage(rec.Request)
	if err != nil {
		// it parsed when it was submitted
		log.Println("process:", d.jobID, err)
		s.finish(d.jobID, func(rec *JobRecord) {
			rec.Status = StatusError
			rec.Message = err.Error()
		})
		return
	}
	job.JobID = rec.JobID
	job.UserID = rec.UserID
	if d.redeliver {
		job.Redeliver = true
	}
	if job.UserStore.Type == "" {
		job.UserStore = s.UserStore
	}
	if job.ArchiveStore.Type == "" {
		job.ArchiveStore = s.ArchiveStore
	}
	if !job.Redeliver {
		s.finish(d.jobID, func(rec *JobRecord) {
			rec.Status = StatusRunning
			rec.Message = ""
		})
	}

	archive, err := s.Deposit.Run(job)
	if err == nil {
		s.finish(d.jobID, func(rec *JobRecord) {
			rec.Status = StatusComplete
			rec.Message = ""
			rec.Archive = archive
		})
		stats.BumpSum(s.Stats, "jobs.complete", 1)
		return
	}
	stats.BumpSum(s.Stats, "jobs.error", 1)
	msg := err.Error()
	if se, ok := err.(*deposit.StageError); ok {
		msg = se.Message()
	}
	s.finish(d.jobID, func(rec *JobRecord) {
		if job.Redeliver && rec.Archive != nil {
			// a finished job sent again keeps its result
			rec.Status = StatusComplete
			rec.Message = ""
			return
		}
		rec.Status = StatusError
		rec.Message = msg
	})
}

// finish applies change to the stored record of jobID and saves it. The
// record is read again so changes made by a later submission are kept.
func (s *RESTServer) finish(jobID string, change func(rec *JobRecord)) {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	rec, err := s.db.LookupJob(jobID)
	if err == nil && rec == nil {
		err = fmt.Errorf("job %s is missing", jobID)
	}
	if err == nil {
		change(rec)
		rec.Modified = time.Now()
		err = s.db.SaveJob(rec)
	}
	if err != nil {
		log.Println("saving job", jobID, err)
		raven.CaptureError(err, map[string]string{"job": jobID})
	}
}

// recordEvent is the event sink saving events to the database.
func (s *RESTServer) recordEvent(e event.Event) {
	if err := s.db.AddEvent(e); err != nil {
		log.Println("saving event", e.JobID, e.Kind, err)
	}
}
