package server

import (
	"errors"
	"log"
	"time"

	"github.com/BurntSushi/migration"

	"github.com/ndlib/depositor/deposit"
	"github.com/ndlib/depositor/event"
)

// The status of a job, as kept in the database.
const (
	StatusQueued   = "queued"
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusError    = "error"
)

// JobRecord is what the server remembers about a job it has been given.
type JobRecord struct {
	JobID     string
	DepositID string
	BagID     string
	UserID    string
	Status    string
	Message   string // set when the job fails

	// Deliveries counts how many times the job has been handed to a worker
	// or submitted by a client. Anything past the first is a redelivery.
	Deliveries int

	Received time.Time
	Modified time.Time

	// set once the job completes
	Archive *deposit.ArchiveRecord `json:",omitempty"`

	// Request is the job message as it was received.
	Request []byte `json:"-"`
}

// DepositDB persists job records and the events of each job.
// The QL and MySQL implementations behave the same way.
type DepositDB interface {
	// SaveJob inserts or replaces the record for rec.JobID.
	SaveJob(rec *JobRecord) error
	// LookupJob returns the record for jobID, or nil if there is none.
	LookupJob(jobID string) (*JobRecord, error)
	// ListJobs returns every job with the given status, most recently
	// modified first. The empty status matches every job.
	ListJobs(status string) ([]*JobRecord, error)

	AddEvent(e event.Event) error
	// ListEvents returns the events of a job in the order they were added.
	ListEvents(jobID string) ([]event.Event, error)
}

var (
	// ErrNoJobID is returned when saving a record without a job id.
	ErrNoJobID = errors.New("job record has no job id")
)

// we need to adapt the migration version functions to work with MySQL and QL
// This code is slightly modified from github.com/BurntSushi/migration

type dbVersion struct {
	// SQL to get the version of this db, returns one row and one column
	GetSQL string
	// SQL to insert a new version of this db. takes one parameter, the new
	// version
	SetSQL string
	// the SQL to create the version table for this db
	CreateSQL string
}

func (d dbVersion) Get(tx migration.LimitedTx) (int, error) {
	var version int
	err := tx.QueryRow(d.GetSQL).Scan(&version)
	if err != nil {
		// no version table yet
		log.Println("db version:", err)
		return 0, nil
	}
	return version, nil
}

func (d dbVersion) Set(tx migration.LimitedTx, version int) error {
	if _, err := tx.Exec(d.SetSQL, version); err == nil {
		return nil
	}
	if _, err := tx.Exec(d.CreateSQL); err != nil {
		return err
	}
	_, err := tx.Exec(d.SetSQL, version)
	return err
}

// execlist exec's each item in the list, return if there is an error.
// The mysql driver does not handle compound statements.
func execlist(tx migration.LimitedTx, stms []string) error {
	for _, s := range stms {
		if _, err := tx.Exec(s); err != nil {
			return err
		}
	}
	return nil
}
