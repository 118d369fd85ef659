package server

import (
	"database/sql"
	"encoding/json"
	"log"
	"time"

	_ "github.com/cznic/ql/driver"
	"github.com/google/uuid"

	"github.com/ndlib/depositor/event"
)

// This file implements the deposit database on top of the QL
// embedded database. It is meant for development and for workers
// which have no MySQL server to talk to.

type qlDB struct {
	db *sql.DB
}

var _ DepositDB = &qlDB{}

const qlInit = `
	CREATE TABLE IF NOT EXISTS jobs (
		job string,
		status string,
		modified time,
		value blob,
		request blob
	);
	CREATE INDEX IF NOT EXISTS jobsjob ON jobs (job);
	CREATE INDEX IF NOT EXISTS jobsstatus ON jobs (status);

	CREATE TABLE IF NOT EXISTS events (
		job string,
		created time,
		value blob
	);
	CREATE INDEX IF NOT EXISTS eventsjob ON events (job);
`

// NewQlDB opens the QL database saved in filename, creating it if
// necessary. The filename "memory" keeps everything in memory, with a fresh
// database for each call.
func NewQlDB(filename string) (*qlDB, error) {
	var db *sql.DB
	var err error
	if filename == "memory" {
		db, err = sql.Open("ql-mem", "mem-"+uuid.New().String()+".db")
	} else {
		db, err = sql.Open("ql", filename)
	}
	if err == nil {
		_, err = performExec(db, qlInit)
	}
	if err != nil {
		log.Printf("Open QL: %s", err.Error())
		return nil, err
	}
	return &qlDB{db: db}, nil
}

func (q *qlDB) SaveJob(rec *JobRecord) error {
	const dbUpdate = `UPDATE jobs SET status = ?2, modified = ?3, value = ?4, request = ?5 WHERE job == ?1`
	const dbInsert = `INSERT INTO jobs VALUES (?1, ?2, ?3, ?4, ?5)`
	if rec.JobID == "" {
		return ErrNoJobID
	}
	value, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	result, err := performExec(q.db, dbUpdate, rec.JobID, rec.Status, rec.Modified, value, rec.Request)
	if err != nil {
		return err
	}
	nrows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if nrows == 0 {
		_, err = performExec(q.db, dbInsert, rec.JobID, rec.Status, rec.Modified, value, rec.Request)
	}
	return err
}

func (q *qlDB) LookupJob(jobID string) (*JobRecord, error) {
	const query = `SELECT value, request FROM jobs WHERE job == ?1 LIMIT 1`
	var value, request []byte
	err := q.db.QueryRow(query, jobID).Scan(&value, &request)
	if err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return decodeJob(value, request)
}

func (q *qlDB) ListJobs(status string) ([]*JobRecord, error) {
	var rows *sql.Rows
	var err error
	if status == "" {
		rows, err = q.db.Query(`SELECT value, request, modified FROM jobs ORDER BY modified DESC`)
	} else {
		rows, err = q.db.Query(`SELECT value, request, modified FROM jobs WHERE status == ?1 ORDER BY modified DESC`, status)
	}
	if err != nil {
		return nil, err
	}
	// QL only sorts on selected columns, so modified is read and dropped
	var modified time.Time
	return scanJobs(rows, &modified)
}

func (q *qlDB) AddEvent(e event.Event) error {
	const query = `INSERT INTO events VALUES (?1, ?2, ?3)`
	value, err := e.Marshal()
	if err != nil {
		return err
	}
	_, err = performExec(q.db, query, e.JobID, e.Timestamp, value)
	return err
}

func (q *qlDB) ListEvents(jobID string) ([]event.Event, error) {
	// id() increases with each insert
	const query = `
		SELECT n, value
		FROM (SELECT id() AS n, value FROM events WHERE job == ?1)
		ORDER BY n`
	rows, err := q.db.Query(query, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []event.Event
	for rows.Next() {
		var n int64
		var value []byte
		if err := rows.Scan(&n, &value); err != nil {
			return nil, err
		}
		e, err := event.Unmarshal(value)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func decodeJob(value, request []byte) (*JobRecord, error) {
	rec := new(JobRecord)
	if err := json.Unmarshal(value, rec); err != nil {
		return nil, err
	}
	rec.Request = request
	return rec, nil
}

// scanJobs decodes rows whose first two columns are value and request.
// Any further columns are scanned into extra.
func scanJobs(rows *sql.Rows, extra ...interface{}) ([]*JobRecord, error) {
	defer rows.Close()
	var result []*JobRecord
	for rows.Next() {
		var value, request []byte
		dest := append([]interface{}{&value, &request}, extra...)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		rec, err := decodeJob(value, request)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// performExec runs query inside its own transaction, since QL will not
// modify a table outside of one.
func performExec(db *sql.DB, query string, args ...interface{}) (sql.Result, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, err
	}
	result, err := tx.Exec(query, args...)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	err = tx.Commit()
	return result, err
}
