package server

import (
	"database/sql"
	"encoding/json"
	"log"

	"github.com/BurntSushi/migration"
	_ "github.com/go-sql-driver/mysql"

	"github.com/ndlib/depositor/event"
)

// mysqlDB keeps the deposit database in MySQL.
type mysqlDB struct {
	db *sql.DB
}

var _ DepositDB = &mysqlDB{}

// List of migrations to perform. Add new ones to the end.
// DO NOT change the order of items already in this list.
var mysqlMigrations = []migration.Migrator{
	mysqlschema1,
	mysqlschema2,
}

var mysqlVersioning = dbVersion{
	GetSQL:    `SELECT max(version) FROM migration_version`,
	SetSQL:    `INSERT INTO migration_version (version, applied) VALUES (?, now())`,
	CreateSQL: `CREATE TABLE migration_version (version INTEGER, applied datetime)`,
}

// NewMysqlDB connects to a MySQL database, migrating its schema to the
// current version if needed. dial is a go-sql-driver DSN, e.g.
// "user:password@tcp(localhost:3306)/depositor".
func NewMysqlDB(dial string) (*mysqlDB, error) {
	db, err := migration.OpenWith(
		"mysql",
		dial,
		mysqlMigrations,
		mysqlVersioning.Get,
		mysqlVersioning.Set)
	if err != nil {
		log.Printf("Open Mysql: %s", err.Error())
		return nil, err
	}
	return &mysqlDB{db: db}, nil
}

func (ms *mysqlDB) SaveJob(rec *JobRecord) error {
	const stmt = `INSERT INTO jobs (job, status, modified, value, request) VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE status = VALUES(status), modified = VALUES(modified),
		value = VALUES(value), request = VALUES(request)`
	if rec.JobID == "" {
		return ErrNoJobID
	}
	value, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = ms.db.Exec(stmt, rec.JobID, rec.Status, rec.Modified, value, rec.Request)
	return err
}

func (ms *mysqlDB) LookupJob(jobID string) (*JobRecord, error) {
	const query = `SELECT value, request FROM jobs WHERE job = ? LIMIT 1`
	var value, request []byte
	err := ms.db.QueryRow(query, jobID).Scan(&value, &request)
	if err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return decodeJob(value, request)
}

func (ms *mysqlDB) ListJobs(status string) ([]*JobRecord, error) {
	var rows *sql.Rows
	var err error
	if status == "" {
		rows, err = ms.db.Query(`SELECT value, request FROM jobs ORDER BY modified DESC`)
	} else {
		rows, err = ms.db.Query(`SELECT value, request FROM jobs WHERE status = ? ORDER BY modified DESC`, status)
	}
	if err != nil {
		return nil, err
	}
	return scanJobs(rows)
}

func (ms *mysqlDB) AddEvent(e event.Event) error {
	const query = `INSERT INTO events (job, kind, created, value) VALUES (?, ?, ?, ?)`
	value, err := e.Marshal()
	if err != nil {
		return err
	}
	_, err = ms.db.Exec(query, e.JobID, string(e.Kind), e.Timestamp, value)
	return err
}

func (ms *mysqlDB) ListEvents(jobID string) ([]event.Event, error) {
	const query = `SELECT value FROM events WHERE job = ? ORDER BY id`
	rows, err := ms.db.Query(query, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []event.Event
	for rows.Next() {
		var value []byte
		if err := rows.Scan(&value); err != nil {
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

// database migrations. each one is a go function. Add them to the
// list mysqlMigrations at top of this file for them to be run.

func mysqlschema1(tx migration.LimitedTx) error {
	var s = []string{
		`CREATE TABLE IF NOT EXISTS jobs (
		id int PRIMARY KEY AUTO_INCREMENT,
		job varchar(255),
		status varchar(32),
		modified datetime,
		value LONGTEXT,
		request LONGBLOB,
		UNIQUE INDEX jobs_job (job),
		INDEX jobs_status (status))`,

		`CREATE TABLE IF NOT EXISTS events (
		id int PRIMARY KEY AUTO_INCREMENT,
		job varchar(255),
		created datetime,
		value text,
		INDEX events_job (job))`,
	}
	return execlist(tx, s)
}

func mysqlschema2(tx migration.LimitedTx) error {
	var s = []string{
		`ALTER TABLE events ADD COLUMN kind varchar(32) AFTER job`,
		`ALTER TABLE events CHANGE COLUMN id id BIGINT AUTO_INCREMENT`,
	}
	return execlist(tx, s)
}
