package deposit

import (
	"path/filepath"
	"strings"

	"github.com/antonholmquist/jason"
	"github.com/pkg/errors"

	"github.com/ndlib/depositor/storage"
)

// Job is a single request to deposit a file or directory. It is built by
// the intake layer and consumed by exactly one run of the pipeline.
type Job struct {
	JobID     string
	TaskClass string

	DepositID string
	BagID     string
	UserID    string
	FilePath  string // path of the item in the user store

	// metadata saved verbatim in the bag
	DepositMetadata  string
	VaultMetadata    string
	ExternalMetadata string

	// Redeliver is set by the transport when this job has been seen before.
	Redeliver bool

	UserStore    EndpointSpec
	ArchiveStore EndpointSpec
}

// EndpointSpec says how to construct a storage backend: a name in the
// storage registry and the options to pass to it.
type EndpointSpec struct {
	Type    string
	Options storage.Options
}

// TaskClass is the task class of deposit messages.
const TaskClass = "org.datavaultplatform.worker.tasks.Deposit"

var (
	// ErrMissingField means a job message lacks a required property.
	ErrMissingField = errors.New("job message missing required field")

	// ErrBadBagID means a bag id cannot be used as a directory name.
	ErrBadBagID = errors.New("bag id must be a single path element")
)

// ParseMessage decodes a job message. The format is
//
//	{
//	  "taskClass": "...",
//	  "jobID": "...",
//	  "properties": {"depositId": "...", "bagId": "...", "userId": "...",
//	                 "filePath": "...", "depositMetadata": "...",
//	                 "vaultMetadata": "...", "externalMetadata": "..."},
//	  "userFileStore": {"storageClass": "...", "properties": {...}},
//	  "archiveFileStore": {"storageClass": "...", "properties": {...}},
//	  "isRedeliver": false
//	}
//
// The store sections may be omitted, in which case the caller is expected to
// supply defaults.
func ParseMessage(b []byte) (*Job, error) {
	v, err := jason.NewObjectFromBytes(b)
	if err != nil {
		return nil, errors.Wrap(err, "parsing job message")
	}
	job := &Job{}
	job.TaskClass, _ = v.GetString("taskClass")
	job.JobID, _ = v.GetString("jobID")
	job.Redeliver, _ = v.GetBoolean("isRedeliver")

	props, err := v.GetObject("properties")
	if err != nil {
		return nil, errors.Wrap(ErrMissingField, "properties")
	}
	var fields = []struct {
		name     string
		target   *string
		required bool
	}{
		{"depositId", &job.DepositID, true},
		{"bagId", &job.BagID, true},
		{"userId", &job.UserID, false},
		{"filePath", &job.FilePath, true},
		{"depositMetadata", &job.DepositMetadata, false},
		{"vaultMetadata", &job.VaultMetadata, false},
		{"externalMetadata", &job.ExternalMetadata, false},
	}
	for _, f := range fields {
		*f.target, _ = props.GetString(f.name)
		if f.required && *f.target == "" {
			return nil, errors.Wrap(ErrMissingField, f.name)
		}
	}
	if !validBagID(job.BagID) {
		return nil, errors.Wrap(ErrBadBagID, job.BagID)
	}
	job.UserStore = parseEndpoint(v, "userFileStore")
	job.ArchiveStore = parseEndpoint(v, "archiveFileStore")
	return job, nil
}

func parseEndpoint(v *jason.Object, key string) EndpointSpec {
	var result EndpointSpec
	obj, err := v.GetObject(key)
	if err != nil {
		return result
	}
	result.Type, _ = obj.GetString("storageClass")
	props, err := obj.GetObject("properties")
	if err != nil {
		return result
	}
	result.Options = make(storage.Options)
	for k, val := range props.Map() {
		s, err := val.String()
		if err != nil {
			// numbers and booleans are passed along in their JSON form
			b, err := val.Marshal()
			if err != nil {
				continue
			}
			s = string(b)
		}
		result.Options[k] = s
	}
	return result
}

// validBagID reports whether id names a single entry inside a directory.
func validBagID(id string) bool {
	switch id {
	case "", ".", "..":
		return false
	}
	return !strings.ContainsAny(id, `/\`) && filepath.Base(id) == id
}
