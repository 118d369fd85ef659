// Package event defines the lifecycle events a deposit emits to whoever is
// monitoring it, and a few simple places to send them.
//
// Every event carries the job id and deposit id it belongs to, and
// optionally the id of the user who requested the deposit. The remaining
// fields are filled in depending on the Kind.
package event

import (
	"encoding/json"
	"time"
)

// Kind names the type of an event.
type Kind string

const (
	InitStates       Kind = "InitStates"
	Start            Kind = "Start"
	ComputedSize     Kind = "ComputedSize"
	UpdateProgress   Kind = "UpdateProgress"
	TransferComplete Kind = "TransferComplete"
	PackageComplete  Kind = "PackageComplete"
	ComputedDigest   Kind = "ComputedDigest"
	Complete         Kind = "Complete"
	Error            Kind = "Error"
)

// Event is a single message in the event stream of a job.
type Event struct {
	Kind      Kind      `json:"eventClass"`
	JobID     string    `json:"jobId"`
	DepositID string    `json:"depositId"`
	UserID    string    `json:"userId,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	// NextState is the index of the state the job is moving into, or nil if
	// this event does not change state.
	NextState *int `json:"nextState,omitempty"`

	Message string   `json:"message,omitempty"`
	States  []string `json:"states,omitempty"` // InitStates

	Bytes int64 `json:"bytes,omitempty"` // ComputedSize

	Progress    int64 `json:"progress,omitempty"` // UpdateProgress
	ProgressMax int64 `json:"progressMax,omitempty"`

	Digest          string `json:"digest,omitempty"` // ComputedDigest
	DigestAlgorithm string `json:"digestAlgorithm,omitempty"`

	ArchiveID   string `json:"archiveId,omitempty"` // Complete
	ArchiveSize int64  `json:"archiveSize,omitempty"`
}

// New returns an event of the given kind for a job.
func New(kind Kind, jobID, depositID string) Event {
	return Event{
		Kind:      kind,
		JobID:     jobID,
		DepositID: depositID,
		Timestamp: time.Now(),
	}
}

// WithUserID returns a copy of e tagged with the user id.
func (e Event) WithUserID(userID string) Event {
	e.UserID = userID
	return e
}

// WithNextState returns a copy of e which moves the job into state n.
func (e Event) WithNextState(n int) Event {
	e.NextState = &n
	return e
}

// IsTerminal is true for the events which end a job's event stream.
func (e Event) IsTerminal() bool {
	return e.Kind == Complete || e.Kind == Error
}

// Marshal serializes e as JSON.
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal decodes an event previously encoded with Marshal.
func Unmarshal(b []byte) (Event, error) {
	var e Event
	err := json.Unmarshal(b, &e)
	return e, err
}
