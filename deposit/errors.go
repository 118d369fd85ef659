package deposit

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind classifies why a deposit stopped.
type ErrorKind int

const (
	// StageFailed is any failure while transferring, packaging or storing.
	StageFailed ErrorKind = iota
	// Redelivered means the job was refused because it was redelivered.
	Redelivered
	// UserStoreUnavailable means the source backend could not be built.
	UserStoreUnavailable
	// ArchiveStoreUnavailable means the archive backend could not be built.
	ArchiveStoreUnavailable
	// SourceNotFound means the item to deposit is not in the user store.
	SourceNotFound
	// VerifyFailed means the archived package did not verify.
	VerifyFailed
)

var kindNames = map[ErrorKind]string{
	StageFailed:             "StageFailed",
	Redelivered:             "Redelivered",
	UserStoreUnavailable:    "UserStoreUnavailable",
	ArchiveStoreUnavailable: "ArchiveStoreUnavailable",
	SourceNotFound:          "SourceNotFound",
	VerifyFailed:            "VerifyFailed",
}

func (k ErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// NoState is the State of a StageError raised before the job entered any
// state.
const NoState = -1

// StageError is the error returned by a failed deposit. State is the index
// of the state the deposit was in when it failed.
type StageError struct {
	State int
	Kind  ErrorKind
	Err   error
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return e.Message()
	}
	return e.Message() + ": " + e.Err.Error()
}

// Message is the text of the Error event reported for this failure.
func (e *StageError) Message() string {
	switch e.Kind {
	case Redelivered:
		return "Deposit stopped: the message had been redelivered, please investigate"
	case UserStoreUnavailable:
		return "Deposit failed: could not access user filesystem"
	case ArchiveStoreUnavailable:
		return "Deposit failed: could not access archive filesystem"
	case SourceNotFound:
		return "Deposit failed: file not found"
	}
	if e.Err == nil {
		return "Deposit failed"
	}
	return "Deposit failed: " + e.Err.Error()
}

// Cause returns the underlying error, for errors.Cause.
func (e *StageError) Cause() error { return e.Err }

// Unwrap returns the underlying error, for errors.Is and errors.As.
func (e *StageError) Unwrap() error { return e.Err }

// asStageError returns err as a *StageError, classifying anything else as a
// failure of the given state.
func asStageError(state int, err error) *StageError {
	if se, ok := err.(*StageError); ok {
		return se
	}
	return &StageError{State: state, Kind: StageFailed, Err: err}
}

var (
	// ErrBagInvalid means a package did not validate after archiving.
	ErrBagInvalid = errors.New("bag is invalid")
)

// ChecksumError is returned when the package read back from the archive
// does not match the one sent.
type ChecksumError struct {
	Computed string
	Expected string
}

func (e *ChecksumError) Error() string {
	return "checksum failed: " + e.Computed + " != " + e.Expected
}
