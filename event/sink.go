package event

import (
	"encoding/json"
	"io"
	"log"
	"sync"
)

// A Sink receives the events of one or more jobs, in the order they are
// emitted. Send should not block for long, since it is called from inside
// the deposit pipeline and from progress trackers.
type Sink interface {
	Send(e Event)
}

// SinkFunc adapts an ordinary function to the Sink interface.
type SinkFunc func(e Event)

// Send calls f(e).
func (f SinkFunc) Send(e Event) { f(e) }

// Multi returns a Sink which sends every event to each of sinks in turn.
func Multi(sinks ...Sink) Sink {
	return multiSink(sinks)
}

type multiSink []Sink

func (m multiSink) Send(e Event) {
	for _, s := range m {
		s.Send(e)
	}
}

// Recorder is a Sink keeping every event in memory. It is used by tests and
// by the command line deposit tool.
type Recorder struct {
	m      sync.Mutex
	events []Event
}

// Send appends e to the list of recorded events.
func (r *Recorder) Send(e Event) {
	r.m.Lock()
	r.events = append(r.events, e)
	r.m.Unlock()
}

// Events returns a copy of the events recorded so far.
func (r *Recorder) Events() []Event {
	r.m.Lock()
	defer r.m.Unlock()
	result := make([]Event, len(r.events))
	copy(result, r.events)
	return result
}

// Kinds returns the kinds of the events recorded so far, in order.
func (r *Recorder) Kinds() []Kind {
	r.m.Lock()
	defer r.m.Unlock()
	result := make([]Kind, 0, len(r.events))
	for _, e := range r.events {
		result = append(result, e.Kind)
	}
	return result
}

// NewLogSink returns a Sink which logs a one line summary of each event.
func NewLogSink() Sink {
	return SinkFunc(func(e Event) {
		switch e.Kind {
		case UpdateProgress:
			if e.NextState != nil {
				log.Printf("%s %s: next state %d", e.JobID, e.Kind, *e.NextState)
			}
			// progress samples are too chatty to log
		case Error:
			log.Printf("%s %s: %s", e.JobID, e.Kind, e.Message)
		default:
			log.Printf("%s %s", e.JobID, e.Kind)
		}
	})
}

// NewJSONSink returns a Sink writing each event as one line of JSON to w.
// Write errors are logged and otherwise ignored.
func NewJSONSink(w io.Writer) Sink {
	var m sync.Mutex
	enc := json.NewEncoder(w)
	return SinkFunc(func(e Event) {
		m.Lock()
		defer m.Unlock()
		if err := enc.Encode(e); err != nil {
			log.Println("event json sink:", err)
		}
	})
}
