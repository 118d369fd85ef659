package server

import (
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"

	"github.com/ndlib/depositor/event"
)

// maxMessageSize is the largest job message accepted. The metadata is
// carried inline, so it is generous.
const maxMessageSize = 16 << 20

func newJobID() string {
	return uuid.New().String()
}

// NewDepositHandler handles requests to POST /deposit. The body is a job
// message. The job is queued and its record returned, with the route to
// follow it in the Location header.
func (s *RESTServer) NewDepositHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	b, err := io.ReadAll(io.LimitReader(r.Body, maxMessageSize+1))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintln(w, err)
		return
	}
	if len(b) > maxMessageSize {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		fmt.Fprintln(w, "message too large")
		return
	}
	rec, err := s.submit(b, ps.ByName("username"))
	if _, ok := err.(messageError); ok {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintln(w, err)
		return
	}
	switch {
	case err == ErrQueueFull:
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintln(w, err)
		return
	case err != nil:
		log.Println("NewDepositHandler:", err)
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintln(w, err)
		return
	}
	w.Header().Set("Location", "/deposit/"+rec.JobID)
	writeJSON(w, http.StatusAccepted, rec)
}

// ListDepositHandler handles GET /deposit. The optional query parameter
// "status" limits the list to jobs with that status.
func (s *RESTServer) ListDepositHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	recs, err := s.db.ListJobs(r.FormValue("status"))
	if err != nil {
		log.Println("ListDepositHandler:", err)
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintln(w, err)
		return
	}
	if recs == nil {
		recs = []*JobRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// DepositInfoHandler handles GET /deposit/:jobid.
func (s *RESTServer) DepositInfoHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	rec := s.lookup(w, ps.ByName("jobid"))
	if rec == nil {
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// DepositEventsHandler handles GET /deposit/:jobid/events. It returns the
// events of the job so far, oldest first.
func (s *RESTServer) DepositEventsHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	rec := s.lookup(w, ps.ByName("jobid"))
	if rec == nil {
		return
	}
	events, err := s.db.ListEvents(rec.JobID)
	if err != nil {
		log.Println("DepositEventsHandler:", err)
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintln(w, err)
		return
	}
	if events == nil {
		events = []event.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

// lookup returns the record for jobID. If there is none, or it cannot be
// read, an error response is written and nil returned.
func (s *RESTServer) lookup(w http.ResponseWriter, jobID string) *JobRecord {
	rec, err := s.db.LookupJob(jobID)
	if err != nil {
		log.Println("lookup", jobID, err)
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintln(w, err)
		return nil
	}
	if rec == nil {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintln(w, "no such job")
	}
	return rec
}
