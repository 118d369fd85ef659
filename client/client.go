// Package client talks to the REST interface of a deposit worker. It can
// submit job messages and follow the jobs until they finish.
package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"path"
	"sync"
	"time"

	"github.com/antonholmquist/jason"

	"github.com/ndlib/depositor/event"
)

// A Connection represents a connection with a deposit worker.
// It can be shared between multiple goroutines.
type Connection struct {
	// The worker this connection is to, e.g. "http://localhost:14000"
	HostURL string
	Token   string

	// PollInterval is how often WaitForJob asks about a job. Defaults to
	// five seconds.
	PollInterval time.Duration

	once   sync.Once
	client *http.Client
}

// Exported errors
var (
	ErrNotFound       = errors.New("job not found")
	ErrNotAuthorized  = errors.New("access denied")
	ErrBadMessage     = errors.New("job message rejected")
	ErrUnexpectedResp = errors.New("unexpected response code")
	ErrJobFailed      = errors.New("deposit failed")
	ErrTimeout        = errors.New("timeout waiting for job")
)

// JobInfo is the state of a job as reported by the worker.
type JobInfo struct {
	JobID      string
	DepositID  string
	Status     string
	Message    string
	Deliveries int64

	// set once the job is complete
	ArchiveID       string
	ArchiveSize     int64
	Digest          string
	DigestAlgorithm string
}

// Finished is true once the job has completed or failed.
func (j JobInfo) Finished() bool {
	return j.Status == "complete" || j.Status == "error"
}

// Submit sends a job message to the worker. It returns the id of the
// queued job.
func (c *Connection) Submit(message []byte) (string, error) {
	route := c.HostURL + "/deposit"
	req, err := http.NewRequest("POST", route, bytes.NewReader(message))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case 202:
		return path.Base(resp.Header.Get("Location")), nil
	case 400:
		return "", ErrBadMessage
	case 401:
		return "", ErrNotAuthorized
	default:
		log.Printf("Received HTTP status %d for POST %s", resp.StatusCode, route)
		return "", ErrUnexpectedResp
	}
}

// JobStatus returns what the worker knows about a job. It does not wait
// for the job to finish.
func (c *Connection) JobStatus(jobID string) (JobInfo, error) {
	var result JobInfo
	v, err := c.doJasonGet("/deposit/" + jobID)
	if err != nil {
		return result, err
	}
	result.JobID, _ = v.GetString("JobID")
	result.DepositID, _ = v.GetString("DepositID")
	result.Status, _ = v.GetString("Status")
	result.Message, _ = v.GetString("Message")
	result.Deliveries, _ = v.GetInt64("Deliveries")
	if a, err := v.GetObject("Archive"); err == nil {
		result.ArchiveID, _ = a.GetString("ArchiveID")
		result.ArchiveSize, _ = a.GetInt64("ArchiveSize")
		result.Digest, _ = a.GetString("Digest")
		result.DigestAlgorithm, _ = a.GetString("DigestAlgorithm")
	}
	return result, nil
}

// Events returns the events of a job so far, oldest first.
func (c *Connection) Events(jobID string) ([]event.Event, error) {
	req, err := http.NewRequest("GET", c.HostURL+"/deposit/"+jobID+"/events", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp.StatusCode); err != nil {
		return nil, err
	}
	var result []event.Event
	err = json.NewDecoder(resp.Body).Decode(&result)
	return result, err
}

// WaitForJob polls the worker until the job finishes, or until timeout
// has passed. Server errors while polling are retried. A job which ends in
// error returns its info along with ErrJobFailed.
func (c *Connection) WaitForJob(jobID string, timeout time.Duration) (JobInfo, error) {
	delay := c.PollInterval
	if delay <= 0 {
		delay = 5 * time.Second
	}
	deadline := time.Now().Add(timeout)
	for {
		info, err := c.JobStatus(jobID)
		switch {
		case err == ErrNotFound || err == ErrNotAuthorized:
			return info, err
		case err != nil:
			log.Println("WaitForJob", jobID, err)
		case info.Status == "error":
			return info, ErrJobFailed
		case info.Finished():
			return info, nil
		}
		if time.Now().After(deadline) {
			return info, ErrTimeout
		}
		time.Sleep(delay)
	}
}

func (c *Connection) doJasonGet(route string) (*jason.Object, error) {
	req, err := http.NewRequest("GET", c.HostURL+route, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp.StatusCode); err != nil {
		return nil, err
	}
	return jason.NewObjectFromReader(resp.Body)
}

func checkStatus(code int) error {
	switch code {
	case 200:
		return nil
	case 404:
		return ErrNotFound
	case 401:
		return ErrNotAuthorized
	default:
		return fmt.Errorf("received status %d from worker", code)
	}
}

// do performs an http request using our client with a timeout. The
// timeout is arbitrary, and is just there so we don't hang indefinitely
// should the server never close the connection.
func (c *Connection) do(req *http.Request) (*http.Response, error) {
	if c.Token != "" {
		req.Header.Add("X-Api-Key", c.Token)
	}
	c.once.Do(func() {
		c.client = &http.Client{
			Timeout: time.Minute, // arbitrary
		}
	})
	return c.client.Do(req)
}
