package client

import (
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ndlib/depositor/deposit"
	"github.com/ndlib/depositor/event"
	"github.com/ndlib/depositor/packager"
	"github.com/ndlib/depositor/server"
	"github.com/ndlib/depositor/storage"
	"github.com/ndlib/depositor/store"
	"github.com/ndlib/depositor/util"
)

// newWorker starts a worker whose user store is a fresh directory, which is
// returned. Its archive is kept in memory.
func newWorker(t *testing.T, tokens string) (*Connection, *ErrorServer, string) {
	base := t.TempDir()
	userRoot := filepath.Join(base, "user")
	require.NoError(t, os.MkdirAll(userRoot, 0755))

	archive := storage.NewStoreArchive(store.NewMemory(), storage.CopyBack)
	reg := storage.NewDefaultRegistry()
	reg.Register("memory", func(storage.Options) (storage.Device, error) { return archive, nil })

	s := &server.RESTServer{
		Deposit: &deposit.Deposit{
			TempDir:  filepath.Join(base, "temp"),
			MetaDir:  filepath.Join(base, "meta"),
			Registry: reg,
			Packager: packager.New(util.MD5),
		},
		UserStore:    deposit.EndpointSpec{Type: "local", Options: storage.Options{"root": userRoot}},
		ArchiveStore: deposit.EndpointSpec{Type: "memory"},
		Database:     "memory",
		Stats:        server.NewExpvarStats("client-test"),
	}
	if tokens != "" {
		v, err := server.NewListDecoderString(tokens)
		require.NoError(t, err)
		s.Validator = v
	}
	require.NoError(t, s.Start())
	es := &ErrorServer{h: s.Handler()}
	ts := httptest.NewServer(es)
	t.Cleanup(func() {
		ts.Close()
		s.Stop()
	})
	c := &Connection{HostURL: ts.URL, PollInterval: 10 * time.Millisecond}
	return c, es, userRoot
}

func message(jobID, path string) []byte {
	return []byte(fmt.Sprintf(`{"jobID": %q, "properties": {"depositId": "d-%s", "bagId": "b-%s", "filePath": %q}}`,
		jobID, jobID, jobID, path))
}

func TestSubmitAndWait(t *testing.T) {
	c, es, root := newWorker(t, "")
	require.NoError(t, os.WriteFile(filepath.Join(root, "f.txt"), []byte("0123456789"), 0644))

	id, err := c.Submit(message("j1", "f.txt"))
	require.NoError(t, err)
	require.Equal(t, "j1", id)

	// the first poll fails, and is retried
	es.Reset([]Play{{When: 0, Status: 500, Body: "oops"}})
	info, err := c.WaitForJob(id, 20*time.Second)
	require.NoError(t, err)
	require.Equal(t, "complete", info.Status)
	require.Equal(t, "d-j1", info.DepositID)
	require.Equal(t, "MD5", info.DigestAlgorithm)
	require.NotEmpty(t, info.ArchiveID)
	require.True(t, info.ArchiveSize > 10)

	events, err := c.Events(id)
	require.NoError(t, err)
	require.Equal(t, event.Complete, events[len(events)-1].Kind)
}

func TestJobFailure(t *testing.T) {
	c, _, _ := newWorker(t, "")
	id, err := c.Submit(message("j2", "no/such/file"))
	require.NoError(t, err)
	info, err := c.WaitForJob(id, 20*time.Second)
	require.Equal(t, ErrJobFailed, err)
	require.Equal(t, "Deposit failed: file not found", info.Message)
}

func TestErrors(t *testing.T) {
	c, _, _ := newWorker(t, "w write tok\n")

	_, err := c.Submit(message("j3", "x"))
	require.Equal(t, ErrNotAuthorized, err)

	c.Token = "tok"
	_, err = c.Submit([]byte("not json"))
	require.Equal(t, ErrBadMessage, err)

	_, err = c.JobStatus("missing")
	require.Equal(t, ErrNotFound, err)
	_, err = c.Events("missing")
	require.Equal(t, ErrNotFound, err)
	_, err = c.WaitForJob("missing", time.Second)
	require.Equal(t, ErrNotFound, err)
}
