package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ndlib/depositor/deposit"
	"github.com/ndlib/depositor/event"
)

func TestQlDB(t *testing.T) {
	db, err := NewQlDB("memory")
	require.NoError(t, err)
	dbTestSuite(t, db)
}

// dbTestSuite exercises a fresh DepositDB.
func dbTestSuite(t *testing.T, db DepositDB) {
	rec, err := db.LookupJob("qwe")
	require.NoError(t, err)
	require.Nil(t, rec)

	require.Equal(t, ErrNoJobID, db.SaveJob(&JobRecord{}))

	now := time.Now()
	rec = &JobRecord{
		JobID:      "qwe",
		DepositID:  "d1",
		Status:     StatusQueued,
		Deliveries: 1,
		Received:   now,
		Modified:   now,
		Request:    []byte(`{"jobID":"qwe"}`),
	}
	require.NoError(t, db.SaveJob(rec))
	require.NoError(t, db.SaveJob(&JobRecord{JobID: "asd", Status: StatusError, Modified: now.Add(time.Second)}))

	rec.Status = StatusComplete
	rec.Archive = &deposit.ArchiveRecord{ArchiveID: "a1", ArchiveSize: 10, Digest: "abc", DigestAlgorithm: "SHA-1"}
	rec.Modified = now.Add(2 * time.Second)
	require.NoError(t, db.SaveJob(rec))

	got, err := db.LookupJob("qwe")
	require.NoError(t, err)
	require.Equal(t, StatusComplete, got.Status)
	require.Equal(t, "d1", got.DepositID)
	require.Equal(t, `{"jobID":"qwe"}`, string(got.Request))
	require.Equal(t, *rec.Archive, *got.Archive)

	all, err := db.ListJobs("")
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "qwe", all[0].JobID)
	require.Equal(t, "asd", all[1].JobID)

	complete, err := db.ListJobs(StatusComplete)
	require.NoError(t, err)
	require.Len(t, complete, 1)
	failed, err := db.ListJobs(StatusError)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.Equal(t, "asd", failed[0].JobID)
	queued, err := db.ListJobs(StatusQueued)
	require.NoError(t, err)
	require.Empty(t, queued)

	kinds := []event.Kind{event.InitStates, event.Start, event.ComputedSize, event.Complete}
	for _, k := range kinds {
		require.NoError(t, db.AddEvent(event.New(k, "qwe", "d1")))
	}
	require.NoError(t, db.AddEvent(event.New(event.Error, "asd", "d2")))

	events, err := db.ListEvents("qwe")
	require.NoError(t, err)
	require.Len(t, events, len(kinds))
	for i, e := range events {
		require.Equal(t, kinds[i], e.Kind)
		require.Equal(t, "d1", e.DepositID)
	}
	events, err = db.ListEvents("zxc")
	require.NoError(t, err)
	require.Empty(t, events)
}
