package storage

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/crawl-loader/pkg/models"
)

func newTestJournal(t *testing.T) *JournalStore {
	t.Helper()
	j, err := NewJournalStore(filepath.Join(t.TempDir(), "state", "journal.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestJournalStore_AppendAndQuery(t *testing.T) {
	j := newTestJournal(t)
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	records := []models.FailureRecord{
		{URL: "http://example.com/a", InitiatorID: "peer1", Timestamp: base, Attempt: 1, Reason: "redirect", Category: "Redirect_TooMany", HTTPStatus: 302},
		{URL: "http://example.com/a", InitiatorID: "peer1", Timestamp: base.Add(time.Second), Attempt: 2, Reason: "redirect", Category: "Redirect_TooMany", HTTPStatus: 302},
		{URL: "http://example.com/b", InitiatorID: "peer2", Timestamp: base.Add(2 * time.Second), Attempt: 1, Reason: "too large", Category: "Reject_TooLarge"},
	}
	for i := range records {
		require.NoError(t, j.Append(&records[i]))
	}

	count, err := j.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	forA, err := j.ForURL("http://example.com/a")
	require.NoError(t, err)
	require.Len(t, forA, 2)
	assert.Equal(t, 1, forA[0].Attempt)
	assert.Equal(t, 2, forA[1].Attempt)
	assert.Equal(t, 302, forA[0].HTTPStatus)
	assert.True(t, base.Equal(forA[0].Timestamp))

	recent, err := j.Recent(2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "http://example.com/b", recent[0].URL)
	assert.Equal(t, "Reject_TooLarge", recent[0].Category)
	assert.Equal(t, 0, recent[0].HTTPStatus)
}

func TestJournalStore_DefaultsAndNil(t *testing.T) {
	j := newTestJournal(t)

	require.NoError(t, j.Append(nil))
	require.NoError(t, j.Append(&models.FailureRecord{URL: "ftp://example.com/x", Attempt: 1, Reason: "r"}))

	recs, err := j.ForURL("ftp://example.com/x")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.False(t, recs[0].Timestamp.IsZero())
}

func TestJournalStore_ConcurrentAppend(t *testing.T) {
	j := newTestJournal(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(attempt int) {
			defer wg.Done()
			assert.NoError(t, j.Append(&models.FailureRecord{URL: "http://example.com/c", Attempt: attempt, Reason: "x"}))
		}(i + 1)
	}
	wg.Wait()

	count, err := j.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(20), count)
}
