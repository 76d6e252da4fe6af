package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devtools-bridge/internal/domain"
)

func newTestStore(t *testing.T) *TrafficStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "traffic.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleEntries() []domain.NetworkEntry {
	started := time.Date(2026, 3, 1, 12, 0, 0, 500, time.UTC)
	return []domain.NetworkEntry{
		{
			RequestID: "1000.1",
			Request: domain.NetworkRequest{
				URL:          "https://example.com/",
				Method:       "GET",
				Headers:      map[string]any{"Accept": "text/html"},
				ResourceType: "Document",
			},
			Response: &domain.NetworkResponse{
				URL:      "https://example.com/",
				Status:   200,
				MimeType: "text/html",
				Headers:  map[string]any{"Content-Type": "text/html"},
			},
			Started: started,
		},
		{
			RequestID: "1000.2",
			Request:   domain.NetworkRequest{URL: "https://example.com/api", Method: "POST", PostData: `{"q":1}`},
			Started:   started.Add(time.Second),
		},
	}
}

func TestSaveAndListTraffic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveTraffic(ctx, "S1", sampleEntries()))

	got, err := s.ListTraffic(ctx, "S1")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "1000.1", got[0].RequestID)
	assert.Equal(t, "text/html", got[0].Request.Headers["Accept"])
	require.NotNil(t, got[0].Response)
	assert.Equal(t, 200, got[0].Response.Status)
	assert.True(t, got[0].Started.Equal(sampleEntries()[0].Started))

	assert.Equal(t, "POST", got[1].Request.Method)
	assert.Equal(t, `{"q":1}`, got[1].Request.PostData)
	assert.Nil(t, got[1].Response, "pending request has no response")
}

func TestSaveTrafficReplacesSnapshot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveTraffic(ctx, "S1", sampleEntries()))
	require.NoError(t, s.SaveTraffic(ctx, "S1", sampleEntries()[:1]))

	got, err := s.ListTraffic(ctx, "S1")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestListTrafficUnknownSession(t *testing.T) {
	s := newTestStore(t)

	got, err := s.ListTraffic(context.Background(), "missing")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestSaveTrafficEmptySessionID(t *testing.T) {
	s := newTestStore(t)
	err := s.SaveTraffic(context.Background(), "", sampleEntries())
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSessionsAndDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveTraffic(ctx, "S1", sampleEntries()))
	require.NoError(t, s.SaveTraffic(ctx, "S2", sampleEntries()[:1]))

	sessions, err := s.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	counts := map[string]int{}
	for _, sum := range sessions {
		counts[sum.ID] = sum.Entries
		assert.False(t, sum.ArchivedAt.IsZero())
	}
	assert.Equal(t, map[string]int{"S1": 2, "S2": 1}, counts)

	require.NoError(t, s.DeleteSession(ctx, "S1"))
	got, err := s.ListTraffic(ctx, "S1")
	require.NoError(t, err)
	assert.Empty(t, got)

	assert.ErrorIs(t, s.DeleteSession(ctx, "S1"), domain.ErrSessionNotFound)
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "traffic.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveTraffic(ctx, "S1", sampleEntries()))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.ListTraffic(ctx, "S1")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
