package dedup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/poiesic/reportpipe/core"
	"github.com/poiesic/reportpipe/objectstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeReport(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "report.html")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestStore(t *testing.T) (*objectstore.ReportStore, *objectstore.MemoryBackend) {
	t.Helper()
	backend := objectstore.NewMemoryBackend("test-bucket")
	store, err := objectstore.NewReportStore(backend)
	require.NoError(t, err)
	return store, backend
}

func TestNewManagerRequiresStore(t *testing.T) {
	_, err := NewManager(nil)
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestDeduplicateKeepsLatestOfDay(t *testing.T) {
	store, _ := newTestStore(t)
	manager, err := NewManager(store)
	require.NoError(t, err)
	ctx := context.Background()

	reportFile := writeReport(t, "<html><body>daily report</body></html>")
	day := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	for _, minutes := range []int{0, 5, 10} {
		result := store.Upload(ctx, reportFile, "Acme Corp", day.Add(time.Duration(minutes)*time.Minute))
		require.True(t, result.Success)
	}

	record := manager.DeduplicateEntity(ctx, "Acme Corp", "2024-03-01")
	require.True(t, record.Success)
	assert.Equal(t, 3, record.ReportsFound)
	assert.Equal(t, 2, record.DuplicatesRemoved)

	require.Len(t, record.Results, 1)
	dayResult := record.Results[0]
	assert.Equal(t, "2024-03-01", dayResult.Date)
	assert.Equal(t, 3, dayResult.TotalReports)
	assert.Equal(t, 2, dayResult.DuplicatesFound)
	assert.Equal(t, "acme_corp/2024-03-01/09-10-00.html", dayResult.Latest.Path)
	require.Len(t, dayResult.Removed, 2)

	remaining, err := store.ListReports(ctx, "Acme Corp", "")
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "acme_corp/2024-03-01/09-10-00.html", remaining[0].Path)
}

func TestDeduplicateIsIdempotent(t *testing.T) {
	store, _ := newTestStore(t)
	manager, err := NewManager(store)
	require.NoError(t, err)
	ctx := context.Background()

	reportFile := writeReport(t, "content")
	day := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	for _, hour := range []int{8, 9} {
		require.True(t, store.Upload(ctx, reportFile, "Acme", day.Add(time.Duration(hour)*time.Hour)).Success)
	}

	first := manager.DeduplicateEntity(ctx, "Acme", "")
	require.True(t, first.Success)
	assert.Equal(t, 1, first.DuplicatesRemoved)

	second := manager.DeduplicateEntity(ctx, "Acme", "")
	require.True(t, second.Success)
	assert.Equal(t, 1, second.ReportsFound)
	assert.Zero(t, second.DuplicatesRemoved)
}

func TestDeduplicateSpansDaysUnlessFiltered(t *testing.T) {
	store, _ := newTestStore(t)
	manager, err := NewManager(store)
	require.NoError(t, err)
	ctx := context.Background()

	reportFile := writeReport(t, "content")
	for _, ts := range []time.Time{
		time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 14, 17, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 15, 17, 0, 0, 0, time.UTC),
	} {
		require.True(t, store.Upload(ctx, reportFile, "Acme", ts).Success)
	}

	// Filtered pass touches only the named day.
	record := manager.DeduplicateEntity(ctx, "Acme", "2024-03-14")
	require.True(t, record.Success)
	assert.Equal(t, 2, record.ReportsFound)
	assert.Equal(t, 1, record.DuplicatesRemoved)
	require.Len(t, record.Results, 1)
	assert.Equal(t, "2024-03-14", record.Results[0].Date)

	day15, err := store.ListReports(ctx, "Acme", "2024-03-15")
	require.NoError(t, err)
	assert.Len(t, day15, 2)

	// Unfiltered pass covers the remaining day.
	record = manager.DeduplicateEntity(ctx, "Acme", "")
	require.True(t, record.Success)
	assert.Equal(t, 3, record.ReportsFound)
	assert.Equal(t, 1, record.DuplicatesRemoved)

	all, err := store.ListReports(ctx, "Acme", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestDeduplicateEmptyStore(t *testing.T) {
	store, _ := newTestStore(t)
	manager, err := NewManager(store)
	require.NoError(t, err)

	record := manager.DeduplicateEntity(context.Background(), "Nobody Inc", "")
	require.True(t, record.Success)
	assert.Zero(t, record.ReportsFound)
	assert.Zero(t, record.DuplicatesRemoved)
	assert.Empty(t, record.Results)
}

func TestDeduplicateFallsBackToPathDay(t *testing.T) {
	store, backend := newTestStore(t)
	manager, err := NewManager(store)
	require.NoError(t, err)
	ctx := context.Background()

	// Objects written without metadata, as an external tool might leave
	// them. Day must come from the path, recency from creation time.
	clock := time.Date(2024, 3, 15, 8, 0, 0, 0, time.UTC)
	backend.SetClock(func() time.Time {
		clock = clock.Add(time.Hour)
		return clock
	})
	require.NoError(t, backend.Put(ctx, "acme/2024-03-15/08-00-00.html", []byte("early"), "text/html", nil))
	require.NoError(t, backend.Put(ctx, "acme/2024-03-15/09-00-00.html", []byte("late"), "text/html", nil))

	record := manager.DeduplicateEntity(ctx, "Acme", "")
	require.True(t, record.Success)
	assert.Equal(t, 1, record.DuplicatesRemoved)
	require.Len(t, record.Results, 1)
	assert.Equal(t, "2024-03-15", record.Results[0].Date)
	assert.Equal(t, "acme/2024-03-15/09-00-00.html", record.Results[0].Latest.Path)
}

func TestDeduplicateTimestampTieBreaksOnPath(t *testing.T) {
	store, backend := newTestStore(t)
	manager, err := NewManager(store)
	require.NoError(t, err)
	ctx := context.Background()

	fixed := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	backend.SetClock(func() time.Time { return fixed })
	require.NoError(t, backend.Put(ctx, "acme/2024-03-15/12-00-00.html", []byte("a"), "text/html", nil))
	require.NoError(t, backend.Put(ctx, "acme/2024-03-15/12-00-01.html", []byte("b"), "text/html", nil))

	record := manager.DeduplicateEntity(ctx, "Acme", "")
	require.True(t, record.Success)
	require.Len(t, record.Results, 1)
	assert.Equal(t, "acme/2024-03-15/12-00-01.html", record.Results[0].Latest.Path)
}

// failingBackend wraps a MemoryBackend and refuses all deletes.
type failingBackend struct {
	*objectstore.MemoryBackend
}

func (f *failingBackend) Delete(ctx context.Context, path string) error {
	return errors.New("delete refused")
}

func TestDeduplicateRecordsDeleteFailures(t *testing.T) {
	backend := &failingBackend{MemoryBackend: objectstore.NewMemoryBackend("test-bucket")}
	store, err := objectstore.NewReportStore(backend)
	require.NoError(t, err)
	manager, err := NewManager(store)
	require.NoError(t, err)
	ctx := context.Background()

	reportFile := writeReport(t, "content")
	day := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	for _, hour := range []int{8, 9} {
		require.True(t, store.Upload(ctx, reportFile, "Acme", day.Add(time.Duration(hour)*time.Hour)).Success)
	}

	record := manager.DeduplicateEntity(ctx, "Acme", "")
	assert.False(t, record.Success)
	assert.Contains(t, record.Error, "delete refused")
	assert.Equal(t, 2, record.ReportsFound)
	assert.Zero(t, record.DuplicatesRemoved)

	// The failed duplicate stays listed for the next pass.
	require.Len(t, record.Results, 1)
	assert.Equal(t, 1, record.Results[0].DuplicatesFound)
	assert.Empty(t, record.Results[0].Removed)
}
