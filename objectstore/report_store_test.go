package objectstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/poiesic/reportpipe/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeReport(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "report.html")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestStore(t *testing.T) (*ReportStore, *MemoryBackend) {
	t.Helper()
	backend := NewMemoryBackend("test-bucket")
	store, err := NewReportStore(backend)
	require.NoError(t, err)
	return store, backend
}

func TestNewReportStoreRequiresBackend(t *testing.T) {
	_, err := NewReportStore(nil)
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestUpload(t *testing.T) {
	store, backend := newTestStore(t)
	local := writeReport(t, "<html><body>Acme report</body></html>")

	ts := time.Date(2024, 3, 1, 9, 10, 0, 0, time.UTC)
	result := store.Upload(context.Background(), local, "Acme Corp", ts)

	require.True(t, result.Success, "unexpected error: %s", result.Error)
	assert.Equal(t, "acme_corp/2024-03-01/09-10-00.html", result.Path)
	assert.Equal(t, "mem://test-bucket/acme_corp/2024-03-01/09-10-00.html", result.URL)
	assert.Equal(t, "2024-03-01", result.Date)
	assert.Equal(t, "Acme Corp", result.Metadata[core.MetaCompany])
	assert.Equal(t, "html", result.Metadata[core.MetaFormat])
	assert.Equal(t, ts.Format(time.RFC3339), result.Metadata[core.MetaTimestamp])
	assert.NotEmpty(t, result.Metadata[core.MetaFileSize])

	content, err := backend.Get(context.Background(), result.Path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "Acme report")
}

func TestUploadMissingFile(t *testing.T) {
	store, backend := newTestStore(t)

	result := store.Upload(context.Background(), filepath.Join(t.TempDir(), "absent.html"), "Acme", time.Time{})
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
	assert.Zero(t, backend.Len())
}

func TestUploadPathDeterminismAndOverwrite(t *testing.T) {
	store, backend := newTestStore(t)
	ts := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	first := store.Upload(context.Background(), writeReport(t, "first version"), "Acme Corp", ts)
	second := store.Upload(context.Background(), writeReport(t, "second version"), "Acme Corp", ts)

	require.True(t, first.Success)
	require.True(t, second.Success)
	assert.Equal(t, first.Path, second.Path)
	assert.Equal(t, 1, backend.Len())

	content, err := backend.Get(context.Background(), first.Path)
	require.NoError(t, err)
	assert.Equal(t, "second version", string(content))
}

func TestListReportsOrdering(t *testing.T) {
	store, backend := newTestStore(t)

	times := []time.Time{
		time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 1, 9, 5, 0, 0, time.UTC),
		time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC),
	}
	for _, ts := range times {
		backend.SetClock(func() time.Time { return ts })
		require.True(t, store.Upload(context.Background(), writeReport(t, "r"), "Acme", ts).Success)
	}

	reports, err := store.ListReports(context.Background(), "Acme", "")
	require.NoError(t, err)
	require.Len(t, reports, 3)

	// Newest first.
	assert.Equal(t, "acme/2024-03-02/08-00-00.html", reports[0].Path)
	assert.Equal(t, "acme/2024-03-01/09-05-00.html", reports[1].Path)
	assert.Equal(t, "acme/2024-03-01/09-00-00.html", reports[2].Path)

	// Day filter narrows the listing.
	day, err := store.ListReports(context.Background(), "Acme", "2024-03-01")
	require.NoError(t, err)
	assert.Len(t, day, 2)
}

func TestListReportsUnknownCreationSortsLast(t *testing.T) {
	store, backend := newTestStore(t)

	backend.SetClock(func() time.Time { return time.Time{} })
	require.True(t, store.Upload(context.Background(), writeReport(t, "r"),
		"Acme", time.Date(2024, 3, 1, 7, 0, 0, 0, time.UTC)).Success)

	backend.SetClock(func() time.Time { return time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC) })
	require.True(t, store.Upload(context.Background(), writeReport(t, "r"),
		"Acme", time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)).Success)

	reports, err := store.ListReports(context.Background(), "Acme", "")
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.True(t, reports[1].Created.IsZero(), "unknown creation time should sort last")
}

func TestGetLatestForDay(t *testing.T) {
	store, backend := newTestStore(t)

	for _, ts := range []time.Time{
		time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 1, 9, 10, 0, 0, time.UTC),
	} {
		backend.SetClock(func() time.Time { return ts })
		require.True(t, store.Upload(context.Background(), writeReport(t, "r"), "Acme", ts).Success)
	}

	latest, err := store.GetLatestForDay(context.Background(), "Acme", "2024-03-01")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "acme/2024-03-01/09-10-00.html", latest.Path)

	none, err := store.GetLatestForDay(context.Background(), "Acme", "2020-01-01")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestDownload(t *testing.T) {
	store, _ := newTestStore(t)
	ts := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	result := store.Upload(context.Background(), writeReport(t, "downloadable"), "Acme", ts)
	require.True(t, result.Success)

	dest := filepath.Join(t.TempDir(), "nested", "copy.html")
	require.NoError(t, store.Download(context.Background(), result.Path, dest))

	content, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "downloadable", string(content))

	err = store.Download(context.Background(), "acme/2020-01-01/00-00-00.html", dest)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestDeleteIdempotent(t *testing.T) {
	store, backend := newTestStore(t)
	ts := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	result := store.Upload(context.Background(), writeReport(t, "r"), "Acme", ts)
	require.True(t, result.Success)

	require.NoError(t, store.Delete(context.Background(), result.Path))
	assert.Zero(t, backend.Len())

	// Deleting an already-absent report is success.
	require.NoError(t, store.Delete(context.Background(), result.Path))
}
