package file

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/poiesic/reportpipe/core"
	"github.com/poiesic/reportpipe/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStoreRequiresDir(t *testing.T) {
	_, err := NewStore("")
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestAppendRunPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewStore(dir)
	require.NoError(t, err)

	run := &core.PipelineRun{
		RunID:   "run-1",
		Entity:  "Acme",
		Success: true,
		EndTime: time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.AppendRun(ctx, run))
	require.NoError(t, store.Close())

	reopened, err := NewStore(dir)
	require.NoError(t, err)
	doc, err := reopened.RunDocument(ctx)
	require.NoError(t, err)

	require.Len(t, doc.PipelineRuns, 1)
	assert.Equal(t, "run-1", doc.PipelineRuns[0].RunID)
	assert.Equal(t, 1, doc.Statistics.TotalReportsProcessed)
	assert.Equal(t, 1, doc.Statistics.SuccessfulRuns)
	assert.Zero(t, doc.Statistics.FailedRuns)
	assert.Equal(t, "2024-03-15T12:00:00Z", doc.Statistics.LastRun)
}

func TestRunLedgerFileShape(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.AppendRun(context.Background(), &core.PipelineRun{RunID: "run-1"}))

	data, err := os.ReadFile(filepath.Join(dir, "pipeline_runs.json"))
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Contains(t, raw, "created_at")
	assert.Contains(t, raw, "pipeline_runs")
	assert.Contains(t, raw, "statistics")
}

func TestAppendDeduplication(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.AppendDeduplication(ctx, &core.DeduplicationRecord{
		Timestamp:         time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC),
		Entity:            "Acme",
		DuplicatesRemoved: 2,
		Success:           true,
	}))

	doc, err := store.DedupDocument(ctx)
	require.NoError(t, err)
	require.Len(t, doc.DeduplicationHistory, 1)
	assert.Equal(t, 1, doc.Statistics.TotalDeduplications)
	assert.Equal(t, 2, doc.Statistics.ReportsRemoved)
}

func TestLedgersAreIndependent(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.AppendRun(ctx, &core.PipelineRun{RunID: "run-1"}))

	dedupDoc, err := store.DedupDocument(ctx)
	require.NoError(t, err)
	assert.Empty(t, dedupDoc.DeduplicationHistory)
	assert.Zero(t, dedupDoc.Statistics.TotalDeduplications)
}

func TestRunLedgerCap(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < ledger.MaxEntries+10; i++ {
		require.NoError(t, store.AppendRun(ctx, &core.PipelineRun{Success: true}))
	}

	doc, err := store.RunDocument(ctx)
	require.NoError(t, err)
	assert.Len(t, doc.PipelineRuns, ledger.MaxEntries)
	assert.Equal(t, ledger.MaxEntries+10, doc.Statistics.TotalReportsProcessed)
}

func TestEmptyDocumentOnFreshStore(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	doc, err := store.RunDocument(context.Background())
	require.NoError(t, err)
	assert.Empty(t, doc.PipelineRuns)
	assert.False(t, doc.CreatedAt.IsZero())
}
