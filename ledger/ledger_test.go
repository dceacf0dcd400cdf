package ledger

import (
	"fmt"
	"testing"
	"time"

	"github.com/poiesic/reportpipe/core"
	"github.com/stretchr/testify/assert"
)

func TestRunDocumentTrimsButKeepsCounting(t *testing.T) {
	doc := NewRunDocument()

	for i := 0; i < MaxEntries+20; i++ {
		doc.Append(&core.PipelineRun{
			RunID:   fmt.Sprintf("run-%03d", i),
			Success: i%2 == 0,
			EndTime: time.Date(2024, 1, 1, 0, i, 0, 0, time.UTC),
		})
	}

	assert.Len(t, doc.PipelineRuns, MaxEntries)
	// Oldest entries are the ones trimmed.
	assert.Equal(t, "run-020", doc.PipelineRuns[0].RunID)
	assert.Equal(t, fmt.Sprintf("run-%03d", MaxEntries+19), doc.PipelineRuns[MaxEntries-1].RunID)

	assert.Equal(t, MaxEntries+20, doc.Statistics.TotalReportsProcessed)
	assert.Equal(t, 60, doc.Statistics.SuccessfulRuns)
	assert.Equal(t, 60, doc.Statistics.FailedRuns)
	assert.Equal(t, "2024-01-01T01:59:00Z", doc.Statistics.LastRun)
}

func TestDedupDocumentStatistics(t *testing.T) {
	doc := NewDedupDocument()

	doc.Append(&core.DeduplicationRecord{
		Timestamp:         time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		Entity:            "Acme",
		DuplicatesRemoved: 2,
		Success:           true,
	})
	doc.Append(&core.DeduplicationRecord{
		Timestamp:         time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC),
		Entity:            "Acme",
		DuplicatesRemoved: 1,
		Success:           true,
	})

	assert.Len(t, doc.DeduplicationHistory, 2)
	assert.Equal(t, 2, doc.Statistics.TotalDeduplications)
	assert.Equal(t, 3, doc.Statistics.ReportsRemoved)
	assert.Equal(t, "2024-01-02T09:00:00Z", doc.Statistics.LastDeduplication)
}

func TestDedupDocumentTrims(t *testing.T) {
	doc := NewDedupDocument()
	for i := 0; i < MaxEntries+5; i++ {
		doc.Append(&core.DeduplicationRecord{Entity: fmt.Sprintf("entity-%d", i), DuplicatesRemoved: 1})
	}

	assert.Len(t, doc.DeduplicationHistory, MaxEntries)
	assert.Equal(t, "entity-5", doc.DeduplicationHistory[0].Entity)
	assert.Equal(t, MaxEntries+5, doc.Statistics.TotalDeduplications)
	assert.Equal(t, MaxEntries+5, doc.Statistics.ReportsRemoved)
}
