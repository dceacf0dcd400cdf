// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package ledger records pipeline runs and deduplication passes in two
// independent append-bounded documents. Each document keeps the most
// recent entries plus cumulative statistics that survive trimming.
//
// The Store interface abstracts persistence; implementations exist for
// plain JSON files (ledger/file) and BadgerDB (ledger/badgerstore).
package ledger

import (
	"context"
	"time"

	"github.com/poiesic/reportpipe/core"
)

// MaxEntries bounds the number of entries a document retains. Older
// entries are trimmed on append; statistics keep counting.
const MaxEntries = 100

// Store persists the two ledger documents.
type Store interface {
	// AppendRun adds a pipeline run to the run ledger.
	AppendRun(ctx context.Context, run *core.PipelineRun) error

	// RunDocument returns the current run ledger document.
	RunDocument(ctx context.Context) (*RunDocument, error)

	// AppendDeduplication adds a deduplication record to the dedup ledger.
	AppendDeduplication(ctx context.Context, record *core.DeduplicationRecord) error

	// DedupDocument returns the current dedup ledger document.
	DedupDocument(ctx context.Context) (*DedupDocument, error)

	// Close releases underlying resources.
	Close() error
}

// RunStatistics are cumulative run ledger counters.
type RunStatistics struct {
	TotalReportsProcessed int    `json:"total_reports_processed"`
	SuccessfulRuns        int    `json:"successful_runs"`
	FailedRuns            int    `json:"failed_runs"`
	LastRun               string `json:"last_run,omitempty"`
}

// RunDocument is the persisted shape of the pipeline run ledger.
type RunDocument struct {
	CreatedAt    time.Time          `json:"created_at"`
	PipelineRuns []core.PipelineRun `json:"pipeline_runs"`
	Statistics   RunStatistics      `json:"statistics"`
}

// NewRunDocument creates an empty run ledger document.
func NewRunDocument() *RunDocument {
	return &RunDocument{CreatedAt: time.Now().UTC()}
}

// Append adds a run, trims to MaxEntries and updates statistics.
func (d *RunDocument) Append(run *core.PipelineRun) {
	d.PipelineRuns = append(d.PipelineRuns, *run)
	if len(d.PipelineRuns) > MaxEntries {
		d.PipelineRuns = d.PipelineRuns[len(d.PipelineRuns)-MaxEntries:]
	}

	d.Statistics.TotalReportsProcessed++
	if run.Success {
		d.Statistics.SuccessfulRuns++
	} else {
		d.Statistics.FailedRuns++
	}
	d.Statistics.LastRun = run.EndTime.UTC().Format(time.RFC3339)
}

// DedupStatistics are cumulative dedup ledger counters.
type DedupStatistics struct {
	TotalDeduplications int    `json:"total_deduplications"`
	ReportsRemoved      int    `json:"reports_removed"`
	LastDeduplication   string `json:"last_deduplication,omitempty"`
}

// DedupDocument is the persisted shape of the deduplication ledger.
type DedupDocument struct {
	CreatedAt            time.Time                  `json:"created_at"`
	DeduplicationHistory []core.DeduplicationRecord `json:"deduplication_history"`
	Statistics           DedupStatistics            `json:"statistics"`
}

// NewDedupDocument creates an empty dedup ledger document.
func NewDedupDocument() *DedupDocument {
	return &DedupDocument{CreatedAt: time.Now().UTC()}
}

// Append adds a record, trims to MaxEntries and updates statistics.
func (d *DedupDocument) Append(record *core.DeduplicationRecord) {
	d.DeduplicationHistory = append(d.DeduplicationHistory, *record)
	if len(d.DeduplicationHistory) > MaxEntries {
		d.DeduplicationHistory = d.DeduplicationHistory[len(d.DeduplicationHistory)-MaxEntries:]
	}

	d.Statistics.TotalDeduplications++
	d.Statistics.ReportsRemoved += record.DuplicatesRemoved
	d.Statistics.LastDeduplication = record.Timestamp.UTC().Format(time.RFC3339)
}
