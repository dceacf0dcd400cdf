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


package core

import "time"

// ReportArtifact describes one stored report document, as returned by
// listing operations. Created may be zero when the backend does not
// record a creation time.
type ReportArtifact struct {
	Path     string            `json:"path"`
	URL      string            `json:"url"`
	Size     int64             `json:"size"`
	Created  time.Time         `json:"created,omitzero"`
	Updated  time.Time         `json:"updated,omitzero"`
	Metadata map[string]string `json:"metadata"`
}

// UploadResult is the outcome of storing a report document.
// A failed upload carries Success=false and Error instead of returning
// a Go error, so callers can attach the result to a run record as-is.
type UploadResult struct {
	Success   bool              `json:"success"`
	Path      string            `json:"path,omitempty"`
	URL       string            `json:"url,omitempty"`
	Entity    string            `json:"entity,omitempty"`
	Date      string            `json:"date,omitempty"`
	Timestamp string            `json:"timestamp,omitempty"`
	Size      int               `json:"file_size,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// TextChunk is one bounded slice of a document's extracted text.
type TextChunk struct {
	Index  int    `json:"chunk_id"`
	Text   string `json:"text"`
	Length int    `json:"text_length"`
}

// EmbeddedChunk pairs a text chunk with its embedding vector.
type EmbeddedChunk struct {
	TextChunk
	Vector []float32 `json:"embedding"`
}

// EmbeddingResult is the outcome of chunking and embedding one document.
type EmbeddingResult struct {
	Success     bool              `json:"success"`
	Entity      string            `json:"entity,omitempty"`
	ProcessedAt time.Time         `json:"processed_at"`
	TextLength  int               `json:"text_length,omitempty"`
	NumChunks   int               `json:"num_chunks,omitempty"`
	Dimension   int               `json:"embedding_dimension,omitempty"`
	Chunks      []EmbeddedChunk   `json:"chunks,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// Restrict is a metadata-based filter attached to a vector datapoint.
// Only queries whose filters match a namespace's allow list may match
// the datapoint.
type Restrict struct {
	Namespace string   `json:"namespace"`
	AllowList []string `json:"allow_list"`
}

// Datapoint is the unit stored in the vector index.
type Datapoint struct {
	ID          string            `json:"datapoint_id"`
	Vector      []float32         `json:"feature_vector"`
	Restricts   []Restrict        `json:"restricts"`
	CrowdingTag string            `json:"crowding_tag"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// UpsertResult reports the outcome of a batch upsert.
// Mode distinguishes writes against a live index from simulated ones.
type UpsertResult struct {
	Success    bool      `json:"success"`
	Count      int       `json:"count"`
	IDs        []string  `json:"datapoint_ids,omitempty"`
	Mode       string    `json:"mode,omitempty"`
	UpsertedAt time.Time `json:"upserted_at,omitzero"`
	Error      string    `json:"error,omitempty"`
}

// Neighbor is one ranked result of a similarity query.
type Neighbor struct {
	ID       string            `json:"datapoint_id"`
	Score    float32           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// StageResult records the outcome of one pipeline stage.
// Counters hold stage-specific totals such as chunks embedded or
// datapoints upserted.
type StageResult struct {
	Success  bool           `json:"success"`
	Skipped  bool           `json:"skipped,omitempty"`
	Error    string         `json:"error,omitempty"`
	Counters map[string]int `json:"counters,omitempty"`
}

// Pipeline stage names, in execution order.
const (
	StageUpload        = "upload"
	StageEmbedding     = "embedding"
	StageVectorStorage = "vector_storage"
	StageDeduplication = "deduplication"
)

// PipelineRun is the record of one report's trip through the pipeline.
// Every run produces exactly one record regardless of outcome; stage
// results accumulated before a failure are preserved.
type PipelineRun struct {
	RunID           string                 `json:"run_id"`
	Entity          string                 `json:"entity"`
	SourcePath      string                 `json:"source_path"`
	StartTime       time.Time              `json:"start_time"`
	EndTime         time.Time              `json:"end_time"`
	DurationSeconds float64                `json:"duration_seconds"`
	Stages          map[string]StageResult `json:"steps"`
	Success         bool                   `json:"success"`
	FailedStage     string                 `json:"stage,omitempty"`
	Error           string                 `json:"error,omitempty"`
	ReportPath      string                 `json:"report_path,omitempty"`
	ReportURL       string                 `json:"report_url,omitempty"`
	ChunksProcessed int                    `json:"chunks_processed,omitempty"`
	VectorsStored   int                    `json:"vectors_stored,omitempty"`
}

// RetainedReport identifies the report kept after a deduplication pass.
type RetainedReport struct {
	Path      string `json:"path"`
	URL       string `json:"url,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// RemovedReport identifies a superseded report deleted during a
// deduplication pass.
type RemovedReport struct {
	Path     string            `json:"path"`
	URL      string            `json:"url,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// DayResult is the per-day breakdown of one deduplication pass.
type DayResult struct {
	Date              string          `json:"date"`
	TotalReports      int             `json:"total_reports"`
	DuplicatesFound   int             `json:"duplicates_found"`
	DuplicatesRemoved int             `json:"duplicates_removed"`
	Latest            RetainedReport  `json:"latest_report"`
	Removed           []RemovedReport `json:"removed_reports"`
}

// DeduplicationRecord is one deduplication decision for an entity,
// optionally restricted to a single day. Appended to history as-is and
// never rewritten.
type DeduplicationRecord struct {
	Timestamp         time.Time   `json:"timestamp"`
	Entity            string      `json:"entity"`
	DateFilter        string      `json:"date_filter,omitempty"`
	ReportsFound      int         `json:"reports_found"`
	DuplicatesRemoved int         `json:"duplicates_removed"`
	Results           []DayResult `json:"results_by_date,omitempty"`
	Success           bool        `json:"success"`
	Error             string      `json:"error,omitempty"`
}
