// Package pipeline sequences the full ingestion flow for one report:
// object store upload, chunking and embedding, vector index upsert and
// same-day deduplication. Every run produces exactly one ledger entry
// regardless of outcome.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/reportpipe/core"
	"github.com/poiesic/reportpipe/dedup"
	"github.com/poiesic/reportpipe/embedding"
	"github.com/poiesic/reportpipe/ledger"
	"github.com/poiesic/reportpipe/objectstore"
	"github.com/poiesic/reportpipe/vectorindex"
)

// Orchestrator runs reports through the ingestion stages in order.
// Upload, embedding and vector storage are strict: a failure aborts
// later stages. Deduplication is advisory and never fails the run.
type Orchestrator struct {
	store        *objectstore.ReportStore
	generator    *embedding.Generator
	vectors      *vectorindex.Client
	deduper      *dedup.Manager
	ledgerStore  ledger.Store
	dedupEnabled bool
	pool         *ants.Pool
	logger       *slog.Logger
	now          func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) error {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger
		return nil
	}
}

// WithDeduplication toggles the deduplication stage. When disabled the
// stage is recorded as skipped on every run.
func WithDeduplication(enabled bool) Option {
	return func(o *Orchestrator) error {
		o.dedupEnabled = enabled
		return nil
	}
}

// WithPoolSize sets the worker pool size for batch processing.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(o *Orchestrator) error {
		if size < 1 {
			size = 1
		}
		if o.pool != nil {
			o.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		o.pool = pool
		return nil
	}
}

// NewOrchestrator creates an Orchestrator. Store, generator, vector
// client and ledger store are required; the dedup manager may be nil
// only when deduplication is disabled via WithDeduplication(false).
func NewOrchestrator(
	store *objectstore.ReportStore,
	generator *embedding.Generator,
	vectors *vectorindex.Client,
	deduper *dedup.Manager,
	ledgerStore ledger.Store,
	opts ...Option,
) (*Orchestrator, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: report store required", core.ErrConfiguration)
	}
	if generator == nil {
		return nil, fmt.Errorf("%w: embedding generator required", core.ErrConfiguration)
	}
	if vectors == nil {
		return nil, fmt.Errorf("%w: vector index client required", core.ErrConfiguration)
	}
	if ledgerStore == nil {
		return nil, fmt.Errorf("%w: ledger store required", core.ErrConfiguration)
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		store:        store,
		generator:    generator,
		vectors:      vectors,
		deduper:      deduper,
		ledgerStore:  ledgerStore,
		dedupEnabled: true,
		pool:         pool,
		logger:       slog.Default().With("component", "pipeline"),
		now:          time.Now,
	}
	for _, opt := range opts {
		if optErr := opt(o); optErr != nil {
			o.Release()
			return nil, optErr
		}
	}

	if o.dedupEnabled && o.deduper == nil {
		o.Release()
		return nil, fmt.Errorf("%w: dedup manager required while deduplication is enabled", core.ErrConfiguration)
	}

	return o, nil
}

// ProcessReport runs one report through all stages. A zero timestamp
// means now. The returned run record carries every stage result that
// executed, including those before a failure, and has already been
// appended to the run ledger.
func (o *Orchestrator) ProcessReport(ctx context.Context, path, entity string, timestamp time.Time) *core.PipelineRun {
	start := o.now().UTC()
	run := &core.PipelineRun{
		RunID:      fmt.Sprintf("%s_%d", core.NormalizeEntity(entity), start.UnixNano()),
		Entity:     entity,
		SourcePath: path,
		StartTime:  start,
		Stages:     make(map[string]core.StageResult),
	}

	o.logger.Info("processing report", "run_id", run.RunID, "entity", entity, "path", path)

	upload := o.store.Upload(ctx, path, entity, timestamp)
	run.Stages[core.StageUpload] = core.StageResult{
		Success:  upload.Success,
		Error:    upload.Error,
		Counters: map[string]int{"file_size": upload.Size},
	}
	if !upload.Success {
		return o.finish(ctx, run, core.StageUpload, upload.Error)
	}
	run.ReportPath = upload.Path
	run.ReportURL = upload.URL

	embedded := o.generator.ProcessFile(ctx, path, entity, upload.Metadata)
	run.Stages[core.StageEmbedding] = core.StageResult{
		Success:  embedded.Success,
		Error:    embedded.Error,
		Counters: map[string]int{"chunks": embedded.NumChunks, "text_length": embedded.TextLength},
	}
	if !embedded.Success {
		return o.finish(ctx, run, core.StageEmbedding, embedded.Error)
	}
	run.ChunksProcessed = embedded.NumChunks

	upsert := o.vectors.ProcessEmbeddingResult(ctx, embedded, upload.Path)
	storageStage := core.StageResult{
		Success:  upsert.Success,
		Error:    upsert.Error,
		Counters: map[string]int{"vectors_stored": upsert.Count},
	}
	if upsert.Mode == vectorindex.ModeSimulation {
		storageStage.Counters["simulated"] = 1
	}
	run.Stages[core.StageVectorStorage] = storageStage
	if !upsert.Success {
		return o.finish(ctx, run, core.StageVectorStorage, upsert.Error)
	}
	run.VectorsStored = upsert.Count

	o.runDeduplication(ctx, run, entity, upload.Date)

	return o.finish(ctx, run, "", "")
}

// runDeduplication executes the advisory dedup stage. Failures are
// recorded on the stage but never fail the run.
func (o *Orchestrator) runDeduplication(ctx context.Context, run *core.PipelineRun, entity, date string) {
	if !o.dedupEnabled {
		run.Stages[core.StageDeduplication] = core.StageResult{Success: true, Skipped: true}
		return
	}

	record := o.deduper.DeduplicateEntity(ctx, entity, date)
	run.Stages[core.StageDeduplication] = core.StageResult{
		Success: record.Success,
		Error:   record.Error,
		Counters: map[string]int{
			"reports_found":      record.ReportsFound,
			"duplicates_removed": record.DuplicatesRemoved,
		},
	}

	if err := o.ledgerStore.AppendDeduplication(ctx, record); err != nil {
		o.logger.Error("error appending deduplication record", "run_id", run.RunID, "err", err)
	}
}

// finish closes out a run, appends it to the run ledger and returns it.
func (o *Orchestrator) finish(ctx context.Context, run *core.PipelineRun, failedStage, errMsg string) *core.PipelineRun {
	run.EndTime = o.now().UTC()
	run.DurationSeconds = run.EndTime.Sub(run.StartTime).Seconds()
	run.Success = failedStage == ""
	run.FailedStage = failedStage
	run.Error = errMsg

	if err := o.ledgerStore.AppendRun(ctx, run); err != nil {
		o.logger.Error("error appending run record", "run_id", run.RunID, "err", err)
	}

	if run.Success {
		o.logger.Info("report processed", "run_id", run.RunID,
			"chunks", run.ChunksProcessed, "vectors", run.VectorsStored,
			"duration_seconds", run.DurationSeconds)
	} else {
		o.logger.Error("report processing failed", "run_id", run.RunID,
			"stage", run.FailedStage, "err", run.Error)
	}
	return run
}

// ReportRequest names one report for batch processing.
type ReportRequest struct {
	Path      string
	Entity    string
	Timestamp time.Time
}

// ProcessReports runs several reports concurrently over the worker
// pool. Results come back in request order; a failed run occupies its
// slot like any other.
func (o *Orchestrator) ProcessReports(ctx context.Context, requests []ReportRequest) []*core.PipelineRun {
	runs := make([]*core.PipelineRun, len(requests))

	var wg sync.WaitGroup
	for i, request := range requests {
		wg.Add(1)
		err := o.pool.Submit(func() {
			defer wg.Done()
			runs[i] = o.ProcessReport(ctx, request.Path, request.Entity, request.Timestamp)
		})
		if err != nil {
			wg.Done()
			o.logger.Error("error submitting report to pool", "path", request.Path, "err", err)
			runs[i] = &core.PipelineRun{
				Entity:     request.Entity,
				SourcePath: request.Path,
				Error:      err.Error(),
			}
		}
	}
	wg.Wait()

	return runs
}

// Statistics combines the cumulative counters of both ledgers.
type Statistics struct {
	Runs          ledger.RunStatistics   `json:"runs"`
	Deduplication ledger.DedupStatistics `json:"deduplication"`
}

// Statistics returns the cumulative ledger counters.
func (o *Orchestrator) Statistics(ctx context.Context) (*Statistics, error) {
	runDoc, err := o.ledgerStore.RunDocument(ctx)
	if err != nil {
		return nil, err
	}
	dedupDoc, err := o.ledgerStore.DedupDocument(ctx)
	if err != nil {
		return nil, err
	}
	return &Statistics{
		Runs:          runDoc.Statistics,
		Deduplication: dedupDoc.Statistics,
	}, nil
}

// ComponentStatus describes one component in a health report.
type ComponentStatus struct {
	Initialized bool   `json:"initialized"`
	Status      string `json:"status"`
	Mode        string `json:"mode,omitempty"`
}

// Health is the pipeline health report.
type Health struct {
	Status     string                     `json:"status"`
	Components map[string]ComponentStatus `json:"components"`
}

// HealthCheck reports per-component status. The pipeline is unhealthy
// if any required component is uninitialized; a disabled dedup stage
// does not count against health.
func (o *Orchestrator) HealthCheck() *Health {
	health := &Health{
		Status:     "healthy",
		Components: make(map[string]ComponentStatus),
	}

	report := func(name string, initialized bool) {
		status := "healthy"
		if !initialized {
			status = "uninitialized"
			health.Status = "unhealthy"
		}
		health.Components[name] = ComponentStatus{Initialized: initialized, Status: status}
	}

	report("object_store", o.store != nil)
	report("embedding_generator", o.generator != nil)
	report("ledger", o.ledgerStore != nil)

	if o.vectors != nil {
		health.Components["vector_index"] = ComponentStatus{
			Initialized: true,
			Status:      "healthy",
			Mode:        o.vectors.Mode(),
		}
	} else {
		report("vector_index", false)
	}

	switch {
	case !o.dedupEnabled:
		health.Components["deduplication"] = ComponentStatus{Initialized: o.deduper != nil, Status: "disabled"}
	default:
		report("deduplication", o.deduper != nil)
	}

	return health
}

// Release releases the worker pool. The orchestrator should not be
// used for batch processing after calling Release.
func (o *Orchestrator) Release() {
	if o.pool != nil {
		o.pool.Release()
	}
}
