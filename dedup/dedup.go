// Package dedup enforces the one-report-per-entity-per-day rule over
// the report store. For each calendar day the most recent report is
// kept and earlier ones are deleted; every pass produces a
// DeduplicationRecord describing exactly what was retained and removed.
package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/poiesic/reportpipe/core"
	"github.com/poiesic/reportpipe/objectstore"
)

// Manager runs deduplication passes over an entity's stored reports.
// Passes for the same entity are serialized so concurrent runs cannot
// race over which report survives.
type Manager struct {
	store  *objectstore.ReportStore
	logger *slog.Logger
	now    func() time.Time

	mu          sync.Mutex
	entityLocks map[string]*sync.Mutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger == nil {
			logger = slog.Default()
		}
		m.logger = logger
	}
}

// NewManager creates a deduplication manager over the given store.
func NewManager(store *objectstore.ReportStore, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: report store required", core.ErrConfiguration)
	}

	m := &Manager{
		store:       store,
		logger:      slog.Default().With("component", "dedup-manager"),
		now:         time.Now,
		entityLocks: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Manager) lockEntity(entity string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := core.NormalizeEntity(entity)
	lock, ok := m.entityLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		m.entityLocks[key] = lock
	}
	return lock
}

// DeduplicateEntity removes superseded reports for an entity, keeping
// the latest report of each day. An optional dateFilter (YYYY-MM-DD)
// restricts the pass to one day. The outcome is always carried in the
// record; a listing failure yields Success=false with Error set, and a
// failed delete is recorded without aborting the rest of the pass.
func (m *Manager) DeduplicateEntity(ctx context.Context, entity, dateFilter string) *core.DeduplicationRecord {
	lock := m.lockEntity(entity)
	lock.Lock()
	defer lock.Unlock()

	record := &core.DeduplicationRecord{
		Timestamp:  m.now().UTC(),
		Entity:     entity,
		DateFilter: dateFilter,
	}

	reports, err := m.store.ListReports(ctx, entity, dateFilter)
	if err != nil {
		record.Error = fmt.Sprintf("%v: %v", core.ErrDeduplication, err)
		m.logger.Error("deduplication listing failed", "entity", entity, "err", err)
		return record
	}
	record.ReportsFound = len(reports)

	byDay := make(map[string][]core.ReportArtifact)
	for _, report := range reports {
		day := reportDay(report)
		byDay[day] = append(byDay[day], report)
	}

	days := make([]string, 0, len(byDay))
	for day := range byDay {
		days = append(days, day)
	}
	sort.Strings(days)

	var deleteFailures []string
	for _, day := range days {
		group := byDay[day]
		sortNewestFirst(group)

		latest := group[0]
		dayResult := core.DayResult{
			Date:            day,
			TotalReports:    len(group),
			DuplicatesFound: len(group) - 1,
			Latest: core.RetainedReport{
				Path:      latest.Path,
				URL:       latest.URL,
				Timestamp: latest.Metadata[core.MetaTimestamp],
			},
		}

		for _, duplicate := range group[1:] {
			if err := m.store.Delete(ctx, duplicate.Path); err != nil {
				deleteFailures = append(deleteFailures, fmt.Sprintf("%s: %v", duplicate.Path, err))
				m.logger.Error("duplicate delete failed", "entity", entity, "path", duplicate.Path, "err", err)
				continue
			}
			dayResult.DuplicatesRemoved++
			dayResult.Removed = append(dayResult.Removed, core.RemovedReport{
				Path:     duplicate.Path,
				URL:      duplicate.URL,
				Metadata: duplicate.Metadata,
			})
		}

		record.DuplicatesRemoved += dayResult.DuplicatesRemoved
		record.Results = append(record.Results, dayResult)
	}

	if len(deleteFailures) > 0 {
		record.Error = fmt.Sprintf("%v: %s", core.ErrDeduplication, strings.Join(deleteFailures, "; "))
	} else {
		record.Success = true
	}

	m.logger.Info("deduplication pass completed", "entity", entity,
		"date_filter", dateFilter, "reports_found", record.ReportsFound,
		"duplicates_removed", record.DuplicatesRemoved)
	return record
}

// reportDay resolves the calendar day a report belongs to. Metadata
// wins; the path segment is the fallback for objects stored without
// metadata.
func reportDay(report core.ReportArtifact) string {
	if day := report.Metadata[core.MetaDate]; day != "" {
		return day
	}
	parts := strings.Split(report.Path, "/")
	if len(parts) >= 2 {
		return parts[1]
	}
	return "unknown"
}

// sortNewestFirst orders a day's reports so the survivor comes first.
// Recency comes from the metadata timestamp, falling back to the
// backend creation time; ties break on descending path so the outcome
// is deterministic.
func sortNewestFirst(group []core.ReportArtifact) {
	sort.SliceStable(group, func(i, j int) bool {
		a, b := reportTime(group[i]), reportTime(group[j])
		if !a.Equal(b) {
			return a.After(b)
		}
		return group[i].Path > group[j].Path
	})
}

func reportTime(report core.ReportArtifact) time.Time {
	if raw := report.Metadata[core.MetaTimestamp]; raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			return ts
		}
	}
	return report.Created
}
