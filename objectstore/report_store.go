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


package objectstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/poiesic/reportpipe/core"
)

// SourceName is recorded in the metadata of every uploaded report.
const SourceName = "reportpipe"

// ReportStore implements the report document operations on top of a
// Backend: deterministic-path upload with metadata, recency-ordered
// listing, download and idempotent delete.
type ReportStore struct {
	backend Backend
	logger  *slog.Logger
}

// StoreOption configures a ReportStore.
type StoreOption func(*ReportStore)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *ReportStore) {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
	}
}

// NewReportStore creates a ReportStore over the given backend.
func NewReportStore(backend Backend, opts ...StoreOption) (*ReportStore, error) {
	if backend == nil {
		return nil, fmt.Errorf("%w: object store backend required", core.ErrConfiguration)
	}

	s := &ReportStore{
		backend: backend,
		logger:  slog.Default().With("component", "report-store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Upload stores a local HTML report under the deterministic path
// {entity-normalized}/{YYYY-MM-DD}/{HH-MM-SS}.html. A zero timestamp
// means now. Failures are carried in the result (Success=false plus
// Error) rather than returned, so callers can record partial failure
// without special-casing.
func (s *ReportStore) Upload(ctx context.Context, localPath, entity string, timestamp time.Time) *core.UploadResult {
	content, err := os.ReadFile(localPath)
	if err != nil {
		s.logger.Error("report file not readable", "path", localPath, "err", err)
		return &core.UploadResult{
			Entity: entity,
			Error:  fmt.Sprintf("%v: report file %s: %v", core.ErrNotFound, localPath, err),
		}
	}

	if timestamp.IsZero() {
		timestamp = time.Now()
	}
	date := timestamp.Format(core.DateLayout)
	path := core.ReportPathAt(entity, timestamp)

	metadata := map[string]string{
		core.MetaCompany:   entity,
		core.MetaDate:      date,
		core.MetaTimestamp: timestamp.Format(time.RFC3339),
		core.MetaFormat:    core.FormatHTML,
		core.MetaSource:    SourceName,
		core.MetaFileSize:  strconv.Itoa(len(content)),
	}

	if err := s.backend.Put(ctx, path, content, "text/html", metadata); err != nil {
		s.logger.Error("report upload failed", "entity", entity, "path", path, "err", err)
		return &core.UploadResult{
			Entity: entity,
			Error:  fmt.Sprintf("%v: %v", core.ErrStorage, err),
		}
	}

	s.logger.Info("report uploaded", "entity", entity, "path", path, "size", len(content))
	return &core.UploadResult{
		Success:   true,
		Path:      path,
		URL:       s.backend.URL(path),
		Entity:    entity,
		Date:      date,
		Timestamp: timestamp.Format(time.RFC3339),
		Size:      len(content),
		Metadata:  metadata,
	}
}

// ListReports returns all stored reports for an entity, newest first
// by backend creation time; reports with unknown creation time sort
// last. An optional dateFilter (YYYY-MM-DD) restricts the listing to
// one day.
func (s *ReportStore) ListReports(ctx context.Context, entity, dateFilter string) ([]core.ReportArtifact, error) {
	prefix := core.NormalizeEntity(entity) + "/"
	if dateFilter != "" {
		prefix += dateFilter + "/"
	}

	listed, err := s.backend.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", core.ErrStorage, prefix, err)
	}

	reports := listed[:0]
	for _, artifact := range listed {
		if strings.HasSuffix(artifact.Path, ".html") {
			reports = append(reports, artifact)
		}
	}

	sort.SliceStable(reports, func(i, j int) bool {
		a, b := reports[i].Created, reports[j].Created
		switch {
		case a.IsZero():
			return false
		case b.IsZero():
			return true
		default:
			return a.After(b)
		}
	})

	s.logger.Debug("listed reports", "entity", entity, "date_filter", dateFilter, "count", len(reports))
	return reports, nil
}

// GetLatestForDay returns the most recent report for an entity and
// day, or nil when none exists.
func (s *ReportStore) GetLatestForDay(ctx context.Context, entity, date string) (*core.ReportArtifact, error) {
	reports, err := s.ListReports(ctx, entity, date)
	if err != nil {
		return nil, err
	}
	if len(reports) == 0 {
		return nil, nil
	}
	return &reports[0], nil
}

// Download copies a stored report to a local file, creating parent
// directories as needed.
func (s *ReportStore) Download(ctx context.Context, path, localPath string) error {
	content, err := s.backend.Get(ctx, path)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return err
		}
		return fmt.Errorf("%w: download %s: %v", core.ErrStorage, path, err)
	}

	if dir := filepath.Dir(localPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: %v", core.ErrStorage, err)
		}
	}
	if err := os.WriteFile(localPath, content, 0o644); err != nil {
		return fmt.Errorf("%w: %v", core.ErrStorage, err)
	}

	s.logger.Info("report downloaded", "path", path, "local_path", localPath)
	return nil
}

// Delete removes a stored report. Deleting an already-absent report is
// treated as success.
func (s *ReportStore) Delete(ctx context.Context, path string) error {
	err := s.backend.Delete(ctx, path)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			s.logger.Warn("report already absent on delete", "path", path)
			return nil
		}
		return fmt.Errorf("%w: delete %s: %v", core.ErrStorage, path, err)
	}

	s.logger.Info("report deleted", "path", path)
	return nil
}

// Close releases the underlying backend.
func (s *ReportStore) Close() error {
	return s.backend.Close()
}
