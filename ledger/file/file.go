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


// Package file persists ledger documents as JSON files on disk.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/poiesic/reportpipe/core"
	"github.com/poiesic/reportpipe/ledger"
)

const (
	runsFileName  = "pipeline_runs.json"
	dedupFileName = "deduplication.json"
)

// Store keeps the two ledger documents as JSON files in one directory.
// Appends read, modify and rewrite the whole file under a mutex; the
// documents are bounded, so the files stay small.
type Store struct {
	mu  sync.Mutex
	dir string
}

var _ ledger.Store = (*Store)(nil)

// NewStore creates a file-backed ledger store rooted at dir, creating
// the directory if needed.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: ledger directory required", core.ErrConfiguration)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrStorage, err)
	}
	return &Store{dir: dir}, nil
}

// AppendRun adds a pipeline run to the run ledger file.
func (s *Store) AppendRun(ctx context.Context, run *core.PipelineRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadRuns()
	if err != nil {
		return err
	}
	doc.Append(run)
	return s.save(runsFileName, doc)
}

// RunDocument returns the current run ledger document.
func (s *Store) RunDocument(ctx context.Context) (*ledger.RunDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadRuns()
}

// AppendDeduplication adds a record to the dedup ledger file.
func (s *Store) AppendDeduplication(ctx context.Context, record *core.DeduplicationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadDedup()
	if err != nil {
		return err
	}
	doc.Append(record)
	return s.save(dedupFileName, doc)
}

// DedupDocument returns the current dedup ledger document.
func (s *Store) DedupDocument(ctx context.Context) (*ledger.DedupDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadDedup()
}

// Close is a no-op; files are closed after every write.
func (s *Store) Close() error { return nil }

func (s *Store) loadRuns() (*ledger.RunDocument, error) {
	doc := ledger.NewRunDocument()
	if err := s.load(runsFileName, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *Store) loadDedup() (*ledger.DedupDocument, error) {
	doc := ledger.NewDedupDocument()
	if err := s.load(dedupFileName, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// load fills doc from a ledger file; a missing file leaves doc as the
// fresh document it already is.
func (s *Store) load(name string, doc any) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("%w: read ledger %s: %v", core.ErrStorage, name, err)
	}
	if err := json.Unmarshal(data, doc); err != nil {
		return fmt.Errorf("%w: parse ledger %s: %v", core.ErrStorage, name, err)
	}
	return nil
}

func (s *Store) save(name string, doc any) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode ledger %s: %v", core.ErrStorage, name, err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return fmt.Errorf("%w: write ledger %s: %v", core.ErrStorage, name, err)
	}
	return nil
}
