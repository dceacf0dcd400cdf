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


package reportpipe

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/reportpipe/ai"
	"github.com/poiesic/reportpipe/ai/mock"
	"github.com/poiesic/reportpipe/ai/openai"
	"github.com/poiesic/reportpipe/core"
	"github.com/poiesic/reportpipe/dedup"
	"github.com/poiesic/reportpipe/embedding"
	"github.com/poiesic/reportpipe/ledger"
	"github.com/poiesic/reportpipe/ledger/badgerstore"
	ledgerfile "github.com/poiesic/reportpipe/ledger/file"
	"github.com/poiesic/reportpipe/objectstore"
	"github.com/poiesic/reportpipe/objectstore/s3"
	"github.com/poiesic/reportpipe/pipeline"
	"github.com/poiesic/reportpipe/vectorindex"
)

// Config selects and configures the component implementations.
type Config struct {
	// Storage selects the object store backend: "s3" or "memory".
	Storage   string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string

	// Embedding provider settings. MockEmbedder selects the
	// deterministic offline embedder instead of the HTTP provider.
	EmbeddingHost      string
	EmbeddingModel     string
	EmbeddingDimension int
	MockEmbedder       bool

	// QdrantURL empty selects the simulated vector index.
	QdrantURL        string
	QdrantAPIKey     string
	QdrantCollection string

	// LedgerBackend selects ledger persistence: "file" or "badger".
	LedgerBackend string
	LedgerPath    string

	DedupeEnabled bool
}

// System holds a fully wired pipeline and its components.
type System struct {
	Orchestrator *pipeline.Orchestrator
	Store        *objectstore.ReportStore
	Embedder     ai.Embedder
	Vectors      *vectorindex.Client
	Deduper      *dedup.Manager
	Ledger       ledger.Store

	logger *slog.Logger
}

// New wires all pipeline components according to cfg.
func New(cfg *Config) (*System, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config required", core.ErrConfiguration)
	}

	backend, err := newBackend(cfg)
	if err != nil {
		return nil, err
	}

	store, err := objectstore.NewReportStore(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	embedder, err := newEmbedder(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	generator, err := embedding.NewGenerator(embedder, cfg.EmbeddingDimension)
	if err != nil {
		store.Close()
		return nil, err
	}

	index, err := newIndex(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	vectors, err := vectorindex.NewClient(index)
	if err != nil {
		index.Close()
		store.Close()
		return nil, err
	}

	deduper, err := dedup.NewManager(store)
	if err != nil {
		vectors.Close()
		store.Close()
		return nil, err
	}

	ledgerStore, err := newLedgerStore(cfg)
	if err != nil {
		vectors.Close()
		store.Close()
		return nil, err
	}

	orchestrator, err := pipeline.NewOrchestrator(store, generator, vectors, deduper, ledgerStore,
		pipeline.WithDeduplication(cfg.DedupeEnabled))
	if err != nil {
		ledgerStore.Close()
		vectors.Close()
		store.Close()
		return nil, err
	}

	return &System{
		Orchestrator: orchestrator,
		Store:        store,
		Embedder:     embedder,
		Vectors:      vectors,
		Deduper:      deduper,
		Ledger:       ledgerStore,
		logger:       slog.Default(),
	}, nil
}

// Close releases all components. Errors are logged; the last one is
// returned.
func (s *System) Close() error {
	s.Orchestrator.Release()

	var last error
	if err := s.Ledger.Close(); err != nil {
		s.logger.Error("error closing ledger store", "err", err)
		last = err
	}
	if err := s.Vectors.Close(); err != nil {
		s.logger.Error("error closing vector index", "err", err)
		last = err
	}
	if err := s.Store.Close(); err != nil {
		s.logger.Error("error closing report store", "err", err)
		last = err
	}
	return last
}

func newBackend(cfg *Config) (objectstore.Backend, error) {
	switch cfg.Storage {
	case "memory":
		bucket := cfg.Bucket
		if bucket == "" {
			bucket = "reportpipe"
		}
		return objectstore.NewMemoryBackend(bucket), nil
	case "s3", "":
		return s3.NewBackend(context.Background(), &s3.Config{
			Region:    cfg.Region,
			Bucket:    cfg.Bucket,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
		})
	default:
		return nil, fmt.Errorf("%w: unknown storage backend %q", core.ErrConfiguration, cfg.Storage)
	}
}

func newEmbedder(cfg *Config) (ai.Embedder, error) {
	if cfg.MockEmbedder {
		return &mock.Embedder{Dimension: cfg.EmbeddingDimension}, nil
	}
	return openai.NewEmbedder(ai.NewConfig(
		ai.WithHost(cfg.EmbeddingHost),
		ai.WithModel(cfg.EmbeddingModel),
		ai.WithDimension(cfg.EmbeddingDimension),
	))
}

func newIndex(cfg *Config) (vectorindex.Index, error) {
	if cfg.QdrantURL == "" {
		slog.Warn("no vector index configured, running in simulation mode")
		return vectorindex.NewSimulated(), nil
	}
	return vectorindex.NewQdrant(vectorindex.QdrantConfig{
		BaseURL:    cfg.QdrantURL,
		APIKey:     cfg.QdrantAPIKey,
		Collection: cfg.QdrantCollection,
	})
}

func newLedgerStore(cfg *Config) (ledger.Store, error) {
	switch cfg.LedgerBackend {
	case "badger":
		return badgerstore.Open(cfg.LedgerPath, false)
	case "file", "":
		return ledgerfile.NewStore(cfg.LedgerPath)
	default:
		return nil, fmt.Errorf("%w: unknown ledger backend %q", core.ErrConfiguration, cfg.LedgerBackend)
	}
}
