// Package badgerstore persists ledger documents in BadgerDB. The
// documents are the same JSON as the file store, kept under fixed keys,
// so either store can be read by the same tooling.
package badgerstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/poiesic/reportpipe/core"
	"github.com/poiesic/reportpipe/ledger"
)

var (
	runsKey  = []byte("ledger:pipeline_runs")
	dedupKey = []byte("ledger:deduplication")
)

// Store is a Badger-backed ledger store.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

var _ ledger.Store = (*Store)(nil)

// badgerLoggerAdapter adapts slog.Logger to the badger.Logger interface.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Info(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// Open opens a Badger-backed store at filePath, creating the directory
// if needed. With inMemory set, no files are written; used in tests.
func Open(filePath string, inMemory bool) (*Store, error) {
	var opts badger.Options

	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if filePath == "" {
			return nil, fmt.Errorf("%w: ledger path required", core.ErrConfiguration)
		}
		if err := os.MkdirAll(filePath, 0o755); err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrStorage, err)
		}
		opts = badger.DefaultOptions(filePath)
	}

	logger := slog.Default().With("component", "ledger-badger")
	opts.Logger = &badgerLoggerAdapter{logger: logger}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: open ledger db: %v", core.ErrStorage, err)
	}

	return &Store{db: db, logger: logger}, nil
}

// AppendRun adds a pipeline run to the run ledger.
func (s *Store) AppendRun(ctx context.Context, run *core.PipelineRun) error {
	return s.db.Update(func(tx *badger.Txn) error {
		doc := ledger.NewRunDocument()
		if err := loadDocument(tx, runsKey, doc); err != nil {
			return err
		}
		doc.Append(run)
		return saveDocument(tx, runsKey, doc)
	})
}

// RunDocument returns the current run ledger document.
func (s *Store) RunDocument(ctx context.Context) (*ledger.RunDocument, error) {
	doc := ledger.NewRunDocument()
	err := s.db.View(func(tx *badger.Txn) error {
		return loadDocument(tx, runsKey, doc)
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// AppendDeduplication adds a record to the dedup ledger.
func (s *Store) AppendDeduplication(ctx context.Context, record *core.DeduplicationRecord) error {
	return s.db.Update(func(tx *badger.Txn) error {
		doc := ledger.NewDedupDocument()
		if err := loadDocument(tx, dedupKey, doc); err != nil {
			return err
		}
		doc.Append(record)
		return saveDocument(tx, dedupKey, doc)
	})
}

// DedupDocument returns the current dedup ledger document.
func (s *Store) DedupDocument(ctx context.Context) (*ledger.DedupDocument, error) {
	doc := ledger.NewDedupDocument()
	err := s.db.View(func(tx *badger.Txn) error {
		return loadDocument(tx, dedupKey, doc)
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// loadDocument fills doc from a stored key; a missing key leaves doc
// as the fresh document it already is.
func loadDocument(tx *badger.Txn, key []byte, doc any) error {
	item, err := tx.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return fmt.Errorf("%w: read ledger: %v", core.ErrStorage, err)
	}
	return item.Value(func(val []byte) error {
		if err := json.Unmarshal(val, doc); err != nil {
			return fmt.Errorf("%w: parse ledger: %v", core.ErrStorage, err)
		}
		return nil
	})
}

func saveDocument(tx *badger.Txn, key []byte, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: encode ledger: %v", core.ErrStorage, err)
	}
	if err := tx.Set(key, data); err != nil {
		return fmt.Errorf("%w: write ledger: %v", core.ErrStorage, err)
	}
	return nil
}
