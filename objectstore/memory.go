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
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/poiesic/reportpipe/core"
)

type memoryObject struct {
	data        []byte
	contentType string
	metadata    map[string]string
	created     time.Time
	updated     time.Time
}

// MemoryBackend is an in-memory Backend for tests and local runs.
// Objects live in a map guarded by a mutex; creation times are
// recorded on first write and preserved across overwrites.
type MemoryBackend struct {
	mu      sync.RWMutex
	bucket  string
	objects map[string]memoryObject

	// now is replaceable so tests can control recorded creation times.
	now func() time.Time
}

// NewMemoryBackend creates an empty in-memory backend. The bucket name
// only affects generated URLs.
func NewMemoryBackend(bucket string) *MemoryBackend {
	return &MemoryBackend{
		bucket:  bucket,
		objects: make(map[string]memoryObject),
		now:     time.Now,
	}
}

// SetClock replaces the time source used for creation timestamps.
func (m *MemoryBackend) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Put writes an object, overwriting any existing object at path.
func (m *MemoryBackend) Put(ctx context.Context, path string, data []byte, contentType string, metadata map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	obj := memoryObject{
		data:        append([]byte(nil), data...),
		contentType: contentType,
		metadata:    maps.Clone(metadata),
		created:     now,
		updated:     now,
	}
	if existing, ok := m.objects[path]; ok {
		obj.created = existing.created
	}
	m.objects[path] = obj
	return nil
}

// Get reads an object's content.
func (m *MemoryBackend) Get(ctx context.Context, path string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrNotFound, path)
	}
	return append([]byte(nil), obj.data...), nil
}

// List returns all objects under prefix with their metadata.
func (m *MemoryBackend) List(ctx context.Context, prefix string) ([]core.ReportArtifact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var artifacts []core.ReportArtifact
	for path, obj := range m.objects {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		artifacts = append(artifacts, core.ReportArtifact{
			Path:     path,
			URL:      m.URL(path),
			Size:     int64(len(obj.data)),
			Created:  obj.created,
			Updated:  obj.updated,
			Metadata: maps.Clone(obj.metadata),
		})
	}
	return artifacts, nil
}

// Delete removes an object, returning core.ErrNotFound if absent.
func (m *MemoryBackend) Delete(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.objects[path]; !ok {
		return fmt.Errorf("%w: %s", core.ErrNotFound, path)
	}
	delete(m.objects, path)
	return nil
}

// URL returns a mem:// URL for the object path.
func (m *MemoryBackend) URL(path string) string {
	return fmt.Sprintf("mem://%s/%s", m.bucket, path)
}

// Close is a no-op for the in-memory backend.
func (m *MemoryBackend) Close() error { return nil }

// Len returns the number of stored objects.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

var _ Backend = (*MemoryBackend)(nil)
