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


// Package objectstore persists report documents under deterministic
// structured paths with attached metadata.
//
// The Backend interface abstracts the actual object storage so the
// ReportStore logic works the same against S3 (see the s3 subpackage)
// or the in-memory backend used in tests.
package objectstore

import (
	"context"

	"github.com/poiesic/reportpipe/core"
)

// Backend defines low-level interactions with an object storage
// service. Implementations must be thread-safe and return
// core.ErrNotFound (wrapped) for absent objects.
type Backend interface {
	// Put writes an object, overwriting any existing object at path.
	Put(ctx context.Context, path string, data []byte, contentType string, metadata map[string]string) error

	// Get reads an object's content.
	Get(ctx context.Context, path string) ([]byte, error)

	// List returns all objects whose path starts with prefix,
	// including their metadata. Order is unspecified.
	List(ctx context.Context, prefix string) ([]core.ReportArtifact, error)

	// Delete removes an object. Deleting an absent object returns
	// core.ErrNotFound; callers decide whether that is fatal.
	Delete(ctx context.Context, path string) error

	// URL returns the externally usable URL for an object path.
	URL(path string) string

	// Close releases backend resources.
	Close() error
}
