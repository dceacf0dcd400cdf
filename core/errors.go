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

import "errors"

// Error kinds shared across the pipeline. Wrap with fmt.Errorf("%w: ...")
// so callers can classify failures with errors.Is.
var (
	// ErrNotFound indicates a missing local file or remote object.
	// Often non-fatal: deleting an absent object is treated as success.
	ErrNotFound = errors.New("not found")

	// ErrConfiguration indicates required settings are absent.
	// Fatal at startup; construction fails rather than degrading silently.
	ErrConfiguration = errors.New("configuration error")

	// ErrStorage indicates an object store upload, download, list or
	// delete failure.
	ErrStorage = errors.New("storage error")

	// ErrEmbedding indicates a batch embedding call failed. The whole
	// batch fails together; there are no partial-batch embeddings.
	ErrEmbedding = errors.New("embedding error")

	// ErrVectorIndex indicates a vector index upsert or query failure.
	ErrVectorIndex = errors.New("vector index error")

	// ErrDeduplication indicates a listing or delete failure during a
	// deduplication pass.
	ErrDeduplication = errors.New("deduplication error")
)
