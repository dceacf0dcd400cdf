// Package vectorindex stores report chunk embeddings as filterable
// datapoints and answers nearest-neighbor queries over them.
//
// The Index interface abstracts the actual index service. Two
// implementations exist: Qdrant for a live index and Simulated for an
// explicit, observable simulation mode used when no index is
// configured. The mode is carried on every upsert result so simulated
// writes are never mistaken for real persistence.
package vectorindex

import (
	"context"

	"github.com/poiesic/reportpipe/core"
)

// Index operating modes.
const (
	ModeReal       = "real"
	ModeSimulation = "simulation"
)

// Index is a vector index backend.
// Implementations must be thread-safe.
type Index interface {
	// Mode reports whether writes reach a live index ("real") or a
	// local substitute ("simulation").
	Mode() string

	// Upsert inserts or replaces datapoints by id.
	Upsert(ctx context.Context, datapoints []core.Datapoint) error

	// Query returns up to k nearest neighbors of vector. Filters are
	// restrict-equality: only datapoints whose restricts allow every
	// filter value are eligible, regardless of similarity.
	Query(ctx context.Context, vector []float32, filters []core.Restrict, k int) ([]core.Neighbor, error)

	// Close releases backend resources.
	Close() error
}
