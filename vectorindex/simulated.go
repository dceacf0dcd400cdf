package vectorindex

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/poiesic/reportpipe/core"
)

// Simulated is an in-memory Index used when no live index is
// configured, and in tests. It performs real cosine-similarity search
// over its datapoints with restrict-equality filtering, but its writes
// are local only; Mode() makes that observable.
type Simulated struct {
	mu         sync.RWMutex
	datapoints map[string]core.Datapoint
}

// NewSimulated creates an empty simulated index.
func NewSimulated() *Simulated {
	return &Simulated{datapoints: make(map[string]core.Datapoint)}
}

// Mode returns ModeSimulation.
func (s *Simulated) Mode() string { return ModeSimulation }

// Upsert inserts or replaces datapoints by id.
func (s *Simulated) Upsert(ctx context.Context, datapoints []core.Datapoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, dp := range datapoints {
		s.datapoints[dp.ID] = dp
	}
	return nil
}

// Query returns up to k nearest neighbors by cosine similarity among
// datapoints matching all filters.
func (s *Simulated) Query(ctx context.Context, vector []float32, filters []core.Restrict, k int) ([]core.Neighbor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var neighbors []core.Neighbor
	for _, dp := range s.datapoints {
		if !matchesFilters(dp, filters) {
			continue
		}
		neighbors = append(neighbors, core.Neighbor{
			ID:       dp.ID,
			Score:    cosineSimilarity(vector, dp.Vector),
			Metadata: dp.Metadata,
		})
	}

	sort.SliceStable(neighbors, func(i, j int) bool {
		return neighbors[i].Score > neighbors[j].Score
	})
	if k > 0 && len(neighbors) > k {
		neighbors = neighbors[:k]
	}
	return neighbors, nil
}

// Close is a no-op for the simulated index.
func (s *Simulated) Close() error { return nil }

// Len returns the number of stored datapoints.
func (s *Simulated) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.datapoints)
}

// Get returns a stored datapoint by id.
func (s *Simulated) Get(id string) (core.Datapoint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dp, ok := s.datapoints[id]
	return dp, ok
}

var _ Index = (*Simulated)(nil)

// matchesFilters reports whether a datapoint's restricts allow every
// filter value. A filter on a namespace the datapoint does not declare
// excludes the datapoint.
func matchesFilters(dp core.Datapoint, filters []core.Restrict) bool {
	for _, f := range filters {
		allowed, found := allowList(dp, f.Namespace)
		if !found {
			return false
		}
		for _, want := range f.AllowList {
			if !contains(allowed, want) {
				return false
			}
		}
	}
	return true
}

func allowList(dp core.Datapoint, namespace string) ([]string, bool) {
	for _, r := range dp.Restricts {
		if r.Namespace == namespace {
			return r.AllowList, true
		}
	}
	return nil, false
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
