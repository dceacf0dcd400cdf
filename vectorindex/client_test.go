package vectorindex

import (
	"context"
	"testing"
	"time"

	"github.com/poiesic/reportpipe/ai/mock"
	"github.com/poiesic/reportpipe/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *Simulated) {
	t.Helper()
	index := NewSimulated()
	client, err := NewClient(index)
	require.NoError(t, err)
	return client, index
}

func TestNewClientRequiresIndex(t *testing.T) {
	_, err := NewClient(nil)
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestCreateDatapoint(t *testing.T) {
	client, _ := newTestClient(t)

	vector := mock.DeterministicVector("chunk text", 32)
	dp := client.CreateDatapoint(vector, "Acme Corp", "2024-01-01", "2024-01-01T12:00:00", "acme_corp/2024-01-01/12-00-00.html", 2, "chunk text", nil)

	assert.Equal(t, "Acme_Corp_2024-01-01_2024-01-01T12-00-00_2", dp.ID)
	assert.Equal(t, vector, dp.Vector)
	assert.Equal(t, "Acme Corp_2024-01-01", dp.CrowdingTag)
	assert.Equal(t, "Acme Corp", dp.Metadata[core.MetaCompany])
	assert.Equal(t, "2", dp.Metadata["chunk_id"])
	assert.Equal(t, "chunk text", dp.Metadata["text_preview"])
	assert.NotEmpty(t, dp.Metadata["indexed_at"])

	require.Len(t, dp.Restricts, 3)
	assert.Equal(t, core.Restrict{Namespace: "company", AllowList: []string{"Acme Corp"}}, dp.Restricts[0])
	assert.Equal(t, core.Restrict{Namespace: "date", AllowList: []string{"2024-01-01"}}, dp.Restricts[1])
	assert.Equal(t, core.Restrict{Namespace: "format", AllowList: []string{"html"}}, dp.Restricts[2])
}

func TestCreateDatapointTruncatesPreview(t *testing.T) {
	client, _ := newTestClient(t)

	long := make([]rune, 1200)
	for i := range long {
		long[i] = 'a'
	}
	dp := client.CreateDatapoint(nil, "Acme", "2024-01-01", "t", "p", 0, string(long), nil)

	preview := dp.Metadata["text_preview"]
	assert.LessOrEqual(t, len([]rune(preview)), 503)
	assert.Contains(t, preview, "...")
}

func TestUpsertBatch(t *testing.T) {
	client, index := newTestClient(t)

	dps := []core.Datapoint{
		client.CreateDatapoint(mock.DeterministicVector("a", 8), "Acme", "2024-01-01", "t1", "p", 0, "a", nil),
		client.CreateDatapoint(mock.DeterministicVector("b", 8), "Acme", "2024-01-01", "t1", "p", 1, "b", nil),
	}

	result := client.UpsertBatch(context.Background(), dps)
	require.True(t, result.Success)
	assert.Equal(t, 2, result.Count)
	assert.Len(t, result.IDs, 2)
	assert.Equal(t, ModeSimulation, result.Mode)
	assert.Equal(t, 2, index.Len())
}

func TestUpsertBatchEmpty(t *testing.T) {
	client, _ := newTestClient(t)

	result := client.UpsertBatch(context.Background(), nil)
	assert.True(t, result.Success)
	assert.Zero(t, result.Count)
	assert.Equal(t, ModeSimulation, result.Mode)
}

func TestUpsertIsIdempotentById(t *testing.T) {
	client, index := newTestClient(t)

	dp := client.CreateDatapoint(mock.DeterministicVector("a", 8), "Acme", "2024-01-01", "t1", "p", 0, "a", nil)
	require.True(t, client.UpsertBatch(context.Background(), []core.Datapoint{dp}).Success)
	require.True(t, client.UpsertBatch(context.Background(), []core.Datapoint{dp}).Success)

	assert.Equal(t, 1, index.Len())
}

func TestProcessEmbeddingResult(t *testing.T) {
	client, index := newTestClient(t)

	embRes := &core.EmbeddingResult{
		Success:   true,
		Entity:    "Acme",
		NumChunks: 2,
		Dimension: 8,
		Chunks: []core.EmbeddedChunk{
			{TextChunk: core.TextChunk{Index: 0, Text: "first", Length: 5}, Vector: mock.DeterministicVector("first", 8)},
			{TextChunk: core.TextChunk{Index: 1, Text: "second", Length: 6}, Vector: mock.DeterministicVector("second", 8)},
		},
		Metadata: map[string]string{
			core.MetaDate:      "2024-01-01",
			core.MetaTimestamp: "2024-01-01T12:00:00Z",
		},
	}

	result := client.ProcessEmbeddingResult(context.Background(), embRes, "acme/2024-01-01/12-00-00.html")
	require.True(t, result.Success, "unexpected error: %s", result.Error)
	assert.Equal(t, 2, result.Count)
	assert.Equal(t, 2, index.Len())

	dp, ok := index.Get(result.IDs[0])
	require.True(t, ok)
	assert.Equal(t, "acme/2024-01-01/12-00-00.html", dp.Metadata["source_path"])
	assert.Equal(t, "2", dp.Metadata["total_chunks"])
}

func TestProcessEmbeddingResultFailsAsUnit(t *testing.T) {
	client, index := newTestClient(t)

	result := client.ProcessEmbeddingResult(context.Background(),
		&core.EmbeddingResult{Success: false, Error: "provider down"}, "p")
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "provider down")
	assert.Zero(t, index.Len())

	result = client.ProcessEmbeddingResult(context.Background(), nil, "p")
	assert.False(t, result.Success)
}

func TestQuerySimilarFilters(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	vec := mock.DeterministicVector("query", 16)
	upsert := func(entity, date, text string, idx int) {
		dp := client.CreateDatapoint(mock.DeterministicVector(text, 16), entity, date, "t-"+text, "p", idx, text, nil)
		require.True(t, client.UpsertBatch(ctx, []core.Datapoint{dp}).Success)
	}

	upsert("Acme", "2024-01-01", "acme january", 0)
	upsert("Acme", "2024-02-01", "acme february", 0)
	upsert("Globex", "2024-01-01", "globex january", 0)

	all, err := client.QuerySimilar(ctx, vec, "", "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	// Entity filter excludes other entities regardless of similarity.
	acme, err := client.QuerySimilar(ctx, vec, "Acme", "", 10)
	require.NoError(t, err)
	require.Len(t, acme, 2)
	for _, n := range acme {
		assert.Equal(t, "Acme", n.Metadata[core.MetaCompany])
	}

	// Combined filters narrow to a single report's chunks.
	one, err := client.QuerySimilar(ctx, vec, "Acme", "2024-01-01", 10)
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "2024-01-01", one[0].Metadata[core.MetaDate])

	// k bounds the result count.
	limited, err := client.QuerySimilar(ctx, vec, "", "", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestQuerySimilarRanksBySimilarity(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	target := mock.DeterministicVector("target text", 32)
	dpExact := client.CreateDatapoint(target, "Acme", "2024-01-01", "t1", "p", 0, "target text", nil)
	dpOther := client.CreateDatapoint(mock.DeterministicVector("unrelated", 32), "Acme", "2024-01-01", "t1", "p", 1, "unrelated", nil)
	require.True(t, client.UpsertBatch(ctx, []core.Datapoint{dpExact, dpOther}).Success)

	neighbors, err := client.QuerySimilar(ctx, target, "", "", 2)
	require.NoError(t, err)
	require.Len(t, neighbors, 2)
	assert.Equal(t, dpExact.ID, neighbors[0].ID)
	assert.InDelta(t, 1.0, float64(neighbors[0].Score), 0.001)
	assert.GreaterOrEqual(t, neighbors[0].Score, neighbors[1].Score)
}

func TestSimulatedModeObservable(t *testing.T) {
	client, _ := newTestClient(t)
	assert.Equal(t, ModeSimulation, client.Mode())

	result := client.UpsertBatch(context.Background(), []core.Datapoint{{ID: "x", Vector: []float32{1}}})
	assert.Equal(t, ModeSimulation, result.Mode)
	assert.WithinDuration(t, time.Now(), result.UpsertedAt, time.Minute)
}
