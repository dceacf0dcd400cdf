package vectorindex

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/reportpipe/core"
)

// textPreviewLimit bounds the text stored in datapoint metadata; index
// payloads are not meant to carry whole documents.
const textPreviewLimit = 500

// Client builds datapoints from embedded chunks and manages them in an
// Index backend.
type Client struct {
	index  Index
	logger *slog.Logger

	// now is replaceable so tests can pin indexed_at timestamps.
	now func() time.Time
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientLogger sets a custom logger.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
	}
}

// NewClient creates a Client over the given index backend.
func NewClient(index Index, opts ...ClientOption) (*Client, error) {
	if index == nil {
		return nil, fmt.Errorf("%w: vector index backend required", core.ErrConfiguration)
	}

	c := &Client{
		index:  index,
		logger: slog.Default().With("component", "vector-index-client"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Mode reports the underlying index mode ("real" or "simulation").
func (c *Client) Mode() string { return c.index.Mode() }

// CreateDatapoint constructs a datapoint for one embedded chunk. Pure
// construction, no I/O. The id is deterministic for (entity, date,
// timestamp, chunkIndex); restricts cover company, date and format;
// the crowding tag groups all chunks of the same logical report.
func (c *Client) CreateDatapoint(
	vector []float32,
	entity, date, timestamp, sourcePath string,
	chunkIndex int,
	text string,
	extraMetadata map[string]string,
) core.Datapoint {
	metadata := map[string]string{
		core.MetaCompany:   entity,
		core.MetaDate:      date,
		core.MetaTimestamp: timestamp,
		core.MetaFormat:    core.FormatHTML,
		"source_path":      sourcePath,
		"chunk_id":         fmt.Sprintf("%d", chunkIndex),
		"indexed_at":       c.now().UTC().Format(time.RFC3339),
	}
	if text != "" {
		preview := text
		if len([]rune(preview)) > textPreviewLimit {
			preview = string([]rune(preview)[:textPreviewLimit]) + "..."
		}
		metadata["text_preview"] = preview
	}
	for k, v := range extraMetadata {
		metadata[k] = v
	}

	return core.Datapoint{
		ID:     core.DatapointID(entity, date, timestamp, chunkIndex),
		Vector: vector,
		Restricts: []core.Restrict{
			{Namespace: core.MetaCompany, AllowList: []string{entity}},
			{Namespace: core.MetaDate, AllowList: []string{date}},
			{Namespace: core.MetaFormat, AllowList: []string{core.FormatHTML}},
		},
		CrowdingTag: core.CrowdingTag(entity, date),
		Metadata:    metadata,
	}
}

// UpsertBatch writes datapoints to the index. The outcome, including
// the index mode, is carried in the result so simulated writes stay
// observable in run records.
func (c *Client) UpsertBatch(ctx context.Context, datapoints []core.Datapoint) *core.UpsertResult {
	if len(datapoints) == 0 {
		return &core.UpsertResult{Success: true, Mode: c.index.Mode(), UpsertedAt: c.now().UTC()}
	}

	if err := c.index.Upsert(ctx, datapoints); err != nil {
		c.logger.Error("error upserting datapoints", "count", len(datapoints), "err", err)
		return &core.UpsertResult{
			Count: len(datapoints),
			Mode:  c.index.Mode(),
			Error: err.Error(),
		}
	}

	ids := make([]string, len(datapoints))
	for i, dp := range datapoints {
		ids[i] = dp.ID
	}

	c.logger.Info("upserted datapoints", "count", len(datapoints), "mode", c.index.Mode())
	return &core.UpsertResult{
		Success:    true,
		Count:      len(datapoints),
		IDs:        ids,
		Mode:       c.index.Mode(),
		UpsertedAt: c.now().UTC(),
	}
}

// ProcessEmbeddingResult maps every embedded chunk of a successful
// embedding result to a datapoint and upserts them in one batch. An
// upstream embedding failure fails the whole call; nothing is written.
func (c *Client) ProcessEmbeddingResult(ctx context.Context, result *core.EmbeddingResult, sourcePath string) *core.UpsertResult {
	if result == nil || !result.Success {
		reason := "embedding result missing"
		if result != nil && result.Error != "" {
			reason = result.Error
		}
		return &core.UpsertResult{
			Mode:  c.index.Mode(),
			Error: fmt.Sprintf("%v: upstream embedding failed: %s", core.ErrVectorIndex, reason),
		}
	}

	date := result.Metadata[core.MetaDate]
	if date == "" {
		date = c.now().Format(core.DateLayout)
	}
	timestamp := result.Metadata[core.MetaTimestamp]
	if timestamp == "" {
		timestamp = c.now().Format(time.RFC3339)
	}

	datapoints := make([]core.Datapoint, len(result.Chunks))
	for i, chunk := range result.Chunks {
		datapoints[i] = c.CreateDatapoint(
			chunk.Vector,
			result.Entity,
			date,
			timestamp,
			sourcePath,
			chunk.Index,
			chunk.Text,
			map[string]string{
				"text_length":  fmt.Sprintf("%d", chunk.Length),
				"total_chunks": fmt.Sprintf("%d", result.NumChunks),
			},
		)
	}

	return c.UpsertBatch(ctx, datapoints)
}

// QuerySimilar returns up to k neighbors of the query vector. Entity
// and date filters, when non-empty, are applied as restrict-equality:
// non-matching datapoints are ineligible regardless of similarity.
func (c *Client) QuerySimilar(ctx context.Context, vector []float32, entityFilter, dateFilter string, k int) ([]core.Neighbor, error) {
	var filters []core.Restrict
	if entityFilter != "" {
		filters = append(filters, core.Restrict{Namespace: core.MetaCompany, AllowList: []string{entityFilter}})
	}
	if dateFilter != "" {
		filters = append(filters, core.Restrict{Namespace: core.MetaDate, AllowList: []string{dateFilter}})
	}

	neighbors, err := c.index.Query(ctx, vector, filters, k)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrVectorIndex, err)
	}

	c.logger.Debug("similarity query completed", "neighbors", len(neighbors),
		"entity_filter", entityFilter, "date_filter", dateFilter)
	return neighbors, nil
}

// Close releases the underlying index backend.
func (c *Client) Close() error {
	return c.index.Close()
}
