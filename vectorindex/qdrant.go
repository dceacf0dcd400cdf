package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"

	"github.com/poiesic/reportpipe/core"
)

// QdrantConfig holds the settings for a live Qdrant index.
type QdrantConfig struct {
	// BaseURL of the Qdrant HTTP API, e.g. "http://localhost:6333".
	BaseURL string

	// APIKey is optional; sent as the api-key header when set.
	APIKey string

	// Collection is the target collection name.
	Collection string

	// Timeout bounds each HTTP call. Default 30s.
	Timeout time.Duration
}

// Validate checks the configuration and applies defaults.
func (c *QdrantConfig) Validate() error {
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:6333"
	}
	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")
	if c.Collection == "" {
		return fmt.Errorf("%w: qdrant collection required", core.ErrConfiguration)
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	return nil
}

// Qdrant implements Index against a Qdrant instance over its HTTP API.
type Qdrant struct {
	cfg    QdrantConfig
	client *http.Client
	logger *slog.Logger
}

// NewQdrant creates a live index client. No connection is made until
// the first call.
func NewQdrant(cfg QdrantConfig) (*Qdrant, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Qdrant{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: slog.Default().With("component", "qdrant-index"),
	}, nil
}

// Mode returns ModeReal.
func (q *Qdrant) Mode() string { return ModeReal }

// qdrantStatus supports both `status: "ok"` and `status: {"error":"..."}`.
type qdrantStatus struct {
	State string
	Error string
}

func (s *qdrantStatus) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		s.State = strings.ToLower(v)
		return nil
	}
	var obj struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	if obj.Error != "" {
		s.State = "error"
		s.Error = obj.Error
	}
	return nil
}

type qdrantEnvelope[T any] struct {
	Status qdrantStatus `json:"status"`
	Time   float64      `json:"time"`
	Result T            `json:"result"`
}

type qdrantPoint struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

type qdrantCondition struct {
	Key   string `json:"key"`
	Match struct {
		Value string `json:"value"`
	} `json:"match"`
}

type qdrantScored struct {
	ID      any            `json:"id"`
	Score   float32        `json:"score"`
	Payload map[string]any `json:"payload"`
}

// Upsert writes datapoints as Qdrant points. Qdrant point ids must be
// UUIDs, so the deterministic datapoint id is hashed into one and kept
// in the payload for callers.
func (q *Qdrant) Upsert(ctx context.Context, datapoints []core.Datapoint) error {
	if len(datapoints) == 0 {
		return nil
	}

	points := make([]qdrantPoint, len(datapoints))
	for i, dp := range datapoints {
		payload := map[string]any{
			"datapoint_id": dp.ID,
			"crowding_tag": dp.CrowdingTag,
		}
		for _, r := range dp.Restricts {
			payload[r.Namespace] = r.AllowList
		}
		if len(dp.Metadata) > 0 {
			payload["metadata"] = dp.Metadata
		}
		points[i] = qdrantPoint{ID: pointUUID(dp.ID), Vector: dp.Vector, Payload: payload}
	}

	body := map[string]any{"points": points}
	var resp qdrantEnvelope[json.RawMessage]
	url := fmt.Sprintf("%s/collections/%s/points?wait=true", q.cfg.BaseURL, q.cfg.Collection)
	if err := q.do(ctx, http.MethodPut, url, body, &resp); err != nil {
		return fmt.Errorf("%w: upsert: %v", core.ErrVectorIndex, err)
	}
	if resp.Status.State == "error" {
		return fmt.Errorf("%w: upsert: %s", core.ErrVectorIndex, resp.Status.Error)
	}

	q.logger.Debug("upserted datapoints", "count", len(points), "collection", q.cfg.Collection)
	return nil
}

// Query runs a filtered nearest-neighbor search.
func (q *Qdrant) Query(ctx context.Context, vector []float32, filters []core.Restrict, k int) ([]core.Neighbor, error) {
	body := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	if len(filters) > 0 {
		var must []qdrantCondition
		for _, f := range filters {
			for _, v := range f.AllowList {
				cond := qdrantCondition{Key: f.Namespace}
				cond.Match.Value = v
				must = append(must, cond)
			}
		}
		body["filter"] = map[string]any{"must": must}
	}

	var resp qdrantEnvelope[[]qdrantScored]
	url := fmt.Sprintf("%s/collections/%s/points/search", q.cfg.BaseURL, q.cfg.Collection)
	if err := q.do(ctx, http.MethodPost, url, body, &resp); err != nil {
		return nil, fmt.Errorf("%w: query: %v", core.ErrVectorIndex, err)
	}
	if resp.Status.State == "error" {
		return nil, fmt.Errorf("%w: query: %s", core.ErrVectorIndex, resp.Status.Error)
	}

	neighbors := make([]core.Neighbor, 0, len(resp.Result))
	for _, hit := range resp.Result {
		n := core.Neighbor{Score: hit.Score}
		if id, ok := hit.Payload["datapoint_id"].(string); ok {
			n.ID = id
		} else {
			n.ID = fmt.Sprint(hit.ID)
		}
		if meta, ok := hit.Payload["metadata"].(map[string]any); ok {
			n.Metadata = make(map[string]string, len(meta))
			for k, v := range meta {
				if s, ok := v.(string); ok {
					n.Metadata[k] = s
				}
			}
		}
		neighbors = append(neighbors, n)
	}
	return neighbors, nil
}

// Close is a no-op; the HTTP client needs no teardown.
func (q *Qdrant) Close() error { return nil }

var _ Index = (*Qdrant)(nil)

func (q *Qdrant) do(ctx context.Context, method, url string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if q.cfg.APIKey != "" {
		req.Header.Set("api-key", q.cfg.APIKey)
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("qdrant returned HTTP %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// pointUUID derives a deterministic UUID from a datapoint id, since
// Qdrant point ids must be UUIDs or unsigned integers.
func pointUUID(id string) string {
	h, _ := blake2b.New(16, nil)
	h.Write([]byte(id))
	sum := h.Sum(nil)
	sum[6] = (sum[6] & 0x0f) | 0x40 // version 4
	sum[8] = (sum[8] & 0x3f) | 0x80 // RFC 4122 variant
	return fmt.Sprintf("%x-%x-%x-%x-%x", sum[0:4], sum[4:6], sum[6:8], sum[8:10], sum[10:16])
}
