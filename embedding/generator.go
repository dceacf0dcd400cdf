// Package embedding turns a report document into a batch of embedded
// text chunks, ready for vector index upsert.
package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/poiesic/reportpipe/ai"
	"github.com/poiesic/reportpipe/chunk"
	"github.com/poiesic/reportpipe/core"
)

// Generator chunks extracted report text and embeds every chunk in one
// batch through the injected provider. All vectors of a run share the
// configured dimension; a dimension mismatch fails the whole batch.
type Generator struct {
	embedder  ai.Embedder
	chunker   *chunk.Chunker
	dimension int
	logger    *slog.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithChunker replaces the default chunker.
func WithChunker(c *chunk.Chunker) Option {
	return func(g *Generator) {
		g.chunker = c
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) {
		if logger == nil {
			logger = slog.Default()
		}
		g.logger = logger
	}
}

// NewGenerator creates a Generator. The embedder is required and
// dimension must be positive.
func NewGenerator(embedder ai.Embedder, dimension int, opts ...Option) (*Generator, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder required", core.ErrConfiguration)
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: embedding dimension must be positive, got %d", core.ErrConfiguration, dimension)
	}

	g := &Generator{
		embedder:  embedder,
		chunker:   chunk.NewDefaultChunker(),
		dimension: dimension,
		logger:    slog.Default().With("component", "embedding-generator"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Dimension returns the configured embedding dimension.
func (g *Generator) Dimension() int { return g.dimension }

// Embed generates one vector per chunk, in chunk order. The batch
// fails as a unit on provider error or on any dimension mismatch.
func (g *Generator) Embed(ctx context.Context, chunks []core.TextChunk) ([]core.EmbeddedChunk, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	g.logger.Debug("generating embeddings for chunks", "chunks", len(texts))
	vectors, err := g.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrEmbedding, err)
	}

	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("%w: embedding result mismatch. expected %d, received %d",
			core.ErrEmbedding, len(chunks), len(vectors))
	}

	embedded := make([]core.EmbeddedChunk, len(chunks))
	for i, c := range chunks {
		if len(vectors[i]) != g.dimension {
			return nil, fmt.Errorf("%w: chunk %d has dimension %d, expected %d",
				core.ErrEmbedding, c.Index, len(vectors[i]), g.dimension)
		}
		embedded[i] = core.EmbeddedChunk{TextChunk: c, Vector: vectors[i]}
	}
	return embedded, nil
}

// ProcessHTML extracts text from an HTML report, chunks it and embeds
// every chunk. The outcome is carried in the result rather than a
// returned error so callers can attach it to a run record unchanged.
func (g *Generator) ProcessHTML(ctx context.Context, htmlContent, entity string, metadata map[string]string) *core.EmbeddingResult {
	result := &core.EmbeddingResult{
		Entity:      entity,
		ProcessedAt: time.Now().UTC(),
		Metadata:    metadata,
	}

	text := chunk.ExtractText(htmlContent)
	if text == "" {
		result.Error = "no text content found in HTML"
		return result
	}
	result.TextLength = len([]rune(text))

	chunks := g.chunker.Chunk(text)
	g.logger.Info("document chunked", "entity", entity, "text_length", result.TextLength, "chunks", len(chunks))

	embedded, err := g.Embed(ctx, chunks)
	if err != nil {
		g.logger.Error("error generating embeddings", "entity", entity, "err", err)
		result.Error = err.Error()
		return result
	}

	result.Success = true
	result.NumChunks = len(embedded)
	result.Dimension = g.dimension
	result.Chunks = embedded
	return result
}

// ProcessFile reads an HTML report from disk and processes it via
// ProcessHTML, recording the source path and file size in the result
// metadata.
func (g *Generator) ProcessFile(ctx context.Context, path, entity string, metadata map[string]string) *core.EmbeddingResult {
	content, err := os.ReadFile(path)
	if err != nil {
		g.logger.Error("error reading report file", "path", path, "err", err)
		return &core.EmbeddingResult{
			Entity:      entity,
			ProcessedAt: time.Now().UTC(),
			Error:       fmt.Sprintf("%v: %v", core.ErrNotFound, err),
		}
	}

	merged := map[string]string{
		"source_file":     path,
		core.MetaFileSize: strconv.Itoa(len(content)),
	}
	for k, v := range metadata {
		merged[k] = v
	}

	return g.ProcessHTML(ctx, string(content), entity, merged)
}
