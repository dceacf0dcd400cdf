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


package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/poiesic/reportpipe"
	"github.com/poiesic/reportpipe/core"
	"github.com/poiesic/reportpipe/pipeline"
)

func main() {
	app := &cli.App{
		Name:  "reportpipe",
		Usage: "Ingest HTML entity reports into object storage and a vector index",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Path to a .env file with credentials (optional)",
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			{
				Name:      "process",
				Usage:     "Run one report through the full pipeline",
				ArgsUsage: "<report.html>",
				Action:    processCommand,
				Flags: append(stackFlags(),
					&cli.StringFlag{
						Name:     "entity",
						Aliases:  []string{"e"},
						Usage:    "Entity the report belongs to",
						Required: true,
					},
					&cli.TimestampFlag{
						Name:   "timestamp",
						Usage:  "Report timestamp (RFC 3339, defaults to now)",
						Layout: time.RFC3339,
					},
				),
			},
			{
				Name:      "batch",
				Usage:     "Process several reports listed in a JSON manifest",
				ArgsUsage: "<manifest.json>",
				Action:    batchCommand,
				Flags:     stackFlags(),
			},
			{
				Name:   "dedupe",
				Usage:  "Remove superseded same-day reports for an entity",
				Action: dedupeCommand,
				Flags: append(stackFlags(),
					&cli.StringFlag{
						Name:     "entity",
						Aliases:  []string{"e"},
						Usage:    "Entity to deduplicate",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "date",
						Usage: "Restrict the pass to one day (YYYY-MM-DD)",
					},
				),
			},
			{
				Name:   "status",
				Usage:  "Print pipeline health and ledger statistics",
				Action: statusCommand,
				Flags:  stackFlags(),
			},
			{
				Name:      "query",
				Usage:     "Find report chunks similar to a text query",
				ArgsUsage: "<query text>",
				Action:    queryCommand,
				Flags: append(stackFlags(),
					&cli.StringFlag{
						Name:    "entity",
						Aliases: []string{"e"},
						Usage:   "Restrict results to one entity",
					},
					&cli.StringFlag{
						Name:  "date",
						Usage: "Restrict results to one day (YYYY-MM-DD)",
					},
					&cli.IntFlag{
						Name:  "top-k",
						Usage: "Number of neighbors to return",
						Value: 5,
					},
				),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// stackFlags are shared by every command that builds the component stack.
func stackFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "storage",
			Usage: "Object store backend (s3, memory)",
			Value: "s3",
		},
		&cli.StringFlag{
			Name:    "bucket",
			Usage:   "Object store bucket name",
			EnvVars: []string{"REPORTPIPE_BUCKET"},
		},
		&cli.StringFlag{
			Name:    "region",
			Usage:   "Object store region",
			EnvVars: []string{"REPORTPIPE_REGION"},
		},
		&cli.StringFlag{
			Name:  "embedding-host",
			Usage: "Embedding service host URL",
			Value: "http://localhost:11434/v1",
		},
		&cli.StringFlag{
			Name:  "embedding-model",
			Usage: "Embedding model name",
			Value: "embeddinggemma",
		},
		&cli.IntFlag{
			Name:  "embedding-dimension",
			Usage: "Embedding vector dimension",
			Value: 768,
		},
		&cli.BoolFlag{
			Name:  "mock-embedder",
			Usage: "Use the deterministic offline embedder",
		},
		&cli.StringFlag{
			Name:    "qdrant-url",
			Usage:   "Qdrant base URL; empty selects simulation mode",
			EnvVars: []string{"REPORTPIPE_QDRANT_URL"},
		},
		&cli.StringFlag{
			Name:    "qdrant-collection",
			Usage:   "Qdrant collection name",
			EnvVars: []string{"REPORTPIPE_QDRANT_COLLECTION"},
		},
		&cli.StringFlag{
			Name:  "ledger-backend",
			Usage: "Ledger persistence (file, badger)",
			Value: "file",
		},
		&cli.StringFlag{
			Name:  "ledger-path",
			Usage: "Directory for ledger files or the Badger database",
			Value: "./ledger",
		},
		&cli.BoolFlag{
			Name:  "no-dedupe",
			Usage: "Skip the deduplication stage",
		},
	}
}

func buildConfig(c *cli.Context) *reportpipe.Config {
	return &reportpipe.Config{
		Storage:            c.String("storage"),
		Bucket:             c.String("bucket"),
		Region:             c.String("region"),
		AccessKey:          os.Getenv("REPORTPIPE_ACCESS_KEY"),
		SecretKey:          os.Getenv("REPORTPIPE_SECRET_KEY"),
		EmbeddingHost:      c.String("embedding-host"),
		EmbeddingModel:     c.String("embedding-model"),
		EmbeddingDimension: c.Int("embedding-dimension"),
		MockEmbedder:       c.Bool("mock-embedder"),
		QdrantURL:          c.String("qdrant-url"),
		QdrantAPIKey:       os.Getenv("REPORTPIPE_QDRANT_API_KEY"),
		QdrantCollection:   c.String("qdrant-collection"),
		LedgerBackend:      c.String("ledger-backend"),
		LedgerPath:         c.String("ledger-path"),
		DedupeEnabled:      !c.Bool("no-dedupe"),
	}
}

func processCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one report path argument")
	}

	system, err := reportpipe.New(buildConfig(c))
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	defer system.Close()

	timestamp := time.Time{}
	if ts := c.Timestamp("timestamp"); ts != nil {
		timestamp = *ts
	}

	run := system.Orchestrator.ProcessReport(context.Background(), c.Args().First(), c.String("entity"), timestamp)
	if err := printJSON(run); err != nil {
		return err
	}
	if !run.Success {
		return fmt.Errorf("pipeline failed at stage %s: %s", run.FailedStage, run.Error)
	}
	return nil
}

// manifestEntry is one report in a batch manifest.
type manifestEntry struct {
	Path      string    `json:"path"`
	Entity    string    `json:"entity"`
	Timestamp time.Time `json:"timestamp,omitzero"`
}

func batchCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one manifest path argument")
	}

	data, err := os.ReadFile(c.Args().First())
	if err != nil {
		return fmt.Errorf("failed to read manifest: %w", err)
	}
	var entries []manifestEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("failed to parse manifest: %w", err)
	}
	if len(entries) == 0 {
		return fmt.Errorf("manifest names no reports")
	}

	system, err := reportpipe.New(buildConfig(c))
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	defer system.Close()

	requests := make([]pipeline.ReportRequest, len(entries))
	for i, entry := range entries {
		requests[i] = pipeline.ReportRequest{
			Path:      entry.Path,
			Entity:    entry.Entity,
			Timestamp: entry.Timestamp,
		}
	}

	runs := system.Orchestrator.ProcessReports(context.Background(), requests)
	if err := printJSON(runs); err != nil {
		return err
	}

	failed := 0
	for _, run := range runs {
		if !run.Success {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d reports failed", failed, len(runs))
	}
	return nil
}

func dedupeCommand(c *cli.Context) error {
	system, err := reportpipe.New(buildConfig(c))
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	defer system.Close()

	record := system.Deduper.DeduplicateEntity(context.Background(), c.String("entity"), c.String("date"))
	if err := system.Ledger.AppendDeduplication(context.Background(), record); err != nil {
		slog.Error("error appending deduplication record", "err", err)
	}
	if err := printJSON(record); err != nil {
		return err
	}
	if !record.Success {
		return fmt.Errorf("deduplication failed: %s", record.Error)
	}
	return nil
}

func statusCommand(c *cli.Context) error {
	system, err := reportpipe.New(buildConfig(c))
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	defer system.Close()

	stats, err := system.Orchestrator.Statistics(context.Background())
	if err != nil {
		return fmt.Errorf("failed to read statistics: %w", err)
	}

	return printJSON(map[string]any{
		"health":     system.Orchestrator.HealthCheck(),
		"statistics": stats,
	})
}

func queryCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one query text argument")
	}

	system, err := reportpipe.New(buildConfig(c))
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	defer system.Close()

	ctx := context.Background()
	vector, err := system.Embedder.EmbedText(ctx, c.Args().First())
	if err != nil {
		return fmt.Errorf("failed to embed query: %w", err)
	}

	neighbors, err := system.Vectors.QuerySimilar(ctx, vector, c.String("entity"), c.String("date"), c.Int("top-k"))
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	if len(neighbors) == 0 {
		fmt.Fprintln(os.Stderr, "no matching report chunks")
		return nil
	}

	for _, neighbor := range neighbors {
		fmt.Printf("%.4f  %s\n", neighbor.Score, neighbor.ID)
		if preview := neighbor.Metadata["text_preview"]; preview != "" {
			fmt.Printf("        %s\n", preview)
		}
		if company := neighbor.Metadata[core.MetaCompany]; company != "" {
			fmt.Printf("        entity=%s date=%s\n", company, neighbor.Metadata[core.MetaDate])
		}
	}
	return nil
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func setup(c *cli.Context) error {
	if envFile := c.String("env-file"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(c.String("log-level"))

	// Map string to slog.Level
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	// Configure slog with the specified level
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
