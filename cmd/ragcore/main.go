// Copyright 2026 Poiesic Systems
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
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/lexiqa/ragcore/ai"
	"github.com/lexiqa/ragcore/ai/cache"
	"github.com/lexiqa/ragcore/ai/ollama"
	"github.com/lexiqa/ragcore/ai/openai"
	"github.com/lexiqa/ragcore/config"
	"github.com/lexiqa/ragcore/consolidate"
	"github.com/lexiqa/ragcore/core"
	"github.com/lexiqa/ragcore/evals"
	"github.com/lexiqa/ragcore/ingest"
	"github.com/lexiqa/ragcore/search"
	"github.com/lexiqa/ragcore/storage/postgres"
)

func main() {
	// Missing .env is fine, the environment may be set by the shell.
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "ragcore",
		Usage: "Hybrid search core for Tunisian legal documents",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML configuration file",
				Value:   "ragcore.yaml",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "ingest",
				Usage:     "Chunk, index and embed a document",
				ArgsUsage: "<file>",
				Action:    ingestCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "title",
						Usage:    "Document title",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "citation-key",
						Usage: "Canonical citation key (e.g. loi-2025-14)",
					},
					&cli.StringFlag{
						Name:  "category",
						Usage: "Document category (legislation, jurisprudence, doctrine)",
						Value: "legislation",
					},
					&cli.StringFlag{
						Name:  "language",
						Usage: "Document language (ar, fr); detected from script when empty",
					},
					&cli.StringFlag{
						Name:  "source-url",
						Usage: "Source URL the document was fetched from",
					},
					&cli.Float64Flag{
						Name:  "quality",
						Usage: "Crawler quality score in [0, 1]",
						Value: 1.0,
					},
				},
			},
			{
				Name:   "backfill",
				Usage:  "Embed all chunks missing a vector for a provider",
				Action: backfillCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "provider",
						Aliases:  []string{"p"},
						Usage:    "Provider whose vector slot to fill",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of chunks to process in each batch",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N chunks",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed operations",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Run a hybrid search",
				ArgsUsage: "<query>",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Usage:   "Maximum number of hits (0 uses the configured limit)",
					},
					&cli.StringFlag{
						Name:    "provider",
						Aliases: []string{"p"},
						Usage:   "Pin the embedding provider, bypassing the fallback chain",
					},
					&cli.StringFlag{
						Name:  "language",
						Usage: "Query language (ar, fr); detected from script when empty",
					},
				},
			},
			{
				Name:   "approve",
				Usage:  "Approve a complete legal document and reindex its consolidated text",
				Action: approveCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "key",
						Aliases:  []string{"k"},
						Usage:    "Citation key of the legal document",
						Required: true,
					},
				},
			},
			{
				Name:      "scan-abrogations",
				Usage:     "Detect amendment references in a text and cascade them onto a legal document",
				ArgsUsage: "<file>",
				Action:    scanAbrogationsCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "target",
						Usage: "Citation key of the amended legal document",
					},
				},
			},
			{
				Name:   "eval",
				Usage:  "Run the gold-question set through the search engine",
				Action: evalCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "gold",
						Aliases:  []string{"g"},
						Usage:    "Path to the gold set YAML file",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "sample",
						Usage: "Evaluate only the first N questions (0 runs everything)",
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func ingestCommand(c *cli.Context) error {
	ctx := context.Background()

	path := c.Args().First()
	if path == "" {
		return fmt.Errorf("document file is required")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read document: %w", err)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	service, err := newEmbeddingService(cfg)
	if err != nil {
		return err
	}
	defer service.Close()

	var opts []ingest.Option
	if cfg.Ingest.PoolSize > 0 {
		opts = append(opts, ingest.WithPoolSize(cfg.Ingest.PoolSize))
	}
	pipeline, err := ingest.NewPipeline(store, store, service, opts...)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	defer pipeline.Release()

	doc, err := pipeline.IngestDocument(ctx, ingest.RawDocument{
		Title:        c.String("title"),
		CitationKey:  c.String("citation-key"),
		Category:     core.Category(c.String("category")),
		Language:     core.Language(c.String("language")),
		Content:      string(content),
		SourceURL:    c.String("source-url"),
		QualityScore: c.Float64("quality"),
	})
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	// Embedding runs on the background pool; wait so the process does not
	// exit with jobs in flight.
	pipeline.Flush()

	fmt.Fprintf(os.Stderr, "Ingested document %d (%q) as %d chunks\n",
		doc.Id, doc.Title, doc.ChunkCount)
	return nil
}

func backfillCommand(c *cli.Context) error {
	ctx := context.Background()

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	service, err := newEmbeddingService(cfg)
	if err != nil {
		return err
	}
	defer service.Close()

	backfillConfig := &ingest.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
	}
	if backfillConfig.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if backfillConfig.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if backfillConfig.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	backfiller, err := ingest.NewBackfiller(store, service, backfillConfig, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to create backfiller: %w", err)
	}

	report, err := backfiller.Run(ctx, c.String("provider"))
	if err != nil {
		return fmt.Errorf("backfill failed: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Processed %d, indexed %d, errors %d, remaining %d\n",
		report.Processed, report.Indexed, report.Errors, report.Remaining)
	return nil
}

func searchCommand(c *cli.Context) error {
	ctx := context.Background()

	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return fmt.Errorf("query is required")
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	service, err := newEmbeddingService(cfg)
	if err != nil {
		return err
	}
	defer service.Close()

	engine, err := buildEngine(ctx, cfg, store, service)
	if err != nil {
		return err
	}

	limit := c.Int("limit")
	if limit <= 0 {
		limit = cfg.Search.Limit
	}
	resp, err := engine.Search(ctx, query, search.Options{
		Limit:     limit,
		Threshold: float32(cfg.Search.Threshold),
		Language:  core.Language(c.String("language")),
		Provider:  c.String("provider"),
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if resp.Abstained {
		fmt.Printf("No answer (%s)\n", resp.AbstainReason)
		return nil
	}
	if resp.Degraded {
		fmt.Fprintln(os.Stderr, "Warning: results served on a degraded path")
	}

	fmt.Printf("Found %d hits via %s\n", len(resp.Hits), resp.Provider)
	for i, hit := range resp.Hits {
		ref := hit.CitationKey
		if ref == "" {
			ref = hit.DocumentTitle
		}
		if hit.ArticleNumber != "" {
			ref += " art. " + hit.ArticleNumber
		}
		fmt.Printf("%d: %s [%0.3f] %s\n", i+1, ref, hit.Score, hit.Snippet)
	}
	return nil
}

func approveCommand(c *cli.Context) error {
	ctx := context.Background()

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	service, err := newEmbeddingService(cfg)
	if err != nil {
		return err
	}
	defer service.Close()

	pipeline, err := ingest.NewPipeline(store, store, service)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	defer pipeline.Release()

	consolidation, err := consolidate.NewService(store, store,
		consolidate.WithReindexer(pipeline))
	if err != nil {
		return fmt.Errorf("failed to create consolidation service: %w", err)
	}

	key := c.String("key")
	doc, err := consolidation.Approve(ctx, key)
	if err != nil {
		return fmt.Errorf("approval of %s failed: %w", key, err)
	}
	pipeline.Flush()

	fmt.Fprintf(os.Stderr, "Approved %s: %d articles linked, corpus document %d\n",
		doc.CitationKey, doc.LinkedArticles(), doc.DocumentId)
	return nil
}

func scanAbrogationsCommand(c *cli.Context) error {
	ctx := context.Background()

	path := c.Args().First()
	if path == "" {
		return fmt.Errorf("text file is required")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read text: %w", err)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	consolidation, err := consolidate.NewService(store, store)
	if err != nil {
		return fmt.Errorf("failed to create consolidation service: %w", err)
	}

	result, err := consolidation.ScanAbrogations(ctx, string(content), c.String("target"))
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	fmt.Printf("Detected %d amendment references\n", len(result.Amendments))
	for _, a := range result.Amendments {
		articles := "all articles"
		if len(a.AffectedArticles) > 0 {
			articles = "articles " + strings.Join(a.AffectedArticles, ", ")
		}
		fmt.Printf("  %s: %s (%s, confidence %0.2f)\n", a.Reference, articles, a.Scope, a.Confidence)
	}
	if c.String("target") != "" {
		fmt.Printf("Recorded %d, skipped %d validated, updated %d documents\n",
			result.AmendmentsCreated, result.Skipped, result.DocumentsUpdated)
	}
	for _, e := range result.Errors {
		fmt.Fprintf(os.Stderr, "Error: %s\n", e)
	}
	return nil
}

func evalCommand(c *cli.Context) error {
	ctx := context.Background()

	goldSet, err := loadGoldSet(c.String("gold"))
	if err != nil {
		return err
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	service, err := newEmbeddingService(cfg)
	if err != nil {
		return err
	}
	defer service.Close()

	engine, err := buildEngine(ctx, cfg, store, service)
	if err != nil {
		return err
	}
	harness, err := evals.NewHarness(engine, store)
	if err != nil {
		return fmt.Errorf("failed to create harness: %w", err)
	}

	run, err := harness.Run(ctx, goldSet, c.Int("sample"))
	if err != nil {
		return fmt.Errorf("eval run failed: %w", err)
	}

	fmt.Printf("Run %s: %d questions, %d errors\n", run.Id, run.SampleSize, run.Errors)
	fmt.Printf("  recall@5            %0.3f\n", run.Aggregate.RecallAt5)
	fmt.Printf("  precision@5         %0.3f\n", run.Aggregate.PrecisionAt5)
	fmt.Printf("  MRR                 %0.3f\n", run.Aggregate.MRR)
	fmt.Printf("  citation accuracy   %0.3f\n", run.Aggregate.CitationAccuracy)
	fmt.Printf("  faithfulness        %0.3f\n", run.Aggregate.Faithfulness)
	fmt.Printf("  abstention rate     %0.3f\n", run.Aggregate.AbstentionRate)
	if run.Regression {
		fmt.Printf("REGRESSION against baseline %s\n", run.Baseline)
	}
	return nil
}

func loadConfig(c *cli.Context) (*config.AppConfig, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openStore(ctx context.Context, cfg *config.AppConfig) (*postgres.Store, error) {
	url := cfg.Database.URL()
	if url == "" {
		return nil, fmt.Errorf("database URL is required: set %s", cfg.Database.URLEnv)
	}
	store, err := postgres.Open(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return store, nil
}

// newEmbeddingService builds providers, fallback chains and the embedding
// cache from the configuration. Closing the service closes the cache.
func newEmbeddingService(cfg *config.AppConfig) (*ai.Service, error) {
	providers := make([]ai.Provider, 0, len(cfg.Providers))
	var opts []ai.ServiceOption

	for i := range cfg.Providers {
		p := &cfg.Providers[i]
		providerConfig := ai.NewConfig(
			ai.WithHost(p.Host),
			ai.WithModel(p.Model),
			ai.WithDimension(p.Dimension),
			ai.WithAPIKey(p.APIKey()),
			ai.WithMaxConcurrency(p.MaxConcurrency),
		)

		var (
			provider ai.Provider
			err      error
		)
		switch p.Type {
		case "openai":
			provider, err = openai.NewProvider(providerConfig, openai.WithName(p.Name))
		case "ollama":
			provider, err = ollama.NewProvider(providerConfig)
		}
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", p.Name, err)
		}
		providers = append(providers, provider)

		if p.MaxConcurrency > 0 {
			opts = append(opts, ai.WithBatchConcurrency(provider.Name(), p.MaxConcurrency))
		}
	}

	for operation, chain := range cfg.Chains {
		opts = append(opts, ai.WithChain(operation, chain...))
	}

	if cfg.Cache.Path != "" || cfg.Cache.InMemory {
		embedCache, err := cache.Open(cfg.Cache.Path, cfg.Cache.InMemory)
		if err != nil {
			return nil, fmt.Errorf("failed to open embedding cache: %w", err)
		}
		opts = append(opts, ai.WithCache(embedCache))
	}

	service, err := ai.NewService(providers, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding service: %w", err)
	}
	return service, nil
}

// buildEngine loads the lexical index from the store and assembles the
// hybrid search engine.
func buildEngine(ctx context.Context, cfg *config.AppConfig, store *postgres.Store, service *ai.Service) (*search.Engine, error) {
	index := search.NewIndex()
	chunks, err := store.ListChunks(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}
	for _, chunk := range chunks {
		index.Add(chunk)
	}

	fusion := search.FusionWeighted
	if cfg.Search.Fusion == "rrf" {
		fusion = search.FusionRRF
	}
	opts := []search.Option{
		search.WithLexicalIndex(index),
		search.WithFusion(fusion),
	}
	if cfg.Search.DiversityCap > 0 {
		opts = append(opts, search.WithDiversityCap(cfg.Search.DiversityCap))
	}

	engine, err := search.NewEngine(store, store, service, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create search engine: %w", err)
	}
	return engine, nil
}

// loadGoldSet parses a gold set YAML file of the form:
//
//	questions:
//	  - id: q1
//	    question: "..."
//	    language: ar
//	    relevant_docs: [123]
//	    expected_citations: [loi-2025-14]
//	    key_points: ["..."]
func loadGoldSet(path string) ([]evals.GoldQuestion, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read gold set: %w", err)
	}

	var file struct {
		Questions []struct {
			Id                string   `yaml:"id"`
			Question          string   `yaml:"question"`
			Language          string   `yaml:"language"`
			RelevantDocs      []uint64 `yaml:"relevant_docs"`
			ExpectedCitations []string `yaml:"expected_citations"`
			KeyPoints         []string `yaml:"key_points"`
		} `yaml:"questions"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse gold set: %w", err)
	}

	goldSet := make([]evals.GoldQuestion, 0, len(file.Questions))
	for _, q := range file.Questions {
		docs := make([]core.ID, 0, len(q.RelevantDocs))
		for _, id := range q.RelevantDocs {
			docs = append(docs, core.ID(id))
		}
		goldSet = append(goldSet, evals.GoldQuestion{
			Id:                q.Id,
			Question:          q.Question,
			Language:          core.Language(q.Language),
			RelevantDocs:      docs,
			ExpectedCitations: q.ExpectedCitations,
			KeyPoints:         q.KeyPoints,
		})
	}
	return goldSet, nil
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

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

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
