package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/threadscribe/threadscribe/internal/batch"
	"github.com/threadscribe/threadscribe/internal/config"
	"github.com/threadscribe/threadscribe/internal/embedding"
	"github.com/threadscribe/threadscribe/internal/ingest"
	"github.com/threadscribe/threadscribe/internal/llm"
	"github.com/threadscribe/threadscribe/internal/pipeline"
	"github.com/threadscribe/threadscribe/internal/pipeline/steps"
	"github.com/threadscribe/threadscribe/internal/prompt"
	"github.com/threadscribe/threadscribe/internal/rag"
	"github.com/threadscribe/threadscribe/internal/store"
	minioclient "github.com/threadscribe/threadscribe/internal/store/minio"
	"github.com/threadscribe/threadscribe/internal/store/postgres"
	vk "github.com/threadscribe/threadscribe/internal/store/valkey"
	"github.com/threadscribe/threadscribe/pkg/models"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	pool, err := postgres.NewPool(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, cfg.Database.MinConns)
	if err != nil {
		logger.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("connected to database")

	s := store.New(pool)

	// Valkey
	vkClient, err := vk.NewClient(cfg.Valkey)
	if err != nil {
		logger.Error("failed to connect to valkey", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer vkClient.Close()
	logger.Info("connected to valkey")

	// MinIO (optional — enables CSV drop sweeps)
	var csvImporter *ingest.CSVImporter
	mc, err := minioclient.NewClient(cfg.MinIO)
	if err != nil {
		logger.Warn("minio connection failed, csv drop sweeps disabled", slog.String("error", err.Error()))
	} else {
		if err := mc.EnsureBucket(ctx); err != nil {
			logger.Warn("minio ensure bucket failed", slog.String("error", err.Error()))
		}
		csvImporter = ingest.NewCSVImporter(mc, s, cfg.MinIO.DropPrefix, logger)
		logger.Info("connected to minio", slog.String("bucket", cfg.MinIO.Bucket))
	}

	// Embeddings (auto-selects: OpenRouter > Bedrock > disabled)
	var ragService pipeline.RagService
	embedder, err := embedding.NewEmbedder(cfg)
	if err != nil {
		logger.Warn("embedder init failed, retrieval disabled", slog.String("error", err.Error()))
	} else if embedder != nil {
		ragSvc := rag.New(embedder, s, logger)
		ragService = ragSvc
		logger.Info("embeddings enabled", slog.String("provider", fmt.Sprintf("%T", embedder)), slog.String("model", embedder.ModelID()))

		// Pick up corpus rows added while the worker was down.
		if n, err := ragSvc.ReindexDocuments(ctx); err != nil {
			logger.Warn("document reindex failed", slog.String("error", err.Error()))
		} else if n > 0 {
			logger.Info("documents embedded", slog.Int("count", n))
		}
	}

	// LLM
	if cfg.LLM.APIKey == "" {
		logger.Warn("LLM_API_KEY is empty, classify/generate steps will fail")
	}
	llmClient := llm.NewClient(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.BaseURL)

	// Prompts
	prompts, err := prompt.NewRegistry(cfg.Pipeline.PromptDir)
	if err != nil {
		logger.Error("failed to load prompt templates", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Pipeline
	pipeCfg := pipeline.DefaultConfig()
	if cfg.Pipeline.ConfigPath != "" {
		pipeCfg, err = pipeline.LoadConfig(cfg.Pipeline.ConfigPath)
		if err != nil {
			logger.Error("failed to load pipeline config", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	services := pipeline.Services{LLM: llmClient, RAG: ragService, Prompts: prompts}
	orch := pipeline.NewOrchestrator(pipeCfg, steps.NewDefaultRegistry(),
		pipeline.StepDeps{LLM: llmClient, RAG: ragService, Prompts: prompts},
		store.NewRunLogAdapter(s), logger)

	// Batch scheduling
	selector := batch.NewSelector(s, cfg.Scheduler.WindowHours, cfg.Scheduler.MaxBatchSize)
	processor := batch.NewProcessor(s, selector, orch, services, logger)

	// Ingest consumers
	msgConsumer := ingest.NewMessageConsumer(vkClient, "worker-1", logger)
	if err := msgConsumer.EnsureGroup(ctx); err != nil {
		logger.Error("failed to ensure message consumer group", slog.String("error", err.Error()))
		os.Exit(1)
	}
	sweepConsumer := ingest.NewSweepConsumer(vkClient, "worker-1", logger)
	if err := sweepConsumer.EnsureGroup(ctx); err != nil {
		logger.Error("failed to ensure sweep consumer group", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("starting message consumer", slog.String("stream", ingest.MessageStream))
		err := msgConsumer.Consume(ctx, func(ctx context.Context, m ingest.InboundMessage) error {
			return s.InsertMessage(ctx, models.UnifiedMessage{
				ID:               uuid.New(),
				StreamID:         m.StreamID,
				ExternalID:       m.ExternalID,
				Timestamp:        m.Timestamp.UTC(),
				Author:           m.Author,
				Content:          m.Content,
				ProcessingStatus: models.StatusPending,
			})
		})
		if err != nil && ctx.Err() == nil {
			logger.Error("message consumer error", slog.String("error", err.Error()))
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("starting sweep consumer", slog.String("stream", ingest.SweepStream))
		err := sweepConsumer.Consume(ctx, func(ctx context.Context, req ingest.SweepRequest) error {
			n, err := processor.ProcessBatch(ctx, batch.Options{StreamID: req.StreamID})
			if err != nil {
				return err
			}
			logger.Info("manual sweep finished",
				slog.String("stream_id", req.StreamID),
				slog.Int("messages_processed", n))
			return nil
		})
		if err != nil && ctx.Err() == nil {
			logger.Error("sweep consumer error", slog.String("error", err.Error()))
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("starting batch scheduler", slog.Duration("interval", cfg.Scheduler.Interval))
		ticker := time.NewTicker(cfg.Scheduler.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := processor.ProcessBatch(ctx, batch.Options{})
				if err != nil {
					logger.Error("scheduled sweep failed", slog.String("error", err.Error()))
					continue
				}
				if n > 0 {
					logger.Info("scheduled sweep finished", slog.Int("messages_processed", n))
				}
			}
		}
	}()

	if csvImporter != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info("starting csv drop sweeper", slog.Duration("interval", cfg.Scheduler.CSVSweep))
			ticker := time.NewTicker(cfg.Scheduler.CSVSweep)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					n, err := csvImporter.SweepBucket(ctx)
					if err != nil {
						logger.Error("csv sweep failed", slog.String("error", err.Error()))
						continue
					}
					if n > 0 {
						logger.Info("csv sweep finished", slog.Int("messages", n))
					}
				}
			}
		}()
	}

	wg.Wait()
	logger.Info("worker stopped")
}
