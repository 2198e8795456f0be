package rag

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/threadscribe/threadscribe/internal/embedding"
	"github.com/threadscribe/threadscribe/internal/store"
	"github.com/threadscribe/threadscribe/internal/store/postgres"
	"github.com/threadscribe/threadscribe/pkg/models"
)

// Service answers similarity queries over the embedded documentation corpus.
// It implements pipeline.RagService.
type Service struct {
	embedder embedding.Embedder
	store    *store.Store
	logger   *slog.Logger
}

func New(embedder embedding.Embedder, s *store.Store, logger *slog.Logger) *Service {
	return &Service{embedder: embedder, store: s, logger: logger}
}

// SearchSimilarDocs embeds the query and returns the topK closest corpus
// entries by cosine similarity.
func (s *Service) SearchSimilarDocs(ctx context.Context, query string, topK int) ([]models.RagDocument, error) {
	if topK <= 0 {
		topK = 5
	}

	vectors, err := s.embedder.EmbedBatch(ctx, []string{query}, "search_query")
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("expected 1 query embedding, got %d", len(vectors))
	}

	docs, err := s.store.SearchSimilarDocuments(ctx, pgvector.NewVector(vectors[0]), topK)
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}
	return docs, nil
}

// ReindexDocuments embeds corpus rows that are still missing a vector.
// Returns the number of documents embedded.
func (s *Service) ReindexDocuments(ctx context.Context) (int, error) {
	docs, err := s.store.ListDocumentsWithoutEmbeddings(ctx)
	if err != nil {
		return 0, fmt.Errorf("list documents without embeddings: %w", err)
	}
	if len(docs) == 0 {
		return 0, nil
	}

	s.logger.Info("embedding documents", slog.Int("count", len(docs)))

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = buildEmbeddingText(d)
	}

	embeddings, err := s.embedder.EmbedBatch(ctx, texts, "search_document")
	if err != nil {
		return 0, fmt.Errorf("embed batch: %w", err)
	}
	if len(embeddings) != len(docs) {
		return 0, fmt.Errorf("embedding count mismatch: got %d, expected %d", len(embeddings), len(docs))
	}

	ids := make([]uuid.UUID, len(docs))
	vectors := make([]pgvector.Vector, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
		vectors[i] = pgvector.NewVector(embeddings[i])
	}

	if err := s.store.UpsertDocumentEmbeddingsBatch(ctx, ids, vectors, s.embedder.ModelID()); err != nil {
		return 0, fmt.Errorf("upsert embeddings batch: %w", err)
	}
	return len(docs), nil
}

// buildEmbeddingText flattens a document row into the text sent to the
// embedding model; the page/section path carries most of the signal for
// short sections.
func buildEmbeddingText(d postgres.Document) string {
	if d.Section != "" {
		return fmt.Sprintf("%s > %s\n%s", d.Page, d.Section, d.Content)
	}
	return fmt.Sprintf("%s\n%s", d.Page, d.Content)
}
