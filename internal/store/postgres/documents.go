package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/threadscribe/threadscribe/pkg/models"
)

// Document is a documentation-corpus row used by the enrich step's
// similarity search.
type Document struct {
	ID      uuid.UUID
	Page    string
	Section string
	Content string
}

// SearchSimilarDocuments runs a cosine-distance search over embedded
// documents and returns the topK closest with a [0,1] similarity score.
func (q *Queries) SearchSimilarDocuments(ctx context.Context, queryVec pgvector.Vector, topK int) ([]models.RagDocument, error) {
	rows, err := q.db.Query(ctx,
		`SELECT id, page, section, content, 1 - (embedding <=> $1) AS score
		 FROM documents
		 WHERE embedding IS NOT NULL
		 ORDER BY embedding <=> $1
		 LIMIT $2`,
		queryVec, topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.RagDocument
	for rows.Next() {
		var d models.RagDocument
		if err := rows.Scan(&d.ID, &d.Page, &d.Section, &d.Content, &d.Score); err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

// ListDocumentsWithoutEmbeddings returns corpus rows still missing a vector.
func (q *Queries) ListDocumentsWithoutEmbeddings(ctx context.Context) ([]Document, error) {
	rows, err := q.db.Query(ctx,
		`SELECT id, page, section, content FROM documents WHERE embedding IS NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.Page, &d.Section, &d.Content); err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

// UpsertDocumentEmbeddingsBatch writes vectors for a set of documents in a
// single pipelined batch instead of one round-trip per row.
func (q *Queries) UpsertDocumentEmbeddingsBatch(ctx context.Context, ids []uuid.UUID, vectors []pgvector.Vector, modelID string) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids/vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}
	if len(ids) == 0 {
		return nil
	}

	b := &pgx.Batch{}
	for i := range ids {
		b.Queue(
			`UPDATE documents SET embedding = $2, embedding_model = $3 WHERE id = $1`,
			ids[i], vectors[i], modelID)
	}

	res := q.db.SendBatch(ctx, b)
	defer res.Close()
	for i := 0; i < len(ids); i++ {
		if _, err := res.Exec(); err != nil {
			return fmt.Errorf("upsert embedding %d: %w", i, err)
		}
	}
	return nil
}
