// Package vecstore stores and searches embedded document chunks in
// PostgreSQL with the pgvector extension.
//
// Chunks are grouped into collections, one per session, so a whole
// session's documents can be dropped in a single statement when the
// session expires. Embedding generation happens inside the store: callers
// hand over plain text and the store produces the vectors.
package vecstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

const (
	// VectorDimension is the embedding width the chunks table is declared
	// with. The embedder must be configured to produce vectors of this size.
	VectorDimension = 768

	// DefaultTopK is the default number of results per search.
	DefaultTopK = 6
)

var (
	// ErrCollectionNotFound indicates no chunks exist for the collection,
	// i.e. nothing was ever ingested for this session.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrEmbeddingUnavailable indicates the embedder returned no usable vector.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
)

// Store manages embedded chunks with vector search capabilities.
// It is safe for concurrent use by multiple goroutines.
type Store struct {
	pool     *pgxpool.Pool
	embedder ai.Embedder
	logger   *slog.Logger
}

// New creates a Store backed by the given pool and embedder.
// A nil logger falls back to slog.Default().
func New(pool *pgxpool.Pool, embedder ai.Embedder, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		pool:     pool,
		embedder: embedder,
		logger:   logger,
	}
}

// Upsert embeds the chunks' contents and writes them into the collection.
// All contents are embedded in a single request and inserted in a single
// batch. Chunks with IDs already present are overwritten.
func (s *Store) Upsert(ctx context.Context, collection string, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	input := make([]*ai.Document, 0, len(chunks))
	for _, c := range chunks {
		input = append(input, &ai.Document{
			Content: []*ai.Part{ai.NewTextPart(c.Content)},
		})
	}

	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{Input: input})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, err)
	}
	if len(resp.Embeddings) != len(chunks) {
		return fmt.Errorf("%w: got %d embeddings for %d chunks",
			ErrEmbeddingUnavailable, len(resp.Embeddings), len(chunks))
	}

	batch := &pgx.Batch{}
	for i, c := range chunks {
		vec := resp.Embeddings[i].Embedding
		if len(vec) == 0 {
			return fmt.Errorf("%w: empty embedding for chunk %q", ErrEmbeddingUnavailable, c.ID)
		}

		metadataJSON, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("marshaling metadata for chunk %q: %w", c.ID, err)
		}

		createdAt := pgtype.Timestamptz{Time: c.CreatedAt, Valid: !c.CreatedAt.IsZero()}

		batch.Queue(`
			INSERT INTO chunks (id, collection_id, content, embedding, metadata, created_at)
			VALUES ($1, $2, $3, $4, $5, COALESCE($6, now()))
			ON CONFLICT (id) DO UPDATE
			SET content = EXCLUDED.content,
			    embedding = EXCLUDED.embedding,
			    metadata = EXCLUDED.metadata`,
			c.ID, collection, c.Content, pgvector.NewVector(vec), metadataJSON, createdAt)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer func() {
		if err := results.Close(); err != nil {
			s.logger.Warn("closing upsert batch", "error", err)
		}
	}()

	for range chunks {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upserting chunks into collection %q: %w", collection, err)
		}
	}

	s.logger.Debug("upserted chunks", "collection", collection, "count", len(chunks))
	return nil
}

// Search embeds the query and returns the most similar chunks in the
// collection, ordered by descending cosine similarity. Returns
// ErrCollectionNotFound when the collection has no chunks at all, which
// is distinct from a collection that merely has no close matches.
func (s *Store) Search(ctx context.Context, collection, query string, opts ...SearchOption) ([]Result, error) {
	cfg := buildSearchConfig(opts)

	// Bound vector searches so a slow index scan cannot block the caller.
	queryCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	exists, err := s.collectionExists(queryCtx, collection)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrCollectionNotFound, collection)
	}

	resp, err := s.embedder.Embed(queryCtx, &ai.EmbedRequest{
		Input: []*ai.Document{
			{Content: []*ai.Part{ai.NewTextPart(query)}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty embedding for query", ErrEmbeddingUnavailable)
	}
	queryVec := pgvector.NewVector(resp.Embeddings[0].Embedding)

	// Metadata filter is always produced by json.Marshal, never raw user
	// input, and applied through a parameterized jsonb containment check.
	var filterJSON []byte
	if len(cfg.filter) > 0 {
		filterJSON, err = json.Marshal(cfg.filter)
		if err != nil {
			return nil, fmt.Errorf("marshaling filter: %w", err)
		}
	}

	rows, err := s.pool.Query(queryCtx, `
		SELECT id, content, metadata, created_at,
		       1 - (embedding <=> $1) AS similarity
		FROM chunks
		WHERE collection_id = $2
		  AND ($3::jsonb IS NULL OR metadata @> $3)
		ORDER BY embedding <=> $1
		LIMIT $4`,
		queryVec, collection, filterJSON, cfg.topK)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("search query timeout: %w", err)
		}
		return nil, fmt.Errorf("searching collection %q: %w", collection, err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var (
			c            Chunk
			metadataJSON []byte
			createdAt    pgtype.Timestamptz
			similarity   float64
		)
		if err := rows.Scan(&c.ID, &c.Content, &metadataJSON, &createdAt, &similarity); err != nil {
			return nil, fmt.Errorf("scanning search row: %w", err)
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &c.Metadata); err != nil {
				s.logger.Warn("failed to parse chunk metadata", "chunk_id", c.ID, "error", err)
				c.Metadata = map[string]string{}
			}
		}
		if createdAt.Valid {
			c.CreatedAt = createdAt.Time
		}
		results = append(results, Result{Chunk: c, Similarity: float32(similarity)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading search rows: %w", err)
	}

	return results, nil
}

// DeleteCollection removes every chunk in the collection and reports how
// many were deleted. Deleting an absent collection is not an error.
func (s *Store) DeleteCollection(ctx context.Context, collection string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM chunks WHERE collection_id = $1`, collection)
	if err != nil {
		return 0, fmt.Errorf("deleting collection %q: %w", collection, err)
	}

	deleted := tag.RowsAffected()
	if deleted > 0 {
		s.logger.Debug("deleted collection", "collection", collection, "chunks", deleted)
	}
	return deleted, nil
}

// Count returns the number of chunks in the collection.
func (s *Store) Count(ctx context.Context, collection string) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM chunks WHERE collection_id = $1`, collection).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting collection %q: %w", collection, err)
	}
	return count, nil
}

// Ping verifies database connectivity, for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}
	return nil
}

func (s *Store) collectionExists(ctx context.Context, collection string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM chunks WHERE collection_id = $1)`, collection).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking collection %q: %w", collection, err)
	}
	return exists, nil
}
