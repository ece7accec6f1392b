// Package rag answers questions about ingested policy documents.
//
// The pipeline retrieves the most similar chunks from the session's
// collection, assembles them into a grounded prompt, and generates an
// answer with the configured model. When retrieval produces nothing to
// ground on, the pipeline escalates instead of letting the model guess.
package rag

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ankabe/policyfaq/internal/vecstore"
)

// Searcher is the vector search capability the retriever depends on.
// Satisfied by *vecstore.Store.
type Searcher interface {
	Search(ctx context.Context, collection, query string, opts ...vecstore.SearchOption) ([]vecstore.Result, error)
}

// Filters narrows retrieval to chunks whose metadata matches.
// Empty fields are not applied.
type Filters struct {
	PolicyName   string
	Jurisdiction string
}

// Retriever finds the chunks most relevant to a question within a
// session's collection.
type Retriever struct {
	store  Searcher
	topK   int
	logger *slog.Logger
}

// NewRetriever creates a Retriever returning at most topK chunks per
// question. A non-positive topK falls back to vecstore.DefaultTopK.
func NewRetriever(store Searcher, topK int, logger *slog.Logger) *Retriever {
	if topK <= 0 {
		topK = vecstore.DefaultTopK
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		store:  store,
		topK:   topK,
		logger: logger,
	}
}

// Retrieve returns the chunks most similar to the question, best first.
func (r *Retriever) Retrieve(ctx context.Context, collection, question string, f Filters) ([]vecstore.Result, error) {
	opts := []vecstore.SearchOption{vecstore.WithTopK(r.topK)}
	if f.PolicyName != "" {
		opts = append(opts, vecstore.WithFilter("policy_name", f.PolicyName))
	}
	if f.Jurisdiction != "" {
		opts = append(opts, vecstore.WithFilter("jurisdiction", f.Jurisdiction))
	}

	results, err := r.store.Search(ctx, collection, question, opts...)
	if err != nil {
		return nil, fmt.Errorf("retrieving chunks: %w", err)
	}

	r.logger.Debug("retrieved chunks",
		"collection", collection,
		"count", len(results),
		"top_k", r.topK)
	return results, nil
}
