// Package ingest turns uploaded files into indexed chunks.
//
// Each file is extracted to plain text, split into overlapping chunks,
// and upserted into the session's vector collection. Files are processed
// independently: one unreadable or unsupported file does not abort the
// batch, it is reported in that file's result instead.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/google/uuid"

	"github.com/ankabe/policyfaq/internal/chunker"
	"github.com/ankabe/policyfaq/internal/extract"
	"github.com/ankabe/policyfaq/internal/vecstore"
)

// ErrNoFiles indicates an ingestion request carried no files.
var ErrNoFiles = errors.New("no files to ingest")

// Upserter is the indexing capability the service depends on.
// Satisfied by *vecstore.Store.
type Upserter interface {
	Upsert(ctx context.Context, collection string, chunks []vecstore.Chunk) error
}

// File is a single uploaded document.
type File struct {
	Name   string
	Reader io.Reader
}

// Meta carries the upload's document attributes; they are stamped onto
// every chunk's metadata and drive retrieval filters later.
type Meta struct {
	PolicyName   string
	Jurisdiction string
	Version      string
}

// FileResult is the outcome for one file in a batch.
type FileResult struct {
	Name   string `json:"name"`
	Chunks int    `json:"chunks"`
	Error  string `json:"error,omitempty"`
}

// Result summarizes a batch ingestion.
type Result struct {
	Files       []FileResult `json:"files"`
	TotalChunks int          `json:"total_chunks"`
}

// Service ingests document batches into a vector collection.
type Service struct {
	store    Upserter
	splitter *chunker.Splitter
	logger   *slog.Logger
}

// New creates a Service. A nil logger falls back to slog.Default().
func New(store Upserter, splitter *chunker.Splitter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		splitter: splitter,
		logger:   logger,
	}
}

// Ingest processes each file in order and reports per-file outcomes.
// Returns ErrNoFiles for an empty batch; individual file failures are
// recorded in the result, not returned.
func (s *Service) Ingest(ctx context.Context, collection string, meta Meta, files []File) (*Result, error) {
	if len(files) == 0 {
		return nil, ErrNoFiles
	}

	result := &Result{Files: make([]FileResult, 0, len(files))}

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("ingestion canceled: %w", err)
		}

		n, err := s.ingestOne(ctx, collection, meta, f)
		fr := FileResult{Name: f.Name, Chunks: n}
		if err != nil {
			fr.Error = err.Error()
			s.logger.Warn("file ingestion failed", "file", f.Name, "error", err)
		}
		result.Files = append(result.Files, fr)
		result.TotalChunks += n
	}

	s.logger.Info("ingested batch",
		"collection", collection,
		"files", len(files),
		"chunks", result.TotalChunks)
	return result, nil
}

func (s *Service) ingestOne(ctx context.Context, collection string, meta Meta, f File) (int, error) {
	text, err := extract.Text(f.Name, f.Reader)
	if err != nil {
		return 0, err
	}

	pieces := s.splitter.Split(text)
	if len(pieces) == 0 {
		return 0, fmt.Errorf("file %q contains no text", f.Name)
	}

	chunks := make([]vecstore.Chunk, 0, len(pieces))
	for i, content := range pieces {
		md := map[string]string{
			"filename":    f.Name,
			"chunk_index": strconv.Itoa(i),
		}
		if meta.PolicyName != "" {
			md["policy_name"] = meta.PolicyName
		}
		if meta.Jurisdiction != "" {
			md["jurisdiction"] = meta.Jurisdiction
		}
		if meta.Version != "" {
			md["version"] = meta.Version
		}

		chunks = append(chunks, vecstore.Chunk{
			ID:       uuid.NewString(),
			Content:  content,
			Metadata: md,
		})
	}

	if err := s.store.Upsert(ctx, collection, chunks); err != nil {
		return 0, fmt.Errorf("indexing %q: %w", f.Name, err)
	}
	return len(chunks), nil
}
