package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/ankabe/policyfaq/internal/vecstore"
)

// EscalationMessage is returned verbatim when no relevant documents exist
// to ground an answer on. Clients route it to a human reviewer.
const EscalationMessage = "No relevant information found. Please escalate."

// sourcePreviewLimit bounds how much of a chunk's content is echoed back
// to clients as a source preview.
const sourcePreviewLimit = 500

// systemPrompt constrains the model to the retrieved documents only.
const systemPrompt = `You are a compliance assistant answering questions about the organization's policy documents.

Rules:
- Answer ONLY from the documents provided in the prompt.
- If the documents do not contain the answer, reply exactly: "` + EscalationMessage + `"
- Cite the document markers ([Doc 1], [Doc 2], ...) that support your answer.
- Be concise and factual. Do not speculate or add outside knowledge.`

var (
	// ErrRetrievalFailed indicates the vector search could not complete.
	ErrRetrievalFailed = errors.New("retrieval failed")

	// ErrGenerationFailed indicates the model call failed after successful retrieval.
	ErrGenerationFailed = errors.New("generation failed")
)

// EventType discriminates streamed events.
type EventType string

// Stream event types, mirrored on the wire by the WebSocket endpoint.
const (
	EventToken EventType = "token"
	EventDone  EventType = "done"
	EventError EventType = "error"
)

// Event is a single streamed pipeline event. Token events carry answer
// fragments; the final done event carries empty content. The content key
// is always present on the wire so clients can key on it.
type Event struct {
	Type    EventType `json:"type"`
	Content string    `json:"content"`
}

// EmitFunc receives streamed events. Returning an error aborts the stream.
type EmitFunc func(Event) error

// Request is a single question against a session's documents.
type Request struct {
	Collection string
	Question   string
	Filters    Filters
}

// Source describes a chunk that grounded the answer.
type Source struct {
	Preview    string            `json:"preview"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Similarity float32           `json:"similarity"`
}

// Answer is the pipeline's final result.
type Answer struct {
	Text      string   `json:"answer"`
	Escalated bool     `json:"escalated"`
	Sources   []Source `json:"sources,omitempty"`
}

// retriever is the retrieval capability the pipeline depends on.
// Satisfied by *Retriever.
type retriever interface {
	Retrieve(ctx context.Context, collection, question string, f Filters) ([]vecstore.Result, error)
}

// Pipeline turns questions into grounded answers.
//
// Pipeline is safe for concurrent use by multiple goroutines.
type Pipeline struct {
	g         *genkit.Genkit
	modelName string
	retriever retriever
	logger    *slog.Logger
}

// NewPipeline creates a Pipeline. modelName is the provider-qualified
// Genkit model name (e.g. "googleai/gemini-2.5-flash").
func NewPipeline(g *genkit.Genkit, modelName string, r retriever, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		g:         g,
		modelName: modelName,
		retriever: r,
		logger:    logger,
	}
}

// Answer runs the full pipeline and returns the complete answer.
func (p *Pipeline) Answer(ctx context.Context, req Request) (*Answer, error) {
	return p.run(ctx, req, nil)
}

// Stream runs the pipeline, emitting token events as the model produces
// them and a terminal done event with empty content. Concatenating the
// token contents yields the returned Answer's text. Escalations are
// streamed as a single token followed by done.
func (p *Pipeline) Stream(ctx context.Context, req Request, emit EmitFunc) (*Answer, error) {
	return p.run(ctx, req, emit)
}

func (p *Pipeline) run(ctx context.Context, req Request, emit EmitFunc) (*Answer, error) {
	results, err := p.retriever.Retrieve(ctx, req.Collection, req.Question, req.Filters)
	if err != nil {
		// A session that never ingested anything has no collection; that
		// is an escalation, not a failure.
		if errors.Is(err, vecstore.ErrCollectionNotFound) {
			return p.escalate(emit)
		}
		return nil, fmt.Errorf("%w: %w", ErrRetrievalFailed, err)
	}
	if len(results) == 0 {
		return p.escalate(emit)
	}

	prompt := buildPrompt(req.Question, results)

	opts := []ai.GenerateOption{
		ai.WithModelName(p.modelName),
		ai.WithSystem(systemPrompt),
		ai.WithPrompt(prompt),
	}
	if emit != nil {
		opts = append(opts, ai.WithStreaming(func(ctx context.Context, chunk *ai.ModelResponseChunk) error {
			text := chunk.Text()
			if text == "" {
				return nil
			}
			return emit(Event{Type: EventToken, Content: text})
		}))
	}

	resp, err := genkit.Generate(ctx, p.g, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}

	answer := &Answer{
		Text:    resp.Text(),
		Sources: buildSources(results),
	}

	if emit != nil {
		if err := emit(Event{Type: EventDone}); err != nil {
			return nil, err
		}
	}

	p.logger.Debug("answered question",
		"collection", req.Collection,
		"sources", len(answer.Sources),
		"answer_length", len(answer.Text))
	return answer, nil
}

// escalate produces the fixed escalation answer, streaming it when emit
// is provided.
func (p *Pipeline) escalate(emit EmitFunc) (*Answer, error) {
	if emit != nil {
		if err := emit(Event{Type: EventToken, Content: EscalationMessage}); err != nil {
			return nil, err
		}
		if err := emit(Event{Type: EventDone}); err != nil {
			return nil, err
		}
	}
	p.logger.Info("escalating question with no grounding documents")
	return &Answer{Text: EscalationMessage, Escalated: true}, nil
}

// buildPrompt lays out the retrieved chunks as numbered documents followed
// by the question.
func buildPrompt(question string, results []vecstore.Result) string {
	var b strings.Builder
	b.WriteString("Documents:\n\n")
	for i, r := range results {
		fmt.Fprintf(&b, "[Doc %d]\n%s\n\n", i+1, r.Chunk.Content)
	}
	b.WriteString("Question: ")
	b.WriteString(question)
	return b.String()
}

// buildSources converts retrieval results into client-facing source
// previews, truncated to sourcePreviewLimit characters.
func buildSources(results []vecstore.Result) []Source {
	sources := make([]Source, 0, len(results))
	for _, r := range results {
		preview := r.Chunk.Content
		if len(preview) > sourcePreviewLimit {
			preview = preview[:sourcePreviewLimit]
		}
		sources = append(sources, Source{
			Preview:    preview,
			Metadata:   r.Chunk.Metadata,
			Similarity: r.Similarity,
		})
	}
	return sources
}
