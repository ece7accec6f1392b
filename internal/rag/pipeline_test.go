package rag

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/firebase/genkit/go/genkit"

	"github.com/ankabe/policyfaq/internal/testutil"
	"github.com/ankabe/policyfaq/internal/vecstore"
)

// fakeRetriever returns canned results or a canned error.
type fakeRetriever struct {
	results  []vecstore.Result
	err      error
	lastCall struct {
		collection string
		question   string
		filters    Filters
	}
}

func (f *fakeRetriever) Retrieve(_ context.Context, collection, question string, filters Filters) ([]vecstore.Result, error) {
	f.lastCall.collection = collection
	f.lastCall.question = question
	f.lastCall.filters = filters
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func chunkResult(content string, meta map[string]string, sim float32) vecstore.Result {
	return vecstore.Result{
		Chunk:      vecstore.Chunk{ID: "id-" + content[:min(4, len(content))], Content: content, Metadata: meta},
		Similarity: sim,
	}
}

func setupPipeline(t *testing.T, r retriever) (*Pipeline, *testutil.MockLLM) {
	t.Helper()

	g := genkit.Init(context.Background())
	mock := testutil.NewMockLLM("mock answer")
	mock.RegisterModel(g)

	return NewPipeline(g, "mock/test-model", r, testutil.DiscardLogger()), mock
}

func TestPipeline_Answer(t *testing.T) {
	fake := &fakeRetriever{results: []vecstore.Result{
		chunkResult("Cash transactions above 10,000 EUR must be reported.",
			map[string]string{"jurisdiction": "EU"}, 0.91),
		chunkResult("Reports go to the financial intelligence unit.", nil, 0.84),
	}}
	p, mock := setupPipeline(t, fake)
	mock.AddResponse("reporting threshold", "The threshold is 10,000 EUR [Doc 1].")

	got, err := p.Answer(context.Background(), Request{
		Collection: "session:abc",
		Question:   "What is the reporting threshold?",
	})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}

	if got.Escalated {
		t.Error("Answer() escalated = true, want false")
	}
	if got.Text != "The threshold is 10,000 EUR [Doc 1]." {
		t.Errorf("Answer() text = %q", got.Text)
	}
	if len(got.Sources) != 2 {
		t.Fatalf("Answer() sources = %d, want 2", len(got.Sources))
	}
	if got.Sources[0].Metadata["jurisdiction"] != "EU" {
		t.Errorf("Answer() source metadata = %v", got.Sources[0].Metadata)
	}
	if got.Sources[0].Similarity != 0.91 {
		t.Errorf("Answer() source similarity = %f, want 0.91", got.Sources[0].Similarity)
	}
}

func TestPipeline_PromptContainsDocsAndQuestion(t *testing.T) {
	fake := &fakeRetriever{results: []vecstore.Result{
		chunkResult("first chunk text", nil, 0.9),
		chunkResult("second chunk text", nil, 0.8),
	}}
	p, mock := setupPipeline(t, fake)

	if _, err := p.Answer(context.Background(), Request{Collection: "c", Question: "the question?"}); err != nil {
		t.Fatalf("Answer() error = %v", err)
	}

	calls := mock.Calls()
	if len(calls) != 1 {
		t.Fatalf("model calls = %d, want 1", len(calls))
	}
	prompt := calls[0].UserMessage
	for _, want := range []string{"[Doc 1]", "first chunk text", "[Doc 2]", "second chunk text", "Question: the question?"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestPipeline_EscalatesOnEmptyRetrieval(t *testing.T) {
	p, mock := setupPipeline(t, &fakeRetriever{})

	got, err := p.Answer(context.Background(), Request{Collection: "c", Question: "anything"})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}

	if !got.Escalated {
		t.Error("Answer() escalated = false, want true")
	}
	if got.Text != EscalationMessage {
		t.Errorf("Answer() text = %q, want escalation message", got.Text)
	}
	if len(got.Sources) != 0 {
		t.Errorf("Answer() sources = %d, want 0", len(got.Sources))
	}
	if calls := mock.Calls(); len(calls) != 0 {
		t.Errorf("model called %d times on escalation, want 0", len(calls))
	}
}

func TestPipeline_EscalatesOnMissingCollection(t *testing.T) {
	fake := &fakeRetriever{err: vecstore.ErrCollectionNotFound}
	p, _ := setupPipeline(t, fake)

	got, err := p.Answer(context.Background(), Request{Collection: "c", Question: "anything"})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if !got.Escalated {
		t.Error("Answer() escalated = false, want true")
	}
}

func TestEvent_DoneKeepsContentKey(t *testing.T) {
	got, err := json.Marshal(Event{Type: EventDone})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(got) != `{"type":"done","content":""}` {
		t.Errorf("Marshal() = %s, want content key present", got)
	}
}

func TestPipeline_PreservesCancellationCause(t *testing.T) {
	fake := &fakeRetriever{err: context.Canceled}
	p, _ := setupPipeline(t, fake)

	_, err := p.Answer(context.Background(), Request{Collection: "c", Question: "anything"})
	if !errors.Is(err, ErrRetrievalFailed) {
		t.Errorf("Answer() error = %v, want ErrRetrievalFailed", err)
	}
	// Callers suppress their error responses when the client went away,
	// so the cancellation must survive the sentinel wrapping.
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Answer() error = %v, want context.Canceled preserved", err)
	}
}

func TestPipeline_RetrievalFailure(t *testing.T) {
	fake := &fakeRetriever{err: errors.New("connection refused")}
	p, _ := setupPipeline(t, fake)

	_, err := p.Answer(context.Background(), Request{Collection: "c", Question: "anything"})
	if !errors.Is(err, ErrRetrievalFailed) {
		t.Errorf("Answer() error = %v, want ErrRetrievalFailed", err)
	}
}

func TestPipeline_GenerationFailure(t *testing.T) {
	fake := &fakeRetriever{results: []vecstore.Result{chunkResult("some chunk", nil, 0.9)}}
	p, mock := setupPipeline(t, fake)
	mock.FailWith(errors.New("model unavailable"))

	_, err := p.Answer(context.Background(), Request{Collection: "c", Question: "anything"})
	if !errors.Is(err, ErrGenerationFailed) {
		t.Errorf("Answer() error = %v, want ErrGenerationFailed", err)
	}
}

func TestPipeline_FiltersForwarded(t *testing.T) {
	fake := &fakeRetriever{results: []vecstore.Result{chunkResult("chunk", nil, 0.9)}}
	p, _ := setupPipeline(t, fake)

	filters := Filters{PolicyName: "aml", Jurisdiction: "EU"}
	if _, err := p.Answer(context.Background(), Request{
		Collection: "session:xyz",
		Question:   "q",
		Filters:    filters,
	}); err != nil {
		t.Fatalf("Answer() error = %v", err)
	}

	if fake.lastCall.collection != "session:xyz" {
		t.Errorf("collection = %q, want session:xyz", fake.lastCall.collection)
	}
	if fake.lastCall.filters != filters {
		t.Errorf("filters = %+v, want %+v", fake.lastCall.filters, filters)
	}
}

func TestPipeline_SourcePreviewTruncated(t *testing.T) {
	long := strings.Repeat("x", sourcePreviewLimit+200)
	fake := &fakeRetriever{results: []vecstore.Result{chunkResult(long, nil, 0.9)}}
	p, _ := setupPipeline(t, fake)

	got, err := p.Answer(context.Background(), Request{Collection: "c", Question: "q"})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if len(got.Sources[0].Preview) != sourcePreviewLimit {
		t.Errorf("preview length = %d, want %d", len(got.Sources[0].Preview), sourcePreviewLimit)
	}
}

func TestPipeline_StreamEmitsTokensThenDone(t *testing.T) {
	fake := &fakeRetriever{results: []vecstore.Result{chunkResult("chunk", nil, 0.9)}}
	p, mock := setupPipeline(t, fake)
	mock.AddResponse("stream me", "one two three")

	var events []Event
	got, err := p.Stream(context.Background(), Request{Collection: "c", Question: "stream me"},
		func(e Event) error {
			events = append(events, e)
			return nil
		})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	if len(events) < 2 {
		t.Fatalf("Stream() emitted %d events, want tokens plus done", len(events))
	}

	last := events[len(events)-1]
	if last.Type != EventDone {
		t.Errorf("last event type = %q, want done", last.Type)
	}
	if last.Content != "" {
		t.Errorf("done content = %q, want empty", last.Content)
	}

	var assembled strings.Builder
	for _, e := range events[:len(events)-1] {
		if e.Type != EventToken {
			t.Errorf("mid-stream event type = %q, want token", e.Type)
		}
		assembled.WriteString(e.Content)
	}
	if assembled.String() != got.Text {
		t.Errorf("assembled tokens = %q, final answer = %q", assembled.String(), got.Text)
	}
}

func TestPipeline_StreamEscalation(t *testing.T) {
	p, _ := setupPipeline(t, &fakeRetriever{})

	var events []Event
	got, err := p.Stream(context.Background(), Request{Collection: "c", Question: "q"},
		func(e Event) error {
			events = append(events, e)
			return nil
		})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	if !got.Escalated {
		t.Error("Stream() escalated = false, want true")
	}
	if len(events) != 2 {
		t.Fatalf("Stream() emitted %d events, want token + done", len(events))
	}
	if events[0].Type != EventToken || events[0].Content != EscalationMessage {
		t.Errorf("first event = %+v, want escalation token", events[0])
	}
	if events[1].Type != EventDone {
		t.Errorf("second event = %+v, want done", events[1])
	}
}

func TestPipeline_StreamEmitErrorAborts(t *testing.T) {
	fake := &fakeRetriever{results: []vecstore.Result{chunkResult("chunk", nil, 0.9)}}
	p, _ := setupPipeline(t, fake)

	sentinel := errors.New("client went away")
	_, err := p.Stream(context.Background(), Request{Collection: "c", Question: "q"},
		func(Event) error { return sentinel })
	if err == nil {
		t.Fatal("Stream() error = nil, want propagated emit error")
	}
}
