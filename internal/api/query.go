package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ankabe/policyfaq/internal/rag"
	"github.com/ankabe/policyfaq/internal/session"
)

// maxQuestionLength bounds a single question in bytes.
const maxQuestionLength = 2000

// answerer is the question-answering capability the handler depends on.
// Satisfied by *rag.Pipeline.
type answerer interface {
	Answer(ctx context.Context, req rag.Request) (*rag.Answer, error)
	Stream(ctx context.Context, req rag.Request, emit rag.EmitFunc) (*rag.Answer, error)
}

// queryRequest is the JSON body for POST /api/v1/query and for each
// question frame on /api/v1/query/ws. The optional fields narrow
// retrieval to chunks whose metadata matches.
type queryRequest struct {
	Question     string `json:"question"`
	Jurisdiction string `json:"jurisdiction,omitempty"`
	PolicyFilter string `json:"policy_filter,omitempty"`
}

func (q *queryRequest) validate() (string, bool) {
	q.Question = strings.TrimSpace(q.Question)
	if q.Question == "" {
		return "question must not be empty", false
	}
	if len(q.Question) > maxQuestionLength {
		return "question too long", false
	}
	return "", true
}

func (q *queryRequest) toPipeline(collection string) rag.Request {
	return rag.Request{
		Collection: collection,
		Question:   q.Question,
		Filters: rag.Filters{
			PolicyName:   q.PolicyFilter,
			Jurisdiction: q.Jurisdiction,
		},
	}
}

// queryHandler answers questions against the session's ingested documents.
type queryHandler struct {
	pipeline answerer
	sessions *sessionManager
	logger   *slog.Logger
}

// ask handles POST /api/v1/query: one question, one buffered JSON answer.
func (h *queryHandler) ask(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_json", "request body is not valid JSON", h.logger)
		return
	}
	if msg, ok := req.validate(); !ok {
		WriteError(w, http.StatusBadRequest, "invalid_question", msg, h.logger)
		return
	}

	sessionID, err := h.sessions.ensure(w, r)
	if err != nil {
		h.logger.Error("resolving session", "error", err)
		WriteError(w, http.StatusInternalServerError, "session_error", "could not resolve session", h.logger)
		return
	}

	answer, err := h.pipeline.Answer(r.Context(), req.toPipeline(session.Collection(sessionID)))
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		h.logger.Error("answering question", "error", err, "session_id", sessionID)
		WriteError(w, http.StatusBadGateway, "answer_failed", "could not produce an answer", h.logger)
		return
	}

	WriteJSON(w, http.StatusOK, answer)
}
