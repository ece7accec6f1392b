package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"github.com/ankabe/policyfaq/internal/rag"
	"github.com/ankabe/policyfaq/internal/session"
)

// wsFrame is a single client frame: either a question (queryRequest fields)
// or a control frame carrying type "close".
type wsFrame struct {
	Type string `json:"type,omitempty"`
	queryRequest
}

// wsHandler streams answers over a WebSocket connection. A single connection
// serves any number of questions: each question frame produces a sequence of
// token events terminated by a done event, and a {"type":"close"} frame ends
// the connection. Malformed frames produce a single error event and leave the
// connection open.
type wsHandler struct {
	pipeline answerer
	registry toucher
	origins  []string
	logger   *slog.Logger
}

// handler returns the WebSocket endpoint as an http.Handler.
// The handshake validates the Origin header against the configured CORS
// origins; requests without an Origin header (CLI clients) are accepted.
func (h *wsHandler) handler() http.Handler {
	originSet := make(map[string]struct{}, len(h.origins))
	for _, o := range h.origins {
		originSet[o] = struct{}{}
	}

	return &websocket.Server{
		Handshake: func(_ *websocket.Config, r *http.Request) error {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return nil
			}
			if _, ok := originSet[origin]; !ok {
				return errors.New("origin not allowed")
			}
			return nil
		},
		Handler: h.serve,
	}
}

func (h *wsHandler) serve(ws *websocket.Conn) {
	defer func() {
		if err := ws.Close(); err != nil {
			h.logger.Debug("closing websocket", "error", err)
		}
	}()

	r := ws.Request()
	ctx := r.Context()

	var hint *uuid.UUID
	if id, ok := sessionIDFromContext(ctx); ok {
		hint = &id
	}
	sessionID, _, err := h.registry.Touch(ctx, hint)
	if err != nil {
		h.logger.Error("resolving session", "error", err)
		h.send(ws, rag.Event{Type: rag.EventError, Content: "could not resolve session"})
		return
	}
	collection := session.Collection(sessionID)

	for {
		var frame []byte
		if err := websocket.Message.Receive(ws, &frame); err != nil {
			if !errors.Is(err, io.EOF) {
				h.logger.Debug("websocket receive", "error", err)
			}
			return
		}

		var req wsFrame
		if err := json.Unmarshal(frame, &req); err != nil {
			h.send(ws, rag.Event{Type: rag.EventError, Content: "frame is not valid JSON"})
			continue
		}
		if req.Type == "close" {
			return
		}
		if msg, ok := req.validate(); !ok {
			h.send(ws, rag.Event{Type: rag.EventError, Content: msg})
			continue
		}

		emit := func(ev rag.Event) error {
			return websocket.JSON.Send(ws, ev)
		}
		if _, err := h.pipeline.Stream(ctx, req.toPipeline(collection), emit); err != nil {
			h.logger.Error("streaming answer", "error", err, "session_id", sessionID)
			h.send(ws, rag.Event{Type: rag.EventError, Content: "could not produce an answer"})
		}
	}
}

// send writes a single event, logging delivery failures at debug level since
// they usually just mean the peer went away.
func (h *wsHandler) send(ws *websocket.Conn, ev rag.Event) {
	if err := websocket.JSON.Send(ws, ev); err != nil {
		h.logger.Debug("websocket send", "error", err)
	}
}
