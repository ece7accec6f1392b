package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusCreated, map[string]string{"hello": "world"})

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	if got := w.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q, want %q", got, "application/json")
	}
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want %q", got, "nosniff")
	}
	if w.Header().Get("Content-Length") == "" {
		t.Error("Content-Length header not set")
	}

	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if body["hello"] != "world" {
		t.Errorf(`body["hello"] = %q, want %q`, body["hello"], "world")
	}
}

func TestWriteJSON_EncodingFailure(t *testing.T) {
	w := httptest.NewRecorder()
	// Channels cannot be JSON-encoded.
	WriteJSON(w, http.StatusOK, map[string]any{"ch": make(chan int)})

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, http.StatusBadRequest, "invalid_json", "request body is not valid JSON", nil)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if resp.Error != "invalid_json" {
		t.Errorf("Error = %q, want %q", resp.Error, "invalid_json")
	}
	if resp.Message != "request body is not valid JSON" {
		t.Errorf("Message = %q, want %q", resp.Message, "request body is not valid JSON")
	}
}
