package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/ankabe/policyfaq/internal/extract"
	"github.com/ankabe/policyfaq/internal/ingest"
	"github.com/ankabe/policyfaq/internal/session"
)

// maxUploadBytes caps the total multipart request size.
const maxUploadBytes = 32 << 20 // 32 MiB

// multipartMemoryLimit is the in-memory threshold before multipart parts
// spill to temporary files.
const multipartMemoryLimit = 8 << 20 // 8 MiB

// ingestor is the ingestion capability the handler depends on.
// Satisfied by *ingest.Service.
type ingestor interface {
	Ingest(ctx context.Context, collection string, meta ingest.Meta, files []ingest.File) (*ingest.Result, error)
}

// ingestResponse is the JSON body returned by POST /api/v1/ingest.
type ingestResponse struct {
	Message            string   `json:"message"`
	DocumentsProcessed int      `json:"documents_processed"`
	ChunksCreated      int      `json:"chunks_created"`
	Errors             []string `json:"errors,omitempty"`
}

func newIngestResponse(result *ingest.Result) ingestResponse {
	resp := ingestResponse{ChunksCreated: result.TotalChunks}
	for _, f := range result.Files {
		if f.Error != "" {
			resp.Errors = append(resp.Errors, f.Name+": "+f.Error)
			continue
		}
		resp.DocumentsProcessed++
	}
	if resp.DocumentsProcessed == 0 {
		resp.Message = "no documents could be parsed"
	} else {
		resp.Message = fmt.Sprintf("processed %d of %d documents", resp.DocumentsProcessed, len(result.Files))
	}
	return resp
}

// ingestHandler handles document uploads.
type ingestHandler struct {
	service  ingestor
	sessions *sessionManager
	logger   *slog.Logger
}

// upload accepts a multipart form with one or more files under the "files"
// field plus optional policy_name, jurisdiction, and version fields that are
// attached to every chunk's metadata.
func (h *ingestHandler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			WriteError(w, http.StatusRequestEntityTooLarge, "too_large", "upload exceeds size limit", h.logger)
			return
		}
		WriteError(w, http.StatusBadRequest, "invalid_multipart", "request is not valid multipart form data", h.logger)
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			h.logger.Debug("removing multipart temp files", "error", err)
		}
	}()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		WriteError(w, http.StatusBadRequest, "no_files", "at least one file is required under the 'files' field", h.logger)
		return
	}

	sessionID, err := h.sessions.ensure(w, r)
	if err != nil {
		h.logger.Error("resolving session", "error", err)
		WriteError(w, http.StatusInternalServerError, "session_error", "could not resolve session", h.logger)
		return
	}

	meta := ingest.Meta{
		PolicyName:   r.FormValue("policy_name"),
		Jurisdiction: r.FormValue("jurisdiction"),
		Version:      r.FormValue("version"),
	}

	files := make([]ingest.File, 0, len(headers))
	opened := make([]multipart.File, 0, len(headers))
	defer func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}()
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			WriteError(w, http.StatusBadRequest, "unreadable_file", "could not read uploaded file "+fh.Filename, h.logger)
			return
		}
		opened = append(opened, f)
		files = append(files, ingest.File{Name: fh.Filename, Reader: f})
	}

	result, err := h.service.Ingest(r.Context(), session.Collection(sessionID), meta, files)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		h.logger.Error("ingesting documents", "error", err, "session_id", sessionID)
		WriteError(w, http.StatusInternalServerError, "ingest_failed", "document ingestion failed", h.logger)
		return
	}

	resp := newIngestResponse(result)
	if resp.DocumentsProcessed == 0 {
		// Every file failed extraction; the per-file errors still go back.
		WriteJSON(w, http.StatusBadRequest, resp)
		return
	}
	WriteJSON(w, http.StatusOK, resp)
}

// supportedFormats lists the file extensions the extractor accepts.
func supportedFormats(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string][]string{
		"formats": extract.SupportedExtensions(),
	})
}
