package http

import (
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/windfall/storyspeak/internal/errors"
	"github.com/windfall/storyspeak/internal/service"
	"github.com/windfall/storyspeak/pkg/response"
)

// maxDocumentBytes bounds uploaded PDFs.
const maxDocumentBytes = 32 << 20

// DocumentHandler handles lesson PDF uploads and downloads.
type DocumentHandler struct {
	log       zerolog.Logger
	documents *service.DocumentService
}

// NewDocumentHandler creates a new document handler.
func NewDocumentHandler(log zerolog.Logger, documents *service.DocumentService) *DocumentHandler {
	return &DocumentHandler{
		log:       log,
		documents: documents,
	}
}

// UploadResponse describes a saved PDF.
type UploadResponse struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
}

// Upload handles POST /api/v1/pdfs
//
// Request: multipart/form-data with a "file" field and an optional "title".
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxDocumentBytes)
	if err := r.ParseMultipartForm(maxDocumentBytes); err != nil {
		handleError(h.log, w, errors.Validation("failed to parse multipart form"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		handleError(h.log, w, errors.Validation("file is required"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		handleError(h.log, w, errors.Validation("failed to read file"))
		return
	}

	doc, err := h.documents.Upload(r.Context(), header.Filename, r.FormValue("title"), data)
	if err != nil {
		handleError(h.log, w, err)
		return
	}
	response.Created(w, UploadResponse{Filename: doc.Name, URL: doc.URL})
}

// List handles GET /api/v1/pdfs
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	docs, err := h.documents.List(r.Context())
	if err != nil {
		handleError(h.log, w, err)
		return
	}
	response.JSONWithMeta(w, http.StatusOK, map[string]any{"files": docs}, &response.Meta{Total: len(docs)})
}

// Get handles GET /api/v1/pdfs/{name}
func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if decoded, err := url.PathUnescape(name); err == nil {
		name = decoded
	}

	data, err := h.documents.Get(r.Context(), name)
	if err != nil {
		handleError(h.log, w, err)
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename*=UTF-8''%s", url.PathEscape(name)))
	response.Binary(w, "application/pdf", data)
}
