package handlers

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/hugh/estateflow/internal/api/dto"
	"github.com/hugh/estateflow/internal/api/middleware"
	"github.com/hugh/estateflow/internal/database/models"
	"github.com/hugh/estateflow/internal/documents"
)

// multipartOverhead covers the form boundaries and fields around the file.
const multipartOverhead = 1 << 20

type DocumentHandler struct {
	documents *documents.Service
	logger    *slog.Logger
}

func NewDocumentHandler(documentService *documents.Service, logger *slog.Logger) *DocumentHandler {
	return &DocumentHandler{documents: documentService, logger: logger}
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	dealID, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}

	docs, err := h.documents.List(r.Context(), middleware.GetRequestContext(r.Context()), dealID)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to list documents")
		return
	}
	if docs == nil {
		docs = []models.Document{}
	}

	writeJSON(w, http.StatusOK, docs)
}

func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	dealID, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.documents.MaxUploadBytes()+multipartOverhead)
	if err := r.ParseMultipartForm(multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeServiceError(w, h.logger, documents.ErrFileTooLarge, "")
			return
		}
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid multipart form"})
		return
	}
	defer r.MultipartForm.RemoveAll()

	var category models.DocumentCategory
	if v := strings.TrimSpace(r.FormValue("category")); v != "" {
		c, ok := models.ParseDocumentCategory(v)
		if !ok {
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid document category"})
			return
		}
		category = c
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeServiceError(w, h.logger, documents.ErrFileRequired, "")
		return
	}
	defer file.Close()

	doc, err := h.documents.Upload(r.Context(), middleware.GetRequestContext(r.Context()), dealID, documents.UploadInput{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Category:    category,
		Body:        file,
	})
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to upload document")
		return
	}

	writeJSON(w, http.StatusCreated, doc)
}

func (h *DocumentHandler) Download(w http.ResponseWriter, r *http.Request) {
	dealID, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}
	docID, ok := urlUUID(w, r, "docId")
	if !ok {
		return
	}

	signed := r.URL.Query().Get("signed") == "true"
	doc, body, err := h.documents.Download(r.Context(), middleware.GetRequestContext(r.Context()), dealID, docID, signed)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to download document")
		return
	}
	defer body.Close()

	name := doc.Filename
	if signed {
		name = strings.TrimSuffix(name, ".pdf") + "_signed.pdf"
	}
	h.stream(w, name, body)
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	dealID, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}
	docID, ok := urlUUID(w, r, "docId")
	if !ok {
		return
	}

	if err := h.documents.Delete(r.Context(), middleware.GetRequestContext(r.Context()), dealID, docID); err != nil {
		writeServiceError(w, h.logger, err, "Failed to delete document")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *DocumentHandler) RequestSignature(w http.ResponseWriter, r *http.Request) {
	dealID, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}
	docID, ok := urlUUID(w, r, "docId")
	if !ok {
		return
	}

	result, err := h.documents.RequestSignature(r.Context(), middleware.GetRequestContext(r.Context()), dealID, docID)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to create signature request")
		return
	}

	writeJSON(w, http.StatusOK, dto.SignatureResponse{
		SignatureRequestID: result.SignatureRequestID,
		SignerURL:          result.SignerURL,
		Status:             result.Status,
	})
}

func (h *DocumentHandler) SignatureStatus(w http.ResponseWriter, r *http.Request) {
	dealID, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}
	docID, ok := urlUUID(w, r, "docId")
	if !ok {
		return
	}

	status, err := h.documents.SignatureStatus(r.Context(), middleware.GetRequestContext(r.Context()), dealID, docID)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to check signature status")
		return
	}

	writeJSON(w, http.StatusOK, status)
}

func (h *DocumentHandler) stream(w http.ResponseWriter, filename string, body io.Reader) {
	w.Header().Set("Content-Type", documents.ContentTypeFor(filename))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Warn("document stream interrupted", "filename", filename, "error", err)
	}
}
