package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hugh/estateflow/internal/deals"
)

// PublicHandler serves the client portal. Knowing the deal's access token
// is the only credential.
type PublicHandler struct {
	deals *deals.Service
	docs  *DocumentHandler
}

func NewPublicHandler(dealService *deals.Service, docs *DocumentHandler) *PublicHandler {
	return &PublicHandler{deals: dealService, docs: docs}
}

func (h *PublicHandler) Deal(w http.ResponseWriter, r *http.Request) {
	view, err := h.deals.PublicView(r.Context(), chi.URLParam(r, "accessToken"), viewMeta(r))
	if err != nil {
		writeServiceError(w, h.docs.logger, err, "Failed to load deal")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *PublicHandler) Document(w http.ResponseWriter, r *http.Request) {
	docID, ok := urlUUID(w, r, "docId")
	if !ok {
		return
	}

	doc, body, err := h.docs.documents.PublicDownload(r.Context(), chi.URLParam(r, "accessToken"), docID, viewMeta(r))
	if err != nil {
		writeServiceError(w, h.docs.logger, err, "Failed to download document")
		return
	}
	defer body.Close()

	h.docs.stream(w, doc.Filename, body)
}
