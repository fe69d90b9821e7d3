package handlers

import (
	"net/http"
)

func (h *DealHandler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.deals.ListTemplates(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to list templates")
		return
	}
	writeJSON(w, http.StatusOK, templates)
}

func (h *DealHandler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}

	template, err := h.deals.GetTemplate(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to load template")
		return
	}
	writeJSON(w, http.StatusOK, template)
}
