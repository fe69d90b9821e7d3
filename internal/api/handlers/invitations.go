package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hugh/estateflow/internal/api/dto"
	"github.com/hugh/estateflow/internal/organization"
)

// InvitationHandler serves the invitee's side of an invitation. The token in
// the path is the credential.
type InvitationHandler struct {
	orgs   *organization.Service
	logger *slog.Logger
}

func NewInvitationHandler(orgService *organization.Service, logger *slog.Logger) *InvitationHandler {
	return &InvitationHandler{orgs: orgService, logger: logger}
}

func (h *InvitationHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	info, err := h.orgs.LookupInvitation(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to load invitation")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *InvitationHandler) Accept(w http.ResponseWriter, r *http.Request) {
	var req dto.AcceptInvitationRequest
	if r.ContentLength != 0 {
		if !decode(w, r, &req) {
			return
		}
	}

	result, err := h.orgs.AcceptInvitation(r.Context(), chi.URLParam(r, "token"), strings.TrimSpace(req.FullName))
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to accept invitation")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
