package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hugh/estateflow/internal/api/dto"
	"github.com/hugh/estateflow/internal/auth"
	"github.com/hugh/estateflow/internal/billing"
	"github.com/hugh/estateflow/internal/dashboard"
	"github.com/hugh/estateflow/internal/deals"
	"github.com/hugh/estateflow/internal/documents"
	"github.com/hugh/estateflow/internal/organization"
)

const maxJSONBody = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type validator interface {
	Validate() map[string]string
}

// decode reads a JSON body into req and validates it, answering 400 itself
// when either step fails.
func decode(w http.ResponseWriter, r *http.Request, req validator) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return false
	}
	if errors := req.Validate(); len(errors) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errors})
		return false
	}
	return true
}

func urlUUID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid " + param})
		return uuid.Nil, false
	}
	return id, true
}

func viewMeta(r *http.Request) deals.ViewMeta {
	ip := r.Header.Get("X-Forwarded-For")
	if first, _, ok := strings.Cut(ip, ","); ok {
		ip = first
	}
	if ip == "" {
		ip = r.RemoteAddr
	}
	return deals.ViewMeta{UserAgent: r.UserAgent(), IPAddress: strings.TrimSpace(ip)}
}

type errorMapping struct {
	err     error
	status  int
	message string
}

// Sentinels that reach the client. An empty message uses the sentinel's own
// text with its first letter capitalized.
var errorMappings = []errorMapping{
	{auth.ErrInvalidToken, http.StatusUnauthorized, "Invalid or expired token"},
	{auth.ErrExpiredToken, http.StatusUnauthorized, "Invalid or expired token"},
	{auth.ErrAgentNotFound, http.StatusNotFound, "Agent not found"},
	{auth.ErrInvalidEmail, http.StatusBadRequest, "Invalid email format"},

	{deals.ErrNotFound, http.StatusNotFound, "Deal not found"},
	{deals.ErrForbidden, http.StatusForbidden, "You do not have access to this deal"},
	{deals.ErrNoAccess, http.StatusForbidden, "Forbidden"},
	{deals.ErrStepNotFound, http.StatusNotFound, "Step not found"},
	{deals.ErrTemplateNotFound, http.StatusNotFound, "Template not found"},
	{deals.ErrTrialLimit, http.StatusBadRequest, "Trial limit reached"},
	{deals.ErrNoLongerAvailable, http.StatusNotFound, "This deal is no longer available"},

	{documents.ErrNotFound, http.StatusNotFound, "Document not found"},
	{documents.ErrFileMissing, http.StatusNotFound, "File not found"},
	{documents.ErrFileRequired, http.StatusBadRequest, ""},
	{documents.ErrFileTooLarge, http.StatusBadRequest, ""},
	{documents.ErrTypeNotAllowed, http.StatusBadRequest, ""},
	{documents.ErrContentMismatch, http.StatusBadRequest, ""},
	{documents.ErrNotSignable, http.StatusBadRequest, ""},
	{documents.ErrAlreadyRequested, http.StatusBadRequest, ""},
	{documents.ErrNotPDF, http.StatusBadRequest, ""},
	{documents.ErrNoSignatureRequest, http.StatusBadRequest, ""},

	{organization.ErrOrganizationNotFound, http.StatusNotFound, ""},
	{organization.ErrMemberNotFound, http.StatusNotFound, ""},
	{organization.ErrInvitationNotFound, http.StatusNotFound, ""},
	{organization.ErrNotAdmin, http.StatusForbidden, "Forbidden"},
	{organization.ErrInvalidRole, http.StatusBadRequest, ""},
	{organization.ErrInvalidEmail, http.StatusBadRequest, ""},
	{organization.ErrChangeOwnRole, http.StatusBadRequest, ""},
	{organization.ErrChangeAdminRole, http.StatusBadRequest, ""},
	{organization.ErrPromoteToAdmin, http.StatusBadRequest, ""},
	{organization.ErrRemoveSelf, http.StatusBadRequest, ""},
	{organization.ErrRemoveAdmin, http.StatusBadRequest, ""},
	{organization.ErrAlreadyAdmin, http.StatusBadRequest, ""},
	{organization.ErrNotMember, http.StatusBadRequest, ""},
	{organization.ErrAlreadyMember, http.StatusBadRequest, ""},
	{organization.ErrInvitationPending, http.StatusBadRequest, ""},
	{organization.ErrCannotInviteAdmin, http.StatusBadRequest, ""},
	{organization.ErrSubscriptionRequired, http.StatusBadRequest, ""},
	{organization.ErrSeatUnavailable, http.StatusBadRequest, ""},
	{organization.ErrInvitationAccepted, http.StatusBadRequest, ""},
	{organization.ErrInvalidInvitation, http.StatusBadRequest, "Invalid or expired invitation"},
	{organization.ErrFullNameRequired, http.StatusBadRequest, ""},
	{organization.ErrAlreadyInOrg, http.StatusBadRequest, ""},

	{dashboard.ErrMemberNotFound, http.StatusNotFound, "Member not found"},

	{billing.ErrNotConfigured, http.StatusBadRequest, "Stripe not configured"},
	{billing.ErrProviderNotConfigured, http.StatusBadRequest, "Stripe not configured"},
	{billing.ErrPriceNotConfigured, http.StatusBadRequest, ""},
	{billing.ErrNoCustomer, http.StatusNotFound, "No subscription found"},
	{billing.ErrOrganizationNotFound, http.StatusNotFound, ""},
	{billing.ErrSeatUnavailable, http.StatusBadRequest, ""},
	{billing.ErrInvalidSignature, http.StatusBadRequest, "Invalid signature"},
	{billing.ErrInvalidPayload, http.StatusBadRequest, "Invalid payload"},
}

// writeServiceError answers with the status mapped to err. Anything
// unmapped is logged and becomes a 500 carrying fallback.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error, fallback string) {
	for _, m := range errorMappings {
		if !errors.Is(err, m.err) {
			continue
		}
		msg := m.message
		if msg == "" {
			msg = capitalize(m.err.Error())
		}
		writeJSON(w, m.status, dto.ErrorResponse{Error: msg})
		return
	}

	logger.Error(fallback, "error", err)
	writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: fallback})
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
