package handlers

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/hugh/estateflow/internal/api/dto"
	"github.com/hugh/estateflow/internal/api/middleware"
	"github.com/hugh/estateflow/internal/auth"
	"github.com/hugh/estateflow/internal/dashboard"
	"github.com/hugh/estateflow/internal/database/models"
	"github.com/hugh/estateflow/internal/organization"
)

type OrganizationHandler struct {
	orgs      *organization.Service
	dashboard *dashboard.Service
	logger    *slog.Logger
}

func NewOrganizationHandler(orgService *organization.Service, dashboardService *dashboard.Service, logger *slog.Logger) *OrganizationHandler {
	return &OrganizationHandler{orgs: orgService, dashboard: dashboardService, logger: logger}
}

func (h *OrganizationHandler) Get(w http.ResponseWriter, r *http.Request) {
	info, err := h.orgs.Get(r.Context(), middleware.GetRequestContext(r.Context()))
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to load organization")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *OrganizationHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdateOrganizationRequest
	if !decode(w, r, &req) {
		return
	}

	info, err := h.orgs.Update(r.Context(), middleware.GetRequestContext(r.Context()), organization.UpdateInput{
		Name:       req.Name,
		BrandColor: req.BrandColor,
		LogoURL:    req.LogoURL,
	})
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to update organization")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *OrganizationHandler) Members(w http.ResponseWriter, r *http.Request) {
	members, err := h.orgs.Members(r.Context(), middleware.GetRequestContext(r.Context()))
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to list members")
		return
	}
	writeJSON(w, http.StatusOK, members)
}

func (h *OrganizationHandler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	agentID, ok := urlUUID(w, r, "agentId")
	if !ok {
		return
	}

	var req dto.ChangeRoleRequest
	if !decode(w, r, &req) {
		return
	}

	if err := h.orgs.ChangeRole(r.Context(), middleware.GetRequestContext(r.Context()), agentID, req.Role); err != nil {
		writeServiceError(w, h.logger, err, "Failed to change role")
		return
	}
	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Role updated"})
}

func (h *OrganizationHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	agentID, ok := urlUUID(w, r, "agentId")
	if !ok {
		return
	}

	if err := h.orgs.RemoveMember(r.Context(), middleware.GetRequestContext(r.Context()), agentID); err != nil {
		writeServiceError(w, h.logger, err, "Failed to remove member")
		return
	}
	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Member removed"})
}

// TransferAdmin hands the Admin role to another member. The caller is now a
// TeamLead, so the response carries a token reflecting that.
func (h *OrganizationHandler) TransferAdmin(w http.ResponseWriter, r *http.Request) {
	var req dto.TransferAdminRequest
	if !decode(w, r, &req) {
		return
	}
	newAdminID, _ := uuid.Parse(req.NewAdminID)

	token, err := h.orgs.TransferAdmin(r.Context(), middleware.GetRequestContext(r.Context()), newAdminID)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to transfer admin")
		return
	}
	writeJSON(w, http.StatusOK, dto.TransferAdminResponse{Message: "Admin role transferred", Token: token})
}

func (h *OrganizationHandler) Invitations(w http.ResponseWriter, r *http.Request) {
	invs, err := h.orgs.Invitations(r.Context(), middleware.GetRequestContext(r.Context()))
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to list invitations")
		return
	}
	if invs == nil {
		invs = []models.Invitation{}
	}
	writeJSON(w, http.StatusOK, invs)
}

func (h *OrganizationHandler) Invite(w http.ResponseWriter, r *http.Request) {
	var req dto.InviteRequest
	if !decode(w, r, &req) {
		return
	}

	inv, err := h.orgs.Invite(r.Context(), middleware.GetRequestContext(r.Context()), auth.NormalizeEmail(req.Email), req.Role)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to send invitation")
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

func (h *OrganizationHandler) CancelInvitation(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.orgs.CancelInvitation(r.Context(), middleware.GetRequestContext(r.Context()), id); err != nil {
		writeServiceError(w, h.logger, err, "Failed to cancel invitation")
		return
	}
	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Invitation cancelled"})
}

func (h *OrganizationHandler) TeamDeals(w http.ResponseWriter, r *http.Request) {
	status, assignee, ok := dealQuery(w, r)
	if !ok {
		return
	}

	list, err := h.orgs.TeamDeals(r.Context(), middleware.GetRequestContext(r.Context()), organization.TeamDealFilter{
		AssignedTo: assignee,
		Status:     status,
	})
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to list team deals")
		return
	}
	writeJSON(w, http.StatusOK, dto.NewDealSummaries(list))
}

func (h *OrganizationHandler) TeamStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.orgs.TeamStats(r.Context(), middleware.GetRequestContext(r.Context()))
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to load team stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *OrganizationHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	board, err := h.dashboard.Organization(r.Context(), middleware.GetRequestContext(r.Context()))
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to load dashboard")
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func (h *OrganizationHandler) MemberDashboard(w http.ResponseWriter, r *http.Request) {
	agentID, ok := urlUUID(w, r, "agentId")
	if !ok {
		return
	}

	board, err := h.dashboard.Member(r.Context(), middleware.GetRequestContext(r.Context()), agentID)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to load dashboard")
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func (h *OrganizationHandler) AssignDeal(w http.ResponseWriter, r *http.Request) {
	dealID, ok := urlUUID(w, r, "dealId")
	if !ok {
		return
	}

	var req dto.AssignDealRequest
	if !decode(w, r, &req) {
		return
	}
	agentID, _ := uuid.Parse(req.AgentID)

	if err := h.orgs.AssignDeal(r.Context(), middleware.GetRequestContext(r.Context()), dealID, agentID); err != nil {
		writeServiceError(w, h.logger, err, "Failed to assign deal")
		return
	}
	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Deal assigned"})
}
