package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/hugh/estateflow/internal/api/dto"
	"github.com/hugh/estateflow/internal/api/middleware"
	"github.com/hugh/estateflow/internal/auth"
	"github.com/hugh/estateflow/internal/dashboard"
	"github.com/hugh/estateflow/internal/database/models"
	"github.com/hugh/estateflow/internal/deals"
)

// ProfileService reads and edits the signed-in agent's own profile.
type ProfileService interface {
	GetAgentByID(ctx context.Context, id uuid.UUID) (*models.Agent, error)
	UpdateProfile(ctx context.Context, agentID uuid.UUID, in auth.ProfileInput) (*models.Agent, error)
}

type AgentHandler struct {
	profiles  ProfileService
	deals     *deals.Service
	dashboard *dashboard.Service
	logger    *slog.Logger
}

func NewAgentHandler(profiles ProfileService, dealService *deals.Service, dashboardService *dashboard.Service, logger *slog.Logger) *AgentHandler {
	return &AgentHandler{
		profiles:  profiles,
		deals:     dealService,
		dashboard: dashboardService,
		logger:    logger,
	}
}

// MeResponse is the agent with the membership the token was issued for.
type MeResponse struct {
	*models.Agent
	OrganizationID *uuid.UUID   `json:"organizationId,omitempty"`
	Role           *models.Role `json:"role,omitempty"`
}

func (h *AgentHandler) me(rc auth.RequestContext, agent *models.Agent) MeResponse {
	resp := MeResponse{Agent: agent}
	if rc.HasAccess() {
		resp.OrganizationID = &rc.OrganizationID
		resp.Role = &rc.Role
	}
	return resp
}

func (h *AgentHandler) Me(w http.ResponseWriter, r *http.Request) {
	rc := middleware.GetRequestContext(r.Context())

	agent, err := h.profiles.GetAgentByID(r.Context(), rc.AgentID)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to load profile")
		return
	}

	writeJSON(w, http.StatusOK, h.me(rc, agent))
}

func (h *AgentHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	rc := middleware.GetRequestContext(r.Context())

	var req dto.UpdateProfileRequest
	if !decode(w, r, &req) {
		return
	}

	agent, err := h.profiles.UpdateProfile(r.Context(), rc.AgentID, auth.ProfileInput{
		FullName:    req.FullName,
		Phone:       req.Phone,
		PhotoURL:    req.PhotoURL,
		BrandColor:  req.BrandColor,
		LogoURL:     req.LogoURL,
		SocialLinks: req.SocialLinks,
	})
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to update profile")
		return
	}

	writeJSON(w, http.StatusOK, h.me(rc, agent))
}

func (h *AgentHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.deals.Stats(r.Context(), middleware.GetRequestContext(r.Context()))
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to load stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *AgentHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	board, err := h.dashboard.Agent(r.Context(), middleware.GetRequestContext(r.Context()))
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to load dashboard")
		return
	}
	writeJSON(w, http.StatusOK, board)
}
