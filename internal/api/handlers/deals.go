package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/hugh/estateflow/internal/api/dto"
	"github.com/hugh/estateflow/internal/api/middleware"
	"github.com/hugh/estateflow/internal/database/models"
	"github.com/hugh/estateflow/internal/deals"
)

type DealHandler struct {
	deals  *deals.Service
	logger *slog.Logger
}

func NewDealHandler(dealService *deals.Service, logger *slog.Logger) *DealHandler {
	return &DealHandler{deals: dealService, logger: logger}
}

// dealQuery reads the optional status and assignedTo filters shared by the
// deal list and the team deal list.
func dealQuery(w http.ResponseWriter, r *http.Request) (*models.DealStatus, *uuid.UUID, bool) {
	var status *models.DealStatus
	if v := strings.TrimSpace(r.URL.Query().Get("status")); v != "" {
		s, ok := models.ParseDealStatus(v)
		if !ok {
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid status filter"})
			return nil, nil, false
		}
		status = &s
	}

	var assignee *uuid.UUID
	if v := strings.TrimSpace(r.URL.Query().Get("assignedTo")); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid assignedTo filter"})
			return nil, nil, false
		}
		assignee = &id
	}

	return status, assignee, true
}

func (h *DealHandler) List(w http.ResponseWriter, r *http.Request) {
	status, assignee, ok := dealQuery(w, r)
	if !ok {
		return
	}

	list, err := h.deals.List(r.Context(), middleware.GetRequestContext(r.Context()), deals.ListFilter{
		Status:     status,
		AssignedTo: assignee,
	})
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to list deals")
		return
	}

	writeJSON(w, http.StatusOK, dto.NewDealSummaries(list))
}

func (h *DealHandler) CanCreate(w http.ResponseWriter, r *http.Request) {
	result, err := h.deals.CanCreate(r.Context(), middleware.GetRequestContext(r.Context()))
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to check deal limit")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *DealHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateDealRequest
	if !decode(w, r, &req) {
		return
	}

	templateID, err := dto.ParseOptionalUUID(req.TemplateID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid template ID"})
		return
	}

	deal, err := h.deals.Create(r.Context(), middleware.GetRequestContext(r.Context()), deals.CreateInput{
		ClientName:       strings.TrimSpace(req.ClientName),
		ClientEmail:      strings.TrimSpace(req.ClientEmail),
		PropertyAddress:  req.PropertyAddress,
		PropertyPhotoURL: req.PropertyPhotoURL,
		WelcomeMessage:   req.WelcomeMessage,
		TemplateID:       templateID,
	})
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to create deal")
		return
	}

	writeJSON(w, http.StatusCreated, deal)
}

func (h *DealHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}

	deal, err := h.deals.Get(r.Context(), middleware.GetRequestContext(r.Context()), id)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to load deal")
		return
	}

	writeJSON(w, http.StatusOK, deal)
}

func (h *DealHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}

	var req dto.UpdateDealRequest
	if !decode(w, r, &req) {
		return
	}

	in := deals.UpdateInput{
		ClientName:       req.ClientName,
		ClientEmail:      req.ClientEmail,
		PropertyAddress:  req.PropertyAddress,
		PropertyPhotoURL: req.PropertyPhotoURL,
		WelcomeMessage:   req.WelcomeMessage,
	}
	if req.Status != nil {
		status, _ := models.ParseDealStatus(*req.Status)
		in.Status = &status
	}

	deal, err := h.deals.Update(r.Context(), middleware.GetRequestContext(r.Context()), id, in)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to update deal")
		return
	}

	writeJSON(w, http.StatusOK, deal)
}

func (h *DealHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.deals.Delete(r.Context(), middleware.GetRequestContext(r.Context()), id); err != nil {
		writeServiceError(w, h.logger, err, "Failed to delete deal")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *DealHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}

	analytics, err := h.deals.Analytics(r.Context(), middleware.GetRequestContext(r.Context()), id)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to load analytics")
		return
	}

	writeJSON(w, http.StatusOK, analytics)
}
