package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/hugh/estateflow/internal/api/dto"
	"github.com/hugh/estateflow/internal/api/middleware"
	"github.com/hugh/estateflow/internal/database/models"
	"github.com/hugh/estateflow/internal/deals"
)

func optionalDate(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	t, err := dto.ParseDate(*s)
	if err != nil {
		return nil
	}
	return &t
}

func optionalStepStatus(s *string) *models.StepStatus {
	if s == nil {
		return nil
	}
	status, ok := models.ParseStepStatus(*s)
	if !ok {
		return nil
	}
	return &status
}

func (h *DealHandler) ListSteps(w http.ResponseWriter, r *http.Request) {
	dealID, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}

	steps, err := h.deals.ListSteps(r.Context(), middleware.GetRequestContext(r.Context()), dealID)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to list steps")
		return
	}

	writeJSON(w, http.StatusOK, steps)
}

func (h *DealHandler) CreateStep(w http.ResponseWriter, r *http.Request) {
	dealID, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}

	var req dto.CreateStepRequest
	if !decode(w, r, &req) {
		return
	}

	step, err := h.deals.CreateStep(r.Context(), middleware.GetRequestContext(r.Context()), dealID, deals.StepInput{
		Title:                  strings.TrimSpace(req.Title),
		Description:            req.Description,
		DueDate:                optionalDate(req.DueDate),
		Order:                  req.Order,
		Status:                 optionalStepStatus(req.Status),
		ExpectedDurationDays:   req.ExpectedDurationDays,
		InactivityWarningDays:  req.InactivityWarningDays,
		InactivityCriticalDays: req.InactivityCriticalDays,
	})
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to create step")
		return
	}

	writeJSON(w, http.StatusCreated, step)
}

func (h *DealHandler) UpdateStep(w http.ResponseWriter, r *http.Request) {
	dealID, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}
	stepID, ok := urlUUID(w, r, "stepId")
	if !ok {
		return
	}

	var req dto.UpdateStepRequest
	if !decode(w, r, &req) {
		return
	}

	update := deals.StepUpdate{
		Title:                  req.Title,
		Description:            req.Description,
		DueDate:                optionalDate(req.DueDate),
		ClearDueDate:           req.ClearDueDate || (req.DueDate != nil && *req.DueDate == ""),
		Order:                  req.Order,
		Status:                 optionalStepStatus(req.Status),
		ExpectedDurationDays:   req.ExpectedDurationDays,
		InactivityWarningDays:  req.InactivityWarningDays,
		InactivityCriticalDays: req.InactivityCriticalDays,
	}
	if update.Title != nil {
		title := strings.TrimSpace(*update.Title)
		update.Title = &title
	}

	step, err := h.deals.UpdateStep(r.Context(), middleware.GetRequestContext(r.Context()), dealID, stepID, update)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to update step")
		return
	}

	writeJSON(w, http.StatusOK, step)
}

func (h *DealHandler) DeleteStep(w http.ResponseWriter, r *http.Request) {
	dealID, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}
	stepID, ok := urlUUID(w, r, "stepId")
	if !ok {
		return
	}

	if err := h.deals.DeleteStep(r.Context(), middleware.GetRequestContext(r.Context()), dealID, stepID); err != nil {
		writeServiceError(w, h.logger, err, "Failed to delete step")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
