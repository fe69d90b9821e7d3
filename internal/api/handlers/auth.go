package handlers

import (
	"log/slog"
	"net/http"

	"github.com/hugh/estateflow/internal/api/dto"
	"github.com/hugh/estateflow/internal/auth"
)

type AuthHandler struct {
	authService auth.Authenticator
	logger      *slog.Logger
}

func NewAuthHandler(authService auth.Authenticator, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{authService: authService, logger: logger}
}

// Login sends a magic link. The answer is the same whether or not the
// address belongs to an existing agent.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if !decode(w, r, &req) {
		return
	}

	if err := h.authService.RequestMagicLink(r.Context(), auth.NormalizeEmail(req.Email)); err != nil {
		h.logger.Error("magic link request failed", "error", err)
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Magic link sent to your email"})
}

func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	var req dto.CallbackRequest
	if !decode(w, r, &req) {
		return
	}

	resp, err := h.authService.VerifyMagicLink(r.Context(), req.Token)
	if err != nil {
		h.logger.Info("magic link rejected", "error", err)
		writeJSON(w, http.StatusUnauthorized, dto.ErrorResponse{Error: "Invalid or expired token"})
		return
	}

	writeJSON(w, http.StatusOK, dto.AuthResponse{
		Token:      resp.Token,
		Agent:      resp.Agent,
		Membership: resp.Membership,
	})
}
