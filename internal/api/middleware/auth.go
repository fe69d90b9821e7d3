package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/hugh/estateflow/internal/auth"
)

type contextKey string

const (
	RequestContextKey contextKey = "request_context"
	UserEmailKey      contextKey = "user_email"
)

// Auth validates the bearer token and stores the caller's RequestContext.
// Every validation failure gets the same 401 body.
func Auth(tokens auth.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := tokenFromRequest(r)
			if token == "" {
				unauthorized(w)
				return
			}

			claims, err := tokens.ValidateToken(token)
			if err != nil {
				unauthorized(w)
				return
			}

			ctx := context.WithValue(r.Context(), RequestContextKey, auth.ContextFromClaims(claims))
			ctx = context.WithValue(ctx, UserEmailKey, claims.Email)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func tokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return r.Header.Get("X-Auth-Token")
}

func unauthorized(w http.ResponseWriter) {
	writeError(w, http.StatusUnauthorized, "Invalid or expired token")
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// GetRequestContext returns the caller resolved by Auth. Outside an
// authenticated route it is the zero context, which has no access.
func GetRequestContext(ctx context.Context) auth.RequestContext {
	if rc, ok := ctx.Value(RequestContextKey).(auth.RequestContext); ok {
		return rc
	}
	return auth.RequestContext{}
}

func GetAgentID(ctx context.Context) uuid.UUID {
	return GetRequestContext(ctx).AgentID
}

func GetUserEmail(ctx context.Context) string {
	if email, ok := ctx.Value(UserEmailKey).(string); ok {
		return email
	}
	return ""
}

// RequireOrganization rejects callers whose token resolved no agent or organization.
func RequireOrganization(next http.Handler) http.Handler {
	return requireContext(auth.RequestContext.HasAccess, "No organization access")(next)
}

func RequireTeamLeadOrAbove(next http.Handler) http.Handler {
	return requireContext(auth.RequestContext.IsTeamLeadOrAbove, "Forbidden")(next)
}

func RequireAdmin(next http.Handler) http.Handler {
	return requireContext(auth.RequestContext.IsAdmin, "Forbidden")(next)
}

func requireContext(allowed func(auth.RequestContext) bool, msg string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !allowed(GetRequestContext(r.Context())) {
				writeError(w, http.StatusForbidden, msg)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
