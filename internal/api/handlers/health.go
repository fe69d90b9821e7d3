package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const healthCheckTimeout = 2 * time.Second

type dependencyCheck struct {
	name     string
	required bool
	ping     func(ctx context.Context) error
}

type HealthHandler struct {
	checks []dependencyCheck
}

// NewHealthHandler checks the database and, when rdb is set, Redis. Redis
// only backs rate limits and queued e-mail, so losing it degrades the API
// instead of failing it.
func NewHealthHandler(db *gorm.DB, rdb *redis.Client) *HealthHandler {
	checks := []dependencyCheck{{
		name:     "database",
		required: true,
		ping: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}}
	if rdb != nil {
		checks = append(checks, dependencyCheck{
			name: "redis",
			ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
	}
	return &HealthHandler{checks: checks}
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Services  map[string]string `json:"services"`
	CheckedAt time.Time         `json:"checkedAt"`
}

// Health answers 503 when a required dependency is down and "degraded" with
// 200 when only an optional one is.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := HealthResponse{
		Status:    "healthy",
		Services:  make(map[string]string, len(h.checks)),
		CheckedAt: time.Now().UTC(),
	}
	for _, c := range h.checks {
		if err := c.ping(ctx); err != nil {
			resp.Services[c.name] = "unhealthy"
			if c.required {
				resp.Status = "unhealthy"
			} else if resp.Status == "healthy" {
				resp.Status = "degraded"
			}
			continue
		}
		resp.Services[c.name] = "healthy"
	}

	code := http.StatusOK
	if resp.Status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// Ready reports whether the process can take traffic, which only needs the
// database.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	for _, c := range h.checks {
		if c.required && c.ping(ctx) != nil {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
