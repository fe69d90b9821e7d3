package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hugh/estateflow/internal/api/handlers"
	"github.com/hugh/estateflow/internal/api/middleware"
	"github.com/hugh/estateflow/internal/auth"
	"github.com/hugh/estateflow/internal/billing"
	"github.com/hugh/estateflow/internal/dashboard"
	"github.com/hugh/estateflow/internal/deals"
	"github.com/hugh/estateflow/internal/documents"
	"github.com/hugh/estateflow/internal/metrics"
	"github.com/hugh/estateflow/internal/organization"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Router struct {
	chi.Router
}

type RouterConfig struct {
	DB       *gorm.DB
	Redis    *redis.Client
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer

	JWTService    auth.TokenService
	AuthService   *auth.Service
	Deals         *deals.Service
	Documents     *documents.Service
	Organizations *organization.Service
	Dashboard     *dashboard.Service
	Billing       *billing.Service

	AllowedOrigins []string
	// APILimiter bounds every API request per client; AuthLimiter adds a
	// tighter bound on the magic-link endpoints. Either may be nil.
	APILimiter  middleware.Limiter
	AuthLimiter middleware.Limiter
}

func NewRouter(cfg RouterConfig) *Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}

	allowedOrigins := cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:5173", "http://localhost:3000"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Auth-Token"},
		ExposedHeaders:   []string{"Content-Disposition", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	healthHandler := handlers.NewHealthHandler(cfg.DB, cfg.Redis)
	authHandler := handlers.NewAuthHandler(cfg.AuthService, cfg.Logger)
	agentHandler := handlers.NewAgentHandler(cfg.AuthService, cfg.Deals, cfg.Dashboard, cfg.Logger)
	dealHandler := handlers.NewDealHandler(cfg.Deals, cfg.Logger)
	documentHandler := handlers.NewDocumentHandler(cfg.Documents, cfg.Logger)
	publicHandler := handlers.NewPublicHandler(cfg.Deals, documentHandler)
	orgHandler := handlers.NewOrganizationHandler(cfg.Organizations, cfg.Dashboard, cfg.Logger)
	invitationHandler := handlers.NewInvitationHandler(cfg.Organizations, cfg.Logger)
	billingHandler := handlers.NewBillingHandler(cfg.Billing, cfg.Logger)

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Stripe retries on failure, so the webhook stays outside the limiter.
		r.Post("/billing/webhook", billingHandler.Webhook)

		r.Group(func(r chi.Router) {
			if cfg.APILimiter != nil {
				r.Use(middleware.RateLimit(cfg.APILimiter, cfg.Logger))
			}

			r.Group(func(r chi.Router) {
				if cfg.AuthLimiter != nil {
					r.Use(middleware.RateLimit(cfg.AuthLimiter, cfg.Logger))
				}
				r.Post("/auth/login", authHandler.Login)
				r.Post("/auth/callback", authHandler.Callback)
			})

			// Client portal and invitation links, keyed by their tokens
			r.Get("/public/deals/{accessToken}", publicHandler.Deal)
			r.Get("/public/deals/{accessToken}/documents/{docId}", publicHandler.Document)
			r.Get("/invitations/{token}", invitationHandler.Lookup)
			r.Post("/invitations/{token}/accept", invitationHandler.Accept)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Auth(cfg.JWTService))

				r.Get("/agents/me", agentHandler.Me)
				r.Put("/agents/me", agentHandler.UpdateMe)

				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireOrganization)

					r.Get("/agents/me/stats", agentHandler.Stats)
					r.Get("/agents/me/dashboard", agentHandler.Dashboard)

					r.Get("/templates", dealHandler.ListTemplates)
					r.Get("/templates/{id}", dealHandler.GetTemplate)

					r.Route("/deals", func(r chi.Router) {
						r.Get("/", dealHandler.List)
						r.Post("/", dealHandler.Create)
						r.Get("/can-create", dealHandler.CanCreate)

						r.Route("/{id}", func(r chi.Router) {
							r.Get("/", dealHandler.Get)
							r.Put("/", dealHandler.Update)
							r.Delete("/", dealHandler.Delete)
							r.Get("/analytics", dealHandler.Analytics)

							r.Get("/steps", dealHandler.ListSteps)
							r.Post("/steps", dealHandler.CreateStep)
							r.Put("/steps/{stepId}", dealHandler.UpdateStep)
							r.Delete("/steps/{stepId}", dealHandler.DeleteStep)

							r.Get("/documents", documentHandler.List)
							r.Post("/documents", documentHandler.Upload)
							r.Get("/documents/{docId}/download", documentHandler.Download)
							r.Delete("/documents/{docId}", documentHandler.Delete)
							r.Post("/documents/{docId}/signature", documentHandler.RequestSignature)
							r.Get("/documents/{docId}/signature", documentHandler.SignatureStatus)
						})
					})

					r.Route("/organization", func(r chi.Router) {
						r.Get("/", orgHandler.Get)
						r.Get("/members", orgHandler.Members)

						r.Group(func(r chi.Router) {
							r.Use(middleware.RequireAdmin)
							r.Put("/", orgHandler.Update)
							r.Put("/members/{agentId}/role", orgHandler.ChangeRole)
							r.Delete("/members/{agentId}", orgHandler.RemoveMember)
							r.Post("/transfer-admin", orgHandler.TransferAdmin)
							r.Get("/invitations", orgHandler.Invitations)
							r.Post("/invitations", orgHandler.Invite)
							r.Delete("/invitations/{id}", orgHandler.CancelInvitation)
						})

						r.Group(func(r chi.Router) {
							r.Use(middleware.RequireTeamLeadOrAbove)
							r.Get("/deals", orgHandler.TeamDeals)
							r.Get("/stats", orgHandler.TeamStats)
							r.Get("/dashboard", orgHandler.Dashboard)
							r.Get("/members/{agentId}/dashboard", orgHandler.MemberDashboard)
							r.Put("/deals/{dealId}/assign", orgHandler.AssignDeal)
						})
					})

					r.Get("/billing/subscription", billingHandler.Subscription)
					r.Group(func(r chi.Router) {
						r.Use(middleware.RequireAdmin)
						r.Post("/billing/checkout", billingHandler.Checkout)
						r.Post("/billing/portal", billingHandler.Portal)
						r.Post("/billing/sync", billingHandler.Sync)
					})
				})
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"Not found"}`))
	})

	return &Router{r}
}
