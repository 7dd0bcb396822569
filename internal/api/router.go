package api

import (
	"context"
	"net/http"

	"github.com/agentpay/agentpay/internal/audit"
	"github.com/agentpay/agentpay/internal/auth"
	"github.com/agentpay/agentpay/internal/coord"
	"github.com/agentpay/agentpay/internal/metrics"
	"github.com/agentpay/agentpay/internal/notify"
	"github.com/agentpay/agentpay/internal/ratelimit"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PingFunc probes one of the service's backing stores.
type PingFunc func(ctx context.Context) error

// RouterDeps holds all dependencies for the API router.
type RouterDeps struct {
	Txns    TransactionStore
	Limits  LimitsProvider
	Ledger  SpendLedger
	Auditor Auditor
	Jobs    Enqueuer
	Tokens  TokenConsumer
	Orgs    OrganizationStore
	Agents  AgentAdmin
	Audits  AuditReader

	Auth     *auth.Service
	Sessions *auth.SessionManager
	Limiter  *ratelimit.Limiter
	Coord    coord.Store
	Mailer   notify.Mailer
	Metrics  *metrics.Metrics

	WebhookSecret   string
	BaseURL         string
	DashboardOrigin string
	AllowedOrigins  []string

	DBPing    PingFunc
	RedisPing PingFunc
}

// NewRouter builds the chi router with all routes and middleware.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(secureHeaders)
	r.Use(corsMiddleware(deps.AllowedOrigins))
	r.Use(slogRequestLogger(deps.Metrics))

	payments := newPaymentsHandler(deps.Txns, deps.Limits, deps.Ledger, deps.Auditor, deps.Jobs, deps.Metrics)
	approvals := newApprovalsHandler(deps.Tokens, deps.Txns, deps.Limits, deps.Ledger, deps.Auditor, deps.Jobs, deps.Metrics)
	transactions := newTransactionsHandler(deps.Txns)
	webhook := newWebhookHandler(deps.Txns, deps.Auditor, deps.WebhookSecret)
	dashboard := newDashboardHandler(deps.Txns, deps.Agents, deps.Limits, deps.Audits)
	dashboardAuth := newDashboardAuthHandler(deps.Orgs, deps.Sessions, deps.Coord, deps.Mailer, deps.BaseURL, deps.DashboardOrigin)

	r.Get("/health", healthHandler(deps.DBPing, deps.RedisPing))
	r.Get("/.well-known/agentpay.json", WellKnownHandler)

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Metrics.Registry(), promhttp.HandlerOpts{}))
		r.Get("/api/metrics", deps.Metrics.SummaryHandler())
	}

	// Approval links land here from email clients, unauthenticated by
	// design: the token is the credential.
	r.Post("/v1/approve/{token}", approvals.Approve)
	r.Post("/v1/decline/{token}", approvals.Decline)

	// Gateway callbacks, authenticated by webhook signature.
	r.Post("/v1/stripe/webhook", webhook.HandleWebhook)

	// Agent API.
	r.Group(func(ar chi.Router) {
		ar.Use(auth.AgentAuthMiddleware(deps.Auth, authFailureObserver(deps, "api_key")))
		if deps.Limiter != nil {
			ar.Use(ratelimit.Middleware(deps.Limiter, rateLimitObserver(deps)))
		}

		ar.Post("/v1/payment-request", payments.CreatePaymentRequest)
		ar.Get("/v1/transactions/{id}", transactions.GetTransaction)
	})

	// Dashboard login flow (unauthenticated).
	r.Post("/v1/dashboard/login-link", dashboardAuth.LoginLink)
	r.Get("/v1/dashboard/magic-login", dashboardAuth.MagicLogin)
	r.Get("/v1/dashboard/exchange-code", dashboardAuth.ExchangeCode)

	// Dashboard API (session-authed).
	r.Group(func(dr chi.Router) {
		dr.Use(auth.SessionAuthMiddleware(deps.Sessions, authFailureObserver(deps, "session")))

		dr.Get("/v1/dashboard/transactions", dashboard.ListTransactions)
		dr.Get("/v1/dashboard/agents", dashboard.ListAgents)
		dr.Post("/v1/dashboard/agents", dashboard.CreateAgent)
		dr.Put("/v1/dashboard/agents/{id}/limits", dashboard.SetAgentLimits)
		dr.Get("/v1/dashboard/audit", dashboard.ListAuditLog)
	})

	return r
}

// authFailureObserver counts rejected authentication attempts by type.
func authFailureObserver(deps RouterDeps, authType string) func(*http.Request) {
	return func(*http.Request) {
		if deps.Metrics != nil {
			deps.Metrics.IncAuthFailure(authType)
		}
	}
}

// rateLimitObserver audits and counts rate-limit rejections.
func rateLimitObserver(deps RouterDeps) func(r *http.Request, count int64) {
	return func(r *http.Request, count int64) {
		if deps.Metrics != nil {
			deps.Metrics.RateLimitRejectionsTotal.Inc()
		}
		if deps.Auditor == nil {
			return
		}
		if a := auth.AgentFromContext(r.Context()); a != nil {
			deps.Auditor.AppendBestEffort(r.Context(), audit.Entry{
				AgentID: a.ID,
				Action:  "rate_limited",
				Details: map[string]any{"count": count},
			})
		}
	}
}

// healthHandler reports liveness of the process and its backing stores.
func healthHandler(dbPing, redisPing PingFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]string{"status": "ok"}
		status := http.StatusOK

		if dbPing != nil {
			if err := dbPing(r.Context()); err != nil {
				body["status"] = "degraded"
				body["database"] = "unreachable"
				status = http.StatusServiceUnavailable
			} else {
				body["database"] = "connected"
			}
		}
		if redisPing != nil {
			if err := redisPing(r.Context()); err != nil {
				body["status"] = "degraded"
				body["redis"] = "unreachable"
				status = http.StatusServiceUnavailable
			} else {
				body["redis"] = "connected"
			}
		}

		writeJSON(w, status, body)
	}
}
