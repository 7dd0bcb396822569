package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/agentpay/agentpay/internal/agent"
	"github.com/agentpay/agentpay/internal/auth"
	"github.com/agentpay/agentpay/internal/budget"
	"github.com/agentpay/agentpay/internal/txn"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Default limits applied to agents created from the dashboard, matching the
// seed data: $1000/day, $500/tx, $100 auto-approval threshold.
const (
	defaultDailyLimitCents        = 100000
	defaultPerTxLimitCents        = 50000
	defaultApprovalThresholdCents = 10000
)

// AuditReader lists audit entries for the dashboard.
type AuditReader interface {
	ListByOrganization(ctx context.Context, organizationID string, limit int) ([]map[string]any, error)
}

type dashboardHandler struct {
	txns   TransactionStore
	agents AgentAdmin
	limits LimitsProvider
	audits AuditReader
}

func newDashboardHandler(txns TransactionStore, agents AgentAdmin, limits LimitsProvider, audits AuditReader) *dashboardHandler {
	return &dashboardHandler{txns: txns, agents: agents, limits: limits, audits: audits}
}

// ListTransactions returns the organization's recent transactions,
// optionally filtered by status.
func (h *dashboardHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	session := auth.SessionFromContext(r.Context())

	params := txn.ListParams{
		Status: txn.Status(r.URL.Query().Get("status")),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			params.Limit = n
		}
	}

	txns, err := h.txns.ListByOrganization(r.Context(), session.OrganizationID, params)
	if err != nil {
		slog.Error("transaction listing failed", "organization_id", session.OrganizationID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list transactions")
		return
	}
	if txns == nil {
		txns = []*txn.Transaction{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txns})
}

// ListAgents returns the organization's agents.
func (h *dashboardHandler) ListAgents(w http.ResponseWriter, r *http.Request) {
	session := auth.SessionFromContext(r.Context())

	agents, err := h.agents.ListByOrganization(r.Context(), session.OrganizationID)
	if err != nil {
		slog.Error("agent listing failed", "organization_id", session.OrganizationID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list agents")
		return
	}
	if agents == nil {
		agents = []*agent.Agent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": agents})
}

type createAgentRequest struct {
	Name string `json:"name"`
}

type createAgentResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	APIKey string `json:"api_key"`
}

// CreateAgent provisions a new agent with default limits. The plaintext API
// key appears in this response and nowhere else.
func (h *dashboardHandler) CreateAgent(w http.ResponseWriter, r *http.Request) {
	session := auth.SessionFromContext(r.Context())

	var req createAgentRequest
	_ = readJSON(r, &req) // empty body means default name
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = "New Agent"
	}

	hash, plaintext, err := auth.GenerateAPIKey()
	if err != nil {
		slog.Error("api key generation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to create agent")
		return
	}

	a, err := h.agents.Create(r.Context(), agent.CreateAgentInput{
		ID:             uuid.NewString(),
		OrganizationID: session.OrganizationID,
		Name:           name,
		APIKeyHash:     hash,
	})
	if err != nil {
		slog.Error("agent creation failed", "organization_id", session.OrganizationID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to create agent")
		return
	}

	if _, err := h.limits.Set(r.Context(), budget.SetLimitsInput{
		AgentID:                a.ID,
		DailyLimitCents:        defaultDailyLimitCents,
		PerTxLimitCents:        defaultPerTxLimitCents,
		ApprovalThresholdCents: defaultApprovalThresholdCents,
	}); err != nil {
		slog.Error("default limits setup failed", "agent_id", a.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to create agent")
		return
	}

	writeJSON(w, http.StatusOK, createAgentResponse{ID: a.ID, Name: a.Name, APIKey: plaintext})
}

type setLimitsRequest struct {
	DailyLimitCents        *int64 `json:"daily_limit_cents"`
	PerTxLimitCents        *int64 `json:"per_tx_limit_cents"`
	ApprovalThresholdCents *int64 `json:"approval_threshold_cents"`
}

// SetAgentLimits upserts an agent's budget limits. Omitted fields fall back
// to the defaults rather than preserving previous values.
func (h *dashboardHandler) SetAgentLimits(w http.ResponseWriter, r *http.Request) {
	session := auth.SessionFromContext(r.Context())
	agentID := chi.URLParam(r, "id")

	owned, err := h.agents.BelongsTo(r.Context(), agentID, session.OrganizationID)
	if err != nil {
		slog.Error("agent ownership check failed", "agent_id", agentID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to update limits")
		return
	}
	if !owned {
		writeError(w, http.StatusNotFound, "not_found", "agent not found")
		return
	}

	var req setLimitsRequest
	_ = readJSON(r, &req)

	in := budget.SetLimitsInput{
		AgentID:                agentID,
		DailyLimitCents:        defaultDailyLimitCents,
		PerTxLimitCents:        defaultPerTxLimitCents,
		ApprovalThresholdCents: defaultApprovalThresholdCents,
	}
	if req.DailyLimitCents != nil {
		in.DailyLimitCents = *req.DailyLimitCents
	}
	if req.PerTxLimitCents != nil {
		in.PerTxLimitCents = *req.PerTxLimitCents
	}
	if req.ApprovalThresholdCents != nil {
		in.ApprovalThresholdCents = *req.ApprovalThresholdCents
	}

	if _, err := h.limits.Set(r.Context(), in); err != nil {
		slog.Error("limits update failed", "agent_id", agentID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to update limits")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// ListAuditLog returns the organization's recent audit entries.
func (h *dashboardHandler) ListAuditLog(w http.ResponseWriter, r *http.Request) {
	session := auth.SessionFromContext(r.Context())

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	entries, err := h.audits.ListByOrganization(r.Context(), session.OrganizationID, limit)
	if err != nil {
		slog.Error("audit listing failed", "organization_id", session.OrganizationID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list audit log")
		return
	}
	if entries == nil {
		entries = []map[string]any{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
