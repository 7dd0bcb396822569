package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/agentpay/agentpay/internal/approval"
	"github.com/agentpay/agentpay/internal/audit"
	"github.com/agentpay/agentpay/internal/budget"
	"github.com/agentpay/agentpay/internal/metrics"
	"github.com/agentpay/agentpay/internal/queue"
	"github.com/agentpay/agentpay/internal/txn"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
)

type approvalsHandler struct {
	tokens  TokenConsumer
	txns    TransactionStore
	limits  LimitsProvider
	ledger  SpendLedger
	auditor Auditor
	jobs    Enqueuer
	metrics *metrics.Metrics
}

func newApprovalsHandler(tokens TokenConsumer, txns TransactionStore, limits LimitsProvider, ledger SpendLedger, auditor Auditor, jobs Enqueuer, m *metrics.Metrics) *approvalsHandler {
	return &approvalsHandler{tokens: tokens, txns: txns, limits: limits, ledger: ledger, auditor: auditor, jobs: jobs, metrics: m}
}

type approvalResponse struct {
	OK            bool   `json:"ok"`
	TransactionID string `json:"transaction_id"`
}

// Approve handles a clicked approval link. Token consumption is the
// single-use gate; the reservation happens only after the transaction is
// confirmed pending, and is released if the optimistic approve loses a race.
func (h *approvalsHandler) Approve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	claims, ok := h.consumeToken(w, r, approval.ActionApprove)
	if !ok {
		return
	}

	t, err := h.txns.GetByID(ctx, claims.TransactionID)
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusNotFound, "not_found", "transaction not found")
		return
	}
	if err != nil {
		slog.Error("transaction lookup failed", "transaction_id", claims.TransactionID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to process approval")
		return
	}
	if t.Status != txn.StatusPending {
		writeError(w, http.StatusBadRequest, "not_pending", "transaction no longer pending")
		return
	}

	limits, err := h.limits.Get(ctx, t.AgentID)
	if errors.Is(err, budget.ErrNoLimits) {
		writeError(w, http.StatusBadRequest, "no_limits", "no budget limits configured for agent")
		return
	}
	if err != nil {
		slog.Error("limits lookup failed", "agent_id", t.AgentID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to process approval")
		return
	}

	reserved, _, err := h.ledger.Reserve(ctx, t.AgentID, t.AmountCents, limits.DailyLimitCents)
	if err != nil {
		slog.Error("spend reservation failed", "agent_id", t.AgentID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to process approval")
		return
	}
	if !reserved {
		h.auditor.AppendBestEffort(ctx, audit.Entry{
			AgentID:       t.AgentID,
			TransactionID: t.ID,
			Action:        "budget.exceeded",
			Details: map[string]any{
				"amount_cents": t.AmountCents,
				"reason":       string(budget.ReasonDailyExceeded),
				"source":       "approval_link",
			},
		})
		writeBudgetRejection(w, string(budget.ReasonDailyExceeded))
		return
	}
	h.metrics.ReservationsTotal.Inc()

	moved, err := h.txns.UpdateStatus(ctx, t.ID, txn.StatusPending, txn.StatusApproved)
	if err != nil {
		h.release(r, t.AgentID, t.AmountCents)
		slog.Error("approve transition failed", "transaction_id", t.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to process approval")
		return
	}
	if !moved {
		// Another actor resolved the transaction between the pending check
		// and the write. Give the reservation back.
		h.release(r, t.AgentID, t.AmountCents)
		writeError(w, http.StatusConflict, "conflict", "transaction no longer pending")
		return
	}

	h.auditor.AppendBestEffort(ctx, audit.Entry{
		AgentID:       t.AgentID,
		TransactionID: t.ID,
		Action:        "payment.approved",
		Details:       map[string]any{"source": "approval_link"},
	})

	if err := h.jobs.Enqueue(ctx, queue.ChargeQueue, t.ID); err != nil {
		// The transaction is already approved; the charge worker can be
		// re-driven from it, so this is not compensated.
		slog.Error("charge enqueue failed", "transaction_id", t.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to process approval")
		return
	}
	h.metrics.IncQueueJob(queue.ChargeQueue)

	writeJSON(w, http.StatusOK, approvalResponse{OK: true, TransactionID: t.ID})
}

// Decline handles a clicked decline link. No reservation is ever taken on
// this path; declining only needs the optimistic pending -> declined write.
func (h *approvalsHandler) Decline(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	claims, ok := h.consumeToken(w, r, approval.ActionDecline)
	if !ok {
		return
	}

	t, err := h.txns.GetByID(ctx, claims.TransactionID)
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusNotFound, "not_found", "transaction not found")
		return
	}
	if err != nil {
		slog.Error("transaction lookup failed", "transaction_id", claims.TransactionID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to process decline")
		return
	}
	if t.Status != txn.StatusPending {
		writeError(w, http.StatusBadRequest, "not_pending", "transaction no longer pending")
		return
	}

	moved, err := h.txns.UpdateStatus(ctx, t.ID, txn.StatusPending, txn.StatusDeclined)
	if err != nil {
		slog.Error("decline transition failed", "transaction_id", t.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to process decline")
		return
	}
	if !moved {
		writeError(w, http.StatusConflict, "conflict", "transaction no longer pending")
		return
	}

	h.auditor.AppendBestEffort(ctx, audit.Entry{
		AgentID:       t.AgentID,
		TransactionID: t.ID,
		Action:        "payment.declined",
		Details:       map[string]any{"source": "approval_link"},
	})

	writeJSON(w, http.StatusOK, approvalResponse{OK: true, TransactionID: t.ID})
}

// consumeToken verifies the URL token, checks it carries the expected action,
// and consumes its jti. It writes the error response and returns ok=false on
// any failure, auditing replays.
func (h *approvalsHandler) consumeToken(w http.ResponseWriter, r *http.Request, want approval.Action) (*approval.Claims, bool) {
	ctx := r.Context()

	claims, err := h.tokens.Verify(chi.URLParam(r, "token"))
	if err != nil || claims.Action != want {
		writeError(w, http.StatusBadRequest, "invalid_token", "invalid or expired token")
		return nil, false
	}

	state, err := h.tokens.Consume(ctx, claims.JTI())
	if err != nil {
		slog.Error("token consume failed", "transaction_id", claims.TransactionID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to process approval link")
		return nil, false
	}
	h.metrics.IncTokenConsumption(string(state))

	switch state {
	case approval.StateMissing:
		writeError(w, http.StatusBadRequest, "invalid_token", "invalid or expired token")
		return nil, false
	case approval.StateUsed:
		if t, err := h.txns.GetByID(ctx, claims.TransactionID); err == nil {
			h.auditor.AppendBestEffort(ctx, audit.Entry{
				AgentID:       t.AgentID,
				TransactionID: t.ID,
				Action:        "payment.approval_link.replay_attempt",
				Details:       map[string]any{"action": string(want)},
			})
		}
		writeError(w, http.StatusConflict, "link_used", "link already used")
		return nil, false
	}
	return claims, true
}

func (h *approvalsHandler) release(r *http.Request, agentID string, amountCents int64) {
	if _, err := h.ledger.Release(r.Context(), agentID, amountCents); err != nil {
		slog.Error("reservation release failed", "agent_id", agentID, "amount_cents", amountCents, "error", err)
		return
	}
	h.metrics.ReleasesTotal.Inc()
}
