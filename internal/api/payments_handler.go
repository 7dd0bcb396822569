package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/agentpay/agentpay/internal/audit"
	"github.com/agentpay/agentpay/internal/auth"
	"github.com/agentpay/agentpay/internal/budget"
	"github.com/agentpay/agentpay/internal/metrics"
	"github.com/agentpay/agentpay/internal/queue"
	"github.com/agentpay/agentpay/internal/txn"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type paymentsHandler struct {
	txns    TransactionStore
	limits  LimitsProvider
	ledger  SpendLedger
	auditor Auditor
	jobs    Enqueuer
	metrics *metrics.Metrics
}

func newPaymentsHandler(txns TransactionStore, limits LimitsProvider, ledger SpendLedger, auditor Auditor, jobs Enqueuer, m *metrics.Metrics) *paymentsHandler {
	return &paymentsHandler{txns: txns, limits: limits, ledger: ledger, auditor: auditor, jobs: jobs, metrics: m}
}

type paymentRequest struct {
	AmountCents    int64          `json:"amount_cents"`
	Currency       string         `json:"currency"`
	Purpose        string         `json:"purpose"`
	IdempotencyKey string         `json:"idempotency_key"`
	Context        map[string]any `json:"context"`
}

type paymentResponse struct {
	Status        txn.Status `json:"status"`
	TransactionID string     `json:"transaction_id"`
	Idempotent    bool       `json:"idempotent,omitempty"`
}

// CreatePaymentRequest is the admission path: resolve idempotency, classify
// against limits, atomically reserve daily spend for auto-approvals, persist
// the transaction, and hand off to the matching background queue. The
// reservation happens before the insert, so every failure after a successful
// reserve releases it before reporting the error.
func (h *paymentsHandler) CreatePaymentRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := auth.AgentFromContext(ctx)

	var req paymentRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.AmountCents < 1 {
		writeError(w, http.StatusBadRequest, "validation_error", "amount_cents must be at least 1")
		return
	}
	if req.IdempotencyKey == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "idempotency_key is required")
		return
	}
	if req.Currency == "" {
		req.Currency = "USD"
	}

	existing, err := h.txns.GetByIdempotencyKey(ctx, caller.ID, req.IdempotencyKey)
	if err == nil {
		h.metrics.IncAdmissionDecision("idempotent_replay")
		writeJSON(w, http.StatusOK, paymentResponse{
			Status:        existing.Status,
			TransactionID: existing.ID,
			Idempotent:    true,
		})
		return
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		slog.Error("idempotency lookup failed", "agent_id", caller.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to process payment request")
		return
	}

	limits, err := h.limits.Get(ctx, caller.ID)
	if err != nil && !errors.Is(err, budget.ErrNoLimits) {
		slog.Error("limits lookup failed", "agent_id", caller.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to process payment request")
		return
	}

	spend, err := h.ledger.DailySpend(ctx, caller.ID)
	if err != nil {
		slog.Error("daily spend read failed", "agent_id", caller.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to process payment request")
		return
	}

	decision := budget.Check(limits, spend, req.AmountCents)
	if !decision.OK {
		h.rejectBudget(w, r, caller.ID, "", req.AmountCents, string(decision.Reason))
		return
	}

	status := txn.StatusPending
	reserved := false
	if decision.AutoApprove {
		ok, _, err := h.ledger.Reserve(ctx, caller.ID, req.AmountCents, decision.DailyLimitCents)
		if err != nil {
			slog.Error("spend reservation failed", "agent_id", caller.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to process payment request")
			return
		}
		if !ok {
			// The atomic reserve is the acceptance authority; the pre-check
			// above was only advisory and can be stale under concurrency.
			h.rejectBudget(w, r, caller.ID, "", req.AmountCents, string(budget.ReasonDailyExceeded))
			return
		}
		status = txn.StatusApproved
		reserved = true
		h.metrics.ReservationsTotal.Inc()
	}

	t, err := h.txns.Create(ctx, txn.CreateInput{
		ID:             uuid.NewString(),
		AgentID:        caller.ID,
		OrganizationID: caller.OrganizationID,
		AmountCents:    req.AmountCents,
		Currency:       req.Currency,
		Status:         status,
		Purpose:        req.Purpose,
		Context:        req.Context,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		h.compensate(r, caller.ID, req.AmountCents, reserved)
		slog.Error("transaction insert failed", "agent_id", caller.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to process payment request")
		return
	}

	if status == txn.StatusApproved {
		h.auditor.AppendBestEffort(ctx, audit.Entry{
			AgentID:       caller.ID,
			TransactionID: t.ID,
			Action:        "payment.approved",
			Details:       map[string]any{"amount_cents": req.AmountCents},
		})
		err = h.jobs.Enqueue(ctx, queue.ChargeQueue, t.ID)
	} else {
		h.auditor.AppendBestEffort(ctx, audit.Entry{
			AgentID:       caller.ID,
			TransactionID: t.ID,
			Action:        "payment.pending",
			Details:       map[string]any{"amount_cents": req.AmountCents},
		})
		err = h.jobs.Enqueue(ctx, queue.ApprovalEmailQueue, t.ID)
	}
	if err != nil {
		h.compensate(r, caller.ID, req.AmountCents, reserved)
		slog.Error("job enqueue failed", "transaction_id", t.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to process payment request")
		return
	}

	if status == txn.StatusApproved {
		h.metrics.IncAdmissionDecision("accepted")
		h.metrics.IncQueueJob(queue.ChargeQueue)
	} else {
		h.metrics.IncAdmissionDecision("pending")
		h.metrics.IncQueueJob(queue.ApprovalEmailQueue)
	}

	writeJSON(w, http.StatusOK, paymentResponse{Status: status, TransactionID: t.ID})
}

// rejectBudget audits a budget rejection and writes the 402 response.
func (h *paymentsHandler) rejectBudget(w http.ResponseWriter, r *http.Request, agentID, transactionID string, amountCents int64, reason string) {
	h.auditor.AppendBestEffort(r.Context(), audit.Entry{
		AgentID:       agentID,
		TransactionID: transactionID,
		Action:        "budget.exceeded",
		Details:       map[string]any{"amount_cents": amountCents, "reason": reason},
	})
	h.metrics.IncAdmissionDecision("rejected")
	writeBudgetRejection(w, reason)
}

// compensate gives back a reservation when a later step failed. Best effort:
// the daily counter expires at midnight anyway, so a failed release only
// overstates spend until then.
func (h *paymentsHandler) compensate(r *http.Request, agentID string, amountCents int64, reserved bool) {
	if !reserved {
		return
	}
	if _, err := h.ledger.Release(r.Context(), agentID, amountCents); err != nil {
		slog.Error("reservation release failed", "agent_id", agentID, "amount_cents", amountCents, "error", err)
		return
	}
	h.metrics.ReleasesTotal.Inc()
}
