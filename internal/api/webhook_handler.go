package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/agentpay/agentpay/internal/audit"
	"github.com/agentpay/agentpay/internal/gateway"
	"github.com/agentpay/agentpay/internal/txn"
	"github.com/jackc/pgx/v5"
	"github.com/stripe/stripe-go/v76"
)

type webhookHandler struct {
	txns    TransactionStore
	auditor Auditor
	// verify is swapped for a stub in tests; the default checks the
	// Stripe-Signature header against the webhook secret.
	verify func(payload []byte, sigHeader string) (stripe.Event, error)
}

func newWebhookHandler(txns TransactionStore, auditor Auditor, webhookSecret string) *webhookHandler {
	return &webhookHandler{
		txns:    txns,
		auditor: auditor,
		verify: func(payload []byte, sigHeader string) (stripe.Event, error) {
			return gateway.VerifyWebhookEvent(payload, sigHeader, webhookSecret)
		},
	}
}

// paymentIntentEvent is the slice of the intent payload this service reads.
type paymentIntentEvent struct {
	ID       string            `json:"id"`
	Metadata map[string]string `json:"metadata"`
}

// HandleWebhook settles transactions from gateway callbacks. The transaction
// id rides in the intent metadata; events without it (charges created outside
// this service) are acknowledged and ignored. Verified events always get a
// 200 so the gateway does not retry what we chose to skip.
func (h *webhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	sig := r.Header.Get("Stripe-Signature")
	if sig == "" {
		writeError(w, http.StatusBadRequest, "missing_signature", "missing Stripe-Signature header")
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "failed to read request body")
		return
	}

	event, err := h.verify(payload, sig)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_signature", "webhook signature verification failed")
		return
	}

	switch event.Type {
	case "payment_intent.succeeded":
		h.settle(r.Context(), event, true)
	case "payment_intent.payment_failed":
		h.settle(r.Context(), event, false)
	}

	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// settle applies one terminal intent event to its transaction.
func (h *webhookHandler) settle(ctx context.Context, event stripe.Event, succeeded bool) {
	var intent paymentIntentEvent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		slog.Error("webhook payload unmarshal failed", "event_type", event.Type, "error", err)
		return
	}
	transactionID := intent.Metadata["transaction_id"]
	if transactionID == "" {
		return
	}

	t, err := h.txns.GetByID(ctx, transactionID)
	if errors.Is(err, pgx.ErrNoRows) {
		slog.Warn("webhook for unknown transaction", "transaction_id", transactionID)
		return
	}
	if err != nil {
		slog.Error("webhook transaction lookup failed", "transaction_id", transactionID, "error", err)
		return
	}

	if succeeded {
		moved, err := h.txns.UpdateStatus(ctx, t.ID, txn.StatusProcessing, txn.StatusCompleted)
		if err != nil {
			slog.Error("webhook completion failed", "transaction_id", t.ID, "error", err)
			return
		}
		if !moved {
			// Duplicate delivery or an out-of-order event; the first
			// delivery already settled the row.
			return
		}
		h.auditor.AppendBestEffort(ctx, audit.Entry{
			AgentID:       t.AgentID,
			TransactionID: t.ID,
			Action:        "payment.completed",
			Details:       map[string]any{"stripe_payment_intent_id": intent.ID},
		})
		return
	}

	if t.Status.Terminal() {
		return
	}
	moved, err := h.txns.UpdateStatus(ctx, t.ID, t.Status, txn.StatusDeclined)
	if err != nil {
		slog.Error("webhook decline failed", "transaction_id", t.ID, "error", err)
		return
	}
	if !moved {
		return
	}
	h.auditor.AppendBestEffort(ctx, audit.Entry{
		AgentID:       t.AgentID,
		TransactionID: t.ID,
		Action:        "payment.failed",
		Details:       map[string]any{"stripe_payment_intent_id": intent.ID},
	})
}
