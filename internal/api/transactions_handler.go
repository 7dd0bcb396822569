package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/agentpay/agentpay/internal/auth"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
)

type transactionsHandler struct {
	txns TransactionStore
}

func newTransactionsHandler(txns TransactionStore) *transactionsHandler {
	return &transactionsHandler{txns: txns}
}

// GetTransaction returns one of the calling agent's own transactions. The
// agent-scoped query doubles as the authorization check: another agent's
// transaction is indistinguishable from a missing one.
func (h *transactionsHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	caller := auth.AgentFromContext(r.Context())
	id := chi.URLParam(r, "id")

	t, err := h.txns.GetForAgent(r.Context(), id, caller.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusNotFound, "not_found", "transaction not found")
		return
	}
	if err != nil {
		slog.Error("transaction lookup failed", "transaction_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load transaction")
		return
	}

	writeJSON(w, http.StatusOK, t)
}
