package api

import "net/http"

// wellKnownManifest is the static JSON manifest for /.well-known/agentpay.json.
const wellKnownManifest = `{
  "name": "AgentPay",
  "description": "Payment authorization control plane for autonomous agents",
  "version": "0.1.0",
  "api_base": "/v1",
  "auth": {
    "type": "bearer",
    "header": "Authorization"
  },
  "endpoints": {
    "payment_request": "/v1/payment-request",
    "transactions": "/v1/transactions/{id}",
    "approve": "/v1/approve/{token}",
    "decline": "/v1/decline/{token}"
  },
  "health": "/health"
}`

// WellKnownHandler returns the static AgentPay well-known manifest.
func WellKnownHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(wellKnownManifest))
}
