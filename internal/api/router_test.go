package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/agentpay/agentpay/internal/auth"
	"github.com/agentpay/agentpay/internal/budget"
	"github.com/agentpay/agentpay/internal/coord"
	"github.com/agentpay/agentpay/internal/metrics"
)

type fakeAgentLookup struct {
	agents map[string]*auth.Agent // key hash -> agent
}

func (f *fakeAgentLookup) GetByKeyHash(_ context.Context, hash string) (*auth.Agent, error) {
	a, ok := f.agents[hash]
	if !ok {
		return nil, errors.New("agent not found")
	}
	return a, nil
}

func newTestRouter(dbPing, redisPing PingFunc, lookup *fakeAgentLookup) http.Handler {
	if lookup == nil {
		lookup = &fakeAgentLookup{agents: map[string]*auth.Agent{}}
	}
	store := coord.NewMemory()
	return NewRouter(RouterDeps{
		Txns:    newFakeTxnStore(),
		Limits:  &fakeLimits{limits: standardLimits()},
		Ledger:  budget.NewLedger(store),
		Auditor: &fakeAuditor{},
		Jobs:    newFakeQueue(),

		Auth:     auth.NewService(lookup),
		Sessions: auth.NewSessionManager("test-secret", time.Hour),
		Coord:    store,
		Metrics:  metrics.New(),

		BaseURL:         "http://localhost:8080",
		DashboardOrigin: "http://localhost:3001",

		DBPing:    dbPing,
		RedisPing: redisPing,
	})
}

func TestHealthReportsConnectedStores(t *testing.T) {
	ok := func(context.Context) error { return nil }
	router := newTestRouter(ok, ok, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body["status"] != "ok" || body["database"] != "connected" || body["redis"] != "connected" {
		t.Errorf("body = %v", body)
	}
}

func TestHealthDegradedWhenDatabaseDown(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }
	router := newTestRouter(down, ok, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	var body map[string]string
	_ = json.NewDecoder(rec.Body).Decode(&body)
	if body["status"] != "degraded" || body["database"] != "unreachable" {
		t.Errorf("body = %v", body)
	}
}

func TestAgentRoutesRequireAPIKey(t *testing.T) {
	router := newTestRouter(nil, nil, nil)

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/v1/payment-request"},
		{http.MethodGet, "/v1/transactions/tx-1"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
		})
	}
}

func TestAgentAuthResolvesKey(t *testing.T) {
	plaintext := "agentpay_testkey"
	lookup := &fakeAgentLookup{agents: map[string]*auth.Agent{
		auth.HashKey(plaintext): {ID: "agent-1", OrganizationID: "org-1", Name: "buyer"},
	}}
	router := newTestRouter(nil, nil, lookup)

	req := httptest.NewRequest(http.MethodPost, "/v1/payment-request",
		strings.NewReader(`{"amount_cents": 2500, "idempotency_key": "k1"}`))
	req.Header.Set("Authorization", "Bearer "+plaintext)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestDashboardRoutesRequireSession(t *testing.T) {
	router := newTestRouter(nil, nil, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/dashboard/transactions", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestWellKnownManifest(t *testing.T) {
	router := newTestRouter(nil, nil, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/.well-known/agentpay.json", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var manifest map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&manifest); err != nil {
		t.Fatalf("manifest is not valid JSON: %v", err)
	}
	if manifest["name"] != "AgentPay" {
		t.Errorf("name = %v", manifest["name"])
	}
}

func TestResponseCarriesRequestIDAndSecureHeaders(t *testing.T) {
	router := newTestRouter(nil, nil, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", rec.Header().Get("X-Content-Type-Options"))
	}
}

func TestMetricsEndpoints(t *testing.T) {
	router := newTestRouter(nil, nil, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("/metrics status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("/api/metrics status = %d, want 200", rec.Code)
	}
	var summary map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&summary); err != nil {
		t.Errorf("summary is not valid JSON: %v", err)
	}
}
