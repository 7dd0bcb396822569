package metrics

import (
	"encoding/json"
	"net/http"
	"time"

	dto "github.com/prometheus/client_model/go"
)

// Summary is the JSON shape of the dashboard metrics endpoint.
type Summary struct {
	HTTP      httpSummary        `json:"http"`
	Admission admissionInfo      `json:"admission"`
	Approval  approvalInfo       `json:"approval"`
	RateLimit rateLimitInfo      `json:"rateLimit"`
	Auth      authInfo           `json:"auth"`
	Queue     map[string]float64 `json:"queue"`
	DB        dbInfo             `json:"db"`
	Server    serverInfo         `json:"server"`
}

type httpSummary struct {
	TotalRequests float64 `json:"totalRequests"`
	ErrorRate     float64 `json:"errorRate"`
}

type admissionInfo struct {
	Accepted     float64 `json:"accepted"`
	Pending      float64 `json:"pending"`
	Rejected     float64 `json:"rejected"`
	Reservations float64 `json:"reservations"`
	Releases     float64 `json:"releases"`
}

type approvalInfo struct {
	Consumed       float64 `json:"consumed"`
	ReplayAttempts float64 `json:"replayAttempts"`
	Expired        float64 `json:"expired"`
}

type rateLimitInfo struct {
	Rejections float64 `json:"rejections"`
}

type authInfo struct {
	Failures float64 `json:"failures"`
}

type dbInfo struct {
	TotalConns    float64 `json:"totalConns"`
	IdleConns     float64 `json:"idleConns"`
	AcquiredConns float64 `json:"acquiredConns"`
}

type serverInfo struct {
	StartTime     float64 `json:"startTime"`
	UptimeSeconds float64 `json:"uptimeSeconds"`
}

// SummaryHandler serves a dashboard-friendly JSON digest of the registry.
// The raw Prometheus exposition lives on /metrics via promhttp.
func (m *Metrics) SummaryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		families, err := m.registry.Gather()
		if err != nil {
			http.Error(w, "failed to gather metrics", http.StatusInternalServerError)
			return
		}

		fam := make(map[string]*dto.MetricFamily, len(families))
		for _, f := range families {
			fam[f.GetName()] = f
		}

		startTime := gaugeValue(fam["agentpay_server_start_time_seconds"])
		summary := Summary{
			HTTP: httpSummary{
				TotalRequests: sumCounter(fam["agentpay_http_requests_total"]),
				ErrorRate:     computeErrorRate(fam["agentpay_http_requests_total"]),
			},
			Admission: admissionInfo{
				Accepted:     counterWithLabel(fam["agentpay_admission_decisions_total"], "outcome", "accepted"),
				Pending:      counterWithLabel(fam["agentpay_admission_decisions_total"], "outcome", "pending"),
				Rejected:     counterWithLabel(fam["agentpay_admission_decisions_total"], "outcome", "rejected"),
				Reservations: counterValue(fam["agentpay_spend_reservations_total"]),
				Releases:     counterValue(fam["agentpay_spend_releases_total"]),
			},
			Approval: approvalInfo{
				Consumed:       counterWithLabel(fam["agentpay_approval_token_consumptions_total"], "state", "unused"),
				ReplayAttempts: counterValue(fam["agentpay_approval_replay_attempts_total"]),
				Expired:        counterWithLabel(fam["agentpay_approval_token_consumptions_total"], "state", "missing"),
			},
			RateLimit: rateLimitInfo{
				Rejections: counterValue(fam["agentpay_ratelimit_rejections_total"]),
			},
			Auth: authInfo{
				Failures: sumCounter(fam["agentpay_auth_failures_total"]),
			},
			Queue: counterByLabel(fam["agentpay_queue_jobs_total"], "queue"),
			DB: dbInfo{
				TotalConns:    gaugeValue(fam["agentpay_db_pool_total_conns"]),
				IdleConns:     gaugeValue(fam["agentpay_db_pool_idle_conns"]),
				AcquiredConns: gaugeValue(fam["agentpay_db_pool_acquired_conns"]),
			},
			Server: serverInfo{
				StartTime:     startTime,
				UptimeSeconds: float64(time.Now().Unix()) - startTime,
			},
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache, no-store")
		_ = json.NewEncoder(w).Encode(summary)
	}
}

func sumCounter(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	var total float64
	for _, m := range f.GetMetric() {
		if m.GetCounter() != nil {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func gaugeValue(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	ms := f.GetMetric()
	if len(ms) == 0 || ms[0].GetGauge() == nil {
		return 0
	}
	return ms[0].GetGauge().GetValue()
}

func counterValue(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	ms := f.GetMetric()
	if len(ms) == 0 || ms[0].GetCounter() == nil {
		return 0
	}
	return ms[0].GetCounter().GetValue()
}

func counterWithLabel(f *dto.MetricFamily, labelName, labelValue string) float64 {
	if f == nil {
		return 0
	}
	for _, m := range f.GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == labelName && lp.GetValue() == labelValue && m.GetCounter() != nil {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func counterByLabel(f *dto.MetricFamily, labelName string) map[string]float64 {
	out := make(map[string]float64)
	if f == nil {
		return out
	}
	for _, m := range f.GetMetric() {
		if m.GetCounter() == nil {
			continue
		}
		for _, lp := range m.GetLabel() {
			if lp.GetName() == labelName {
				out[lp.GetValue()] += m.GetCounter().GetValue()
			}
		}
	}
	return out
}

func computeErrorRate(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	var total, errors float64
	for _, m := range f.GetMetric() {
		if m.GetCounter() == nil {
			continue
		}
		v := m.GetCounter().GetValue()
		total += v
		for _, lp := range m.GetLabel() {
			if lp.GetName() == "status_code" {
				code := lp.GetValue()
				if len(code) > 0 && code[0] >= '4' {
					errors += v
				}
			}
		}
	}
	if total == 0 {
		return 0
	}
	return errors / total
}
