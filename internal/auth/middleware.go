package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

type contextKey int

const (
	agentContextKey contextKey = iota
	sessionContextKey
)

// ContextWithAgent returns a new context carrying the given agent.
func ContextWithAgent(ctx context.Context, agent *Agent) context.Context {
	return context.WithValue(ctx, agentContextKey, agent)
}

// AgentFromContext extracts the agent from the context, or nil if not present.
func AgentFromContext(ctx context.Context) *Agent {
	agent, _ := ctx.Value(agentContextKey).(*Agent)
	return agent
}

// ContextWithSession returns a new context carrying a dashboard session.
func ContextWithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, s)
}

// SessionFromContext extracts the dashboard session, or nil if not present.
func SessionFromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(sessionContextKey).(*Session)
	return s
}

// AgentAuthMiddleware returns middleware that authenticates requests using an
// API key in the Authorization header. The key is hashed and looked up via
// the service's agent store; inactive agents never resolve. On success the
// agent is injected into the request context. Optional onFail hooks observe
// rejected requests.
func AgentAuthMiddleware(svc *Service, onFail ...func(*http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearerToken(r)
			if token == "" {
				notifyFail(onFail, r)
				writeUnauthorized(w, "missing or malformed authorization header")
				return
			}

			agent, err := svc.store.GetByKeyHash(r.Context(), HashKey(token))
			if err != nil || agent == nil {
				notifyFail(onFail, r)
				writeUnauthorized(w, "invalid or inactive api key")
				return
			}

			ctx := ContextWithAgent(r.Context(), agent)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionAuthMiddleware validates a dashboard session JWT (bearer header or
// agentpay_session cookie) and injects the session into the context.
func SessionAuthMiddleware(sessions *SessionManager, onFail ...func(*http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearerToken(r)
			if token == "" {
				if c, err := r.Cookie("agentpay_session"); err == nil {
					token = c.Value
				}
			}
			if token == "" {
				notifyFail(onFail, r)
				writeUnauthorized(w, "not authenticated")
				return
			}

			session, err := sessions.Verify(token)
			if err != nil {
				notifyFail(onFail, r)
				writeUnauthorized(w, "invalid or expired session")
				return
			}

			ctx := ContextWithSession(r.Context(), session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func notifyFail(hooks []func(*http.Request), r *http.Request) {
	for _, h := range hooks {
		h(r)
	}
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Error: errorBody{Code: "unauthorized", Message: message},
	})
}
