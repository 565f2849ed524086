package agentapi

import (
	"context"
	"net/http"
	"strings"
)

type contextKey int

const agentContextKey contextKey = iota

// withAuth resolves the bearer token on every request to an agent name,
// rejecting unauthenticated or unknown-token requests with 401 before the
// wrapped handler ever runs. The resolved name is attached to the request
// context under agentContextKey.
func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(header, prefix) {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		agent, err := s.Tokens.Validate(strings.TrimPrefix(header, prefix))
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}

		ctx := context.WithValue(r.Context(), agentContextKey, agent)
		next(w, r.WithContext(ctx))
	}
}

func agentFromContext(ctx context.Context) string {
	agent, _ := ctx.Value(agentContextKey).(string)
	return agent
}
