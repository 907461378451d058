package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/edvart/matchday/internal/web/respond"
)

// ReporterConfig holds the tokens allowed to mutate match data.
type ReporterConfig struct {
	tokens []string
}

// NewReporterConfig creates reporter config from comma-separated tokens.
func NewReporterConfig(tokens []string) *ReporterConfig {
	cfg := &ReporterConfig{}
	for _, t := range tokens {
		if t = strings.TrimSpace(t); t != "" {
			cfg.tokens = append(cfg.tokens, t)
		}
	}
	return cfg
}

// Open reports whether no tokens are configured, in which case every
// request is let through.
func (c *ReporterConfig) Open() bool {
	return len(c.tokens) == 0
}

// IsReporter checks a presented token against the configured ones.
func (c *ReporterConfig) IsReporter(token string) bool {
	if token == "" {
		return false
	}
	for _, t := range c.tokens {
		if subtle.ConstantTimeCompare([]byte(t), []byte(token)) == 1 {
			return true
		}
	}
	return false
}

// TokenFromRequest reads "Authorization: Bearer <token>" or X-Reporter-Token.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(r.Header.Get("X-Reporter-Token"))
}

// ReporterMiddleware creates middleware that requires a reporter token.
func ReporterMiddleware(cfg *ReporterConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Open() {
				next.ServeHTTP(w, r)
				return
			}

			token := TokenFromRequest(r)
			if token == "" {
				respond.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "reporter token required")
				return
			}
			if !cfg.IsReporter(token) {
				respond.Error(w, http.StatusForbidden, "FORBIDDEN", "reporter access required")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
