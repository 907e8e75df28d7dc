package rbac

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/civic-tally/tally/internal/platform/httpx"
	"github.com/civic-tally/tally/internal/shared"
)

// TokenExtractor pulls the raw bearer token out of a request.
type TokenExtractor func(r *http.Request) string

// Middleware wires the authorization gate into HTTP handlers.
type Middleware struct {
	Gate   *Gate
	Logger *slog.Logger
}

// Authenticate runs the gate on the Authorization header and stores the grant.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return m.AuthenticateWith(shared.BearerToken)(next)
}

// AuthenticateWith is Authenticate with a custom token source.
func (m Middleware) AuthenticateWith(extract TokenExtractor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			grant, err := m.Gate.Authorize(r.Context(), extract(r))
			if err != nil {
				m.reject(r, err)
				httpx.RespondError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithGrant(r.Context(), grant)))
		})
	}
}

// Require ensures the authenticated principal holds action.
func (m Middleware) Require(action string) func(http.Handler) http.Handler {
	return m.RequireAny(action)
}

// RequireAny ensures the authenticated principal holds at least one of the actions.
func (m Middleware) RequireAny(actions ...string) func(http.Handler) http.Handler {
	normalized := normalizeActions(actions)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			grant := shared.GrantFromContext(r.Context())
			if grant == nil {
				httpx.RespondError(w, shared.ErrTokenMissing)
				return
			}
			if len(normalized) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			for _, action := range normalized {
				if Allows(grant.Permissions, action) {
					next.ServeHTTP(w, r)
					return
				}
			}
			m.reject(r, shared.ErrForbidden)
			httpx.RespondError(w, shared.ErrForbidden)
		})
	}
}

func (m Middleware) reject(r *http.Request, err error) {
	if m.Logger == nil {
		return
	}
	if status, _ := httpx.StatusFor(err); status >= http.StatusInternalServerError {
		m.Logger.Error("authorization failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		return
	}
	m.Logger.Debug("request rejected", slog.String("path", r.URL.Path), slog.String("reason", err.Error()))
}

func normalizeActions(actions []string) []string {
	seen := make(map[string]struct{}, len(actions))
	normalized := make([]string, 0, len(actions))
	for _, a := range actions {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		normalized = append(normalized, a)
	}
	return normalized
}
