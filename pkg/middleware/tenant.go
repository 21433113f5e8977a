// pkg/middleware/tenant.go
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"schoolcore/pkg/auth"
	"schoolcore/pkg/problems"
	"schoolcore/pkg/resolve"
	"schoolcore/pkg/tenantdb"
)

type sessionCtxKey struct{}

// SchoolResolver is the slice of the resolution pipeline this middleware uses.
type SchoolResolver interface {
	Resolve(ctx context.Context, ev resolve.Evidence) (resolve.Result, error)
}

// WithSchool resolves the tenant once per request and stores the outcome in
// the request context. Downstream handlers read it via SessionFrom and never
// resolve or fetch a connection themselves.
func WithSchool(res SchoolResolver, ver auth.Verifier, log *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Allow health/metrics and public well-known without tenant context
			if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" || strings.HasPrefix(r.URL.Path, "/.well-known/") {
				next.ServeHTTP(w, r)
				return
			}

			var claims *auth.Claims
			authz := r.Header.Get("Authorization")
			if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
				if ver == nil {
					writeProblem(w, http.StatusInternalServerError, "auth-not-configured", "token verification is not configured")
					return
				}
				raw := strings.TrimSpace(authz[len("Bearer "):])
				c, err := ver.Verify(r.Context(), raw)
				if err != nil {
					writeProblem(w, http.StatusUnauthorized, "invalid-token", "bearer token rejected")
					return
				}
				claims = c
			}

			out, err := res.Resolve(r.Context(), resolve.Evidence{Claims: claims})
			if err != nil {
				status, slug := problemFor(err)
				log.Warnw("tenant resolution failed", "path", r.URL.Path, "status", status, "err", err)
				writeProblem(w, status, slug, err.Error())
				return
			}

			ctx := context.WithValue(r.Context(), sessionCtxKey{}, out)
			if claims != nil {
				ctx = WithScopes(ctx, claims.Scopes)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionFrom returns the request's resolved tenant session.
func SessionFrom(ctx context.Context) (resolve.Result, bool) {
	if v := ctx.Value(sessionCtxKey{}); v != nil {
		if out, ok := v.(resolve.Result); ok {
			return out, true
		}
	}
	return resolve.Result{}, false
}

func problemFor(err error) (int, string) {
	var (
		resErr  *resolve.ResolutionError
		inact   *resolve.TenantInactiveError
		connErr *tenantdb.ConnectionError
		regErr  *tenantdb.RegistrationError
	)
	switch {
	case errors.As(err, &resErr):
		return http.StatusUnauthorized, "identity-unknown"
	case errors.As(err, &inact):
		return http.StatusForbidden, "school-inactive"
	case errors.As(err, &connErr), errors.As(err, &regErr):
		return http.StatusServiceUnavailable, "school-store-unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeProblem(w http.ResponseWriter, status int, slug, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"type":   problems.Type(slug),
		"title":  slug,
		"status": status,
		"detail": detail,
	})
}
