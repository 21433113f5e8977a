package schoolapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"schoolcore/pkg/auth"
	"schoolcore/pkg/config"
	"schoolcore/pkg/middleware"
	"schoolcore/pkg/tenantdb"
)

// App is the HTTP surface over the tenant core: session introspection for
// authenticated callers plus admin visibility into the connection cache.
type App struct {
	cfg      config.Config
	log      *zap.SugaredLogger
	resolver middleware.SchoolResolver
	verifier auth.Verifier
	pool     *tenantdb.Pool
}

func New(cfg config.Config, log *zap.SugaredLogger, resolver middleware.SchoolResolver, verifier auth.Verifier, pool *tenantdb.Pool) *App {
	return &App{cfg: cfg, log: log, resolver: resolver, verifier: verifier, pool: pool}
}

// Handler builds the HTTP handler with routes and middleware.
func (a *App) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID())
	r.Use(middleware.Recover(a.log))
	r.Use(middleware.DebugWriteHeader(a.log))
	r.Use(middleware.Tracing(a.cfg))
	r.Use(middleware.WithSchool(a.resolver, a.verifier, a.log))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Get("/v1/session", a.getSession)

	r.Route("/v1/admin", func(ar chi.Router) {
		ar.Use(a.requireAdmin)
		ar.Get("/connections", a.listConnections)
		ar.Delete("/connections/{schoolID}", a.evictConnection)
	})

	return r
}

func (a *App) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		out, ok := middleware.SessionFrom(r.Context())
		if !ok || (!out.Superadmin && !middleware.HasAnyScope(r.Context(), []string{"admin"})) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
