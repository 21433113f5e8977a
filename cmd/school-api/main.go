// cmd/school-api/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"schoolcore/internal/schoolapi"
	"schoolcore/pkg/auth"
	"schoolcore/pkg/config"
	"schoolcore/pkg/db"
	"schoolcore/pkg/directory"
	"schoolcore/pkg/logger"
	"schoolcore/pkg/resolve"
	"schoolcore/pkg/schema"
	"schoolcore/pkg/tenantdb"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env)

	var pgPool = db.MustConnect(cfg, log)
	rdb := db.MustRedis(cfg, log)

	var dir directory.Provider
	if pgPool != nil {
		dir = directory.NewPostgresProvider(pgPool, log)
		if err := directory.EnsureSchema(context.Background(), pgPool); err != nil {
			log.Fatalw("schema", "err", err)
		}
		if err := directory.SeedFromEnv(context.Background(), pgPool, os.Getenv("SCHOOL_SEED_JSON")); err != nil {
			log.Warnw("seed", "err", err)
		}
	} else {
		dir = directory.NewMemoryProviderFromEnv(log)
	}
	schools := directory.NewCachedSchools(dir, rdb, cfg.SchoolCacheTTL, log)

	pool := tenantdb.New(tenantdb.Config{
		BaseURI:         cfg.StoreBaseURI,
		ConnectTimeout:  cfg.ConnectTimeout,
		PingTimeout:     cfg.PingTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, schools, schema.NewRegistry(), nil, tenantdb.NewMetrics(prometheus.DefaultRegisterer), log)

	resolver := resolve.New(schools, dir, pool, log)

	var verifier auth.Verifier
	if cfg.Issuer != "" && cfg.JWKSURL != "" {
		v, err := auth.NewVerifier(cfg.Issuer, cfg.Audience, cfg.JWKSURL)
		if err != nil {
			log.Fatalw("verifier", "err", err)
		}
		verifier = v
	} else {
		log.Warnw("OIDC_ISSUER/JWKS_URL not set — bearer tokens will be rejected")
	}

	app := schoolapi.New(cfg, log, resolver, verifier, pool)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: app.Handler()}
	go func() {
		log.Infow("school-api listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("ListenAndServe", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	_ = srv.Shutdown(ctx)
	if err := pool.CloseAll(ctx); err != nil {
		log.Warnw("close connections", "err", err)
	}
	fmt.Println("school-api stopped")
}
