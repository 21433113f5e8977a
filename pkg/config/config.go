// pkg/config/config.go
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	HTTPAddr string

	// OIDC / JWT
	Issuer   string
	Audience string
	JWKSURL  string

	// System-of-record (schools + ungrouped identities)
	DatabaseURL string
	RedisURL    string

	// Per-school document stores
	StoreBaseURI    string        // base mongodb:// URI; db name substituted per school
	ConnectTimeout  time.Duration // per connection attempt
	PingTimeout     time.Duration // liveness probe
	ShutdownTimeout time.Duration // overall deadline for closing all connections

	SchoolCacheTTL time.Duration // redis descriptor cache TTL (0 disables)
}

func Load() Config {
	_ = godotenv.Load()
	cfg := Config{
		Env:             env("SCHOOLCORE_ENV", "dev"),
		HTTPAddr:        env("SCHOOLCORE_HTTP_ADDR", ":8080"),
		Issuer:          env("OIDC_ISSUER", ""),
		Audience:        env("OIDC_AUDIENCE", "schoolcore-api"),
		JWKSURL:         env("JWKS_URL", ""),
		DatabaseURL:     env("DATABASE_URL", ""),
		RedisURL:        env("REDIS_URL", ""),
		StoreBaseURI:    env("STORE_BASE_URI", "mongodb://localhost:27017/schoolcore"),
		ConnectTimeout:  envDur("STORE_CONNECT_TIMEOUT_SEC", 5) * time.Second,
		PingTimeout:     envDur("STORE_PING_TIMEOUT_SEC", 2) * time.Second,
		ShutdownTimeout: envDur("SHUTDOWN_TIMEOUT_SEC", 10) * time.Second,
		SchoolCacheTTL:  envDur("SCHOOL_CACHE_TTL_SEC", 0) * time.Second,
	}
	if cfg.DatabaseURL == "" {
		log.Println("[WARN] DATABASE_URL not set — using in-memory school directory for dev")
	}
	return cfg
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
func envDur(k string, def int) time.Duration {
	if v := os.Getenv(k); v != "" {
		i, _ := strconv.Atoi(v)
		return time.Duration(i)
	}
	return time.Duration(def)
}
